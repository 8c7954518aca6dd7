package transport

import "fmt"

// ErrorCode is a QUIC transport error code (RFC 9000 Section 20.1).
type ErrorCode uint64

const (
	NoError                  ErrorCode = 0x0
	InternalError            ErrorCode = 0x1
	ConnectionRefused        ErrorCode = 0x2
	FlowControlError         ErrorCode = 0x3
	StreamLimitError         ErrorCode = 0x4
	StreamStateError         ErrorCode = 0x5
	FinalSizeError           ErrorCode = 0x6
	FrameEncodingError       ErrorCode = 0x7
	TransportParameterError  ErrorCode = 0x8
	ConnectionIDLimitError   ErrorCode = 0x9
	ProtocolViolation        ErrorCode = 0xa
	InvalidToken             ErrorCode = 0xb
	ApplicationError         ErrorCode = 0xc
	CryptoBufferExceeded     ErrorCode = 0xd
	KeyUpdateError           ErrorCode = 0xe
	AeadLimitReached         ErrorCode = 0xf
	NoViablePath             ErrorCode = 0x10
	CryptoErrorBase          ErrorCode = 0x100
)

func errorCodeString(code ErrorCode) string {
	switch {
	case code >= CryptoErrorBase && code < CryptoErrorBase+0x100:
		return fmt.Sprintf("crypto_error_%d", code-CryptoErrorBase)
	}
	switch code {
	case NoError:
		return "no_error"
	case InternalError:
		return "internal_error"
	case ConnectionRefused:
		return "connection_refused"
	case FlowControlError:
		return "flow_control_error"
	case StreamLimitError:
		return "stream_limit_error"
	case StreamStateError:
		return "stream_state_error"
	case FinalSizeError:
		return "final_size_error"
	case FrameEncodingError:
		return "frame_encoding_error"
	case TransportParameterError:
		return "transport_parameter_error"
	case ConnectionIDLimitError:
		return "connection_id_limit_error"
	case ProtocolViolation:
		return "protocol_violation"
	case InvalidToken:
		return "invalid_token"
	case ApplicationError:
		return "application_error"
	case CryptoBufferExceeded:
		return "crypto_buffer_exceeded"
	case KeyUpdateError:
		return "key_update_error"
	case AeadLimitReached:
		return "aead_limit_reached"
	case NoViablePath:
		return "no_viable_path"
	default:
		return fmt.Sprintf("error_0x%x", uint64(code))
	}
}

// Error is a QUIC connection-level error: one that results in a
// CONNECTION_CLOSE being generated by the orchestrator.
type Error struct {
	Code      ErrorCode
	FrameType uint64 // 0 if not applicable
	Message   string
}

func newError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return errorCodeString(e.Code)
	}
	return fmt.Sprintf("%s: %s", errorCodeString(e.Code), e.Message)
}

// errIncomplete is returned by parsers when fewer bytes are available than
// a length-prefixed value requires. It is never fatal: callers wait for
// more input (a coalesced datagram, or the next received packet) and retry.
type errIncomplete struct {
	what string
}

func (e *errIncomplete) Error() string { return "incomplete: " + e.what }

func incompletef(what string) error { return &errIncomplete{what: what} }

// isIncomplete reports whether err is an *errIncomplete (wrapped errors
// are not unwrapped).
func isIncomplete(err error) bool {
	_, ok := err.(*errIncomplete)
	return ok
}

// FrameError is a malformed- or unknown-frame error: the frame layer could
// not make sense of the bytes at all (InvalidType, IncompleteFrame or
// ParseError from spec.md's error taxonomy).
type FrameError struct {
	Code      ErrorCode
	FrameType uint64
	Detail    string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame 0x%x: %s", e.FrameType, e.Detail)
}

func frameErrorf(code ErrorCode, frameType uint64, format string, args ...interface{}) *FrameError {
	return &FrameError{Code: code, FrameType: frameType, Detail: fmt.Sprintf(format, args...)}
}

// WrongFrameError reports a frame that parsed correctly but is not
// admissible in the packet type (or frame-group conversion) it arrived in.
type WrongFrameError struct {
	FrameType uint64
	Context   string
}

func (e *WrongFrameError) Error() string {
	return fmt.Sprintf("frame 0x%x not allowed in %s", e.FrameType, e.Context)
}

func wrongFrame(frameType uint64, context string) *WrongFrameError {
	return &WrongFrameError{FrameType: frameType, Context: context}
}

// RcvPnError describes a received packet number that does not require a
// protocol violation: either a duplicate or one that fell below the
// received-range floor.
type RcvPnError struct {
	Duplicate bool
	PN        packetNumber
}

func (e *RcvPnError) Error() string {
	if e.Duplicate {
		return fmt.Sprintf("duplicate packet number %d", e.PN)
	}
	return fmt.Sprintf("packet number %d below floor", e.PN)
}

// StreamError is a stream-level protocol violation (flow-control or
// final-size/state violation).
type StreamError struct {
	Code     ErrorCode
	StreamID uint64
	Detail   string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %d: %s", e.StreamID, e.Detail)
}

func streamErrorf(code ErrorCode, streamID uint64, format string, args ...interface{}) *StreamError {
	return &StreamError{Code: code, StreamID: streamID, Detail: fmt.Sprintf(format, args...)}
}

var (
	errShortBuffer  = newError(InternalError, "short buffer")
	errInvalidToken = newError(InvalidToken, "invalid retry token")
)
