package transport

// EventKind classifies an Event surfaced to the application through
// Conn.Events (spec.md Section 4.9's Conn-to-application notification
// channel).
type EventKind uint8

const (
	EventHandshakeComplete EventKind = iota
	EventStreamReadable
	EventStreamWritable
	EventStreamReset
	EventStreamStopSending
	EventConnClosed
)

// Event is a single notification an application-facing wrapper should
// act on (e.g. waking a blocked Read, delivering a stream-reset error).
type Event struct {
	Kind       EventKind
	StreamID   uint64
	ErrorCode  ErrorCode
	AppError   bool
	FinalSize  uint64
	PeerClosed bool
}

func newHandshakeCompleteEvent() Event {
	return Event{Kind: EventHandshakeComplete}
}

func newStreamReadableEvent(id uint64) Event {
	return Event{Kind: EventStreamReadable, StreamID: id}
}

func newStreamWritableEvent(id uint64) Event {
	return Event{Kind: EventStreamWritable, StreamID: id}
}

func newStreamResetEvent(id uint64, errorCode, finalSize uint64) Event {
	return Event{Kind: EventStreamReset, StreamID: id, ErrorCode: ErrorCode(errorCode), FinalSize: finalSize}
}

func newStreamStopSendingEvent(id uint64, errorCode uint64) Event {
	return Event{Kind: EventStreamStopSending, StreamID: id, ErrorCode: ErrorCode(errorCode)}
}

func newConnClosedEvent(errorCode uint64, app bool, peerClosed bool) Event {
	return Event{Kind: EventConnClosed, ErrorCode: ErrorCode(errorCode), AppError: app, PeerClosed: peerClosed}
}
