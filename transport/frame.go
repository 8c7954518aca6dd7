package transport

// Frame type values (RFC 9000 Section 19). Frames occupying a range (ACK,
// STREAM, MAX_STREAMS, STREAMS_BLOCKED, CONNECTION_CLOSE) use the low bits
// of the type to carry flags; see each frame's decode/encode.
const (
	frameTypePadding            uint64 = 0x00
	frameTypePing               uint64 = 0x01
	frameTypeAck                uint64 = 0x02
	frameTypeAckECN              uint64 = 0x03
	frameTypeResetStream        uint64 = 0x04
	frameTypeStopSending        uint64 = 0x05
	frameTypeCrypto             uint64 = 0x06
	frameTypeNewToken           uint64 = 0x07
	frameTypeStream             uint64 = 0x08
	frameTypeStreamEnd          uint64 = 0x0f
	frameTypeMaxData            uint64 = 0x10
	frameTypeMaxStreamData      uint64 = 0x11
	frameTypeMaxStreamsBidi     uint64 = 0x12
	frameTypeMaxStreamsUni      uint64 = 0x13
	frameTypeDataBlocked        uint64 = 0x14
	frameTypeStreamDataBlocked  uint64 = 0x15
	frameTypeStreamsBlockedBidi uint64 = 0x16
	frameTypeStreamsBlockedUni  uint64 = 0x17
	frameTypeNewConnectionID    uint64 = 0x18
	frameTypeRetireConnectionID uint64 = 0x19
	frameTypePathChallenge      uint64 = 0x1a
	frameTypePathResponse       uint64 = 0x1b
	frameTypeConnectionClose    uint64 = 0x1c
	frameTypeApplicationClose   uint64 = 0x1d
	frameTypeHandshakeDone      uint64 = 0x1e
)

// frame is implemented by every QUIC frame value. encode includes the
// frame's type field; encodedLen and maxEncodedLen let a caller choose a
// frame for transmission by checking remaining packet budget, per
// spec.md Section 4.2.
type frame interface {
	encodedLen() int
	maxEncodedLen() int
	encode(b []byte) (int, error)
}

// isFrameAckEliciting reports whether a frame of the given wire type
// elicits an ACK from the peer (every frame except PADDING, ACK and
// CONNECTION_CLOSE). It operates on the raw wire type so the receive path
// can classify frames before fully parsing them.
func isFrameAckEliciting(typ uint64) bool {
	switch typ {
	case frameTypePadding, frameTypeAck, frameTypeAckECN,
		frameTypeConnectionClose, frameTypeApplicationClose:
		return false
	default:
		return true
	}
}

// frameAllowedInSpace enforces the static admissibility discipline of
// spec.md Section 3 ("Frame admissibility by packet type"): a frame
// arriving in a packet type where it is not listed is a protocol
// violation, checked by wire type before the frame body is even parsed.
// isZeroRTT distinguishes 0-RTT from 1-RTT traffic within the merged
// Application space; it is ignored for the other two spaces.
func frameAllowedInSpace(typ uint64, space packetSpace, isZeroRTT bool) bool {
	switch space {
	case packetSpaceInitial, packetSpaceHandshake:
		switch typ {
		case frameTypePadding, frameTypePing, frameTypeAck, frameTypeAckECN,
			frameTypeCrypto, frameTypeConnectionClose:
			return true
		default:
			return false
		}
	case packetSpaceApplication:
		if !isZeroRTT {
			return true
		}
		// 0-RTT admits everything except ACK, CRYPTO, NEW_TOKEN,
		// HANDSHAKE_DONE and PATH_RESPONSE (RFC 9000 Table 3): those
		// all depend on state a 0-RTT packet cannot yet carry (no ACKs
		// of 1-RTT packets exist yet, the TLS handshake isn't running
		// over 0-RTT, and PATH_RESPONSE only answers a challenge that
		// could only have arrived over 1-RTT).
		switch typ {
		case frameTypeAck, frameTypeAckECN, frameTypeCrypto, frameTypeNewToken,
			frameTypeHandshakeDone, frameTypePathResponse:
			return false
		default:
			return true
		}
	default:
		return false
	}
}

// isReliableFrame reports whether a frame must be queued for
// retransmission until acknowledged (spec.md's ReliableFrame = Conn |
// StreamCtl). PADDING, PING, ACK, and the two path-validation frames are
// excluded: PING's only job is to force a packet to be ack-eliciting
// (retransmitting it would be pointless busywork), ACK is never
// retransmitted on its own loss (spec.md Section 4.6 step 3), and path
// frames are handled by path validation logic, not the reliable queue.
// CRYPTO and STREAM frames are "data frames" and are retransmitted by
// replaying buffered ranges from their source buffer, not by
// requeueing the frame value itself.
func isReliableFrame(f frame) bool {
	switch f.(type) {
	case *paddingFrame, *pingFrame, *ackFrame,
		*pathChallengeFrame, *pathResponseFrame,
		*cryptoFrame, *streamFrame:
		return false
	default:
		return true
	}
}

// isDataFrame reports whether f carries application or crypto-stream
// bytes (spec.md's DataFrame = Crypto | Stream).
func isDataFrame(f frame) bool {
	switch f.(type) {
	case *cryptoFrame, *streamFrame:
		return true
	default:
		return false
	}
}

// FrameReader iterates the frames encoded in a packet payload. On the
// first decode error it clears its remaining bytes and returns the error
// on every subsequent call, matching spec.md Section 4.2's FrameReader
// contract.
type FrameReader struct {
	buf []byte
	err error
}

func newFrameReader(b []byte) *FrameReader {
	return &FrameReader{buf: b}
}

// Next decodes and returns the next frame, or (nil, io.EOF)-equivalent
// (nil, nil) when the buffer is exhausted, or (nil, err) once a decode
// error has occurred (on this and all future calls).
func (r *FrameReader) Next() (frame, uint64, error) {
	if r.err != nil {
		return nil, 0, r.err
	}
	if len(r.buf) == 0 {
		return nil, 0, nil
	}
	var typ uint64
	if getVarint(r.buf, &typ) == 0 {
		r.err = incompletef("frame type")
		r.buf = nil
		return nil, 0, r.err
	}
	f, n, err := decodeFrame(typ, r.buf)
	if err != nil {
		r.err = err
		r.buf = nil
		return nil, typ, err
	}
	r.buf = r.buf[n:]
	return f, typ, nil
}

// decodeFrame dispatches to the per-kind parser for typ, where b begins
// with the frame's type VarInt.
func decodeFrame(typ uint64, b []byte) (frame, int, error) {
	switch {
	case typ == frameTypePadding:
		f := &paddingFrame{}
		n, err := f.decode(b)
		return f, n, err
	case typ == frameTypePing:
		f := &pingFrame{}
		n, err := f.decode(b)
		return f, n, err
	case typ == frameTypeAck || typ == frameTypeAckECN:
		f := &ackFrame{}
		n, err := f.decode(b)
		return f, n, err
	case typ == frameTypeResetStream:
		f := &resetStreamFrame{}
		n, err := f.decode(b)
		return f, n, err
	case typ == frameTypeStopSending:
		f := &stopSendingFrame{}
		n, err := f.decode(b)
		return f, n, err
	case typ == frameTypeCrypto:
		f := &cryptoFrame{}
		n, err := f.decode(b)
		return f, n, err
	case typ == frameTypeNewToken:
		f := &newTokenFrame{}
		n, err := f.decode(b)
		return f, n, err
	case typ >= frameTypeStream && typ <= frameTypeStreamEnd:
		f := &streamFrame{}
		n, err := f.decode(b)
		return f, n, err
	case typ == frameTypeMaxData:
		f := &maxDataFrame{}
		n, err := f.decode(b)
		return f, n, err
	case typ == frameTypeMaxStreamData:
		f := &maxStreamDataFrame{}
		n, err := f.decode(b)
		return f, n, err
	case typ == frameTypeMaxStreamsBidi || typ == frameTypeMaxStreamsUni:
		f := &maxStreamsFrame{}
		n, err := f.decode(b)
		return f, n, err
	case typ == frameTypeDataBlocked:
		f := &dataBlockedFrame{}
		n, err := f.decode(b)
		return f, n, err
	case typ == frameTypeStreamDataBlocked:
		f := &streamDataBlockedFrame{}
		n, err := f.decode(b)
		return f, n, err
	case typ == frameTypeStreamsBlockedBidi || typ == frameTypeStreamsBlockedUni:
		f := &streamsBlockedFrame{}
		n, err := f.decode(b)
		return f, n, err
	case typ == frameTypeNewConnectionID:
		f := &newConnectionIDFrame{}
		n, err := f.decode(b)
		return f, n, err
	case typ == frameTypeRetireConnectionID:
		f := &retireConnectionIDFrame{}
		n, err := f.decode(b)
		return f, n, err
	case typ == frameTypePathChallenge:
		f := &pathChallengeFrame{}
		n, err := f.decode(b)
		return f, n, err
	case typ == frameTypePathResponse:
		f := &pathResponseFrame{}
		n, err := f.decode(b)
		return f, n, err
	case typ == frameTypeConnectionClose || typ == frameTypeApplicationClose:
		f := &connectionCloseFrame{}
		n, err := f.decode(b)
		return f, n, err
	case typ == frameTypeHandshakeDone:
		f := &handshakeDoneFrame{}
		n, err := f.decode(b)
		return f, n, err
	default:
		return nil, 0, frameErrorf(FrameEncodingError, typ, "unknown frame type")
	}
}

// encodeFrames writes frames in order into b and returns the number of
// bytes written.
func encodeFrames(b []byte, frames []frame) (int, error) {
	off := 0
	for _, f := range frames {
		n, err := f.encode(b[off:])
		if err != nil {
			return 0, err
		}
		off += n
	}
	return off, nil
}
