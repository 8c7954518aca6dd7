package transport

// Stream ID low bits (RFC 9000 Section 2.1).
const (
	streamIDClientBidi = 0x0
	streamIDServerBidi = 0x1
	streamIDClientUni  = 0x2
	streamIDServerUni  = 0x3
)

func streamIsBidi(id uint64) bool   { return id&0x2 == 0 }
func streamIsClient(id uint64) bool { return id&0x1 == 0 }

// sendState is the QUIC stream sender state machine (RFC 9000 Section
// 3.1).
type sendState uint8

const (
	sendStateReady sendState = iota
	sendStateSend
	sendStateDataSent
	sendStateDataRecvd
	sendStateResetSent
	sendStateResetRecvd
)

// recvState is the QUIC stream receiver state machine (RFC 9000
// Section 3.2).
type recvState uint8

const (
	recvStateRecv recvState = iota
	recvStateSizeKnown
	recvStateDataRecvd
	recvStateDataRead
	recvStateResetRecvd
	recvStateResetRead
)

// Stream is one QUIC stream: a pair of independent send/receive byte
// pipes (unidirectional streams use only one side), per spec.md
// Section 4.8/4.9.
type Stream struct {
	id   uint64
	bidi bool

	send      streamSendBuffer
	sendState sendState
	sendFlow  *streamFlowLimit

	recv      *streamRecvBuffer
	recvState recvState

	sendBlocked bool // STREAM_DATA_BLOCKED owed to the peer
}

// streamFlowLimit is a stream's own send-direction flow-control window,
// as distinct from the connection-wide flowControl.
type streamFlowLimit struct {
	max  uint64
	used uint64
}

func (l *streamFlowLimit) available() uint64 {
	if l.used >= l.max {
		return 0
	}
	return l.max - l.used
}

func (l *streamFlowLimit) onMaxStreamData(max uint64) {
	if max > l.max {
		l.max = max
	}
}

// newStream constructs a Stream. Callers pass recvWindow == 0 for a
// uni stream with no receive side (one this endpoint opened) and
// sendLimit == 0 for a uni stream with no send side (one the peer
// opened); the zero window/limit then simply keeps that half
// perpetually empty, since neither receive() nor write() is ever
// invoked on it.
func newStream(id uint64, bidi bool, sendLimit, recvWindow, maxAutoWindow uint64) *Stream {
	return &Stream{
		id:       id,
		bidi:     bidi,
		send:     *newStreamSendBuffer(),
		sendFlow: &streamFlowLimit{max: sendLimit},
		recv:     newStreamRecvBuffer(recvWindow, maxAutoWindow),
	}
}

// write buffers b for sending, subject to the stream's own flow
// control window; it never blocks and never partially enforces
// connection-level flow control (the caller checks that separately
// before calling write, per spec.md's layering of Stream under Space).
func (s *Stream) write(b []byte, fin bool) error {
	if s.sendState != sendStateReady && s.sendState != sendStateSend {
		return streamErrorf(StreamStateError, s.id, "write after send side closed")
	}
	if uint64(len(b)) > s.sendFlow.available() {
		return streamErrorf(FlowControlError, s.id, "stream data limit exceeded")
	}
	s.send.write(b)
	s.sendFlow.used += uint64(len(b))
	if s.sendState == sendStateReady {
		s.sendState = sendStateSend
	}
	if fin {
		s.send.close()
	}
	return nil
}

// onStreamDataAcked advances the send state machine to DataRecvd once
// every byte (including FIN) is acknowledged.
func (s *Stream) onStreamDataAcked(lo, hi uint64) {
	s.send.onAcked(lo, hi)
	if s.send.isComplete() {
		s.sendState = sendStateDataRecvd
	}
}

func (s *Stream) onStreamDataLost(lo, hi uint64) {
	s.send.onLost(lo, hi)
}

// afterSend advances Send to DataSent once every byte up to the
// stream's final size has been queued for transmission at least once
// (RFC 9000 Section 3.1). The caller invokes this right after pulling
// data out of the send buffer for a STREAM frame.
func (s *Stream) afterSend() {
	if s.sendState == sendStateSend && s.send.allQueued() {
		s.sendState = sendStateDataSent
	}
}

// onResetSent and onResetAcked move the send side directly to ResetSent/ResetRecvd
// bookkeeping; the caller (Conn) is responsible for emitting or having
// received the RESET_STREAM frame.
func (s *Stream) onResetSent() { s.sendState = sendStateResetSent }
func (s *Stream) onResetAcked() { s.sendState = sendStateResetRecvd }

// receive delivers STREAM frame payload into the recv buffer, advancing
// recvState as the final size becomes known and data completes.
func (s *Stream) receive(offset uint64, data []byte, fin bool) error {
	if s.recvState == recvStateResetRecvd || s.recvState == recvStateResetRead {
		return nil // peer already reset; silently drop late data
	}
	if err := s.recv.write(offset, data, fin); err != nil {
		return err
	}
	if fin && s.recvState == recvStateRecv {
		s.recvState = recvStateSizeKnown
	}
	if s.recv.atEOF() && s.recvState != recvStateDataRead {
		s.recvState = recvStateDataRecvd
	}
	return nil
}

func (s *Stream) onReceiveReset(errorCode, finalSize uint64) error {
	if err := s.recv.applyReset(errorCode, finalSize); err != nil {
		return err
	}
	s.recvState = recvStateResetRecvd
	return nil
}

// Read copies received bytes to p. It is the public surface an
// application-facing quic.Stream wraps.
func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.recv.read(p)
	if err == errStreamEOF {
		s.recvState = recvStateDataRead
	}
	return n, err
}

// Write buffers application bytes for the stream's send side.
func (s *Stream) Write(p []byte) (int, error) {
	if err := s.write(p, false); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close marks the stream's send side finished (FIN).
func (s *Stream) Close() error {
	return s.write(nil, true)
}

// isSendFinished reports whether the send side no longer needs
// scheduling (nothing pending, fully acked or reset).
func (s *Stream) isSendFinished() bool {
	switch s.sendState {
	case sendStateDataRecvd, sendStateResetRecvd:
		return true
	default:
		return false
	}
}

// isRecvFinished reports whether the receive side is fully drained.
func (s *Stream) isRecvFinished() bool {
	switch s.recvState {
	case recvStateDataRead, recvStateResetRead:
		return true
	default:
		return false
	}
}

// streamMap owns every Stream for a connection, keyed by stream ID,
// and enforces the locally- and peer-advertised concurrent stream
// limits (RFC 9000 Section 4.6).
type streamMap struct {
	isClient bool

	streams map[uint64]*Stream

	nextBidiID uint64
	nextUniID  uint64

	maxStreamsBidi    uint64 // peer-advertised limit on streams we may open
	maxStreamsUni     uint64
	peerMaxStreamsBidi uint64 // locally-advertised limit on streams the peer may open
	peerMaxStreamsUni  uint64

	localOpenedBidi uint64
	localOpenedUni  uint64
	peerOpenedBidi  uint64
	peerOpenedUni   uint64

	defaultRecvWindow uint64
	defaultSendLimit  uint64
	maxAutoWindow     uint64
}

func newStreamMap(isClient bool, params Parameters) *streamMap {
	m := &streamMap{
		isClient:           isClient,
		streams:            make(map[uint64]*Stream),
		maxStreamsBidi:     params.InitialMaxStreamsBidi,
		maxStreamsUni:      params.InitialMaxStreamsUni,
		peerMaxStreamsBidi: params.InitialMaxStreamsBidi,
		peerMaxStreamsUni:  params.InitialMaxStreamsUni,
		defaultRecvWindow:  params.InitialMaxStreamDataBidiLocal,
		defaultSendLimit:   params.InitialMaxStreamDataBidiRemote,
		maxAutoWindow:      params.InitialMaxStreamDataBidiLocal * 16,
	}
	if isClient {
		m.nextBidiID = streamIDClientBidi
		m.nextUniID = streamIDClientUni
	} else {
		m.nextBidiID = streamIDServerBidi
		m.nextUniID = streamIDServerUni
	}
	return m
}

// openLocal allocates and returns a new locally-initiated stream,
// enforcing the peer's advertised stream-count limit.
func (m *streamMap) openLocal(bidi bool) (*Stream, error) {
	if bidi {
		if m.localOpenedBidi >= m.maxStreamsBidi {
			return nil, newError(StreamLimitError, "bidirectional stream limit reached")
		}
	} else if m.localOpenedUni >= m.maxStreamsUni {
		return nil, newError(StreamLimitError, "unidirectional stream limit reached")
	}
	var id uint64
	if bidi {
		id = m.nextBidiID
		m.nextBidiID += 4
		m.localOpenedBidi++
	} else {
		id = m.nextUniID
		m.nextUniID += 4
		m.localOpenedUni++
	}
	sendLimit := m.defaultSendLimit
	recvWindow := m.defaultRecvWindow
	if !bidi {
		recvWindow = 0 // locally-initiated uni streams have no receive side
	}
	s := newStream(id, bidi, sendLimit, recvWindow, m.maxAutoWindow)
	m.streams[id] = s
	return s, nil
}

// getOrCreatePeer returns the Stream for a peer-referenced id,
// creating it (and any lower-numbered streams of the same type the
// peer is implicitly permitted to have opened, per RFC 9000 Section
// 2.1) if this is the first reference, or an error if id exceeds the
// advertised limit.
func (m *streamMap) getOrCreatePeer(id uint64) (*Stream, error) {
	if s, ok := m.streams[id]; ok {
		return s, nil
	}
	bidi := streamIsBidi(id)
	index := id >> 2
	if bidi {
		if index >= m.peerMaxStreamsBidi {
			return nil, newError(StreamLimitError, "peer exceeded bidirectional stream limit")
		}
		if index+1 > m.peerOpenedBidi {
			m.peerOpenedBidi = index + 1
		}
	} else {
		if index >= m.peerMaxStreamsUni {
			return nil, newError(StreamLimitError, "peer exceeded unidirectional stream limit")
		}
		if index+1 > m.peerOpenedUni {
			m.peerOpenedUni = index + 1
		}
	}
	sendLimit := m.defaultSendLimit
	recvWindow := m.defaultRecvWindow
	if !bidi {
		sendLimit = 0 // this endpoint cannot send on a uni stream the peer opened
	}
	s := newStream(id, bidi, sendLimit, recvWindow, m.maxAutoWindow)
	m.streams[id] = s
	return s, nil
}

func (m *streamMap) get(id uint64) (*Stream, bool) {
	s, ok := m.streams[id]
	return s, ok
}

func (m *streamMap) onMaxStreams(max uint64, bidi bool) {
	if bidi {
		if max > m.maxStreamsBidi {
			m.maxStreamsBidi = max
		}
	} else if max > m.maxStreamsUni {
		m.maxStreamsUni = max
	}
}
