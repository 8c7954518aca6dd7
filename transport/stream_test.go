package transport

import "testing"

// TestStreamSendStateTransitions walks the Send sender state machine
// through Ready -> Send -> DataSent -> DataRecvd (spec.md Section 4.8,
// testable property 10): DataSent is reached once every byte up to the
// FIN has been queued for transmission, and DataRecvd only once that
// data is acknowledged.
func TestStreamSendStateTransitions(t *testing.T) {
	s := newStream(0, true, 1<<20, 1<<20, 1<<20)
	if s.sendState != sendStateReady {
		t.Fatalf("initial sendState = %v, want Ready", s.sendState)
	}

	n, err := s.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}
	if s.sendState != sendStateSend {
		t.Fatalf("sendState after Write = %v, want Send", s.sendState)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s.sendState != sendStateSend {
		t.Fatalf("sendState after Close (FIN buffered, not yet sent) = %v, want Send", s.sendState)
	}

	data, offset, fin, ok := s.send.nextPending(100)
	if !ok || offset != 0 || string(data) != "hello" || !fin {
		t.Fatalf("nextPending = data=%q offset=%d fin=%v ok=%v", data, offset, fin, ok)
	}
	s.afterSend()
	if s.sendState != sendStateDataSent {
		t.Fatalf("sendState after afterSend = %v, want DataSent", s.sendState)
	}
	if s.isSendFinished() {
		t.Fatal("DataSent must not be reported as finished before the data is acknowledged")
	}

	s.onStreamDataAcked(offset, offset+uint64(len(data)))
	if s.sendState != sendStateDataRecvd {
		t.Fatalf("sendState after ack = %v, want DataRecvd", s.sendState)
	}
	if !s.isSendFinished() {
		t.Fatal("expected isSendFinished once DataRecvd is reached")
	}
}

// TestStreamSendStateStaysSendUntilFullyQueued checks that a partial
// send (budget smaller than the buffered data) does not prematurely
// advance to DataSent.
func TestStreamSendStateStaysSendUntilFullyQueued(t *testing.T) {
	s := newStream(0, true, 1<<20, 1<<20, 1<<20)
	if _, err := s.Write([]byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, _, _, ok := s.send.nextPending(5); !ok {
		t.Fatal("expected a first pending chunk")
	}
	s.afterSend()
	if s.sendState != sendStateSend {
		t.Fatalf("sendState after partial send = %v, want Send", s.sendState)
	}

	if _, _, fin, ok := s.send.nextPending(100); !ok || !fin {
		t.Fatal("expected the remaining bytes including FIN")
	}
	s.afterSend()
	if s.sendState != sendStateDataSent {
		t.Fatalf("sendState after full send = %v, want DataSent", s.sendState)
	}
}

// TestStreamGetOrCreatePeerBidiLimit exercises the peer stream-limit
// bookkeeping alongside the send-state machine so the file covers both
// halves of Stream's public surface.
func TestStreamGetOrCreatePeerBidiLimit(t *testing.T) {
	m := newStreamMap(false, Parameters{InitialMaxStreamsBidi: 1})
	if _, err := m.getOrCreatePeer(0); err != nil {
		t.Fatalf("first peer-initiated stream: %v", err)
	}
	if _, err := m.getOrCreatePeer(4); err == nil {
		t.Fatal("expected StreamLimitError once the peer exceeds its advertised bidi limit")
	}
}
