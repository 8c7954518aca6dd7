package transport

import (
	"bytes"
	"testing"
)

func TestRecvBufferOutOfOrderReassembly(t *testing.T) {
	r := newStreamRecvBuffer(1<<20, 0)
	if err := r.write(5, []byte("world"), false); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 16)
	if n, _ := r.read(buf); n != 0 {
		t.Fatalf("expected no ready bytes before the gap is filled, got %d", n)
	}
	if err := r.write(0, []byte("hello"), false); err != nil {
		t.Fatalf("write: %v", err)
	}
	n, err := r.read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(buf[:n], []byte("helloworld")) {
		t.Fatalf("reassembled %q, want %q", buf[:n], "helloworld")
	}
}

func TestRecvBufferOverlappingChunksMerge(t *testing.T) {
	r := newStreamRecvBuffer(1<<20, 0)
	r.write(0, []byte("abcdef"), false)
	r.write(3, []byte("def"), false) // fully overlapping retransmission
	buf := make([]byte, 16)
	n, _ := r.read(buf)
	if !bytes.Equal(buf[:n], []byte("abcdef")) {
		t.Fatalf("got %q, want abcdef", buf[:n])
	}
}

func TestRecvBufferFlowControlViolation(t *testing.T) {
	r := newStreamRecvBuffer(10, 0)
	if err := r.write(8, make([]byte, 5), false); err == nil {
		t.Fatal("expected flow control error for offset exceeding window")
	}
}

func TestRecvBufferFinalSizeConflict(t *testing.T) {
	r := newStreamRecvBuffer(1<<20, 0)
	r.write(0, []byte("abc"), true) // final size 3
	if err := r.write(3, []byte("more"), false); err == nil {
		t.Fatal("expected final size conflict when data extends past a FIN-declared final size")
	}
}

func TestRecvBufferEOFAfterFinAndDrain(t *testing.T) {
	r := newStreamRecvBuffer(1<<20, 0)
	r.write(0, []byte("abc"), true)
	buf := make([]byte, 16)
	r.read(buf)
	if _, err := r.read(buf); err != errStreamEOF {
		t.Fatalf("expected EOF after draining all bytes past final size, got %v", err)
	}
}

func TestRecvBufferAutoTuneGrowsWindow(t *testing.T) {
	r := newStreamRecvBuffer(100, 1000)
	start := r.window
	r.write(0, make([]byte, 60), false)
	buf := make([]byte, 100)
	r.read(buf)
	if r.window <= start {
		t.Fatalf("expected auto-tune to grow the window after draining over half of it: start=%d now=%d", start, r.window)
	}
}
