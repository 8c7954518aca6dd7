package transport

import "testing"

func TestVarIntRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 37, 63,
		64, 100, 16383,
		16384, 1000000, 1073741823,
		1073741824, 1 << 40, maxVarInt,
	}
	for _, v := range values {
		buf := make([]byte, 8)
		n := putVarint(buf, v)
		if n == 0 {
			t.Fatalf("putVarint(%d) failed", v)
		}
		wantLen := varIntLen(v)
		if n != wantLen {
			t.Fatalf("putVarint(%d) wrote %d bytes, want %d", v, n, wantLen)
		}
		switch {
		case v <= 63 && n != 1:
			t.Fatalf("value %d not minimally encoded: got %d bytes", v, n)
		case v > 63 && v <= 16383 && n != 2:
			t.Fatalf("value %d not minimally encoded: got %d bytes", v, n)
		case v > 16383 && v <= 1073741823 && n != 4:
			t.Fatalf("value %d not minimally encoded: got %d bytes", v, n)
		case v > 1073741823 && n != 8:
			t.Fatalf("value %d not minimally encoded: got %d bytes", v, n)
		}
		var got uint64
		m := getVarint(buf[:n], &got)
		if m != n {
			t.Fatalf("getVarint consumed %d bytes, want %d", m, n)
		}
		if got != v {
			t.Fatalf("round trip %d -> %d", v, got)
		}
	}
}

func TestVarIntTooLarge(t *testing.T) {
	if varIntLen(maxVarInt+1) != 0 {
		t.Fatal("expected 0 for out-of-range value")
	}
	buf := make([]byte, 8)
	if putVarint(buf, maxVarInt+1) != 0 {
		t.Fatal("expected putVarint to refuse out-of-range value")
	}
}

func TestVarIntIncomplete(t *testing.T) {
	// A 2-byte-class tag with only 1 byte available must report Incomplete.
	buf := []byte{0x7f}
	var v uint64
	if n := getVarint(buf, &v); n != 0 {
		t.Fatalf("expected incomplete decode, got n=%d", n)
	}
}

func TestVarIntEmptyBuffer(t *testing.T) {
	var v uint64
	if n := getVarint(nil, &v); n != 0 {
		t.Fatalf("expected 0 for empty input, got %d", n)
	}
}
