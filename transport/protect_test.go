package transport

import (
	"bytes"
	"testing"
)

func testProtectionKeys(t *testing.T) *packetProtectionKeys {
	t.Helper()
	dcid := mustHex(t, "8394c8f03e515708")
	clientSecret, _ := deriveInitialSecrets(dcid)
	keys, err := derivePacketProtectionKeys(clientSecret)
	if err != nil {
		t.Fatalf("derivePacketProtectionKeys: %v", err)
	}
	return keys
}

func TestHeaderProtectionRoundTripLongHeader(t *testing.T) {
	keys := testProtectionKeys(t)
	pnOffset := 18
	pnLen := 2
	b := make([]byte, pnOffset+pnLen+16+4)
	b[0] = 0xc1 // long header, PN-length bits encode a 2-byte packet number
	for i := range b[1:] {
		b[1+i] = byte(i)
	}
	original := append([]byte(nil), b...)

	if err := applyHeaderProtection(b, pnOffset, pnLen, keys, true); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if bytes.Equal(b, original) {
		t.Fatal("applyHeaderProtection left the buffer unchanged")
	}

	gotPnLen, err := removeHeaderProtection(b, pnOffset, keys, true)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if gotPnLen != pnLen {
		t.Fatalf("recovered pnLen = %d, want %d", gotPnLen, pnLen)
	}
	if !bytes.Equal(b, original) {
		t.Fatalf("round trip mismatch: got %x, want %x", b, original)
	}
}

func TestHeaderProtectionRoundTripShortHeader(t *testing.T) {
	keys := testProtectionKeys(t)
	pnOffset := 9
	pnLen := 4
	b := make([]byte, pnOffset+pnLen+16)
	b[0] = 0x43
	for i := range b[1:] {
		b[1+i] = byte(2*i + 1)
	}
	original := append([]byte(nil), b...)

	if err := applyHeaderProtection(b, pnOffset, pnLen, keys, false); err != nil {
		t.Fatalf("apply: %v", err)
	}
	gotPnLen, err := removeHeaderProtection(b, pnOffset, keys, false)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if gotPnLen != pnLen {
		t.Fatalf("recovered pnLen = %d, want %d", gotPnLen, pnLen)
	}
	if !bytes.Equal(b, original) {
		t.Fatalf("round trip mismatch: got %x, want %x", b, original)
	}
}

func TestHeaderProtectionShortBuffer(t *testing.T) {
	keys := testProtectionKeys(t)
	b := make([]byte, 10)
	if err := applyHeaderProtection(b, 8, 2, keys, true); err == nil {
		t.Fatal("expected error sampling past the end of a short buffer")
	}
	if _, err := removeHeaderProtection(b, 8, keys, true); err == nil {
		t.Fatal("expected error sampling past the end of a short buffer")
	}
}
