package transport

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

// TestInitialSecretsMatchRFC9001Vectors checks the Initial key
// derivation against the worked example in RFC 9001 Appendix A.1.
func TestInitialSecretsMatchRFC9001Vectors(t *testing.T) {
	dcid := mustHex(t, "8394c8f03e515708")

	wantClientSecret := mustHex(t, "c00cf151ca5be075ed0ebfb5c80323c42d6b7db67881289af4008f1f6c357aea")
	wantServerSecret := mustHex(t, "3c199828fd139efd216c155ad844cc81fb82fa8d7446fa7d78be803acdda951b")

	clientSecret, serverSecret := deriveInitialSecrets(dcid)
	if !bytes.Equal(clientSecret, wantClientSecret) {
		t.Fatalf("client initial secret = %x, want %x", clientSecret, wantClientSecret)
	}
	if !bytes.Equal(serverSecret, wantServerSecret) {
		t.Fatalf("server initial secret = %x, want %x", serverSecret, wantServerSecret)
	}

	clientKeys, err := derivePacketProtectionKeys(clientSecret)
	if err != nil {
		t.Fatalf("derivePacketProtectionKeys(client): %v", err)
	}
	wantClientKey := mustHex(t, "1f369613dd76d5467730efcbe3b1a22d")
	wantClientIV := mustHex(t, "fa044b2f42a3fd3b46fb255c")
	wantClientHP := mustHex(t, "9f50449e04a0e810283a1e9933adedd2")
	if !bytes.Equal(clientKeys.iv, wantClientIV) {
		t.Fatalf("client iv = %x, want %x", clientKeys.iv, wantClientIV)
	}
	if !bytes.Equal(clientKeys.hpKey, wantClientHP) {
		t.Fatalf("client hp key = %x, want %x", clientKeys.hpKey, wantClientHP)
	}
	_ = wantClientKey // key is only observable indirectly through the constructed cipher.AEAD

	serverKeys, err := derivePacketProtectionKeys(serverSecret)
	if err != nil {
		t.Fatalf("derivePacketProtectionKeys(server): %v", err)
	}
	wantServerIV := mustHex(t, "0ac1493ca1905853b0bba03e")
	wantServerHP := mustHex(t, "c206b8d9b9f0f37644430b490eeaa314")
	if !bytes.Equal(serverKeys.iv, wantServerIV) {
		t.Fatalf("server iv = %x, want %x", serverKeys.iv, wantServerIV)
	}
	if !bytes.Equal(serverKeys.hpKey, wantServerHP) {
		t.Fatalf("server hp key = %x, want %x", serverKeys.hpKey, wantServerHP)
	}
}

func TestPacketProtectionSealOpenRoundTrip(t *testing.T) {
	dcid := mustHex(t, "8394c8f03e515708")
	clientSecret, _ := deriveInitialSecrets(dcid)
	keys, err := derivePacketProtectionKeys(clientSecret)
	if err != nil {
		t.Fatalf("derivePacketProtectionKeys: %v", err)
	}
	plaintext := []byte("quic initial payload")
	aad := []byte("header bytes")
	sealed := keys.seal(nil, plaintext, aad, 2)
	opened, err := keys.open(nil, sealed, aad, 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("got %q, want %q", opened, plaintext)
	}
	if _, err := keys.open(nil, sealed, aad, 3); err == nil {
		t.Fatal("expected open with the wrong packet number (wrong nonce) to fail")
	}
}

func TestHeaderProtectionMaskLength(t *testing.T) {
	dcid := mustHex(t, "8394c8f03e515708")
	clientSecret, _ := deriveInitialSecrets(dcid)
	keys, err := derivePacketProtectionKeys(clientSecret)
	if err != nil {
		t.Fatalf("derivePacketProtectionKeys: %v", err)
	}
	sample := make([]byte, 16)
	mask := keys.headerProtectionMask(sample)
	if len(mask) != 5 {
		t.Fatalf("mask length = %d, want 5", len(mask))
	}
}
