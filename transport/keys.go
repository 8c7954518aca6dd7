package transport

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/tls"
	"encoding/binary"

	"golang.org/x/crypto/hkdf"
)

// quicV1InitialSalt is the version 1 Initial secret salt (RFC 9001
// Section 5.2).
var quicV1InitialSalt = []byte{
	0x38, 0x76, 0x2c, 0xf7, 0xf5, 0x59, 0x34, 0xb3,
	0x4d, 0x17, 0x9a, 0xe6, 0xa4, 0xc8, 0x0c, 0xad,
	0xcc, 0xbb, 0x7f, 0x0a,
}

// hkdfExpandLabel implements TLS 1.3's HKDF-Expand-Label (RFC 8446
// Section 7.1), used throughout RFC 9001 key derivation with the
// "tls13 " label prefix.
func hkdfExpandLabel(secret []byte, label string, context []byte, length int) []byte {
	fullLabel := "tls13 " + label
	hkdfLabel := make([]byte, 0, 2+1+len(fullLabel)+1+len(context))
	hkdfLabel = append(hkdfLabel, byte(length>>8), byte(length))
	hkdfLabel = append(hkdfLabel, byte(len(fullLabel)))
	hkdfLabel = append(hkdfLabel, fullLabel...)
	hkdfLabel = append(hkdfLabel, byte(len(context)))
	hkdfLabel = append(hkdfLabel, context...)

	out := make([]byte, length)
	r := hkdf.Expand(sha256.New, secret, hkdfLabel)
	if _, err := r.Read(out); err != nil {
		panic("transport: hkdf expand: " + err.Error())
	}
	return out
}

// deriveInitialSecrets derives the client and server Initial secrets
// from the connection ID chosen for the Initial packet (RFC 9001
// Section 5.2): HKDF-Extract using quicV1InitialSalt, then two
// HKDF-Expand-Label calls labeled "client in"/"server in".
func deriveInitialSecrets(dcid []byte) (clientSecret, serverSecret []byte) {
	initialSecret := hkdf.Extract(sha256.New, dcid, quicV1InitialSalt)
	clientSecret = hkdfExpandLabel(initialSecret, "client in", nil, sha256.Size)
	serverSecret = hkdfExpandLabel(initialSecret, "server in", nil, sha256.Size)
	return clientSecret, serverSecret
}

// packetProtectionKeys holds one direction's AEAD packet-protection
// key/IV and header-protection key, derived from a secret via RFC 9001
// Section 5.1. This implementation only supports TLS_AES_128_GCM_SHA256
// (the mandatory-to-implement QUIC v1 cipher suite), matching the
// suite crypto/tls.QUICConn negotiates by default when no other suite
// is configured.
type packetProtectionKeys struct {
	aead   cipher.AEAD
	iv     []byte
	hpKey  []byte
	hpAEAD cipher.Block
}

const (
	aes128KeyLen = 16
	aeadIVLen    = 12
)

func derivePacketProtectionKeys(secret []byte) (*packetProtectionKeys, error) {
	key := hkdfExpandLabel(secret, "quic key", nil, aes128KeyLen)
	iv := hkdfExpandLabel(secret, "quic iv", nil, aeadIVLen)
	hp := hkdfExpandLabel(secret, "quic hp", nil, aes128KeyLen)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	hpBlock, err := aes.NewCipher(hp)
	if err != nil {
		return nil, err
	}
	return &packetProtectionKeys{aead: aead, iv: iv, hpKey: hp, hpAEAD: hpBlock}, nil
}

// nonce computes the per-packet AEAD nonce: the IV XORed with the
// packet number in the low-order bytes (RFC 9001 Section 5.3).
func (k *packetProtectionKeys) nonce(pn packetNumber) []byte {
	n := make([]byte, len(k.iv))
	copy(n, k.iv)
	var pnBytes [8]byte
	binary.BigEndian.PutUint64(pnBytes[:], uint64(pn))
	for i := 0; i < 8; i++ {
		n[len(n)-8+i] ^= pnBytes[i]
	}
	return n
}

func (k *packetProtectionKeys) seal(dst, plaintext, aad []byte, pn packetNumber) []byte {
	return k.aead.Seal(dst, k.nonce(pn), plaintext, aad)
}

func (k *packetProtectionKeys) open(dst, ciphertext, aad []byte, pn packetNumber) ([]byte, error) {
	return k.aead.Open(dst, k.nonce(pn), ciphertext, aad)
}

// headerProtectionMask computes the 5-byte header protection mask from
// a 16-byte ciphertext sample (RFC 9001 Section 5.4.3, AES-ECB-based
// construction for AEAD_AES_128_GCM).
func (k *packetProtectionKeys) headerProtectionMask(sample []byte) []byte {
	mask := make([]byte, aes.BlockSize)
	k.hpAEAD.Encrypt(mask, sample)
	return mask[:5]
}

// epochKeys holds both directions' packet protection keys for one
// encryption level (Initial, 0-RTT, Handshake, 1-RTT).
type epochKeys struct {
	read  *packetProtectionKeys
	write *packetProtectionKeys
}

// deriveInitialEpochKeys derives both directions' Initial keys given
// the connection ID used on the first Initial packet of the
// connection (the original DCID chosen by the client).
func deriveInitialEpochKeys(odcid []byte, isClient bool) (*epochKeys, error) {
	clientSecret, serverSecret := deriveInitialSecrets(odcid)
	clientKeys, err := derivePacketProtectionKeys(clientSecret)
	if err != nil {
		return nil, err
	}
	serverKeys, err := derivePacketProtectionKeys(serverSecret)
	if err != nil {
		return nil, err
	}
	if isClient {
		return &epochKeys{write: clientKeys, read: serverKeys}, nil
	}
	return &epochKeys{write: serverKeys, read: clientKeys}, nil
}

// tlsHandshake drives the TLS 1.3 handshake over QUIC using the
// standard library's crypto/tls.QUICConn (Go 1.21+), which produces
// CRYPTO-stream bytes and epoch key updates instead of a TCP byte
// stream (RFC 9001 Section 4). Conn feeds it received CRYPTO frame
// payloads via provideData and drains tls.QUICConn's event queue via
// nextEvent to learn when new keys are available and when the
// handshake completes.
type tlsHandshake struct {
	qc        *tls.QUICConn
	completed bool

	handshakeKeys epochKeys
	oneRTTKeys    epochKeys
	zeroRTTKeys   *packetProtectionKeys // write-only (client) or read-only (server), nil until available
}

func newClientTLSHandshake(conf *tls.Config, transportParams []byte) *tlsHandshake {
	qc := tls.QUICClient(&tls.QUICConfig{TLSConfig: conf})
	qc.SetTransportParameters(transportParams)
	return &tlsHandshake{qc: qc}
}

func newServerTLSHandshake(conf *tls.Config, transportParams []byte) *tlsHandshake {
	qc := tls.QUICServer(&tls.QUICConfig{TLSConfig: conf})
	qc.SetTransportParameters(transportParams)
	return &tlsHandshake{qc: qc}
}

func (h *tlsHandshake) start() error { return h.qc.Start(context.Background()) }

// provideData feeds received CRYPTO frame bytes at the given
// encryption level into the handshake state machine.
func (h *tlsHandshake) provideData(level tls.QUICEncryptionLevel, data []byte) error {
	return h.qc.HandleData(level, data)
}

// pump drains tls.QUICConn's event queue, updating key material and
// handshake-completion status, and returns any pending outgoing CRYPTO
// data per encryption level (caller maps level -> packetSpace).
func (h *tlsHandshake) pump() (outgoing map[tls.QUICEncryptionLevel][]byte, peerParams []byte, err error) {
	outgoing = make(map[tls.QUICEncryptionLevel][]byte)
	for {
		ev := h.qc.NextEvent()
		switch ev.Kind {
		case tls.QUICNoEvent:
			return outgoing, peerParams, nil
		case tls.QUICWriteData:
			outgoing[ev.Level] = append(outgoing[ev.Level], ev.Data...)
		case tls.QUICTransportParameters:
			peerParams = ev.Data
		case tls.QUICHandshakeDone:
			h.completed = true
		case tls.QUICSetReadSecret:
			h.setSecret(ev.Level, ev.Data, false)
		case tls.QUICSetWriteSecret:
			h.setSecret(ev.Level, ev.Data, true)
		}
	}
}

func (h *tlsHandshake) setSecret(level tls.QUICEncryptionLevel, secret []byte, write bool) {
	keys, err := derivePacketProtectionKeys(secret)
	if err != nil {
		return
	}
	switch level {
	case tls.QUICEncryptionLevelHandshake:
		if write {
			h.handshakeKeys.write = keys
		} else {
			h.handshakeKeys.read = keys
		}
	case tls.QUICEncryptionLevelApplication:
		if write {
			h.oneRTTKeys.write = keys
		} else {
			h.oneRTTKeys.read = keys
		}
	case tls.QUICEncryptionLevelEarly:
		h.zeroRTTKeys = keys
	}
}
