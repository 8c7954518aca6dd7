package transport

// applyHeaderProtection XORs the header-protection mask over the
// first-byte protected bits and the packet-number bytes, in place
// (RFC 9001 Section 5.4.1). sampleOffset is the offset of the 16-byte
// sample (always pnOffset+4, as if the packet number were 4 bytes long,
// per RFC 9001 Section 5.4.2; buildPacket pads short payloads so the
// sample fits). longHeader selects which bits of the
// first byte are protected (the low 4 bits for long headers, low 5
// for short).
func applyHeaderProtection(b []byte, pnOffset, pnLen int, keys *packetProtectionKeys, longHeader bool) error {
	sampleOffset := pnOffset + 4
	if sampleOffset+16 > len(b) {
		return newError(InternalError, "packet too short to sample for header protection")
	}
	mask := keys.headerProtectionMask(b[sampleOffset : sampleOffset+16])
	if longHeader {
		b[0] ^= mask[0] & 0x0f
	} else {
		b[0] ^= mask[0] & 0x1f
	}
	for i := 0; i < pnLen; i++ {
		b[pnOffset+i] ^= mask[1+i]
	}
	return nil
}

// removeHeaderProtection reverses applyHeaderProtection. The caller
// does not know pnLen until after unmasking the first byte, so this
// returns it.
func removeHeaderProtection(b []byte, pnOffset int, keys *packetProtectionKeys, longHeader bool) (pnLen int, err error) {
	sampleOffset := pnOffset + 4
	if sampleOffset+16 > len(b) {
		return 0, newError(InternalError, "packet too short to sample for header protection")
	}
	mask := keys.headerProtectionMask(b[sampleOffset : sampleOffset+16])
	if longHeader {
		b[0] ^= mask[0] & 0x0f
		pnLen = int(b[0]&0x03) + 1
	} else {
		b[0] ^= mask[0] & 0x1f
		pnLen = int(b[0]&0x03) + 1
	}
	if pnOffset+pnLen > len(b) {
		return 0, incompletef("packet number")
	}
	for i := 0; i < pnLen; i++ {
		b[pnOffset+i] ^= mask[1+i]
	}
	return pnLen, nil
}
