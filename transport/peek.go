package transport

// PeekConnectionIDs extracts the destination and source connection IDs
// from the long header of the first packet in an incoming datagram,
// without decrypting, validating, or otherwise processing it. A host
// accepting connections uses this to decide whether a datagram belongs
// to an existing Conn (by destination CID) or starts a new one.
//
// Short-header (1-RTT) packets do not carry a self-describing
// connection-ID length on the wire (RFC 9000 Section 17.2), so callers
// must already know the length they issued and slice it themselves;
// PeekConnectionIDs only handles the long-header case.
func PeekConnectionIDs(b []byte) (dcid, scid []byte, err error) {
	if len(b) == 0 {
		return nil, nil, errShortBuffer
	}
	if b[0]&0x80 == 0 {
		return nil, nil, newError(InternalError, "not a long header packet")
	}
	p := &packet{}
	if _, err := p.decodeHeader(b); err != nil {
		return nil, nil, err
	}
	return p.header.dcid, p.header.scid, nil
}

// IsLongHeader reports whether the first packet in a datagram uses the
// long header form (RFC 9000 Section 17.2), i.e. is an Initial, 0-RTT,
// Handshake or Retry packet rather than a short-header 1-RTT packet.
func IsLongHeader(b []byte) bool {
	return len(b) > 0 && b[0]&0x80 != 0
}
