package transport

// Transport parameter identifiers (RFC 9000 Section 18.2). Only the
// subset this core negotiates and enforces is implemented; unknown
// parameters are skipped rather than rejected, per the RFC's
// extensibility rule.
const (
	tpOriginalDestinationConnectionID uint64 = 0x00
	tpMaxIdleTimeout                  uint64 = 0x01
	tpMaxUDPPayloadSize               uint64 = 0x03
	tpInitialMaxData                  uint64 = 0x04
	tpInitialMaxStreamDataBidiLocal   uint64 = 0x05
	tpInitialMaxStreamDataBidiRemote  uint64 = 0x06
	tpInitialMaxStreamDataUni         uint64 = 0x07
	tpInitialMaxStreamsBidi           uint64 = 0x08
	tpInitialMaxStreamsUni            uint64 = 0x09
	tpAckDelayExponent                uint64 = 0x0a
	tpMaxAckDelay                     uint64 = 0x0b
	tpDisableActiveMigration          uint64 = 0x0c
	tpActiveConnectionIDLimit         uint64 = 0x0e
	tpInitialSourceConnectionID       uint64 = 0x0f
)

func appendTPVarint(b []byte, id, v uint64) []byte {
	var tmp [8]byte
	val := appendVarint(tmp[:0], v)
	b = appendVarint(b, id)
	b = appendVarint(b, uint64(len(val)))
	return append(b, val...)
}

func appendTPBytes(b []byte, id uint64, v []byte) []byte {
	b = appendVarint(b, id)
	b = appendVarint(b, uint64(len(v)))
	return append(b, v...)
}

// encodeTransportParameters serializes p plus the two connection-ID
// parameters every endpoint sends (initial_source_connection_id always;
// original_destination_connection_id only from the server) into the
// TLS quic_transport_parameters extension body (RFC 9000 Section 18).
func encodeTransportParameters(p Parameters, initialSourceCID, originalDestCID []byte) []byte {
	var b []byte
	if originalDestCID != nil {
		b = appendTPBytes(b, tpOriginalDestinationConnectionID, originalDestCID)
	}
	b = appendTPBytes(b, tpInitialSourceConnectionID, initialSourceCID)
	if p.MaxIdleTimeout != 0 {
		b = appendTPVarint(b, tpMaxIdleTimeout, p.MaxIdleTimeout)
	}
	b = appendTPVarint(b, tpMaxUDPPayloadSize, p.MaxUDPPayloadSize)
	b = appendTPVarint(b, tpInitialMaxData, p.InitialMaxData)
	b = appendTPVarint(b, tpInitialMaxStreamDataBidiLocal, p.InitialMaxStreamDataBidiLocal)
	b = appendTPVarint(b, tpInitialMaxStreamDataBidiRemote, p.InitialMaxStreamDataBidiRemote)
	b = appendTPVarint(b, tpInitialMaxStreamDataUni, p.InitialMaxStreamDataUni)
	b = appendTPVarint(b, tpInitialMaxStreamsBidi, p.InitialMaxStreamsBidi)
	b = appendTPVarint(b, tpInitialMaxStreamsUni, p.InitialMaxStreamsUni)
	b = appendTPVarint(b, tpAckDelayExponent, p.AckDelayExponent)
	b = appendTPVarint(b, tpMaxAckDelay, p.MaxAckDelay)
	if p.DisableActiveMigration {
		b = appendTPBytes(b, tpDisableActiveMigration, nil)
	}
	b = appendTPVarint(b, tpActiveConnectionIDLimit, p.ActiveConnectionIDLimit)
	return b
}

// decodedTransportParameters is what the peer told us about itself:
// its advertised limits plus the two CIDs it chose.
type decodedTransportParameters struct {
	params                      Parameters
	initialSourceCID            []byte
	originalDestinationCID      []byte
	hasOriginalDestinationCID   bool
}

// decodeTransportParameters parses a peer's quic_transport_parameters
// extension body. Parameters this core does not recognize are skipped,
// not rejected (RFC 9000 Section 18.1).
func decodeTransportParameters(b []byte) (*decodedTransportParameters, error) {
	out := &decodedTransportParameters{params: DefaultParameters()}
	for len(b) > 0 {
		var id, length uint64
		n := getVarint(b, &id)
		if n == 0 {
			return nil, newError(TransportParameterError, "truncated parameter id")
		}
		b = b[n:]
		n = getVarint(b, &length)
		if n == 0 {
			return nil, newError(TransportParameterError, "truncated parameter length")
		}
		b = b[n:]
		if uint64(len(b)) < length {
			return nil, newError(TransportParameterError, "truncated parameter value")
		}
		val := b[:length]
		b = b[length:]

		var v uint64
		if id != tpOriginalDestinationConnectionID && id != tpInitialSourceConnectionID && id != tpDisableActiveMigration {
			if getVarint(val, &v) == 0 && length > 0 {
				return nil, newError(TransportParameterError, "malformed integer parameter")
			}
		}

		switch id {
		case tpOriginalDestinationConnectionID:
			out.originalDestinationCID = append([]byte(nil), val...)
			out.hasOriginalDestinationCID = true
		case tpInitialSourceConnectionID:
			out.initialSourceCID = append([]byte(nil), val...)
		case tpMaxIdleTimeout:
			out.params.MaxIdleTimeout = v
		case tpMaxUDPPayloadSize:
			out.params.MaxUDPPayloadSize = v
		case tpInitialMaxData:
			out.params.InitialMaxData = v
		case tpInitialMaxStreamDataBidiLocal:
			out.params.InitialMaxStreamDataBidiLocal = v
		case tpInitialMaxStreamDataBidiRemote:
			out.params.InitialMaxStreamDataBidiRemote = v
		case tpInitialMaxStreamDataUni:
			out.params.InitialMaxStreamDataUni = v
		case tpInitialMaxStreamsBidi:
			out.params.InitialMaxStreamsBidi = v
		case tpInitialMaxStreamsUni:
			out.params.InitialMaxStreamsUni = v
		case tpAckDelayExponent:
			out.params.AckDelayExponent = v
		case tpMaxAckDelay:
			out.params.MaxAckDelay = v
		case tpDisableActiveMigration:
			out.params.DisableActiveMigration = true
		case tpActiveConnectionIDLimit:
			out.params.ActiveConnectionIDLimit = v
		}
		// Unrecognized ids fall through silently.
	}
	return out, nil
}
