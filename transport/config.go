package transport

import "crypto/tls"

// defaultAckDelayExponent is the RFC 9000 Section 18.2 default value
// of the ack_delay_exponent transport parameter.
const defaultAckDelayExponent = 3

// defaultMaxAckDelayMillis is the RFC 9000 Section 18.2 default value
// of the max_ack_delay transport parameter, in milliseconds.
const defaultMaxAckDelayMillis = 25

// CongestionControlAlgorithm selects the congestionController
// implementation a Conn uses (spec.md Section 4.7).
type CongestionControlAlgorithm string

const (
	CongestionControlBBR    CongestionControlAlgorithm = "bbr"
	CongestionControlReno   CongestionControlAlgorithm = "reno"
)

func newCongestionController(algo CongestionControlAlgorithm) congestionController {
	switch algo {
	case CongestionControlReno:
		return newNewRenoController()
	default:
		return newBBRController()
	}
}

// Parameters mirrors the subset of QUIC transport parameters
// (RFC 9000 Section 18.2) this core negotiates and enforces.
type Parameters struct {
	MaxIdleTimeout                 uint64 // milliseconds, 0 = disabled
	MaxUDPPayloadSize              uint64
	InitialMaxData                 uint64
	InitialMaxStreamDataBidiLocal  uint64
	InitialMaxStreamDataBidiRemote uint64
	InitialMaxStreamDataUni        uint64
	InitialMaxStreamsBidi          uint64
	InitialMaxStreamsUni           uint64
	AckDelayExponent               uint64
	MaxAckDelay                    uint64 // milliseconds
	DisableActiveMigration         bool
	ActiveConnectionIDLimit        uint64
}

// DefaultParameters returns the RFC 9000 Section 18.2 defaults, scaled
// up where a production core benefits from a larger initial window
// than the bare protocol minimum (the stream/connection flow-control
// defaults below match common QUIC stack defaults, not the RFC floor).
func DefaultParameters() Parameters {
	return Parameters{
		MaxIdleTimeout:                 30000,
		MaxUDPPayloadSize:              MaxPacketSize,
		InitialMaxData:                 1 << 20,
		InitialMaxStreamDataBidiLocal:  1 << 18,
		InitialMaxStreamDataBidiRemote: 1 << 18,
		InitialMaxStreamDataUni:        1 << 18,
		InitialMaxStreamsBidi:          100,
		InitialMaxStreamsUni:           100,
		AckDelayExponent:               defaultAckDelayExponent,
		MaxAckDelay:                    defaultMaxAckDelayMillis,
		DisableActiveMigration:         false,
		ActiveConnectionIDLimit:        2,
	}
}

// Config holds the knobs a Conn is constructed with: transport
// parameters to advertise plus implementation-local policy that has no
// wire representation (congestion control choice, logging).
type Config struct {
	Params             Parameters
	CongestionControl  CongestionControlAlgorithm
	IsClient           bool
	ServerName         string
	MaxIncomingStreams uint64

	// Version is the QUIC version to negotiate; 0 selects quicVersion1.
	Version uint32

	// TLS carries the certificate chain (server) or root trust store and
	// ServerName (client) that drives the handshake underneath
	// crypto/tls.QUICConn. Key exchange, certificate validation and
	// 0-RTT resumption policy all live here, not in this package.
	TLS *tls.Config
}

// DefaultConfig returns a Config with RFC-default transport parameters
// and BBR congestion control (spec.md Section 4.7's stated default).
func DefaultConfig() *Config {
	return &Config{
		Params:            DefaultParameters(),
		CongestionControl: CongestionControlBBR,
		TLS:               &tls.Config{},
	}
}
