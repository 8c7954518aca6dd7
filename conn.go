package quic

import (
	"crypto/rand"
	"net"
	"time"

	"github.com/rs/xid"

	"github.com/metaech/quix/transport"
)

// localCIDLen is the length of connection IDs this package issues for
// its own endpoints. A fixed length lets the engine demux short-header
// (1-RTT) packets by slicing the first localCIDLen bytes after the
// first byte, without needing a connection-ID length registry.
const localCIDLen = 8

// Conn is the application-facing handle for one QUIC connection: the
// transport.Conn state machine plus the socket address and trace ID a
// Handler needs to act on it.
type Conn struct {
	conn    *transport.Conn
	addr    net.Addr
	scid    []byte
	traceID string
}

// RemoteAddr returns the peer's UDP address.
func (c *Conn) RemoteAddr() net.Addr { return c.addr }

// TraceID returns the short opaque correlation ID generated at
// accept/connect time (SPEC_FULL section 4.F). It is not a QUIC wire
// identifier.
func (c *Conn) TraceID() string { return c.traceID }

// IsEstablished reports whether the handshake has completed.
func (c *Conn) IsEstablished() bool { return c.conn.IsEstablished() }

// OpenStream opens a new locally-initiated stream.
func (c *Conn) OpenStream(bidi bool) (*transport.Stream, error) {
	return c.conn.OpenStream(bidi)
}

// Stream looks up an existing stream by ID.
func (c *Conn) Stream(id uint64) (*transport.Stream, bool) {
	return c.conn.Stream(id)
}

// Close begins the connection's closing handshake.
func (c *Conn) Close(errorCode uint64, reason string) {
	c.conn.Close(errorCode, true, reason, nowMillis())
}

// Stats reports a snapshot of recovery/congestion state for exporting
// as gauges; see transport.Conn.Stats.
func (c *Conn) Stats() transport.ConnStats { return c.conn.Stats() }

// StreamCount returns the number of streams currently tracked in the
// application packet-number space.
func (c *Conn) StreamCount() int { return c.conn.StreamCount() }

// nowMillis is the single clock this package feeds into every
// transport.Conn call; transport's internal "ticks" are Unix
// milliseconds (see transport.Conn.asTime).
func nowMillis() int64 { return time.Now().UnixMilli() }

func newRandomCID(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func newTraceID() string { return xid.New().String() }

// Handler reacts to events produced by connections an Engine manages.
// It is invoked from the engine's single I/O goroutine, so Serve must
// not block.
type Handler interface {
	Serve(c *Conn, events []transport.Event)
}
