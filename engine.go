package quic

import (
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/metaech/quix/transport"
)

// connEntry bundles a managed Conn with the timer driving its loss
// recovery and idle-timeout deadlines.
type connEntry struct {
	c     *Conn
	timer *time.Timer
}

// engine runs the shared UDP read loop, connection table and timer
// bookkeeping behind both Client and Server: dialing and accepting only
// differ in how the first Conn for a given remote address is created.
type engine struct {
	pc       net.PacketConn
	config   *transport.Config
	handler  Handler
	logger   *logrus.Logger
	isServer bool

	mu      sync.Mutex
	conns   map[string]*connEntry
	closed  bool
}

func newEngine(pc net.PacketConn, config *transport.Config, isServer bool, logCfg LogConfig) *engine {
	return &engine{
		pc:       pc,
		config:   config,
		isServer: isServer,
		logger:   newLogger(logCfg),
		conns:    make(map[string]*connEntry),
	}
}

func (e *engine) setHandler(h Handler) { e.handler = h }

// run is cmd/quince's top-level goroutine boundary for this engine: an
// internal assertion panic (e.g. sentPacketList.push's monotonicity
// check) anywhere in the datagram-processing path below is recovered
// here and turned into a logrus.Fatal rather than crashing the process
// through an unrecovered goroutine.
func (e *engine) run() {
	defer e.recoverFatal()
	buf := make([]byte, transport.MaxPacketSize)
	for {
		n, addr, err := e.pc.ReadFrom(buf)
		if err != nil {
			e.mu.Lock()
			closed := e.closed
			e.mu.Unlock()
			if closed {
				return
			}
			e.logger.WithError(err).Error("quic: read error")
			continue
		}
		e.handleDatagram(append([]byte(nil), buf[:n]...), addr)
	}
}

// recoverFatal converts a panic into a logrus.Fatal, which logs and
// then calls os.Exit(1). Left uninstalled, a panic here would take
// down the process anyway, but silently and without this engine's
// trace context attached.
func (e *engine) recoverFatal() {
	if r := recover(); r != nil {
		e.logger.WithField("panic", r).Fatal("quic: internal assertion failed, aborting")
	}
}

func (e *engine) handleDatagram(b []byte, addr net.Addr) {
	var key string
	if transport.IsLongHeader(b) {
		dcid, _, err := transport.PeekConnectionIDs(b)
		if err != nil {
			e.logger.WithError(err).Debug("quic: dropping unparseable long header packet")
			return
		}
		key = string(dcid)
	} else {
		if len(b) < 1+localCIDLen {
			return
		}
		key = string(b[1 : 1+localCIDLen])
	}

	e.mu.Lock()
	entry, ok := e.conns[key]
	e.mu.Unlock()

	if !ok {
		if !e.isServer || !transport.IsLongHeader(b) {
			return
		}
		var err error
		entry, err = e.accept(b, addr)
		if err != nil {
			e.logger.WithError(err).Warn("quic: accept failed")
			return
		}
	}

	entry.c.addr = addr
	if _, err := entry.c.conn.Recv(b, nowMillis()); err != nil {
		e.logger.WithField("trace", entry.c.traceID).WithError(err).Warn("quic: recv error")
	}
	e.flush(entry)
}

func (e *engine) accept(b []byte, addr net.Addr) (*connEntry, error) {
	dcid, scid, err := transport.PeekConnectionIDs(b)
	if err != nil {
		return nil, err
	}
	serverSCID, err := newRandomCID(localCIDLen)
	if err != nil {
		return nil, err
	}
	tconn, err := transport.Accept(e.config, serverSCID, scid, dcid, nowMillis())
	if err != nil {
		return nil, err
	}
	c := &Conn{conn: tconn, addr: addr, scid: serverSCID, traceID: newTraceID()}
	entry := &connEntry{c: c}
	e.mu.Lock()
	e.conns[string(serverSCID)] = entry
	e.mu.Unlock()
	e.attachLogger(c)
	e.logger.WithField("trace", c.traceID).WithField("addr", addr.String()).Info("quic: accepted connection")
	return entry, nil
}

func (e *engine) dial(addr string) (*Conn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	scid, err := newRandomCID(localCIDLen)
	if err != nil {
		return nil, err
	}
	dcid, err := newRandomCID(localCIDLen)
	if err != nil {
		return nil, err
	}
	tconn, err := transport.Connect(e.config, scid, dcid, nowMillis())
	if err != nil {
		return nil, err
	}
	c := &Conn{conn: tconn, addr: udpAddr, scid: scid, traceID: newTraceID()}
	entry := &connEntry{c: c}
	e.mu.Lock()
	e.conns[string(scid)] = entry
	e.mu.Unlock()
	e.attachLogger(c)
	e.logger.WithField("trace", c.traceID).WithField("addr", addr).Info("quic: dialing")
	e.flush(entry)
	return c, nil
}

// flush drains a Conn's outgoing datagrams, hands pending events to the
// Handler, and rearms its recovery/idle timer.
func (e *engine) flush(entry *connEntry) {
	now := nowMillis()
	out := make([]byte, transport.MaxPacketSize)
	for {
		n, err := entry.c.conn.Send(out, now)
		if err != nil {
			e.logger.WithField("trace", entry.c.traceID).WithError(err).Warn("quic: send error")
			break
		}
		if n == 0 {
			break
		}
		if _, err := e.pc.WriteTo(out[:n], entry.c.addr); err != nil {
			e.logger.WithField("trace", entry.c.traceID).WithError(err).Warn("quic: write error")
			break
		}
	}

	if events := entry.c.conn.Events(); len(events) > 0 && e.handler != nil {
		e.handler.Serve(entry.c, events)
	}

	if entry.c.conn.IsClosed() {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		e.mu.Lock()
		delete(e.conns, string(entry.c.scid))
		e.mu.Unlock()
		e.logger.WithField("trace", entry.c.traceID).Info("quic: connection closed")
		return
	}
	e.rearm(entry)
}

func (e *engine) rearm(entry *connEntry) {
	if entry.timer != nil {
		entry.timer.Stop()
	}
	deadline := entry.c.conn.NextTimeout(nowMillis())
	if deadline == 0 {
		return
	}
	d := time.Duration(deadline-nowMillis()) * time.Millisecond
	if d < 0 {
		d = 0
	}
	entry.timer = time.AfterFunc(d, func() {
		defer e.recoverFatal()
		entry.c.conn.OnTimeout(nowMillis())
		e.flush(entry)
	})
}

func (e *engine) close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for _, entry := range e.conns {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	e.conns = make(map[string]*connEntry)
	e.mu.Unlock()
	return e.pc.Close()
}
