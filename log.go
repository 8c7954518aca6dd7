package quic

import (
	"github.com/sirupsen/logrus"

	"github.com/metaech/quix/transport"
)

// newLogger builds the operational logrus logger SPEC_FULL section 4.B
// describes: connection accept/close, handshake failures and
// congestion-state transitions at the configured level, with qlog
// wire-level events bridged in as a single "qlog" field rather than
// duplicating their detail as separate logrus fields.
func newLogger(cfg LogConfig) *logrus.Logger {
	log := logrus.New()
	log.ReportCaller = cfg.ReportCaller
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// attachLogger wires c's transport.LogEvent stream into the engine's
// logrus logger at debug level, tagged with the connection's trace ID
// so lines from concurrent connections can be told apart.
func (e *engine) attachLogger(c *Conn) {
	if e.logger == nil || !e.logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	entry := e.logger.WithFields(logrus.Fields{
		"trace": c.traceID,
		"addr":  c.addr.String(),
	})
	c.conn.OnLogEvent(func(ev transport.LogEvent) {
		entry.WithField("qlog", ev.String()).Debug(ev.Type)
	})
}
