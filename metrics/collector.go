// Package metrics exports Prometheus gauges and counters for a running
// quic.Client or quic.Server: connection lifecycle counters on the
// "quix_transport" namespace, plus a per-connection collector reading
// live congestion/RTT state through quic.Conn.Stats.
package metrics

import (
	"sync"

	gometrics "github.com/docker/go-metrics"
	"github.com/prometheus/client_golang/prometheus"

	quic "github.com/metaech/quix"
)

// Namespace is the shared docker/go-metrics namespace every quix gauge
// and counter in this package is registered under.
var Namespace = gometrics.NewNamespace("quix", "transport", nil)

var (
	connectionsAccepted = Namespace.NewCounter("connections_accepted_total", "server connections accepted")
	connectionsDialed   = Namespace.NewCounter("connections_dialed_total", "client connections dialed")
	connectionsClosed   = Namespace.NewCounter("connections_closed_total", "connections that reached a closed state")
	handshakeFailures   = Namespace.NewCounter("handshake_failures_total", "connections that closed before completing their handshake")
)

func init() {
	gometrics.Register(Namespace)
}

// ConnAccepted increments the server-side accept counter. Call it from
// a Handler when it observes a connection accepted for the first time.
func ConnAccepted() { connectionsAccepted.Inc(1) }

// ConnDialed increments the client-side dial counter.
func ConnDialed() { connectionsDialed.Inc(1) }

// ConnClosed increments the close counter, and the handshake-failure
// counter too when the connection never finished its handshake.
func ConnClosed(establishedBeforeClose bool) {
	connectionsClosed.Inc(1)
	if !establishedBeforeClose {
		handshakeFailures.Inc(1)
	}
}

// descriptor pairs a metric description with the function that reads
// the corresponding value off a live quic.Conn's stats snapshot.
type descriptor struct {
	desc    *prometheus.Desc
	valueOf func(stats connStats) float64
	kind    prometheus.ValueType
}

// connStats is the subset of transport.ConnStats (plus stream count)
// a descriptor can read; kept as a small local struct so descriptor
// funcs don't need to import transport directly.
type connStats struct {
	cwnd              uint64
	bytesInFlight     uint64
	smoothedRTTMillis int64
	ptoCount          int
	handshakeDone     bool
	streamCount       int
}

var descriptors = []descriptor{
	{
		desc:    prometheus.NewDesc("quix_conn_cwnd_bytes", "congestion window", []string{"trace"}, nil),
		kind:    prometheus.GaugeValue,
		valueOf: func(s connStats) float64 { return float64(s.cwnd) },
	},
	{
		desc:    prometheus.NewDesc("quix_conn_bytes_in_flight", "bytes currently unacknowledged and in flight", []string{"trace"}, nil),
		kind:    prometheus.GaugeValue,
		valueOf: func(s connStats) float64 { return float64(s.bytesInFlight) },
	},
	{
		desc:    prometheus.NewDesc("quix_conn_smoothed_rtt_ms", "smoothed round-trip time in milliseconds", []string{"trace"}, nil),
		kind:    prometheus.GaugeValue,
		valueOf: func(s connStats) float64 { return float64(s.smoothedRTTMillis) },
	},
	{
		desc:    prometheus.NewDesc("quix_conn_pto_count", "consecutive probe timeouts since the last packet was acknowledged", []string{"trace"}, nil),
		kind:    prometheus.GaugeValue,
		valueOf: func(s connStats) float64 { return float64(s.ptoCount) },
	},
	{
		desc:    prometheus.NewDesc("quix_conn_streams", "streams currently tracked in the application packet-number space", []string{"trace"}, nil),
		kind:    prometheus.GaugeValue,
		valueOf: func(s connStats) float64 { return float64(s.streamCount) },
	},
	{
		desc:    prometheus.NewDesc("quix_conn_handshake_done", "1 once the handshake has been confirmed", []string{"trace"}, nil),
		kind:    prometheus.GaugeValue,
		valueOf: func(s connStats) float64 {
			if s.handshakeDone {
				return 1
			}
			return 0
		},
	},
}

// ConnCollector is a prometheus.Collector iterating every live
// connection registered with it and emitting one gauge sample per
// descriptor, labeled by the connection's trace ID.
type ConnCollector struct {
	mu    sync.Mutex
	conns map[string]*quic.Conn
}

// NewConnCollector builds an empty collector; register it with a
// prometheus.Registerer before serving /metrics.
func NewConnCollector() *ConnCollector {
	return &ConnCollector{conns: make(map[string]*quic.Conn)}
}

// Add registers c so it is sampled on every Collect call. Safe to call
// from a Handler.Serve callback.
func (cc *ConnCollector) Add(c *quic.Conn) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.conns[c.TraceID()] = c
}

// Remove stops sampling c. Call it once a Handler observes the
// connection has closed.
func (cc *ConnCollector) Remove(c *quic.Conn) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	delete(cc.conns, c.TraceID())
}

// Describe implements prometheus.Collector.
func (cc *ConnCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range descriptors {
		ch <- d.desc
	}
}

// Collect implements prometheus.Collector, sampling every registered
// connection's current stats.
func (cc *ConnCollector) Collect(ch chan<- prometheus.Metric) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	for trace, c := range cc.conns {
		st := c.Stats()
		snap := connStats{
			cwnd:              st.Cwnd,
			bytesInFlight:     st.BytesInFlight,
			smoothedRTTMillis: st.SmoothedRTTMillis,
			ptoCount:          st.PTOCount,
			handshakeDone:     st.HandshakeDone,
			streamCount:       c.StreamCount(),
		}
		for _, d := range descriptors {
			ch <- prometheus.MustNewConstMetric(d.desc, d.kind, d.valueOf(snap), trace)
		}
	}
}
