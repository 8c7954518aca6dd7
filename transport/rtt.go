package transport

// Default initial RTT used before any sample is available (RFC 9002
// Section 6.2.2), expressed in the same tick unit as sentTime/recvTime
// throughout this package (milliseconds).
const defaultInitialRTT = 333

// rttEstimator implements the smoothed-RTT / RTT-variance estimator of
// RFC 9002 Section 5, fed one latest-RTT sample at a time.
type rttEstimator struct {
	firstSampleTaken bool

	latestRTT   int64
	minRTT      int64
	smoothedRTT int64
	rttVar      int64

	maxAckDelay int64 // peer's advertised max_ack_delay transport parameter, ticks
}

func newRTTEstimator(maxAckDelay int64) *rttEstimator {
	return &rttEstimator{
		smoothedRTT: defaultInitialRTT,
		rttVar:      defaultInitialRTT / 2,
		maxAckDelay: maxAckDelay,
	}
}

// sample updates the estimator with a new RTT measurement computed
// from one ACKed packet: sentTime/ackTime are in ticks, ackDelay is the
// peer-reported delay (already decoded from the ACK frame's VarInt
// microsecond field, converted to ticks) between receipt and sending
// the ACK, and isHandshakeConfirmed gates whether ackDelay may be
// clamped to maxAckDelay (RFC 9002 Section 5.3).
func (r *rttEstimator) sample(sentTime, ackTime, ackDelay int64, isHandshakeConfirmed bool) {
	latest := ackTime - sentTime
	if latest < 0 {
		latest = 0
	}
	r.latestRTT = latest

	if !r.firstSampleTaken {
		r.minRTT = latest
		r.smoothedRTT = latest
		r.rttVar = latest / 2
		r.firstSampleTaken = true
		return
	}

	if latest < r.minRTT {
		r.minRTT = latest
	}

	adjusted := latest
	if isHandshakeConfirmed && ackDelay > r.maxAckDelay {
		ackDelay = r.maxAckDelay
	}
	if adjusted-r.minRTT >= ackDelay {
		adjusted -= ackDelay
	}

	rttVarSample := abs64(r.smoothedRTT - adjusted)
	r.rttVar = (3*r.rttVar + rttVarSample) / 4
	r.smoothedRTT = (7*r.smoothedRTT + adjusted) / 8
}

// pto returns the current probe-timeout duration (RFC 9002 Section
// 6.2.1), before adding any peer max_ack_delay (the caller adds that
// only for the Application packet-number space per the RFC).
func (r *rttEstimator) pto() int64 {
	v := 4 * r.rttVar
	if v < 1 {
		v = 1
	}
	return r.smoothedRTT + v
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
