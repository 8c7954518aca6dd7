package transport

// kPacketThreshold is RACK's packet-reordering threshold (RFC 9002
// Section 6.1.1): a packet this many or more packet numbers below
// the largest acknowledged is declared lost.
const kPacketThreshold = 3

// kTimeThresholdNum/Den is RACK's time-reordering threshold,
// 9/8 * max(smoothed_rtt, latest_rtt) (RFC 9002 Section 6.1.2).
const kTimeThresholdNum = 9
const kTimeThresholdDen = 8

// kGranularity is the system timer granularity assumed throughout loss
// recovery (RFC 9002 Section 6.1.2), in ticks (ms).
const kGranularity = 1

// maxPTOBackoff bounds the exponential backoff applied to successive
// PTO expiries (RFC 9002 Section 6.2.1 notes no fixed cap, but
// unbounded backoff is a footgun in this implementation's fixed-width
// tick arithmetic).
const maxPTOBackoff = 1 << 6

// lossRecovery implements RFC 9002's loss detection and recovery
// timer state machine for all three packet-number spaces of a
// connection (spec.md Section 4.6).
type lossRecovery struct {
	rtt rttEstimator
	cc  congestionController

	ptoCount int

	lastAckElicitingSent [packetSpaceCount]int64
	lossTime             [packetSpaceCount]int64 // 0 == "not set"

	peerMaxAckDelay int64 // ticks
	spaceDiscarded  [packetSpaceCount]bool
}

func newLossRecovery(peerMaxAckDelay int64, cc congestionController) *lossRecovery {
	return &lossRecovery{
		rtt:             *newRTTEstimator(peerMaxAckDelay),
		cc:              cc,
		peerMaxAckDelay: peerMaxAckDelay,
	}
}

// onPacketSent records bookkeeping for a just-sent packet and arms the
// ack-eliciting timestamp used by the PTO calculation.
func (lr *lossRecovery) onPacketSent(space *packetNumberSpace, p sentPacket, now int64) {
	space.onPacketSent(p)
	if p.ackEliciting {
		lr.lastAckElicitingSent[space.space] = now
	}
	if p.inFlight {
		lr.cc.onPacketSent(now, p.sentBytes)
	}
}

// ackedResult summarizes the outcome of processing one ACK frame.
type ackedResult struct {
	ackedPackets []sentPacket
	newlyAcked   bool
	lostPackets  []sentPacket
}

// onAckReceived processes an incoming ACK frame against space's sent
// list: it removes and returns newly-acknowledged packets, samples RTT
// from the largest newly-acked packet (RFC 9002 Section 5.1), detects
// and removes packets now considered lost, and drives the congestion
// controller from both outcomes.
func (lr *lossRecovery) onAckReceived(space *packetNumberSpace, ack *ackFrame, recvTime int64, isHandshakeConfirmed bool) (*ackedResult, error) {
	if ack.largestAck > ^uint64(0)>>2 {
		return nil, newError(ProtocolViolation, "largest acked out of range")
	}
	if packetNumber(ack.largestAck) > space.nextPN-1 {
		return nil, newError(ProtocolViolation, "ack for unsent packet number")
	}

	res := &ackedResult{}
	var largestNewlyAcked *sentPacket
	for _, rg := range ack.Ranges() {
		for pn := rg.lo; pn <= rg.hi; pn++ {
			idx := space.sent.find(pn)
			if idx < 0 {
				continue // already removed (previously acked or discarded)
			}
			p := space.sent.removeAt(idx)
			res.ackedPackets = append(res.ackedPackets, p)
			res.newlyAcked = true
			if largestNewlyAcked == nil || p.pn > largestNewlyAcked.pn {
				pp := p
				largestNewlyAcked = &pp
			}
		}
	}
	if !res.newlyAcked {
		return res, nil
	}

	if largestNewlyAcked != nil && packetNumber(ack.largestAck) == largestNewlyAcked.pn {
		ackDelay := decodeAckDelay(ack.ackDelay)
		lr.rtt.sample(largestNewlyAcked.sentTime, recvTime, ackDelay, isHandshakeConfirmed)
	}

	if largestNewlyAcked != nil {
		if pn := packetNumber(ack.largestAck); pn > space.largestAckedByPeer {
			space.largestAckedByPeer = pn
		}
	}

	lost := lr.detectAndRemoveLostPackets(space, recvTime)
	res.lostPackets = lost

	lr.cc.onPacketsAcked(res.ackedPackets, recvTime, &lr.rtt)
	if len(lost) > 0 {
		var lostBytes int
		newest := lost[0].sentTime
		for _, p := range lost {
			lostBytes += p.sentBytes
			if p.sentTime > newest {
				newest = p.sentTime
			}
		}
		lr.cc.onCongestionEvent(newest, lostBytes)
	}

	lr.ptoCount = 0
	return res, nil
}

// decodeAckDelay converts an ACK frame's raw ack_delay VarInt (encoded
// in units of 2^ack_delay_exponent microseconds) into ticks. The
// exponent is a transport parameter not modeled per-space here; this
// core assumes the RFC 9000 default exponent of 3 throughout, matching
// Config's default (see config.go).
func decodeAckDelay(raw uint64) int64 {
	microseconds := raw << defaultAckDelayExponent
	return int64(microseconds / 1000)
}

// detectAndRemoveLostPackets applies the packet- and time-threshold
// tests (RFC 9002 Section 6.1) to every still-outstanding packet below
// the newly updated largestAckedByPeer, removing and returning those
// declared lost, and updates space's next loss-timer deadline for any
// packet that only qualifies for the time threshold in the future.
func (lr *lossRecovery) detectAndRemoveLostPackets(space *packetNumberSpace, now int64) []sentPacket {
	lr.lossTime[space.space] = 0
	if space.largestAckedByPeer == invalidPN {
		return nil
	}

	lossDelay := lr.timeThreshold()
	lostSendTimeThreshold := now - lossDelay

	var lost []sentPacket
	var toRemove []packetNumber
	for i := range space.sent.packets {
		p := &space.sent.packets[i]
		if p.pn > space.largestAckedByPeer {
			continue
		}
		packetThresholdLost := p.pn <= space.largestAckedByPeer-kPacketThreshold
		timeThresholdLost := p.sentTime <= lostSendTimeThreshold
		switch {
		case packetThresholdLost || timeThresholdLost:
			lost = append(lost, *p)
			toRemove = append(toRemove, p.pn)
		default:
			deadline := p.sentTime + lossDelay
			if lr.lossTime[space.space] == 0 || deadline < lr.lossTime[space.space] {
				lr.lossTime[space.space] = deadline
			}
		}
	}
	for _, pn := range toRemove {
		if idx := space.sent.find(pn); idx >= 0 {
			space.sent.removeAt(idx)
		}
	}
	return lost
}

// timeThreshold returns 9/8 * max(smoothed_rtt, latest_rtt), floored
// at kGranularity (RFC 9002 Section 6.1.2).
func (lr *lossRecovery) timeThreshold() int64 {
	rtt := lr.rtt.smoothedRTT
	if lr.rtt.latestRTT > rtt {
		rtt = lr.rtt.latestRTT
	}
	d := rtt * kTimeThresholdNum / kTimeThresholdDen
	if d < kGranularity {
		d = kGranularity
	}
	return d
}

// earliestLossTime returns the soonest-armed loss-detection deadline
// across all spaces, and which space it belongs to, or
// (0, packetSpaceCount) if none is armed.
func (lr *lossRecovery) earliestLossTime() (int64, packetSpace) {
	best := int64(0)
	bestSpace := packetSpace(packetSpaceCount)
	for s := packetSpace(0); s < packetSpaceCount; s++ {
		if lr.spaceDiscarded[s] || lr.lossTime[s] == 0 {
			continue
		}
		if best == 0 || lr.lossTime[s] < best {
			best = lr.lossTime[s]
			bestSpace = s
		}
	}
	return best, bestSpace
}

// ptoDeadline computes the PTO timer's absolute deadline for space,
// given the last time an ack-eliciting packet was sent there, or 0 if
// the space has been discarded or has nothing in flight (RFC 9002
// Section 6.2.1).
func (lr *lossRecovery) ptoDeadline(space packetSpace, hasInFlight bool) int64 {
	if lr.spaceDiscarded[space] || !hasInFlight {
		return 0
	}
	backoff := int64(1) << minInt(lr.ptoCount, 6)
	timeout := lr.rtt.pto() * backoff
	if space == packetSpaceApplication {
		// RFC 9002 Section 6.2.1: the whole PTO period, including the
		// max_ack_delay term, doubles with each consecutive expiry, not
		// just the RTT-based component (spec.md Section 4.6).
		timeout += lr.peerMaxAckDelay * backoff
	}
	return lr.lastAckElicitingSent[space] + timeout
}

// onLossDetectionTimeout records an expired PTO by advancing the
// backoff counter, capped at maxPTOBackoff (spec.md Section 4.6). It
// declares no packets lost; loss-detection deadlines are handled by
// the caller.
func (lr *lossRecovery) onLossDetectionTimeout() {
	lr.ptoCount++
	if lr.ptoCount > maxPTOBackoff {
		lr.ptoCount = maxPTOBackoff
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (lr *lossRecovery) dropSpace(space packetSpace, discardedBytes int) {
	lr.spaceDiscarded[space] = true
	lr.lossTime[space] = 0
	lr.cc.onPacketDiscarded(discardedBytes)
}
