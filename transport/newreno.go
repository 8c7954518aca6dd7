package transport

// newRenoController is a minimal loss-based congestion controller
// (RFC 9002 Appendix B), offered alongside BBR as the simpler of the
// two pluggable congestionController implementations (spec.md Section
// 4.7 calls out the interface as pluggable; this is the conventional
// "reference" controller most QUIC stacks ship next to their advanced
// one).
type newRenoController struct {
	cwndBytes       uint64
	ssthresh        uint64
	bytesInFlightN  uint64
	recoveryStartTS int64
}

func newNewRenoController() *newRenoController {
	return &newRenoController{
		cwndBytes: initialCongestionWindow,
		ssthresh:  ^uint64(0),
	}
}

func (c *newRenoController) onPacketSent(sentTime int64, bytes int) {
	c.bytesInFlightN += uint64(bytes)
}

func (c *newRenoController) onPacketDiscarded(bytes int) {
	if uint64(bytes) > c.bytesInFlightN {
		c.bytesInFlightN = 0
		return
	}
	c.bytesInFlightN -= uint64(bytes)
}

func (c *newRenoController) inSlowStart() bool { return c.cwndBytes < c.ssthresh }

func (c *newRenoController) onPacketsAcked(acked []sentPacket, ackTime int64, rtt *rttEstimator) {
	for i := range acked {
		p := &acked[i]
		if uint64(p.sentBytes) > c.bytesInFlightN {
			c.bytesInFlightN = 0
		} else {
			c.bytesInFlightN -= uint64(p.sentBytes)
		}
		if p.sentTime < c.recoveryStartTS {
			// Packet was sent before the most recent congestion event
			// started: it does not grow cwnd further (RFC 9002 Section
			// 7.3.2's recovery-period exemption).
			continue
		}
		if c.inSlowStart() {
			c.cwndBytes += uint64(p.sentBytes)
		} else {
			c.cwndBytes += uint64(MaxPacketSize) * uint64(p.sentBytes) / c.cwndBytes
		}
	}
}

func (c *newRenoController) onCongestionEvent(lossTime int64, lostBytes int) {
	if lossTime < c.recoveryStartTS {
		// Already inside the current recovery period; avoid repeatedly
		// collapsing cwnd for packets lost in the same event.
		return
	}
	c.recoveryStartTS = lossTime
	c.cwndBytes = c.cwndBytes / 2
	if c.cwndBytes < minCongestionWindow {
		c.cwndBytes = minCongestionWindow
	}
	c.ssthresh = c.cwndBytes
}

func (c *newRenoController) cwnd() uint64          { return c.cwndBytes }
func (c *newRenoController) bytesInFlight() uint64 { return c.bytesInFlightN }
func (c *newRenoController) pacingRate() uint64     { return 0 }
