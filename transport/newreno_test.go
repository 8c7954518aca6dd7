package transport

import "testing"

func TestNewRenoSlowStartGrowsCwnd(t *testing.T) {
	c := newNewRenoController()
	start := c.cwnd()
	rtt := newRTTEstimator(25)
	c.onPacketSent(0, 1000)
	c.onPacketsAcked([]sentPacket{{pn: 0, sentTime: 0, sentBytes: 1000}}, 50, rtt)
	if c.cwnd() <= start {
		t.Fatalf("expected cwnd to grow in slow start: start=%d now=%d", start, c.cwnd())
	}
}

func TestNewRenoCongestionEventHalvesCwnd(t *testing.T) {
	c := newNewRenoController()
	c.cwndBytes = 100000
	c.onCongestionEvent(1000, 1000)
	if c.cwnd() != 50000 {
		t.Fatalf("cwnd after congestion event = %d, want 50000", c.cwnd())
	}
	if c.cwnd() < minCongestionWindow {
		t.Fatalf("cwnd fell below minimum window: %d < %d", c.cwnd(), minCongestionWindow)
	}
}

func TestNewRenoIgnoresRepeatedEventsInSameRecovery(t *testing.T) {
	c := newNewRenoController()
	c.cwndBytes = 100000
	c.onCongestionEvent(1000, 1000)
	after := c.cwnd()
	c.onCongestionEvent(500, 1000) // older loss, already covered by current recovery period
	if c.cwnd() != after {
		t.Fatalf("expected cwnd unchanged for event inside current recovery period: got %d, want %d", c.cwnd(), after)
	}
}
