package transport

import "testing"

func newTestLossRecovery() *lossRecovery {
	return newLossRecovery(25, newNewRenoController())
}

func sendTestPacket(lr *lossRecovery, space *packetNumberSpace, pn packetNumber, now int64) {
	if pn >= space.nextPN {
		space.nextPN = pn + 1
	}
	lr.onPacketSent(space, sentPacket{pn: pn, sentTime: now, sentBytes: 1000, ackEliciting: true, inFlight: true}, now)
}

func TestPacketThresholdLossDetection(t *testing.T) {
	lr := newTestLossRecovery()
	space := newPacketNumberSpace(packetSpaceApplication)
	for pn := packetNumber(0); pn <= 5; pn++ {
		sendTestPacket(lr, space, pn, 0)
	}
	// Ack only packet 5: packets 0, 1 and 2 are kPacketThreshold (3) or
	// more below the largest acked and must be declared lost immediately,
	// while 3 and 4 stay within the threshold and are not. With an RTT
	// sample of 100 the time threshold does not reach any of them.
	ack := newAckFrame([]pnRange{{lo: 5, hi: 5}}, 0, nil)
	res, err := lr.onAckReceived(space, ack, 100, true)
	if err != nil {
		t.Fatalf("onAckReceived: %v", err)
	}
	if len(res.ackedPackets) != 1 || res.ackedPackets[0].pn != 5 {
		t.Fatalf("expected packet 5 acked, got %+v", res.ackedPackets)
	}
	lostPNs := map[packetNumber]bool{}
	for _, p := range res.lostPackets {
		lostPNs[p.pn] = true
	}
	if !lostPNs[0] || !lostPNs[1] || !lostPNs[2] {
		t.Fatalf("expected packets 0, 1 and 2 declared lost by packet threshold, got %+v", res.lostPackets)
	}
	if lostPNs[3] || lostPNs[4] {
		t.Fatalf("packets within packet threshold must not be declared lost yet: %+v", res.lostPackets)
	}
}

func TestTimeThresholdLossDetection(t *testing.T) {
	lr := newTestLossRecovery()
	space := newPacketNumberSpace(packetSpaceApplication)
	sendTestPacket(lr, space, 0, 0)
	sendTestPacket(lr, space, 1, 0)
	// Establish an RTT sample so timeThreshold() is well defined.
	ack := newAckFrame([]pnRange{{lo: 1, hi: 1}}, 0, nil)
	lr.onAckReceived(space, ack, 50, true)

	// Packet 2 is sent long after packet 0 and acked one RTT later, so
	// packet 0 (never acked or re-sent) is well past the time threshold.
	ackAt := 60 + 10*lr.timeThreshold()
	sendTestPacket(lr, space, 2, ackAt-50)
	ack2 := newAckFrame([]pnRange{{lo: 2, hi: 2}}, 0, nil)
	res, err := lr.onAckReceived(space, ack2, ackAt, true)
	if err != nil {
		t.Fatalf("onAckReceived: %v", err)
	}
	found := false
	for _, p := range res.lostPackets {
		if p.pn == 0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected packet 0 declared lost by time threshold, got %+v", res.lostPackets)
	}
}

func TestOnAckReceivedRejectsFutureLargest(t *testing.T) {
	lr := newTestLossRecovery()
	space := newPacketNumberSpace(packetSpaceApplication)
	sendTestPacket(lr, space, 0, 0)
	ack := newAckFrame([]pnRange{{lo: 5, hi: 5}}, 0, nil)
	if _, err := lr.onAckReceived(space, ack, 10, true); err == nil {
		t.Fatal("expected an error acknowledging an unsent packet number")
	}
}

func TestPTODeadlineZeroWithNoInFlight(t *testing.T) {
	lr := newTestLossRecovery()
	if d := lr.ptoDeadline(packetSpaceApplication, false); d != 0 {
		t.Fatalf("ptoDeadline with no in-flight packets = %d, want 0", d)
	}
}

func TestPTOBackoffDoubles(t *testing.T) {
	lr := newTestLossRecovery()
	lr.lastAckElicitingSent[packetSpaceApplication] = 0
	base := lr.ptoDeadline(packetSpaceApplication, true)
	lr.onLossDetectionTimeout()
	backedOff := lr.ptoDeadline(packetSpaceApplication, true)
	if backedOff <= base {
		t.Fatalf("expected PTO deadline to grow after backoff: base=%d backedOff=%d", base, backedOff)
	}
}

// TestPTOBackoffScalesMaxAckDelay exercises RFC 9002 Section 6.2.1: the
// entire PTO period doubles on each consecutive expiry, including the
// max_ack_delay term for the Application space, not just the
// RTT-based base timeout (spec.md Section 4.6).
func TestPTOBackoffScalesMaxAckDelay(t *testing.T) {
	lr := newTestLossRecovery()
	lr.lastAckElicitingSent[packetSpaceApplication] = 0
	base := lr.ptoDeadline(packetSpaceApplication, true)
	baseRTO := base - lr.peerMaxAckDelay

	lr.onLossDetectionTimeout()
	backedOff := lr.ptoDeadline(packetSpaceApplication, true)

	want := baseRTO*2 + lr.peerMaxAckDelay*2
	if backedOff != want {
		t.Fatalf("ptoDeadline after one backoff = %d, want %d (max_ack_delay term must scale with backoff)", backedOff, want)
	}
}
