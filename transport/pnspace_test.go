package transport

import "testing"

func TestPacketNumberTruncateExpand(t *testing.T) {
	cases := []struct {
		largestAcked packetNumber
		pn           packetNumber
	}{
		{invalidPN, 0},
		{0, 1},
		{100, 101},
		{100, 200},
		{1000, 1001},
		{(1 << 20), (1 << 20) + 5},
	}
	for _, c := range cases {
		pnLen := pnLengthForDelta(c.pn, c.largestAcked)
		truncated := truncatePacketNumber(c.pn, pnLen)
		// The decoder's "largest received so far" is the largest PN
		// acknowledged by the peer from us at encode time, mirrored
		// here as the largest PN received by the remote decoder.
		got := decodePacketNumber(c.largestAcked, truncated, pnLen)
		if got != c.pn {
			t.Fatalf("pn=%d largestAcked=%d pnLen=%d: decoded %d", c.pn, c.largestAcked, pnLen, got)
		}
	}
}

func TestReceivedRangesDuplicateDetection(t *testing.T) {
	r := newReceivedRanges()
	r.insert(5, 0)
	r.insert(7, 1)
	if !r.contains(5) || !r.contains(7) {
		t.Fatal("expected inserted packet numbers to be contained")
	}
	if r.contains(6) {
		t.Fatal("gap packet number should not be contained")
	}
	r.insert(6, 2)
	if len(r.ranges) != 1 || r.ranges[0].lo != 5 || r.ranges[0].hi != 7 {
		t.Fatalf("expected merged range [5,7], got %+v", r.ranges)
	}
}

func TestReceivedRangesEviction(t *testing.T) {
	r := newReceivedRanges()
	for i := 0; i < maxAckRanges+10; i++ {
		r.insert(packetNumber(i*2), int64(i))
	}
	if len(r.ranges) > maxAckRanges {
		t.Fatalf("expected eviction to bound ranges to %d, got %d", maxAckRanges, len(r.ranges))
	}
	if r.floor == invalidPN {
		t.Fatal("expected floor to advance after eviction")
	}
}

func TestGenAckFrameRoundTrip(t *testing.T) {
	r := newReceivedRanges()
	for _, pn := range []packetNumber{0, 1, 2, 5, 6, 10} {
		r.insert(pn, 0)
	}
	f := r.genAckFrame(1000, nil, 0, 0)
	if f == nil {
		t.Fatal("expected an ack frame")
	}
	ranges := f.Ranges()
	want := []pnRange{{lo: 10, hi: 10}, {lo: 5, hi: 6}, {lo: 0, hi: 2}}
	if len(ranges) != len(want) {
		t.Fatalf("got %d ranges, want %d: %+v", len(ranges), len(want), ranges)
	}
	for i := range want {
		if ranges[i] != want[i] {
			t.Fatalf("range %d: got %+v, want %+v", i, ranges[i], want[i])
		}
	}
}

// TestGenAckFrameRespectsByteBudget exercises spec.md Section 4.3's
// gen_ack_frame_until(largest, budget_bytes): under heavy reordering a
// fully unbounded ACK frame would need more ranges than fit in the
// packet, so genAckFrame must truncate to what fits rather than hand
// back an oversized frame for the caller to fail on.
func TestGenAckFrameRespectsByteBudget(t *testing.T) {
	r := newReceivedRanges()
	for i := 0; i < maxAckRanges; i++ {
		r.insert(packetNumber(i*2), 0)
	}
	unbounded := r.genAckFrame(1000, nil, 0, 0)
	if unbounded == nil {
		t.Fatal("expected an unbounded ack frame")
	}
	full := unbounded.encodedLen()

	bounded := r.genAckFrame(1000, nil, 0, full/4)
	if bounded == nil {
		t.Fatal("expected a budget-truncated ack frame, not nil")
	}
	if bounded.encodedLen() > full/4 {
		t.Fatalf("encoded len %d exceeds budget %d", bounded.encodedLen(), full/4)
	}
	if bounded.rangeCount() >= unbounded.rangeCount() {
		t.Fatalf("expected truncation to drop ranges: got %d, unbounded had %d", bounded.rangeCount(), unbounded.rangeCount())
	}

	if f := r.genAckFrame(1000, nil, 0, 1); f != nil {
		t.Fatalf("expected nil when even the single most recent range cannot fit, got %+v", f)
	}
}

func TestReceivedRangesRemoveUntil(t *testing.T) {
	r := newReceivedRanges()
	for _, pn := range []packetNumber{0, 1, 2, 5, 6, 10} {
		r.insert(pn, 0)
	}
	r.removeUntil(6)
	if r.floor != 6 {
		t.Fatalf("floor = %d, want 6", r.floor)
	}
	for _, rg := range r.ranges {
		if rg.lo <= 6 {
			t.Fatalf("expected ranges at or below removeUntil's argument to be dropped, got %+v", r.ranges)
		}
	}
	if !r.contains(10) {
		t.Fatal("expected packet numbers above removeUntil's argument to survive")
	}
}

// TestAckEchoingDiscipline exercises spec.md Section 4.3's ACK echoing
// discipline (testable property 12): once the packet carrying one of
// our own ACK frames is itself acknowledged by the peer, the ranges it
// covered must stop being re-advertised in subsequent ACK frames.
func TestAckEchoingDiscipline(t *testing.T) {
	lr := newTestLossRecovery()
	space := newPacketNumberSpace(packetSpaceApplication)
	for _, pn := range []packetNumber{0, 1, 2} {
		space.received.insert(pn, 0)
	}

	f := space.received.genAckFrame(0, nil, 0, 0)
	if f == nil {
		t.Fatal("expected an ack frame covering [0,2]")
	}
	space.lastAckSentPN = 100
	space.lastAckSentUpTo = packetNumber(f.largestAck)
	sendTestPacket(lr, space, 100, 0)

	peerAck := newAckFrame([]pnRange{{lo: 100, hi: 100}}, 0, nil)
	res, err := lr.onAckReceived(space, peerAck, 10, true)
	if err != nil {
		t.Fatalf("onAckReceived: %v", err)
	}
	acked := false
	for _, p := range res.ackedPackets {
		if p.pn == space.lastAckSentPN {
			acked = true
			space.received.removeUntil(space.lastAckSentUpTo)
		}
	}
	if !acked {
		t.Fatal("expected packet 100, carrying our ACK frame, to be newly acked")
	}
	if space.received.needAck() {
		t.Fatal("expected ranges covered by an acknowledged ACK frame to no longer need re-advertising")
	}
}

func TestSentPacketListOrderingAndLookup(t *testing.T) {
	l := &sentPacketList{}
	l.push(sentPacket{pn: 0})
	l.push(sentPacket{pn: 1})
	l.push(sentPacket{pn: 2})
	if i := l.find(1); i != 1 {
		t.Fatalf("find(1) = %d, want 1", i)
	}
	if i := l.find(5); i != -1 {
		t.Fatalf("find(5) = %d, want -1", i)
	}
	removed := l.removeAt(1)
	if removed.pn != 1 {
		t.Fatalf("removed pn %d, want 1", removed.pn)
	}
	if l.find(2) != 1 {
		t.Fatal("expected index to shift after removal")
	}
}

func TestSentPacketListRejectsOutOfOrderPush(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on out-of-order push")
		}
	}()
	l := &sentPacketList{}
	l.push(sentPacket{pn: 5})
	l.push(sentPacket{pn: 3})
}
