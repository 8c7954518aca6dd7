package transport

// congestionController is the pluggable congestion-control interface
// (spec.md Section 4.7): lossRecovery drives it purely through packet
// lifecycle events and reads back a congestion window and pacing rate.
// newReno and BBR both satisfy it, selected by Config.CongestionControl.
type congestionController interface {
	// onPacketSent is called once per in-flight packet, immediately
	// after it is written to the wire.
	onPacketSent(sentTime int64, bytes int)

	// onPacketsAcked is called once per batch of packets acknowledged
	// by a single incoming ACK frame, in the order the frame lists its
	// ranges (highest range first, ascending within a range), after
	// rttEstimator has already been updated from that ACK.
	onPacketsAcked(acked []sentPacket, ackTime int64, rtt *rttEstimator)

	// onCongestionEvent is called at most once per ACK-processing pass
	// when one or more packets in that pass were declared lost;
	// lossTime is the send time of the newest lost packet (RFC 9002
	// Section 7.6.1's "persistent congestion" reference point) and
	// lostBytes the number of bytes lost in the event.
	onCongestionEvent(lossTime int64, lostBytes int)

	// cwnd returns the current congestion window in bytes.
	cwnd() uint64

	// bytesInFlight returns the controller's view of outstanding bytes.
	bytesInFlight() uint64

	// pacingRate returns the current pacing rate in bytes/tick, or 0 if
	// the controller does not pace (sender-paced transmission is then
	// governed purely by cwnd availability).
	pacingRate() uint64

	onPacketDiscarded(bytes int)
}

// minCongestionWindow is the smallest cwnd a controller may fall to
// (RFC 9002 Section 7.2): two maximum datagrams, so a sender can always
// probe with a full-size packet.
const minCongestionWindow = 2 * MaxPacketSize

// initialCongestionWindow is the RFC 9002 Section 7.2 default initial
// window: min(10*maxDatagramSize, max(2*maxDatagramSize, 14720)).
const initialCongestionWindow = 10 * MaxPacketSize
