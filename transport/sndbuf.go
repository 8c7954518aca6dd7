package transport

// sendRangeState colors a byte range of a stream's send buffer
// (spec.md Section 4.8, "range-colored send buffer").
type sendRangeState uint8

const (
	sendRangePending sendRangeState = iota
	sendRangeInFlight
	sendRangeAcked
	sendRangeLost
)

// sendByteRange is a half-open byte range [lo, hi) tagged with its
// current retransmission state.
type sendByteRange struct {
	lo, hi uint64
	state  sendRangeState
}

func (r sendByteRange) len() uint64 { return r.hi - r.lo }

// noFinalSize marks a stream whose final size is not yet known.
const noFinalSize = ^uint64(0)

// streamSendBuffer buffers a stream's outgoing bytes and tracks the
// retransmission state of every byte offset written so far, so that
// the sender can always answer "what is the next pending range to
// send" and "is this stream's data fully acknowledged" (spec.md
// Section 4.8).
type streamSendBuffer struct {
	data      []byte // data[i] holds stream byte at absolute offset base+i
	base      uint64 // absolute offset of data[0]; bytes before base have been fully acked and discarded
	ranges    []sendByteRange // ascending, covering [base, base+len(data)), merged where same state
	finalSize uint64          // noFinalSize until close() is called
	reset     bool
	resetCode uint64
}

func newStreamSendBuffer() *streamSendBuffer {
	return &streamSendBuffer{finalSize: noFinalSize}
}

// write appends b to the stream and marks the new range pending.
func (s *streamSendBuffer) write(b []byte) {
	if len(b) == 0 {
		return
	}
	lo := s.base + uint64(len(s.data))
	s.data = append(s.data, b...)
	hi := s.base + uint64(len(s.data))
	s.appendRange(sendByteRange{lo: lo, hi: hi, state: sendRangePending})
}

// close sets the stream's final size, fixing the total length of data
// that will ever be written (spec.md Section 4.9's SendState FIN
// transition).
func (s *streamSendBuffer) close() {
	s.finalSize = s.base + uint64(len(s.data))
}

func (s *streamSendBuffer) appendRange(rg sendByteRange) {
	if n := len(s.ranges); n > 0 && s.ranges[n-1].hi == rg.lo && s.ranges[n-1].state == rg.state {
		s.ranges[n-1].hi = rg.hi
		return
	}
	s.ranges = append(s.ranges, rg)
}

// bytesAt returns the stream bytes covering [lo, hi), which must lie
// within [base, base+len(data)).
func (s *streamSendBuffer) bytesAt(lo, hi uint64) []byte {
	return s.data[lo-s.base : hi-s.base]
}

// nextPending returns the next range due to be sent, up to maxLen
// bytes, along with whether that chunk reaches the stream's (already
// known) final size, or ok=false if there is nothing to send. Lost
// ranges are picked up ahead of Pending ones regardless of offset,
// since a retransmission is more urgent than first-time data once the
// original has already been declared lost (spec.md Section 4.8,
// testable property 9).
func (s *streamSendBuffer) nextPending(maxLen uint64) (data []byte, offset uint64, fin bool, ok bool) {
	idx := s.pickUp(sendRangeLost)
	if idx < 0 {
		idx = s.pickUp(sendRangePending)
	}
	if idx < 0 {
		return nil, 0, false, false
	}
	rg := s.ranges[idx]
	hi := rg.hi
	if hi-rg.lo > maxLen {
		hi = rg.lo + maxLen
	}
	chunk := s.bytesAt(rg.lo, hi)
	s.markState(rg.lo, hi, sendRangeInFlight)
	reachesFin := s.finalSize != noFinalSize && hi == s.finalSize
	return chunk, rg.lo, reachesFin, true
}

// pickUp returns the index of the lowest-offset range in the given
// state, or -1 if none exists.
func (s *streamSendBuffer) pickUp(state sendRangeState) int {
	for i := range s.ranges {
		if s.ranges[i].state == state {
			return i
		}
	}
	return -1
}

// markState overwrites the state of [lo, hi) (which must already be
// covered by existing ranges, possibly split across several) and
// recoalesces adjacent equal-state ranges.
func (s *streamSendBuffer) markState(lo, hi uint64, state sendRangeState) {
	var out []sendByteRange
	for _, rg := range s.ranges {
		switch {
		case rg.hi <= lo || rg.lo >= hi:
			out = append(out, rg)
		default:
			if rg.lo < lo {
				out = append(out, sendByteRange{lo: rg.lo, hi: lo, state: rg.state})
			}
			overlapLo, overlapHi := maxU64(rg.lo, lo), minU64(rg.hi, hi)
			out = append(out, sendByteRange{lo: overlapLo, hi: overlapHi, state: state})
			if rg.hi > hi {
				out = append(out, sendByteRange{lo: hi, hi: rg.hi, state: rg.state})
			}
		}
	}
	s.ranges = coalesceRanges(out)
}

func coalesceRanges(ranges []sendByteRange) []sendByteRange {
	if len(ranges) == 0 {
		return ranges
	}
	out := ranges[:1]
	for _, rg := range ranges[1:] {
		last := &out[len(out)-1]
		if last.hi == rg.lo && last.state == rg.state {
			last.hi = rg.hi
			continue
		}
		out = append(out, rg)
	}
	return out
}

// onAcked marks [lo, hi) acknowledged and, if that range is now the
// lowest-offset bytes in the buffer, discards them (spec.md Section
// 4.8: acked bytes do not need to be retained for retransmission).
func (s *streamSendBuffer) onAcked(lo, hi uint64) {
	s.markState(lo, hi, sendRangeAcked)
	s.reclaim()
}

// reclaim drops leading fully-acked bytes from data, advancing base.
func (s *streamSendBuffer) reclaim() {
	for len(s.ranges) > 0 && s.ranges[0].state == sendRangeAcked {
		rg := s.ranges[0]
		n := rg.hi - s.base
		if n > uint64(len(s.data)) {
			n = uint64(len(s.data))
		}
		s.data = s.data[n:]
		s.base = rg.hi
		s.ranges = s.ranges[1:]
	}
}

// onLost marks [lo, hi) lost. Lost ranges keep their own color rather
// than collapsing back into Pending, so nextPending can give them
// retransmission priority over bytes that have never been sent (spec.md
// Section 4.6/4.8: a declared-lost STREAM frame's bytes are replayed
// from the buffer, not requeued as a frame value).
func (s *streamSendBuffer) onLost(lo, hi uint64) {
	s.markState(lo, hi, sendRangeLost)
}

// isComplete reports whether every byte up to the stream's final size
// has been acknowledged, including the FIN itself.
func (s *streamSendBuffer) isComplete() bool {
	if s.finalSize == noFinalSize {
		return false
	}
	if len(s.ranges) == 0 {
		return s.base >= s.finalSize
	}
	for _, rg := range s.ranges {
		if rg.hi > s.finalSize {
			continue
		}
		if rg.state != sendRangeAcked {
			return false
		}
	}
	last := s.ranges[len(s.ranges)-1]
	return last.hi >= s.finalSize
}

// allQueued reports whether every byte up to the stream's final size
// has been sent at least once (Pending ranges excluded; InFlight,
// Lost and Acked all count), regardless of whether it has been
// acknowledged yet.
func (s *streamSendBuffer) allQueued() bool {
	if s.finalSize == noFinalSize {
		return false
	}
	if len(s.ranges) == 0 {
		return s.base >= s.finalSize
	}
	for _, rg := range s.ranges {
		if rg.hi > s.finalSize {
			continue
		}
		if rg.state == sendRangePending {
			return false
		}
	}
	last := s.ranges[len(s.ranges)-1]
	return last.hi >= s.finalSize
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
