package transport

// recvChunk is one out-of-order block of received stream bytes,
// pending reassembly into the contiguous read buffer.
type recvChunk struct {
	offset uint64
	data   []byte
}

func (c recvChunk) end() uint64 { return c.offset + uint64(len(c.data)) }

// streamRecvBuffer reassembles a stream's incoming bytes, which may
// arrive out of order or overlapping across retransmitted ranges
// (spec.md Section 4.8/4.9).
type streamRecvBuffer struct {
	readOffset uint64 // next byte offset the application will Read
	ready      []byte // contiguous bytes from readOffset, ready to deliver

	pending []recvChunk // ascending by offset, non-overlapping, gaps between them

	finalSize    uint64 // noFinalSize until a STREAM FIN or RESET_STREAM sets it
	highestSeen  uint64 // highest absolute offset (exclusive) observed, for flow-control accounting

	// Auto-tuned receive window (SPEC_FULL's supplemented stream
	// receive auto-tuning): the window is doubled when the application
	// is observed draining data about as fast as it arrives, up to
	// maxAutoWindow, mirroring the classic TCP auto-tuning heuristic.
	window        uint64
	maxAutoWindow uint64
	lastGrowAt    uint64 // readOffset value at the last window doubling

	resetErrorCode uint64
	wasReset       bool
}

func newStreamRecvBuffer(initialWindow, maxAutoWindow uint64) *streamRecvBuffer {
	return &streamRecvBuffer{
		finalSize:     noFinalSize,
		window:        initialWindow,
		maxAutoWindow: maxAutoWindow,
	}
}

// write inserts a STREAM frame's payload at its absolute stream
// offset, returning a FlowControlError if it would exceed the current
// window or a FinalSizeError if it contradicts a final size already
// established by a prior FIN or RESET_STREAM (RFC 9000 Section 4.5).
func (r *streamRecvBuffer) write(offset uint64, data []byte, fin bool) error {
	end := offset + uint64(len(data))
	if end > r.highestSeen {
		if r.finalSize != noFinalSize && end > r.finalSize {
			return streamErrorf(FinalSizeError, 0, "data at [%d,%d) exceeds final size %d", offset, end, r.finalSize)
		}
		if end > r.window {
			return streamErrorf(FlowControlError, 0, "offset %d exceeds receive window %d", end, r.window)
		}
		r.highestSeen = end
	}
	if fin {
		if r.finalSize != noFinalSize && r.finalSize != end {
			return streamErrorf(FinalSizeError, 0, "conflicting final size %d vs %d", end, r.finalSize)
		}
		r.finalSize = end
	}
	have := r.readOffset + uint64(len(r.ready))
	if end <= have {
		return nil // entirely duplicate of already-delivered or ready data
	}
	if offset < have {
		// Trim the already-delivered or ready prefix.
		data = data[have-offset:]
		offset = have
	}
	r.insertPending(recvChunk{offset: offset, data: data})
	r.promoteReady()
	return nil
}

// insertPending merges a new chunk into r.pending, trimming overlaps
// against existing chunks so the list stays non-overlapping.
func (r *streamRecvBuffer) insertPending(c recvChunk) {
	if len(c.data) == 0 {
		return
	}
	var out []recvChunk
	inserted := false
	for _, existing := range r.pending {
		switch {
		case c.end() <= existing.offset && !inserted:
			out = append(out, c, existing)
			inserted = true
		case existing.end() <= c.offset:
			out = append(out, existing)
		default:
			// Overlap: merge by keeping the union, preferring existing
			// bytes data (first-seen wins, already-accepted content
			// should not be silently swapped by a retransmission).
			lo := minU64(c.offset, existing.offset)
			hi := maxU64(c.end(), existing.end())
			merged := make([]byte, hi-lo)
			copy(merged[c.offset-lo:], c.data)
			copy(merged[existing.offset-lo:], existing.data)
			c = recvChunk{offset: lo, data: merged}
		}
	}
	if !inserted {
		out = append(out, c)
	}
	r.pending = out
}

// promoteReady moves any pending chunk(s) now contiguous with
// readOffset+len(ready) into the ready buffer.
func (r *streamRecvBuffer) promoteReady() {
	for len(r.pending) > 0 && r.pending[0].offset == r.readOffset+uint64(len(r.ready)) {
		r.ready = append(r.ready, r.pending[0].data...)
		r.pending = r.pending[1:]
	}
}

// read copies ready bytes into p and advances readOffset, growing the
// auto-tuned window when the application has drained roughly half of
// it since the last growth.
func (r *streamRecvBuffer) read(p []byte) (int, error) {
	if len(r.ready) == 0 {
		if r.atEOF() {
			return 0, errStreamEOF
		}
		return 0, nil
	}
	n := copy(p, r.ready)
	r.ready = r.ready[n:]
	r.readOffset += uint64(n)
	r.maybeGrowWindow()
	return n, nil
}

func (r *streamRecvBuffer) maybeGrowWindow() {
	if r.maxAutoWindow == 0 || r.window >= r.maxAutoWindow {
		return
	}
	if r.readOffset-r.lastGrowAt >= r.window/2 {
		newWindow := r.window * 2
		if newWindow > r.maxAutoWindow {
			newWindow = r.maxAutoWindow
		}
		r.window = newWindow
		r.lastGrowAt = r.readOffset
	}
}

// atEOF reports whether every byte up to the final size has been
// delivered to the application.
func (r *streamRecvBuffer) atEOF() bool {
	return r.finalSize != noFinalSize && r.readOffset >= r.finalSize && len(r.ready) == 0
}

func (r *streamRecvBuffer) applyReset(errorCode, finalSize uint64) error {
	if r.finalSize != noFinalSize && r.finalSize != finalSize {
		return streamErrorf(FinalSizeError, 0, "reset final size %d conflicts with %d", finalSize, r.finalSize)
	}
	r.finalSize = finalSize
	r.wasReset = true
	r.resetErrorCode = errorCode
	r.ready = nil
	r.pending = nil
	return nil
}

// errStreamEOF signals that a recv buffer has delivered every byte up
// to its final size.
var errStreamEOF = newError(NoError, "stream closed")
