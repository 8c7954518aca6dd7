package transport

// flowControl tracks one direction of connection-level flow control
// (spec.md Section 4.8): a send side bounded by the peer's advertised
// MAX_DATA, and a receive side that advertises its own MAX_DATA as the
// application consumes bytes.
type flowControl struct {
	// Send side.
	sendMax  uint64 // peer's most recently advertised connection data limit
	sendUsed uint64 // bytes already written to streams and counted against sendMax

	// Receive side.
	recvMax      uint64 // limit most recently advertised to the peer
	recvUsed     uint64 // bytes received across all streams
	recvWindow   uint64 // target window size, recvMax is raised to keep this much headroom
	autoTuneStep uint64 // how much recvMax is raised per MAX_DATA update
}

func newFlowControl(initialSendMax, initialRecvWindow uint64) *flowControl {
	return &flowControl{
		sendMax:      initialSendMax,
		recvMax:      initialRecvWindow,
		recvWindow:   initialRecvWindow,
		autoTuneStep: initialRecvWindow,
	}
}

// canSend reports whether n more bytes may be sent without exceeding
// the connection-level send limit.
func (f *flowControl) canSend(n uint64) bool {
	return f.sendUsed+n <= f.sendMax
}

func (f *flowControl) available() uint64 {
	if f.sendUsed >= f.sendMax {
		return 0
	}
	return f.sendMax - f.sendUsed
}

// consumeSend records n bytes as sent against the connection limit.
func (f *flowControl) consumeSend(n uint64) { f.sendUsed += n }

// onMaxData applies a peer MAX_DATA frame, which can only raise the
// limit (RFC 9000 Section 4.1 forbids a receiver from lowering it).
func (f *flowControl) onMaxData(max uint64) {
	if max > f.sendMax {
		f.sendMax = max
	}
}

// onBytesReceived records total, the cumulative number of bytes received
// across all streams, against the connection-level receive accounting,
// returning a FlowControlError if the peer has exceeded the advertised
// limit.
func (f *flowControl) onBytesReceived(total uint64) error {
	if total > f.recvMax {
		return newError(FlowControlError, "connection data limit exceeded")
	}
	if total > f.recvUsed {
		f.recvUsed = total
	}
	return nil
}

// maybeUpdateMax returns a new MAX_DATA value to advertise if the
// consumed fraction of the current window warrants raising it, or
// (0, false) if no update is needed yet.
func (f *flowControl) maybeUpdateMax() (uint64, bool) {
	if f.recvMax-f.recvUsed > f.recvWindow/2 {
		return 0, false
	}
	newMax := f.recvUsed + f.recvWindow
	if newMax <= f.recvMax {
		return 0, false
	}
	f.recvMax = newMax
	return newMax, true
}
