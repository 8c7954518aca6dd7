package transport

import "fmt"

// ---- PADDING ----

type paddingFrame struct {
	length int
}

func newPaddingFrame(n int) *paddingFrame { return &paddingFrame{length: n} }

func (f *paddingFrame) encodedLen() int    { return f.length }
func (f *paddingFrame) maxEncodedLen() int { return f.length }

func (f *paddingFrame) encode(b []byte) (int, error) {
	if len(b) < f.length {
		return 0, errShortBuffer
	}
	for i := 0; i < f.length; i++ {
		b[i] = 0
	}
	return f.length, nil
}

func (f *paddingFrame) decode(b []byte) (int, error) {
	n := 0
	for n < len(b) && b[n] == 0 {
		n++
	}
	f.length = n
	return n, nil
}

// ---- PING ----

type pingFrame struct{}

func (f *pingFrame) encodedLen() int    { return 1 }
func (f *pingFrame) maxEncodedLen() int { return 1 }

func (f *pingFrame) encode(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, errShortBuffer
	}
	b[0] = byte(frameTypePing)
	return 1, nil
}

func (f *pingFrame) decode(b []byte) (int, error) {
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 {
		return 0, incompletef("ping")
	}
	return n, nil
}

// ---- ACK ----

// pnRange is an inclusive packet-number range, [lo, hi].
type pnRange struct {
	lo, hi packetNumber
}

func (r pnRange) size() uint64 { return uint64(r.hi-r.lo) + 1 }

type ecnCounts struct {
	ect0, ect1, ce uint64
}

type ackFrame struct {
	largestAck    uint64
	ackDelay      uint64
	firstAckRange uint64
	gaps          []uint64 // parallel to lens
	lens          []uint64
	ecn           *ecnCounts
}

func (f *ackFrame) rangeCount() int { return len(f.gaps) }

func (f *ackFrame) hasECN() bool { return f.ecn != nil }

func (f *ackFrame) typ() uint64 {
	if f.hasECN() {
		return frameTypeAckECN
	}
	return frameTypeAck
}

func (f *ackFrame) encodedLen() int {
	n := varIntLen(f.typ()) + varIntLen(f.largestAck) + varIntLen(f.ackDelay) +
		varIntLen(uint64(f.rangeCount())) + varIntLen(f.firstAckRange)
	for i := range f.gaps {
		n += varIntLen(f.gaps[i]) + varIntLen(f.lens[i])
	}
	if f.ecn != nil {
		n += varIntLen(f.ecn.ect0) + varIntLen(f.ecn.ect1) + varIntLen(f.ecn.ce)
	}
	return n
}

func (f *ackFrame) maxEncodedLen() int {
	// Worst case: every VarInt uses 8 bytes.
	n := 8 * (4 + 2*f.rangeCount())
	if f.ecn != nil {
		n += 24
	}
	return n
}

func (f *ackFrame) encode(b []byte) (int, error) {
	need := f.encodedLen()
	if len(b) < need {
		return 0, errShortBuffer
	}
	out := b[:0]
	out = appendVarint(out, f.typ())
	out = appendVarint(out, f.largestAck)
	out = appendVarint(out, f.ackDelay)
	out = appendVarint(out, uint64(f.rangeCount()))
	out = appendVarint(out, f.firstAckRange)
	for i := range f.gaps {
		out = appendVarint(out, f.gaps[i])
		out = appendVarint(out, f.lens[i])
	}
	if f.ecn != nil {
		out = appendVarint(out, f.ecn.ect0)
		out = appendVarint(out, f.ecn.ect1)
		out = appendVarint(out, f.ecn.ce)
	}
	return len(out), nil
}

func (f *ackFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b[off:], &typ)
	if n == 0 {
		return 0, incompletef("ack type")
	}
	off += n
	n = getVarint(b[off:], &f.largestAck)
	if n == 0 {
		return 0, incompletef("ack largest")
	}
	off += n
	n = getVarint(b[off:], &f.ackDelay)
	if n == 0 {
		return 0, incompletef("ack delay")
	}
	off += n
	var rangeCount uint64
	n = getVarint(b[off:], &rangeCount)
	if n == 0 {
		return 0, incompletef("ack range count")
	}
	off += n
	n = getVarint(b[off:], &f.firstAckRange)
	if n == 0 {
		return 0, incompletef("ack first range")
	}
	off += n
	if f.firstAckRange > f.largestAck {
		return 0, frameErrorf(FrameEncodingError, typ, "first ack range exceeds largest")
	}
	f.gaps = f.gaps[:0]
	f.lens = f.lens[:0]
	for i := uint64(0); i < rangeCount; i++ {
		var gap, l uint64
		n = getVarint(b[off:], &gap)
		if n == 0 {
			return 0, incompletef("ack gap")
		}
		off += n
		n = getVarint(b[off:], &l)
		if n == 0 {
			return 0, incompletef("ack length")
		}
		off += n
		f.gaps = append(f.gaps, gap)
		f.lens = append(f.lens, l)
	}
	if typ == frameTypeAckECN {
		f.ecn = &ecnCounts{}
		n = getVarint(b[off:], &f.ecn.ect0)
		if n == 0 {
			return 0, incompletef("ack ect0")
		}
		off += n
		n = getVarint(b[off:], &f.ecn.ect1)
		if n == 0 {
			return 0, incompletef("ack ect1")
		}
		off += n
		n = getVarint(b[off:], &f.ecn.ce)
		if n == 0 {
			return 0, incompletef("ack ce")
		}
		off += n
	} else {
		f.ecn = nil
	}
	return off, nil
}

// Ranges returns the acknowledged packet-number ranges in descending
// order, reconstructed from the wire's largest/first-range/gap/length
// encoding (RFC 9000 Section 19.3.1).
func (f *ackFrame) Ranges() []pnRange {
	largest := packetNumber(f.largestAck)
	lo := largest - packetNumber(f.firstAckRange)
	ranges := []pnRange{{lo: lo, hi: largest}}
	cur := lo
	for i := range f.gaps {
		hi := cur - packetNumber(f.gaps[i]) - 2
		lo := hi - packetNumber(f.lens[i])
		ranges = append(ranges, pnRange{lo: lo, hi: hi})
		cur = lo
	}
	return ranges
}

// newAckFrame builds an ACK frame from a descending list of disjoint
// inclusive ranges (ranges[0] contains the largest acknowledged PN).
func newAckFrame(ranges []pnRange, ackDelay uint64, ecn *ecnCounts) *ackFrame {
	f := &ackFrame{
		largestAck:    uint64(ranges[0].hi),
		ackDelay:      ackDelay,
		firstAckRange: uint64(ranges[0].hi - ranges[0].lo),
		ecn:           ecn,
	}
	for i := 1; i < len(ranges); i++ {
		prev := ranges[i-1]
		cur := ranges[i]
		gap := uint64(prev.lo - cur.hi - 2)
		length := uint64(cur.hi - cur.lo)
		f.gaps = append(f.gaps, gap)
		f.lens = append(f.lens, length)
	}
	return f
}

// ---- RESET_STREAM ----

type resetStreamFrame struct {
	streamID  uint64
	errorCode uint64
	finalSize uint64
}

func newResetStreamFrame(streamID, errorCode, finalSize uint64) *resetStreamFrame {
	return &resetStreamFrame{streamID: streamID, errorCode: errorCode, finalSize: finalSize}
}

func (f *resetStreamFrame) encodedLen() int {
	return varIntLen(frameTypeResetStream) + varIntLen(f.streamID) + varIntLen(f.errorCode) + varIntLen(f.finalSize)
}
func (f *resetStreamFrame) maxEncodedLen() int { return 8 * 4 }

func (f *resetStreamFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	out := b[:0]
	out = appendVarint(out, frameTypeResetStream)
	out = appendVarint(out, f.streamID)
	out = appendVarint(out, f.errorCode)
	out = appendVarint(out, f.finalSize)
	return len(out), nil
}

func (f *resetStreamFrame) decode(b []byte) (int, error) {
	return decode4(b, frameTypeResetStream, &f.streamID, &f.errorCode, &f.finalSize)
}

// decode4 is a helper for frames that are {type, a, b, c}.
func decode4(b []byte, wantType uint64, a, c, d *uint64) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b[off:], &typ)
	if n == 0 {
		return 0, incompletef("frame type")
	}
	off += n
	n = getVarint(b[off:], a)
	if n == 0 {
		return 0, incompletef(fmt.Sprintf("frame 0x%x field 1", wantType))
	}
	off += n
	n = getVarint(b[off:], c)
	if n == 0 {
		return 0, incompletef(fmt.Sprintf("frame 0x%x field 2", wantType))
	}
	off += n
	n = getVarint(b[off:], d)
	if n == 0 {
		return 0, incompletef(fmt.Sprintf("frame 0x%x field 3", wantType))
	}
	off += n
	return off, nil
}

// ---- STOP_SENDING ----

type stopSendingFrame struct {
	streamID  uint64
	errorCode uint64
}

func newStopSendingFrame(streamID, errorCode uint64) *stopSendingFrame {
	return &stopSendingFrame{streamID: streamID, errorCode: errorCode}
}

func (f *stopSendingFrame) encodedLen() int {
	return varIntLen(frameTypeStopSending) + varIntLen(f.streamID) + varIntLen(f.errorCode)
}
func (f *stopSendingFrame) maxEncodedLen() int { return 8 * 3 }

func (f *stopSendingFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	out := b[:0]
	out = appendVarint(out, frameTypeStopSending)
	out = appendVarint(out, f.streamID)
	out = appendVarint(out, f.errorCode)
	return len(out), nil
}

func (f *stopSendingFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b[off:], &typ)
	if n == 0 {
		return 0, incompletef("stop_sending type")
	}
	off += n
	n = getVarint(b[off:], &f.streamID)
	if n == 0 {
		return 0, incompletef("stop_sending stream id")
	}
	off += n
	n = getVarint(b[off:], &f.errorCode)
	if n == 0 {
		return 0, incompletef("stop_sending error code")
	}
	off += n
	return off, nil
}

// ---- CRYPTO ----

type cryptoFrame struct {
	offset uint64
	data   []byte
}

func newCryptoFrame(data []byte, offset uint64) *cryptoFrame {
	return &cryptoFrame{offset: offset, data: data}
}

func (f *cryptoFrame) encodedLen() int {
	return varIntLen(frameTypeCrypto) + varIntLen(f.offset) + varIntLen(uint64(len(f.data))) + len(f.data)
}
func (f *cryptoFrame) maxEncodedLen() int { return 8*3 + len(f.data) }

func (f *cryptoFrame) encode(b []byte) (int, error) {
	need := f.encodedLen()
	if len(b) < need {
		return 0, errShortBuffer
	}
	out := b[:0]
	out = appendVarint(out, frameTypeCrypto)
	out = appendVarint(out, f.offset)
	out = appendVarint(out, uint64(len(f.data)))
	off := len(out)
	copy(b[off:], f.data)
	return off + len(f.data), nil
}

func (f *cryptoFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b[off:], &typ)
	if n == 0 {
		return 0, incompletef("crypto type")
	}
	off += n
	n = getVarint(b[off:], &f.offset)
	if n == 0 {
		return 0, incompletef("crypto offset")
	}
	off += n
	var length uint64
	n = getVarint(b[off:], &length)
	if n == 0 {
		return 0, incompletef("crypto length")
	}
	off += n
	if uint64(len(b)-off) < length {
		return 0, incompletef("crypto data")
	}
	f.data = b[off : off+int(length)] // zero-copy slice into the source buffer
	off += int(length)
	return off, nil
}

// ---- NEW_TOKEN ----

type newTokenFrame struct {
	token []byte
}

func newNewTokenFrame(token []byte) *newTokenFrame { return &newTokenFrame{token: token} }

func (f *newTokenFrame) encodedLen() int {
	return varIntLen(frameTypeNewToken) + varIntLen(uint64(len(f.token))) + len(f.token)
}
func (f *newTokenFrame) maxEncodedLen() int { return 16 + len(f.token) }

func (f *newTokenFrame) encode(b []byte) (int, error) {
	need := f.encodedLen()
	if len(b) < need {
		return 0, errShortBuffer
	}
	out := b[:0]
	out = appendVarint(out, frameTypeNewToken)
	out = appendVarint(out, uint64(len(f.token)))
	off := len(out)
	copy(b[off:], f.token)
	return off + len(f.token), nil
}

func (f *newTokenFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b[off:], &typ)
	if n == 0 {
		return 0, incompletef("new_token type")
	}
	off += n
	var length uint64
	n = getVarint(b[off:], &length)
	if n == 0 {
		return 0, incompletef("new_token length")
	}
	off += n
	if uint64(len(b)-off) < length {
		return 0, incompletef("new_token data")
	}
	f.token = append([]byte(nil), b[off:off+int(length)]...)
	off += int(length)
	return off, nil
}

// ---- STREAM ----

type streamFrame struct {
	streamID uint64
	offset   uint64
	data     []byte
	fin      bool
}

func newStreamFrame(streamID uint64, data []byte, offset uint64, fin bool) *streamFrame {
	return &streamFrame{streamID: streamID, offset: offset, data: data, fin: fin}
}

func (f *streamFrame) typ() uint64 {
	typ := frameTypeStream
	if f.offset > 0 {
		typ |= 0x04 // OFF
	}
	typ |= 0x02 // LEN: this implementation always encodes an explicit length
	if f.fin {
		typ |= 0x01 // FIN
	}
	return typ
}

func (f *streamFrame) encodedLen() int {
	n := varIntLen(f.typ()) + varIntLen(f.streamID)
	if f.offset > 0 {
		n += varIntLen(f.offset)
	}
	n += varIntLen(uint64(len(f.data))) + len(f.data)
	return n
}
func (f *streamFrame) maxEncodedLen() int { return 8*3 + len(f.data) }

func (f *streamFrame) encode(b []byte) (int, error) {
	need := f.encodedLen()
	if len(b) < need {
		return 0, errShortBuffer
	}
	out := b[:0]
	out = appendVarint(out, f.typ())
	out = appendVarint(out, f.streamID)
	if f.offset > 0 {
		out = appendVarint(out, f.offset)
	}
	out = appendVarint(out, uint64(len(f.data)))
	off := len(out)
	copy(b[off:], f.data)
	return off + len(f.data), nil
}

func (f *streamFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b[off:], &typ)
	if n == 0 {
		return 0, incompletef("stream type")
	}
	off += n
	n = getVarint(b[off:], &f.streamID)
	if n == 0 {
		return 0, incompletef("stream id")
	}
	off += n
	f.offset = 0
	if typ&0x04 != 0 {
		n = getVarint(b[off:], &f.offset)
		if n == 0 {
			return 0, incompletef("stream offset")
		}
		off += n
	}
	f.fin = typ&0x01 != 0
	if typ&0x02 != 0 {
		var length uint64
		n = getVarint(b[off:], &length)
		if n == 0 {
			return 0, incompletef("stream length")
		}
		off += n
		if uint64(len(b)-off) < length {
			return 0, incompletef("stream data")
		}
		f.data = b[off : off+int(length)]
		off += int(length)
	} else {
		// No explicit length: data runs to the end of the packet.
		f.data = b[off:]
		off = len(b)
	}
	return off, nil
}

// ---- MAX_DATA ----

type maxDataFrame struct {
	maximumData uint64
}

func newMaxDataFrame(max uint64) *maxDataFrame { return &maxDataFrame{maximumData: max} }

func (f *maxDataFrame) encodedLen() int    { return varIntLen(frameTypeMaxData) + varIntLen(f.maximumData) }
func (f *maxDataFrame) maxEncodedLen() int { return 16 }

func (f *maxDataFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	out := b[:0]
	out = appendVarint(out, frameTypeMaxData)
	out = appendVarint(out, f.maximumData)
	return len(out), nil
}

func (f *maxDataFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b[off:], &typ)
	if n == 0 {
		return 0, incompletef("max_data type")
	}
	off += n
	n = getVarint(b[off:], &f.maximumData)
	if n == 0 {
		return 0, incompletef("max_data value")
	}
	off += n
	return off, nil
}

// ---- MAX_STREAM_DATA ----

type maxStreamDataFrame struct {
	streamID    uint64
	maximumData uint64
}

func newMaxStreamDataFrame(streamID, max uint64) *maxStreamDataFrame {
	return &maxStreamDataFrame{streamID: streamID, maximumData: max}
}

func (f *maxStreamDataFrame) encodedLen() int {
	return varIntLen(frameTypeMaxStreamData) + varIntLen(f.streamID) + varIntLen(f.maximumData)
}
func (f *maxStreamDataFrame) maxEncodedLen() int { return 24 }

func (f *maxStreamDataFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	out := b[:0]
	out = appendVarint(out, frameTypeMaxStreamData)
	out = appendVarint(out, f.streamID)
	out = appendVarint(out, f.maximumData)
	return len(out), nil
}

func (f *maxStreamDataFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b[off:], &typ)
	if n == 0 {
		return 0, incompletef("max_stream_data type")
	}
	off += n
	n = getVarint(b[off:], &f.streamID)
	if n == 0 {
		return 0, incompletef("max_stream_data stream id")
	}
	off += n
	n = getVarint(b[off:], &f.maximumData)
	if n == 0 {
		return 0, incompletef("max_stream_data value")
	}
	off += n
	return off, nil
}

// ---- MAX_STREAMS ----

type maxStreamsFrame struct {
	bidi           bool
	maximumStreams uint64
}

// maxStreamLimit is the largest stream count/id QUIC allows (2^60-1,
// RFC 9000 Section 4.6): beyond this the resulting stream ID would
// overflow the VarInt space.
const maxStreamLimit = (1 << 60) - 1

func newMaxStreamsFrame(max uint64, bidi bool) *maxStreamsFrame {
	return &maxStreamsFrame{bidi: bidi, maximumStreams: max}
}

func (f *maxStreamsFrame) typ() uint64 {
	if f.bidi {
		return frameTypeMaxStreamsBidi
	}
	return frameTypeMaxStreamsUni
}

func (f *maxStreamsFrame) encodedLen() int {
	return varIntLen(f.typ()) + varIntLen(f.maximumStreams)
}
func (f *maxStreamsFrame) maxEncodedLen() int { return 16 }

func (f *maxStreamsFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	out := b[:0]
	out = appendVarint(out, f.typ())
	out = appendVarint(out, f.maximumStreams)
	return len(out), nil
}

func (f *maxStreamsFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b[off:], &typ)
	if n == 0 {
		return 0, incompletef("max_streams type")
	}
	off += n
	f.bidi = typ == frameTypeMaxStreamsBidi
	n = getVarint(b[off:], &f.maximumStreams)
	if n == 0 {
		return 0, incompletef("max_streams value")
	}
	off += n
	if f.maximumStreams > maxStreamLimit {
		return 0, frameErrorf(StreamLimitError, typ, "maximum streams %d exceeds limit", f.maximumStreams)
	}
	return off, nil
}

// ---- DATA_BLOCKED ----

type dataBlockedFrame struct {
	dataLimit uint64
}

func newDataBlockedFrame(limit uint64) *dataBlockedFrame { return &dataBlockedFrame{dataLimit: limit} }

func (f *dataBlockedFrame) encodedLen() int {
	return varIntLen(frameTypeDataBlocked) + varIntLen(f.dataLimit)
}
func (f *dataBlockedFrame) maxEncodedLen() int { return 16 }

func (f *dataBlockedFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	out := b[:0]
	out = appendVarint(out, frameTypeDataBlocked)
	out = appendVarint(out, f.dataLimit)
	return len(out), nil
}

func (f *dataBlockedFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b[off:], &typ)
	if n == 0 {
		return 0, incompletef("data_blocked type")
	}
	off += n
	n = getVarint(b[off:], &f.dataLimit)
	if n == 0 {
		return 0, incompletef("data_blocked limit")
	}
	off += n
	return off, nil
}

// ---- STREAM_DATA_BLOCKED ----

type streamDataBlockedFrame struct {
	streamID  uint64
	dataLimit uint64
}

func newStreamDataBlockedFrame(streamID, limit uint64) *streamDataBlockedFrame {
	return &streamDataBlockedFrame{streamID: streamID, dataLimit: limit}
}

func (f *streamDataBlockedFrame) encodedLen() int {
	return varIntLen(frameTypeStreamDataBlocked) + varIntLen(f.streamID) + varIntLen(f.dataLimit)
}
func (f *streamDataBlockedFrame) maxEncodedLen() int { return 24 }

func (f *streamDataBlockedFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	out := b[:0]
	out = appendVarint(out, frameTypeStreamDataBlocked)
	out = appendVarint(out, f.streamID)
	out = appendVarint(out, f.dataLimit)
	return len(out), nil
}

func (f *streamDataBlockedFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b[off:], &typ)
	if n == 0 {
		return 0, incompletef("stream_data_blocked type")
	}
	off += n
	n = getVarint(b[off:], &f.streamID)
	if n == 0 {
		return 0, incompletef("stream_data_blocked stream id")
	}
	off += n
	n = getVarint(b[off:], &f.dataLimit)
	if n == 0 {
		return 0, incompletef("stream_data_blocked limit")
	}
	off += n
	return off, nil
}

// ---- STREAMS_BLOCKED ----

type streamsBlockedFrame struct {
	bidi        bool
	streamLimit uint64
}

func newStreamsBlockedFrame(limit uint64, bidi bool) *streamsBlockedFrame {
	return &streamsBlockedFrame{bidi: bidi, streamLimit: limit}
}

func (f *streamsBlockedFrame) typ() uint64 {
	if f.bidi {
		return frameTypeStreamsBlockedBidi
	}
	return frameTypeStreamsBlockedUni
}

func (f *streamsBlockedFrame) encodedLen() int {
	return varIntLen(f.typ()) + varIntLen(f.streamLimit)
}
func (f *streamsBlockedFrame) maxEncodedLen() int { return 16 }

func (f *streamsBlockedFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	out := b[:0]
	out = appendVarint(out, f.typ())
	out = appendVarint(out, f.streamLimit)
	return len(out), nil
}

func (f *streamsBlockedFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b[off:], &typ)
	if n == 0 {
		return 0, incompletef("streams_blocked type")
	}
	off += n
	f.bidi = typ == frameTypeStreamsBlockedBidi
	n = getVarint(b[off:], &f.streamLimit)
	if n == 0 {
		return 0, incompletef("streams_blocked value")
	}
	off += n
	return off, nil
}

// ---- NEW_CONNECTION_ID ----

type newConnectionIDFrame struct {
	sequenceNumber      uint64
	retirePriorTo       uint64
	connectionID        []byte
	statelessResetToken [16]byte
}

func (f *newConnectionIDFrame) encodedLen() int {
	return varIntLen(frameTypeNewConnectionID) + varIntLen(f.sequenceNumber) + varIntLen(f.retirePriorTo) +
		1 + len(f.connectionID) + 16
}
func (f *newConnectionIDFrame) maxEncodedLen() int { return 8*3 + 1 + MaxCIDLength + 16 }

func (f *newConnectionIDFrame) encode(b []byte) (int, error) {
	need := f.encodedLen()
	if len(b) < need {
		return 0, errShortBuffer
	}
	out := b[:0]
	out = appendVarint(out, frameTypeNewConnectionID)
	out = appendVarint(out, f.sequenceNumber)
	out = appendVarint(out, f.retirePriorTo)
	off := len(out)
	b[off] = byte(len(f.connectionID))
	off++
	off += copy(b[off:], f.connectionID)
	off += copy(b[off:], f.statelessResetToken[:])
	return off, nil
}

func (f *newConnectionIDFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b[off:], &typ)
	if n == 0 {
		return 0, incompletef("new_connection_id type")
	}
	off += n
	n = getVarint(b[off:], &f.sequenceNumber)
	if n == 0 {
		return 0, incompletef("new_connection_id sequence")
	}
	off += n
	n = getVarint(b[off:], &f.retirePriorTo)
	if n == 0 {
		return 0, incompletef("new_connection_id retire_prior_to")
	}
	off += n
	if f.retirePriorTo > f.sequenceNumber {
		return 0, frameErrorf(FrameEncodingError, typ, "retire_prior_to exceeds sequence number")
	}
	if len(b) <= off {
		return 0, incompletef("new_connection_id length")
	}
	cidLen := int(b[off])
	off++
	if cidLen == 0 || cidLen > MaxCIDLength {
		return 0, frameErrorf(FrameEncodingError, typ, "invalid connection id length %d", cidLen)
	}
	if len(b)-off < cidLen+16 {
		return 0, incompletef("new_connection_id body")
	}
	f.connectionID = append([]byte(nil), b[off:off+cidLen]...)
	off += cidLen
	copy(f.statelessResetToken[:], b[off:off+16])
	off += 16
	return off, nil
}

// ---- RETIRE_CONNECTION_ID ----

type retireConnectionIDFrame struct {
	sequenceNumber uint64
}

func (f *retireConnectionIDFrame) encodedLen() int {
	return varIntLen(frameTypeRetireConnectionID) + varIntLen(f.sequenceNumber)
}
func (f *retireConnectionIDFrame) maxEncodedLen() int { return 16 }

func (f *retireConnectionIDFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	out := b[:0]
	out = appendVarint(out, frameTypeRetireConnectionID)
	out = appendVarint(out, f.sequenceNumber)
	return len(out), nil
}

func (f *retireConnectionIDFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b[off:], &typ)
	if n == 0 {
		return 0, incompletef("retire_connection_id type")
	}
	off += n
	n = getVarint(b[off:], &f.sequenceNumber)
	if n == 0 {
		return 0, incompletef("retire_connection_id sequence")
	}
	off += n
	return off, nil
}

// ---- PATH_CHALLENGE / PATH_RESPONSE ----

type pathChallengeFrame struct {
	data [8]byte
}

func (f *pathChallengeFrame) encodedLen() int    { return 1 + 8 }
func (f *pathChallengeFrame) maxEncodedLen() int { return 1 + 8 }

func (f *pathChallengeFrame) encode(b []byte) (int, error) {
	if len(b) < 9 {
		return 0, errShortBuffer
	}
	b[0] = byte(frameTypePathChallenge)
	copy(b[1:9], f.data[:])
	return 9, nil
}

func (f *pathChallengeFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b[off:], &typ)
	if n == 0 {
		return 0, incompletef("path_challenge type")
	}
	off += n
	if len(b)-off < 8 {
		return 0, incompletef("path_challenge data")
	}
	copy(f.data[:], b[off:off+8])
	off += 8
	return off, nil
}

type pathResponseFrame struct {
	data [8]byte
}

func (f *pathResponseFrame) encodedLen() int    { return 1 + 8 }
func (f *pathResponseFrame) maxEncodedLen() int { return 1 + 8 }

func (f *pathResponseFrame) encode(b []byte) (int, error) {
	if len(b) < 9 {
		return 0, errShortBuffer
	}
	b[0] = byte(frameTypePathResponse)
	copy(b[1:9], f.data[:])
	return 9, nil
}

func (f *pathResponseFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b[off:], &typ)
	if n == 0 {
		return 0, incompletef("path_response type")
	}
	off += n
	if len(b)-off < 8 {
		return 0, incompletef("path_response data")
	}
	copy(f.data[:], b[off:off+8])
	off += 8
	return off, nil
}

// ---- CONNECTION_CLOSE ----

type connectionCloseFrame struct {
	application  bool
	errorCode    uint64
	frameType    uint64 // 0 when not applicable or application == true
	reasonPhrase []byte
}

func newConnectionCloseFrame(errorCode, frameType uint64, reason []byte, application bool) *connectionCloseFrame {
	return &connectionCloseFrame{application: application, errorCode: errorCode, frameType: frameType, reasonPhrase: reason}
}

func (f *connectionCloseFrame) typ() uint64 {
	if f.application {
		return frameTypeApplicationClose
	}
	return frameTypeConnectionClose
}

func (f *connectionCloseFrame) encodedLen() int {
	n := varIntLen(f.typ()) + varIntLen(f.errorCode)
	if !f.application {
		n += varIntLen(f.frameType)
	}
	n += varIntLen(uint64(len(f.reasonPhrase))) + len(f.reasonPhrase)
	return n
}
func (f *connectionCloseFrame) maxEncodedLen() int { return 8*4 + len(f.reasonPhrase) }

func (f *connectionCloseFrame) encode(b []byte) (int, error) {
	need := f.encodedLen()
	if len(b) < need {
		return 0, errShortBuffer
	}
	out := b[:0]
	out = appendVarint(out, f.typ())
	out = appendVarint(out, f.errorCode)
	if !f.application {
		out = appendVarint(out, f.frameType)
	}
	out = appendVarint(out, uint64(len(f.reasonPhrase)))
	off := len(out)
	copy(b[off:], f.reasonPhrase)
	return off + len(f.reasonPhrase), nil
}

func (f *connectionCloseFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b[off:], &typ)
	if n == 0 {
		return 0, incompletef("connection_close type")
	}
	off += n
	f.application = typ == frameTypeApplicationClose
	n = getVarint(b[off:], &f.errorCode)
	if n == 0 {
		return 0, incompletef("connection_close error code")
	}
	off += n
	f.frameType = 0
	if !f.application {
		n = getVarint(b[off:], &f.frameType)
		if n == 0 {
			return 0, incompletef("connection_close frame type")
		}
		off += n
	}
	var length uint64
	n = getVarint(b[off:], &length)
	if n == 0 {
		return 0, incompletef("connection_close reason length")
	}
	off += n
	if uint64(len(b)-off) < length {
		return 0, incompletef("connection_close reason")
	}
	f.reasonPhrase = append([]byte(nil), b[off:off+int(length)]...)
	off += int(length)
	return off, nil
}

// ---- HANDSHAKE_DONE ----

type handshakeDoneFrame struct{}

func (f *handshakeDoneFrame) encodedLen() int    { return 1 }
func (f *handshakeDoneFrame) maxEncodedLen() int { return 1 }

func (f *handshakeDoneFrame) encode(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, errShortBuffer
	}
	b[0] = byte(frameTypeHandshakeDone)
	return 1, nil
}

func (f *handshakeDoneFrame) decode(b []byte) (int, error) {
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 {
		return 0, incompletef("handshake_done")
	}
	return n, nil
}
