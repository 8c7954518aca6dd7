package transport

import (
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, f frame) frame {
	t.Helper()
	buf := make([]byte, f.maxEncodedLen())
	n, err := f.encode(buf)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var typ uint64
	m := getVarint(buf, &typ)
	if m == 0 {
		t.Fatal("could not read back frame type")
	}
	got, decodedLen, err := decodeFrame(typ, buf[:n])
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	if decodedLen != n {
		t.Fatalf("decoded %d bytes, encoded %d", decodedLen, n)
	}
	return got
}

func TestFrameRoundTripPadding(t *testing.T) {
	got := roundTrip(t, newPaddingFrame(4)).(*paddingFrame)
	if got.length != 4 {
		t.Fatalf("length = %d, want 4", got.length)
	}
}

func TestFrameRoundTripPing(t *testing.T) {
	roundTrip(t, &pingFrame{})
}

func TestFrameRoundTripAck(t *testing.T) {
	ranges := []pnRange{{lo: 8, hi: 10}, {lo: 2, hi: 4}, {lo: 0, hi: 0}}
	want := newAckFrame(ranges, 42, nil)
	got := roundTrip(t, want).(*ackFrame)
	gotRanges := got.Ranges()
	for i := range ranges {
		if gotRanges[i] != ranges[i] {
			t.Fatalf("range %d = %+v, want %+v", i, gotRanges[i], ranges[i])
		}
	}
	if got.ackDelay != 42 {
		t.Fatalf("ackDelay = %d, want 42", got.ackDelay)
	}
}

func TestFrameRoundTripAckECN(t *testing.T) {
	ranges := []pnRange{{lo: 0, hi: 5}}
	want := newAckFrame(ranges, 0, &ecnCounts{ect0: 1, ect1: 2, ce: 3})
	got := roundTrip(t, want).(*ackFrame)
	if !got.hasECN() || got.ecn.ect0 != 1 || got.ecn.ect1 != 2 || got.ecn.ce != 3 {
		t.Fatalf("ecn counts not preserved: %+v", got.ecn)
	}
}

func TestFrameRoundTripResetStream(t *testing.T) {
	want := newResetStreamFrame(4, 0x11, 1000)
	got := roundTrip(t, want).(*resetStreamFrame)
	if *got != *want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestFrameRoundTripStopSending(t *testing.T) {
	want := newStopSendingFrame(4, 0x11)
	got := roundTrip(t, want).(*stopSendingFrame)
	if *got != *want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestFrameRoundTripCrypto(t *testing.T) {
	want := newCryptoFrame([]byte("clienthello"), 100)
	got := roundTrip(t, want).(*cryptoFrame)
	if got.offset != 100 || !bytes.Equal(got.data, want.data) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestFrameRoundTripNewToken(t *testing.T) {
	want := newNewTokenFrame([]byte("token-bytes"))
	got := roundTrip(t, want).(*newTokenFrame)
	if !bytes.Equal(got.token, want.token) {
		t.Fatalf("got %q, want %q", got.token, want.token)
	}
}

func TestFrameRoundTripStreamWithOffsetAndFin(t *testing.T) {
	want := newStreamFrame(4, []byte("payload"), 50, true)
	got := roundTrip(t, want).(*streamFrame)
	if got.streamID != 4 || got.offset != 50 || !got.fin || !bytes.Equal(got.data, want.data) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestFrameRoundTripStreamNoOffsetNoFin(t *testing.T) {
	want := newStreamFrame(0, []byte("x"), 0, false)
	got := roundTrip(t, want).(*streamFrame)
	if got.offset != 0 || got.fin {
		t.Fatalf("unexpected offset/fin: %+v", got)
	}
}

func TestFrameRoundTripMaxData(t *testing.T) {
	want := newMaxDataFrame(123456)
	got := roundTrip(t, want).(*maxDataFrame)
	if got.maximumData != 123456 {
		t.Fatalf("got %d, want 123456", got.maximumData)
	}
}

func TestFrameRoundTripMaxStreamData(t *testing.T) {
	want := newMaxStreamDataFrame(7, 9999)
	got := roundTrip(t, want).(*maxStreamDataFrame)
	if got.streamID != 7 || got.maximumData != 9999 {
		t.Fatalf("got %+v", got)
	}
}

func TestFrameRoundTripMaxStreams(t *testing.T) {
	for _, bidi := range []bool{true, false} {
		want := newMaxStreamsFrame(500, bidi)
		got := roundTrip(t, want).(*maxStreamsFrame)
		if got.bidi != bidi || got.maximumStreams != 500 {
			t.Fatalf("got %+v, bidi=%v", got, bidi)
		}
	}
}

func TestFrameRoundTripDataBlocked(t *testing.T) {
	want := newDataBlockedFrame(42)
	got := roundTrip(t, want).(*dataBlockedFrame)
	if got.dataLimit != 42 {
		t.Fatalf("got %d, want 42", got.dataLimit)
	}
}

func TestFrameRoundTripStreamDataBlocked(t *testing.T) {
	want := newStreamDataBlockedFrame(4, 42)
	got := roundTrip(t, want).(*streamDataBlockedFrame)
	if got.streamID != 4 || got.dataLimit != 42 {
		t.Fatalf("got %+v", got)
	}
}

func TestFrameRoundTripStreamsBlocked(t *testing.T) {
	want := newStreamsBlockedFrame(10, true)
	got := roundTrip(t, want).(*streamsBlockedFrame)
	if !got.bidi || got.streamLimit != 10 {
		t.Fatalf("got %+v", got)
	}
}

func TestFrameRoundTripNewConnectionID(t *testing.T) {
	want := &newConnectionIDFrame{sequenceNumber: 3, retirePriorTo: 1, connectionID: []byte{1, 2, 3, 4}}
	got := roundTrip(t, want).(*newConnectionIDFrame)
	if got.sequenceNumber != 3 || got.retirePriorTo != 1 || !bytes.Equal(got.connectionID, want.connectionID) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestFrameRoundTripRetireConnectionID(t *testing.T) {
	want := &retireConnectionIDFrame{sequenceNumber: 5}
	got := roundTrip(t, want).(*retireConnectionIDFrame)
	if got.sequenceNumber != 5 {
		t.Fatalf("got %+v", got)
	}
}

func TestFrameRoundTripPathChallengeResponse(t *testing.T) {
	c := &pathChallengeFrame{data: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}}
	got := roundTrip(t, c).(*pathChallengeFrame)
	if got.data != c.data {
		t.Fatalf("got %+v, want %+v", got.data, c.data)
	}
	r := &pathResponseFrame{data: c.data}
	got2 := roundTrip(t, r).(*pathResponseFrame)
	if got2.data != r.data {
		t.Fatalf("got %+v, want %+v", got2.data, r.data)
	}
}

func TestFrameRoundTripConnectionClose(t *testing.T) {
	want := newConnectionCloseFrame(uint64(ProtocolViolation), uint64(frameTypeStream), []byte("bye"), false)
	got := roundTrip(t, want).(*connectionCloseFrame)
	if got.errorCode != want.errorCode || got.frameType != want.frameType || !bytes.Equal(got.reasonPhrase, want.reasonPhrase) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestFrameRoundTripApplicationClose(t *testing.T) {
	want := newConnectionCloseFrame(7, 0, []byte("done"), true)
	got := roundTrip(t, want).(*connectionCloseFrame)
	if !got.application || got.frameType != 0 {
		t.Fatalf("got %+v", got)
	}
}

func TestFrameRoundTripHandshakeDone(t *testing.T) {
	roundTrip(t, &handshakeDoneFrame{})
}

func TestFrameReaderIteratesMultipleFrames(t *testing.T) {
	buf := make([]byte, 256)
	n1, _ := (&pingFrame{}).encode(buf)
	n2, _ := newMaxDataFrame(10).encode(buf[n1:])
	n3, _ := (&handshakeDoneFrame{}).encode(buf[n1+n2:])
	total := n1 + n2 + n3

	r := newFrameReader(buf[:total])
	var kinds []uint64
	for {
		f, typ, err := r.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if f == nil {
			break
		}
		kinds = append(kinds, typ)
	}
	if len(kinds) != 3 {
		t.Fatalf("got %d frames, want 3", len(kinds))
	}
}

func TestFrameReaderStickyErrorAfterBadFrame(t *testing.T) {
	r := newFrameReader([]byte{0xff, 0xff, 0xff, 0xff})
	_, _, err1 := r.Next()
	if err1 == nil {
		t.Fatal("expected a decode error")
	}
	_, _, err2 := r.Next()
	if err2 != err1 {
		t.Fatalf("expected sticky error to repeat, got %v then %v", err1, err2)
	}
}

func TestFrameAdmissibilityTable(t *testing.T) {
	if !frameAllowedInSpace(frameTypeCrypto, packetSpaceInitial, false) {
		t.Fatal("CRYPTO must be allowed in Initial space")
	}
	if frameAllowedInSpace(frameTypeStream, packetSpaceInitial, false) {
		t.Fatal("STREAM must not be allowed in Initial space")
	}
	if !frameAllowedInSpace(frameTypeStream, packetSpaceApplication, false) {
		t.Fatal("STREAM must be allowed in Application space")
	}
}

// TestFrameAdmissibilityZeroRTT covers the 0-RTT half of the
// Application space's admissibility table (RFC 9000 Table 3): STREAM
// and the like are still admitted, but ACK/CRYPTO/NEW_TOKEN/
// HANDSHAKE_DONE/PATH_RESPONSE are not, since 0-RTT packets cannot
// carry any of those (testable property 11).
func TestFrameAdmissibilityZeroRTT(t *testing.T) {
	if !frameAllowedInSpace(frameTypeStream, packetSpaceApplication, true) {
		t.Fatal("STREAM must be allowed in 0-RTT")
	}
	if !frameAllowedInSpace(frameTypePing, packetSpaceApplication, true) {
		t.Fatal("PING must be allowed in 0-RTT")
	}
	disallowed := []uint64{
		frameTypeAck, frameTypeAckECN, frameTypeCrypto,
		frameTypeNewToken, frameTypeHandshakeDone, frameTypePathResponse,
	}
	for _, typ := range disallowed {
		if frameAllowedInSpace(typ, packetSpaceApplication, true) {
			t.Fatalf("frame type 0x%x must not be allowed in 0-RTT", typ)
		}
	}
	if frameAllowedInSpace(frameTypeCrypto, packetSpaceApplication, true) {
		t.Fatal("CRYPTO must not be allowed in 0-RTT")
	}
}

func TestIsFrameAckEliciting(t *testing.T) {
	cases := map[uint64]bool{
		frameTypePadding:         false,
		frameTypeAck:             false,
		frameTypeAckECN:          false,
		frameTypeConnectionClose: false,
		frameTypePing:            true,
		frameTypeStream:          true,
		frameTypeCrypto:          true,
	}
	for typ, want := range cases {
		if got := isFrameAckEliciting(typ); got != want {
			t.Fatalf("isFrameAckEliciting(0x%x) = %v, want %v", typ, got, want)
		}
	}
}
