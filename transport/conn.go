package transport

import (
	"crypto/tls"
	"time"
)

// connectionState tracks where a Conn sits in the QUIC connection
// lifecycle (RFC 9000 Section 10).
type connectionState uint8

const (
	stateHandshake connectionState = iota
	stateActive
	stateClosing
	stateDraining
	stateClosed
)

const aeadTagLen = 16

// Conn orchestrates the three packet-number spaces, the TLS handshake,
// loss recovery and the stream map into a single QUIC connection. It
// has no knowledge of sockets: callers feed it received datagrams via
// Recv and pull outgoing datagrams via Send.
type Conn struct {
	isClient bool
	version  uint32

	scid  []byte // this endpoint's current connection ID
	dcid  []byte // peer's current connection ID
	odcid []byte // original client-chosen DCID, used for Initial key derivation
	token []byte // Retry token to echo on the client's next Initial, if any

	localParams Parameters
	peerParams  Parameters

	initialKeys *epochKeys
	handshake   *tlsHandshake

	spaces   [packetSpaceCount]*Space
	recovery *lossRecovery

	state              connectionState
	handshakeConfirmed bool

	closeFrame *connectionCloseFrame
	closeSent  bool
	drainUntil int64

	idleTimeoutMillis uint64
	lastActivity      int64

	events []Event

	logEventFn func(LogEvent)
}

// Connect constructs a client-initiated Conn. scid/dcid are the
// connection IDs the client chooses for its first flight; dcid also
// serves as the original DCID used to derive Initial keys (RFC 9001
// Section 5.2).
func Connect(config *Config, scid, dcid []byte, now int64) (*Conn, error) {
	return newConn(true, config, scid, dcid, dcid, now)
}

// Accept constructs a server-side Conn from a client's first Initial
// packet. odcid is the destination connection ID the client chose
// (needed to derive the same Initial keys, and echoed back to the
// client in the original_destination_connection_id transport
// parameter).
func Accept(config *Config, scid, dcid, odcid []byte, now int64) (*Conn, error) {
	return newConn(false, config, scid, dcid, odcid, now)
}

func newConn(isClient bool, config *Config, scid, dcid, odcid []byte, now int64) (*Conn, error) {
	version := config.Version
	if version == 0 {
		version = quicVersion1
	}
	c := &Conn{
		isClient:          isClient,
		version:           version,
		scid:              append([]byte(nil), scid...),
		dcid:              append([]byte(nil), dcid...),
		odcid:             append([]byte(nil), odcid...),
		localParams:       config.Params,
		peerParams:        DefaultParameters(),
		state:             stateHandshake,
		idleTimeoutMillis: config.Params.MaxIdleTimeout,
		lastActivity:      now,
	}
	for i := packetSpace(0); i < packetSpaceCount; i++ {
		c.spaces[i] = newSpace(i, config.Params, isClient)
	}
	c.recovery = newLossRecovery(int64(config.Params.MaxAckDelay), newCongestionController(config.CongestionControl))

	initialKeys, err := deriveInitialEpochKeys(odcid, isClient)
	if err != nil {
		return nil, err
	}
	c.initialKeys = initialKeys

	tlsConf := config.TLS
	if tlsConf == nil {
		tlsConf = &tls.Config{}
	}
	var odcidParam []byte
	if !isClient {
		odcidParam = odcid
	}
	ownParams := encodeTransportParameters(config.Params, c.scid, odcidParam)
	if isClient {
		c.handshake = newClientTLSHandshake(tlsConf, ownParams)
	} else {
		c.handshake = newServerTLSHandshake(tlsConf, ownParams)
	}
	if err := c.handshake.start(); err != nil {
		return nil, err
	}
	if err := c.drainHandshakeOutput(now); err != nil {
		return nil, err
	}
	return c, nil
}

func spaceForTLSLevel(level tls.QUICEncryptionLevel) packetSpace {
	switch level {
	case tls.QUICEncryptionLevelInitial:
		return packetSpaceInitial
	case tls.QUICEncryptionLevelHandshake:
		return packetSpaceHandshake
	default:
		return packetSpaceApplication
	}
}

func tlsLevelForSpace(space packetSpace) tls.QUICEncryptionLevel {
	switch space {
	case packetSpaceInitial:
		return tls.QUICEncryptionLevelInitial
	case packetSpaceHandshake:
		return tls.QUICEncryptionLevelHandshake
	default:
		return tls.QUICEncryptionLevelApplication
	}
}

// drainHandshakeOutput pumps the TLS handshake state machine, moving
// any new outgoing CRYPTO bytes into the matching space's crypto send
// buffer and absorbing newly available peer transport parameters.
func (c *Conn) drainHandshakeOutput(now int64) error {
	outgoing, peerParamsRaw, err := c.handshake.pump()
	if err != nil {
		return err
	}
	for level, data := range outgoing {
		if len(data) == 0 {
			continue
		}
		space := spaceForTLSLevel(level)
		c.spaces[space].pn.cryptoTX.write(data)
	}
	if peerParamsRaw != nil {
		if err := c.applyPeerTransportParameters(peerParamsRaw); err != nil {
			return err
		}
	}
	c.maybeDropInitialKeys()
	if c.handshake.completed && !c.handshakeConfirmed && !c.isClient {
		// The server considers the handshake confirmed as soon as TLS
		// reports completion; the client waits for a HANDSHAKE_DONE frame
		// (RFC 9001 Section 4.1.2).
		c.onHandshakeConfirmed(now)
	}
	return nil
}

func (c *Conn) applyPeerTransportParameters(raw []byte) error {
	dec, err := decodeTransportParameters(raw)
	if err != nil {
		return err
	}
	if c.isClient && dec.hasOriginalDestinationCID && !bytesEqual(dec.originalDestinationCID, c.odcid) {
		return newError(TransportParameterError, "original_destination_connection_id mismatch")
	}
	c.peerParams = dec.params
	app := c.spaces[packetSpaceApplication]
	app.streams.onMaxStreams(dec.params.InitialMaxStreamsBidi, true)
	app.streams.onMaxStreams(dec.params.InitialMaxStreamsUni, false)
	app.flow.onMaxData(dec.params.InitialMaxData)
	return nil
}

// maybeDropInitialKeys discards the Initial space (RFC 9001 Section
// 4.9.1): a client does so once it has sent its first Handshake packet,
// a server once it has received its first Handshake packet.
func (c *Conn) maybeDropInitialKeys() {
	if c.spaces[packetSpaceInitial].pn.dropped {
		return
	}
	hs := &c.spaces[packetSpaceHandshake].pn
	if (c.isClient && hs.nextPN > 0) || (!c.isClient && hs.received.largestSeen != invalidPN) {
		c.dropSpace(packetSpaceInitial)
	}
}

func (c *Conn) dropSpace(space packetSpace) {
	sp := c.spaces[space]
	if sp.pn.dropped {
		return
	}
	sp.pn.dropped = true
	discarded := 0
	for _, p := range sp.pn.sent.packets {
		if p.inFlight {
			discarded += p.sentBytes
		}
	}
	sp.pn.sent = sentPacketList{}
	c.recovery.dropSpace(space, discarded)
}

func (c *Conn) onHandshakeConfirmed(now int64) {
	c.handshakeConfirmed = true
	if c.state == stateHandshake {
		c.state = stateActive
	}
	if !c.spaces[packetSpaceHandshake].pn.dropped {
		c.dropSpace(packetSpaceHandshake)
	}
	if !c.isClient {
		c.spaces[packetSpaceApplication].queueReliable(&handshakeDoneFrame{})
	}
	c.addEvent(newHandshakeCompleteEvent())
}

// Recv ingests one UDP datagram, which may carry several coalesced
// QUIC packets, and feeds any CRYPTO bytes discovered into the TLS
// handshake.
func (c *Conn) Recv(b []byte, now int64) (int, error) {
	total := 0
	for len(b) > 0 {
		n, dirty, err := c.recvOnePacket(b, now)
		if err != nil {
			if isIncomplete(err) {
				break
			}
			c.closeLocally(now, errorCodeOf(err), false)
			return total, err
		}
		if n <= 0 {
			break
		}
		b = b[n:]
		total += n
		if dirty {
			if err := c.drainHandshakeOutput(now); err != nil {
				return total, err
			}
		}
	}
	if total > 0 {
		c.lastActivity = now
	}
	return total, nil
}

func errorCodeOf(err error) uint64 {
	switch e := err.(type) {
	case *Error:
		return uint64(e.Code)
	case *StreamError:
		return uint64(e.Code)
	case *FrameError:
		return uint64(e.Code)
	default:
		return uint64(InternalError)
	}
}

// recvOnePacket decodes, decrypts and processes a single packet at the
// front of b, returning how many bytes of b it consumed and whether
// handshake CRYPTO data was delivered (so the caller pumps the TLS state
// machine before the next coalesced packet, whose keys it may install).
func (c *Conn) recvOnePacket(b []byte, now int64) (int, bool, error) {
	p := &packet{}
	p.header.dcil = uint8(len(c.scid))
	if _, err := p.decodeHeader(b); err != nil {
		return 0, false, err
	}

	if p.typ == packetTypeVersionNegotiation || p.typ == packetTypeRetry {
		c.logPacketDropped(now, p.typ.String())
		return len(b), false, nil
	}
	if p.header.version != 0 && !versionSupported(p.header.version) {
		c.logPacketDropped(now, "unsupported_version")
		return len(b), false, nil
	}
	if p.typ == packetTypeZeroRTT {
		// 0-RTT key derivation and replay protection are not implemented;
		// 0-RTT packets are acknowledged as unsupported and dropped.
		c.logPacketDropped(now, "zero_rtt_unsupported")
		return len(b), false, nil
	}

	if _, err := p.decodeBody(b); err != nil {
		return 0, false, err
	}
	total := p.headerLen + p.payloadLen
	if total > len(b) {
		return 0, false, incompletef("packet body")
	}
	pktBytes := b[:total]

	space := spaceFromPacketType(p.typ)
	keys := c.readKeysForSpace(space)
	if keys == nil {
		c.logPacketDropped(now, "keys_unavailable")
		return total, false, nil
	}

	longHeader := p.typ != packetTypeShort
	pnOffset := p.headerLen
	pnLen, err := removeHeaderProtection(pktBytes, pnOffset, keys, longHeader)
	if err != nil {
		c.logPacketDropped(now, "header_protection_failed")
		return total, false, nil
	}

	var truncated uint64
	for i := 0; i < pnLen; i++ {
		truncated = truncated<<8 | uint64(pktBytes[pnOffset+i])
	}
	pnSpace := &c.spaces[space].pn
	fullPN := decodePacketNumber(pnSpace.received.largestSeen, truncated, pnLen)

	if pnSpace.received.contains(fullPN) {
		c.logPacketDropped(now, "duplicate")
		return total, false, nil
	}

	aad := pktBytes[:pnOffset+pnLen]
	ciphertext := pktBytes[pnOffset+pnLen:]
	plaintext, err := keys.open(nil, ciphertext, aad, fullPN)
	if err != nil {
		c.logPacketDropped(now, "aead_open_failed")
		return total, false, nil
	}

	p.packetNumber = fullPN
	c.logPacketReceived(now, p)
	if c.isClient && p.typ == packetTypeInitial && bytesEqual(c.dcid, c.odcid) {
		// Switch to the connection ID the server chose (RFC 9000 Section 7.2).
		c.dcid = append([]byte(nil), p.header.scid...)
	}

	ackEliciting := false
	handshakeDirty := false
	r := newFrameReader(plaintext)
	for {
		f, typ, err := r.Next()
		if err != nil {
			return total, handshakeDirty, frameErrorf(FrameEncodingError, typ, "%v", err)
		}
		if f == nil {
			break
		}
		isZeroRTT := p.typ == packetTypeZeroRTT
		if !frameAllowedInSpace(typ, space, isZeroRTT) {
			context := space.String()
			if isZeroRTT {
				context = "0-RTT"
			}
			return total, handshakeDirty, wrongFrame(typ, context)
		}
		if isFrameAckEliciting(typ) {
			ackEliciting = true
		}
		dirty, err := c.processFrame(f, space, now)
		if err != nil {
			return total, handshakeDirty, err
		}
		handshakeDirty = handshakeDirty || dirty
	}

	pnSpace.onPacketReceived(fullPN, now, ackEliciting)
	return total, handshakeDirty, nil
}

func (c *Conn) readKeysForSpace(space packetSpace) *packetProtectionKeys {
	switch space {
	case packetSpaceInitial:
		if c.initialKeys == nil {
			return nil
		}
		return c.initialKeys.read
	case packetSpaceHandshake:
		return c.handshake.handshakeKeys.read
	default:
		return c.handshake.oneRTTKeys.read
	}
}

func (c *Conn) writeKeysForSpace(space packetSpace) *packetProtectionKeys {
	switch space {
	case packetSpaceInitial:
		if c.initialKeys == nil {
			return nil
		}
		return c.initialKeys.write
	case packetSpaceHandshake:
		return c.handshake.handshakeKeys.write
	default:
		return c.handshake.oneRTTKeys.write
	}
}

// processFrame applies one decoded frame's effect to connection state.
// It returns whether handshake CRYPTO data was delivered, so Recv knows
// to pump the TLS state machine once the datagram is fully processed.
func (c *Conn) processFrame(f frame, space packetSpace, now int64) (bool, error) {
	c.logFrameProcessed(now, f)
	switch fr := f.(type) {
	case *paddingFrame, *pingFrame:
		return false, nil

	case *ackFrame:
		pnSpace := &c.spaces[space].pn
		res, err := c.recovery.onAckReceived(pnSpace, fr, now, c.handshakeConfirmed)
		if err != nil {
			return false, err
		}
		for _, p := range res.ackedPackets {
			for _, pf := range p.frames {
				c.onFrameAcked(pf, space)
			}
			// Our own previously-sent ACK frame has itself now been
			// acknowledged: the peer has seen every range it covered,
			// so stop re-advertising them (spec.md Section 4.3's ACK
			// echoing discipline, testable property 12).
			if pnSpace.lastAckSentPN != invalidPN && p.pn == pnSpace.lastAckSentPN {
				pnSpace.received.removeUntil(pnSpace.lastAckSentUpTo)
				pnSpace.lastAckSentPN = invalidPN
			}
		}
		for _, p := range res.lostPackets {
			for _, pf := range p.frames {
				c.onFrameLost(pf, space)
			}
		}
		c.maybeDropInitialKeys()
		return false, nil

	case *cryptoFrame:
		level := tlsLevelForSpace(space)
		if err := c.spaces[space].pn.cryptoRX.write(fr.offset, fr.data, false); err != nil {
			return false, err
		}
		var buf [4096]byte
		for {
			n, rerr := c.spaces[space].pn.cryptoRX.read(buf[:])
			if n == 0 {
				break
			}
			if err := c.handshake.provideData(level, buf[:n]); err != nil {
				return false, err
			}
			if rerr != nil {
				break
			}
		}
		return true, nil

	case *streamFrame:
		st, err := c.spaces[packetSpaceApplication].streams.getOrCreatePeer(fr.streamID)
		if err != nil {
			return false, err
		}
		end := fr.offset + uint64(len(fr.data))
		if prev := st.recv.highestSeen; end > prev {
			flow := c.spaces[packetSpaceApplication].flow
			if err := flow.onBytesReceived(flow.recvUsed + (end - prev)); err != nil {
				return false, err
			}
		}
		if err := st.receive(fr.offset, fr.data, fr.fin); err != nil {
			return false, err
		}
		c.addEvent(newStreamReadableEvent(fr.streamID))
		return false, nil

	case *resetStreamFrame:
		st, err := c.spaces[packetSpaceApplication].streams.getOrCreatePeer(fr.streamID)
		if err != nil {
			return false, err
		}
		if err := st.onReceiveReset(fr.errorCode, fr.finalSize); err != nil {
			return false, err
		}
		c.addEvent(newStreamResetEvent(fr.streamID, fr.errorCode, fr.finalSize))
		return false, nil

	case *stopSendingFrame:
		if st, ok := c.spaces[packetSpaceApplication].streams.get(fr.streamID); ok {
			finalSize := st.send.base + uint64(len(st.send.data))
			st.onResetSent()
			c.spaces[packetSpaceApplication].queueReliable(newResetStreamFrame(fr.streamID, fr.errorCode, finalSize))
		}
		c.addEvent(newStreamStopSendingEvent(fr.streamID, fr.errorCode))
		return false, nil

	case *newTokenFrame:
		return false, nil

	case *maxDataFrame:
		c.spaces[packetSpaceApplication].flow.onMaxData(fr.maximumData)
		return false, nil

	case *maxStreamDataFrame:
		if st, ok := c.spaces[packetSpaceApplication].streams.get(fr.streamID); ok {
			st.sendFlow.onMaxStreamData(fr.maximumData)
		}
		return false, nil

	case *maxStreamsFrame:
		c.spaces[packetSpaceApplication].streams.onMaxStreams(fr.maximumStreams, fr.bidi)
		return false, nil

	case *dataBlockedFrame, *streamDataBlockedFrame, *streamsBlockedFrame:
		return false, nil

	case *newConnectionIDFrame, *retireConnectionIDFrame, *pathChallengeFrame, *pathResponseFrame:
		// Connection ID issuance and path validation are not modeled by
		// this core; these frames are accepted (so the peer does not see
		// a protocol violation) and otherwise ignored.
		return false, nil

	case *connectionCloseFrame:
		c.enterDraining(now, fr.errorCode, fr.application)
		return false, nil

	case *handshakeDoneFrame:
		if !c.isClient {
			return false, newError(ProtocolViolation, "server received HANDSHAKE_DONE")
		}
		if !c.handshakeConfirmed {
			c.onHandshakeConfirmed(now)
		}
		return false, nil
	}
	return false, nil
}

func frameIsAckEliciting(f frame) bool {
	switch f.(type) {
	case *paddingFrame, *ackFrame, *connectionCloseFrame:
		return false
	default:
		return true
	}
}

func (c *Conn) onFrameAcked(f frame, space packetSpace) {
	switch fr := f.(type) {
	case *cryptoFrame:
		c.spaces[space].pn.cryptoTX.onAcked(fr.offset, fr.offset+uint64(len(fr.data)))
	case *streamFrame:
		if st, ok := c.spaces[packetSpaceApplication].streams.get(fr.streamID); ok {
			st.onStreamDataAcked(fr.offset, fr.offset+uint64(len(fr.data)))
		}
	case *resetStreamFrame:
		if st, ok := c.spaces[packetSpaceApplication].streams.get(fr.streamID); ok {
			st.onResetAcked()
		}
	}
}

func (c *Conn) onFrameLost(f frame, space packetSpace) {
	switch fr := f.(type) {
	case *cryptoFrame:
		c.spaces[space].pn.cryptoTX.onLost(fr.offset, fr.offset+uint64(len(fr.data)))
	case *streamFrame:
		if st, ok := c.spaces[packetSpaceApplication].streams.get(fr.streamID); ok {
			st.onStreamDataLost(fr.offset, fr.offset+uint64(len(fr.data)))
		}
	case *paddingFrame, *pingFrame, *ackFrame, *pathChallengeFrame, *pathResponseFrame:
		// never retransmitted
	default:
		if isReliableFrame(f) {
			c.spaces[space].queueReliable(f)
		}
	}
}

func (c *Conn) enterDraining(now int64, errorCode uint64, app bool) {
	if c.state == stateDraining || c.state == stateClosed {
		return
	}
	c.state = stateDraining
	c.drainUntil = now + 3*c.recovery.rtt.pto()
	c.addEvent(newConnClosedEvent(errorCode, app, true))
}

// closeLocally transitions to the closing state after a locally
// detected protocol violation or an application-requested close.
func (c *Conn) closeLocally(now int64, errorCode uint64, app bool) {
	if c.state == stateClosing || c.state == stateDraining || c.state == stateClosed {
		return
	}
	c.closeFrame = newConnectionCloseFrame(errorCode, 0, nil, app)
	c.state = stateClosing
	c.drainUntil = now + 3*c.recovery.rtt.pto()
	c.addEvent(newConnClosedEvent(errorCode, app, false))
}

// Close begins the connection's closing handshake with the given
// application or transport error code (RFC 9000 Section 10.2).
func (c *Conn) Close(errorCode uint64, app bool, reason string, now int64) {
	c.closeLocally(now, errorCode, app)
	c.closeFrame = newConnectionCloseFrame(errorCode, 0, []byte(reason), app)
}

// Send fills out with the next outgoing datagram, coalescing packets
// from whichever spaces currently have write keys, and returns the
// number of bytes written (0 if there is nothing to send right now).
func (c *Conn) Send(out []byte, now int64) (int, error) {
	if c.state == stateClosing {
		n := c.sendClose(out, now)
		if n > 0 {
			c.closeSent = true
			c.state = stateDraining
		}
		return n, nil
	}
	if c.state == stateDraining || c.state == stateClosed {
		return 0, nil
	}

	off := 0
	for space := packetSpace(0); space < packetSpaceCount; space++ {
		if c.spaces[space].pn.dropped {
			continue
		}
		padTo := 0
		if c.isClient && space == packetSpaceInitial && off == 0 {
			padTo = MinInitialPacketSize
		}
		n, err := c.writeSpace(space, now, out[off:], padTo)
		if err != nil {
			return off, err
		}
		off += n
	}
	return off, nil
}

func (c *Conn) sendClose(out []byte, now int64) int {
	for space := packetSpaceApplication; ; space-- {
		if !c.spaces[space].pn.dropped && c.writeKeysForSpace(space) != nil {
			frames := []frame{c.closeFrame}
			n, err := c.buildPacket(space, frames, false, false, now, out, 0)
			if err == nil && n > 0 {
				return n
			}
		}
		if space == packetSpaceInitial {
			break
		}
	}
	return 0
}

// writeSpace fills out with at most one packet's worth of data for
// space: an ACK (if owed), queued reliable control frames, pending
// CRYPTO bytes, and (Application space only) pending STREAM data,
// bounded by the congestion window.
func (c *Conn) writeSpace(space packetSpace, now int64, out []byte, padTo int) (int, error) {
	if c.writeKeysForSpace(space) == nil {
		return 0, nil
	}
	sp := c.spaces[space]

	const hdrOverheadEstimate = 32
	budget := len(out)
	if budget > MaxPacketSize {
		budget = MaxPacketSize
	}
	payloadBudget := budget - hdrOverheadEstimate - aeadTagLen
	if payloadBudget <= 0 {
		return 0, nil
	}

	var frames []frame
	used := 0
	if ack := sp.maybeGenAck(now, payloadBudget); ack != nil {
		frames = append(frames, ack)
		used += ack.encodedLen()
	}
	for _, f := range sp.drainReliable(payloadBudget - used) {
		frames = append(frames, f)
		used += f.encodedLen()
	}

	ccBudget := payloadBudget - used
	if avail := int(c.recovery.cc.cwnd()) - int(c.recovery.cc.bytesInFlight()); avail < ccBudget {
		ccBudget = avail
	}
	if ccBudget < 0 {
		ccBudget = 0
	}

	if ccBudget > 0 {
		if data, crOffset, _, ok := sp.pn.cryptoTX.nextPending(uint64(ccBudget)); ok {
			cf := newCryptoFrame(data, crOffset)
			frames = append(frames, cf)
			used += cf.encodedLen()
			ccBudget -= cf.encodedLen()
		}
	}

	if space == packetSpaceApplication && ccBudget > 0 {
		connAvail := sp.flow.available()
		if connAvail < uint64(ccBudget) {
			ccBudget = int(connAvail)
		}
		for _, f := range sp.appendStreamFrames(ccBudget) {
			frames = append(frames, f)
			used += f.encodedLen()
			if sf, ok := f.(*streamFrame); ok {
				sp.flow.consumeSend(uint64(len(sf.data)))
			}
		}
	}

	if len(frames) == 0 && padTo == 0 {
		return 0, nil
	}
	if len(frames) == 0 {
		frames = append(frames, &pingFrame{})
	}
	ackEliciting := false
	for _, f := range frames {
		if frameIsAckEliciting(f) {
			ackEliciting = true
		}
	}

	return c.buildPacket(space, frames, ackEliciting, true, now, out, padTo)
}

// buildPacket encodes, protects and records one outgoing packet
// carrying frames in space.
func (c *Conn) buildPacket(space packetSpace, frames []frame, ackEliciting, inFlight bool, now int64, out []byte, padTo int) (int, error) {
	keys := c.writeKeysForSpace(space)
	if keys == nil {
		return 0, nil
	}
	pnSpace := &c.spaces[space].pn
	pn := pnSpace.allocatePN()
	pnLen := pnLengthForDelta(pn, pnSpace.largestAckedByPeer)

	used := 0
	for _, f := range frames {
		used += f.encodedLen()
	}
	// The header-protection sample starts 4 bytes past the packet number,
	// so a shorter payload is padded out with PADDING (zero) bytes.
	plainLen := used
	if pnLen+plainLen < 4 {
		plainLen = 4 - pnLen
	}

	p := &packet{
		typ:             packetTypeFromSpace(space),
		header:          packetHeader{version: c.version, dcid: c.dcid, scid: c.scid},
		packetNumber:    pn,
		packetNumberLen: pnLen,
		token:           c.token,
	}
	longHeader := p.typ != packetTypeShort
	if longHeader {
		p.payloadLen = pnLen + plainLen + aeadTagLen
	}

	hdrBuf := make([]byte, p.encodedLen())
	hn, err := p.encode(hdrBuf)
	if err != nil {
		return 0, err
	}

	if longHeader && padTo > 0 {
		target := hn + plainLen + aeadTagLen
		if target < padTo {
			plainLen += padTo - target
			// Padding changes payloadLen's numeric value but not its
			// encoded width (length fields always use the 2-byte VarInt
			// class, see appendVarintFixed), so the header is re-encoded
			// into the same buffer at the same length hn.
			p.payloadLen = pnLen + plainLen + aeadTagLen
			hn2, err := p.encode(hdrBuf)
			if err != nil {
				return 0, err
			}
			hn = hn2
		}
	}
	pnOffset := hn - pnLen

	plaintext := make([]byte, plainLen)
	if n, err := encodeFrames(plaintext, frames); err != nil {
		return 0, err
	} else if used > n {
		return 0, newError(InternalError, "frame encode underrun")
	}

	if len(out) < hn+plainLen+aeadTagLen {
		return 0, errShortBuffer
	}
	copy(out, hdrBuf[:hn])
	ciphertext := keys.seal(out[:hn], plaintext, hdrBuf[:hn], pn)
	total := len(ciphertext)

	if err := applyHeaderProtection(out[:total], pnOffset, pnLen, keys, longHeader); err != nil {
		return 0, err
	}

	p.packetNumber = pn
	c.logPacketSent(now, p, frames)

	c.recovery.onPacketSent(pnSpace, sentPacket{
		pn:           pn,
		sentTime:     now,
		sentBytes:    total,
		ackEliciting: ackEliciting,
		inFlight:     inFlight,
		frames:       frames,
	}, now)
	return total, nil
}

// NextTimeout returns the next absolute tick at which OnTimeout should
// be called, or 0 if no timer is currently armed.
func (c *Conn) NextTimeout(now int64) int64 {
	if c.state == stateDraining || c.state == stateClosing {
		return c.drainUntil
	}
	best := int64(0)
	if t, _ := c.recovery.earliestLossTime(); t != 0 {
		best = t
	}
	for space := packetSpace(0); space < packetSpaceCount; space++ {
		hasInFlight := !c.spaces[space].pn.sent.empty()
		if d := c.recovery.ptoDeadline(space, hasInFlight); d != 0 && (best == 0 || d < best) {
			best = d
		}
	}
	if c.idleTimeoutMillis > 0 {
		idle := c.lastActivity + int64(c.idleTimeoutMillis)
		if best == 0 || idle < best {
			best = idle
		}
	}
	return best
}

// OnTimeout must be called once NextTimeout's deadline has passed.
func (c *Conn) OnTimeout(now int64) {
	if c.state == stateDraining || c.state == stateClosing {
		if now >= c.drainUntil {
			c.state = stateClosed
		}
		return
	}
	if c.idleTimeoutMillis > 0 && now >= c.lastActivity+int64(c.idleTimeoutMillis) {
		c.state = stateClosed
		c.addEvent(newConnClosedEvent(uint64(NoError), false, false))
		return
	}

	if lossTime, space := c.recovery.earliestLossTime(); lossTime != 0 && now >= lossTime {
		lost := c.recovery.detectAndRemoveLostPackets(&c.spaces[space].pn, now)
		for _, p := range lost {
			for _, f := range p.frames {
				c.onFrameLost(f, space)
			}
		}
		return
	}

	ptoSpace := packetSpace(packetSpaceCount)
	ptoDeadline := int64(0)
	for space := packetSpace(0); space < packetSpaceCount; space++ {
		hasInFlight := !c.spaces[space].pn.sent.empty()
		if d := c.recovery.ptoDeadline(space, hasInFlight); d != 0 && now >= d && (ptoDeadline == 0 || d < ptoDeadline) {
			ptoDeadline = d
			ptoSpace = space
		}
	}
	if ptoSpace < packetSpaceCount {
		c.recovery.onLossDetectionTimeout()
		c.spaces[ptoSpace].queueReliable(&pingFrame{})
	}
}

// IsEstablished reports whether the handshake has completed.
func (c *Conn) IsEstablished() bool { return c.handshakeConfirmed }

// IsClosed reports whether the connection has finished draining.
func (c *Conn) IsClosed() bool { return c.state == stateClosed }

// Events drains and returns pending notifications.
func (c *Conn) Events() []Event {
	ev := c.events
	c.events = nil
	return ev
}

func (c *Conn) addEvent(e Event) { c.events = append(c.events, e) }

// OpenStream allocates a new locally-initiated stream.
func (c *Conn) OpenStream(bidi bool) (*Stream, error) {
	return c.spaces[packetSpaceApplication].streams.openLocal(bidi)
}

// Stream looks up an existing stream by ID.
func (c *Conn) Stream(id uint64) (*Stream, bool) {
	return c.spaces[packetSpaceApplication].streams.get(id)
}

// OnLogEvent installs a callback invoked for every qlog-style event the
// connection produces (see log.go).
func (c *Conn) OnLogEvent(fn func(LogEvent)) { c.logEventFn = fn }

func (c *Conn) logPacketReceived(now int64, p *packet) {
	if c.logEventFn == nil {
		return
	}
	c.logEventFn(newLogEventPacket(c.asTime(now), logEventPacketReceived, p))
}

func (c *Conn) logPacketSent(now int64, p *packet, frames []frame) {
	if c.logEventFn == nil {
		return
	}
	tm := c.asTime(now)
	c.logEventFn(newLogEventPacket(tm, logEventPacketSent, p))
	for _, f := range frames {
		c.logEventFn(newLogEventFrame(tm, logEventFramesProcessed, f))
	}
}

func (c *Conn) logPacketDropped(now int64, reason string) {
	if c.logEventFn == nil {
		return
	}
	e := newLogEvent(c.asTime(now), logEventPacketDropped)
	e.addField("reason", reason)
	c.logEventFn(e)
}

func (c *Conn) logFrameProcessed(now int64, f frame) {
	if c.logEventFn == nil {
		return
	}
	c.logEventFn(newLogEventFrame(c.asTime(now), logEventFramesProcessed, f))
}

// asTime converts the tick-based clock this package uses internally
// back into a wall-clock time.Time purely for log output.
func (c *Conn) asTime(ticks int64) time.Time {
	return time.UnixMilli(ticks)
}

// ConnStats is a read-only snapshot of a Conn's congestion-control and
// RTT state, exported for metrics collectors (a Conn has no other
// reason to expose its recovery internals).
type ConnStats struct {
	Cwnd              uint64
	BytesInFlight     uint64
	SmoothedRTTMillis int64
	PTOCount          int
	HandshakeDone     bool
}

// Stats returns the current congestion/RTT snapshot.
func (c *Conn) Stats() ConnStats {
	return ConnStats{
		Cwnd:              c.recovery.cc.cwnd(),
		BytesInFlight:     c.recovery.cc.bytesInFlight(),
		SmoothedRTTMillis: c.recovery.rtt.smoothedRTT,
		PTOCount:          c.recovery.ptoCount,
		HandshakeDone:     c.handshakeConfirmed,
	}
}

// StreamCount returns the number of streams currently tracked in the
// Application space.
func (c *Conn) StreamCount() int {
	return len(c.spaces[packetSpaceApplication].streams.streams)
}
