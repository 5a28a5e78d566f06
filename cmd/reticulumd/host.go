package main

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rns-go/reticulum/announce"
	"github.com/rns-go/reticulum/identity"
	"github.com/rns-go/reticulum/link"
	"github.com/rns-go/reticulum/packet"
	"github.com/rns-go/reticulum/resource"
	"github.com/rns-go/reticulum/transport"
)

// Context bytes demultiplex what travels inside an ACTIVE link's encrypted
// payload. The wire packet's own context byte is generic (spec.md §3); this
// small scheme is the reference host's own application-layer convention for
// telling a plain chat message apart from a resource-transfer frame inside
// the same link.
const (
	ctxMessage byte = iota
	ctxResourceAdvertisement
	ctxResourcePart
	ctxResourceAck
	ctxResourceProof
	ctxIdentify
	ctxAppData
)

// resourceMDU is the largest resource-part payload that still fits inside a
// TypeData packet once every layer of framing and encryption around it is
// accounted for. A part payload travels as:
//
//	packResourcePart:   resourceID(16) + index(4) + payload        = payload + 20
//	frameWithSeq:       seq(8) + that                              = payload + 28
//	EncryptToken:       IV(16) + AES-CBC(pad to 16) + HMAC(32)     = + up to 64
//
// and the resulting token is the packet payload, which packet.Unpack rejects
// above MaxEncryptedDataUnit. Sizing for the worst-case 16 bytes of PKCS7
// padding: payload <= MaxEncryptedDataUnit - 28 - 64, rounded down to a
// whole AES block.
const resourceMDU = (packet.MaxEncryptedDataUnit - 28 - 64) / 16 * 16

// ifaceWriter is the narrow surface the host needs from a network interface.
type ifaceWriter interface {
	Send(frame []byte) error
}

// linkState is the host's bookkeeping for one link: the pure link.Link value
// plus the interface it was established over and any resource transfers
// riding on it (spec.md §3 "each active link owns ... any resources
// transferring over it").
type linkState struct {
	l         *link.Link
	ifaceID   string
	senders   map[[identity.HashLen]byte]*resource.Sender
	receivers map[[identity.HashLen]byte]*resource.Receiver

	// responderEphPub is the responder's ephemeral handshake public key,
	// known to both sides once the handshake completes; it is the value an
	// Identify exchange binds its signature to (spec.md §4.3 "a signature
	// over link_id || responder_pubkey").
	responderEphPub [32]byte

	// activeCh is closed exactly once, the moment the link's handshake
	// completes, so a caller blocked in DialApp can wait on it without
	// holding the host's lock.
	activeCh     chan struct{}
	activeClosed bool

	// appData carries ctxAppData payloads out to whatever is reading this
	// link as a generic byte stream (e.g. a SOCKS client connection). It is
	// bounded: a slow reader sheds new frames rather than blocking the
	// driver goroutine that dispatches them.
	appData chan []byte
}

func newLinkState(l *link.Link, ifaceID string) *linkState {
	return &linkState{
		l:         l,
		ifaceID:   ifaceID,
		senders:   make(map[[identity.HashLen]byte]*resource.Sender),
		receivers: make(map[[identity.HashLen]byte]*resource.Receiver),
		activeCh:  make(chan struct{}),
		appData:   make(chan []byte, 64),
	}
}

func (ls *linkState) markActiveCh() {
	if !ls.activeClosed {
		ls.activeClosed = true
		close(ls.activeCh)
	}
}

// pendingRequest tracks an initiator-side handshake between sending a
// LINKREQUEST and binding its link_id once the packet hash is known.
type pendingRequest struct {
	hs      *link.InitiatorHandshake
	ifaceID string
}

// Host is the reference driver described in spec.md §5: it owns the
// transport engine single-threadedly, drives links and resources, and
// dispatches the actions they return to interface writers. Host itself
// performs I/O (interface Send, logging) but the core packages it wires
// together never do.
type Host struct {
	mu sync.Mutex

	id       *identity.Identity
	destHash [identity.HashLen]byte
	nameHash [identity.NameHashLen]byte
	ratchet  *link.Ratchet

	engine     *transport.Engine
	interfaces map[string]ifaceWriter
	links      map[[identity.HashLen]byte]*linkState
	pending    map[[identity.HashLen]byte]*pendingRequest

	logger *slog.Logger
}

// NewHost creates a reference host bound to id and advertising the
// destination named by aspects (e.g. "reticulum", "reference").
func NewHost(id *identity.Identity, isRouter bool, logger *slog.Logger, aspects ...string) (*Host, error) {
	nameHash := identity.NameHash(aspects...)
	destHash := identity.DestinationHash(nameHash, id.Hash())

	// Self-ECDH (id's own private key against its own public key) yields a
	// secret only the identity's owner can compute, used to seed the
	// ratchet chain without needing a dedicated private-key accessor.
	selfShared, err := id.ECDHWith(id.X25519Pub)
	if err != nil {
		return nil, fmt.Errorf("new host: derive ratchet chain secret: %w", err)
	}
	chainSecret := identity.HMACSHA256(selfShared[:], []byte("reticulum-ratchet-chain"))

	h := &Host{
		id:         id,
		destHash:   destHash,
		nameHash:   nameHash,
		ratchet:    link.NewRatchet(chainSecret, link.DefaultRatchetPeriod),
		engine:     transport.New(id.Hash(), isRouter),
		interfaces: make(map[string]ifaceWriter),
		links:      make(map[[identity.HashLen]byte]*linkState),
		pending:    make(map[[identity.HashLen]byte]*pendingRequest),
		logger:     logger,
	}
	h.engine.RegisterDestination(destHash, packet.DestSingle)
	return h, nil
}

// RegisterInterface adds a network interface the engine may route over.
func (h *Host) RegisterInterface(id string, w ifaceWriter, nominalBPS float64, mtu int, mode transport.Mode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interfaces[id] = w
	h.engine.RegisterInterface(id, nominalBPS, mtu, mode)
}

// Inbound feeds one received frame through the engine and dispatches the
// resulting actions.
func (h *Host) Inbound(frame []byte, ifaceID string, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.apply(h.engine.Inbound(frame, ifaceID, now), now)
}

// Tick runs periodic maintenance across the engine and every link/resource
// it owns (spec.md §5 "timer: periodic tick(now)").
func (h *Host) Tick(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.apply(h.engine.Tick(now), now)

	for linkID, ls := range h.links {
		for _, a := range ls.l.Tick(now) {
			h.applyLinkAction(ls, linkID, a, now)
		}
		if ls.l.State == link.StateClosed {
			h.closeLink(linkID, resource.FailureLinkClosed)
			continue
		}
		for resID, s := range ls.senders {
			for _, a := range s.Tick(now, ls.l.RTTEstimate) {
				h.applyResourceSendAction(ls, linkID, resID, a, now)
			}
		}
	}

	for linkID := range h.pending {
		if ls, ok := h.links[linkID]; !ok || ls.l.State == link.StateClosed {
			delete(h.pending, linkID)
		}
	}
}

// Announce builds and floods a signed announcement for this host's
// destination, advertising the current ratchet key (spec.md §4.3).
func (h *Host) Announce(now time.Time, appData []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ratchetPub, err := h.ratchet.CurrentPub(now)
	if err != nil {
		return fmt.Errorf("announce: %w", err)
	}
	ann, err := announce.Build(h.id, h.nameHash, &ratchetPub, appData)
	if err != nil {
		return fmt.Errorf("announce: %w", err)
	}
	p := &packet.Packet{
		Header:   packet.HeaderDirect,
		DestType: packet.DestSingle,
		DestHash: h.destHash,
	}
	h.apply(h.engine.Announce(ann, p, now), now)
	return nil
}

// OpenLink sends a LINKREQUEST toward destHash over ifaceID.
func (h *Host) OpenLink(destHash [identity.HashLen]byte, ifaceID string, now time.Time) ([identity.HashLen]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var zero [identity.HashLen]byte
	l, hs, err := link.NewInitiator(now)
	if err != nil {
		return zero, fmt.Errorf("open link: %w", err)
	}

	p := &packet.Packet{
		Header:     packet.HeaderDirect,
		DestType:   packet.DestSingle,
		PacketType: packet.TypeLinkRequest,
		DestHash:   destHash,
		Payload:    hs.RequestPayload(),
	}
	linkID := p.Hash()
	l.BindInitiatorRequest(hs, linkID)

	h.engine.RegisterPendingLink(linkID, ifaceID, now)
	h.pending[linkID] = &pendingRequest{hs: hs, ifaceID: ifaceID}
	h.links[linkID] = newLinkState(l, ifaceID)

	h.apply(h.engine.Outbound(p, ifaceID, now), now)
	return linkID, nil
}

// SendMessage encrypts and transmits a plain chat-style message over an
// ACTIVE link.
func (h *Host) SendMessage(linkID [identity.HashLen]byte, msg []byte, now time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ls, ok := h.links[linkID]
	if !ok {
		return fmt.Errorf("send message: no such link")
	}
	return h.sendOverLink(ls, linkID, ctxMessage, msg, now)
}

// SendFile starts a resource transfer of data over an ACTIVE link.
func (h *Host) SendFile(linkID [identity.HashLen]byte, data []byte, compress bool, now time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ls, ok := h.links[linkID]
	if !ok {
		return fmt.Errorf("send file: no such link")
	}

	hash := identity.SHA256Sum(data)
	resourceID := identity.Trunc16(linkID[:], hash[:])

	sender, err := resource.NewSender(resourceID, data, resourceMDU, compress)
	if err != nil {
		return fmt.Errorf("send file: %w", err)
	}
	ls.senders[resourceID] = sender
	for _, a := range sender.Advertise() {
		h.applyResourceSendAction(ls, linkID, resourceID, a, now)
	}
	for _, a := range sender.FillWindow(now, ls.l.RTTEstimate) {
		h.applyResourceSendAction(ls, linkID, resourceID, a, now)
	}
	return nil
}

// Status is a read-only snapshot for the status HTTP surface (spec.md §6.1;
// this is the "peripheral management" hook the core itself is explicitly
// silent on — the host owns it).
type Status struct {
	IdentityHash string `json:"identity_hash"`
	Destination  string `json:"destination"`
	Interfaces   int    `json:"interfaces"`
	Paths        int    `json:"paths"`
	ActiveLinks  int    `json:"active_links"`
}

// Status returns a point-in-time snapshot of the host's tables.
func (h *Host) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	active := 0
	for _, ls := range h.links {
		if ls.l.State == link.StateActive {
			active++
		}
	}
	return Status{
		IdentityHash: fmt.Sprintf("%x", h.id.Hash()),
		Destination:  fmt.Sprintf("%x", h.destHash),
		Interfaces:   h.engine.InterfaceCount(),
		Paths:        h.engine.PathCount(),
		ActiveLinks:  active,
	}
}

func (h *Host) apply(actions []transport.Action, now time.Time) {
	for _, a := range actions {
		switch v := a.(type) {
		case transport.SendOnInterface:
			h.writeFrame(v.IfaceID, v.Bytes)
		case transport.DeliverLocal:
			h.dispatchLocal(v, now)
		case transport.PathUpdated:
			h.logger.Debug("path updated", "dest", fmt.Sprintf("%x", v.DestHash), "hops", v.Hops)
		case transport.Drop:
			h.logger.Debug("dropped frame", "reason", v.Reason)
		case transport.InterfaceDown:
			h.logger.Info("interface down", "iface", v.IfaceID)
		}
	}
}

func (h *Host) writeFrame(ifaceID string, frame []byte) {
	w, ok := h.interfaces[ifaceID]
	if !ok {
		h.logger.Warn("send on unknown interface", "iface", ifaceID)
		return
	}
	if err := w.Send(frame); err != nil {
		h.logger.Warn("interface send failed", "iface", ifaceID, "error", err)
	}
}

func (h *Host) dispatchLocal(d transport.DeliverLocal, now time.Time) {
	switch d.PacketType {
	case packet.TypeAnnounce:
		// The engine already validated and adopted the path; nothing more
		// for the host to do with an announce addressed to itself.
	case packet.TypeLinkRequest:
		h.handleLinkRequest(d, now)
	case packet.TypeProof:
		h.handleProof(d, now)
	case packet.TypeData:
		h.handleLinkData(d, now)
	default:
		h.logger.Debug("unhandled local delivery", "packetType", d.PacketType)
	}
}

func (h *Host) handleLinkRequest(d transport.DeliverLocal, now time.Time) {
	if len(d.Raw) != 32 {
		h.logger.Warn("malformed link request", "len", len(d.Raw))
		return
	}
	var initiatorPub [32]byte
	copy(initiatorPub[:], d.Raw)

	linkID := d.PacketHash
	respLink, proof, err := link.NewResponder(linkID, initiatorPub, now)
	if err != nil {
		h.logger.Warn("link response failed", "error", err)
		return
	}
	ls := newLinkState(respLink, d.IfaceID)
	copy(ls.responderEphPub[:], proof[:32])
	h.links[linkID] = ls
	h.engine.RegisterPendingLink(linkID, d.IfaceID, now)

	p := &packet.Packet{
		Header:     packet.HeaderDirect,
		DestType:   packet.DestLink,
		PacketType: packet.TypeProof,
		DestHash:   linkID,
		Payload:    proof,
	}
	h.apply(h.engine.Outbound(p, d.IfaceID, now), now)
	h.logger.Info("link handshake: responded", "link", fmt.Sprintf("%x", linkID))
}

func (h *Host) handleProof(d transport.DeliverLocal, now time.Time) {
	linkID := d.DestHash
	ls, ok := h.links[linkID]
	if !ok {
		h.logger.Debug("proof for unknown link", "link", fmt.Sprintf("%x", linkID))
		return
	}

	if pr, isPending := h.pending[linkID]; isPending {
		if len(d.Raw) >= 32 {
			copy(ls.responderEphPub[:], d.Raw[:32])
		}
		initiatorProof, err := ls.l.HandleResponderProof(d.Raw, now)
		if err != nil {
			h.logger.Warn("responder proof invalid", "error", err)
			delete(h.pending, linkID)
			return
		}
		p := &packet.Packet{
			Header:     packet.HeaderDirect,
			DestType:   packet.DestLink,
			PacketType: packet.TypeProof,
			DestHash:   linkID,
			Payload:    initiatorProof,
		}
		h.apply(h.engine.Outbound(p, pr.ifaceID, now), now)
		ls.l.MarkActive(now)
		h.engine.ResolvePendingLink(linkID)
		delete(h.pending, linkID)
		ls.markActiveCh()
		h.logger.Info("link handshake: active (initiator)", "link", fmt.Sprintf("%x", linkID))
		return
	}

	if err := ls.l.HandleInitiatorProof(d.Raw, now); err != nil {
		h.logger.Warn("initiator proof invalid", "error", err)
		return
	}
	h.engine.ResolvePendingLink(linkID)
	ls.markActiveCh()
	h.logger.Info("link handshake: active (responder)", "link", fmt.Sprintf("%x", linkID))
}

func (h *Host) handleLinkData(d transport.DeliverLocal, now time.Time) {
	linkID := d.DestHash
	ls, ok := h.links[linkID]
	if !ok {
		h.logger.Debug("data for unknown link", "link", fmt.Sprintf("%x", linkID))
		return
	}
	plaintext, err := ls.l.DecodeMessage(d.Raw, now)
	if err != nil {
		h.logger.Warn("link decode failed", "link", fmt.Sprintf("%x", linkID), "error", err)
		return
	}

	switch d.Context {
	case ctxMessage:
		h.logger.Info("message received", "link", fmt.Sprintf("%x", linkID), "bytes", len(plaintext))
	case ctxIdentify:
		h.handleIdentify(ls, linkID, plaintext)
	case ctxResourceAdvertisement:
		h.handleResourceAdvertisement(ls, plaintext)
	case ctxResourcePart:
		h.handleResourcePart(ls, linkID, plaintext, now)
	case ctxResourceAck:
		h.handleResourceAck(ls, linkID, plaintext, now)
	case ctxResourceProof:
		h.handleResourceProof(ls, plaintext)
	case ctxAppData:
		select {
		case ls.appData <- plaintext:
		default:
			h.logger.Warn("app data dropped, reader too slow", "link", fmt.Sprintf("%x", linkID))
		}
	default:
		h.logger.Debug("unhandled link context", "context", d.Context)
	}
}

func (h *Host) handleIdentify(ls *linkState, linkID [identity.HashLen]byte, plaintext []byte) {
	msg, err := link.UnpackIdentify(plaintext)
	if err != nil {
		h.logger.Warn("malformed identify", "error", err)
		return
	}
	peerHash, err := msg.Verify(linkID, ls.responderEphPub)
	if err != nil {
		h.logger.Warn("identify verification failed", "link", fmt.Sprintf("%x", linkID), "error", err)
		return
	}
	ls.l.PeerIdentity = peerHash
	h.logger.Info("peer identified", "link", fmt.Sprintf("%x", linkID), "identity", fmt.Sprintf("%x", peerHash))
}

// SendIdentify reveals this host's long-term identity over an ACTIVE link
// (spec.md §4.3 "Identify").
func (h *Host) SendIdentify(linkID [identity.HashLen]byte, now time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ls, ok := h.links[linkID]
	if !ok {
		return fmt.Errorf("send identify: no such link")
	}
	msg := link.BuildIdentify(h.id, linkID, ls.responderEphPub)
	return h.sendOverLink(ls, linkID, ctxIdentify, msg.Pack(), now)
}

// DialApp opens a link to destHash and blocks until its handshake completes
// or timeout elapses, returning a generic byte-stream conn suitable for
// relaying an arbitrary TCP connection over the link (e.g. from a SOCKS
// front-end), the reference host's analogue of a transport-layer "stream".
func (h *Host) DialApp(destHash [identity.HashLen]byte, ifaceID string, timeout time.Duration) (*appConn, error) {
	linkID, err := h.OpenLink(destHash, ifaceID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("dial app: %w", err)
	}

	h.mu.Lock()
	ls := h.links[linkID]
	h.mu.Unlock()

	select {
	case <-ls.activeCh:
		return &appConn{host: h, linkID: linkID, appData: ls.appData}, nil
	case <-time.After(timeout):
		h.mu.Lock()
		h.closeLink(linkID, resource.FailureAborted)
		delete(h.pending, linkID)
		h.mu.Unlock()
		return nil, fmt.Errorf("dial app: handshake to %x timed out", destHash)
	}
}

// SendAppData writes one chunk of application byte-stream data over an
// ACTIVE link, framed under ctxAppData.
func (h *Host) SendAppData(linkID [identity.HashLen]byte, payload []byte, now time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ls, ok := h.links[linkID]
	if !ok {
		return fmt.Errorf("send app data: no such link")
	}
	return h.sendOverLink(ls, linkID, ctxAppData, payload, now)
}

// CloseLink tears down a link the host owns, discarding any in-flight
// resource transfers. The remote peer discovers the closure through its own
// keepalive/stale/teardown timers (spec.md §4.2); the reference host has no
// explicit "goodbye" message.
func (h *Host) CloseLink(linkID [identity.HashLen]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeLink(linkID, resource.FailureLinkClosed)
	delete(h.pending, linkID)
}

func (h *Host) sendOverLink(ls *linkState, linkID [identity.HashLen]byte, ctx byte, payload []byte, now time.Time) error {
	token, err := ls.l.EncodeMessage(payload, now)
	if err != nil {
		return fmt.Errorf("send over link: %w", err)
	}
	p := &packet.Packet{
		Header:     packet.HeaderDirect,
		DestType:   packet.DestLink,
		PacketType: packet.TypeData,
		DestHash:   linkID,
		Context:    ctx,
		Payload:    token,
	}
	h.apply(h.engine.Outbound(p, ls.ifaceID, now), now)
	return nil
}

func (h *Host) closeLink(linkID [identity.HashLen]byte, reason resource.FailureKind) {
	ls, ok := h.links[linkID]
	if !ok {
		return
	}
	for resID, s := range ls.senders {
		s.Abort(reason)
		delete(ls.senders, resID)
	}
	for resID, r := range ls.receivers {
		r.Abort(reason)
		delete(ls.receivers, resID)
	}
	delete(h.links, linkID)
	close(ls.appData)
	h.logger.Info("link closed", "link", fmt.Sprintf("%x", linkID))
}

func (h *Host) applyLinkAction(ls *linkState, linkID [identity.HashLen]byte, a link.Action, now time.Time) {
	switch v := a.(type) {
	case link.SendPayload:
		if err := h.sendOverLink(ls, linkID, ctxMessage, v.Payload, now); err != nil {
			h.logger.Warn("keepalive send failed", "link", fmt.Sprintf("%x", linkID), "error", err)
		}
	case link.StateChanged:
		h.logger.Info("link state changed", "link", fmt.Sprintf("%x", linkID), "from", v.From, "to", v.To)
	case link.Teardown:
		p := &packet.Packet{
			Header:     packet.HeaderDirect,
			DestType:   packet.DestLink,
			PacketType: packet.TypeData,
			DestHash:   linkID,
			Context:    ctxMessage,
		}
		h.apply(h.engine.Outbound(p, ls.ifaceID, now), now)
	}
}

func (h *Host) applyResourceSendAction(ls *linkState, linkID, resourceID [identity.HashLen]byte, a resource.Action, now time.Time) {
	switch v := a.(type) {
	case resource.SendAdvertisement:
		if err := h.sendOverLink(ls, linkID, ctxResourceAdvertisement, v.Payload, now); err != nil {
			h.logger.Warn("resource advertisement send failed", "error", err)
		}
	case resource.SendPart:
		frame := packResourcePart(resourceID, v.Index, v.Payload)
		if err := h.sendOverLink(ls, linkID, ctxResourcePart, frame, now); err != nil {
			h.logger.Warn("resource part send failed", "error", err)
		}
	case resource.Done:
		if v.State == resource.StateFailed {
			h.logger.Warn("resource transfer failed", "resource", fmt.Sprintf("%x", resourceID), "reason", v.Failure)
		} else {
			h.logger.Info("resource transfer complete (sender)", "resource", fmt.Sprintf("%x", resourceID))
		}
		delete(ls.senders, resourceID)
	}
}

func (h *Host) handleResourceAdvertisement(ls *linkState, plaintext []byte) {
	adv, err := resource.UnpackAdvertisement(plaintext)
	if err != nil {
		h.logger.Warn("malformed resource advertisement", "error", err)
		return
	}
	ls.receivers[adv.ResourceID] = resource.NewReceiver(adv)
	h.logger.Info("resource advertised", "resource", fmt.Sprintf("%x", adv.ResourceID), "parts", adv.PartCount)
}

func (h *Host) handleResourcePart(ls *linkState, linkID [identity.HashLen]byte, plaintext []byte, now time.Time) {
	resourceID, index, payload, err := unpackResourcePart(plaintext)
	if err != nil {
		h.logger.Warn("malformed resource part", "error", err)
		return
	}
	r, ok := ls.receivers[resourceID]
	if !ok {
		h.logger.Debug("part for unknown resource", "resource", fmt.Sprintf("%x", resourceID))
		return
	}
	for _, a := range r.HandlePart(index, payload) {
		switch v := a.(type) {
		case resource.SendAck:
			ack := packResourceAck(resourceID, v.CumulativeUpTo)
			if err := h.sendOverLink(ls, linkID, ctxResourceAck, ack, now); err != nil {
				h.logger.Warn("resource ack send failed", "error", err)
			}
		case resource.Done:
			if v.State == resource.StateFailed {
				h.logger.Warn("resource transfer failed", "resource", fmt.Sprintf("%x", resourceID), "reason", v.Failure)
				delete(ls.receivers, resourceID)
				return
			}
			h.logger.Info("resource transfer complete (receiver)", "resource", fmt.Sprintf("%x", resourceID), "bytes", len(v.Payload))
			proof := r.CompletionProof(ls.l.SessionMACKey())
			proofFrame := packResourceProof(resourceID, proof)
			if err := h.sendOverLink(ls, linkID, ctxResourceProof, proofFrame, now); err != nil {
				h.logger.Warn("resource completion proof send failed", "error", err)
			}
			delete(ls.receivers, resourceID)
		}
	}
}

func (h *Host) handleResourceAck(ls *linkState, linkID [identity.HashLen]byte, plaintext []byte, now time.Time) {
	resourceID, cumulativeUpTo, err := unpackResourceAck(plaintext)
	if err != nil {
		h.logger.Warn("malformed resource ack", "error", err)
		return
	}
	s, ok := ls.senders[resourceID]
	if !ok {
		return
	}
	for _, a := range s.HandleAck(cumulativeUpTo, now, ls.l.RTTEstimate) {
		h.applyResourceSendAction(ls, linkID, resourceID, a, now)
	}
}

func (h *Host) handleResourceProof(ls *linkState, plaintext []byte) {
	resourceID, proof, err := unpackResourceProof(plaintext)
	if err != nil {
		h.logger.Warn("malformed resource completion proof", "error", err)
		return
	}
	s, ok := ls.senders[resourceID]
	if !ok {
		return
	}
	for _, a := range s.HandleCompletionProof(ls.l.SessionMACKey(), proof) {
		if d, isDone := a.(resource.Done); isDone && d.State == resource.StateComplete {
			h.logger.Info("resource transfer complete (sender, proof verified)", "resource", fmt.Sprintf("%x", resourceID))
			delete(ls.senders, resourceID)
		}
	}
}
