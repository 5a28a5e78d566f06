package link

import (
	"fmt"
	"time"

	"github.com/rns-go/reticulum/identity"
)

// Action is an instruction the host must carry out after a Link call. Link
// performs no I/O itself, mirroring the transport engine's Action pattern
// (spec.md §5).
type Action interface {
	isLinkAction()
}

// SendPayload instructs the host to transmit an encrypted link-layer packet.
// A nil Payload means "send a bare keepalive".
type SendPayload struct {
	Payload []byte
}

func (SendPayload) isLinkAction() {}

// Deliver surfaces a decrypted, sequence-verified inbound message to the host.
type Deliver struct {
	Plaintext []byte
}

func (Deliver) isLinkAction() {}

// StateChanged reports a link state transition.
type StateChanged struct {
	From, To State
}

func (StateChanged) isLinkAction() {}

// Teardown instructs the host to emit a best-effort TEARDOWN packet; the
// link itself is already CLOSED by the time this is returned.
type Teardown struct{}

func (Teardown) isLinkAction() {}

// Link is one endpoint's view of a Reticulum link: handshake state through
// active transport, keepalive scheduling, and replay-protected sequencing
// (spec.md §3 Link, §4.3).
type Link struct {
	ID           [identity.HashLen]byte
	PeerIdentity [identity.HashLen]byte
	State        State
	Initiator    bool
	encKey       []byte
	macKey       []byte
	LastInbound  time.Time
	LastOutbound time.Time
	RTTEstimate  time.Duration
	outSeq       uint64
	inHighSeq    uint64
	seenSeq      map[uint64]bool
	createdAt    time.Time

	initHS *InitiatorHandshake
	respHS *ResponderHandshake
}

// NewInitiator creates a link in PENDING state for the side that sends the
// LINKREQUEST. The returned handshake's LinkID is unset until
// BindInitiatorRequest is called with the sent packet's hash.
func NewInitiator(now time.Time) (*Link, *InitiatorHandshake, error) {
	hs, err := NewInitiatorHandshake()
	if err != nil {
		return nil, nil, fmt.Errorf("new initiator link: %w", err)
	}
	l := &Link{
		State:     StatePending,
		Initiator: true,
		seenSeq:   make(map[uint64]bool),
		createdAt: now,
	}
	return l, hs, nil
}

// BindInitiatorRequest finalizes the link_id once the LINKREQUEST packet's
// hash is known.
func (l *Link) BindInitiatorRequest(hs *InitiatorHandshake, linkID [identity.HashLen]byte) {
	hs.SetLinkID(linkID)
	l.ID = linkID
	l.initHS = hs
}

// NewResponder creates a link in HANDSHAKE state for the side that received
// a LINKREQUEST and is about to send a PROOF.
func NewResponder(linkID [identity.HashLen]byte, initiatorPub [32]byte, now time.Time) (*Link, []byte, error) {
	rh, proof, err := RespondToLinkRequest(linkID, initiatorPub)
	if err != nil {
		return nil, nil, fmt.Errorf("new responder link: %w", err)
	}
	l := &Link{
		ID:        linkID,
		State:     StateHandshake,
		Initiator: false,
		seenSeq:   make(map[uint64]bool),
		createdAt: now,
		respHS:    rh,
	}
	return l, proof, nil
}

// HandleResponderProof processes the responder's PROOF on the initiator
// side (spec.md §4.3 step 2/3: "Initiator verifies the HMAC, derives
// identical keys, replies with its own PROOF"). The link moves to
// HANDSHAKE here; MarkActive completes the transition once the initiator's
// own proof has gone out.
func (l *Link) HandleResponderProof(responderProof []byte, now time.Time) ([]byte, error) {
	if l.State != StatePending {
		return nil, fmt.Errorf("handle responder proof: link in state %s, want PENDING", l.State)
	}
	encKey, macKey, initiatorProof, err := l.initHS.CompleteFromProof(responderProof)
	if err != nil {
		return nil, fmt.Errorf("handle responder proof: %w", err)
	}
	l.encKey, l.macKey = encKey, macKey
	l.State = StateHandshake
	l.LastInbound = now
	return initiatorProof, nil
}

// MarkActive completes the initiator's side of the handshake after its own
// PROOF has been sent (spec.md §4.3 step 3: "... State: ACTIVE").
func (l *Link) MarkActive(now time.Time) {
	l.State = StateActive
	l.LastOutbound = now
}

// HandleInitiatorProof verifies the initiator's reply PROOF on the
// responder side, moving HANDSHAKE -> ACTIVE (spec.md §4.3 step 4).
func (l *Link) HandleInitiatorProof(initiatorProof []byte, now time.Time) error {
	if l.State != StateHandshake {
		return fmt.Errorf("handle initiator proof: link in state %s, want HANDSHAKE", l.State)
	}
	encKey, macKey, err := l.respHS.VerifyInitiatorProof(initiatorProof)
	if err != nil {
		return fmt.Errorf("handle initiator proof: %w", err)
	}
	l.encKey, l.macKey = encKey, macKey
	l.State = StateActive
	l.LastInbound = now
	return nil
}

// SessionMACKey returns the link's post-handshake MAC key, the value a
// resource transfer riding on this link uses as its completion-proof key
// (spec.md §4.4 "HMAC over resource_id || expected_hash under the link
// session key").
func (l *Link) SessionMACKey() []byte { return l.macKey }

// HandshakeExpired reports whether a PENDING/HANDSHAKE link has exceeded
// HandshakeTimeout without completing.
func (l *Link) HandshakeExpired(now time.Time) bool {
	if l.State != StatePending && l.State != StateHandshake {
		return false
	}
	return now.Sub(l.createdAt) > HandshakeTimeout
}

// EncodeMessage encrypts and authenticates plaintext for transmission over
// an ACTIVE (or STALE, which may still send) link, assigning the next
// outbound sequence number.
func (l *Link) EncodeMessage(plaintext []byte, now time.Time) ([]byte, error) {
	if l.State != StateActive && l.State != StateStale {
		return nil, fmt.Errorf("encode message: link in state %s, not ACTIVE", l.State)
	}
	l.outSeq++
	framed := frameWithSeq(l.outSeq, plaintext)
	token, err := identity.EncryptToken(l.encKey, l.macKey, framed)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	l.LastOutbound = now
	return token, nil
}

// DecodeMessage authenticates and decrypts an inbound link-payload token,
// rejecting sequence numbers already seen (spec.md §4.3 "A sequence counter
// protects against replay inside the link").
func (l *Link) DecodeMessage(token []byte, now time.Time) ([]byte, error) {
	if l.State == StateClosed {
		return nil, fmt.Errorf("decode message: link is CLOSED")
	}
	framed, err := identity.DecryptToken(l.encKey, l.macKey, token)
	if err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	seq, plaintext, err := unframeSeq(framed)
	if err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if l.seenSeq[seq] {
		return nil, fmt.Errorf("decode message: sequence %d replayed", seq)
	}
	l.seenSeq[seq] = true
	if seq > l.inHighSeq {
		l.inHighSeq = seq
	}
	l.LastInbound = now
	if l.State == StateStale {
		l.State = StateActive
	}
	return plaintext, nil
}

// Tick applies the keepalive/stale/teardown schedule (spec.md §4.3) and
// returns any resulting actions.
func (l *Link) Tick(now time.Time) []Action {
	var actions []Action

	if (l.State == StatePending || l.State == StateHandshake) && l.HandshakeExpired(now) {
		from := l.State
		l.State = StateClosed
		return append(actions, StateChanged{From: from, To: StateClosed})
	}

	if l.State != StateActive && l.State != StateStale {
		return actions
	}

	silence := now.Sub(l.LastInbound)

	if l.State == StateActive && silence > StaleThreshold {
		l.State = StateStale
		actions = append(actions, StateChanged{From: StateActive, To: StateStale})
		return actions
	}

	if l.State == StateStale && silence > TeardownThreshold {
		l.State = StateClosed
		return append(actions, StateChanged{From: StateStale, To: StateClosed}, Teardown{})
	}

	if l.State == StateActive && now.Sub(l.LastOutbound) > KeepaliveInterval {
		actions = append(actions, SendPayload{Payload: nil})
	}

	return actions
}

// RequestTeardown closes the link immediately at the caller's request
// (spec.md §4.3 "Either side may initiate teardown at any time").
func (l *Link) RequestTeardown() []Action {
	from := l.State
	l.State = StateClosed
	return []Action{StateChanged{From: from, To: StateClosed}, Teardown{}}
}

// HandleTeardown processes a received TEARDOWN packet.
func (l *Link) HandleTeardown() []Action {
	from := l.State
	l.State = StateClosed
	return []Action{StateChanged{From: from, To: StateClosed}}
}

func frameWithSeq(seq uint64, plaintext []byte) []byte {
	out := make([]byte, 8+len(plaintext))
	for i := 0; i < 8; i++ {
		out[i] = byte(seq >> (8 * (7 - i)))
	}
	copy(out[8:], plaintext)
	return out
}

func unframeSeq(framed []byte) (uint64, []byte, error) {
	if len(framed) < 8 {
		return 0, nil, fmt.Errorf("frame too short for sequence counter: %d bytes", len(framed))
	}
	var seq uint64
	for i := 0; i < 8; i++ {
		seq = seq<<8 | uint64(framed[i])
	}
	return seq, framed[8:], nil
}
