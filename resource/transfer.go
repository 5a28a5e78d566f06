package resource

import (
	"fmt"
	"time"

	"github.com/rns-go/reticulum/identity"
)

// Action is an instruction the host must carry out after a Transfer call
// (spec.md §5 pattern, mirrored from transport/link).
type Action interface {
	isResourceAction()
}

// SendPart instructs the host to transmit one raw part over the owning
// link; the host frames and link-encrypts it.
type SendPart struct {
	Index   uint32
	Payload []byte
}

func (SendPart) isResourceAction() {}

// SendAdvertisement instructs the host to transmit the advertisement.
type SendAdvertisement struct {
	Payload []byte
}

func (SendAdvertisement) isResourceAction() {}

// SendAck instructs the receiver's host to transmit a cumulative ack up to
// (and excluding) the given index.
type SendAck struct {
	CumulativeUpTo uint32
}

func (SendAck) isResourceAction() {}

// SendCompletionProof instructs the receiver's host to transmit the
// completion proof once reassembly succeeds.
type SendCompletionProof struct {
	Proof []byte
}

func (SendCompletionProof) isResourceAction() {}

// Done reports that the transfer reached a terminal state.
type Done struct {
	State   State
	Failure FailureKind // only meaningful when State == StateFailed
	Payload []byte      // only set on the receiver side when State == StateComplete
}

func (Done) isResourceAction() {}

type outstandingPart struct {
	payload  []byte
	sentAt   time.Time
	deadline time.Time
	retries  int
}

// Sender drives the sending side of a resource transfer.
type Sender struct {
	ResourceID [identity.HashLen]byte
	Adv        *Advertisement
	parts      [][]byte
	win        *window
	next       uint32 // next part index not yet sent
	outstand   map[uint32]*outstandingPart
	acked      map[uint32]bool
	state      State
}

// NewSender segments data and prepares a sender ready to advertise.
func NewSender(resourceID [identity.HashLen]byte, data []byte, mdu int, compress bool) (*Sender, error) {
	adv, parts, err := Segment(resourceID, data, mdu, compress)
	if err != nil {
		return nil, fmt.Errorf("new sender: %w", err)
	}
	return &Sender{
		ResourceID: resourceID,
		Adv:        adv,
		parts:      parts,
		win:        newWindow(),
		outstand:   make(map[uint32]*outstandingPart),
		acked:      make(map[uint32]bool),
		state:      StateAdvertised,
	}, nil
}

// State returns the sender's current lifecycle state.
func (s *Sender) State() State { return s.state }

// Advertise returns the advertisement action to kick off the transfer.
func (s *Sender) Advertise() []Action {
	return []Action{SendAdvertisement{Payload: s.Adv.Pack()}}
}

// FillWindow sends as many unsent parts as the current window allows.
func (s *Sender) FillWindow(now time.Time, rttEstimate time.Duration) []Action {
	if s.state == StateFailed || s.state == StateComplete {
		return nil
	}
	s.state = StateTransferring

	var actions []Action
	for len(s.outstand) < s.win.Size() && int(s.next) < len(s.parts) {
		idx := s.next
		s.next++
		s.outstand[idx] = &outstandingPart{
			payload:  s.parts[idx],
			sentAt:   now,
			deadline: partDeadline(now, rttEstimate),
		}
		actions = append(actions, SendPart{Index: idx, Payload: s.parts[idx]})
	}
	return actions
}

// HandleAck processes a cumulative ack: every index below cumulativeUpTo is
// considered delivered.
func (s *Sender) HandleAck(cumulativeUpTo uint32, now time.Time, rttEstimate time.Duration) []Action {
	for idx := range s.outstand {
		if idx < cumulativeUpTo {
			s.acked[idx] = true
			delete(s.outstand, idx)
			s.win.onPartAcked()
		}
	}
	if uint32(len(s.acked)) == uint32(len(s.parts)) {
		return nil // completion is driven by the receiver's proof, not the ack alone
	}
	return s.FillWindow(now, rttEstimate)
}

// Tick retransmits parts past their deadline, failing the resource if any
// part exceeds MaxRetriesPerPart (spec.md §4.4). A tick that retransmits
// anything halves the window once, however many parts expired together.
func (s *Sender) Tick(now time.Time, rttEstimate time.Duration) []Action {
	if s.state == StateFailed || s.state == StateComplete {
		return nil
	}
	var actions []Action
	for idx, op := range s.outstand {
		if now.Before(op.deadline) {
			continue
		}
		op.retries++
		if op.retries > MaxRetriesPerPart {
			s.state = StateFailed
			return []Action{Done{State: StateFailed, Failure: FailureRetriesExhausted}}
		}
		op.sentAt = now
		op.deadline = partDeadline(now, rttEstimate)
		actions = append(actions, SendPart{Index: idx, Payload: op.payload})
	}
	if len(actions) > 0 {
		s.win.onLoss()
	}
	return actions
}

// HandleCompletionProof verifies the receiver's proof and marks the
// transfer COMPLETE on success (spec.md §4.4 "Sender marks COMPLETE on
// proof receipt").
func (s *Sender) HandleCompletionProof(sessionMacKey []byte, proof []byte) []Action {
	if !VerifyCompletionProof(sessionMacKey, s.ResourceID, s.Adv.ExpectedHash, proof) {
		return nil
	}
	s.state = StateComplete
	return []Action{Done{State: StateComplete}}
}

// Abort fails the transfer immediately (link closed, or an explicit abort).
func (s *Sender) Abort(kind FailureKind) []Action {
	s.state = StateFailed
	return []Action{Done{State: StateFailed, Failure: kind}}
}

// Receiver drives the receiving side of a resource transfer.
type Receiver struct {
	Adv       *Advertisement
	parts     map[uint32][]byte
	highSeen  uint32
	state     State
}

// NewReceiver accepts an inbound advertisement.
func NewReceiver(adv *Advertisement) *Receiver {
	return &Receiver{Adv: adv, parts: make(map[uint32][]byte), state: StateAdvertised}
}

// State returns the receiver's current lifecycle state.
func (r *Receiver) State() State { return r.state }

// HandlePart records an inbound part and returns a cumulative ack. The part
// that completes the set instead yields the reassembly result: only a Done
// on success, the ack followed by a failed Done on a hash mismatch.
func (r *Receiver) HandlePart(index uint32, payload []byte) []Action {
	if r.state == StateFailed || r.state == StateComplete {
		return nil
	}
	r.state = StateTransferring
	r.parts[index] = payload
	if index+1 > r.highSeen {
		r.highSeen = index + 1
	}

	cumulative := uint32(0)
	for cumulative < r.Adv.PartCount {
		if _, ok := r.parts[cumulative]; !ok {
			break
		}
		cumulative++
	}

	actions := []Action{SendAck{CumulativeUpTo: cumulative}}

	if uint32(len(r.parts)) == r.Adv.PartCount {
		r.state = StateAssembling
		ordered := make([][]byte, r.Adv.PartCount)
		for i := uint32(0); i < r.Adv.PartCount; i++ {
			ordered[i] = r.parts[i]
		}
		plaintext, err := Reassemble(ordered, r.Adv.Compressed, r.Adv.ExpectedHash)
		if err != nil {
			r.state = StateFailed
			return append(actions, Done{State: StateFailed, Failure: FailureHashMismatch})
		}
		r.state = StateComplete
		return []Action{Done{State: StateComplete, Payload: plaintext}}
	}

	return actions
}

// CompletionProof returns the proof to send once the receiver has reached
// StateComplete.
func (r *Receiver) CompletionProof(sessionMacKey []byte) []byte {
	return CompletionProof(sessionMacKey, r.Adv.ResourceID, r.Adv.ExpectedHash)
}

// Abort fails the transfer immediately.
func (r *Receiver) Abort(kind FailureKind) []Action {
	r.state = StateFailed
	return []Action{Done{State: StateFailed, Failure: kind}}
}
