// Package signaling implements the control-channel side of peerdrop: the wire
// messages, the relay that routes them between peers, and the client that
// connects to it.
package signaling

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
)

// MessageType identifies the kind of signaling message.
type MessageType string

const (
	MsgTypeID        MessageType = "id"
	MsgTypeOffer     MessageType = "offer"
	MsgTypeAnswer    MessageType = "answer"
	MsgTypeCandidate MessageType = "ice-candidate"
)

var (
	// ErrInvalidMessage is returned for frames that are not well-formed
	// client-to-server signaling messages.
	ErrInvalidMessage = errors.New("invalid signaling message")

	// ErrTargetPeerUnknown is returned when a message addresses an identifier
	// that is not registered. The message is dropped and the sender is not told.
	ErrTargetPeerUnknown = errors.New("target peer unknown")
)

// Message is the JSON structure exchanged over the control connection.
//
// Clients send offer/answer/ice-candidate with Target set. The relay emits
// id (with PeerID) and forwards the other kinds with From set and Target
// removed. Offer, Answer and Candidate are opaque to the relay.
type Message struct {
	Type      MessageType     `json:"type"`
	PeerID    string          `json:"peerId,omitempty"`
	Target    string          `json:"target,omitempty"`
	From      string          `json:"from,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// inbound is the subset of Message a client may send. It has no From field,
// so whatever a client claims there is never read.
type inbound struct {
	Type      MessageType     `json:"type" validate:"required,oneof=offer answer ice-candidate"`
	Target    string          `json:"target" validate:"required,max=128"`
	Offer     json.RawMessage `json:"offer"`
	Answer    json.RawMessage `json:"answer"`
	Candidate json.RawMessage `json:"candidate"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// parseInbound decodes and validates a raw client frame.
func parseInbound(raw []byte) (*inbound, error) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := validate.Struct(&msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return &msg, nil
}

// forward builds the message delivered to the target: same kind and payload,
// From set to the true sender, Target dropped.
func (m *inbound) forward(from string) Message {
	return Message{
		Type:      m.Type,
		From:      from,
		Offer:     m.Offer,
		Answer:    m.Answer,
		Candidate: m.Candidate,
	}
}

// SessionDescription decodes the offer or answer payload.
func (m Message) SessionDescription() (webrtc.SessionDescription, error) {
	var raw json.RawMessage
	switch m.Type {
	case MsgTypeOffer:
		raw = m.Offer
	case MsgTypeAnswer:
		raw = m.Answer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %s carries no session description", ErrInvalidMessage, m.Type)
	}

	var sd webrtc.SessionDescription
	if err := json.Unmarshal(raw, &sd); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("decode %s: %w", m.Type, err)
	}
	return sd, nil
}

// ICECandidate decodes the candidate payload. ok is false for the null
// candidate browsers send at the end of gathering.
func (m Message) ICECandidate() (init webrtc.ICECandidateInit, ok bool, err error) {
	if len(m.Candidate) == 0 || string(m.Candidate) == "null" {
		return init, false, nil
	}
	if err := json.Unmarshal(m.Candidate, &init); err != nil {
		return init, false, fmt.Errorf("decode ice-candidate: %w", err)
	}
	return init, true, nil
}

func encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
