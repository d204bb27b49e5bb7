// Package protocol defines the signaling envelope shared by the server and
// the CLI, plus the codecs used to put it on a websocket.
package protocol

import (
	"encoding/json"
)

// Client to server message types.
const (
	TypeJoin         = "join"
	TypeStartSharing = "startSharing"
	TypeStopSharing  = "stopSharing"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "iceCandidate"
)

// Server to client message types.
const (
	TypeWelcome         = "welcome"
	TypeSharerAvailable = "sharerAvailable"
	TypeViewerJoined    = "viewerJoined"
	TypeSharerStarted   = "sharerStarted"
	TypeSharerStopped   = "sharerStopped"
	TypeSharingConflict = "sharingConflict"
	TypeActiveUsers     = "active_users"
	TypeError           = "error"
)

// Message is the single envelope exchanged over the signaling channel.
//
// Offer, Answer and Candidate are opaque to the server: it forwards the
// bytes untouched to TargetID and stamps SenderID itself.
type Message struct {
	Type          string          `json:"type" msgpack:"type"`
	RoomID        string          `json:"roomId,omitempty" msgpack:"roomId,omitempty"`
	TargetID      string          `json:"targetId,omitempty" msgpack:"targetId,omitempty"`
	SenderID      string          `json:"senderId,omitempty" msgpack:"senderId,omitempty"`
	ParticipantID string          `json:"participantId,omitempty" msgpack:"participantId,omitempty"`
	Offer         json.RawMessage `json:"offer,omitempty" msgpack:"offer,omitempty"`
	Answer        json.RawMessage `json:"answer,omitempty" msgpack:"answer,omitempty"`
	Candidate     json.RawMessage `json:"candidate,omitempty" msgpack:"candidate,omitempty"`
	Users         []string        `json:"users,omitempty" msgpack:"users,omitempty"`
	Error         string          `json:"error,omitempty" msgpack:"error,omitempty"`
}

// IsRelay reports whether the message is a connection-setup relay.
func (m *Message) IsRelay() bool {
	switch m.Type {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return true
	}
	return false
}

// RelayPayload returns the opaque body carried by a relay message.
func (m *Message) RelayPayload() json.RawMessage {
	switch m.Type {
	case TypeOffer:
		return m.Offer
	case TypeAnswer:
		return m.Answer
	case TypeICECandidate:
		return m.Candidate
	}
	return nil
}

// Notify builds a server notification that names a single participant.
func Notify(msgType, participantID string) *Message {
	return &Message{Type: msgType, ParticipantID: participantID}
}

// Room builds a room-scoped client request (join, startSharing, stopSharing).
func Room(msgType, roomID string) *Message {
	return &Message{Type: msgType, RoomID: roomID}
}

// Relay builds an offer, answer or iceCandidate addressed to targetID.
func Relay(msgType, roomID, targetID string, payload json.RawMessage) *Message {
	m := &Message{Type: msgType, RoomID: roomID, TargetID: targetID}
	switch msgType {
	case TypeOffer:
		m.Offer = payload
	case TypeAnswer:
		m.Answer = payload
	case TypeICECandidate:
		m.Candidate = payload
	}
	return m
}

// ActiveUsers builds the presence broadcast.
func ActiveUsers(users []string) *Message {
	return &Message{Type: TypeActiveUsers, Users: users}
}

// Errorf builds an error reply.
func Errorf(text string) *Message {
	return &Message{Type: TypeError, Error: text}
}
