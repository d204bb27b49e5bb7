package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrUnknownType is returned for messages a client is not allowed to send.
var ErrUnknownType = errors.New("unknown message type")

var validate = validator.New()

type roomRequest struct {
	RoomID string `validate:"required,max=128"`
}

type relayRequest struct {
	TargetID string          `validate:"required,max=128"`
	Payload  json.RawMessage `validate:"required,min=1"`
}

// Validate checks the envelope shape of a client to server message.
// Relay payload contents are never inspected.
func (m *Message) Validate() error {
	var err error
	switch m.Type {
	case TypeJoin, TypeStartSharing, TypeStopSharing:
		err = validate.Struct(roomRequest{RoomID: m.RoomID})
	case TypeOffer, TypeAnswer, TypeICECandidate:
		err = validate.Struct(relayRequest{TargetID: m.TargetID, Payload: m.RelayPayload()})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	if err != nil {
		return fmt.Errorf("invalid %s: %w", m.Type, err)
	}
	return nil
}
