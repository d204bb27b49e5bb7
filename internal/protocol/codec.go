package protocol

import (
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// ClientTypeCLI is the client type announced by the Go CLI.
const ClientTypeCLI = "cli"

// Codec turns messages into websocket frames and back.
type Codec interface {
	Encode(m *Message) ([]byte, error)
	Decode(data []byte) (*Message, error)
	// FrameType is the websocket message type the codec writes.
	FrameType() int
	Name() string
}

// JSONCodec writes text frames, understood by browsers.
type JSONCodec struct{}

func (JSONCodec) Encode(m *Message) ([]byte, error) { return json.Marshal(m) }

func (JSONCodec) Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (JSONCodec) FrameType() int { return websocket.TextMessage }
func (JSONCodec) Name() string   { return "json" }

// MsgpackCodec writes binary frames. Used by the CLI.
type MsgpackCodec struct{}

func (MsgpackCodec) Encode(m *Message) ([]byte, error) { return msgpack.Marshal(m) }

func (MsgpackCodec) Decode(data []byte) (*Message, error) {
	var m Message
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (MsgpackCodec) FrameType() int { return websocket.BinaryMessage }
func (MsgpackCodec) Name() string   { return "msgpack" }

// SelectCodec picks the wire codec from the client type announced on connect.
func SelectCodec(clientType string) Codec {
	if clientType == ClientTypeCLI {
		return MsgpackCodec{}
	}

	// Default to JSON for web compatibility
	return JSONCodec{}
}
