package signaling

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Warpcast/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Client is a wrapper for a single websocket connection (a participant).
type Client struct {
	// ID is assigned on connect and is unique for the connection's lifetime.
	ID string

	Hub  *Hub
	Conn *websocket.Conn

	// Codec encodes and decodes frames for this connection.
	Codec protocol.Codec

	// Send is a buffered channel for all outbound messages.
	// The hub writes to it, WritePump drains it.
	Send chan *protocol.Message

	// MaxMessageSize caps inbound frames. Zero means no limit.
	MaxMessageSize int64

	log *slog.Logger
}

// NewClient wraps conn with a fresh participant ID.
func NewClient(hub *Hub, conn *websocket.Conn, codec protocol.Codec, sendBuffer int, maxMessageSize int64) *Client {
	id := uuid.NewString()
	return &Client{
		ID:             id,
		Hub:            hub,
		Conn:           conn,
		Codec:          codec,
		Send:           make(chan *protocol.Message, sendBuffer),
		MaxMessageSize: maxMessageSize,
		log:            hub.log.With("participant", id),
	}
}

func (c *Client) codecName() string {
	if c.Codec == nil {
		return "none"
	}
	return c.Codec.Name()
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	// Disconnect is implicit: losing the socket unregisters the participant
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.Done():
		}
		c.Conn.Close()
	}()

	if c.MaxMessageSize > 0 {
		c.Conn.SetReadLimit(c.MaxMessageSize)
	}
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("Read failed", "err", err)
			}
			break
		}

		msg, err := c.Codec.Decode(data)
		if err != nil {
			// A garbled frame is the sender's problem, not a reason to drop them
			c.log.Warn("Undecodable frame", "codec", c.Codec.Name(), "err", err)
			continue
		}

		select {
		case c.Hub.Inbound <- Inbound{Client: c, Message: msg}:
		case <-c.Hub.Done():
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := c.Codec.Encode(message)
			if err != nil {
				c.log.Error("Encode failed", "type", message.Type, "err", err)
				continue
			}
			if err := c.Conn.WriteMessage(c.Codec.FrameType(), data); err != nil {
				c.log.Warn("Write failed", "err", err)
				return
			}

		case <-c.Hub.Done():
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
