package signaling

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Warpcast/cli/internal/dns"
	"github.com/BioHazard786/Warpcast/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client manages the WebSocket connection to the signaling server.
type Client struct {
	conn      *websocket.Conn
	serverURL string
	codec     protocol.Codec
	incoming  chan *protocol.Message
	outgoing  chan *protocol.Message
	done      chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
}

// NewClient creates a new signaling client. The CLI always speaks msgpack.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		codec:     protocol.SelectCodec(protocol.ClientTypeCLI),
		incoming:  make(chan *protocol.Message, 16),
		outgoing:  make(chan *protocol.Message, 16),
		done:      make(chan struct{}),
		log:       slog.With("component", "signaling"),
	}
}

// Connect dials the server, retrying up to attempts times with a linearly
// growing delay between tries.
func (c *Client) Connect(ctx context.Context, attempts int, delay time.Duration) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	dialer := *websocket.DefaultDialer
	dialer.NetDial = dns.Dialer(ctx)

	attempts = max(attempts, 1)
	for attempt := 1; ; attempt++ {
		conn, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err == nil {
			c.start(conn)
			return nil
		}
		if attempt >= attempts {
			return fmt.Errorf("failed to connect after %d attempts: %w", attempt, err)
		}

		c.log.Debug("Dial failed, retrying", "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay * time.Duration(attempt)):
		}
	}
}

func (c *Client) start(conn *websocket.Conn) {
	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
		c.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Debug("Read loop ended", "err", err)
			return
		}

		msg, err := c.codec.Decode(data)
		if err != nil {
			c.log.Warn("Undecodable frame from server", "err", err)
			continue
		}

		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			data, err := c.codec.Encode(message)
			if err != nil {
				c.log.Error("Encode failed", "type", message.Type, "err", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// SendMessage queues a message for the server. It is safe to call from
// any goroutine and becomes a no-op once the client is closed.
func (c *Client) SendMessage(msg *protocol.Message) {
	select {
	case c.outgoing <- msg:
	case <-c.done:
	}
}

// Incoming returns the channel for receiving messages. It is closed when
// the connection drops.
func (c *Client) Incoming() <-chan *protocol.Message {
	return c.incoming
}

// Done is closed once Close has been called or the connection dropped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the WebSocket connection and cleans up resources.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
