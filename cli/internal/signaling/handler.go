package signaling

import (
	"log/slog"

	"github.com/BioHazard786/Warpcast/internal/protocol"
)

// Source is where the handler reads server messages from.
type Source interface {
	Incoming() <-chan *protocol.Message
	Done() <-chan struct{}
}

// Handler routes incoming signaling messages to appropriate channels.
//
// Room notifications and offer/answer/candidate relays share the Signal
// channel so they reach the negotiator in the order the server sent them.
type Handler struct {
	source Source

	Welcome     chan string
	Signal      chan *protocol.Message
	ActiveUsers chan []string
	Error       chan string

	// stopped is closed once the connection is gone and every channel
	// above has been closed.
	stopped chan struct{}
}

// NewHandler creates a new message handler.
func NewHandler(source Source) *Handler {
	return &Handler{
		source:      source,
		Welcome:     make(chan string, 1),
		Signal:      make(chan *protocol.Message, 64),
		ActiveUsers: make(chan []string, 1),
		Error:       make(chan string, 4),
		stopped:     make(chan struct{}),
	}
}

// Start begins listening to incoming messages and routing them.
// It returns when the connection drops or the source is closed.
func (h *Handler) Start() {
	defer h.close()

	for msg := range h.source.Incoming() {
		switch msg.Type {
		case protocol.TypeWelcome:
			h.deliverString(h.Welcome, msg.ParticipantID)

		case protocol.TypeSharerAvailable,
			protocol.TypeViewerJoined,
			protocol.TypeSharerStarted,
			protocol.TypeSharerStopped,
			protocol.TypeSharingConflict,
			protocol.TypeOffer,
			protocol.TypeAnswer,
			protocol.TypeICECandidate:
			select {
			case h.Signal <- msg:
			case <-h.source.Done():
				return
			}

		case protocol.TypeActiveUsers:
			h.deliverLatest(msg.Users)

		case protocol.TypeError:
			h.deliverString(h.Error, msg.Error)

		default:
			slog.Debug("Ignoring unknown message", "type", msg.Type)
		}
	}
}

// Stopped is closed once Start has returned.
func (h *Handler) Stopped() <-chan struct{} {
	return h.stopped
}

func (h *Handler) deliverString(ch chan string, v string) {
	select {
	case ch <- v:
	case <-h.source.Done():
	}
}

// deliverLatest hands users to the reader, replacing a list it has not
// picked up yet. Only the latest list matters.
func (h *Handler) deliverLatest(users []string) {
	for {
		select {
		case h.ActiveUsers <- users:
			return
		default:
		}

		select {
		case stale := <-h.ActiveUsers:
			slog.Debug("Replacing stale presence update", "users", len(stale))
		default:
		}
	}
}

func (h *Handler) close() {
	close(h.Welcome)
	close(h.Signal)
	close(h.ActiveUsers)
	close(h.Error)
	close(h.stopped)
}
