package signaling

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BioHazard786/Warpcast/internal/protocol"
)

// Inbound is a message read from a client, tagged with its sender.
type Inbound struct {
	Client  *Client
	Message *protocol.Message
}

// Hub is the central brain of the signaling server.
// It owns the connected clients and routes every message between them,
// delegating room membership to the RoomStore.
type Hub struct {
	// clients maps participant IDs to their connection.
	// Only the Run goroutine touches it.
	clients map[string]*Client

	store    *RoomStore
	presence *Presence
	log      *slog.Logger

	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients.
	Unregister chan *Client

	// Inbound carries every message read by a client's ReadPump.
	Inbound chan Inbound

	// done is closed when Run returns. Nothing reads the channels above
	// after that.
	done chan struct{}
}

// NewHub creates a new Hub instance.
func NewHub(store *RoomStore, presence *Presence, log *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		store:      store,
		presence:   presence,
		log:        log,
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan Inbound),
		done:       make(chan struct{}),
	}
}

// Done is closed once Run has returned. Senders on Register, Unregister
// and Inbound select on it so they never block on a stopped hub.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run starts the hub's main processing loop.
// This is the single goroutine that dispatches every event, so each event
// runs to completion before the next one starts.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.log.Info("Hub stopped", "clients", len(h.clients))
			return

		case client := <-h.Register:
			h.register(client)

		case client := <-h.Unregister:
			h.unregister(client)

		case in := <-h.Inbound:
			h.dispatch(in.Client, in.Message)
		}
	}
}

func (h *Hub) register(c *Client) {
	h.clients[c.ID] = c
	h.log.Info("Client registered", "participant", c.ID, "codec", c.codecName())

	// Tell the client who it is before anything else reaches it
	h.emit(c, &protocol.Message{Type: protocol.TypeWelcome, ParticipantID: c.ID})

	if h.presence.Add(c.ID) {
		h.broadcastPresence()
	}
}

func (h *Hub) unregister(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	h.log.Info("Client unregistered", "participant", c.ID)

	// 1. Clean up room membership
	if res, ok := h.store.Disconnect(c.ID); ok {
		h.afterLeave(c.ID, res)
	}

	// 2. Presence
	if h.presence.Remove(c.ID) {
		h.broadcastPresence()
	}

	// 3. Close the client's send channel to stop its WritePump
	close(c.Send)
}

func (h *Hub) dispatch(c *Client, msg *protocol.Message) {
	log := h.log.With("participant", c.ID, "type", msg.Type)

	if err := msg.Validate(); err != nil {
		log.Warn("Rejected message", "err", err)
		h.emit(c, protocol.Errorf(err.Error()))
		return
	}

	if msg.IsRelay() {
		h.relay(c, msg, log)
		return
	}

	switch msg.Type {
	case protocol.TypeJoin:
		h.handleJoin(c, msg.RoomID, log)

	case protocol.TypeStartSharing:
		h.handleStartSharing(c, msg.RoomID, log)

	case protocol.TypeStopSharing:
		h.handleStopSharing(c, msg.RoomID, log)
	}
}

func (h *Hub) handleJoin(c *Client, roomID string, log *slog.Logger) {
	res, err := h.store.Join(roomID, c.ID)
	if err != nil {
		h.emit(c, protocol.Errorf(err.Error()))
		return
	}
	if res.Previous != nil {
		h.afterLeave(c.ID, *res.Previous)
	}

	snap := res.Snapshot
	log.Info("Joined room", "room", roomID, "broadcaster", snap.Broadcaster, "viewers", len(snap.Viewers))

	if !snap.HasBroadcasterOtherThan(c.ID) {
		return
	}

	// The newcomer learns about the sharer and sends the offer. The sharer
	// only hears that a viewer arrived.
	h.emit(c, protocol.Notify(protocol.TypeSharerAvailable, snap.Broadcaster))
	h.emitTo(snap.Broadcaster, protocol.Notify(protocol.TypeViewerJoined, c.ID))
}

func (h *Hub) handleStartSharing(c *Client, roomID string, log *slog.Logger) {
	res, err := h.store.StartSharing(roomID, c.ID)

	var conflict *ConflictError
	switch {
	case errors.As(err, &conflict):
		log.Info("Sharing conflict", "room", roomID, "broadcaster", conflict.Existing)
		h.emit(c, protocol.Notify(protocol.TypeSharingConflict, conflict.Existing))
		return
	case err != nil:
		h.emit(c, protocol.Errorf(err.Error()))
		return
	}

	if res.Previous != nil {
		h.afterLeave(c.ID, *res.Previous)
	}

	log.Info("Started sharing", "room", roomID, "others", len(res.Others))
	h.emitAll(res.Others, protocol.Notify(protocol.TypeSharerStarted, c.ID))
}

func (h *Hub) handleStopSharing(c *Client, roomID string, log *slog.Logger) {
	res := h.store.StopSharing(roomID, c.ID)
	if !res.Stopped {
		log.Debug("Ignoring stopSharing from non-broadcaster", "room", roomID)
		return
	}

	log.Info("Stopped sharing", "room", roomID)
	h.emitAll(res.Others, protocol.Notify(protocol.TypeSharerStopped, c.ID))
}

// relay forwards a connection-setup message to its target untouched,
// stamping the sender. Unknown targets are dropped silently.
func (h *Hub) relay(c *Client, msg *protocol.Message, log *slog.Logger) {
	target, ok := h.clients[msg.TargetID]
	if !ok {
		log.Debug("Dropping relay to unknown target", "target", msg.TargetID)
		return
	}

	out := *msg
	out.SenderID = c.ID
	out.TargetID = ""

	log.Debug("Relaying", "target", target.ID)
	h.emit(target, &out)
}

// afterLeave notifies the rest of a room that its broadcaster went away.
func (h *Hub) afterLeave(participantID string, res LeaveResult) {
	if res.RoomDeleted {
		h.log.Info("Room deleted", "room", res.RoomID)
	}
	if res.WasBroadcaster {
		h.emitAll(res.Remaining, protocol.Notify(protocol.TypeSharerStopped, participantID))
	}
}

func (h *Hub) broadcastPresence() {
	users := h.presence.List()
	for _, c := range h.clients {
		h.emit(c, protocol.ActiveUsers(users))
	}
}

func (h *Hub) emitAll(ids []string, msg *protocol.Message) {
	for _, id := range ids {
		h.emitTo(id, msg)
	}
}

func (h *Hub) emitTo(id string, msg *protocol.Message) {
	if c, ok := h.clients[id]; ok {
		h.emit(c, msg)
	}
}

// emit queues msg for c without ever blocking the hub. A client whose
// buffer is full loses the message.
func (h *Hub) emit(c *Client, msg *protocol.Message) {
	select {
	case c.Send <- msg:
	default:
		h.log.Warn("Send buffer full, dropping message", "participant", c.ID, "type", msg.Type)
	}
}
