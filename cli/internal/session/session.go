// Package session runs one warpcast participant: it joins a room, feeds
// server messages to the negotiator and keeps the live view current.
package session

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/samber/lo"

	"github.com/BioHazard786/Warpcast/cli/internal/capture"
	"github.com/BioHazard786/Warpcast/cli/internal/negotiation"
	"github.com/BioHazard786/Warpcast/cli/internal/signaling"
	"github.com/BioHazard786/Warpcast/cli/internal/stream"
	"github.com/BioHazard786/Warpcast/cli/internal/ui"
	"github.com/BioHazard786/Warpcast/cli/internal/utils"
	"github.com/BioHazard786/Warpcast/internal/protocol"
)

const refreshInterval = time.Second

// Conn is a connected signaling client.
type Conn interface {
	signaling.Source
	negotiation.Signaler
	Close()
}

// View renders session snapshots.
type View interface {
	Update(ui.Snapshot)
}

// Options describe what the session does once connected.
type Options struct {
	Room  string
	Share bool

	// Gateway is only needed to share. Peers is required.
	Gateway capture.Gateway
	Peers   negotiation.Factory

	// Actions carries key presses from the live view. May be nil.
	Actions <-chan ui.Action
}

// Session ties the signaling connection, the negotiator and the view.
type Session struct {
	conn    Conn
	opts    Options
	orch    *negotiation.Orchestrator
	handler *signaling.Handler
	view    View
	log     *slog.Logger

	ctx context.Context

	mu         sync.Mutex
	users      []string
	monitors   map[string][]*stream.Monitor
	status     negotiation.Status
	started    time.Time
	peakLinks  int
	everShared bool
}

// New builds a session on conn. view may be nil.
func New(conn Conn, opts Options, view View, log *slog.Logger) *Session {
	s := &Session{
		conn:     conn,
		opts:     opts,
		handler:  signaling.NewHandler(conn),
		view:     view,
		log:      log.With("room", opts.Room),
		monitors: make(map[string][]*stream.Monitor),
	}
	s.orch = negotiation.NewOrchestrator(opts.Peers, conn, opts.Gateway, s.onTrack, s.log)
	return s
}

// Run joins the room and serves it until ctx is cancelled or the server
// goes away. The connection is closed on return.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	defer s.conn.Close()
	defer s.orch.Close()

	go s.handler.Start()

	if err := s.awaitWelcome(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()

	s.orch.JoinRoom(s.opts.Room)
	if s.opts.Share {
		if err := s.startSharing(ctx); err != nil {
			return NewError("start sharing", err)
		}
	}
	s.refresh()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-s.handler.Signal:
			if !ok {
				return NewError("signaling", ErrConnectionLost)
			}
			s.dispatch(msg)

		case users, ok := <-s.handler.ActiveUsers:
			if !ok {
				return NewError("signaling", ErrConnectionLost)
			}
			s.mu.Lock()
			s.users = users
			s.mu.Unlock()

		case text, ok := <-s.handler.Error:
			if !ok {
				return NewError("signaling", ErrConnectionLost)
			}
			s.log.Warn("Server error", "error", text)
			s.setStatus(negotiation.Status{Level: negotiation.LevelError, Text: text})

		case st := <-s.orch.Status():
			s.setStatus(st)

		case a := <-s.opts.Actions:
			if a == ui.ActionQuit {
				return nil
			}
			if a == ui.ActionToggleShare {
				s.toggleSharing(ctx)
			}

		case <-ticker.C:
		}

		s.refresh()
	}
}

func (s *Session) awaitWelcome(ctx context.Context) error {
	select {
	case id, ok := <-s.handler.Welcome:
		if !ok {
			return NewError("join", ErrConnectionLost)
		}
		if id == "" {
			return NewError("join", ErrNoWelcome)
		}
		s.orch.SetSelf(id)
		s.log.Info("Assigned participant id", "participant", id)
		return nil
	case text, ok := <-s.handler.Error:
		if !ok {
			return NewError("join", ErrConnectionLost)
		}
		return WrapError("join", ErrSignalingError, text)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) dispatch(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeSharerAvailable:
		s.orch.HandleSharerAvailable(msg.ParticipantID)
	case protocol.TypeSharerStarted:
		s.orch.HandleSharerStarted(msg.ParticipantID)
	case protocol.TypeViewerJoined:
		s.orch.HandleViewerJoined(msg.ParticipantID)
	case protocol.TypeSharerStopped:
		s.orch.HandleSharerStopped(msg.ParticipantID)
	case protocol.TypeSharingConflict:
		s.orch.HandleSharingConflict(msg.ParticipantID)
	case protocol.TypeOffer:
		s.orch.HandleOffer(msg.SenderID, msg.RelayPayload())
	case protocol.TypeAnswer:
		s.orch.HandleAnswer(msg.SenderID, msg.RelayPayload())
	case protocol.TypeICECandidate:
		s.orch.HandleCandidate(msg.SenderID, msg.RelayPayload())
	default:
		s.log.Debug("Unhandled signal", "type", msg.Type)
	}
}

func (s *Session) startSharing(ctx context.Context) error {
	if err := s.orch.StartSharing(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.everShared = true
	s.mu.Unlock()
	return nil
}

func (s *Session) toggleSharing(ctx context.Context) {
	if s.orch.Sharing() {
		s.orch.StopSharing()
		return
	}
	if s.opts.Gateway == nil {
		return
	}
	if err := s.startSharing(ctx); err != nil {
		s.log.Debug("Start sharing failed", "err", err)
	}
}

// onTrack starts a monitor for every track received from a sharer.
func (s *Session) onTrack(remoteID string, track *webrtc.TrackRemote, pc negotiation.PeerConnection) {
	m := stream.NewMonitor(track, pc, s.log.With("remote", remoteID))

	s.mu.Lock()
	s.monitors[remoteID] = append(s.monitors[remoteID], m)
	ctx := s.ctx
	s.mu.Unlock()

	go func() {
		if err := m.Run(ctx); err != nil {
			s.log.Debug("Track reader stopped", "remote", remoteID, "err", err)
		}
	}()
}

func (s *Session) setStatus(st negotiation.Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Snapshot is the current session state as the view shows it.
func (s *Session) Snapshot() ui.Snapshot {
	links := s.orch.Links()
	peers := lo.Map(links, func(l negotiation.LinkInfo, _ int) ui.Peer {
		return ui.Peer{ID: l.RemoteID, Role: l.Role.String(), State: l.State.String()}
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	s.peakLinks = max(s.peakLinks, len(links))

	var tracks []ui.TrackStats
	for _, l := range links {
		for _, m := range s.monitors[l.RemoteID] {
			st := m.Stats()
			tracks = append(tracks, ui.TrackStats{
				Remote:  l.RemoteID,
				Kind:    st.Kind,
				Codec:   st.Codec,
				Packets: st.Packets,
				Frames:  st.Frames,
				Lost:    st.Lost,
				Bytes:   st.Bytes,
				Bitrate: st.Bitrate(),
			})
		}
	}

	return ui.Snapshot{
		Room:        s.orch.Room(),
		Self:        s.orch.Self(),
		Broadcaster: s.orch.Broadcaster(),
		Sharing:     s.orch.Sharing(),
		Users:       slices.Clone(s.users),
		Links:       peers,
		Tracks:      tracks,
		Status:      s.status.Text,
		StatusTone:  toneOf(s.status.Level),
		Started:     s.started,
	}
}

// Summary totals the session for the exit report.
func (s *Session) Summary() ui.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	role := "viewer"
	if s.everShared {
		role = "sharer"
	}

	summary := ui.SessionSummary{
		Room:  s.opts.Room,
		Role:  role,
		Links: s.peakLinks,
	}
	if !s.started.IsZero() {
		summary.Duration = utils.FormatTimeDuration(time.Since(s.started))
	}

	var bytes uint64
	for _, monitors := range s.monitors {
		for _, m := range monitors {
			st := m.Stats()
			summary.Packets += st.Packets
			summary.Frames += st.Frames
			bytes += st.Bytes
		}
	}
	summary.Received = utils.FormatSize(bytes)
	return summary
}

func (s *Session) refresh() {
	if s.view == nil {
		return
	}
	s.view.Update(s.Snapshot())
}

func toneOf(l negotiation.Level) ui.Tone {
	switch l {
	case negotiation.LevelSuccess:
		return ui.ToneSuccess
	case negotiation.LevelWarning:
		return ui.ToneWarning
	case negotiation.LevelError:
		return ui.ToneError
	}
	return ui.ToneInfo
}
