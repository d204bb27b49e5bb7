package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/BioHazard786/Warpcast/cli/internal/capture"
	"github.com/BioHazard786/Warpcast/cli/internal/mocks"
	"github.com/BioHazard786/Warpcast/cli/internal/negotiation"
	"github.com/BioHazard786/Warpcast/cli/internal/ui"
	"github.com/BioHazard786/Warpcast/internal/protocol"
)

type fakeConn struct {
	in   chan *protocol.Message
	done chan struct{}
	once sync.Once

	mu   sync.Mutex
	sent []*protocol.Message
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan *protocol.Message, 16), done: make(chan struct{})}
}

func (c *fakeConn) Incoming() <-chan *protocol.Message { return c.in }
func (c *fakeConn) Done() <-chan struct{}              { return c.done }
func (c *fakeConn) Close()                             { c.once.Do(func() { close(c.done) }) }

func (c *fakeConn) SendMessage(msg *protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
}

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, m := range c.sent {
		out[i] = m.Type
	}
	return out
}

type lastView struct {
	mu   sync.Mutex
	last ui.Snapshot
}

func (v *lastView) Update(s ui.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.last = s
}

func (v *lastView) get() ui.Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.last
}

func noPeers() (negotiation.PeerConnection, error) {
	return nil, errors.New("no peers in this test")
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

func run(ctx context.Context, s *Session) chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

func TestSession_JoinsAfterWelcome(t *testing.T) {
	req := require.New(t)
	conn := newFakeConn()
	view := &lastView{}
	s := New(conn, Options{Room: "room", Peers: noPeers}, view, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	// Given
	errc := run(ctx, s)

	// When
	conn.in <- &protocol.Message{Type: protocol.TypeWelcome, ParticipantID: "me"}
	conn.in <- protocol.ActiveUsers([]string{"me", "other"})

	// Then
	req.Eventually(func() bool {
		snap := view.get()
		return snap.Self == "me" && len(snap.Users) == 2
	}, time.Second, 10*time.Millisecond)
	req.Equal([]string{protocol.TypeJoin}, conn.types())
	req.Equal("room", view.get().Room)

	cancel()
	req.NoError(<-errc)
	req.Eventually(func() bool {
		select {
		case <-conn.done:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestSession_ConnectionLost(t *testing.T) {
	req := require.New(t)
	conn := newFakeConn()
	s := New(conn, Options{Room: "room", Peers: noPeers}, nil, testLogger())

	errc := run(context.Background(), s)
	conn.in <- &protocol.Message{Type: protocol.TypeWelcome, ParticipantID: "me"}
	close(conn.in)

	err := <-errc
	req.ErrorIs(err, ErrConnectionLost)
	var serr *Error
	req.ErrorAs(err, &serr)
}

func TestSession_ErrorBeforeWelcome(t *testing.T) {
	req := require.New(t)
	conn := newFakeConn()
	s := New(conn, Options{Room: "room", Peers: noPeers}, nil, testLogger())

	errc := run(context.Background(), s)
	conn.in <- protocol.Errorf("room is full")

	err := <-errc
	req.ErrorIs(err, ErrSignalingError)
	req.Contains(err.Error(), "room is full")
	req.Empty(conn.types())
}

func TestSession_CaptureDenied(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockGateway(ctrl)
	gateway.EXPECT().Capture(gomock.Any()).Return(nil, capture.ErrCaptureDenied)

	conn := newFakeConn()
	s := New(conn, Options{Room: "room", Share: true, Gateway: gateway, Peers: noPeers}, nil, testLogger())

	errc := run(context.Background(), s)
	conn.in <- &protocol.Message{Type: protocol.TypeWelcome, ParticipantID: "me"}

	err := <-errc
	req.ErrorIs(err, capture.ErrCaptureDenied)
	req.Equal([]string{protocol.TypeJoin}, conn.types())
}

func TestSession_ServerErrorBecomesStatus(t *testing.T) {
	req := require.New(t)
	conn := newFakeConn()
	view := &lastView{}
	s := New(conn, Options{Room: "room", Peers: noPeers}, view, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	run(ctx, s)
	conn.in <- &protocol.Message{Type: protocol.TypeWelcome, ParticipantID: "me"}
	conn.in <- protocol.Errorf("unknown message type")

	req.Eventually(func() bool {
		snap := view.get()
		return snap.Status == "unknown message type" && snap.StatusTone == ui.ToneError
	}, time.Second, 10*time.Millisecond)
}

func TestSession_SharerStoppedStatus(t *testing.T) {
	req := require.New(t)
	conn := newFakeConn()
	view := &lastView{}
	s := New(conn, Options{Room: "room", Peers: noPeers}, view, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	run(ctx, s)
	conn.in <- &protocol.Message{Type: protocol.TypeWelcome, ParticipantID: "me"}
	conn.in <- protocol.Notify(protocol.TypeSharerStopped, "sharer")

	req.Eventually(func() bool {
		return view.get().Status == negotiation.StatusSharerStopped
	}, time.Second, 10*time.Millisecond)
}

func TestSession_QuitAction(t *testing.T) {
	req := require.New(t)
	conn := newFakeConn()
	actions := make(chan ui.Action, 1)
	s := New(conn, Options{Room: "room", Peers: noPeers, Actions: actions}, nil, testLogger())

	errc := run(context.Background(), s)
	conn.in <- &protocol.Message{Type: protocol.TypeWelcome, ParticipantID: "me"}
	actions <- ui.ActionQuit

	req.NoError(<-errc)
	summary := s.Summary()
	req.Equal("viewer", summary.Role)
	req.Equal("room", summary.Room)
	req.Equal("0 B", summary.Received)
}

func TestError_Format(t *testing.T) {
	req := require.New(t)

	req.Equal("join: connection to signaling server lost", NewError("join", ErrConnectionLost).Error())
	req.Equal("join: signaling server error (full)", WrapError("join", ErrSignalingError, "full").Error())
	req.ErrorIs(WrapError("join", ErrSignalingError, "full"), ErrSignalingError)
}
