package negotiation

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warpcast/internal/protocol"
)

var errBoom = errors.New("boom")

// fakePC is an in-memory PeerConnection recording what a link does to it.
type fakePC struct {
	mu sync.Mutex

	local, remote *webrtc.SessionDescription
	offers        int
	answers       int
	rollbacks     int
	candidates    []webrtc.ICECandidateInit
	tracks        []webrtc.TrackLocal
	removed       int
	transceivers  []webrtc.RTPTransceiverInit
	closed        bool
	offerErr      error

	onICE   func(*webrtc.ICECandidate)
	onState func(webrtc.PeerConnectionState)
	onTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
}

func (f *fakePC) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offerErr != nil {
		return webrtc.SessionDescription{}, f.offerErr
	}
	f.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", f.offers)}, nil
}

func (f *fakePC) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer-%d", f.answers)}, nil
}

func (f *fakePC) SetLocalDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if desc.Type == webrtc.SDPTypeRollback {
		f.rollbacks++
		f.local = nil
		return nil
	}
	f.local = &desc
	return nil
}

func (f *fakePC) SetRemoteDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remote = &desc
	return nil
}

func (f *fakePC) LocalDescription() *webrtc.SessionDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.local
}

func (f *fakePC) RemoteDescription() *webrtc.SessionDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remote
}

func (f *fakePC) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakePC) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks = append(f.tracks, track)
	return &webrtc.RTPSender{}, nil
}

func (f *fakePC) RemoveTrack(*webrtc.RTPSender) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed++
	return nil
}

func (f *fakePC) AddTransceiverFromKind(_ webrtc.RTPCodecType, init ...webrtc.RTPTransceiverInit) (*webrtc.RTPTransceiver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transceivers = append(f.transceivers, init...)
	return nil, nil
}

func (f *fakePC) WriteRTCP([]rtcp.Packet) error { return nil }

func (f *fakePC) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onICE = fn
}

func (f *fakePC) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onState = fn
}

func (f *fakePC) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onTrack = fn
}

func (f *fakePC) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePC) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakePC) addedTracks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tracks)
}

func (f *fakePC) appliedCandidates() []webrtc.ICECandidateInit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), f.candidates...)
}

// fireState runs the connection state callback as pion would.
func (f *fakePC) fireState(s webrtc.PeerConnectionState) {
	f.mu.Lock()
	fn := f.onState
	f.mu.Unlock()
	fn(s)
}

// recorder is a Signaler keeping every message it was given.
type recorder struct {
	mu   sync.Mutex
	msgs []*protocol.Message
}

func (r *recorder) SendMessage(msg *protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) sent() []*protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*protocol.Message(nil), r.msgs...)
}

// last returns the most recent message of type t.
func (r *recorder) last(t string) *protocol.Message {
	msgs := r.sent()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == t {
			return msgs[i]
		}
	}
	return nil
}

func (r *recorder) count(t string) int {
	n := 0
	for _, m := range r.sent() {
		if m.Type == t {
			n++
		}
	}
	return n
}

// fakeSource is a capture.Source backed by one static VP8 track.
type fakeSource struct {
	track *webrtc.TrackLocalStaticSample
	done  chan struct{}
	once  sync.Once

	mu      sync.Mutex
	stopped bool
}

func newFakeSource(t *testing.T) *fakeSource {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "warpcast")
	require.NoError(t, err)
	return &fakeSource{track: track, done: make(chan struct{})}
}

func (s *fakeSource) Tracks() []webrtc.TrackLocal { return []webrtc.TrackLocal{s.track} }

func (s *fakeSource) Done() <-chan struct{} { return s.done }

func (s *fakeSource) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.end()
}

// end closes the source as if the capture ended by itself.
func (s *fakeSource) end() { s.once.Do(func() { close(s.done) }) }

func (s *fakeSource) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}
