package negotiation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpcast/internal/protocol"
)

// ErrLinkClosed is returned by operations on a torn down link.
var ErrLinkClosed = errors.New("peer link closed")

// State is a link's position in the handshake.
type State int

const (
	StateIdle State = iota
	StateOfferPending
	StateDescriptionsExchanged
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferPending:
		return "offer-pending"
	case StateDescriptionsExchanged:
		return "exchanged"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Role is what the local side does on a link.
type Role int

const (
	RoleViewer Role = iota
	RoleSharer
)

func (r Role) String() string {
	if r == RoleSharer {
		return "sharer"
	}
	return "viewer"
}

// relayFunc sends an offer, answer or candidate body to the link's remote.
type relayFunc func(msgType string, payload json.RawMessage)

// PeerLink is the handshake with one remote participant.
//
// Every method is serialised by the link's own mutex; links never share
// locks, so handshakes with different remotes progress independently.
type PeerLink struct {
	mu sync.Mutex

	remoteID string
	role     Role
	pc       PeerConnection
	state    State
	relay    relayFunc

	// pending holds candidates that arrived before a remote description.
	pending []webrtc.ICECandidateInit
	senders []*webrtc.RTPSender

	// transportUp remembers a connected transport across renegotiations.
	transportUp bool

	log *slog.Logger
}

func newPeerLink(remoteID string, role Role, pc PeerConnection, relay relayFunc, log *slog.Logger) *PeerLink {
	return &PeerLink{
		remoteID: remoteID,
		role:     role,
		pc:       pc,
		relay:    relay,
		log:      log.With("remote", remoteID),
	}
}

func (l *PeerLink) RemoteID() string { return l.remoteID }

func (l *PeerLink) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *PeerLink) Role() Role {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.role
}

// PendingCandidates is the number of buffered remote candidates.
func (l *PeerLink) PendingCandidates() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Offer creates an offer, sets it locally and only then sends it.
func (l *PeerLink) Offer() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return ErrLinkClosed
	}

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	l.state = StateOfferPending
	return l.send(protocol.TypeOffer, offer)
}

// AcceptOffer applies a remote offer and answers it. It reports false when
// the offer was ignored, either as a duplicate or as a collision lost by
// the sharer side.
func (l *PeerLink) AcceptOffer(offer webrtc.SessionDescription) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return false, ErrLinkClosed
	}
	if sameDescription(l.pc.RemoteDescription(), offer) {
		l.log.Debug("Ignoring duplicate offer")
		return false, nil
	}

	if l.state == StateOfferPending {
		// Both sides offered at once. The viewer yields.
		if l.role == RoleSharer {
			l.log.Debug("Ignoring colliding offer")
			return false, nil
		}
		if err := l.rollback(); err != nil {
			return false, err
		}
	}

	if err := l.setRemote(offer); err != nil {
		return false, err
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return false, fmt.Errorf("create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return false, fmt.Errorf("set local description: %w", err)
	}

	l.exchanged()
	return true, l.send(protocol.TypeAnswer, answer)
}

// ApplyAnswer sets the remote answer to our pending offer. Duplicates and
// answers to an offer we no longer wait on are ignored and cause no
// transition.
func (l *PeerLink) ApplyAnswer(answer webrtc.SessionDescription) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return false, ErrLinkClosed
	}
	if sameDescription(l.pc.RemoteDescription(), answer) {
		l.log.Debug("Ignoring duplicate answer")
		return false, nil
	}
	if l.state != StateOfferPending {
		l.log.Debug("Ignoring answer without a pending offer", "state", l.state)
		return false, nil
	}

	if err := l.setRemote(answer); err != nil {
		return false, err
	}

	l.exchanged()
	return true, nil
}

// AddCandidate applies a remote candidate, or buffers it until a remote
// description exists.
func (l *PeerLink) AddCandidate(c webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return ErrLinkClosed
	}
	if l.pc.RemoteDescription() == nil {
		l.pending = append(l.pending, c)
		return nil
	}
	return l.pc.AddICECandidate(c)
}

// AttachTracks replaces whatever the link was sending with tracks.
func (l *PeerLink) AttachTracks(tracks []webrtc.TrackLocal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return ErrLinkClosed
	}
	return l.attachLocked(tracks)
}

// Renegotiate switches the local side to sharing on an open link: old
// senders go, tracks are attached and a fresh offer is sent.
func (l *PeerLink) Renegotiate(tracks []webrtc.TrackLocal) error {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return ErrLinkClosed
	}
	l.role = RoleSharer
	err := l.attachLocked(tracks)
	l.mu.Unlock()
	if err != nil {
		return err
	}

	return l.Offer()
}

// connectionState records a transport change and reports whether the link
// has reached a terminal state.
func (l *PeerLink) connectionState(s webrtc.PeerConnectionState) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch s {
	case webrtc.PeerConnectionStateConnected:
		l.transportUp = true
		if l.state == StateDescriptionsExchanged {
			l.state = StateConnected
		}
	case webrtc.PeerConnectionStateDisconnected,
		webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateClosed:
		return true
	}
	return false
}

// sendCandidate relays a locally gathered candidate.
func (l *PeerLink) sendCandidate(c *webrtc.ICECandidate) {
	if c == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return
	}
	if err := l.send(protocol.TypeICECandidate, c.ToJSON()); err != nil {
		l.log.Warn("Failed to send candidate", "err", err)
	}
}

// Close tears the link down: buffered candidates are discarded and the
// peer connection, with every sender on it, is closed. Idempotent.
func (l *PeerLink) Close() {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return
	}
	l.state = StateClosed
	l.pending = nil
	l.senders = nil
	pc := l.pc
	l.mu.Unlock()

	if err := pc.Close(); err != nil {
		l.log.Debug("Close peer connection", "err", err)
	}
}

func (l *PeerLink) attachLocked(tracks []webrtc.TrackLocal) error {
	for _, sender := range l.senders {
		if err := l.pc.RemoveTrack(sender); err != nil {
			l.log.Debug("Remove stale sender", "err", err)
		}
	}
	l.senders = l.senders[:0]

	for _, track := range tracks {
		sender, err := l.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add track %s: %w", track.ID(), err)
		}
		l.senders = append(l.senders, sender)
		go drainRTCP(sender)
	}
	return nil
}

func (l *PeerLink) rollback() error {
	rollback := webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}
	if local := l.pc.LocalDescription(); local != nil {
		rollback.SDP = local.SDP
	}
	if err := l.pc.SetLocalDescription(rollback); err != nil {
		return fmt.Errorf("rollback local offer: %w", err)
	}
	l.state = StateIdle
	l.log.Debug("Rolled back local offer")
	return nil
}

// setRemote applies desc and then flushes buffered candidates in arrival order.
func (l *PeerLink) setRemote(desc webrtc.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	for _, c := range l.pending {
		if err := l.pc.AddICECandidate(c); err != nil {
			l.log.Warn("Buffered candidate rejected", "err", err)
		}
	}
	l.pending = nil
	return nil
}

func (l *PeerLink) exchanged() {
	l.state = StateDescriptionsExchanged
	if l.transportUp {
		l.state = StateConnected
	}
}

func (l *PeerLink) send(msgType string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}
	l.relay(msgType, payload)
	return nil
}

func sameDescription(current *webrtc.SessionDescription, next webrtc.SessionDescription) bool {
	return current != nil && current.Type == next.Type && current.SDP == next.SDP
}

// drainRTCP reads RTCP so interceptors such as NACK keep working. It exits
// when the sender is stopped.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
