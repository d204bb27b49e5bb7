package negotiation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/samber/lo"

	"github.com/BioHazard786/Warpcast/cli/internal/capture"
	"github.com/BioHazard786/Warpcast/internal/protocol"
)

// ErrNotInRoom is returned by StartSharing before JoinRoom.
var ErrNotInRoom = errors.New("join a room first")

// DefaultIdleLinkTimeout bounds how long a link opened by an early
// candidate may wait for the remote's offer.
const DefaultIdleLinkTimeout = 15 * time.Second

// LinkInfo is a read-only view of one link, for display.
type LinkInfo struct {
	RemoteID string
	Role     Role
	State    State
}

// Orchestrator owns every PeerLink of the local participant.
//
// Its mutex only guards the link map and the local role; handshake work
// happens under each link's own lock.
type Orchestrator struct {
	mu sync.Mutex

	selfID      string
	roomID      string
	broadcaster string
	source      capture.Source
	links       map[string]*PeerLink

	newPeer  Factory
	signaler Signaler
	gateway  capture.Gateway
	onTrack  TrackSink

	idleTimeout time.Duration

	status chan Status
	log    *slog.Logger
}

// NewOrchestrator wires an orchestrator. onTrack may be nil.
func NewOrchestrator(newPeer Factory, signaler Signaler, gateway capture.Gateway, onTrack TrackSink, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		links:    make(map[string]*PeerLink),
		newPeer:  newPeer,
		signaler: signaler,
		gateway:  gateway,
		onTrack:  onTrack,

		idleTimeout: DefaultIdleLinkTimeout,

		status: make(chan Status, 32),
		log:    log,
	}
}

// Status delivers user-facing status lines.
func (o *Orchestrator) Status() <-chan Status { return o.status }

// SetSelf records the id the server assigned to this connection.
func (o *Orchestrator) SetSelf(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.selfID = id
}

func (o *Orchestrator) Self() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.selfID
}

func (o *Orchestrator) Room() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.roomID
}

// Broadcaster is the cached id of the room's sharer, possibly ourselves.
func (o *Orchestrator) Broadcaster() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.broadcaster
}

func (o *Orchestrator) Sharing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.source != nil
}

// Links lists the live links sorted by remote id.
func (o *Orchestrator) Links() []LinkInfo {
	o.mu.Lock()
	links := lo.Values(o.links)
	o.mu.Unlock()

	infos := lo.Map(links, func(l *PeerLink, _ int) LinkInfo {
		return LinkInfo{RemoteID: l.RemoteID(), Role: l.Role(), State: l.State()}
	})
	slices.SortFunc(infos, func(a, b LinkInfo) int { return strings.Compare(a.RemoteID, b.RemoteID) })
	return infos
}

// Link returns the link to remoteID, if any.
func (o *Orchestrator) Link(remoteID string) (*PeerLink, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.links[remoteID]
	return l, ok
}

// JoinRoom switches to roomID. Every existing link is torn down first and
// an active broadcast ends.
func (o *Orchestrator) JoinRoom(roomID string) {
	o.mu.Lock()
	links := o.takeLinksLocked()
	src := o.source
	o.source = nil
	o.broadcaster = ""
	o.roomID = roomID
	o.mu.Unlock()

	if src != nil {
		src.Stop()
	}
	closeAll(links)

	o.log.Info("Joining room", "room", roomID)
	o.signaler.SendMessage(protocol.Room(protocol.TypeJoin, roomID))
}

// StartSharing captures local media and announces the broadcast. When
// capture fails nothing is sent and nothing changes.
func (o *Orchestrator) StartSharing(ctx context.Context) error {
	o.mu.Lock()
	roomID, sharing := o.roomID, o.source != nil
	o.mu.Unlock()

	if roomID == "" {
		return ErrNotInRoom
	}
	if sharing {
		return nil
	}

	src, err := o.gateway.Capture(ctx)
	if err != nil {
		o.log.Warn("Capture failed", "err", err)
		o.publish(LevelWarning, StatusCaptureFailed)
		return fmt.Errorf("capture: %w", err)
	}

	o.mu.Lock()
	o.source = src
	watching := o.broadcaster
	if watching == o.selfID {
		watching = ""
	}
	o.broadcaster = o.selfID
	links := lo.Values(o.links)
	o.mu.Unlock()

	o.signaler.SendMessage(protocol.Room(protocol.TypeStartSharing, roomID))
	o.publish(LevelSuccess, StatusSharingStarted)

	// Links opened as a viewer switch direction in place. The link to a
	// sharer we are watching stays as is: the server will refuse this
	// broadcast and we keep watching. Idle links still wait for an offer.
	for _, l := range links {
		if l.RemoteID() == watching || l.State() == StateIdle {
			continue
		}
		if err := l.Renegotiate(src.Tracks()); err != nil {
			o.teardown(l, err)
		}
	}

	go o.watchSource(src)
	return nil
}

// StopSharing ends the broadcast and closes every link, as viewers will
// renegotiate with whoever shares next.
func (o *Orchestrator) StopSharing() {
	o.stopSource(nil)
}

func (o *Orchestrator) watchSource(src capture.Source) {
	<-src.Done()
	o.stopSource(src)
}

// stopSource stops the current source. With expected set, it only acts
// if that source is still the current one.
func (o *Orchestrator) stopSource(expected capture.Source) {
	o.mu.Lock()
	src := o.source
	if src == nil || (expected != nil && src != expected) {
		o.mu.Unlock()
		return
	}
	o.source = nil
	o.broadcaster = ""
	roomID := o.roomID
	links := o.takeLinksLocked()
	o.mu.Unlock()

	src.Stop()
	closeAll(links)

	o.signaler.SendMessage(protocol.Room(protocol.TypeStopSharing, roomID))
	o.publish(LevelInfo, StatusSharingStopped)
}

// HandleSharerAvailable reacts to learning about an existing sharer on join.
func (o *Orchestrator) HandleSharerAvailable(sharerID string) {
	o.connectToSharer(sharerID)
}

// HandleSharerStarted reacts to a participant starting to share.
func (o *Orchestrator) HandleSharerStarted(sharerID string) {
	o.connectToSharer(sharerID)
}

func (o *Orchestrator) connectToSharer(sharerID string) {
	o.mu.Lock()
	if o.source != nil || sharerID == o.selfID {
		o.mu.Unlock()
		return
	}
	o.broadcaster = sharerID
	link, created, err := o.linkForLocked(sharerID, RoleViewer)
	o.mu.Unlock()

	if err != nil {
		o.log.Error("Create peer connection", "remote", sharerID, "err", err)
		o.publish(LevelError, fmt.Sprintf(statusLinkFailedFormat, sharerID))
		return
	}
	if !created && link.State() != StateIdle {
		return
	}

	o.publish(LevelInfo, fmt.Sprintf(statusSharerFoundFormat, sharerID))
	if err := link.Offer(); err != nil {
		o.teardown(link, err)
	}
}

// HandleViewerJoined prepares for a viewer that just arrived. The viewer
// learned about us from the server and sends the offer; we only drop a
// link left over from an earlier visit so its offer gets a fresh one.
func (o *Orchestrator) HandleViewerJoined(viewerID string) {
	o.mu.Lock()
	if o.source == nil {
		o.mu.Unlock()
		o.log.Debug("Ignoring viewer while not sharing", "remote", viewerID)
		return
	}
	stale := o.links[viewerID]
	delete(o.links, viewerID)
	o.mu.Unlock()

	o.log.Info("Viewer joined", "remote", viewerID)
	if stale != nil {
		stale.Close()
	}
}

// HandleSharerStopped drops the link to a sharer that stopped.
func (o *Orchestrator) HandleSharerStopped(sharerID string) {
	o.mu.Lock()
	if o.broadcaster == sharerID {
		o.broadcaster = ""
	}
	link := o.links[sharerID]
	delete(o.links, sharerID)
	o.mu.Unlock()

	if link != nil {
		link.Close()
	}
	o.publish(LevelInfo, StatusSharerStopped)
}

// HandleSharingConflict rolls back a rejected startSharing and goes back
// to watching the participant that holds the room.
func (o *Orchestrator) HandleSharingConflict(existingID string) {
	o.mu.Lock()
	src := o.source
	o.source = nil
	o.broadcaster = existingID
	var switched []*PeerLink
	for id, l := range o.links {
		if l.Role() == RoleSharer {
			switched = append(switched, l)
			delete(o.links, id)
		}
	}
	o.mu.Unlock()

	if src != nil {
		src.Stop()
	}
	closeAll(switched)
	o.publish(LevelWarning, fmt.Sprintf(statusConflictFormat, existingID))

	// Links renegotiated for sharing are gone, the sharer's included
	o.connectToSharer(existingID)
}

// HandleOffer answers an offer from remoteID, creating the link if needed.
func (o *Orchestrator) HandleOffer(remoteID string, payload json.RawMessage) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		o.log.Warn("Malformed offer", "remote", remoteID, "err", err)
		return
	}

	link, tracks, err := o.linkForRemote(remoteID)
	if err != nil {
		o.log.Error("Create peer connection", "remote", remoteID, "err", err)
		return
	}
	if tracks != nil && link.State() == StateIdle {
		if err := link.AttachTracks(tracks); err != nil {
			o.teardown(link, err)
			return
		}
	}

	if _, err := link.AcceptOffer(offer); err != nil {
		o.teardown(link, err)
	}
}

// HandleAnswer applies an answer from remoteID.
func (o *Orchestrator) HandleAnswer(remoteID string, payload json.RawMessage) {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		o.log.Warn("Malformed answer", "remote", remoteID, "err", err)
		return
	}

	link, ok := o.Link(remoteID)
	if !ok {
		o.log.Debug("Answer for unknown link", "remote", remoteID)
		return
	}
	if _, err := link.ApplyAnswer(answer); err != nil {
		o.teardown(link, err)
	}
}

// HandleCandidate applies or buffers a remote ICE candidate.
func (o *Orchestrator) HandleCandidate(remoteID string, payload json.RawMessage) {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &candidate); err != nil {
		o.log.Warn("Malformed candidate", "remote", remoteID, "err", err)
		return
	}

	link, err := o.linkForCandidate(remoteID)
	if err != nil {
		o.log.Error("Create peer connection", "remote", remoteID, "err", err)
		return
	}
	if link == nil {
		o.log.Debug("Dropping candidate from unexpected remote", "remote", remoteID)
		return
	}
	if err := link.AddCandidate(candidate); err != nil {
		o.log.Warn("Add candidate", "remote", remoteID, "err", err)
	}
}

// Close stops any broadcast and tears down every link without signaling.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	src := o.source
	o.source = nil
	links := o.takeLinksLocked()
	o.mu.Unlock()

	if src != nil {
		src.Stop()
	}
	closeAll(links)
}

// linkForRemote finds or creates the link for an inbound relay. The local
// role decides the link role; sharers also get the tracks to attach.
func (o *Orchestrator) linkForRemote(remoteID string) (*PeerLink, []webrtc.TrackLocal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	role := RoleViewer
	var tracks []webrtc.TrackLocal
	if o.source != nil {
		role = RoleSharer
		tracks = o.source.Tracks()
	}

	link, _, err := o.linkForLocked(remoteID, role)
	return link, tracks, err
}

// linkForCandidate returns the link a candidate belongs to. A candidate
// may beat the offer that creates the link, but only from a remote that
// can offer to us: any viewer while we share, or the sharer we watch.
// Anyone else gets a nil link. A link opened here that sees no offer
// within idleTimeout is reaped.
func (o *Orchestrator) linkForCandidate(remoteID string) (*PeerLink, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if link, ok := o.links[remoteID]; ok {
		return link, nil
	}

	role := RoleViewer
	switch {
	case o.source != nil:
		role = RoleSharer
	case remoteID == "" || remoteID != o.broadcaster:
		return nil, nil
	}

	link, _, err := o.linkForLocked(remoteID, role)
	if err != nil {
		return nil, err
	}
	time.AfterFunc(o.idleTimeout, func() { o.reapIdle(link) })
	return link, nil
}

// reapIdle drops link if it is still current and never got an offer.
func (o *Orchestrator) reapIdle(link *PeerLink) {
	remoteID := link.RemoteID()

	o.mu.Lock()
	idle := o.links[remoteID] == link && link.State() == StateIdle
	if idle {
		delete(o.links, remoteID)
	}
	o.mu.Unlock()

	if idle {
		o.log.Debug("Reaping link that never got an offer", "remote", remoteID)
		link.Close()
	}
}

// linkForLocked returns the existing link to remoteID or creates one.
func (o *Orchestrator) linkForLocked(remoteID string, role Role) (*PeerLink, bool, error) {
	if link, ok := o.links[remoteID]; ok {
		return link, false, nil
	}

	pc, err := o.newPeer()
	if err != nil {
		return nil, false, err
	}

	roomID := o.roomID
	relay := func(msgType string, payload json.RawMessage) {
		o.signaler.SendMessage(protocol.Relay(msgType, roomID, remoteID, payload))
	}
	link := newPeerLink(remoteID, role, pc, relay, o.log)

	if role == RoleViewer {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
			if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				pc.Close()
				return nil, false, fmt.Errorf("add %s transceiver: %w", kind, err)
			}
		}
	}

	pc.OnICECandidate(link.sendCandidate)
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		o.onConnectionState(link, s)
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		// On a viewer link the only inbound media is the shared screen
		if link.Role() != RoleViewer {
			return
		}
		o.log.Info("Receiving track", "remote", remoteID, "kind", track.Kind(), "codec", track.Codec().MimeType)
		if o.onTrack != nil {
			o.onTrack(remoteID, track, pc)
		}
	})

	o.links[remoteID] = link
	return link, true, nil
}

func (o *Orchestrator) onConnectionState(link *PeerLink, s webrtc.PeerConnectionState) {
	remoteID := link.RemoteID()
	o.log.Debug("Connection state", "remote", remoteID, "state", s)

	if !link.connectionState(s) {
		if s == webrtc.PeerConnectionStateConnected {
			o.publish(LevelSuccess, fmt.Sprintf(statusConnectedFormat, remoteID))
		}
		return
	}

	o.mu.Lock()
	current := o.links[remoteID] == link
	if current {
		delete(o.links, remoteID)
	}
	wasBroadcaster := o.broadcaster == remoteID
	if current && wasBroadcaster {
		o.broadcaster = ""
	}
	o.mu.Unlock()

	link.Close()
	if !current {
		return
	}

	if wasBroadcaster {
		o.publish(LevelWarning, StatusSharerLeft)
		return
	}
	o.publish(LevelInfo, fmt.Sprintf(statusViewerLeftFormat, remoteID))
}

// teardown closes one failed link. The rest of the session is unaffected.
func (o *Orchestrator) teardown(link *PeerLink, err error) {
	remoteID := link.RemoteID()
	o.log.Error("Negotiation failed", "remote", remoteID, "err", err)

	o.mu.Lock()
	if o.links[remoteID] == link {
		delete(o.links, remoteID)
	}
	o.mu.Unlock()

	link.Close()
	o.publish(LevelError, fmt.Sprintf(statusLinkFailedFormat, remoteID))
}

func (o *Orchestrator) takeLinksLocked() []*PeerLink {
	links := lo.Values(o.links)
	o.links = make(map[string]*PeerLink)
	return links
}

func (o *Orchestrator) publish(level Level, text string) {
	select {
	case o.status <- Status{Level: level, Text: text}:
	default:
		o.log.Debug("Status dropped", "text", text)
	}
}

func closeAll(links []*PeerLink) {
	for _, l := range links {
		l.Close()
	}
}
