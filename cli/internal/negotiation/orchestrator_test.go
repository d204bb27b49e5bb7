package negotiation

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/BioHazard786/Warpcast/cli/internal/capture"
	"github.com/BioHazard786/Warpcast/cli/internal/mocks"
	"github.com/BioHazard786/Warpcast/internal/protocol"
)

// peers hands out fakePCs and remembers them in creation order.
type peers struct {
	mu   sync.Mutex
	pcs  []*fakePC
	next func(*fakePC)
}

func (p *peers) factory() (PeerConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pc := &fakePC{}
	if p.next != nil {
		p.next(pc)
		p.next = nil
	}
	p.pcs = append(p.pcs, pc)
	return pc, nil
}

func (p *peers) get(i int) *fakePC {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pcs[i]
}

func (p *peers) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pcs)
}

// staticGateway always captures the same source.
type staticGateway struct{ src capture.Source }

func (g staticGateway) Capture(context.Context) (capture.Source, error) { return g.src, nil }

func newTestOrchestrator(gateway capture.Gateway) (*Orchestrator, *recorder, *peers) {
	sig := &recorder{}
	ps := &peers{}
	o := NewOrchestrator(ps.factory, sig, gateway, nil, testLogger())
	return o, sig, ps
}

func encode(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func statuses(o *Orchestrator) []string {
	var out []string
	for {
		select {
		case s := <-o.Status():
			out = append(out, s.Text)
		default:
			return out
		}
	}
}

func TestOrchestrator_ViewerConnectsToSharer(t *testing.T) {
	req := require.New(t)
	o, sig, ps := newTestOrchestrator(nil)
	o.SetSelf("viewer")
	o.JoinRoom("room")

	// When a sharer is announced
	o.HandleSharerAvailable("sharer")

	// Then a receive-only link offers to it
	req.Equal("sharer", o.Broadcaster())
	req.Equal(1, ps.len())
	pc := ps.get(0)
	req.Len(pc.transceivers, 2)
	for _, init := range pc.transceivers {
		req.Equal(webrtc.RTPTransceiverDirectionRecvonly, init.Direction)
	}

	offer := sig.last(protocol.TypeOffer)
	req.NotNil(offer)
	req.Equal("room", offer.RoomID)
	req.Equal("sharer", offer.TargetID)

	link, ok := o.Link("sharer")
	req.True(ok)
	req.Equal(RoleViewer, link.Role())
	req.Equal(StateOfferPending, link.State())

	// When the answer arrives and the transport comes up
	o.HandleAnswer("sharer", encode(t, remoteAnswer("answer")))
	pc.fireState(webrtc.PeerConnectionStateConnected)

	// Then
	req.Equal(StateConnected, link.State())
	req.Contains(statuses(o), "Connected to sharer.")
}

func TestOrchestrator_JoinSendsRoom(t *testing.T) {
	req := require.New(t)
	o, sig, _ := newTestOrchestrator(nil)

	o.JoinRoom("lobby")

	msg := sig.last(protocol.TypeJoin)
	req.NotNil(msg)
	req.Equal("lobby", msg.RoomID)
	req.Equal("lobby", o.Room())
}

func TestOrchestrator_CandidateBeforeOffer(t *testing.T) {
	req := require.New(t)
	o, sig, ps := newTestOrchestrator(staticGateway{newFakeSource(t)})
	o.JoinRoom("room")
	req.NoError(o.StartSharing(context.Background()))

	// Given a candidate from a viewer we have no link to yet
	o.HandleCandidate("viewer", encode(t, webrtc.ICECandidateInit{Candidate: "candidate:early"}))
	link, ok := o.Link("viewer")
	req.True(ok)
	req.Equal(1, link.PendingCandidates())

	// When its offer follows
	offerFrom(t, o, "viewer")

	// Then the candidate is applied and we answer
	req.Equal(1, ps.len())
	req.Zero(link.PendingCandidates())
	req.Len(ps.get(0).appliedCandidates(), 1)
	req.Equal(StateDescriptionsExchanged, link.State())
	answer := sig.last(protocol.TypeAnswer)
	req.NotNil(answer)
	req.Equal("viewer", answer.TargetID)
}

func TestOrchestrator_StrayCandidateDropped(t *testing.T) {
	req := require.New(t)
	o, _, ps := newTestOrchestrator(nil)
	o.JoinRoom("room")

	// When someone we neither watch nor share to sends a candidate
	o.HandleCandidate("stranger", encode(t, webrtc.ICECandidateInit{Candidate: "candidate:stray"}))

	// Then no link is opened for it
	_, ok := o.Link("stranger")
	req.False(ok)
	req.Empty(o.Links())
	req.Zero(ps.len())
}

func TestOrchestrator_LateCandidateAfterStopSharing(t *testing.T) {
	req := require.New(t)
	o, _, ps := newTestOrchestrator(staticGateway{newFakeSource(t)})
	o.JoinRoom("room")
	req.NoError(o.StartSharing(context.Background()))
	offerFrom(t, o, "viewer")
	o.StopSharing()

	// When the former viewer's trickle is still in flight
	o.HandleCandidate("viewer", encode(t, webrtc.ICECandidateInit{Candidate: "candidate:late"}))

	// Then it does not bring the link back
	req.Empty(o.Links())
	req.Equal(1, ps.len())
}

func TestOrchestrator_IdleCandidateLinkReaped(t *testing.T) {
	req := require.New(t)
	o, sig, ps := newTestOrchestrator(staticGateway{newFakeSource(t)})
	o.idleTimeout = 20 * time.Millisecond
	o.JoinRoom("room")
	req.NoError(o.StartSharing(context.Background()))

	// Given a candidate whose offer never comes
	o.HandleCandidate("viewer", encode(t, webrtc.ICECandidateInit{Candidate: "candidate:orphan"}))
	req.Len(o.Links(), 1)

	// Then the link is dropped once the wait runs out
	req.Eventually(func() bool {
		return len(o.Links()) == 0
	}, time.Second, 5*time.Millisecond)
	req.True(ps.get(0).isClosed())
	req.Zero(sig.count(protocol.TypeOffer))
}

func TestOrchestrator_AnswerForUnknownLinkIgnored(t *testing.T) {
	req := require.New(t)
	o, _, ps := newTestOrchestrator(nil)
	o.JoinRoom("room")

	o.HandleAnswer("nobody", encode(t, remoteAnswer("answer")))

	req.Zero(ps.len())
	req.Empty(o.Links())
}

func TestOrchestrator_MalformedPayloadIgnored(t *testing.T) {
	req := require.New(t)
	o, _, ps := newTestOrchestrator(nil)
	o.JoinRoom("room")

	o.HandleOffer("x", json.RawMessage(`"not an offer"`))
	o.HandleCandidate("x", json.RawMessage(`[1,2]`))

	req.Zero(ps.len())
}

func TestOrchestrator_CaptureDeniedSendsNothing(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	sig := mocks.NewMockSignaler(ctrl)
	gateway := mocks.NewMockGateway(ctrl)

	// Given only the join is expected on the wire
	sig.EXPECT().SendMessage(gomock.Any()).Times(1)
	gateway.EXPECT().Capture(gomock.Any()).Return(nil, capture.ErrCaptureDenied)

	ps := &peers{}
	o := NewOrchestrator(ps.factory, sig, gateway, nil, testLogger())
	o.JoinRoom("room")

	// When
	err := o.StartSharing(context.Background())

	// Then
	req.ErrorIs(err, capture.ErrCaptureDenied)
	req.False(o.Sharing())
	req.Empty(o.Broadcaster())
	req.Equal([]string{StatusCaptureFailed}, statuses(o))
}

func TestOrchestrator_StartSharingRequiresRoom(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockGateway(ctrl)
	o, sig, _ := newTestOrchestrator(gateway)

	err := o.StartSharing(context.Background())

	req.ErrorIs(err, ErrNotInRoom)
	req.Empty(sig.sent())
}

// offerFrom delivers an offer from remoteID as the relay would.
func offerFrom(t *testing.T, o *Orchestrator, remoteID string) {
	t.Helper()
	o.HandleOffer(remoteID, encode(t, remoteOffer("offer-from-"+remoteID)))
}

func TestOrchestrator_SharerAnswersNewViewer(t *testing.T) {
	req := require.New(t)
	src := newFakeSource(t)
	o, sig, ps := newTestOrchestrator(staticGateway{src})
	o.SetSelf("sharer")
	o.JoinRoom("room")

	req.NoError(o.StartSharing(context.Background()))
	req.True(o.Sharing())
	req.Equal("sharer", o.Broadcaster())
	req.Equal(1, sig.count(protocol.TypeStartSharing))

	// Given a viewer arrives, it is the one to offer
	o.HandleViewerJoined("viewer")
	req.Zero(ps.len())
	req.Zero(sig.count(protocol.TypeOffer))

	// When its offer is relayed
	offerFrom(t, o, "viewer")

	// Then our tracks ride on the answer
	req.Equal(1, ps.len())
	pc := ps.get(0)
	req.Equal(1, pc.addedTracks())
	req.Empty(pc.transceivers)

	answer := sig.last(protocol.TypeAnswer)
	req.NotNil(answer)
	req.Equal("viewer", answer.TargetID)

	link, _ := o.Link("viewer")
	req.Equal(RoleSharer, link.Role())
	req.Equal(StateDescriptionsExchanged, link.State())
}

func TestOrchestrator_StartSharingTwiceIsNoop(t *testing.T) {
	req := require.New(t)
	o, sig, _ := newTestOrchestrator(staticGateway{newFakeSource(t)})
	o.JoinRoom("room")

	req.NoError(o.StartSharing(context.Background()))
	req.NoError(o.StartSharing(context.Background()))

	req.Equal(1, sig.count(protocol.TypeStartSharing))
}

func TestOrchestrator_ViewerJoinedIgnoredWhenNotSharing(t *testing.T) {
	req := require.New(t)
	o, sig, ps := newTestOrchestrator(nil)
	o.JoinRoom("room")

	o.HandleViewerJoined("viewer")

	req.Zero(ps.len())
	req.Zero(sig.count(protocol.TypeOffer))
}

func TestOrchestrator_RejoinedViewerGetsFreshLink(t *testing.T) {
	req := require.New(t)
	o, _, ps := newTestOrchestrator(staticGateway{newFakeSource(t)})
	o.JoinRoom("room")
	req.NoError(o.StartSharing(context.Background()))
	offerFrom(t, o, "viewer")
	first, _ := o.Link("viewer")

	// When the same viewer shows up again
	o.HandleViewerJoined("viewer")

	// Then the old link is gone before the new offer lands
	req.Equal(StateClosed, first.State())
	req.True(ps.get(0).isClosed())
	req.Empty(o.Links())

	offerFrom(t, o, "viewer")
	second, _ := o.Link("viewer")
	req.NotSame(first, second)
	req.Equal(2, ps.len())
	req.Len(o.Links(), 1)
}

func TestOrchestrator_ViewerYieldsOnGlare(t *testing.T) {
	req := require.New(t)
	o, sig, ps := newTestOrchestrator(nil)
	o.JoinRoom("room")
	o.HandleSharerStarted("sharer")

	// When the sharer's offer crosses ours
	o.HandleOffer("sharer", encode(t, remoteOffer("sharer-offer")))

	// Then
	req.Equal(1, ps.get(0).rollbacks)
	link, _ := o.Link("sharer")
	req.Equal(StateDescriptionsExchanged, link.State())
	req.Equal(1, sig.count(protocol.TypeAnswer))
}

func TestOrchestrator_SharerIgnoresGlare(t *testing.T) {
	req := require.New(t)
	o, sig, ps := newTestOrchestrator(staticGateway{newFakeSource(t)})
	o.JoinRoom("room")
	offerFrom(t, o, "peer")
	req.Equal(1, sig.count(protocol.TypeAnswer))

	// Given we start sharing and renegotiate the open link
	req.NoError(o.StartSharing(context.Background()))

	// When the peer's own offer crosses ours
	o.HandleOffer("peer", encode(t, remoteOffer("peer-offer-2")))

	// Then
	req.Zero(ps.get(0).rollbacks)
	req.Equal(1, sig.count(protocol.TypeAnswer))
	link, _ := o.Link("peer")
	req.Equal(StateOfferPending, link.State())
}

func TestOrchestrator_SharerFailureFreesRoom(t *testing.T) {
	req := require.New(t)
	o, _, ps := newTestOrchestrator(nil)
	o.JoinRoom("room")
	o.HandleSharerAvailable("sharer")
	statuses(o)

	// When the sharer's transport dies
	ps.get(0).fireState(webrtc.PeerConnectionStateFailed)

	// Then
	req.Empty(o.Links())
	req.Empty(o.Broadcaster())
	req.True(ps.get(0).isClosed())
	req.Equal([]string{StatusSharerLeft}, statuses(o))
}

func TestOrchestrator_ViewerDisconnectKeepsBroadcast(t *testing.T) {
	req := require.New(t)
	o, _, ps := newTestOrchestrator(staticGateway{newFakeSource(t)})
	o.SetSelf("sharer")
	o.JoinRoom("room")
	req.NoError(o.StartSharing(context.Background()))
	offerFrom(t, o, "a")
	offerFrom(t, o, "b")
	statuses(o)

	ps.get(0).fireState(webrtc.PeerConnectionStateDisconnected)

	req.True(o.Sharing())
	req.Equal("sharer", o.Broadcaster())
	links := o.Links()
	req.Len(links, 1)
	req.Equal("b", links[0].RemoteID)
	req.Equal([]string{"Viewer a disconnected."}, statuses(o))
}

func TestOrchestrator_StaleLinkStateIgnored(t *testing.T) {
	req := require.New(t)
	o, _, ps := newTestOrchestrator(staticGateway{newFakeSource(t)})
	o.JoinRoom("room")
	req.NoError(o.StartSharing(context.Background()))
	offerFrom(t, o, "viewer")
	o.HandleViewerJoined("viewer")
	offerFrom(t, o, "viewer")
	statuses(o)

	// When the replaced connection reports closed
	ps.get(0).fireState(webrtc.PeerConnectionStateClosed)

	// Then the fresh link survives
	link, ok := o.Link("viewer")
	req.True(ok)
	req.NotEqual(StateClosed, link.State())
	req.Empty(statuses(o))
}

func TestOrchestrator_JoinRoomTearsDownLinks(t *testing.T) {
	req := require.New(t)
	src := newFakeSource(t)
	o, sig, ps := newTestOrchestrator(staticGateway{src})
	o.JoinRoom("first")
	req.NoError(o.StartSharing(context.Background()))
	offerFrom(t, o, "a")
	offerFrom(t, o, "b")

	// When
	o.JoinRoom("second")

	// Then
	req.Empty(o.Links())
	req.True(ps.get(0).isClosed())
	req.True(ps.get(1).isClosed())
	req.True(src.isStopped())
	req.False(o.Sharing())
	req.Empty(o.Broadcaster())
	req.Equal("second", sig.last(protocol.TypeJoin).RoomID)
}

func TestOrchestrator_StartSharingRenegotiatesExistingLinks(t *testing.T) {
	req := require.New(t)
	o, sig, ps := newTestOrchestrator(staticGateway{newFakeSource(t)})
	o.JoinRoom("room")
	offerFrom(t, o, "peer")
	link, _ := o.Link("peer")
	req.Equal(RoleViewer, link.Role())
	offers := sig.count(protocol.TypeOffer)

	// When
	req.NoError(o.StartSharing(context.Background()))

	// Then the same connection now carries our tracks
	req.Equal(1, ps.len())
	req.Equal(RoleSharer, link.Role())
	req.Equal(1, ps.get(0).addedTracks())
	req.Equal(StateOfferPending, link.State())
	req.Equal(offers+1, sig.count(protocol.TypeOffer))
}

func TestOrchestrator_OneFailedLinkLeavesOthers(t *testing.T) {
	req := require.New(t)
	o, _, ps := newTestOrchestrator(staticGateway{newFakeSource(t)})
	o.JoinRoom("room")
	offerFrom(t, o, "a")
	offerFrom(t, o, "b")
	statuses(o)

	// Given b's connection cannot produce an offer
	ps.get(1).offerErr = errBoom

	// When sharing starts and both links renegotiate
	req.NoError(o.StartSharing(context.Background()))

	// Then
	req.True(ps.get(1).isClosed())
	_, ok := o.Link("b")
	req.False(ok)
	a, ok := o.Link("a")
	req.True(ok)
	req.Equal(StateOfferPending, a.State())
	req.True(o.Sharing())
	req.Contains(statuses(o), "Connection with b failed.")
}

func TestOrchestrator_StopSharing(t *testing.T) {
	req := require.New(t)
	src := newFakeSource(t)
	o, sig, ps := newTestOrchestrator(staticGateway{src})
	o.JoinRoom("room")
	req.NoError(o.StartSharing(context.Background()))
	offerFrom(t, o, "viewer")

	o.StopSharing()

	req.True(src.isStopped())
	req.False(o.Sharing())
	req.Empty(o.Links())
	req.True(ps.get(0).isClosed())
	req.Equal(1, sig.count(protocol.TypeStopSharing))
}

func TestOrchestrator_SourceEndingStopsSharing(t *testing.T) {
	req := require.New(t)
	src := newFakeSource(t)
	o, sig, _ := newTestOrchestrator(staticGateway{src})
	o.JoinRoom("room")
	req.NoError(o.StartSharing(context.Background()))

	// When the capture ends by itself
	src.end()

	// Then
	req.Eventually(func() bool {
		return sig.count(protocol.TypeStopSharing) == 1
	}, time.Second, 10*time.Millisecond)
	req.False(o.Sharing())
}

func TestOrchestrator_SharingConflictRollsBack(t *testing.T) {
	req := require.New(t)
	src := newFakeSource(t)
	o, sig, _ := newTestOrchestrator(staticGateway{src})
	o.SetSelf("late")
	o.JoinRoom("room")
	req.NoError(o.StartSharing(context.Background()))
	statuses(o)

	// When the server rejects our broadcast
	o.HandleSharingConflict("early")

	// Then we stop and watch the one already sharing
	req.False(o.Sharing())
	req.True(src.isStopped())
	req.Equal("early", o.Broadcaster())
	req.Equal([]string{
		"early is already sharing in this room.",
		"early is sharing, connecting...",
	}, statuses(o))
	link, ok := o.Link("early")
	req.True(ok)
	req.Equal(RoleViewer, link.Role())
	req.Equal("early", sig.last(protocol.TypeOffer).TargetID)
}

func TestOrchestrator_SharingConflictKeepsViewerLink(t *testing.T) {
	req := require.New(t)
	o, sig, ps := newTestOrchestrator(staticGateway{newFakeSource(t)})
	o.SetSelf("late")
	o.JoinRoom("room")
	o.HandleSharerAvailable("early")
	o.HandleAnswer("early", encode(t, remoteAnswer("answer")))
	first, _ := o.Link("early")
	offers := sig.count(protocol.TypeOffer)

	// Given we try to share while watching early
	req.NoError(o.StartSharing(context.Background()))

	// Then the link we watch on is not renegotiated
	req.Equal(RoleViewer, first.Role())
	req.Equal(StateDescriptionsExchanged, first.State())
	req.Equal(offers, sig.count(protocol.TypeOffer))
	req.Zero(ps.get(0).addedTracks())
	statuses(o)

	// When the server refuses the broadcast
	o.HandleSharingConflict("early")

	// Then we keep watching on the very same link
	req.False(ps.get(0).isClosed())
	link, ok := o.Link("early")
	req.True(ok)
	req.Same(first, link)
	req.Equal(StateDescriptionsExchanged, link.State())
	req.Equal(1, ps.len())
	req.Equal(offers, sig.count(protocol.TypeOffer))
	req.Equal([]string{"early is already sharing in this room."}, statuses(o))
}

func TestOrchestrator_SharerStopped(t *testing.T) {
	req := require.New(t)
	o, _, ps := newTestOrchestrator(nil)
	o.JoinRoom("room")
	o.HandleSharerStarted("sharer")

	o.HandleSharerStopped("sharer")

	req.Empty(o.Broadcaster())
	req.Empty(o.Links())
	req.True(ps.get(0).isClosed())
}

func TestOrchestrator_CloseWithoutSignaling(t *testing.T) {
	req := require.New(t)
	src := newFakeSource(t)
	o, sig, ps := newTestOrchestrator(staticGateway{src})
	o.JoinRoom("room")
	req.NoError(o.StartSharing(context.Background()))
	offerFrom(t, o, "viewer")
	sent := len(sig.sent())

	o.Close()

	req.True(src.isStopped())
	req.True(ps.get(0).isClosed())
	req.Len(sig.sent(), sent)
}
