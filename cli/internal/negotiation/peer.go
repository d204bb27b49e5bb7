// Package negotiation drives one WebRTC handshake per remote participant,
// from the first offer to a live media session, and tears it down again.
package negotiation

import (
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

// PeerConnection is the part of *webrtc.PeerConnection a link drives.
type PeerConnection interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	RemoteDescription() *webrtc.SessionDescription
	AddICECandidate(candidate webrtc.ICECandidateInit) error

	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	RemoveTrack(sender *webrtc.RTPSender) error
	AddTransceiverFromKind(kind webrtc.RTPCodecType, init ...webrtc.RTPTransceiverInit) (*webrtc.RTPTransceiver, error)
	WriteRTCP(pkts []rtcp.Packet) error

	OnICECandidate(f func(*webrtc.ICECandidate))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver))

	Close() error
}

var _ PeerConnection = (*webrtc.PeerConnection)(nil)

// Factory creates a fresh peer connection for a new link.
type Factory func() (PeerConnection, error)

// NewFactory returns a Factory that builds pion peer connections with cfg.
func NewFactory(cfg webrtc.Configuration) Factory {
	return func() (PeerConnection, error) {
		pc, err := webrtc.NewPeerConnection(cfg)
		if err != nil {
			return nil, err
		}
		return pc, nil
	}
}

// TrackSink receives the remote media of a viewer link.
type TrackSink func(remoteID string, track *webrtc.TrackRemote, pc PeerConnection)
