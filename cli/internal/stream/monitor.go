// Package stream watches the media a viewer receives.
package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// DefaultPLIInterval is how often a keyframe is requested from the sharer.
const DefaultPLIInterval = 3 * time.Second

// RTCPWriter sends feedback to the remote sender.
type RTCPWriter interface {
	WriteRTCP(pkts []rtcp.Packet) error
}

// Stats is a snapshot of a received track.
type Stats struct {
	Kind       string
	Codec      string
	Packets    uint64
	Bytes      uint64
	Frames     uint64
	Lost       uint64
	PLIs       uint64
	Started    time.Time
	LastPacket time.Time
}

// Bitrate is the average payload rate in bytes per second.
func (s Stats) Bitrate() float64 {
	elapsed := s.LastPacket.Sub(s.Started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.Bytes) / elapsed
}

// Monitor counts the RTP of one remote track and keeps keyframes coming.
type Monitor struct {
	PLIInterval time.Duration

	ssrc  uint32
	video bool
	read  func() (*rtp.Packet, error)
	rtcp  RTCPWriter
	log   *slog.Logger

	mu      sync.Mutex
	stats   Stats
	lastSeq uint16
	seen    bool
}

// NewMonitor monitors track, sending PLIs through w.
func NewMonitor(track *webrtc.TrackRemote, w RTCPWriter, log *slog.Logger) *Monitor {
	read := func() (*rtp.Packet, error) {
		pkt, _, err := track.ReadRTP()
		return pkt, err
	}
	m := newMonitor(uint32(track.SSRC()), track.Kind(), read, w, log)
	m.stats.Codec = track.Codec().MimeType
	return m
}

func newMonitor(ssrc uint32, kind webrtc.RTPCodecType, read func() (*rtp.Packet, error), w RTCPWriter, log *slog.Logger) *Monitor {
	return &Monitor{
		PLIInterval: DefaultPLIInterval,
		ssrc:        ssrc,
		video:       kind == webrtc.RTPCodecTypeVideo,
		read:        read,
		rtcp:        w,
		log:         log.With("ssrc", ssrc, "kind", kind),
		stats:       Stats{Kind: kind.String()},
	}
}

// Stats returns the counters so far.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Run reads until the track ends or ctx is cancelled. Payloads are
// counted and discarded. The end of the track is not an error.
func (m *Monitor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if m.video && m.rtcp != nil {
		go m.requestKeyframes(ctx)
	}

	for {
		pkt, err := m.read()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		m.record(pkt, time.Now())
	}
}

func (m *Monitor) record(pkt *rtp.Packet, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stats.Started.IsZero() {
		m.stats.Started = at
	}
	m.stats.LastPacket = at
	m.stats.Packets++
	m.stats.Bytes += uint64(len(pkt.Payload))
	if pkt.Marker {
		m.stats.Frames++
	}

	// Sequence numbers wrap at 16 bits
	if m.seen {
		if gap := pkt.SequenceNumber - m.lastSeq; gap > 1 && gap < 1<<15 {
			m.stats.Lost += uint64(gap - 1)
		}
	}
	m.lastSeq = pkt.SequenceNumber
	m.seen = true
}

func (m *Monitor) requestKeyframes(ctx context.Context) {
	ticker := time.NewTicker(m.PLIInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := m.rtcp.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: m.ssrc}})
			if err != nil {
				m.log.Debug("PLI not sent", "err", err)
				continue
			}
			m.mu.Lock()
			m.stats.PLIs++
			m.mu.Unlock()
		}
	}
}
