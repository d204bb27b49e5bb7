package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/pion/randutil"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
)

const idRunes = "abcdefghijklmnopqrstuvwxyz0123456789"

// IVFGateway streams a pre-encoded VP8/VP9 screen recording as if it were
// a live capture, paced by the file's timebase.
type IVFGateway struct {
	Path string

	// Loop restarts the file at EOF instead of ending the source.
	Loop bool
}

// Capture opens the file and starts pacing frames onto a new track.
func (g *IVFGateway) Capture(ctx context.Context) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureCancelled, err)
	}

	f, err := os.Open(g.Path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrCaptureDenied, err)
		}
		return nil, err
	}

	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s is not a playable IVF file: %v", ErrCaptureDenied, g.Path, err)
	}

	mime, err := mimeTypeFor(header.FourCC)
	if err != nil {
		f.Close()
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mime},
		"screen-"+randomID(),
		"warpcast-"+randomID(),
	)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create track: %w", err)
	}

	s := &ivfSource{
		file:     f,
		reader:   reader,
		track:    track,
		loop:     g.Loop,
		interval: frameInterval(header),
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
		log:      slog.With("component", "capture", "path", g.Path),
	}
	s.log.Info("Capture started", "codec", mime, "width", header.Width, "height", header.Height, "interval", s.interval)

	go s.run()
	return s, nil
}

type ivfSource struct {
	file     *os.File
	reader   *ivfreader.IVFReader
	track    *webrtc.TrackLocalStaticSample
	loop     bool
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	log      *slog.Logger
}

func (s *ivfSource) Tracks() []webrtc.TrackLocal { return []webrtc.TrackLocal{s.track} }
func (s *ivfSource) Done() <-chan struct{}        { return s.done }

func (s *ivfSource) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *ivfSource) run() {
	defer close(s.done)
	defer s.file.Close()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		frame, _, err := s.reader.ParseNextFrame()
		if errors.Is(err, io.EOF) && s.loop {
			if err = s.rewind(); err == nil {
				continue
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Warn("Capture ended with error", "err", err)
			}
			return
		}

		// Write fails only when no viewer is bound yet, which is fine
		if err := s.track.WriteSample(media.Sample{Data: frame, Duration: s.interval}); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			s.log.Debug("Dropped frame", "err", err)
		}
	}
}

func (s *ivfSource) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	reader, _, err := ivfreader.NewWith(s.file)
	if err != nil {
		return err
	}
	s.reader = reader
	return nil
}

func mimeTypeFor(fourCC string) (string, error) {
	switch fourCC {
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	case "AV01":
		return webrtc.MimeTypeAV1, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedCodec, fourCC)
}

func frameInterval(h *ivfreader.IVFFileHeader) time.Duration {
	if h.TimebaseDenominator == 0 || h.TimebaseNumerator == 0 {
		return time.Second / 30
	}
	return time.Duration(float64(time.Second) * float64(h.TimebaseNumerator) / float64(h.TimebaseDenominator))
}

func randomID() string {
	id, err := randutil.GenerateCryptoRandomString(8, idRunes)
	if err != nil {
		return randutil.NewMathRandomGenerator().GenerateString(8, idRunes)
	}
	return id
}
