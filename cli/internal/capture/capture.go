//go:generate go run go.uber.org/mock/mockgen -source=capture.go -destination=../mocks/mock_capture.go -package=mocks

// Package capture supplies the local media a sharer broadcasts.
package capture

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

var (
	// ErrCaptureDenied means the source exists but may not be read.
	ErrCaptureDenied = errors.New("screen capture denied")

	// ErrCaptureCancelled means the user or caller gave up before capture started.
	ErrCaptureCancelled = errors.New("screen capture cancelled")

	ErrUnsupportedCodec = errors.New("unsupported codec")
)

// Source is a live local media source.
type Source interface {
	// Tracks are attached to every viewer link.
	Tracks() []webrtc.TrackLocal

	// Done is closed when the source ends on its own or is stopped.
	Done() <-chan struct{}

	// Stop releases the source. Safe to call more than once.
	Stop()
}

// Gateway hands out a Source on demand.
type Gateway interface {
	Capture(ctx context.Context) (Source, error)
}
