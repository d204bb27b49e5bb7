package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
)

// SourceInfo describes a recording that can be shared.
type SourceInfo struct {
	// Path is the absolute path to the file
	Path string

	// Name is the filename (without directory)
	Name string

	Size   int64
	Codec  string
	Width  uint16
	Height uint16

	// Frames is the count from the header; some encoders leave it at zero.
	Frames   uint32
	Interval time.Duration
}

// FrameRate is the nominal frames per second.
func (i SourceInfo) FrameRate() float64 {
	if i.Interval <= 0 {
		return 0
	}
	return float64(time.Second) / float64(i.Interval)
}

// Probe checks that path is a readable IVF recording in a supported codec
// and returns what it found, so a bad source fails before connecting.
func Probe(path string) (SourceInfo, error) {
	if path == "" {
		return SourceInfo{}, fmt.Errorf("no source specified")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return SourceInfo{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return SourceInfo{}, fmt.Errorf("%s: file does not exist", path)
		}
		return SourceInfo{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}
	if stat.IsDir() {
		return SourceInfo{}, fmt.Errorf("%s: is a directory", path)
	}
	if stat.Size() == 0 {
		return SourceInfo{}, fmt.Errorf("%s: file is empty", path)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return SourceInfo{}, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	defer file.Close()

	_, header, err := ivfreader.NewWith(file)
	if err != nil {
		return SourceInfo{}, fmt.Errorf("%s: not an IVF recording: %w", path, err)
	}

	codec, err := mimeTypeFor(header.FourCC)
	if err != nil {
		return SourceInfo{}, fmt.Errorf("%s: %w", path, err)
	}

	return SourceInfo{
		Path:     absPath,
		Name:     filepath.Base(absPath),
		Size:     stat.Size(),
		Codec:    codec,
		Width:    header.Width,
		Height:   header.Height,
		Frames:   header.NumFrames,
		Interval: frameInterval(header),
	}, nil
}
