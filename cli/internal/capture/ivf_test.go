package capture

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

// writeIVF writes a minimal IVF file with the given codec and frame count.
func writeIVF(t *testing.T, fourCC string, frames int) string {
	t.Helper()

	header := make([]byte, 32)
	copy(header[0:4], "DKIF")
	binary.LittleEndian.PutUint16(header[4:6], 0)
	binary.LittleEndian.PutUint16(header[6:8], 32)
	copy(header[8:12], fourCC)
	binary.LittleEndian.PutUint16(header[12:14], 640)
	binary.LittleEndian.PutUint16(header[14:16], 480)
	binary.LittleEndian.PutUint32(header[16:20], 1000) // denominator
	binary.LittleEndian.PutUint32(header[20:24], 1)    // numerator: 1ms frames
	binary.LittleEndian.PutUint32(header[24:28], uint32(frames))

	data := header
	for i := range frames {
		frame := make([]byte, 12+4)
		binary.LittleEndian.PutUint32(frame[0:4], 4)
		binary.LittleEndian.PutUint64(frame[4:12], uint64(i))
		copy(frame[12:], []byte{0x10, 0x02, 0x00, 0x9d})
		data = append(data, frame...)
	}

	path := filepath.Join(t.TempDir(), "screen.ivf")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestIVFGateway_Capture(t *testing.T) {
	req := require.New(t)
	g := &IVFGateway{Path: writeIVF(t, "VP80", 3)}

	src, err := g.Capture(context.Background())
	req.NoError(err)

	tracks := src.Tracks()
	req.Len(tracks, 1)
	req.Equal(webrtc.RTPCodecTypeVideo, tracks[0].Kind())

	// Three 1ms frames then EOF ends the source by itself
	select {
	case <-src.Done():
	case <-time.After(2 * time.Second):
		req.Fail("source did not end at EOF")
	}
	src.Stop()
}

func TestIVFGateway_LoopRunsUntilStopped(t *testing.T) {
	g := &IVFGateway{Path: writeIVF(t, "VP90", 2), Loop: true}

	src, err := g.Capture(context.Background())
	require.NoError(t, err)

	select {
	case <-src.Done():
		t.Fatal("looping source ended on its own")
	case <-time.After(50 * time.Millisecond):
	}

	src.Stop()
	src.Stop()
	_, open := <-src.Done()
	require.False(t, open)
}

func TestIVFGateway_Errors(t *testing.T) {
	dir := t.TempDir()
	notIVF := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notIVF, []byte("definitely not a video file, just text"), 0o600))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name    string
		ctx     context.Context
		gateway *IVFGateway
		want    error
	}{
		{name: "missing file", ctx: context.Background(), gateway: &IVFGateway{Path: filepath.Join(dir, "nope.ivf")}, want: ErrCaptureDenied},
		{name: "not ivf", ctx: context.Background(), gateway: &IVFGateway{Path: notIVF}, want: ErrCaptureDenied},
		{name: "unknown codec", ctx: context.Background(), gateway: &IVFGateway{Path: writeIVF(t, "H264", 1)}, want: ErrUnsupportedCodec},
		{name: "cancelled", ctx: cancelled, gateway: &IVFGateway{Path: notIVF}, want: ErrCaptureCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.gateway.Capture(tt.ctx)
			require.ErrorIs(t, err, tt.want)
		})
	}
}
