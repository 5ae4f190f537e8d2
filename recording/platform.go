package recording

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bosley/snipe/media"
)

// Recorder buffers one segment. Stop returns the finished container bytes;
// Discard abandons the segment and frees what it holds.
type Recorder interface {
	Start(timeslice time.Duration) error
	Stop() ([]byte, error)
	Discard()
}

// Platform is the host's recording facility.
type Platform interface {
	Capabilities
	NewRecorder(stream media.Stream, mimeType string) (Recorder, error)
}

// Host records PCM from the capture stream into WAV and, when ffmpeg has the
// encoder, transcodes it to the negotiated container on stop.
type Host struct {
	TempDir string
	// Video is set when the capture backend produces a camera track that
	// the recorder can mux. The PortAudio backend never does.
	Video bool

	ffmpeg   string
	encoders map[string]bool
}

// NewHost probes ffmpeg for encoders. A missing ffmpeg leaves WAV as the only
// supported type.
func NewHost(ctx context.Context, tempDir string) *Host {
	h := &Host{TempDir: tempDir, ffmpeg: "ffmpeg"}
	encoders, err := ProbeEncoders(ctx, h.ffmpeg)
	if err != nil {
		slog.Warn("ffmpeg unavailable, recording WAV only", "error", err)
		return h
	}
	h.encoders = encoders
	slog.Debug("Probed ffmpeg encoders", "count", len(encoders))
	return h
}

func (h *Host) IsTypeSupported(mimeType string) bool {
	switch mimeType {
	case TypeWAV:
		return true
	case TypeAudioMP4:
		return h.encoders["aac"]
	case TypeAudioOpus:
		return h.encoders["libopus"]
	case TypeMP4:
		return h.Video && h.encoders["libx264"] && h.encoders["aac"]
	case TypeWebMVP9:
		return h.Video && h.encoders["libvpx-vp9"] && h.encoders["libopus"]
	case TypeWebMVP8, TypeWebM:
		return h.Video && h.encoders["libvpx"] && h.encoders["libopus"]
	}
	return false
}

func (h *Host) NewRecorder(stream media.Stream, mimeType string) (Recorder, error) {
	if !h.IsTypeSupported(mimeType) {
		return nil, fmt.Errorf("%w: %s", ErrNoSupportedType, mimeType)
	}
	if !hasLiveAudio(stream) {
		return nil, fmt.Errorf("stream %s has no audio track", stream.ID())
	}

	dir := h.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	pcm, err := newPCMRecorder(stream, dir)
	if err != nil {
		return nil, err
	}
	if mimeType == TypeWAV {
		return pcm, nil
	}
	return &transcodingRecorder{pcm: pcm, ffmpeg: h.ffmpeg, mimeType: mimeType}, nil
}

func hasLiveAudio(stream media.Stream) bool {
	for _, track := range stream.Tracks() {
		if track.Kind() == media.KindAudio {
			return true
		}
	}
	return false
}
