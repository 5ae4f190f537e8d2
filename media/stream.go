package media

import (
	"context"

	"github.com/bosley/snipe/audio"
)

type TrackKind string

const (
	KindAudio TrackKind = "audio"
	KindVideo TrackKind = "video"
)

type Track interface {
	Kind() TrackKind
	Label() string
	Stop()
}

// Stream is a live capture stream. Recorders borrow it; only the Acquirer
// stops its tracks.
type Stream interface {
	ID() string
	Format() audio.Format
	Tracks() []Track
	// Subscribe delivers captured samples until the returned func is called.
	Subscribe(fn func(samples []int16)) (unsubscribe func())
}

// AudioConstraints mirror the processing stages a capture request can turn
// off. nil leaves the platform default.
type AudioConstraints struct {
	EchoCancellation *bool
	NoiseSuppression *bool
	AutoGainControl  *bool
}

type VideoConstraints struct {
	FacingMode string
}

// Constraints is one capture request. Unconstrained asks for any audio and
// video the platform can give.
type Constraints struct {
	Audio         AudioConstraints
	Video         VideoConstraints
	Unconstrained bool
}

// Backend opens capture streams on a concrete platform.
type Backend interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

func off() *bool {
	v := false
	return &v
}

func rawAudioConstraints() Constraints {
	return Constraints{
		Audio: AudioConstraints{
			EchoCancellation: off(),
			NoiseSuppression: off(),
			AutoGainControl:  off(),
		},
		Video: VideoConstraints{FacingMode: "user"},
	}
}

func defaultConstraints() Constraints {
	return Constraints{Video: VideoConstraints{FacingMode: "user"}}
}

func unconstrained() Constraints {
	return Constraints{Unconstrained: true}
}
