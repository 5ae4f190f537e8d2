// Package media owns the capture stream lifecycle: request, lend, release.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
)

// Platform carries the host facts that change how access is requested.
type Platform struct {
	// IOSFamily hosts corrupt input levels when echo cancellation, noise
	// suppression or auto gain run, so those are requested off first.
	IOSFamily bool
}

func DetectPlatform() Platform {
	return Platform{IOSFamily: runtime.GOOS == "ios"}
}

// Acquirer holds at most one capture stream.
type Acquirer struct {
	backend  Backend
	platform Platform

	mu      sync.Mutex
	stream  Stream
	granted bool
	denied  bool
}

func NewAcquirer(backend Backend, platform Platform) *Acquirer {
	return &Acquirer{
		backend:  backend,
		platform: platform,
	}
}

func (a *Acquirer) attempts() []Constraints {
	if a.platform.IOSFamily {
		return []Constraints{rawAudioConstraints(), defaultConstraints(), unconstrained()}
	}
	return []Constraints{defaultConstraints(), unconstrained()}
}

// RequestAccess asks for camera and microphone. Constraints are relaxed step by
// step when the platform rejects them; a denial or missing device stops the
// chain and is returned as a *PermissionError.
func (a *Acquirer) RequestAccess(ctx context.Context) (Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stream != nil {
		return nil, ErrStreamHeld
	}

	var lastErr error
	for i, c := range a.attempts() {
		stream, err := a.backend.Open(ctx, c)
		if err == nil {
			a.stream = stream
			a.granted = true
			a.denied = false
			slog.Info("Capture stream acquired",
				"streamID", stream.ID(),
				"attempt", i+1,
				"unconstrained", c.Unconstrained,
				"tracks", len(stream.Tracks()))
			return stream, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrDenied) {
			a.denied = true
			return nil, &PermissionError{Reason: "access denied", Err: err}
		}
		if errors.Is(err, ErrNoDevice) {
			return nil, &PermissionError{Reason: "no capture device", Err: err}
		}
		slog.Warn("Capture request rejected, relaxing constraints",
			"attempt", i+1,
			"error", err)
	}

	return nil, &PermissionError{
		Reason: "capture unavailable",
		Err:    fmt.Errorf("all constraint sets rejected: %w", lastErr),
	}
}

// Release stops every track and drops the stream. Safe to call repeatedly.
func (a *Acquirer) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stream == nil {
		return
	}
	for _, track := range a.stream.Tracks() {
		track.Stop()
	}
	slog.Debug("Capture stream released", "streamID", a.stream.ID())
	a.stream = nil
}

// Stream returns the held stream or nil.
func (a *Acquirer) Stream() Stream {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream
}

// HasPermission reports whether access has been granted at least once and
// not denied since.
func (a *Acquirer) HasPermission() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.granted && !a.denied
}

// ShowPermissionButton tells the host view to offer an "enable camera"
// affordance.
func (a *Acquirer) ShowPermissionButton() bool {
	return !a.HasPermission()
}
