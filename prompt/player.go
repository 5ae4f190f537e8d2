// Package prompt plays short spoken prompts through a shared output, falling
// back to a single-shot path, without ever failing the caller.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bosley/snipe/interview"
)

// DefaultGain compensates for the output attenuation hosts apply while a
// capture session is active.
const DefaultGain = 2.5

// ErrLocked is returned by outputs asked to play before Unlock.
var ErrLocked = errors.New("audio output locked until a user gesture")

// Output is the shared playback graph. Play blocks until the clip ends.
type Output interface {
	Unlock() error
	Play(ctx context.Context, clip *Clip) error
}

// SimpleOutput plays encoded bytes once on a path of its own.
type SimpleOutput interface {
	PlayOnce(ctx context.Context, data []byte, gain float64) error
}

// Player caches fetched and decoded prompts for its own lifetime.
type Player struct {
	fetcher  Fetcher
	out      Output
	fallback SimpleOutput

	mu       sync.Mutex
	unlocked bool

	cacheMu sync.Mutex
	raw     map[string][]byte
	clips   map[string]*Clip
}

func NewPlayer(fetcher Fetcher, out Output, fallback SimpleOutput) *Player {
	return &Player{
		fetcher:  fetcher,
		out:      out,
		fallback: fallback,
		raw:      make(map[string][]byte),
		clips:    make(map[string]*Clip),
	}
}

// Unlock must run inside the user-gesture handler. After the first success
// further calls do nothing.
func (p *Player) Unlock() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.unlocked {
		return
	}
	if err := p.out.Unlock(); err != nil {
		slog.Warn("Failed to unlock audio output", "error", err)
		return
	}
	p.unlocked = true
	slog.Debug("Audio output unlocked")
}

func (p *Player) Unlocked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unlocked
}

// Preload fetches and decodes ref ahead of time.
func (p *Player) Preload(ctx context.Context, ref interview.PromptRef) error {
	data, err := p.load(ctx, ref)
	if err != nil {
		return err
	}
	_, err = p.decode(ref.Key(), data)
	return err
}

// Play plays ref scaled by gain and returns when playback ends. Failures are
// logged and absorbed so sequencing never stalls on a prompt.
func (p *Player) Play(ctx context.Context, ref interview.PromptRef, gain float64) {
	if ref.URL == "" {
		return
	}
	if gain <= 0 {
		gain = 1
	}

	data, err := p.load(ctx, ref)
	if err != nil {
		slog.Warn("Prompt unavailable, continuing without it", "url", ref.URL, "error", err)
		return
	}

	primaryErr := p.playPrimary(ctx, ref.Key(), data, gain)
	if primaryErr == nil {
		return
	}
	if ctx.Err() != nil {
		return
	}
	slog.Debug("Primary prompt playback failed, trying fallback", "url", ref.URL, "error", primaryErr)

	if p.fallback == nil {
		slog.Warn("Prompt playback failed", "url", ref.URL, "error", primaryErr)
		return
	}
	if err := p.fallback.PlayOnce(ctx, data, gain); err != nil {
		slog.Warn("Prompt playback failed",
			"url", ref.URL,
			"error", err,
			"primaryError", primaryErr)
	}
}

func (p *Player) playPrimary(ctx context.Context, key string, data []byte, gain float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audio output panicked: %v", r)
		}
	}()

	clip, err := p.decode(key, data)
	if err != nil {
		return err
	}
	return p.out.Play(ctx, clip.WithGain(gain))
}

func (p *Player) load(ctx context.Context, ref interview.PromptRef) ([]byte, error) {
	key := ref.Key()

	p.cacheMu.Lock()
	data, ok := p.raw[key]
	p.cacheMu.Unlock()
	if ok {
		return data, nil
	}

	data, err := p.fetcher.Fetch(ctx, ref.URL)
	if err != nil {
		return nil, err
	}

	p.cacheMu.Lock()
	p.raw[key] = data
	p.cacheMu.Unlock()
	return data, nil
}

func (p *Player) decode(key string, data []byte) (*Clip, error) {
	p.cacheMu.Lock()
	clip, ok := p.clips[key]
	p.cacheMu.Unlock()
	if ok {
		return clip, nil
	}

	clip, err := Decode(data)
	if err != nil {
		return nil, err
	}

	p.cacheMu.Lock()
	p.clips[key] = clip
	p.cacheMu.Unlock()
	return clip, nil
}
