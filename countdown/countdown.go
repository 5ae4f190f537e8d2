// Package countdown runs the 3-2-1 lead-in shown before each recording segment.
package countdown

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultFrom     = 3
	DefaultInterval = time.Second
)

// Sequencer counts down from From to 1, one value per Interval. Current is
// zero while idle.
type Sequencer struct {
	From     int
	Interval time.Duration

	current atomic.Int32

	mu    sync.Mutex
	hooks []func(int)
}

func New() *Sequencer {
	return &Sequencer{From: DefaultFrom, Interval: DefaultInterval}
}

// OnTick registers fn to receive every value, including the final 0.
func (s *Sequencer) OnTick(fn func(int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Current returns the value on screen, or 0 when no countdown runs.
func (s *Sequencer) Current() int {
	return int(s.current.Load())
}

// Run shows From..1 and returns one interval after the last value. The timer
// is released if ctx ends early.
func (s *Sequencer) Run(ctx context.Context) error {
	defer s.set(0)

	for n := s.From; n >= 1; n-- {
		s.set(n)
		timer := time.NewTimer(s.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

func (s *Sequencer) set(n int) {
	s.current.Store(int32(n))
	s.mu.Lock()
	hooks := append([]func(int){}, s.hooks...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(n)
	}
}
