// Package mediatest provides in-memory capture streams for tests.
package mediatest

import (
	"context"
	"sync"

	"github.com/bosley/snipe/audio"
	"github.com/bosley/snipe/media"
	"github.com/google/uuid"
)

// Stream is a capture stream whose samples are pushed by the test.
type Stream struct {
	id     string
	format audio.Format

	mu          sync.Mutex
	nextSub     int
	subscribers map[int]func([]int16)
	stopped     bool
}

func NewStream() *Stream {
	return &Stream{
		id:          uuid.NewString(),
		format:      audio.DefaultFormat,
		subscribers: make(map[int]func([]int16)),
	}
}

func (s *Stream) ID() string           { return s.id }
func (s *Stream) Format() audio.Format { return s.format }

func (s *Stream) Tracks() []media.Track {
	return []media.Track{track{s: s, kind: media.KindAudio}, track{s: s, kind: media.KindVideo}}
}

func (s *Stream) Subscribe(fn func([]int16)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// Push delivers samples to every subscriber.
func (s *Stream) Push(samples []int16) {
	s.mu.Lock()
	subs := make([]func([]int16), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(samples)
	}
}

func (s *Stream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type track struct {
	s    *Stream
	kind media.TrackKind
}

func (t track) Kind() media.TrackKind { return t.kind }
func (t track) Label() string         { return "fake " + string(t.kind) }
func (t track) Stop() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.stopped = true
}

// Backend answers Open calls from a scripted list of errors; once the script
// runs out every Open succeeds.
type Backend struct {
	mu       sync.Mutex
	Errors   []error
	Requests []media.Constraints
	Opened   []*Stream
}

func (b *Backend) Open(ctx context.Context, c media.Constraints) (media.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Requests = append(b.Requests, c)
	if len(b.Errors) > 0 {
		err := b.Errors[0]
		b.Errors = b.Errors[1:]
		if err != nil {
			return nil, err
		}
	}
	s := NewStream()
	b.Opened = append(b.Opened, s)
	return s, nil
}

func (b *Backend) RequestCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Requests)
}
