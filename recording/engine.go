package recording

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bosley/snipe/interview"
	"github.com/bosley/snipe/media"
)

const (
	DefaultTimeslice    = time.Second
	DefaultPollInterval = 250 * time.Millisecond
)

// Expiry reports that a segment's time limit ran out. Segment identifies the
// Start call so stale expiries can be told apart from the live one.
type Expiry struct {
	QuestionIndex int
	Segment       uint64
}

type Option func(*Engine)

// WithClock replaces time.Now for elapsed-time checks.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithPollInterval sets how often the limit is checked against the clock.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) { e.pollInterval = d }
}

func WithTimeslice(d time.Duration) Option {
	return func(e *Engine) { e.timeslice = d }
}

// Engine records one segment at a time: idle -> recording -> idle.
//
// Remaining time is derived from wall-clock time elapsed since the segment
// started, so a slow or stalled ticker never makes the limit run fast. When
// the limit is reached the timer disarms itself and an Expiry is sent; the
// segment keeps recording until Stop.
type Engine struct {
	platform     Platform
	clock        func() time.Time
	pollInterval time.Duration
	timeslice    time.Duration

	mu        sync.Mutex
	recorder  Recorder
	index     int
	mimeType  string
	segment   uint64
	timerStop chan struct{}
	timerDone chan struct{}

	remaining    atomic.Int64
	hasRemaining atomic.Bool

	expired chan Expiry

	hookMu sync.Mutex
	onTick func(remaining int)
}

func NewEngine(platform Platform, opts ...Option) *Engine {
	e := &Engine{
		platform:     platform,
		clock:        time.Now,
		pollInterval: DefaultPollInterval,
		timeslice:    DefaultTimeslice,
		expired:      make(chan Expiry, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnTick registers fn to receive remaining seconds whenever the value changes.
func (e *Engine) OnTick(fn func(remaining int)) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.onTick = fn
}

// Expired delivers one Expiry per segment whose limit ran out.
func (e *Engine) Expired() <-chan Expiry {
	return e.expired
}

// Segment returns the id of the recording segment, or 0 when idle.
func (e *Engine) Segment() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recorder == nil {
		return 0
	}
	return e.segment
}

func (e *Engine) Recording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recorder != nil
}

// TimeRemaining returns whole seconds left and false when the segment has no
// limit or nothing is recording.
func (e *Engine) TimeRemaining() (int, bool) {
	if !e.hasRemaining.Load() {
		return 0, false
	}
	return int(e.remaining.Load()), true
}

// Start negotiates a recording type, opens a recorder on stream and arms the
// timer for limit. Construction failures are returned as *CaptureError.
func (e *Engine) Start(stream media.Stream, index int, limit interview.TimeLimit) error {
	if stream == nil {
		return &CaptureError{Err: ErrNoStream}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.recorder != nil {
		return ErrRecording
	}

	mimeType, err := Negotiate(e.platform)
	if err != nil {
		return &CaptureError{Err: err}
	}

	recorder, err := e.platform.NewRecorder(stream, mimeType)
	if err != nil {
		return &CaptureError{MimeType: mimeType, Err: err}
	}
	if err := recorder.Start(e.timeslice); err != nil {
		recorder.Discard()
		return &CaptureError{MimeType: mimeType, Err: fmt.Errorf("failed to start recorder: %w", err)}
	}

	e.segment++
	e.recorder = recorder
	e.index = index
	e.mimeType = mimeType

	if d, ok := limit.Duration(); ok {
		e.remaining.Store(int64(d / time.Second))
		e.hasRemaining.Store(true)
		e.timerStop = make(chan struct{})
		e.timerDone = make(chan struct{})
		go e.runTimer(Expiry{QuestionIndex: index, Segment: e.segment}, d, e.clock(), e.timerStop, e.timerDone)
	}

	slog.Info("Recording started",
		"questionIndex", index,
		"mimeType", mimeType,
		"timeLimit", string(limit))
	return nil
}

func (e *Engine) runTimer(exp Expiry, limit time.Duration, started time.Time, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		elapsed := e.clock().Sub(started)
		remaining := remainingSeconds(limit, elapsed)
		if int64(remaining) != e.remaining.Swap(int64(remaining)) {
			e.tick(remaining)
		}

		if elapsed >= limit {
			slog.Debug("Time limit reached",
				"questionIndex", exp.QuestionIndex,
				"elapsed", elapsed)
			select {
			case e.expired <- exp:
			case <-stop:
			}
			return
		}
	}
}

func remainingSeconds(limit, elapsed time.Duration) int {
	left := limit - elapsed.Truncate(time.Second)
	if left < 0 {
		return 0
	}
	return int(left / time.Second)
}

func (e *Engine) tick(remaining int) {
	e.hookMu.Lock()
	fn := e.onTick
	e.hookMu.Unlock()
	if fn != nil {
		fn(remaining)
	}
}

// Stop disarms the timer, finalizes the segment and returns it as an
// Artifact. The engine is idle afterwards even if finalizing fails.
func (e *Engine) Stop() (Artifact, error) {
	e.mu.Lock()
	recorder := e.recorder
	index, mimeType := e.index, e.mimeType
	timerStop, timerDone := e.timerStop, e.timerDone
	e.recorder = nil
	e.timerStop, e.timerDone = nil, nil
	e.mu.Unlock()

	if recorder == nil {
		return Artifact{}, ErrNotRecording
	}

	if timerStop != nil {
		close(timerStop)
		<-timerDone
	}
	e.hasRemaining.Store(false)
	select {
	case <-e.expired:
	default:
	}

	data, err := recorder.Stop()
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to finalize segment %d: %w", index, err)
	}

	artifact := Artifact{
		QuestionIndex: index,
		MimeType:      mimeType,
		FileName:      FileName(index, mimeType),
		Data:          data,
	}
	slog.Info("Recording stopped",
		"questionIndex", index,
		"mimeType", mimeType,
		"bytes", len(data))
	return artifact, nil
}
