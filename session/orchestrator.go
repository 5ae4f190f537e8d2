// Package session drives an interview from the first question to the last:
// countdown, record, prompt, advance, complete.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bosley/snipe/interview"
	"github.com/bosley/snipe/media"
	"github.com/bosley/snipe/recording"
	"github.com/google/uuid"
)

const DefaultSettleDelay = 500 * time.Millisecond

type Acquirer interface {
	RequestAccess(ctx context.Context) (media.Stream, error)
	Release()
	Stream() media.Stream
}

type PromptPlayer interface {
	Play(ctx context.Context, ref interview.PromptRef, gain float64)
}

type Countdown interface {
	Run(ctx context.Context) error
	Current() int
	OnTick(fn func(int))
}

type Engine interface {
	Start(stream media.Stream, index int, limit interview.TimeLimit) error
	Stop() (recording.Artifact, error)
	Expired() <-chan recording.Expiry
	Segment() uint64
	TimeRemaining() (int, bool)
	OnTick(fn func(int))
}

// Sink persists artifacts. The session keeps no reference after Save.
type Sink interface {
	Save(ctx context.Context, artifact recording.Artifact) error
}

type Option func(*Orchestrator)

// WithSettleDelay sets the pause between one segment's stop and the next
// countdown.
func WithSettleDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.settleDelay = d }
}

func WithPromptGain(gain float64) Option {
	return func(o *Orchestrator) { o.gain = gain }
}

// WithStrictSequencing panics on sequencing violations instead of returning
// them. Meant for development builds and tests.
func WithStrictSequencing() Option {
	return func(o *Orchestrator) { o.strict = true }
}

// WithProgressHook calls fn with a fresh snapshot after every change.
func WithProgressHook(fn func(Progress)) Option {
	return func(o *Orchestrator) { o.hook = fn }
}

// Orchestrator owns the session state. Begin, AdvanceToNext, CompleteSession
// and timer expiry all take the transition lock, so only one transition runs
// at a time and segment N is stopped and handed off before segment N+1
// starts.
type Orchestrator struct {
	cfg       *interview.SessionConfig
	acquirer  Acquirer
	player    PromptPlayer
	countdown Countdown
	engine    Engine
	sink      Sink

	settleDelay time.Duration
	gain        float64
	strict      bool
	hook        func(Progress)

	transition sync.Mutex

	mu            sync.Mutex
	sessionID     string
	run           uint64
	phase         Phase
	index         int
	openingPlayed bool
	saved         int
	err           error
	cancelRun     context.CancelFunc
	cancelPrompts context.CancelFunc
	done          chan struct{}

	prompts sync.Mutex
}

// turn identifies the segment a caller was looking at.
type turn struct {
	phase   Phase
	segment uint64
}

func New(cfg *interview.SessionConfig, acquirer Acquirer, player PromptPlayer, countdown Countdown, engine Engine, sink Sink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg,
		acquirer:    acquirer,
		player:      player,
		countdown:   countdown,
		engine:      engine,
		sink:        sink,
		settleDelay: DefaultSettleDelay,
		gain:        1,
		phase:       PhaseIdle,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	countdown.OnTick(func(int) { o.notify() })
	engine.OnTick(func(int) { o.notify() })
	return o
}

// Progress returns the current snapshot.
func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	p := Progress{
		SessionID:              o.sessionID,
		Phase:                  o.phase,
		CurrentIndex:           o.index,
		Total:                  len(o.cfg.Questions),
		HasPlayedOpeningPrompt: o.openingPlayed,
		Saved:                  o.saved,
		Err:                    o.err,
	}
	o.mu.Unlock()

	p.IsLastQuestion = p.Total > 0 && p.CurrentIndex == p.Total-1
	switch p.Phase {
	case PhaseCountingDown:
		p.Countdown = o.countdown.Current()
	case PhaseRecording:
		if remaining, ok := o.engine.TimeRemaining(); ok {
			p.TimeRemaining = &remaining
		}
	}
	return p
}

func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Done is closed when the current run completes or fails.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// Wait blocks until the current run ends and returns its blocking error.
func (o *Orchestrator) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-o.Done():
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Begin starts the session at question 0. Access is requested first when no
// stream is held. It returns once the first segment is recording.
func (o *Orchestrator) Begin(ctx context.Context) error {
	o.transition.Lock()
	defer o.transition.Unlock()

	o.mu.Lock()
	phase := o.phase
	o.mu.Unlock()
	if phase != PhaseIdle && phase != PhaseComplete {
		return o.violation("Begin", phase)
	}

	if err := o.cfg.Launchable(); err != nil {
		slog.Warn("Session not launchable", "error", err)
		return err
	}

	if o.acquirer.Stream() == nil {
		if _, err := o.acquirer.RequestAccess(ctx); err != nil {
			slog.Error("Capture access failed", "error", err)
			o.mu.Lock()
			o.err = err
			o.mu.Unlock()
			o.notify()
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)

	o.mu.Lock()
	o.sessionID = uuid.NewString()
	o.run++
	o.index = 0
	o.openingPlayed = false
	o.saved = 0
	o.err = nil
	o.cancelRun = cancel
	select {
	case <-o.done:
		o.done = make(chan struct{})
	default:
	}
	sessionID, run := o.sessionID, o.run
	o.mu.Unlock()

	slog.Info("Session started",
		"sessionID", sessionID,
		"questions", len(o.cfg.Questions),
		"language", o.cfg.Language)

	go o.watchExpiry(runCtx)

	return o.startSegment(ctx, run, 0)
}

// AdvanceToNext stops the current segment, hands its artifact to the sink and
// moves on, completing the session after the last question.
// A call made during a transition, or aimed at a segment that has since
// ended, is rejected with a *SequencingError.
func (o *Orchestrator) AdvanceToNext(ctx context.Context) error {
	return o.advanceFrom(ctx, o.observe())
}

func (o *Orchestrator) advanceFrom(ctx context.Context, seen turn) error {
	if err := o.acquire("AdvanceToNext", seen); err != nil {
		return err
	}
	defer o.transition.Unlock()
	return o.advance(ctx)
}

// CompleteSession stops the current segment and ends the session.
func (o *Orchestrator) CompleteSession(ctx context.Context) error {
	return o.completeFrom(ctx, o.observe())
}

func (o *Orchestrator) completeFrom(ctx context.Context, seen turn) error {
	if err := o.acquire("CompleteSession", seen); err != nil {
		return err
	}
	defer o.transition.Unlock()

	o.setPhase(PhaseAdvancing)
	o.stopSegment(ctx)
	o.complete(nil)
	return nil
}

// observe reads the segment before the phase, so a transition landing in
// between shows up as a mismatch rather than as the new segment.
func (o *Orchestrator) observe() turn {
	segment := o.engine.Segment()
	return turn{phase: o.Phase(), segment: segment}
}

// acquire takes the transition lock for a call made while seen was current.
// On error the lock is not held.
func (o *Orchestrator) acquire(op string, seen turn) error {
	if seen.phase != PhaseRecording {
		return o.violation(op, seen.phase)
	}

	o.transition.Lock()
	if now := o.observe(); now != seen {
		o.transition.Unlock()
		slog.Debug("Rejecting call for an earlier segment",
			"op", op,
			"segment", seen.segment,
			"currentSegment", now.segment)
		return o.violation(op, now.phase)
	}
	return nil
}

func (o *Orchestrator) watchExpiry(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case exp := <-o.engine.Expired():
			o.onExpired(ctx, exp)
		}
	}
}

func (o *Orchestrator) onExpired(ctx context.Context, exp recording.Expiry) {
	o.transition.Lock()
	defer o.transition.Unlock()

	if o.Phase() != PhaseRecording || o.engine.Segment() != exp.Segment {
		slog.Debug("Ignoring stale expiry", "questionIndex", exp.QuestionIndex)
		return
	}

	slog.Info("Time limit reached, advancing", "questionIndex", exp.QuestionIndex)
	if err := o.advance(ctx); err != nil {
		slog.Error("Auto-advance failed", "questionIndex", exp.QuestionIndex, "error", err)
	}
}

// advance is shared by manual and timer-driven advances. Callers hold the
// transition lock and have checked the phase.
func (o *Orchestrator) advance(ctx context.Context) error {
	o.setPhase(PhaseAdvancing)
	o.stopSegment(ctx)

	o.mu.Lock()
	o.index++
	index, run := o.index, o.run
	o.mu.Unlock()

	if index >= len(o.cfg.Questions) {
		o.complete(nil)
		return nil
	}

	o.notify()
	timer := time.NewTimer(o.settleDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		o.complete(ctx.Err())
		return ctx.Err()
	case <-timer.C:
	}

	return o.startSegment(ctx, run, index)
}

func (o *Orchestrator) startSegment(ctx context.Context, run uint64, index int) error {
	o.setPhase(PhaseCountingDown)
	if err := o.countdown.Run(ctx); err != nil {
		o.fail(err)
		return err
	}

	stream := o.acquirer.Stream()
	if stream == nil {
		err := &recording.CaptureError{Err: recording.ErrNoStream}
		o.fail(err)
		return err
	}

	limit := o.cfg.EffectiveLimit(index)
	if err := o.engine.Start(stream, index, limit); err != nil {
		o.fail(err)
		return err
	}
	o.setPhase(PhaseRecording)

	promptCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.mu.Lock()
	o.cancelPrompts = cancel
	o.mu.Unlock()

	go o.playPrompts(promptCtx, run, index)
	return nil
}

// playPrompts runs after recording has started. Question 0 of a run gets the
// opening clip first; every question then gets its own clip. Sequences never
// overlap, and a sequence is cut off when its segment stops.
func (o *Orchestrator) playPrompts(ctx context.Context, run uint64, index int) {
	o.prompts.Lock()
	defer o.prompts.Unlock()

	if index == 0 {
		if ref, ok := o.cfg.OpeningPrompt(); ok {
			o.player.Play(ctx, ref, o.gain)
		}
		o.mu.Lock()
		current := o.run == run
		if current {
			o.openingPlayed = true
		}
		o.mu.Unlock()
		if !current {
			return
		}
		o.notify()
	}

	question := o.cfg.Questions[index]
	if question.PromptAudio.Empty() {
		slog.Debug("Question has no prompt audio", "questionIndex", index)
		return
	}
	o.player.Play(ctx, *question.PromptAudio, o.gain)
}

func (o *Orchestrator) stopSegment(ctx context.Context) {
	o.mu.Lock()
	if o.cancelPrompts != nil {
		o.cancelPrompts()
		o.cancelPrompts = nil
	}
	o.mu.Unlock()

	artifact, err := o.engine.Stop()
	if err != nil {
		if !errors.Is(err, recording.ErrNotRecording) {
			slog.Error("Failed to finalize recording", "error", err)
		}
		return
	}

	o.mu.Lock()
	artifact.SessionID = o.sessionID
	o.mu.Unlock()

	if o.sink != nil {
		if err := o.sink.Save(ctx, artifact); err != nil {
			slog.Error("Failed to save recording",
				"sessionID", artifact.SessionID,
				"questionIndex", artifact.QuestionIndex,
				"fileName", artifact.FileName,
				"error", err)
			return
		}
	}

	o.mu.Lock()
	o.saved++
	o.mu.Unlock()
}

// complete marks the run finished and releases the stream.
func (o *Orchestrator) complete(err error) {
	o.acquirer.Release()

	o.mu.Lock()
	o.phase = PhaseComplete
	o.index = len(o.cfg.Questions)
	o.err = err
	o.endRunLocked()
	sessionID := o.sessionID
	o.mu.Unlock()

	slog.Info("Session complete", "sessionID", sessionID)
	o.notify()
}

// fail returns the session to idle after a blocking error. The session does
// not retry on its own.
func (o *Orchestrator) fail(err error) {
	o.acquirer.Release()

	o.mu.Lock()
	o.phase = PhaseIdle
	o.err = err
	o.endRunLocked()
	index := o.index
	o.mu.Unlock()

	slog.Error("Session stopped", "questionIndex", index, "error", err)
	o.notify()
}

func (o *Orchestrator) endRunLocked() {
	if o.cancelRun != nil {
		o.cancelRun()
		o.cancelRun = nil
	}
	select {
	case <-o.done:
	default:
		close(o.done)
	}
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) notify() {
	if o.hook != nil {
		o.hook(o.Progress())
	}
}
