// Package snipecli runs an interview session in the terminal: each Enter
// keypress is a user gesture and progress is redrawn as it changes.
package snipecli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/bosley/snipe/session"
)

// Controller drives one session.
type Controller interface {
	Begin(ctx context.Context) error
	AdvanceToNext(ctx context.Context) error
	CompleteSession(ctx context.Context) error
	Progress() session.Progress
}

type Permissions interface {
	ShowPermissionButton() bool
}

// Unlocker is the prompt player's gesture hook.
type Unlocker interface {
	Unlock()
}

type Host struct {
	perms Permissions
	audio Unlocker
	in    io.Reader
	out   io.Writer

	mu   sync.Mutex
	last string
}

func NewHost(perms Permissions, audio Unlocker, in io.Reader, out io.Writer) *Host {
	return &Host{
		perms: perms,
		audio: audio,
		in:    in,
		out:   out,
	}
}

// OnProgress is installed as the session's progress hook.
func (h *Host) OnProgress(p session.Progress) {
	h.print(RenderProgress(p))
}

// Run reads commands until "q" outside a recording, end of input, or ctx ends.
func (h *Host) Run(ctx context.Context, ctrl Controller) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(h.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			slog.Error("Failed to read input", "error", err)
		}
	}()

	h.greet()

	for {
		select {
		case <-ctx.Done():
			h.finish(ctrl)
			return nil
		case line, ok := <-lines:
			if !ok {
				h.finish(ctrl)
				return nil
			}
			if h.handle(ctx, ctrl, line) {
				return nil
			}
		}
	}
}

func (h *Host) greet() {
	if h.perms.ShowPermissionButton() {
		h.print("[ Enable microphone ] Press Enter to allow access and start.")
		return
	}
	h.print("Press Enter to start.")
}

// handle applies one line of input and reports whether the host should exit.
func (h *Host) handle(ctx context.Context, ctrl Controller, line string) bool {
	cmd := strings.ToLower(strings.TrimSpace(line))
	h.audio.Unlock()

	p := ctrl.Progress()
	switch p.Phase {
	case session.PhaseIdle, session.PhaseComplete:
		if cmd == "q" {
			return true
		}
		if err := ctrl.Begin(ctx); err != nil {
			h.alert(err)
			if h.perms.ShowPermissionButton() {
				h.greet()
			}
		}
	case session.PhaseRecording:
		var err error
		if cmd == "q" || p.IsLastQuestion {
			err = ctrl.CompleteSession(ctx)
		} else {
			err = ctrl.AdvanceToNext(ctx)
		}
		var seqErr *session.SequencingError
		if errors.As(err, &seqErr) {
			// The keypress raced a transition; the new question is unaffected.
			slog.Debug("Ignoring input for a finished question", "error", err)
		} else if err != nil {
			h.alert(err)
		}
	default:
		slog.Debug("Ignoring input while busy", "phase", p.Phase)
	}
	return false
}

// finish closes out a recording in flight so its answer is kept.
func (h *Host) finish(ctrl Controller) {
	if ctrl.Progress().Phase != session.PhaseRecording {
		return
	}
	if err := ctrl.CompleteSession(context.Background()); err != nil {
		slog.Error("Failed to complete session on exit", "error", err)
	}
}

func (h *Host) alert(err error) {
	h.print("! " + UserMessage(err))
}

func (h *Host) print(line string) {
	if line == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if line == h.last {
		return
	}
	h.last = line
	fmt.Fprintln(h.out, line)
}

// UserMessage prefers the friendly text an error carries for display.
func UserMessage(err error) string {
	var friendly interface{ UserMessage() string }
	if errors.As(err, &friendly) {
		return friendly.UserMessage()
	}
	return err.Error()
}

// RenderProgress formats one status line, or "" when there is nothing to show.
func RenderProgress(p session.Progress) string {
	question := fmt.Sprintf("%d/%d", p.CurrentIndex+1, p.Total)
	switch p.Phase {
	case session.PhaseCountingDown:
		if p.Countdown == 0 {
			return ""
		}
		return fmt.Sprintf("Question %s starts in %d...", question, p.Countdown)
	case session.PhaseRecording:
		hint := "Enter: next question, q: finish"
		if p.IsLastQuestion {
			hint = "Enter: finish"
		}
		if p.TimeRemaining != nil {
			return fmt.Sprintf("Recording question %s  %s left  (%s)", question, clock(*p.TimeRemaining), hint)
		}
		return fmt.Sprintf("Recording question %s  (%s)", question, hint)
	case session.PhaseAdvancing:
		return fmt.Sprintf("Saving answer %s...", question)
	case session.PhaseComplete:
		return fmt.Sprintf("Session complete. %d of %d answers saved. Enter: start over, q: quit", p.Saved, p.Total)
	case session.PhaseIdle:
		if p.Err != nil {
			return "! " + UserMessage(p.Err)
		}
	}
	return ""
}

func clock(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
