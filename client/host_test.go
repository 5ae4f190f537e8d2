package snipecli

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosley/snipe/media"
	"github.com/bosley/snipe/session"
)

type fakeController struct {
	mu       sync.Mutex
	progress   session.Progress
	calls      []string
	beginErr   error
	advanceErr error
}

func newFakeController(total int) *fakeController {
	return &fakeController{progress: session.Progress{Phase: session.PhaseIdle, Total: total}}
}

func (c *fakeController) record(call string) {
	c.calls = append(c.calls, call)
}

func (c *fakeController) Begin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("begin")
	if c.beginErr != nil {
		return c.beginErr
	}
	c.progress.Phase = session.PhaseRecording
	c.progress.CurrentIndex = 0
	c.progress.IsLastQuestion = c.progress.Total == 1
	return nil
}

func (c *fakeController) AdvanceToNext(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("advance")
	if c.advanceErr != nil {
		return c.advanceErr
	}
	c.progress.CurrentIndex++
	c.progress.IsLastQuestion = c.progress.CurrentIndex == c.progress.Total-1
	return nil
}

func (c *fakeController) CompleteSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("complete")
	c.progress.Saved = c.progress.CurrentIndex + 1
	c.progress.Phase = session.PhaseComplete
	c.progress.CurrentIndex = c.progress.Total
	return nil
}

func (c *fakeController) Progress() session.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

func (c *fakeController) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type fakePerms struct{ show bool }

func (p *fakePerms) ShowPermissionButton() bool { return p.show }

type fakeUnlocker struct {
	mu    sync.Mutex
	count int
}

func (u *fakeUnlocker) Unlock() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.count++
}

func runHost(t *testing.T, ctrl *fakeController, perms *fakePerms, input string) (*fakeUnlocker, string) {
	t.Helper()
	unlocker := &fakeUnlocker{}
	var out bytes.Buffer
	host := NewHost(perms, unlocker, strings.NewReader(input), &out)
	require.NoError(t, host.Run(context.Background(), ctrl))
	return unlocker, out.String()
}

func TestHostWalksThroughQuestions(t *testing.T) {
	ctrl := newFakeController(3)
	unlocker, out := runHost(t, ctrl, &fakePerms{}, "\n\n\n\n")

	assert.Equal(t, []string{"begin", "advance", "advance", "complete"}, ctrl.Calls())
	assert.Equal(t, 4, unlocker.count)
	assert.Contains(t, out, "Press Enter to start.")
}

func TestHostQuitFinishesEarly(t *testing.T) {
	ctrl := newFakeController(3)
	_, _ = runHost(t, ctrl, &fakePerms{}, "\nq\nq\n\n")

	// The second q exits before the trailing Enter restarts anything.
	assert.Equal(t, []string{"begin", "complete"}, ctrl.Calls())
}

func TestHostIgnoresStaleAdvance(t *testing.T) {
	ctrl := newFakeController(3)
	ctrl.advanceErr = &session.SequencingError{Op: "AdvanceToNext", Phase: session.PhaseAdvancing}

	_, out := runHost(t, ctrl, &fakePerms{}, "\n\n")

	assert.Equal(t, []string{"begin", "advance", "complete"}, ctrl.Calls())
	assert.NotContains(t, out, "!")
}

func TestHostReportsEarlyFinish(t *testing.T) {
	ctrl := newFakeController(3)
	var out bytes.Buffer
	host := NewHost(&fakePerms{}, &fakeUnlocker{}, strings.NewReader("\nq\n"), &out)
	require.NoError(t, host.Run(context.Background(), ctrl))

	host.OnProgress(ctrl.Progress())
	assert.Contains(t, out.String(), "1 of 3 answers saved")
}

func TestHostCompletesRecordingOnEOF(t *testing.T) {
	ctrl := newFakeController(2)
	_, _ = runHost(t, ctrl, &fakePerms{}, "\n")

	assert.Equal(t, []string{"begin", "complete"}, ctrl.Calls())
}

func TestHostShowsPermissionAlert(t *testing.T) {
	ctrl := newFakeController(2)
	ctrl.beginErr = &media.PermissionError{Reason: "denied", Err: media.ErrDenied}

	_, out := runHost(t, ctrl, &fakePerms{show: true}, "\n")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Enable microphone")
	assert.Equal(t, "! "+ctrl.beginErr.(*media.PermissionError).UserMessage(), lines[1])
	assert.Contains(t, lines[2], "Enable microphone")
	assert.Equal(t, session.PhaseIdle, ctrl.Progress().Phase)
}

func TestHostStopsOnContextCancel(t *testing.T) {
	ctrl := newFakeController(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	host := NewHost(&fakePerms{}, &fakeUnlocker{}, blockingReader{}, &out)
	require.NoError(t, host.Run(ctx, ctrl))
	assert.Empty(t, ctrl.Calls())
}

type blockingReader struct{}

func (blockingReader) Read(p []byte) (int, error) {
	select {}
}

func TestOnProgressSkipsRepeats(t *testing.T) {
	var out bytes.Buffer
	host := NewHost(&fakePerms{}, &fakeUnlocker{}, strings.NewReader(""), &out)

	remaining := 12
	p := session.Progress{Phase: session.PhaseRecording, Total: 2, TimeRemaining: &remaining}
	host.OnProgress(p)
	host.OnProgress(p)
	remaining = 11
	host.OnProgress(p)

	assert.Equal(t, 2, strings.Count(out.String(), "\n"))
}

func TestRenderProgress(t *testing.T) {
	seconds := func(n int) *int { return &n }

	tests := []struct {
		name     string
		progress session.Progress
		want     string
	}{
		{
			name:     "countdown",
			progress: session.Progress{Phase: session.PhaseCountingDown, CurrentIndex: 0, Total: 3, Countdown: 2},
			want:     "Question 1/3 starts in 2...",
		},
		{
			name:     "countdown not started",
			progress: session.Progress{Phase: session.PhaseCountingDown, Total: 3},
			want:     "",
		},
		{
			name:     "timed recording",
			progress: session.Progress{Phase: session.PhaseRecording, CurrentIndex: 1, Total: 3, TimeRemaining: seconds(95)},
			want:     "Recording question 2/3  01:35 left  (Enter: next question, q: finish)",
		},
		{
			name:     "untimed last question",
			progress: session.Progress{Phase: session.PhaseRecording, CurrentIndex: 2, Total: 3, IsLastQuestion: true},
			want:     "Recording question 3/3  (Enter: finish)",
		},
		{
			name:     "advancing",
			progress: session.Progress{Phase: session.PhaseAdvancing, CurrentIndex: 0, Total: 3},
			want:     "Saving answer 1/3...",
		},
		{
			name:     "complete",
			progress: session.Progress{Phase: session.PhaseComplete, CurrentIndex: 3, Total: 3, Saved: 3},
			want:     "Session complete. 3 of 3 answers saved. Enter: start over, q: quit",
		},
		{
			name:     "completed early",
			progress: session.Progress{Phase: session.PhaseComplete, CurrentIndex: 3, Total: 3, Saved: 1},
			want:     "Session complete. 1 of 3 answers saved. Enter: start over, q: quit",
		},
		{
			name:     "idle",
			progress: session.Progress{Phase: session.PhaseIdle, Total: 3},
			want:     "",
		},
		{
			name:     "idle with error",
			progress: session.Progress{Phase: session.PhaseIdle, Total: 3, Err: fmt.Errorf("boom")},
			want:     "! boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderProgress(tt.progress))
		})
	}
}

func TestUserMessage(t *testing.T) {
	wrapped := fmt.Errorf("begin: %w", &media.PermissionError{Reason: "no device", Err: media.ErrNoDevice})
	assert.Contains(t, UserMessage(wrapped), "No microphone")
	assert.Equal(t, "plain", UserMessage(fmt.Errorf("plain")))
}
