package countdown

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunEmitsThreeTwoOne(t *testing.T) {
	s := &Sequencer{From: 3, Interval: 20 * time.Millisecond}

	var mu sync.Mutex
	var values []int
	var stamps []time.Time
	s.OnTick(func(n int) {
		mu.Lock()
		defer mu.Unlock()
		values = append(values, n)
		stamps = append(stamps, time.Now())
	})

	start := time.Now()
	require.NoError(t, s.Run(context.Background()))
	elapsed := time.Since(start)

	assert.Equal(t, []int{3, 2, 1, 0}, values)
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	for i := 1; i < 3; i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), 20*time.Millisecond)
	}
	assert.Equal(t, 0, s.Current())
}

func TestCurrentWhileRunning(t *testing.T) {
	s := &Sequencer{From: 3, Interval: 50 * time.Millisecond}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	assert.Eventually(t, func() bool { return s.Current() == 3 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return s.Current() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, <-done)
	assert.Equal(t, 0, s.Current())
}

func TestRunCancelled(t *testing.T) {
	s := &Sequencer{From: 3, Interval: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return s.Current() == 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 0, s.Current())
}

func TestNewDefaults(t *testing.T) {
	s := New()
	assert.Equal(t, DefaultFrom, s.From)
	assert.Equal(t, time.Second, s.Interval)
}
