package prompt

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bosley/snipe/audio"
	"github.com/bosley/snipe/interview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu    sync.Mutex
	data  map[string][]byte
	calls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{data: make(map[string][]byte), calls: make(map[string]int)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	data, ok := f.data[url]
	if !ok {
		return nil, errors.New("404")
	}
	return data, nil
}

type fakeOutput struct {
	mu        sync.Mutex
	unlockErr error
	playErr   error
	panics    bool
	unlocks   int
	played    []*Clip
}

func (o *fakeOutput) Unlock() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unlocks++
	return o.unlockErr
}

func (o *fakeOutput) Play(ctx context.Context, clip *Clip) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.panics {
		panic("decoder exploded")
	}
	if o.playErr != nil {
		return o.playErr
	}
	o.played = append(o.played, clip)
	return nil
}

type fakeSimple struct {
	mu    sync.Mutex
	err   error
	calls int
	gain  float64
}

func (s *fakeSimple) PlayOnce(ctx context.Context, data []byte, gain float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.gain = gain
	return s.err
}

func wavBytes(samples ...int16) []byte {
	return audio.EncodeWAV(audio.SamplesToBytes(samples), audio.DefaultFormat)
}

func TestUnlockIsIdempotent(t *testing.T) {
	out := &fakeOutput{}
	p := NewPlayer(newFakeFetcher(), out, nil)

	p.Unlock()
	p.Unlock()
	p.Unlock()

	assert.True(t, p.Unlocked())
	assert.Equal(t, 1, out.unlocks)
}

func TestUnlockRetriesAfterFailure(t *testing.T) {
	out := &fakeOutput{unlockErr: errors.New("no gesture")}
	p := NewPlayer(newFakeFetcher(), out, nil)

	p.Unlock()
	assert.False(t, p.Unlocked())

	out.unlockErr = nil
	p.Unlock()
	assert.True(t, p.Unlocked())
	assert.Equal(t, 2, out.unlocks)
}

func TestPlayAppliesGain(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.data["q1.wav"] = wavBytes(100, -100, 20000)
	out := &fakeOutput{}
	p := NewPlayer(fetcher, out, nil)

	p.Play(context.Background(), interview.PromptRef{URL: "q1.wav"}, 2)

	require.Len(t, out.played, 1)
	assert.Equal(t, []int16{200, -200, math.MaxInt16}, out.played[0].Samples)
}

func TestPlayUsesCache(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.data["q1.wav"] = wavBytes(1, 2, 3)
	out := &fakeOutput{}
	p := NewPlayer(fetcher, out, nil)
	ref := interview.PromptRef{URL: "q1.wav", CacheKey: "q1"}

	require.NoError(t, p.Preload(context.Background(), ref))
	p.Play(context.Background(), ref, 1)
	p.Play(context.Background(), ref, 1)

	assert.Equal(t, 1, fetcher.calls["q1.wav"])
	assert.Len(t, out.played, 2)
}

func TestPreloadReportsErrors(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.data["bad.wav"] = []byte("not a wav")
	p := NewPlayer(fetcher, &fakeOutput{}, nil)

	assert.Error(t, p.Preload(context.Background(), interview.PromptRef{URL: "missing.wav"}))
	assert.Error(t, p.Preload(context.Background(), interview.PromptRef{URL: "bad.wav"}))
}

func TestPlayNeverFails(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.data["ok.wav"] = wavBytes(1, 2, 3)
	fetcher.data["garbage.wav"] = []byte("garbage")

	tests := []struct {
		name          string
		url           string
		out           *fakeOutput
		fallback      *fakeSimple
		fallbackCalls int
	}{
		{"fetch failure", "missing.wav", &fakeOutput{}, &fakeSimple{}, 0},
		{"decode failure falls back", "garbage.wav", &fakeOutput{}, &fakeSimple{}, 1},
		{"autoplay rejection falls back", "ok.wav", &fakeOutput{playErr: ErrLocked}, &fakeSimple{}, 1},
		{"panicking output falls back", "ok.wav", &fakeOutput{panics: true}, &fakeSimple{}, 1},
		{"fallback failure absorbed", "ok.wav", &fakeOutput{playErr: ErrLocked}, &fakeSimple{err: errors.New("boom")}, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPlayer(fetcher, tc.out, tc.fallback)

			done := make(chan struct{})
			go func() {
				defer close(done)
				p.Play(context.Background(), interview.PromptRef{URL: tc.url}, DefaultGain)
			}()

			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("Play did not return")
			}
			assert.Equal(t, tc.fallbackCalls, tc.fallback.calls)
			if tc.fallbackCalls > 0 {
				assert.Equal(t, DefaultGain, tc.fallback.gain)
			}
		})
	}
}

func TestPlayWithoutFallback(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.data["ok.wav"] = wavBytes(1)
	p := NewPlayer(fetcher, &fakeOutput{playErr: ErrLocked}, nil)

	p.Play(context.Background(), interview.PromptRef{URL: "ok.wav"}, 1)
}

func TestPlayEmptyRef(t *testing.T) {
	fetcher := newFakeFetcher()
	p := NewPlayer(fetcher, &fakeOutput{}, nil)

	p.Play(context.Background(), interview.PromptRef{}, 1)
	assert.Empty(t, fetcher.calls)
}

func TestDecodeStereo(t *testing.T) {
	format := audio.Format{SampleRate: 22050, Channels: 2, BitsPerSample: 16}
	data := audio.EncodeWAV(audio.SamplesToBytes([]int16{1, -1, 2, -2}), format)

	clip, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, format, clip.Format)
	assert.Equal(t, []int16{1, -1, 2, -2}, clip.Samples)
}

func TestClipDuration(t *testing.T) {
	clip := &Clip{Format: audio.DefaultFormat, Samples: make([]int16, audio.CaptureSampleRate/2)}
	assert.Equal(t, 500*time.Millisecond, clip.Duration())
}

func TestApplyGainClips(t *testing.T) {
	out := ApplyGain([]int16{math.MaxInt16, math.MinInt16, 10}, 3)
	assert.Equal(t, []int16{math.MaxInt16, math.MinInt16, 30}, out)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prompt.wav" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("audio"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second)

	data, err := f.Fetch(context.Background(), srv.URL+"/prompt.wav")
	require.NoError(t, err)
	assert.Equal(t, "audio", string(data))

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.wav")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "local.wav")
	require.NoError(t, os.WriteFile(path, []byte("local"), 0644))
	data, err = f.Fetch(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))
}
