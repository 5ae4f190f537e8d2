package interview

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSession = `
language: es
default_time_limit: 2m
opening_prompts:
  en: {url: prompts/get-ready-en.wav}
  es: {url: prompts/get-ready-es.wav, cache_key: ready-es}
questions:
  - id: q1
    text: "  Tell us about yourself  "
    time_limit: no_limit
  - text: "   "
  - id: q2
    text: Why this role?
    time_limit: 30_seconds
  - id: q3
    text: Anything else?
`

func TestParseNormalizes(t *testing.T) {
	cfg, err := Parse([]byte(sampleSession))
	require.NoError(t, err)

	require.Len(t, cfg.Questions, 3)
	assert.Equal(t, "Tell us about yourself", cfg.Questions[0].Text)
	assert.Equal(t, "q2", cfg.Questions[1].ID)
	assert.Equal(t, Minutes2, cfg.DefaultTimeLimit)

	assert.Equal(t, NoLimit, cfg.EffectiveLimit(0))
	assert.Equal(t, Seconds30, cfg.EffectiveLimit(1))
	assert.Equal(t, Minutes2, cfg.EffectiveLimit(2))

	ref, ok := cfg.OpeningPrompt()
	require.True(t, ok)
	assert.Equal(t, "ready-es", ref.Key())
}

func TestParseRejectsEmptySessions(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no questions", "language: en\nquestions: []\n"},
		{"blank questions", "questions:\n  - text: ''\n  - text: '  '\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.ErrorIs(t, err, ErrNotLaunchable)
		})
	}
}

func TestParseRejectsUnknownLimit(t *testing.T) {
	_, err := Parse([]byte("questions:\n  - text: hi\n    time_limit: 7m\n"))
	assert.Error(t, err)
}

func TestParseRejectsDuplicateIDs(t *testing.T) {
	_, err := Parse([]byte("questions:\n  - {id: a, text: one}\n  - {id: a, text: two}\n"))
	assert.Error(t, err)
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("questions:\n  - text: hi\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultLanguage, cfg.Language)
	assert.Equal(t, NoLimit, cfg.EffectiveLimit(0))
	assert.NotEmpty(t, cfg.Questions[0].ID)

	_, ok := cfg.OpeningPrompt()
	assert.False(t, ok)
}

func TestTimeLimitDurations(t *testing.T) {
	tests := []struct {
		limit   TimeLimit
		seconds int
		finite  bool
	}{
		{NoLimit, 0, false},
		{Seconds30, 30, true},
		{Minute1, 60, true},
		{Minutes2, 120, true},
		{Minutes3, 180, true},
		{Minutes5, 300, true},
	}

	for _, tc := range tests {
		t.Run(string(tc.limit), func(t *testing.T) {
			secs, ok := tc.limit.Seconds()
			assert.Equal(t, tc.finite, ok)
			assert.Equal(t, tc.seconds, secs)
			if d, ok := tc.limit.Duration(); ok {
				assert.Equal(t, time.Duration(tc.seconds)*time.Second, d)
			}
		})
	}
}

func TestLaunchable(t *testing.T) {
	var cfg SessionConfig
	assert.ErrorIs(t, cfg.Launchable(), ErrNotLaunchable)

	cfg.Questions = []Question{{Text: " "}, {Text: "Q"}}
	assert.NoError(t, cfg.Launchable())
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := Parse([]byte(sampleSession))
	require.NoError(t, err)
	cfg.Questions[0].PromptAudio = &PromptRef{URL: "cache/abc.wav", CacheKey: "abc"}

	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Questions, loaded.Questions)
	assert.Equal(t, cfg.Language, loaded.Language)
}
