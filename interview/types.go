// Package interview holds the question model a recording session is built from.
package interview

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotLaunchable is returned when a session has no question with text.
var ErrNotLaunchable = errors.New("session has no questions with text")

// TimeLimit is a per-question recording limit.
type TimeLimit string

const (
	NoLimit    TimeLimit = "no_limit"
	Seconds30  TimeLimit = "30_seconds"
	Minute1    TimeLimit = "1_minute"
	Minutes2   TimeLimit = "2_minutes"
	Minutes3   TimeLimit = "3_minutes"
	Minutes5   TimeLimit = "5_minutes"
	unsetLimit TimeLimit = ""
)

var limitDurations = map[TimeLimit]time.Duration{
	Seconds30: 30 * time.Second,
	Minute1:   time.Minute,
	Minutes2:  2 * time.Minute,
	Minutes3:  3 * time.Minute,
	Minutes5:  5 * time.Minute,
}

// Duration returns the limit and false for NoLimit.
func (l TimeLimit) Duration() (time.Duration, bool) {
	d, ok := limitDurations[l]
	return d, ok
}

// Seconds returns the limit in whole seconds and false for NoLimit.
func (l TimeLimit) Seconds() (int, bool) {
	d, ok := l.Duration()
	if !ok {
		return 0, false
	}
	return int(d / time.Second), true
}

func (l TimeLimit) Valid() bool {
	if l == NoLimit {
		return true
	}
	_, ok := limitDurations[l]
	return ok
}

// ParseTimeLimit accepts the canonical names plus the short forms used in
// session files ("30s", "1m", "none").
func ParseTimeLimit(s string) (TimeLimit, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "", "none", "no_limit", "unlimited":
		if v == "" {
			return unsetLimit, nil
		}
		return NoLimit, nil
	case "30s", "30_seconds":
		return Seconds30, nil
	case "1m", "60s", "1_minute":
		return Minute1, nil
	case "2m", "2_minutes":
		return Minutes2, nil
	case "3m", "3_minutes":
		return Minutes3, nil
	case "5m", "5_minutes":
		return Minutes5, nil
	}
	return unsetLimit, fmt.Errorf("unknown time limit %q", s)
}

func (l *TimeLimit) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeLimit(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// PromptRef points at a pre-generated audio rendition of a question.
type PromptRef struct {
	URL      string `yaml:"url" json:"url"`
	CacheKey string `yaml:"cache_key" json:"cacheKey"`
}

func (r *PromptRef) Empty() bool {
	return r == nil || r.URL == ""
}

// Key returns the cache key, falling back to the URL.
func (r PromptRef) Key() string {
	if r.CacheKey != "" {
		return r.CacheKey
	}
	return r.URL
}

type Question struct {
	ID          string     `yaml:"id" json:"id"`
	Text        string     `yaml:"text" json:"text"`
	PromptAudio *PromptRef `yaml:"prompt_audio,omitempty" json:"promptAudio,omitempty"`
	TimeLimit   TimeLimit  `yaml:"time_limit,omitempty" json:"timeLimit,omitempty"`
}

// SessionConfig is fixed once a session starts. Question order is the
// recording order.
type SessionConfig struct {
	Language         string               `yaml:"language"`
	DefaultTimeLimit TimeLimit            `yaml:"default_time_limit"`
	OpeningPrompts   map[string]PromptRef `yaml:"opening_prompts,omitempty"`
	Questions        []Question           `yaml:"questions"`
}

// EffectiveLimit returns the question's own limit, else the session default.
func (c *SessionConfig) EffectiveLimit(index int) TimeLimit {
	if index >= 0 && index < len(c.Questions) && c.Questions[index].TimeLimit != unsetLimit {
		return c.Questions[index].TimeLimit
	}
	if c.DefaultTimeLimit == unsetLimit {
		return NoLimit
	}
	return c.DefaultTimeLimit
}

// OpeningPrompt returns the "get ready" clip for the session language, falling
// back to English.
func (c *SessionConfig) OpeningPrompt() (PromptRef, bool) {
	if ref, ok := c.OpeningPrompts[c.Language]; ok && ref.URL != "" {
		return ref, true
	}
	ref, ok := c.OpeningPrompts[DefaultLanguage]
	return ref, ok && ref.URL != ""
}

// Launchable reports whether at least one question has non-blank text.
func (c *SessionConfig) Launchable() error {
	for _, q := range c.Questions {
		if strings.TrimSpace(q.Text) != "" {
			return nil
		}
	}
	return ErrNotLaunchable
}
