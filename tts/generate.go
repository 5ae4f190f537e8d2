package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bosley/snipe/interview"
)

// OpeningText is the "get ready" line spoken before the first question.
var OpeningText = map[string]string{
	"en": "Get ready. Your interview is about to begin.",
	"es": "Prepárate. Tu entrevista está a punto de comenzar.",
	"fr": "Préparez-vous. Votre entretien va commencer.",
	"de": "Machen Sie sich bereit. Ihr Interview beginnt gleich.",
	"pt": "Prepare-se. Sua entrevista vai começar.",
}

type Synthesizer interface {
	Voice(language string) string
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
}

// Generator renders prompts into a content-addressed cache directory.
type Generator struct {
	synth    Synthesizer
	cacheDir string
}

func NewGenerator(synth Synthesizer, cacheDir string) *Generator {
	return &Generator{synth: synth, cacheDir: cacheDir}
}

// CacheKey identifies one rendering of text.
func CacheKey(language, voice, text string) string {
	sum := sha256.Sum256([]byte(language + "\x00" + voice + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Render returns a reference to text spoken in language, synthesizing it
// only when the cache has no copy.
func (g *Generator) Render(ctx context.Context, text, language string) (interview.PromptRef, bool, error) {
	key := CacheKey(language, g.synth.Voice(language), strings.TrimSpace(text))
	path, err := filepath.Abs(filepath.Join(g.cacheDir, key+".wav"))
	if err != nil {
		return interview.PromptRef{}, false, err
	}
	ref := interview.PromptRef{URL: "file://" + path, CacheKey: key}

	if _, err := os.Stat(path); err == nil {
		return ref, false, nil
	}

	data, err := g.synth.Synthesize(ctx, text, language)
	if err != nil {
		return interview.PromptRef{}, false, err
	}
	if err := os.MkdirAll(g.cacheDir, 0755); err != nil {
		return interview.PromptRef{}, false, fmt.Errorf("failed to create prompt cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return interview.PromptRef{}, false, fmt.Errorf("failed to write prompt: %w", err)
	}
	return ref, true, nil
}

// GeneratePrompts fills in every missing question prompt and the opening
// prompt for the session language. It returns how many clips were
// synthesized.
func (g *Generator) GeneratePrompts(ctx context.Context, cfg *interview.SessionConfig) (int, error) {
	language := cfg.Language
	if language == "" {
		language = interview.DefaultLanguage
	}
	created := 0

	if _, ok := cfg.OpeningPrompts[language]; !ok {
		text, ok := OpeningText[language]
		if !ok {
			text = OpeningText[interview.DefaultLanguage]
		}
		ref, fresh, err := g.Render(ctx, text, language)
		if err != nil {
			return created, fmt.Errorf("failed to render opening prompt: %w", err)
		}
		if cfg.OpeningPrompts == nil {
			cfg.OpeningPrompts = make(map[string]interview.PromptRef)
		}
		cfg.OpeningPrompts[language] = ref
		if fresh {
			created++
		}
	}

	for i := range cfg.Questions {
		q := &cfg.Questions[i]
		if !q.PromptAudio.Empty() || strings.TrimSpace(q.Text) == "" {
			continue
		}
		ref, fresh, err := g.Render(ctx, q.Text, language)
		if err != nil {
			return created, fmt.Errorf("failed to render prompt for question %d: %w", i+1, err)
		}
		q.PromptAudio = &ref
		if fresh {
			created++
		}
		slog.Debug("Rendered question prompt", "questionIndex", i, "cacheKey", ref.CacheKey, "fresh", fresh)
	}

	slog.Info("Prompts ready", "questions", len(cfg.Questions), "synthesized", created)
	return created, nil
}
