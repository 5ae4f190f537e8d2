package interview

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const DefaultLanguage = "en"

// Load reads a session definition from a YAML file.
func Load(filename string) (*SessionConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file %s: %w", filename, err)
	}
	return Parse(data)
}

// Parse decodes and normalizes a session definition.
func Parse(data []byte) (*SessionConfig, error) {
	var cfg SessionConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse session YAML: %w", err)
	}

	normalize(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}
	return &cfg, nil
}

// Save writes the session definition back to disk.
func Save(filename string, cfg *SessionConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write session file %s: %w", filename, err)
	}
	return nil
}

func normalize(cfg *SessionConfig) {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.DefaultTimeLimit == unsetLimit {
		cfg.DefaultTimeLimit = NoLimit
	}

	questions := make([]Question, 0, len(cfg.Questions))
	for i, q := range cfg.Questions {
		q.Text = strings.TrimSpace(q.Text)
		if q.Text == "" {
			slog.Warn("Dropping question without text", "position", i)
			continue
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		questions = append(questions, q)
	}
	cfg.Questions = questions
}

func validateConfig(cfg *SessionConfig) error {
	if err := cfg.Launchable(); err != nil {
		return err
	}
	if !cfg.DefaultTimeLimit.Valid() {
		return fmt.Errorf("default_time_limit %q is not a known limit", cfg.DefaultTimeLimit)
	}

	seen := make(map[string]bool, len(cfg.Questions))
	for i, q := range cfg.Questions {
		if seen[q.ID] {
			return fmt.Errorf("question %d reuses id %q", i+1, q.ID)
		}
		seen[q.ID] = true

		if q.TimeLimit != unsetLimit && !q.TimeLimit.Valid() {
			return fmt.Errorf("question %d has unknown time_limit %q", i+1, q.TimeLimit)
		}
	}
	return nil
}
