package sink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bosley/snipe/recording"
)

// Local writes artifacts to <Dir>/<YYYYMMDD>/<sessionID>/<fileName>, the
// same layout the upload server uses.
type Local struct {
	Dir string
	now func() time.Time
}

func NewLocal(dir string) *Local {
	return &Local{Dir: dir, now: time.Now}
}

// Path returns where artifact is stored.
func (l *Local) Path(artifact recording.Artifact) string {
	return filepath.Join(l.Dir, l.now().Format("20060102"), artifact.SessionID, filepath.Base(artifact.FileName))
}

// Save writes to a temporary name and renames it into place so watchers only
// ever see complete files.
func (l *Local) Save(ctx context.Context, artifact recording.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := l.Path(artifact)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(artifact.Data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}

	slog.Info("Saved recording",
		"sessionID", artifact.SessionID,
		"questionIndex", artifact.QuestionIndex,
		"path", path,
		"bytes", len(artifact.Data))
	return nil
}
