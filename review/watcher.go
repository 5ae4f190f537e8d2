package review

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// The recordings tree is <root>/<YYYYMMDD>/<sessionID>/<fileName>.
const (
	levelDay = iota + 1
	levelSession
	levelArtifact
)

func isDayDir(name string) bool {
	_, err := time.Parse("20060102", name)
	return err == nil
}

// isArtifact skips temp files, partial uploads and whisper scratch copies.
func isArtifact(name string) bool {
	if strings.HasPrefix(name, ".") || strings.Contains(name, "_whisper") {
		return false
	}
	switch filepath.Ext(name) {
	case ".wav", ".mp4", ".webm":
		return true
	}
	return false
}

// watchTree watches the root and every existing day and session directory,
// queueing artifacts that are already on disk.
func (s *Service) watchTree() error {
	root := s.config.RecordingsDir
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("failed to create recordings directory: %w", err)
	}
	if err := s.watcher.Add(root); err != nil {
		return fmt.Errorf("failed to watch recordings directory: %w", err)
	}
	slog.Info("Started watching recordings directory", "path", root)

	days, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("failed to read recordings directory: %w", err)
	}
	for _, day := range days {
		if day.IsDir() && isDayDir(day.Name()) {
			s.watchDay(filepath.Join(root, day.Name()))
		}
	}
	return nil
}

func (s *Service) watchDay(dayPath string) {
	if err := s.watcher.Add(dayPath); err != nil {
		slog.Error("Failed to watch day directory", "error", err, "path", dayPath)
		return
	}
	sessions, err := os.ReadDir(dayPath)
	if err != nil {
		slog.Error("Failed to read day directory", "error", err, "path", dayPath)
		return
	}
	for _, session := range sessions {
		if _, err := uuid.Parse(session.Name()); err == nil && session.IsDir() {
			s.watchSession(filepath.Join(dayPath, session.Name()))
		}
	}
}

// watchSession adds the watch before listing so no file slips between the
// two.
func (s *Service) watchSession(sessionPath string) {
	if err := s.watcher.Add(sessionPath); err != nil {
		slog.Error("Failed to watch session directory", "error", err, "path", sessionPath)
		return
	}
	slog.Debug("Watching session directory", "path", sessionPath)

	files, err := os.ReadDir(sessionPath)
	if err != nil {
		slog.Error("Failed to read session directory", "error", err, "path", sessionPath)
		return
	}
	for _, file := range files {
		if !file.IsDir() && isArtifact(file.Name()) {
			if err := s.handleNewArtifact(filepath.Join(sessionPath, file.Name())); err != nil {
				slog.Error("Failed to queue artifact", "error", err, "file", file.Name())
			}
		}
	}
}

func (s *Service) watchFiles(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if err := s.handleFSEvent(event); err != nil {
				slog.Error("Failed to handle file system event",
					"error", err,
					"event", event)
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", "error", err)
		}
	}
}

func (s *Service) handleFSEvent(event fsnotify.Event) error {
	if !event.Has(fsnotify.Create) {
		return nil
	}

	relPath, err := filepath.Rel(s.config.RecordingsDir, event.Name)
	if err != nil {
		return fmt.Errorf("failed to get relative path: %w", err)
	}
	parts := strings.Split(relPath, string(filepath.Separator))

	switch len(parts) {
	case levelDay:
		if isDayDir(parts[0]) && isDir(event.Name) {
			slog.Info("Found new day directory", "path", event.Name)
			s.watchDay(event.Name)
		}
	case levelSession:
		if _, err := uuid.Parse(parts[1]); err == nil && isDir(event.Name) {
			slog.Info("Found new session directory", "sessionID", parts[1])
			s.watchSession(event.Name)
		}
	case levelArtifact:
		if _, err := uuid.Parse(parts[1]); err == nil && isArtifact(parts[2]) {
			return s.handleNewArtifact(event.Name)
		}
	}
	return nil
}

func (s *Service) handleNewArtifact(filePath string) error {
	sessionPath := filepath.Dir(filePath)
	job := Job{
		FilePath:  filePath,
		SessionID: filepath.Base(sessionPath),
		Day:       filepath.Base(filepath.Dir(sessionPath)),
		Timestamp: s.now(),
	}

	select {
	case s.queue <- job:
		slog.Info("Queued new artifact",
			"sessionID", job.SessionID,
			"file", filepath.Base(filePath))
	default:
		return fmt.Errorf("job queue is full")
	}
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
