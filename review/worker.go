package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bosley/snipe/audio"
	"github.com/bosley/snipe/recording"
	"github.com/youpy/go-wav"
)

func (s *Service) worker(ctx context.Context) {
	slog.Debug("Worker starting")
	defer func() {
		slog.Debug("Worker shutting down")
		s.workers.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Worker context cancelled")
			return

		case job, ok := <-s.queue:
			if !ok {
				slog.Debug("Worker queue closed")
				return
			}

			if err := s.processJob(ctx, job); err != nil {
				slog.Error("Failed to process artifact",
					"error", err,
					"file", job.FilePath,
					"sessionID", job.SessionID)
			}
		}
	}
}

func (s *Service) processJob(ctx context.Context, job Job) error {
	info, err := os.Stat(job.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("Artifact gone before processing", "file", job.FilePath)
			return nil
		}
		return fmt.Errorf("failed to stat artifact: %w", err)
	}

	name := filepath.Base(job.FilePath)
	entry := ArtifactEntry{
		QuestionIndex: questionIndex(name),
		FileName:      name,
		MimeType:      recording.MimeTypeFor(name),
		Size:          info.Size(),
		ReceivedAt:    job.Timestamp,
	}

	if entry.MimeType == recording.TypeWAV {
		if seconds, err := wavDuration(job.FilePath); err != nil {
			slog.Warn("Failed to read WAV duration", "file", name, "error", err)
		} else {
			entry.Duration = seconds
		}

		if s.config.WhisperPath != "" {
			text, err := s.transcribe(ctx, job.FilePath)
			if err != nil {
				slog.Error("Failed to transcribe artifact", "file", name, "error", err)
			}
			entry.Transcript = text
		}
	}

	s.store(job, entry)
	s.broadcast(job.SessionID, WebSocketMessage{
		Type:      "artifact",
		SessionID: job.SessionID,
		Timestamp: job.Timestamp,
		Payload:   entry,
	})

	slog.Info("Indexed artifact",
		"sessionID", job.SessionID,
		"questionIndex", entry.QuestionIndex,
		"file", name,
		"bytes", entry.Size)
	return nil
}

// questionIndex parses "question-<n>.<ext>" into n-1, or -1.
func questionIndex(name string) int {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	n, err := strconv.Atoi(strings.TrimPrefix(base, "question-"))
	if err != nil || !strings.HasPrefix(base, "question-") || n < 1 {
		return -1
	}
	return n - 1
}

func wavDuration(path string) (float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	d, err := wav.NewReader(file).Duration()
	if err != nil {
		return 0, err
	}
	return d.Seconds(), nil
}

func (s *Service) transcribe(ctx context.Context, path string) (string, error) {
	resampled, err := audio.ResampleForWhisper(path)
	if err != nil {
		return "", err
	}
	defer os.Remove(resampled)

	cmd := exec.CommandContext(ctx, s.config.WhisperPath,
		"--model", s.config.WhisperModel,
		resampled)

	slog.Debug("Executing whisper command", "command", cmd.String())

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			slog.Debug("Whisper command failed",
				"stderr", string(exitErr.Stderr),
				"exitCode", exitErr.ExitCode())
		}
		return "", fmt.Errorf("whisper execution failed: %w", err)
	}
	return extractText(string(output)), nil
}

func (s *Service) store(job Job, entry ArtifactEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, ok := s.sessions[job.SessionID]
	if !ok {
		index = &SessionIndex{SessionID: job.SessionID, Day: job.Day}
		s.sessions[job.SessionID] = index
	}

	replaced := false
	for i := range index.Artifacts {
		if index.Artifacts[i].FileName == entry.FileName {
			index.Artifacts[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		index.Artifacts = append(index.Artifacts, entry)
	}
	sort.Slice(index.Artifacts, func(i, j int) bool {
		return index.Artifacts[i].QuestionIndex < index.Artifacts[j].QuestionIndex
	})
	index.UpdatedAt = job.Timestamp
}

func (s *Service) broadcast(sessionID string, msg WebSocketMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal message", "error", err)
		return
	}

	s.subMu.Lock()
	connections := append([]*wsConnection{}, s.subscribers[sessionID]...)
	s.subMu.Unlock()

	for i, conn := range connections {
		select {
		case conn.send <- data:
		default:
			slog.Warn("Failed to send to subscriber - channel full",
				"sessionID", sessionID,
				"connectionIndex", i)
		}
	}
}

func extractText(output string) string {
	var builder strings.Builder
	for _, line := range strings.Split(output, "\n") {
		text := strings.TrimSpace(line)
		if text == "" || strings.Contains(text, "[BLANK_AUDIO]") {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString(" ")
		}
		builder.WriteString(text)
	}
	return builder.String()
}
