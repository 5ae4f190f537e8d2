// Package recording captures one question's answer at a time and enforces
// its time limit.
package recording

import (
	"errors"
	"fmt"
)

var (
	ErrNoStream        = errors.New("no capture stream available")
	ErrNoSupportedType = errors.New("no supported recording type")
	ErrNotRecording    = errors.New("no segment is recording")
	ErrRecording       = errors.New("a segment is already recording")
)

// Artifact is one finished segment, tagged with the question it answers.
// SessionID is filled in by the session that owns the segment.
type Artifact struct {
	SessionID     string
	QuestionIndex int
	MimeType      string
	FileName      string
	Data          []byte
}

// FileName names the artifact for question index (0-based).
func FileName(index int, mimeType string) string {
	return fmt.Sprintf("question-%d%s", index+1, Extension(mimeType))
}

// CaptureError means a recorder could not be built or started against the
// granted stream. It is fatal to the segment.
type CaptureError struct {
	MimeType string
	Err      error
}

func (e *CaptureError) Error() string {
	if e.MimeType == "" {
		return fmt.Sprintf("failed to construct recorder: %v", e.Err)
	}
	return fmt.Sprintf("failed to construct %s recorder: %v", e.MimeType, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// UserMessage is shown as a blocking alert.
func (e *CaptureError) UserMessage() string {
	if errors.Is(e.Err, ErrNoStream) {
		return "Recording could not start because the microphone is not available. Enable it and try again."
	}
	return "Recording could not start on this device. Check that the microphone is still connected and allowed, then try again."
}
