package review

import (
	"time"
)

// SessionIndex lists the answers stored for one session.
type SessionIndex struct {
	SessionID string          `json:"sessionId"`
	Day       string          `json:"day"`
	Artifacts []ArtifactEntry `json:"artifacts"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ArtifactEntry describes one stored answer.
type ArtifactEntry struct {
	QuestionIndex int       `json:"questionIndex"`
	FileName      string    `json:"fileName"`
	MimeType      string    `json:"mimeType"`
	Size          int64     `json:"size"`
	Duration      float64   `json:"durationSeconds,omitempty"`
	Transcript    string    `json:"transcript,omitempty"`
	ReceivedAt    time.Time `json:"receivedAt"`
}

// SessionSummary is one row of the session list.
type SessionSummary struct {
	SessionID string    `json:"sessionId"`
	Day       string    `json:"day"`
	Answers   int       `json:"answers"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Job is an artifact waiting for the worker pool.
type Job struct {
	FilePath  string
	SessionID string
	Day       string
	Timestamp time.Time
}

// WebSocketMessage is sent to every subscriber of a session.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}
