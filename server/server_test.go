package snipeserv

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := New(testToken, t.TempDir(), NewClientList())
	s.now = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }
	return s
}

func connect(t *testing.T, s *Server) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	go s.handleNewConnection(context.Background(), server)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestUploadIsStored(t *testing.T) {
	s := newTestServer(t)
	conn := connect(t, s)

	id, err := Handshake(conn, testToken)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := s.Clients.Get(id)
		return ok
	}, time.Second, time.Millisecond)

	sessionID := uuid.NewString()
	for i, body := range []string{"first answer", "second answer"} {
		header := UploadHeader{
			SessionID:     sessionID,
			QuestionIndex: i,
			FileName:      "question-" + string(rune('1'+i)) + ".wav",
			MimeType:      "audio/wav",
			Size:          int64(len(body)),
		}
		require.NoError(t, WriteUpload(conn, header, bytes.NewReader([]byte(body))))
		require.NoError(t, ReadStatus(conn))

		data, err := os.ReadFile(filepath.Join(s.Dir, "20240501", sessionID, header.FileName))
		require.NoError(t, err)
		assert.Equal(t, body, string(data))
	}

	client, ok := s.Clients.Get(id)
	require.True(t, ok)
	assert.Equal(t, 2, client.Uploads)
	assert.Equal(t, sessionID, client.LastSession)
	assert.Len(t, s.Clients.List(), 1)

	conn.Close()
	require.Eventually(t, func() bool { return len(s.Clients.List()) == 0 }, time.Second, time.Millisecond)
}

func TestInvalidTokenIsDropped(t *testing.T) {
	s := newTestServer(t)
	conn := connect(t, s)

	_, err := Handshake(conn, "nope00")
	assert.Error(t, err)
	assert.Empty(t, s.Clients.List())
}

func TestUnsafeUploadIsRejected(t *testing.T) {
	s := newTestServer(t)
	conn := connect(t, s)
	_, err := Handshake(conn, testToken)
	require.NoError(t, err)

	header := UploadHeader{
		SessionID: uuid.NewString(),
		FileName:  "../escape.wav",
		Size:      3,
	}
	go WriteUpload(conn, header, bytes.NewReader([]byte("abc")))
	assert.ErrorIs(t, ReadStatus(conn), ErrRejected)

	matches, err := filepath.Glob(filepath.Join(s.Dir, "*", "*", "*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestPartialUploadIsKeptIncomplete(t *testing.T) {
	s := newTestServer(t)
	conn := connect(t, s)
	_, err := Handshake(conn, testToken)
	require.NoError(t, err)

	sessionID := uuid.NewString()
	header := UploadHeader{
		SessionID: sessionID,
		FileName:  "question-1.wav",
		Size:      100,
	}
	err = WriteUpload(conn, header, bytes.NewReader(make([]byte, 10)))
	assert.Error(t, err, "the reader ran out before Size bytes")
	conn.Close()

	path := filepath.Join(s.Dir, "20240501", sessionID, "question-1.wav.incomplete")
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, time.Millisecond)
}

func TestUploadHeaderValidate(t *testing.T) {
	valid := UploadHeader{SessionID: uuid.NewString(), FileName: "question-1.webm", Size: 10}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		modify func(*UploadHeader)
	}{
		{"bad session", func(h *UploadHeader) { h.SessionID = "abc" }},
		{"negative index", func(h *UploadHeader) { h.QuestionIndex = -1 }},
		{"path", func(h *UploadHeader) { h.FileName = "a/b.wav" }},
		{"hidden", func(h *UploadHeader) { h.FileName = ".env" }},
		{"negative size", func(h *UploadHeader) { h.Size = -1 }},
		{"too large", func(h *UploadHeader) { h.Size = MaxArtifactSize + 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := valid
			tt.modify(&h)
			assert.Error(t, h.Validate())
		})
	}
}

func TestServeStopsWithContext(t *testing.T) {
	s := newTestServer(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, listener) }()

	conn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	_, err = Handshake(conn, testToken)
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	conn.Close()
}
