// Package snipeserv receives recorded answers over a token-authenticated TLS
// connection and files them under the recordings directory.
package snipeserv

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultServerAddr = "localhost:8443"
	handshakeTimeout  = 10 * time.Second
)

type Server struct {
	Token   string
	Dir     string
	Clients *ClientList

	now func() time.Time

	dailyDirMutex sync.Mutex
	currentDay    string
}

func New(token, dir string, clients *ClientList) *Server {
	return &Server{
		Token:   token,
		Dir:     dir,
		Clients: clients,
		now:     time.Now,
	}
}

// Launch listens with TLS on addr until ctx ends.
func (s *Server) Launch(ctx context.Context, addr, certFile, keyFile string) error {
	slog.Debug("Starting upload server", "address", addr)

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		slog.Error("Please ensure you're using proper TLS certificates. If you're testing locally, you can generate self-signed certificates.")
		return fmt.Errorf("failed to load server certificate and key: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	listener, err := tls.Listen("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("failed to start TLS server: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx ends.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.updateCurrentDay()

	go func() {
		<-ctx.Done()
		slog.Debug("Upload server shutting down")
		listener.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				slog.Debug("Upload server stopped accepting new connections")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			slog.Error("Failed to accept connection", "error", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleNewConnection(ctx, conn)
		}()
	}
}

func (s *Server) handleNewConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	tokenBuffer := make([]byte, len(s.Token))
	if _, err := io.ReadFull(conn, tokenBuffer); err != nil {
		slog.Error("Failed to read token from client", "error", err, "remoteAddr", conn.RemoteAddr())
		return
	}
	if subtle.ConstantTimeCompare(tokenBuffer, []byte(s.Token)) != 1 {
		slog.Warn("Invalid token received", "remoteAddr", conn.RemoteAddr())
		return
	}
	conn.SetReadDeadline(time.Time{})

	clientID := uuid.New()
	s.Clients.Add(&Client{
		ID:          clientID,
		Addr:        conn.RemoteAddr().String(),
		ConnectedAt: s.now(),
	})

	s.handleConnection(ctx, conn, clientID)
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, clientID uuid.UUID) {
	slog.Debug("New client connected", "clientID", clientID, "remoteAddr", conn.RemoteAddr())
	defer func() {
		s.Clients.Remove(clientID)
		slog.Debug("Client connection closed", "clientID", clientID, "remoteAddr", conn.RemoteAddr())
	}()

	if _, err := conn.Write(clientID[:]); err != nil {
		slog.Error("Failed to send client ID", "error", err, "clientID", clientID)
		return
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		header, err := readHeader(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				slog.Debug("Client disconnected", "clientID", clientID, "remoteAddr", conn.RemoteAddr())
			} else {
				slog.Error("Failed to read upload header", "error", err, "clientID", clientID)
			}
			return
		}

		if err := header.Validate(); err != nil {
			slog.Warn("Rejecting upload", "error", err, "clientID", clientID)
			if header.Size < 0 || header.Size > MaxArtifactSize {
				conn.Write([]byte{StatusRejected})
				return
			}
			// Skip the body so the connection stays usable.
			if _, err := io.CopyN(io.Discard, conn, header.Size); err != nil {
				return
			}
			if _, err := conn.Write([]byte{StatusRejected}); err != nil {
				return
			}
			continue
		}

		path, err := s.receive(conn, header)
		if err != nil {
			slog.Error("Failed to receive upload",
				"error", err,
				"clientID", clientID,
				"sessionID", header.SessionID,
				"fileName", header.FileName)
			conn.Write([]byte{StatusRejected})
			return
		}

		s.Clients.RecordUpload(clientID, header.SessionID)
		slog.Info("Stored upload",
			"clientID", clientID,
			"sessionID", header.SessionID,
			"questionIndex", header.QuestionIndex,
			"mimeType", header.MimeType,
			"bytes", header.Size,
			"path", path)

		if _, err := conn.Write([]byte{StatusOK}); err != nil {
			slog.Error("Failed to acknowledge upload", "error", err, "clientID", clientID)
			return
		}
	}
}

// receive streams one artifact to disk. A short read leaves the partial file
// next to the others with an .incomplete suffix.
func (s *Server) receive(r io.Reader, header UploadHeader) (string, error) {
	file, err := s.createArtifactFile(header.SessionID, header.FileName)
	if err != nil {
		return "", err
	}

	n, err := io.CopyN(file, r, header.Size)
	file.Close()
	if err != nil {
		handleIncompleteUpload(file.Name(), n, header.Size)
		return "", fmt.Errorf("failed to read upload data: %w", err)
	}
	return file.Name(), nil
}

func (s *Server) createArtifactFile(sessionID, fileName string) (*os.File, error) {
	day := s.updateCurrentDay()
	sessionDir := filepath.Join(s.Dir, day, sessionID)

	s.dailyDirMutex.Lock()
	defer s.dailyDirMutex.Unlock()

	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return os.Create(filepath.Join(sessionDir, fileName))
}

func (s *Server) updateCurrentDay() string {
	newDay := s.now().Format("20060102") // YYYYMMDD

	s.dailyDirMutex.Lock()
	defer s.dailyDirMutex.Unlock()

	if newDay != s.currentDay {
		s.currentDay = newDay
		dailyDir := filepath.Join(s.Dir, s.currentDay)
		if err := os.MkdirAll(dailyDir, 0755); err != nil {
			slog.Error("Failed to create daily directory", "error", err, "path", dailyDir)
		} else {
			slog.Info("Created new daily directory", "path", dailyDir)
		}
	}
	return s.currentDay
}

func handleIncompleteUpload(path string, received, expected int64) {
	if received == 0 {
		slog.Debug("Dropping empty upload", "path", path)
		os.Remove(path)
		return
	}
	slog.Info("Saving incomplete upload",
		"path", path,
		"received", received,
		"expected", expected)
	os.Rename(path, path+".incomplete")
}
