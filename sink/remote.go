package sink

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bosley/snipe/recording"
	snipeserv "github.com/bosley/snipe/server"
	"github.com/google/uuid"
)

const uploadTimeout = 2 * time.Minute

// Remote uploads artifacts to a snipe upload server over one long-lived
// TLS connection, redialing once when the connection has gone stale.
type Remote struct {
	Addr  string
	Token string

	dial func(ctx context.Context) (net.Conn, error)

	mu       sync.Mutex
	conn     net.Conn
	clientID uuid.UUID
}

func NewRemote(addr, token string, tlsConfig *tls.Config) *Remote {
	r := &Remote{Addr: addr, Token: token}
	r.dial = func(ctx context.Context) (net.Conn, error) {
		dialer := &tls.Dialer{Config: tlsConfig}
		return dialer.DialContext(ctx, "tcp", r.Addr)
	}
	return r
}

// TLSConfig trusts the server certificate in certFile, or skips
// verification entirely in insecure mode.
func TLSConfig(insecure bool, certFile string) (*tls.Config, error) {
	if insecure {
		slog.Warn("Running in insecure mode. This should not be used in production!")
		return &tls.Config{InsecureSkipVerify: true}, nil
	}
	if certFile == "" {
		return &tls.Config{MinVersion: tls.VersionTLS12}, nil
	}

	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read server certificate: %w", err)
	}

	certPool := x509.NewCertPool()
	if !certPool.AppendCertsFromPEM(certPEM) {
		return nil, fmt.Errorf("failed to append server certificate")
	}

	return &tls.Config{
		RootCAs:    certPool,
		MinVersion: tls.VersionTLS12,
	}, nil
}

func (r *Remote) Save(ctx context.Context, artifact recording.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		if r.conn == nil {
			if err = r.connect(ctx); err != nil {
				return err
			}
		}

		err = r.upload(ctx, artifact)
		if err == nil {
			slog.Info("Uploaded recording",
				"sessionID", artifact.SessionID,
				"questionIndex", artifact.QuestionIndex,
				"clientID", r.clientID,
				"bytes", len(artifact.Data))
			return nil
		}

		r.closeLocked()
		if errors.Is(err, snipeserv.ErrRejected) || ctx.Err() != nil {
			return err
		}
		slog.Warn("Upload failed, reconnecting", "attempt", attempt, "error", err)
	}
	return err
}

func (r *Remote) connect(ctx context.Context) error {
	conn, err := r.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to upload server: %w", err)
	}

	conn.SetDeadline(time.Now().Add(uploadTimeout))
	id, err := snipeserv.Handshake(conn, r.Token)
	if err != nil {
		conn.Close()
		return err
	}
	conn.SetDeadline(time.Time{})

	r.conn = conn
	r.clientID = id
	slog.Debug("Connected to upload server", "addr", r.Addr, "clientID", id)
	return nil
}

func (r *Remote) upload(ctx context.Context, artifact recording.Artifact) error {
	deadline := time.Now().Add(uploadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	r.conn.SetDeadline(deadline)
	defer r.conn.SetDeadline(time.Time{})

	header := snipeserv.UploadHeader{
		SessionID:     artifact.SessionID,
		QuestionIndex: artifact.QuestionIndex,
		FileName:      artifact.FileName,
		MimeType:      artifact.MimeType,
		Size:          int64(len(artifact.Data)),
	}
	if err := snipeserv.WriteUpload(r.conn, header, bytes.NewReader(artifact.Data)); err != nil {
		return err
	}
	return snipeserv.ReadStatus(r.conn)
}

func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *Remote) closeLocked() error {
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}
