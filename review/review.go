// Package review indexes uploaded answers as they land in the recordings
// directory and serves them to reviewers over HTTP and websockets.
package review

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	snipeserv "github.com/bosley/snipe/server"
	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"
)

// Configuration for the review service
type Config struct {
	// Certificate files for TLS. Plain HTTP is served when empty.
	CertFile string
	KeyFile  string

	// Base directory to monitor for recordings
	RecordingsDir string

	// HTTP server address
	HTTPAddr string

	// Optional whisper executable and model for transcripts
	WhisperPath  string
	WhisperModel string

	// Number of worker goroutines
	Workers int
}

// Service watches recordings, indexes them and notifies subscribers.
type Service struct {
	config  Config
	clients *snipeserv.ClientList
	now     func() time.Time

	watcher *fsnotify.Watcher

	mu       sync.RWMutex
	sessions map[string]*SessionIndex

	subMu       sync.Mutex
	subscribers map[string][]*wsConnection

	queue   chan Job
	workers sync.WaitGroup

	server   *http.Server
	upgrader websocket.Upgrader
}

// New creates the service. clients may be nil when no upload server runs in
// the same process.
func New(cfg Config, clients *snipeserv.ClientList) (*Service, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	s := &Service{
		config:      cfg,
		clients:     clients,
		now:         time.Now,
		watcher:     watcher,
		sessions:    make(map[string]*SessionIndex),
		subscribers: make(map[string][]*wsConnection),
		queue:       make(chan Job, 100),
		upgrader: websocket.Upgrader{
			CheckOrigin: sameOrigin,
		},
	}
	return s, nil
}

// Start runs the workers, the watcher and the HTTP server until ctx ends.
func (s *Service) Start(ctx context.Context) error {
	for i := 0; i < s.config.Workers; i++ {
		s.workers.Add(1)
		go s.worker(ctx)
	}

	if err := s.watchTree(); err != nil {
		return err
	}
	go s.watchFiles(ctx)

	return s.startHTTP(ctx)
}

// Stop gracefully shuts down the service
func (s *Service) Stop(ctx context.Context) error {
	close(s.queue)

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out")
	}

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop HTTP server: %w", err)
		}
	}

	if err := s.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close file watcher: %w", err)
	}
	return nil
}

func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}
