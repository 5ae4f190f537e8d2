package review

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

type wsConnection struct {
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
	done      chan struct{}
	service   *Service
	closeOnce sync.Once
}

// Router serves the review API.
func (s *Service) Router() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/api/sessions", s.handleListSessions).Methods("GET")
	router.HandleFunc("/api/sessions/{sessionID}", s.handleGetSession).Methods("GET")
	router.HandleFunc("/api/clients", s.handleListClients).Methods("GET")
	router.HandleFunc("/ws/{sessionID}", s.handleWebSocket)

	return router
}

func (s *Service) startHTTP(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.config.HTTPAddr,
		Handler: s.Router(),
	}

	go func() {
		var err error
		if s.config.CertFile != "" {
			err = s.server.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	slog.Info("Review API listening", "address", s.config.HTTPAddr)

	<-ctx.Done()
	return s.server.Shutdown(context.Background())
}

// handleListSessions returns every indexed session, most recent first.
func (s *Service) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	summaries := make([]SessionSummary, 0, len(s.sessions))
	for _, index := range s.sessions {
		summaries = append(summaries, SessionSummary{
			SessionID: index.SessionID,
			Day:       index.Day,
			Answers:   len(index.Artifacts),
			UpdatedAt: index.UpdatedAt,
		})
	}
	s.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})

	slog.Debug("Sending session list", "numSessions", len(summaries))
	writeJSON(w, summaries)
}

func (s *Service) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]

	s.mu.RLock()
	index, ok := s.sessions[sessionID]
	var snapshot SessionIndex
	if ok {
		snapshot = *index
		snapshot.Artifacts = append([]ArtifactEntry{}, index.Artifacts...)
	}
	s.mu.RUnlock()

	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, snapshot)
}

func (s *Service) handleListClients(w http.ResponseWriter, r *http.Request) {
	if s.clients == nil {
		writeJSON(w, []struct{}{})
		return
	}
	writeJSON(w, s.clients.List())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (s *Service) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]

	if _, err := uuid.Parse(sessionID); err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	wsConn := &wsConnection{
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, 256),
		done:      make(chan struct{}),
		service:   s,
	}

	s.registerSubscriber(sessionID, wsConn)

	go wsConn.writePump()
	go wsConn.readPump()
}

func (s *Service) registerSubscriber(sessionID string, wsConn *wsConnection) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers[sessionID] = append(s.subscribers[sessionID], wsConn)
}

func (s *Service) unregisterSubscriber(sessionID string, wsConn *wsConnection) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	connections := s.subscribers[sessionID]
	for i, conn := range connections {
		if conn == wsConn {
			connections = append(connections[:i:i], connections[i+1:]...)
			break
		}
	}

	if len(connections) == 0 {
		delete(s.subscribers, sessionID)
	} else {
		s.subscribers[sessionID] = connections
	}
}

func (s *Service) subscriberCount(sessionID string) int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subscribers[sessionID])
}

func (c *wsConnection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConnection) readPump() {
	defer func() {
		c.service.unregisterSubscriber(c.sessionID, c)
		c.close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "error", err)
			}
			break
		}
	}
}
