package snipeserv

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Client struct {
	ID          uuid.UUID `json:"id"`
	Addr        string    `json:"addr"`
	ConnectedAt time.Time `json:"connectedAt"`
	Uploads     int       `json:"uploads"`
	LastSession string    `json:"lastSession,omitempty"`
}

type ClientList struct {
	clients map[uuid.UUID]*Client
	mu      sync.RWMutex
}

func NewClientList() *ClientList {
	cl := &ClientList{
		clients: make(map[uuid.UUID]*Client),
	}
	return cl
}

func (cl *ClientList) Add(client *Client) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.clients[client.ID] = client
}

func (cl *ClientList) Remove(id uuid.UUID) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	delete(cl.clients, id)
}

func (cl *ClientList) Get(id uuid.UUID) (Client, bool) {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	client, ok := cl.clients[id]
	if !ok {
		return Client{}, false
	}
	return *client, true
}

// RecordUpload counts a stored artifact against the connection.
func (cl *ClientList) RecordUpload(id uuid.UUID, sessionID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if client, ok := cl.clients[id]; ok {
		client.Uploads++
		client.LastSession = sessionID
	}
}

// List returns copies of the connected clients, oldest first.
func (cl *ClientList) List() []Client {
	cl.mu.RLock()
	out := make([]Client, 0, len(cl.clients))
	for _, client := range cl.clients {
		out = append(out, *client)
	}
	cl.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}
