package websocket

import (
	"context"
	"sync"
)

// Hub tracks live connections by the owner whose events they watch.
type Hub struct {
	mu sync.RWMutex

	// clients maps client ID to client (for cleanup)
	clients map[string]*Client

	// owners maps an owner to the clients watching it
	owners map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		owners:     make(map[string]map[*Client]struct{}),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
	}
}

// Run starts the hub's event loop. Connections still open when ctx ends are
// closed.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastToUser sends payload to every connection watching owner.
func (h *Hub) BroadcastToUser(owner string, payload []byte) {
	h.mu.RLock()
	for c := range h.owners[owner] {
		c.SendMessage(payload)
	}
	h.mu.RUnlock()
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) GetWatcherCount(owner string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.owners[owner])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	if _, ok := h.owners[client.Owner]; !ok {
		h.owners[client.Owner] = make(map[*Client]struct{})
	}
	h.owners[client.Owner][client] = struct{}{}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	if watchers, ok := h.owners[client.Owner]; ok {
		delete(watchers, client)
		if len(watchers) == 0 {
			delete(h.owners, client.Owner)
		}
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.Send)
	}
	h.owners = make(map[string]map[*Client]struct{})
}
