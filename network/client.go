package network

import (
	"sync"
)

// Client receives connectivity events from a source until it is cancelled.
type Client struct {
	Events     <-chan *Event
	Id         uint32
	events     chan *Event
	cancelChan chan struct{}
	cancelOnce sync.Once
	hub        *hub
}

// Cancel unsubscribes the client and closes its Events channel.
// It is safe to call Cancel more than once.
func (c *Client) Cancel() {
	c.cancelOnce.Do(func() {
		// unblock a broadcast that might be waiting on this client
		close(c.cancelChan)

		c.hub.deleteClient(c.Id)
	})
}

// hub fans events out to all subscribed clients of a source.
type hub struct {
	mu      sync.Mutex
	nextId  uint32
	clients map[uint32]*Client
}

func newHub() *hub {
	return &hub{
		clients: make(map[uint32]*Client),
	}
}

// subscribe registers a new client. The initial events are queued before the
// client becomes visible to broadcasts, so they are always received first.
func (h *hub) subscribe(initial ...*Event) *Client {
	events := make(chan *Event, 16+len(initial))

	for _, event := range initial {
		events <- event
	}

	client := &Client{
		Events:     events,
		events:     events,
		cancelChan: make(chan struct{}),
		hub:        h,
	}

	h.mu.Lock()
	client.Id = h.nextId
	h.nextId++
	h.clients[client.Id] = client
	h.mu.Unlock()

	return client
}

func (h *hub) deleteClient(id uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[id]
	if !ok {
		return
	}

	delete(h.clients, id)
	close(client.events)
}

// broadcast delivers the event to every client in turn. The lock is held for
// the whole fan-out so that events arrive in the same order at every client.
func (h *hub) broadcast(event *Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		select {
		case client.events <- event:
		case <-client.cancelChan:
		}
	}
}

// closeAll cancels every client, used when the source stops.
func (h *hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.Cancel()
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}
