package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

type eventKind string

const (
	eventKindNetwork eventKind = "network"
	eventKindHost    eventKind = "host"
)

type event struct {
	Kind          eventKind `json:"kind"`
	Available     *bool     `json:"available,omitempty"`
	Type          *string   `json:"type,omitempty"`
	HostConnected *bool     `json:"host_connected,omitempty"`
	Time          time.Time `json:"time"`
}

// eventClient receives events for one websocket connection.
type eventClient struct {
	Events     <-chan *event
	Id         uint32
	events     chan *event
	cancelOnce sync.Once
	api        *Api
}

func (c *eventClient) Cancel() {
	c.cancelOnce.Do(func() {
		c.api.mu.Lock()
		defer c.api.mu.Unlock()

		delete(c.api.clients, c.Id)
		close(c.events)
	})
}

func (a *Api) subscribeEvents() *eventClient {
	events := make(chan *event, 16)

	client := &eventClient{
		Events: events,
		events: events,
		api:    a,
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	client.Id = a.nextClientId
	a.nextClientId++

	if a.shuttingDown {
		close(events)
		client.cancelOnce.Do(func() {})
		return client
	}

	a.clients[client.Id] = client

	return client
}

// broadcast never blocks; slow clients miss events.
func (a *Api) broadcast(e *event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, client := range a.clients {
		select {
		case client.events <- e:
		default:
			a.log.Warnf("Dropping %v event for slow client %v", e.Kind, client.Id)
		}
	}
}

func (a *Api) handleGetEvents() http.HandlerFunc {
	upgrader := &websocket.Upgrader{}

	return func(w http.ResponseWriter, r *http.Request) {
		client := a.subscribeEvents()
		defer client.Cancel()

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// the upgrader already replied with an error
			a.log.Warnf("Could not upgrade event stream: %v", err)
			return
		}
		defer c.Close()

		closed := make(chan struct{})

		// read pump
		go func() {
			defer close(closed)

			c.SetReadLimit(512)
			c.SetReadDeadline(time.Now().Add(pongWait))
			c.SetPongHandler(func(string) error {
				c.SetReadDeadline(time.Now().Add(pongWait))
				return nil
			})

			for {
				_, _, err := c.ReadMessage()
				if err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
						a.log.Errorf("unexpected websocket closure: %v", err)
					}
					break
				}
			}
		}()

		// write pump
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case e, ok := <-client.Events:
				c.SetWriteDeadline(time.Now().Add(writeWait))

				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}

				err := c.WriteJSON(e)
				if err != nil {
					return
				}
			case <-ticker.C:
				c.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-closed:
				return
			}
		}
	}
}
