package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/gorilla/mux"
	"github.com/the-lightning-land/netcheckd/connectivity"
)

// Observer is the part of the connectivity observer the api controls.
type Observer interface {
	Target() string
	SetTarget(target string)
}

// check Api compliance to the listener interfaces during compile time
var _ connectivity.NetworkChangeListener = (*Api)(nil)
var _ connectivity.HostConnectionListener = (*Api)(nil)

type Config struct {
	Observer Observer
	Log      Logger
}

// snapshot is the last connectivity seen by the api. It is kept for display only.
type snapshot struct {
	state         connectivity.State
	hostConnected *bool
	checkedAt     time.Time
}

type Api struct {
	observer Observer
	router   *mux.Router
	server   *http.Server
	log      Logger

	mu           sync.Mutex
	last         snapshot
	clients      map[uint32]*eventClient
	nextClientId uint32
	shuttingDown bool
}

func New(config *Config) *Api {
	api := &Api{
		observer: config.Observer,
		router:   mux.NewRouter(),
		last: snapshot{
			state: connectivity.Unavailable(),
		},
		clients: make(map[uint32]*eventClient),
	}

	if config.Log != nil {
		api.log = config.Log
	} else {
		api.log = noopLogger{}
	}

	api.server = &http.Server{
		Handler:           api.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	api.router.Handle("/api/v1/connectivity", api.handleGetConnectivity()).Methods(http.MethodGet)
	api.router.Handle("/api/v1/connectivity/target", api.handlePutTarget()).Methods(http.MethodPut)
	api.router.Handle("/api/v1/connectivity/events", api.handleGetEvents()).Methods(http.MethodGet)

	return api
}

// SetObserver sets the observer whose target is read and changed through the api.
func (a *Api) SetObserver(observer Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.observer = observer
}

func (a *Api) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *Api) Serve(l net.Listener) error {
	err := a.server.Serve(l)
	if err != nil && err != http.ErrServerClosed {
		return errors.Errorf("Unable to serve api: %v", err)
	}

	return nil
}

// Shutdown stops accepting requests and closes all event streams.
func (a *Api) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	a.shuttingDown = true
	clients := make([]*eventClient, 0, len(a.clients))
	for _, client := range a.clients {
		clients = append(clients, client)
	}
	a.mu.Unlock()

	for _, client := range clients {
		client.Cancel()
	}

	err := a.server.Shutdown(ctx)
	if err != nil {
		return errors.Errorf("could not shut down api: %v", err)
	}

	return nil
}

func (a *Api) OnNetworkChanged(state connectivity.State) {
	now := time.Now()

	a.mu.Lock()
	a.last.state = state
	// a host result belongs to the network it was checked on
	a.last.hostConnected = nil
	a.last.checkedAt = time.Time{}
	a.mu.Unlock()

	a.log.Infof("Network changed: %v", state)

	a.broadcast(&event{
		Kind:      eventKindNetwork,
		Available: boolPtr(state.Available()),
		Type:      typeName(state.Type()),
		Time:      now,
	})
}

func (a *Api) OnHostConnected(connected bool) {
	now := time.Now()

	a.mu.Lock()
	a.last.hostConnected = boolPtr(connected)
	a.last.checkedAt = now
	a.mu.Unlock()

	a.log.Infof("Host connected: %v", connected)

	a.broadcast(&event{
		Kind:          eventKindHost,
		HostConnected: boolPtr(connected),
		Time:          now,
	})
}

func boolPtr(b bool) *bool {
	return &b
}

func typeName(t *connectivity.ConnectionType) *string {
	if t == nil {
		return nil
	}

	name := t.String()
	return &name
}
