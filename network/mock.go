package network

import (
	"sync"

	"github.com/go-errors/errors"
)

// check MockSource compliance to its interface during compile time
var _ Source = (*MockSource)(nil)

// MockSource is a Source whose state and events are controlled by the caller.
type MockSource struct {
	mu      sync.Mutex
	active  *Network
	links   []*Link
	err     error
	started bool
	hub     *hub
}

func NewMockSource() *MockSource {
	return &MockSource{
		hub: newHub(),
	}
}

func (m *MockSource) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.started = true

	return nil
}

func (m *MockSource) Stop() error {
	m.mu.Lock()
	m.started = false
	m.mu.Unlock()

	m.hub.closeAll()

	return nil
}

// SetActive replaces the network returned by ActiveNetwork. nil means no network.
func (m *MockSource) SetActive(network *Network) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active = network
}

func (m *MockSource) SetLinks(links []*Link) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.links = links
}

// SetError makes all queries fail with err until it is reset with nil.
func (m *MockSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.err = err
}

func (m *MockSource) ActiveNetwork() (*Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	return m.active, nil
}

func (m *MockSource) Links() ([]*Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	return m.links, nil
}

func (m *MockSource) Subscribe() (*Client, error) {
	return m.hub.subscribe(), nil
}

// Emit delivers an event to every subscribed client. It blocks until all
// clients have accepted the event.
func (m *MockSource) Emit(event *Event) error {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()

	if !started {
		return errors.New("mock source is not started")
	}

	m.hub.broadcast(event)

	return nil
}

// Subscribers returns the number of currently subscribed clients.
func (m *MockSource) Subscribers() int {
	return m.hub.len()
}
