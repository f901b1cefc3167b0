package connectivity

import (
	"context"
	"sync"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/netcheckd/mainloop"
	"github.com/the-lightning-land/netcheckd/network"
	"github.com/the-lightning-land/netcheckd/reachability"
)

// NetworkChangeListener is notified of every connectivity change.
type NetworkChangeListener interface {
	OnNetworkChanged(state State)
}

// HostConnectionListener is notified of the result of every reachability
// check of the target.
type HostConnectionListener interface {
	OnHostConnected(connected bool)
}

// NetworkChangeFunc adapts a function to a NetworkChangeListener.
type NetworkChangeFunc func(state State)

func (f NetworkChangeFunc) OnNetworkChanged(state State) {
	f(state)
}

// HostConnectionFunc adapts a function to a HostConnectionListener.
type HostConnectionFunc func(connected bool)

func (f HostConnectionFunc) OnHostConnected(connected bool) {
	f(connected)
}

// Prober checks whether a target answers. The callback receives the result,
// either synchronously or later on a main loop.
type Prober interface {
	CheckReachable(ctx context.Context, target string, callback func(bool))
}

// check Prober compliance of the reachability prober during compile time
var _ Prober = (*reachability.Prober)(nil)

type ObserverConfig struct {
	Source network.Source
	// Prober is optional, a reachability.Prober on Source and MainLoop is used otherwise
	Prober   Prober
	MainLoop mainloop.Poster
	// Target is checked on every connectivity change, empty disables checks
	Target           string
	Logger           Logger
	NetworkListeners []NetworkChangeListener
	HostListeners    []HostConnectionListener
}

type networkEntry struct {
	id       uint32
	listener NetworkChangeListener
}

type hostEntry struct {
	id       uint32
	listener HostConnectionListener
}

type Observer struct {
	log    Logger
	source network.Source
	prober Prober

	mu               sync.Mutex
	target           string
	networkListeners []networkEntry
	hostListeners    []hostEntry
	nextListenerId   uint32
	seq              uint64
	started          bool
	client           *network.Client
	ctx              context.Context
	cancel           context.CancelFunc
	done             chan struct{}
}

func NewObserver(config *ObserverConfig) *Observer {
	observer := &Observer{
		source: config.Source,
		prober: config.Prober,
		target: config.Target,
	}

	if config.Logger != nil {
		observer.log = config.Logger
	} else {
		observer.log = noopLogger{}
	}

	if observer.prober == nil {
		observer.prober = reachability.New(&reachability.Config{
			Network:  config.Source,
			MainLoop: config.MainLoop,
			Logger:   observer.log,
		})
	}

	for _, listener := range config.NetworkListeners {
		observer.addNetworkListener(listener)
	}

	for _, listener := range config.HostListeners {
		observer.addHostListener(listener)
	}

	return observer
}

// Start subscribes to the source. Without an active network, listeners are
// notified of the unavailable state before Start returns.
func (o *Observer) Start() error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return errors.New("observer is already started")
	}

	client, err := o.source.Subscribe()
	if err != nil {
		o.mu.Unlock()
		return errors.Errorf("could not subscribe to connectivity source: %v", err)
	}

	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.client = client
	o.done = make(chan struct{})
	o.started = true
	done := o.done
	o.mu.Unlock()

	active, err := o.source.ActiveNetwork()
	if err != nil {
		o.log.Warnf("Could not determine active network: %v", err)
	}

	if active == nil {
		o.notify(Unavailable())
	}

	go o.run(client, done)

	return nil
}

// Stop cancels the subscription and waits until no more network listeners
// will be notified. Results of checks still in flight are dropped.
func (o *Observer) Stop() error {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return nil
	}

	o.started = false
	// results of checks issued before a restart are stale
	o.seq++
	o.cancel()
	client := o.client
	done := o.done
	o.client = nil
	o.mu.Unlock()

	client.Cancel()
	<-done

	return nil
}

func (o *Observer) run(client *network.Client, done chan struct{}) {
	defer close(done)

	for event := range client.Events {
		if !o.running() {
			continue
		}

		o.handle(event)
	}

	if o.running() {
		o.log.Errorf("Connectivity source ended the subscription")
	}
}

func (o *Observer) running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.started
}

func (o *Observer) handle(event *network.Event) {
	switch event.Kind {
	case network.EventLost:
		o.notify(Unavailable())
	case network.EventCapabilitiesChanged:
		if event.Network.HasTransport(network.TransportWifi) {
			o.notify(AvailableVia(Wifi))
		} else {
			o.notify(AvailableVia(Cellular))
		}
	case network.EventConnectivityChanged:
		active, err := o.source.ActiveNetwork()
		if err != nil {
			o.log.Warnf("Could not determine active network: %v", err)
		}

		o.notify(classify(active))
	default:
		o.log.Warnf("Ignoring unknown connectivity event %v", event.Kind)
	}
}

// notify delivers state to all network listeners in registration order and
// then checks the target, if one is set.
func (o *Observer) notify(state State) {
	o.mu.Lock()
	listeners := make([]NetworkChangeListener, 0, len(o.networkListeners))
	for _, entry := range o.networkListeners {
		listeners = append(listeners, entry.listener)
	}
	target := o.target
	ctx := o.ctx
	o.mu.Unlock()

	o.log.Debugf("Connectivity changed to %v", state)

	for _, listener := range listeners {
		listener.OnNetworkChanged(state)
	}

	if target == "" {
		return
	}

	o.mu.Lock()
	o.seq++
	seq := o.seq
	o.mu.Unlock()

	o.prober.CheckReachable(ctx, target, func(connected bool) {
		o.deliver(seq, target, connected)
	})
}

func (o *Observer) deliver(seq uint64, target string, connected bool) {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		o.log.Debugf("Dropping result for %v, observer is stopped", target)
		return
	}

	if seq < o.seq {
		o.mu.Unlock()
		o.log.Debugf("Dropping stale result for %v", target)
		return
	}

	listeners := make([]HostConnectionListener, 0, len(o.hostListeners))
	for _, entry := range o.hostListeners {
		listeners = append(listeners, entry.listener)
	}
	o.mu.Unlock()

	o.log.Debugf("Host %v connected: %v", target, connected)

	for _, listener := range listeners {
		listener.OnHostConnected(connected)
	}
}

// SetTarget replaces the checked url. It is used from the next connectivity change on.
func (o *Observer) SetTarget(target string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.target = target
}

func (o *Observer) Target() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.target
}

// Subscription is a listener registration that can be cancelled.
type Subscription struct {
	cancel func()
	once   sync.Once
}

// Cancel removes the listener. It is safe to call Cancel more than once.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

func (o *Observer) AddNetworkListener(listener NetworkChangeListener) *Subscription {
	id := o.addNetworkListener(listener)

	return &Subscription{
		cancel: func() {
			o.mu.Lock()
			defer o.mu.Unlock()

			for i, entry := range o.networkListeners {
				if entry.id == id {
					o.networkListeners = append(o.networkListeners[:i:i], o.networkListeners[i+1:]...)
					return
				}
			}
		},
	}
}

func (o *Observer) AddHostListener(listener HostConnectionListener) *Subscription {
	id := o.addHostListener(listener)

	return &Subscription{
		cancel: func() {
			o.mu.Lock()
			defer o.mu.Unlock()

			for i, entry := range o.hostListeners {
				if entry.id == id {
					o.hostListeners = append(o.hostListeners[:i:i], o.hostListeners[i+1:]...)
					return
				}
			}
		},
	}
}

func (o *Observer) addNetworkListener(listener NetworkChangeListener) uint32 {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextListenerId
	o.nextListenerId++
	o.networkListeners = append(o.networkListeners, networkEntry{id: id, listener: listener})

	return id
}

func (o *Observer) addHostListener(listener HostConnectionListener) uint32 {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextListenerId
	o.nextListenerId++
	o.hostListeners = append(o.hostListeners, hostEntry{id: id, listener: listener})

	return id
}
