package network

import (
	"sync"

	"github.com/go-errors/errors"
	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/sysfs"
)

// check NetlinkSource compliance to its interface during compile time
var _ Source = (*NetlinkSource)(nil)

type NetlinkSourceConfig struct {
	Logger Logger
	// ProcMountPoint and SysMountPoint override /proc and /sys
	ProcMountPoint string
	SysMountPoint  string
}

// NetlinkSource watches rtnetlink for link, address and route changes and
// sends a ConnectivityChanged event whenever the default network changes.
type NetlinkSource struct {
	log  Logger
	fs   *hostNetwork
	hub  *hub
	mu   sync.Mutex
	sock *netlinkSocket
	stop chan struct{}
	done chan struct{}
	last string
}

func NewNetlinkSource(config *NetlinkSourceConfig) *NetlinkSource {
	source := &NetlinkSource{
		fs: &hostNetwork{
			procRoot: procfs.DefaultMountPoint,
			sysRoot:  sysfs.DefaultMountPoint,
		},
		hub: newHub(),
		log: noopLogger{},
	}

	if config == nil {
		return source
	}

	if config.Logger != nil {
		source.log = config.Logger
	}

	if config.ProcMountPoint != "" {
		source.fs.procRoot = config.ProcMountPoint
	}

	if config.SysMountPoint != "" {
		source.fs.sysRoot = config.SysMountPoint
	}

	return source
}

func (s *NetlinkSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sock != nil {
		return errors.New("source already started")
	}

	sock, err := openNetlinkSocket()
	if err != nil {
		return errors.Errorf("could not open netlink socket: %v", err)
	}

	s.sock = sock
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.last = s.fingerprint()

	go s.run(sock, s.stop, s.done)

	return nil
}

func (s *NetlinkSource) run(sock *netlinkSocket, stop chan struct{}, done chan struct{}) {
	defer close(done)
	defer s.hub.closeAll()

	for {
		select {
		case <-stop:
			return
		default:
		}

		changed, err := sock.wait()
		if err != nil {
			s.log.Errorf("Could not read from netlink socket: %v", err)
			return
		}

		if !changed {
			continue
		}

		s.changed()
	}
}

// changed compares the default network against the last one seen and emits
// an event if it is different.
func (s *NetlinkSource) changed() {
	fingerprint := s.fingerprint()
	if fingerprint == s.last {
		return
	}

	s.log.Debugf("Default network changed from %q to %q", s.last, fingerprint)
	s.last = fingerprint

	s.hub.broadcast(&Event{Kind: EventConnectivityChanged})
}

func (s *NetlinkSource) fingerprint() string {
	network, err := s.fs.activeNetwork()
	if err != nil {
		s.log.Warnf("Could not read default network: %v", err)
		return ""
	}

	if network == nil {
		return ""
	}

	return network.Interface + "/" + network.Transports[0].String()
}

func (s *NetlinkSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sock == nil {
		return nil
	}

	close(s.stop)
	<-s.done

	err := s.sock.close()
	s.sock = nil
	if err != nil {
		return errors.Errorf("could not close netlink socket: %v", err)
	}

	return nil
}

// Subscribe returns a client that immediately receives a ConnectivityChanged
// event if a default network exists, like a sticky broadcast.
func (s *NetlinkSource) Subscribe() (*Client, error) {
	network, err := s.fs.activeNetwork()
	if err != nil {
		return nil, errors.Errorf("could not read default network: %v", err)
	}

	if network == nil {
		return s.hub.subscribe(), nil
	}

	return s.hub.subscribe(&Event{Kind: EventConnectivityChanged}), nil
}

func (s *NetlinkSource) ActiveNetwork() (*Network, error) {
	return s.fs.activeNetwork()
}

func (s *NetlinkSource) Links() ([]*Link, error) {
	return s.fs.links()
}
