package network

import (
	"strings"
	"sync"

	"github.com/go-errors/errors"
	"github.com/godbus/dbus/v5"
	"github.com/the-lightning-land/netcheckd/network/nm"
)

// check NmSource compliance to its interface during compile time
var _ Source = (*NmSource)(nil)

type NmSourceConfig struct {
	Logger Logger
}

// networkManager is the part of the NetworkManager client NmSource uses.
type networkManager interface {
	Start() error
	Stop() error
	PrimaryConnectionInfo() (*nm.ConnectionInfo, error)
	DeviceProperties() ([]*nm.DeviceProperties, error)
	PropertiesChanged() (*nm.PropertiesChangedClient, error)
}

// check NetworkManager compliance to the interface during compile time
var _ networkManager = (*nm.NetworkManager)(nil)

// NmSource reports capability changes of the primary connection as seen by NetworkManager.
type NmSource struct {
	log     Logger
	nm      networkManager
	hub     *hub
	mu      sync.Mutex
	changes *nm.PropertiesChangedClient
	done    chan struct{}
}

func NewNmSource(config *NmSourceConfig) *NmSource {
	return newNmSource(config, nm.New())
}

func newNmSource(config *NmSourceConfig, manager networkManager) *NmSource {
	source := &NmSource{
		nm:  manager,
		hub: newHub(),
	}

	if config != nil && config.Logger != nil {
		source.log = config.Logger
	} else {
		source.log = noopLogger{}
	}

	return source
}

func (s *NmSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.changes != nil {
		return errors.New("source already started")
	}

	err := s.nm.Start()
	if err != nil {
		return errors.Errorf("could not start NetworkManager client: %v", err)
	}

	changes, err := s.nm.PropertiesChanged()
	if err != nil {
		_ = s.nm.Stop()
		return errors.Errorf("could not listen for NetworkManager changes: %v", err)
	}

	s.changes = changes
	s.done = make(chan struct{})

	go s.run(changes, s.done)

	return nil
}

func (s *NmSource) run(changes *nm.PropertiesChangedClient, done chan struct{}) {
	defer close(done)

	for changed := range changes.Changes {
		s.handle(changed)
	}

	s.log.Infof("Stopped listening for NetworkManager changes")

	s.hub.closeAll()
}

// handle translates a change of the primary connection into an event.
// Other property changes are ignored.
func (s *NmSource) handle(changed map[string]dbus.Variant) {
	_, primaryChanged := changed["PrimaryConnection"]
	_, typeChanged := changed["PrimaryConnectionType"]
	if !primaryChanged && !typeChanged {
		return
	}

	network, err := s.ActiveNetwork()
	if err != nil {
		s.log.Warnf("Could not read primary connection: %v", err)
		return
	}

	if network == nil {
		s.log.Debugf("Primary connection lost")
		s.hub.broadcast(&Event{Kind: EventLost})
		return
	}

	s.log.Debugf("Primary connection is now %v with %v", network.Interface, network.Transports)
	s.hub.broadcast(&Event{Kind: EventCapabilitiesChanged, Network: network})
}

func (s *NmSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.changes == nil {
		return nil
	}

	s.changes.Cancel()
	<-s.done
	s.changes = nil

	err := s.nm.Stop()
	if err != nil {
		return errors.Errorf("could not stop NetworkManager client: %v", err)
	}

	return nil
}

// Subscribe returns a client that first receives the current primary
// connection, if there is one, and then every change to it.
func (s *NmSource) Subscribe() (*Client, error) {
	network, err := s.ActiveNetwork()
	if err != nil {
		return nil, errors.Errorf("could not read primary connection: %v", err)
	}

	if network == nil {
		return s.hub.subscribe(), nil
	}

	return s.hub.subscribe(&Event{Kind: EventCapabilitiesChanged, Network: network}), nil
}

func (s *NmSource) ActiveNetwork() (*Network, error) {
	primary, err := s.nm.PrimaryConnectionInfo()
	if err != nil {
		return nil, err
	}

	if primary == nil {
		return nil, nil
	}

	network := &Network{
		Transports: []Transport{transportFromConnectionType(primary.Type)},
	}

	for _, props := range primary.Devices {
		if network.Interface == "" {
			network.Interface = props.Interface
		}

		transport := transportFromDeviceType(props.DeviceType)
		if !network.HasTransport(transport) {
			network.Transports = append(network.Transports, transport)
		}
	}

	return network, nil
}

func (s *NmSource) Links() ([]*Link, error) {
	devices, err := s.nm.DeviceProperties()
	if err != nil {
		return nil, err
	}

	var links []*Link

	for _, props := range devices {
		links = append(links, &Link{
			Interface: props.Interface,
			Transport: transportFromDeviceType(props.DeviceType),
			State:     linkStateFromDeviceState(props.State),
		})
	}

	return links, nil
}

func transportFromDeviceType(deviceType nm.DeviceType) Transport {
	switch deviceType {
	case nm.DeviceTypeWifi:
		return TransportWifi
	case nm.DeviceTypeModem:
		return TransportCellular
	case nm.DeviceTypeEthernet:
		return TransportEthernet
	case nm.DeviceTypeBluetooth:
		return TransportBluetooth
	case nm.DeviceTypeTun, nm.DeviceTypeWireguard:
		return TransportVpn
	default:
		return TransportOther
	}
}

func transportFromConnectionType(connectionType string) Transport {
	switch connectionType {
	case "802-11-wireless":
		return TransportWifi
	case "gsm", "cdma":
		return TransportCellular
	case "802-3-ethernet", "pppoe":
		return TransportEthernet
	case "bluetooth":
		return TransportBluetooth
	case "vpn", "wireguard", "tun":
		return TransportVpn
	}

	if strings.HasPrefix(connectionType, "802-11") {
		return TransportWifi
	}

	return TransportOther
}

func linkStateFromDeviceState(state nm.DeviceState) LinkState {
	switch {
	case state.Activated():
		return LinkConnected
	case state.Connecting():
		return LinkConnecting
	default:
		return LinkDisconnected
	}
}
