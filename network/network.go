package network

type Transport int

const (
	TransportOther Transport = iota
	TransportWifi
	TransportCellular
	TransportEthernet
	TransportBluetooth
	TransportVpn
)

func (t Transport) String() string {
	switch t {
	case TransportWifi:
		return "WIFI"
	case TransportCellular:
		return "CELLULAR"
	case TransportEthernet:
		return "ETHERNET"
	case TransportBluetooth:
		return "BLUETOOTH"
	case TransportVpn:
		return "VPN"
	default:
		return "OTHER"
	}
}

// Network is the currently active (default) network and its capabilities.
type Network struct {
	Interface  string
	Transports []Transport
}

func (n *Network) HasTransport(t Transport) bool {
	if n == nil {
		return false
	}

	for _, transport := range n.Transports {
		if transport == t {
			return true
		}
	}

	return false
}

type LinkState int

const (
	LinkDisconnected LinkState = iota
	LinkConnecting
	LinkConnected
)

func (s LinkState) String() string {
	switch s {
	case LinkConnecting:
		return "CONNECTING"
	case LinkConnected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

// Link is a single network device, active or not.
type Link struct {
	Interface string
	Transport Transport
	State     LinkState
}

func (l *Link) ConnectedOrConnecting() bool {
	return l.State == LinkConnecting || l.State == LinkConnected
}

type EventKind int

const (
	// EventLost is sent by capability based sources when the default network goes away
	EventLost EventKind = iota
	// EventCapabilitiesChanged carries the new default network
	EventCapabilitiesChanged
	// EventConnectivityChanged only says that something changed, receivers
	// have to query the active network themselves
	EventConnectivityChanged
)

func (k EventKind) String() string {
	switch k {
	case EventLost:
		return "LOST"
	case EventCapabilitiesChanged:
		return "CAPABILITIES_CHANGED"
	case EventConnectivityChanged:
		return "CONNECTIVITY_CHANGED"
	default:
		return "INVALID EVENT"
	}
}

type Event struct {
	Kind    EventKind
	Network *Network
}

// Querier answers questions about the current network configuration.
type Querier interface {
	ActiveNetwork() (*Network, error)
	Links() ([]*Link, error)
}

// Source is a stream of connectivity notifications from the operating system.
type Source interface {
	Querier
	Start() error
	Stop() error
	Subscribe() (*Client, error)
}
