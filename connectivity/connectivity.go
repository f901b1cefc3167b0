// Package connectivity classifies the device's current network connection and
// notifies listeners whenever it changes.
package connectivity

// ConnectionType is the transport an available connection runs over.
type ConnectionType int

const (
	Wifi ConnectionType = iota
	Cellular
)

func (t ConnectionType) String() string {
	switch t {
	case Wifi:
		return "WIFI"
	case Cellular:
		return "CELLULAR"
	default:
		return "INVALID CONNECTION TYPE"
	}
}

// State is the connectivity of the device at one point in time. An
// unavailable state never carries a connection type.
type State struct {
	available      bool
	connectionType ConnectionType
}

// Unavailable is the state without any usable connection.
func Unavailable() State {
	return State{}
}

// AvailableVia is the state of a usable connection over t.
func AvailableVia(t ConnectionType) State {
	return State{
		available:      true,
		connectionType: t,
	}
}

func (s State) Available() bool {
	return s.available
}

// Type returns the connection type, or nil if no connection is available.
func (s State) Type() *ConnectionType {
	if !s.available {
		return nil
	}

	t := s.connectionType
	return &t
}

func (s State) String() string {
	if !s.available {
		return "UNAVAILABLE"
	}

	return "AVAILABLE VIA " + s.connectionType.String()
}
