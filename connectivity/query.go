package connectivity

import (
	"github.com/the-lightning-land/netcheckd/network"
)

// HasAvailableNetwork reports whether the active network runs over Wi-Fi or
// cellular. Query failures count as no network.
func HasAvailableNetwork(q network.Querier) bool {
	active, err := q.ActiveNetwork()
	if err != nil || active == nil {
		return false
	}

	return active.HasTransport(network.TransportWifi) ||
		active.HasTransport(network.TransportCellular)
}

// GetConnectionType returns Wifi if any Wi-Fi link is connected or
// connecting, else Cellular if any cellular link is, else nil.
func GetConnectionType(q network.Querier) *ConnectionType {
	links, err := q.Links()
	if err != nil {
		return nil
	}

	for _, want := range []ConnectionType{Wifi, Cellular} {
		for _, link := range links {
			if link.ConnectedOrConnecting() && link.Transport == transportOf(want) {
				t := want
				return &t
			}
		}
	}

	return nil
}

func transportOf(t ConnectionType) network.Transport {
	if t == Wifi {
		return network.TransportWifi
	}

	return network.TransportCellular
}

// classify maps the capabilities of an active network to a state. Anything
// that is not Wi-Fi is reported as cellular.
func classify(active *network.Network) State {
	if active == nil {
		return Unavailable()
	}

	if active.HasTransport(network.TransportWifi) {
		return AvailableVia(Wifi)
	}

	return AvailableVia(Cellular)
}
