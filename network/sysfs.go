package network

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-errors/errors"
	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/sysfs"
)

const (
	// ARPHRD_PPP, reported in /sys/class/net/<if>/type for ppp links of modems
	arphrdPpp = 512
	// RTF_UP
	routeFlagUp = 0x1
)

// hostNetwork reads the network configuration from procfs and sysfs.
type hostNetwork struct {
	procRoot string
	sysRoot  string
}

func (h *hostNetwork) proc() (procfs.FS, error) {
	fs, err := procfs.NewFS(h.procRoot)
	if err != nil {
		return procfs.FS{}, errors.Errorf("could not open procfs at %v: %v", h.procRoot, err)
	}

	return fs, nil
}

func (h *hostNetwork) sys() (sysfs.FS, error) {
	fs, err := sysfs.NewFS(h.sysRoot)
	if err != nil {
		return sysfs.FS{}, errors.Errorf("could not open sysfs at %v: %v", h.sysRoot, err)
	}

	return fs, nil
}

func (h *hostNetwork) classNet(iface string) string {
	return filepath.Join(h.sysRoot, "class", "net", iface)
}

// activeNetwork returns the interface carrying the default route together with
// its transport, or nil if there is no default route.
func (h *hostNetwork) activeNetwork() (*Network, error) {
	iface, err := h.defaultRouteInterface()
	if err != nil {
		return nil, err
	}

	if iface == "" {
		return nil, nil
	}

	return &Network{
		Interface:  iface,
		Transports: []Transport{h.transport(iface)},
	}, nil
}

func (h *hostNetwork) links() ([]*Link, error) {
	fs, err := h.sys()
	if err != nil {
		return nil, err
	}

	ifaces, err := fs.NetClassDevices()
	if err != nil {
		return nil, errors.Errorf("could not list interfaces: %v", err)
	}

	var links []*Link

	for _, iface := range ifaces {
		if iface == "lo" {
			continue
		}

		links = append(links, &Link{
			Interface: iface,
			Transport: h.transport(iface),
			State:     h.linkState(iface),
		})
	}

	return links, nil
}

func (h *hostNetwork) defaultRouteInterface() (string, error) {
	iface, err := h.defaultIPv4RouteInterface()
	if err != nil {
		return "", err
	}

	if iface != "" {
		return iface, nil
	}

	return h.defaultIPv6RouteInterface()
}

// defaultIPv4RouteInterface picks the default route with the lowest metric.
func (h *hostNetwork) defaultIPv4RouteInterface() (string, error) {
	fs, err := h.proc()
	if err != nil {
		return "", err
	}

	routes, err := fs.NetRoute()
	if os.IsNotExist(err) {
		return "", nil
	} else if err != nil {
		return "", errors.Errorf("could not read ipv4 routes: %v", err)
	}

	best := ""
	var bestMetric uint32
	found := false

	for _, route := range routes {
		if route.Destination != 0 || route.Mask != 0 || route.Flags&routeFlagUp == 0 {
			continue
		}

		if !found || route.Metric < bestMetric {
			best = route.Iface
			bestMetric = route.Metric
			found = true
		}
	}

	return best, nil
}

// defaultIPv6RouteInterface reads /proc/net/ipv6_route, which procfs does not parse.
func (h *hostNetwork) defaultIPv6RouteInterface() (string, error) {
	path := filepath.Join(h.procRoot, "net", "ipv6_route")

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return "", nil
	} else if err != nil {
		return "", errors.Errorf("could not open %v: %v", path, err)
	}
	defer f.Close()

	best := ""
	var bestMetric uint64
	found := false

	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		// dest prefixlen src prefixlen nexthop metric refcnt use flags iface
		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 {
			continue
		}

		if strings.Trim(fields[0], "0") != "" || fields[1] != "00" || fields[9] == "lo" {
			continue
		}

		flags, err := strconv.ParseUint(fields[8], 16, 32)
		if err != nil || flags&routeFlagUp == 0 {
			continue
		}

		metric, err := strconv.ParseUint(fields[5], 16, 32)
		if err != nil {
			continue
		}

		if !found || metric < bestMetric {
			best = fields[9]
			bestMetric = metric
			found = true
		}
	}

	if err := scanner.Err(); err != nil {
		return "", errors.Errorf("could not read %v: %v", path, err)
	}

	return best, nil
}

// netClass returns what sysfs knows about iface, or nil if it cannot be read.
func (h *hostNetwork) netClass(iface string) *sysfs.NetClassIface {
	fs, err := h.sys()
	if err != nil {
		return nil
	}

	info, err := fs.NetClassByIface(iface)
	if err != nil {
		return nil
	}

	return info
}

func (h *hostNetwork) transport(iface string) Transport {
	dir := h.classNet(iface)

	// the wireless and phy80211 directories and DEVTYPE are not part of NetClassIface
	if exists(filepath.Join(dir, "wireless")) || exists(filepath.Join(dir, "phy80211")) {
		return TransportWifi
	}

	switch h.uevent(iface)["DEVTYPE"] {
	case "wlan":
		return TransportWifi
	case "wwan":
		return TransportCellular
	case "bluetooth":
		return TransportBluetooth
	case "wireguard":
		return TransportVpn
	}

	if exists(filepath.Join(dir, "tun_flags")) {
		return TransportVpn
	}

	info := h.netClass(iface)
	if (info != nil && info.Type != nil && *info.Type == arphrdPpp) || strings.HasPrefix(iface, "wwan") {
		return TransportCellular
	}

	if exists(filepath.Join(dir, "device")) {
		return TransportEthernet
	}

	return TransportOther
}

func (h *hostNetwork) linkState(iface string) LinkState {
	info := h.netClass(iface)
	if info == nil {
		return LinkDisconnected
	}

	switch info.OperState {
	case "up":
		return LinkConnected
	case "dormant":
		return LinkConnecting
	default:
		return LinkDisconnected
	}
}

func (h *hostNetwork) uevent(iface string) map[string]string {
	values := make(map[string]string)

	content, err := os.ReadFile(filepath.Join(h.classNet(iface), "uevent"))
	if err != nil {
		return values
	}

	for _, line := range strings.Split(string(content), "\n") {
		key, value, ok := strings.Cut(line, "=")
		if ok {
			values[key] = value
		}
	}

	return values
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
