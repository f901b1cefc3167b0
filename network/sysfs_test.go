package network

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const routeHeader = "Iface\tDestination\tGateway \tFlags\tRefCnt\tUse\tMetric\tMask\t\tMTU\tWindow\tIRTT\n"

// fakeSys lays out a minimal /proc and /sys tree in a temporary directory.
// Interface paths are given relative to sys/class/net as "sys/<iface>/...".
type fakeSys struct {
	t    *testing.T
	root string
}

func newFakeSys(t *testing.T) *fakeSys {
	t.Helper()

	root := t.TempDir()

	if err := os.MkdirAll(filepath.Join(root, "sys", "class", "net"), 0755); err != nil {
		t.Fatal(err)
	}

	if err := os.MkdirAll(filepath.Join(root, "proc", "net"), 0755); err != nil {
		t.Fatal(err)
	}

	return &fakeSys{t: t, root: root}
}

func (f *fakeSys) config() *NetlinkSourceConfig {
	return &NetlinkSourceConfig{
		ProcMountPoint: filepath.Join(f.root, "proc"),
		SysMountPoint:  filepath.Join(f.root, "sys"),
	}
}

func (f *fakeSys) fs() *hostNetwork {
	c := f.config()
	return &hostNetwork{procRoot: c.ProcMountPoint, sysRoot: c.SysMountPoint}
}

func (f *fakeSys) path(path string) string {
	if rest, ok := strings.CutPrefix(path, "sys/"); ok {
		return filepath.Join(f.root, "sys", "class", "net", rest)
	}

	return filepath.Join(f.root, path)
}

func (f *fakeSys) write(path string, content string) {
	f.t.Helper()

	full := f.path(path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		f.t.Fatal(err)
	}

	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		f.t.Fatal(err)
	}
}

func (f *fakeSys) mkdir(path string) {
	f.t.Helper()

	if err := os.MkdirAll(f.path(path), 0755); err != nil {
		f.t.Fatal(err)
	}
}

func (f *fakeSys) routes(lines ...string) {
	content := routeHeader
	for _, line := range lines {
		content += line + "\n"
	}

	f.write("proc/net/route", content)
}

func TestHostNetworkTransport(t *testing.T) {
	f := newFakeSys(t)

	f.mkdir("sys/wlan0/wireless")
	f.write("sys/wwan0/uevent", "DEVTYPE=wwan\nINTERFACE=wwan0\n")
	f.write("sys/ppp0/type", "512\n")
	f.mkdir("sys/eth0/device")
	f.write("sys/tun0/tun_flags", "0x1002\n")
	f.write("sys/wg0/uevent", "DEVTYPE=wireguard\n")
	f.write("sys/bnep0/uevent", "DEVTYPE=bluetooth\n")
	f.write("sys/dummy0/type", "1\n")

	tests := []struct {
		iface string
		want  Transport
	}{
		{"wlan0", TransportWifi},
		{"wwan0", TransportCellular},
		{"ppp0", TransportCellular},
		{"eth0", TransportEthernet},
		{"tun0", TransportVpn},
		{"wg0", TransportVpn},
		{"bnep0", TransportBluetooth},
		{"dummy0", TransportOther},
	}

	fs := f.fs()

	for _, tt := range tests {
		t.Run(tt.iface, func(t *testing.T) {
			if got := fs.transport(tt.iface); got != tt.want {
				t.Errorf("transport(%v) = %v, want %v", tt.iface, got, tt.want)
			}
		})
	}
}

func TestHostNetworkActiveNetworkPicksLowestMetric(t *testing.T) {
	f := newFakeSys(t)

	f.mkdir("sys/wlan0/wireless")
	f.mkdir("sys/eth0/device")
	f.routes(
		"eth0\t0002A8C0\t00000000\t0001\t0\t0\t100\t00FFFFFF\t0\t0\t0",
		"eth0\t00000000\t0102A8C0\t0003\t0\t0\t100\t00000000\t0\t0\t0",
		"wlan0\t00000000\t0101A8C0\t0003\t0\t0\t600\t00000000\t0\t0\t0",
	)

	network, err := f.fs().activeNetwork()
	if err != nil {
		t.Fatalf("activeNetwork() error = %v", err)
	}

	if network == nil {
		t.Fatal("activeNetwork() = nil, want eth0")
	}

	if network.Interface != "eth0" || !network.HasTransport(TransportEthernet) {
		t.Errorf("activeNetwork() = %+v, want eth0 via ethernet", network)
	}
}

func TestHostNetworkActiveNetworkIgnoresDownRoutes(t *testing.T) {
	f := newFakeSys(t)

	f.mkdir("sys/wlan0/wireless")
	f.routes(
		"wlan0\t00000000\t0101A8C0\t0002\t0\t0\t600\t00000000\t0\t0\t0",
	)

	network, err := f.fs().activeNetwork()
	if err != nil {
		t.Fatalf("activeNetwork() error = %v", err)
	}

	if network != nil {
		t.Errorf("activeNetwork() = %+v, want nil", network)
	}
}

func TestHostNetworkActiveNetworkFallsBackToIPv6(t *testing.T) {
	f := newFakeSys(t)

	f.mkdir("sys/wlan0/wireless")
	f.routes()
	f.write("proc/net/ipv6_route",
		"fe800000000000000000000000000000 40 00000000000000000000000000000000 00 00000000000000000000000000000000 00000100 00000001 00000000 00000001 wlan0\n"+
			"00000000000000000000000000000000 00 00000000000000000000000000000000 00 fe800000000000000000000000000001 00000258 00000001 00000000 00000003 wlan0\n")

	network, err := f.fs().activeNetwork()
	if err != nil {
		t.Fatalf("activeNetwork() error = %v", err)
	}

	if network == nil || network.Interface != "wlan0" || !network.HasTransport(TransportWifi) {
		t.Errorf("activeNetwork() = %+v, want wlan0 via wifi", network)
	}
}

func TestHostNetworkLinks(t *testing.T) {
	f := newFakeSys(t)

	f.write("sys/lo/operstate", "unknown\n")
	f.write("sys/wlan0/operstate", "dormant\n")
	f.mkdir("sys/wlan0/wireless")
	f.write("sys/wwan0/operstate", "up\n")
	f.write("sys/wwan0/uevent", "DEVTYPE=wwan\n")
	f.write("sys/eth0/operstate", "down\n")
	f.mkdir("sys/eth0/device")

	links, err := f.fs().links()
	if err != nil {
		t.Fatalf("links() error = %v", err)
	}

	got := make(map[string]*Link)
	for _, link := range links {
		got[link.Interface] = link
	}

	if _, ok := got["lo"]; ok {
		t.Errorf("links() contains loopback")
	}

	want := map[string]LinkState{
		"wlan0": LinkConnecting,
		"wwan0": LinkConnected,
		"eth0":  LinkDisconnected,
	}

	for iface, state := range want {
		link, ok := got[iface]
		if !ok {
			t.Errorf("links() is missing %v", iface)
			continue
		}

		if link.State != state {
			t.Errorf("%v state = %v, want %v", iface, link.State, state)
		}
	}
}
