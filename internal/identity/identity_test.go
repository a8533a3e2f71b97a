package identity

import (
	"context"
	"errors"
	"testing"

	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/config"
)

func testDeviceConfig() config.DeviceConfig {
	return config.DeviceConfig{
		NamePrefix: "Smart Office",
		IDPrefix:   "smartoffice",
		Model:      "SO-01",
	}
}

func fakeInterfaces(ifaces ...gnet.InterfaceStat) InterfaceLister {
	return func(context.Context) (gnet.InterfaceStatList, error) {
		return ifaces, nil
	}
}

func TestNew(t *testing.T) {
	dev, err := New("a4:cf:12:0b:3e:91", testDeviceConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	want := Device{
		Name:  "Smart Office - A4CF120B3E91",
		ID:    "smartoffice-a4cf120b3e91",
		MAC:   "A4:CF:12:0B:3E:91",
		Model: "Smart Office SO-01",
	}
	if dev != want {
		t.Errorf("New() = %+v, want %+v", dev, want)
	}
}

func TestNew_InvalidMAC(t *testing.T) {
	for _, mac := range []string{"", "not-a-mac", "a4:cf:12"} {
		if _, err := New(mac, testDeviceConfig()); !errors.Is(err, ErrInvalidHardwareAddr) {
			t.Errorf("New(%q) error = %v, want ErrInvalidHardwareAddr", mac, err)
		}
	}
}

func TestDiscover(t *testing.T) {
	lo := gnet.InterfaceStat{Name: "lo", HardwareAddr: "00:00:00:00:00:01", Flags: []string{"up", "loopback"}}
	noMAC := gnet.InterfaceStat{Name: "tun0", Flags: []string{"up"}}
	eth := gnet.InterfaceStat{Name: "eth0", HardwareAddr: "02:42:ac:11:00:02", Flags: []string{"up"}}
	wlan := gnet.InterfaceStat{Name: "wlan0", HardwareAddr: "a4:cf:12:0b:3e:91", Flags: []string{"up"}}

	tests := []struct {
		name      string
		iface     string
		ifaces    []gnet.InterfaceStat
		wantIface string
		wantErr   error
	}{
		{name: "first non-loopback", ifaces: []gnet.InterfaceStat{lo, noMAC, eth, wlan}, wantIface: "eth0"},
		{name: "configured interface", iface: "wlan0", ifaces: []gnet.InterfaceStat{lo, eth, wlan}, wantIface: "wlan0"},
		{name: "configured interface missing", iface: "wlan1", ifaces: []gnet.InterfaceStat{eth}, wantErr: ErrNoInterface},
		{name: "only loopback", ifaces: []gnet.InterfaceStat{lo, noMAC}, wantErr: ErrNoInterface},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testDeviceConfig()
			cfg.Interface = tt.iface

			dev, err := Discover(context.Background(), cfg, fakeInterfaces(tt.ifaces...))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Discover() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Discover() error = %v", err)
			}
			if dev.Interface != tt.wantIface {
				t.Errorf("Interface = %q, want %q", dev.Interface, tt.wantIface)
			}
		})
	}
}

func TestIPv4(t *testing.T) {
	wlan := gnet.InterfaceStat{
		Name:         "wlan0",
		HardwareAddr: "a4:cf:12:0b:3e:91",
		Addrs: gnet.InterfaceAddrList{
			{Addr: "fe80::a6cf:12ff:fe0b:3e91/64"},
			{Addr: "192.168.1.37/24"},
		},
	}
	list := fakeInterfaces(wlan)

	ip, err := IPv4(context.Background(), "wlan0", list)
	if err != nil {
		t.Fatalf("IPv4() error = %v", err)
	}
	if ip != "192.168.1.37" {
		t.Errorf("IPv4() = %q, want 192.168.1.37", ip)
	}

	ip, err = IPv4(context.Background(), "eth0", list)
	if err != nil || ip != "" {
		t.Errorf("IPv4(unknown) = (%q, %v), want empty", ip, err)
	}
}
