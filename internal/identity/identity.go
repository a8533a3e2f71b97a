package identity

import (
	"context"
	"fmt"
	"net"
	"strings"

	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/config"
)

// Device is the immutable identity of this device.
type Device struct {
	// Name is the human-readable display name. It is only logged; the
	// provisioning request carries ID.
	Name string

	// ID is the platform device id.
	ID string

	// MAC is the hardware address, upper case with colons.
	MAC string

	Model string

	// Interface is the network interface the MAC was read from.
	Interface string
}

// InterfaceLister returns the host's network interfaces.
// gnet.InterfacesWithContext satisfies it.
type InterfaceLister func(ctx context.Context) (gnet.InterfaceStatList, error)

// New builds a Device from a hardware address and the device section of
// the configuration.
func New(mac string, cfg config.DeviceConfig) (Device, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil || len(hw) == 0 {
		return Device{}, fmt.Errorf("%w: %q", ErrInvalidHardwareAddr, mac)
	}

	upper := strings.ToUpper(hw.String())
	compact := strings.ReplaceAll(upper, ":", "")

	return Device{
		Name:  cfg.NamePrefix + " - " + compact,
		ID:    cfg.IDPrefix + "-" + strings.ToLower(compact),
		MAC:   upper,
		Model: cfg.NamePrefix + " " + cfg.Model,
	}, nil
}

// Discover reads the hardware address of the configured interface (or the
// first non-loopback interface that has one) and builds the Device.
func Discover(ctx context.Context, cfg config.DeviceConfig, list InterfaceLister) (Device, error) {
	if list == nil {
		list = gnet.InterfacesWithContext
	}

	ifaces, err := list(ctx)
	if err != nil {
		return Device{}, fmt.Errorf("listing interfaces: %w", err)
	}

	iface, ok := selectInterface(ifaces, cfg.Interface)
	if !ok {
		if cfg.Interface != "" {
			return Device{}, fmt.Errorf("%w: %s", ErrNoInterface, cfg.Interface)
		}
		return Device{}, ErrNoInterface
	}

	dev, err := New(iface.HardwareAddr, cfg)
	if err != nil {
		return Device{}, err
	}
	dev.Interface = iface.Name
	return dev, nil
}

// IPv4 returns the first IPv4 address assigned to the named interface, or
// "" if it has none.
func IPv4(ctx context.Context, name string, list InterfaceLister) (string, error) {
	if list == nil {
		list = gnet.InterfacesWithContext
	}

	ifaces, err := list(ctx)
	if err != nil {
		return "", fmt.Errorf("listing interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Name != name {
			continue
		}
		for _, a := range iface.Addrs {
			ip, _, err := net.ParseCIDR(a.Addr)
			if err != nil {
				ip = net.ParseIP(a.Addr)
			}
			if ip != nil && ip.To4() != nil {
				return ip.String(), nil
			}
		}
	}
	return "", nil
}

func selectInterface(ifaces gnet.InterfaceStatList, want string) (gnet.InterfaceStat, bool) {
	for _, iface := range ifaces {
		if iface.HardwareAddr == "" {
			continue
		}
		if want != "" {
			if iface.Name == want {
				return iface, true
			}
			continue
		}
		if isLoopback(iface) {
			continue
		}
		return iface, true
	}
	return gnet.InterfaceStat{}, false
}

func isLoopback(iface gnet.InterfaceStat) bool {
	for _, f := range iface.Flags {
		if f == "loopback" {
			return true
		}
	}
	return false
}
