package network

import (
	"context"
	"time"

	"github.com/nerrad567/tb-edge-agent/internal/identity"
)

// EventKind is the kind of a link event.
type EventKind int

const (
	EventAssociated EventKind = iota
	EventAddressAcquired
	EventDisassociated
)

// String returns the event name for logging.
func (k EventKind) String() string {
	switch k {
	case EventAssociated:
		return "associated"
	case EventAddressAcquired:
		return "address_acquired"
	case EventDisassociated:
		return "disassociated"
	default:
		return "unknown"
	}
}

// Event is a link state change reported by a Driver.
type Event struct {
	Kind EventKind

	// IP is set for EventAddressAcquired.
	IP string
}

// Driver joins the network and reports link events.
type Driver interface {
	// Watch emits link events until ctx is cancelled.
	Watch(ctx context.Context, emit func(Event)) error

	// Associate makes one attempt to join the network. It may block until
	// the attempt resolves.
	Associate(ctx context.Context, ssid, passphrase string) error

	// SignalDBM returns the received signal strength in dBm.
	SignalDBM(ctx context.Context) (int, error)
}

// addressPoller samples an interface's IPv4 address and reports gains
// and losses.
type addressPoller struct {
	iface    string
	interval time.Duration
	list     identity.InterfaceLister

	// withAssociation emits EventAssociated before each address gain, for
	// links whose association is not reported separately.
	withAssociation bool

	ip string
}

func (p *addressPoller) run(ctx context.Context, emit func(Event)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx, emit)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.poll(ctx, emit)
		}
	}
}

func (p *addressPoller) poll(ctx context.Context, emit func(Event)) {
	ip, err := identity.IPv4(ctx, p.iface, p.list)
	if err != nil {
		return
	}

	switch {
	case ip != "" && ip != p.ip:
		if p.withAssociation && p.ip == "" {
			emit(Event{Kind: EventAssociated})
		}
		emit(Event{Kind: EventAddressAcquired, IP: ip})
	case ip == "" && p.ip != "":
		emit(Event{Kind: EventDisassociated})
	}
	p.ip = ip
}
