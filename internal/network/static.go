package network

import (
	"context"
	"time"

	"github.com/nerrad567/tb-edge-agent/internal/identity"
)

// StaticDriver reports a link that is configured outside the agent.
type StaticDriver struct {
	poller addressPoller
}

// NewStaticDriver watches iface for an IPv4 address. list may be nil to
// use the host's interfaces.
func NewStaticDriver(iface string, poll time.Duration, list identity.InterfaceLister) *StaticDriver {
	return &StaticDriver{
		poller: addressPoller{
			iface:           iface,
			interval:        poll,
			list:            list,
			withAssociation: true,
		},
	}
}

// Watch implements Driver.
func (d *StaticDriver) Watch(ctx context.Context, emit func(Event)) error {
	return d.poller.run(ctx, emit)
}

// Associate implements Driver. The link is not under the agent's control.
func (d *StaticDriver) Associate(context.Context, string, string) error {
	return nil
}

// SignalDBM implements Driver.
func (d *StaticDriver) SignalDBM(context.Context) (int, error) {
	return 0, ErrNoSignal
}
