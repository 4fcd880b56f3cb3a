// internal/feed/nats.go
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultNATSSubject is the subject prefix used when none is configured.
const DefaultNATSSubject = "rummy.events"

// NATSPublisher publishes each event on "<prefix>.<session id>" so observers can
// subscribe to one table or to "<prefix>.>" for all of them.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher connects to the broker at url.
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	if prefix == "" {
		prefix = DefaultNATSSubject
	}
	opts := []nats.Option{
		nats.Name("rummy-server"),
		nats.Timeout(10 * time.Second),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(5),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{nc: nc, prefix: prefix}, nil
}

// Subject returns the subject an event for the given session is published on.
func (p *NATSPublisher) Subject(ev Event) string {
	return p.prefix + "." + ev.SessionID.String()
}

func (p *NATSPublisher) Publish(_ context.Context, ev Event) error {
	data, err := marshal(ev)
	if err != nil {
		return err
	}
	if err := p.nc.Publish(p.Subject(ev), data); err != nil {
		return fmt.Errorf("failed to publish to NATS subject '%s': %w", p.Subject(ev), err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}
