// Package feed publishes public session events to external observers (spectator views,
// dashboards). Events never carry private card identities.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Event types published by a session.
const (
	EventSeatJoined  = "seat_joined"
	EventSeatReady   = "seat_ready"
	EventDealt       = "dealt"
	EventDraw        = "draw"
	EventDrop        = "drop"
	EventReshuffle   = "reshuffle"
	EventTurn        = "turn"
	EventTurnTimeout = "turn_timeout"
	EventDisconnect  = "disconnect"
	EventWin         = "win"
	EventAbort       = "abort"
)

// Event is one public state change in a session.
type Event struct {
	SessionID uuid.UUID              `json:"session_id"`
	Index     int                    `json:"index"`
	Seat      int                    `json:"seat"`
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// Publisher sends events somewhere outside the process.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop drops every event. It is the default when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Multi fans an event out to several publishers, returning every failure joined.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func marshal(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal feed event: %w", err)
	}
	return data, nil
}
