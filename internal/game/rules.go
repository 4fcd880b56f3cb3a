// internal/game/rules.go
package game

import (
	"fmt"
	"time"
)

// DisconnectPolicy decides what happens to a table when a seat drops mid-game.
type DisconnectPolicy string

const (
	// DisconnectAbort ends the whole session.
	DisconnectAbort DisconnectPolicy = "abort"
	// DisconnectSkip forfeits the seat's turns and keeps playing while two or more seats remain.
	DisconnectSkip DisconnectPolicy = "skip"
)

const (
	MinPlayers = 2
	MaxPlayers = 5
)

// HouseRules configures a table.
type HouseRules struct {
	Players          int              `json:"players"`          // seats needed before the table can start
	TurnTimeout      time.Duration    `json:"turnTimeout"`      // 0 disables the turn timer
	DisconnectPolicy DisconnectPolicy `json:"disconnectPolicy"` // abort or skip
}

// DefaultHouseRules returns a two-seat table with no turn timer that aborts on disconnect.
func DefaultHouseRules() HouseRules {
	return HouseRules{
		Players:          MinPlayers,
		DisconnectPolicy: DisconnectAbort,
	}
}

// Validate checks the rules are playable. Five seats is the most a 52-card deck can deal to.
func (rules HouseRules) Validate() error {
	if rules.Players < MinPlayers || rules.Players > MaxPlayers {
		return fmt.Errorf("players must be between %d and %d, got %d", MinPlayers, MaxPlayers, rules.Players)
	}
	if rules.TurnTimeout < 0 {
		return fmt.Errorf("turn timeout must be non-negative")
	}
	if _, err := ParseDisconnectPolicy(string(rules.DisconnectPolicy)); err != nil {
		return err
	}
	return nil
}

// ParseDisconnectPolicy converts a config value to a DisconnectPolicy.
func ParseDisconnectPolicy(s string) (DisconnectPolicy, error) {
	switch DisconnectPolicy(s) {
	case DisconnectAbort, DisconnectSkip:
		return DisconnectPolicy(s), nil
	}
	return "", fmt.Errorf("invalid disconnect policy %q (want %q or %q)", s, DisconnectAbort, DisconnectSkip)
}
