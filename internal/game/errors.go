// internal/game/errors.go
package game

import (
	"errors"

	"github.com/jason-s-yu/rummy/internal/deck"
)

// Errors returned by session operations. A rejected command never mutates state.
var (
	ErrIllegalAction = errors.New("illegal action")
	ErrCardNotInHand = errors.New("card not in hand")
	ErrEmptyDiscard  = errors.New("discard pile is empty")
	ErrSessionFull   = errors.New("session is full")

	ErrEmptyDeck = deck.ErrEmptyDeck
)

// Reject reason codes carried by @REJECT.
const (
	ReasonIllegalAction = "ILLEGAL_ACTION"
	ReasonCardNotInHand = "CARD_NOT_IN_HAND"
	ReasonEmptyDeck     = "EMPTY_DECK"
	ReasonEmptyDiscard  = "EMPTY_DISCARD"
)

// Abort reason codes carried by @ABORT.
const (
	AbortDisconnect = "DISCONNECT"
	AbortShutdown   = "SHUTDOWN"
)

// RejectReason maps a recoverable game error to its wire reason code.
// Anything unrecognized is reported as an illegal action.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrCardNotInHand):
		return ReasonCardNotInHand
	case errors.Is(err, ErrEmptyDeck):
		return ReasonEmptyDeck
	case errors.Is(err, ErrEmptyDiscard):
		return ReasonEmptyDiscard
	}
	return ReasonIllegalAction
}
