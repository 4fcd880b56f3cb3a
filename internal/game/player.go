// internal/game/player.go
package game

import (
	"fmt"
	"sync"

	"github.com/jason-s-yu/rummy/internal/models"
	"github.com/jason-s-yu/rummy/internal/protocol"
)

// DefaultOutboxSize is the number of outbound messages buffered per seat.
const DefaultOutboxSize = 64

// Player is one seat at a table. Its flags and hand are guarded by the owning
// Session's lock; the outbox is drained by the connection's write pump.
type Player struct {
	Seat int

	hand []models.Card

	ready        bool
	awaitingDraw bool
	awaitingDrop bool
	canClaimWin  bool
	connected    bool

	outbox    chan protocol.Outbound
	closed    chan struct{}
	closeOnce sync.Once
}

func newPlayer(seat, outboxSize int) *Player {
	if outboxSize <= 0 {
		outboxSize = DefaultOutboxSize
	}
	return &Player{
		Seat:      seat,
		connected: true,
		outbox:    make(chan protocol.Outbound, outboxSize),
		closed:    make(chan struct{}),
	}
}

// ReceiveHandCard adds a card to the hand.
func (p *Player) ReceiveHandCard(c models.Card) {
	p.hand = append(p.hand, c)
}

// RemoveHandCard takes a card out of the hand, keeping the order of the rest.
func (p *Player) RemoveHandCard(c models.Card) error {
	for i, h := range p.hand {
		if h == c {
			p.hand = append(p.hand[:i], p.hand[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrCardNotInHand, c)
}

// Hand returns a copy of the hand in the order cards were received.
func (p *Player) Hand() []models.Card {
	out := make([]models.Card, len(p.hand))
	copy(out, p.hand)
	return out
}

// Send queues a message without blocking. A full outbox means the peer is not keeping
// up; the player is closed and false is returned.
func (p *Player) Send(msg protocol.Outbound) bool {
	select {
	case <-p.closed:
		return false
	default:
	}
	select {
	case p.outbox <- msg:
		return true
	default:
		p.Close()
		return false
	}
}

// Outbox is drained by the write pump.
func (p *Player) Outbox() <-chan protocol.Outbound {
	return p.outbox
}

// Closed is closed once the seat's connection should be torn down.
func (p *Player) Closed() <-chan struct{} {
	return p.closed
}

// Close signals the write pump to flush and exit. Safe to call more than once.
func (p *Player) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
}
