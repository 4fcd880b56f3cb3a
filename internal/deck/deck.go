// internal/deck/deck.go
package deck

import (
	"errors"
	"math/rand"
	"time"

	"github.com/jason-s-yu/rummy/internal/models"
)

var (
	// ErrEmptyDeck is returned when drawing from a pile with no cards.
	ErrEmptyDeck = errors.New("deck is empty")
	// ErrStockNotEmpty is returned when a recycle would overwrite cards still in the stock.
	ErrStockNotEmpty = errors.New("stock is not empty")
)

// Pile is an ordered stack of cards. The top of the pile is the last element.
// A Pile is not safe for concurrent use; the owning session serializes access.
type Pile struct {
	cards []models.Card
}

// NewRand returns a time-seeded random source for shuffling.
func NewRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// NewPile builds a pile from the given cards, bottom first.
func NewPile(cards ...models.Card) *Pile {
	p := &Pile{cards: make([]models.Card, len(cards))}
	copy(p.cards, cards)
	return p
}

// NewShuffled returns a stock holding all 52 cards in a uniformly random order.
func NewShuffled(rng *rand.Rand) *Pile {
	p := NewPile(models.FullDeck()...)
	p.Shuffle(rng)
	return p
}

// Shuffle permutes the pile in place (Fisher-Yates).
func (p *Pile) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(p.cards), func(i, j int) {
		p.cards[i], p.cards[j] = p.cards[j], p.cards[i]
	})
}

// Len returns the number of cards in the pile.
func (p *Pile) Len() int {
	return len(p.cards)
}

// Top returns the top card without removing it.
func (p *Pile) Top() (models.Card, bool) {
	if len(p.cards) == 0 {
		return models.Card{}, false
	}
	return p.cards[len(p.cards)-1], true
}

// DrawTop removes and returns the top card.
func (p *Pile) DrawTop() (models.Card, error) {
	if len(p.cards) == 0 {
		return models.Card{}, ErrEmptyDeck
	}
	idx := len(p.cards) - 1
	card := p.cards[idx]
	p.cards = p.cards[:idx]
	return card, nil
}

// Push places a card on top of the pile.
func (p *Pile) Push(c models.Card) {
	p.cards = append(p.cards, c)
}

// Cards returns a copy of the pile, bottom first.
func (p *Pile) Cards() []models.Card {
	out := make([]models.Card, len(p.cards))
	copy(out, p.cards)
	return out
}

// Recycle refills an empty stock with every discard card except the top one, shuffled,
// and leaves only that top card in the discard pile. It returns the number of cards moved.
// An empty discard pile moves nothing.
func Recycle(stock, discard *Pile, rng *rand.Rand) (int, error) {
	if stock.Len() != 0 {
		return 0, ErrStockNotEmpty
	}
	if discard.Len() <= 1 {
		return 0, nil
	}
	top := discard.cards[len(discard.cards)-1]
	rest := discard.cards[:len(discard.cards)-1]

	stock.cards = make([]models.Card, len(rest))
	copy(stock.cards, rest)
	stock.Shuffle(rng)

	discard.cards = []models.Card{top}
	return stock.Len(), nil
}
