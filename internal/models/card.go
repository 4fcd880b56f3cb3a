// internal/models/card.go
package models

import (
	"errors"
	"fmt"
)

// Rank is the single-character rank token of a card ("A", "2".."9", "T", "J", "Q", "K").
type Rank string

// Suit is the single-character suit token of a card ("H", "C", "S", "D").
type Suit string

// Ranks lists every rank in ascending value order.
var Ranks = []Rank{"A", "2", "3", "4", "5", "6", "7", "8", "9", "T", "J", "Q", "K"}

// Suits lists every suit in the order the deck is built.
var Suits = []Suit{"H", "C", "S", "D"}

var rankValues = map[Rank]int{
	"A": 1, "2": 2, "3": 3, "4": 4, "5": 5, "6": 6, "7": 7, "8": 8,
	"9": 9, "T": 10, "J": 11, "Q": 12, "K": 13,
}

// ErrInvalidCard is returned when a card token cannot be parsed.
var ErrInvalidCard = errors.New("invalid card")

// Card is an immutable rank/suit pair. Cards are comparable and can be used as map keys.
type Card struct {
	Rank Rank `json:"rank"`
	Suit Suit `json:"suit"`
}

// Value returns the scoring value of the card's rank: A=1, number ranks at face value, T=10, J=11, Q=12, K=13.
func (c Card) Value() int {
	return rankValues[c.Rank]
}

// String renders the two-character wire token, e.g. "AH" or "TD".
func (c Card) String() string {
	return string(c.Rank) + string(c.Suit)
}

// Valid reports whether the card has a known rank and suit.
func (c Card) Valid() bool {
	if _, ok := rankValues[c.Rank]; !ok {
		return false
	}
	for _, s := range Suits {
		if s == c.Suit {
			return true
		}
	}
	return false
}

// ParseCard parses a two-character token such as "KS".
func ParseCard(token string) (Card, error) {
	if len(token) != 2 {
		return Card{}, fmt.Errorf("%w: %q", ErrInvalidCard, token)
	}
	c := Card{Rank: Rank(token[:1]), Suit: Suit(token[1:])}
	if !c.Valid() {
		return Card{}, fmt.Errorf("%w: %q", ErrInvalidCard, token)
	}
	return c, nil
}

// MustParseCards parses a list of tokens and panics on the first invalid one.
// Intended for tests and fixed tables.
func MustParseCards(tokens ...string) []Card {
	cards := make([]Card, 0, len(tokens))
	for _, t := range tokens {
		c, err := ParseCard(t)
		if err != nil {
			panic(err)
		}
		cards = append(cards, c)
	}
	return cards
}

// FullDeck returns the 52 distinct cards, suit by suit, in ascending rank order.
func FullDeck() []Card {
	deck := make([]Card, 0, len(Suits)*len(Ranks))
	for _, suit := range Suits {
		for _, rank := range Ranks {
			deck = append(deck, Card{Rank: rank, Suit: suit})
		}
	}
	return deck
}
