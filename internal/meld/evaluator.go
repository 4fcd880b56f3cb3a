// Package meld detects disjoint three-card melds in a hand and scores the deadwood left over.
package meld

import (
	"sort"

	"github.com/jason-s-yu/rummy/internal/models"
)

const (
	// MaxWinningDeadwoodCards is the largest number of unmelded cards a winning hand may hold.
	MaxWinningDeadwoodCards = 1
	// MaxWinningDeadwoodScore is the largest deadwood score a winning hand may carry.
	MaxWinningDeadwoodScore = 13
)

// Meld is a set of three cards of equal rank, or three consecutive cards of one suit.
type Meld [3]models.Card

// Result is the outcome of evaluating a hand.
type Result struct {
	Melds    []Meld
	Deadwood []models.Card
	Score    int
	Winning  bool
}

// IsMeld reports whether the three cards form a set (same rank) or a run
// (same suit, values consecutive once sorted ascending).
func IsMeld(a, b, c models.Card) bool {
	if a.Rank == b.Rank && b.Rank == c.Rank {
		return true
	}
	if a.Suit != b.Suit || b.Suit != c.Suit {
		return false
	}
	vals := []int{a.Value(), b.Value(), c.Value()}
	sort.Ints(vals)
	return vals[1] == vals[0]+1 && vals[2] == vals[1]+1
}

// Evaluate picks melds greedily: combinations are visited in lexicographic index order and
// each meld whose cards are all still unused is committed. This is not guaranteed to find
// the partition with the fewest deadwood points; when several partitions exist the chosen
// one is whichever the enumeration reaches first.
func Evaluate(hand []models.Card) Result {
	used := make([]bool, len(hand))
	var res Result

	n := len(hand)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				if used[i] || used[j] || used[k] {
					continue
				}
				if IsMeld(hand[i], hand[j], hand[k]) {
					res.Melds = append(res.Melds, Meld{hand[i], hand[j], hand[k]})
					used[i], used[j], used[k] = true, true, true
				}
			}
		}
	}

	for idx, c := range hand {
		if used[idx] {
			continue
		}
		res.Deadwood = append(res.Deadwood, c)
		res.Score += c.Value()
	}
	// a hand without any meld never wins, however small it is
	res.Winning = len(res.Melds) > 0 &&
		len(res.Deadwood) <= MaxWinningDeadwoodCards &&
		res.Score <= MaxWinningDeadwoodScore
	return res
}
