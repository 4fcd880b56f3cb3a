// internal/game/session_test.go
package game

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/rummy/internal/deck"
	"github.com/jason-s-yu/rummy/internal/feed"
	"github.com/jason-s-yu/rummy/internal/models"
	"github.com/jason-s-yu/rummy/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPublisher collects feed events instead of sending them to a broker.
type recordingPublisher struct {
	mu     sync.Mutex
	events []feed.Event
}

func (r *recordingPublisher) Publish(_ context.Context, ev feed.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

// drain returns everything currently queued for p. Session operations enqueue
// synchronously, so after a call returns its messages are all here.
func drain(p *Player) []protocol.Outbound {
	var out []protocol.Outbound
	for {
		select {
		case msg := <-p.Outbox():
			out = append(out, msg)
		default:
			return out
		}
	}
}

func drainAll(players []*Player) {
	for _, p := range players {
		drain(p)
	}
}

func countTag(msgs []protocol.Outbound, tag string) int {
	n := 0
	for _, m := range msgs {
		if m.Tag() == tag {
			n++
		}
	}
	return n
}

// setupTestSession seats n players, readies them and deals with a fixed seed.
func setupTestSession(t *testing.T, n int, rules *HouseRules, opts ...Option) (*Session, []*Player) {
	t.Helper()
	r := DefaultHouseRules()
	if rules != nil {
		r = *rules
	}
	r.Players = n
	opts = append([]Option{WithRand(rand.New(rand.NewSource(42))), WithOutboxSize(1024)}, opts...)
	s := NewSession(r, opts...)

	players := make([]*Player, n)
	for i := 0; i < n; i++ {
		p, err := s.Join()
		require.NoError(t, err)
		require.Equal(t, i, p.Seat)
		players[i] = p
	}
	for i := 0; i < n; i++ {
		require.NoError(t, s.MarkReady(i))
	}
	s.deal()
	require.Equal(t, PhaseAwaitingDraw, s.Phase())
	return s, players
}

// cardCount returns the total number of cards across stock, discard and every hand.
func cardCount(s *Session) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.stock.Len() + s.discard.Len()
	for _, p := range s.players {
		total += len(p.hand)
	}
	return total
}

// allCards returns every card held anywhere in the session.
func allCards(s *Session) []models.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append(s.stock.Cards(), s.discard.Cards()...)
	for _, p := range s.players {
		out = append(out, p.hand...)
	}
	return out
}

func activeSeats(s *Session) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var seats []int
	for _, p := range s.players {
		if p.awaitingDraw || p.awaitingDrop {
			seats = append(seats, p.Seat)
		}
	}
	return seats
}

func TestJoinAssignsSequentialSeats(t *testing.T) {
	s := NewSession(HouseRules{Players: 3, DisconnectPolicy: DisconnectAbort})

	for i := 0; i < 3; i++ {
		p, err := s.Join()
		require.NoError(t, err)
		msgs := drain(p)
		require.Len(t, msgs, 1)
		assert.Equal(t, protocol.AssignSeat{Seat: i}, msgs[0])
	}
	assert.Equal(t, PhaseWaitingForReady, s.Phase())
	assert.False(t, s.Accepting())

	_, err := s.Join()
	assert.ErrorIs(t, err, ErrSessionFull)
}

func TestTwoPlayerDeal(t *testing.T) {
	s, players := setupTestSession(t, 2, nil)

	first := drain(players[0])
	second := drain(players[1])

	assert.Equal(t, 10, countTag(first, protocol.TagStash))
	assert.Equal(t, 10, countTag(second, protocol.TagStash))
	assert.Equal(t, 1, countTag(first, protocol.TagDiscard))
	assert.Equal(t, 1, countTag(second, protocol.TagDiscard))
	assert.Equal(t, 1, countTag(first, protocol.TagDrawing))
	assert.Zero(t, countTag(second, protocol.TagDrawing))

	assert.Equal(t, 52, cardCount(s))
	assert.Equal(t, []int{0}, activeSeats(s))
	assert.Equal(t, 52-2*HandSize-1, s.Summary().StockSize)
}

func TestDealIsDistinctAndReproducible(t *testing.T) {
	s1, _ := setupTestSession(t, 4, nil)
	s2, _ := setupTestSession(t, 4, nil)

	cards := allCards(s1)
	assert.ElementsMatch(t, models.FullDeck(), cards)
	assert.Equal(t, s1.players[3].Hand(), s2.players[3].Hand())
}

func TestRunWaitsForReadyBarrier(t *testing.T) {
	s := NewSession(HouseRules{Players: 2, DisconnectPolicy: DisconnectAbort})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	_, err := s.Join()
	require.NoError(t, err)
	require.NoError(t, s.MarkReady(0))
	require.NoError(t, s.MarkReady(0)) // repeated ready is harmless
	_, err = s.Join()
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, PhaseWaitingForReady, s.Phase(), "must not deal before every seat is ready")

	require.NoError(t, s.MarkReady(1))
	require.Eventually(t, func() bool { return s.Phase() == PhaseAwaitingDraw }, time.Second, 5*time.Millisecond)

	err = s.MarkReady(1)
	assert.ErrorIs(t, err, ErrIllegalAction)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, PhaseAborted, s.Phase())
}

func TestOutOfTurnDrawIsRejected(t *testing.T) {
	s, players := setupTestSession(t, 2, nil)
	drainAll(players)

	before := allCards(s)
	handBefore := players[1].Hand()

	err := s.Draw(1, protocol.PileStock)
	assert.ErrorIs(t, err, ErrIllegalAction)
	assert.Equal(t, ReasonIllegalAction, RejectReason(err))

	err = s.Drop(0, players[0].Hand()[0])
	assert.ErrorIs(t, err, ErrIllegalAction, "cannot drop before drawing")

	assert.Equal(t, before, allCards(s))
	assert.Equal(t, handBefore, players[1].Hand())
	assert.Equal(t, PhaseAwaitingDraw, s.Phase())
	assert.Empty(t, drain(players[0]))
	assert.Empty(t, drain(players[1]))
}

func TestDrawDropFlow(t *testing.T) {
	s, players := setupTestSession(t, 2, nil)
	drainAll(players)

	require.NoError(t, s.Draw(0, protocol.PileStock))
	msgs := drain(players[0])
	require.Len(t, msgs, 3)
	stash, ok := msgs[0].(protocol.Stash)
	require.True(t, ok)
	assert.Equal(t, protocol.StockTop{Card: &stash.Card}, msgs[1])
	assert.Equal(t, protocol.Dropping{}, msgs[2])
	assert.Empty(t, drain(players[1]), "stock draws are private")
	assert.Equal(t, PhaseAwaitingDrop, s.Phase())
	assert.Len(t, players[0].Hand(), 11)

	err := s.Draw(0, protocol.PileDiscard)
	assert.ErrorIs(t, err, ErrIllegalAction, "cannot draw twice")

	notHeld := players[1].Hand()[0]
	err = s.Drop(0, notHeld)
	assert.ErrorIs(t, err, ErrCardNotInHand)
	assert.Equal(t, ReasonCardNotInHand, RejectReason(err))

	require.NoError(t, s.Drop(0, stash.Card))
	first := drain(players[0])
	second := drain(players[1])
	assert.Contains(t, first, protocol.DiscardTop{Card: &stash.Card})
	assert.Equal(t, protocol.Idle{}, first[len(first)-1])
	assert.Equal(t, []protocol.Outbound{protocol.DiscardTop{Card: &stash.Card}, protocol.Drawing{}}, second)
	assert.Equal(t, []int{1}, activeSeats(s))
	assert.Equal(t, 52, cardCount(s))

	// seat 1 picks the dropped card straight back up
	require.NoError(t, s.Draw(1, protocol.PileDiscard))
	assert.Contains(t, players[1].Hand(), stash.Card)
	s.mu.Lock()
	newTop := s.discardTopLocked()
	s.mu.Unlock()
	assert.Equal(t, []protocol.Outbound{protocol.DiscardTop{Card: newTop}}, drain(players[0]))
}

func TestDrawFromEmptyDiscard(t *testing.T) {
	s, players := setupTestSession(t, 2, nil)
	s.mu.Lock()
	top, _ := s.discard.DrawTop()
	s.stock.Push(top)
	s.mu.Unlock()
	drainAll(players)

	err := s.Draw(0, protocol.PileDiscard)
	assert.ErrorIs(t, err, ErrEmptyDiscard)
	assert.Equal(t, ReasonEmptyDiscard, RejectReason(err))
	assert.Equal(t, PhaseAwaitingDraw, s.Phase())
	assert.Equal(t, 52, cardCount(s))
}

func TestDiscardDrawBroadcastsNoneWhenEmptied(t *testing.T) {
	s, players := setupTestSession(t, 2, nil)
	drainAll(players)

	require.NoError(t, s.Draw(0, protocol.PileDiscard))
	second := drain(players[1])
	assert.Equal(t, []protocol.Outbound{protocol.DiscardTop{}}, second)
	assert.Equal(t, "@DISCARD NONE", protocol.Encode(second[0]))
}

func TestStockDrawRecyclesDiscards(t *testing.T) {
	s, players := setupTestSession(t, 2, nil)
	drainAll(players)

	// leave exactly one card in the stock and five on the discard pile
	s.mu.Lock()
	cards := append(s.stock.Cards(), s.discard.Cards()...)
	s.stock = deck.NewPile(cards[0])
	s.discard = deck.NewPile(cards[1:6]...)
	discardTop, _ := s.discard.Top()
	leftover := cards[6:]
	s.mu.Unlock()

	require.NoError(t, s.Draw(0, protocol.PileStock))

	s.mu.Lock()
	assert.Equal(t, 4, s.stock.Len())
	assert.Equal(t, []models.Card{discardTop}, s.discard.Cards())
	s.mu.Unlock()
	assert.Len(t, players[0].Hand(), 11)

	// everything except the set-aside leftovers is still accounted for
	assert.Equal(t, 52-len(leftover), cardCount(s))
}

func TestStockDrawWithNothingToRecycle(t *testing.T) {
	s, players := setupTestSession(t, 2, nil)
	drainAll(players)

	s.mu.Lock()
	s.stock = deck.NewPile()
	s.mu.Unlock()

	err := s.Draw(0, protocol.PileStock)
	assert.ErrorIs(t, err, ErrEmptyDeck)
	assert.Equal(t, ReasonEmptyDeck, RejectReason(err))
	assert.Equal(t, PhaseAwaitingDraw, s.Phase())
	assert.Len(t, players[0].Hand(), 10)
}

func TestCardCountInvariantOverRandomPlay(t *testing.T) {
	s, players := setupTestSession(t, 4, nil)
	rng := rand.New(rand.NewSource(7))

	for step := 0; step < 400; step++ {
		drainAll(players)
		seats := activeSeats(s)
		require.Len(t, seats, 1, "exactly one seat may act at step %d", step)
		seat := seats[0]

		source := protocol.PileStock
		if rng.Intn(2) == 0 {
			source = protocol.PileDiscard
		}
		if err := s.Draw(seat, source); err != nil {
			require.NoError(t, s.Draw(seat, protocol.PileStock))
		}
		require.Equal(t, 52, cardCount(s))

		hand := players[seat].Hand()
		require.Len(t, hand, HandSize+1)
		require.NoError(t, s.Drop(seat, hand[rng.Intn(len(hand))]))
		require.Equal(t, 52, cardCount(s))
		require.ElementsMatch(t, models.FullDeck(), allCards(s))
	}
}

func TestWinClaimFlow(t *testing.T) {
	pub := &recordingPublisher{}
	s, players := setupTestSession(t, 2, nil, WithPublisher(pub))
	drainAll(players)

	s.mu.Lock()
	players[0].hand = models.MustParseCards("5H", "5C", "5S", "9D", "TD", "JD", "2C", "3C", "4C", "QS")
	s.stock.Push(models.Card{Rank: "K", Suit: "H"})
	s.mu.Unlock()

	err := s.ClaimWin(0)
	assert.ErrorIs(t, err, ErrIllegalAction, "no claim before a winning drop")

	require.NoError(t, s.Draw(0, protocol.PileStock))
	require.NoError(t, s.Drop(0, models.Card{Rank: "Q", Suit: "S"}))

	first := drain(players[0])
	assert.Contains(t, first, protocol.WinAvailable{})
	assert.Zero(t, countTag(drain(players[1]), protocol.TagClaim), "only the dropper learns about the claim")

	assert.ErrorIs(t, s.ClaimWin(1), ErrIllegalAction)
	require.NoError(t, s.ClaimWin(0))

	assert.Equal(t, []protocol.Outbound{protocol.GameOver{Won: true}}, drain(players[0]))
	assert.Equal(t, []protocol.Outbound{protocol.GameOver{}}, drain(players[1]))
	assert.Equal(t, PhaseFinished, s.Phase())
	select {
	case <-s.Done():
	default:
		t.Fatal("session should be done after a win")
	}
	for _, p := range players {
		select {
		case <-p.Closed():
		default:
			t.Fatalf("seat %d should be closed", p.Seat)
		}
	}
	winner := s.Summary().Winner
	require.NotNil(t, winner)
	assert.Equal(t, 0, *winner)

	<-s.published
	types := pub.types()
	assert.Equal(t, feed.EventWin, types[len(types)-1])
}

func TestFeedReplaysIntoWatcher(t *testing.T) {
	pub := &recordingPublisher{}
	s, players := setupTestSession(t, 2, nil, WithPublisher(pub))

	for turn := 0; turn < 40; turn++ {
		seat := turn % 2
		source := protocol.PileStock
		if turn%3 == 1 {
			source = protocol.PileDiscard
		}
		require.NoError(t, s.Draw(seat, source))
		hand := players[seat].Hand()
		require.NoError(t, s.Drop(seat, hand[turn%len(hand)]))
		drainAll(players)
	}
	// end on a discard draw so the final top comes from a draw event
	require.NoError(t, s.Draw(0, protocol.PileDiscard))

	s.mu.Lock()
	want := ""
	if top := s.discardTopLocked(); top != nil {
		want = top.String()
	}
	s.mu.Unlock()

	s.Abort(AbortShutdown)
	select {
	case <-s.published:
	case <-time.After(2 * time.Second):
		t.Fatal("feed was not flushed")
	}

	pub.mu.Lock()
	events := append([]feed.Event(nil), pub.events...)
	pub.mu.Unlock()

	w := feed.NewWatcher(time.Minute)
	for i, ev := range events {
		require.Equal(t, i+1, ev.Index, "events must arrive in order")
		w.Apply(ev)
	}
	tables := w.Tables()
	require.Len(t, tables, 1)
	assert.Equal(t, want, tables[0].DiscardTop)
	assert.Equal(t, len(events), tables[0].LastIndex)
	assert.True(t, tables[0].Ended)
}

func TestDrawClearsWinClaim(t *testing.T) {
	s, players := setupTestSession(t, 2, nil)
	drainAll(players)

	s.mu.Lock()
	players[0].canClaimWin = true
	s.mu.Unlock()

	require.NoError(t, s.Draw(0, protocol.PileStock))
	assert.ErrorIs(t, s.ClaimWin(0), ErrIllegalAction)
}

func TestTimeoutBeforeDrawPasses(t *testing.T) {
	s, players := setupTestSession(t, 2, nil)
	drainAll(players)

	s.onTurnTimeout(s.turnID)

	assert.Equal(t, []protocol.Outbound{protocol.Idle{}}, drain(players[0]))
	assert.Equal(t, []protocol.Outbound{protocol.Drawing{}}, drain(players[1]))
	assert.Equal(t, []int{1}, activeSeats(s))
	assert.Len(t, players[0].Hand(), 10)
}

func TestTimeoutAfterDrawDropsDrawnCard(t *testing.T) {
	s, players := setupTestSession(t, 2, nil)
	require.NoError(t, s.Draw(0, protocol.PileStock))
	drawn := players[0].Hand()[HandSize]
	drainAll(players)

	s.onTurnTimeout(s.turnID)

	assert.Equal(t, drawn.String(), s.Summary().DiscardTop)
	assert.NotContains(t, players[0].Hand(), drawn)
	assert.Len(t, players[0].Hand(), HandSize)
	assert.Equal(t, []int{1}, activeSeats(s))
	assert.Equal(t, 52, cardCount(s))
}

func TestStaleTimerIsIgnored(t *testing.T) {
	s, players := setupTestSession(t, 2, nil)
	stale := s.turnID
	require.NoError(t, s.Draw(0, protocol.PileStock))
	require.NoError(t, s.Drop(0, players[0].Hand()[0]))
	drainAll(players)

	s.onTurnTimeout(stale)

	assert.Equal(t, []int{1}, activeSeats(s))
	assert.Empty(t, drain(players[1]))
}

func TestTurnTimerFires(t *testing.T) {
	rules := DefaultHouseRules()
	rules.TurnTimeout = 20 * time.Millisecond
	s, players := setupTestSession(t, 2, &rules)
	defer s.Abort(AbortShutdown)

	require.Eventually(t, func() bool {
		return countTag(drain(players[0]), protocol.TagIdle) > 0
	}, time.Second, 5*time.Millisecond)
}

func TestDisconnectAbortsByDefault(t *testing.T) {
	s, players := setupTestSession(t, 3, nil)
	drainAll(players)

	s.HandleDisconnect(1)

	assert.Equal(t, PhaseAborted, s.Phase())
	assert.Equal(t, []protocol.Outbound{protocol.Aborted{Reason: AbortDisconnect}}, drain(players[0]))
	assert.Equal(t, []protocol.Outbound{protocol.Aborted{Reason: AbortDisconnect}}, drain(players[2]))
	assert.Empty(t, drain(players[1]))
	<-s.Done()
}

func TestDisconnectBeforeDealAborts(t *testing.T) {
	rules := DefaultHouseRules()
	rules.DisconnectPolicy = DisconnectSkip
	rules.Players = 3
	s := NewSession(rules)
	first, err := s.Join()
	require.NoError(t, err)
	_, err = s.Join()
	require.NoError(t, err)

	s.HandleDisconnect(1)
	assert.Equal(t, PhaseAborted, s.Phase())
	assert.Contains(t, drain(first), protocol.Aborted{Reason: AbortDisconnect})

	_, err = s.Join()
	assert.ErrorIs(t, err, ErrSessionFull)
}

func TestDisconnectSkipPolicy(t *testing.T) {
	rules := DefaultHouseRules()
	rules.DisconnectPolicy = DisconnectSkip
	s, players := setupTestSession(t, 3, &rules)
	drainAll(players)

	// seat 0 drops on its own turn: the turn is forfeited
	s.HandleDisconnect(0)
	assert.Equal(t, []int{1}, activeSeats(s))
	assert.Equal(t, PhaseAwaitingDraw, s.Phase())

	for _, seat := range []int{1, 2} {
		require.NoError(t, s.Draw(seat, protocol.PileStock))
		require.NoError(t, s.Drop(seat, players[seat].Hand()[0]))
	}
	assert.Equal(t, []int{1}, activeSeats(s), "the disconnected seat is skipped")
	assert.Equal(t, 52, cardCount(s))

	s.HandleDisconnect(2)
	assert.Equal(t, PhaseAborted, s.Phase())
	assert.Contains(t, drain(players[1]), protocol.Aborted{Reason: AbortDisconnect})
}

func TestHandleDispatchesInbound(t *testing.T) {
	s, players := setupTestSession(t, 2, nil)
	drainAll(players)

	require.NoError(t, s.Handle(0, protocol.Draw{Source: protocol.PileStock}))
	drawn := players[0].Hand()[HandSize]
	require.NoError(t, s.Handle(0, protocol.Drop{Card: drawn}))
	assert.ErrorIs(t, s.Handle(0, protocol.ClaimWin{}), ErrIllegalAction)
	assert.ErrorIs(t, s.Handle(0, protocol.Ready{}), ErrIllegalAction)
}

func TestSlowSeatIsClosed(t *testing.T) {
	s := NewSession(HouseRules{Players: 2, DisconnectPolicy: DisconnectAbort}, WithOutboxSize(1))
	p, err := s.Join()
	require.NoError(t, err)

	assert.False(t, p.Send(protocol.Idle{}), "outbox already holds @ID")
	select {
	case <-p.Closed():
	default:
		t.Fatal("overflowing seat should be closed")
	}
}
