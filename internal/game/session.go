// internal/game/session.go
package game

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/rummy/internal/deck"
	"github.com/jason-s-yu/rummy/internal/feed"
	"github.com/jason-s-yu/rummy/internal/meld"
	"github.com/jason-s-yu/rummy/internal/models"
	"github.com/jason-s-yu/rummy/internal/protocol"
	"github.com/sirupsen/logrus"
)

// HandSize is the number of cards dealt to every seat.
const HandSize = 10

// feedBufferSize bounds the events waiting to be published for one session.
const feedBufferSize = 256

// Phase is the lifecycle stage of a session.
type Phase string

const (
	PhaseWaitingForPlayers Phase = "waiting_for_players"
	PhaseWaitingForReady   Phase = "waiting_for_ready"
	PhaseDealing           Phase = "dealing"
	PhaseAwaitingDraw      Phase = "awaiting_draw"
	PhaseAwaitingDrop      Phase = "awaiting_drop"
	PhaseFinished          Phase = "finished"
	PhaseAborted           Phase = "aborted"
)

// Ended reports whether the phase is terminal.
func (p Phase) Ended() bool {
	return p == PhaseFinished || p == PhaseAborted
}

func (p Phase) inPlay() bool {
	return p == PhaseAwaitingDraw || p == PhaseAwaitingDrop
}

// Session is the authoritative state of one table. Every transition happens under mu.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	rules      HouseRules
	outboxSize int

	mu      sync.Mutex
	players []*Player
	stock   *deck.Pile
	discard *deck.Pile
	phase   Phase

	turn        int // seat whose turn it is
	turnID      int // increments each turn, used to ignore stale timers
	turnTimer   *time.Timer
	actionIndex int
	abortReason string
	winner      int

	readyCh   chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once

	rng        *rand.Rand
	publisher  feed.Publisher
	events     chan feed.Event // drained in order by publishLoop
	feedClosed bool
	published  chan struct{}
	logger     *logrus.Entry
}

// Option customizes a new Session.
type Option func(*Session)

// WithRand sets the shuffle source. Tests pass a seeded source for reproducible deals.
func WithRand(rng *rand.Rand) Option {
	return func(s *Session) { s.rng = rng }
}

// WithPublisher sets where public session events are sent.
func WithPublisher(p feed.Publisher) Option {
	return func(s *Session) { s.publisher = p }
}

// WithLogger sets the logger; session log lines carry the session id.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Session) { s.logger = l.WithField("session", s.ID) }
}

// WithOutboxSize sets the per-seat outbound buffer.
func WithOutboxSize(n int) Option {
	return func(s *Session) { s.outboxSize = n }
}

// NewSession builds an empty table waiting for players.
func NewSession(rules HouseRules, opts ...Option) *Session {
	s := &Session{
		ID:         uuid.New(),
		CreatedAt:  time.Now(),
		rules:      rules,
		outboxSize: DefaultOutboxSize,
		stock:      deck.NewPile(),
		discard:    deck.NewPile(),
		phase:      PhaseWaitingForPlayers,
		winner:     -1,
		readyCh:    make(chan struct{}),
		done:       make(chan struct{}),
		publisher:  feed.Nop{},
		events:     make(chan feed.Event, feedBufferSize),
		published:  make(chan struct{}),
	}
	s.logger = logrus.StandardLogger().WithField("session", s.ID)
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = deck.NewRand()
	}
	go s.publishLoop(s.publisher)
	return s
}

// Rules returns the table's house rules.
func (s *Session) Rules() HouseRules {
	return s.rules
}

// Done is closed when the session has finished or been aborted.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Accepting reports whether the table still has open seats.
func (s *Session) Accepting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == PhaseWaitingForPlayers
}

// Join seats a new player, sends it @ID, and returns it.
func (s *Session) Join() (*Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseWaitingForPlayers || len(s.players) >= s.rules.Players {
		return nil, fmt.Errorf("%w: table %s is %s", ErrSessionFull, s.ID, s.phase)
	}
	p := newPlayer(len(s.players), s.outboxSize)
	s.players = append(s.players, p)
	p.Send(protocol.AssignSeat{Seat: p.Seat})
	s.logAction(p.Seat, feed.EventSeatJoined, nil)
	s.logger.Infof("Seat %d joined (%d/%d).", p.Seat, len(s.players), s.rules.Players)

	if len(s.players) == s.rules.Players {
		s.phase = PhaseWaitingForReady
		s.checkReadyLocked()
	}
	return p, nil
}

// Handle applies one decoded inbound message from a seat.
func (s *Session) Handle(seat int, msg protocol.Inbound) error {
	switch m := msg.(type) {
	case protocol.Ready:
		return s.MarkReady(seat)
	case protocol.Draw:
		return s.Draw(seat, m.Source)
	case protocol.Drop:
		return s.Drop(seat, m.Card)
	case protocol.ClaimWin:
		return s.ClaimWin(seat)
	}
	return fmt.Errorf("%w: unsupported message %T", ErrIllegalAction, msg)
}

// MarkReady flags a seat as ready. Repeating it before the deal is harmless.
func (s *Session) MarkReady(seat int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.playerLocked(seat)
	if err != nil {
		return err
	}
	if s.phase != PhaseWaitingForPlayers && s.phase != PhaseWaitingForReady {
		return fmt.Errorf("%w: seat %d ready during %s", ErrIllegalAction, seat, s.phase)
	}
	if !p.ready {
		p.ready = true
		s.logAction(seat, feed.EventSeatReady, nil)
	}
	s.checkReadyLocked()
	return nil
}

// checkReadyLocked releases the ready barrier once every seat is present and ready.
func (s *Session) checkReadyLocked() {
	if s.phase != PhaseWaitingForReady {
		return
	}
	for _, p := range s.players {
		if !p.ready {
			return
		}
	}
	s.readyOnce.Do(func() { close(s.readyCh) })
}

// Run waits for every seat to be ready, deals, and then blocks until the session ends
// and its last event has been handed to the publisher. Cancelling ctx aborts the session.
func (s *Session) Run(ctx context.Context) error {
	defer func() { <-s.published }()

	select {
	case <-s.readyCh:
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.Abort(AbortShutdown)
		return ctx.Err()
	}

	s.deal()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.Abort(AbortShutdown)
		return ctx.Err()
	}
}

// deal shuffles a fresh stock, hands out HandSize cards round robin from seat 0,
// turns one card onto the discard pile and starts seat 0's turn.
func (s *Session) deal() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseWaitingForReady {
		return
	}
	s.phase = PhaseDealing
	s.stock = deck.NewShuffled(s.rng)
	s.discard = deck.NewPile()

	for round := 0; round < HandSize; round++ {
		for _, p := range s.players {
			card, err := s.stock.DrawTop()
			if err != nil {
				s.logger.Errorf("Stock ran out while dealing: %v", err)
				s.abortLocked(AbortShutdown)
				return
			}
			p.ReceiveHandCard(card)
			p.Send(protocol.Stash{Card: card})
		}
	}
	top, err := s.stock.DrawTop()
	if err != nil {
		s.logger.Errorf("Stock ran out while dealing: %v", err)
		s.abortLocked(AbortShutdown)
		return
	}
	s.discard.Push(top)
	s.broadcastLocked(protocol.DiscardTop{Card: &top})
	s.logAction(-1, feed.EventDealt, map[string]interface{}{
		"seats":       len(s.players),
		"stock":       s.stock.Len(),
		"discard_top": top.String(),
	})
	s.logger.Infof("Dealt %d cards to %d seats.", HandSize, len(s.players))

	s.startTurnLocked(0)
}

// Draw takes the top card of the stock or the discard pile into the active seat's hand.
func (s *Session) Draw(seat int, source protocol.Pile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.activePlayerLocked(seat, PhaseAwaitingDraw)
	if err != nil {
		return err
	}

	switch source {
	case protocol.PileStock:
		if s.stock.Len() == 0 {
			s.recycleLocked()
		}
		card, err := s.stock.DrawTop()
		if err != nil {
			return fmt.Errorf("seat %d draw from stock: %w", seat, err)
		}
		p.ReceiveHandCard(card)
		p.Send(protocol.Stash{Card: card})
		p.Send(protocol.StockTop{Card: &card})
		s.logAction(seat, feed.EventDraw, map[string]interface{}{"source": string(source)})
		if s.stock.Len() == 0 {
			s.recycleLocked()
		}
	case protocol.PileDiscard:
		card, err := s.discard.DrawTop()
		if err != nil {
			return fmt.Errorf("seat %d draw: %w", seat, ErrEmptyDiscard)
		}
		p.ReceiveHandCard(card)
		p.Send(protocol.Stash{Card: card})
		top := s.discardTopLocked()
		s.broadcastLocked(protocol.DiscardTop{Card: top})
		newTop := ""
		if top != nil {
			newTop = top.String()
		}
		s.logAction(seat, feed.EventDraw, map[string]interface{}{
			"source":      string(source),
			"card":        card.String(),
			"discard_top": newTop,
		})
	default:
		return fmt.Errorf("%w: unknown pile %q", ErrIllegalAction, source)
	}

	p.awaitingDraw = false
	p.awaitingDrop = true
	p.canClaimWin = false
	s.phase = PhaseAwaitingDrop
	p.Send(protocol.Dropping{})
	return nil
}

// Drop moves a card from the active seat's hand onto the discard pile and passes the turn.
func (s *Session) Drop(seat int, card models.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.activePlayerLocked(seat, PhaseAwaitingDrop)
	if err != nil {
		return err
	}
	if err := p.RemoveHandCard(card); err != nil {
		return fmt.Errorf("seat %d drop: %w", seat, err)
	}
	s.dropLocked(p, card)
	return nil
}

// dropLocked finishes a drop for a card already removed from p's hand.
func (s *Session) dropLocked(p *Player, card models.Card) {
	s.discard.Push(card)
	s.broadcastLocked(protocol.DiscardTop{Card: &card})
	s.logAction(p.Seat, feed.EventDrop, map[string]interface{}{"card": card.String()})

	res := meld.Evaluate(p.hand)
	p.canClaimWin = res.Winning
	if res.Winning {
		s.logger.Debugf("Seat %d holds a winning hand (deadwood %d).", p.Seat, res.Score)
		p.Send(protocol.WinAvailable{})
	}

	p.awaitingDrop = false
	p.Send(protocol.Idle{})
	s.advanceTurnLocked()
}

// ClaimWin ends the game in favour of a seat whose last drop left a winning hand.
func (s *Session) ClaimWin(seat int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.playerLocked(seat)
	if err != nil {
		return err
	}
	if !s.phase.inPlay() || !p.canClaimWin {
		return fmt.Errorf("%w: seat %d has no claimable win", ErrIllegalAction, seat)
	}

	s.phase = PhaseFinished
	s.winner = seat
	for _, other := range s.players {
		if other.Seat != seat {
			other.Send(protocol.GameOver{})
		}
	}
	p.Send(protocol.GameOver{Won: true})
	s.logAction(seat, feed.EventWin, nil)
	s.logger.Infof("Seat %d won.", seat)
	s.finishLocked()
	return nil
}

// HandleDisconnect marks a seat as gone and applies the table's disconnect policy.
func (s *Session) HandleDisconnect(seat int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.playerLocked(seat)
	if err != nil || !p.connected {
		return
	}
	p.connected = false
	p.Close()
	if s.phase.Ended() {
		return
	}
	s.logAction(seat, feed.EventDisconnect, nil)
	s.logger.Infof("Seat %d disconnected during %s.", seat, s.phase)

	if !s.phase.inPlay() || s.rules.DisconnectPolicy != DisconnectSkip {
		s.abortLocked(AbortDisconnect)
		return
	}
	if s.connectedCountLocked() < 2 {
		s.abortLocked(AbortDisconnect)
		return
	}
	if s.turn == seat {
		s.forfeitTurnLocked(p)
	}
}

// Abort abandons the session, sending @ABORT to every connected seat.
func (s *Session) Abort(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortLocked(reason)
}

func (s *Session) abortLocked(reason string) {
	if s.phase.Ended() {
		return
	}
	s.phase = PhaseAborted
	s.abortReason = reason
	s.broadcastLocked(protocol.Aborted{Reason: reason})
	s.logAction(-1, feed.EventAbort, map[string]interface{}{"reason": reason})
	s.logger.Infof("Session aborted: %s", reason)
	s.finishLocked()
}

// finishLocked stops the timer, releases Run, ends the feed and closes every seat.
func (s *Session) finishLocked() {
	if s.turnTimer != nil {
		s.turnTimer.Stop()
		s.turnTimer = nil
	}
	s.doneOnce.Do(func() {
		close(s.done)
		s.feedClosed = true
		close(s.events)
	})
	for _, p := range s.players {
		p.Close()
	}
}

// startTurnLocked hands the turn to seat and arms the turn timer.
func (s *Session) startTurnLocked(seat int) {
	s.turn = seat
	s.turnID++
	p := s.players[seat]
	p.awaitingDraw = true
	p.awaitingDrop = false
	s.phase = PhaseAwaitingDraw
	p.Send(protocol.Drawing{})
	s.logAction(seat, feed.EventTurn, map[string]interface{}{"turn_id": s.turnID})
	s.scheduleTurnTimerLocked()
}

// advanceTurnLocked moves to the next connected seat.
func (s *Session) advanceTurnLocked() {
	if s.phase.Ended() {
		return
	}
	if s.connectedCountLocked() < 2 {
		s.abortLocked(AbortDisconnect)
		return
	}
	next := s.turn
	for i := 0; i < len(s.players); i++ {
		next = (next + 1) % len(s.players)
		if s.players[next].connected {
			break
		}
	}
	s.startTurnLocked(next)
}

func (s *Session) scheduleTurnTimerLocked() {
	if s.turnTimer != nil {
		s.turnTimer.Stop()
		s.turnTimer = nil
	}
	if s.rules.TurnTimeout <= 0 {
		return
	}
	turnID := s.turnID
	s.turnTimer = time.AfterFunc(s.rules.TurnTimeout, func() {
		s.onTurnTimeout(turnID)
	})
}

// onTurnTimeout runs on the timer goroutine; a timer from an earlier turn is ignored.
func (s *Session) onTurnTimeout(turnID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.turnID != turnID || !s.phase.inPlay() {
		s.logger.Debugf("Stale turn timer %d ignored (current %d, %s).", turnID, s.turnID, s.phase)
		return
	}
	p := s.players[s.turn]
	s.logAction(p.Seat, feed.EventTurnTimeout, map[string]interface{}{"phase": string(s.phase)})
	s.logger.Infof("Seat %d timed out during %s.", p.Seat, s.phase)
	s.forfeitTurnLocked(p)
}

// forfeitTurnLocked ends p's turn: before drawing it passes, after drawing the most
// recently drawn card is dropped.
func (s *Session) forfeitTurnLocked(p *Player) {
	switch s.phase {
	case PhaseAwaitingDraw:
		p.awaitingDraw = false
		p.Send(protocol.Idle{})
		s.advanceTurnLocked()
	case PhaseAwaitingDrop:
		card := p.hand[len(p.hand)-1]
		p.hand = p.hand[:len(p.hand)-1]
		s.dropLocked(p, card)
	}
}

// recycleLocked refills an empty stock from the discard pile.
func (s *Session) recycleLocked() {
	moved, err := deck.Recycle(s.stock, s.discard, s.rng)
	if err != nil {
		s.logger.Warnf("Recycle skipped: %v", err)
		return
	}
	if moved == 0 {
		return
	}
	s.logAction(-1, feed.EventReshuffle, map[string]interface{}{"moved": moved})
	s.logger.Debugf("Reshuffled %d discards into the stock.", moved)
}

func (s *Session) playerLocked(seat int) (*Player, error) {
	if seat < 0 || seat >= len(s.players) {
		return nil, fmt.Errorf("%w: no seat %d", ErrIllegalAction, seat)
	}
	return s.players[seat], nil
}

// activePlayerLocked returns seat's player if it is that seat's turn and the session is in want.
func (s *Session) activePlayerLocked(seat int, want Phase) (*Player, error) {
	p, err := s.playerLocked(seat)
	if err != nil {
		return nil, err
	}
	if s.phase != want || s.turn != seat {
		return nil, fmt.Errorf("%w: seat %d acted during %s of seat %d", ErrIllegalAction, seat, s.phase, s.turn)
	}
	return p, nil
}

func (s *Session) discardTopLocked() *models.Card {
	top, ok := s.discard.Top()
	if !ok {
		return nil
	}
	return &top
}

func (s *Session) broadcastLocked(msg protocol.Outbound) {
	for _, p := range s.players {
		if p.connected {
			p.Send(msg)
		}
	}
}

func (s *Session) connectedCountLocked() int {
	n := 0
	for _, p := range s.players {
		if p.connected {
			n++
		}
	}
	return n
}

// logAction queues a public event for publishing without blocking the session.
// Events leave in the order they were queued; when the buffer is full the event is dropped.
func (s *Session) logAction(seat int, eventType string, payload map[string]interface{}) {
	if s.feedClosed {
		return
	}
	s.actionIndex++
	ev := feed.Event{
		SessionID: s.ID,
		Index:     s.actionIndex,
		Seat:      seat,
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warnf("Feed backlog full, dropped %s event %d", ev.Type, ev.Index)
	}
}

// publishLoop sends queued events one at a time until the feed is closed.
func (s *Session) publishLoop(pub feed.Publisher) {
	defer close(s.published)
	for ev := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := pub.Publish(ctx, ev); err != nil {
			s.logger.Warnf("Failed to publish %s event %d: %v", ev.Type, ev.Index, err)
		}
		cancel()
	}
}

// Summary is a public snapshot of a session, safe to expose to observers.
type Summary struct {
	ID          uuid.UUID `json:"id"`
	Phase       Phase     `json:"phase"`
	Seats       int       `json:"seats"`
	Capacity    int       `json:"capacity"`
	Connected   int       `json:"connected"`
	ActiveSeat  *int      `json:"active_seat,omitempty"`
	StockSize   int       `json:"stock_size"`
	DiscardTop  string    `json:"discard_top,omitempty"`
	Winner      *int      `json:"winner,omitempty"`
	AbortReason string    `json:"abort_reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary returns a snapshot without any private hand contents.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		ID:          s.ID,
		Phase:       s.phase,
		Seats:       len(s.players),
		Capacity:    s.rules.Players,
		Connected:   s.connectedCountLocked(),
		StockSize:   s.stock.Len(),
		AbortReason: s.abortReason,
		CreatedAt:   s.CreatedAt,
	}
	if s.phase.inPlay() {
		turn := s.turn
		sum.ActiveSeat = &turn
	}
	if top := s.discardTopLocked(); top != nil {
		sum.DiscardTop = top.String()
	}
	if s.winner >= 0 {
		winner := s.winner
		sum.Winner = &winner
	}
	return sum
}
