// internal/protocol/message.go
package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jason-s-yu/rummy/internal/models"
)

// Command tags. The first token of every payload is one of these.
const (
	TagID       = "@ID"
	TagReady    = "@READY"
	TagStash    = "@STASH"
	TagStock    = "@STOCK"
	TagDiscard  = "@DISCARD"
	TagDrawing  = "@DRAWING"
	TagDropping = "@DROPPING"
	TagIdle     = "@IDLE"
	TagDraw     = "@DRAW"
	TagDrop     = "@DROP"
	TagEnd      = "@END"
	TagClaim    = "@CLAIM"
	TagReject   = "@REJECT"
	TagAbort    = "@ABORT"
)

// noCard is the token sent in place of a card when a pile has nothing to show.
const noCard = "NONE"

// winToken marks the claimant's copy of @END.
const winToken = "WIN"

// Pile names a draw source.
type Pile string

const (
	PileStock   Pile = "STOCK"
	PileDiscard Pile = "DISCARD"
)

// Message is any frame payload that can be encoded.
type Message interface {
	Tag() string
	args() []string
}

// Inbound is a client->server message: Ready, Draw, Drop or ClaimWin.
type Inbound interface {
	Message
	inbound()
}

// Outbound is a server->client message.
type Outbound interface {
	Message
	outbound()
}

// Encode renders a message as its space-separated text payload.
func Encode(m Message) string {
	args := m.args()
	if len(args) == 0 {
		return m.Tag()
	}
	return m.Tag() + " " + strings.Join(args, " ")
}

// --- client -> server ---

type Ready struct{}

type Draw struct {
	Source Pile
}

type Drop struct {
	Card models.Card
}

// ClaimWin is the client's @END: the sender claims the win.
type ClaimWin struct{}

func (Ready) Tag() string { return TagReady }
func (Draw) Tag() string { return TagDraw }
func (Drop) Tag() string { return TagDrop }
func (ClaimWin) Tag() string { return TagEnd }

func (Ready) args() []string { return nil }
func (m Draw) args() []string { return []string{string(m.Source)} }
func (m Drop) args() []string { return []string{m.Card.String()} }
func (ClaimWin) args() []string { return nil }

func (Ready) inbound() {}
func (Draw) inbound() {}
func (Drop) inbound() {}
func (ClaimWin) inbound() {}

// --- server -> client ---

// AssignSeat tells a new connection its seat index.
type AssignSeat struct {
	Seat int
}

// Stash adds a card to the receiver's hand.
type Stash struct {
	Card models.Card
}

// StockTop updates the receiver's private view of the stock. A nil Card shows nothing.
type StockTop struct {
	Card *models.Card
}

// DiscardTop announces the visible top of the discard pile. A nil Card means the pile is empty.
type DiscardTop struct {
	Card *models.Card
}

type Drawing struct{}

type Dropping struct{}

type Idle struct{}

// GameOver is the server's @END: a loss notice, or the win confirmation when Won is set.
type GameOver struct {
	Won bool
}

// WinAvailable tells the receiver that its hand qualifies and a win may be claimed.
type WinAvailable struct{}

// Reject reports a refused command. Reason is one of the game's reject codes.
type Reject struct {
	Reason string
}

// Aborted tells the receiver the session was abandoned.
type Aborted struct {
	Reason string
}

func (AssignSeat) Tag() string { return TagID }
func (Stash) Tag() string { return TagStash }
func (StockTop) Tag() string { return TagStock }
func (DiscardTop) Tag() string { return TagDiscard }
func (Drawing) Tag() string { return TagDrawing }
func (Dropping) Tag() string { return TagDropping }
func (Idle) Tag() string { return TagIdle }
func (GameOver) Tag() string { return TagEnd }
func (WinAvailable) Tag() string { return TagClaim }
func (Reject) Tag() string { return TagReject }
func (Aborted) Tag() string { return TagAbort }

func (m AssignSeat) args() []string { return []string{strconv.Itoa(m.Seat)} }
func (m Stash) args() []string { return []string{m.Card.String()} }
func (m StockTop) args() []string { return []string{cardOrNone(m.Card)} }
func (m DiscardTop) args() []string { return []string{cardOrNone(m.Card)} }
func (Drawing) args() []string { return nil }
func (Dropping) args() []string { return nil }
func (Idle) args() []string { return nil }
func (m GameOver) args() []string {
	if m.Won {
		return []string{winToken}
	}
	return nil
}
func (WinAvailable) args() []string { return nil }
func (m Reject) args() []string { return []string{m.Reason} }
func (m Aborted) args() []string {
	if m.Reason == "" {
		return nil
	}
	return []string{m.Reason}
}

func (AssignSeat) outbound() {}
func (Stash) outbound() {}
func (StockTop) outbound() {}
func (DiscardTop) outbound() {}
func (Drawing) outbound() {}
func (Dropping) outbound() {}
func (Idle) outbound() {}
func (GameOver) outbound() {}
func (WinAvailable) outbound() {}
func (Reject) outbound() {}
func (Aborted) outbound() {}

func cardOrNone(c *models.Card) string {
	if c == nil {
		return noCard
	}
	return c.String()
}

// DecodeInbound parses a client payload. Any unknown tag or bad argument is ErrMalformedMessage.
func DecodeInbound(payload string) (Inbound, error) {
	// some clients terminate @READY with a semicolon
	tag, args := split(strings.TrimSuffix(payload, ";"))

	switch tag {
	case TagReady:
		if err := wantArgs(tag, args, 0); err != nil {
			return nil, err
		}
		return Ready{}, nil
	case TagEnd:
		if err := wantArgs(tag, args, 0); err != nil {
			return nil, err
		}
		return ClaimWin{}, nil
	case TagDraw:
		if err := wantArgs(tag, args, 1); err != nil {
			return nil, err
		}
		switch Pile(args[0]) {
		case PileStock, PileDiscard:
			return Draw{Source: Pile(args[0])}, nil
		}
		return nil, fmt.Errorf("%w: unknown pile %q", ErrMalformedMessage, args[0])
	case TagDrop:
		if err := wantArgs(tag, args, 1); err != nil {
			return nil, err
		}
		card, err := models.ParseCard(args[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return Drop{Card: card}, nil
	}
	return nil, fmt.Errorf("%w: unknown command %q", ErrMalformedMessage, tag)
}

// DecodeOutbound parses a server payload; used by clients and tests.
func DecodeOutbound(payload string) (Outbound, error) {
	tag, args := split(payload)

	switch tag {
	case TagID:
		if err := wantArgs(tag, args, 1); err != nil {
			return nil, err
		}
		seat, err := strconv.Atoi(args[0])
		if err != nil || seat < 0 {
			return nil, fmt.Errorf("%w: bad seat %q", ErrMalformedMessage, args[0])
		}
		return AssignSeat{Seat: seat}, nil
	case TagStash:
		if err := wantArgs(tag, args, 1); err != nil {
			return nil, err
		}
		card, err := models.ParseCard(args[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return Stash{Card: card}, nil
	case TagStock, TagDiscard:
		if err := wantArgs(tag, args, 1); err != nil {
			return nil, err
		}
		card, err := parseCardOrNone(args[0])
		if err != nil {
			return nil, err
		}
		if tag == TagStock {
			return StockTop{Card: card}, nil
		}
		return DiscardTop{Card: card}, nil
	case TagDrawing, TagDropping, TagIdle, TagClaim:
		if err := wantArgs(tag, args, 0); err != nil {
			return nil, err
		}
		switch tag {
		case TagDrawing:
			return Drawing{}, nil
		case TagDropping:
			return Dropping{}, nil
		case TagIdle:
			return Idle{}, nil
		}
		return WinAvailable{}, nil
	case TagEnd:
		if len(args) == 0 {
			return GameOver{}, nil
		}
		if len(args) == 1 && args[0] == winToken {
			return GameOver{Won: true}, nil
		}
		return nil, fmt.Errorf("%w: bad %s arguments %v", ErrMalformedMessage, tag, args)
	case TagReject:
		if err := wantArgs(tag, args, 1); err != nil {
			return nil, err
		}
		return Reject{Reason: args[0]}, nil
	case TagAbort:
		if len(args) > 1 {
			return nil, fmt.Errorf("%w: bad %s arguments %v", ErrMalformedMessage, tag, args)
		}
		a := Aborted{}
		if len(args) == 1 {
			a.Reason = args[0]
		}
		return a, nil
	}
	return nil, fmt.Errorf("%w: unknown command %q", ErrMalformedMessage, tag)
}

func split(payload string) (string, []string) {
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

func wantArgs(tag string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: %s takes %d argument(s), got %d", ErrMalformedMessage, tag, n, len(args))
	}
	return nil
}

func parseCardOrNone(token string) (*models.Card, error) {
	if token == noCard {
		return nil, nil
	}
	card, err := models.ParseCard(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return &card, nil
}
