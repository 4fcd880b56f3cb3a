// Package server seats incoming connections at tables and runs their sessions.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/rummy/internal/feed"
	"github.com/jason-s-yu/rummy/internal/game"
	"github.com/sirupsen/logrus"
)

// ErrHubClosed is returned when a connection arrives after Shutdown.
var ErrHubClosed = errors.New("hub is shut down")

// Options configures a Hub. Zero values fall back to sensible defaults.
type Options struct {
	Rules      game.HouseRules
	OutboxSize int
	RateLimit  time.Duration
	RateBurst  int
	Publisher  feed.Publisher
	Logger     *logrus.Logger
}

// Hub owns every live session. New connections fill the current table until it is
// full; the next connection opens a fresh one.
type Hub struct {
	opts  Options
	store *game.SessionStore

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	filling  *game.Session
	sessions sync.WaitGroup
	conns    sync.WaitGroup
}

// NewHub builds a hub with no tables.
func NewHub(opts Options) *Hub {
	if opts.Publisher == nil {
		opts.Publisher = feed.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = game.DefaultOutboxSize
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 100 * time.Millisecond
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		opts:   opts,
		store:  game.NewSessionStore(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Sessions returns a summary of every live session, oldest first.
func (h *Hub) Sessions() []game.Summary {
	sessions := h.store.List()
	out := make([]game.Summary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Summary())
	}
	return out
}

// Session returns the summary of one live session.
func (h *Hub) Session(id uuid.UUID) (game.Summary, bool) {
	s, ok := h.store.GetSession(id)
	if !ok {
		return game.Summary{}, false
	}
	return s.Summary(), true
}

// Serve accepts connections on ln until ctx is cancelled. Accepted connections
// outlive ctx; they end with their session or on Shutdown.
func (h *Hub) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	h.opts.Logger.Infof("Accepting TCP players on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				h.opts.Logger.Warnf("Failed to accept connection: %v", err)
				continue
			}
			return fmt.Errorf("accept on %s: %w", ln.Addr(), err)
		}
		h.conns.Add(1)
		go func() {
			defer h.conns.Done()
			if err := h.ServeConn(h.ctx, conn); err != nil {
				h.opts.Logger.Debugf("Connection %s closed: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}

// Shutdown aborts every live session with SHUTDOWN, lets accepted connections
// flush the notice, and waits for all session goroutines to finish.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	h.filling = nil
	h.mu.Unlock()

	for _, s := range h.store.List() {
		s.Abort(game.AbortShutdown)
	}
	h.conns.Wait()
	h.cancel()
	h.sessions.Wait()
}

// join seats a player at the filling table, opening a new table when needed.
func (h *Hub) join() (*game.Session, *game.Player, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, nil, ErrHubClosed
	}
	for attempt := 0; attempt < 2; attempt++ {
		if h.filling == nil || !h.filling.Accepting() {
			h.filling = h.newSessionLocked()
		}
		p, err := h.filling.Join()
		if err == nil {
			return h.filling, p, nil
		}
		if !errors.Is(err, game.ErrSessionFull) {
			return nil, nil, err
		}
		h.filling = nil
	}
	return nil, nil, game.ErrSessionFull
}

func (h *Hub) newSessionLocked() *game.Session {
	s := game.NewSession(h.opts.Rules,
		game.WithPublisher(h.opts.Publisher),
		game.WithLogger(h.opts.Logger),
		game.WithOutboxSize(h.opts.OutboxSize),
	)
	h.store.AddSession(s)
	h.opts.Logger.WithField("session", s.ID).Infof("Opened table for %d players (%d live)", s.Rules().Players, h.store.Len())

	h.sessions.Add(1)
	go func() {
		defer h.sessions.Done()
		if err := s.Run(h.ctx); err != nil && !errors.Is(err, context.Canceled) {
			h.opts.Logger.WithField("session", s.ID).Warnf("Session ended with error: %v", err)
		}
		h.store.DeleteSession(s.ID)

		h.mu.Lock()
		if h.filling == s {
			h.filling = nil
		}
		h.mu.Unlock()
		h.opts.Logger.WithField("session", s.ID).Infof("Closed table (%s)", s.Phase())
	}()
	return s
}
