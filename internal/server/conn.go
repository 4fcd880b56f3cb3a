// internal/server/conn.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jason-s-yu/rummy/internal/game"
	"github.com/jason-s-yu/rummy/internal/protocol"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// writeTimeout bounds a single frame write so a stalled peer cannot pin its write pump.
const writeTimeout = 5 * time.Second

// ServeConn seats conn at a table and pumps frames until the connection or the
// session ends. It blocks until both pumps have exited and always closes conn.
func (h *Hub) ServeConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	s, p, err := h.join()
	if err != nil {
		return fmt.Errorf("seat %s: %w", conn.RemoteAddr(), err)
	}
	log := h.opts.Logger.WithFields(logrus.Fields{
		"session": s.ID,
		"seat":    p.Seat,
		"remote":  conn.RemoteAddr().String(),
	})
	log.Info("Player connected")

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	written := make(chan struct{})
	go func() {
		defer close(written)
		if err := writePump(conn, p); err != nil {
			log.Debugf("Write pump stopped: %v", err)
		}
	}()

	err = h.readPump(ctx, conn, s, p, log)
	s.HandleDisconnect(p.Seat)
	<-written

	if errors.Is(err, protocol.ErrConnectionClosed) {
		log.Info("Player disconnected")
		return nil
	}
	log.Warnf("Player dropped: %v", err)
	return err
}

// readPump decodes inbound frames and hands them to the session. Game errors are
// answered with @REJECT; framing and decoding errors end the connection.
func (h *Hub) readPump(ctx context.Context, conn net.Conn, s *game.Session, p *game.Player, log *logrus.Entry) error {
	limiter := rate.NewLimiter(rate.Every(h.opts.RateLimit), h.opts.RateBurst)
	for {
		payload, err := protocol.ReadFrame(conn)
		if err != nil {
			return err
		}
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		msg, err := protocol.DecodeInbound(payload)
		if err != nil {
			return err
		}
		if err := s.Handle(p.Seat, msg); err != nil {
			log.Debugf("Rejected %q: %v", payload, err)
			p.Send(protocol.Reject{Reason: game.RejectReason(err)})
		}
	}
}

// writePump drains the player's outbox onto conn. Once the player is closed it flushes
// whatever is still queued and closes conn, which also unblocks the read pump.
func writePump(conn net.Conn, p *game.Player) error {
	defer conn.Close()
	for {
		select {
		case msg := <-p.Outbox():
			if err := writeMessage(conn, msg); err != nil {
				return err
			}
		case <-p.Closed():
			for {
				select {
				case msg := <-p.Outbox():
					if err := writeMessage(conn, msg); err != nil {
						return err
					}
				default:
					return nil
				}
			}
		}
	}
}

func writeMessage(conn net.Conn, msg protocol.Outbound) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrConnectionClosed, err)
	}
	return protocol.WriteFrame(conn, protocol.Encode(msg))
}
