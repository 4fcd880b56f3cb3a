// cmd/spectator/main.go follows the live session feed from Redis or NATS, logs every
// public event, and periodically reports tables that have gone idle.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/rummy/internal/config"
	"github.com/jason-s-yu/rummy/internal/feed"
	_ "github.com/joho/godotenv/autoload"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

func main() {
	verbose := flag.Bool("v", false, "log every event")
	every := flag.Duration("report", 30*time.Second, "how often to report idle tables")
	flag.Parse()

	logger := logrus.New()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	onError := func(err error) { logger.Warnf("Skipping event: %v", err) }

	var events <-chan feed.Event
	switch {
	case cfg.NATSURL != "":
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("rummy-spectator"), nats.ReconnectWait(2*time.Second))
		if err != nil {
			logger.Fatalf("failed to connect to NATS at %s: %v", cfg.NATSURL, err)
		}
		defer nc.Drain()
		events, err = feed.SubscribeNATS(ctx, nc, cfg.NATSSubject, onError)
		if err != nil {
			logger.Fatal(err)
		}
		logger.Infof("Watching NATS subject %s.>", cfg.NATSSubject)
	case cfg.RedisAddr != "":
		rdb, err := feed.NewRedisClient(cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Fatal(err)
		}
		defer rdb.Close()
		events, err = feed.SubscribeRedis(ctx, rdb, cfg.FeedChannel, onError)
		if err != nil {
			logger.Fatal(err)
		}
		logger.Infof("Watching Redis channel %s", cfg.FeedChannel)
	default:
		logger.Fatal("set NATS_URL or REDIS_ADDR to choose a feed")
	}

	w := feed.NewWatcher(cfg.Inactivity)
	ticker := time.NewTicker(*every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Spectator stopped")
			return
		case ev, ok := <-events:
			if !ok {
				logger.Info("Feed closed")
				return
			}
			w.Apply(ev)
			logger.WithFields(logrus.Fields{
				"session": ev.SessionID,
				"seat":    ev.Seat,
				"index":   ev.Index,
			}).Debugf("%s %v", ev.Type, ev.Payload)
			if ev.Type == feed.EventWin || ev.Type == feed.EventAbort {
				logger.WithField("session", ev.SessionID).Infof("Table ended: %s", ev.Type)
			}
		case now := <-ticker.C:
			for _, t := range w.Idle(now) {
				logger.WithField("session", t.SessionID).Warnf("Table idle since %s (last event %s)",
					t.LastSeen.Format(time.RFC3339), t.LastEvent)
			}
			if n := w.Forget(); n > 0 {
				logger.Debugf("Forgot %d ended tables", n)
			}
		}
	}
}
