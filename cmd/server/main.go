// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/rummy/internal/config"
	"github.com/jason-s-yu/rummy/internal/feed"
	"github.com/jason-s-yu/rummy/internal/handlers"
	"github.com/jason-s-yu/rummy/internal/middleware"
	"github.com/jason-s-yu/rummy/internal/server"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	verbose := flag.Bool("v", false, "enable debug logging")
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

	publisher := connectFeed(cfg, logger)
	defer publisher.Close()

	hub := server.NewHub(server.Options{
		Rules:      cfg.Rules,
		OutboxSize: cfg.OutboxSize,
		RateLimit:  cfg.RateLimit,
		RateBurst:  cfg.RateBurst,
		Publisher:  publisher,
		Logger:     logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ln, err := net.Listen("tcp", cfg.TCPAddr)
		if err != nil {
			return err
		}
		return hub.Serve(ctx, ln)
	})

	if cfg.HTTPAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/ws", middleware.LogMiddleware(logger)(handlers.GameWSHandler(logger, hub)))
		mux.Handle("/sessions", middleware.LogMiddleware(logger)(handlers.ListSessionsHandler(logger, hub)))
		mux.Handle("GET /sessions/{id}", middleware.LogMiddleware(logger)(handlers.GetSessionHandler(logger, hub)))
		mux.Handle("/health", handlers.HealthHandler(logger))

		srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
		g.Go(func() error {
			logger.Infof("Running HTTP on %s", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Infof("Seating %d players per table (turn timeout %s, on disconnect: %s)",
		cfg.Rules.Players, cfg.Rules.TurnTimeout, cfg.Rules.DisconnectPolicy)

	err = g.Wait()
	hub.Shutdown()
	if err != nil {
		logger.Fatalf("server exited: %v", err)
	}
	logger.Info("Server stopped")
}

// connectFeed builds the live event feed from whichever brokers are configured.
// A broker that cannot be reached is logged and skipped so the game still runs.
func connectFeed(cfg config.Config, logger *logrus.Logger) feed.Publisher {
	var pubs feed.Multi
	if cfg.RedisAddr != "" {
		rp, err := feed.NewRedisPublisher(cfg.RedisAddr, cfg.RedisDB, cfg.FeedChannel)
		if err != nil {
			logger.Warnf("Redis feed disabled: %v", err)
		} else {
			logger.Infof("Publishing session events to Redis channel %s", cfg.FeedChannel)
			pubs = append(pubs, rp)
		}
	}
	if cfg.NATSURL != "" {
		np, err := feed.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			logger.Warnf("NATS feed disabled: %v", err)
		} else {
			logger.Infof("Publishing session events to NATS subject %s.>", cfg.NATSSubject)
			pubs = append(pubs, np)
		}
	}
	if len(pubs) == 0 {
		return feed.Nop{}
	}
	return pubs
}
