// Package main is the entry point for the TrackRater live rating server.
// It initializes all dependencies and starts the HTTP server.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"trackrater/src/app/realtime"
	"trackrater/src/app/server"
	"trackrater/src/core/ports"
	"trackrater/src/core/usecase"
	"trackrater/src/infra/auth"
	"trackrater/src/infra/config"
	"trackrater/src/infra/db"
	"trackrater/src/infra/logger"
	"trackrater/src/infra/metrics"
	"trackrater/src/infra/pubsub"
	"trackrater/src/infra/repo"
)

func main() {
	if err := run(); err != nil {
		log.Printf("fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(cfg.Log)
	log.Info("starting application",
		"port", cfg.Server.Port,
		"log_level", cfg.Log.Level,
		"store", cfg.Database.Driver,
		"criteria", len(cfg.Criteria),
	)

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	external := map[string]ports.ExternalService{}
	var mirrors []ports.Publisher
	if cfg.Redis.URL != "" {
		redisPub, err := pubsub.NewRedisPublisher(cfg.Redis, logger.WithComponent(log, "pubsub"))
		if err != nil {
			return err
		}
		defer redisPub.Close()
		mirrors = append(mirrors, redisPub)
		external["redis"] = redisPub
	}

	m := metrics.New()
	hubLog := logger.WithComponent(log, "realtime")
	hub := realtime.NewHub(cfg.Realtime, hubLog, m)

	links := usecase.Links{BaseURL: cfg.Rating.PublicBaseURL}
	live := usecase.NewLiveState(cfg.Criteria, time.Now)
	gw := usecase.NewGateway(hub, store, live, links, cfg.Queue.ViewLimit, logger.WithComponent(log, "gateway"), m, mirrors...)

	queueService := usecase.NewQueueService(store, live, gw, time.Now, cfg.Queue.ViewLimit, log)
	playbackService := usecase.NewPlaybackService(store, live, gw, links, log)
	ratingService := usecase.NewRatingService(store, live, gw, links, log)
	submissionService := usecase.NewSubmissionService(store, queueService, gw, time.Now, log)
	healthService := usecase.NewHealthService(log, store, external)

	hub.SetHandler(realtime.NewDispatcher(queueService, playbackService, ratingService, gw, m, hubLog))

	srv := server.New(cfg, log, server.Deps{
		Health:      healthService,
		Queue:       queueService,
		Playback:    playbackService,
		Rating:      ratingService,
		Submissions: submissionService,
		Identity:    auth.NewJWTProvider(cfg.Auth, time.Now),
		Metrics:     m,
		Realtime:    hub,
		OnShutdown:  hub.Close,
	})

	// Run blocks until shutdown signal is received
	return srv.Run()
}

// openStore connects the configured persistence backend.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (ports.Store, func(), error) {
	if cfg.Database.UseMemory() {
		log.Warn("using in-memory store; data is lost on restart")
		return repo.NewMemoryRepository(time.Now), func() {}, nil
	}

	pg, err := db.New(ctx, cfg.Database, log)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
	}
	return repo.NewPostgresRepository(pg, log), pg.Close, nil
}
