package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"

	"github.com/longsangsabo/sabo-pool-engine/config"
	"github.com/longsangsabo/sabo-pool-engine/db"
	"github.com/longsangsabo/sabo-pool-engine/engine"
	"github.com/longsangsabo/sabo-pool-engine/handlers"
	"github.com/longsangsabo/sabo-pool-engine/models"
	"github.com/longsangsabo/sabo-pool-engine/realtime"
	"github.com/longsangsabo/sabo-pool-engine/repositories"
	api "github.com/longsangsabo/sabo-pool-engine/routes"
	"github.com/longsangsabo/sabo-pool-engine/services"
	"github.com/longsangsabo/sabo-pool-engine/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Cloudflare R2 result archive.
	uploader, err := storage.NewCloudflareR2Uploader(storage.CloudflareR2Config{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	})
	if err != nil {
		logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
		os.Exit(1)
	}
	archiver := storage.NewResultArchiver(uploader)
	logger.Info("Cloudflare R2 uploader initialized")

	// Realtime hub and push-event bus.
	hub := realtime.NewHub(logger)
	go hub.Run(rootCtx)
	logger.Info("websocket hub started")

	bus := engine.NewMemoryBus()
	relay := realtime.NewEventRelay(hub, bus, logger)
	relay.Start()
	defer relay.Stop()

	// Repositories.
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	registrationRepo := repositories.NewPostgresRegistrationRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	resultRepo := repositories.NewPostgresResultRepository(dbConn)
	logger.Info("repositories initialized")

	// Registration engine.
	clock := clockwork.NewRealClock()
	store := engine.NewRegistrationStore()
	machine := engine.NewStateMachine(store, registrationRepo, tournamentRepo, bus, clock, logger)
	channel := engine.NewSyncChannel(store, registrationRepo, bus, clock, logger, engine.SyncChannelConfig{})

	notifier := services.MultiNotifier{
		services.NewLogNotifier(logger),
		realtime.NewHubNotifier(hub),
	}

	tournamentService := services.NewTournamentService(
		tournamentRepo,
		matchRepo,
		resultRepo,
		userRepo,
		dbConn,
		engine.NewRewardCalculator(),
		bus,
		archiver,
		notifier,
		clock,
		logger,
	)
	registrationService := services.NewRegistrationService(
		store,
		machine,
		channel,
		tournamentRepo,
		userRepo,
		notifier,
		logger,
	)

	detector := engine.NewCompletionDetector(tournamentService, logger)
	channel.OnMatchEvent(detector.HandleMatchEvent)

	if err := channel.Start(rootCtx); err != nil {
		logger.Error("failed to start sync channel", slog.Any("error", err))
		os.Exit(1)
	}
	defer channel.Close()

	// Prime the registration cache for every tournament a player can still
	// interact with.
	active, err := tournamentRepo.ListByStatus(rootCtx,
		models.StatusRegistrationOpen, models.StatusRegistrationClosed, models.StatusOngoing)
	if err != nil {
		logger.Warn("failed to list active tournaments for cache priming", slog.Any("error", err))
	} else {
		ids := make([]int, 0, len(active))
		for _, t := range active {
			ids = append(ids, t.ID)
		}
		if err := channel.InitTournaments(rootCtx, ids); err != nil {
			logger.Warn("registration cache priming failed", slog.Any("error", err))
		} else {
			logger.Info("registration cache primed", slog.Int("tournaments", len(ids)))
		}
	}
	logger.Info("services initialized")

	// Tournament status scheduler.
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		logger.Error("failed to create scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.SchedulerInterval),
		gocron.NewTask(func() {
			if err := tournamentService.AdvanceStatusesByWindow(rootCtx); err != nil {
				logger.Error("scheduled status advance failed", slog.Any("error", err))
			}
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		logger.Error("failed to schedule status advance job", slog.Any("error", err))
		os.Exit(1)
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			logger.Error("scheduler shutdown failed", slog.Any("error", err))
		}
	}()
	logger.Info("tournament status scheduler started", slog.Duration("interval", cfg.SchedulerInterval))

	// HTTP layer.
	tournamentHandler := handlers.NewTournamentHandler(tournamentService)
	registrationHandler := handlers.NewRegistrationHandler(registrationService)
	webSocketHandler := handlers.NewWebSocketHandler(hub, logger)

	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		cfg.JWTSecretKey,
		cfg.CORSAllowedOrigins,
		tournamentHandler,
		registrationHandler,
		webSocketHandler,
	)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
		}
	}

	logger.Info("server exited")
}
