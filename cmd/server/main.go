package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"hiroai/roomsync/internal/auth"
	"hiroai/roomsync/internal/config"
	"hiroai/roomsync/internal/generator"
	"hiroai/roomsync/internal/handlers"
	"hiroai/roomsync/internal/jobs"
	"hiroai/roomsync/internal/lifecycle"
	"hiroai/roomsync/internal/llm"
	_ "hiroai/roomsync/internal/llm/gemini"
	"hiroai/roomsync/internal/middleware"
	"hiroai/roomsync/internal/profile"
	"hiroai/roomsync/internal/prompts"
	"hiroai/roomsync/internal/routers"
	"hiroai/roomsync/internal/session"
	"hiroai/roomsync/internal/store"
	"hiroai/roomsync/internal/utils"
)

var (
	listenAndServe = func(srv *http.Server) error { return srv.ListenAndServe() }
	exit           = os.Exit
)

// app holds everything main builds so it can be torn down in order.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	router    http.Handler
	store     *store.Store
	backend   store.Backend
	registry  *session.Registry
	lifecycle *lifecycle.Service
	fetcher   *profile.GitHubFetcher
	archiver  *jobs.Archiver

	rdb      *redis.Client
	notifier *store.RedisNotifier
	relay    *session.RedisRelay
}

// openBackend connects the configured document store.
func openBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return store.NewMemoryBackend(), nil
	case config.BackendPostgres:
		db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN()), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return store.NewGormBackend(db)
	case config.BackendSQLite:
		db, err := gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
		return store.NewGormBackend(db)
	case config.BackendMongo:
		return store.NewMongoBackend(ctx, cfg.MongoURI, cfg.MongoDB)
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

// connectRedis returns nil when redis is not configured or unreachable;
// the service then runs as a single instance.
func connectRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		logger.Warn("Redis unreachable, running single instance", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = rdb.Close()
		return nil
	}
	return rdb
}

func newGenerator(cfg *config.Config, logger *zap.Logger) (lifecycle.Generator, error) {
	if cfg.AIProvider == "none" {
		logger.Info("AI provider disabled, questions must be supplied by the interviewer")
		return nil, nil
	}
	provider, err := llm.NewProvider(cfg.AIProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AI provider: %w", err)
	}
	promptManager, err := prompts.NewPromptManager()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize prompt manager: %w", err)
	}
	logger.Info("AI provider initialized", zap.String("provider", provider.GetProviderName()))
	return generator.New(provider, promptManager, logger), nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, backend: backend}

	var notifier store.Notifier
	if a.rdb = connectRedis(ctx, cfg, logger); a.rdb != nil {
		a.notifier = store.NewRedisNotifier(a.rdb, logger)
		notifier = a.notifier
	}
	a.store = store.New(backend, notifier, logger)

	a.registry = session.NewRegistry(logger)
	if a.rdb != nil {
		a.relay = session.NewRedisRelay(a.rdb, a.registry, logger)
		a.registry.SetRelay(a.relay)
	}

	gen, err := newGenerator(cfg, logger)
	if err != nil {
		_ = backend.Close(ctx)
		return nil, err
	}
	a.lifecycle = lifecycle.NewService(a.store, gen, logger, cfg.SubmissionCacheTTL)
	a.fetcher = profile.NewGitHubFetcher(cfg.GitHubAPIURL, cfg.GitHubToken, time.Hour)
	a.archiver = jobs.NewArchiver(a.store, a.registry.Members, &jobs.ArchiverConfig{
		Schedule:  cfg.ArchiveSchedule,
		Retention: cfg.ArchiveRetention,
		Enabled:   cfg.ArchiveEnabled,
	}, logger)

	issuer := auth.NewIssuer(cfg.RoomTokenSecret, cfg.RoomTokenTTL)
	if !issuer.Enabled() {
		logger.Warn("ROOM_TOKEN_SECRET not set, room routes are unauthenticated")
	}

	a.router = routers.New(cfg.AllowedOrigins, routers.Handlers{
		Health:    handlers.NewHealthHandler(a.store, a.lifecycle.HasGenerator(), cfg),
		Room:      handlers.NewRoomHandler(a.store, logger),
		Lifecycle: handlers.NewLifecycleHandler(a.lifecycle, logger),
		Channel:   handlers.NewChannelHandler(a.registry, cfg.AllowedOrigins, logger),
		Feed:      handlers.NewFeedHandler(a.store, cfg.AllowedOrigins, logger),
		Token:     handlers.NewTokenHandler(issuer, logger),
		Profile:   handlers.NewProfileHandler(a.fetcher, logger),
	}, middleware.RequireRoomToken(issuer, logger))
	return a, nil
}

func (a *app) close(ctx context.Context) {
	a.archiver.Stop()
	a.lifecycle.Close()
	a.fetcher.Close()
	if err := a.backend.Close(ctx); err != nil {
		a.logger.Warn("store close failed", zap.Error(err))
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}

// run serves until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if err := a.archiver.Start(); err != nil {
		return err
	}

	// WriteTimeout leaves room for evaluations under the 60s request timeout
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Room sync service starting", zap.String("addr", server.Addr), zap.String("store", cfg.StoreBackend))
		if err := listenAndServe(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Room sync service shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if a.notifier != nil {
		g.Go(func() error { return untilDone(gctx, a.notifier.Run(gctx)) })
	}
	if a.relay != nil {
		g.Go(func() error { return untilDone(gctx, a.relay.Run(gctx)) })
	}

	err = g.Wait()
	logger.Info("Room sync service exited")
	return err
}

// untilDone drops the error a subscriber returns because ctx ended.
func untilDone(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		exit(1)
		return
	}
	logger := utils.NewLogger(cfg.Env)
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("store", cfg.StoreBackend),
		zap.String("provider", cfg.AIProvider),
		zap.Bool("redis", cfg.RedisAddr != ""))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Room sync service failed", zap.Error(err))
		_ = logger.Sync()
		exit(1)
	}
}
