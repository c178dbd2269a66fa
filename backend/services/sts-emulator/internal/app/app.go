package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libdb "stsemulator/backend/libs/db"
	libredis "stsemulator/backend/libs/redis"
	"stsemulator/backend/services/sts-emulator/internal/auth"
	"stsemulator/backend/services/sts-emulator/internal/config"
	"stsemulator/backend/services/sts-emulator/internal/events"
	httpserver "stsemulator/backend/services/sts-emulator/internal/http"
	"stsemulator/backend/services/sts-emulator/internal/http/handlers"
	"stsemulator/backend/services/sts-emulator/internal/http/middleware"
	"stsemulator/backend/services/sts-emulator/internal/injection"
	"stsemulator/backend/services/sts-emulator/internal/journal"
	redisstore "stsemulator/backend/services/sts-emulator/internal/redis"
	"stsemulator/backend/services/sts-emulator/internal/repository"
	"stsemulator/backend/services/sts-emulator/internal/service"
	"stsemulator/backend/services/sts-emulator/internal/settings"
	"stsemulator/backend/services/sts-emulator/internal/ws"
)

const (
	feedBuffer    = 256
	journalBuffer = 1024
)

// App wires the emulator, its control API and the optional export sinks.
type App struct {
	cfg      *config.Config
	emulator *service.Emulator
	bus      *events.Bus

	// ctx scopes everything started from the control API; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	server    *httpserver.Server
	manager   *ws.Manager
	publisher *redisstore.Publisher
	journal   *journal.Writer

	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New builds the application graph. Redis and Postgres are connected only when
// configured; a configured sink that cannot be reached fails startup.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	st, err := settings.New(cfg.SettingsOptions())
	if err != nil {
		return nil, err
	}

	engine := injection.NewEngine(logger.Named("injection"))
	if err := engine.SetResponseDelay(cfg.Injection.ResponseDelay); err != nil {
		return nil, err
	}
	if err := engine.SetJunkProbability(cfg.Injection.JunkProbability); err != nil {
		return nil, err
	}
	if err := engine.SetIgnoreCount(cfg.Injection.IgnoreCount); err != nil {
		return nil, err
	}

	bus := events.NewBus()
	emulator := service.NewEmulator(st, engine, bus, logger.Named("emulator"))

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		cfg:      cfg,
		emulator: emulator,
		bus:      bus,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
	}

	if cfg.RedisEnabled() {
		a.redisClient, err = libredis.NewRedisClient(ctx, libredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app: connect redis: %w", err)
		}
		store := redisstore.NewStatsStore(a.redisClient, cfg.Redis.TTL)
		a.publisher = redisstore.NewPublisher(store, emulator.Stats, cfg.Redis.PublishInterval, logger.Named("redis"))
	}

	if cfg.DatabaseEnabled() {
		a.db, err = libdb.NewPostgresDB(ctx, libdb.Options{
			DSN:          cfg.Database.DSN,
			MaxOpenConns: cfg.Database.MaxOpenConns,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app: connect postgres: %w", err)
		}
		repo := repository.NewJournalRepository(a.db)
		if err := repo.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: create journal table: %w", err)
		}
		a.journal = journal.NewWriter(repo, logger.Named("journal"))
	}

	if cfg.Control.Enabled {
		if err := a.buildControl(); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

func (a *App) buildControl() error {
	secret := a.cfg.Control.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		a.logger.Warn("no jwt secret configured, tokens will not survive a restart")
	}
	tokens := auth.NewTokenService(secret, a.cfg.Control.TokenTTL)
	authn, err := auth.NewAuthenticator(a.cfg.Control.Username, a.cfg.Control.Password, auth.NewBcryptHasher(0), tokens)
	if err != nil {
		return err
	}

	logger := a.logger.Named("control")
	a.manager = ws.NewManager(logger)
	wsServer := ws.NewServer(a.ctx, a.manager, a.cfg.Control.WriteTimeout, a.cfg.Control.PingInterval, logger)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandlers:      handlers.NewAuthHandlers(authn, logger),
		ConfigHandlers:    handlers.NewConfigHandlers(a.emulator, logger),
		TallyHandlers:     handlers.NewTallyHandlers(a.emulator, logger),
		InjectionHandlers: handlers.NewInjectionHandlers(a.emulator, logger),
		ServerHandlers:    handlers.NewServerHandlers(a.ctx, a.emulator, logger),
		EventsHandler:     wsServer.HandleWS,
		HealthHandler:     handlers.Health,
	}, middleware.Auth(tokens))

	a.server = httpserver.NewServer(a.cfg.ControlAddress(), router, logger, middleware.Logging(logger))
	return nil
}

// Run starts the sinks, the control API and, when configured, the tally listener, and
// blocks until ctx is done or the control API fails.
func (a *App) Run(ctx context.Context) error {
	if a.manager != nil {
		feed, unsubscribe := a.bus.Subscribe(feedBuffer)
		defer unsubscribe()
		go a.manager.Start(ctx, feed)
	}
	if a.journal != nil {
		feed, unsubscribe := a.bus.Subscribe(journalBuffer)
		defer unsubscribe()
		go a.journal.Run(ctx, feed)
	}
	if a.publisher != nil {
		go a.publisher.Run(ctx)
	}

	if a.cfg.Emulator.AutoStart {
		if err := a.emulator.Start(a.ctx); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	if a.server != nil {
		go func() {
			errCh <- a.server.Run(ctx)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		if a.server != nil {
			runErr = <-errCh
		}
	case runErr = <-errCh:
	}

	a.cancel()
	if err := a.emulator.Stop(); err != nil && !errors.Is(err, service.ErrNotRunning) {
		a.logger.Warn("failed to stop emulator", zap.Error(err))
	}
	return runErr
}

// Close releases resources.
func (a *App) Close() {
	a.cancel()
	a.bus.Close()
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
