// Package main is the entry point for the Castellan server.
// Castellan is an identity and authorization engine: accounts,
// credentials, groups, host access rules and a derived POSIX
// directory view.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prn-tf/castellan/internal/config"
	"github.com/prn-tf/castellan/internal/directory"
	"github.com/prn-tf/castellan/internal/handler"
	"github.com/prn-tf/castellan/internal/lock"
	"github.com/prn-tf/castellan/internal/metrics"
	"github.com/prn-tf/castellan/internal/repository"
	"github.com/prn-tf/castellan/internal/repository/postgres"
	"github.com/prn-tf/castellan/internal/repository/sqlite"
	"github.com/prn-tf/castellan/internal/service"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	logger := newLogger(cfg.Logging)

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("starting castellan server")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
}

// repos bundles the per-backend repository set.
type repos struct {
	accounts repository.AccountRepository
	groups   repository.GroupRepository
	hosts    repository.HostRepository
	tokens   repository.TokenRepository
	emails   repository.EmailRepository
	close    func() error
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := buildRepos(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer r.close()

	var m *metrics.Metrics
	var recorder service.EventRecorder
	var rebuilds directory.RebuildRecorder
	if cfg.Metrics.Enabled {
		m = metrics.New()
		recorder = m
		rebuilds = m
	}

	projector := directory.NewProjector(r.accounts, directory.Config{
		UsersBaseDN: cfg.Directory.UsersBaseDN,
		HomePrefix:  cfg.Directory.HomePrefix,
		GIDNumber:   cfg.Directory.GIDNumber,
	}, rebuilds, logger)

	identitySvc := service.NewIdentityService(r.accounts, projector, recorder, logger)
	tokenSvc := service.NewTokenService(r.tokens, cfg.Tokens.PasswordChangeTTL, cfg.Tokens.EmailVerificationTTL, recorder, logger)
	groupSvc := service.NewGroupService(r.groups, logger)
	permissionSvc := service.NewPermissionService(r.groups, groupSvc, logger)
	hostSvc := service.NewHostService(r.hosts, permissionSvc, recorder, logger)
	emailSvc := service.NewEmailService(r.emails, tokenSvc, cfg.Email.AllowedDomains, logger)

	routerCfg := handler.RouterConfig{
		AccountHandler:   handler.NewAccountHandler(identitySvc, tokenSvc, groupSvc, logger),
		GroupHandler:     handler.NewGroupHandler(groupSvc, logger),
		HostHandler:      handler.NewHostHandler(hostSvc, logger),
		EmailHandler:     handler.NewEmailHandler(emailSvc, logger),
		DirectoryHandler: handler.NewDirectoryHandler(projector, logger),
		Logger:           logger,
	}
	if m != nil {
		routerCfg.MetricsMiddleware = m.Middleware
	}
	router := handler.NewRouter(routerCfg)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var metricsServer *http.Server
	if m != nil {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, m.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			logger.Info().Str("addr", metricsServer.Addr).Str("path", cfg.Metrics.Path).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("metrics server shutdown failed")
		}
	}
	return nil
}

// buildRepos connects to the configured database and wires the
// repository set for it.
func buildRepos(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*repos, error) {
	if cfg.Database.IsEmbedded() {
		db, err := sqlite.NewDB(ctx, sqlite.Config{
			Path:            cfg.Database.Path,
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: time.Hour,
			JournalMode:     cfg.Database.JournalMode,
			BusyTimeout:     cfg.Database.BusyTimeout,
			SynchronousMode: cfg.Database.SynchronousMode,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to sqlite: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating sqlite schema: %w", err)
		}

		locker, closeLocker := buildLocker(cfg, logger)
		return &repos{
			accounts: sqlite.NewAccountRepository(db, cfg.Directory.UIDFloor, locker),
			groups:   sqlite.NewGroupRepository(db),
			hosts:    sqlite.NewHostRepository(db),
			tokens:   sqlite.NewTokenRepository(db),
			emails:   sqlite.NewEmailRepository(db),
			close: func() error {
				closeLocker()
				return db.Close()
			},
		}, nil
	}

	db, err := postgres.NewDB(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating postgres schema: %w", err)
	}

	return &repos{
		accounts: postgres.NewAccountRepository(db, cfg.Directory.UIDFloor),
		groups:   postgres.NewGroupRepository(db),
		hosts:    postgres.NewHostRepository(db),
		tokens:   postgres.NewTokenRepository(db),
		emails:   postgres.NewEmailRepository(db),
		close:    db.Close,
	}, nil
}

// buildLocker selects the UID allocation lock backend. Redis serializes
// allocation across instances; the in-process lock is only safe for a
// single server.
func buildLocker(cfg *config.Config, logger zerolog.Logger) (lock.Locker, func()) {
	if !cfg.Redis.Enabled {
		logger.Warn().Msg("redis disabled: uid allocation lock is process local")
		return lock.NewMemoryLocker(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr(),
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	return lock.NewRedisLocker(client), func() { client.Close() }
}

// newLogger builds the root logger from config.
func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = os.Stdout
	if cfg.Output == "stderr" {
		out = os.Stderr
	}

	zerolog.TimeFieldFormat = cfg.TimeFormat
	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if cfg.Format == "console" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}
	return logger
}
