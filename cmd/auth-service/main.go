package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pribylovaa/conference-auth/internal/clock"
	"github.com/pribylovaa/conference-auth/internal/config"
	authhttp "github.com/pribylovaa/conference-auth/internal/http"
	"github.com/pribylovaa/conference-auth/internal/metrics"
	"github.com/pribylovaa/conference-auth/internal/pkg/passwd"
	"github.com/pribylovaa/conference-auth/internal/service"
	"github.com/pribylovaa/conference-auth/internal/storage"
	"github.com/pribylovaa/conference-auth/internal/storage/postgres"
	"github.com/pribylovaa/conference-auth/internal/storage/redis"
	"github.com/pribylovaa/conference-auth/internal/storage/sqlite"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", slog.String("env", cfg.Env), slog.String("storage", cfg.Storage.Driver))

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	if err := run(rootCtx, cfg, log); err != nil {
		log.Error("service_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}

	log.Info("service_stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// Подключение к хранилищам c таймаутом.
	dbCtx, dbCancel := context.WithTimeout(ctx, 10*time.Second)
	stores, err := openStores(dbCtx, cfg, log)
	dbCancel()
	if err != nil {
		return err
	}
	defer stores.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	svc, err := service.New(cfg.Auth, service.Deps{
		Identities: stores.identities,
		Tokens:     stores.tokens,
		Hasher:     passwd.New(cfg.Auth.BcryptCost),
		Clock:      clock.System{},
		Metrics:    m,
	})
	if err != nil {
		return err
	}
	log.Info("service_initialized",
		slog.String("algorithm", cfg.Auth.Algorithm),
		slog.Bool("revoke_family_on_reuse", cfg.Auth.RevokeFamilyOnReuse),
	)

	var ready atomic.Bool

	apiSrv := &http.Server{
		Addr: cfg.HTTP.Addr(),
		Handler: authhttp.NewRouter(svc, authhttp.Options{
			Logger:   log,
			Timeout:  cfg.Timeouts.Request,
			BasePath: cfg.HTTP.BasePath,
			Metrics:  m,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	opsSrv := &http.Server{
		Addr:              cfg.Ops.Addr(),
		Handler:           authhttp.NewOpsRouter(&ready, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErrCh := make(chan error, 2)
	for name, srv := range map[string]*http.Server{"api": apiSrv, "ops": opsSrv} {
		go func() {
			log.Info("http_listen_start", slog.String("server", name), slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErrCh <- fmt.Errorf("%s server: %w", name, err)
			}
		}()
	}

	ready.Store(true)

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown_requested")
	case serveErr = <-serveErrCh:
		log.Error("http_serve_failed", slog.String("err", serveErr.Error()))
	}

	ready.Store(false)

	// Graceful stop с таймаутом.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer shutdownCancel()

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("api_force_stop", slog.String("err", err.Error()))
		_ = apiSrv.Close()
	}
	_ = opsSrv.Shutdown(shutdownCtx)

	return serveErr
}

// stores - выбранные по конфигурации хранилища.
type stores struct {
	identities storage.IdentityStorage
	tokens     storage.RefreshTokenStorage
	closers    []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores открывает основное хранилище (postgres или sqlite) и,
// если задан redis_url, Redis для refresh-токенов.
func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*stores, error) {
	st := &stores{}

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		if cfg.Storage.Migrate {
			if err := postgres.Migrate(ctx, cfg.Storage.DatabaseURL); err != nil {
				log.Error("postgres_migrate_failed", slog.String("err", err.Error()))
				return nil, err
			}
			log.Info("postgres_migrated")
		}

		pg, err := postgres.New(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			log.Error("postgres_connect_failed", slog.String("err", err.Error()))
			return nil, err
		}
		log.Info("postgres_connected")

		st.identities, st.tokens = pg, pg
		st.closers = append(st.closers, pg.Close)
	case config.DriverSQLite:
		lite, err := sqlite.New(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			log.Error("sqlite_open_failed", slog.String("err", err.Error()))
			return nil, err
		}
		log.Info("sqlite_opened", slog.String("path", cfg.Storage.SQLitePath))

		st.identities, st.tokens = lite, lite
		st.closers = append(st.closers, lite.Close)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if cfg.Redis.RedisURL != "" {
		rdb, err := redis.New(ctx, cfg.Redis.RedisURL, redis.Options{
			Prefix:    cfg.Redis.Prefix,
			Retention: cfg.Redis.Retention,
		})
		if err != nil {
			log.Error("redis_connect_failed", slog.String("err", err.Error()))
			st.close()
			return nil, err
		}
		log.Info("redis_connected", slog.String("prefix", cfg.Redis.Prefix))

		st.tokens = rdb
		st.closers = append(st.closers, rdb.Close)
	}

	return st, nil
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}
