// Package app wires the Axon server runtime: config, logging, storage, HTTP
// routes, and the realtime relay.
//
// It is intentionally small and deterministic to keep CI gates strict and behavior predictable.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"axon/cmd/identity"
	authapi "axon/cmd/internal/auth/api"
	"axon/cmd/internal/auth/session"
	"axon/cmd/internal/auth/twofactor"
	"axon/cmd/internal/messages"
	"axon/cmd/internal/realtime"
)

// App is the Axon server runtime: it owns the HTTP server wiring and the
// lifecycle of DB-backed resources.
type App struct {
	cfg     Config
	log     Logger
	metrics *Metrics

	dbPool    *pgxpool.Pool
	dbEnabled bool

	msgStore messages.Store

	auth  *authapi.Handler
	msgs  *messages.Handler
	relay *realtime.Relay
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	tokens, err := session.NewJWTManager(sessCfg)
	if err != nil {
		return nil, err
	}

	var (
		pool      *pgxpool.Pool
		dbEnabled bool

		users    identity.Store
		refresh  session.RefreshTokenStore
		msgStore messages.Store
	)

	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		users = identity.NewMemoryStore()
		refresh = session.NewMemoryRefreshTokenStore()
		msgStore = messages.NewMemoryStore()
	} else {
		ctx := context.Background()

		if cfg.MigrateOnStart {
			if err := RunMigrations(ctx, cfg.DatabaseURL); err != nil {
				return nil, err
			}
			log.Info("db.migrations.applied")
		}

		pool, err = NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		dbEnabled = true
		log.Info("db.enabled.postgres_store")

		// Ownership model: app owns the pool lifecycle; the stores do not
		// close it.
		users, err = identity.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		refresh, err = session.NewPostgresRefreshTokenStore(pool, sessCfg.RefreshTokenTTL)
		if err != nil {
			pool.Close()
			return nil, err
		}
		msgStore, err = messages.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
	}

	second, err := twofactor.NewEngine(twofactor.DefaultConfig(), users)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewService(users, tokens, refresh, second)
	if err != nil {
		return nil, err
	}

	auth, err := authapi.NewHandler(log, authapi.LoadConfigFromEnv(), users, sessions, second)
	if err != nil {
		return nil, err
	}

	msgs, err := messages.NewHandler(log, msgStore, sessions)
	if err != nil {
		return nil, err
	}

	relay, err := realtime.NewRelay(log, realtime.NewPresence(), sessions)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		metrics:   NewMetrics(),
		dbPool:    pool,
		dbEnabled: dbEnabled,
		msgStore:  msgStore,
		auth:      auth,
		msgs:      msgs,
		relay:     relay,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.auth, a.msgs, a.relay)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log, a.metrics),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if a.msgStore != nil {
		if err := a.msgStore.Close(); err != nil {
			a.log.Error("store.close.fail", "err", err)
		}
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
