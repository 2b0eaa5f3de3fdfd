package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"call-relay/internal/audit"
	"call-relay/internal/calls"
	"call-relay/internal/config"
	"call-relay/internal/metrics"
	"call-relay/internal/reporting"
	"call-relay/internal/signaling"
	"call-relay/internal/sweeper"
	"call-relay/internal/users"
	"call-relay/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

// app is the fully wired process graph shared by serve and sweep.
type app struct {
	cfg config.Config
	log *slog.Logger

	db  *sql.DB
	rdb *redis.Client

	calls     *calls.Service
	directory *calls.Directory
	signaling *signaling.Service
	stats     *reporting.Service
	audit     *audit.Service
	metrics   *metrics.Metrics
	sweeper   *sweeper.Sweeper
}

type userStore interface {
	users.Directory
	users.Permissions
}

type stores struct {
	users     userStore
	calls     calls.Repository
	signaling signaling.Repository
	audit     audit.Repository
}

func openPostgres(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		return nil, fmt.Errorf("postgres init: %w", err)
	}
	return db, nil
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	var st stores
	switch cfg.App.Store {
	case config.StoreMemory:
		ur := users.NewMemoryRepo()
		// No user directory in memory mode: any id is a known user.
		ur.Open = true
		cr := calls.NewMemoryRepo()
		st = stores{users: ur, calls: cr, signaling: signaling.NewMemoryRepo(cr), audit: audit.NewMemoryRepo()}
		log.Warn("using in-memory store; state is lost on restart")
	default:
		db, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.db = db
		st = stores{
			users:     users.NewPostgresRepo(db),
			calls:     calls.NewPostgresRepo(db),
			signaling: signaling.NewPostgresRepo(db),
			audit:     audit.NewPostgresRepo(db),
		}
	}

	var cache calls.PendingCache
	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	switch {
	case err == nil:
		a.rdb = rdb
		cache = calls.NewRedisPendingCache(rdb, cfg.Calls.PendingCacheTTL)
	case cfg.App.Store == config.StoreMemory:
		log.Warn("redis unavailable; pending cache disabled", "err", err)
	default:
		a.close()
		return nil, fmt.Errorf("redis init: %w", err)
	}

	a.calls = calls.NewService(st.calls, st.users, st.users, calls.Settings{
		DuplicateWindow: cfg.Calls.DuplicateWindow,
		PendingWindow:   cfg.Calls.PendingWindow,
		RingTimeout:     cfg.Calls.RingTimeout,
		Retention:       cfg.Calls.Retention,
	})
	a.directory = calls.NewDirectory(st.calls, st.users, cache, cfg.Calls.PendingWindow)
	a.signaling = signaling.NewService(st.signaling, a.calls)
	a.stats = reporting.NewService(st.calls)
	a.audit = audit.NewService(st.audit)
	a.metrics = metrics.New()

	a.calls.Observe(a.directory)
	a.calls.Observe(a.audit)
	a.calls.Observe(a.metrics)
	a.signaling.Observe(a.metrics)

	a.sweeper = sweeper.New(a.calls, sweeper.Options{
		RingTimeout:       cfg.Calls.RingTimeout,
		Retention:         cfg.Calls.Retention,
		SweepSchedule:     cfg.Calls.SweepSchedule,
		RetentionSchedule: cfg.Calls.RetentionSchedule,
		Recorder:          a.audit,
		Counter:           a.metrics,
		Logger:            log,
	})
	return a, nil
}

func (a *app) close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warn("redis close failed", "err", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("postgres close failed", "err", err)
		}
	}
}
