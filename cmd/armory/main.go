package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxbolgarin/contem"
	"github.com/maxbolgarin/lang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/armorybot/armory/internal/bot"
	"github.com/armorybot/armory/internal/config"
	"github.com/armorybot/armory/internal/metrics"
	"github.com/armorybot/armory/internal/moderation"
	"github.com/armorybot/armory/internal/notify"
	"github.com/armorybot/armory/internal/rbac"
	"github.com/armorybot/armory/internal/storage"
)

const cacheStatsInterval = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := contem.New()
	defer ctx.Shutdown()

	cfg, err := config.Load(configFiles()...)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	m := metrics.New(metrics.Config{Registry: prometheus.NewRegistry()})

	db, err := storage.NewMongo(ctx, cfg.DB)
	if err != nil {
		return err
	}

	adminRepo := storage.NewAdminRepository(db)
	if err := adminRepo.EnsureIndexes(ctx); err != nil {
		return err
	}
	modRepo := storage.NewModerationRepository(db)
	if err := modRepo.EnsureIndexes(ctx); err != nil {
		return err
	}
	audit := storage.NewAuditWriter(ctx, db, cfg.Notify.AuditWorkers, nil)

	roles := rbac.NewManager(adminRepo, rbac.Options{
		PermissionTTL: cfg.Cache.PermissionTTL,
		CacheCapacity: cfg.Cache.PermissionCapacity,
		Logger:        log,
	})
	if err := roles.SeedRoles(ctx); err != nil {
		return err
	}
	if cfg.SuperAdminID != 0 {
		if err := roles.AssignRole(ctx, cfg.SuperAdminID, rbac.SuperAdminRole, ""); err != nil {
			return err
		}
	}

	stats := moderation.NewStatsCache(modRepo, cfg.Cache.StatsTTL)
	mod := moderation.NewService(modRepo, stats, audit, log)

	b, err := bot.New(ctx, bot.Config{
		Token:           cfg.Token,
		LPTimeout:       cfg.LPTimeout,
		Debug:           cfg.Debug,
		SessionCapacity: cfg.Cache.SessionCapacity,
		SessionTTL:      cfg.Cache.SessionTTL,
	}, roles, mod, m, log)
	if err != nil {
		return err
	}

	bc, err := notify.NewBroadcaster(ctx, b, modRepo, m, log, cfg.Notify.BroadcastWorkers)
	if err != nil {
		return err
	}
	b.SetBroadcaster(bc)

	loc, err := cfg.Notify.Location()
	if err != nil {
		return err
	}
	if _, err := notify.StartDigest(ctx, cfg.Notify.DigestCron, loc, stats, roles, b, m, log); err != nil {
		return err
	}

	if cfg.MetricsAddress != "" {
		startMetricsServer(ctx, cfg.MetricsAddress, m, log)
	}
	go publishCacheStats(ctx, m, roles, stats)

	log.Info("armory admin panel started", "debug", cfg.Debug)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch

	log.Info("shutting down")

	return nil
}

func configFiles() []string {
	if len(os.Args) > 1 {
		return os.Args[1:]
	}
	return nil
}

func startMetricsServer(ctx contem.Context, address string, m *metrics.Metrics, log *slog.Logger) {
	srv := &http.Server{
		Addr:              address,
		Handler:           promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx.Add(srv.Shutdown)
	lang.Go(log, func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", "error", err)
		}
	})
}

// publishCacheStats periodically mirrors the counters of every in-process
// cache into the metrics registry.
func publishCacheStats(ctx contem.Context, m *metrics.Metrics, roles *rbac.Manager, stats *moderation.StatsCache) {
	t := time.NewTicker(cacheStatsInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for name, st := range roles.CacheStats() {
				m.SetCacheStats(name, st)
			}
			for name, st := range stats.CacheStats() {
				m.SetCacheStats(name, st)
			}
		}
	}
}
