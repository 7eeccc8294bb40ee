package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"terrarun/internal/jwttoken"
	"terrarun/internal/platform/config"
	"terrarun/internal/platform/httpserver"
	"terrarun/internal/platform/logger"
	"terrarun/internal/platform/metrics"
	"terrarun/internal/platform/middleware"
	"terrarun/internal/platform/postgres"
	platformredis "terrarun/internal/platform/redis"
	"terrarun/internal/realtime"
	"terrarun/internal/season"
	"terrarun/internal/stats"
	"terrarun/internal/territory/decay"
	territoryhandler "terrarun/internal/territory/handler"
	"terrarun/internal/territory/service"
	"terrarun/internal/territory/store"
	"terrarun/pkg/httputil"
)

// main builds the dependency graph explicitly and keeps lifecycle concerns
// here. Business logic lives in the internal packages.
func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}

	var territoryStore store.Store
	if db != nil {
		defer db.Close()
		pg := store.NewPostgres(db)
		if err := pg.Migrate(ctx); err != nil {
			log.Error("postgres migration failed", "error", err)
			os.Exit(1)
		}
		territoryStore = pg
		log.Info("territory store: postgres")
	} else {
		territoryStore = store.NewMemory()
		log.Warn("DATABASE_URL not set, using in-memory territory store")
	}

	cache, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if cache.Enabled() {
		defer cache.Close()
		log.Info("redis cache enabled")
	} else {
		log.Warn("REDIS_URL not set, caching and version counters disabled")
	}

	tokens := jwttoken.NewService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	validator := jwttoken.NewMiddlewareAdapter(tokens)

	hub := realtime.NewHub(log, m)
	replay := realtime.NewReplayBuffer(cfg.ReplayBufferSize)
	events := realtime.NewEvents(hub, replay, cfg.CoalesceWindow, m)
	defer events.Close()

	recorder := stats.NewMemory()
	decayModel := decay.Model{GraceDays: cfg.DecayGraceDays, PerDay: cfg.DecayPerDay}

	territories := service.New(
		territoryStore,
		decayModel,
		cache,
		cfg.CacheTTL,
		recorder,
		events,
		cfg.SnapshotHardLimit,
		log,
		m,
	)

	snapshotter := realtime.NewSnapshotter(territories, realtime.SnapshotConfig{
		MinRadiusKm: cfg.SnapshotMinRadiusKm,
		MaxRadiusKm: cfg.SnapshotMaxRadiusKm,
		BatchMin:    cfg.SnapshotBatchMin,
		BatchMax:    cfg.SnapshotBatchMax,
		BatchPause:  cfg.SnapshotBatchPause,
		RadiusPause: cfg.SnapshotRadiusPause,
	}, log, m)

	gateway := realtime.NewGateway(hub, replay, snapshotter, validator, log, m)

	rotator := season.NewRotator(cfg.SeasonEpoch, cfg.SeasonLengthWeeks, territoryStore, cache, service.VersionKey, log, m)
	if _, _, err := rotator.EnsureRotation(ctx, time.Now()); err != nil {
		log.Error("season check failed at startup", "error", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logger(log))

	router.Get("/healthz", healthHandler(db, cache))
	router.Handle("/metrics", promhttp.Handler())
	router.Handle("/ws", gateway)

	authRequired := middleware.RequireAuth(validator, log)
	territoryhandler.New(territories, authRequired, log).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		rotator.Run(gctx, cfg.SeasonCheckEvery)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func healthHandler(db *sql.DB, cache *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		body := map[string]string{"status": "ok"}
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				body["status"] = "degraded"
				body["postgres"] = err.Error()
			}
		}
		if cache.Enabled() {
			if err := cache.Health(ctx); err != nil {
				body["status"] = "degraded"
				body["redis"] = err.Error()
			}
		}
		status := http.StatusOK
		if body["status"] != "ok" {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, body)
	}
}
