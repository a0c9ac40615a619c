package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/conversation-scheduler/internal/api"
	"github.com/LeventeLantos/conversation-scheduler/internal/cache"
	"github.com/LeventeLantos/conversation-scheduler/internal/client"
	"github.com/LeventeLantos/conversation-scheduler/internal/config"
	"github.com/LeventeLantos/conversation-scheduler/internal/engine"
	"github.com/LeventeLantos/conversation-scheduler/internal/service"
	"github.com/LeventeLantos/conversation-scheduler/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("conversation-scheduler starting",
		"addr", cfg.Server.Address,
		"max_concurrent", cfg.Engine.MaxConcurrent,
		"sweep_interval", cfg.Sweep.Interval.String(),
		"redis", cfg.Redis.Enabled,
	)

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		slog.Error("failed to open postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		slog.Error("failed to ping postgres", "error", err)
		os.Exit(1)
	}
	cancelPing()

	st := store.NewPostgresStore(db)
	dc := client.NewHTTPDeliveryClient(cfg.Delivery.Timeout)

	var ctrl *service.Controller
	eng, err := engine.New(func(ctx context.Context, id string) {
		_ = ctrl.Execute(ctx, id)
	}, int64(cfg.Engine.MaxConcurrent))
	if err != nil {
		slog.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	ctrl = service.NewController(st, eng, dc)

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		ctrl.WithOutcomeCache(cache.NewRedisCache(rdb, cfg.Redis.TTL))
	}

	eng.Start()
	defer eng.Stop()

	// Re-arm whatever was scheduled before the restart.
	rearmCtx, cancelRearm := context.WithTimeout(context.Background(), 30*time.Second)
	if n, err := ctrl.Rearm(rearmCtx, cfg.Sweep.Horizon); err != nil {
		slog.Error("startup re-arm failed", "error", err)
	} else {
		slog.Info("startup re-arm completed", "armed", n)
	}
	cancelRearm()

	sweeper, err := service.NewSweeper(ctrl, cfg.Sweep.Interval, cfg.Sweep.Horizon, cfg.Sweep.StaleAfter)
	if err != nil {
		slog.Error("failed to create sweeper", "error", err)
		os.Exit(1)
	}
	sweeper.Start()
	defer sweeper.Stop()

	handler := api.NewHandler(ctrl, eng)
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: loggingMiddleware(api.Router(handler)),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
