package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"shortlink/internal/clicks"
	"shortlink/internal/config"
	"shortlink/internal/handler"
	"shortlink/internal/repository"
	"shortlink/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	if err := db.Ping(); err != nil {
		logger.Fatal("db ping", zap.Error(err))
	}

	repo := repository.NewRepo(db)
	if err := repo.Migrate(context.Background()); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	// Redis optional
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis ping failed, cache disabled", zap.Error(err))
			rdb = nil
		} else {
			logger.Info("redis connected", zap.String("addr", cfg.RedisAddr))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	accumulator := clicks.NewAccumulator(repo, logger.Named("clicks"), clicks.Options{
		QueueSize:  cfg.ClickQueueSize,
		Workers:    cfg.ClickWorkers,
		BatchSize:  cfg.ClickBatchSize,
		FlushEvery: cfg.ClickFlushInterval,
	})
	accumulator.Start(ctx)

	svc := service.NewService(repo, rdb, accumulator, logger.Named("service"))
	svc.CodeLength = cfg.CodeLength
	svc.Attempts = cfg.GenerateAttempts
	svc.SweepGrace = cfg.SweepGrace
	svc.EventRetention = cfg.EventRetention

	limiter := handler.NewSimpleRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst)
	h := handler.NewHandler(svc, cfg.BaseURL, cfg.AdminToken, limiter, logger.Named("http"))

	// Scheduled expiry sweep; the admin endpoint can trigger it on demand.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SweepSchedule, func() {
		sweepCtx, sweepCancel := context.WithTimeout(context.Background(), time.Minute)
		defer sweepCancel()
		if _, err := svc.Sweep(sweepCtx); err != nil {
			logger.Error("scheduled sweep failed", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("invalid sweep schedule", zap.String("schedule", cfg.SweepSchedule), zap.Error(err))
	}
	scheduler.Start()

	// CORS
	allowed := handlers.AllowedOrigins([]string{"*"})
	allowedHeaders := handlers.AllowedHeaders([]string{"Content-Type", "X-Admin-Token", "X-Owner-Id"})
	allowedMethods := handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handlers.CORS(allowed, allowedHeaders, allowedMethods)(h.Routes()),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// graceful shutdown
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	// Stop the accumulator and let it flush buffered clicks.
	cancel()
	accumulator.Wait()

	if rdb != nil {
		_ = rdb.Close()
	}
	_ = db.Close()
	logger.Info("server stopped")
}
