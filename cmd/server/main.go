package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	webAdapter "procurement-recon/internal/adapters/web"
	"procurement-recon/internal/ai"
	"procurement-recon/internal/app"
	"procurement-recon/internal/config"
	"procurement-recon/internal/core"
	"procurement-recon/internal/db"
	"procurement-recon/internal/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog := logger.New(&cfg.Log)
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		zlog.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	locker, closeLocker, err := newLocker(ctx, cfg.Redis, zlog)
	if err != nil {
		zlog.Fatal("redis", zap.Error(err))
	}
	defer closeLocker()

	var extractor ai.Extractor
	if cfg.OpenAI.APIKey != "" {
		extractor = ai.NewInvoiceExtractor(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	} else {
		zlog.Warn("OPENAI_API_KEY is not set; invoice intake is disabled")
	}

	ledger := core.NewOrderLedger(pool)
	engine := core.NewEngine(core.Tolerance{UnitPrice: cfg.Recon.PriceTolerance})
	svc := app.NewAppService(ledger, engine, locker, extractor, cfg.ApprovalMatrix, zlog)

	handler := webAdapter.NewHandler(svc, cfg.HTTP.AllowedOrigins, cfg.JWT.Secret, cfg.HTTP.MaxBodyBytes, zlog)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("shutdown", zap.Error(err))
	}
}

// newLocker returns the Redis order locker, or the no-op locker when Redis is
// not configured.
func newLocker(ctx context.Context, cfg config.RedisConfig, zlog *zap.Logger) (db.OrderLocker, func(), error) {
	if cfg.Address == "" {
		zlog.Warn("REDIS_ADDRESS is not set; order operations are not locked, " +
			"only the ledger's conditional decision update prevents double decisions")
		return db.NoopLocker(), func() {}, nil
	}
	client, err := db.NewRedisClient(ctx, cfg.Address, cfg.Password, cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	return db.NewOrderLocker(client, zlog), func() { _ = client.Close() }, nil
}
