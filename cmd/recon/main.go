package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"procurement-recon/internal/adapters/cli"
	"procurement-recon/internal/app"
	"procurement-recon/internal/config"
	"procurement-recon/internal/core"
	"procurement-recon/internal/db"
	"procurement-recon/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, cli.Usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// Logs go to stderr so stdout carries only command output.
	logCfg := cfg.Log
	logCfg.Output = "stderr"
	zlog := logger.New(&logCfg)
	defer func() { _ = zlog.Sync() }()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	locker := db.NoopLocker()
	if cfg.Redis.Address != "" {
		client, err := db.NewRedisClient(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Unable to connect to redis: %v", err)
		}
		defer client.Close()
		locker = db.NewOrderLocker(client, zlog)
	}

	ledger := core.NewOrderLedger(pool)
	engine := core.NewEngine(core.Tolerance{UnitPrice: cfg.Recon.PriceTolerance})
	svc := app.NewAppService(ledger, engine, locker, nil, cfg.ApprovalMatrix, zlog)

	if err := cli.Run(ctx, svc, os.Args[1:], os.Stdout); err != nil {
		_ = zlog.Sync()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
