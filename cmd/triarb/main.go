package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"triarb/internal/arbitrage"
	"triarb/internal/audit"
	"triarb/internal/config"
	"triarb/internal/database"
	"triarb/internal/exchange"
	"triarb/internal/execution"
	"triarb/internal/logging"
	"triarb/internal/market"
	"triarb/internal/scheduler"
)

func main() {
	var configDir string
	flag.StringVar(&configDir, "config", ".", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger, &cfg); err != nil {
		logger.Error("Engine stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := exchange.NewClient(cfg.Exchange.Name, logger, &cfg.Exchange)
	if err != nil {
		return err
	}

	registry, err := market.LoadInstruments(ctx, logger, client, cfg.Exchange.RequestTimeout())
	if err != nil {
		return err
	}

	a := cfg.Arbitrage
	triangles, err := market.DiscoverTriangles(registry, a.QuoteCurrency, a.BridgeAsset, a.ExcludedBases)
	if err != nil {
		return fmt.Errorf("discover %s/%s triangles: %w", a.BridgeAsset, a.QuoteCurrency, err)
	}
	logger.Info("Triangles discovered",
		zap.Int("count", len(triangles)),
		zap.String("quote", a.QuoteCurrency),
		zap.String("bridge", a.BridgeAsset),
	)

	sinks, err := auditSinks(ctx, logger, cfg)
	if err != nil {
		return err
	}
	auditLog := audit.NewLogger(logger, sinks...)
	defer auditLog.Close()

	engine := arbitrage.NewArbitrageEngine(
		logger,
		cfg,
		arbitrage.NewBookFetcher(client, cfg.Exchange.RequestTimeout()),
		execution.NewEngine(logger, client, cfg),
		auditLog,
	)

	return scheduler.New(logger, cfg, client, registry, triangles, engine, auditLog).Run(ctx)
}

func auditSinks(ctx context.Context, logger *zap.Logger, cfg *config.Config) ([]audit.Sink, error) {
	csvSink, err := audit.NewCSVSink(cfg.Audit.CSVPath)
	if err != nil {
		return nil, err
	}
	sinks := []audit.Sink{csvSink}

	if cfg.Audit.PostgresDSN == "" {
		return sinks, nil
	}
	repo, err := database.NewPostgresRepository(ctx, cfg.Audit.PostgresDSN)
	if err != nil {
		csvSink.Close()
		return nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		repo.Close()
		csvSink.Close()
		return nil, err
	}
	logger.Info("Postgres audit mirror enabled")
	return append(sinks, repo), nil
}
