// Package scheduler drives the periodic scan over all discovered triangles.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"triarb/internal/arbitrage"
	"triarb/internal/config"
	"triarb/internal/exchange"
	"triarb/internal/market"
	"triarb/internal/model"
)

// ErrBalanceUnavailable is fatal: without a balance the engine must not trade.
var ErrBalanceUnavailable = errors.New("balance unavailable")

// TriangleProcessor handles one triangle within a pass.
type TriangleProcessor interface {
	ProcessTriangle(ctx context.Context, tri model.Triangle, allowExecution bool) arbitrage.TriangleResult
}

// Recorder receives pass-level audit entries.
type Recorder interface {
	Record(ctx context.Context, status model.Status, triangle string, profitPercent *float64, legPrices []float64, message string)
}

// PassReport summarises one scan pass.
type PassReport struct {
	Balance          float64
	ExecutionEnabled bool
	Triangles        int
	Evaluated        int
	MarketErrors     int
	Opportunities    int
	Executions       int
	Failures         int
	Duration         time.Duration
}

// Scheduler owns the registry and triangle set for the process lifetime.
type Scheduler struct {
	logger    *zap.Logger
	cfg       *config.Config
	client    exchange.ExchangeClient
	registry  *market.Registry
	triangles []model.Triangle
	processor TriangleProcessor
	audit     Recorder
}

// New creates a Scheduler.
func New(logger *zap.Logger, cfg *config.Config, client exchange.ExchangeClient, registry *market.Registry, triangles []model.Triangle, processor TriangleProcessor, audit Recorder) *Scheduler {
	return &Scheduler{
		logger:    logger.With(zap.String("component", "scheduler")),
		cfg:       cfg,
		client:    client,
		registry:  registry,
		triangles: triangles,
		processor: processor,
		audit:     audit,
	}
}

// Run executes a pass immediately and then one per interval until ctx is done.
// Passes never overlap: ticks that elapse while a pass runs are dropped and logged.
// It returns nil on cancellation and an error only for fatal conditions.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.cfg.Scheduler.ScanInterval()
	s.logger.Info("Scheduler started",
		zap.Int("triangles", len(s.triangles)),
		zap.Int("instruments", s.registry.Len()),
		zap.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		start := time.Now()
		report, err := s.RunPass(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.logReport(report)

		if elapsed := time.Since(start); elapsed > interval {
			s.logger.Warn("Scan pass overran interval, skipping missed ticks",
				zap.Duration("elapsed", elapsed),
				zap.Int64("skipped_ticks", int64(elapsed/interval)),
			)
			// discard the tick buffered during the pass
			select {
			case <-ticker.C:
			default:
			}
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunPass checks the quote balance and processes every triangle once.
func (s *Scheduler) RunPass(ctx context.Context) (PassReport, error) {
	start := time.Now()
	report := PassReport{Triangles: len(s.triangles)}

	quote := s.cfg.Arbitrage.QuoteCurrency
	capital := s.cfg.Arbitrage.CapitalAllocation

	balCtx, cancel := context.WithTimeout(ctx, s.cfg.Exchange.RequestTimeout())
	balances, err := s.client.FetchBalance(balCtx)
	cancel()
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrBalanceUnavailable, err)
	}
	report.Balance = balances[quote]
	report.ExecutionEnabled = report.Balance >= capital

	if !report.ExecutionEnabled {
		msg := fmt.Sprintf("%s balance %v below capital allocation %v, execution disabled for this pass", quote, report.Balance, capital)
		s.logger.Warn("Insufficient balance", zap.String("asset", quote), zap.Float64("balance", report.Balance), zap.Float64("capital", capital))
		s.audit.Record(ctx, model.StatusInsufficientFunds, "", nil, nil, msg)
	}

	delay := s.cfg.Scheduler.TriangleDelay()
	for i, tri := range s.triangles {
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				report.Duration = time.Since(start)
				return report, ctx.Err()
			case <-time.After(delay):
			}
		}
		if ctx.Err() != nil {
			report.Duration = time.Since(start)
			return report, ctx.Err()
		}

		res := s.processor.ProcessTriangle(ctx, tri, report.ExecutionEnabled)
		if res.Err != nil {
			report.MarketErrors++
			continue
		}
		report.Evaluated++
		if res.Opportunity != nil {
			report.Opportunities++
		}
		if res.Execution != nil {
			report.Executions++
			if res.Execution.Outcome != model.OutcomeSuccess {
				report.Failures++
			}
		}
	}

	report.Duration = time.Since(start)
	return report, nil
}

func (s *Scheduler) logReport(r PassReport) {
	s.logger.Info("Scan pass complete",
		zap.Float64("balance", r.Balance),
		zap.Bool("execution_enabled", r.ExecutionEnabled),
		zap.Int("triangles", r.Triangles),
		zap.Int("evaluated", r.Evaluated),
		zap.Int("market_errors", r.MarketErrors),
		zap.Int("opportunities", r.Opportunities),
		zap.Int("executions", r.Executions),
		zap.Int("failures", r.Failures),
		zap.Duration("duration", r.Duration),
	)
}
