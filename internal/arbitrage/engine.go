package arbitrage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"triarb/internal/config"
	"triarb/internal/model"
)

// Executor places the orders of an opportunity.
type Executor interface {
	Execute(ctx context.Context, opp model.Opportunity) model.ExecutionResult
}

// Recorder is the audit trail the engine writes to.
type Recorder interface {
	Record(ctx context.Context, status model.Status, triangle string, profitPercent *float64, legPrices []float64, message string)
	RecordOpportunity(ctx context.Context, status model.Status, opp model.Opportunity, message string)
	RecordExecution(ctx context.Context, res model.ExecutionResult)
}

// TriangleResult is the tagged outcome of processing one triangle.
// Err is set (wrapping ErrMarketData) when the triangle was skipped.
type TriangleResult struct {
	Triangle    model.Triangle
	Evaluation  Evaluation
	Opportunity *model.Opportunity
	Execution   *model.ExecutionResult
	Err         error
}

// ArbitrageEngine evaluates triangles and hands forward opportunities to the executor.
type ArbitrageEngine struct {
	logger   *zap.Logger
	cfg      *config.Config
	fetcher  *BookFetcher
	executor Executor
	audit    Recorder
}

// NewArbitrageEngine creates a new instance of the ArbitrageEngine.
func NewArbitrageEngine(logger *zap.Logger, cfg *config.Config, fetcher *BookFetcher, executor Executor, audit Recorder) *ArbitrageEngine {
	return &ArbitrageEngine{
		logger:   logger.With(zap.String("component", "arbitrage")),
		cfg:      cfg,
		fetcher:  fetcher,
		executor: executor,
		audit:    audit,
	}
}

// ProcessTriangle runs fetch -> evaluate -> execute or log for one triangle.
// Orders are only placed when allowExecution is set and the forward route qualifies.
func (e *ArbitrageEngine) ProcessTriangle(ctx context.Context, tri model.Triangle, allowExecution bool) TriangleResult {
	result := TriangleResult{Triangle: tri}

	books, err := e.fetcher.FetchBooks(ctx, tri)
	if err != nil {
		result.Err = err
		// Fetches cut short by shutdown are not market data failures.
		if ctx.Err() != nil {
			return result
		}
		e.logger.Warn("Skipping triangle", zap.String("triangle", tri.String()), zap.Error(err))
		if errors.Is(err, ErrMarketData) {
			e.audit.Record(ctx, model.StatusMarketError, tri.String(), nil, nil, err.Error())
		}
		return result
	}

	eval := Evaluate(tri, books, e.cfg.Arbitrage.TakerFeeRate)
	result.Evaluation = eval
	e.logger.Debug("Triangle evaluated",
		zap.String("triangle", tri.String()),
		zap.Float64("forward", eval.Forward),
		zap.Float64("reverse", eval.Reverse),
	)

	opp, ok := eval.Opportunity(e.cfg.Arbitrage.MinProfitThreshold)
	if !ok {
		return result
	}
	result.Opportunity = &opp

	e.logger.Info("Profitable arbitrage opportunity found",
		zap.String("triangle", tri.String()),
		zap.String("direction", string(opp.Direction)),
		zap.Float64("profit_pct", opp.ProfitPercent()),
		zap.Float64s("leg_prices", opp.LegPrices[:]),
	)

	if rev, ok := eval.ReverseOpportunity(e.cfg.Arbitrage.MinProfitThreshold); ok && e.cfg.Audit.LogDetections {
		e.audit.RecordOpportunity(ctx, model.StatusReverseOpportunity, rev, "reverse route above threshold, not executed")
	}
	if opp.Direction == model.Reverse {
		return result
	}

	if e.cfg.Audit.LogDetections {
		e.audit.RecordOpportunity(ctx, model.StatusOpportunity, opp, fmt.Sprintf("forward route above threshold %v", e.cfg.Arbitrage.MinProfitThreshold))
	}
	if !allowExecution {
		return result
	}

	exec := e.executor.Execute(ctx, opp)
	result.Execution = &exec
	e.audit.RecordExecution(ctx, exec)
	return result
}
