// Package audit records every detection and execution outcome to append-only sinks.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
	"triarb/internal/model"
)

// Sink is an append-only destination for audit records.
type Sink interface {
	Append(ctx context.Context, rec model.AuditRecord) error
	Close() error
}

// Logger fans audit records out to its sinks. It never returns errors to callers.
type Logger struct {
	logger *zap.Logger
	sinks  []Sink
	now    func() time.Time
}

// NewLogger creates a Logger writing to the given sinks.
func NewLogger(logger *zap.Logger, sinks ...Sink) *Logger {
	return &Logger{
		logger: logger.With(zap.String("component", "audit")),
		sinks:  sinks,
		now:    time.Now,
	}
}

// Record appends one audit entry. profitPercent may be nil when no profit applies.
func (l *Logger) Record(ctx context.Context, status model.Status, triangle string, profitPercent *float64, legPrices []float64, message string) {
	rec := model.AuditRecord{
		Timestamp:     l.now().UTC(),
		Status:        status,
		Triangle:      triangle,
		ProfitPercent: profitPercent,
		LegPrices:     legPrices,
		Message:       message,
	}

	for _, sink := range l.sinks {
		if err := sink.Append(ctx, rec); err != nil {
			l.logger.Error("Failed to append audit record", zap.String("status", string(status)), zap.Error(err))
		}
	}
}

// RecordOpportunity logs a detected opportunity.
func (l *Logger) RecordOpportunity(ctx context.Context, status model.Status, opp model.Opportunity, message string) {
	pct := opp.ProfitPercent()
	l.Record(ctx, status, opp.Triangle.String(), &pct, opp.LegPrices[:], message)
}

// RecordExecution logs an execution result and, when a position was unwound, the unwind outcome.
func (l *Logger) RecordExecution(ctx context.Context, res model.ExecutionResult) {
	pct := res.NetProfitRatio * 100
	tri := res.Triangle.String()

	switch res.Outcome {
	case model.OutcomeSuccess:
		l.Record(ctx, model.StatusSuccess, tri, &pct, res.LegPrices[:],
			"final amount "+formatFloat(res.FinalAmount)+" fills "+formatPrices(res.FillPrices))
		if res.UnwindAttempted {
			l.Record(ctx, model.StatusUnwindOK, tri, nil, res.LegPrices[:],
				"residue recovered "+formatFloat(res.UnwindAmount)+" "+res.Triangle.Quote)
		}
		return
	case model.OutcomeSkipped:
		l.Record(ctx, model.StatusSkipped, tri, &pct, res.LegPrices[:], res.ErrorDetail())
		return
	}

	l.Record(ctx, model.StatusExecutionFailure, tri, &pct, res.LegPrices[:],
		"state "+res.FinalState+": "+res.ErrorDetail())

	if !res.UnwindAttempted {
		return
	}
	if res.UnwindErr != nil {
		l.Record(ctx, model.StatusUnwindFailure, tri, nil, res.LegPrices[:], res.UnwindErr.Error())
		return
	}
	l.Record(ctx, model.StatusUnwindOK, tri, nil, res.LegPrices[:],
		"recovered "+formatFloat(res.UnwindAmount)+" "+res.Triangle.Quote)
}

// Close closes every sink.
func (l *Logger) Close() {
	for _, sink := range l.sinks {
		if err := sink.Close(); err != nil {
			l.logger.Warn("Failed to close audit sink", zap.Error(err))
		}
	}
}
