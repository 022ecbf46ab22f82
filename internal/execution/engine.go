// Package execution places the three dependent market orders of a triangle and
// unwinds whatever is held when the sequence breaks.
package execution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"triarb/internal/config"
	"triarb/internal/exchange"
	"triarb/internal/model"
)

// State of one execution attempt.
type State string

const (
	StateInit         State = "INIT"
	StateLeg1Placed   State = "LEG1_PLACED"
	StateLeg2Placed   State = "LEG2_PLACED"
	StateLeg3Placed   State = "LEG3_PLACED"
	StateComplete     State = "COMPLETE"
	StateFailed       State = "FAILED"
	StateUnwound      State = "UNWOUND"
	StateUnwindFailed State = "UNWIND_FAILED"
)

var (
	// ErrSuspiciousFill is returned when an order response is outside expected bounds.
	ErrSuspiciousFill = errors.New("suspicious fill")
	// ErrBelowMinimum is returned when a rounded quantity is below the pair minimum.
	ErrBelowMinimum = errors.New("quantity below pair minimum")
	// ErrReverseRoute is returned for reverse opportunities, which are never executed.
	ErrReverseRoute = errors.New("reverse route is not executed")
)

// position is an asset that may be held mid-sequence and the market it is sold back on.
// Unconfirmed positions come from requests whose outcome is unknown; they are only
// sold when the balance shows the attempt added them.
type position struct {
	asset       string
	amount      float64
	market      model.Instrument
	unconfirmed bool
}

// Engine executes forward triangle opportunities one at a time.
type Engine struct {
	logger  *zap.Logger
	client  exchange.ExchangeClient
	cfg     config.ArbitrageConfig
	timeout time.Duration

	// serialises attempts against the shared quote balance
	mu sync.Mutex
}

// NewEngine creates an execution Engine.
func NewEngine(logger *zap.Logger, client exchange.ExchangeClient, cfg *config.Config) *Engine {
	return &Engine{
		logger:  logger.With(zap.String("component", "execution")),
		client:  client,
		cfg:     cfg.Arbitrage,
		timeout: cfg.Exchange.RequestTimeout(),
	}
}

// Execute runs INIT -> LEG1_PLACED -> LEG2_PLACED -> LEG3_PLACED -> COMPLETE.
// Each leg is sized from the amount actually received on the previous one. Any
// failure moves to FAILED and then unwinds whatever intermediate asset the
// account gained during the attempt back to the quote currency.
func (e *Engine) Execute(ctx context.Context, opp model.Opportunity) model.ExecutionResult {
	tri := opp.Triangle
	res := model.ExecutionResult{
		ID:             uuid.NewString(),
		Triangle:       tri,
		Direction:      opp.Direction,
		NetProfitRatio: opp.NetProfitRatio,
		LegPrices:      opp.LegPrices,
		FinalState:     string(StateInit),
	}
	if opp.Direction != model.Forward {
		res.Outcome = model.OutcomeSkipped
		res.Err = ErrReverseRoute
		return res
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	log := e.logger.With(zap.String("attempt", res.ID), zap.String("triangle", tri.String()))
	ask1, bid2, bid3 := opp.LegPrices[0], opp.LegPrices[1], opp.LegPrices[2]

	// Leg 1: buy ALT with the capital allocation.
	qty1 := exchange.AmountToPrecision(tri.Pair1, e.cfg.CapitalAllocation/ask1)
	if !exchange.MeetsMinimum(tri.Pair1, qty1) {
		res.Outcome = model.OutcomeSkipped
		res.Err = fmt.Errorf("leg 1 %s qty %v: %w", tri.Pair1.Symbol, qty1, ErrBelowMinimum)
		return res
	}

	// Once the first order is out, shutdown must not interrupt the sequence or its unwind.
	ctx = context.WithoutCancel(ctx)

	// Unwinds only sell what the attempt added on top of this snapshot.
	baseline, err := e.balances(ctx)
	if err != nil {
		log.Warn("Pre-trade balance unavailable, unconfirmed positions will not be unwound", zap.Error(err))
		baseline = nil
	}

	leg1, err := e.place(ctx, model.Buy, tri.Pair1, qty1)
	if err != nil {
		// A timed out request may still have been executed.
		return e.abort(ctx, log, res, StateInit, fmt.Errorf("leg 1: %w", err), baseline,
			position{asset: tri.Alt, amount: qty1, market: tri.Pair1, unconfirmed: true})
	}
	if err := e.checkFill(model.Buy, leg1, qty1, ask1); err != nil {
		alt := position{asset: tri.Alt, amount: executed(leg1, qty1), market: tri.Pair1}
		if alt.amount == 0 {
			alt.amount, alt.unconfirmed = qty1, true
		}
		return e.abort(ctx, log, res, StateInit, fmt.Errorf("leg 1: %w", err), baseline, alt)
	}
	res.FinalState = string(StateLeg1Placed)
	res.FillPrices = append(res.FillPrices, exchange.PriceToPrecision(tri.Pair1, leg1.AvgPrice))
	alt := position{asset: tri.Alt, amount: leg1.Received, market: tri.Pair1}

	// Leg 2: sell the ALT actually received for BRIDGE.
	qty2 := exchange.AmountToPrecision(tri.Pair2, leg1.Received)
	bridgeBound := qty2 * bid2 * (1 + e.cfg.PriceTolerance)
	if !exchange.MeetsMinimum(tri.Pair2, qty2) {
		return e.abort(ctx, log, res, StateLeg1Placed, fmt.Errorf("leg 2 %s qty %v: %w", tri.Pair2.Symbol, qty2, ErrBelowMinimum), baseline, alt)
	}
	leg2, err := e.place(ctx, model.Sell, tri.Pair2, qty2)
	if err != nil {
		return e.abort(ctx, log, res, StateLeg1Placed, fmt.Errorf("leg 2: %w", err), baseline,
			alt, position{asset: tri.Bridge, amount: bridgeBound, market: tri.Pair3, unconfirmed: true})
	}
	if err := e.checkFill(model.Sell, leg2, qty2, bid2); err != nil {
		// Unwind the unsold ALT and whatever BRIDGE the executed part produced.
		sold := executed(leg2, qty2)
		held := []position{{asset: tri.Alt, amount: leg1.Received - sold, market: tri.Pair1}}
		if sold > 0 {
			held = append(held, position{asset: tri.Bridge, amount: sold * bid2 * (1 + e.cfg.PriceTolerance), market: tri.Pair3})
		}
		return e.abort(ctx, log, res, StateLeg1Placed, fmt.Errorf("leg 2: %w", err), baseline, held...)
	}
	res.FinalState = string(StateLeg2Placed)
	res.FillPrices = append(res.FillPrices, exchange.PriceToPrecision(tri.Pair2, leg2.AvgPrice))
	bridge := position{asset: tri.Bridge, amount: leg2.Received, market: tri.Pair3}

	// Leg 3: sell the BRIDGE actually received for QUOTE.
	qty3 := exchange.AmountToPrecision(tri.Pair3, leg2.Received)
	if !exchange.MeetsMinimum(tri.Pair3, qty3) {
		return e.abort(ctx, log, res, StateLeg2Placed, fmt.Errorf("leg 3 %s qty %v: %w", tri.Pair3.Symbol, qty3, ErrBelowMinimum), baseline, bridge)
	}
	leg3, err := e.place(ctx, model.Sell, tri.Pair3, qty3)
	if err != nil {
		return e.abort(ctx, log, res, StateLeg2Placed, fmt.Errorf("leg 3: %w", err), baseline, bridge)
	}
	if err := e.checkFill(model.Sell, leg3, qty3, bid3); err != nil {
		// Proceeds are already quote currency; only the unsold BRIDGE is still held.
		bridge.amount = leg2.Received - executed(leg3, qty3)
		return e.abort(ctx, log, res, StateLeg2Placed, fmt.Errorf("leg 3: %w", err), baseline, bridge)
	}
	res.FinalState = string(StateLeg3Placed)
	res.FillPrices = append(res.FillPrices, exchange.PriceToPrecision(tri.Pair3, leg3.AvgPrice))
	res.Outcome = model.OutcomeSuccess
	res.FinalState = string(StateComplete)
	res.FinalAmount = leg3.Received

	// Partial fills on legs 2 and 3 leave residues that no later leg consumes.
	alt.amount = leg1.Received - executed(leg2, qty2)
	bridge.amount = leg2.Received - executed(leg3, qty3)
	if residue := e.exposure(ctx, log, baseline, []position{alt, bridge}); len(residue) > 0 {
		res.UnwindAttempted = true
		recovered, uerr := e.unwind(ctx, log, residue)
		res.UnwindAmount = recovered
		res.FinalAmount += recovered
		if uerr != nil {
			res.Outcome = model.OutcomePartialFailure
			res.FinalState = string(StateUnwindFailed)
			res.Err = errors.New("residual position left after partial fills")
			res.UnwindErr = uerr
			log.Error("Residual unwind failed", zap.Error(uerr))
			return res
		}
	}

	log.Info("Triangle executed",
		zap.Float64("capital", e.cfg.CapitalAllocation),
		zap.Float64("final_amount", res.FinalAmount),
		zap.Float64("realized_pnl", res.FinalAmount-e.cfg.CapitalAllocation),
	)
	return res
}

// abort records a failure reached from state and unwinds whatever of held the
// balance shows is actually there. Nothing held after leg 1 is a plain failure.
func (e *Engine) abort(ctx context.Context, log *zap.Logger, res model.ExecutionResult, state State, err error, baseline map[string]float64, held ...position) model.ExecutionResult {
	res.Err = err
	res.FinalState = string(StateFailed)
	res.Outcome = model.OutcomePartialFailure
	if state == StateInit {
		res.Outcome = model.OutcomeFailed
	}
	log.Error("Execution failed", zap.String("state", string(state)), zap.Error(err))

	positions := e.exposure(ctx, log, baseline, held)
	if len(positions) == 0 {
		log.Warn("No intermediate position to unwind", zap.String("state", string(state)))
		return res
	}

	res.Outcome = model.OutcomePartialFailure
	res.UnwindAttempted = true
	recovered, uerr := e.unwind(ctx, log, positions)
	res.UnwindAmount = recovered
	if uerr != nil {
		res.FinalState = string(StateUnwindFailed)
		res.UnwindErr = uerr
		log.Error("Unwind failed, position left open", zap.Error(uerr))
		return res
	}
	res.FinalState = string(StateUnwound)
	log.Warn("Position unwound", zap.Float64("recovered", recovered))
	return res
}

// exposure sizes each held position by the balance gained since baseline, capped at
// the expected amount. Without a current balance the expected amount is used and
// unconfirmed positions are dropped, as they are without a baseline.
func (e *Engine) exposure(ctx context.Context, log *zap.Logger, baseline map[string]float64, held []position) []position {
	candidates := make([]position, 0, len(held))
	for _, p := range held {
		if p.unconfirmed && baseline == nil {
			continue
		}
		if exchange.MeetsMinimum(p.market, exchange.AmountToPrecision(p.market, p.amount)) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	balances, err := e.balances(ctx)
	if err != nil {
		log.Warn("Balance unavailable for unwind, using expected amounts", zap.Error(err))
	}

	positions := candidates[:0]
	for _, p := range candidates {
		if err != nil {
			if p.unconfirmed {
				continue
			}
		} else {
			p.amount = math.Min(p.amount, balances[p.asset]-baseline[p.asset])
		}
		qty := exchange.AmountToPrecision(p.market, p.amount)
		if !exchange.MeetsMinimum(p.market, qty) {
			log.Info("Nothing to unwind", zap.String("asset", p.asset), zap.Float64("amount", p.amount))
			continue
		}
		p.amount = qty
		positions = append(positions, p)
	}
	return positions
}

// unwind sells every position back to the quote currency and returns the total recovered.
func (e *Engine) unwind(ctx context.Context, log *zap.Logger, positions []position) (float64, error) {
	var recovered float64
	var errs []error
	for _, p := range positions {
		r, err := e.place(ctx, model.Sell, p.market, p.amount)
		if err != nil {
			errs = append(errs, fmt.Errorf("unwind %s %v: %w", p.market.Symbol, p.amount, err))
			continue
		}
		log.Info("Unwind order filled", zap.String("asset", p.asset), zap.Float64("amount", p.amount), zap.Float64("received", r.Received))
		recovered += r.Received
	}
	return recovered, errors.Join(errs...)
}

func (e *Engine) balances(ctx context.Context) (map[string]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.client.FetchBalance(ctx)
}

func (e *Engine) place(ctx context.Context, side model.Side, inst model.Instrument, qty float64) (model.OrderResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if side == model.Buy {
		return e.client.CreateMarketBuyOrder(ctx, inst.Symbol, qty)
	}
	return e.client.CreateMarketSellOrder(ctx, inst.Symbol, qty)
}

// checkFill rejects order responses that cannot be trusted to size the next leg.
func (e *Engine) checkFill(side model.Side, r model.OrderResult, requested, quoted float64) error {
	switch {
	case !validAmount(r.Filled) || r.Filled <= 0:
		return fmt.Errorf("%w: filled %v", ErrSuspiciousFill, r.Filled)
	case r.Filled > requested*(1+e.cfg.FillTolerance):
		return fmt.Errorf("%w: filled %v exceeds requested %v", ErrSuspiciousFill, r.Filled, requested)
	case !validAmount(r.Received) || r.Received <= 0:
		return fmt.Errorf("%w: received %v", ErrSuspiciousFill, r.Received)
	}

	if side == model.Buy {
		if r.Received > r.Filled*(1+e.cfg.FillTolerance) {
			return fmt.Errorf("%w: received %v exceeds filled %v", ErrSuspiciousFill, r.Received, r.Filled)
		}
		return nil
	}
	if limit := r.Filled * quoted * (1 + e.cfg.PriceTolerance); r.Received > limit {
		return fmt.Errorf("%w: proceeds %v exceed %v at quoted %v", ErrSuspiciousFill, r.Received, limit, quoted)
	}
	return nil
}

// executed is the reported fill clamped to [0, requested].
func executed(r model.OrderResult, requested float64) float64 {
	if !validAmount(r.Filled) || r.Filled <= 0 {
		return 0
	}
	return math.Min(r.Filled, requested)
}

func validAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
