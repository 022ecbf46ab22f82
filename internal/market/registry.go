package market

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"triarb/internal/exchange"
	"triarb/internal/model"
)

// Registry holds the instrument set loaded for a scan session.
type Registry struct {
	instruments map[string]model.Instrument
}

// LoadInstruments fetches the tradable instrument set from the exchange.
// Any failure is reported as exchange.ErrExchangeUnavailable.
func LoadInstruments(ctx context.Context, logger *zap.Logger, client exchange.ExchangeClient, timeout time.Duration) (*Registry, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	instruments, err := client.LoadMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load markets from %s: %w", exchange.ErrExchangeUnavailable, client.GetName(), err)
	}

	r := NewRegistry(instruments)
	logger.Info("instrument registry loaded",
		zap.String("exchange", client.GetName()),
		zap.Int("instruments", len(instruments)),
		zap.Int("tradable", r.Len()),
	)
	return r, nil
}

// NewRegistry indexes the tradable instruments by symbol.
func NewRegistry(instruments []model.Instrument) *Registry {
	r := &Registry{instruments: make(map[string]model.Instrument, len(instruments))}
	for _, inst := range instruments {
		if inst.Tradable() {
			r.instruments[inst.Symbol] = inst
		}
	}
	return r
}

// Lookup returns the instrument for a unified symbol.
func (r *Registry) Lookup(symbol string) (model.Instrument, bool) {
	inst, ok := r.instruments[symbol]
	return inst, ok
}

func (r *Registry) Len() int {
	return len(r.instruments)
}

// Bases returns the distinct base assets of the registry.
func (r *Registry) Bases() []string {
	seen := make(map[string]struct{})
	bases := make([]string, 0)
	for _, inst := range r.instruments {
		if _, ok := seen[inst.Base]; ok {
			continue
		}
		seen[inst.Base] = struct{}{}
		bases = append(bases, inst.Base)
	}
	return bases
}
