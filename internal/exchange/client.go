package exchange

import (
	"context"
	"errors"

	"triarb/internal/model"
)

// ErrExchangeUnavailable is returned when the exchange cannot serve a request.
var ErrExchangeUnavailable = errors.New("exchange unavailable")

// ErrOrderNotFilled is returned when the exchange accepted an order but executed none of it.
var ErrOrderNotFilled = errors.New("order not filled")

// ExchangeClient defines the capability set the engine needs from a spot exchange.
// Symbols are in unified BASE/QUOTE form.
type ExchangeClient interface {
	GetName() string
	LoadMarkets(ctx context.Context) ([]model.Instrument, error)
	FetchOrderBook(ctx context.Context, symbol string) (model.OrderBook, error)
	// FetchBalance returns free balances keyed by asset.
	FetchBalance(ctx context.Context) (map[string]float64, error)
	CreateMarketBuyOrder(ctx context.Context, symbol string, amount float64) (model.OrderResult, error)
	CreateMarketSellOrder(ctx context.Context, symbol string, amount float64) (model.OrderResult, error)
}
