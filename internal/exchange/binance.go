package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"triarb/internal/config"
	"triarb/internal/model"
)

// BinanceClient implements the ExchangeClient interface for Binance spot.
type BinanceClient struct {
	logger *zap.Logger
	api    *binance.Client
}

// NewBinanceClient creates a new BinanceClient.
func NewBinanceClient(logger *zap.Logger, cfg *config.ExchangeConfig) *BinanceClient {
	// The SDK selects its endpoints from a package-level switch.
	binance.UseTestnet = cfg.Testnet
	return &BinanceClient{
		logger: logger.With(zap.String("component", "binance")),
		api:    binance.NewClient(cfg.APIKey, cfg.APISecret),
	}
}

func (b *BinanceClient) GetName() string {
	return "binance"
}

// LoadMarkets fetches exchange info and maps every symbol with its lot and price filters.
func (b *BinanceClient) LoadMarkets(ctx context.Context) ([]model.Instrument, error) {
	info, err := b.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: exchange info: %w", ErrExchangeUnavailable, err)
	}

	instruments := make([]model.Instrument, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		inst := model.Instrument{
			Symbol: JoinSymbol(s.BaseAsset, s.QuoteAsset),
			Base:   s.BaseAsset,
			Quote:  s.QuoteAsset,
			Spot:   s.IsSpotTradingAllowed,
			Active: s.Status == string(binance.SymbolStatusTypeTrading),
		}
		if lot := s.LotSizeFilter(); lot != nil {
			inst.AmountStep = parseDecimal(lot.StepSize)
			inst.MinAmount = parseDecimal(lot.MinQuantity)
		}
		if pf := s.PriceFilter(); pf != nil {
			inst.PriceStep = parseDecimal(pf.TickSize)
		}
		instruments = append(instruments, inst)
	}

	b.logger.Info("markets loaded", zap.Int("symbols", len(instruments)))
	return instruments, nil
}

// FetchOrderBook returns the best bid and ask for symbol.
func (b *BinanceClient) FetchOrderBook(ctx context.Context, symbol string) (model.OrderBook, error) {
	res, err := b.api.NewDepthService().Symbol(marketID(symbol)).Limit(5).Do(ctx)
	if err != nil {
		return model.OrderBook{}, fmt.Errorf("depth %s: %w", symbol, err)
	}
	book := model.OrderBook{Symbol: symbol, Timestamp: time.Now()}
	if len(res.Bids) > 0 {
		book.Bid, _ = strconv.ParseFloat(res.Bids[0].Price, 64)
	}
	if len(res.Asks) > 0 {
		book.Ask, _ = strconv.ParseFloat(res.Asks[0].Price, 64)
	}
	return book, nil
}

// FetchBalance returns the free balance of every asset.
func (b *BinanceClient) FetchBalance(ctx context.Context) (map[string]float64, error) {
	acc, err := b.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: account: %w", ErrExchangeUnavailable, err)
	}
	balances := make(map[string]float64, len(acc.Balances))
	for _, bal := range acc.Balances {
		free, err := strconv.ParseFloat(bal.Free, 64)
		if err != nil {
			b.logger.Warn("failed to parse balance", zap.String("asset", bal.Asset), zap.Error(err))
			continue
		}
		balances[bal.Asset] = free
	}
	return balances, nil
}

func (b *BinanceClient) CreateMarketBuyOrder(ctx context.Context, symbol string, amount float64) (model.OrderResult, error) {
	return b.createMarketOrder(ctx, symbol, binance.SideTypeBuy, amount)
}

func (b *BinanceClient) CreateMarketSellOrder(ctx context.Context, symbol string, amount float64) (model.OrderResult, error) {
	return b.createMarketOrder(ctx, symbol, binance.SideTypeSell, amount)
}

func (b *BinanceClient) createMarketOrder(ctx context.Context, symbol string, side binance.SideType, amount float64) (model.OrderResult, error) {
	base, quote, ok := SplitSymbol(symbol)
	if !ok {
		return model.OrderResult{}, fmt.Errorf("invalid symbol %q", symbol)
	}
	clientID := uuid.NewString()

	res, err := b.api.NewCreateOrderService().
		Symbol(marketID(symbol)).
		Side(side).
		Type(binance.OrderTypeMarket).
		Quantity(decimal.NewFromFloat(amount).String()).
		NewClientOrderID(clientID).
		NewOrderRespType(binance.NewOrderRespTypeFULL).
		Do(ctx)
	if err != nil {
		return model.OrderResult{}, fmt.Errorf("market %s %s %v: %w", strings.ToLower(string(side)), symbol, amount, err)
	}

	filled := parseDecimal(res.ExecutedQuantity)
	cost := parseDecimal(res.CummulativeQuoteQuantity)
	if !filled.IsPositive() && terminalUnfilled(res.Status) {
		return model.OrderResult{}, fmt.Errorf("market %s %s %v: %w: status %s", strings.ToLower(string(side)), symbol, amount, ErrOrderNotFilled, res.Status)
	}

	// Commission is charged in the acquired asset unless paid with a third asset.
	acquired, received := base, filled
	if side == binance.SideTypeSell {
		acquired, received = quote, cost
	}
	for _, fill := range res.Fills {
		if fill.CommissionAsset == acquired {
			received = received.Sub(parseDecimal(fill.Commission))
		}
	}

	result := model.OrderResult{
		ID:        strconv.FormatInt(res.OrderID, 10),
		Symbol:    symbol,
		Side:      model.Buy,
		Requested: amount,
		Filled:    filled.InexactFloat64(),
		Cost:      cost.InexactFloat64(),
		Received:  received.InexactFloat64(),
	}
	if side == binance.SideTypeSell {
		result.Side = model.Sell
	}
	if filled.IsPositive() {
		result.AvgPrice = cost.Div(filled).InexactFloat64()
	}

	b.logger.Info("market order filled",
		zap.String("symbol", symbol),
		zap.String("side", string(result.Side)),
		zap.String("client_id", clientID),
		zap.String("status", string(res.Status)),
		zap.Float64("filled", result.Filled),
		zap.Float64("received", result.Received),
	)
	return result, nil
}

// terminalUnfilled reports statuses after which an order with no fills will never fill.
func terminalUnfilled(status binance.OrderStatusType) bool {
	switch status {
	case binance.OrderStatusTypeExpired, binance.OrderStatusTypeRejected, binance.OrderStatusTypeCanceled:
		return true
	}
	return false
}

// marketID converts a unified symbol into Binance's concatenated form.
func marketID(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
