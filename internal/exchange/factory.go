package exchange

import (
	"fmt"

	"go.uber.org/zap"
	"triarb/internal/config"
)

// NewClient creates a new exchange client based on the given name and configuration.
func NewClient(name string, logger *zap.Logger, cfg *config.ExchangeConfig) (ExchangeClient, error) {
	switch name {
	case "binance":
		return NewBinanceClient(logger, cfg), nil
	default:
		return nil, fmt.Errorf("unknown exchange: %s", name)
	}
}
