// Package exchangetest provides a testify mock of exchange.ExchangeClient.
package exchangetest

import (
	"context"

	"github.com/stretchr/testify/mock"
	"triarb/internal/model"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) GetName() string {
	return "mock"
}

func (m *MockClient) LoadMarkets(ctx context.Context) ([]model.Instrument, error) {
	args := m.Called(ctx)
	instruments, _ := args.Get(0).([]model.Instrument)
	return instruments, args.Error(1)
}

func (m *MockClient) FetchOrderBook(ctx context.Context, symbol string) (model.OrderBook, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(model.OrderBook), args.Error(1)
}

func (m *MockClient) FetchBalance(ctx context.Context) (map[string]float64, error) {
	args := m.Called(ctx)
	balances, _ := args.Get(0).(map[string]float64)
	return balances, args.Error(1)
}

func (m *MockClient) CreateMarketBuyOrder(ctx context.Context, symbol string, amount float64) (model.OrderResult, error) {
	args := m.Called(ctx, symbol, amount)
	return args.Get(0).(model.OrderResult), args.Error(1)
}

func (m *MockClient) CreateMarketSellOrder(ctx context.Context, symbol string, amount float64) (model.OrderResult, error) {
	args := m.Called(ctx, symbol, amount)
	return args.Get(0).(model.OrderResult), args.Error(1)
}
