package arbitrage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"triarb/internal/config"
	"triarb/internal/exchange/exchangetest"
	"triarb/internal/model"
)

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, opp model.Opportunity) model.ExecutionResult {
	args := m.Called(ctx, opp)
	return args.Get(0).(model.ExecutionResult)
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(ctx context.Context, status model.Status, triangle string, profitPercent *float64, legPrices []float64, message string) {
	m.Called(ctx, status, triangle, profitPercent, legPrices, message)
}

func (m *MockRecorder) RecordOpportunity(ctx context.Context, status model.Status, opp model.Opportunity, message string) {
	m.Called(ctx, status, opp, message)
}

func (m *MockRecorder) RecordExecution(ctx context.Context, res model.ExecutionResult) {
	m.Called(ctx, res)
}

func stubBooks(client *exchangetest.MockClient, b [3]model.OrderBook) {
	for _, book := range b {
		client.On("FetchOrderBook", mock.Anything, book.Symbol).Return(book, nil)
	}
}

func TestArbitrageEngine_ProcessTriangle(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := &config.Config{
		Arbitrage: config.ArbitrageConfig{MinProfitThreshold: 0.001, TakerFeeRate: 0.001},
		Audit:     config.AuditConfig{LogDetections: true},
	}
	tri := testTriangle()

	newEngine := func(client *exchangetest.MockClient, exec *MockExecutor, rec *MockRecorder) *ArbitrageEngine {
		return NewArbitrageEngine(logger, cfg, NewBookFetcher(client, time.Second), exec, rec)
	}

	t.Run("no opportunity", func(t *testing.T) {
		client, exec, rec := new(exchangetest.MockClient), new(MockExecutor), new(MockRecorder)
		stubBooks(client, books(99.9, 100, 0.0499, 0.05, 1999, 2000))

		res := newEngine(client, exec, rec).ProcessTriangle(context.Background(), tri, true)

		require.NoError(t, res.Err)
		assert.Nil(t, res.Opportunity)
		exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
		rec.AssertNotCalled(t, "RecordOpportunity", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("profitable forward route is executed", func(t *testing.T) {
		client, exec, rec := new(exchangetest.MockClient), new(MockExecutor), new(MockRecorder)
		// (1/100) * 0.0505 * 2000 = 1.01
		stubBooks(client, books(99.9, 100, 0.0505, 0.051, 2000, 2001))
		rec.On("RecordOpportunity", mock.Anything, model.StatusOpportunity, mock.Anything, mock.Anything).Once()
		exec.On("Execute", mock.Anything, mock.MatchedBy(func(o model.Opportunity) bool {
			return o.Direction == model.Forward && o.LegPrices == [3]float64{100, 0.0505, 2000}
		})).Return(model.ExecutionResult{Outcome: model.OutcomeSuccess}).Once()
		rec.On("RecordExecution", mock.Anything, mock.Anything).Once()

		res := newEngine(client, exec, rec).ProcessTriangle(context.Background(), tri, true)

		require.NotNil(t, res.Execution)
		assert.Equal(t, model.OutcomeSuccess, res.Execution.Outcome)
		assert.InDelta(t, 0.007, res.Opportunity.NetProfitRatio, 1e-9)
		exec.AssertExpectations(t)
		rec.AssertExpectations(t)
	})

	t.Run("execution disabled only records detection", func(t *testing.T) {
		client, exec, rec := new(exchangetest.MockClient), new(MockExecutor), new(MockRecorder)
		stubBooks(client, books(99.9, 100, 0.0505, 0.051, 2000, 2001))
		rec.On("RecordOpportunity", mock.Anything, model.StatusOpportunity, mock.Anything, mock.Anything).Once()

		res := newEngine(client, exec, rec).ProcessTriangle(context.Background(), tri, false)

		require.NotNil(t, res.Opportunity)
		assert.Nil(t, res.Execution)
		exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
		rec.AssertExpectations(t)
	})

	t.Run("reverse route is logged, never executed", func(t *testing.T) {
		client, exec, rec := new(exchangetest.MockClient), new(MockExecutor), new(MockRecorder)
		// reverse: (1/2000) / 0.048 * 100 = 1.0417
		stubBooks(client, books(100, 101, 0.0479, 0.048, 1999, 2000))
		rec.On("RecordOpportunity", mock.Anything, model.StatusReverseOpportunity, mock.Anything, mock.Anything).Once()

		res := newEngine(client, exec, rec).ProcessTriangle(context.Background(), tri, true)

		require.NotNil(t, res.Opportunity)
		assert.Equal(t, model.Reverse, res.Opportunity.Direction)
		exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
		rec.AssertExpectations(t)
	})

	t.Run("reverse detection is recorded when forward also qualifies", func(t *testing.T) {
		client, exec, rec := new(exchangetest.MockClient), new(MockExecutor), new(MockRecorder)
		// forward: (1/100) * 0.0505 * 2000 = 1.01, reverse: (1/2000) / 0.0495 * 101 = 1.0202
		stubBooks(client, books(101, 100, 0.0505, 0.0495, 2000, 2000))
		rec.On("RecordOpportunity", mock.Anything, model.StatusOpportunity, mock.MatchedBy(func(o model.Opportunity) bool {
			return o.Direction == model.Forward
		}), mock.Anything).Once()
		rec.On("RecordOpportunity", mock.Anything, model.StatusReverseOpportunity, mock.MatchedBy(func(o model.Opportunity) bool {
			return o.Direction == model.Reverse
		}), mock.Anything).Once()
		exec.On("Execute", mock.Anything, mock.MatchedBy(func(o model.Opportunity) bool {
			return o.Direction == model.Forward
		})).Return(model.ExecutionResult{Outcome: model.OutcomeSuccess}).Once()
		rec.On("RecordExecution", mock.Anything, mock.Anything).Once()

		res := newEngine(client, exec, rec).ProcessTriangle(context.Background(), tri, true)

		require.NotNil(t, res.Opportunity)
		assert.Equal(t, model.Forward, res.Opportunity.Direction)
		exec.AssertExpectations(t)
		rec.AssertExpectations(t)
	})

	t.Run("fetches cancelled by shutdown are not audited", func(t *testing.T) {
		client, exec, rec := new(exchangetest.MockClient), new(MockExecutor), new(MockRecorder)
		client.On("FetchOrderBook", mock.Anything, mock.Anything).Return(model.OrderBook{}, context.Canceled)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res := newEngine(client, exec, rec).ProcessTriangle(ctx, tri, true)

		assert.Error(t, res.Err)
		rec.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	})

	t.Run("market data failure is reported and skipped", func(t *testing.T) {
		client, exec, rec := new(exchangetest.MockClient), new(MockExecutor), new(MockRecorder)
		client.On("FetchOrderBook", mock.Anything, mock.Anything).Return(model.OrderBook{}, errors.New("timeout"))
		rec.On("Record", mock.Anything, model.StatusMarketError, tri.String(), (*float64)(nil), []float64(nil), mock.Anything).Once()

		res := newEngine(client, exec, rec).ProcessTriangle(context.Background(), tri, true)

		assert.ErrorIs(t, res.Err, ErrMarketData)
		exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
		rec.AssertExpectations(t)
	})
}
