package audit

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"triarb/internal/model"
)

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Append(ctx context.Context, rec model.AuditRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockSink) Close() error {
	return m.Called().Error(0)
}

// captureSink keeps records in memory.
type captureSink struct {
	records []model.AuditRecord
}

func (c *captureSink) Append(_ context.Context, rec model.AuditRecord) error {
	c.records = append(c.records, rec)
	return nil
}

func (c *captureSink) Close() error { return nil }

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.csv")
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	pct := 0.123456

	sink, err := NewCSVSink(path)
	require.NoError(t, err)
	require.NoError(t, sink.Append(context.Background(), model.AuditRecord{
		Timestamp:     ts,
		Status:        model.StatusOpportunity,
		Triangle:      "ETH/USDT>ETH/BTC>BTC/USDT",
		ProfitPercent: &pct,
		LegPrices:     []float64{100, 0.01, 60000},
		Message:       `said "hello", twice`,
	}))
	require.NoError(t, sink.Close())

	// reopening an existing file must not repeat the header
	sink, err = NewCSVSink(path)
	require.NoError(t, err)
	require.NoError(t, sink.Append(context.Background(), model.AuditRecord{
		Timestamp: ts,
		Status:    model.StatusInsufficientFunds,
		Message:   "balance 3 below 20",
	}))
	require.NoError(t, sink.Close())

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{
		"2026-01-02T03:04:05Z", "OPORTUNIDADE", "ETH/USDT>ETH/BTC>BTC/USDT", "0.1235", "100|0.01|60000", `said "hello", twice`,
	}, rows[1])
	assert.Equal(t, "N/A", rows[2][3])
	assert.Equal(t, "", rows[2][4])

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"said ""hello"", twice"`)
}

func TestLogger_SinkFailureDoesNotStopOthers(t *testing.T) {
	failing := new(MockSink)
	failing.On("Append", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	capture := &captureSink{}

	l := NewLogger(zaptest.NewLogger(t), failing, capture)
	l.Record(context.Background(), model.StatusMarketError, "tri", nil, nil, "timeout")

	failing.AssertNumberOfCalls(t, "Append", 1)
	require.Len(t, capture.records, 1)
	assert.Equal(t, model.StatusMarketError, capture.records[0].Status)
	assert.Nil(t, capture.records[0].ProfitPercent)
}

func TestLogger_RecordExecution(t *testing.T) {
	tri := model.Triangle{
		Quote: "USDT",
		Pair1: model.Instrument{Symbol: "ETH/USDT"},
		Pair2: model.Instrument{Symbol: "ETH/BTC"},
		Pair3: model.Instrument{Symbol: "BTC/USDT"},
	}
	base := model.ExecutionResult{Triangle: tri, NetProfitRatio: 0.01, LegPrices: [3]float64{1, 2, 3}}

	statuses := func(res model.ExecutionResult) []model.Status {
		capture := &captureSink{}
		NewLogger(zaptest.NewLogger(t), capture).RecordExecution(context.Background(), res)
		out := make([]model.Status, 0, len(capture.records))
		for _, r := range capture.records {
			out = append(out, r.Status)
		}
		return out
	}

	t.Run("success", func(t *testing.T) {
		res := base
		res.Outcome = model.OutcomeSuccess
		res.FinalAmount = 20.2
		assert.Equal(t, []model.Status{model.StatusSuccess}, statuses(res))
	})

	t.Run("success with residue swept", func(t *testing.T) {
		res := base
		res.Outcome = model.OutcomeSuccess
		res.UnwindAttempted = true
		res.UnwindAmount = 4.2
		assert.Equal(t, []model.Status{model.StatusSuccess, model.StatusUnwindOK}, statuses(res))
	})

	t.Run("skipped", func(t *testing.T) {
		res := base
		res.Outcome = model.OutcomeSkipped
		assert.Equal(t, []model.Status{model.StatusSkipped}, statuses(res))
	})

	t.Run("leg one failure", func(t *testing.T) {
		res := base
		res.Outcome = model.OutcomeFailed
		res.Err = errors.New("insufficient balance")
		assert.Equal(t, []model.Status{model.StatusExecutionFailure}, statuses(res))
	})

	t.Run("partial failure unwound", func(t *testing.T) {
		res := base
		res.Outcome = model.OutcomePartialFailure
		res.Err = errors.New("leg 2 rejected")
		res.UnwindAttempted = true
		res.UnwindAmount = 19.9
		assert.Equal(t, []model.Status{model.StatusExecutionFailure, model.StatusUnwindOK}, statuses(res))
	})

	t.Run("partial failure unwind failed", func(t *testing.T) {
		res := base
		res.Outcome = model.OutcomePartialFailure
		res.Err = errors.New("leg 3 rejected")
		res.UnwindAttempted = true
		res.UnwindErr = errors.New("still rejected")
		assert.Equal(t, []model.Status{model.StatusExecutionFailure, model.StatusUnwindFailure}, statuses(res))
	})
}
