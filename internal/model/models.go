package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Instrument is a tradable spot pair with its precision rules.
type Instrument struct {
	Symbol     string // unified form, e.g. ETH/USDT
	Base       string
	Quote      string
	Spot       bool
	Active     bool
	AmountStep decimal.Decimal
	PriceStep  decimal.Decimal
	MinAmount  decimal.Decimal
}

// Tradable reports whether the instrument can take part in a triangle.
func (i Instrument) Tradable() bool {
	return i.Spot && i.Active
}

// Triangle is a three-pair cycle ALT/QUOTE, ALT/BRIDGE, BRIDGE/QUOTE.
// The instruments are captured at discovery time and never mutated.
type Triangle struct {
	Alt    string
	Bridge string
	Quote  string
	Pair1  Instrument // ALT/QUOTE
	Pair2  Instrument // ALT/BRIDGE
	Pair3  Instrument // BRIDGE/QUOTE
}

func (t Triangle) String() string {
	return fmt.Sprintf("%s>%s>%s", t.Pair1.Symbol, t.Pair2.Symbol, t.Pair3.Symbol)
}

// OrderBook is the top of book for one pair at a single point in time.
type OrderBook struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Timestamp time.Time
}

// Direction is a traversal route of a triangle.
type Direction string

const (
	Forward Direction = "forward" // quote -> alt -> bridge -> quote
	Reverse Direction = "reverse" // quote -> bridge -> alt -> quote
)

// Opportunity is a priced traversal of a triangle.
type Opportunity struct {
	Triangle       Triangle
	Direction      Direction
	NetProfitRatio float64
	LegPrices      [3]float64
}

// ProfitPercent returns the net profit ratio expressed in percent.
func (o Opportunity) ProfitPercent() float64 {
	return o.NetProfitRatio * 100
}

// Side of a market order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderResult is what the exchange reported for a placed market order.
type OrderResult struct {
	ID        string
	Symbol    string
	Side      Side
	Requested float64
	Filled    float64 // base units executed
	Cost      float64 // quote units exchanged
	Received  float64 // units of the acquired asset, net of commission charged in it
	AvgPrice  float64
}

// Outcome of an execution attempt.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePartialFailure Outcome = "partial_failure"
	OutcomeFailed         Outcome = "failed"
	OutcomeSkipped        Outcome = "skipped"
)

// ExecutionResult summarises one execution attempt.
type ExecutionResult struct {
	ID              string
	Triangle        Triangle
	Direction       Direction
	NetProfitRatio  float64
	LegPrices       [3]float64
	FillPrices      []float64
	Outcome         Outcome
	FinalState      string
	FinalAmount     float64
	UnwindAttempted bool
	UnwindAmount    float64
	UnwindErr       error
	Err             error
}

// ErrorDetail returns the failure description, empty on success.
func (r ExecutionResult) ErrorDetail() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Status is one of the fixed audit status tokens.
type Status string

const (
	StatusOpportunity        Status = "OPORTUNIDADE"
	StatusReverseOpportunity Status = "OPORTUNIDADE_REVERSA"
	StatusSuccess            Status = "EXECUCAO_SUCESSO"
	StatusExecutionFailure   Status = "FALHA_EXECUCAO"
	StatusSkipped            Status = "EXECUCAO_IGNORADA"
	StatusUnwindOK           Status = "REVERSAO_OK"
	StatusUnwindFailure      Status = "REVERSAO_FALHA"
	StatusInsufficientFunds  Status = "SALDO_INSUFICIENTE"
	StatusMarketError        Status = "ERRO_MERCADO"
)

// AuditRecord is one append-only audit log entry.
type AuditRecord struct {
	Timestamp     time.Time `db:"timestamp"`
	Status        Status    `db:"status"`
	Triangle      string    `db:"triangle"`
	ProfitPercent *float64  `db:"profit_pct"`
	LegPrices     []float64 `db:"leg_prices"`
	Message       string    `db:"message"`
}
