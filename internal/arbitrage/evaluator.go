package arbitrage

import "triarb/internal/model"

// Evaluation holds both route prices of one triangle snapshot.
type Evaluation struct {
	Triangle      model.Triangle
	Forward       float64
	Reverse       float64
	ForwardPrices [3]float64 // ask1, bid2, bid3
	ReversePrices [3]float64 // ask3, ask2, bid1
}

// Evaluate computes the net profit ratio of both routes for one unit of quote.
// Fees are charged once per leg and subtracted linearly; only the top of book is used.
//
//	forward: quote -> alt (ask1) -> bridge (bid2) -> quote (bid3)
//	reverse: quote -> bridge (ask3) -> alt (ask2) -> quote (bid1)
func Evaluate(tri model.Triangle, books [3]model.OrderBook, feeRate float64) Evaluation {
	b1, b2, b3 := books[0], books[1], books[2]
	fees := 3 * feeRate

	return Evaluation{
		Triangle:      tri,
		Forward:       (1/b1.Ask)*b2.Bid*b3.Bid - 1 - fees,
		Reverse:       (1/b3.Ask)/b2.Ask*b1.Bid - 1 - fees,
		ForwardPrices: [3]float64{b1.Ask, b2.Bid, b3.Bid},
		ReversePrices: [3]float64{b3.Ask, b2.Ask, b1.Bid},
	}
}

// Opportunity returns the route to act on when either exceeds threshold.
// Forward wins when both qualify.
func (e Evaluation) Opportunity(threshold float64) (model.Opportunity, bool) {
	if e.Forward > threshold {
		return e.forward(), true
	}
	return e.ReverseOpportunity(threshold)
}

// ReverseOpportunity reports the reverse route whenever it exceeds threshold,
// including when the forward route also qualifies.
func (e Evaluation) ReverseOpportunity(threshold float64) (model.Opportunity, bool) {
	if e.Reverse > threshold {
		return model.Opportunity{Triangle: e.Triangle, Direction: model.Reverse, NetProfitRatio: e.Reverse, LegPrices: e.ReversePrices}, true
	}
	return model.Opportunity{}, false
}

func (e Evaluation) forward() model.Opportunity {
	return model.Opportunity{Triangle: e.Triangle, Direction: model.Forward, NetProfitRatio: e.Forward, LegPrices: e.ForwardPrices}
}
