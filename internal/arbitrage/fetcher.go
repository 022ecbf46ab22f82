package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"triarb/internal/exchange"
	"triarb/internal/model"
)

// ErrMarketData marks a failed or unusable order book fetch.
var ErrMarketData = errors.New("market data error")

// BookFetcher retrieves the top of book for the three pairs of a triangle.
type BookFetcher struct {
	client  exchange.ExchangeClient
	timeout time.Duration
}

// NewBookFetcher creates a BookFetcher whose per-request deadline is timeout.
func NewBookFetcher(client exchange.ExchangeClient, timeout time.Duration) *BookFetcher {
	return &BookFetcher{client: client, timeout: timeout}
}

// FetchBooks fetches the three books concurrently and returns once all are in
// or the first one fails.
func (f *BookFetcher) FetchBooks(ctx context.Context, tri model.Triangle) ([3]model.OrderBook, error) {
	var books [3]model.OrderBook
	symbols := [3]string{tri.Pair1.Symbol, tri.Pair2.Symbol, tri.Pair3.Symbol}

	g, gctx := errgroup.WithContext(ctx)
	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			reqCtx, cancel := context.WithTimeout(gctx, f.timeout)
			defer cancel()

			book, err := f.client.FetchOrderBook(reqCtx, symbol)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrMarketData, symbol, err)
			}
			if book.Bid <= 0 || book.Ask <= 0 {
				return fmt.Errorf("%w: %s: empty top of book (bid=%v ask=%v)", ErrMarketData, symbol, book.Bid, book.Ask)
			}
			books[i] = book
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return [3]model.OrderBook{}, err
	}
	return books, nil
}
