// Package portfolio derives the per-user summary view: net holdings from the
// ledger, valued at live market prices.
package portfolio

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"paperfolio/internal/models"
)

// HoldingsSource yields net nonzero share counts per symbol.
type HoldingsSource interface {
	Holdings(ctx context.Context, userID int) ([]models.Position, error)
}

// QuoteLookup fetches a live price. A nil quote with nil error means the
// symbol is unknown to the provider.
type QuoteLookup interface {
	Lookup(ctx context.Context, symbol string) (*models.Quote, error)
}

// Engine recomputes summaries on demand. It holds no state of its own; the
// result is a plain value consumed directly by the caller.
type Engine struct {
	holdings HoldingsSource
	quotes   QuoteLookup
}

func NewEngine(holdings HoldingsSource, quotes QuoteLookup) *Engine {
	return &Engine{holdings: holdings, quotes: quotes}
}

// Recompute rebuilds the summary wholesale from the ledger. A failed quote
// for a held symbol fails the whole view: silently omitting the holding
// would corrupt the total-assets figure.
func (e *Engine) Recompute(ctx context.Context, userID int) ([]models.SummaryRow, error) {
	positions, err := e.holdings.Holdings(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := make([]models.SummaryRow, 0, len(positions))
	for _, p := range positions {
		q, err := e.quotes.Lookup(ctx, p.Stock)
		if err != nil {
			return nil, fmt.Errorf("quoting %s: %w", p.Stock, err)
		}
		if q == nil {
			return nil, fmt.Errorf("no quote for held symbol %s", p.Stock)
		}
		summary = append(summary, models.SummaryRow{
			Stock:       p.Stock,
			Shares:      p.Shares,
			MarketPrice: q.Price,
			Value:       q.Price.Mul(decimal.NewFromInt(p.Shares)),
		})
	}
	return summary, nil
}

// TotalAssets is cash plus the value of every summary row. With no holdings
// it equals cash exactly.
func TotalAssets(cash decimal.Decimal, summary []models.SummaryRow) decimal.Decimal {
	total := cash
	for _, row := range summary {
		total = total.Add(row.Value)
	}
	return total
}
