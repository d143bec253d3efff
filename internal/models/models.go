package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a registered account. Cash is the simulated balance every
// buy and sell settles against.
type User struct {
	ID        int             `json:"id"`
	Username  string          `json:"username"`
	Hash      string          `json:"-"`
	Cash      decimal.Decimal `json:"cash"`
	CreatedAt time.Time       `json:"created_at"`
}

// EntryKind is the direction of a ledger entry.
type EntryKind string

const (
	KindBuy  EntryKind = "buy"
	KindSell EntryKind = "sell"
)

// LedgerEntry is one executed trade. Entries are append-only; corrections are
// new offsetting entries, never updates.
type LedgerEntry struct {
	ID          int64           `json:"id"`
	UserID      int             `json:"user_id"`
	Stock       string          `json:"stock"`
	SharesDelta int64           `json:"shares_delta"` // positive=buy, negative=sell
	Amount      decimal.Decimal `json:"amount"`       // cost for buys, proceeds for sells
	Price       decimal.Decimal `json:"price"`        // execution price per share
	Kind        EntryKind       `json:"kind"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Position is a net share count for one symbol, summed from the ledger.
type Position struct {
	Stock  string `json:"stock"`
	Shares int64  `json:"shares"`
}

// SummaryRow is one line of the derived portfolio view: a held symbol valued
// at the current market price. Rebuilt wholesale from the ledger, never
// authoritative on its own.
type SummaryRow struct {
	Stock       string          `json:"stock"`
	Shares      int64           `json:"shares"`
	MarketPrice decimal.Decimal `json:"market_price"`
	Value       decimal.Decimal `json:"value"`
}

// Quote is a live price lookup result. Never persisted.
type Quote struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}
