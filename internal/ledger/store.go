// Package ledger is the append-only record of executed trades. It is the
// single source of truth: holdings and the portfolio summary are derived
// from it, never the other way around.
package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"paperfolio/internal/models"
)

// rowQuerier is satisfied by both *sql.DB and *sql.Tx so entries can be
// appended inside a trade transaction.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Insert appends one entry and fills in its id. There is no corresponding
// update or delete: corrections are offsetting entries.
func Insert(ctx context.Context, q rowQuerier, e *models.LedgerEntry) error {
	err := q.QueryRowContext(ctx, `
        INSERT INTO ledger (user_id, stock, shares_delta, amount, price, kind)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at
    `, e.UserID, e.Stock, e.SharesDelta, e.Amount, e.Price, e.Kind).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending ledger entry: %w", err)
	}
	return nil
}

// Store reads and appends ledger entries.
type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) *Store { return &Store{db: database} }

// Append writes one entry outside any caller-managed transaction.
func (s *Store) Append(ctx context.Context, e *models.LedgerEntry) error {
	return Insert(ctx, s.db, e)
}

// History returns all entries for a user, oldest first.
func (s *Store) History(ctx context.Context, userID int) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, user_id, stock, shares_delta, amount, price, kind, created_at
        FROM ledger
        WHERE user_id = $1
        ORDER BY id ASC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	entries := make([]models.LedgerEntry, 0)
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Stock, &e.SharesDelta,
			&e.Amount, &e.Price, &e.Kind, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Holdings sums share deltas per symbol for a user, dropping symbols whose
// net count is zero.
func (s *Store) Holdings(ctx context.Context, userID int) ([]models.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT stock, SUM(shares_delta) AS shares
        FROM ledger
        WHERE user_id = $1
        GROUP BY stock
        HAVING SUM(shares_delta) <> 0
        ORDER BY stock
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("querying holdings: %w", err)
	}
	defer rows.Close()

	positions := make([]models.Position, 0)
	for rows.Next() {
		var p models.Position
		if err := rows.Scan(&p.Stock, &p.Shares); err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
