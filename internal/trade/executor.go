// Package trade executes buy and sell orders. Each order validates against
// the user's current cash and holdings and writes the ledger entry, cash
// update, and position update in one database transaction, with trades for
// the same user serialized by a per-user lock.
package trade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paperfolio/internal/ledger"
	"paperfolio/internal/models"
)

var (
	ErrInvalidSymbol      = errors.New("enter a valid stock symbol")
	ErrInvalidShares      = errors.New("enter a share quantity greater than 0")
	ErrInsufficientFunds  = errors.New("not enough cash to buy")
	ErrInsufficientShares = errors.New("not enough shares")
	ErrNotHeld            = errors.New("stock not in your portfolio")
	ErrUserNotFound       = errors.New("user not found")
)

// QuoteLookup supplies the execution price. Nil quote, nil error means the
// symbol is unknown.
type QuoteLookup interface {
	Lookup(ctx context.Context, symbol string) (*models.Quote, error)
}

// Request is one order for the executor.
type Request struct {
	UserID int
	Symbol string
	Shares int64
	Kind   models.EntryKind
}

// Result describes an executed order.
type Result struct {
	EntryID int64
	Symbol  string
	Shares  int64
	Price   decimal.Decimal
	Total   decimal.Decimal // cost for buys, proceeds for sells
	NewCash decimal.Decimal
}

type job struct {
	ctx      context.Context
	req      Request
	quote    *models.Quote
	resultCh chan outcome
}

type outcome struct {
	result Result
	err    error
}

// Executor processes orders on a worker pool.
type Executor struct {
	db      *sql.DB
	quotes  QuoteLookup
	logger  *zap.Logger
	workers int
	queue   chan job
	stopCh  chan struct{}
	wg      sync.WaitGroup
	locks   *userLocks
}

// NewExecutor creates an executor with the given worker count.
func NewExecutor(database *sql.DB, quotes QuoteLookup, workers int, logger *zap.Logger) *Executor {
	return &Executor{
		db:      database,
		quotes:  quotes,
		logger:  logger,
		workers: workers,
		queue:   make(chan job, 100),
		stopCh:  make(chan struct{}),
		locks:   newUserLocks(),
	}
}

// Start launches the worker pool.
func (e *Executor) Start() {
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
	e.logger.Info("trade workers started", zap.Int("workers", e.workers))
}

// Stop drains the pool.
func (e *Executor) Stop() {
	close(e.stopCh)
	e.wg.Wait()
	e.logger.Info("trade executor stopped")
}

func (e *Executor) worker(id int) {
	defer e.wg.Done()

	for {
		select {
		case <-e.stopCh:
			// Finish anything already queued so no submitter is left
			// blocked on its result.
			for {
				select {
				case j := <-e.queue:
					res, err := e.process(j.ctx, j.req, j.quote)
					j.resultCh <- outcome{result: res, err: err}
				default:
					return
				}
			}
		case j := <-e.queue:
			res, err := e.process(j.ctx, j.req, j.quote)
			j.resultCh <- outcome{result: res, err: err}
		}
	}
}

// Buy validates and executes a purchase at the current market price.
func (e *Executor) Buy(ctx context.Context, userID int, symbol string, shares int64) (Result, error) {
	return e.submit(ctx, Request{UserID: userID, Symbol: symbol, Shares: shares, Kind: models.KindBuy})
}

// Sell validates and executes a sale at the current market price.
func (e *Executor) Sell(ctx context.Context, userID int, symbol string, shares int64) (Result, error) {
	return e.submit(ctx, Request{UserID: userID, Symbol: symbol, Shares: shares, Kind: models.KindSell})
}

func (e *Executor) submit(ctx context.Context, req Request) (Result, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" {
		return Result{}, ErrInvalidSymbol
	}
	if req.Shares <= 0 {
		return Result{}, ErrInvalidShares
	}

	// Quote before queueing so no lock is held across the provider call.
	q, err := e.quotes.Lookup(ctx, req.Symbol)
	if err != nil {
		return Result{}, err
	}
	if q == nil {
		if req.Kind == models.KindSell {
			return Result{}, ErrNotHeld
		}
		return Result{}, ErrInvalidSymbol
	}
	req.Symbol = q.Symbol

	resultCh := make(chan outcome, 1)
	select {
	case e.queue <- job{ctx: ctx, req: req, quote: q, resultCh: resultCh}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case out := <-resultCh:
		return out.result, out.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// process runs the validate+write sequence for one order under the user's
// lock. The rejected paths return before any write.
func (e *Executor) process(ctx context.Context, req Request, q *models.Quote) (Result, error) {
	e.locks.lock(req.UserID)
	defer e.locks.unlock(req.UserID)

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	total := q.Price.Mul(decimal.NewFromInt(req.Shares))

	// Lock the user row so concurrent trades serialize at the store too.
	var cash decimal.Decimal
	err = tx.QueryRowContext(ctx,
		"SELECT cash FROM users WHERE id = $1 FOR UPDATE", req.UserID,
	).Scan(&cash)
	if err == sql.ErrNoRows {
		return Result{}, ErrUserNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("reading cash balance: %w", err)
	}

	var newCash decimal.Decimal
	var sharesDelta int64

	switch req.Kind {
	case models.KindBuy:
		if cash.LessThan(total) {
			return Result{}, ErrInsufficientFunds
		}
		newCash = cash.Sub(total)
		sharesDelta = req.Shares

	case models.KindSell:
		var held int64
		err = tx.QueryRowContext(ctx,
			"SELECT COALESCE(SUM(shares_delta), 0) FROM ledger WHERE user_id = $1 AND stock = $2",
			req.UserID, req.Symbol,
		).Scan(&held)
		if err != nil {
			return Result{}, fmt.Errorf("reading holdings: %w", err)
		}
		if held <= 0 {
			return Result{}, ErrNotHeld
		}
		if req.Shares > held {
			return Result{}, ErrInsufficientShares
		}
		newCash = cash.Add(total)
		sharesDelta = -req.Shares

	default:
		return Result{}, fmt.Errorf("unknown trade kind %q", req.Kind)
	}

	entry := models.LedgerEntry{
		UserID:      req.UserID,
		Stock:       req.Symbol,
		SharesDelta: sharesDelta,
		Amount:      total,
		Price:       q.Price,
		Kind:        req.Kind,
	}
	if err := ledger.Insert(ctx, tx, &entry); err != nil {
		return Result{}, err
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET cash = $1 WHERE id = $2", newCash, req.UserID,
	); err != nil {
		return Result{}, fmt.Errorf("updating cash balance: %w", err)
	}

	if err := e.applyPosition(ctx, tx, req.UserID, req.Symbol, sharesDelta); err != nil {
		return Result{}, err
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("committing trade: %w", err)
	}

	e.logger.Info("trade executed",
		zap.Int64("entry_id", entry.ID),
		zap.Int("user_id", req.UserID),
		zap.String("symbol", req.Symbol),
		zap.String("kind", string(req.Kind)),
		zap.Int64("shares", req.Shares),
		zap.String("total", total.StringFixed(2)),
	)

	return Result{
		EntryID: entry.ID,
		Symbol:  req.Symbol,
		Shares:  req.Shares,
		Price:   q.Price,
		Total:   total,
		NewCash: newCash,
	}, nil
}

// applyPosition keeps the derived positions table in step with the ledger
// inside the same transaction. A position drained to zero is removed.
func (e *Executor) applyPosition(ctx context.Context, tx *sql.Tx, userID int, symbol string, delta int64) error {
	_, err := tx.ExecContext(ctx, `
        INSERT INTO positions (user_id, stock, shares)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id, stock)
        DO UPDATE SET
            shares = positions.shares + $3,
            updated_at = NOW()
    `, userID, symbol, delta)
	if err != nil {
		return fmt.Errorf("updating position: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"DELETE FROM positions WHERE user_id = $1 AND stock = $2 AND shares = 0",
		userID, symbol,
	)
	if err != nil {
		return fmt.Errorf("pruning empty position: %w", err)
	}
	return nil
}

// HeldSymbols lists the symbols a user currently holds, from the derived
// positions table.
func (e *Executor) HeldSymbols(ctx context.Context, userID int) ([]string, error) {
	rows, err := e.db.QueryContext(ctx,
		"SELECT stock FROM positions WHERE user_id = $1 AND shares > 0 ORDER BY stock",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying positions: %w", err)
	}
	defer rows.Close()

	symbols := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}
