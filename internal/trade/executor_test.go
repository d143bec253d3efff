package trade

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paperfolio/internal/db"
	"paperfolio/internal/ledger"
	"paperfolio/internal/models"
)

type fakeQuotes struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (f *fakeQuotes) Lookup(ctx context.Context, symbol string) (*models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	symbol = strings.ToUpper(symbol)
	p, ok := f.prices[symbol]
	if !ok {
		return nil, nil
	}
	return &models.Quote{Symbol: symbol, Name: symbol + " Inc", Price: decimal.NewFromFloat(p)}, nil
}

func (f *fakeQuotes) setPrice(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}

func newTestExecutor(t *testing.T, workers int) (*Executor, *fakeQuotes) {
	t.Helper()

	database := db.SetupTestDB(t)
	t.Cleanup(func() {
		db.CleanupTestDB(t, database)
		database.Close()
	})

	quotes := &fakeQuotes{prices: map[string]float64{"AAPL": 150.0}}
	e := NewExecutor(database, quotes, workers, zap.NewNop())
	e.Start()
	t.Cleanup(e.Stop)

	return e, quotes
}

func cashOf(t *testing.T, e *Executor, userID int) decimal.Decimal {
	t.Helper()
	var cash decimal.Decimal
	if err := e.db.QueryRow("SELECT cash FROM users WHERE id = $1", userID).Scan(&cash); err != nil {
		t.Fatalf("Failed to query cash: %v", err)
	}
	return cash
}

func TestBuy_ValidationRejectsBeforeAnyWork(t *testing.T) {
	// Validation happens before the queue, so no database is needed.
	e := NewExecutor(nil, &fakeQuotes{prices: map[string]float64{"AAPL": 150.0}}, 0, zap.NewNop())

	if _, err := e.Buy(context.Background(), 1, "", 10); !errors.Is(err, ErrInvalidSymbol) {
		t.Errorf("Expected ErrInvalidSymbol for empty symbol, got %v", err)
	}
	if _, err := e.Buy(context.Background(), 1, "AAPL", 0); !errors.Is(err, ErrInvalidShares) {
		t.Errorf("Expected ErrInvalidShares for zero shares, got %v", err)
	}
	if _, err := e.Buy(context.Background(), 1, "AAPL", -3); !errors.Is(err, ErrInvalidShares) {
		t.Errorf("Expected ErrInvalidShares for negative shares, got %v", err)
	}
	if _, err := e.Buy(context.Background(), 1, "NOPE", 10); !errors.Is(err, ErrInvalidSymbol) {
		t.Errorf("Expected ErrInvalidSymbol for unknown symbol, got %v", err)
	}
	if _, err := e.Sell(context.Background(), 1, "NOPE", 10); !errors.Is(err, ErrNotHeld) {
		t.Errorf("Expected ErrNotHeld selling an unknown symbol, got %v", err)
	}
}

func TestBuyThenSell_Scenario(t *testing.T) {
	e, quotes := newTestExecutor(t, 1)
	userID := db.CreateTestUser(t, e.db, "scenario", 10000.0)

	quotes.setPrice("AAPL", 50.0)

	res, err := e.Buy(context.Background(), userID, "aapl", 10)
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if res.Total.StringFixed(2) != "500.00" {
		t.Errorf("Expected cost 500.00, got %s", res.Total.StringFixed(2))
	}
	if got := cashOf(t, e, userID); got.StringFixed(2) != "9500.00" {
		t.Errorf("Expected cash 9500.00 after buy, got %s", got.StringFixed(2))
	}

	quotes.setPrice("AAPL", 60.0)

	res, err = e.Sell(context.Background(), userID, "AAPL", 4)
	if err != nil {
		t.Fatalf("Sell failed: %v", err)
	}
	if res.Total.StringFixed(2) != "240.00" {
		t.Errorf("Expected proceeds 240.00, got %s", res.Total.StringFixed(2))
	}
	if got := cashOf(t, e, userID); got.StringFixed(2) != "9740.00" {
		t.Errorf("Expected cash 9740.00 after sell, got %s", got.StringFixed(2))
	}

	store := ledger.NewStore(e.db)
	entries, err := store.History(context.Background(), userID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 ledger entries, got %d", len(entries))
	}
	if entries[0].Kind != models.KindBuy || entries[0].SharesDelta != 10 ||
		entries[0].Amount.StringFixed(2) != "500.00" {
		t.Errorf("Unexpected buy entry: %+v", entries[0])
	}
	if entries[1].Kind != models.KindSell || entries[1].SharesDelta != -4 ||
		entries[1].Amount.StringFixed(2) != "240.00" {
		t.Errorf("Unexpected sell entry: %+v", entries[1])
	}

	holdings, err := store.Holdings(context.Background(), userID)
	if err != nil {
		t.Fatalf("Holdings failed: %v", err)
	}
	if len(holdings) != 1 || holdings[0].Stock != "AAPL" || holdings[0].Shares != 6 {
		t.Errorf("Expected 6 AAPL shares, got %+v", holdings)
	}
}

func TestBuy_InsufficientFunds(t *testing.T) {
	e, _ := newTestExecutor(t, 1)
	userID := db.CreateTestUser(t, e.db, "pooruser", 100.0)

	_, err := e.Buy(context.Background(), userID, "AAPL", 10)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}

	// No mutation on the rejected path
	if got := cashOf(t, e, userID); got.StringFixed(2) != "100.00" {
		t.Errorf("Expected cash unchanged at 100.00, got %s", got.StringFixed(2))
	}
	entries, err := ledger.NewStore(e.db).History(context.Background(), userID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no ledger entries, got %d", len(entries))
	}
}

func TestSell_InsufficientShares(t *testing.T) {
	e, _ := newTestExecutor(t, 1)
	userID := db.CreateTestUser(t, e.db, "seller", 10000.0)

	if _, err := e.Buy(context.Background(), userID, "AAPL", 6); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	cashBefore := cashOf(t, e, userID)

	_, err := e.Sell(context.Background(), userID, "AAPL", 7)
	if !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("Expected ErrInsufficientShares, got %v", err)
	}

	if got := cashOf(t, e, userID); !got.Equal(cashBefore) {
		t.Errorf("Expected cash unchanged at %s, got %s", cashBefore, got)
	}
}

func TestSell_NotHeld(t *testing.T) {
	e, quotes := newTestExecutor(t, 1)
	userID := db.CreateTestUser(t, e.db, "nostock", 10000.0)

	quotes.setPrice("MSFT", 380.0)

	if _, err := e.Sell(context.Background(), userID, "MSFT", 1); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("Expected ErrNotHeld, got %v", err)
	}
}

func TestBuy_UserNotFound(t *testing.T) {
	e, _ := newTestExecutor(t, 1)

	if _, err := e.Buy(context.Background(), 99999, "AAPL", 1); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("Expected ErrUserNotFound, got %v", err)
	}
}

func TestConcurrentBuying_SameUser(t *testing.T) {
	e, _ := newTestExecutor(t, 5)
	userID := db.CreateTestUser(t, e.db, "concurrent_user", 10000.0)

	numTrades := 10
	results := make(chan error, numTrades)
	for i := 0; i < numTrades; i++ {
		go func() {
			_, err := e.Buy(context.Background(), userID, "AAPL", 1)
			results <- err
		}()
	}

	for i := 0; i < numTrades; i++ {
		if err := <-results; err != nil {
			t.Errorf("Expected trade to succeed, got %v", err)
		}
	}

	expected := decimal.NewFromFloat(10000.0 - 150.0*float64(numTrades))
	if got := cashOf(t, e, userID); !got.Equal(expected) {
		t.Errorf("Race condition detected! Expected balance %s, got %s", expected, got)
	}

	holdings, err := ledger.NewStore(e.db).Holdings(context.Background(), userID)
	if err != nil {
		t.Fatalf("Holdings failed: %v", err)
	}
	if len(holdings) != 1 || holdings[0].Shares != int64(numTrades) {
		t.Errorf("Race condition detected! Expected %d shares, got %+v", numTrades, holdings)
	}
}

func TestConcurrentSelling_NeverOversells(t *testing.T) {
	e, _ := newTestExecutor(t, 5)
	userID := db.CreateTestUser(t, e.db, "overseller", 10000.0)

	if _, err := e.Buy(context.Background(), userID, "AAPL", 6); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	// Two concurrent sells of 4 against 6 held: exactly one may pass.
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := e.Sell(context.Background(), userID, "AAPL", 4)
			results <- err
		}()
	}

	var succeeded, rejected int
	for i := 0; i < 2; i++ {
		switch err := <-results; {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientShares):
			rejected++
		default:
			t.Errorf("Unexpected sell error: %v", err)
		}
	}

	if succeeded != 1 || rejected != 1 {
		t.Errorf("Expected exactly one sell to succeed, got %d success / %d rejected",
			succeeded, rejected)
	}

	holdings, err := ledger.NewStore(e.db).Holdings(context.Background(), userID)
	if err != nil {
		t.Fatalf("Holdings failed: %v", err)
	}
	if len(holdings) != 1 || holdings[0].Shares != 2 {
		t.Errorf("Oversold! Expected 2 shares left, got %+v", holdings)
	}
}

func TestStop_CompletesQueuedTrades(t *testing.T) {
	database := db.SetupTestDB(t)
	defer database.Close()
	defer db.CleanupTestDB(t, database)

	userID := db.CreateTestUser(t, database, "drain_user", 10000.0)

	quotes := &fakeQuotes{prices: map[string]float64{"AAPL": 150.0}}
	e := NewExecutor(database, quotes, 1, zap.NewNop())
	e.Start()

	// Park the single worker on the first trade so the second stays queued
	// when Stop begins.
	e.locks.lock(userID)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := e.Buy(context.Background(), userID, "AAPL", 1)
			results <- err
		}()
	}

	stopped := make(chan struct{})
	go func() {
		e.Stop()
		close(stopped)
	}()

	e.locks.unlock(userID)

	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			t.Errorf("Expected queued trade to complete on shutdown, got %v", err)
		}
	}

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after draining the queue")
	}

	var cash decimal.Decimal
	if err := database.QueryRow("SELECT cash FROM users WHERE id = $1", userID).Scan(&cash); err != nil {
		t.Fatalf("Failed to query cash: %v", err)
	}
	if cash.StringFixed(2) != "9700.00" {
		t.Errorf("Expected both trades applied (cash 9700.00), got %s", cash.StringFixed(2))
	}
}

func TestSellAll_RemovesPosition(t *testing.T) {
	e, _ := newTestExecutor(t, 1)
	userID := db.CreateTestUser(t, e.db, "sellall", 10000.0)

	if _, err := e.Buy(context.Background(), userID, "AAPL", 5); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if _, err := e.Sell(context.Background(), userID, "AAPL", 5); err != nil {
		t.Fatalf("Sell failed: %v", err)
	}

	symbols, err := e.HeldSymbols(context.Background(), userID)
	if err != nil {
		t.Fatalf("HeldSymbols failed: %v", err)
	}
	if len(symbols) != 0 {
		t.Errorf("Expected no held symbols, got %v", symbols)
	}
}
