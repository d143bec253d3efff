package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"paperfolio/internal/db"
	"paperfolio/internal/models"
)

func TestAppendAndHistory_ChronologicalOrder(t *testing.T) {
	database := db.SetupTestDB(t)
	defer database.Close()
	defer db.CleanupTestDB(t, database)

	userID := db.CreateTestUser(t, database, "ledger_user", 10000.0)
	store := NewStore(database)

	entries := []models.LedgerEntry{
		{UserID: userID, Stock: "AAPL", SharesDelta: 10, Amount: decimal.NewFromInt(500), Price: decimal.NewFromInt(50), Kind: models.KindBuy},
		{UserID: userID, Stock: "MSFT", SharesDelta: 2, Amount: decimal.NewFromInt(760), Price: decimal.NewFromInt(380), Kind: models.KindBuy},
		{UserID: userID, Stock: "AAPL", SharesDelta: -4, Amount: decimal.NewFromInt(240), Price: decimal.NewFromInt(60), Kind: models.KindSell},
	}
	for i := range entries {
		if err := store.Append(context.Background(), &entries[i]); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if entries[i].ID == 0 {
			t.Error("Expected appended entry to get an id")
		}
	}

	history, err := store.History(context.Background(), userID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].ID <= history[i-1].ID {
			t.Error("History must be ordered oldest first")
		}
	}
	if history[0].Stock != "AAPL" || history[2].SharesDelta != -4 {
		t.Errorf("Unexpected ordering: %+v", history)
	}
}

func TestHoldings_DropsZeroPositions(t *testing.T) {
	database := db.SetupTestDB(t)
	defer database.Close()
	defer db.CleanupTestDB(t, database)

	userID := db.CreateTestUser(t, database, "flat_user", 10000.0)
	store := NewStore(database)

	seed := []models.LedgerEntry{
		{UserID: userID, Stock: "AAPL", SharesDelta: 10, Amount: decimal.NewFromInt(500), Price: decimal.NewFromInt(50), Kind: models.KindBuy},
		{UserID: userID, Stock: "AAPL", SharesDelta: -10, Amount: decimal.NewFromInt(600), Price: decimal.NewFromInt(60), Kind: models.KindSell},
		{UserID: userID, Stock: "MSFT", SharesDelta: 3, Amount: decimal.NewFromInt(1140), Price: decimal.NewFromInt(380), Kind: models.KindBuy},
	}
	for i := range seed {
		if err := store.Append(context.Background(), &seed[i]); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	holdings, err := store.Holdings(context.Background(), userID)
	if err != nil {
		t.Fatalf("Holdings failed: %v", err)
	}
	if len(holdings) != 1 {
		t.Fatalf("Expected fully-sold symbol to be dropped, got %+v", holdings)
	}
	if holdings[0].Stock != "MSFT" || holdings[0].Shares != 3 {
		t.Errorf("Expected 3 MSFT shares, got %+v", holdings[0])
	}
}

func TestHistory_EmptyForNewUser(t *testing.T) {
	database := db.SetupTestDB(t)
	defer database.Close()
	defer db.CleanupTestDB(t, database)

	userID := db.CreateTestUser(t, database, "fresh_user", 10000.0)

	history, err := NewStore(database).History(context.Background(), userID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("Expected empty history, got %d entries", len(history))
	}
}
