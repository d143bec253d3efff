package db

import (
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"
)

// SetupTestDB connects to the database named by TEST_DATABASE_URL and
// bootstraps the schema. Tests that need a live database call this and are
// skipped when the variable is unset.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	connStr := os.Getenv("TEST_DATABASE_URL")
	if connStr == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database test")
	}

	database, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err = database.Ping(); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}

	if err = EnsureSchema(database); err != nil {
		t.Fatalf("Failed to ensure schema: %v", err)
	}

	return database
}

// CleanupTestDB removes all test data.
func CleanupTestDB(t *testing.T, database *sql.DB) {
	t.Helper()

	tables := []string{"ledger", "positions", "users"}
	for _, table := range tables {
		if _, err := database.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			t.Logf("Warning: Failed to cleanup table %s: %v", table, err)
		}
	}
}

// CreateTestUser inserts a user with the given cash balance and returns its id.
func CreateTestUser(t *testing.T, database *sql.DB, username string, cash float64) int {
	t.Helper()

	// Make username unique across test runs
	uniqueUsername := fmt.Sprintf("%s_%d", username, time.Now().UnixNano())

	var userID int
	err := database.QueryRow(
		"INSERT INTO users (username, hash, cash) VALUES ($1, $2, $3) RETURNING id",
		uniqueUsername, "x", cash,
	).Scan(&userID)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return userID
}
