// Package testutil provides in-memory databases and seed helpers for tests.
package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/bbmatyushin/medsil-equipment-base/loader"
)

// NewDB opens an in-memory SQLite database with the schema applied. The pool
// is limited to one connection so every query sees the same database.
func NewDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := loader.InitDatabase(db); err != nil {
		t.Fatalf("Failed to init test DB: %v", err)
	}
	return db
}

// SeedPart inserts a spare part and returns its id.
func SeedPart(t *testing.T, db *sqlx.DB, article, name string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.Exec(`INSERT INTO spare_part (id, article, name) VALUES (?, ?, ?)`, id, article, name)
	if err != nil {
		t.Fatalf("Failed to seed spare part %s: %v", name, err)
	}
	return id
}

// SeedStock sets the stock of a batch. An empty expiration is the batch
// without expiration date.
func SeedStock(t *testing.T, db *sqlx.DB, partID, expiration string, amount float64) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO spare_part_count (id, spare_part_id, amount, expiration_dt) VALUES (?, ?, ?, ?)
		ON CONFLICT(spare_part_id, expiration_dt) DO UPDATE SET amount = excluded.amount`,
		uuid.NewString(), partID, amount, expiration)
	if err != nil {
		t.Fatalf("Failed to seed stock for %s: %v", partID, err)
	}
}

// SeedService inserts a service record and returns its id.
func SeedService(t *testing.T, db *sqlx.DB, description string) string {
	t.Helper()
	id := uuid.NewString()
	if _, err := db.Exec(`INSERT INTO service (id, description) VALUES (?, ?)`, id, description); err != nil {
		t.Fatalf("Failed to seed service: %v", err)
	}
	return id
}

// SeedAllocation commits qty of a batch to a service without touching stock.
func SeedAllocation(t *testing.T, db *sqlx.DB, serviceID, partID, expiration string, qty float64) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO service_spare_part (service_id, spare_part_id, expiration_dt, quantity) VALUES (?, ?, ?, ?)`,
		serviceID, partID, expiration, qty)
	if err != nil {
		t.Fatalf("Failed to seed allocation: %v", err)
	}
}

// StockAmount returns the stock of a batch, or -1 when the batch row is
// missing.
func StockAmount(t *testing.T, db *sqlx.DB, partID, expiration string) float64 {
	t.Helper()
	var amounts []float64
	err := db.Select(&amounts, `SELECT amount FROM spare_part_count WHERE spare_part_id = ? AND expiration_dt = ?`, partID, expiration)
	if err != nil {
		t.Fatalf("Failed to read stock: %v", err)
	}
	if len(amounts) == 0 {
		return -1
	}
	return amounts[0]
}
