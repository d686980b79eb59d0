package loader

import (
	_ "embed"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/bbmatyushin/medsil-equipment-base/database"
	"github.com/bbmatyushin/medsil-equipment-base/parsers"

	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var schemaSQL string

// InitDatabase applies the schema. It is safe to call on an existing
// database.
func InitDatabase(db *sqlx.DB) error {
	log.Println("Applying database schema...")
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := applySchema(db); err != nil {
		return fmt.Errorf("failed to apply schema.sql: %w", err)
	}
	log.Println("Schema applied successfully.")
	return nil
}

func applySchema(db *sqlx.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// ImportResult is returned by LoadSupplies.
type ImportResult struct {
	Imported int      `json:"imported"`
	Errors   []string `json:"errors"`
}

// LoadSupplies parses a supply CSV and books every row in one transaction.
// Rows that fail are reported and skipped; parse errors abort.
func LoadSupplies(db *sqlx.DB, r io.Reader, encoding string) (res ImportResult, err error) {
	records, err := parsers.ParseSupplyCSV(r, encoding)
	if err != nil {
		return res, err
	}

	tx, err := db.Beginx()
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			log.Printf("Rolling back supply import due to error: %v", err)
			tx.Rollback()
		} else {
			err = tx.Commit()
			if err != nil {
				log.Printf("Error committing supply import: %v", err)
			}
		}
	}()

	for _, rec := range records {
		if _, addErr := database.AddSupplyInTx(tx, rec); addErr != nil {
			log.Printf("WARN: Failed to import supply %s: %v", rec.Name, addErr)
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", rec.Name, addErr))
			continue
		}
		res.Imported++
	}
	log.Printf("Imported %d supplies", res.Imported)
	return res, nil
}

// LoadSupplyFile imports a supply CSV from disk.
func LoadSupplyFile(db *sqlx.DB, path, encoding string) (ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("could not open file %s: %w", path, err)
	}
	defer f.Close()
	return LoadSupplies(db, f, encoding)
}
