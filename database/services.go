package database

import (
	"database/sql"
	"fmt"

	"github.com/bbmatyushin/medsil-equipment-base/model"

	"github.com/jmoiron/sqlx"
)

func GetService(db sqlx.Queryer, id string) (*model.Service, error) {
	var s model.Service
	err := sqlx.Get(db, &s, `SELECT id, description, created_at FROM service WHERE id = ?`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("GetService (ID: %s) failed: %w", id, err)
	}
	return &s, nil
}

// EnsureServiceInTx creates the service row if it is missing.
func EnsureServiceInTx(tx *sqlx.Tx, id string) error {
	if _, err := tx.Exec(`INSERT OR IGNORE INTO service (id) VALUES (?)`, id); err != nil {
		return fmt.Errorf("EnsureServiceInTx (ID: %s) failed: %w", id, err)
	}
	return nil
}

func UpdateServiceDescriptionInTx(tx *sqlx.Tx, id, description string) error {
	if _, err := tx.Exec(`UPDATE service SET description = ? WHERE id = ?`, description, id); err != nil {
		return fmt.Errorf("UpdateServiceDescriptionInTx (ID: %s) failed: %w", id, err)
	}
	return nil
}

// ListServices returns the service records, newest first.
func ListServices(db sqlx.Queryer) ([]model.Service, error) {
	var services []model.Service
	if err := sqlx.Select(db, &services, `SELECT id, description, created_at FROM service ORDER BY created_at DESC, id`); err != nil {
		return nil, fmt.Errorf("ListServices failed: %w", err)
	}
	return services, nil
}
