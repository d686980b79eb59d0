package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/bbmatyushin/medsil-equipment-base/model"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

func GetSparePart(db sqlx.Queryer, id string) (*model.SparePart, error) {
	var p model.SparePart
	err := sqlx.Get(db, &p, `SELECT id, article, name, unit, is_expiration FROM spare_part WHERE id = ?`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("GetSparePart (ID: %s) failed: %w", id, err)
	}
	return &p, nil
}

func ListSpareParts(db sqlx.Queryer) ([]model.SparePart, error) {
	var parts []model.SparePart
	err := sqlx.Select(db, &parts, `SELECT id, article, name, unit, is_expiration FROM spare_part ORDER BY name, article`)
	if err != nil {
		return nil, fmt.Errorf("failed to list spare parts: %w", err)
	}
	return parts, nil
}

// UpsertSparePartInTx finds a part by article and name, creating it when it
// does not exist yet, and returns its id.
func UpsertSparePartInTx(tx *sqlx.Tx, article, name, unit string, isExpiration bool) (string, error) {
	name = strings.TrimSpace(name)
	article = strings.TrimSpace(article)
	if name == "" {
		return "", fmt.Errorf("UpsertSparePartInTx: name is required")
	}

	var id string
	var err error
	if article == "" {
		err = tx.Get(&id, `SELECT id FROM spare_part WHERE name = ? AND (article IS NULL OR article = '') LIMIT 1`, name)
	} else {
		err = tx.Get(&id, `SELECT id FROM spare_part WHERE name = ? AND article = ? LIMIT 1`, name, article)
	}
	if err == nil {
		if isExpiration {
			if _, err := tx.Exec(`UPDATE spare_part SET is_expiration = 1 WHERE id = ?`, id); err != nil {
				return "", fmt.Errorf("UpsertSparePartInTx (ID: %s) failed to flag expiration: %w", id, err)
			}
		}
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("UpsertSparePartInTx (Name: %s) lookup failed: %w", name, err)
	}

	if unit == "" {
		unit = "pcs"
	}
	id = uuid.NewString()
	var art interface{}
	if article != "" {
		art = article
	}
	const q = `INSERT INTO spare_part (id, article, name, unit, is_expiration) VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.Exec(q, id, art, name, unit, isExpiration); err != nil {
		return "", fmt.Errorf("UpsertSparePartInTx (Name: %s) insert failed: %w", name, err)
	}
	return id, nil
}
