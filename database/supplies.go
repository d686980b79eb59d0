package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bbmatyushin/medsil-equipment-base/model"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a supply or shipment id is unknown.
var ErrNotFound = errors.New("not found")

// AddSupplyInTx records a delivery and adds it to the matching stock batch.
// The part is created when it is not in the directory yet. A supply without a
// document number gets one from the SUPPLY sequence.
func AddSupplyInTx(tx *sqlx.Tx, s model.Supply) (string, error) {
	if s.Count < 0 {
		return "", fmt.Errorf("AddSupplyInTx: negative count %g for %s", s.Count, s.Name)
	}
	partID := s.SparePartID
	if partID == "" {
		var err error
		partID, err = UpsertSparePartInTx(tx, s.Article, s.Name, s.Unit, s.ExpirationDt != "")
		if err != nil {
			return "", err
		}
	}

	docNum := s.DocNum
	if docNum == "" {
		var err error
		docNum, err = NextSequenceInTx(tx, "SUPPLY", "SP"+time.Now().Format("060102"), 5)
		if err != nil {
			return "", err
		}
	}

	const insSupply = `
		INSERT INTO spare_part_supply (id, spare_part_id, count_supply, expiration_dt, doc_num)
		VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.Exec(insSupply, uuid.NewString(), partID, s.Count, s.ExpirationDt, docNum); err != nil {
		return "", fmt.Errorf("AddSupplyInTx (Part: %s) failed to insert supply: %w", partID, err)
	}

	const upsertCount = `
		INSERT INTO spare_part_count (id, spare_part_id, amount, expiration_dt)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(spare_part_id, expiration_dt) DO UPDATE SET
			amount = amount + excluded.amount`
	if _, err := tx.Exec(upsertCount, uuid.NewString(), partID, s.Count, s.ExpirationDt); err != nil {
		return "", fmt.Errorf("AddSupplyInTx (Part: %s) failed to update stock: %w", partID, err)
	}
	return partID, nil
}

// GetSupplies lists deliveries, newest first. An empty partID lists all.
func GetSupplies(db sqlx.Queryer, partID string) ([]model.SupplyRecord, error) {
	var out []model.SupplyRecord
	err := sqlx.Select(db, &out, `
		SELECT id, spare_part_id, count_supply, expiration_dt, doc_num, created_at
		FROM spare_part_supply
		WHERE ? = '' OR spare_part_id = ?
		ORDER BY created_at DESC, rowid DESC`, partID, partID)
	if err != nil {
		return nil, fmt.Errorf("GetSupplies (Part: %s) failed: %w", partID, err)
	}
	return out, nil
}

// DeleteSupplyInTx removes a delivery and takes its count back out of the
// stock batch. Stock that has already been allocated or shipped cannot be
// taken back; that fails with ErrInsufficientStock.
func DeleteSupplyInTx(tx *sqlx.Tx, supplyID string) (model.SupplyRecord, error) {
	var rec model.SupplyRecord
	err := tx.Get(&rec, `
		SELECT id, spare_part_id, count_supply, expiration_dt, doc_num, created_at
		FROM spare_part_supply WHERE id = ?`, supplyID)
	if err != nil {
		if err == sql.ErrNoRows {
			return rec, fmt.Errorf("DeleteSupplyInTx (ID: %s): %w", supplyID, ErrNotFound)
		}
		return rec, fmt.Errorf("DeleteSupplyInTx (ID: %s) failed: %w", supplyID, err)
	}

	if rec.Count > 0 {
		key := model.BatchKey{PartID: rec.SparePartID, Expiration: rec.ExpirationDt}
		if err := moveStockInTx(tx, key, decimal.NewFromFloat(rec.Count)); err != nil {
			return rec, err
		}
	}
	if _, err := tx.Exec(`DELETE FROM spare_part_supply WHERE id = ?`, supplyID); err != nil {
		return rec, fmt.Errorf("DeleteSupplyInTx (ID: %s) failed to delete: %w", supplyID, err)
	}
	return rec, nil
}
