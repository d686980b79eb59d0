package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/bbmatyushin/medsil-equipment-base/model"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// ShipmentInput names the stock batch to write off from.
type ShipmentInput struct {
	StockBatchID string  `json:"stockBatchId"`
	Count        float64 `json:"count"`
	DocNum       string  `json:"docNum"`
}

// CreateShipmentInTx writes count off the stock batch. A shipment without a
// document number gets one from the SHIPMENT sequence.
func CreateShipmentInTx(tx *sqlx.Tx, in ShipmentInput) (model.Shipment, error) {
	var sh model.Shipment
	if in.Count < 0 {
		return sh, fmt.Errorf("CreateShipmentInTx: negative count %g", in.Count)
	}

	var batch model.StockBatch
	err := tx.Get(&batch, `SELECT id, spare_part_id, amount, expiration_dt FROM spare_part_count WHERE id = ?`, in.StockBatchID)
	if err != nil {
		if err == sql.ErrNoRows {
			return sh, fmt.Errorf("CreateShipmentInTx (Batch: %s): %w", in.StockBatchID, ErrNotFound)
		}
		return sh, fmt.Errorf("CreateShipmentInTx (Batch: %s) failed: %w", in.StockBatchID, err)
	}

	key := model.BatchKey{PartID: batch.SparePartID, Expiration: batch.ExpirationDt}
	if in.Count > 0 {
		if err := moveStockInTx(tx, key, decimal.NewFromFloat(in.Count)); err != nil {
			return sh, err
		}
	}

	docNum := in.DocNum
	if docNum == "" {
		docNum, err = NextSequenceInTx(tx, "SHIPMENT", "SH"+time.Now().Format("060102"), 5)
		if err != nil {
			return sh, err
		}
	}

	sh = model.Shipment{
		ID:           uuid.NewString(),
		SparePartID:  key.PartID,
		ExpirationDt: key.Expiration,
		Count:        in.Count,
		DocNum:       docNum,
	}
	const ins = `
		INSERT INTO spare_part_shipment (id, spare_part_id, expiration_dt, count_shipment, doc_num)
		VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.Exec(ins, sh.ID, sh.SparePartID, sh.ExpirationDt, sh.Count, sh.DocNum); err != nil {
		return sh, fmt.Errorf("CreateShipmentInTx (Part: %s) failed to insert: %w", sh.SparePartID, err)
	}
	return sh, nil
}

// DeleteShipmentInTx removes a shipment and puts its count back into stock.
// The stock batch is recreated when it has been removed since.
func DeleteShipmentInTx(tx *sqlx.Tx, shipmentID string) (model.Shipment, error) {
	var sh model.Shipment
	err := tx.Get(&sh, `
		SELECT id, spare_part_id, expiration_dt, count_shipment, doc_num, created_at
		FROM spare_part_shipment WHERE id = ?`, shipmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return sh, fmt.Errorf("DeleteShipmentInTx (ID: %s): %w", shipmentID, ErrNotFound)
		}
		return sh, fmt.Errorf("DeleteShipmentInTx (ID: %s) failed: %w", shipmentID, err)
	}

	if sh.Count > 0 {
		key := model.BatchKey{PartID: sh.SparePartID, Expiration: sh.ExpirationDt}
		if err := moveStockInTx(tx, key, decimal.NewFromFloat(sh.Count).Neg()); err != nil {
			return sh, err
		}
	}
	if _, err := tx.Exec(`DELETE FROM spare_part_shipment WHERE id = ?`, shipmentID); err != nil {
		return sh, fmt.Errorf("DeleteShipmentInTx (ID: %s) failed to delete: %w", shipmentID, err)
	}
	return sh, nil
}

// GetShipments lists shipments, newest first. An empty partID lists all.
func GetShipments(db sqlx.Queryer, partID string) ([]model.Shipment, error) {
	var out []model.Shipment
	err := sqlx.Select(db, &out, `
		SELECT id, spare_part_id, expiration_dt, count_shipment, doc_num, created_at
		FROM spare_part_shipment
		WHERE ? = '' OR spare_part_id = ?
		ORDER BY created_at DESC, rowid DESC`, partID, partID)
	if err != nil {
		return nil, fmt.Errorf("GetShipments (Part: %s) failed: %w", partID, err)
	}
	return out, nil
}
