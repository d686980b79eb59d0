package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/bbmatyushin/medsil-equipment-base/model"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var ErrInsufficientStock = errors.New("insufficient stock")

// StockError names the batch that could not cover an allocation.
type StockError struct {
	Key       model.BatchKey
	Requested float64
	Available float64
}

func (e *StockError) Error() string {
	return fmt.Sprintf("%v: batch %s needs %g more, %g in stock", ErrInsufficientStock, e.Key, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// ApplyResult summarises a call to ApplyAllocationsInTx.
type ApplyResult struct {
	Allocated int
	Released  int
	Unchanged int
}

// GetCommittedAllocations returns what the service currently holds.
func GetCommittedAllocations(db sqlx.Queryer, serviceID string) ([]model.CommittedAllocation, error) {
	var out []model.CommittedAllocation
	err := sqlx.Select(db, &out, `
		SELECT spare_part_id, quantity, NULLIF(expiration_dt, '') AS expiration_dt
		FROM service_spare_part
		WHERE service_id = ?
		ORDER BY spare_part_id, expiration_dt`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("GetCommittedAllocations (Service: %s) failed: %w", serviceID, err)
	}
	return out, nil
}

// GetServiceAllocationRows joins the committed allocations with their parts.
func GetServiceAllocationRows(db sqlx.Queryer, serviceID string) ([]model.ServiceAllocationRow, error) {
	var rows []model.ServiceAllocationRow
	err := sqlx.Select(db, &rows, `
		SELECT s.spare_part_id, p.name, p.article, p.unit,
		       NULLIF(s.expiration_dt, '') AS expiration_dt, s.quantity
		FROM service_spare_part s
		JOIN spare_part p ON p.id = s.spare_part_id
		WHERE s.service_id = ?
		ORDER BY p.name, s.expiration_dt`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("GetServiceAllocationRows (Service: %s) failed: %w", serviceID, err)
	}
	return rows, nil
}

// ApplyAllocationsInTx makes the service hold exactly the submitted
// allocations. Stock of every batch moves by the difference between what the
// service held and what it holds now; batches missing from the submission
// are released back to stock. The client's originalQuantity is not trusted:
// the stored quantity is the reference.
func ApplyAllocationsInTx(tx *sqlx.Tx, serviceID string, allocs []model.Allocation) (ApplyResult, error) {
	var res ApplyResult

	held, err := GetCommittedAllocations(tx, serviceID)
	if err != nil {
		return res, err
	}
	before := make(map[model.BatchKey]decimal.Decimal, len(held))
	for _, h := range held {
		before[model.NewBatchKey(h.ID, h.ExpirationDt)] = decimal.NewFromFloat(h.Quantity)
	}

	after := make(map[model.BatchKey]decimal.Decimal, len(allocs))
	var order []model.BatchKey
	for _, a := range allocs {
		if a.Quantity <= 0 {
			continue
		}
		k := a.Key()
		if _, seen := after[k]; !seen {
			order = append(order, k)
		}
		after[k] = decimal.NewFromFloat(a.Quantity)
	}
	for _, h := range held {
		k := model.NewBatchKey(h.ID, h.ExpirationDt)
		if _, ok := after[k]; !ok {
			order = append(order, k)
		}
	}

	for _, k := range order {
		oldQty := before[k]
		newQty := after[k]
		delta := newQty.Sub(oldQty)
		if delta.IsZero() {
			res.Unchanged++
			continue
		}
		if err := moveStockInTx(tx, k, delta); err != nil {
			return res, err
		}
		if newQty.IsZero() {
			if _, err := tx.Exec(`DELETE FROM service_spare_part WHERE service_id = ? AND spare_part_id = ? AND expiration_dt = ?`,
				serviceID, k.PartID, k.Expiration); err != nil {
				return res, fmt.Errorf("ApplyAllocationsInTx: release %s: %w", k, err)
			}
			res.Released++
			continue
		}
		const upsert = `
			INSERT INTO service_spare_part (service_id, spare_part_id, expiration_dt, quantity)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(service_id, spare_part_id, expiration_dt) DO UPDATE SET
				quantity = excluded.quantity`
		if _, err := tx.Exec(upsert, serviceID, k.PartID, k.Expiration, newQty.InexactFloat64()); err != nil {
			return res, fmt.Errorf("ApplyAllocationsInTx: allocate %s: %w", k, err)
		}
		res.Allocated++
	}

	log.Printf("[ApplyAllocationsInTx] Service %s: allocated %d, released %d, unchanged %d",
		serviceID, res.Allocated, res.Released, res.Unchanged)
	return res, nil
}

// moveStockInTx takes delta out of a stock batch (a negative delta puts it
// back).
func moveStockInTx(tx *sqlx.Tx, k model.BatchKey, delta decimal.Decimal) error {
	var batch model.StockBatch
	err := tx.Get(&batch, `SELECT id, spare_part_id, amount, expiration_dt FROM spare_part_count WHERE spare_part_id = ? AND expiration_dt = ?`,
		k.PartID, k.Expiration)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("moveStockInTx: get batch %s: %w", k, err)
	}

	if err == sql.ErrNoRows {
		if delta.IsPositive() {
			return &StockError{Key: k, Requested: delta.InexactFloat64(), Available: 0}
		}
		const ins = `INSERT INTO spare_part_count (id, spare_part_id, amount, expiration_dt) VALUES (?, ?, ?, ?)`
		if _, err := tx.Exec(ins, uuid.NewString(), k.PartID, delta.Neg().InexactFloat64(), k.Expiration); err != nil {
			return fmt.Errorf("moveStockInTx: restore batch %s: %w", k, err)
		}
		return nil
	}

	amount := decimal.NewFromFloat(batch.Amount)
	remaining := amount.Sub(delta)
	if remaining.IsNegative() {
		return &StockError{Key: k, Requested: delta.InexactFloat64(), Available: batch.Amount}
	}
	if _, err := tx.Exec(`UPDATE spare_part_count SET amount = ? WHERE id = ?`, remaining.InexactFloat64(), batch.ID); err != nil {
		return fmt.Errorf("moveStockInTx: update batch %s: %w", k, err)
	}
	return nil
}
