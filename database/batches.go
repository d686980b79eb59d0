package database

import (
	"database/sql"
	"fmt"

	"github.com/bbmatyushin/medsil-equipment-base/model"

	"github.com/jmoiron/sqlx"
)

type batchRow struct {
	ExpirationDt     string          `db:"expiration_dt"`
	Amount           float64         `db:"amount"`
	ServicePartCount sql.NullFloat64 `db:"service_part_count"`
}

// GetBatchesForService lists the stock batches of a part together with the
// quantity the service already holds from each. Batches the service holds but
// that have no stock row left are included. serviceID may be empty for a
// record that is not saved yet. An unknown part yields no batches.
func GetBatchesForService(db sqlx.Queryer, serviceID, partID string) ([]model.BatchDescriptor, error) {
	part, err := GetSparePart(db, partID)
	if err != nil {
		return nil, err
	}
	if part == nil {
		return []model.BatchDescriptor{}, nil
	}

	const q = `
		SELECT b.expiration_dt AS expiration_dt,
		       COALESCE(c.amount, 0) AS amount,
		       s.quantity AS service_part_count
		FROM (
			SELECT expiration_dt FROM spare_part_count WHERE spare_part_id = ?
			UNION
			SELECT expiration_dt FROM service_spare_part WHERE spare_part_id = ? AND service_id = ?
		) b
		LEFT JOIN spare_part_count c
			ON c.spare_part_id = ? AND c.expiration_dt = b.expiration_dt
		LEFT JOIN service_spare_part s
			ON s.service_id = ? AND s.spare_part_id = ? AND s.expiration_dt = b.expiration_dt
		ORDER BY b.expiration_dt = '', b.expiration_dt`

	var rows []batchRow
	if err := sqlx.Select(db, &rows, q, partID, partID, serviceID, partID, serviceID, partID); err != nil {
		return nil, fmt.Errorf("GetBatchesForService (Service: %s, Part: %s) failed: %w", serviceID, partID, err)
	}

	out := make([]model.BatchDescriptor, 0, len(rows))
	for _, r := range rows {
		held := 0.0
		if r.ServicePartCount.Valid {
			held = r.ServicePartCount.Float64
		}
		d := model.BatchDescriptor{
			ID:               partID,
			Name:             batchLabel(part, r.ExpirationDt),
			Quantity:         r.Amount,
			ServicePartCount: &held,
		}
		if r.ExpirationDt != "" {
			exp := r.ExpirationDt
			d.ExpirationDt = &exp
		}
		out = append(out, d)
	}
	return out, nil
}

func batchLabel(part *model.SparePart, expiration string) string {
	if expiration == "" {
		return part.DisplayName()
	}
	return fmt.Sprintf("%s (exp. %s)", part.DisplayName(), expiration)
}

// GetStockBatches lists the stock rows of a part, earliest expiration first.
func GetStockBatches(db sqlx.Queryer, partID string) ([]model.StockBatch, error) {
	var batches []model.StockBatch
	err := sqlx.Select(db, &batches, `
		SELECT id, spare_part_id, amount, expiration_dt
		FROM spare_part_count
		WHERE spare_part_id = ?
		ORDER BY expiration_dt = '', expiration_dt`, partID)
	if err != nil {
		return nil, fmt.Errorf("GetStockBatches (Part: %s) failed: %w", partID, err)
	}
	return batches, nil
}
