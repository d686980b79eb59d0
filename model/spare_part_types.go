package model

import "database/sql"

// SparePart is a row of the spare part directory.
type SparePart struct {
	ID           string         `db:"id" json:"id"`
	Article      sql.NullString `db:"article" json:"-"`
	Name         string         `db:"name" json:"name"`
	Unit         string         `db:"unit" json:"unit"`
	IsExpiration bool           `db:"is_expiration" json:"isExpiration"`
}

// DisplayName mirrors the label used by the admin: name plus article.
func (p SparePart) DisplayName() string {
	if p.Article.Valid && p.Article.String != "" {
		return p.Name + " (art. " + p.Article.String + ")"
	}
	return p.Name
}

// StockBatch is the stock on hand of one part lot.
type StockBatch struct {
	ID           string  `db:"id" json:"id"`
	SparePartID  string  `db:"spare_part_id" json:"sparePartId"`
	Amount       float64 `db:"amount" json:"amount"`
	ExpirationDt string  `db:"expiration_dt" json:"expirationDt"`
}

type Service struct {
	ID          string `db:"id" json:"id"`
	Description string `db:"description" json:"description"`
	CreatedAt   string `db:"created_at" json:"createdAt"`
}

// ServiceAllocationRow is a committed allocation joined with its part, used by
// the change page and the XLSX export.
type ServiceAllocationRow struct {
	SparePartID  string         `db:"spare_part_id"`
	PartName     string         `db:"name"`
	Article      sql.NullString `db:"article"`
	Unit         string         `db:"unit"`
	ExpirationDt sql.NullString `db:"expiration_dt"`
	Quantity     float64        `db:"quantity"`
}

// Supply is an incoming delivery of spare parts.
type Supply struct {
	SparePartID  string
	Article      string
	Name         string
	Unit         string
	Count        float64
	ExpirationDt string
	DocNum       string
}

// SupplyRecord is a booked delivery.
type SupplyRecord struct {
	ID           string  `db:"id" json:"id"`
	SparePartID  string  `db:"spare_part_id" json:"sparePartId"`
	Count        float64 `db:"count_supply" json:"count"`
	ExpirationDt string  `db:"expiration_dt" json:"expirationDt"`
	DocNum       string  `db:"doc_num" json:"docNum"`
	CreatedAt    string  `db:"created_at" json:"createdAt"`
}

// Shipment is a direct write-off from a stock batch.
type Shipment struct {
	ID           string  `db:"id" json:"id"`
	SparePartID  string  `db:"spare_part_id" json:"sparePartId"`
	ExpirationDt string  `db:"expiration_dt" json:"expirationDt"`
	Count        float64 `db:"count_shipment" json:"count"`
	DocNum       string  `db:"doc_num" json:"docNum"`
	CreatedAt    string  `db:"created_at" json:"createdAt"`
}
