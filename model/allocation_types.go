package model

import "fmt"

// NoExpiration is the string form of an empty expiration marker.
const NoExpiration = "none"

// BatchKey identifies one allocable lot: a spare part plus its expiration date.
// An empty Expiration means the lot has no expiration date.
type BatchKey struct {
	PartID     string
	Expiration string
}

func NewBatchKey(partID string, expiration *string) BatchKey {
	k := BatchKey{PartID: partID}
	if expiration != nil {
		k.Expiration = *expiration
	}
	return k
}

// String returns the "<partId>_<expiration|none>" form used as a DOM key.
func (k BatchKey) String() string {
	exp := k.Expiration
	if exp == "" {
		exp = NoExpiration
	}
	return fmt.Sprintf("%s_%s", k.PartID, exp)
}

// ExpirationPtr returns nil for a key without expiration date.
func (k BatchKey) ExpirationPtr() *string {
	if k.Expiration == "" {
		return nil
	}
	exp := k.Expiration
	return &exp
}

// Batch is the tracker's view of one lot.
type Batch struct {
	Key       BatchKey `json:"-"`
	PartID    string   `json:"sparePartId"`
	Label     string   `json:"name"`
	Available float64  `json:"quantity"`
	Original  float64  `json:"originalQuantity"`
	Current   float64  `json:"currentQuantity"`
}

// BatchDescriptor is one entry of the batch endpoint response.
type BatchDescriptor struct {
	ID               string   `db:"id" json:"id"`
	Name             string   `db:"name" json:"name"`
	Quantity         float64  `db:"quantity" json:"quantity"`
	ExpirationDt     *string  `db:"expiration_dt" json:"expiration_dt"`
	ServicePartCount *float64 `db:"service_part_count" json:"service_part_count,omitempty"`
}

type BatchResponse struct {
	Results []BatchDescriptor `json:"results"`
}

// Allocation is the record posted with the service form.
type Allocation struct {
	ID               string  `json:"id"`
	Quantity         float64 `json:"quantity"`
	OriginalQuantity float64 `json:"originalQuantity"`
	ExpirationDt     *string `json:"expiration_dt"`
}

func (a Allocation) Key() BatchKey {
	return NewBatchKey(a.ID, a.ExpirationDt)
}

// CommittedAllocation is the record carried by hidden fields rendered with a
// saved service.
type CommittedAllocation struct {
	ID           string  `db:"spare_part_id" json:"id"`
	Quantity     float64 `db:"quantity" json:"quantity"`
	ExpirationDt *string `db:"expiration_dt" json:"expiration_dt"`
}
