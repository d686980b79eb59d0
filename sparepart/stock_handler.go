package sparepart

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/bbmatyushin/medsil-equipment-base/database"
	"github.com/bbmatyushin/medsil-equipment-base/model"

	"github.com/jmoiron/sqlx"
)

const (
	suppliesPrefix  = "/api/supplies/"
	shipmentsPrefix = "/api/shipments/"
)

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// writeStockError maps the stock bookkeeping errors to status codes.
func writeStockError(w http.ResponseWriter, handler string, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, database.ErrInsufficientStock):
		writeJSONError(w, err.Error(), http.StatusConflict)
	default:
		log.Printf("[%s] ERROR: %v", handler, err)
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
	}
}

// StockHandler lists the stock batches of the part given by ?part=.
func StockHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		partID := r.URL.Query().Get("part")
		if partID == "" {
			writeJSONError(w, "part is required", http.StatusBadRequest)
			return
		}
		batches, err := database.GetStockBatches(db, partID)
		if err != nil {
			writeStockError(w, "StockHandler", err)
			return
		}
		if batches == nil {
			batches = []model.StockBatch{}
		}
		writeJSON(w, http.StatusOK, batches)
	}
}

// SuppliesHandler serves GET /api/supplies/ and DELETE /api/supplies/{id}.
// Deleting a supply takes its count back out of stock.
func SuppliesHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, suppliesPrefix), "/")
		if strings.Contains(id, "/") {
			http.NotFound(w, r)
			return
		}

		switch {
		case id == "" && r.Method == http.MethodGet:
			supplies, err := database.GetSupplies(db, r.URL.Query().Get("part"))
			if err != nil {
				writeStockError(w, "SuppliesHandler", err)
				return
			}
			if supplies == nil {
				supplies = []model.SupplyRecord{}
			}
			writeJSON(w, http.StatusOK, supplies)
		case id != "" && r.Method == http.MethodDelete:
			if csrfRequired() && !CheckCSRF(r) {
				writeJSONError(w, "CSRF verification failed", http.StatusForbidden)
				return
			}
			withTx(db, w, "SuppliesHandler", http.StatusOK, func(tx *sqlx.Tx) (interface{}, error) {
				rec, err := database.DeleteSupplyInTx(tx, id)
				if err == nil {
					log.Printf("[SuppliesHandler] Deleted supply %s, %g of %s taken out of stock", rec.ID, rec.Count, rec.SparePartID)
				}
				return rec, err
			})
		default:
			writeJSONError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	}
}

// ShipmentsHandler serves GET and POST /api/shipments/ and
// DELETE /api/shipments/{id}.
func ShipmentsHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, shipmentsPrefix), "/")
		if strings.Contains(id, "/") {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet && csrfRequired() && !CheckCSRF(r) {
			writeJSONError(w, "CSRF verification failed", http.StatusForbidden)
			return
		}

		switch {
		case id == "" && r.Method == http.MethodGet:
			shipments, err := database.GetShipments(db, r.URL.Query().Get("part"))
			if err != nil {
				writeStockError(w, "ShipmentsHandler", err)
				return
			}
			if shipments == nil {
				shipments = []model.Shipment{}
			}
			writeJSON(w, http.StatusOK, shipments)
		case id == "" && r.Method == http.MethodPost:
			var in database.ShipmentInput
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				writeJSONError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
				return
			}
			if in.StockBatchID == "" || in.Count < 0 {
				writeJSONError(w, "stockBatchId and a non-negative count are required", http.StatusBadRequest)
				return
			}
			withTx(db, w, "ShipmentsHandler", http.StatusCreated, func(tx *sqlx.Tx) (interface{}, error) {
				return database.CreateShipmentInTx(tx, in)
			})
		case id != "" && r.Method == http.MethodDelete:
			withTx(db, w, "ShipmentsHandler", http.StatusOK, func(tx *sqlx.Tx) (interface{}, error) {
				return database.DeleteShipmentInTx(tx, id)
			})
		default:
			writeJSONError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	}
}

func withTx(db *sqlx.DB, w http.ResponseWriter, handler string, okStatus int, fn func(tx *sqlx.Tx) (interface{}, error)) {
	tx, err := db.Beginx()
	if err != nil {
		writeJSONError(w, "Failed to start transaction", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	out, err := fn(tx)
	if err != nil {
		writeStockError(w, handler, err)
		return
	}
	if err := tx.Commit(); err != nil {
		writeJSONError(w, "Failed to commit transaction", http.StatusInternalServerError)
		return
	}
	writeJSON(w, okStatus, out)
}
