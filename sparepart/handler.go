// Package sparepart serves the admin endpoints behind the spare part
// allocation block of the service change page.
package sparepart

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/bbmatyushin/medsil-equipment-base/batchclient"
	"github.com/bbmatyushin/medsil-equipment-base/config"
	"github.com/bbmatyushin/medsil-equipment-base/database"
	"github.com/bbmatyushin/medsil-equipment-base/formfields"
	"github.com/bbmatyushin/medsil-equipment-base/model"
	"github.com/bbmatyushin/medsil-equipment-base/render"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const servicePrefix = "/admin/service/"

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func csrfRequired() bool {
	return config.GetConfig().CSRFCheck
}

// GetBatchesHandler serves
// /admin/get-spare-part-quantity/{serviceID|null}/{partID}/.
func GetBatchesHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		if csrfRequired() && !CheckCSRF(r) {
			writeJSONError(w, "CSRF verification failed", http.StatusForbidden)
			return
		}

		rest := strings.Trim(strings.TrimPrefix(r.URL.Path, batchclient.EndpointPrefix), "/")
		segs := strings.Split(rest, "/")
		if len(segs) != 2 {
			writeJSONError(w, "expected /{serviceID}/{sparePartID}/", http.StatusNotFound)
			return
		}
		serviceID, partID := segs[0], segs[1]
		if serviceID == batchclient.NullRecord {
			serviceID = ""
		} else if _, err := uuid.Parse(serviceID); err != nil {
			writeJSONError(w, "invalid service id", http.StatusBadRequest)
			return
		}
		if _, err := uuid.Parse(partID); err != nil {
			writeJSONError(w, "invalid spare part id", http.StatusBadRequest)
			return
		}

		results, err := database.GetBatchesForService(db, serviceID, partID)
		if err != nil {
			log.Printf("[GetBatchesHandler] ERROR: %v", err)
			writeJSONError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.BatchResponse{Results: results})
	}
}

// ListSparePartsHandler returns the spare part directory.
func ListSparePartsHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts, err := database.ListSpareParts(db)
		if err != nil {
			log.Printf("Error listing spare parts: %v", err)
			http.Error(w, "Failed to list spare parts", http.StatusInternalServerError)
			return
		}
		if parts == nil {
			parts = []model.SparePart{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(parts)
	}
}

// ServiceHandler dispatches everything under /admin/service/.
func ServiceHandler(db *sqlx.DB) http.HandlerFunc {
	change := ServiceChangeHandler(db)
	export := ExportAllocationsHandler(db)
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.Trim(strings.TrimPrefix(r.URL.Path, servicePrefix), "/")
		segs := strings.Split(rest, "/")
		switch {
		case rest == "":
			listServices(db, w, r)
		case len(segs) == 1 && segs[0] == "add":
			createService(db, w, r)
		case len(segs) == 2 && segs[1] == "change":
			change(w, r)
		case len(segs) == 3 && segs[1] == "spare-parts" && segs[2] == "export":
			export(w, r)
		default:
			http.NotFound(w, r)
		}
	}
}

func serviceIDFromPath(path string) (string, error) {
	rest := strings.Trim(strings.TrimPrefix(path, servicePrefix), "/")
	id := strings.SplitN(rest, "/", 2)[0]
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("invalid service id %q", id)
	}
	return parsed.String(), nil
}

func listServices(db *sqlx.DB, w http.ResponseWriter, r *http.Request) {
	services, err := database.ListServices(db)
	if err != nil {
		log.Printf("[ServiceHandler] ERROR: %v", err)
		http.Error(w, "Failed to list services", http.StatusInternalServerError)
		return
	}
	token := EnsureCSRFCookie(w, r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, render.RenderServiceIndex(services, token))
}

func createService(db *sqlx.DB, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if csrfRequired() && !CheckCSRF(r) {
		http.Error(w, "CSRF verification failed", http.StatusForbidden)
		return
	}
	id := uuid.NewString()
	tx, err := db.Beginx()
	if err != nil {
		http.Error(w, "Failed to start transaction", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()
	if err := database.EnsureServiceInTx(tx, id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(); err != nil {
		http.Error(w, "Failed to commit transaction", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, servicePrefix+id+"/change/", http.StatusSeeOther)
}

// ServiceChangeHandler renders the change page (GET) and processes its form
// (POST).
func ServiceChangeHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serviceID, err := serviceIDFromPath(r.URL.Path)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch r.Method {
		case http.MethodGet:
			renderChangePage(db, w, r, serviceID, r.URL.Query().Get("msg"))
		case http.MethodPost:
			saveChangeForm(db, w, r, serviceID)
		default:
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	}
}

func renderChangePage(db *sqlx.DB, w http.ResponseWriter, r *http.Request, serviceID, message string) {
	service, err := database.GetService(db, serviceID)
	if err != nil {
		log.Printf("[ServiceChangeHandler] ERROR: %v", err)
		http.Error(w, "Failed to load service", http.StatusInternalServerError)
		return
	}
	if service == nil {
		http.NotFound(w, r)
		return
	}
	parts, err := database.ListSpareParts(db)
	if err != nil {
		log.Printf("[ServiceChangeHandler] ERROR: %v", err)
		http.Error(w, "Failed to load spare parts", http.StatusInternalServerError)
		return
	}
	committed, err := database.GetCommittedAllocations(db, serviceID)
	if err != nil {
		log.Printf("[ServiceChangeHandler] ERROR: %v", err)
		http.Error(w, "Failed to load allocations", http.StatusInternalServerError)
		return
	}
	rows, err := database.GetServiceAllocationRows(db, serviceID)
	if err != nil {
		log.Printf("[ServiceChangeHandler] ERROR: %v", err)
		http.Error(w, "Failed to load allocations", http.StatusInternalServerError)
		return
	}

	selected := make(map[string]bool, len(committed))
	for _, c := range committed {
		selected[c.ID] = true
	}

	token := EnsureCSRFCookie(w, r)
	page := render.ServicePage{
		ServiceID:   serviceID,
		Description: service.Description,
		CSRFToken:   token,
		Parts:       parts,
		Selected:    selected,
		Committed:   committed,
		Allocations: rows,
		Message:     message,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, render.RenderServicePage(page))
}

func saveChangeForm(db *sqlx.DB, w http.ResponseWriter, r *http.Request, serviceID string) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form: "+err.Error(), http.StatusBadRequest)
		return
	}
	if csrfRequired() && !CheckCSRF(r) {
		http.Error(w, "CSRF verification failed", http.StatusForbidden)
		return
	}

	allocs, err := formfields.ParseSubmitted(r.PostForm)
	if err != nil {
		log.Printf("[ServiceChangeHandler] ERROR: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if selected, ok := r.PostForm["spare_part"]; ok {
		allocs = keepSelected(allocs, selected)
	}

	log.Printf("[ServiceChangeHandler] Received %d spare part allocations for service %s", len(allocs), serviceID)

	tx, err := db.Beginx()
	if err != nil {
		http.Error(w, "Failed to start transaction", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	if err := database.EnsureServiceInTx(tx, serviceID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if desc, ok := r.PostForm["description"]; ok && len(desc) > 0 {
		if err := database.UpdateServiceDescriptionInTx(tx, serviceID, desc[0]); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	res, err := database.ApplyAllocationsInTx(tx, serviceID, allocs)
	if err != nil {
		if errors.Is(err, database.ErrInsufficientStock) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		log.Printf("[ServiceChangeHandler] ERROR: %v", err)
		http.Error(w, "Failed to save allocations: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(); err != nil {
		http.Error(w, "Failed to commit transaction", http.StatusInternalServerError)
		return
	}

	msg := fmt.Sprintf("Saved: %d allocated, %d released", res.Allocated, res.Released)
	http.Redirect(w, r, servicePrefix+serviceID+"/change/?msg="+url.QueryEscape(msg), http.StatusSeeOther)
}

func keepSelected(allocs []model.Allocation, selected []string) []model.Allocation {
	keep := make(map[string]bool, len(selected))
	for _, id := range selected {
		keep[id] = true
	}
	out := allocs[:0]
	for _, a := range allocs {
		if keep[a.ID] {
			out = append(out, a)
		} else {
			log.Printf("WARN: dropping allocation for deselected spare part %s", a.ID)
		}
	}
	return out
}
