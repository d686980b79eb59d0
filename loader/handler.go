package loader

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/bbmatyushin/medsil-equipment-base/config"

	"github.com/jmoiron/sqlx"
)

// ImportSuppliesHandler books the supplies of an uploaded CSV file.
func ImportSuppliesHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "failed to read CSV file: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()

		encoding := r.FormValue("encoding")
		if encoding == "" {
			encoding = config.GetConfig().CSVEncoding
		}

		res, err := LoadSupplies(db, file, encoding)
		if err != nil {
			log.Printf("[ImportSuppliesHandler] ERROR: %v", err)
			http.Error(w, "failed to import supplies: "+err.Error(), http.StatusBadRequest)
			return
		}

		message := fmt.Sprintf("Import complete: %d supplies", res.Imported)
		if len(res.Errors) > 0 {
			message += fmt.Sprintf(", %d rows failed", len(res.Errors))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": message,
			"results": res,
		})
	}
}
