package main

import (
	"net/http"

	"github.com/bbmatyushin/medsil-equipment-base/batchclient"
	"github.com/bbmatyushin/medsil-equipment-base/loader"
	"github.com/bbmatyushin/medsil-equipment-base/sparepart"

	"github.com/jmoiron/sqlx"
)

func SetupRoutes(mux *http.ServeMux, dbConn *sqlx.DB) {
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/admin/service/", http.StatusFound)
	})

	mux.HandleFunc(batchclient.EndpointPrefix, sparepart.GetBatchesHandler(dbConn))
	mux.HandleFunc("/admin/service/", sparepart.ServiceHandler(dbConn))

	mux.HandleFunc("/api/spare-parts", sparepart.ListSparePartsHandler(dbConn))
	mux.HandleFunc("/api/supplies/import", loader.ImportSuppliesHandler(dbConn))
	mux.HandleFunc("/api/supplies/", sparepart.SuppliesHandler(dbConn))
	mux.HandleFunc("/api/shipments/", sparepart.ShipmentsHandler(dbConn))
	mux.HandleFunc("/api/stock", sparepart.StockHandler(dbConn))

	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			GetConfigHandler()(w, r)
		case http.MethodPost:
			SaveConfigHandler()(w, r)
		default:
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	})
}
