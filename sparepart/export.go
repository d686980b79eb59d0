package sparepart

import (
	"fmt"
	"log"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/xuri/excelize/v2"

	"github.com/bbmatyushin/medsil-equipment-base/database"
	"github.com/bbmatyushin/medsil-equipment-base/model"
)

const exportSheet = "Spare parts"

var exportHeaders = []string{"Spare part ID", "Name", "Article", "Expiration", "Quantity", "Unit"}

// BuildAllocationWorkbook lays the committed allocations of a service out on a
// single sheet.
func BuildAllocationWorkbook(rows []model.ServiceAllocationRow) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(exportSheet, cell, h)
		f.SetCellStyle(exportSheet, cell, cell, headerStyle)
	}

	for i, r := range rows {
		expiry := ""
		if r.ExpirationDt.Valid {
			expiry = r.ExpirationDt.String
		}
		values := []interface{}{r.SparePartID, r.PartName, r.Article.String, expiry, r.Quantity, r.Unit}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			f.SetCellValue(exportSheet, cell, v)
		}
	}

	f.SetColWidth(exportSheet, "A", "A", 38)
	f.SetColWidth(exportSheet, "B", "B", 40)
	f.SetColWidth(exportSheet, "C", "F", 15)

	return f, nil
}

// ExportAllocationsHandler serves /admin/service/{id}/spare-parts/export.
func ExportAllocationsHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		serviceID, err := serviceIDFromPath(r.URL.Path)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		rows, err := database.GetServiceAllocationRows(db, serviceID)
		if err != nil {
			log.Printf("[ExportAllocationsHandler] ERROR: %v", err)
			http.Error(w, "Failed to load allocations", http.StatusInternalServerError)
			return
		}

		f, err := BuildAllocationWorkbook(rows)
		if err != nil {
			log.Printf("[ExportAllocationsHandler] ERROR: %v", err)
			http.Error(w, "Failed to build Excel file", http.StatusInternalServerError)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=service_%s_spare_parts.xlsx", serviceID))
		if err := f.Write(w); err != nil {
			log.Printf("[ExportAllocationsHandler] ERROR: write workbook: %v", err)
		}
	}
}
