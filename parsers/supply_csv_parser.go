package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/bbmatyushin/medsil-equipment-base/model"
)

var supplyColumns = map[string][]string{
	"article":    {"article", "Артикул"},
	"name":       {"name", "Наименование"},
	"unit":       {"unit", "Ед.изм."},
	"count":      {"count", "count_supply", "Кол-во"},
	"expiration": {"expiration_dt", "Годен до"},
	"doc_num":    {"doc_num", "Номер документа"},
}

var expirationLayouts = []string{"2006-01-02", "02.01.2006", "2006/01/02", "20060102"}

// NormalizeExpiration turns the accepted date spellings into YYYY-MM-DD.
// An empty or "-" value means no expiration date.
func NormalizeExpiration(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return "", nil
	}
	for _, layout := range expirationLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("invalid expiration date: %q", s)
}

// ParseSupplyCSV reads a supply list. Rows with a missing name, an
// unparseable count or date are skipped with a warning.
func ParseSupplyCSV(r io.Reader, encoding string) ([]model.Supply, error) {
	decoded, err := DecodeReader(r, encoding)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(decoded)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("CSV file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colIndex, err := getColIndex(header, supplyColumns, []string{"name", "count"})
	if err != nil {
		return nil, err
	}

	var records []model.Supply
	line := 1
	for {
		line++
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("WARN: CSV line %d read error (skipped): %v", line, err)
			continue
		}

		get := func(col string) string {
			idx, ok := colIndex[col]
			if ok && idx < len(rec) {
				return strings.TrimSpace(rec[idx])
			}
			return ""
		}

		name := get("name")
		if name == "" {
			continue
		}
		count, err := strconv.ParseFloat(strings.ReplaceAll(get("count"), ",", "."), 64)
		if err != nil || count < 0 {
			log.Printf("WARN: CSV line %d: invalid count %q (skipped)", line, get("count"))
			continue
		}
		exp, err := NormalizeExpiration(get("expiration"))
		if err != nil {
			log.Printf("WARN: CSV line %d: %v (skipped)", line, err)
			continue
		}

		records = append(records, model.Supply{
			Article:      get("article"),
			Name:         name,
			Unit:         get("unit"),
			Count:        count,
			ExpirationDt: exp,
			DocNum:       get("doc_num"),
		})
	}
	return records, nil
}
