package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bbmatyushin/medsil-equipment-base/config"
	"github.com/bbmatyushin/medsil-equipment-base/parsers"
)

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}

// GetConfigHandler returns the current configuration.
func GetConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := config.GetConfig()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cfg)
	}
}

// SaveConfigHandler validates and stores a new configuration.
func SaveConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var newCfg config.Config
		if err := json.NewDecoder(r.Body).Decode(&newCfg); err != nil {
			writeJSONError(w, "Invalid request body.", http.StatusBadRequest)
			return
		}

		if err := validateDatabaseDir(newCfg.DatabasePath); err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if newCfg.CSVEncoding != "" {
			if _, err := parsers.DecodeReader(strings.NewReader(""), newCfg.CSVEncoding); err != nil {
				writeJSONError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		if err := config.SaveConfig(newCfg); err != nil {
			log.Printf("Error saving config: %v", err)
			writeJSONError(w, "Failed to save configuration.", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Configuration saved."})
	}
}

// validateDatabaseDir checks that the folder of the database file exists.
func validateDatabaseDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.New("database folder not found: " + dir)
		}
		log.Printf("Error checking database folder: %v", err)
		return errors.New("failed to check the database folder.")
	}
	if !info.IsDir() {
		return errors.New("not a folder: " + dir)
	}
	return nil
}
