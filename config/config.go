package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr             string `json:"listenAddr" yaml:"listenAddr"`
	DatabasePath           string `json:"databasePath" yaml:"databasePath"`
	BaseURL                string `json:"baseURL" yaml:"baseURL"`
	CSRFCheck              bool   `json:"csrfCheck" yaml:"csrfCheck"`
	EnforceQuantityCeiling bool   `json:"enforceQuantityCeiling" yaml:"enforceQuantityCeiling"`
	FetchTimeoutSeconds    int    `json:"fetchTimeoutSeconds" yaml:"fetchTimeoutSeconds"`
	CSVEncoding            string `json:"csvEncoding" yaml:"csvEncoding"`
	BrowserHeadless        bool   `json:"browserHeadless" yaml:"browserHeadless"`
}

var (
	cfg Config
	mu  sync.RWMutex

	configFilePath = "./ebase_config.json"
)

func Default() Config {
	return Config{
		ListenAddr:      ":8080",
		DatabasePath:    "./ebase.db",
		BaseURL:         "http://localhost:8080",
		CSRFCheck:       true,
		CSVEncoding:     "utf-8",
		BrowserHeadless: true,
	}
}

// SetPath changes the file LoadConfig and SaveConfig use. A .yaml or .yml
// extension switches the format to YAML.
func SetPath(path string) {
	mu.Lock()
	defer mu.Unlock()
	if path != "" {
		configFilePath = path
	}
}

func Path() string {
	mu.RLock()
	defer mu.RUnlock()
	return configFilePath
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig reads the config file. A missing file yields the defaults.
func LoadConfig() (Config, error) {
	mu.Lock()
	defer mu.Unlock()

	file, err := os.ReadFile(configFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = Default()
			return cfg, nil
		}
		return Config{}, err
	}

	tempCfg := Default()
	if isYAML(configFilePath) {
		err = yaml.Unmarshal(file, &tempCfg)
	} else {
		err = json.Unmarshal(file, &tempCfg)
	}
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&tempCfg)
	cfg = tempCfg

	return cfg, nil
}

func SaveConfig(newCfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	applyDefaults(&newCfg)

	var (
		file []byte
		err  error
	)
	if isYAML(configFilePath) {
		file, err = yaml.Marshal(newCfg)
	} else {
		file, err = json.MarshalIndent(newCfg, "", "  ")
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(configFilePath, file, 0644); err != nil {
		return err
	}
	cfg = newCfg
	return nil
}

func GetConfig() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

func applyDefaults(c *Config) {
	d := Default()
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.DatabasePath == "" {
		c.DatabasePath = d.DatabasePath
	}
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.CSVEncoding == "" {
		c.CSVEncoding = d.CSVEncoding
	}
	if c.FetchTimeoutSeconds < 0 {
		c.FetchTimeoutSeconds = 0
	}
}
