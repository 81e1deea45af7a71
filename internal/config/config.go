package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration values.
type Config struct {
	DatabasePath      string   `yaml:"db"`
	HTTPPort          string   `yaml:"http_port"`
	Secret            string   `yaml:"secret"`
	OperatorUser      string   `yaml:"operator_user"`
	OperatorPassword  string   `yaml:"operator_password"`
	LowStockThreshold int64    `yaml:"low_stock_threshold"`
	DueHorizonDays    int      `yaml:"due_horizon_days"`
	BillTermDays      int      `yaml:"bill_term_days"`
	CatalogCSV        string   `yaml:"catalog_csv"`
	CORSOrigins       []string `yaml:"cors_origins"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		DatabasePath:      "inventory_system.db",
		HTTPPort:          "8080",
		Secret:            "dev_secret",
		OperatorUser:      "admin",
		OperatorPassword:  "admin",
		LowStockThreshold: 10,
		DueHorizonDays:    3,
		BillTermDays:      14,
		CORSOrigins:       []string{"*"},
	}
}

// Load reads configuration from an optional YAML file named by STOCKBOOK_CONFIG,
// then from environment variables, with reasonable defaults for everything.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("STOCKBOOK_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}

	setString(&cfg.DatabasePath, "STOCKBOOK_DB")
	setString(&cfg.HTTPPort, "HTTP_PORT")
	setString(&cfg.Secret, "SECRET")
	setString(&cfg.OperatorUser, "OPERATOR_USER")
	setString(&cfg.OperatorPassword, "OPERATOR_PASSWORD")
	setString(&cfg.CatalogCSV, "CATALOG_CSV")
	setInt(&cfg.DueHorizonDays, "DUE_HORIZON_DAYS")
	setInt(&cfg.BillTermDays, "BILL_TERM_DAYS")
	if v := os.Getenv("LOW_STOCK_THRESHOLD"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.LowStockThreshold = n
		} else {
			slog.Warn("invalid LOW_STOCK_THRESHOLD, keeping default", "value", v)
		}
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}

	// Validate that port is numeric.
	if _, err := strconv.Atoi(cfg.HTTPPort); err != nil {
		slog.Warn("invalid HTTP_PORT, defaulting to 8080", "value", cfg.HTTPPort)
		cfg.HTTPPort = "8080"
	}
	if cfg.BillTermDays <= 0 {
		cfg.BillTermDays = 14
	}
	if cfg.DueHorizonDays < 0 {
		cfg.DueHorizonDays = 3
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer setting, keeping default", "key", key, "value", v)
		return
	}
	*dst = n
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
