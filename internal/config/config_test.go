package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.ini")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := writeConfig(t, `
[database]
user = weather
password = secret
host = db.internal
port = 5433
database = wx
sslmode = require

[server]
port = 9090
read_timeout = 30s

[logging]
level = debug
ingestion_log = /var/log/wx/ingestion.log
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Database.User != "weather" {
		t.Errorf("Database.User = %q, want weather", cfg.Database.User)
	}
	if cfg.Database.Password != "secret" {
		t.Errorf("Database.Password = %q, want secret", cfg.Database.Password)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("Database.Host = %q, want db.internal", cfg.Database.Host)
	}
	if cfg.Database.Port != 5433 {
		t.Errorf("Database.Port = %d, want 5433", cfg.Database.Port)
	}
	if cfg.Database.Database != "wx" {
		t.Errorf("Database.Database = %q, want wx", cfg.Database.Database)
	}
	if cfg.Database.SSLMode != "require" {
		t.Errorf("Database.SSLMode = %q, want require", cfg.Database.SSLMode)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Logging.IngestionLogPath != "/var/log/wx/ingestion.log" {
		t.Errorf("Logging.IngestionLogPath = %q", cfg.Logging.IngestionLogPath)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.ini"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want localhost default", cfg.Database.Host)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want 5432 default", cfg.Database.Port)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info default", cfg.Logging.Level)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[database]
host = file-host
port = 5432
`)

	t.Setenv("WEATHER_DB_HOST", "env-host")
	t.Setenv("WEATHER_DB_PORT", "6543")
	t.Setenv("WEATHER_LOG_LEVEL", "warn")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Database.Host != "env-host" {
		t.Errorf("Database.Host = %q, want env-host", cfg.Database.Host)
	}
	if cfg.Database.Port != 6543 {
		t.Errorf("Database.Port = %d, want 6543", cfg.Database.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "empty host", mutate: func(c *Config) { c.Database.Host = "" }, wantErr: true},
		{name: "port out of range", mutate: func(c *Config) { c.Database.Port = 70000 }, wantErr: true},
		{name: "empty user", mutate: func(c *Config) { c.Database.User = "" }, wantErr: true},
		{name: "empty database name", mutate: func(c *Config) { c.Database.Database = "" }, wantErr: true},
		{name: "bad server port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "unknown log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
