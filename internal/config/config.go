package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/ini.v1"
)

// DefaultPath is where the config file lives relative to the working
// directory, matching the layout the deployment scripts expect.
const DefaultPath = "config/config.ini"

// Config holds all process configuration.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds storage connection parameters.
type DatabaseConfig struct {
	User            string
	Password        string
	Host            string
	Port            int
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// LoggingConfig holds log level and the ingestion log sink settings.
type LoggingConfig struct {
	Level               string
	IngestionLogPath    string
	IngestionLogMaxMB   int
	IngestionLogBackups int
}

func defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			User:            "postgres",
			Password:        "",
			Host:            "localhost",
			Port:            5432,
			Database:        "weather_db",
			SSLMode:         "disable",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:               "info",
			IngestionLogPath:    "ingestion.log",
			IngestionLogMaxMB:   10,
			IngestionLogBackups: 5,
		},
	}
}

// LoadConfig reads configuration from an INI file and applies environment
// overrides. A missing file is not an error; defaults plus environment are
// used so containerized deployments can run file-less.
func LoadConfig(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		path = DefaultPath
	}

	if _, err := os.Stat(path); err == nil {
		file, err := ini.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		applyFile(cfg, file)
	}

	applyEnv(cfg)

	return cfg, nil
}

func applyFile(cfg *Config, file *ini.File) {
	db := file.Section("database")
	cfg.Database.User = db.Key("user").MustString(cfg.Database.User)
	cfg.Database.Password = db.Key("password").MustString(cfg.Database.Password)
	cfg.Database.Host = db.Key("host").MustString(cfg.Database.Host)
	cfg.Database.Port = db.Key("port").MustInt(cfg.Database.Port)
	cfg.Database.Database = db.Key("database").MustString(cfg.Database.Database)
	cfg.Database.SSLMode = db.Key("sslmode").MustString(cfg.Database.SSLMode)
	cfg.Database.MaxOpenConns = db.Key("max_open_conns").MustInt(cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = db.Key("max_idle_conns").MustInt(cfg.Database.MaxIdleConns)
	cfg.Database.ConnMaxLifetime = db.Key("conn_max_lifetime").MustDuration(cfg.Database.ConnMaxLifetime)
	cfg.Database.ConnMaxIdleTime = db.Key("conn_max_idle_time").MustDuration(cfg.Database.ConnMaxIdleTime)

	srv := file.Section("server")
	cfg.Server.Host = srv.Key("host").MustString(cfg.Server.Host)
	cfg.Server.Port = srv.Key("port").MustInt(cfg.Server.Port)
	cfg.Server.ReadTimeout = srv.Key("read_timeout").MustDuration(cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = srv.Key("write_timeout").MustDuration(cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = srv.Key("idle_timeout").MustDuration(cfg.Server.IdleTimeout)

	lg := file.Section("logging")
	cfg.Logging.Level = lg.Key("level").MustString(cfg.Logging.Level)
	cfg.Logging.IngestionLogPath = lg.Key("ingestion_log").MustString(cfg.Logging.IngestionLogPath)
	cfg.Logging.IngestionLogMaxMB = lg.Key("ingestion_log_max_mb").MustInt(cfg.Logging.IngestionLogMaxMB)
	cfg.Logging.IngestionLogBackups = lg.Key("ingestion_log_backups").MustInt(cfg.Logging.IngestionLogBackups)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("WEATHER_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("WEATHER_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("WEATHER_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("WEATHER_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("WEATHER_DB_NAME"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("WEATHER_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("WEATHER_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("WEATHER_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WEATHER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for values that would fail at runtime.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host must not be empty")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("database port %d out of range", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user must not be empty")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name must not be empty")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}
