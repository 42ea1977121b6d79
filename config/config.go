package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/melkeydev/db-export/types"
)

const (
	DefaultConfigPath      = "config.yaml"
	DefaultEnvironment     = "development"
	DefaultListenAddress   = ":8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultFlushEveryRows  = 100
	DefaultMetricsPath     = "/metrics"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultSQLiteFile      = "database.db"
	DefaultCompression     = 9
)

type Config struct {
	Environment string          `yaml:"environment"`
	Server      ServerConfig    `yaml:"server"`
	Logging     LoggingConfig   `yaml:"logging"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	Export      ExportConfig    `yaml:"export"`
	Database    *DatabaseConfig `yaml:"database,omitempty"`
}

// ServerConfig holds the HTTP listener settings. A zero WriteTimeout
// leaves long exports uncut.
type ServerConfig struct {
	ListenAddress   string        `yaml:"listen_address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type ExportConfig struct {
	CompressionLevel int           `yaml:"compression_level"`
	FlushEveryRows   int           `yaml:"flush_every_rows"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
}

// DatabaseConfig is an optional connection opened at startup.
type DatabaseConfig struct {
	DBType   string `yaml:"type"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`
	Schema   string `yaml:"schema,omitempty"`
	SSLMode  string `yaml:"sslmode,omitempty"`
	File     string `yaml:"file,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// LoadConfig reads configPath, applies defaults and DBEXPORT_* environment
// overrides, then validates. A missing file yields the defaults.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	var config Config
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %w", err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	ApplyDefaults(&config)
	applyEnvOverrides(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func ApplyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = DefaultEnvironment
	}

	s := &cfg.Server
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if len(s.CORS.AllowedOrigins) == 0 {
		s.CORS.AllowedOrigins = []string{"*"}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	e := &cfg.Export
	if e.CompressionLevel == 0 {
		e.CompressionLevel = DefaultCompression
	}
	if e.FlushEveryRows == 0 {
		e.FlushEveryRows = DefaultFlushEveryRows
	}
	if e.ConnectTimeout == 0 {
		e.ConnectTimeout = DefaultConnectTimeout
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DBEXPORT_ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("DBEXPORT_SERVER_LISTEN_ADDRESS"); v != "" {
		cfg.Server.ListenAddress = v
	}
	envDuration("DBEXPORT_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("DBEXPORT_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("DBEXPORT_SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envBool("DBEXPORT_SERVER_CORS_ENABLED", &cfg.Server.CORS.Enabled)
	if v := os.Getenv("DBEXPORT_SERVER_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.CORS.AllowedOrigins = splitList(v)
	}

	if v := os.Getenv("DBEXPORT_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DBEXPORT_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	envBool("DBEXPORT_METRICS_ENABLED", &cfg.Metrics.Enabled)
	if v := os.Getenv("DBEXPORT_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}

	envInt("DBEXPORT_EXPORT_COMPRESSION_LEVEL", &cfg.Export.CompressionLevel)
	envInt("DBEXPORT_EXPORT_FLUSH_EVERY_ROWS", &cfg.Export.FlushEveryRows)
	envDuration("DBEXPORT_EXPORT_CONNECT_TIMEOUT", &cfg.Export.ConnectTimeout)

	if v := os.Getenv("DBEXPORT_DATABASE_TYPE"); v != "" {
		if cfg.Database == nil {
			cfg.Database = &DatabaseConfig{}
		}
		cfg.Database.DBType = v
	}
	if cfg.Database != nil {
		db := cfg.Database
		if v := os.Getenv("DBEXPORT_DATABASE_HOST"); v != "" {
			db.Host = v
		}
		envInt("DBEXPORT_DATABASE_PORT", &db.Port)
		if v := os.Getenv("DBEXPORT_DATABASE_USER"); v != "" {
			db.User = v
		}
		if v := os.Getenv("DBEXPORT_DATABASE_PASSWORD"); v != "" {
			db.Password = v
		}
		if v := os.Getenv("DBEXPORT_DATABASE_NAME"); v != "" {
			db.Database = v
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format: must be text or json, got %q", c.Logging.Format)
	}
	if c.Export.CompressionLevel < -2 || c.Export.CompressionLevel > 9 {
		return fmt.Errorf("export.compression_level: must be between -2 and 9, got %d", c.Export.CompressionLevel)
	}
	if c.Export.FlushEveryRows < 1 {
		return fmt.Errorf("export.flush_every_rows: must be positive, got %d", c.Export.FlushEveryRows)
	}
	if c.Server.ShutdownTimeout < 0 || c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server: timeouts must not be negative")
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path: must start with /, got %q", c.Metrics.Path)
	}
	if c.Database != nil {
		if _, err := c.Database.Descriptor(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	return nil
}

// IsProduction reports whether error details should be withheld from clients.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Descriptor converts the startup connection into a validated descriptor.
func (d *DatabaseConfig) Descriptor() (types.Descriptor, error) {
	kind, err := types.ParseKind(d.DBType)
	if err != nil {
		return types.Descriptor{}, err
	}

	desc := types.Descriptor{
		Kind:     kind,
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		Database: d.Database,
		Schema:   d.Schema,
		SSLMode:  d.SSLMode,
	}
	if kind == types.KindSQLite {
		if d.File != "" {
			desc.Database = d.File
		}
		if desc.Database == "" {
			desc.Database = DefaultSQLiteFile
		}
	}

	desc = desc.WithDefaults()
	if err := desc.Validate(); err != nil {
		return types.Descriptor{}, err
	}
	return desc, nil
}
