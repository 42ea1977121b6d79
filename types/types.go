package types

import (
	"fmt"
	"log/slog"
	"strings"
)

type Kind string

const (
	KindMySQL    Kind = "mysql"
	KindPostgres Kind = "postgres"
	KindSQLite   Kind = "sqlite"
)

// DefaultSchema is used for PostgreSQL when a request does not name one.
const DefaultSchema = "public"

// Kinds lists every supported database kind.
var Kinds = []Kind{KindMySQL, KindPostgres, KindSQLite}

// ParseKind maps a user supplied database type onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql", "mariadb":
		return KindMySQL, nil
	case "postgres", "postgresql", "pg":
		return KindPostgres, nil
	case "sqlite", "sqlite3":
		return KindSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database type: %q", s)
	}
}

// Descriptor carries the user supplied credentials for one connection.
// It lives only in process memory.
type Descriptor struct {
	Kind     Kind   `json:"type" yaml:"type"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`
	Schema   string `json:"schema,omitempty" yaml:"schema,omitempty"`
	SSLMode  string `json:"sslmode,omitempty" yaml:"sslmode,omitempty"`
}

// WithDefaults fills in host, port and schema for the descriptor's kind.
func (d Descriptor) WithDefaults() Descriptor {
	if d.Kind == KindSQLite {
		d.Schema = ""
		return d
	}
	if d.Host == "" {
		d.Host = "localhost"
	}
	switch d.Kind {
	case KindMySQL:
		if d.Port == 0 {
			d.Port = 3306
		}
		d.Schema = ""
	case KindPostgres:
		if d.Port == 0 {
			d.Port = 5432
		}
		if d.Schema == "" {
			d.Schema = DefaultSchema
		}
	}
	return d
}

// Validate reports missing required fields.
func (d Descriptor) Validate() error {
	var missing []string
	if d.Kind == "" {
		missing = append(missing, "type")
	}
	if d.Database == "" {
		missing = append(missing, "database")
	}
	if d.Kind != KindSQLite && d.User == "" {
		missing = append(missing, "user")
	}
	if len(missing) > 0 {
		return &BadRequestError{Message: "missing required fields: " + strings.Join(missing, ", ")}
	}
	if !knownKind(d.Kind) {
		return &BadRequestError{Message: fmt.Sprintf("unsupported database type: %q", d.Kind)}
	}
	if d.Port < 0 || d.Port > 65535 {
		return &BadRequestError{Message: fmt.Sprintf("invalid port %d", d.Port)}
	}
	return nil
}

func knownKind(k Kind) bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// LogValue keeps the password out of structured logs.
func (d Descriptor) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("type", string(d.Kind)),
		slog.String("host", d.Host),
		slog.Int("port", d.Port),
		slog.String("user", d.User),
		slog.String("database", d.Database),
		slog.String("schema", d.Schema),
	)
}

// ExportRequest names the tables to bundle into one archive.
type ExportRequest struct {
	Kind   Kind
	Schema string
	Tables []string
}
