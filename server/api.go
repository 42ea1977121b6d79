package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/melkeydev/db-export/types"
)

const maxBodyBytes = 1 << 20

// port accepts a JSON number or a numeric string, since form inputs
// often send the port as text.
type port int

func (p *port) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*p = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid port %q", s)
	}
	*p = port(n)
	return nil
}

type connectRequest struct {
	Type     string `json:"type"`
	Host     string `json:"host"`
	Port     port   `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	Schema   string `json:"schema"`
	SSLMode  string `json:"sslmode"`
}

type exportRequest struct {
	Type   string   `json:"type"`
	Schema string   `json:"schema"`
	Tables []string `json:"tables"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &types.BadRequestError{Message: "invalid request body: " + err.Error()}
	}
	return nil
}

// parseKind treats an empty type as missing.
func parseKind(s string) (types.Kind, error) {
	if strings.TrimSpace(s) == "" {
		return "", &types.BadRequestError{Message: "missing database type"}
	}
	kind, err := types.ParseKind(s)
	if err != nil {
		return "", &types.BadRequestError{Message: err.Error()}
	}
	return kind, nil
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	kind, err := parseKind(req.Type)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	d := types.Descriptor{
		Kind:     kind,
		Host:     req.Host,
		Port:     int(req.Port),
		User:     req.User,
		Password: req.Password,
		Database: req.Database,
		Schema:   req.Schema,
		SSLMode:  req.SSLMode,
	}
	if err := s.sessions.Connect(r.Context(), d); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: fmt.Sprintf("Connected to %s database %s", kind, req.Database),
	})
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, err := parseKind(q.Get("type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tables, err := s.sessions.ListTables(r.Context(), kind, q.Get("schema"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tables == nil {
		tables = []string{}
	}
	writeJSON(w, http.StatusOK, tablesResponse{Success: true, Tables: tables})
}

func (s *Server) handleSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := s.sessions.ListSchemas(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if schemas == nil {
		schemas = []string{}
	}
	writeJSON(w, http.StatusOK, schemasResponse{Success: true, Schemas: schemas})
}

// handleExport validates the request and only then commits to a ZIP
// response. Once headers are out a failure can only drop the connection.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	var kind types.Kind
	if req.Type != "" {
		k, err := parseKind(req.Type)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		kind = k
	}

	job, err := s.exporter.Prepare(r.Context(), types.ExportRequest{
		Kind:   kind,
		Schema: req.Schema,
		Tables: req.Tables,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=export.zip")
	w.WriteHeader(http.StatusOK)
	job.Begin()

	if err := job.Run(r.Context(), w); err != nil {
		s.logger.ErrorContext(r.Context(), "aborting export response",
			"request_id", RequestID(r.Context()),
			"state", job.State().String(),
			"error", err,
		)
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:            "ok",
		Environment:       s.cfg.Environment,
		MySQLConnected:    s.sessions.Connected(types.KindMySQL),
		PostgresConnected: s.sessions.Connected(types.KindPostgres),
		SQLiteConnected:   s.sessions.Connected(types.KindSQLite),
	})
}
