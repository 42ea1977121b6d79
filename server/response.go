package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/melkeydev/db-export/types"
)

// envelope is the JSON body of every non-binary response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type tablesResponse struct {
	Success bool     `json:"success"`
	Tables  []string `json:"tables"`
}

type schemasResponse struct {
	Success bool     `json:"success"`
	Schemas []string `json:"schemas"`
}

type healthResponse struct {
	Status            string `json:"status"`
	Environment       string `json:"environment"`
	MySQLConnected    bool   `json:"mysqlConnected"`
	PostgresConnected bool   `json:"postgresConnected"`
	SQLiteConnected   bool   `json:"sqliteConnected"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps an error onto its HTTP status and client message.
func statusFor(err error) (int, string) {
	var (
		bad  *types.BadRequestError
		nac  *types.NoActiveConnectionError
		conn *types.ConnectionError
		qe   *types.QueryError
	)
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest, bad.Message
	case errors.As(err, &nac):
		return http.StatusBadRequest, nac.Error()
	case errors.Is(err, types.ErrSchemasUnsupported):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &conn):
		return http.StatusInternalServerError, "Failed to connect to database"
	case errors.As(err, &qe):
		return http.StatusInternalServerError, "Database query failed"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// writeError writes the JSON error envelope. The raw error text is
// included for server side failures unless details are redacted.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)

	body := envelope{Success: false, Message: message}
	if status >= 500 && !s.cfg.IsProduction() {
		body.Error = err.Error()
	}

	s.logger.WarnContext(r.Context(), "request failed",
		"path", r.URL.Path,
		"status", status,
		"request_id", RequestID(r.Context()),
		"error", err,
	)
	writeJSON(w, status, body)
}
