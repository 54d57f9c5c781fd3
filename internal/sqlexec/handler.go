package sqlexec

import (
	"encoding/json"
	"net/http"
	"strings"
)

// maxBodyBytes caps the size of a request body.
const maxBodyBytes = 10 << 20

// Messages returned to callers.
const (
	ErrMsgSQLRequired   = "SQL query is required"
	ErrMsgMissingConfig = "Missing Supabase configuration"
)

// ConfigCheck reports whether the proxy is configured, with diagnostics to show
// when it is not.
type ConfigCheck func() (ok bool, details map[string]any)

// Handler serves the SQL proxy endpoint.
type Handler struct {
	service *Service
	check   ConfigCheck
}

// NewHandler creates a handler. service may be nil only when check reports the
// proxy as unconfigured.
func NewHandler(service *Service, check ConfigCheck) *Handler {
	return &Handler{service: service, check: check}
}

type requestBody struct {
	SQL         string `json:"sql"`
	SQLText     string `json:"sql_text"`
	OperationID string `json:"operation_id"`
}

type responseBody struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Details any             `json:"details,omitempty"`
}

// ServeHTTP handles OPTIONS preflight and POST execution.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		w.Header().Set("Allow", "POST, OPTIONS")
		writeJSON(w, http.StatusMethodNotAllowed, responseBody{Error: "Method not allowed"})
		return
	}

	req := parseRequest(w, r)
	if req.SQL == "" {
		writeJSON(w, http.StatusBadRequest, responseBody{Error: ErrMsgSQLRequired})
		return
	}

	if h.check != nil {
		if ok, details := h.check(); !ok {
			writeJSON(w, http.StatusInternalServerError, responseBody{Error: ErrMsgMissingConfig, Details: details})
			return
		}
	}
	if h.service == nil {
		writeJSON(w, http.StatusInternalServerError, responseBody{Error: ErrMsgMissingConfig})
		return
	}

	exec, opID := h.service.Run(r.Context(), req)

	if exec.Success {
		data := exec.Data
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		writeJSON(w, http.StatusOK, responseBody{
			Success: true,
			Data:    data,
			Details: map[string]any{
				"method":          exec.Method,
				"executionTimeMs": exec.ExecutionTimeMs,
				"operationId":     opID,
			},
		})
		return
	}

	details := map[string]any{
		"method":          exec.Method,
		"executionTimeMs": exec.ExecutionTimeMs,
		"operationId":     opID,
		"attempts":        exec.Attempts,
	}
	msg := "SQL execution failed"
	if exec.Error != nil {
		msg = exec.Error.Message
		if exec.Error.Details != nil {
			details["error"] = exec.Error.Details
		}
	}
	writeJSON(w, http.StatusInternalServerError, responseBody{Error: msg, Details: details})
}

// parseRequest reads the body leniently: malformed JSON counts as an empty request.
func parseRequest(w http.ResponseWriter, r *http.Request) Request {
	var body requestBody
	if r.Body != nil {
		json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body)
	}

	sql := body.SQL
	if strings.TrimSpace(sql) == "" {
		sql = body.SQLText
	}
	if strings.TrimSpace(sql) == "" {
		sql = ""
	}
	return Request{SQL: sql, OperationID: body.OperationID}
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
}

func writeJSON(w http.ResponseWriter, status int, body responseBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
