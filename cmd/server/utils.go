package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tessera-data/tessera"
)

// parseSchemaPath parses /api/v1/schema/{source_id}/{collection}
func parseSchemaPath(path string) (sourceID string, collection string, err error) {
	path = strings.TrimPrefix(path, "/api/v1/schema/")
	path = strings.Trim(path, "/")

	if path == "" {
		return "", "", fmt.Errorf("invalid path: empty source id")
	}

	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid path format, want /api/v1/schema/{source_id}/{collection}")
	}
	return parts[0], parts[1], nil
}

// parseSourcePath parses /api/v1/sources/{source_id}
func parseSourcePath(path string) (string, error) {
	path = strings.TrimPrefix(path, "/api/v1/sources")
	path = strings.Trim(path, "/")
	if path == "" || strings.Contains(path, "/") {
		return "", fmt.Errorf("invalid path format, want /api/v1/sources/{source_id}")
	}
	return path, nil
}

// APIResponse is the standard response format
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// writeJSON writes JSON response to http.ResponseWriter
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, message string) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeEngineError maps an engine error to an HTTP status. Validation
// failures are the client's fault; connection trouble is the backend's.
func writeEngineError(w http.ResponseWriter, err error) error {
	statusCode := http.StatusInternalServerError
	code := ""
	if engineErr, ok := tessera.AsError(err); ok {
		code = engineErr.Code
		switch engineErr.Type {
		case tessera.ErrorTypeValidation:
			statusCode = http.StatusBadRequest
		case tessera.ErrorTypeNotFound:
			statusCode = http.StatusNotFound
		case tessera.ErrorTypeTimeout:
			statusCode = http.StatusGatewayTimeout
		case tessera.ErrorTypeConnection:
			statusCode = http.StatusBadGateway
		}
	}
	return writeJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   err.Error(),
		Code:    code,
	})
}

// readJSONBody reads and decodes JSON from request body
func readJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
