package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tessera-data/tessera"
	"github.com/tessera-data/tessera/factory"
	"go.uber.org/zap"
)

// handleFederatedQuery handles POST /api/v1/federated_query
func (s *Server) handleFederatedQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var query tessera.FederatedQuery
	if err := readJSONBody(r, &query); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}

	if strings.TrimSpace(query.Text) == "" {
		writeError(w, http.StatusBadRequest, "query text is required")
		return
	}

	result, err := s.engine.ExecuteFederatedQuery(r.Context(), query)
	if err != nil {
		zap.S().Warnw("federated query failed", "query_id", query.ID, "error", err)
		writeEngineError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, result)
}

// handleValidate handles POST /api/v1/validate
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := readJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}

	// A failed validation is still a successful validation request.
	writeSuccess(w, http.StatusOK, s.engine.ValidateQuerySyntax(body.Text))
}

// handleSchema handles GET /api/v1/schema/{source_id}/{collection}
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sourceID, collection, err := parseSchemaPath(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid path: %v", err))
		return
	}

	fields, err := s.engine.GetLogicalCollectionSchema(r.Context(), sourceID, collection)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if fields == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("collection not found: %s", collection))
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"source_id":  sourceID,
		"collection": collection,
		"fields":     fields,
	})
}

// handleSources dispatches /api/v1/sources and /api/v1/sources/{source_id}
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleAddSource(w, r)
	case http.MethodDelete:
		s.handleRemoveSource(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleAddSource handles POST /api/v1/sources
func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var source tessera.DataSource
	if err := readJSONBody(r, &source); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}
	if source.ID == "" {
		writeError(w, http.StatusBadRequest, "source id is required")
		return
	}

	sourceAdapter, err := factory.NewSourceAdapter(source.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.engine.AddDataSource(r.Context(), source, sourceAdapter); err != nil {
		writeEngineError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, map[string]any{"id": source.ID})
}

// handleRemoveSource handles DELETE /api/v1/sources/{source_id}
func (s *Server) handleRemoveSource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := parseSourcePath(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid path: %v", err))
		return
	}

	if err := s.engine.RemoveDataSource(r.Context(), sourceID); err != nil {
		writeEngineError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"id": sourceID})
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
