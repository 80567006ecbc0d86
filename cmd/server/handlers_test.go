package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tessera-data/tessera"
)

type mockEngine struct {
	queryResult *tessera.FederatedResult
	queryErr    error
	validation  tessera.ValidationResult
	schema      []tessera.Field
	schemaErr   error
	removeErr   error
	addErr      error
}

func (m *mockEngine) ExecuteFederatedQuery(ctx context.Context, query tessera.FederatedQuery) (*tessera.FederatedResult, error) {
	if m.queryResult != nil || m.queryErr != nil {
		return m.queryResult, m.queryErr
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockEngine) ValidateQuerySyntax(text string) tessera.ValidationResult {
	return m.validation
}

func (m *mockEngine) GetLogicalCollectionSchema(ctx context.Context, sourceID, name string) ([]tessera.Field, error) {
	return m.schema, m.schemaErr
}

func (m *mockEngine) AddDataSource(ctx context.Context, source tessera.DataSource, adapter tessera.SourceAdapter) error {
	return m.addErr
}

func (m *mockEngine) RemoveDataSource(ctx context.Context, sourceID string) error {
	return m.removeErr
}

func (m *mockEngine) SetMappings(mappings []tessera.SchemaMapping) {}

func (m *mockEngine) Close(ctx context.Context) error { return nil }

func newTestServer(engine tessera.Engine) *Server {
	server := NewServer(engine)
	server.RegisterRoutes()
	return server
}

func TestHandleFederatedQuerySuccess(t *testing.T) {
	result := &tessera.FederatedResult{
		Rows: []tessera.Row{
			{"name": tessera.String("Ann"), "amount": tessera.Number(9.5)},
		},
		ExecutionTimeMs: 3,
		LastUpdated:     time.Now(),
	}
	server := newTestServer(&mockEngine{queryResult: result})

	payload := []byte(`{
		"text": "SELECT users.name, orders.amount FROM users JOIN orders ON users.id = orders.uid",
		"data_source_ids": ["src-users", "src-orders"],
		"strategy": "virtual"
	}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/federated_query", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success response, got %+v", resp)
	}
}

func TestHandleFederatedQueryEmptyText(t *testing.T) {
	server := newTestServer(&mockEngine{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/federated_query", bytes.NewReader([]byte(`{"text": "  "}`)))
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestHandleFederatedQueryInvalidBody(t *testing.T) {
	server := newTestServer(&mockEngine{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/federated_query", bytes.NewReader([]byte(`{not json`)))
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestHandleFederatedQueryMethodNotAllowed(t *testing.T) {
	server := newTestServer(&mockEngine{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/federated_query", nil)
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rec.Code)
	}
}

func TestHandleFederatedQueryErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"syntax", tessera.NewSyntaxError("unexpected token"), http.StatusBadRequest, tessera.ErrCodeSyntax},
		{"unknown parameter", tessera.NewUnknownParameterError("id"), http.StatusBadRequest, tessera.ErrCodeUnknownParameter},
		{"source not found", tessera.NewSourceNotFoundError("ghost"), http.StatusNotFound, tessera.ErrCodeSourceNotFound},
		{"connection", tessera.NewSourceConnectionError("src", fmt.Errorf("refused")), http.StatusBadGateway, tessera.ErrCodeSourceConnection},
		{"timeout", tessera.NewQueryTimeoutError("deadline exceeded"), http.StatusGatewayTimeout, tessera.ErrCodeQueryTimeout},
		{"plain error", fmt.Errorf("boom"), http.StatusInternalServerError, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := newTestServer(&mockEngine{queryErr: tc.err})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/federated_query",
				bytes.NewReader([]byte(`{"text": "SELECT * FROM users"}`)))
			rec := httptest.NewRecorder()
			server.mux.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			var resp APIResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Code != tc.wantCode {
				t.Fatalf("expected code %q, got %q", tc.wantCode, resp.Code)
			}
		})
	}
}

func TestHandleValidate(t *testing.T) {
	server := newTestServer(&mockEngine{
		validation: tessera.ValidationResult{
			Valid: false,
			Error: tessera.NewSyntaxError("expected FROM"),
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/validate",
		bytes.NewReader([]byte(`{"text": "SELECT name users"}`)))
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)

	// Invalid query text still yields a 200; the verdict is in the payload.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp struct {
		Success bool                     `json:"success"`
		Data    tessera.ValidationResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.Valid {
		t.Fatal("expected invalid verdict")
	}
	if resp.Data.Error == nil || resp.Data.Error.Code != tessera.ErrCodeSyntax {
		t.Fatalf("expected syntax error in verdict, got %+v", resp.Data.Error)
	}
}

func TestHandleSchemaFound(t *testing.T) {
	server := newTestServer(&mockEngine{
		schema: []tessera.Field{
			{Name: "id", Type: "number"},
			{Name: "name", Type: "string"},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/schema/src-users/users", nil)
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSchemaNotFound(t *testing.T) {
	server := newTestServer(&mockEngine{schema: nil})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/schema/src-users/ghosts", nil)
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestHandleSchemaBadPath(t *testing.T) {
	server := newTestServer(&mockEngine{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/schema/only-source", nil)
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestHandleAddSourceUnknownType(t *testing.T) {
	server := newTestServer(&mockEngine{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sources",
		bytes.NewReader([]byte(`{"id": "src-1", "type": "oracle"}`)))
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestHandleAddSourceSuccess(t *testing.T) {
	server := newTestServer(&mockEngine{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sources",
		bytes.NewReader([]byte(`{"id": "src-1", "type": "memory"}`)))
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleRemoveSourceNotFound(t *testing.T) {
	server := newTestServer(&mockEngine{
		removeErr: tessera.NewSourceNotFoundError("src-gone"),
	})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sources/src-gone", nil)
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	server := newTestServer(&mockEngine{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}
