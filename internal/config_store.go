package internal

import (
	"context"
	"sync"

	"github.com/tessera-data/tessera"
)

// MemoryConfigStore is an in-memory tessera.ConfigStore. The real
// configuration layer lives outside this module; this implementation backs
// tests, the sample wiring and small single-process deployments.
type MemoryConfigStore struct {
	mu       sync.RWMutex
	sources  []tessera.DataSource
	mappings []tessera.SchemaMapping
	queries  map[string]tessera.FederatedQuery
	results  map[string]*tessera.FederatedResult
}

// NewMemoryConfigStore creates an empty store.
func NewMemoryConfigStore() *MemoryConfigStore {
	return &MemoryConfigStore{
		queries: make(map[string]tessera.FederatedQuery),
		results: make(map[string]*tessera.FederatedResult),
	}
}

// SetDataSources replaces the declared data sources.
func (s *MemoryConfigStore) SetDataSources(sources []tessera.DataSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = append([]tessera.DataSource(nil), sources...)
}

// SetMappings replaces the declared schema mappings.
func (s *MemoryConfigStore) SetMappings(mappings []tessera.SchemaMapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings = append([]tessera.SchemaMapping(nil), mappings...)
}

// SaveQuery stores a named query definition.
func (s *MemoryConfigStore) SaveQuery(query tessera.FederatedQuery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries[query.ID.String()] = query
}

// ListDataSources returns the declared data sources.
func (s *MemoryConfigStore) ListDataSources(ctx context.Context) ([]tessera.DataSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]tessera.DataSource(nil), s.sources...), nil
}

// ListActiveMappings returns the declared mappings with active status.
func (s *MemoryConfigStore) ListActiveMappings(ctx context.Context) ([]tessera.SchemaMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := make([]tessera.SchemaMapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		if m.Active() {
			active = append(active, m)
		}
	}
	return active, nil
}

// GetQueryByID resolves a stored query definition, nil when unknown.
func (s *MemoryConfigStore) GetQueryByID(ctx context.Context, id string) (*tessera.FederatedQuery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	query, ok := s.queries[id]
	if !ok {
		return nil, nil
	}
	return &query, nil
}

// SaveQueryResult records the latest result of a stored query.
func (s *MemoryConfigStore) SaveQueryResult(ctx context.Context, queryID string, result *tessera.FederatedResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[queryID] = result
	return nil
}

// GetQueryResult returns the last recorded result for a stored query.
func (s *MemoryConfigStore) GetQueryResult(queryID string) *tessera.FederatedResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.results[queryID]
}
