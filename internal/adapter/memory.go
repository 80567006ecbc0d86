package adapter

import (
	"context"
	"sync"

	"github.com/tessera-data/tessera"
)

// MemoryAdapter is a SourceAdapter over in-process collections. It backs the
// "memory" source type used by demos and tests.
type MemoryAdapter struct {
	mu          sync.RWMutex
	collections map[string][]tessera.Row
	connected   bool
}

// NewMemoryAdapter creates an adapter seeded with the given collections. The
// rows are shared with the caller and treated as read-only.
func NewMemoryAdapter(collections map[string][]tessera.Row) *MemoryAdapter {
	if collections == nil {
		collections = make(map[string][]tessera.Row)
	}
	return &MemoryAdapter{collections: collections}
}

func (a *MemoryAdapter) Connect(ctx context.Context, config map[string]string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = true
	return nil
}

func (a *MemoryAdapter) ListCollections(ctx context.Context) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.collections))
	for name := range a.collections {
		names = append(names, name)
	}
	return names, nil
}

func (a *MemoryAdapter) GetCollectionSchema(ctx context.Context, name string) ([]tessera.Field, error) {
	a.mu.RLock()
	rows, ok := a.collections[name]
	a.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return inferFields(rows), nil
}

// ExecuteQuery honors the pushdown filter exactly, unlike the SQL adapters
// where it is best effort; the executor re-checks either way.
func (a *MemoryAdapter) ExecuteQuery(ctx context.Context, name string, filter *tessera.FilterSpec) ([]tessera.Row, error) {
	a.mu.RLock()
	rows := a.collections[name]
	a.mu.RUnlock()

	out := make([]tessera.Row, 0, len(rows))
	for _, row := range rows {
		if filter != nil && !matchesEquals(row, filter.Equals) {
			continue
		}
		out = append(out, row)
		if filter != nil && filter.MaxRows > 0 && len(out) >= filter.MaxRows {
			break
		}
	}
	return out, nil
}

func (a *MemoryAdapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	return nil
}

// SetCollection replaces one collection's rows, for tests that mutate the
// source between queries.
func (a *MemoryAdapter) SetCollection(name string, rows []tessera.Row) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.collections[name] = rows
}

func matchesEquals(row tessera.Row, equals map[string]tessera.Value) bool {
	for field, want := range equals {
		got, ok := row[field]
		if !ok || !got.Equal(want) {
			return false
		}
	}
	return true
}

// inferFields derives a schema from rows: union of names, first non-null
// kind wins. Kept local so the adapter package stays free of engine
// internals.
func inferFields(rows []tessera.Row) []tessera.Field {
	types := make(map[string]string)
	order := []string{}
	for _, row := range rows {
		for _, name := range row.FieldNames() {
			existing, seen := types[name]
			if !seen {
				order = append(order, name)
			}
			if seen && existing != "null" {
				continue
			}
			types[name] = kindName(row[name])
		}
	}
	fields := make([]tessera.Field, 0, len(order))
	for _, name := range order {
		fields = append(fields, tessera.Field{Name: name, Type: types[name]})
	}
	return fields
}

func kindName(v tessera.Value) string {
	switch v.Kind {
	case tessera.KindString:
		return "string"
	case tessera.KindNumber:
		return "number"
	case tessera.KindBool:
		return "bool"
	case tessera.KindTime:
		return "time"
	case tessera.KindNested:
		return "object"
	default:
		return "null"
	}
}
