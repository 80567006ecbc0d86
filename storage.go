package tessera

import (
	"context"
)

// SourceAdapter is the uniform capability the engine consumes per data
// source. Implementations wrap one external database product each and never
// leak their wire protocol past this interface.
type SourceAdapter interface {
	// Connect establishes the connection described by the source config.
	Connect(ctx context.Context, config map[string]string) error

	// ListCollections names the collections the source exposes.
	ListCollections(ctx context.Context) ([]string, error)

	// GetCollectionSchema returns the declared or inferred schema of a
	// collection, or nil when the collection does not exist.
	GetCollectionSchema(ctx context.Context, name string) ([]Field, error)

	// ExecuteQuery fetches rows from a collection. A nil filter fetches all
	// rows. Adapters may push the filter down or ignore it; the executor
	// re-applies every condition.
	ExecuteQuery(ctx context.Context, name string, filter *FilterSpec) ([]Row, error)

	// Disconnect releases the connection. Safe to call more than once.
	Disconnect(ctx context.Context) error
}

// FilterSpec is the optional pushdown hint handed to adapters: a conjunction
// of field = value equalities plus a row cap. Adapters treat it as
// best-effort; zero MaxRows means unbounded.
type FilterSpec struct {
	Equals  map[string]Value
	MaxRows int
}

// SnapshotStore is the durable cache of fetched collections. Snapshots are
// superseded, never mutated: Put stores a new snapshot and GetLatest resolves
// by maximum FetchedAt.
type SnapshotStore interface {
	GetLatest(ctx context.Context, sourceID, collection string) (*CollectionSnapshot, error)
	Put(ctx context.Context, snapshot *CollectionSnapshot) error
}

// ConfigStore is the configuration/storage layer the engine consumes. It is
// outside the engine's scope; the in-memory implementation exists for tests
// and the sample wiring.
type ConfigStore interface {
	ListDataSources(ctx context.Context) ([]DataSource, error)
	ListActiveMappings(ctx context.Context) ([]SchemaMapping, error)
	GetQueryByID(ctx context.Context, id string) (*FederatedQuery, error)
	SaveQueryResult(ctx context.Context, queryID string, result *FederatedResult) error
}

// Engine is the single entry point exposed to the API layer.
type Engine interface {
	// ExecuteFederatedQuery parses, resolves and runs one federated query
	// under its strategy's caching semantics.
	ExecuteFederatedQuery(ctx context.Context, query FederatedQuery) (*FederatedResult, error)

	// ValidateQuerySyntax checks query text without touching any source.
	ValidateQuerySyntax(text string) ValidationResult

	// GetLogicalCollectionSchema resolves a collection's schema: snapshot
	// first, then mapping synthesis, then the live adapter. Returns nil
	// when the collection is unknown everywhere.
	GetLogicalCollectionSchema(ctx context.Context, sourceID, name string) ([]Field, error)

	// AddDataSource connects a source and adds it to the working set.
	AddDataSource(ctx context.Context, source DataSource, adapter SourceAdapter) error

	// RemoveDataSource disconnects a source and drops it from the working set.
	RemoveDataSource(ctx context.Context, sourceID string) error

	// SetMappings replaces the active mapping working set.
	SetMappings(mappings []SchemaMapping)

	// Close disconnects every source.
	Close(ctx context.Context) error
}
