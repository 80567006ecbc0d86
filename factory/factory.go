// Package factory assembles a ready-to-serve federation engine from a
// tessera.Config: snapshot store, source adapters and pre-declared mappings.
// This is the primary way for external projects to create an Engine
// instance.
//
// Usage:
//
//	import (
//	    "github.com/tessera-data/tessera"
//	    "github.com/tessera-data/tessera/factory"
//	)
//
//	config := tessera.DefaultConfig()
//	engine, err := factory.NewEngine(context.Background(), config)
//	if err != nil {
//	    // handle error
//	}
//	defer engine.Close(context.Background())
package factory

import (
	"context"
	"fmt"

	"github.com/tessera-data/tessera"
	"github.com/tessera-data/tessera/internal"
	"github.com/tessera-data/tessera/internal/adapter"
	"go.uber.org/zap"
)

// NewEngine validates the config, builds the snapshot store, connects every
// pre-declared source and installs the pre-declared mappings. A source that
// fails to connect fails the whole construction; partially built engines
// are closed before returning.
func NewEngine(ctx context.Context, config *tessera.Config) (tessera.Engine, error) {
	if config == nil {
		config = tessera.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := NewSnapshotStore(ctx, config.Snapshot)
	if err != nil {
		return nil, err
	}

	engine := internal.NewFederationEngine(config.Federation, store)
	for _, source := range config.Sources {
		sourceAdapter, err := NewSourceAdapter(source.Type)
		if err != nil {
			engine.Close(ctx)
			return nil, err
		}
		if err := engine.AddDataSource(ctx, source, sourceAdapter); err != nil {
			engine.Close(ctx)
			return nil, err
		}
	}
	engine.SetMappings(config.Mappings)

	zap.S().Infow("federation engine ready",
		"sources", len(config.Sources),
		"mappings", len(config.Mappings),
		"snapshot_store", config.Snapshot.Store)
	return engine, nil
}

// NewSnapshotStore builds the configured snapshot store backend.
func NewSnapshotStore(ctx context.Context, config tessera.SnapshotConfig) (tessera.SnapshotStore, error) {
	switch config.Store {
	case "", "memory":
		return internal.NewMemorySnapshotStore(), nil
	case "s3":
		return internal.NewS3SnapshotStore(ctx, config.S3)
	default:
		return nil, fmt.Errorf("unknown snapshot store %q", config.Store)
	}
}

// SyncFromConfigStore loads declared data sources and active mappings from a
// configuration store into an engine. Sources already registered under the
// same id are replaced.
func SyncFromConfigStore(ctx context.Context, engine tessera.Engine, store tessera.ConfigStore) error {
	sources, err := store.ListDataSources(ctx)
	if err != nil {
		return fmt.Errorf("list data sources: %w", err)
	}
	for _, source := range sources {
		sourceAdapter, err := NewSourceAdapter(source.Type)
		if err != nil {
			return err
		}
		if err := engine.AddDataSource(ctx, source, sourceAdapter); err != nil {
			return err
		}
	}

	mappings, err := store.ListActiveMappings(ctx)
	if err != nil {
		return fmt.Errorf("list active mappings: %w", err)
	}
	engine.SetMappings(mappings)

	zap.S().Infow("config store synced", "sources", len(sources), "mappings", len(mappings))
	return nil
}

// NewSourceAdapter builds an unconnected adapter for a source type.
func NewSourceAdapter(sourceType tessera.SourceType) (tessera.SourceAdapter, error) {
	switch sourceType {
	case tessera.SourceTypePostgres:
		return adapter.NewPostgresAdapter(), nil
	case tessera.SourceTypeSQLite:
		return adapter.NewSQLiteAdapter(), nil
	case tessera.SourceTypeDuckDB:
		return adapter.NewDuckDBAdapter(), nil
	case tessera.SourceTypeMemory:
		return adapter.NewMemoryAdapter(nil), nil
	default:
		return nil, fmt.Errorf("unknown source type %q", sourceType)
	}
}
