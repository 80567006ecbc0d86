package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tessera-data/tessera"
	"go.uber.org/zap"
)

// queryIDNamespace seeds deterministic query ids so the same text, source
// set and parameter bindings share one cache slot across processes.
var queryIDNamespace = uuid.MustParse("6f1c5b9e-3d0a-4a7c-9ad1-2f8b54c0e7a1")

// sourceEntry is the engine's live handle on one registered data source.
type sourceEntry struct {
	source  tessera.DataSource
	adapter tessera.SourceAdapter
	breaker *CircuitBreaker
}

// FederationEngine implements tessera.Engine. It owns the working set of
// connected sources and active mappings, and delegates caching semantics to
// the strategy controller. All methods are safe for concurrent use.
type FederationEngine struct {
	mu       sync.RWMutex
	sources  map[string]*sourceEntry
	mappings []tessera.SchemaMapping

	snapshots  tessera.SnapshotStore
	applier    *MappingApplier
	controller *StrategyController
	cfg        tessera.FederationConfig
}

// NewFederationEngine creates an engine over the given snapshot store. Zero
// durations in cfg fall back to the defaults the strategy controller applies.
func NewFederationEngine(cfg tessera.FederationConfig, snapshots tessera.SnapshotStore) *FederationEngine {
	if snapshots == nil {
		snapshots = NewMemorySnapshotStore()
	}
	return &FederationEngine{
		sources:    make(map[string]*sourceEntry),
		snapshots:  snapshots,
		applier:    NewMappingApplier(),
		controller: NewStrategyController(cfg.RefreshInterval, cfg.FetchTimeout),
		cfg:        cfg,
	}
}

// Applier exposes the mapping applier so callers can register custom
// transforms before serving queries.
func (e *FederationEngine) Applier() *MappingApplier { return e.applier }

// Controller exposes the strategy controller for cache inspection and
// invalidation.
func (e *FederationEngine) Controller() *StrategyController { return e.controller }

// ExecuteFederatedQuery parses and runs one federated query under its
// strategy. Parse and strategy validation happen before any source I/O, so a
// malformed query never touches an adapter.
func (e *FederationEngine) ExecuteFederatedQuery(ctx context.Context, query tessera.FederatedQuery) (*tessera.FederatedResult, error) {
	strategy := query.Strategy
	if strategy == "" {
		strategy = tessera.StrategyVirtual
	}
	strategy, err := tessera.ParseStrategy(string(strategy))
	if err != nil {
		return nil, err
	}

	parseStart := time.Now()
	ast, err := Parse(query.Text)
	if err != nil {
		return nil, err
	}
	EmitStageLatency(ctx, "parse", time.Since(parseStart).Milliseconds())

	queryID := query.ID
	if queryID == uuid.Nil {
		queryID = deriveQueryID(query)
	}

	run := func(runCtx context.Context) ([]tessera.Row, error) {
		return e.runPipeline(runCtx, ast, query)
	}

	result, err := e.controller.Execute(ctx, queryID.String(), strategy, run)
	if err != nil {
		return nil, err
	}
	EmitCacheOutcome(ctx, string(strategy), result.CacheHit)
	return result, nil
}

// deriveQueryID builds a stable id from the query text, source set and
// parameter bindings, so repeated submissions of the same query share
// materialized/hybrid state while different bindings never share a slot.
func deriveQueryID(query tessera.FederatedQuery) uuid.UUID {
	var key strings.Builder
	key.WriteString(query.Text)
	key.WriteString("|")
	key.WriteString(strings.Join(query.DataSourceIDs, ","))
	for _, name := range SortedMapKeys(query.Params) {
		encoded, err := json.Marshal(query.Params[name])
		if err != nil {
			encoded = []byte(query.Params[name].Kind)
		}
		key.WriteString("|")
		key.WriteString(name)
		key.WriteString("=")
		key.Write(encoded)
	}
	return uuid.NewSHA1(queryIDNamespace, []byte(key.String()))
}

// runPipeline is one full fetch-synthesize-execute pass. It is handed to the
// strategy controller, which decides when it actually runs.
func (e *FederationEngine) runPipeline(ctx context.Context, ast *ParsedQuery, query tessera.FederatedQuery) ([]tessera.Row, error) {
	e.mu.RLock()
	mappings := e.mappings
	e.mu.RUnlock()

	fetchStart := time.Now()
	collections, err := e.gatherCollections(ctx, query.DataSourceIDs, expandWanted(ast.Collections(), mappings))
	if err != nil {
		return nil, err
	}
	EmitStageLatency(ctx, "fetch", time.Since(fetchStart).Milliseconds())

	synthStart := time.Now()
	derived, err := e.applier.Synthesize(mappings, collections)
	if err != nil {
		return nil, err
	}
	for name, rows := range derived {
		collections[name] = rows
	}
	EmitStageLatency(ctx, "synthesize", time.Since(synthStart).Milliseconds())

	execStart := time.Now()
	rows, err := Execute(ast, collections, query.Params)
	if err != nil {
		return nil, err
	}
	EmitStageLatency(ctx, "execute", time.Since(execStart).Milliseconds())
	return rows, nil
}

// expandWanted adds the physical source collection of every active mapping
// whose target the query names, so synthesis has its input even when the
// query never mentions the physical name.
func expandWanted(wanted []string, mappings []tessera.SchemaMapping) []string {
	seen := NewSet[string]()
	for _, name := range wanted {
		seen.Add(name)
	}
	out := append([]string{}, wanted...)
	for _, mapping := range mappings {
		if !mapping.Active() || !seen.Contains(mapping.TargetCollection) {
			continue
		}
		if !seen.Contains(mapping.SourceCollection) {
			seen.Add(mapping.SourceCollection)
			out = append(out, mapping.SourceCollection)
		}
	}
	return out
}

// gatherCollections resolves every collection the query names across the
// query's sources. A source that fails to deliver degrades to its latest
// snapshot, then to absence; the error surfaces only when nothing resolved
// at all, so partial availability still yields a partial result.
func (e *FederationEngine) gatherCollections(ctx context.Context, sourceIDs, wanted []string) (map[string][]tessera.Row, error) {
	entries := make([]*sourceEntry, 0, len(sourceIDs))
	e.mu.RLock()
	for _, id := range sourceIDs {
		entry, ok := e.sources[id]
		if !ok {
			e.mu.RUnlock()
			return nil, tessera.NewSourceNotFoundError(id)
		}
		entries = append(entries, entry)
	}
	e.mu.RUnlock()

	collections := make(map[string][]tessera.Row, len(wanted))
	var firstErr error
	for _, name := range wanted {
		for _, entry := range entries {
			if !sourceMayHave(entry.source, name) {
				continue
			}
			rows, err := e.fetchCollection(ctx, entry, name)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if rows == nil {
				// source reachable, collection not there
				continue
			}
			collections[name] = rows
			EmitSourceRowCount(ctx, entry.source.ID, int64(len(rows)))
			break
		}
	}

	if len(collections) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return collections, nil
}

// sourceMayHave filters by declared collections when the source declares any.
// An empty declaration means the source must be probed.
func sourceMayHave(source tessera.DataSource, collection string) bool {
	if len(source.KnownCollections) == 0 {
		return true
	}
	for _, known := range source.KnownCollections {
		if known == collection {
			return true
		}
	}
	return false
}

// fetchCollection reads one collection from one source: live adapter first,
// latest snapshot when the adapter fails or the breaker is open. A successful
// live fetch is snapshotted for later degradation. Returns (nil, nil) when
// the source does not expose the collection.
func (e *FederationEngine) fetchCollection(ctx context.Context, entry *sourceEntry, name string) ([]tessera.Row, error) {
	if entry.breaker.IsOpen() {
		zap.S().Debugw("circuit open, serving snapshot only",
			"source_id", entry.source.ID, "collection", name)
		return e.snapshotRows(ctx, entry.source.ID, name)
	}

	fetchCtx := ctx
	if e.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, e.cfg.FetchTimeout)
		defer cancel()
	}

	known, err := entry.adapter.ListCollections(fetchCtx)
	if err != nil {
		entry.breaker.RecordFailure()
		return e.degradeToSnapshot(ctx, entry, name, err)
	}
	if !containsString(known, name) {
		entry.breaker.RecordSuccess()
		return nil, nil
	}

	filter := &tessera.FilterSpec{MaxRows: e.cfg.MaxRows}
	rows, err := entry.adapter.ExecuteQuery(fetchCtx, name, filter)
	if err != nil {
		entry.breaker.RecordFailure()
		return e.degradeToSnapshot(ctx, entry, name, err)
	}
	entry.breaker.RecordSuccess()

	snapshot := &tessera.CollectionSnapshot{
		SourceID:   entry.source.ID,
		Collection: name,
		Schema:     InferSchema(rows),
		Rows:       rows,
		FetchedAt:  time.Now(),
	}
	if err := e.snapshots.Put(ctx, snapshot); err != nil {
		// snapshot persistence is best effort; the live rows still serve
		zap.S().Warnw("failed to persist snapshot",
			"source_id", entry.source.ID, "collection", name, "error", err)
	}
	return rows, nil
}

// degradeToSnapshot serves the latest snapshot after a live fetch failure.
// With no snapshot either, the failure becomes a source connection error for
// the caller to weigh against the other sources.
func (e *FederationEngine) degradeToSnapshot(ctx context.Context, entry *sourceEntry, name string, cause error) ([]tessera.Row, error) {
	zap.S().Warnw("live fetch failed, degrading to snapshot",
		"source_id", entry.source.ID, "collection", name, "error", cause)
	rows, err := e.snapshotRows(ctx, entry.source.ID, name)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		return nil, tessera.NewSourceConnectionError(entry.source.ID, cause)
	}
	return rows, nil
}

func (e *FederationEngine) snapshotRows(ctx context.Context, sourceID, name string) ([]tessera.Row, error) {
	snapshot, err := e.snapshots.GetLatest(ctx, sourceID, name)
	if err != nil {
		return nil, tessera.NewSnapshotStoreError(
			fmt.Sprintf("reading snapshot for %s/%s", sourceID, name), err)
	}
	if snapshot == nil {
		return nil, nil
	}
	return snapshot.Rows, nil
}

// ValidateQuerySyntax checks query text without touching any source.
func (e *FederationEngine) ValidateQuerySyntax(text string) tessera.ValidationResult {
	if _, err := Parse(text); err != nil {
		if fe, ok := tessera.AsError(err); ok {
			return tessera.ValidationResult{Valid: false, Error: fe}
		}
		return tessera.ValidationResult{Valid: false, Error: tessera.NewSyntaxError(err.Error())}
	}
	return tessera.ValidationResult{Valid: true}
}

// GetLogicalCollectionSchema resolves a collection's schema in order of
// cheapness: latest snapshot, then mapping synthesis over the mapped source
// collection, then the live adapter. Returns nil when the collection is
// unknown everywhere.
func (e *FederationEngine) GetLogicalCollectionSchema(ctx context.Context, sourceID, name string) ([]tessera.Field, error) {
	e.mu.RLock()
	entry, ok := e.sources[sourceID]
	mappings := e.mappings
	e.mu.RUnlock()
	if !ok {
		return nil, tessera.NewSourceNotFoundError(sourceID)
	}

	snapshot, err := e.snapshots.GetLatest(ctx, sourceID, name)
	if err != nil {
		return nil, tessera.NewSnapshotStoreError(
			fmt.Sprintf("reading snapshot for %s/%s", sourceID, name), err)
	}
	if snapshot != nil {
		if len(snapshot.Schema) > 0 {
			return snapshot.Schema, nil
		}
		return InferSchema(snapshot.Rows), nil
	}

	for _, mapping := range mappings {
		if !mapping.Active() || mapping.TargetCollection != name {
			continue
		}
		sourceRows, err := e.fetchCollection(ctx, entry, mapping.SourceCollection)
		if err != nil || sourceRows == nil {
			continue
		}
		derived, err := e.applier.Synthesize([]tessera.SchemaMapping{mapping},
			map[string][]tessera.Row{mapping.SourceCollection: sourceRows})
		if err != nil {
			return nil, err
		}
		return InferSchema(derived[name]), nil
	}

	fields, err := entry.adapter.GetCollectionSchema(ctx, name)
	if err != nil {
		return nil, tessera.NewSourceConnectionError(sourceID, err)
	}
	sortFields(fields)
	return fields, nil
}

// AddDataSource connects a source and adds it to the working set. A source
// id already in use is replaced after disconnecting the previous adapter.
func (e *FederationEngine) AddDataSource(ctx context.Context, source tessera.DataSource, adapter tessera.SourceAdapter) error {
	if source.ID == "" {
		return tessera.NewInternalError("data source id must not be empty", nil)
	}
	if adapter == nil {
		return tessera.NewInternalError("data source adapter must not be nil", nil)
	}

	connectCtx := ctx
	if e.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, e.cfg.ConnectTimeout)
		defer cancel()
	}
	if err := adapter.Connect(connectCtx, source.Config); err != nil {
		source.Status = tessera.SourceStatusError
		return tessera.NewSourceConnectionError(source.ID, err)
	}
	source.Status = tessera.SourceStatusConnected

	entry := &sourceEntry{
		source:  source,
		adapter: adapter,
		breaker: NewCircuitBreaker(e.cfg.Breaker.Threshold, e.cfg.Breaker.Window, e.cfg.Breaker.OpenDuration),
	}

	e.mu.Lock()
	previous := e.sources[source.ID]
	e.sources[source.ID] = entry
	e.mu.Unlock()

	if previous != nil {
		if err := previous.adapter.Disconnect(ctx); err != nil {
			zap.S().Warnw("failed to disconnect replaced source",
				"source_id", source.ID, "error", err)
		}
	}
	zap.S().Infow("data source registered",
		"source_id", source.ID, "type", source.Type, "name", source.Name)
	return nil
}

// RemoveDataSource disconnects a source and drops it from the working set.
func (e *FederationEngine) RemoveDataSource(ctx context.Context, sourceID string) error {
	e.mu.Lock()
	entry, ok := e.sources[sourceID]
	delete(e.sources, sourceID)
	e.mu.Unlock()
	if !ok {
		return tessera.NewSourceNotFoundError(sourceID)
	}
	if err := entry.adapter.Disconnect(ctx); err != nil {
		return tessera.NewSourceConnectionError(sourceID, err)
	}
	zap.S().Infow("data source removed", "source_id", sourceID)
	return nil
}

// SetMappings replaces the active mapping working set. The slice is copied;
// later caller mutations do not leak into running queries.
func (e *FederationEngine) SetMappings(mappings []tessera.SchemaMapping) {
	copied := make([]tessera.SchemaMapping, len(mappings))
	copy(copied, mappings)
	e.mu.Lock()
	e.mappings = copied
	e.mu.Unlock()
}

// Sources returns the registered sources with their connection status.
func (e *FederationEngine) Sources() []tessera.DataSource {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]tessera.DataSource, 0, len(e.sources))
	for _, id := range SortedMapKeys(e.sources) {
		out = append(out, e.sources[id].source)
	}
	return out
}

// Close disconnects every source. The first disconnect error is returned
// after every source has been attempted.
func (e *FederationEngine) Close(ctx context.Context) error {
	e.mu.Lock()
	entries := make([]*sourceEntry, 0, len(e.sources))
	for _, entry := range e.sources {
		entries = append(entries, entry)
	}
	e.sources = make(map[string]*sourceEntry)
	e.mu.Unlock()

	var firstErr error
	for _, entry := range entries {
		if err := entry.adapter.Disconnect(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func containsString(items []string, needle string) bool {
	for _, item := range items {
		if item == needle {
			return true
		}
	}
	return false
}
