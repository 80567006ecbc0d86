package internal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tessera-data/tessera"
)

// stubAdapter is an in-memory SourceAdapter with injectable failures.
type stubAdapter struct {
	mu          sync.Mutex
	collections map[string][]tessera.Row
	connectErr  error
	queryErr    error
	queryCalls  int
	connected   bool
}

func newStubAdapter(collections map[string][]tessera.Row) *stubAdapter {
	return &stubAdapter{collections: collections}
}

func (a *stubAdapter) Connect(ctx context.Context, config map[string]string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connectErr != nil {
		return a.connectErr
	}
	a.connected = true
	return nil
}

func (a *stubAdapter) ListCollections(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.queryErr != nil {
		return nil, a.queryErr
	}
	return SortedMapKeys(a.collections), nil
}

func (a *stubAdapter) GetCollectionSchema(ctx context.Context, name string) ([]tessera.Field, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rows, ok := a.collections[name]
	if !ok {
		return nil, nil
	}
	return InferSchema(rows), nil
}

func (a *stubAdapter) ExecuteQuery(ctx context.Context, name string, filter *tessera.FilterSpec) ([]tessera.Row, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queryCalls++
	if a.queryErr != nil {
		return nil, a.queryErr
	}
	return a.collections[name], nil
}

func (a *stubAdapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	return nil
}

func (a *stubAdapter) setQueryErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queryErr = err
}

func testEngineConfig() tessera.FederationConfig {
	return tessera.FederationConfig{
		RefreshInterval: 15 * time.Minute,
		ConnectTimeout:  time.Second,
		FetchTimeout:    time.Second,
		Breaker: tessera.BreakerConfig{
			Threshold:    3,
			Window:       time.Minute,
			OpenDuration: time.Minute,
		},
	}
}

func newTestEngine(t *testing.T) (*FederationEngine, *stubAdapter, *stubAdapter) {
	t.Helper()
	engine := NewFederationEngine(testEngineConfig(), NewMemorySnapshotStore())

	usersAdapter := newStubAdapter(map[string][]tessera.Row{
		"users": {
			{"id": tessera.Number(1), "name": tessera.String("Ann")},
			{"id": tessera.Number(2), "name": tessera.String("Bob")},
		},
	})
	ordersAdapter := newStubAdapter(map[string][]tessera.Row{
		"orders": {
			{"uid": tessera.Number(1), "amount": tessera.Number(9.5)},
			{"uid": tessera.Number(3), "amount": tessera.Number(2)},
		},
	})

	require.NoError(t, engine.AddDataSource(context.Background(),
		tessera.DataSource{ID: "src-users", Type: tessera.SourceTypeMemory}, usersAdapter))
	require.NoError(t, engine.AddDataSource(context.Background(),
		tessera.DataSource{ID: "src-orders", Type: tessera.SourceTypeMemory}, ordersAdapter))
	return engine, usersAdapter, ordersAdapter
}

// TestEngineCrossSourceJoin runs the canonical two-source join end to end.
func TestEngineCrossSourceJoin(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	defer engine.Close(context.Background())

	result, err := engine.ExecuteFederatedQuery(context.Background(), tessera.FederatedQuery{
		Text:          "SELECT users.name, orders.amount FROM users JOIN orders ON users.id = orders.uid WHERE id = :id",
		DataSourceIDs: []string{"src-users", "src-orders"},
		Params:        map[string]tessera.Value{"id": tessera.Number(1)},
		Strategy:      tessera.StrategyVirtual,
	})
	require.NoError(t, err)
	assert.False(t, result.CacheHit)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, tessera.Row{
		"name":   tessera.String("Ann"),
		"amount": tessera.Number(9.5),
	}, result.Rows[0])
}

// TestEngineParsesBeforeIO verifies malformed text fails without touching
// any adapter.
func TestEngineParsesBeforeIO(t *testing.T) {
	engine, users, orders := newTestEngine(t)
	defer engine.Close(context.Background())

	_, err := engine.ExecuteFederatedQuery(context.Background(), tessera.FederatedQuery{
		Text:          "SELEC * FROM users",
		DataSourceIDs: []string{"src-users"},
		Strategy:      tessera.StrategyVirtual,
	})
	require.Error(t, err)
	assert.True(t, tessera.IsSyntaxError(err))
	assert.Zero(t, users.queryCalls)
	assert.Zero(t, orders.queryCalls)
}

// TestEngineUnknownStrategy verifies strategy validation also precedes I/O.
func TestEngineUnknownStrategy(t *testing.T) {
	engine, users, _ := newTestEngine(t)
	defer engine.Close(context.Background())

	_, err := engine.ExecuteFederatedQuery(context.Background(), tessera.FederatedQuery{
		Text:          "SELECT * FROM users",
		DataSourceIDs: []string{"src-users"},
		Strategy:      tessera.Strategy("turbo"),
	})
	require.Error(t, err)
	fe, ok := tessera.AsError(err)
	require.True(t, ok)
	assert.Equal(t, tessera.ErrCodeUnknownStrategy, fe.Code)
	assert.Zero(t, users.queryCalls)
}

// TestEngineUnknownSource verifies an unregistered source id fails fast.
func TestEngineUnknownSource(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	defer engine.Close(context.Background())

	_, err := engine.ExecuteFederatedQuery(context.Background(), tessera.FederatedQuery{
		Text:          "SELECT * FROM users",
		DataSourceIDs: []string{"nope"},
		Strategy:      tessera.StrategyVirtual,
	})
	require.Error(t, err)
	fe, ok := tessera.AsError(err)
	require.True(t, ok)
	assert.Equal(t, tessera.ErrCodeSourceNotFound, fe.Code)
}

// TestEngineUnboundParameter verifies the strict parameter policy surfaces
// through the full pipeline.
func TestEngineUnboundParameter(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	defer engine.Close(context.Background())

	_, err := engine.ExecuteFederatedQuery(context.Background(), tessera.FederatedQuery{
		Text:          "SELECT * FROM users WHERE id = :id",
		DataSourceIDs: []string{"src-users"},
		Strategy:      tessera.StrategyVirtual,
	})
	require.Error(t, err)
	assert.True(t, tessera.IsUnknownParameterError(err))
}

// TestEngineDegradesToSnapshot verifies a source that fetched once keeps
// serving its snapshot after the live path starts failing.
func TestEngineDegradesToSnapshot(t *testing.T) {
	engine, users, _ := newTestEngine(t)
	defer engine.Close(context.Background())

	query := tessera.FederatedQuery{
		Text:          "SELECT name FROM users ORDER BY name",
		DataSourceIDs: []string{"src-users"},
		Strategy:      tessera.StrategyVirtual,
	}
	first, err := engine.ExecuteFederatedQuery(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, first.Rows, 2)

	users.setQueryErr(errors.New("connection refused"))

	second, err := engine.ExecuteFederatedQuery(context.Background(), query)
	require.NoError(t, err, "snapshot should cover the failing source")
	assert.Equal(t, first.Rows, second.Rows)
}

// TestEngineAllSourcesDown verifies the connection error surfaces only when
// nothing resolved at all.
func TestEngineAllSourcesDown(t *testing.T) {
	engine, users, _ := newTestEngine(t)
	defer engine.Close(context.Background())

	users.setQueryErr(errors.New("connection refused"))

	_, err := engine.ExecuteFederatedQuery(context.Background(), tessera.FederatedQuery{
		Text:          "SELECT * FROM users",
		DataSourceIDs: []string{"src-users"},
		Strategy:      tessera.StrategyVirtual,
	})
	require.Error(t, err)
	assert.True(t, tessera.IsSourceConnectionError(err))
}

// TestEngineMappingSynthesis verifies a query over a mapped logical
// collection is answered by synthesizing from the physical one.
func TestEngineMappingSynthesis(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	defer engine.Close(context.Background())

	engine.SetMappings([]tessera.SchemaMapping{{
		ID:               "m1",
		SourceCollection: "users",
		TargetCollection: "customers",
		Status:           tessera.MappingActive,
		Rules: []tessera.MappingRule{
			{SourceField: "name", TargetField: "full_name", Kind: tessera.RuleTransform, TransformName: "toUpperCase"},
			{SourceField: "id", TargetField: "customer_id", Kind: tessera.RuleDirect},
		},
	}})

	result, err := engine.ExecuteFederatedQuery(context.Background(), tessera.FederatedQuery{
		Text:          "SELECT full_name FROM customers WHERE customer_id = 1",
		DataSourceIDs: []string{"src-users"},
		Strategy:      tessera.StrategyVirtual,
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, tessera.String("ANN"), result.Rows[0]["full_name"])
}

// TestEngineMaterializedCacheHit verifies the second materialized call is a
// cache hit with no new adapter fetch.
func TestEngineMaterializedCacheHit(t *testing.T) {
	engine, users, _ := newTestEngine(t)
	defer engine.Close(context.Background())

	query := tessera.FederatedQuery{
		Text:          "SELECT * FROM users",
		DataSourceIDs: []string{"src-users"},
		Strategy:      tessera.StrategyMaterialized,
	}
	first, err := engine.ExecuteFederatedQuery(context.Background(), query)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	require.NotNil(t, first.NextUpdate)

	fetches := users.queryCalls
	second, err := engine.ExecuteFederatedQuery(context.Background(), query)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, fetches, users.queryCalls)
}

// TestEngineMaterializedParamsIsolateCache verifies that the same query text
// with different parameter bindings never shares a materialized cache slot.
func TestEngineMaterializedParamsIsolateCache(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	defer engine.Close(context.Background())

	queryFor := func(id float64) tessera.FederatedQuery {
		return tessera.FederatedQuery{
			Text:          "SELECT name FROM users WHERE id = :id",
			DataSourceIDs: []string{"src-users"},
			Params:        map[string]tessera.Value{"id": tessera.Number(id)},
			Strategy:      tessera.StrategyMaterialized,
		}
	}

	first, err := engine.ExecuteFederatedQuery(context.Background(), queryFor(1))
	require.NoError(t, err)
	require.Len(t, first.Rows, 1)
	assert.Equal(t, tessera.String("Ann"), first.Rows[0]["name"])

	second, err := engine.ExecuteFederatedQuery(context.Background(), queryFor(2))
	require.NoError(t, err)
	assert.False(t, second.CacheHit, "different params must not be a cache hit")
	require.Len(t, second.Rows, 1)
	assert.Equal(t, tessera.String("Bob"), second.Rows[0]["name"])

	// Identical bindings still share the slot.
	repeat, err := engine.ExecuteFederatedQuery(context.Background(), queryFor(1))
	require.NoError(t, err)
	assert.True(t, repeat.CacheHit)
	assert.Equal(t, tessera.String("Ann"), repeat.Rows[0]["name"])
}

// TestEngineValidateQuerySyntax verifies validation is offline and reports
// structured errors.
func TestEngineValidateQuerySyntax(t *testing.T) {
	engine, users, _ := newTestEngine(t)
	defer engine.Close(context.Background())

	assert.True(t, engine.ValidateQuerySyntax("SELECT * FROM users").Valid)

	res := engine.ValidateQuerySyntax("SELECT * FROM users WHERE a OR b")
	assert.False(t, res.Valid)
	require.NotNil(t, res.Error)
	assert.Equal(t, tessera.ErrCodeSyntax, res.Error.Code)
	assert.Zero(t, users.queryCalls)
}

// TestEngineGetLogicalCollectionSchema covers adapter, snapshot and mapping
// resolution plus the unknown-collection nil result.
func TestEngineGetLogicalCollectionSchema(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	defer engine.Close(context.Background())

	fields, err := engine.GetLogicalCollectionSchema(context.Background(), "src-users", "users")
	require.NoError(t, err)
	assert.Equal(t, []tessera.Field{
		{Name: "id", Type: "number"},
		{Name: "name", Type: "string"},
	}, fields)

	fields, err = engine.GetLogicalCollectionSchema(context.Background(), "src-users", "ghosts")
	require.NoError(t, err)
	assert.Nil(t, fields)

	engine.SetMappings([]tessera.SchemaMapping{{
		ID:               "m1",
		SourceCollection: "users",
		TargetCollection: "customers",
		Status:           tessera.MappingActive,
		Rules: []tessera.MappingRule{
			{SourceField: "name", TargetField: "full_name", Kind: tessera.RuleDirect},
		},
	}})
	fields, err = engine.GetLogicalCollectionSchema(context.Background(), "src-users", "customers")
	require.NoError(t, err)
	assert.Equal(t, []tessera.Field{{Name: "full_name", Type: "string"}}, fields)

	_, err = engine.GetLogicalCollectionSchema(context.Background(), "missing", "users")
	require.Error(t, err)
}

// TestEngineAddRemoveSource covers connect failure, replacement and removal.
func TestEngineAddRemoveSource(t *testing.T) {
	engine := NewFederationEngine(testEngineConfig(), NewMemorySnapshotStore())
	defer engine.Close(context.Background())

	bad := newStubAdapter(nil)
	bad.connectErr = errors.New("auth failed")
	err := engine.AddDataSource(context.Background(),
		tessera.DataSource{ID: "s1", Type: tessera.SourceTypeMemory}, bad)
	require.Error(t, err)
	assert.True(t, tessera.IsSourceConnectionError(err))
	assert.Empty(t, engine.Sources())

	good := newStubAdapter(map[string][]tessera.Row{"t": {}})
	require.NoError(t, engine.AddDataSource(context.Background(),
		tessera.DataSource{ID: "s1", Type: tessera.SourceTypeMemory}, good))
	sources := engine.Sources()
	require.Len(t, sources, 1)
	assert.Equal(t, tessera.SourceStatusConnected, sources[0].Status)

	require.NoError(t, engine.RemoveDataSource(context.Background(), "s1"))
	assert.False(t, good.connected)
	assert.Empty(t, engine.Sources())

	err = engine.RemoveDataSource(context.Background(), "s1")
	require.Error(t, err)
	fe, ok := tessera.AsError(err)
	require.True(t, ok)
	assert.Equal(t, tessera.ErrCodeSourceNotFound, fe.Code)
}

// TestEngineClose verifies Close disconnects every registered adapter.
func TestEngineClose(t *testing.T) {
	engine, users, orders := newTestEngine(t)
	require.NoError(t, engine.Close(context.Background()))
	assert.False(t, users.connected)
	assert.False(t, orders.connected)
	assert.Empty(t, engine.Sources())
}
