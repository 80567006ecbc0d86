// Command sample wires two in-memory data sources, a schema mapping and all
// three caching strategies into one walkthrough of the federation engine.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tessera-data/tessera"
	"github.com/tessera-data/tessera/internal"
	"github.com/tessera-data/tessera/internal/adapter"
	"go.uber.org/zap"
)

func main() {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Errorf("failed to build logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	ctx := context.Background()

	engine := internal.NewFederationEngine(tessera.DefaultConfig().Federation, nil)
	defer engine.Close(ctx)

	if err := registerSources(ctx, engine); err != nil {
		sugar.Fatalf("failed to register sources: %v", err)
	}

	engine.SetMappings([]tessera.SchemaMapping{
		{
			ID:               "users-to-customers",
			SourceCollection: "users",
			TargetCollection: "customers",
			Status:           tessera.MappingActive,
			Rules: []tessera.MappingRule{
				{SourceField: "id", TargetField: "customer_id", Kind: tessera.RuleDirect},
				{SourceField: "name", TargetField: "full_name", Kind: tessera.RuleTransform, TransformName: "toUpperCase"},
			},
		},
	})

	sugar.Info("--- cross-source join (virtual strategy) ---")
	runQuery(ctx, engine, tessera.FederatedQuery{
		Text:          "SELECT users.name, orders.amount FROM users JOIN orders ON users.id = orders.user_id ORDER BY amount DESC",
		DataSourceIDs: []string{"src-users", "src-orders"},
		Strategy:      tessera.StrategyVirtual,
	})

	sugar.Info("--- parameterized filter over a mapped collection ---")
	runQuery(ctx, engine, tessera.FederatedQuery{
		Text:          "SELECT full_name FROM customers WHERE customer_id = :id",
		DataSourceIDs: []string{"src-users"},
		Params:        map[string]tessera.Value{"id": tessera.Number(1)},
		Strategy:      tessera.StrategyVirtual,
	})

	sugar.Info("--- materialized strategy: second run is a cache hit ---")
	materialized := tessera.FederatedQuery{
		Text:          "SELECT * FROM orders WHERE amount > 3",
		DataSourceIDs: []string{"src-orders"},
		Strategy:      tessera.StrategyMaterialized,
	}
	runQuery(ctx, engine, materialized)
	runQuery(ctx, engine, materialized)

	sugar.Info("--- hybrid strategy: stale reads trigger a background refresh ---")
	hybrid := tessera.FederatedQuery{
		Text:          "SELECT name FROM users ORDER BY name",
		DataSourceIDs: []string{"src-users"},
		Strategy:      tessera.StrategyHybrid,
	}
	runQuery(ctx, engine, hybrid)
	runQuery(ctx, engine, hybrid)

	sugar.Info("--- offline validation ---")
	verdict := engine.ValidateQuerySyntax("SELECT name FROM users GROUP BY name")
	printJSON(verdict)
}

func registerSources(ctx context.Context, engine *internal.FederationEngine) error {
	users := adapter.NewMemoryAdapter(map[string][]tessera.Row{
		"users": {
			{"id": tessera.Number(1), "name": tessera.String("Ann"), "active": tessera.Bool(true)},
			{"id": tessera.Number(2), "name": tessera.String("Bob"), "active": tessera.Bool(true)},
			{"id": tessera.Number(3), "name": tessera.String("Cleo"), "active": tessera.Bool(false)},
		},
	})
	orders := adapter.NewMemoryAdapter(map[string][]tessera.Row{
		"orders": {
			{"id": tessera.Number(10), "user_id": tessera.Number(1), "amount": tessera.Number(9.5)},
			{"id": tessera.Number(11), "user_id": tessera.Number(1), "amount": tessera.Number(4.25)},
			{"id": tessera.Number(12), "user_id": tessera.Number(3), "amount": tessera.Number(2)},
		},
	})

	if err := engine.AddDataSource(ctx, tessera.DataSource{
		ID:   "src-users",
		Name: "demo users",
		Type: tessera.SourceTypeMemory,
	}, users); err != nil {
		return err
	}
	return engine.AddDataSource(ctx, tessera.DataSource{
		ID:   "src-orders",
		Name: "demo orders",
		Type: tessera.SourceTypeMemory,
	}, orders)
}

func runQuery(ctx context.Context, engine *internal.FederationEngine, query tessera.FederatedQuery) {
	start := time.Now()
	result, err := engine.ExecuteFederatedQuery(ctx, query)
	if err != nil {
		zap.S().Errorw("query failed", "text", query.Text, "error", err)
		return
	}
	zap.S().Infow("query done",
		"strategy", query.Strategy,
		"rows", len(result.Rows),
		"cache_hit", result.CacheHit,
		"elapsed", time.Since(start))
	printJSON(result.Rows)
}

func printJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		zap.S().Errorw("failed to encode output", "error", err)
	}
}
