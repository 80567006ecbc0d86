package internal

import (
	"context"
	"sync"
)

// telemetry.go
// Lightweight telemetry hook layer used by the federation engine.
// Callers may register a real metrics emitter (or a test stub) via
// RegisterTelemetryEmitter; the default is a no-op, avoiding a hard
// dependency on any metrics SDK.

type telemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

var (
	teleMu   sync.Mutex
	teleImpl telemetryEmitter = func(ctx context.Context, name string, labels map[string]string, value any) {
		// noop by default
	}
)

// RegisterTelemetryEmitter registers a custom emitter function. Service
// wiring can provide a metrics-backed emitter or a test meter.
func RegisterTelemetryEmitter(fn telemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(ctx context.Context, name string, labels map[string]string, value any) {}
		return
	}
	teleImpl = fn
}

func emitter() telemetryEmitter {
	teleMu.Lock()
	defer teleMu.Unlock()
	return teleImpl
}

// EmitStageLatency records a latency measure (milliseconds) for a pipeline stage.
// name: "fed_query_latency_ms" with label {"stage": "<parse|fetch|synthesize|execute>"}
func EmitStageLatency(ctx context.Context, stage string, ms int64) {
	emitter()(ctx, "fed_query_latency_ms", map[string]string{"stage": stage}, ms)
}

// EmitSourceRowCount records row counts fetched per source.
func EmitSourceRowCount(ctx context.Context, sourceID string, rows int64) {
	emitter()(ctx, "fed_query_row_count", map[string]string{"source": sourceID}, rows)
}

// EmitCacheOutcome records a cache hit or miss per strategy.
func EmitCacheOutcome(ctx context.Context, strategy string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	emitter()(ctx, "fed_query_cache_outcome", map[string]string{"strategy": strategy, "outcome": outcome}, int64(1))
}
