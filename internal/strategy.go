package internal

import (
	"context"
	"sync"
	"time"

	"github.com/tessera-data/tessera"
	"go.uber.org/zap"
)

// RunFunc executes the full federation pipeline for one query and returns
// the result rows.
type RunFunc func(ctx context.Context) ([]tessera.Row, error)

// cacheEntry is the per-query-id state of the materialized and hybrid
// strategies. Entries are swapped whole after a pipeline completes, never
// mutated in place, so readers always observe a consistent result.
type cacheEntry struct {
	result      *tessera.FederatedResult
	lastUpdated time.Time
	nextUpdate  time.Time
	refreshing  bool
}

// StrategyController wraps pipeline execution with virtual, materialized and
// hybrid caching semantics. State is per query id; there is no cross-query
// locking beyond the map guard.
type StrategyController struct {
	mu              sync.Mutex
	entries         map[string]*cacheEntry
	refreshInterval time.Duration
	refreshTimeout  time.Duration
	now             func() time.Time
}

// NewStrategyController creates a controller. refreshInterval sets the
// materialized cache window; refreshTimeout bounds hybrid background
// refreshes.
func NewStrategyController(refreshInterval, refreshTimeout time.Duration) *StrategyController {
	if refreshInterval <= 0 {
		refreshInterval = 15 * time.Minute
	}
	if refreshTimeout <= 0 {
		refreshTimeout = 30 * time.Second
	}
	return &StrategyController{
		entries:         make(map[string]*cacheEntry),
		refreshInterval: refreshInterval,
		refreshTimeout:  refreshTimeout,
		now:             time.Now,
	}
}

// WithClock overrides the controller's clock. Test hook.
func (c *StrategyController) WithClock(now func() time.Time) {
	if now == nil {
		return
	}
	c.now = now
}

// Execute runs one query under the given strategy.
func (c *StrategyController) Execute(ctx context.Context, queryID string, strategy tessera.Strategy, run RunFunc) (*tessera.FederatedResult, error) {
	switch strategy {
	case tessera.StrategyVirtual:
		return c.executeFresh(ctx, queryID, run, false)
	case tessera.StrategyMaterialized:
		return c.executeMaterialized(ctx, queryID, run)
	case tessera.StrategyHybrid:
		return c.executeHybrid(ctx, queryID, run)
	default:
		return nil, tessera.NewUnknownStrategyError(string(strategy))
	}
}

// executeFresh runs the pipeline unconditionally. With remember=true the
// result also becomes the cached entry for materialized/hybrid callers of
// the same query id.
func (c *StrategyController) executeFresh(ctx context.Context, queryID string, run RunFunc, remember bool) (*tessera.FederatedResult, error) {
	started := c.now()
	rows, err := run(ctx)
	if err != nil {
		return nil, err
	}
	finished := c.now()
	result := &tessera.FederatedResult{
		Rows:            rows,
		ExecutionTimeMs: finished.Sub(started).Milliseconds(),
		CacheHit:        false,
		LastUpdated:     finished,
	}
	if remember {
		next := finished.Add(c.refreshInterval)
		result.NextUpdate = &next
		c.storeEntry(queryID, result, finished, next)
	}
	return result, nil
}

func (c *StrategyController) executeMaterialized(ctx context.Context, queryID string, run RunFunc) (*tessera.FederatedResult, error) {
	c.mu.Lock()
	entry := c.entries[queryID]
	now := c.now()
	if entry != nil && entry.result != nil && now.Before(entry.nextUpdate) {
		cached := cachedCopy(entry)
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	// window elapsed or first call: re-run and advance the window
	return c.executeFresh(ctx, queryID, run, true)
}

// executeHybrid serves the cached result immediately and unconditionally
// triggers an asynchronous refresh for the next caller. The first call has
// nothing to serve and executes synchronously.
func (c *StrategyController) executeHybrid(ctx context.Context, queryID string, run RunFunc) (*tessera.FederatedResult, error) {
	c.mu.Lock()
	entry := c.entries[queryID]
	if entry == nil || entry.result == nil {
		c.mu.Unlock()
		return c.executeFresh(ctx, queryID, run, true)
	}
	cached := cachedCopy(entry)
	alreadyRefreshing := entry.refreshing
	if !alreadyRefreshing {
		entry.refreshing = true
	}
	c.mu.Unlock()

	if !alreadyRefreshing {
		go c.refresh(queryID, run)
	}
	return cached, nil
}

// refresh re-runs the pipeline off the caller's request path. The cache slot
// is swapped only after the pipeline completes; a failed refresh keeps the
// previous result.
func (c *StrategyController) refresh(queryID string, run RunFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()

	started := c.now()
	rows, err := run(ctx)
	finished := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.entries[queryID]
	if entry != nil {
		entry.refreshing = false
	}
	if err != nil {
		zap.S().Warnw("background refresh failed, keeping previous result",
			"query_id", queryID, "error", err)
		return
	}
	next := finished.Add(c.refreshInterval)
	c.entries[queryID] = &cacheEntry{
		result: &tessera.FederatedResult{
			Rows:            rows,
			ExecutionTimeMs: finished.Sub(started).Milliseconds(),
			CacheHit:        false,
			LastUpdated:     finished,
			NextUpdate:      &next,
		},
		lastUpdated: finished,
		nextUpdate:  next,
	}
}

func (c *StrategyController) storeEntry(queryID string, result *tessera.FederatedResult, updated, next time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	refreshing := false
	if prev := c.entries[queryID]; prev != nil {
		refreshing = prev.refreshing
	}
	c.entries[queryID] = &cacheEntry{
		result:      result,
		lastUpdated: updated,
		nextUpdate:  next,
		refreshing:  refreshing,
	}
}

// CachedResult returns the stored result for a query id, if any. Used by
// callers persisting materialized results through the configuration layer.
func (c *StrategyController) CachedResult(queryID string) (*tessera.FederatedResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.entries[queryID]
	if entry == nil || entry.result == nil {
		return nil, false
	}
	return cachedCopy(entry), true
}

// Invalidate drops the cached state of one query id.
func (c *StrategyController) Invalidate(queryID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, queryID)
}

// cachedCopy returns a caller-owned result with CacheHit set. Rows are
// shared; results are treated as immutable once stored.
func cachedCopy(entry *cacheEntry) *tessera.FederatedResult {
	res := *entry.result
	res.CacheHit = true
	return &res
}
