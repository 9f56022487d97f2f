package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"helm-assistant/internal/domain"
)

// Default catalog settings.
const (
	defaultCatalogTTL    = 5 * time.Minute
	defaultRefreshPerMin = 6
	defaultRefreshBurst  = 4
)

// CatalogConfig tunes the reference catalog cache.
type CatalogConfig struct {
	// TTL is how long a kind's entity list is served without re-fetching.
	TTL time.Duration
	// RefreshPerMinute caps how many refresh fetches may hit the backend.
	RefreshPerMinute int
	// RefreshSchedule is an optional cron expression for background refresh
	// of all kinds (e.g. "@every 10m"). Empty disables scheduling.
	RefreshSchedule string
}

// ReferenceCatalog is a read-only cached lookup of context-eligible entities
// keyed by kind and id. It is shared state: the chat core only reads from it,
// and refreshes happen on the catalog's own policy, independent of the send
// state machine.
type ReferenceCatalog struct {
	mu        sync.RWMutex
	entries   map[domain.EntityKind]map[string]domain.Entity
	fetchedAt map[domain.EntityKind]time.Time

	lister  domain.EntityLister
	bus     domain.EventBus
	logger  *slog.Logger
	ttl     time.Duration
	limiter *rate.Limiter
	sched   *cron.Cron
}

// NewReferenceCatalog creates a catalog over the given entity lister.
func NewReferenceCatalog(lister domain.EntityLister, cfg CatalogConfig, bus domain.EventBus, logger *slog.Logger) *ReferenceCatalog {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultCatalogTTL
	}
	perMin := cfg.RefreshPerMinute
	if perMin <= 0 {
		perMin = defaultRefreshPerMin
	}

	return &ReferenceCatalog{
		entries:   make(map[domain.EntityKind]map[string]domain.Entity),
		fetchedAt: make(map[domain.EntityKind]time.Time),
		lister:    lister,
		bus:       bus,
		logger:    logger,
		ttl:       ttl,
		limiter:   rate.NewLimiter(rate.Limit(float64(perMin)/60.0), defaultRefreshBurst),
	}
}

// Lookup returns the entity for (kind, id) if it is currently cached.
func (c *ReferenceCatalog) Lookup(kind domain.EntityKind, id string) (domain.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[kind][id]
	return e, ok
}

// Entities returns a copy of all cached entities of one kind.
func (c *ReferenceCatalog) Entities(kind domain.EntityKind) []domain.Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Entity, 0, len(c.entries[kind]))
	for _, e := range c.entries[kind] {
		out = append(out, e)
	}
	return out
}

// Fresh reports whether the cached list for kind is within its TTL.
func (c *ReferenceCatalog) Fresh(kind domain.EntityKind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	at, ok := c.fetchedAt[kind]
	return ok && time.Since(at) < c.ttl
}

// EnsureFresh refreshes kind if its cache is missing or expired. Stale data
// is served rather than failing when the refresh limiter denies the fetch.
func (c *ReferenceCatalog) EnsureFresh(ctx context.Context, kind domain.EntityKind) error {
	if c.Fresh(kind) {
		return nil
	}
	return c.Refresh(ctx, kind)
}

// Refresh re-fetches the entity list for the given kinds (all kinds when none
// are named). Fetches are rate limited; a denied fetch keeps the previous
// cache and is not an error.
func (c *ReferenceCatalog) Refresh(ctx context.Context, kinds ...domain.EntityKind) error {
	if len(kinds) == 0 {
		kinds = domain.EntityKinds()
	}

	var firstErr error
	for _, kind := range kinds {
		if !c.limiter.Allow() {
			c.logger.Debug("catalog refresh throttled", "kind", string(kind))
			continue
		}

		entities, err := c.lister.ListEntities(ctx, kind)
		if err != nil {
			c.logger.Warn("catalog refresh failed", "kind", string(kind), "error", err)
			if firstErr == nil {
				firstErr = domain.WrapOp("Catalog.Refresh", err)
			}
			continue
		}

		byID := make(map[string]domain.Entity, len(entities))
		for _, e := range entities {
			e.Kind = kind
			byID[e.ID] = e
		}

		c.mu.Lock()
		c.entries[kind] = byID
		c.fetchedAt[kind] = time.Now()
		c.mu.Unlock()

		c.logger.Debug("catalog refreshed", "kind", string(kind), "entities", len(byID))
	}

	if firstErr == nil && c.bus != nil {
		c.bus.Publish(ctx, domain.Event{
			Type:      domain.EventCatalogRefreshed,
			Timestamp: time.Now(),
		})
	}
	return firstErr
}

// StartSchedule begins background refresh on the configured cron schedule.
// No-op when the schedule is empty. Stop releases the scheduler.
func (c *ReferenceCatalog) StartSchedule(ctx context.Context, schedule string) error {
	if schedule == "" {
		return nil
	}

	sched := cron.New()
	_, err := sched.AddFunc(schedule, func() {
		if err := c.Refresh(ctx); err != nil {
			c.logger.Warn("scheduled catalog refresh failed", "error", err)
		}
	})
	if err != nil {
		return domain.WrapOp("Catalog.StartSchedule", err)
	}

	sched.Start()
	c.mu.Lock()
	c.sched = sched
	c.mu.Unlock()
	return nil
}

// Stop halts any background refresh schedule.
func (c *ReferenceCatalog) Stop() {
	c.mu.Lock()
	sched := c.sched
	c.sched = nil
	c.mu.Unlock()
	if sched != nil {
		sched.Stop()
	}
}
