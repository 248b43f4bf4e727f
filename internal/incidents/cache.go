package incidents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/incident-sync/internal/domain"
	"github.com/spec-kit/incident-sync/internal/events"
	"github.com/spec-kit/incident-sync/internal/observability"
)

// Source loads the authoritative incident snapshot.
type Source interface {
	ListIncidents(ctx context.Context, filter domain.IncidentFilter) ([]domain.RawIncident, error)
}

// Event categories the cache reconciles.
var (
	CreationEvents = []events.EventType{
		events.EventNewIncident,
		events.EventPublishIncident,
	}
	UpdateEvents = []events.EventType{
		events.EventEditIncidentContent,
		events.EventStaffChooseIncident,
		events.EventCoordinatorAssign,
		events.EventSolvedIncident,
		events.EventAuthorityManage,
	}
	DeletionEvents = []events.EventType{
		events.EventIncidentDeleted,
	}
)

// Cache is one view's ordered, role-scoped projection of the incident stream.
// Items are newest first. Events are applied in delivery order and the latest
// event for a UUID always wins.
type Cache struct {
	source  Source
	viewer  Viewer
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu       sync.RWMutex
	items    []domain.Incident
	filter   domain.IncidentFilter
	err      error
	loadedAt time.Time

	attached events.Dispatcher
}

// NewCache builds an empty cache for viewer.
func NewCache(source Source, viewer Viewer, logger *zap.Logger, metrics *observability.Metrics) *Cache {
	return &Cache{
		source:  source,
		viewer:  viewer,
		logger:  observability.OrNop(logger),
		metrics: metrics,
		now:     time.Now,
		items:   []domain.Incident{},
	}
}

// Attach subscribes the cache to every incident event on d.
func (c *Cache) Attach(d events.Dispatcher) {
	c.mu.Lock()
	c.attached = d
	c.mu.Unlock()
	for _, t := range events.IncidentEventTypes {
		d.Subscribe(t, c)
	}
}

// Detach removes the subscriptions made by Attach.
func (c *Cache) Detach() {
	c.mu.Lock()
	d := c.attached
	c.attached = nil
	c.mu.Unlock()
	if d == nil {
		return
	}
	for _, t := range events.IncidentEventTypes {
		d.Unsubscribe(t, c)
	}
}

// Load replaces the cached list with a fresh snapshot for filter. On failure the
// list is emptied and the error is kept for Err; nothing is retried.
func (c *Cache) Load(ctx context.Context, filter domain.IncidentFilter) error {
	c.mu.Lock()
	c.filter = filter
	c.mu.Unlock()

	raws, err := c.source.ListIncidents(ctx, filter)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.items = []domain.Incident{}
		c.err = fmt.Errorf("load incidents: %w", err)
		c.logger.Warn("incident load failed", zap.Error(err))
		return c.err
	}

	items := make([]domain.Incident, 0, len(raws))
	for _, raw := range raws {
		items = append(items, Normalize(raw, now))
	}
	c.items = items
	c.err = nil
	c.loadedAt = now
	c.logger.Debug("incidents loaded", zap.Int("count", len(items)))
	return nil
}

// Refresh reloads with the filter of the last Load.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.RLock()
	filter := c.filter
	c.mu.RUnlock()
	return c.Load(ctx, filter)
}

// Handle implements events.Handler. Payloads that carry no usable incident are ignored.
func (c *Cache) Handle(_ context.Context, evt events.Event) error {
	c.Apply(evt)
	return nil
}

// Apply reconciles one event and reports whether it touched the list.
func (c *Cache) Apply(evt events.Event) bool {
	raw, err := ExtractIncident(evt.Payload)
	if err != nil {
		c.logger.Debug("event without incident payload",
			zap.String("event_type", string(evt.Type)), zap.Error(err))
		return false
	}
	now := evt.ReceivedAt
	if now.IsZero() {
		now = c.now()
	}
	inc := Normalize(raw, now)
	if inc.UUID == "" {
		c.logger.Debug("event incident has no uuid", zap.String("event_type", string(evt.Type)))
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var applied bool
	switch {
	case isOneOf(evt.Type, CreationEvents):
		applied = c.upsertLocked(inc)
	case isOneOf(evt.Type, UpdateEvents):
		applied = c.replaceLocked(inc)
	case isOneOf(evt.Type, DeletionEvents):
		applied = c.removeLocked(inc.UUID)
	}
	if applied {
		c.metrics.Inc(observability.EventsApplied)
	}
	return applied
}

func (c *Cache) indexLocked(uuid string) int {
	for i := range c.items {
		if c.items[i].UUID == uuid {
			return i
		}
	}
	return -1
}

func (c *Cache) upsertLocked(inc domain.Incident) bool {
	if i := c.indexLocked(inc.UUID); i >= 0 {
		c.items[i] = inc
		return true
	}
	if !c.viewer.CanSee(inc) {
		return false
	}
	next := make([]domain.Incident, 0, len(c.items)+1)
	next = append(next, inc)
	c.items = append(next, c.items...)
	return true
}

func (c *Cache) replaceLocked(inc domain.Incident) bool {
	i := c.indexLocked(inc.UUID)
	if i < 0 {
		return false
	}
	c.items[i] = inc
	return true
}

func (c *Cache) removeLocked(uuid string) bool {
	i := c.indexLocked(uuid)
	if i < 0 {
		return false
	}
	c.items = append(c.items[:i:i], c.items[i+1:]...)
	return true
}

// Items returns a copy of the cached list.
func (c *Cache) Items() []domain.Incident {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Incident{}, c.items...)
}

// Get returns the cached incident with uuid.
func (c *Cache) Get(uuid string) (domain.Incident, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexLocked(uuid); i >= 0 {
		return c.items[i], true
	}
	return domain.Incident{}, false
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Err returns the error of the last Load, nil after a successful one.
func (c *Cache) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// LoadedAt is the time of the last successful Load.
func (c *Cache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// Viewer returns the user this cache is scoped to.
func (c *Cache) Viewer() Viewer {
	return c.viewer
}

func isOneOf(t events.EventType, set []events.EventType) bool {
	for _, s := range set {
		if s == t {
			return true
		}
	}
	return false
}
