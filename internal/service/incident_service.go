package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/incident-sync/internal/actions"
	"github.com/spec-kit/incident-sync/internal/domain"
	"github.com/spec-kit/incident-sync/internal/events"
	"github.com/spec-kit/incident-sync/internal/incidents"
	"github.com/spec-kit/incident-sync/internal/observability"
)

// IncidentLookup fetches a single incident from the backend.
type IncidentLookup interface {
	GetIncident(ctx context.Context, tenantID, uuid string) (domain.RawIncident, error)
}

// IncidentService answers reads from the local cache and sends commands
// through the emitter, optionally waiting for the confirming event.
type IncidentService struct {
	cache   *incidents.Cache
	lookup  IncidentLookup
	emitter *actions.Emitter
	awaiter *actions.Awaiter
	areas   *domain.AreaCatalog
	logger  *zap.Logger
}

// IncidentDependencies encapsulates what the incident service needs.
type IncidentDependencies struct {
	Cache   *incidents.Cache
	Lookup  IncidentLookup
	Emitter *actions.Emitter
	Awaiter *actions.Awaiter
	Areas   *domain.AreaCatalog
}

func NewIncidentService(deps IncidentDependencies, logger *zap.Logger) *IncidentService {
	return &IncidentService{
		cache:   deps.Cache,
		lookup:  deps.Lookup,
		emitter: deps.Emitter,
		awaiter: deps.Awaiter,
		areas:   deps.Areas,
		logger:  observability.OrNop(logger).Named("incidents"),
	}
}

// List returns the cached incidents narrowed by filter, newest first.
func (s *IncidentService) List(filter domain.IncidentFilter) []domain.Incident {
	items := s.cache.Items()
	out := make([]domain.Incident, 0, len(items))
	for _, inc := range items {
		if incidents.Matches(inc, filter, s.areas) {
			out = append(out, inc)
		}
	}
	return out
}

// Get returns the cached incident, or asks the backend when tenantID is known.
func (s *IncidentService) Get(ctx context.Context, tenantID, uuid string) (domain.Incident, bool, error) {
	if inc, ok := s.cache.Get(uuid); ok {
		return inc, true, nil
	}
	if tenantID == "" || s.lookup == nil {
		return domain.Incident{}, false, nil
	}
	raw, err := s.lookup.GetIncident(ctx, tenantID, uuid)
	if err != nil {
		return domain.Incident{}, false, err
	}
	return incidents.Normalize(raw, time.Now()), true, nil
}

// Load replaces the cache content for filter.
func (s *IncidentService) Load(ctx context.Context, filter domain.IncidentFilter) error {
	return s.cache.Load(ctx, filter)
}

// Refresh reloads with the last filter.
func (s *IncidentService) Refresh(ctx context.Context) error {
	return s.cache.Refresh(ctx)
}

// CacheStatus summarizes the cache for the local API.
type CacheStatus struct {
	Count    int
	LoadedAt time.Time
	Err      error
}

func (s *IncidentService) Status() CacheStatus {
	return CacheStatus{Count: s.cache.Len(), LoadedAt: s.cache.LoadedAt(), Err: s.cache.Err()}
}

// Execute emits command with body. With wait set it blocks until the
// confirming event arrives and returns the incident it carries.
func (s *IncidentService) Execute(ctx context.Context, command events.EventType, body []byte, wait bool) (*domain.Incident, error) {
	if !wait || s.awaiter == nil {
		_, err := s.emitter.Execute(command, body)
		return nil, err
	}

	match, err := actions.MatchFor(command, body)
	if err != nil {
		return nil, err
	}
	evt, err := s.awaiter.Do(ctx, command, match, func() error {
		_, err := s.emitter.Execute(command, body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.incidentFrom(evt)
}

func (s *IncidentService) incidentFrom(evt events.Event) (*domain.Incident, error) {
	raw, err := incidents.ExtractIncident(evt.Payload)
	if err != nil {
		return nil, fmt.Errorf("confirmation without incident: %w", err)
	}
	inc := incidents.Normalize(raw, evt.ReceivedAt)
	s.logger.Info("command confirmed", zap.String("event_type", string(evt.Type)), zap.String("uuid", inc.UUID))
	return &inc, nil
}
