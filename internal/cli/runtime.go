package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/incident-sync/internal/actions"
	"github.com/spec-kit/incident-sync/internal/backend"
	"github.com/spec-kit/incident-sync/internal/config"
	"github.com/spec-kit/incident-sync/internal/domain"
	"github.com/spec-kit/incident-sync/internal/events"
	"github.com/spec-kit/incident-sync/internal/incidents"
	"github.com/spec-kit/incident-sync/internal/observability"
	"github.com/spec-kit/incident-sync/internal/persistence"
	"github.com/spec-kit/incident-sync/internal/repository"
	"github.com/spec-kit/incident-sync/internal/service"
	"github.com/spec-kit/incident-sync/internal/session"
	"github.com/spec-kit/incident-sync/internal/transport"
)

// errLoginRequired is returned by commands that need a stored session.
var errLoginRequired = errors.New("no valid session; run `incidentsync login` first")

// runtime holds the components every command shares.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics

	kv            persistence.KV
	redis         *persistence.Redis
	tokens        *session.TokenStore
	profiles      *session.ProfileStore
	backend       *backend.Client
	auth          *service.AuthService
	notifications *service.NotificationService
	areas         *domain.AreaCatalog
	bus           events.Dispatcher

	realtime *transport.Client
	postgres *persistence.Postgres
}

func newRuntime(cfg *config.Config, logger *zap.Logger) (*runtime, error) {
	r := &runtime{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(),
	}

	switch cfg.Session.Store {
	case config.SessionStoreRedis:
		r.redis = persistence.NewRedis(cfg.Redis, logger)
		r.kv = r.redis
	default:
		kv, err := persistence.NewFileKV(cfg.Session.Dir)
		if err != nil {
			return nil, fmt.Errorf("open session dir: %w", err)
		}
		r.kv = kv
	}

	areas, err := config.LoadAreaCatalog(cfg.Areas)
	if err != nil {
		return nil, err
	}
	r.areas = areas

	r.tokens = session.NewTokenStore(r.kv)
	r.profiles = session.NewProfileStore(r.kv)
	r.backend = backend.NewClient(cfg.Backend, r.tokens, logger)
	r.bus = events.NewInMemoryDispatcher(logger, r.metrics)
	r.notifications = service.NewNotificationService(r.bus, r.kv, nil, logger, cfg.Session.NotificationLogLimit)
	r.auth = service.NewAuthService(service.AuthDependencies{
		Backend:       r.backend,
		Tokens:        r.tokens,
		Profiles:      r.profiles,
		Notifications: r.notifications,
	}, logger)
	r.backend.OnSessionExpired(r.auth.HandleSessionExpired)
	return r, nil
}

// viewer returns the current user's visibility scope.
func (r *runtime) viewer(ctx context.Context) (incidents.Viewer, error) {
	profile, err := r.auth.Profile(ctx, false)
	if err != nil {
		if errors.Is(err, session.ErrNoToken) {
			return incidents.Viewer{}, errLoginRequired
		}
		return incidents.Viewer{}, err
	}
	return incidents.Viewer{Profile: profile, Areas: r.areas}, nil
}

// connect opens the realtime link. The caller must call close.
func (r *runtime) connect(ctx context.Context) (*transport.Client, error) {
	if !r.tokens.Valid(ctx) {
		return nil, errLoginRequired
	}
	if r.realtime == nil {
		dialer := transport.NewWebsocketDialer(r.cfg.Realtime.HandshakeTimeout())
		r.realtime = transport.NewClient(r.cfg.Realtime, r.tokens, r.bus, r.logger, r.metrics, transport.WithDialer(dialer))
	}
	r.realtime.Connect(ctx)
	return r.realtime, nil
}

// incidentService wires the cache, emitter and awaiter around the realtime link.
func (r *runtime) incidentService(cache *incidents.Cache, sender actions.Sender) *service.IncidentService {
	return service.NewIncidentService(service.IncidentDependencies{
		Cache:   cache,
		Lookup:  r.backend,
		Emitter: actions.NewEmitter(sender, r.logger, r.metrics),
		Awaiter: actions.NewAwaiter(r.bus, r.cfg.Realtime.ConfirmTimeout()),
		Areas:   r.areas,
	}, r.logger)
}

// frames opens the journal database, or returns nil when it is not configured.
func (r *runtime) frames(ctx context.Context) (repository.FrameRepository, error) {
	if r.cfg.Postgres.DSN == "" {
		return nil, nil
	}
	if r.postgres == nil {
		pg, err := persistence.NewPostgres(ctx, r.cfg.Postgres, r.logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		r.postgres = pg
		if r.cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), r.logger); err != nil {
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
	}
	return repository.NewFrameRepository(r.postgres.PoolHandle()), nil
}

func (r *runtime) close() {
	if r.realtime != nil {
		r.realtime.Disconnect()
	}
	r.postgres.Close()
	r.redis.Close()
}
