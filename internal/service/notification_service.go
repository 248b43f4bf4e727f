package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/incident-sync/internal/domain"
	"github.com/spec-kit/incident-sync/internal/events"
	"github.com/spec-kit/incident-sync/internal/incidents"
	"github.com/spec-kit/incident-sync/internal/observability"
	"github.com/spec-kit/incident-sync/internal/persistence"
	"github.com/spec-kit/incident-sync/pkg/util/errorutil"
)

// DefaultNotificationLimit bounds the persisted log.
const DefaultNotificationLimit = 50

// NotificationService turns incident events into a bounded, persisted
// notification log, newest first.
type NotificationService struct {
	dispatcher events.Dispatcher
	kv         persistence.KV
	viewer     *incidents.Viewer
	logger     *zap.Logger
	limit      int
	now        func() time.Time

	mu      sync.Mutex
	entries []domain.Notification
	loaded  bool
	handler events.Handler
}

// NewNotificationService creates the service. A nil viewer records every event.
func NewNotificationService(dispatcher events.Dispatcher, kv persistence.KV, viewer *incidents.Viewer, logger *zap.Logger, limit int) *NotificationService {
	if limit <= 0 {
		limit = DefaultNotificationLimit
	}
	n := &NotificationService{
		dispatcher: dispatcher,
		kv:         kv,
		viewer:     viewer,
		logger:     observability.OrNop(logger).Named("notifications"),
		limit:      limit,
		now:        time.Now,
	}
	n.handler = events.NewHandler(n.handle)
	return n
}

// SetViewer scopes recording to what viewer can see. Call it before RegisterHandlers.
func (n *NotificationService) SetViewer(viewer *incidents.Viewer) {
	n.viewer = viewer
}

// RegisterHandlers subscribes to every incident event.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, t := range events.IncidentEventTypes {
		n.dispatcher.Subscribe(t, n.handler)
	}
}

// UnregisterHandlers undoes RegisterHandlers.
func (n *NotificationService) UnregisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, t := range events.IncidentEventTypes {
		n.dispatcher.Unsubscribe(t, n.handler)
	}
}

func (n *NotificationService) handle(ctx context.Context, event events.Event) error {
	raw, err := incidents.ExtractIncident(event.Payload)
	if err != nil {
		return nil
	}
	inc := incidents.Normalize(raw, event.ReceivedAt)
	if inc.UUID == "" {
		return nil
	}
	if n.viewer != nil && !n.viewer.CanSee(inc) {
		return nil
	}

	note := n.build(event.Type, raw, inc)
	if err := n.Add(ctx, note); err != nil {
		n.logger.Error("failed to record notification", zap.Error(err))
		return err
	}
	n.logger.Info("notification recorded",
		zap.String("type", string(note.Type)),
		zap.String("incident_id", note.IncidentID))
	return nil
}

func (n *NotificationService) build(t events.EventType, raw domain.RawIncident, inc domain.Incident) domain.Notification {
	note := domain.Notification{
		ID:            uuid.NewString(),
		IncidentID:    inc.UUID,
		IncidentTitle: inc.Title,
		CreatedAt:     n.now(),
	}
	title := inc.Title
	if title == "" {
		title = inc.UUID
	}

	switch t {
	case events.EventNewIncident, events.EventPublishIncident:
		note.Type = domain.NotificationNewIncident
		note.Title = "Nuevo incidente"
		note.Message = fmt.Sprintf("Se reportó %q", title)
	case events.EventStaffChooseIncident:
		note.Type = domain.NotificationAssigned
		note.Title = "Incidente tomado"
		note.Message = fmt.Sprintf("El personal tomó %q", title)
	case events.EventCoordinatorAssign:
		if isComment(raw) {
			note.Type = domain.NotificationComment
			note.Title = "Nuevo comentario"
			note.Message = fmt.Sprintf("Nuevo comentario en %q", title)
			if last := lastComment(inc); last != "" {
				note.Message = last
			}
		} else {
			note.Type = domain.NotificationAssigned
			note.Title = "Incidente asignado"
			note.Message = fmt.Sprintf("%q fue asignado", title)
		}
	case events.EventSolvedIncident:
		note.Type = domain.NotificationResolved
		note.Title = "Incidente resuelto"
		note.Message = fmt.Sprintf("%q fue resuelto", title)
	case events.EventEditIncidentContent:
		note.Type = domain.NotificationUpdated
		note.Title = "Incidente actualizado"
		note.Message = fmt.Sprintf("%q fue modificado", title)
	case events.EventAuthorityManage:
		note.Type = domain.NotificationManaged
		note.Title = "Incidente gestionado"
		note.Message = fmt.Sprintf("La autoridad gestionó %q", title)
	case events.EventIncidentDeleted:
		note.Type = domain.NotificationDeleted
		note.Title = "Incidente eliminado"
		note.Message = fmt.Sprintf("%q fue eliminado", title)
	default:
		note.Type = domain.NotificationUpdated
		note.Title = string(t)
		note.Message = title
	}
	return note
}

func isComment(raw domain.RawIncident) bool {
	for _, key := range []string{"operation", "op"} {
		if v, ok := raw[key].(string); ok && strings.EqualFold(v, "comment") {
			return true
		}
	}
	return false
}

func lastComment(inc domain.Incident) string {
	if len(inc.Comment) == 0 {
		return ""
	}
	return inc.Comment[len(inc.Comment)-1].Message
}

// Add prepends note and trims the log to its limit.
func (n *NotificationService) Add(ctx context.Context, note domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.loadLocked(ctx); err != nil {
		return err
	}
	next := make([]domain.Notification, 0, len(n.entries)+1)
	next = append(next, note)
	next = append(next, n.entries...)
	if len(next) > n.limit {
		next = next[:n.limit]
	}
	n.entries = next
	return n.persistLocked(ctx)
}

// List returns the log, newest first.
func (n *NotificationService) List(ctx context.Context) ([]domain.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.loadLocked(ctx); err != nil {
		return nil, err
	}
	return append([]domain.Notification{}, n.entries...), nil
}

// UnreadCount counts entries not yet marked read.
func (n *NotificationService) UnreadCount(ctx context.Context) (int, error) {
	list, err := n.List(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, note := range list {
		if !note.Read {
			count++
		}
	}
	return count, nil
}

// MarkRead flags one entry as read.
func (n *NotificationService) MarkRead(ctx context.Context, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.loadLocked(ctx); err != nil {
		return err
	}
	for i := range n.entries {
		if n.entries[i].ID == id {
			if n.entries[i].Read {
				return nil
			}
			n.entries[i].Read = true
			return n.persistLocked(ctx)
		}
	}
	return errorutil.NewNotFound("notification", map[string]any{"id": id})
}

// MarkAllRead flags every entry as read.
func (n *NotificationService) MarkAllRead(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.loadLocked(ctx); err != nil {
		return err
	}
	for i := range n.entries {
		n.entries[i].Read = true
	}
	return n.persistLocked(ctx)
}

// Clear empties the log.
func (n *NotificationService) Clear(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = []domain.Notification{}
	n.loaded = true
	return n.kv.Delete(ctx, persistence.KeyNotifications)
}

func (n *NotificationService) loadLocked(ctx context.Context) error {
	if n.loaded {
		return nil
	}
	data, err := n.kv.Get(ctx, persistence.KeyNotifications)
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		n.entries = []domain.Notification{}
	case err != nil:
		return fmt.Errorf("load notifications: %w", err)
	default:
		var entries []domain.Notification
		if err := json.Unmarshal(data, &entries); err != nil {
			n.logger.Warn("discarding unreadable notification log", zap.Error(err))
			entries = []domain.Notification{}
		}
		if len(entries) > n.limit {
			entries = entries[:n.limit]
		}
		n.entries = entries
	}
	n.loaded = true
	return nil
}

func (n *NotificationService) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(n.entries)
	if err != nil {
		return fmt.Errorf("encode notifications: %w", err)
	}
	if err := n.kv.Set(ctx, persistence.KeyNotifications, data, 0); err != nil {
		return fmt.Errorf("store notifications: %w", err)
	}
	return nil
}
