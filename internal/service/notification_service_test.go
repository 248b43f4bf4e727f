package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/incident-sync/internal/domain"
	"github.com/spec-kit/incident-sync/internal/events"
	"github.com/spec-kit/incident-sync/internal/incidents"
	"github.com/spec-kit/incident-sync/internal/observability"
	"github.com/spec-kit/incident-sync/internal/persistence"
	"github.com/spec-kit/incident-sync/pkg/util/errorutil"
)

func newNotifications(t *testing.T, viewer *incidents.Viewer, limit int) (*NotificationService, events.Dispatcher, persistence.KV) {
	t.Helper()
	kv, err := persistence.NewFileKV(t.TempDir())
	require.NoError(t, err)
	bus := events.NewInMemoryDispatcher(nil, nil)
	svc := NewNotificationService(bus, kv, viewer, nil, limit)
	svc.RegisterHandlers()
	return svc, bus, kv
}

func emit(t *testing.T, bus events.Dispatcher, typ events.EventType, payload string) {
	t.Helper()
	require.NoError(t, bus.Publish(context.Background(), events.Event{
		Type:       typ,
		Payload:    []byte(payload),
		ReceivedAt: time.Now(),
	}))
}

func TestNotificationService_RecordsEvents(t *testing.T) {
	svc, bus, _ := newNotifications(t, nil, 0)
	ctx := context.Background()

	emit(t, bus, events.EventNewIncident, `{"UUID":"1","Title":"Fuga"}`)
	emit(t, bus, events.EventCoordinatorAssign, `{"UUID":"1","Title":"Fuga","operation":"comment","Comment":[{"Message":"voy"}]}`)
	emit(t, bus, events.EventSolvedIncident, `{"data":{"UUID":"1","Title":"Fuga"}}`)
	emit(t, bus, events.EventSolvedIncident, `{"Title":"sin uuid"}`)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, domain.NotificationResolved, list[0].Type)
	assert.Equal(t, domain.NotificationComment, list[1].Type)
	assert.Equal(t, "voy", list[1].Message)
	assert.Equal(t, domain.NotificationNewIncident, list[2].Type)
	assert.Equal(t, "1", list[2].IncidentID)
	assert.Equal(t, "Fuga", list[2].IncidentTitle)
	assert.NotEmpty(t, list[2].ID)
}

func TestNotificationService_BoundedAndPersisted(t *testing.T) {
	svc, bus, kv := newNotifications(t, nil, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		emit(t, bus, events.EventNewIncident, fmt.Sprintf(`{"UUID":"%d"}`, i))
	}

	reopened := NewNotificationService(nil, kv, nil, nil, 3)
	list, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "4", list[0].IncidentID)
	assert.Equal(t, "2", list[2].IncidentID)

	count, err := svc.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestNotificationService_ReadState(t *testing.T) {
	svc, bus, _ := newNotifications(t, nil, 0)
	ctx := context.Background()
	emit(t, bus, events.EventNewIncident, `{"UUID":"1"}`)
	emit(t, bus, events.EventNewIncident, `{"UUID":"2"}`)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.MarkRead(ctx, list[0].ID))
	count, _ := svc.UnreadCount(ctx)
	assert.Equal(t, 1, count)

	err = svc.MarkRead(ctx, "missing")
	assert.True(t, errorutil.HasCode(err, errorutil.CodeNotFound))

	require.NoError(t, svc.MarkAllRead(ctx))
	count, _ = svc.UnreadCount(ctx)
	assert.Zero(t, count)

	require.NoError(t, svc.Clear(ctx))
	list, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNotificationService_ViewerScope(t *testing.T) {
	viewer := &incidents.Viewer{
		Profile: domain.Profile{Role: domain.RoleCoordinator, Area: "Seguridad"},
		Areas:   domain.DefaultAreaCatalog(),
	}
	svc, bus, _ := newNotifications(t, viewer, 0)

	emit(t, bus, events.EventNewIncident, `{"UUID":"1","ResponsibleArea":["TI"]}`)
	emit(t, bus, events.EventNewIncident, `{"UUID":"2","ResponsibleArea":["Security"]}`)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "2", list[0].IncidentID)

	svc.UnregisterHandlers()
	emit(t, bus, events.EventNewIncident, `{"UUID":"3","ResponsibleArea":["Seguridad"]}`)
	list, _ = svc.List(context.Background())
	assert.Len(t, list, 1)
}

type memRepo struct {
	mu      sync.Mutex
	entries []domain.JournalEntry
}

func (m *memRepo) Append(_ context.Context, entry *domain.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memRepo) ListByIncident(context.Context, string, int) ([]domain.JournalEntry, error) {
	return nil, nil
}

func (m *memRepo) Recent(context.Context, int) ([]domain.JournalEntry, error) { return nil, nil }

func (m *memRepo) Prune(context.Context, int) (int64, error) { return 0, nil }

func (m *memRepo) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func TestJournalService_WritesCatchAllFrames(t *testing.T) {
	repo := &memRepo{}
	bus := events.NewInMemoryDispatcher(nil, nil)
	metrics := observability.NewMetrics()
	journal := NewJournalService(repo, bus, nil, metrics)
	journal.RegisterHandlers()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go journal.Run(ctx)

	frame := []byte(`{"action":"SolvedIncident","data":{"uuid":"9"}}`)
	require.NoError(t, bus.Publish(ctx, events.Event{Type: events.EventMessage, Payload: frame, Frame: frame}))

	assert.Eventually(t, func() bool { return repo.len() == 1 }, time.Second, 5*time.Millisecond)
	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Equal(t, "SolvedIncident", repo.entries[0].EventName)
	assert.Equal(t, "9", repo.entries[0].IncidentUUID)
	assert.JSONEq(t, string(frame), string(repo.entries[0].Payload))
}

func TestJournalEntry_UntypedFrame(t *testing.T) {
	entry := Entry(events.Event{Type: events.EventMessage, Frame: []byte(`{"hello":"world"}`)})
	assert.Equal(t, "message", entry.EventName)
	assert.Empty(t, entry.IncidentUUID)
	assert.False(t, entry.ReceivedAt.IsZero())
}
