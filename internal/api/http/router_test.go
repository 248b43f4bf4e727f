package http_test

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/incident-sync/internal/actions"
	apihttp "github.com/spec-kit/incident-sync/internal/api/http"
	"github.com/spec-kit/incident-sync/internal/api/http/handlers"
	"github.com/spec-kit/incident-sync/internal/domain"
	"github.com/spec-kit/incident-sync/internal/events"
	"github.com/spec-kit/incident-sync/internal/incidents"
	"github.com/spec-kit/incident-sync/internal/observability"
	"github.com/spec-kit/incident-sync/internal/persistence"
	"github.com/spec-kit/incident-sync/internal/service"
)

type snapshotSource struct{}

func (snapshotSource) ListIncidents(context.Context, domain.IncidentFilter) ([]domain.RawIncident, error) {
	return []domain.RawIncident{
		{"tenant_id": "TI", "uuid": "1", "Title": "Fuga", "Status": "Pendiente"},
		{"tenant_id": "TI", "uuid": "2", "Title": "Luz", "Status": "EnAtencion"},
	}, nil
}

// solvingSender confirms every command with a SolvedIncident event.
type solvingSender struct {
	bus       events.Dispatcher
	connected bool
}

func (s *solvingSender) IsConnected() bool { return s.connected }

func (s *solvingSender) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var sent map[string]any
	if err := json.Unmarshal(data, &sent); err != nil {
		return err
	}
	payload, _ := json.Marshal(map[string]any{"data": map[string]any{
		"tenant_id": sent["tenant_id"],
		"uuid":      sent["uuid"],
		"Status":    "Resuelto",
	}})
	go func() {
		_ = s.bus.Publish(context.Background(), events.Event{Type: events.EventSolvedIncident, Payload: payload, ReceivedAt: time.Now()})
	}()
	return nil
}

type testServer struct {
	app     *fiber.App
	bus     events.Dispatcher
	sender  *solvingSender
	metrics *observability.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	metrics := observability.NewMetrics()
	bus := events.NewInMemoryDispatcher(nil, metrics)
	sender := &solvingSender{bus: bus}

	viewer := incidents.Viewer{Profile: domain.Profile{Role: domain.RoleAuthority}, Areas: domain.DefaultAreaCatalog()}
	cache := incidents.NewCache(snapshotSource{}, viewer, nil, metrics)
	cache.Attach(bus)
	t.Cleanup(cache.Detach)

	incidentService := service.NewIncidentService(service.IncidentDependencies{
		Cache:   cache,
		Emitter: actions.NewEmitter(sender, nil, metrics),
		Awaiter: actions.NewAwaiter(bus, time.Second),
		Areas:   domain.DefaultAreaCatalog(),
	}, nil)
	require.NoError(t, incidentService.Load(context.Background(), domain.IncidentFilter{}))

	kv, err := persistence.NewFileKV(t.TempDir())
	require.NoError(t, err)
	notifications := service.NewNotificationService(bus, kv, &viewer, nil, 0)
	notifications.RegisterHandlers()

	app := apihttp.NewApp("incident-sync-test", apihttp.RouteConfig{
		Health:        handlers.NewHealthHandler("incident-sync", "test", sender, nil, nil),
		Metrics:       handlers.NewMetricsHandler(metrics),
		Incidents:     handlers.NewIncidentsHandler(incidentService),
		Notifications: handlers.NewNotificationsHandler(notifications),
		Actions:       handlers.NewActionsHandler(incidentService),
	}, apihttp.MiddlewareConfig{Metrics: metrics, Timeout: 5 * time.Second})

	return &testServer{app: app, bus: bus, sender: sender, metrics: metrics}
}

func (s *testServer) do(t *testing.T, method, target, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := s.app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, fiber.MethodGet, "/health/live", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = srv.do(t, fiber.MethodGet, "/health/ready", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", errorCode(body))

	srv.sender.connected = true
	status, _ = srv.do(t, fiber.MethodGet, "/health/ready", "")
	assert.Equal(t, fiber.StatusOK, status)
}

func TestIncidents_ListAndGet(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, fiber.MethodGet, "/incidents", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 2, body["count"])

	status, body = srv.do(t, fiber.MethodGet, "/incidents?status=pending", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])
	data := body["data"].([]any)
	assert.Equal(t, "1", data[0].(map[string]any)["UUID"])

	status, body = srv.do(t, fiber.MethodGet, "/incidents/2", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Luz", body["data"].(map[string]any)["Title"])

	status, body = srv.do(t, fiber.MethodGet, "/incidents/9", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = srv.do(t, fiber.MethodGet, "/incidents?minWaitMinutes=soon", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestIncidents_Refresh(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, fiber.MethodPost, "/incidents/refresh", "")
	require.Equal(t, fiber.StatusOK, status)
	cache := body["cache"].(map[string]any)
	assert.EqualValues(t, 2, cache["size"])
	assert.NotEmpty(t, cache["loaded_at"])
}

func TestActions(t *testing.T) {
	srv := newTestServer(t)
	body := `{"tenant_id":"TI","uuid":"1"}`

	status, resp := srv.do(t, fiber.MethodPost, "/actions/resolve", body)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "NOT_CONNECTED", errorCode(resp))

	srv.sender.connected = true
	status, resp = srv.do(t, fiber.MethodPost, "/actions/resolve", body)
	assert.Equal(t, fiber.StatusAccepted, status)
	assert.Equal(t, "sent", resp["status"])

	status, resp = srv.do(t, fiber.MethodPost, "/actions/SolvedIncident?wait=true", body)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "confirmed", resp["status"])
	assert.Equal(t, "Resuelto", resp["incident"].(map[string]any)["Status"])

	status, resp = srv.do(t, fiber.MethodPost, "/actions/resolve", `{"tenant_id":"TI"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(resp))

	status, resp = srv.do(t, fiber.MethodPost, "/actions/NewIncident", body)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(resp))
}

func TestNotifications(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.bus.Publish(context.Background(), events.Event{
		Type:       events.EventNewIncident,
		Payload:    []byte(`{"uuid":"7","Title":"Humo"}`),
		ReceivedAt: time.Now(),
	}))

	status, body := srv.do(t, fiber.MethodGet, "/notifications", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["unread"])
	note := body["data"].([]any)[0].(map[string]any)

	status, _ = srv.do(t, fiber.MethodPost, "/notifications/"+note["id"].(string)+"/read", "")
	assert.Equal(t, fiber.StatusNoContent, status)

	status, body = srv.do(t, fiber.MethodPost, "/notifications/missing/read", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, _ = srv.do(t, fiber.MethodPost, "/notifications/read-all", "")
	assert.Equal(t, fiber.StatusNoContent, status)

	_, body = srv.do(t, fiber.MethodGet, "/notifications", "")
	assert.EqualValues(t, 0, body["unread"])
}

func TestUnknownRouteAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, fiber.MethodGet, "/nope", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = srv.do(t, fiber.MethodGet, "/metrics", "")
	require.Equal(t, fiber.StatusOK, status)
	requests := body["requests"].(map[string]any)
	assert.Contains(t, requests, "/nope|GET|404")
}
