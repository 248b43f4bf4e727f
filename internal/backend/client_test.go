package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/incident-sync/internal/config"
	"github.com/spec-kit/incident-sync/internal/domain"
	"github.com/spec-kit/incident-sync/internal/persistence"
	"github.com/spec-kit/incident-sync/internal/session"
	"github.com/spec-kit/incident-sync/pkg/util/errorutil"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *session.TokenStore) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	kv, err := persistence.NewFileKV(t.TempDir())
	require.NoError(t, err)
	tokens := session.NewTokenStore(kv)

	cfg := config.BackendConfig{
		BaseURL:        server.URL,
		IncidentsPath:  "/incidents",
		IncidentPath:   "/incident",
		WhoAmIPath:     "/whoami",
		LoginPath:      "/auth/login",
		RegisterPath:   "/auth/register",
		TimeoutSeconds: 5,
	}
	return NewClient(cfg, tokens, nil), tokens
}

func login(t *testing.T, tokens *session.TokenStore) {
	t.Helper()
	_, err := tokens.Save(context.Background(), "tok-123", time.Now().Add(time.Hour))
	require.NoError(t, err)
}

func TestListIncidents_QueryAndAuth(t *testing.T) {
	var gotQuery, gotAuth string
	client, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[{"UUID":"1","Status":"pending"},null,{"uuid":"2"}]`))
	}))
	login(t, tokens)

	global := true
	minWait := 5
	items, err := client.ListIncidents(context.Background(), domain.IncidentFilter{
		Statuses:       []domain.IncidentStatus{domain.StatusPendiente, domain.StatusEnAtencion},
		Area:           "TI",
		Global:         &global,
		TenantID:       "TI",
		MinWaitMinutes: &minWait,
	})

	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "area=TI&global=true&minWaitMinutes=5&status=Pendiente%2CEnAtencion&tenant_id=TI", gotQuery)
}

func TestListIncidents_WrappedList(t *testing.T) {
	client, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"UUID":"1"}]}`))
	}))
	login(t, tokens)

	items, err := client.ListIncidents(context.Background(), domain.IncidentFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "1", items[0]["UUID"])
}

func TestListIncidents_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   string
	}{
		{"server error", http.StatusInternalServerError, `oops`, errorutil.CodeUpstream},
		{"not json", http.StatusOK, `<html>`, ""},
		{"object without list", http.StatusOK, `{"message":"ok"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			login(t, tokens)

			_, err := client.ListIncidents(context.Background(), domain.IncidentFilter{})
			require.Error(t, err)
			if tt.code != "" {
				assert.True(t, errorutil.HasCode(err, tt.code))
			}
			assert.True(t, tokens.Valid(context.Background()))
		})
	}
}

func TestSessionExpiryClearsToken(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		client, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		login(t, tokens)
		expired := 0
		client.OnSessionExpired(func(context.Context) { expired++ })

		_, err := client.WhoAmI(context.Background())

		require.ErrorIs(t, err, ErrSessionExpired)
		assert.False(t, tokens.Valid(context.Background()))
		assert.Equal(t, 1, expired)
	}
}

func TestAuthenticatedCallWithoutToken(t *testing.T) {
	hits := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))

	_, err := client.ListIncidents(context.Background(), domain.IncidentFilter{})
	assert.ErrorIs(t, err, ErrLoginRequired)
	assert.Zero(t, hits)
}

func TestGetIncident(t *testing.T) {
	client, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/incident", r.URL.Path)
		assert.Equal(t, "abc#1", r.URL.Query().Get("uuid"))
		_, _ = w.Write([]byte(`{"incident":{"UUID":"abc#1","Title":"Fuga"}}`))
	}))
	login(t, tokens)

	raw, err := client.GetIncident(context.Background(), "MANTENIMIENTO", "abc#1")
	require.NoError(t, err)
	assert.Equal(t, "Fuga", raw["Title"])
}

func TestWhoAmI(t *testing.T) {
	client, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"user":{"user_id":"p-1","email":"p@campus.edu","rol":"Personal","area":"Limpieza","ToList":[{"tenant_id":"LIMPIEZA","uuid":"x#1"}]}}`))
	}))
	login(t, tokens)

	profile, err := client.WhoAmI(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p-1", profile.ID)
	assert.Equal(t, domain.RolePersonnel, profile.Role)
	assert.Equal(t, []domain.IncidentKey{{Type: "LIMPIEZA", UUID: "x#1"}}, profile.ToList)
}

func TestLogin(t *testing.T) {
	expires := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)
	client, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "fresh", "expiresAt": expires.Format(time.RFC3339)})
	}))
	ctx := context.Background()

	_, err := client.Login(ctx, "a@campus.edu", "wrong")
	assert.True(t, errorutil.HasCode(err, errorutil.CodeUnauthorized))

	sess, err := client.Login(ctx, "a@campus.edu", "secret")
	require.NoError(t, err)
	assert.True(t, expires.Equal(sess.ExpiresAt))
	tok, ok := tokens.Token(ctx)
	assert.True(t, ok)
	assert.Equal(t, "fresh", tok)

	_, err = client.Login(ctx, "", "")
	assert.True(t, errorutil.HasCode(err, errorutil.CodeValidation))
}

func TestRegister(t *testing.T) {
	var got RegisterRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))

	err := client.Register(context.Background(), RegisterRequest{Name: "Ana", Email: "ana@campus.edu", Password: "secreto"})
	require.NoError(t, err)
	assert.Equal(t, "ana@campus.edu", got.Email)

	err = client.Register(context.Background(), RegisterRequest{Email: "nope"})
	assert.True(t, errorutil.HasCode(err, errorutil.CodeValidation))
}

func TestParseExpiry(t *testing.T) {
	assert.True(t, parseExpiry(nil).IsZero())
	assert.Equal(t, int64(1714564800), parseExpiry(float64(1714564800)).Unix())
	assert.Equal(t, int64(1714564800), parseExpiry(float64(1714564800000)).Unix())
	assert.Equal(t, int64(1714564800), parseExpiry("1714564800").Unix())
}
