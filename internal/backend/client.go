// Package backend calls the remote incident HTTP API.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/spec-kit/incident-sync/internal/config"
	"github.com/spec-kit/incident-sync/internal/domain"
	"github.com/spec-kit/incident-sync/internal/observability"
	"github.com/spec-kit/incident-sync/pkg/util/errorutil"
)

const maxErrorBody = 512

var (
	// ErrSessionExpired is returned after a 401/403 on an authenticated call.
	ErrSessionExpired = errorutil.NewSessionExpired(0)
	// ErrLoginRequired is returned when an authenticated call has no token to send.
	ErrLoginRequired = errorutil.NewUnauthorized("login required")
)

// Tokens is the session side the client reads and invalidates.
type Tokens interface {
	Token(ctx context.Context) (string, bool)
	Save(ctx context.Context, token string, expiresAt time.Time) (domain.Session, error)
	Clear(ctx context.Context) error
}

// Client handles HTTP communication with the incident backend.
type Client struct {
	httpClient *http.Client
	cfg        config.BackendConfig
	tokens     Tokens
	logger     *zap.Logger

	mu        sync.RWMutex
	onExpired func(context.Context)
}

func NewClient(cfg config.BackendConfig, tokens Tokens, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		cfg:        cfg,
		tokens:     tokens,
		logger:     observability.OrNop(logger).Named("backend"),
	}
}

// OnSessionExpired registers fn to run after the stored token is cleared on 401/403.
func (c *Client) OnSessionExpired(fn func(context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExpired = fn
}

// ListIncidents fetches the incidents visible to the current user.
func (c *Client) ListIncidents(ctx context.Context, filter domain.IncidentFilter) ([]domain.RawIncident, error) {
	body, err := c.do(ctx, http.MethodGet, c.cfg.IncidentsPath, filterQuery(filter), nil, true)
	if err != nil {
		return nil, err
	}
	items, err := decodeIncidentList(body)
	if err != nil {
		return nil, fmt.Errorf("decode incidents: %w", err)
	}
	c.logger.Debug("incidents fetched", zap.Int("count", len(items)))
	return items, nil
}

// GetIncident fetches one incident by its composite key.
func (c *Client) GetIncident(ctx context.Context, tenantID, uuid string) (domain.RawIncident, error) {
	q := url.Values{}
	q.Set("tenant_id", tenantID)
	q.Set("uuid", uuid)
	body, err := c.do(ctx, http.MethodGet, c.cfg.IncidentPath, q, nil, true)
	if err != nil {
		return nil, err
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode incident: %w", err)
	}
	for _, key := range []string{"incident", "data"} {
		if nested, ok := envelope[key]; ok && len(nested) > 0 && nested[0] == '{' {
			body = nested
			break
		}
	}
	var raw domain.RawIncident
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode incident: %w", err)
	}
	if raw == nil {
		return nil, errorutil.NewNotFound("incident", map[string]any{"tenant_id": tenantID, "uuid": uuid})
	}
	return raw, nil
}

type profileResponse struct {
	ID     string               `json:"id"`
	UserID string               `json:"user_id"`
	Email  string               `json:"email"`
	Name   string               `json:"name"`
	Role   string               `json:"role"`
	Rol    string               `json:"rol"`
	Area   string               `json:"area"`
	ToList []domain.IncidentKey `json:"ToList"`
}

// WhoAmI returns the current user's profile.
func (c *Client) WhoAmI(ctx context.Context) (domain.Profile, error) {
	body, err := c.do(ctx, http.MethodGet, c.cfg.WhoAmIPath, nil, nil, true)
	if err != nil {
		return domain.Profile{}, err
	}

	var envelope struct {
		User *profileResponse `json:"user"`
	}
	var resp profileResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.User != nil {
		resp = *envelope.User
	} else if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Profile{}, fmt.Errorf("decode profile: %w", err)
	}

	profile := domain.Profile{
		ID:     firstNonEmpty(resp.ID, resp.UserID),
		Email:  resp.Email,
		Name:   resp.Name,
		Role:   domain.ParseRole(firstNonEmpty(resp.Role, resp.Rol)),
		Area:   resp.Area,
		ToList: resp.ToList,
	}
	if profile.ToList == nil {
		profile.ToList = []domain.IncidentKey{}
	}
	return profile, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	ExpiresAt   any    `json:"expiresAt"`
}

// Login exchanges credentials for a token and stores it.
func (c *Client) Login(ctx context.Context, email, password string) (domain.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return domain.Session{}, errorutil.NewValidationError("email and password are required", nil)
	}
	body, err := c.do(ctx, http.MethodPost, c.cfg.LoginPath, nil, loginRequest{Email: email, Password: password}, false)
	if err != nil {
		return domain.Session{}, err
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Session{}, fmt.Errorf("decode login: %w", err)
	}
	token := firstNonEmpty(resp.Token, resp.AccessToken)
	if token == "" {
		return domain.Session{}, errors.New("login response carries no token")
	}

	sess, err := c.tokens.Save(ctx, token, parseExpiry(resp.ExpiresAt))
	if err != nil {
		return domain.Session{}, err
	}
	c.logger.Info("logged in", zap.Time("expires_at", sess.ExpiresAt))
	return sess, nil
}

// RegisterRequest is the community self-registration payload.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code,omitempty"`
}

// Register creates a community account.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	details := map[string]any{}
	if strings.TrimSpace(req.Name) == "" {
		details["name"] = "required"
	}
	if !strings.Contains(req.Email, "@") {
		details["email"] = "invalid"
	}
	if len(req.Password) < 6 {
		details["password"] = "at least 6 characters"
	}
	if len(details) > 0 {
		return errorutil.NewValidationError("invalid registration", details)
	}
	_, err := c.do(ctx, http.MethodPost, c.cfg.RegisterPath, nil, req, false)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any, authenticated bool) ([]byte, error) {
	target, err := c.endpoint(path, query)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		token, ok := c.tokens.Token(ctx)
		if !ok {
			return nil, ErrLoginRequired
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case authenticated && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden):
		c.expire(ctx, resp.StatusCode)
		return nil, errorutil.NewSessionExpired(resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, errorutil.NewUnauthorized("invalid credentials")
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, errorutil.NewUpstreamError(resp.StatusCode, truncate(string(body), maxErrorBody))
	}
	return body, nil
}

func (c *Client) expire(ctx context.Context, status int) {
	c.logger.Warn("session rejected by backend", zap.Int("status", status))
	if err := c.tokens.Clear(ctx); err != nil {
		c.logger.Error("failed to clear session", zap.Error(err))
	}
	c.mu.RLock()
	hook := c.onExpired
	c.mu.RUnlock()
	if hook != nil {
		hook(ctx)
	}
}

func (c *Client) endpoint(path string, query url.Values) (string, error) {
	if c.cfg.BaseURL == "" {
		return "", errors.New("backend base URL is not configured")
	}
	u, err := url.Parse(c.cfg.BaseURL + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("parse backend URL: %w", err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// filterQuery serializes only the filters that are set.
func filterQuery(f domain.IncidentFilter) url.Values {
	q := url.Values{}
	if len(f.Statuses) > 0 {
		parts := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			parts = append(parts, string(s))
		}
		q.Set("status", strings.Join(parts, ","))
	}
	if len(f.Priorities) > 0 {
		parts := make([]string, 0, len(f.Priorities))
		for _, p := range f.Priorities {
			parts = append(parts, string(p))
		}
		q.Set("priority", strings.Join(parts, ","))
	}
	if f.Area != "" {
		q.Set("area", f.Area)
	}
	if f.Global != nil {
		q.Set("global", strconv.FormatBool(*f.Global))
	}
	if f.TenantID != "" {
		q.Set("tenant_id", f.TenantID)
	}
	if f.Type != "" {
		q.Set("type", f.Type)
	}
	if f.MinWaitMinutes != nil {
		q.Set("minWaitMinutes", strconv.Itoa(*f.MinWaitMinutes))
	}
	if f.MaxWaitMinutes != nil {
		q.Set("maxWaitMinutes", strconv.Itoa(*f.MaxWaitMinutes))
	}
	return q
}

// decodeIncidentList accepts a bare array or an object wrapping one.
func decodeIncidentList(body []byte) ([]domain.RawIncident, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []domain.RawIncident
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return compact(items), nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, err
	}
	for _, key := range []string{"items", "incidents", "data"} {
		if raw, ok := envelope[key]; ok {
			var items []domain.RawIncident
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, err
			}
			return compact(items), nil
		}
	}
	return nil, errors.New("response is not an incident list")
}

func compact(items []domain.RawIncident) []domain.RawIncident {
	out := make([]domain.RawIncident, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, item)
		}
	}
	return out
}

// parseExpiry reads RFC3339 strings and epoch seconds or milliseconds. A zero
// result lets the token store fall back to the JWT exp claim.
func parseExpiry(v any) time.Time {
	switch t := v.(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
		if n, err := strconv.ParseFloat(t, 64); err == nil {
			return parseExpiry(n)
		}
	case float64:
		if t <= 0 {
			return time.Time{}
		}
		if t < 1e12 {
			return time.Unix(int64(t), 0).UTC()
		}
		return time.UnixMilli(int64(t)).UTC()
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
