package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/incident-sync/internal/api/dto"
	"github.com/spec-kit/incident-sync/internal/domain"
	"github.com/spec-kit/incident-sync/internal/incidents"
	"github.com/spec-kit/incident-sync/internal/service"
	apperrors "github.com/spec-kit/incident-sync/pkg/util/errorutil"
)

// IncidentsHandler serves the cached incident view.
type IncidentsHandler struct {
	service *service.IncidentService
}

// NewIncidentsHandler constructs handler.
func NewIncidentsHandler(incidentService *service.IncidentService) *IncidentsHandler {
	return &IncidentsHandler{service: incidentService}
}

// List GET /incidents.
func (h *IncidentsHandler) List(c *fiber.Ctx) error {
	filter, err := parseIncidentQuery(c)
	if err != nil {
		return err
	}
	items := h.service.List(filter)
	return c.JSON(dto.IncidentListResponse{
		Data:  items,
		Count: len(items),
		Cache: cacheStatus(h.service.Status()),
	})
}

// Get GET /incidents/:uuid. The optional tenant_id query lets the backend
// answer for incidents the cache does not hold.
func (h *IncidentsHandler) Get(c *fiber.Ctx) error {
	uuid := c.Params("uuid")
	inc, ok, err := h.service.Get(c.UserContext(), c.Query("tenant_id"), uuid)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewNotFound("incident", map[string]any{"uuid": uuid})
	}
	return c.JSON(fiber.Map{"data": inc})
}

// Refresh POST /incidents/refresh.
func (h *IncidentsHandler) Refresh(c *fiber.Ctx) error {
	if err := h.service.Refresh(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"cache": cacheStatus(h.service.Status())})
}

func cacheStatus(s service.CacheStatus) dto.CacheStatus {
	out := dto.CacheStatus{Size: s.Count}
	if !s.LoadedAt.IsZero() {
		loaded := s.LoadedAt
		out.LoadedAt = &loaded
	}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	return out
}

func parseIncidentQuery(c *fiber.Ctx) (domain.IncidentFilter, error) {
	filter := domain.IncidentFilter{
		Area:     c.Query("area"),
		TenantID: c.Query("tenant_id"),
		Type:     c.Query("type"),
	}
	for _, part := range splitList(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, incidents.NormalizeStatus(part))
	}
	for _, part := range splitList(c.Query("priority")) {
		filter.Priorities = append(filter.Priorities, incidents.NormalizePriority(part))
	}
	if v := c.Query("global"); v != "" {
		global, err := strconv.ParseBool(v)
		if err != nil {
			return filter, apperrors.NewValidationError("invalid query", map[string]any{"global": v})
		}
		filter.Global = &global
	}
	var err error
	if filter.MinWaitMinutes, err = parseMinutes(c, "minWaitMinutes"); err != nil {
		return filter, err
	}
	if filter.MaxWaitMinutes, err = parseMinutes(c, "maxWaitMinutes"); err != nil {
		return filter, err
	}
	return filter, nil
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseMinutes(c *fiber.Ctx, key string) (*int, error) {
	val := c.Query(key)
	if val == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return nil, apperrors.NewValidationError("invalid query", map[string]any{key: val})
	}
	return &n, nil
}
