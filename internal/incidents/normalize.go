// Package incidents keeps a locally cached, role-scoped list of incidents in
// step with the backend by combining an HTTP snapshot with pushed events.
package incidents

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/incident-sync/internal/domain"
)

// Lookup tables are keyed by domain.Fold output.
var statusSynonyms = map[string]domain.IncidentStatus{
	"pendiente": domain.StatusPendiente,
	"pending":   domain.StatusPendiente,
	"open":      domain.StatusPendiente,
	"abierto":   domain.StatusPendiente,
	"nuevo":     domain.StatusPendiente,

	"enatencion": domain.StatusEnAtencion,
	"atencion":   domain.StatusEnAtencion,
	"inprogress": domain.StatusEnAtencion,
	"enproceso":  domain.StatusEnAtencion,
	"attending":  domain.StatusEnAtencion,

	"resuelto":   domain.StatusResuelto,
	"resolved":   domain.StatusResuelto,
	"solved":     domain.StatusResuelto,
	"cerrado":    domain.StatusResuelto,
	"closed":     domain.StatusResuelto,
	"finalizado": domain.StatusResuelto,
}

var prioritySynonyms = map[string]domain.IncidentPriority{
	"bajo": domain.PriorityBajo,
	"baja": domain.PriorityBajo,
	"low":  domain.PriorityBajo,

	"media":  domain.PriorityMedia,
	"medio":  domain.PriorityMedia,
	"medium": domain.PriorityMedia,

	"alta": domain.PriorityAlta,
	"alto": domain.PriorityAlta,
	"high": domain.PriorityAlta,

	"critico":  domain.PriorityCritico,
	"critica":  domain.PriorityCritico,
	"critical": domain.PriorityCritico,
	"urgente":  domain.PriorityCritico,
	"urgent":   domain.PriorityCritico,
}

// NormalizeStatus maps any backend spelling to a canonical status, defaulting to Pendiente.
func NormalizeStatus(s string) domain.IncidentStatus {
	if st, ok := statusSynonyms[domain.Fold(s)]; ok {
		return st
	}
	return domain.StatusPendiente
}

// NormalizePriority maps any backend spelling to a canonical priority, defaulting to MEDIA.
func NormalizePriority(s string) domain.IncidentPriority {
	if p, ok := prioritySynonyms[domain.Fold(s)]; ok {
		return p
	}
	return domain.PriorityMedia
}

// field aliases, compared after folding so "tenant_id" and "TenantId" collide.
var (
	keyType          = []string{"tenant_id", "Type"}
	keyUUID          = []string{"UUID", "incident_id"}
	keyTitle         = []string{"Title", "titulo"}
	keyDescription   = []string{"Description", "descripcion"}
	keyStatus        = []string{"Status", "estado"}
	keyPriority      = []string{"Priority", "prioridad"}
	keyArea          = []string{"ResponsibleArea", "responsible_areas"}
	keyCreatedByID   = []string{"CreatedById", "created_by"}
	keyCreatedByName = []string{"CreatedByName"}
	keyAssigned      = []string{"AssignedToPersonalId", "assigned_to"}
	keyReassign      = []string{"PendienteReasignacion"}
	keyGlobal        = []string{"IsGlobal", "global"}
	keyComment       = []string{"Comment", "Comments"}
	keyTower         = []string{"LocationTower", "tower"}
	keyFloor         = []string{"LocationFloor", "floor"}
	keyLocationArea  = []string{"LocationArea"}
	keyReference     = []string{"Reference", "referencia"}
	keySubtype       = []string{"Subtype", "subtipo"}
	keyCreatedAt     = []string{"CreatedAt", "created_at"}
	keyExecutingAt   = []string{"ExecutingAt", "executing_at"}
	keyResolvedAt    = []string{"ResolvedAt", "resolved_at"}
)

type record map[string]any

func index(raw domain.RawIncident) record {
	out := make(record, len(raw))
	for k, v := range raw {
		fk := domain.Fold(k)
		if _, seen := out[fk]; !seen {
			out[fk] = v
		}
	}
	return out
}

func (r record) get(keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := r[domain.Fold(k)]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (r record) str(keys []string) string {
	v, ok := r.get(keys)
	if !ok {
		return ""
	}
	return asString(v)
}

// Normalize maps a raw backend record to an Incident. Missing fields become
// zero values; it never fails.
func Normalize(raw domain.RawIncident, now time.Time) domain.Incident {
	r := index(raw)

	inc := domain.Incident{
		Type:                  r.str(keyType),
		UUID:                  r.str(keyUUID),
		Title:                 r.str(keyTitle),
		Description:           r.str(keyDescription),
		Status:                NormalizeStatus(r.str(keyStatus)),
		Priority:              NormalizePriority(r.str(keyPriority)),
		ResponsibleArea:       []string{},
		CreatedByID:           r.str(keyCreatedByID),
		CreatedByName:         r.str(keyCreatedByName),
		AssignedToPersonalID:  r.str(keyAssigned),
		PendienteReasignacion: asBool(first(r.get(keyReassign))),
		IsGlobal:              asBool(first(r.get(keyGlobal))),
		Comment:               []domain.Comment{},
		Location: domain.Location{
			Tower: r.str(keyTower),
			Floor: r.str(keyFloor),
			Area:  r.str(keyLocationArea),
		},
		Reference: r.str(keyReference),
		Subtype:   r.str(keySubtype),
	}

	if v, ok := r.get(keyArea); ok {
		inc.ResponsibleArea = asStringSlice(v)
	}
	if v, ok := r.get(keyComment); ok {
		inc.Comment = asComments(v)
	}
	inc.CreatedAt = asTime(first(r.get(keyCreatedAt)))
	inc.ExecutingAt = asTime(first(r.get(keyExecutingAt)))
	inc.ResolvedAt = asTime(first(r.get(keyResolvedAt)))
	inc.WaitingMinutes = WaitingMinutes(inc.CreatedAt, now)

	return inc
}

// WaitingMinutes is max(0, floor((now - createdAt) / 1m)).
func WaitingMinutes(createdAt *time.Time, now time.Time) int {
	if createdAt == nil {
		return 0
	}
	d := now.Sub(*createdAt)
	if d <= 0 {
		return 0
	}
	return int(math.Floor(d.Minutes()))
}

func first(v any, _ bool) any { return v }

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch domain.Fold(t) {
		case "true", "1", "si", "yes":
			return true
		}
	}
	return false
}

func asStringSlice(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s := asString(item); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, part := range strings.Split(t, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func asComments(v any) []domain.Comment {
	items, ok := v.([]any)
	if !ok {
		return []domain.Comment{}
	}
	out := make([]domain.Comment, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		r := index(m)
		c := domain.Comment{
			UserID:  r.str([]string{"UserId", "user_id"}),
			Role:    r.str([]string{"Role", "rol"}),
			Message: r.str([]string{"Message", "mensaje", "text"}),
		}
		if ts := asTime(first(r.get([]string{"Date", "fecha", "created_at"}))); ts != nil {
			c.Date = *ts
		}
		out = append(out, c)
	}
	return out
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// asTime accepts RFC3339-like strings and epoch numbers in seconds or milliseconds.
func asTime(v any) *time.Time {
	var t time.Time
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return asTime(n)
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				t = parsed
				break
			}
		}
		if t.IsZero() {
			return nil
		}
	case float64:
		if x <= 0 {
			return nil
		}
		if x < 1e12 {
			t = time.Unix(int64(x), 0).UTC()
		} else {
			t = time.UnixMilli(int64(x)).UTC()
		}
	default:
		return nil
	}
	return &t
}
