package domain

import "time"

// IncidentStatus enumerates lifecycle states. Transitions only move forward:
// Pendiente -> EnAtencion -> Resuelto.
type IncidentStatus string

const (
	StatusPendiente  IncidentStatus = "Pendiente"
	StatusEnAtencion IncidentStatus = "EnAtencion"
	StatusResuelto   IncidentStatus = "Resuelto"
)

// Rank orders statuses along the lifecycle.
func (s IncidentStatus) Rank() int {
	switch s {
	case StatusEnAtencion:
		return 1
	case StatusResuelto:
		return 2
	default:
		return 0
	}
}

// IncidentPriority enumerates urgency.
type IncidentPriority string

const (
	PriorityBajo    IncidentPriority = "BAJO"
	PriorityMedia   IncidentPriority = "MEDIA"
	PriorityAlta    IncidentPriority = "ALTA"
	PriorityCritico IncidentPriority = "CRÍTICO"
)

// IncidentKey is the composite identity of an incident.
type IncidentKey struct {
	Type string `json:"tenant_id"`
	UUID string `json:"uuid"`
}

// Comment is one entry of the append-only thread attached to an incident.
type Comment struct {
	Date    time.Time `json:"Date"`
	UserID  string    `json:"UserId"`
	Role    string    `json:"Role"`
	Message string    `json:"Message"`
}

// Location describes where the incident happened.
type Location struct {
	Tower string `json:"LocationTower,omitempty"`
	Floor string `json:"LocationFloor,omitempty"`
	Area  string `json:"LocationArea,omitempty"`
}

// Incident is the client-side view of a reported facility or safety issue.
type Incident struct {
	Type                  string           `json:"Type"`
	UUID                  string           `json:"UUID"`
	Title                 string           `json:"Title"`
	Description           string           `json:"Description"`
	Status                IncidentStatus   `json:"Status"`
	Priority              IncidentPriority `json:"Priority"`
	ResponsibleArea       []string         `json:"ResponsibleArea"`
	CreatedByID           string           `json:"CreatedById"`
	CreatedByName         string           `json:"CreatedByName"`
	AssignedToPersonalID  string           `json:"AssignedToPersonalId,omitempty"`
	PendienteReasignacion bool             `json:"PendienteReasignacion"`
	IsGlobal              bool             `json:"IsGlobal"`
	Comment               []Comment        `json:"Comment"`
	Location              Location         `json:"Location"`
	Reference             string           `json:"Reference,omitempty"`
	Subtype               string           `json:"Subtype,omitempty"`
	CreatedAt             *time.Time       `json:"CreatedAt,omitempty"`
	ExecutingAt           *time.Time       `json:"ExecutingAt,omitempty"`
	ResolvedAt            *time.Time       `json:"ResolvedAt,omitempty"`
	WaitingMinutes        int              `json:"WaitingMinutes"`
}

// Key returns the composite identity.
func (i Incident) Key() IncidentKey {
	return IncidentKey{Type: i.Type, UUID: i.UUID}
}

// IsAssigned reports whether personnel has been attached.
func (i Incident) IsAssigned() bool {
	return i.AssignedToPersonalID != ""
}

// RawIncident is an incident record as the backend sends it, before normalization.
type RawIncident map[string]any

// IncidentFilter captures the query parameters accepted by the incidents endpoint.
type IncidentFilter struct {
	Statuses       []IncidentStatus
	Priorities     []IncidentPriority
	Area           string
	Global         *bool
	TenantID       string
	Type           string
	MinWaitMinutes *int
	MaxWaitMinutes *int
}
