package dto

import (
	"time"

	"github.com/spec-kit/incident-sync/internal/domain"
)

// IncidentListResponse wraps the cached incidents.
type IncidentListResponse struct {
	Data  []domain.Incident `json:"data"`
	Count int               `json:"count"`
	Cache CacheStatus       `json:"cache"`
}

// CacheStatus reports when the cache was last loaded and whether it failed.
type CacheStatus struct {
	Size     int        `json:"size"`
	LoadedAt *time.Time `json:"loaded_at,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// ActionResponse is returned by POST /actions/:command.
type ActionResponse struct {
	Command  string           `json:"command"`
	Status   string           `json:"status"`
	Incident *domain.Incident `json:"incident,omitempty"`
}

// Action statuses.
const (
	ActionSent      = "sent"
	ActionConfirmed = "confirmed"
)
