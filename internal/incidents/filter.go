package incidents

import (
	"github.com/spec-kit/incident-sync/internal/domain"
)

// Matches applies filter to an already normalized incident. It mirrors the
// query parameters the backend understands so a cached list can be narrowed locally.
func Matches(inc domain.Incident, filter domain.IncidentFilter, areas *domain.AreaCatalog) bool {
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, inc.Status) {
		return false
	}
	if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, inc.Priority) {
		return false
	}
	if filter.Area != "" && !areas.Contains(inc.ResponsibleArea, filter.Area) {
		return false
	}
	if filter.Global != nil && inc.IsGlobal != *filter.Global {
		return false
	}
	if filter.TenantID != "" && inc.Type != filter.TenantID {
		return false
	}
	if filter.Type != "" && domain.Fold(inc.Subtype) != domain.Fold(filter.Type) {
		return false
	}
	if filter.MinWaitMinutes != nil && inc.WaitingMinutes < *filter.MinWaitMinutes {
		return false
	}
	if filter.MaxWaitMinutes != nil && inc.WaitingMinutes > *filter.MaxWaitMinutes {
		return false
	}
	return true
}

func containsStatus(list []domain.IncidentStatus, s domain.IncidentStatus) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.IncidentPriority, p domain.IncidentPriority) bool {
	for _, item := range list {
		if item == p {
			return true
		}
	}
	return false
}
