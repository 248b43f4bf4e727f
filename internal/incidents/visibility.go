package incidents

import (
	"github.com/spec-kit/incident-sync/internal/domain"
)

// Viewer is the user a cache is scoped to.
type Viewer struct {
	Profile domain.Profile
	Areas   *domain.AreaCatalog
}

// CanSee decides whether a newly created incident belongs in this viewer's list.
// Updates to incidents already listed skip this check.
func (v Viewer) CanSee(inc domain.Incident) bool {
	p := v.Profile
	switch p.Role {
	case domain.RoleAuthority:
		return true
	case domain.RoleCoordinator:
		return v.inArea(inc)
	case domain.RolePersonnel:
		if p.ID != "" && inc.AssignedToPersonalID == p.ID {
			return true
		}
		return v.inArea(inc) || p.HasAssignment(inc.Key())
	default:
		return inc.IsGlobal || (p.ID != "" && inc.CreatedByID == p.ID)
	}
}

func (v Viewer) inArea(inc domain.Incident) bool {
	return v.Areas.Contains(inc.ResponsibleArea, v.Profile.Area)
}
