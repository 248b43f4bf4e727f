package domain

import "time"

// Role identifies one of the four user populations.
type Role string

const (
	RoleCommunity   Role = "COMMUNITY"
	RolePersonnel   Role = "PERSONNEL"
	RoleCoordinator Role = "COORDINATOR"
	RoleAuthority   Role = "AUTHORITY"
)

var roleAliases = map[string]Role{
	"community":   RoleCommunity,
	"comunidad":   RoleCommunity,
	"student":     RoleCommunity,
	"estudiante":  RoleCommunity,
	"personnel":   RolePersonnel,
	"personal":    RolePersonnel,
	"staff":       RolePersonnel,
	"coordinator": RoleCoordinator,
	"coordinador": RoleCoordinator,
	"authority":   RoleAuthority,
	"autoridad":   RoleAuthority,
	"admin":       RoleAuthority,
}

// ParseRole maps backend role names in either language to a Role.
// Unknown names fall back to community, the least privileged view.
func ParseRole(s string) Role {
	if r, ok := roleAliases[Fold(s)]; ok {
		return r
	}
	return RoleCommunity
}

// Profile is the current user as reported by the whoami endpoint.
type Profile struct {
	ID     string        `json:"id"`
	Email  string        `json:"email"`
	Name   string        `json:"name"`
	Role   Role          `json:"role"`
	Area   string        `json:"area"`
	ToList []IncidentKey `json:"ToList"`
}

// HasAssignment reports whether key is in the personnel assignment list.
func (p Profile) HasAssignment(key IncidentKey) bool {
	for _, k := range p.ToList {
		if k.UUID == key.UUID && (k.Type == "" || key.Type == "" || k.Type == key.Type) {
			return true
		}
	}
	return false
}

// Session is a bearer token and its absolute expiry.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Valid reports whether the token is present and not yet expired at now.
func (s Session) Valid(now time.Time) bool {
	return s.Token != "" && now.Before(s.ExpiresAt)
}
