package domain

import "github.com/google/uuid"

// Principal is the authenticated caller with its role set resolved once per request.
type Principal struct {
	UserID   uuid.UUID
	Username string
	roles    map[string]struct{}
}

// NewPrincipal builds a principal from a user loaded with its roles
func NewPrincipal(u *User) Principal {
	roles := make(map[string]struct{}, len(u.Roles))
	for _, r := range u.Roles {
		roles[r.Name] = struct{}{}
	}
	return Principal{UserID: u.ID, Username: u.Username, roles: roles}
}

// HasRole reports membership in the named role
func (p Principal) HasRole(name string) bool {
	_, ok := p.roles[name]
	return ok
}

// HasAnyRole reports membership in at least one of the named roles
func (p Principal) HasAnyRole(names ...string) bool {
	for _, n := range names {
		if p.HasRole(n) {
			return true
		}
	}
	return false
}

func (p Principal) IsAdmin() bool {
	return p.HasRole(RoleAdmin)
}

// CanAuthor reports whether the caller may create challenges
func (p Principal) CanAuthor() bool {
	return p.HasAnyRole(RoleChallenger, RoleAdmin)
}
