package authkit

import (
	"fmt"
	"strings"
)

// Role is one of the fixed marketplace roles.
type Role string

const (
	RoleUser      Role = "USER"
	RoleDeveloper Role = "DEVELOPER"
	RoleModerator Role = "MODERATOR"
	RoleAdmin     Role = "ADMIN"
)

// roleGrants lists, per role, every role requirement it satisfies.
// Grants are explicit; a new role receives nothing until it is listed here.
var roleGrants = map[Role][]Role{
	RoleUser:      {RoleUser},
	RoleDeveloper: {RoleUser, RoleDeveloper},
	RoleModerator: {RoleUser, RoleModerator},
	RoleAdmin:     {RoleUser, RoleDeveloper, RoleModerator, RoleAdmin},
}

// AllRoles returns the closed role enumeration.
func AllRoles() []Role {
	return []Role{RoleUser, RoleDeveloper, RoleModerator, RoleAdmin}
}

// ParseRole maps a stored or claimed role name onto the enumeration.
func ParseRole(value string) (Role, bool) {
	role := Role(strings.TrimSpace(value))
	if _, known := roleGrants[role]; !known {
		return "", false
	}
	return role, true
}

// Valid reports whether the role belongs to the enumeration.
func (role Role) Valid() bool {
	_, known := roleGrants[role]
	return known
}

// Grants returns a copy of the roles this role satisfies. Unknown roles grant nothing.
func (role Role) Grants() []Role {
	grants := roleGrants[role]
	if grants == nil {
		return nil
	}
	result := make([]Role, len(grants))
	copy(result, grants)
	return result
}

// Satisfies reports whether the role meets a single required role.
func (role Role) Satisfies(required Role) bool {
	for _, granted := range roleGrants[role] {
		if granted == required {
			return true
		}
	}
	return false
}

// Admits reports whether callerRole's grants intersect the required set.
// An empty required set admits nobody.
func Admits(callerRole Role, required ...Role) bool {
	for _, requiredRole := range required {
		if callerRole.Satisfies(requiredRole) {
			return true
		}
	}
	return false
}

// Authorize is Admits expressed as an error for service-level checks.
func Authorize(callerRole Role, required ...Role) error {
	if !Admits(callerRole, required...) {
		return fmt.Errorf("authorize.%s: %w", strings.ToLower(string(callerRole)), ErrForbidden)
	}
	return nil
}
