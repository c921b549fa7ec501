package auth

import "github.com/spec-kit/community-service/internal/domain"

// CanAssignRole is the positional check applied on top of the MANAGE_ROLES
// permission: an actor may only move a user between roles strictly below
// its own. SUPER_ADMIN may additionally grant SUPER_ADMIN.
func CanAssignRole(actor, current, target domain.Role) bool {
	if !target.Valid() {
		return false
	}
	if actor == domain.RoleSuperAdmin {
		return true
	}
	return actor.HasHigherRole(current) && actor.HasHigherRole(target)
}
