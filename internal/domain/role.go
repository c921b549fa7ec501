package domain

import "strings"

// Role is a position in the platform role hierarchy.
type Role string

const (
	RoleSuperAdmin     Role = "SUPER_ADMIN"
	RoleAdmin          Role = "ADMIN"
	RoleCommunityAdmin Role = "COMMUNITY_ADMIN"
	RoleModerator      Role = "MODERATOR"
	RoleVerifiedUser   Role = "VERIFIED_USER"
	RoleUser           Role = "USER"
	RoleGuest          Role = "GUEST"
)

// RoleHierarchy lists roles from most to least privileged.
var RoleHierarchy = []Role{
	RoleSuperAdmin,
	RoleAdmin,
	RoleCommunityAdmin,
	RoleModerator,
	RoleVerifiedUser,
	RoleUser,
	RoleGuest,
}

// ParseRole normalizes a role name; ok is false for names outside the hierarchy.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	return role, role.Valid()
}

// Valid reports whether the role is part of the hierarchy.
func (r Role) Valid() bool {
	return r.rank() >= 0
}

func (r Role) String() string {
	return string(r)
}

// rank is the index in RoleHierarchy, -1 when unknown. Lower is more privileged.
func (r Role) rank() int {
	for i, candidate := range RoleHierarchy {
		if candidate == r {
			return i
		}
	}
	return -1
}

// HasHigherRole reports whether r sits strictly above other in the hierarchy.
// It is positional only and never implies any permission grant.
// Unknown roles rank below GUEST.
func (r Role) HasHigherRole(other Role) bool {
	return effectiveRank(r) < effectiveRank(other)
}

func effectiveRank(r Role) int {
	if rank := r.rank(); rank >= 0 {
		return rank
	}
	return len(RoleHierarchy)
}
