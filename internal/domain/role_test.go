package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasHigherRole(t *testing.T) {
	assert.True(t, RoleSuperAdmin.HasHigherRole(RoleAdmin))
	assert.True(t, RoleModerator.HasHigherRole(RoleVerifiedUser))
	assert.False(t, RoleUser.HasHigherRole(RoleUser))
	assert.False(t, RoleGuest.HasHigherRole(RoleUser))
	assert.True(t, RoleGuest.HasHigherRole(Role("UNKNOWN")))
	assert.False(t, Role("UNKNOWN").HasHigherRole(RoleGuest))
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole(" community_admin ")
	assert.True(t, ok)
	assert.Equal(t, RoleCommunityAdmin, role)

	_, ok = ParseRole("root")
	assert.False(t, ok)
}
