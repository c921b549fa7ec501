package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/community-service/internal/domain"
)

func TestCanAssignRole(t *testing.T) {
	assert.True(t, CanAssignRole(domain.RoleAdmin, domain.RoleUser, domain.RoleModerator))
	assert.False(t, CanAssignRole(domain.RoleAdmin, domain.RoleUser, domain.RoleAdmin))
	assert.False(t, CanAssignRole(domain.RoleAdmin, domain.RoleAdmin, domain.RoleUser))
	assert.True(t, CanAssignRole(domain.RoleSuperAdmin, domain.RoleAdmin, domain.RoleSuperAdmin))
	assert.False(t, CanAssignRole(domain.RoleSuperAdmin, domain.RoleUser, domain.Role("ROOT")))
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret-pass", 4)
	assert.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "s3cret-pass"))
	assert.Error(t, ComparePassword(hash, "wrong"))

	_, err = HashPassword("", 4)
	assert.Error(t, err)
}
