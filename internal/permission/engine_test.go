package permission

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/community-service/internal/domain"
)

func TestEngineCheck(t *testing.T) {
	engine := NewEngine(nil)

	tests := []struct {
		name string
		role domain.Role
		perm Permission
		ctx  *Context
		want bool
	}{
		{"boolean true without context", domain.RoleModerator, ModerateContent, nil, true},
		{"boolean false ignores context", domain.RoleVerifiedUser, ModerateContent, &Context{IsOwner: true, IsAssigned: true, InCommunity: true}, false},
		{"own scope with owner", domain.RoleVerifiedUser, ManageProjects, &Context{IsOwner: true}, true},
		{"own scope without owner", domain.RoleVerifiedUser, ManageProjects, &Context{IsOwner: false}, false},
		{"own scope does not accept assigned", domain.RoleVerifiedUser, ManageProjects, &Context{IsOwner: false, IsAssigned: true}, false},
		{"scoped grant without context fails closed", domain.RoleVerifiedUser, ManageProjects, nil, false},
		{"absent permission", domain.RoleUser, ManageUsers, nil, false},
		{"assigned scope", domain.RoleUser, ManageProjects, &Context{IsAssigned: true}, true},
		{"community scope", domain.RoleCommunityAdmin, ModerateContent, &Context{InCommunity: true}, true},
		{"community scope outside community", domain.RoleCommunityAdmin, ModerateContent, &Context{IsOwner: true}, false},
		{"unknown role falls back to guest", domain.Role("ROOT"), ViewContent, nil, true},
		{"unknown role gets nothing more than guest", domain.Role("ROOT"), CreateComment, nil, false},
		{"admin explicitly denied system", domain.RoleAdmin, ManageSystem, nil, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, engine.Check(tc.role, tc.perm, tc.ctx))
		})
	}
}

func TestEngineExplicitResourceScope(t *testing.T) {
	engine := NewEngine(Table{
		domain.RoleUser: {ManageEvents: Scoped(Resource("evt-1"))},
	})

	assert.True(t, engine.Check(domain.RoleUser, ManageEvents, &Context{ResourceID: "evt-1"}))
	assert.False(t, engine.Check(domain.RoleUser, ManageEvents, &Context{ResourceID: "evt-2"}))
	assert.False(t, engine.Check(domain.RoleUser, ManageEvents, &Context{}))
}

func TestEngineNoImplicitInheritance(t *testing.T) {
	engine := NewEngine(Table{
		domain.RoleAdmin: {ManageUsers: Allow()},
		domain.RoleUser:  {CreateComment: Allow()},
	})

	assert.True(t, engine.Check(domain.RoleUser, CreateComment, nil))
	assert.False(t, engine.Check(domain.RoleAdmin, CreateComment, nil))
	assert.True(t, domain.RoleAdmin.HasHigherRole(domain.RoleUser))
}

func TestEngineTableIsImmutable(t *testing.T) {
	table := Table{domain.RoleUser: {CreateComment: Allow()}}
	engine := NewEngine(table)

	table[domain.RoleUser][CreateComment] = Deny()
	grants := engine.Grants(domain.RoleUser)
	grants[CreateComment] = Deny()

	assert.True(t, engine.Check(domain.RoleUser, CreateComment, nil))
}

func TestEngineUnknownRoleWithoutGuestRow(t *testing.T) {
	engine := NewEngine(Table{domain.RoleUser: {CreateComment: Allow()}})

	assert.False(t, engine.Check(domain.Role("ROOT"), CreateComment, nil))
	assert.Equal(t, domain.RoleGuest, engine.EffectiveRole(domain.Role("ROOT")))
}

func TestGrantJSON(t *testing.T) {
	raw, err := json.Marshal(map[string]Grant{
		"a": Allow(),
		"b": Deny(),
		"c": Scoped(Own, Resource("p-9")),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":true,"b":false,"c":["own","p-9"]}`, string(raw))
}

func TestDefaultTableIsExplicitForEveryRole(t *testing.T) {
	table := DefaultTable()
	for _, role := range domain.RoleHierarchy {
		grants, ok := table[role]
		require.True(t, ok, "role %s missing", role)
		assert.NotEmpty(t, grants)
		for perm := range grants {
			assert.True(t, perm.Known(), "role %s has unknown permission %s", role, perm)
		}
	}
}
