package permission

import "github.com/spec-kit/community-service/internal/domain"

// Table maps each role to its explicit grants. Roles never inherit grants
// from roles below them; every grant a role has is listed here.
type Table map[domain.Role]map[Permission]Grant

// DefaultTable returns a fresh copy of the built-in grants.
func DefaultTable() Table {
	return Table{
		domain.RoleSuperAdmin: {
			ViewContent:     Allow(),
			CreateProject:   Allow(),
			ManageProjects:  Allow(),
			CreateEvent:     Allow(),
			ManageEvents:    Allow(),
			CreateComment:   Allow(),
			DeleteComments:  Allow(),
			ModerateContent: Allow(),
			SendMessages:    Allow(),
			UploadFiles:     Allow(),
			JoinCommunity:   Allow(),
			CreateCommunity: Allow(),
			ManageCommunity: Allow(),
			ManageUsers:     Allow(),
			ManageRoles:     Allow(),
			ViewAnalytics:   Allow(),
			ManageSystem:    Allow(),
		},
		domain.RoleAdmin: {
			ViewContent:     Allow(),
			CreateProject:   Allow(),
			ManageProjects:  Allow(),
			CreateEvent:     Allow(),
			ManageEvents:    Allow(),
			CreateComment:   Allow(),
			DeleteComments:  Allow(),
			ModerateContent: Allow(),
			SendMessages:    Allow(),
			UploadFiles:     Allow(),
			JoinCommunity:   Allow(),
			CreateCommunity: Allow(),
			ManageCommunity: Allow(),
			ManageUsers:     Allow(),
			ManageRoles:     Allow(),
			ViewAnalytics:   Allow(),
			ManageSystem:    Deny(),
		},
		domain.RoleCommunityAdmin: {
			ViewContent:     Allow(),
			CreateProject:   Allow(),
			ManageProjects:  Scoped(Own, Community),
			CreateEvent:     Allow(),
			ManageEvents:    Scoped(Own, Community),
			CreateComment:   Allow(),
			DeleteComments:  Scoped(Own, Community),
			ModerateContent: Scoped(Community),
			SendMessages:    Allow(),
			UploadFiles:     Allow(),
			JoinCommunity:   Allow(),
			CreateCommunity: Allow(),
			ManageCommunity: Scoped(Own, Assigned),
			ManageUsers:     Deny(),
			ManageRoles:     Deny(),
			ViewAnalytics:   Scoped(Community),
		},
		domain.RoleModerator: {
			ViewContent:     Allow(),
			CreateProject:   Allow(),
			ManageProjects:  Scoped(Own),
			CreateEvent:     Allow(),
			ManageEvents:    Scoped(Own),
			CreateComment:   Allow(),
			DeleteComments:  Allow(),
			ModerateContent: Allow(),
			SendMessages:    Allow(),
			UploadFiles:     Allow(),
			JoinCommunity:   Allow(),
			CreateCommunity: Deny(),
		},
		domain.RoleVerifiedUser: {
			ViewContent:     Allow(),
			CreateProject:   Allow(),
			ManageProjects:  Scoped(Own),
			CreateEvent:     Allow(),
			ManageEvents:    Scoped(Own, Assigned),
			CreateComment:   Allow(),
			DeleteComments:  Scoped(Own),
			ModerateContent: Deny(),
			SendMessages:    Allow(),
			UploadFiles:     Allow(),
			JoinCommunity:   Allow(),
		},
		domain.RoleUser: {
			ViewContent:    Allow(),
			CreateProject:  Deny(),
			ManageProjects: Scoped(Assigned),
			CreateComment:  Allow(),
			DeleteComments: Scoped(Own),
			SendMessages:   Allow(),
			JoinCommunity:  Allow(),
		},
		domain.RoleGuest: {
			ViewContent: Allow(),
		},
	}
}

// clone deep-copies the table so callers cannot mutate an engine's grants.
func (t Table) clone() Table {
	out := make(Table, len(t))
	for role, grants := range t {
		copied := make(map[Permission]Grant, len(grants))
		for perm, grant := range grants {
			copied[perm] = Grant{kind: grant.kind, scopes: grant.Scopes()}
		}
		out[role] = copied
	}
	return out
}
