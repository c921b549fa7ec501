// Package permission evaluates role grants against per-request resource
// context. Evaluation is pure: no I/O and no mutation after construction.
package permission

// Permission identifies an action guarded by the engine.
type Permission string

const (
	ViewContent     Permission = "VIEW_CONTENT"
	CreateProject   Permission = "CREATE_PROJECT"
	ManageProjects  Permission = "MANAGE_PROJECTS"
	CreateEvent     Permission = "CREATE_EVENT"
	ManageEvents    Permission = "MANAGE_EVENTS"
	CreateComment   Permission = "CREATE_COMMENT"
	DeleteComments  Permission = "DELETE_COMMENTS"
	ModerateContent Permission = "MODERATE_CONTENT"
	SendMessages    Permission = "SEND_MESSAGES"
	UploadFiles     Permission = "UPLOAD_FILES"
	JoinCommunity   Permission = "JOIN_COMMUNITY"
	CreateCommunity Permission = "CREATE_COMMUNITY"
	ManageCommunity Permission = "MANAGE_COMMUNITY"
	ManageUsers     Permission = "MANAGE_USERS"
	ManageRoles     Permission = "MANAGE_ROLES"
	ViewAnalytics   Permission = "VIEW_ANALYTICS"
	ManageSystem    Permission = "MANAGE_SYSTEM"
)

// All lists every known permission identifier.
var All = []Permission{
	ViewContent,
	CreateProject,
	ManageProjects,
	CreateEvent,
	ManageEvents,
	CreateComment,
	DeleteComments,
	ModerateContent,
	SendMessages,
	UploadFiles,
	JoinCommunity,
	CreateCommunity,
	ManageCommunity,
	ManageUsers,
	ManageRoles,
	ViewAnalytics,
	ManageSystem,
}

// Known reports whether p is one of the declared identifiers.
func (p Permission) Known() bool {
	for _, candidate := range All {
		if candidate == p {
			return true
		}
	}
	return false
}

// Context carries the per-request facts about the target resource.
// It is built fresh for every check and never cached.
type Context struct {
	ResourceID  string
	IsOwner     bool
	IsAssigned  bool
	InCommunity bool
}
