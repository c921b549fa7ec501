package domain

// ResourceType names the kind of resource a protected operation targets.
type ResourceType string

const (
	ResourceNone      ResourceType = ""
	ResourceProject   ResourceType = "project"
	ResourceEvent     ResourceType = "event"
	ResourceCommunity ResourceType = "community"
	ResourceComment   ResourceType = "comment"
	ResourceMessage   ResourceType = "message"
	ResourceUser      ResourceType = "user"
)

// ResourceRelation is what the resource layer knows about a caller and a
// resource. Exists is false when the resource id does not resolve.
type ResourceRelation struct {
	Exists      bool
	IsOwner     bool
	IsAssigned  bool
	InCommunity bool
}

// Valid reports whether t names a supported resource kind.
func (t ResourceType) Valid() bool {
	switch t {
	case ResourceProject, ResourceEvent, ResourceCommunity, ResourceComment, ResourceMessage, ResourceUser:
		return true
	}
	return false
}
