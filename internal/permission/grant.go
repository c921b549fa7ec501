package permission

import (
	"encoding/json"
	"strings"
)

type scopeKind uint8

const (
	scopeOwn scopeKind = iota + 1
	scopeAssigned
	scopeCommunity
	scopeResource
)

// Scope narrows a grant to a relationship between caller and resource,
// or to one explicit resource id.
type Scope struct {
	kind       scopeKind
	resourceID string
}

var (
	Own       = Scope{kind: scopeOwn}
	Assigned  = Scope{kind: scopeAssigned}
	Community = Scope{kind: scopeCommunity}
)

// Resource scopes a grant to exactly one resource id.
func Resource(id string) Scope {
	return Scope{kind: scopeResource, resourceID: id}
}

// ParseScope maps the textual scopes; any other value is an explicit resource id.
func ParseScope(raw string) Scope {
	switch strings.TrimSpace(raw) {
	case "own":
		return Own
	case "assigned":
		return Assigned
	case "community":
		return Community
	default:
		return Resource(strings.TrimSpace(raw))
	}
}

func (s Scope) String() string {
	switch s.kind {
	case scopeOwn:
		return "own"
	case scopeAssigned:
		return "assigned"
	case scopeCommunity:
		return "community"
	case scopeResource:
		return s.resourceID
	default:
		return ""
	}
}

func (s Scope) matches(ctx *Context) bool {
	switch s.kind {
	case scopeOwn:
		return ctx.IsOwner
	case scopeAssigned:
		return ctx.IsAssigned
	case scopeCommunity:
		return ctx.InCommunity
	case scopeResource:
		return s.resourceID != "" && s.resourceID == ctx.ResourceID
	default:
		return false
	}
}

type grantKind uint8

const (
	grantDeny grantKind = iota
	grantAllow
	grantScoped
)

// Grant is either an unconditional boolean or a set of scopes.
// The zero value denies.
type Grant struct {
	kind   grantKind
	scopes []Scope
}

// Allow grants unconditionally.
func Allow() Grant { return Grant{kind: grantAllow} }

// Deny refuses unconditionally.
func Deny() Grant { return Grant{kind: grantDeny} }

// Scoped grants when any of the scopes matches the request context.
func Scoped(scopes ...Scope) Grant {
	return Grant{kind: grantScoped, scopes: append([]Scope(nil), scopes...)}
}

// IsScoped reports whether the grant needs a context to be evaluated.
func (g Grant) IsScoped() bool { return g.kind == grantScoped }

// Scopes returns a copy of the scope set.
func (g Grant) Scopes() []Scope { return append([]Scope(nil), g.scopes...) }

func (g Grant) evaluate(ctx *Context) bool {
	switch g.kind {
	case grantAllow:
		return true
	case grantDeny:
		return false
	case grantScoped:
		if ctx == nil {
			return false
		}
		for _, scope := range g.scopes {
			if scope.matches(ctx) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// MarshalJSON renders booleans as true/false and scope sets as string arrays.
func (g Grant) MarshalJSON() ([]byte, error) {
	switch g.kind {
	case grantAllow:
		return []byte("true"), nil
	case grantScoped:
		names := make([]string, 0, len(g.scopes))
		for _, scope := range g.scopes {
			names = append(names, scope.String())
		}
		return json.Marshal(names)
	default:
		return []byte("false"), nil
	}
}
