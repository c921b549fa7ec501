package permission

import "github.com/spec-kit/community-service/internal/domain"

// Engine answers whether a role may perform a permission, optionally
// within a resource context.
type Engine struct {
	table Table
}

// NewEngine builds an engine over a private copy of table.
// A nil table selects DefaultTable.
func NewEngine(table Table) *Engine {
	if table == nil {
		table = DefaultTable()
	}
	return &Engine{table: table.clone()}
}

// Check evaluates perm for role. Unknown roles are evaluated as GUEST.
// Scoped grants require ctx; a nil ctx fails closed.
func (e *Engine) Check(role domain.Role, perm Permission, ctx *Context) bool {
	grant, ok := e.grantsFor(role)[perm]
	if !ok {
		return false
	}
	return grant.evaluate(ctx)
}

// Grants returns a copy of the grants that apply to role.
func (e *Engine) Grants(role domain.Role) map[Permission]Grant {
	grants := e.grantsFor(role)
	out := make(map[Permission]Grant, len(grants))
	for perm, grant := range grants {
		out[perm] = Grant{kind: grant.kind, scopes: grant.Scopes()}
	}
	return out
}

// EffectiveRole resolves the role whose grants are applied.
func (e *Engine) EffectiveRole(role domain.Role) domain.Role {
	if _, ok := e.table[role]; ok {
		return role
	}
	return domain.RoleGuest
}

func (e *Engine) grantsFor(role domain.Role) map[Permission]Grant {
	return e.table[e.EffectiveRole(role)]
}
