package permission

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/community-service/internal/domain"
)

type tableFile struct {
	Roles map[string]map[string]yaml.Node `yaml:"roles"`
}

// LoadTable parses a YAML permission table of the form
//
//	roles:
//	  MODERATOR:
//	    MODERATE_CONTENT: true
//	    MANAGE_PROJECTS: [own]
//
// Unknown roles or permissions are rejected so typos cannot silently drop grants.
func LoadTable(r io.Reader) (Table, error) {
	var file tableFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode permission table: %w", err)
	}
	if len(file.Roles) == 0 {
		return nil, fmt.Errorf("permission table has no roles")
	}

	table := make(Table, len(file.Roles))
	for rawRole, rawGrants := range file.Roles {
		role, ok := domain.ParseRole(rawRole)
		if !ok {
			return nil, fmt.Errorf("unknown role %q", rawRole)
		}
		grants := make(map[Permission]Grant, len(rawGrants))
		for rawPerm, node := range rawGrants {
			perm := Permission(rawPerm)
			if !perm.Known() {
				return nil, fmt.Errorf("role %s: unknown permission %q", role, rawPerm)
			}
			grant, err := decodeGrant(&node)
			if err != nil {
				return nil, fmt.Errorf("role %s permission %s: %w", role, perm, err)
			}
			grants[perm] = grant
		}
		table[role] = grants
	}
	return table, nil
}

// LoadTableFile reads a permission table from path.
func LoadTableFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open permission table: %w", err)
	}
	defer f.Close()
	return LoadTable(f)
}

func decodeGrant(node *yaml.Node) (Grant, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		var allowed bool
		if err := node.Decode(&allowed); err != nil {
			return Grant{}, fmt.Errorf("expected boolean or scope list: %w", err)
		}
		if allowed {
			return Allow(), nil
		}
		return Deny(), nil
	case yaml.SequenceNode:
		var raw []string
		if err := node.Decode(&raw); err != nil {
			return Grant{}, fmt.Errorf("decode scopes: %w", err)
		}
		if len(raw) == 0 {
			return Grant{}, fmt.Errorf("empty scope list")
		}
		scopes := make([]Scope, 0, len(raw))
		for _, s := range raw {
			scope := ParseScope(s)
			if scope.String() == "" {
				return Grant{}, fmt.Errorf("blank scope")
			}
			scopes = append(scopes, scope)
		}
		return Scoped(scopes...), nil
	default:
		return Grant{}, fmt.Errorf("expected boolean or scope list")
	}
}
