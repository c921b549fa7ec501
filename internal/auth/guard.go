package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/community-service/internal/domain"
	"github.com/spec-kit/community-service/internal/observability"
	"github.com/spec-kit/community-service/internal/permission"
	apperrors "github.com/spec-kit/community-service/pkg/util/errorutil"
)

const (
	principalKey  = "auth_principal"
	authorizedKey = "auth_authorized"
)

// AccessVerifier validates access tokens.
type AccessVerifier interface {
	VerifyAccess(token string) (*domain.Identity, error)
}

// ResourceResolver looks up the caller's relationship to a resource.
type ResourceResolver interface {
	Resolve(ctx context.Context, resourceType domain.ResourceType, resourceID, userID string) (domain.ResourceRelation, error)
}

// Principal represents the authenticated caller.
type Principal struct {
	UserID  string
	Role    domain.Role
	TokenID string
}

// AuthorizedRequest is all a protected handler learns about its caller.
// Raw tokens never travel past the guard.
type AuthorizedRequest struct {
	UserID       string
	Role         domain.Role
	Permission   permission.Permission
	ResourceType domain.ResourceType
	ResourceID   string
}

// Guard authenticates requests and enforces permissions in front of handlers.
type Guard struct {
	tokens   AccessVerifier
	engine   *permission.Engine
	resolver ResourceResolver
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewGuard constructs the guard. A nil resolver means no resource context
// is ever available, so scoped grants always fail closed.
func NewGuard(tokens AccessVerifier, engine *permission.Engine, resolver ResourceResolver, metrics *observability.Metrics, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{tokens: tokens, engine: engine, resolver: resolver, metrics: metrics, logger: logger}
}

// Authenticate verifies the bearer token and stores the principal.
func (g *Guard) Authenticate(c *fiber.Ctx) error {
	principal, err := g.authenticate(c)
	if err != nil {
		return err
	}
	c.Locals(principalKey, principal)
	return c.Next()
}

// Require gates a route on perm. When resourceType is set, the resource id
// is read from the ":id" route parameter.
func (g *Guard) Require(perm permission.Permission, resourceType domain.ResourceType) fiber.Handler {
	return g.RequireParam(perm, resourceType, "id")
}

// RequireParam is Require with a custom route parameter name.
func (g *Guard) RequireParam(perm permission.Permission, resourceType domain.ResourceType, param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authorized, err := g.authorize(c, perm, resourceType, c.Params(param))
		if err != nil {
			return err
		}
		c.Locals(authorizedKey, authorized)
		return c.Next()
	}
}

// Authorize authenticates c (unless Authenticate already ran) and checks perm
// against the resource named by the ":id" parameter.
func (g *Guard) Authorize(c *fiber.Ctx, perm permission.Permission, resourceType domain.ResourceType) (*AuthorizedRequest, error) {
	return g.authorize(c, perm, resourceType, c.Params("id"))
}

// Evaluate runs the permission check for an already authenticated principal.
// Unauthenticated and denied outcomes are distinct error kinds.
func (g *Guard) Evaluate(ctx context.Context, principal *Principal, perm permission.Permission, resourceType domain.ResourceType, resourceID string) (*AuthorizedRequest, error) {
	if principal == nil {
		return nil, ToDomainError(ErrMissingCredentials)
	}

	pctx, err := g.buildContext(ctx, principal, resourceType, resourceID)
	if err != nil {
		return nil, err
	}

	allowed := g.engine.Check(principal.Role, perm, pctx)
	g.metrics.RecordDecision(string(perm), allowed)
	if !allowed {
		g.logger.Debug("permission denied",
			zap.String("user_id", principal.UserID),
			zap.String("role", principal.Role.String()),
			zap.String("permission", string(perm)),
			zap.String("resource_type", string(resourceType)),
			zap.String("resource_id", resourceID))
		return nil, apperrors.NewPermissionDenied(string(perm), ErrPermissionDenied)
	}

	return &AuthorizedRequest{
		UserID:       principal.UserID,
		Role:         principal.Role,
		Permission:   perm,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}, nil
}

func (g *Guard) authorize(c *fiber.Ctx, perm permission.Permission, resourceType domain.ResourceType, resourceID string) (*AuthorizedRequest, error) {
	principal, ok := PrincipalFromContext(c)
	if !ok {
		var err error
		if principal, err = g.authenticate(c); err != nil {
			return nil, err
		}
		c.Locals(principalKey, principal)
	}
	return g.Evaluate(c.UserContext(), principal, perm, resourceType, resourceID)
}

func (g *Guard) authenticate(c *fiber.Ctx) (*Principal, error) {
	token, err := BearerToken(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return nil, ToDomainError(err)
	}
	identity, err := g.tokens.VerifyAccess(token)
	if err != nil {
		return nil, ToDomainError(err)
	}
	return &Principal{UserID: identity.UserID, Role: identity.Role, TokenID: identity.TokenID}, nil
}

// buildContext returns nil when no resource is targeted, which makes
// scoped grants fail closed.
func (g *Guard) buildContext(ctx context.Context, principal *Principal, resourceType domain.ResourceType, resourceID string) (*permission.Context, error) {
	if resourceType == domain.ResourceNone || strings.TrimSpace(resourceID) == "" || g.resolver == nil {
		return nil, nil
	}
	rel, err := g.resolver.Resolve(ctx, resourceType, resourceID, principal.UserID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if !rel.Exists {
		return nil, apperrors.NewNotFound(string(resourceType), map[string]any{"id": resourceID})
	}
	return &permission.Context{
		ResourceID:  resourceID,
		IsOwner:     rel.IsOwner,
		IsAssigned:  rel.IsAssigned,
		InCommunity: rel.InCommunity,
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingCredentials
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.Join(ErrInvalidToken, errors.New("invalid authorization scheme"))
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMissingCredentials
	}
	return token, nil
}

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	principal, ok := c.Locals(principalKey).(*Principal)
	return principal, ok && principal != nil
}

// AuthorizedFromContext retrieves the result of the last Require on the route.
func AuthorizedFromContext(c *fiber.Ctx) (*AuthorizedRequest, bool) {
	authorized, ok := c.Locals(authorizedKey).(*AuthorizedRequest)
	return authorized, ok && authorized != nil
}
