package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/community-service/internal/api/http/handlers"
	"github.com/spec-kit/community-service/internal/auth"
	"github.com/spec-kit/community-service/internal/domain"
	"github.com/spec-kit/community-service/internal/observability"
	"github.com/spec-kit/community-service/internal/permission"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health      *handlers.HealthHandler
	Auth        *handlers.AuthHandler
	Admin       *handlers.AdminHandler
	Guard       *auth.Guard
	Metrics     *observability.Metrics
	MetricsPath string
	// RateLimit guards the unauthenticated auth endpoints; nil disables it.
	RateLimit fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil && cfg.MetricsPath != "" {
		app.Get(cfg.MetricsPath, adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	rateLimit := cfg.RateLimit
	if rateLimit == nil {
		rateLimit = func(c *fiber.Ctx) error { return c.Next() }
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/register", rateLimit, cfg.Auth.Register)
	authGroup.Post("/login", rateLimit, cfg.Auth.Login)
	authGroup.Post("/refresh", rateLimit, cfg.Auth.Refresh)
	authGroup.Post("/password/reset/request", rateLimit, cfg.Auth.RequestPasswordReset)
	authGroup.Post("/password/reset/confirm", rateLimit, cfg.Auth.ConfirmPasswordReset)

	// group middleware would also run for unmatched /auth paths, so the
	// guard is attached per route
	authn := cfg.Guard.Authenticate
	authGroup.Post("/logout", authn, cfg.Auth.Logout)
	authGroup.Get("/me", authn, cfg.Auth.Me)
	authGroup.Get("/permissions", authn, cfg.Auth.Permissions)
	authGroup.Post("/permissions/check", authn, cfg.Auth.CheckPermission)
	authGroup.Post("/password/change", authn, cfg.Auth.ChangePassword)

	admin := app.Group("/admin")
	admin.Patch("/users/:id/role", cfg.Guard.Require(permission.ManageRoles, domain.ResourceNone), cfg.Admin.ChangeRole)
	admin.Post("/users/:id/revoke", cfg.Guard.Require(permission.ManageUsers, domain.ResourceNone), cfg.Admin.RevokeSessions)
}
