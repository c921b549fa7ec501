package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/community-service/internal/api/dto"
	"github.com/spec-kit/community-service/internal/auth"
	"github.com/spec-kit/community-service/internal/domain"
	"github.com/spec-kit/community-service/internal/permission"
	"github.com/spec-kit/community-service/internal/repository"
	"github.com/spec-kit/community-service/internal/service"
	apperrors "github.com/spec-kit/community-service/pkg/util/errorutil"
)

// AuthFlows is the account and session API the handler exposes.
type AuthFlows interface {
	Register(ctx context.Context, name, email, password string) (*service.Session, error)
	Login(ctx context.Context, email, password string) (*service.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*service.Session, error)
	Logout(ctx context.Context, userID string) error
	Me(ctx context.Context, userID string) (*domain.User, error)
	RequestPasswordReset(ctx context.Context, email string) (*repository.PasswordResetToken, error)
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (*service.Session, error)
}

// AuthHandler exposes the /auth endpoints.
type AuthHandler struct {
	auth   AuthFlows
	guard  *auth.Guard
	engine *permission.Engine
}

// NewAuthHandler constructs handler.
func NewAuthHandler(flows AuthFlows, guard *auth.Guard, engine *permission.Engine) *AuthHandler {
	return &AuthHandler{auth: flows, guard: guard, engine: engine}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sess, err := h.auth.Register(c.UserContext(), req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.NewAuthResponse(sess.User, sess.Tokens))
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sess, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewAuthResponse(sess.User, sess.Tokens))
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sess, err := h.auth.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewAuthResponse(sess.User, sess.Tokens))
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	if err := h.auth.Logout(c.UserContext(), principal.UserID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	user, err := h.auth.Me(c.UserContext(), principal.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// Permissions handles GET /auth/permissions. The table is returned for
// client-side gating only; the server still checks every request.
func (h *AuthHandler) Permissions(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"role":        h.engine.EffectiveRole(principal.Role),
		"permissions": h.engine.Grants(principal.Role),
	}})
}

// CheckPermission handles POST /auth/permissions/check.
func (h *AuthHandler) CheckPermission(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.PermissionCheckRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	_, err = h.guard.Evaluate(c.UserContext(), principal,
		permission.Permission(req.Permission), domain.ResourceType(req.ResourceType), req.ResourceID)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"data": fiber.Map{"allowed": true}})
	case errors.Is(err, auth.ErrPermissionDenied):
		return c.JSON(fiber.Map{"data": fiber.Map{"allowed": false}})
	default:
		return err
	}
}

// ChangePassword handles POST /auth/password/change and returns a new pair.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.PasswordChangeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sess, err := h.auth.ChangePassword(c.UserContext(), principal.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewAuthResponse(sess.User, sess.Tokens))
}

// RequestPasswordReset handles POST /auth/password/reset/request.
// The reset token is returned in the body since delivery is left to the caller.
func (h *AuthHandler) RequestPasswordReset(c *fiber.Ctx) error {
	var req dto.PasswordResetRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	token, err := h.auth.RequestPasswordReset(c.UserContext(), req.Email)
	if err != nil {
		return err
	}
	data := fiber.Map{"status": "accepted"}
	if token != nil {
		data["resetToken"] = token.Token
		data["expiresAt"] = token.ExpiresAt
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": data})
}

// ConfirmPasswordReset handles POST /auth/password/reset/confirm.
func (h *AuthHandler) ConfirmPasswordReset(c *fiber.Ctx) error {
	var req dto.PasswordResetConfirmRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.auth.ConfirmPasswordReset(c.UserContext(), req.Token, req.NewPassword); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

type validatable interface {
	Validate() error
}

func bind(c *fiber.Ctx, req validatable) error {
	if err := c.BodyParser(req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return dto.ValidationError(req.Validate())
}

func principalOf(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, auth.ToDomainError(auth.ErrMissingCredentials)
	}
	return principal, nil
}
