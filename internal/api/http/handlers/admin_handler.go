package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/community-service/internal/api/dto"
	"github.com/spec-kit/community-service/internal/auth"
	"github.com/spec-kit/community-service/internal/domain"
	"github.com/spec-kit/community-service/internal/service"
)

// AdminFlows covers account administration.
type AdminFlows interface {
	ChangeRole(ctx context.Context, actor service.Actor, targetID string, newRole domain.Role) (*domain.User, error)
	RevokeSessions(ctx context.Context, actor service.Actor, targetID string) error
}

// AdminHandler exposes /admin endpoints. Routes are gated by the guard
// before they reach it.
type AdminHandler struct {
	admin AdminFlows
}

// NewAdminHandler constructs handler.
func NewAdminHandler(flows AdminFlows) *AdminHandler {
	return &AdminHandler{admin: flows}
}

// ChangeRole handles PATCH /admin/users/:id/role.
func (h *AdminHandler) ChangeRole(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.RoleChangeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	role, _ := domain.ParseRole(req.Role)

	user, err := h.admin.ChangeRole(c.UserContext(), actor, c.Params("id"), role)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// RevokeSessions handles POST /admin/users/:id/revoke.
func (h *AdminHandler) RevokeSessions(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	if err := h.admin.RevokeSessions(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func actorOf(c *fiber.Ctx) (service.Actor, error) {
	authorized, ok := auth.AuthorizedFromContext(c)
	if !ok {
		return service.Actor{}, auth.ToDomainError(auth.ErrMissingCredentials)
	}
	return service.Actor{UserID: authorized.UserID, Role: authorized.Role}, nil
}
