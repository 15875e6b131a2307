package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/kmun/registration-service/internal/api/dto"
	"github.com/kmun/registration-service/internal/auth"
	"github.com/kmun/registration-service/internal/service"
	apperrors "github.com/kmun/registration-service/pkg/util/errorutil"
)

// UsersHandler exposes account administration.
type UsersHandler struct {
	accounts      *service.AccountService
	notifications *service.NotificationService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(accounts *service.AccountService, notifications *service.NotificationService) *UsersHandler {
	return &UsersHandler{accounts: accounts, notifications: notifications}
}

// List GET /api/users.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	page, limit := pageParams(c)
	q := service.AccountQuery{Role: c.Query("role"), Page: page, Limit: limit}
	if raw := c.Query("isActive"); raw != "" {
		active := c.QueryBool("isActive")
		q.Active = &active
	}
	accounts, err := h.accounts.List(c.UserContext(), q)
	if err != nil {
		return err
	}
	items := make([]dto.AccountResponse, 0, len(accounts))
	for i := range accounts {
		items = append(items, dto.NewAccountResponse(&accounts[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Create POST /api/users.
func (h *UsersHandler) Create(c *fiber.Ctx) error {
	var req service.CreateAccountInput
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	account, notes, err := h.accounts.Create(c.UserContext(), req)
	if err != nil {
		return err
	}
	h.notifications.EnqueueOrLog(c.UserContext(), notes...)
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}

// Get GET /api/users/:id.
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	account, err := h.accounts.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}

// Update PUT /api/users/:id.
func (h *UsersHandler) Update(c *fiber.Ctx) error {
	var req service.UpdateAccountInput
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	account, err := h.accounts.Update(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}

// ChangePassword PUT /api/users/:id/password.
func (h *UsersHandler) ChangePassword(c *fiber.Ctx) error {
	var req service.PasswordChange
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.accounts.ChangePassword(c.UserContext(), c.Params("id"), req); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Delete DELETE /api/users/:id.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if principal, ok := auth.PrincipalFromContext(c); ok && principal.Account != nil && principal.Account.ID == id {
		return apperrors.NewConflict("cannot delete the signed-in account", nil)
	}
	if err := h.accounts.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
