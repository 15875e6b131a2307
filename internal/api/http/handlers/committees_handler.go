package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/kmun/registration-service/internal/api/dto"
	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/service"
	apperrors "github.com/kmun/registration-service/pkg/util/errorutil"
)

// CommitteesHandler serves committee listings and committee administration.
type CommitteesHandler struct {
	committees *service.CommitteeService
}

// NewCommitteesHandler constructs handler.
func NewCommitteesHandler(committees *service.CommitteeService) *CommitteesHandler {
	return &CommitteesHandler{committees: committees}
}

// List GET /api/committees. Inactive committees are hidden unless includeInactive is set.
func (h *CommitteesHandler) List(c *fiber.Ctx) error {
	committees, err := h.committees.List(c.UserContext(), !c.QueryBool("includeInactive"))
	if err != nil {
		return err
	}
	items := make([]dto.CommitteeResponse, 0, len(committees))
	for i := range committees {
		items = append(items, dto.NewCommitteeResponse(&committees[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /api/committees/:id.
func (h *CommitteesHandler) Get(c *fiber.Ctx) error {
	committee, err := h.committees.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return respondCommittee(c, http.StatusOK, committee)
}

// Create POST /api/committees.
func (h *CommitteesHandler) Create(c *fiber.Ctx) error {
	var req service.CommitteeInput
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	committee, err := h.committees.Create(c.UserContext(), req)
	if err != nil {
		return err
	}
	return respondCommittee(c, http.StatusCreated, committee)
}

// Update PUT /api/committees/:id.
func (h *CommitteesHandler) Update(c *fiber.Ctx) error {
	var req service.CommitteeInput
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	committee, err := h.committees.Update(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return err
	}
	return respondCommittee(c, http.StatusOK, committee)
}

// Delete DELETE /api/committees/:id.
func (h *CommitteesHandler) Delete(c *fiber.Ctx) error {
	if err := h.committees.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// AddPortfolio POST /api/committees/:id/portfolios.
func (h *CommitteesHandler) AddPortfolio(c *fiber.Ctx) error {
	var req service.PortfolioInput
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	committee, err := h.committees.AddPortfolio(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return err
	}
	return respondCommittee(c, http.StatusCreated, committee)
}

// DeletePortfolio DELETE /api/committees/:id/portfolios/:portfolioId.
func (h *CommitteesHandler) DeletePortfolio(c *fiber.Ctx) error {
	committee, err := h.committees.DeletePortfolio(c.UserContext(), c.Params("id"), c.Params("portfolioId"))
	if err != nil {
		return err
	}
	return respondCommittee(c, http.StatusOK, committee)
}

func respondCommittee(c *fiber.Ctx, status int, committee *domain.Committee) error {
	return c.Status(status).JSON(fiber.Map{"data": dto.NewCommitteeResponse(committee)})
}
