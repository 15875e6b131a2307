package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kmun/registration-service/internal/api/dto"
	"github.com/kmun/registration-service/internal/service"
	apperrors "github.com/kmun/registration-service/pkg/util/errorutil"
)

const testMailTimeout = 30 * time.Second

// MailerHandler exposes bulk and test mail endpoints.
type MailerHandler struct {
	mailer *service.MailerService
}

// NewMailerHandler constructs handler.
func NewMailerHandler(mailer *service.MailerService) *MailerHandler {
	return &MailerHandler{mailer: mailer}
}

// Send POST /api/mailer/send. Messages are queued, not delivered inline.
func (h *MailerHandler) Send(c *fiber.Ctx) error {
	var req service.BulkEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.mailer.SendBulk(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": result})
}

// Test POST /api/mailer/test.
func (h *MailerHandler) Test(c *fiber.Ctx) error {
	var req dto.TestEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ctx, cancel := requestDeadline(c, testMailTimeout)
	defer cancel()
	if err := h.mailer.SendTest(ctx, req.Email, req.Subject, req.Message, req.Provider); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"delivered": true, "to": req.Email}})
}

// Recipients GET /api/mailer/recipients.
func (h *MailerHandler) Recipients(c *fiber.Ctx) error {
	summary, err := h.mailer.Recipients(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": summary})
}
