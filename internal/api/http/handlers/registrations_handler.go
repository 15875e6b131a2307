package handlers

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kmun/registration-service/internal/api/dto"
	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/service"
	"github.com/kmun/registration-service/internal/storage"
	apperrors "github.com/kmun/registration-service/pkg/util/errorutil"
)

var (
	documentTypes = map[string]struct{}{
		"application/pdf": {},
		"image/jpeg":      {},
		"image/png":       {},
	}
	resumeTypes = map[string]struct{}{
		"application/pdf":    {},
		"application/msword": {},
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	}
)

// RegistrationsHandler serves the public submission endpoint and the admin review endpoints.
type RegistrationsHandler struct {
	registrations  *service.RegistrationService
	notifications  *service.NotificationService
	artifacts      storage.ArtifactStore
	maxUploadBytes int64
	logger         *zap.Logger
}

// RegistrationsHandlerDependencies bundles handler collaborators.
type RegistrationsHandlerDependencies struct {
	Registrations  *service.RegistrationService
	Notifications  *service.NotificationService
	Artifacts      storage.ArtifactStore
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// NewRegistrationsHandler constructs handler.
func NewRegistrationsHandler(deps RegistrationsHandlerDependencies) *RegistrationsHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationsHandler{
		registrations:  deps.Registrations,
		notifications:  deps.Notifications,
		artifacts:      deps.Artifacts,
		maxUploadBytes: deps.MaxUploadBytes,
		logger:         logger,
	}
}

// Submit POST /api/registrations.
func (h *RegistrationsHandler) Submit(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return apperrors.NewValidationError("expected multipart form data", nil)
	}
	input, err := submissionFromForm(form)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	var saved []string
	discard := func() {
		for _, ref := range saved {
			if err := h.artifacts.Delete(context.WithoutCancel(ctx), ref); err != nil {
				h.logger.Warn("discard upload failed", zap.String("ref", ref), zap.Error(err))
			}
		}
	}

	if fh := firstFile(form, "idDocument"); fh != nil {
		ref, err := h.saveUpload(ctx, "idDocument", fh, documentTypes)
		if err != nil {
			discard()
			return err
		}
		saved = append(saved, ref)
		input.IDDocument = ref
	}
	if fh := firstFile(form, "munResume"); fh != nil {
		ref, err := h.saveUpload(ctx, "munResume", fh, resumeTypes)
		if err != nil {
			discard()
			return err
		}
		saved = append(saved, ref)
		input.Resume = &ref
	}

	result, err := h.registrations.Submit(ctx, input)
	if err != nil {
		discard()
		return err
	}
	h.notifications.EnqueueOrLog(ctx, result.Notifications...)

	status := http.StatusOK
	message := "registration updated"
	if result.RegistrationOutcome == service.OutcomeCreated {
		status = http.StatusCreated
		message = "registration received"
	}
	return c.Status(status).JSON(fiber.Map{
		"message": message,
		"data": dto.SubmissionResponse{
			ExternalID:     result.Account.ExternalID,
			RegistrationID: result.Registration.ID,
			Email:          result.Account.Email,
			Status:         string(result.Registration.Status),
			IsNewAccount:   result.IsNewAccount(),
		},
	})
}

func (h *RegistrationsHandler) saveUpload(ctx context.Context, field string, fh *multipart.FileHeader, allowed map[string]struct{}) (string, error) {
	if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
		return "", apperrors.NewValidationError("upload too large", map[string]any{
			field: fmt.Sprintf("must not exceed %d bytes", h.maxUploadBytes),
		})
	}
	contentType := strings.ToLower(strings.TrimSpace(fh.Header.Get(fiber.HeaderContentType)))
	if _, ok := allowed[contentType]; !ok {
		return "", apperrors.NewValidationError("unsupported file type", map[string]any{
			field: fmt.Sprintf("content type %q is not accepted", contentType),
		})
	}
	f, err := fh.Open()
	if err != nil {
		return "", apperrors.NewValidationError("unreadable upload", map[string]any{field: err.Error()})
	}
	defer f.Close()

	ref, err := h.artifacts.Save(ctx, fh.Filename, contentType, f)
	if err != nil {
		return "", apperrors.NewStorageError(fmt.Errorf("save %s: %w", field, err))
	}
	return ref, nil
}

// List GET /api/registrations.
func (h *RegistrationsHandler) List(c *fiber.Ctx) error {
	page, err := h.registrations.List(c.UserContext(), service.RegistrationQuery{
		Status:    c.Query("status"),
		Search:    c.Query("search"),
		Page:      c.QueryInt("page", 1),
		Limit:     c.QueryInt("limit", 0),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	})
	if err != nil {
		return err
	}
	items := make([]dto.RegistrationResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, dto.NewRegistrationResponse(&page.Items[i]))
	}
	return c.JSON(fiber.Map{
		"data":       items,
		"pagination": dto.NewPagination(page.Page, page.Limit, page.Total),
	})
}

// Stats GET /api/registrations/stats.
func (h *RegistrationsHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.registrations.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// Get GET /api/registrations/:id.
func (h *RegistrationsHandler) Get(c *fiber.Ctx) error {
	reg, err := h.registrations.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRegistrationResponse(reg)})
}

// UpdateStatus PATCH /api/registrations/:id/status.
func (h *RegistrationsHandler) UpdateStatus(c *fiber.Ctx) error {
	var req service.StatusUpdate
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	change, err := h.registrations.UpdateStatus(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return err
	}
	h.notifications.EnqueueOrLog(c.UserContext(), change.Notifications...)
	return c.JSON(fiber.Map{"data": dto.NewRegistrationResponse(change.Registration)})
}

// Delete DELETE /api/registrations/:id.
func (h *RegistrationsHandler) Delete(c *fiber.Ctx) error {
	if err := h.registrations.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func submissionFromForm(form *multipart.Form) (service.SubmissionInput, error) {
	value := func(key string) string {
		if vs := form.Value[key]; len(vs) > 0 {
			return strings.TrimSpace(vs[0])
		}
		return ""
	}

	in := service.SubmissionInput{
		FullName:              value("fullName"),
		Email:                 value("email"),
		Phone:                 value("phone"),
		Gender:                value("gender"),
		IsKumaraguru:          isAffirmative(value("isKumaraguru")),
		RollNumber:            value("rollNumber"),
		InstitutionType:       value("institutionType"),
		Institution:           value("institution"),
		City:                  value("cityOfInstitution"),
		State:                 value("stateOfInstitution"),
		Grade:                 value("grade"),
		RequiresAccommodation: isAffirmative(value("requiresAccommodation")),
	}
	if raw := value("totalMuns"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return in, apperrors.NewValidationError("invalid registration", map[string]any{"totalMuns": "must be a whole number"})
		}
		in.TotalMUNs = n
	}
	for i := range in.Preferences {
		slot := strconv.Itoa(i + 1)
		portfolio := value("portfolioPreference" + slot)
		if portfolio == "" {
			portfolio = value("portfolioPreference" + slot + "_1")
		}
		in.Preferences[i] = domain.Preference{
			Committee: value("committeePreference" + slot),
			Portfolio: portfolio,
		}
	}
	return in, nil
}

func firstFile(form *multipart.Form, field string) *multipart.FileHeader {
	if files := form.File[field]; len(files) > 0 {
		return files[0]
	}
	return nil
}

func isAffirmative(v string) bool {
	switch strings.ToLower(v) {
	case "yes", "true", "1", "on":
		return true
	}
	return false
}

func pageParams(c *fiber.Ctx) (int, int) {
	return c.QueryInt("page", 1), c.QueryInt("limit", 0)
}

// requestDeadline bounds synchronous work that must not outlive the request.
func requestDeadline(c *fiber.Ctx, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), d)
}
