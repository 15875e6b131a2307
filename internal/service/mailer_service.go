package service

import (
	"context"
	"errors"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/repository"
	"github.com/kmun/registration-service/pkg/util/errorutil"
)

var errNothingQueued = errors.New("no notification could be queued")

// Recipient types accepted by SendBulk.
const (
	RecipientRegistrants = "registrants"
	RecipientSingle      = "single"
	recipientsAll        = "all"
)

// BulkEmailRequest is an admin mail-out.
type BulkEmailRequest struct {
	RecipientType string   `json:"recipientType" validate:"required,oneof=registrants single"`
	Recipients    []string `json:"recipients"`
	SingleEmail   string   `json:"singleEmail" validate:"omitempty,email"`
	Provider      string   `json:"provider" validate:"omitempty,oneof=gmail outlook"`
	Subject       string   `json:"subject" validate:"required,max=200"`
	Message       string   `json:"message" validate:"required,max=10000"`
}

// BulkResult reports how many notifications were queued.
type BulkResult struct {
	Recipients int `json:"recipients"`
	Queued     int `json:"queued"`
	Failed     int `json:"failed"`
}

// RecipientSummary describes who a registrants mail-out can reach.
type RecipientSummary struct {
	Total      int                               `json:"total"`
	ByStatus   map[domain.RegistrationStatus]int `json:"byStatus"`
	Committees []string                          `json:"committees"`
}

// MailerService sends admin-authored mail to registrants.
type MailerService struct {
	store         repository.Store
	notifications *NotificationService
	policy        *bluemonday.Policy
	text          *bluemonday.Policy
}

// NewMailerService builds the service.
func NewMailerService(store repository.Store, notifications *NotificationService) *MailerService {
	return &MailerService{
		store:         store,
		notifications: notifications,
		policy:        bluemonday.UGCPolicy(),
		text:          bluemonday.StrictPolicy(),
	}
}

// SendBulk resolves recipients and queues one message per unique address.
func (s *MailerService) SendBulk(ctx context.Context, req BulkEmailRequest) (*BulkResult, error) {
	req.Subject = strings.TrimSpace(req.Subject)
	req.SingleEmail = normalizeEmail(req.SingleEmail)
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))

	extra := map[string]any{}
	switch {
	case req.RecipientType == RecipientSingle && req.SingleEmail == "":
		extra["singleEmail"] = "is required"
	case req.RecipientType == RecipientRegistrants && len(req.Recipients) == 0:
		extra["recipients"] = "is required"
	}
	if err := validateInput("invalid mail request", req, extra); err != nil {
		return nil, err
	}

	recipients, err := s.resolveRecipients(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, errorutil.NewValidationError("no recipients found", map[string]any{"recipients": req.Recipients})
	}

	body := s.policy.Sanitize(req.Message)
	text := html.UnescapeString(s.text.Sanitize(req.Message))
	result := &BulkResult{Recipients: len(recipients)}
	for _, to := range recipients {
		note := newNotification(domain.NotificationBulk, to, map[string]string{
			"subject": req.Subject,
			"html":    body,
			"text":    text,
		})
		note.Provider = req.Provider
		if err := s.notifications.Enqueue(ctx, note); err != nil {
			result.Failed++
			continue
		}
		result.Queued++
	}
	if result.Queued == 0 {
		return result, errorutil.NewStorageError(errNothingQueued)
	}
	return result, nil
}

// SendTest delivers one message immediately so SMTP settings can be checked.
func (s *MailerService) SendTest(ctx context.Context, email, subject, message, provider string) error {
	req := BulkEmailRequest{
		RecipientType: RecipientSingle,
		SingleEmail:   normalizeEmail(email),
		Provider:      strings.ToLower(strings.TrimSpace(provider)),
		Subject:       strings.TrimSpace(subject),
		Message:       message,
	}
	extra := map[string]any{}
	if req.SingleEmail == "" {
		extra["singleEmail"] = "is required"
	}
	if err := validateInput("invalid test mail", req, extra); err != nil {
		return err
	}
	note := newNotification(domain.NotificationBulk, req.SingleEmail, map[string]string{
		"subject": req.Subject,
		"html":    s.policy.Sanitize(req.Message),
		"text":    html.UnescapeString(s.text.Sanitize(req.Message)),
	})
	note.Provider = req.Provider
	if err := s.notifications.Deliver(ctx, note); err != nil {
		return errorutil.NewDomainError("MAIL_DELIVERY_FAILED", "test mail could not be delivered", 502,
			map[string]any{"reason": err.Error()})
	}
	return nil
}

// Recipients summarizes registrants and available committees.
func (s *MailerService) Recipients(ctx context.Context) (*RecipientSummary, error) {
	byStatus, err := s.store.Registrations().CountByStatus(ctx)
	if err != nil {
		return nil, errorutil.NewStorageError(err)
	}
	committees, err := s.store.Committees().List(ctx, true)
	if err != nil {
		return nil, errorutil.NewStorageError(err)
	}

	summary := &RecipientSummary{ByStatus: byStatus, Committees: make([]string, 0, len(committees))}
	for _, n := range byStatus {
		summary.Total += n
	}
	for _, c := range committees {
		summary.Committees = append(summary.Committees, c.Name)
	}
	return summary, nil
}

func (s *MailerService) resolveRecipients(ctx context.Context, req BulkEmailRequest) ([]string, error) {
	if req.RecipientType == RecipientSingle {
		return []string{req.SingleEmail}, nil
	}

	var committees []string
	all := false
	for _, r := range req.Recipients {
		r = strings.TrimSpace(r)
		if strings.EqualFold(r, recipientsAll) {
			all = true
			break
		}
		if r != "" {
			committees = append(committees, r)
		}
	}
	if all {
		committees = nil
	} else if len(committees) == 0 {
		return nil, nil
	}

	regs, err := s.store.Registrations().ListByCommittees(ctx, committees)
	if err != nil {
		return nil, errorutil.NewStorageError(err)
	}
	seen := make(map[string]struct{}, len(regs))
	out := make([]string, 0, len(regs))
	for _, reg := range regs {
		email := normalizeEmail(reg.Email)
		if email == "" {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}
	return out, nil
}
