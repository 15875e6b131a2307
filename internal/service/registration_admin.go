package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/repository"
	"github.com/kmun/registration-service/pkg/util/errorutil"
)

// RegistrationQuery describes admin listing filters.
type RegistrationQuery struct {
	Status    string
	Search    string
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

// RegistrationPage is one page of registrations.
type RegistrationPage struct {
	Items []domain.Registration
	Total int
	Page  int
	Limit int
}

// StatusUpdate is an admin review decision.
type StatusUpdate struct {
	Status             domain.RegistrationStatus `json:"status" validate:"required,oneof=CONFIRMED REJECTED"`
	AllocatedCommittee *string                   `json:"allocatedCommittee"`
	AllocatedPortfolio *string                   `json:"allocatedPortfolio"`
}

// StatusChange carries the updated registration and any notifications owed.
type StatusChange struct {
	Registration  *domain.Registration
	Notifications []domain.Notification
}

// RegistrationStats summarizes registrations for the dashboard.
type RegistrationStats struct {
	Total     int                               `json:"total"`
	ByStatus  map[domain.RegistrationStatus]int `json:"byStatus"`
	Allocated int                               `json:"allocated"`
}

// List returns a filtered page of registrations.
func (s *RegistrationService) List(ctx context.Context, q RegistrationQuery) (*RegistrationPage, error) {
	filter := repository.RegistrationFilter{
		Search:    strings.TrimSpace(q.Search),
		SortBy:    q.SortBy,
		SortOrder: q.SortOrder,
	}
	if q.Status != "" {
		status := domain.RegistrationStatus(strings.ToUpper(q.Status))
		if !status.Valid() {
			return nil, errorutil.NewValidationError("invalid filter", map[string]any{"status": "unknown status"})
		}
		filter.Status = &status
	}

	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	items, total, err := s.store.Registrations().List(ctx, filter)
	if err != nil {
		return nil, errorutil.NewStorageError(err)
	}
	return &RegistrationPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// Get loads a single registration.
func (s *RegistrationService) Get(ctx context.Context, id string) (*domain.Registration, error) {
	reg, err := s.store.Registrations().GetByID(ctx, id)
	if err != nil {
		return nil, registrationLookupError(err, id)
	}
	return reg, nil
}

// UpdateStatus records a review decision. A decided registration only
// returns to PENDING through a fresh submission.
func (s *RegistrationService) UpdateStatus(ctx context.Context, id string, update StatusUpdate) (*StatusChange, error) {
	update.Status = domain.RegistrationStatus(strings.ToUpper(strings.TrimSpace(string(update.Status))))
	update.AllocatedCommittee = trimmedOrNil(update.AllocatedCommittee)
	update.AllocatedPortfolio = trimmedOrNil(update.AllocatedPortfolio)

	extra := map[string]any{}
	if (update.AllocatedCommittee == nil) != (update.AllocatedPortfolio == nil) {
		extra["allocation"] = "committee and portfolio must be set together"
	}
	if update.AllocatedCommittee != nil && update.Status != domain.RegistrationStatusConfirmed {
		extra["allocation"] = "only confirmed registrations can be allocated"
	}
	if err := validateInput("invalid status update", update, extra); err != nil {
		return nil, err
	}

	var change *StatusChange
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		reg, err := tx.Registrations().GetByID(ctx, id)
		if err != nil {
			return registrationLookupError(err, id)
		}
		if reg.Status != domain.RegistrationStatusPending && reg.Status != update.Status {
			return errorutil.NewConflict("registration already decided", map[string]any{
				"current": reg.Status,
				"target":  update.Status,
			})
		}

		if update.AllocatedCommittee != nil {
			if _, err := tx.Committees().GetByName(ctx, *update.AllocatedCommittee); err != nil {
				if repository.IsNotFound(err) {
					return errorutil.NewValidationError("invalid status update", map[string]any{"allocatedCommittee": "unknown committee"})
				}
				return errorutil.NewStorageError(err)
			}
		}

		reg.Status = update.Status
		reg.AllocatedCommittee = update.AllocatedCommittee
		reg.AllocatedPortfolio = update.AllocatedPortfolio
		if err := tx.Registrations().Update(ctx, reg); err != nil {
			return errorutil.NewStorageError(err)
		}

		change = &StatusChange{Registration: reg}
		if reg.IsAllocated() {
			change.Notifications = append(change.Notifications, newNotification(domain.NotificationCommitteeAllocated, reg.Email, map[string]string{
				"name":      strings.TrimSpace(reg.FirstName + " " + reg.LastName),
				"committee": *reg.AllocatedCommittee,
				"portfolio": *reg.AllocatedPortfolio,
			}))
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return change, nil
}

// Delete removes a registration and then its uploaded documents.
// Document cleanup failures are logged; the record is already gone.
func (s *RegistrationService) Delete(ctx context.Context, id string) error {
	reg, err := s.store.Registrations().GetByID(ctx, id)
	if err != nil {
		return registrationLookupError(err, id)
	}
	if err := s.store.Registrations().Delete(ctx, id); err != nil {
		return registrationLookupError(err, id)
	}

	if s.artifacts == nil {
		return nil
	}
	refs := []string{reg.IDDocument}
	if reg.Resume != nil {
		refs = append(refs, *reg.Resume)
	}
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if err := s.artifacts.Delete(ctx, ref); err != nil {
			s.logger.Warn("failed to delete registration artifact",
				zap.String("registration_id", id), zap.String("ref", ref), zap.Error(err))
		}
	}
	return nil
}

// Stats counts registrations by status and allocation.
func (s *RegistrationService) Stats(ctx context.Context) (*RegistrationStats, error) {
	byStatus, err := s.store.Registrations().CountByStatus(ctx)
	if err != nil {
		return nil, errorutil.NewStorageError(err)
	}
	allocated, err := s.store.Registrations().CountAllocated(ctx)
	if err != nil {
		return nil, errorutil.NewStorageError(err)
	}

	stats := &RegistrationStats{ByStatus: map[domain.RegistrationStatus]int{
		domain.RegistrationStatusPending:   0,
		domain.RegistrationStatusConfirmed: 0,
		domain.RegistrationStatusRejected:  0,
	}, Allocated: allocated}
	for status, n := range byStatus {
		stats.ByStatus[status] = n
		stats.Total += n
	}
	return stats, nil
}

func registrationLookupError(err error, id string) error {
	if repository.IsNotFound(err) {
		return errorutil.NewNotFound("registration", map[string]any{"id": id})
	}
	return mapStoreError(err)
}

// mapStoreError keeps domain errors and reports anything else as a storage failure.
func mapStoreError(err error) error {
	var domainErr *errorutil.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return errorutil.NewStorageError(err)
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
