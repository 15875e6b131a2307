package service

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/suite"

	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/repository/memory"
	"github.com/kmun/registration-service/pkg/util/errorutil"
)

type RegistrationAdminSuite struct {
	suite.Suite
	ctx       context.Context
	store     *memory.Store
	artifacts *recordingArtifacts
	svc       *RegistrationService
	asha      *SubmitResult
}

func TestRegistrationAdminSuite(t *testing.T) {
	suite.Run(t, new(RegistrationAdminSuite))
}

func (s *RegistrationAdminSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.artifacts = &recordingArtifacts{}
	s.svc = newTestRegistrationService(s.store, s.artifacts)

	s.Require().NoError(s.store.Committees().Create(s.ctx, &domain.Committee{Name: "UNSC", Type: "GENERAL", IsActive: true}))

	in := ashaInput()
	in.Resume = strPtr("resume1")
	res, err := s.svc.Submit(s.ctx, in)
	s.Require().NoError(err)
	s.asha = res
}

func (s *RegistrationAdminSuite) TestConfirmWithAllocationEmitsNotification() {
	change, err := s.svc.UpdateStatus(s.ctx, s.asha.Registration.ID, StatusUpdate{
		Status:             "confirmed",
		AllocatedCommittee: strPtr("UNSC"),
		AllocatedPortfolio: strPtr("France"),
	})
	s.Require().NoError(err)
	s.Equal(domain.RegistrationStatusConfirmed, change.Registration.Status)
	s.True(change.Registration.IsAllocated())
	s.Require().Len(change.Notifications, 1)
	s.Equal(domain.NotificationCommitteeAllocated, change.Notifications[0].Kind)
	s.Equal("France", change.Notifications[0].Data["portfolio"])

	stats, err := s.svc.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, stats.Total)
	s.Equal(1, stats.ByStatus[domain.RegistrationStatusConfirmed])
	s.Equal(0, stats.ByStatus[domain.RegistrationStatusPending])
	s.Equal(1, stats.Allocated)
}

func (s *RegistrationAdminSuite) TestRejectWithoutAllocation() {
	change, err := s.svc.UpdateStatus(s.ctx, s.asha.Registration.ID, StatusUpdate{Status: domain.RegistrationStatusRejected})
	s.Require().NoError(err)
	s.Equal(domain.RegistrationStatusRejected, change.Registration.Status)
	s.Empty(change.Notifications)
}

func (s *RegistrationAdminSuite) TestStatusUpdateValidation() {
	cases := map[string]StatusUpdate{
		"pending is not a decision": {Status: domain.RegistrationStatusPending},
		"unknown status":            {Status: "WAITLISTED"},
		"half allocation":           {Status: domain.RegistrationStatusConfirmed, AllocatedCommittee: strPtr("UNSC")},
		"allocation on rejection":   {Status: domain.RegistrationStatusRejected, AllocatedCommittee: strPtr("UNSC"), AllocatedPortfolio: strPtr("France")},
		"unknown committee":         {Status: domain.RegistrationStatusConfirmed, AllocatedCommittee: strPtr("WTO"), AllocatedPortfolio: strPtr("Chile")},
	}
	for name, update := range cases {
		s.Run(name, func() {
			_, err := s.svc.UpdateStatus(s.ctx, s.asha.Registration.ID, update)
			s.ErrorIs(err, errorutil.ErrValidation)
		})
	}
}

func (s *RegistrationAdminSuite) TestDecidedRegistrationCannotFlip() {
	_, err := s.svc.UpdateStatus(s.ctx, s.asha.Registration.ID, StatusUpdate{Status: domain.RegistrationStatusRejected})
	s.Require().NoError(err)

	_, err = s.svc.UpdateStatus(s.ctx, s.asha.Registration.ID, StatusUpdate{Status: domain.RegistrationStatusConfirmed})
	s.ErrorIs(err, errorutil.ErrConflict)

	// Resubmission puts it back in the queue.
	_, err = s.svc.Submit(s.ctx, ashaInput())
	s.Require().NoError(err)
	_, err = s.svc.UpdateStatus(s.ctx, s.asha.Registration.ID, StatusUpdate{Status: domain.RegistrationStatusConfirmed})
	s.NoError(err)
}

func (s *RegistrationAdminSuite) TestGetAndDelete() {
	got, err := s.svc.Get(s.ctx, s.asha.Registration.ID)
	s.Require().NoError(err)
	s.Equal("asha@example.com", got.Email)

	_, err = s.svc.Get(s.ctx, "missing")
	s.ErrorIs(err, errorutil.ErrNotFound)

	s.artifacts.failOn = "resume1"
	s.Require().NoError(s.svc.Delete(s.ctx, s.asha.Registration.ID))
	s.ElementsMatch([]string{"doc1", "resume1"}, s.artifacts.deleted)

	_, err = s.svc.Get(s.ctx, s.asha.Registration.ID)
	s.ErrorIs(err, errorutil.ErrNotFound)
	s.ErrorIs(s.svc.Delete(s.ctx, s.asha.Registration.ID), errorutil.ErrNotFound)
}

func (s *RegistrationAdminSuite) TestUnparseableIDIsNotFound() {
	store := newFaultyStore(s.store, &faults{getByID: &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid"}})
	svc := newTestRegistrationService(store, s.artifacts)

	_, err := svc.Get(s.ctx, "not-a-uuid")
	s.ErrorIs(err, errorutil.ErrNotFound)
	s.NotErrorIs(err, errorutil.ErrStorage)

	s.ErrorIs(svc.Delete(s.ctx, "not-a-uuid"), errorutil.ErrNotFound)

	_, err = svc.UpdateStatus(s.ctx, "not-a-uuid", StatusUpdate{Status: domain.RegistrationStatusRejected})
	s.ErrorIs(err, errorutil.ErrNotFound)
}

func (s *RegistrationAdminSuite) TestStoreOutageIsStorageError() {
	store := newFaultyStore(s.store, &faults{getByID: &pgconn.PgError{Code: "08006", Message: "connection failure"}})
	svc := newTestRegistrationService(store, s.artifacts)

	_, err := svc.Get(s.ctx, s.asha.Registration.ID)
	s.ErrorIs(err, errorutil.ErrStorage)
}

func (s *RegistrationAdminSuite) TestList() {
	in := ashaInput()
	in.FullName = "Ravi Kumar"
	in.Email = "ravi@example.com"
	_, err := s.svc.Submit(s.ctx, in)
	s.Require().NoError(err)

	page, err := s.svc.List(s.ctx, RegistrationQuery{Search: "ravi"})
	s.Require().NoError(err)
	s.Equal(1, page.Total)
	s.Equal("Ravi", page.Items[0].FirstName)
	s.Equal(1, page.Page)
	s.Equal(10, page.Limit)

	page, err = s.svc.List(s.ctx, RegistrationQuery{Status: "pending", Limit: 1, Page: 2, SortBy: "firstName", SortOrder: "asc"})
	s.Require().NoError(err)
	s.Equal(2, page.Total)
	s.Require().Len(page.Items, 1)
	s.Equal("Ravi", page.Items[0].FirstName)

	_, err = s.svc.List(s.ctx, RegistrationQuery{Status: "archived"})
	s.ErrorIs(err, errorutil.ErrValidation)
}
