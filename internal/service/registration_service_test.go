package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/kmun/registration-service/internal/config"
	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/repository"
	"github.com/kmun/registration-service/internal/repository/memory"
	"github.com/kmun/registration-service/pkg/util/errorutil"
)

func ashaInput() SubmissionInput {
	in := SubmissionInput{
		FullName:   "Asha Rao",
		Email:      "asha@example.com",
		Phone:      "9876543210",
		Gender:     "F",
		IDDocument: "doc1",
	}
	in.Preferences[0] = domain.Preference{Committee: "UNSC"}
	return in
}

type RegistrationSuite struct {
	suite.Suite
	ctx   context.Context
	store *memory.Store
	svc   *RegistrationService
}

func TestRegistrationSuite(t *testing.T) {
	suite.Run(t, new(RegistrationSuite))
}

func (s *RegistrationSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.svc = newTestRegistrationService(s.store, nil)
}

func (s *RegistrationSuite) counts() (int, int) {
	return s.store.Counts()
}

func (s *RegistrationSuite) TestFirstSubmissionCreatesAccountAndRegistration() {
	res, err := s.svc.Submit(s.ctx, ashaInput())
	s.Require().NoError(err)

	s.True(res.IsNewAccount())
	s.Equal(OutcomeCreated, res.AccountOutcome)
	s.Equal(OutcomeCreated, res.RegistrationOutcome)
	s.Equal("KMUN25001", res.Account.ExternalID)
	s.Equal("Asha", res.Account.FirstName)
	s.Equal("Rao", res.Account.LastName)
	s.Equal(domain.RoleParticipant, res.Account.Role)
	s.Equal(domain.RegistrationStatusPending, res.Registration.Status)
	s.Equal(res.Account.ID, res.Registration.AccountID)
	s.Equal("UNSC", res.Registration.Preferences[0].Committee)

	s.Equal("Iam9876543210!@#", res.InitialCredential)
	s.NotEqual(res.InitialCredential, res.Account.PasswordHash)
	s.NoError(testHasher().Compare(res.Account.PasswordHash, res.InitialCredential))

	s.Require().Len(res.Notifications, 2)
	s.Equal(domain.NotificationCredentialDisclosure, res.Notifications[0].Kind)
	s.Equal("asha@example.com", res.Notifications[0].To)
	s.Equal("Iam9876543210!@#", res.Notifications[0].Data["password"])
	s.Equal(domain.NotificationRegistrationReceived, res.Notifications[1].Kind)

	accounts, registrations := s.counts()
	s.Equal(1, accounts)
	s.Equal(1, registrations)
}

func (s *RegistrationSuite) TestResubmissionUpdatesInPlace() {
	first, err := s.svc.Submit(s.ctx, ashaInput())
	s.Require().NoError(err)

	in := ashaInput()
	in.Preferences[0] = domain.Preference{Committee: "UNGA"}
	in.Phone = "9999999999"
	second, err := s.svc.Submit(s.ctx, in)
	s.Require().NoError(err)

	s.False(second.IsNewAccount())
	s.Equal(OutcomeUpdated, second.AccountOutcome)
	s.Equal(OutcomeUpdated, second.RegistrationOutcome)
	s.Equal(first.Account.ID, second.Account.ID)
	s.Equal("KMUN25001", second.Account.ExternalID)
	s.Equal(first.Account.PasswordHash, second.Account.PasswordHash)
	s.Empty(second.InitialCredential)
	s.Equal(first.Registration.ID, second.Registration.ID)
	s.Equal("UNGA", second.Registration.Preferences[0].Committee)
	s.Equal(domain.RegistrationStatusPending, second.Registration.Status)

	s.Require().Len(second.Notifications, 1)
	s.Equal(domain.NotificationRegistrationReceived, second.Notifications[0].Kind)

	stored, err := s.store.Registrations().GetByAccountID(s.ctx, first.Account.ID)
	s.Require().NoError(err)
	s.Equal("UNGA", stored.Preferences[0].Committee)
	storedAccount, err := s.store.Accounts().GetByID(s.ctx, first.Account.ID)
	s.Require().NoError(err)
	s.Equal("9999999999", storedAccount.Phone)

	accounts, registrations := s.counts()
	s.Equal(1, accounts)
	s.Equal(1, registrations)
}

func (s *RegistrationSuite) TestResubmissionResetsDecision() {
	first, err := s.svc.Submit(s.ctx, ashaInput())
	s.Require().NoError(err)

	reg := first.Registration
	reg.Status = domain.RegistrationStatusConfirmed
	reg.AllocatedCommittee = strPtr("UNSC")
	reg.AllocatedPortfolio = strPtr("France")
	s.Require().NoError(s.store.Registrations().Update(s.ctx, reg))

	res, err := s.svc.Submit(s.ctx, ashaInput())
	s.Require().NoError(err)
	s.Equal(domain.RegistrationStatusPending, res.Registration.Status)
	s.Nil(res.Registration.AllocatedCommittee)
	s.Nil(res.Registration.AllocatedPortfolio)
}

func (s *RegistrationSuite) TestEmailMatchingIgnoresCaseAndSpace() {
	_, err := s.svc.Submit(s.ctx, ashaInput())
	s.Require().NoError(err)

	in := ashaInput()
	in.Email = "  ASHA@Example.com "
	res, err := s.svc.Submit(s.ctx, in)
	s.Require().NoError(err)
	s.False(res.IsNewAccount())
	s.Equal("asha@example.com", res.Account.Email)
}

func (s *RegistrationSuite) TestIdentifiersAreSequential() {
	for i, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		in := ashaInput()
		in.Email = email
		res, err := s.svc.Submit(s.ctx, in)
		s.Require().NoError(err)
		s.Equal([]string{"KMUN25001", "KMUN25002", "KMUN25003"}[i], res.Account.ExternalID)
	}
}

func (s *RegistrationSuite) TestValidationGatePersistsNothing() {
	cases := map[string]func(*SubmissionInput){
		"fullName":             func(in *SubmissionInput) { in.FullName = "   " },
		"email":                func(in *SubmissionInput) { in.Email = "" },
		"phone":                func(in *SubmissionInput) { in.Phone = "" },
		"gender":               func(in *SubmissionInput) { in.Gender = "" },
		"committeePreference1": func(in *SubmissionInput) { in.Preferences[0].Committee = "" },
		"idDocument":           func(in *SubmissionInput) { in.IDDocument = "" },
	}
	for field, mutate := range cases {
		s.Run(field, func() {
			in := ashaInput()
			mutate(&in)

			_, err := s.svc.Submit(s.ctx, in)
			s.Require().Error(err)
			s.ErrorIs(err, errorutil.ErrValidation)

			var domainErr *errorutil.DomainError
			s.Require().True(errors.As(err, &domainErr))
			s.Contains(domainErr.Details, field)

			accounts, registrations := s.counts()
			s.Zero(accounts)
			s.Zero(registrations)
		})
	}
}

func (s *RegistrationSuite) TestPhoneDigitsFeedCredential() {
	in := ashaInput()
	in.Phone = "+91 98765-43210"
	res, err := s.svc.Submit(s.ctx, in)
	s.Require().NoError(err)
	s.Equal("Iam919876543210!@#", res.InitialCredential)
}

func (s *RegistrationSuite) TestRandomCredentialMode() {
	cfg := testRegistrationConfig()
	cfg.CredentialMode = config.CredentialModeRandom
	svc := NewRegistrationService(cfg, RegistrationDependencies{
		Store:     s.store,
		Allocator: testAllocator(s.store),
		Hasher:    testHasher(),
	})

	res, err := svc.Submit(s.ctx, ashaInput())
	s.Require().NoError(err)
	s.NotContains(res.InitialCredential, "9876543210")
	s.GreaterOrEqual(len(res.InitialCredential), 20)
	s.NoError(testHasher().Compare(res.Account.PasswordHash, res.InitialCredential))
}

func (s *RegistrationSuite) TestFailedRegistrationWriteLeavesNoAccount() {
	f := &faults{createRegistration: errors.New("disk full")}
	svc := newTestRegistrationService(newFaultyStore(s.store, f), nil)

	_, err := svc.Submit(s.ctx, ashaInput())
	s.Require().Error(err)
	s.ErrorIs(err, errorutil.ErrStorage)

	accounts, registrations := s.counts()
	s.Zero(accounts)
	s.Zero(registrations)
}

func (s *RegistrationSuite) TestUnreachableCounterIsAllocationError() {
	f := &faults{latestExternalID: errors.New("connection refused")}
	svc := newTestRegistrationService(newFaultyStore(s.store, f), nil)

	_, err := svc.Submit(s.ctx, ashaInput())
	s.ErrorIs(err, errorutil.ErrAllocation)
	accounts, _ := s.counts()
	s.Zero(accounts)
}

func (s *RegistrationSuite) TestExternalIDRaceExhaustsToAllocationError() {
	f := &faults{createAccount: repository.ErrDuplicateExternalID}
	svc := newTestRegistrationService(newFaultyStore(s.store, f), nil)

	_, err := svc.Submit(s.ctx, ashaInput())
	s.ErrorIs(err, errorutil.ErrAllocation)
	s.Equal(3, f.accountCreates)
}

func (s *RegistrationSuite) TestEmailRaceExhaustsToStorageError() {
	f := &faults{createAccount: repository.ErrDuplicateEmail}
	svc := newTestRegistrationService(newFaultyStore(s.store, f), nil)

	_, err := svc.Submit(s.ctx, ashaInput())
	s.ErrorIs(err, errorutil.ErrStorage)
	s.Equal(3, f.accountCreates)
}

func (s *RegistrationSuite) TestConcurrentSameEmailYieldsOneAccount() {
	const n = 8
	var wg sync.WaitGroup
	results := make(chan *SubmitResult, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.svc.Submit(s.ctx, ashaInput())
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		s.Fail("unexpected error", err.Error())
	}
	created := 0
	for res := range results {
		if res.IsNewAccount() {
			created++
		}
		s.Equal("KMUN25001", res.Account.ExternalID)
	}
	s.Equal(1, created)

	accounts, registrations := s.counts()
	s.Equal(1, accounts)
	s.Equal(1, registrations)
}

func TestSplitFullName(t *testing.T) {
	cases := []struct {
		in, first, last string
	}{
		{"Asha Rao", "Asha", "Rao"},
		{"Asha", "Asha", ""},
		{"  Asha   Rao  ", "Asha", "Rao"},
		{"Mary Ann van der Berg", "Mary", "Ann van der Berg"},
		{"Asha\tRao", "Asha", "Rao"},
	}
	for _, tc := range cases {
		first, last := SplitFullName(tc.in)
		assert.Equal(t, tc.first, first, tc.in)
		assert.Equal(t, tc.last, last, tc.in)
	}
}

func TestSubmissionInputNormalizeDropsBlankResume(t *testing.T) {
	in := ashaInput()
	in.Resume = strPtr("   ")
	in.normalize()
	require.Nil(t, in.Resume)
	assert.False(t, strings.ContainsAny(in.Email, " "))
}
