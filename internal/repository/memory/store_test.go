package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/suite"

	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/repository"
)

type StoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
}

func (s *StoreSuite) account(email, externalID string) *domain.Account {
	a := &domain.Account{
		ExternalID: externalID,
		FirstName:  "Asha",
		Email:      email,
		Role:       domain.RoleParticipant,
		Active:     true,
	}
	s.Require().NoError(s.store.Accounts().Create(s.ctx, a))
	return a
}

func (s *StoreSuite) TestAccountUniqueness() {
	s.account("asha@example.com", "KMUN25001")

	err := s.store.Accounts().Create(s.ctx, &domain.Account{Email: "asha@example.com", ExternalID: "KMUN25002"})
	s.ErrorIs(err, repository.ErrDuplicateEmail)

	err = s.store.Accounts().Create(s.ctx, &domain.Account{Email: "ravi@example.com", ExternalID: "KMUN25001"})
	s.ErrorIs(err, repository.ErrDuplicateExternalID)
}

func (s *StoreSuite) TestAccountLookup() {
	created := s.account("asha@example.com", "KMUN25001")

	byEmail, err := s.store.Accounts().GetByEmail(s.ctx, "asha@example.com")
	s.Require().NoError(err)
	s.Equal(created.ID, byEmail.ID)

	_, err = s.store.Accounts().GetByEmail(s.ctx, "missing@example.com")
	s.ErrorIs(err, pgx.ErrNoRows)

	_, err = s.store.Accounts().GetByID(s.ctx, "nope")
	s.ErrorIs(err, pgx.ErrNoRows)
}

func (s *StoreSuite) TestLatestExternalIDUsesNumericOrder() {
	s.account("a@example.com", "KMUN25998")
	s.account("b@example.com", "KMUN251000")
	s.account("c@example.com", "KMUN25999")
	s.account("d@example.com", "KMUN26005")
	s.account("e@example.com", "KMUN25XYZ")

	latest, err := s.store.Accounts().LatestExternalID(s.ctx, "KMUN25")
	s.Require().NoError(err)
	s.Equal("KMUN251000", latest)

	latest, err = s.store.Accounts().LatestExternalID(s.ctx, "EVT")
	s.Require().NoError(err)
	s.Empty(latest)

	exists, err := s.store.Accounts().ExternalIDExists(s.ctx, "KMUN25999")
	s.Require().NoError(err)
	s.True(exists)
}

func (s *StoreSuite) TestOneRegistrationPerAccount() {
	a := s.account("asha@example.com", "KMUN25001")

	first := &domain.Registration{AccountID: a.ID, IDDocument: "doc1", Status: domain.RegistrationStatusPending}
	s.Require().NoError(s.store.Registrations().Create(s.ctx, first))

	second := &domain.Registration{AccountID: a.ID, IDDocument: "doc2", Status: domain.RegistrationStatusPending}
	s.ErrorIs(s.store.Registrations().Create(s.ctx, second), repository.ErrDuplicateRegistration)

	s.ErrorIs(s.store.Registrations().Create(s.ctx, &domain.Registration{AccountID: "ghost"}), pgx.ErrNoRows)
}

func (s *StoreSuite) TestWithinTxRollsBackOnError() {
	boom := errors.New("boom")
	err := s.store.WithinTx(s.ctx, func(tx repository.Store) error {
		a := &domain.Account{Email: "asha@example.com", ExternalID: "KMUN25001"}
		if err := tx.Accounts().Create(s.ctx, a); err != nil {
			return err
		}
		// Visible inside the transaction.
		if _, err := tx.Accounts().GetByEmail(s.ctx, "asha@example.com"); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	accounts, registrations := s.store.Counts()
	s.Zero(accounts)
	s.Zero(registrations)
}

func (s *StoreSuite) TestWithinTxCommits() {
	err := s.store.WithinTx(s.ctx, func(tx repository.Store) error {
		a := &domain.Account{Email: "asha@example.com", ExternalID: "KMUN25001"}
		if err := tx.Accounts().Create(s.ctx, a); err != nil {
			return err
		}
		return tx.Registrations().Create(s.ctx, &domain.Registration{AccountID: a.ID, IDDocument: "doc1"})
	})
	s.Require().NoError(err)

	accounts, registrations := s.store.Counts()
	s.Equal(1, accounts)
	s.Equal(1, registrations)
}

func (s *StoreSuite) TestDeleteAccountCascades() {
	a := s.account("asha@example.com", "KMUN25001")
	s.Require().NoError(s.store.Registrations().Create(s.ctx, &domain.Registration{AccountID: a.ID, IDDocument: "doc1"}))

	s.Require().NoError(s.store.Accounts().Delete(s.ctx, a.ID))
	_, err := s.store.Registrations().GetByAccountID(s.ctx, a.ID)
	s.ErrorIs(err, pgx.ErrNoRows)
}

func (s *StoreSuite) TestRegistrationListing() {
	names := []string{"Asha", "Ravi", "Meera"}
	for i, name := range names {
		a := s.account(name+"@example.com", "KMUN2500"+string(rune('1'+i)))
		reg := &domain.Registration{
			AccountID:   a.ID,
			FirstName:   name,
			Email:       a.Email,
			Institution: "PSG",
			IDDocument:  "doc",
			Status:      domain.RegistrationStatusPending,
		}
		reg.Preferences[0] = domain.Preference{Committee: "UNSC"}
		if name == "Ravi" {
			reg.Preferences[0] = domain.Preference{Committee: "UNGA"}
			reg.Status = domain.RegistrationStatusConfirmed
		}
		s.Require().NoError(s.store.Registrations().Create(s.ctx, reg))
	}

	all, total, err := s.store.Registrations().List(s.ctx, repository.RegistrationFilter{SortBy: "firstName", SortOrder: "asc"})
	s.Require().NoError(err)
	s.Equal(3, total)
	s.Equal([]string{"Asha", "Meera", "Ravi"}, []string{all[0].FirstName, all[1].FirstName, all[2].FirstName})

	confirmed := domain.RegistrationStatusConfirmed
	page, total, err := s.store.Registrations().List(s.ctx, repository.RegistrationFilter{Status: &confirmed})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal("Ravi", page[0].FirstName)

	_, total, err = s.store.Registrations().List(s.ctx, repository.RegistrationFilter{Search: "mee"})
	s.Require().NoError(err)
	s.Equal(1, total)

	unsc, err := s.store.Registrations().ListByCommittees(s.ctx, []string{"UNSC"})
	s.Require().NoError(err)
	s.Len(unsc, 2)

	counts, err := s.store.Registrations().CountByStatus(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, counts[domain.RegistrationStatusPending])
	s.Equal(1, counts[domain.RegistrationStatusConfirmed])
}

func (s *StoreSuite) TestCommitteePortfolios() {
	c := &domain.Committee{Name: "UNSC", Type: "SC", IsActive: true}
	s.Require().NoError(s.store.Committees().Create(s.ctx, c))
	s.ErrorIs(s.store.Committees().Create(s.ctx, &domain.Committee{Name: "UNSC"}), repository.ErrDuplicateName)

	p := &domain.Portfolio{CommitteeID: c.ID, Name: "France", IsAvailable: true}
	s.Require().NoError(s.store.Committees().AddPortfolio(s.ctx, p))

	got, err := s.store.Committees().GetByID(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Len(got.Portfolios, 1)

	n, err := s.store.Committees().CountPortfolios(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(1, n)

	s.ErrorIs(s.store.Committees().DeletePortfolio(s.ctx, "other", p.ID), pgx.ErrNoRows)
	s.Require().NoError(s.store.Committees().DeletePortfolio(s.ctx, c.ID, p.ID))
}
