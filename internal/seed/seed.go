// Package seed creates the default staff accounts and committees. Every step
// is keyed on a natural key (email, committee name) so reruns are no-ops.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/identifier"
	"github.com/kmun/registration-service/internal/repository"
)

// DefaultPassword is assigned to seeded staff accounts.
const DefaultPassword = "kmun2025"

// StaffAccount describes one seeded account.
type StaffAccount struct {
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	Institution string
	Grade       string
	Role        domain.Role
}

// DefaultStaff are the accounts the conference team signs in with.
var DefaultStaff = []StaffAccount{
	{FirstName: "Dev", LastName: "Admin", Email: "dev@mun.com", Phone: "+91 9876543211", Institution: "MUN Organization", Grade: "Staff", Role: domain.RoleDevAdmin},
	{FirstName: "John", LastName: "Delegate", Email: "delegate@mun.com", Phone: "+91 9876543210", Institution: "Harvard University", Grade: "Undergraduate", Role: domain.RoleDelegate},
	{FirstName: "Delegate", LastName: "Affairs", Email: "affairs@mun.com", Phone: "+91 9876543212", Institution: "MUN Organization", Grade: "Staff", Role: domain.RoleDelegateAffairs},
	{FirstName: "Front", LastName: "Desk", Email: "frontdesk@mun.com", Phone: "+91 9876543213", Institution: "MUN Organization", Grade: "Staff", Role: domain.RoleFrontDeskAdmin},
	{FirstName: "Committee", LastName: "Director", Email: "director@mun.com", Phone: "+91 9876543214", Institution: "MUN Organization", Grade: "Staff", Role: domain.RoleCommitteeDirector},
	{FirstName: "Hospitality", LastName: "Admin", Email: "hospitality@mun.com", Phone: "+91 9876543215", Institution: "MUN Organization", Grade: "Staff", Role: domain.RoleHospitalityAdmin},
}

// DefaultCommittees are the committees offered at registration.
var DefaultCommittees = []domain.Committee{
	{Name: "UNSC", Type: "SC", InstitutionType: "both", IsActive: true,
		Description: "United Nations Security Council. Addressing global security challenges and international peace."},
	{Name: "UNGA", Type: "GA", InstitutionType: "both", IsActive: true,
		Description: "United Nations General Assembly. Deliberating on international cooperation and development."},
	{Name: "WHO", Type: "SPECIALIZED", InstitutionType: "college", IsActive: true,
		Description: "World Health Organization. Addressing global health challenges and policy."},
	{Name: "ICJ", Type: "COURT", InstitutionType: "college", IsActive: true,
		Description: "International Court of Justice. Legal disputes between nations and international law."},
	{Name: "UNESCO", Type: "SPECIALIZED", InstitutionType: "school", IsActive: true,
		Description: "United Nations Educational, Scientific and Cultural Organization."},
	{Name: "UNICEF", Type: "SPECIALIZED", InstitutionType: "school", IsActive: true,
		Description: "United Nations Children's Fund. Protecting children's rights worldwide."},
}

// PasswordHasher hashes the seeded password.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// Result counts what a run created.
type Result struct {
	AccountsCreated   int
	AccountsExisting  int
	CommitteesCreated int
}

// Seeder writes the default data.
type Seeder struct {
	store     repository.Store
	allocator *identifier.Allocator
	hasher    PasswordHasher
	logger    *zap.Logger
}

// New builds a seeder.
func New(store repository.Store, allocator *identifier.Allocator, hasher PasswordHasher, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{store: store, allocator: allocator, hasher: hasher, logger: logger}
}

// Run seeds staff accounts with password and the default committees.
func (s *Seeder) Run(ctx context.Context, password string) (*Result, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}

	result := &Result{}
	for _, staff := range DefaultStaff {
		created, err := s.ensureAccount(ctx, staff, hash)
		if err != nil {
			return result, fmt.Errorf("seed %s: %w", staff.Email, err)
		}
		if created {
			result.AccountsCreated++
		} else {
			result.AccountsExisting++
		}
	}

	for _, committee := range DefaultCommittees {
		created, err := s.ensureCommittee(ctx, committee)
		if err != nil {
			return result, fmt.Errorf("seed committee %s: %w", committee.Name, err)
		}
		if created {
			result.CommitteesCreated++
		}
	}
	return result, nil
}

func (s *Seeder) ensureAccount(ctx context.Context, staff StaffAccount, hash string) (bool, error) {
	existing, err := s.store.Accounts().GetByEmail(ctx, staff.Email)
	if err == nil {
		s.logger.Info("account already exists", zap.String("email", staff.Email), zap.String("external_id", existing.ExternalID))
		return false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}

	var account *domain.Account
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		externalID, err := s.allocator.Bind(tx.Accounts()).Allocate(ctx)
		if err != nil {
			return err
		}
		account = &domain.Account{
			ExternalID:   externalID,
			FirstName:    staff.FirstName,
			LastName:     staff.LastName,
			Email:        staff.Email,
			Phone:        staff.Phone,
			Institution:  staff.Institution,
			Grade:        staff.Grade,
			PasswordHash: hash,
			Role:         staff.Role,
			Active:       true,
		}
		return tx.Accounts().Create(ctx, account)
	})
	if err != nil {
		return false, err
	}
	s.logger.Info("account created", zap.String("email", account.Email), zap.String("external_id", account.ExternalID))
	return true, nil
}

func (s *Seeder) ensureCommittee(ctx context.Context, committee domain.Committee) (bool, error) {
	_, err := s.store.Committees().GetByName(ctx, committee.Name)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}
	if err := s.store.Committees().Create(ctx, &committee); err != nil {
		if errors.Is(err, repository.ErrDuplicateName) {
			return false, nil
		}
		return false, err
	}
	s.logger.Info("committee created", zap.String("name", committee.Name))
	return true, nil
}
