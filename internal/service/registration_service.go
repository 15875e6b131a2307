package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/kmun/registration-service/internal/config"
	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/identifier"
	"github.com/kmun/registration-service/internal/observability"
	"github.com/kmun/registration-service/internal/repository"
	"github.com/kmun/registration-service/internal/storage"
	"github.com/kmun/registration-service/pkg/util/errorutil"
)

// PasswordHasher hashes and verifies account credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hashed, plain string) error
}

// Outcome tells whether a resolution step created or updated a record.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
)

// SubmissionInput is one inbound registration form.
type SubmissionInput struct {
	FullName              string                                   `json:"fullName" validate:"required,max=200"`
	Email                 string                                   `json:"email" validate:"required,email,max=254"`
	Phone                 string                                   `json:"phone" validate:"required,max=32"`
	Gender                string                                   `json:"gender" validate:"required,max=32"`
	IsKumaraguru          bool                                     `json:"isKumaraguru"`
	RollNumber            string                                   `json:"rollNumber" validate:"max=64"`
	InstitutionType       string                                   `json:"institutionType" validate:"max=64"`
	Institution           string                                   `json:"institution" validate:"max=200"`
	City                  string                                   `json:"cityOfInstitution" validate:"max=100"`
	State                 string                                   `json:"stateOfInstitution" validate:"max=100"`
	Grade                 string                                   `json:"grade" validate:"max=64"`
	TotalMUNs             int                                      `json:"totalMuns" validate:"gte=0"`
	RequiresAccommodation bool                                     `json:"requiresAccommodation"`
	Preferences           [domain.MaxPreferences]domain.Preference `json:"-"`
	IDDocument            string                                   `json:"idDocument" validate:"required"`
	Resume                *string                                  `json:"munResume"`
}

func (in *SubmissionInput) normalize() {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = normalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Gender = strings.TrimSpace(in.Gender)
	in.RollNumber = strings.TrimSpace(in.RollNumber)
	in.InstitutionType = strings.TrimSpace(in.InstitutionType)
	in.Institution = strings.TrimSpace(in.Institution)
	in.City = strings.TrimSpace(in.City)
	in.State = strings.TrimSpace(in.State)
	in.Grade = strings.TrimSpace(in.Grade)
	in.IDDocument = strings.TrimSpace(in.IDDocument)
	if in.Resume != nil {
		resume := strings.TrimSpace(*in.Resume)
		if resume == "" {
			in.Resume = nil
		} else {
			in.Resume = &resume
		}
	}
	for i := range in.Preferences {
		in.Preferences[i].Committee = strings.TrimSpace(in.Preferences[i].Committee)
		in.Preferences[i].Portfolio = strings.TrimSpace(in.Preferences[i].Portfolio)
	}
}

func (in *SubmissionInput) validate() error {
	extra := map[string]any{}
	if in.Preferences[0].Committee == "" {
		extra["committeePreference1"] = "is required"
	}
	return validateInput("registration is incomplete", in, extra)
}

// SplitFullName splits on the first run of whitespace. Everything after that
// run, including further spaces, becomes the last name.
func SplitFullName(fullName string) (first, last string) {
	fullName = strings.TrimSpace(fullName)
	idx := strings.IndexFunc(fullName, unicode.IsSpace)
	if idx < 0 {
		return fullName, ""
	}
	return fullName[:idx], strings.TrimLeftFunc(fullName[idx:], unicode.IsSpace)
}

// SubmitResult is the account and registration a submission resolved to.
type SubmitResult struct {
	Account             *domain.Account
	Registration        *domain.Registration
	AccountOutcome      Outcome
	RegistrationOutcome Outcome
	// InitialCredential is set only when the account was created.
	InitialCredential string
	// Notifications are owed to the submitter and still have to be enqueued.
	Notifications []domain.Notification
}

// IsNewAccount reports whether this submission created the account.
func (r *SubmitResult) IsNewAccount() bool {
	return r.AccountOutcome == OutcomeCreated
}

// RegistrationService owns the registration workflow and its administration.
type RegistrationService struct {
	store     repository.Store
	allocator *identifier.Allocator
	hasher    PasswordHasher
	artifacts storage.ArtifactStore
	metrics   *observability.Metrics
	logger    *zap.Logger
	cfg       config.RegistrationConfig
	now       func() time.Time
}

// RegistrationDependencies bundles collaborators for the registration service.
type RegistrationDependencies struct {
	Store     repository.Store
	Allocator *identifier.Allocator
	Hasher    PasswordHasher
	Artifacts storage.ArtifactStore
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// NewRegistrationService builds the service.
func NewRegistrationService(cfg config.RegistrationConfig, deps RegistrationDependencies) *RegistrationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSubmitAttempts <= 0 {
		cfg.MaxSubmitAttempts = 5
	}
	return &RegistrationService{
		store:     deps.Store,
		allocator: deps.Allocator,
		hasher:    deps.Hasher,
		artifacts: deps.Artifacts,
		metrics:   deps.Metrics,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// initialCredential is derived at most once per Submit call, however many
// times the transaction is retried.
type initialCredential struct {
	plain string
	hash  string
}

// Submit resolves the input into exactly one account and one registration.
// Nothing is persisted unless both writes commit.
func (s *RegistrationService) Submit(ctx context.Context, in SubmissionInput) (*SubmitResult, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	cred := &initialCredential{}
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxSubmitAttempts; attempt++ {
		result, err := s.submitOnce(ctx, in, cred)
		if err == nil {
			result.Notifications = s.submissionNotifications(result)
			s.metrics.RecordSubmission(string(result.AccountOutcome), string(result.RegistrationOutcome))
			return result, nil
		}
		if !isUniqueRace(err) {
			return nil, s.submitError(err)
		}
		s.logger.Debug("registration write raced; retrying",
			zap.Int("attempt", attempt), zap.String("email", in.Email), zap.Error(err))
		lastErr = err
	}

	if errors.Is(lastErr, repository.ErrDuplicateExternalID) {
		s.metrics.RecordAllocationFailure()
		return nil, errorutil.NewAllocationError(lastErr)
	}
	return nil, errorutil.NewStorageError(lastErr)
}

func (s *RegistrationService) submitOnce(ctx context.Context, in SubmissionInput, cred *initialCredential) (*SubmitResult, error) {
	var result *SubmitResult
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		account, accountOutcome, err := s.resolveAccount(ctx, tx, in, cred)
		if err != nil {
			return err
		}
		reg, regOutcome, err := s.resolveRegistration(ctx, tx, account, in)
		if err != nil {
			return err
		}
		result = &SubmitResult{
			Account:             account,
			Registration:        reg,
			AccountOutcome:      accountOutcome,
			RegistrationOutcome: regOutcome,
		}
		if accountOutcome == OutcomeCreated {
			result.InitialCredential = cred.plain
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *RegistrationService) resolveAccount(ctx context.Context, tx repository.Store, in SubmissionInput, cred *initialCredential) (*domain.Account, Outcome, error) {
	first, last := SplitFullName(in.FullName)

	account, err := tx.Accounts().GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		account.FirstName = first
		account.LastName = last
		account.Phone = in.Phone
		if err := tx.Accounts().Update(ctx, account); err != nil {
			return nil, "", err
		}
		return account, OutcomeUpdated, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, "", err
	}

	externalID, err := s.allocator.Bind(tx.Accounts()).Allocate(ctx)
	if err != nil {
		return nil, "", err
	}
	if err := s.deriveCredential(in.Phone, cred); err != nil {
		return nil, "", err
	}

	account = &domain.Account{
		ExternalID:   externalID,
		FirstName:    first,
		LastName:     last,
		Email:        in.Email,
		Phone:        in.Phone,
		Institution:  in.Institution,
		Grade:        in.Grade,
		PasswordHash: cred.hash,
		Role:         domain.RoleParticipant,
		Active:       true,
	}
	if err := tx.Accounts().Create(ctx, account); err != nil {
		return nil, "", err
	}
	return account, OutcomeCreated, nil
}

func (s *RegistrationService) resolveRegistration(ctx context.Context, tx repository.Store, account *domain.Account, in SubmissionInput) (*domain.Registration, Outcome, error) {
	reg, err := tx.Registrations().GetByAccountID(ctx, account.ID)
	outcome := OutcomeUpdated
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		reg = &domain.Registration{AccountID: account.ID}
		outcome = OutcomeCreated
	case err != nil:
		return nil, "", err
	}

	reg.FirstName = account.FirstName
	reg.LastName = account.LastName
	reg.Email = in.Email
	reg.Phone = in.Phone
	reg.Gender = in.Gender
	reg.IsKumaraguru = in.IsKumaraguru
	reg.RollNumber = in.RollNumber
	reg.InstitutionType = in.InstitutionType
	reg.Institution = in.Institution
	reg.City = in.City
	reg.State = in.State
	reg.Grade = in.Grade
	reg.TotalMUNs = in.TotalMUNs
	reg.RequiresAccommodation = in.RequiresAccommodation
	reg.Preferences = in.Preferences
	reg.IDDocument = in.IDDocument
	reg.Resume = in.Resume
	reg.Status = domain.RegistrationStatusPending
	reg.AllocatedCommittee = nil
	reg.AllocatedPortfolio = nil
	reg.SubmittedAt = s.now()

	if outcome == OutcomeCreated {
		err = tx.Registrations().Create(ctx, reg)
	} else {
		err = tx.Registrations().Update(ctx, reg)
	}
	if err != nil {
		return nil, "", err
	}
	return reg, outcome, nil
}

func (s *RegistrationService) deriveCredential(phone string, cred *initialCredential) error {
	if cred.hash != "" {
		return nil
	}
	plain := s.credentialFor(phone)
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return fmt.Errorf("hash initial credential: %w", err)
	}
	cred.plain, cred.hash = plain, hash
	return nil
}

func (s *RegistrationService) credentialFor(phone string) string {
	if s.cfg.CredentialMode == config.CredentialModeRandom {
		return rand.Text()
	}
	return s.cfg.CredentialPrefix + digitsOnly(phone) + s.cfg.CredentialSuffix
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (s *RegistrationService) submissionNotifications(result *SubmitResult) []domain.Notification {
	account := result.Account
	var out []domain.Notification
	if result.IsNewAccount() {
		out = append(out, newNotification(domain.NotificationCredentialDisclosure, account.Email, map[string]string{
			"name":       account.FullName(),
			"externalId": account.ExternalID,
			"email":      account.Email,
			"password":   result.InitialCredential,
		}))
	}
	out = append(out, newNotification(domain.NotificationRegistrationReceived, account.Email, map[string]string{
		"name":       account.FullName(),
		"externalId": account.ExternalID,
		"committee":  result.Registration.Preferences[0].Committee,
	}))
	return out
}

func (s *RegistrationService) submitError(err error) error {
	var domainErr *errorutil.DomainError
	if errors.As(err, &domainErr) {
		if errors.Is(err, errorutil.ErrAllocation) {
			s.metrics.RecordAllocationFailure()
		}
		return err
	}
	return errorutil.NewStorageError(err)
}

func isUniqueRace(err error) bool {
	return errors.Is(err, repository.ErrDuplicateEmail) ||
		errors.Is(err, repository.ErrDuplicateExternalID) ||
		errors.Is(err, repository.ErrDuplicateRegistration)
}

func newNotification(kind domain.NotificationKind, to string, data map[string]string) domain.Notification {
	return domain.Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		To:        to,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
}
