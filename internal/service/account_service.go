package service

import (
	"context"
	"errors"
	"strings"

	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/identifier"
	"github.com/kmun/registration-service/internal/repository"
	"github.com/kmun/registration-service/pkg/util/errorutil"
)

// maxCreateAttempts bounds retries when an issued external id is taken
// concurrently.
const maxCreateAttempts = 5

// CreateAccountInput is an admin request to add an account.
type CreateAccountInput struct {
	FirstName   string `json:"firstName" validate:"required,max=100"`
	LastName    string `json:"lastName" validate:"max=100"`
	Email       string `json:"email" validate:"required,email,max=254"`
	Phone       string `json:"phone" validate:"max=32"`
	Institution string `json:"institution" validate:"max=200"`
	Grade       string `json:"grade" validate:"max=64"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	Role        string `json:"role"`
}

// UpdateAccountInput carries optional profile changes.
type UpdateAccountInput struct {
	FirstName   *string `json:"firstName" validate:"omitempty,max=100"`
	LastName    *string `json:"lastName" validate:"omitempty,max=100"`
	Email       *string `json:"email" validate:"omitempty,email,max=254"`
	Phone       *string `json:"phone" validate:"omitempty,max=32"`
	Institution *string `json:"institution" validate:"omitempty,max=200"`
	Grade       *string `json:"grade" validate:"omitempty,max=64"`
	Role        *string `json:"role"`
	Active      *bool   `json:"isActive"`
	Password    *string `json:"password" validate:"omitempty,min=8,max=72"`
}

// PasswordChange replaces an account password. Current is verified when set.
type PasswordChange struct {
	Current string `json:"currentPassword"`
	New     string `json:"newPassword" validate:"required,min=8,max=72"`
}

// AccountQuery describes account listing filters.
type AccountQuery struct {
	Role   string
	Active *bool
	Page   int
	Limit  int
}

// AccountService administers accounts.
type AccountService struct {
	store     repository.Store
	allocator *identifier.Allocator
	hasher    PasswordHasher
}

// AccountDependencies bundles collaborators for the account service.
type AccountDependencies struct {
	Store     repository.Store
	Allocator *identifier.Allocator
	Hasher    PasswordHasher
}

// NewAccountService builds the service.
func NewAccountService(deps AccountDependencies) *AccountService {
	return &AccountService{store: deps.Store, allocator: deps.Allocator, hasher: deps.Hasher}
}

// Create adds an account with a freshly issued external id and returns the
// welcome notification owed to it.
func (s *AccountService) Create(ctx context.Context, in CreateAccountInput) (*domain.Account, []domain.Notification, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = normalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)

	role, roleErr := parseRole(in.Role, domain.RoleParticipant)
	extra := map[string]any{}
	if roleErr != nil {
		extra["role"] = roleErr.Error()
	}
	if err := validateInput("invalid account", in, extra); err != nil {
		return nil, nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, nil, errorutil.NewInternalError(err)
	}

	var account *domain.Account
	var lastErr error
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		err = s.store.WithinTx(ctx, func(tx repository.Store) error {
			externalID, err := s.allocator.Bind(tx.Accounts()).Allocate(ctx)
			if err != nil {
				return err
			}
			account = &domain.Account{
				ExternalID:   externalID,
				FirstName:    in.FirstName,
				LastName:     in.LastName,
				Email:        in.Email,
				Phone:        in.Phone,
				Institution:  strings.TrimSpace(in.Institution),
				Grade:        strings.TrimSpace(in.Grade),
				PasswordHash: hash,
				Role:         role,
				Active:       true,
			}
			return tx.Accounts().Create(ctx, account)
		})
		if err == nil {
			welcome := newNotification(domain.NotificationWelcome, account.Email, map[string]string{
				"name":       account.FullName(),
				"externalId": account.ExternalID,
				"email":      account.Email,
				"role":       string(account.Role),
			})
			return account, []domain.Notification{welcome}, nil
		}
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, nil, errorutil.NewConflict("email already registered", map[string]any{"email": in.Email})
		}
		if !errors.Is(err, repository.ErrDuplicateExternalID) {
			return nil, nil, mapStoreError(err)
		}
		lastErr = err
	}
	return nil, nil, errorutil.NewAllocationError(lastErr)
}

// List returns a page of accounts.
func (s *AccountService) List(ctx context.Context, q AccountQuery) ([]domain.Account, error) {
	filter := repository.AccountFilter{Active: q.Active}
	if q.Role != "" {
		role, err := parseRole(q.Role, "")
		if err != nil {
			return nil, errorutil.NewValidationError("invalid filter", map[string]any{"role": err.Error()})
		}
		filter.Role = &role
	}
	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	accounts, err := s.store.Accounts().List(ctx, filter)
	if err != nil {
		return nil, errorutil.NewStorageError(err)
	}
	return accounts, nil
}

// Get loads an account.
func (s *AccountService) Get(ctx context.Context, id string) (*domain.Account, error) {
	account, err := s.store.Accounts().GetByID(ctx, id)
	if err != nil {
		return nil, accountLookupError(err, id)
	}
	return account, nil
}

// Update applies the non-nil fields of in.
func (s *AccountService) Update(ctx context.Context, id string, in UpdateAccountInput) (*domain.Account, error) {
	extra := map[string]any{}
	var role domain.Role
	if in.Role != nil {
		r, err := parseRole(*in.Role, "")
		if err != nil {
			extra["role"] = err.Error()
		}
		role = r
	}
	if err := validateInput("invalid account", in, extra); err != nil {
		return nil, err
	}

	account, err := s.store.Accounts().GetByID(ctx, id)
	if err != nil {
		return nil, accountLookupError(err, id)
	}

	setTrimmed(&account.FirstName, in.FirstName)
	setTrimmed(&account.LastName, in.LastName)
	setTrimmed(&account.Phone, in.Phone)
	setTrimmed(&account.Institution, in.Institution)
	setTrimmed(&account.Grade, in.Grade)
	if in.Email != nil {
		account.Email = normalizeEmail(*in.Email)
	}
	if in.Role != nil {
		account.Role = role
	}
	if in.Active != nil {
		account.Active = *in.Active
	}
	if in.Password != nil {
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, errorutil.NewInternalError(err)
		}
		account.PasswordHash = hash
	}

	if err := s.store.Accounts().Update(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, errorutil.NewConflict("email already registered", map[string]any{"email": account.Email})
		}
		return nil, accountLookupError(err, id)
	}
	return account, nil
}

// ChangePassword replaces the password of an account.
func (s *AccountService) ChangePassword(ctx context.Context, id string, change PasswordChange) error {
	if err := validateInput("invalid password", change, nil); err != nil {
		return err
	}
	account, err := s.store.Accounts().GetByID(ctx, id)
	if err != nil {
		return accountLookupError(err, id)
	}
	if change.Current != "" {
		if err := s.hasher.Compare(account.PasswordHash, change.Current); err != nil {
			return errorutil.NewUnauthorized("invalid credentials")
		}
	}
	hash, err := s.hasher.Hash(change.New)
	if err != nil {
		return errorutil.NewInternalError(err)
	}
	account.PasswordHash = hash
	if err := s.store.Accounts().Update(ctx, account); err != nil {
		return accountLookupError(err, id)
	}
	return nil
}

// Delete removes an account and its registration.
func (s *AccountService) Delete(ctx context.Context, id string) error {
	if err := s.store.Accounts().Delete(ctx, id); err != nil {
		return accountLookupError(err, id)
	}
	return nil
}

func parseRole(raw string, fallback domain.Role) (domain.Role, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		if fallback == "" {
			return "", errors.New("role is required")
		}
		return fallback, nil
	}
	role := domain.Role(raw)
	if !role.Valid() {
		return "", errors.New("unknown role")
	}
	return role, nil
}

func accountLookupError(err error, id string) error {
	if repository.IsNotFound(err) {
		return errorutil.NewNotFound("account", map[string]any{"id": id})
	}
	return mapStoreError(err)
}

func setTrimmed(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}
