package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kmun/registration-service/internal/auth"
	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/repository"
	"github.com/kmun/registration-service/pkg/util/errorutil"
)

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Account   *domain.Account
	Token     string
	ExpiresAt time.Time
}

// AuthService handles login.
type AuthService struct {
	accounts repository.AccountRepository
	hasher   PasswordHasher
	tokenMgr *auth.TokenManager
	now      func() time.Time
}

// AuthDependencies encapsulates requirements for the auth service.
type AuthDependencies struct {
	Accounts     repository.AccountRepository
	Hasher       PasswordHasher
	TokenManager *auth.TokenManager
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	return &AuthService{
		accounts: deps.Accounts,
		hasher:   deps.Hasher,
		tokenMgr: deps.TokenManager,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Login authenticates by email and password and issues a token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, errorutil.NewValidationError("email and password required", nil)
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errorutil.NewUnauthorized("invalid credentials")
		}
		return nil, errorutil.NewStorageError(err)
	}
	if err := s.hasher.Compare(account.PasswordHash, password); err != nil {
		return nil, errorutil.NewUnauthorized("invalid credentials")
	}
	if !account.Active {
		return nil, errorutil.NewUnauthorized("account inactive")
	}

	token, exp, err := s.tokenMgr.GenerateToken(account)
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}

	now := s.now()
	if err := s.accounts.TouchLastLogin(ctx, account.ID, now); err != nil {
		return nil, errorutil.NewStorageError(err)
	}
	account.LastLoginAt = &now
	return &LoginResult{Account: account, Token: token, ExpiresAt: exp}, nil
}
