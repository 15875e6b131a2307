package service

import (
	"context"
	"io"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/kmun/registration-service/internal/auth"
	"github.com/kmun/registration-service/internal/config"
	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/identifier"
	"github.com/kmun/registration-service/internal/notify"
	"github.com/kmun/registration-service/internal/repository"
	"github.com/kmun/registration-service/internal/repository/memory"
)

func testHasher() *auth.BcryptHasher {
	return auth.NewBcryptHasher(bcrypt.MinCost)
}

func testAllocator(store repository.Store) *identifier.Allocator {
	return identifier.NewAllocator(identifier.Config{Prefix: "KMUN25", Width: 3}, store.Accounts())
}

func testRegistrationConfig() config.RegistrationConfig {
	return config.RegistrationConfig{
		IDPrefix:          "KMUN25",
		IDWidth:           3,
		MaxSubmitAttempts: 3,
		CredentialMode:    config.CredentialModePattern,
		CredentialPrefix:  "Iam",
		CredentialSuffix:  "!@#",
	}
}

func newTestRegistrationService(store repository.Store, artifacts *recordingArtifacts) *RegistrationService {
	deps := RegistrationDependencies{
		Store:     store,
		Allocator: testAllocator(store),
		Hasher:    testHasher(),
	}
	if artifacts != nil {
		deps.Artifacts = artifacts
	}
	return NewRegistrationService(testRegistrationConfig(), deps)
}

// faultyStore wraps a store, including the stores handed to transactions,
// and injects errors into selected operations.
type faultyStore struct {
	repository.Store
	faults *faults
}

type faults struct {
	createAccount      error
	createRegistration error
	latestExternalID   error
	getByID            error
	accountCreates     int
	mu                 sync.Mutex
}

func newFaultyStore(inner *memory.Store, f *faults) *faultyStore {
	return &faultyStore{Store: inner, faults: f}
}

func (s *faultyStore) Accounts() repository.AccountRepository {
	return &faultyAccounts{AccountRepository: s.Store.Accounts(), faults: s.faults}
}

func (s *faultyStore) Registrations() repository.RegistrationRepository {
	return &faultyRegistrations{RegistrationRepository: s.Store.Registrations(), faults: s.faults}
}

func (s *faultyStore) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.WithinTx(ctx, func(tx repository.Store) error {
		return fn(&faultyStore{Store: tx, faults: s.faults})
	})
}

type faultyAccounts struct {
	repository.AccountRepository
	faults *faults
}

func (a *faultyAccounts) Create(ctx context.Context, account *domain.Account) error {
	a.faults.mu.Lock()
	a.faults.accountCreates++
	err := a.faults.createAccount
	a.faults.mu.Unlock()
	if err != nil {
		return err
	}
	return a.AccountRepository.Create(ctx, account)
}

func (a *faultyAccounts) LatestExternalID(ctx context.Context, prefix string) (string, error) {
	if a.faults.latestExternalID != nil {
		return "", a.faults.latestExternalID
	}
	return a.AccountRepository.LatestExternalID(ctx, prefix)
}

func (a *faultyAccounts) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if a.faults.getByID != nil {
		return nil, a.faults.getByID
	}
	return a.AccountRepository.GetByID(ctx, id)
}

type faultyRegistrations struct {
	repository.RegistrationRepository
	faults *faults
}

func (r *faultyRegistrations) Create(ctx context.Context, reg *domain.Registration) error {
	if r.faults.createRegistration != nil {
		return r.faults.createRegistration
	}
	return r.RegistrationRepository.Create(ctx, reg)
}

func (r *faultyRegistrations) GetByID(ctx context.Context, id string) (*domain.Registration, error) {
	if r.faults.getByID != nil {
		return nil, r.faults.getByID
	}
	return r.RegistrationRepository.GetByID(ctx, id)
}

// recordingArtifacts remembers deleted references.
type recordingArtifacts struct {
	mu      sync.Mutex
	deleted []string
	failOn  string
}

func (a *recordingArtifacts) Save(_ context.Context, name, _ string, _ io.Reader) (string, error) {
	return "saved-" + name, nil
}

func (a *recordingArtifacts) Delete(_ context.Context, ref string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, ref)
	if ref == a.failOn {
		return io.ErrUnexpectedEOF
	}
	return nil
}

// recordingSender captures delivered messages.
type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func newTestNotificationService(queue notify.Queue, sender notify.Sender) *NotificationService {
	return NewNotificationService(config.NotificationConfig{SenderName: "Kumaraguru MUN 2025", DefaultProvider: "outlook"},
		NotificationDependencies{Queue: queue, Sender: sender})
}

func strPtr(s string) *string { return &s }
