// Package memory provides an in-process repository.Store for tests and local
// development. Transactions are serialized and applied copy-on-commit.
package memory

import (
	"context"
	"sync"

	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/repository"
)

type state struct {
	accounts      map[string]domain.Account
	registrations map[string]domain.Registration
	committees    map[string]domain.Committee
	portfolios    map[string]domain.Portfolio
}

func newState() *state {
	return &state{
		accounts:      map[string]domain.Account{},
		registrations: map[string]domain.Registration{},
		committees:    map[string]domain.Committee{},
		portfolios:    map[string]domain.Portfolio{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.registrations {
		c.registrations[k] = v
	}
	for k, v := range s.committees {
		c.committees[k] = v
	}
	for k, v := range s.portfolios {
		c.portfolios[k] = v
	}
	return c
}

// Store is an in-memory repository.Store.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *state
	inTx bool
}

// New returns an empty store.
func New() *Store {
	return &Store{data: newState()}
}

func (s *Store) Accounts() repository.AccountRepository {
	return &accountRepo{s: s}
}

func (s *Store) Registrations() repository.RegistrationRepository {
	return &registrationRepo{s: s}
}

func (s *Store) Committees() repository.CommitteeRepository {
	return &committeeRepo{s: s}
}

// WithinTx runs fn against a private copy of the data and publishes it only
// when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	tx := &Store{data: s.data.clone(), inTx: true}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = tx.data
	s.mu.Unlock()
	return nil
}

// Counts reports how many accounts and registrations are stored.
func (s *Store) Counts() (accounts, registrations int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.accounts), len(s.data.registrations)
}

// write serializes a mutation with open transactions.
func (s *Store) write(fn func(d *state) error) error {
	if !s.inTx {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *Store) read(fn func(d *state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}
