//go:build integration

package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/kmun/registration-service/internal/repository"
	"github.com/kmun/registration-service/internal/testutil/containers"
)

type RegistrationPostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    repository.Store
	svc      *RegistrationService
	ctx      context.Context
}

func TestRegistrationPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RegistrationPostgresSuite))
}

func (s *RegistrationPostgresSuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = repository.NewPostgresStore(s.postgres.Pool)

	cfg := testRegistrationConfig()
	cfg.MaxSubmitAttempts = 20
	s.svc = NewRegistrationService(cfg, RegistrationDependencies{
		Store:     s.store,
		Allocator: testAllocator(s.store),
		Hasher:    testHasher(),
	})
}

func (s *RegistrationPostgresSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "registrations", "accounts"))
}

func (s *RegistrationPostgresSuite) TestConcurrentDistinctSubmissionsGetUniqueIDs() {
	const n = 6
	ids := make([]string, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := ashaInput()
			in.Email = fmt.Sprintf("delegate%d@example.com", i)
			res, err := s.svc.Submit(s.ctx, in)
			errs[i] = err
			if err == nil {
				ids[i] = res.Account.ExternalID
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		s.Require().NoError(errs[i])
		s.False(seen[ids[i]], "duplicate id %s", ids[i])
		seen[ids[i]] = true
	}
	for i := 1; i <= n; i++ {
		s.True(seen[fmt.Sprintf("KMUN25%03d", i)], "missing KMUN25%03d", i)
	}
}

func (s *RegistrationPostgresSuite) TestConcurrentSameEmailConvergesOnOneAccount() {
	const n = 4
	results := make([]*SubmitResult, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.svc.Submit(s.ctx, ashaInput())
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < n; i++ {
		s.Require().NoError(errs[i])
		s.Equal("KMUN25001", results[i].Account.ExternalID)
		if results[i].IsNewAccount() {
			created++
		}
	}
	s.Equal(1, created)

	var accounts, registrations int
	s.Require().NoError(s.postgres.Pool.QueryRow(s.ctx, "SELECT count(*) FROM accounts").Scan(&accounts))
	s.Require().NoError(s.postgres.Pool.QueryRow(s.ctx, "SELECT count(*) FROM registrations").Scan(&registrations))
	s.Equal(1, accounts)
	s.Equal(1, registrations)
}
