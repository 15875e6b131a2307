package service

import (
	"context"
	"errors"
	"strings"

	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/repository"
	"github.com/kmun/registration-service/pkg/util/errorutil"
)

const defaultCommitteeType = "GENERAL"

// CommitteeInput creates or replaces a committee's attributes.
type CommitteeInput struct {
	Name            string  `json:"name" validate:"required,max=100"`
	Description     string  `json:"description" validate:"max=2000"`
	Type            string  `json:"type" validate:"max=32"`
	InstitutionType string  `json:"institutionType" validate:"max=64"`
	Capacity        int     `json:"capacity" validate:"gte=0"`
	Logo            *string `json:"logo"`
	IsActive        *bool   `json:"isActive"`
}

// PortfolioInput adds a seat to a committee.
type PortfolioInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	IsAvailable *bool  `json:"isAvailable"`
}

// CommitteeService manages committees and their portfolios.
type CommitteeService struct {
	store repository.Store
}

// NewCommitteeService builds the service.
func NewCommitteeService(store repository.Store) *CommitteeService {
	return &CommitteeService{store: store}
}

// List returns committees with their portfolios.
func (s *CommitteeService) List(ctx context.Context, activeOnly bool) ([]domain.Committee, error) {
	committees, err := s.store.Committees().List(ctx, activeOnly)
	if err != nil {
		return nil, errorutil.NewStorageError(err)
	}
	return committees, nil
}

// Get loads a committee with its portfolios.
func (s *CommitteeService) Get(ctx context.Context, id string) (*domain.Committee, error) {
	c, err := s.store.Committees().GetByID(ctx, id)
	if err != nil {
		return nil, committeeLookupError(err, id)
	}
	return c, nil
}

// Create adds a committee. Names are unique.
func (s *CommitteeService) Create(ctx context.Context, in CommitteeInput) (*domain.Committee, error) {
	in.normalize()
	if err := validateInput("invalid committee", in, nil); err != nil {
		return nil, err
	}
	c := &domain.Committee{IsActive: true}
	in.apply(c)
	if err := s.store.Committees().Create(ctx, c); err != nil {
		return nil, committeeWriteError(err, c.Name)
	}
	return c, nil
}

// Update replaces a committee's attributes.
func (s *CommitteeService) Update(ctx context.Context, id string, in CommitteeInput) (*domain.Committee, error) {
	in.normalize()
	if err := validateInput("invalid committee", in, nil); err != nil {
		return nil, err
	}
	c, err := s.store.Committees().GetByID(ctx, id)
	if err != nil {
		return nil, committeeLookupError(err, id)
	}
	in.apply(c)
	if err := s.store.Committees().Update(ctx, c); err != nil {
		if repository.IsNotFound(err) {
			return nil, committeeLookupError(err, id)
		}
		return nil, committeeWriteError(err, c.Name)
	}
	return c, nil
}

// Delete removes a committee and its portfolios.
func (s *CommitteeService) Delete(ctx context.Context, id string) error {
	if err := s.store.Committees().Delete(ctx, id); err != nil {
		return committeeLookupError(err, id)
	}
	return nil
}

// AddPortfolio adds a seat and sets capacity to the number of seats.
func (s *CommitteeService) AddPortfolio(ctx context.Context, committeeID string, in PortfolioInput) (*domain.Committee, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateInput("invalid portfolio", in, nil); err != nil {
		return nil, err
	}
	available := true
	if in.IsAvailable != nil {
		available = *in.IsAvailable
	}

	var out *domain.Committee
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Committees().GetByID(ctx, committeeID); err != nil {
			return committeeLookupError(err, committeeID)
		}
		p := &domain.Portfolio{CommitteeID: committeeID, Name: in.Name, IsAvailable: available}
		if err := tx.Committees().AddPortfolio(ctx, p); err != nil {
			if errors.Is(err, repository.ErrDuplicateName) {
				return errorutil.NewConflict("portfolio already exists", map[string]any{"name": in.Name})
			}
			return errorutil.NewStorageError(err)
		}
		c, err := recomputeCapacity(ctx, tx, committeeID)
		out = c
		return err
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return out, nil
}

// DeletePortfolio removes a seat and sets capacity to the remaining count.
func (s *CommitteeService) DeletePortfolio(ctx context.Context, committeeID, portfolioID string) (*domain.Committee, error) {
	var out *domain.Committee
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Committees().DeletePortfolio(ctx, committeeID, portfolioID); err != nil {
			if repository.IsNotFound(err) {
				return errorutil.NewNotFound("portfolio", map[string]any{"id": portfolioID})
			}
			return errorutil.NewStorageError(err)
		}
		c, err := recomputeCapacity(ctx, tx, committeeID)
		out = c
		return err
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return out, nil
}

func recomputeCapacity(ctx context.Context, tx repository.Store, committeeID string) (*domain.Committee, error) {
	n, err := tx.Committees().CountPortfolios(ctx, committeeID)
	if err != nil {
		return nil, errorutil.NewStorageError(err)
	}
	c, err := tx.Committees().GetByID(ctx, committeeID)
	if err != nil {
		return nil, committeeLookupError(err, committeeID)
	}
	c.Capacity = n
	if err := tx.Committees().Update(ctx, c); err != nil {
		return nil, errorutil.NewStorageError(err)
	}
	return c, nil
}

func (in *CommitteeInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Type = strings.ToUpper(strings.TrimSpace(in.Type))
	if in.Type == "" {
		in.Type = defaultCommitteeType
	}
	in.InstitutionType = strings.TrimSpace(in.InstitutionType)
	in.Logo = trimmedOrNil(in.Logo)
}

func (in *CommitteeInput) apply(c *domain.Committee) {
	c.Name = in.Name
	c.Description = in.Description
	c.Type = in.Type
	c.InstitutionType = in.InstitutionType
	c.Capacity = in.Capacity
	c.Logo = in.Logo
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
}

func committeeLookupError(err error, id string) error {
	if repository.IsNotFound(err) {
		return errorutil.NewNotFound("committee", map[string]any{"id": id})
	}
	return mapStoreError(err)
}

func committeeWriteError(err error, name string) error {
	if errors.Is(err, repository.ErrDuplicateName) {
		return errorutil.NewConflict("committee already exists", map[string]any{"name": name})
	}
	return mapStoreError(err)
}
