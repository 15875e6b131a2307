package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/repository"
)

type committeeRepo struct {
	s *Store
}

func (r *committeeRepo) Create(_ context.Context, c *domain.Committee) error {
	return r.s.write(func(d *state) error {
		for _, existing := range d.committees {
			if existing.Name == c.Name {
				return repository.ErrDuplicateName
			}
		}
		now := time.Now().UTC()
		c.ID = uuid.NewString()
		c.CreatedAt = now
		c.UpdatedAt = now
		stored := *c
		stored.Portfolios = nil
		d.committees[c.ID] = stored
		return nil
	})
}

func (r *committeeRepo) Update(_ context.Context, c *domain.Committee) error {
	return r.s.write(func(d *state) error {
		current, ok := d.committees[c.ID]
		if !ok {
			return pgx.ErrNoRows
		}
		for id, existing := range d.committees {
			if id != c.ID && existing.Name == c.Name {
				return repository.ErrDuplicateName
			}
		}
		updated := *c
		updated.Portfolios = nil
		updated.CreatedAt = current.CreatedAt
		updated.UpdatedAt = time.Now().UTC()
		d.committees[c.ID] = updated
		c.UpdatedAt = updated.UpdatedAt
		return nil
	})
}

func (r *committeeRepo) GetByID(_ context.Context, id string) (*domain.Committee, error) {
	var out *domain.Committee
	err := r.s.read(func(d *state) error {
		c, ok := d.committees[id]
		if !ok {
			return pgx.ErrNoRows
		}
		c.Portfolios = portfoliosOf(d, c.ID)
		out = &c
		return nil
	})
	return out, err
}

func (r *committeeRepo) GetByName(_ context.Context, name string) (*domain.Committee, error) {
	var out *domain.Committee
	err := r.s.read(func(d *state) error {
		for _, c := range d.committees {
			if c.Name == name {
				found := c
				out = &found
				return nil
			}
		}
		return pgx.ErrNoRows
	})
	return out, err
}

func (r *committeeRepo) List(_ context.Context, activeOnly bool) ([]domain.Committee, error) {
	var out []domain.Committee
	err := r.s.read(func(d *state) error {
		for _, c := range d.committees {
			if activeOnly && !c.IsActive {
				continue
			}
			c.Portfolios = portfoliosOf(d, c.ID)
			out = append(out, c)
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

// Delete removes the committee and its portfolios.
func (r *committeeRepo) Delete(_ context.Context, id string) error {
	return r.s.write(func(d *state) error {
		if _, ok := d.committees[id]; !ok {
			return pgx.ErrNoRows
		}
		delete(d.committees, id)
		for pid, p := range d.portfolios {
			if p.CommitteeID == id {
				delete(d.portfolios, pid)
			}
		}
		return nil
	})
}

func (r *committeeRepo) AddPortfolio(_ context.Context, p *domain.Portfolio) error {
	return r.s.write(func(d *state) error {
		if _, ok := d.committees[p.CommitteeID]; !ok {
			return pgx.ErrNoRows
		}
		for _, existing := range d.portfolios {
			if existing.CommitteeID == p.CommitteeID && existing.Name == p.Name {
				return repository.ErrDuplicateName
			}
		}
		p.ID = uuid.NewString()
		p.CreatedAt = time.Now().UTC()
		d.portfolios[p.ID] = *p
		return nil
	})
}

func (r *committeeRepo) DeletePortfolio(_ context.Context, committeeID, portfolioID string) error {
	return r.s.write(func(d *state) error {
		p, ok := d.portfolios[portfolioID]
		if !ok || p.CommitteeID != committeeID {
			return pgx.ErrNoRows
		}
		delete(d.portfolios, portfolioID)
		return nil
	})
}

func (r *committeeRepo) CountPortfolios(_ context.Context, committeeID string) (int, error) {
	n := 0
	err := r.s.read(func(d *state) error {
		n = len(portfoliosOf(d, committeeID))
		return nil
	})
	return n, err
}

func portfoliosOf(d *state, committeeID string) []domain.Portfolio {
	var out []domain.Portfolio
	for _, p := range d.portfolios {
		if p.CommitteeID == committeeID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
