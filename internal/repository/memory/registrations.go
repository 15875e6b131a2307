package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/repository"
)

type registrationRepo struct {
	s *Store
}

func (r *registrationRepo) Create(_ context.Context, reg *domain.Registration) error {
	return r.s.write(func(d *state) error {
		if _, ok := d.accounts[reg.AccountID]; !ok {
			return pgx.ErrNoRows
		}
		for _, existing := range d.registrations {
			if existing.AccountID == reg.AccountID {
				return repository.ErrDuplicateRegistration
			}
		}
		now := time.Now().UTC()
		reg.ID = uuid.NewString()
		reg.SubmittedAt = now
		reg.UpdatedAt = now
		d.registrations[reg.ID] = *reg
		return nil
	})
}

func (r *registrationRepo) Update(_ context.Context, reg *domain.Registration) error {
	return r.s.write(func(d *state) error {
		current, ok := d.registrations[reg.ID]
		if !ok {
			return pgx.ErrNoRows
		}
		updated := *reg
		updated.AccountID = current.AccountID
		updated.UpdatedAt = time.Now().UTC()
		d.registrations[reg.ID] = updated
		reg.UpdatedAt = updated.UpdatedAt
		return nil
	})
}

func (r *registrationRepo) GetByID(_ context.Context, id string) (*domain.Registration, error) {
	var out *domain.Registration
	err := r.s.read(func(d *state) error {
		reg, ok := d.registrations[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = &reg
		return nil
	})
	return out, err
}

func (r *registrationRepo) GetByAccountID(_ context.Context, accountID string) (*domain.Registration, error) {
	var out *domain.Registration
	err := r.s.read(func(d *state) error {
		for _, reg := range d.registrations {
			if reg.AccountID == accountID {
				found := reg
				out = &found
				return nil
			}
		}
		return pgx.ErrNoRows
	})
	return out, err
}

func (r *registrationRepo) List(_ context.Context, filter repository.RegistrationFilter) ([]domain.Registration, int, error) {
	term := strings.ToLower(strings.TrimSpace(filter.Search))
	var out []domain.Registration
	err := r.s.read(func(d *state) error {
		for _, reg := range d.registrations {
			if filter.Status != nil && reg.Status != *filter.Status {
				continue
			}
			if term != "" && !matchesSearch(reg, term) {
				continue
			}
			out = append(out, reg)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	less := func(a, b domain.Registration) bool { return a.SubmittedAt.Before(b.SubmittedAt) }
	switch filter.SortBy {
	case "firstName":
		less = func(a, b domain.Registration) bool { return a.FirstName < b.FirstName }
	case "lastName":
		less = func(a, b domain.Registration) bool { return a.LastName < b.LastName }
	case "institution":
		less = func(a, b domain.Registration) bool { return a.Institution < b.Institution }
	case "status":
		less = func(a, b domain.Registration) bool { return a.Status < b.Status }
	}
	asc := strings.EqualFold(filter.SortOrder, "asc")
	sort.SliceStable(out, func(i, j int) bool {
		if asc {
			return less(out[i], out[j])
		}
		return less(out[j], out[i])
	})
	return paginate(out, filter.Limit, filter.Offset), len(out), nil
}

func matchesSearch(reg domain.Registration, term string) bool {
	for _, field := range []string{reg.FirstName, reg.LastName, reg.Email, reg.Institution} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func (r *registrationRepo) ListByCommittees(_ context.Context, committees []string) ([]domain.Registration, error) {
	var out []domain.Registration
	err := r.s.read(func(d *state) error {
		for _, reg := range d.registrations {
			if len(committees) == 0 || slices.ContainsFunc(committees, reg.PrefersCommittee) {
				out = append(out, reg)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, err
}

func (r *registrationRepo) Delete(_ context.Context, id string) error {
	return r.s.write(func(d *state) error {
		if _, ok := d.registrations[id]; !ok {
			return pgx.ErrNoRows
		}
		delete(d.registrations, id)
		return nil
	})
}

func (r *registrationRepo) CountByStatus(_ context.Context) (map[domain.RegistrationStatus]int, error) {
	counts := map[domain.RegistrationStatus]int{}
	err := r.s.read(func(d *state) error {
		for _, reg := range d.registrations {
			counts[reg.Status]++
		}
		return nil
	})
	return counts, err
}

func (r *registrationRepo) CountAllocated(_ context.Context) (int, error) {
	n := 0
	err := r.s.read(func(d *state) error {
		for _, reg := range d.registrations {
			if reg.IsAllocated() {
				n++
			}
		}
		return nil
	})
	return n, err
}
