package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/repository"
)

type accountRepo struct {
	s *Store
}

func (r *accountRepo) Create(_ context.Context, account *domain.Account) error {
	return r.s.write(func(d *state) error {
		for _, existing := range d.accounts {
			if existing.Email == account.Email {
				return repository.ErrDuplicateEmail
			}
			if existing.ExternalID == account.ExternalID {
				return repository.ErrDuplicateExternalID
			}
		}
		now := time.Now().UTC()
		account.ID = uuid.NewString()
		account.CreatedAt = now
		account.UpdatedAt = now
		d.accounts[account.ID] = *account
		return nil
	})
}

func (r *accountRepo) Update(_ context.Context, account *domain.Account) error {
	return r.s.write(func(d *state) error {
		current, ok := d.accounts[account.ID]
		if !ok {
			return pgx.ErrNoRows
		}
		for id, existing := range d.accounts {
			if id != account.ID && existing.Email == account.Email {
				return repository.ErrDuplicateEmail
			}
		}
		updated := *account
		updated.ExternalID = current.ExternalID
		updated.CreatedAt = current.CreatedAt
		updated.LastLoginAt = current.LastLoginAt
		updated.UpdatedAt = time.Now().UTC()
		d.accounts[account.ID] = updated
		account.UpdatedAt = updated.UpdatedAt
		return nil
	})
}

func (r *accountRepo) GetByID(_ context.Context, id string) (*domain.Account, error) {
	var out *domain.Account
	err := r.s.read(func(d *state) error {
		account, ok := d.accounts[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = &account
		return nil
	})
	return out, err
}

func (r *accountRepo) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	var out *domain.Account
	err := r.s.read(func(d *state) error {
		for _, account := range d.accounts {
			if account.Email == email {
				a := account
				out = &a
				return nil
			}
		}
		return pgx.ErrNoRows
	})
	return out, err
}

func (r *accountRepo) List(_ context.Context, filter repository.AccountFilter) ([]domain.Account, error) {
	var out []domain.Account
	err := r.s.read(func(d *state) error {
		for _, account := range d.accounts {
			if filter.Role != nil && account.Role != *filter.Role {
				continue
			}
			if filter.Active != nil && account.Active != *filter.Active {
				continue
			}
			out = append(out, account)
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ExternalID > out[j].ExternalID
	})
	return paginate(out, filter.Limit, filter.Offset), err
}

// Delete removes the account and, like the foreign key cascade, its registration.
func (r *accountRepo) Delete(_ context.Context, id string) error {
	return r.s.write(func(d *state) error {
		if _, ok := d.accounts[id]; !ok {
			return pgx.ErrNoRows
		}
		delete(d.accounts, id)
		for regID, reg := range d.registrations {
			if reg.AccountID == id {
				delete(d.registrations, regID)
			}
		}
		return nil
	})
}

func (r *accountRepo) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	return r.s.write(func(d *state) error {
		account, ok := d.accounts[id]
		if !ok {
			return pgx.ErrNoRows
		}
		account.LastLoginAt = &at
		d.accounts[id] = account
		return nil
	})
}

func (r *accountRepo) LatestExternalID(_ context.Context, prefix string) (string, error) {
	latest := ""
	err := r.s.read(func(d *state) error {
		for _, account := range d.accounts {
			suffix, ok := strings.CutPrefix(account.ExternalID, prefix)
			if !ok || !allDigits(suffix) {
				continue
			}
			if len(account.ExternalID) > len(latest) ||
				(len(account.ExternalID) == len(latest) && account.ExternalID > latest) {
				latest = account.ExternalID
			}
		}
		return nil
	})
	return latest, err
}

func (r *accountRepo) ExternalIDExists(_ context.Context, externalID string) (bool, error) {
	exists := false
	err := r.s.read(func(d *state) error {
		for _, account := range d.accounts {
			if account.ExternalID == externalID {
				exists = true
				return nil
			}
		}
		return nil
	})
	return exists, err
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func paginate[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
