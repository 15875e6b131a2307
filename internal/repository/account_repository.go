package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kmun/registration-service/internal/domain"
)

// AccountFilter defines query params for account listing.
type AccountFilter struct {
	Role   *domain.Role
	Active *bool
	Limit  int
	Offset int
}

// AccountRepository defines persistence access for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	Update(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	List(ctx context.Context, filter AccountFilter) ([]domain.Account, error)
	Delete(ctx context.Context, id string) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	LatestExternalID(ctx context.Context, prefix string) (string, error)
	ExternalIDExists(ctx context.Context, externalID string) (bool, error)
}

type accountRepository struct {
	db DBTX
}

// NewAccountRepository returns a Postgres-backed implementation.
func NewAccountRepository(db DBTX) AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, external_id, first_name, last_name, email, phone, institution, grade,
        password_hash, role, active_flag, last_login_at, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	if err := row.Scan(
		&account.ID,
		&account.ExternalID,
		&account.FirstName,
		&account.LastName,
		&account.Email,
		&account.Phone,
		&account.Institution,
		&account.Grade,
		&account.PasswordHash,
		&account.Role,
		&account.Active,
		&account.LastLoginAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	const query = `
        INSERT INTO accounts (external_id, first_name, last_name, email, phone, institution, grade,
            password_hash, role, active_flag)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		account.ExternalID,
		account.FirstName,
		account.LastName,
		account.Email,
		account.Phone,
		account.Institution,
		account.Grade,
		account.PasswordHash,
		account.Role,
		account.Active,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	return mapWriteError(err)
}

func (r *accountRepository) Update(ctx context.Context, account *domain.Account) error {
	const query = `
        UPDATE accounts SET first_name=$1, last_name=$2, email=$3, phone=$4, institution=$5, grade=$6,
            password_hash=$7, role=$8, active_flag=$9, updated_at=NOW()
        WHERE id=$10
        RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		account.FirstName,
		account.LastName,
		account.Email,
		account.Phone,
		account.Institution,
		account.Grade,
		account.PasswordHash,
		account.Role,
		account.Active,
		account.ID,
	).Scan(&account.UpdatedAt)
	return mapWriteError(err)
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id=$1`
	return scanAccount(r.db.QueryRow(ctx, query, id))
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email=$1`
	return scanAccount(r.db.QueryRow(ctx, query, email))
}

func (r *accountRepository) List(ctx context.Context, filter AccountFilter) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	args := []any{}
	clauses := []string{}

	if filter.Role != nil {
		args = append(args, *filter.Role)
		clauses = append(clauses, fmt.Sprintf("role=$%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("active_flag=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	limit, offset := clampPage(filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *account)
	}
	return result, rows.Err()
}

func (r *accountRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *accountRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE accounts SET last_login_at=$1 WHERE id=$2`, at, id)
	return err
}

// LatestExternalID orders by suffix length first so KMUN251000 sorts after KMUN25999.
func (r *accountRepository) LatestExternalID(ctx context.Context, prefix string) (string, error) {
	const query = `
        SELECT external_id FROM accounts
        WHERE external_id ~ $1
        ORDER BY length(external_id) DESC, external_id DESC
        LIMIT 1`

	pattern := "^" + regexp.QuoteMeta(prefix) + "[0-9]+$"
	var externalID string
	if err := r.db.QueryRow(ctx, query, pattern).Scan(&externalID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return externalID, nil
}

func (r *accountRepository) ExternalIDExists(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE external_id=$1)`, externalID).Scan(&exists)
	return exists, err
}
