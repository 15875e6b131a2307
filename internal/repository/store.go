package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Unique-constraint violations surfaced by repositories.
var (
	ErrDuplicateEmail        = errors.New("email already registered")
	ErrDuplicateExternalID   = errors.New("external id already issued")
	ErrDuplicateRegistration = errors.New("account already has a registration")
	ErrDuplicateName         = errors.New("name already in use")
	ErrDuplicate             = errors.New("duplicate record")
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store groups the repositories and opens units of work across them.
type Store interface {
	Accounts() AccountRepository
	Registrations() RegistrationRepository
	Committees() CommitteeRepository
	// WithinTx runs fn against a transaction-scoped Store. Either every write
	// made through it commits, or none does.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

type pgStore struct {
	pool *pgxpool.Pool
	db   DBTX
	inTx bool
}

// NewPostgresStore returns a Store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool, db: pool}
}

func (s *pgStore) Accounts() AccountRepository {
	return &accountRepository{db: s.db}
}

func (s *pgStore) Registrations() RegistrationRepository {
	return &registrationRepository{db: s.db}
}

func (s *pgStore) Committees() CommitteeRepository {
	return &committeeRepository{db: s.db}
}

func (s *pgStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if s.pool == nil {
		return errors.New("postgres pool not configured")
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgStore{pool: s.pool, db: tx, inTx: true})
	})
}

// SQLSTATE codes inspected by the repositories.
const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02"
)

// uniqueConstraints maps Postgres constraint names to repository sentinels.
var uniqueConstraints = map[string]error{
	"accounts_email_key":            ErrDuplicateEmail,
	"accounts_external_id_key":      ErrDuplicateExternalID,
	"registrations_account_id_key":  ErrDuplicateRegistration,
	"committees_name_key":           ErrDuplicateName,
	"portfolios_committee_name_key": ErrDuplicateName,
}

// IsNotFound reports whether err means the addressed row does not exist. An id
// Postgres cannot parse as a uuid (22P02) can never match a row either.
func IsNotFound(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if sentinel, ok := uniqueConstraints[pgErr.ConstraintName]; ok {
			return fmt.Errorf("%w: %s", sentinel, pgErr.Detail)
		}
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
