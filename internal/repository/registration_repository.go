package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/kmun/registration-service/internal/domain"
)

// RegistrationFilter captures admin search parameters.
type RegistrationFilter struct {
	Status    *domain.RegistrationStatus
	Search    string
	SortBy    string
	SortOrder string
	Limit     int
	Offset    int
}

// RegistrationRepository encapsulates registration persistence.
type RegistrationRepository interface {
	Create(ctx context.Context, registration *domain.Registration) error
	Update(ctx context.Context, registration *domain.Registration) error
	GetByID(ctx context.Context, id string) (*domain.Registration, error)
	GetByAccountID(ctx context.Context, accountID string) (*domain.Registration, error)
	List(ctx context.Context, filter RegistrationFilter) ([]domain.Registration, int, error)
	ListByCommittees(ctx context.Context, committees []string) ([]domain.Registration, error)
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[domain.RegistrationStatus]int, error)
	CountAllocated(ctx context.Context) (int, error)
}

type registrationRepository struct {
	db DBTX
}

// NewRegistrationRepository instantiates repository.
func NewRegistrationRepository(db DBTX) RegistrationRepository {
	return &registrationRepository{db: db}
}

// sortColumns whitelists ORDER BY targets.
var sortColumns = map[string]string{
	"submittedAt": "submitted_at",
	"firstName":   "first_name",
	"lastName":    "last_name",
	"institution": "institution",
	"status":      "status",
}

const registrationColumns = `id, account_id, first_name, last_name, email, phone, gender, is_kumaraguru,
        roll_number, institution_type, institution, city, state, grade, total_muns, requires_accommodation,
        committee_preference_1, portfolio_preference_1, committee_preference_2, portfolio_preference_2,
        committee_preference_3, portfolio_preference_3, id_document, resume, status,
        allocated_committee, allocated_portfolio, submitted_at, updated_at`

func scanRegistration(row pgx.Row) (*domain.Registration, error) {
	var reg domain.Registration
	if err := row.Scan(
		&reg.ID,
		&reg.AccountID,
		&reg.FirstName,
		&reg.LastName,
		&reg.Email,
		&reg.Phone,
		&reg.Gender,
		&reg.IsKumaraguru,
		&reg.RollNumber,
		&reg.InstitutionType,
		&reg.Institution,
		&reg.City,
		&reg.State,
		&reg.Grade,
		&reg.TotalMUNs,
		&reg.RequiresAccommodation,
		&reg.Preferences[0].Committee,
		&reg.Preferences[0].Portfolio,
		&reg.Preferences[1].Committee,
		&reg.Preferences[1].Portfolio,
		&reg.Preferences[2].Committee,
		&reg.Preferences[2].Portfolio,
		&reg.IDDocument,
		&reg.Resume,
		&reg.Status,
		&reg.AllocatedCommittee,
		&reg.AllocatedPortfolio,
		&reg.SubmittedAt,
		&reg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *registrationRepository) Create(ctx context.Context, reg *domain.Registration) error {
	const query = `
        INSERT INTO registrations (account_id, first_name, last_name, email, phone, gender, is_kumaraguru,
            roll_number, institution_type, institution, city, state, grade, total_muns, requires_accommodation,
            committee_preference_1, portfolio_preference_1, committee_preference_2, portfolio_preference_2,
            committee_preference_3, portfolio_preference_3, id_document, resume, status,
            allocated_committee, allocated_portfolio)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
        RETURNING id, submitted_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		reg.AccountID,
		reg.FirstName,
		reg.LastName,
		reg.Email,
		reg.Phone,
		reg.Gender,
		reg.IsKumaraguru,
		reg.RollNumber,
		reg.InstitutionType,
		reg.Institution,
		reg.City,
		reg.State,
		reg.Grade,
		reg.TotalMUNs,
		reg.RequiresAccommodation,
		reg.Preferences[0].Committee,
		reg.Preferences[0].Portfolio,
		reg.Preferences[1].Committee,
		reg.Preferences[1].Portfolio,
		reg.Preferences[2].Committee,
		reg.Preferences[2].Portfolio,
		reg.IDDocument,
		reg.Resume,
		reg.Status,
		reg.AllocatedCommittee,
		reg.AllocatedPortfolio,
	).Scan(&reg.ID, &reg.SubmittedAt, &reg.UpdatedAt)
	return mapWriteError(err)
}

func (r *registrationRepository) Update(ctx context.Context, reg *domain.Registration) error {
	const query = `
        UPDATE registrations SET first_name=$1, last_name=$2, email=$3, phone=$4, gender=$5, is_kumaraguru=$6,
            roll_number=$7, institution_type=$8, institution=$9, city=$10, state=$11, grade=$12, total_muns=$13,
            requires_accommodation=$14, committee_preference_1=$15, portfolio_preference_1=$16,
            committee_preference_2=$17, portfolio_preference_2=$18, committee_preference_3=$19,
            portfolio_preference_3=$20, id_document=$21, resume=$22, status=$23, allocated_committee=$24,
            allocated_portfolio=$25, submitted_at=$26, updated_at=NOW()
        WHERE id=$27
        RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		reg.FirstName,
		reg.LastName,
		reg.Email,
		reg.Phone,
		reg.Gender,
		reg.IsKumaraguru,
		reg.RollNumber,
		reg.InstitutionType,
		reg.Institution,
		reg.City,
		reg.State,
		reg.Grade,
		reg.TotalMUNs,
		reg.RequiresAccommodation,
		reg.Preferences[0].Committee,
		reg.Preferences[0].Portfolio,
		reg.Preferences[1].Committee,
		reg.Preferences[1].Portfolio,
		reg.Preferences[2].Committee,
		reg.Preferences[2].Portfolio,
		reg.IDDocument,
		reg.Resume,
		reg.Status,
		reg.AllocatedCommittee,
		reg.AllocatedPortfolio,
		reg.SubmittedAt,
		reg.ID,
	).Scan(&reg.UpdatedAt)
	return mapWriteError(err)
}

func (r *registrationRepository) GetByID(ctx context.Context, id string) (*domain.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id=$1`
	return scanRegistration(r.db.QueryRow(ctx, query, id))
}

func (r *registrationRepository) GetByAccountID(ctx context.Context, accountID string) (*domain.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE account_id=$1`
	return scanRegistration(r.db.QueryRow(ctx, query, accountID))
}

func (r *registrationRepository) List(ctx context.Context, filter RegistrationFilter) ([]domain.Registration, int, error) {
	args := []any{}
	clauses := []string{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		args = append(args, "%"+term+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			"(first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d OR institution ILIKE $%d)", n, n, n, n))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM registrations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = "submitted_at"
	}
	order := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		order = "ASC"
	}
	limit, offset := clampPage(filter.Limit, filter.Offset)
	query := `SELECT ` + registrationColumns + ` FROM registrations` + where +
		fmt.Sprintf(" ORDER BY %s %s LIMIT %d OFFSET %d", column, order, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []domain.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *reg)
	}
	return result, total, rows.Err()
}

// ListByCommittees returns registrations preferring any of committees, or all
// registrations when committees is empty.
func (r *registrationRepository) ListByCommittees(ctx context.Context, committees []string) ([]domain.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations`
	args := []any{}
	if len(committees) > 0 {
		args = append(args, committees)
		query += ` WHERE committee_preference_1 = ANY($1) OR committee_preference_2 = ANY($1)
            OR committee_preference_3 = ANY($1)`
	}
	query += ` ORDER BY submitted_at`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *reg)
	}
	return result, rows.Err()
}

func (r *registrationRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM registrations WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *registrationRepository) CountByStatus(ctx context.Context) (map[domain.RegistrationStatus]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM registrations GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[domain.RegistrationStatus]int{}
	for rows.Next() {
		var status domain.RegistrationStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *registrationRepository) CountAllocated(ctx context.Context) (int, error) {
	const query = `
        SELECT COUNT(*) FROM registrations
        WHERE allocated_committee IS NOT NULL AND allocated_portfolio IS NOT NULL`
	var n int
	err := r.db.QueryRow(ctx, query).Scan(&n)
	return n, err
}
