package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/kmun/registration-service/internal/domain"
)

// CommitteeRepository persists committees and their portfolios.
type CommitteeRepository interface {
	Create(ctx context.Context, committee *domain.Committee) error
	Update(ctx context.Context, committee *domain.Committee) error
	GetByID(ctx context.Context, id string) (*domain.Committee, error)
	GetByName(ctx context.Context, name string) (*domain.Committee, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Committee, error)
	Delete(ctx context.Context, id string) error
	AddPortfolio(ctx context.Context, portfolio *domain.Portfolio) error
	DeletePortfolio(ctx context.Context, committeeID, portfolioID string) error
	CountPortfolios(ctx context.Context, committeeID string) (int, error)
}

type committeeRepository struct {
	db DBTX
}

// NewCommitteeRepository constructs repository.
func NewCommitteeRepository(db DBTX) CommitteeRepository {
	return &committeeRepository{db: db}
}

const committeeColumns = `id, name, description, type, institution_type, capacity, logo, is_active, created_at, updated_at`

func scanCommittee(row pgx.Row) (*domain.Committee, error) {
	var c domain.Committee
	if err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Description,
		&c.Type,
		&c.InstitutionType,
		&c.Capacity,
		&c.Logo,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *committeeRepository) Create(ctx context.Context, c *domain.Committee) error {
	const query = `
        INSERT INTO committees (name, description, type, institution_type, capacity, logo, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		c.Name,
		c.Description,
		c.Type,
		c.InstitutionType,
		c.Capacity,
		c.Logo,
		c.IsActive,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return mapWriteError(err)
}

func (r *committeeRepository) Update(ctx context.Context, c *domain.Committee) error {
	const query = `
        UPDATE committees SET name=$1, description=$2, type=$3, institution_type=$4, capacity=$5, logo=$6,
            is_active=$7, updated_at=NOW()
        WHERE id=$8
        RETURNING updated_at`
	err := r.db.QueryRow(ctx, query,
		c.Name,
		c.Description,
		c.Type,
		c.InstitutionType,
		c.Capacity,
		c.Logo,
		c.IsActive,
		c.ID,
	).Scan(&c.UpdatedAt)
	return mapWriteError(err)
}

func (r *committeeRepository) GetByID(ctx context.Context, id string) (*domain.Committee, error) {
	c, err := scanCommittee(r.db.QueryRow(ctx, `SELECT `+committeeColumns+` FROM committees WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	portfolios, err := r.portfolios(ctx, []string{c.ID})
	if err != nil {
		return nil, err
	}
	c.Portfolios = portfolios[c.ID]
	return c, nil
}

func (r *committeeRepository) GetByName(ctx context.Context, name string) (*domain.Committee, error) {
	return scanCommittee(r.db.QueryRow(ctx, `SELECT `+committeeColumns+` FROM committees WHERE name=$1`, name))
}

func (r *committeeRepository) List(ctx context.Context, activeOnly bool) ([]domain.Committee, error) {
	query := `SELECT ` + committeeColumns + ` FROM committees`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Committee
	var ids []string
	for rows.Next() {
		c, err := scanCommittee(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return result, nil
	}

	portfolios, err := r.portfolios(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Portfolios = portfolios[result[i].ID]
	}
	return result, nil
}

func (r *committeeRepository) portfolios(ctx context.Context, committeeIDs []string) (map[string][]domain.Portfolio, error) {
	const query = `
        SELECT id, committee_id, name, is_available, created_at
        FROM portfolios WHERE committee_id = ANY($1)
        ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, committeeIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := map[string][]domain.Portfolio{}
	for rows.Next() {
		var p domain.Portfolio
		if err := rows.Scan(&p.ID, &p.CommitteeID, &p.Name, &p.IsAvailable, &p.CreatedAt); err != nil {
			return nil, err
		}
		result[p.CommitteeID] = append(result[p.CommitteeID], p)
	}
	return result, rows.Err()
}

func (r *committeeRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM committees WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *committeeRepository) AddPortfolio(ctx context.Context, p *domain.Portfolio) error {
	const query = `
        INSERT INTO portfolios (committee_id, name, is_available)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	err := r.db.QueryRow(ctx, query, p.CommitteeID, p.Name, p.IsAvailable).Scan(&p.ID, &p.CreatedAt)
	return mapWriteError(err)
}

func (r *committeeRepository) DeletePortfolio(ctx context.Context, committeeID, portfolioID string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM portfolios WHERE id=$1 AND committee_id=$2`, portfolioID, committeeID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *committeeRepository) CountPortfolios(ctx context.Context, committeeID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM portfolios WHERE committee_id=$1`, committeeID).Scan(&n)
	return n, err
}
