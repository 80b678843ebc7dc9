package cockroach

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"commhub-backend/internal/domain"
	"commhub-backend/pkg/errors"
)

// LeadRepository handles the sales pipeline in CockroachDB
type LeadRepository struct {
	pool *pgxpool.Pool
}

// NewLeadRepository creates a new LeadRepository
func NewLeadRepository(pool *pgxpool.Pool) *LeadRepository {
	return &LeadRepository{pool: pool}
}

// Create inserts a lead
func (r *LeadRepository) Create(ctx context.Context, l *domain.Lead) error {
	query := `
		INSERT INTO leads (id, name, email, mobile, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	if err := r.pool.QueryRow(ctx, query, l.ID, l.Name, l.Email, l.Mobile, l.Status).Scan(&l.CreatedAt); err != nil {
		return fmt.Errorf("failed to create lead: %w", err)
	}
	return nil
}

// List returns leads newest first, optionally narrowed to one status
func (r *LeadRepository) List(ctx context.Context, status domain.LeadStatus, limit, offset int) ([]*domain.Lead, int, error) {
	where := ""
	args := []any{}
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, status)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leads`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count leads: %w", err)
	}

	query := `SELECT id, name, email, mobile, status, created_at FROM leads` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	leads := make([]*domain.Lead, 0, limit)
	for rows.Next() {
		l := &domain.Lead{}
		if err := rows.Scan(&l.ID, &l.Name, &l.Email, &l.Mobile, &l.Status, &l.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan lead: %w", err)
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate leads: %w", err)
	}

	return leads, total, nil
}

// UpdateStatus moves a lead along the pipeline and returns the updated row
func (r *LeadRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.LeadStatus) (*domain.Lead, error) {
	query := `
		UPDATE leads SET status = $1 WHERE id = $2
		RETURNING id, name, email, mobile, status, created_at
	`

	l := &domain.Lead{}
	err := r.pool.QueryRow(ctx, query, status, id).Scan(&l.ID, &l.Name, &l.Email, &l.Mobile, &l.Status, &l.CreatedAt)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFoundError("Lead")
		}
		return nil, fmt.Errorf("failed to update lead: %w", err)
	}
	return l, nil
}

// CountByStatus returns the number of leads per pipeline stage
func (r *LeadRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return countGrouped(ctx, r.pool, `SELECT status, COUNT(*) FROM leads GROUP BY status`)
}
