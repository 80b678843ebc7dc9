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

const contactColumns = `id, user_id, name, mobile, email, notes, created_at, updated_at`

// ContactRepository handles the per-user address book in CockroachDB.
// Every query is scoped by owner so one user can never touch another's contacts.
type ContactRepository struct {
	pool *pgxpool.Pool
}

// NewContactRepository creates a new ContactRepository
func NewContactRepository(pool *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{pool: pool}
}

func scanContact(row pgx.Row) (*domain.Contact, error) {
	c := &domain.Contact{}
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Mobile, &c.Email, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFoundError("Contact")
		}
		return nil, fmt.Errorf("failed to scan contact: %w", err)
	}
	return c, nil
}

// Create inserts a contact
func (r *ContactRepository) Create(ctx context.Context, c *domain.Contact) error {
	query := `
		INSERT INTO contacts (id, user_id, name, mobile, email, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query, c.ID, c.UserID, c.Name, c.Mobile, c.Email, c.Notes).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

// GetByID retrieves one of owner's contacts
func (r *ContactRepository) GetByID(ctx context.Context, owner, id uuid.UUID) (*domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1 AND user_id = $2`
	return scanContact(r.pool.QueryRow(ctx, query, id, owner))
}

// List returns owner's contacts ordered by name
func (r *ContactRepository) List(ctx context.Context, owner uuid.UUID, search string, limit, offset int) ([]*domain.Contact, int, error) {
	where := ` WHERE user_id = $1`
	args := []any{owner}
	if search != "" {
		where += ` AND (name ILIKE $2 OR mobile ILIKE $2)`
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM contacts`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count contacts: %w", err)
	}

	query := `SELECT ` + contactColumns + ` FROM contacts` + where +
		fmt.Sprintf(` ORDER BY name ASC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]*domain.Contact, 0, limit)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, err
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate contacts: %w", err)
	}

	return contacts, total, nil
}

// Update replaces the editable fields of a contact
func (r *ContactRepository) Update(ctx context.Context, c *domain.Contact) error {
	query := `
		UPDATE contacts
		SET name = $1, mobile = $2, email = $3, notes = $4, updated_at = NOW()
		WHERE id = $5 AND user_id = $6
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query, c.Name, c.Mobile, c.Email, c.Notes, c.ID, c.UserID).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return errors.NotFoundError("Contact")
		}
		return fmt.Errorf("failed to update contact: %w", err)
	}
	return nil
}

// Delete removes one of owner's contacts
func (r *ContactRepository) Delete(ctx context.Context, owner, id uuid.UUID) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM contacts WHERE id = $1 AND user_id = $2`, id, owner)
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return errors.NotFoundError("Contact")
	}
	return nil
}

// Count returns the number of contacts across all users
func (r *ContactRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM contacts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count contacts: %w", err)
	}
	return n, nil
}
