package contact

import (
	"context"

	"github.com/google/uuid"

	"commhub-backend/internal/domain"
	"commhub-backend/pkg/constants"
	"commhub-backend/pkg/errors"
	"commhub-backend/pkg/sanitize"
)

// Repository interface
type Repository interface {
	Create(ctx context.Context, c *domain.Contact) error
	GetByID(ctx context.Context, owner, id uuid.UUID) (*domain.Contact, error)
	List(ctx context.Context, owner uuid.UUID, search string, limit, offset int) ([]*domain.Contact, int, error)
	Update(ctx context.Context, c *domain.Contact) error
	Delete(ctx context.Context, owner, id uuid.UUID) error
}

// Service manages a user's address book
type Service struct {
	repo Repository
}

// NewService creates a new contact service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create adds a contact to owner's book
func (s *Service) Create(ctx context.Context, owner uuid.UUID, input *domain.ContactInput) (*domain.Contact, error) {
	c := &domain.Contact{
		ID:     uuid.New(),
		UserID: owner,
	}
	if err := apply(c, input); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, errors.DatabaseError(err)
	}
	return c, nil
}

// Get returns one of owner's contacts
func (s *Service) Get(ctx context.Context, owner, id uuid.UUID) (*domain.Contact, error) {
	c, err := s.repo.GetByID(ctx, owner, id)
	if err != nil {
		return nil, wrap(err)
	}
	return c, nil
}

// List pages through owner's contacts, optionally filtered by name or mobile
func (s *Service) List(ctx context.Context, owner uuid.UUID, search string, limit, offset int) ([]*domain.Contact, int, error) {
	if limit <= 0 {
		limit = constants.DefaultPageSize
	}
	if limit > constants.MaxPageSize {
		limit = constants.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	contacts, total, err := s.repo.List(ctx, owner, sanitize.Text(search), limit, offset)
	if err != nil {
		return nil, 0, errors.DatabaseError(err)
	}
	return contacts, total, nil
}

// Update replaces the editable fields of a contact
func (s *Service) Update(ctx context.Context, owner, id uuid.UUID, input *domain.ContactInput) (*domain.Contact, error) {
	c := &domain.Contact{ID: id, UserID: owner}
	if err := apply(c, input); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, wrap(err)
	}
	return c, nil
}

// Delete removes a contact
func (s *Service) Delete(ctx context.Context, owner, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, owner, id); err != nil {
		return wrap(err)
	}
	return nil
}

func apply(c *domain.Contact, input *domain.ContactInput) error {
	name := sanitize.Text(input.Name)
	if name == "" || len(name) > constants.MaxNameLength {
		return errors.ValidationError("Contact name is required and must be at most 100 characters")
	}
	mobile := sanitize.Mobile(input.Mobile)
	if !sanitize.ValidMobile(mobile) {
		return errors.ValidationError("Invalid mobile number")
	}

	c.Name = name
	c.Mobile = mobile
	c.Email = nil
	if input.Email != nil && *input.Email != "" {
		email := sanitize.Email(*input.Email)
		if !sanitize.ValidEmail(email) {
			return errors.ValidationError("Invalid email address")
		}
		c.Email = &email
	}
	c.Notes = nil
	if input.Notes != nil && *input.Notes != "" {
		notes := sanitize.Text(*input.Notes)
		if len(notes) > constants.MaxNotesLength {
			return errors.ValidationError("Notes must be at most 2000 characters")
		}
		c.Notes = &notes
	}
	return nil
}

func wrap(err error) error {
	if errors.IsAppError(err) {
		return err
	}
	return errors.DatabaseError(err)
}
