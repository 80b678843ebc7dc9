package lead

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"commhub-backend/internal/domain"
	"commhub-backend/pkg/constants"
	"commhub-backend/pkg/errors"
	"commhub-backend/pkg/logger"
	"commhub-backend/pkg/sanitize"
)

// Repository interface
type Repository interface {
	Create(ctx context.Context, l *domain.Lead) error
	List(ctx context.Context, status domain.LeadStatus, limit, offset int) ([]*domain.Lead, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.LeadStatus) (*domain.Lead, error)
}

// Service manages the sales pipeline
type Service struct {
	repo Repository
}

// NewService creates a new lead service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create records an enquiry as a NEW lead
func (s *Service) Create(ctx context.Context, input *domain.LeadCreate) (*domain.Lead, error) {
	name := sanitize.Text(input.Name)
	if name == "" || len(name) > constants.MaxNameLength {
		return nil, errors.ValidationError("Name is required and must be at most 100 characters")
	}
	email := sanitize.Email(input.Email)
	if !sanitize.ValidEmail(email) {
		return nil, errors.ValidationError("Invalid email address")
	}
	mobile := sanitize.Mobile(input.Mobile)
	if !sanitize.ValidMobile(mobile) {
		return nil, errors.ValidationError("Invalid mobile number")
	}

	l := &domain.Lead{
		ID:     uuid.New(),
		Name:   name,
		Email:  email,
		Mobile: mobile,
		Status: domain.LeadNew,
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, errors.DatabaseError(err)
	}

	logger.Info("Lead captured", zap.String("lead_id", l.ID.String()))
	return l, nil
}

// List pages through leads, newest first
func (s *Service) List(ctx context.Context, status domain.LeadStatus, limit, offset int) ([]*domain.Lead, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, errors.ValidationError("Unknown lead status")
	}
	if limit <= 0 {
		limit = constants.DefaultPageSize
	}
	if limit > constants.MaxPageSize {
		limit = constants.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	leads, total, err := s.repo.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, errors.DatabaseError(err)
	}
	return leads, total, nil
}

// UpdateStatus moves a lead to another pipeline stage
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.LeadStatus) (*domain.Lead, error) {
	if !status.Valid() {
		return nil, errors.ValidationError("Unknown lead status")
	}

	l, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		if errors.IsAppError(err) {
			return nil, err
		}
		return nil, errors.DatabaseError(err)
	}
	return l, nil
}
