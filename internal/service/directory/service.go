package directory

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

// ProfileRepository interface
type ProfileRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error)
	GetByUsername(ctx context.Context, username string) (*domain.Profile, error)
	Update(ctx context.Context, p *domain.Profile) error
	List(ctx context.Context, filter domain.ProfileFilter) ([]*domain.Profile, int, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// Cache is the Redis side of the directory
type Cache interface {
	SetMappings(ctx context.Context, p *domain.Profile) error
	DeleteMappings(ctx context.Context, p *domain.Profile) error
	GetUserIDByUsername(ctx context.Context, username string) (uuid.UUID, error)
	CacheProfile(ctx context.Context, p *domain.Profile) error
	GetCachedProfile(ctx context.Context, id uuid.UUID) (*domain.Profile, error)
	InvalidateProfile(ctx context.Context, id uuid.UUID) error
}

// PresenceRepository interface
type PresenceRepository interface {
	GetOnlineUsers(ctx context.Context) ([]uuid.UUID, error)
	IsUserOnline(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Service resolves profiles for the messenger and the call path
type Service struct {
	profileRepo  ProfileRepository
	cache        Cache
	presenceRepo PresenceRepository
}

// NewService creates a new directory service
func NewService(profileRepo ProfileRepository, cache Cache, presenceRepo PresenceRepository) *Service {
	return &Service{
		profileRepo:  profileRepo,
		cache:        cache,
		presenceRepo: presenceRepo,
	}
}

// GetActiveProfile returns a profile that can be messaged or called.
// Cached profiles are served without touching CockroachDB.
func (s *Service) GetActiveProfile(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	profile, err := s.cache.GetCachedProfile(ctx, id)
	if err != nil {
		logger.Debug("Profile cache read failed", zap.String("user_id", id.String()), zap.Error(err))
	}

	if profile == nil {
		profile, err = s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.cache.CacheProfile(ctx, profile); err != nil {
			logger.Debug("Profile cache write failed", zap.String("user_id", id.String()), zap.Error(err))
		}
	}

	if !profile.IsActive() {
		return nil, errors.ProfileNotFoundError()
	}
	return profile, nil
}

// GetProfile returns any profile regardless of status
func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (*domain.ProfileResponse, error) {
	profile, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return profile.ToResponse(), nil
}

// FindByUsername resolves an active profile by username
func (s *Service) FindByUsername(ctx context.Context, username string) (*domain.ProfileResponse, error) {
	username = sanitize.Username(username)

	id, err := s.cache.GetUserIDByUsername(ctx, username)
	if err == nil && id != uuid.Nil {
		profile, err := s.GetActiveProfile(ctx, id)
		if err != nil {
			return nil, err
		}
		return profile.ToResponse(), nil
	}

	profile, err := s.profileRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.IsAppError(err) {
			return nil, err
		}
		return nil, errors.DatabaseError(err)
	}
	if !profile.IsActive() {
		return nil, errors.ProfileNotFoundError()
	}
	return profile.ToResponse(), nil
}

// ListProfiles lists the directory. Non-admin callers only see active profiles.
func (s *Service) ListProfiles(ctx context.Context, filter domain.ProfileFilter, includeInactive bool) ([]*domain.ProfileResponse, int, error) {
	if !includeInactive {
		filter.Status = domain.ProfileActive
	}
	if filter.Limit <= 0 {
		filter.Limit = constants.DefaultPageSize
	}
	if filter.Limit > constants.MaxPageSize {
		filter.Limit = constants.MaxPageSize
	}
	filter.Search = sanitize.Text(filter.Search)

	profiles, total, err := s.profileRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, errors.DatabaseError(err)
	}

	out := make([]*domain.ProfileResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p.ToResponse())
	}
	return out, total, nil
}

// UpdateProfile changes the caller's username and/or mobile
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, update *domain.ProfileUpdate) (*domain.ProfileResponse, error) {
	profile, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	previous := *profile

	if update.Username != nil {
		username := sanitize.Username(*update.Username)
		if !sanitize.ValidUsername(username) {
			return nil, errors.ValidationError("Username must be 3-50 letters, digits, dots, dashes or underscores")
		}
		if username != profile.Username {
			exists, err := s.profileRepo.UsernameExists(ctx, username)
			if err != nil {
				return nil, errors.DatabaseError(err)
			}
			if exists {
				return nil, errors.UsernameExistsError()
			}
			profile.Username = username
		}
	}

	if update.Mobile != nil {
		mobile := sanitize.Mobile(*update.Mobile)
		if mobile != "" && !sanitize.ValidMobile(mobile) {
			return nil, errors.ValidationError("Invalid mobile number")
		}
		profile.Mobile = mobile
	}

	if err := s.profileRepo.Update(ctx, profile); err != nil {
		if errors.IsAppError(err) {
			return nil, err
		}
		return nil, errors.DatabaseError(err)
	}

	if previous.Username != profile.Username {
		if err := s.cache.DeleteMappings(ctx, &previous); err != nil {
			logger.Warn("Failed to drop old directory mappings", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
	if err := s.cache.SetMappings(ctx, profile); err != nil {
		logger.Warn("Failed to update directory mappings", zap.String("user_id", userID.String()), zap.Error(err))
	}
	s.Invalidate(ctx, userID)

	return profile.ToResponse(), nil
}

// OnlineUsers returns the active profiles currently online
func (s *Service) OnlineUsers(ctx context.Context) ([]*domain.ProfileResponse, error) {
	ids, err := s.presenceRepo.GetOnlineUsers(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "Failed to read presence", err)
	}

	out := make([]*domain.ProfileResponse, 0, len(ids))
	for _, id := range ids {
		profile, err := s.GetActiveProfile(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, profile.ToResponse())
	}
	return out, nil
}

// IsOnline reports presence of one user
func (s *Service) IsOnline(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.presenceRepo.IsUserOnline(ctx, id)
}

// Invalidate drops the cached copy of a profile after it changed
func (s *Service) Invalidate(ctx context.Context, id uuid.UUID) {
	if err := s.cache.InvalidateProfile(ctx, id); err != nil {
		logger.Warn("Failed to invalidate cached profile", zap.String("user_id", id.String()), zap.Error(err))
	}
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	profile, err := s.profileRepo.GetByID(ctx, id)
	if err != nil {
		if errors.IsAppError(err) {
			return nil, err
		}
		return nil, errors.DatabaseError(err)
	}
	return profile, nil
}
