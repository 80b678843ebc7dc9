package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"commhub-backend/internal/domain"
	"commhub-backend/pkg/audit"
	"commhub-backend/pkg/constants"
	"commhub-backend/pkg/errors"
	"commhub-backend/pkg/logger"
)

// ProfileRepository interface
type ProfileRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error)
	List(ctx context.Context, filter domain.ProfileFilter) ([]*domain.Profile, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ProfileStatus) error
	UpdateRole(ctx context.Context, id uuid.UUID, role domain.Role) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// ContactCounter interface
type ContactCounter interface {
	Count(ctx context.Context) (int64, error)
}

// LeadCounter interface
type LeadCounter interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// SessionRepository interface
type SessionRepository interface {
	DeleteAllUserSessions(ctx context.Context, userID uuid.UUID) error
	RevokeUserTokens(ctx context.Context, userID uuid.UUID, ttl time.Duration) error
}

// PresenceRepository interface
type PresenceRepository interface {
	SetUserOffline(ctx context.Context, userID uuid.UUID) error
	GetOnlineCount(ctx context.Context) (int64, error)
}

// DirectoryCache interface
type DirectoryCache interface {
	DeleteMappings(ctx context.Context, p *domain.Profile) error
	InvalidateProfile(ctx context.Context, id uuid.UUID) error
}

// AuditLog reads and writes security events
type AuditLog interface {
	Log(ctx context.Context, event *audit.SecurityEvent) error
	Recent(ctx context.Context, limit int) ([]*audit.SecurityEvent, error)
	ForDay(ctx context.Context, day time.Time) ([]*audit.SecurityEvent, error)
}

// Actor is the administrator performing an action
type Actor struct {
	ID        uuid.UUID
	Username  string
	Role      domain.Role
	IPAddress string
}

// Service handles administrative business logic
type Service struct {
	profileRepo  ProfileRepository
	contacts     ContactCounter
	leads        LeadCounter
	sessionRepo  SessionRepository
	presenceRepo PresenceRepository
	cache        DirectoryCache
	audit        AuditLog
	revokeTTL    time.Duration
}

// NewService creates a new admin service. revokeTTL must cover the lifetime
// of an access token so revocations outlive every token issued before them.
func NewService(
	profileRepo ProfileRepository,
	contacts ContactCounter,
	leads LeadCounter,
	sessionRepo SessionRepository,
	presenceRepo PresenceRepository,
	cache DirectoryCache,
	auditLog AuditLog,
	revokeTTL time.Duration,
) *Service {
	return &Service{
		profileRepo:  profileRepo,
		contacts:     contacts,
		leads:        leads,
		sessionRepo:  sessionRepo,
		presenceRepo: presenceRepo,
		cache:        cache,
		audit:        auditLog,
		revokeTTL:    revokeTTL,
	}
}

// ListUsers retrieves a paginated list of profiles in any status
func (s *Service) ListUsers(ctx context.Context, filter domain.ProfileFilter) ([]*domain.ProfileResponse, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > constants.MaxPageSize {
		filter.Limit = constants.MaxPageSize
	}

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

// Activate approves a pending account or lifts a suspension
func (s *Service) Activate(ctx context.Context, actor *Actor, userID uuid.UUID) (*domain.ProfileResponse, error) {
	target, err := s.target(ctx, actor, userID)
	if err != nil {
		return nil, err
	}

	if err := s.profileRepo.UpdateStatus(ctx, userID, domain.ProfileActive); err != nil {
		return nil, wrap(err)
	}
	target.Status = domain.ProfileActive
	s.invalidate(ctx, userID)

	s.record(ctx, audit.AdminAction(audit.EventUserActivated, actor.ID, actor.Username, actor.IPAddress,
		fmt.Sprintf("Activated %s", target.Username)))

	return target.ToResponse(), nil
}

// Suspend blocks an account and revokes every session and token it holds
func (s *Service) Suspend(ctx context.Context, actor *Actor, userID uuid.UUID) (*domain.ProfileResponse, error) {
	target, err := s.target(ctx, actor, userID)
	if err != nil {
		return nil, err
	}

	if err := s.profileRepo.UpdateStatus(ctx, userID, domain.ProfileSuspended); err != nil {
		return nil, wrap(err)
	}
	target.Status = domain.ProfileSuspended

	s.signOutEverywhere(ctx, userID)
	s.invalidate(ctx, userID)

	s.record(ctx, audit.AdminAction(audit.EventUserSuspended, actor.ID, actor.Username, actor.IPAddress,
		fmt.Sprintf("Suspended %s", target.Username)))

	return target.ToResponse(), nil
}

// Delete removes an account permanently
func (s *Service) Delete(ctx context.Context, actor *Actor, userID uuid.UUID) error {
	target, err := s.target(ctx, actor, userID)
	if err != nil {
		return err
	}

	if err := s.profileRepo.Delete(ctx, userID); err != nil {
		return wrap(err)
	}

	s.signOutEverywhere(ctx, userID)
	if err := s.cache.DeleteMappings(ctx, target); err != nil {
		logger.Warn("Failed to drop directory mappings", zap.String("user_id", userID.String()), zap.Error(err))
	}

	s.record(ctx, audit.AdminAction(audit.EventPolicyChange, actor.ID, actor.Username, actor.IPAddress,
		fmt.Sprintf("Deleted %s", target.Username)))

	return nil
}

// ChangeRole assigns a new role. Only a SUPERADMIN may grant or take away
// administrative roles.
func (s *Service) ChangeRole(ctx context.Context, actor *Actor, userID uuid.UUID, role domain.Role) (*domain.ProfileResponse, error) {
	if !role.Valid() {
		return nil, errors.ValidationError("Unknown role")
	}

	target, err := s.target(ctx, actor, userID)
	if err != nil {
		return nil, err
	}
	if role.IsAdmin() && actor.Role != domain.RoleSuperAdmin {
		return nil, errors.ForbiddenError("Only a super administrator can grant administrative roles")
	}
	if target.Role == role {
		return target.ToResponse(), nil
	}

	if err := s.profileRepo.UpdateRole(ctx, userID, role); err != nil {
		return nil, wrap(err)
	}
	previous := target.Role
	target.Role = role

	// tokens carry the role claim
	if err := s.sessionRepo.RevokeUserTokens(ctx, userID, s.revokeTTL); err != nil {
		logger.Warn("Failed to revoke tokens after role change", zap.String("user_id", userID.String()), zap.Error(err))
	}
	s.invalidate(ctx, userID)

	s.record(ctx, audit.AdminAction(audit.EventPolicyChange, actor.ID, actor.Username, actor.IPAddress,
		fmt.Sprintf("Changed role of %s from %s to %s", target.Username, previous, role)))

	return target.ToResponse(), nil
}

// GetSystemStats gathers the dashboard counters
func (s *Service) GetSystemStats(ctx context.Context) (*domain.SystemStats, error) {
	byStatus, err := s.profileRepo.CountByStatus(ctx)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	leads, err := s.leads.CountByStatus(ctx)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	contacts, err := s.contacts.Count(ctx)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}

	stats := &domain.SystemStats{
		UsersByStatus: byStatus,
		LeadsByStatus: leads,
		TotalContacts: contacts,
	}
	for _, n := range byStatus {
		stats.TotalUsers += n
	}

	if online, err := s.presenceRepo.GetOnlineCount(ctx); err != nil {
		logger.Warn("Failed to count online users", zap.Error(err))
	} else {
		stats.OnlineUsers = online
	}

	if today, err := s.audit.ForDay(ctx, time.Now().UTC()); err != nil {
		logger.Warn("Failed to count security events", zap.Error(err))
	} else {
		stats.SecurityEvents = int64(len(today))
	}

	return stats, nil
}

// SecurityEvents returns the newest audit events
func (s *Service) SecurityEvents(ctx context.Context, limit int) ([]*audit.SecurityEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	events, err := s.audit.Recent(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "Failed to read security events", err)
	}
	return events, nil
}

// target loads the profile an action applies to and enforces that admins
// never act on themselves and only a SUPERADMIN touches another SUPERADMIN
func (s *Service) target(ctx context.Context, actor *Actor, userID uuid.UUID) (*domain.Profile, error) {
	if userID == actor.ID {
		return nil, errors.InvalidInputError("Administrators cannot change their own account")
	}

	target, err := s.profileRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, wrap(err)
	}
	if target.Role.IsAdmin() && actor.Role != domain.RoleSuperAdmin {
		return nil, errors.ForbiddenError("Only a super administrator can manage administrators")
	}
	return target, nil
}

func (s *Service) signOutEverywhere(ctx context.Context, userID uuid.UUID) {
	if err := s.sessionRepo.DeleteAllUserSessions(ctx, userID); err != nil {
		logger.Warn("Failed to delete sessions", zap.String("user_id", userID.String()), zap.Error(err))
	}
	if err := s.sessionRepo.RevokeUserTokens(ctx, userID, s.revokeTTL); err != nil {
		logger.Warn("Failed to revoke tokens", zap.String("user_id", userID.String()), zap.Error(err))
	}
	if err := s.presenceRepo.SetUserOffline(ctx, userID); err != nil {
		logger.Warn("Failed to clear presence", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

func (s *Service) invalidate(ctx context.Context, userID uuid.UUID) {
	if err := s.cache.InvalidateProfile(ctx, userID); err != nil {
		logger.Warn("Failed to invalidate cached profile", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

func (s *Service) record(ctx context.Context, event *audit.SecurityEvent) {
	if err := s.audit.Log(ctx, event); err != nil {
		logger.Warn("Failed to write audit event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func wrap(err error) error {
	if errors.IsAppError(err) {
		return err
	}
	return errors.DatabaseError(err)
}
