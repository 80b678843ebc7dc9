package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"commhub-backend/internal/domain"
	"commhub-backend/internal/repository/redis"
	"commhub-backend/pkg/audit"
	"commhub-backend/pkg/errors"
	"commhub-backend/pkg/jwt"
	"commhub-backend/pkg/logger"
	"commhub-backend/pkg/metrics"
	"commhub-backend/pkg/password"
	"commhub-backend/pkg/sanitize"
)

// ProfileRepository interface
type ProfileRepository interface {
	Create(ctx context.Context, p *domain.Profile) error
	GetByEmail(ctx context.Context, email string) (*domain.Profile, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// DirectoryRepository interface
type DirectoryRepository interface {
	SetMappings(ctx context.Context, p *domain.Profile) error
}

// SessionRepository interface
type SessionRepository interface {
	CreateSession(ctx context.Context, session *redis.Session, ttl time.Duration) error
	GetSession(ctx context.Context, sessionID string) (*redis.Session, error)
	DeleteSession(ctx context.Context, sessionID string, userID uuid.UUID) error
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
}

// PresenceRepository interface
type PresenceRepository interface {
	SetUserOnline(ctx context.Context, userID uuid.UUID) error
	SetUserOffline(ctx context.Context, userID uuid.UUID) error
}

// Lockout counts failed sign-ins per email
type Lockout interface {
	RecordFailedAttempt(ctx context.Context, identifier string) (bool, error)
	CheckLockout(ctx context.Context, identifier string) (bool, int, error)
	ClearFailedAttempts(ctx context.Context, identifier string) error
}

// AuditLogger records security events
type AuditLogger interface {
	Log(ctx context.Context, event *audit.SecurityEvent) error
}

// Service handles authentication business logic
type Service struct {
	profileRepo   ProfileRepository
	directoryRepo DirectoryRepository
	sessionRepo   SessionRepository
	presenceRepo  PresenceRepository
	lockout       Lockout
	audit         AuditLogger
	jwtManager    *jwt.JWTManager
	metrics       *metrics.Metrics
}

// NewService creates a new auth service; m may be nil
func NewService(
	profileRepo ProfileRepository,
	directoryRepo DirectoryRepository,
	sessionRepo SessionRepository,
	presenceRepo PresenceRepository,
	lockout Lockout,
	auditLogger AuditLogger,
	jwtManager *jwt.JWTManager,
	m *metrics.Metrics,
) *Service {
	return &Service{
		profileRepo:   profileRepo,
		directoryRepo: directoryRepo,
		sessionRepo:   sessionRepo,
		presenceRepo:  presenceRepo,
		lockout:       lockout,
		audit:         auditLogger,
		jwtManager:    jwtManager,
		metrics:       m,
	}
}

// SignUpInput contains user registration data
type SignUpInput struct {
	Email     string
	Username  string
	Password  string
	Mobile    string
	IPAddress string
}

// SignUp registers an account. It stays PENDING_APPROVAL until an
// administrator activates it, so no tokens are issued here.
func (s *Service) SignUp(ctx context.Context, input *SignUpInput) (*domain.ProfileResponse, error) {
	email := sanitize.Email(input.Email)
	username := sanitize.Username(input.Username)
	mobile := sanitize.Mobile(input.Mobile)

	if err := validateSignUp(email, username, mobile, input.Password); err != nil {
		return nil, err
	}

	emailExists, err := s.profileRepo.EmailExists(ctx, email)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	if emailExists {
		return nil, errors.EmailExistsError()
	}

	usernameExists, err := s.profileRepo.UsernameExists(ctx, username)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	if usernameExists {
		return nil, errors.UsernameExistsError()
	}

	passwordHash, err := password.Hash(input.Password)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "Failed to hash password", err)
	}

	profile := &domain.Profile{
		ID:           uuid.New(),
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		Mobile:       mobile,
		Role:         domain.RoleUser,
		Status:       domain.ProfilePendingApproval,
	}

	if err := s.profileRepo.Create(ctx, profile); err != nil {
		if errors.IsAppError(err) {
			return nil, err
		}
		return nil, errors.DatabaseError(err)
	}

	if err := s.directoryRepo.SetMappings(ctx, profile); err != nil {
		logger.Warn("Failed to update directory after sign up",
			zap.String("user_id", profile.ID.String()),
			zap.Error(err))
	}

	s.record(ctx, audit.UserCreated(profile.ID, profile.Email, input.IPAddress))

	logger.Info("Profile registered, awaiting approval",
		zap.String("user_id", profile.ID.String()),
		zap.String("username", profile.Username))

	return profile.ToResponse(), nil
}

func validateSignUp(email, username, mobile, pw string) error {
	if !sanitize.ValidEmail(email) {
		return errors.ValidationError("Invalid email address")
	}
	if !sanitize.ValidUsername(username) {
		return errors.ValidationError("Username must be 3-50 letters, digits, dots, dashes or underscores")
	}
	if mobile != "" && !sanitize.ValidMobile(mobile) {
		return errors.ValidationError("Invalid mobile number")
	}
	if err := password.Validate(pw); err != nil {
		return errors.ValidationError(err.Error())
	}
	return nil
}

// SignInInput contains login credentials
type SignInInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// TokenPair is returned by sign-in and refresh
type TokenPair struct {
	Profile      *domain.ProfileResponse `json:"user"`
	AccessToken  string                  `json:"access_token"`
	RefreshToken string                  `json:"refresh_token"`
	ExpiresIn    int64                   `json:"expires_in"`
}

// SignIn authenticates an active profile
func (s *Service) SignIn(ctx context.Context, input *SignInInput) (*TokenPair, error) {
	email := sanitize.Email(input.Email)
	s.metrics.RecordAuthAttempt("password")

	locked, _, err := s.lockout.CheckLockout(ctx, email)
	if err != nil {
		// fail open, the password check still applies
		logger.Warn("Lockout check failed", zap.Error(err))
	}
	if locked {
		s.metrics.RecordAuthFailure("password", "locked")
		s.record(ctx, audit.LoginFailure(email, input.IPAddress, "account locked"))
		return nil, errors.AccountLockedError()
	}

	profile, err := s.profileRepo.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, errors.ErrCodeProfileNotFound) {
			return nil, errors.DatabaseError(err)
		}
		return nil, s.failSignIn(ctx, email, input.IPAddress, "unknown email")
	}

	if !password.Matches(profile.PasswordHash, input.Password) {
		return nil, s.failSignIn(ctx, email, input.IPAddress, "wrong password")
	}

	switch profile.Status {
	case domain.ProfileActive:
	case domain.ProfilePendingApproval:
		s.metrics.RecordAuthFailure("password", "pending")
		s.record(ctx, audit.LoginFailure(email, input.IPAddress, "pending approval"))
		return nil, errors.AccountPendingError()
	default:
		s.metrics.RecordAuthFailure("password", "suspended")
		s.record(ctx, audit.LoginFailure(email, input.IPAddress, "suspended"))
		return nil, errors.AccountSuspendedError()
	}

	if err := s.lockout.ClearFailedAttempts(ctx, email); err != nil {
		logger.Warn("Failed to clear failed attempts", zap.Error(err))
	}

	pair, err := s.issue(ctx, profile, input.IPAddress, input.UserAgent)
	if err != nil {
		return nil, err
	}

	if err := s.presenceRepo.SetUserOnline(ctx, profile.ID); err != nil {
		logger.Warn("Failed to set presence on sign in",
			zap.String("user_id", profile.ID.String()),
			zap.Error(err))
	}

	s.record(ctx, audit.LoginSuccess(profile.ID, profile.Email, input.IPAddress))
	return pair, nil
}

func (s *Service) failSignIn(ctx context.Context, email, ip, reason string) error {
	s.metrics.RecordAuthFailure("password", "invalid_credentials")
	s.record(ctx, audit.LoginFailure(email, ip, reason))

	locked, err := s.lockout.RecordFailedAttempt(ctx, email)
	if err != nil {
		logger.Warn("Failed to record failed attempt", zap.Error(err))
	}
	if locked {
		s.metrics.RecordAccountLocked()
		logger.Warn("Account locked after repeated failures", zap.String("email", maskEmail(email)))
	}
	return errors.InvalidCredentialsError()
}

// issue creates a token pair and the session bound to its refresh token
func (s *Service) issue(ctx context.Context, profile *domain.Profile, ip, userAgent string) (*TokenPair, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(profile.ID, profile.Email, profile.Username, string(profile.Role))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "Failed to generate access token", err)
	}

	refreshToken, err := s.jwtManager.GenerateRefreshToken(profile.ID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "Failed to generate refresh token", err)
	}
	refreshClaims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "Failed to read refresh token", err)
	}

	now := time.Now()
	ttl := jwt.RemainingTTL(refreshClaims)
	session := &redis.Session{
		SessionID:  refreshClaims.ID,
		UserID:     profile.ID,
		RefreshJTI: refreshClaims.ID,
		IPAddress:  ip,
		UserAgent:  userAgent,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := s.sessionRepo.CreateSession(ctx, session, ttl); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "Failed to create session", err)
	}

	return &TokenPair{
		Profile:      profile.ToResponse(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtManager.AccessTokenDuration().Seconds()),
	}, nil
}

// Refresh rotates a refresh token. The old session is dropped and the old
// refresh token can no longer be used.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, errors.InvalidTokenError("Invalid refresh token")
	}

	session, err := s.sessionRepo.GetSession(ctx, claims.ID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "Failed to load session", err)
	}
	if session == nil || session.UserID != claims.UserID {
		return nil, errors.InvalidTokenError("Session expired or signed out")
	}

	profile, err := s.profileRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, errors.ErrCodeProfileNotFound) {
			return nil, errors.InvalidTokenError("Profile no longer exists")
		}
		return nil, errors.DatabaseError(err)
	}
	if !profile.IsActive() {
		return nil, errors.AccountSuspendedError()
	}

	if err := s.sessionRepo.DeleteSession(ctx, session.SessionID, session.UserID); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "Failed to rotate session", err)
	}

	return s.issue(ctx, profile, session.IPAddress, session.UserAgent)
}

// SignOut revokes the access token and, when given, the session of the refresh token
func (s *Service) SignOut(ctx context.Context, userID uuid.UUID, accessToken, refreshToken string) error {
	if claims, err := s.jwtManager.ValidateAccessToken(accessToken); err == nil && claims.ID != "" {
		if err := s.sessionRepo.BlacklistToken(ctx, claims.ID, jwt.RemainingTTL(claims)); err != nil {
			logger.Warn("Failed to blacklist token during sign out",
				zap.String("user_id", userID.String()),
				zap.String("jti", claims.ID),
				zap.Error(err))
		}
	}

	if refreshToken != "" {
		claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
		if err == nil && claims.UserID == userID {
			if err := s.sessionRepo.DeleteSession(ctx, claims.ID, userID); err != nil {
				return errors.Wrap(errors.ErrCodeInternal, "Failed to delete session", err)
			}
		}
	}

	if err := s.presenceRepo.SetUserOffline(ctx, userID); err != nil {
		logger.Warn("Failed to update presence during sign out",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}

	return nil
}

// GetProfile returns the signed-in profile
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.ProfileResponse, error) {
	profile, err := s.profileRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.IsAppError(err) {
			return nil, err
		}
		return nil, errors.DatabaseError(err)
	}
	return profile.ToResponse(), nil
}

func (s *Service) record(ctx context.Context, event *audit.SecurityEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event); err != nil {
		logger.Warn("Failed to write audit event",
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}

// maskEmail keeps the first character and the domain, used in logs
func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 1 {
		return "***" + email[max(at, 0):]
	}
	return email[:1] + "***" + email[at:]
}
