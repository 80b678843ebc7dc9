package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"commhub-backend/internal/domain"
)

// profileCacheTTL bounds how stale a cached profile may get
const profileCacheTTL = 10 * time.Minute

// DirectoryRepository caches the user directory in Redis: username and
// email lookups plus whole profiles for the call path
type DirectoryRepository struct {
	client *redis.Client
}

// NewDirectoryRepository creates a new DirectoryRepository
func NewDirectoryRepository(client *redis.Client) *DirectoryRepository {
	return &DirectoryRepository{client: client}
}

func emailKey(email string) string {
	return fmt.Sprintf("directory:email:%s", strings.ToLower(email))
}

func usernameKey(username string) string {
	return fmt.Sprintf("directory:username:%s", strings.ToLower(username))
}

func profileKey(id uuid.UUID) string {
	return fmt.Sprintf("directory:profile:%s", id)
}

// SetMappings records email and username of a profile
func (r *DirectoryRepository) SetMappings(ctx context.Context, p *domain.Profile) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, emailKey(p.Email), p.ID.String(), 0)
	pipe.Set(ctx, usernameKey(p.Username), p.ID.String(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set directory mappings: %w", err)
	}
	return nil
}

// DeleteMappings removes the email and username entries of a profile
func (r *DirectoryRepository) DeleteMappings(ctx context.Context, p *domain.Profile) error {
	return r.client.Del(ctx, emailKey(p.Email), usernameKey(p.Username), profileKey(p.ID)).Err()
}

// GetUserIDByUsername retrieves user_id from username; uuid.Nil when unknown
func (r *DirectoryRepository) GetUserIDByUsername(ctx context.Context, username string) (uuid.UUID, error) {
	return r.lookup(ctx, usernameKey(username))
}

func (r *DirectoryRepository) lookup(ctx context.Context, key string) (uuid.UUID, error) {
	userIDStr, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return uuid.Nil, nil
		}
		return uuid.Nil, fmt.Errorf("failed to get user ID: %w", err)
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user ID format: %w", err)
	}
	return userID, nil
}

// CacheProfile stores p for profileCacheTTL
func (r *DirectoryRepository) CacheProfile(ctx context.Context, p *domain.Profile) error {
	data, err := json.Marshal(p.ToResponse())
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	return r.client.Set(ctx, profileKey(p.ID), data, profileCacheTTL).Err()
}

// GetCachedProfile returns the cached profile or nil on a miss
func (r *DirectoryRepository) GetCachedProfile(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	data, err := r.client.Get(ctx, profileKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached profile: %w", err)
	}

	var resp domain.ProfileResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached profile: %w", err)
	}
	return resp.ToProfile(), nil
}

// InvalidateProfile drops the cached profile
func (r *DirectoryRepository) InvalidateProfile(ctx context.Context, id uuid.UUID) error {
	return r.client.Del(ctx, profileKey(id)).Err()
}
