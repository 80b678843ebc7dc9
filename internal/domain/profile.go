package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is the access level of a profile
type Role string

const (
	RoleSuperAdmin Role = "SUPERADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleUser       Role = "USER"
	RoleGuest      Role = "GUEST"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleUser, RoleGuest:
		return true
	}
	return false
}

// IsAdmin reports whether the role can reach the admin surface
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// ProfileStatus is the lifecycle state of an account
type ProfileStatus string

const (
	ProfileActive          ProfileStatus = "ACTIVE"
	ProfileSuspended       ProfileStatus = "SUSPENDED"
	ProfilePendingApproval ProfileStatus = "PENDING_APPROVAL"
)

// Profile is a registered system user.
// Maps to CockroachDB profiles table
type Profile struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	Email        string        `json:"email" db:"email"`
	Username     string        `json:"username" db:"username"`
	PasswordHash string        `json:"-" db:"password_hash"` // Never expose in JSON
	Mobile       string        `json:"mobile,omitempty" db:"mobile"`
	Role         Role          `json:"role" db:"role"`
	Status       ProfileStatus `json:"status" db:"status"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the profile may sign in and be called
func (p *Profile) IsActive() bool {
	return p.Status == ProfileActive
}

// SignUpRequest represents data needed to register a new account
type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=8"`
	Mobile   string `json:"mobile"`
}

// SignInRequest represents login credentials
type SignInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// ProfileUpdate holds the fields a user may change on their own profile
type ProfileUpdate struct {
	Username *string `json:"username,omitempty" binding:"omitempty,min=3,max=50"`
	Mobile   *string `json:"mobile,omitempty"`
}

// ProfileFilter narrows profile listings
type ProfileFilter struct {
	Status ProfileStatus
	Role   Role
	Search string
	Limit  int
	Offset int
}

// ProfileResponse is the safe profile representation returned to clients
type ProfileResponse struct {
	ID        uuid.UUID     `json:"id"`
	Email     string        `json:"email"`
	Username  string        `json:"username"`
	Mobile    string        `json:"mobile,omitempty"`
	Role      Role          `json:"role"`
	Status    ProfileStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// ToResponse converts Profile to ProfileResponse (removes sensitive data)
func (p *Profile) ToResponse() *ProfileResponse {
	return &ProfileResponse{
		ID:        p.ID,
		Email:     p.Email,
		Username:  p.Username,
		Mobile:    p.Mobile,
		Role:      p.Role,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
	}
}

// ToProfile rebuilds a profile from its public representation
func (r *ProfileResponse) ToProfile() *Profile {
	return &Profile{
		ID:        r.ID,
		Email:     r.Email,
		Username:  r.Username,
		Mobile:    r.Mobile,
		Role:      r.Role,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
}
