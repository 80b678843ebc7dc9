package domain

import (
	"time"

	"github.com/google/uuid"
)

// Contact is an entry of a user's private address book
type Contact struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Mobile    string    `json:"mobile" db:"mobile"`
	Email     *string   `json:"email,omitempty" db:"email"`
	Notes     *string   `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ContactInput is used for both create and replace
type ContactInput struct {
	Name   string  `json:"name" binding:"required,max=100"`
	Mobile string  `json:"mobile" binding:"required"`
	Email  *string `json:"email,omitempty" binding:"omitempty,email"`
	Notes  *string `json:"notes,omitempty" binding:"omitempty,max=2000"`
}

// AsParty returns the contact as an SMS counterpart
func (c *Contact) AsParty() ExternalContact {
	return ExternalContact{Mobile: c.Mobile, Name: c.Name}
}
