package domain

import (
	"time"

	"github.com/google/uuid"
)

// LeadStatus is the position of a lead in the sales pipeline
type LeadStatus string

const (
	LeadNew       LeadStatus = "NEW"
	LeadContacted LeadStatus = "CONTACTED"
	LeadQualified LeadStatus = "QUALIFIED"
	LeadClosed    LeadStatus = "CLOSED"
)

// Valid reports whether s is a known pipeline stage
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadNew, LeadContacted, LeadQualified, LeadClosed:
		return true
	}
	return false
}

// Lead is an inbound sales enquiry
type Lead struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Email     string     `json:"email" db:"email"`
	Mobile    string     `json:"mobile" db:"mobile"`
	Status    LeadStatus `json:"status" db:"status"`
	CreatedAt time.Time  `json:"timestamp" db:"created_at"`
}

// LeadCreate is the payload of POST /v1/leads
type LeadCreate struct {
	Name   string `json:"name" binding:"required,max=100"`
	Email  string `json:"email" binding:"required,email"`
	Mobile string `json:"mobile" binding:"required"`
}

// LeadStatusUpdate is the payload of PATCH /v1/leads/:id
type LeadStatusUpdate struct {
	Status LeadStatus `json:"status" binding:"required,oneof=NEW CONTACTED QUALIFIED CLOSED"`
}
