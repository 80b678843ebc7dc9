package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// PartyKind tags the Party variants on the wire
type PartyKind string

const (
	PartySystemUser      PartyKind = "system_user"
	PartyExternalContact PartyKind = "external_contact"
)

// Party is the counterpart of a conversation thread: either a registered
// SystemUser reachable over web chat and calls, or an ExternalContact
// reachable by SMS only.
type Party interface {
	Kind() PartyKind
	DisplayName() string
	party()
}

// SystemUser is a registered profile
type SystemUser struct {
	Profile *Profile
}

func (SystemUser) Kind() PartyKind { return PartySystemUser }

func (u SystemUser) DisplayName() string {
	if u.Profile == nil {
		return ""
	}
	return u.Profile.Username
}

func (SystemUser) party() {}

// ExternalContact is a phone number outside the system
type ExternalContact struct {
	Mobile string
	Name   string
}

func (ExternalContact) Kind() PartyKind { return PartyExternalContact }

func (c ExternalContact) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Mobile
}

func (ExternalContact) party() {}

// PartyRef is the serialized form of a Party used by HTTP requests
type PartyRef struct {
	Kind      PartyKind  `json:"kind" binding:"required,oneof=system_user external_contact"`
	ProfileID *uuid.UUID `json:"profile_id,omitempty"`
	Mobile    string     `json:"mobile,omitempty"`
	Name      string     `json:"name,omitempty"`
}

// PartyResponse is the JSON shape of a resolved Party
type PartyResponse struct {
	Kind    PartyKind        `json:"kind"`
	Name    string           `json:"name"`
	Profile *ProfileResponse `json:"profile,omitempty"`
	Mobile  string           `json:"mobile,omitempty"`
}

// MarshalPartyJSON encodes any Party variant with its kind tag
func MarshalPartyJSON(p Party) ([]byte, error) {
	resp := PartyResponse{Kind: p.Kind(), Name: p.DisplayName()}
	switch v := p.(type) {
	case SystemUser:
		if v.Profile != nil {
			resp.Profile = v.Profile.ToResponse()
		}
	case ExternalContact:
		resp.Mobile = v.Mobile
	default:
		return nil, fmt.Errorf("unknown party variant %T", p)
	}
	return json.Marshal(resp)
}
