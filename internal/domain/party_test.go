package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadKey(t *testing.T) {
	alice := &Profile{ID: uuid.New(), Username: "alice"}
	bob := &Profile{ID: uuid.New(), Username: "bob"}

	// both sides of a web thread share one partition
	assert.Equal(t,
		ThreadKey(alice.ID, SystemUser{Profile: bob}),
		ThreadKey(bob.ID, SystemUser{Profile: alice}),
	)

	sms := ThreadKey(alice.ID, ExternalContact{Mobile: "+639171234567"})
	assert.Equal(t, "sms:"+alice.ID.String()+":+639171234567", sms)
}

func TestMarshalPartyJSON(t *testing.T) {
	profile := &Profile{ID: uuid.New(), Username: "alice", Role: RoleUser, Status: ProfileActive}

	data, err := MarshalPartyJSON(SystemUser{Profile: profile})
	require.NoError(t, err)

	var resp PartyResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	assert.Equal(t, PartySystemUser, resp.Kind)
	assert.Equal(t, "alice", resp.Name)
	require.NotNil(t, resp.Profile)
	assert.Equal(t, profile.ID, resp.Profile.ID)

	data, err = MarshalPartyJSON(ExternalContact{Mobile: "+63917"})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &resp))
	assert.Equal(t, PartyExternalContact, resp.Kind)
	assert.Equal(t, "+63917", resp.Name)
	assert.Equal(t, "+63917", resp.Mobile)
}

func TestRoleAndLeadStatus(t *testing.T) {
	assert.True(t, RoleAdmin.IsAdmin())
	assert.True(t, RoleSuperAdmin.IsAdmin())
	assert.False(t, RoleUser.IsAdmin())
	assert.False(t, Role("ROOT").Valid())

	assert.True(t, LeadQualified.Valid())
	assert.False(t, LeadStatus("LOST").Valid())
}

func TestCalculateBucket(t *testing.T) {
	assert.Equal(t, 202601, CalculateBucket(time.Date(2026, time.January, 31, 23, 0, 0, 0, time.UTC)))
	// buckets are UTC based
	east := time.FixedZone("UTC+8", 8*3600)
	assert.Equal(t, 202512, CalculateBucket(time.Date(2026, time.January, 1, 5, 0, 0, 0, east)))
}
