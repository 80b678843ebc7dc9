package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		pw      string
		wantErr bool
	}{
		{"ok", "password123", false},
		{"too short", "abc12", true},
		{"too long", strings.Repeat("ab", 40), true},
		{"common", "Password1", true},
		{"repeated", "aaaaAAAA", true},
		{"unicode", "pässwörd-42", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.pw)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHashAndMatches(t *testing.T) {
	Cost = bcrypt.MinCost
	t.Cleanup(func() { Cost = bcrypt.DefaultCost })

	hash, err := Hash("password123")
	require.NoError(t, err)

	assert.NotEqual(t, "password123", hash)
	assert.True(t, Matches(hash, "password123"))
	assert.False(t, Matches(hash, "password124"))
	assert.False(t, Matches("not-a-hash", "password123"))
}
