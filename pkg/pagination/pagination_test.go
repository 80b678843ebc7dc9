package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		limit  string
		offset string
		want   Params
	}{
		{"defaults", "", "", Params{Limit: 20}},
		{"explicit", "50", "10", Params{Limit: 50, Offset: 10}},
		{"too large", "1000", "", Params{Limit: 100}},
		{"zero limit", "0", "", Params{Limit: 20}},
		{"negative offset", "10", "-5", Params{Limit: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.limit, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("ten", "")
	assert.Error(t, err)

	_, err = Parse("", "x")
	assert.Error(t, err)
}
