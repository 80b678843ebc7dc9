package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStringFromFile(t *testing.T) {
	t.Setenv("TEST_SECRET", "from-env")
	assert.Equal(t, "from-env", GetStringFromFile("TEST_SECRET", "default"))

	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))
	t.Setenv("TEST_SECRET_FILE", path)
	assert.Equal(t, "from-file", GetStringFromFile("TEST_SECRET", "default"))

	t.Setenv("TEST_SECRET_FILE", filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, "from-env", GetStringFromFile("TEST_SECRET", "default"))
}

func TestGetIntAndDuration(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty-two")
	t.Setenv("TEST_DURATION", "3s")

	assert.Equal(t, 42, GetInt("TEST_INT", 1))
	assert.Equal(t, 1, GetInt("TEST_BAD_INT", 1))
	assert.Equal(t, 1, GetInt("TEST_UNSET_INT", 1))
	assert.Equal(t, 3*time.Second, GetDuration("TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, GetDuration("TEST_UNSET_DURATION", time.Second))
}
