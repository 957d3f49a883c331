package util

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLicenseKeyFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := GenerateLicenseKey()
		require.NoError(t, err)
		assert.Regexp(t, pattern, key)
		seen[key] = true
	}

	// 100 draws from a 36^16 space must not collide.
	assert.Len(t, seen, 100)
}

func TestGenerateAppSecret(t *testing.T) {
	a, err := GenerateAppSecret()
	require.NoError(t, err)
	b, err := GenerateAppSecret()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Regexp(t, `^[0-9a-f]{64}$`, a)
	assert.NotEqual(t, a, b)
}

func TestGenerateAPIKeyShape(t *testing.T) {
	fullKey, prefix, keyHash, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.Regexp(t, `^kp_`, fullKey)
	assert.Contains(t, fullKey, prefix)
	assert.Len(t, keyHash, 64)
	assert.Equal(t, keyHash, HashAPIKey(fullKey))
}
