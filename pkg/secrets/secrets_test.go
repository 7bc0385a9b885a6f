package secrets

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "afenda/pkg/domain-errors"
)

var urlSafe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func TestGenerateToken(t *testing.T) {
	for _, n := range []int{1, 16, 31, 32, 33} {
		token, err := GenerateToken(n)
		require.NoError(t, err)
		assert.Len(t, token, n)
		assert.Regexp(t, urlSafe, token)
	}

	a, _ := GenerateToken(32)
	b, _ := GenerateToken(32)
	assert.NotEqual(t, a, b)

	_, err := GenerateToken(0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("abc", "abc"))
	assert.False(t, Equal("abc", "abd"))
	assert.False(t, Equal("abc", "abcd"))
}

func TestHashToken(t *testing.T) {
	token, err := GenerateToken(32)
	require.NoError(t, err)

	hash := HashToken(token)
	assert.Len(t, hash, 64)
	assert.NotContains(t, hash, token)
	assert.Equal(t, hash, HashToken(token))
	assert.NotEqual(t, hash, HashToken(token+"x"))
}

func TestHashEmail(t *testing.T) {
	assert.Equal(t, HashEmail("Alice@Example.com"), HashEmail(" alice@example.com"))
	assert.Len(t, HashEmail("alice@example.com"), 64)
	assert.NotEqual(t, HashEmail("alice@example.com"), HashEmail("bob@example.com"))
}
