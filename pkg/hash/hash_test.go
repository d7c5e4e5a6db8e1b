package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	h, salt, err := HashPassword("geheim123")
	require.NoError(t, err)
	assert.Len(t, h, 64)
	assert.Len(t, salt, 64)

	assert.True(t, CheckPassword("geheim123", h, salt))
	assert.False(t, CheckPassword("geheim124", h, salt))
	assert.False(t, CheckPassword("geheim123", h, ""))
}

func TestHashPasswordUsesFreshSalt(t *testing.T) {
	h1, s1, err := HashPassword("same")
	require.NoError(t, err)
	h2, s2, err := HashPassword("same")
	require.NoError(t, err)
	assert.NotEqual(t, s1, s2)
	assert.NotEqual(t, h1, h2)
}
