package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("operator-pass-1")
	require.NoError(t, err)
	assert.NotEqual(t, "operator-pass-1", hash)

	// Random salt: hashing twice never collides
	again, err := HashPassword("operator-pass-1")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again)
}

func TestHashPassword_TooShort(t *testing.T) {
	for _, password := range []string{"", "short", "1234567"} {
		_, err := HashPassword(password)
		assert.ErrorIs(t, err, ErrPasswordTooShort)
	}
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("Reviewer-Pass-9")
	require.NoError(t, err)

	assert.True(t, CheckPassword("Reviewer-Pass-9", hash))
	assert.False(t, CheckPassword("reviewer-pass-9", hash)) // case sensitive
	assert.False(t, CheckPassword("", hash))
	assert.False(t, CheckPassword("Reviewer-Pass-9", "not-a-bcrypt-hash"))
}
