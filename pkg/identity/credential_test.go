package identity

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	t.Run("ProducesVerifiableHash", func(t *testing.T) {
		hash, salt, err := HashPassword("correct horse battery")
		require.NoError(t, err)

		assert.True(t, VerifyPassword("correct horse battery", hash, salt))
		assert.False(t, VerifyPassword("wrong horse battery", hash, salt))
	})

	t.Run("SaltAndHashSizes", func(t *testing.T) {
		hash, salt, err := HashPassword("password123")
		require.NoError(t, err)

		rawSalt, err := base64.StdEncoding.DecodeString(salt)
		require.NoError(t, err)
		assert.Len(t, rawSalt, SaltLength)

		rawHash, err := base64.StdEncoding.DecodeString(hash)
		require.NoError(t, err)
		assert.Len(t, rawHash, KeyLength)
	})

	t.Run("UniqueSaltPerCall", func(t *testing.T) {
		hash1, salt1, err := HashPassword("password123")
		require.NoError(t, err)
		hash2, salt2, err := HashPassword("password123")
		require.NoError(t, err)

		assert.NotEqual(t, salt1, salt2)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("RejectsShortPassword", func(t *testing.T) {
		_, _, err := HashPassword("short")
		assert.ErrorIs(t, err, ErrPasswordTooShort)
	})
}

func TestVerifyPassword(t *testing.T) {
	t.Run("MalformedStoredValues", func(t *testing.T) {
		assert.False(t, VerifyPassword("password123", "not base64!!!", "AAAA"))
		assert.False(t, VerifyPassword("password123", "AAAA", "not base64!!!"))
		assert.False(t, VerifyPassword("password123", "", ""))
	})
}

func TestGeneratePassword(t *testing.T) {
	p1, err := GeneratePassword(18)
	require.NoError(t, err)
	p2, err := GeneratePassword(18)
	require.NoError(t, err)

	assert.NotEmpty(t, p1)
	assert.NotEqual(t, p1, p2)
}
