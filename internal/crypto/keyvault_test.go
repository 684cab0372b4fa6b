package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyVaultRoundTrip(t *testing.T) {
	vault, err := NewKeyVault("correct horse battery staple")
	require.NoError(t, err)

	secret := []byte("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	blob, err := vault.Seal(secret)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), string(secret))

	got, err := vault.Open(blob)
	require.NoError(t, err)
	assert.Equal(t, secret, got)
}

func TestKeyVaultWrongPassword(t *testing.T) {
	vault, err := NewKeyVault("right password")
	require.NoError(t, err)
	blob, err := vault.Seal([]byte("secret"))
	require.NoError(t, err)

	other, err := NewKeyVault("wrong password")
	require.NoError(t, err)
	_, err = other.Open(blob)
	assert.ErrorContains(t, err, "decrypt")
}

func TestKeyVaultDistinctBlobs(t *testing.T) {
	vault, err := NewKeyVault("pw")
	require.NoError(t, err)

	a, err := vault.Seal([]byte("same key"))
	require.NoError(t, err)
	b, err := vault.Seal([]byte("same key"))
	require.NoError(t, err)
	// Random salt and nonce per seal.
	assert.NotEqual(t, a, b)
}

func TestKeyVaultRejects(t *testing.T) {
	_, err := NewKeyVault("")
	assert.Error(t, err)

	vault, err := NewKeyVault("pw")
	require.NoError(t, err)
	_, err = vault.Open([]byte{1, 2, 3})
	assert.ErrorContains(t, err, "too short")
	_, err = vault.Open(append([]byte{9}, make([]byte, 64)...))
	assert.ErrorContains(t, err, "version")
}
