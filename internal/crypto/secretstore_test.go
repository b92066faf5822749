package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretRoundTrip(t *testing.T) {
	blob, err := EncryptSecret("super-secret-api-key", "correct horse")
	require.NoError(t, err)

	got, err := DecryptSecret(blob, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "super-secret-api-key", got)
}

func TestDecryptSecret_WrongPassword(t *testing.T) {
	blob, err := EncryptSecret("super-secret-api-key", "correct horse")
	require.NoError(t, err)

	_, err = DecryptSecret(blob, "battery staple")
	assert.Error(t, err)
}

func TestEncryptSecret_EmptyInputs(t *testing.T) {
	_, err := EncryptSecret("", "pw")
	assert.Error(t, err)

	_, err = EncryptSecret("secret", "")
	assert.Error(t, err)
}

func TestLoadSecret(t *testing.T) {
	t.Run("raw takes precedence", func(t *testing.T) {
		got, err := LoadSecret(SecretConfig{RawSecret: "raw"})
		require.NoError(t, err)
		assert.Equal(t, "raw", got)
	})

	t.Run("encrypted file", func(t *testing.T) {
		blob, err := EncryptSecret("from-file", "pw")
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "secret.json")
		require.NoError(t, os.WriteFile(path, blob, 0o600))

		got, err := LoadSecret(SecretConfig{EncryptedSecretPath: path, Password: "pw"})
		require.NoError(t, err)
		assert.Equal(t, "from-file", got)
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := LoadSecret(SecretConfig{})
		assert.Error(t, err)
	})
}
