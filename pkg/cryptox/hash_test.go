package cryptox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	pepperPath := filepath.Join(os.TempDir(), "twofactor-test-pepper")
	_ = os.Remove(pepperPath)
	SetPepperPath(pepperPath)

	code := m.Run()
	_ = os.Remove(pepperPath)
	os.Exit(code)
}

func TestHashSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
	}{
		{"backup code", "K7PQ2MXR"},
		{"long secret", strings.Repeat("a", 100)},
		{"empty secret", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashSecret(tt.secret)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"), "hash should be in PHC format")

			parts := strings.Split(hash, "$")
			require.Len(t, parts, 6)
			require.NotEmpty(t, parts[4], "salt should not be empty")
			require.NotEmpty(t, parts[5], "hash should not be empty")

			require.NoError(t, VerifySecret(tt.secret, hash))
		})
	}
}

func TestHashSecret_UniqueSalts(t *testing.T) {
	hash1, err := HashSecret("SAMECODE")
	require.NoError(t, err)
	hash2, err := HashSecret("SAMECODE")
	require.NoError(t, err)

	require.NotEqual(t, hash1, hash2, "hashes should differ due to unique salts")
	require.NoError(t, VerifySecret("SAMECODE", hash1))
	require.NoError(t, VerifySecret("SAMECODE", hash2))
}

func TestVerifySecret_Mismatch(t *testing.T) {
	hash, err := HashSecret("K7PQ2MXR")
	require.NoError(t, err)

	for _, wrong := range []string{"K7PQ2MXS", "k7pq2mxr", "K7PQ2MX", ""} {
		require.ErrorIs(t, VerifySecret(wrong, hash), ErrHashMismatch, wrong)
	}
}

func TestVerifySecret_InvalidHashFormat(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty hash", ""},
		{"wrong algorithm", "$bcrypt$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"missing parts", "$argon2id$v=19$m=19456"},
		{"malformed parameters", "$argon2id$v=19$invalid$c2FsdA$aGFzaA"},
		{"invalid base64 salt", "$argon2id$v=19$m=19456,t=2,p=1$!!!invalid!!!$aGFzaA"},
		{"wrong version", "$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySecret("K7PQ2MXR", tt.hash)
			require.Error(t, err)
			require.NotErrorIs(t, err, ErrHashMismatch)
		})
	}
}
