package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(8, BackupCodeAlphabet)
	require.NoError(t, err)
	require.Len(t, code, 8)
	for _, r := range code {
		require.True(t, strings.ContainsRune(BackupCodeAlphabet, r), "unexpected rune %q", r)
	}

	_, err = GenerateCode(0, BackupCodeAlphabet)
	require.Error(t, err)
	_, err = GenerateCode(8, "A")
	require.Error(t, err)
}

func TestGenerateBackupCodes(t *testing.T) {
	codes, err := GenerateBackupCodes(10, 8)
	require.NoError(t, err)
	require.Len(t, codes, 10)

	seen := map[string]bool{}
	for _, c := range codes {
		require.Len(t, c, 8)
		require.False(t, seen[c], "duplicate code %s", c)
		seen[c] = true
	}

	_, err = GenerateBackupCodes(0, 8)
	require.Error(t, err)
}

func TestNormalizeBackupCode(t *testing.T) {
	require.Equal(t, "K7PQ2MXR", NormalizeBackupCode("k7pq-2mxr"))
	require.Equal(t, "K7PQ2MXR", NormalizeBackupCode(" K7PQ 2MXR "))
	require.Equal(t, "", NormalizeBackupCode(""))
}
