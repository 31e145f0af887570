package cryptox

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// BackupCodeAlphabet is upper-case alphanumerics without the easily
// confused 0/O and 1/I.
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateCode returns a uniformly random string of length characters drawn
// from alphabet.
func GenerateCode(length int, alphabet string) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("code length must be positive, got %d", length)
	}
	if len(alphabet) < 2 {
		return "", fmt.Errorf("alphabet too small: %d", len(alphabet))
	}

	code := make([]byte, length)
	limit := big.NewInt(int64(len(alphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate random code: %w", err)
		}
		code[i] = alphabet[n.Int64()]
	}
	return string(code), nil
}

// GenerateBackupCodes returns count distinct backup codes.
func GenerateBackupCodes(count, length int) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("backup code count must be positive, got %d", count)
	}

	seen := make(map[string]struct{}, count)
	codes := make([]string, 0, count)
	for len(codes) < count {
		code, err := GenerateCode(length, BackupCodeAlphabet)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// NormalizeBackupCode upper-cases a submitted code and drops spaces and
// dashes users tend to type.
func NormalizeBackupCode(code string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '\t':
			return -1
		}
		if r >= 'a' && r <= 'z' {
			return r - 'a' + 'A'
		}
		return r
	}, code)
}
