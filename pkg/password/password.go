package password

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/pbkdf2"

	"github.com/vndeals/backend/pkg/random"
)

const (
	SaltLength     = 16
	KeyLength      = 64
	Iterations     = 10000
	MinPasswordLen = 8
	MaxPasswordLen = 128
)

// Common weak passwords rejected as substrings (case-insensitive)
var commonPasswords = []string{
	"password",
	"12345678",
	"qwerty",
	"abc123",
	"123456",
	"admin",
	"letmein",
	"welcome",
	"monkey",
	"dragon",
	"master",
	"123123",
	"passw0rd",
	"shadow",
	"sunshine",
	"princess",
	"starwars",
	"football",
	"trustno1",
	"iloveyou",
}

// Keyboard rows and ordered alphabets used for sequential-run detection
var sequences = []string{
	"qwertyuiop",
	"asdfghjkl",
	"zxcvbnm",
	"abcdefghijklmnopqrstuvwxyz",
	"0123456789",
}

// Hash derives a PBKDF2-HMAC-SHA512 key from the password with a fresh
// 16-byte salt and returns it as "saltHex:derivedHex".
func Hash(plain string) (string, error) {
	if plain == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	salt, err := random.Bytes(SaltLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(plain), salt, Iterations, KeyLength, sha512.New)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(key), nil
}

// Verify recomputes the derived key from the stored salt and compares it in
// constant time. Any parse failure returns false rather than an error.
func Verify(plain, stored string) bool {
	parts := strings.SplitN(stored, ":", 2)
	if len(parts) != 2 {
		return false
	}
	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(parts[1])
	if err != nil || len(want) == 0 {
		return false
	}
	got := pbkdf2.Key([]byte(plain), salt, Iterations, len(want), sha512.New)
	return hmac.Equal(got, want)
}

// StrengthResult reports the outcome of a password policy check.
type StrengthResult struct {
	OK       bool     `json:"ok"`
	Errors   []string `json:"errors"`
	Strength int      `json:"strength"`
}

// ValidateStrength enforces the password policy and scores the password 0-100.
func ValidateStrength(plain string) StrengthResult {
	errs := make([]string, 0)

	if len(plain) < MinPasswordLen {
		errs = append(errs, fmt.Sprintf("must be at least %d characters", MinPasswordLen))
	}
	if len(plain) > MaxPasswordLen {
		errs = append(errs, fmt.Sprintf("must be at most %d characters", MaxPasswordLen))
	}

	hasUpper := false
	hasLower := false
	hasDigit := false
	hasSpecial := false
	for _, r := range plain {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	if !hasUpper {
		errs = append(errs, "must contain at least one uppercase letter")
	}
	if !hasLower {
		errs = append(errs, "must contain at least one lowercase letter")
	}
	if !hasDigit {
		errs = append(errs, "must contain at least one digit")
	}
	if !hasSpecial {
		errs = append(errs, "must contain at least one special character")
	}

	lower := strings.ToLower(plain)
	for _, weak := range commonPasswords {
		if strings.Contains(lower, weak) {
			errs = append(errs, "contains a common password")
			break
		}
	}

	if hasRepeatedRun(plain, 5) {
		errs = append(errs, "must not repeat the same character 5 times in a row")
	}
	if hasSequentialRun(lower, 5) {
		errs = append(errs, "must not contain sequential characters")
	}

	return StrengthResult{
		OK:       len(errs) == 0,
		Errors:   errs,
		Strength: score(plain, len(errs)),
	}
}

func hasRepeatedRun(s string, n int) bool {
	run := 1
	var prev rune
	for i, r := range s {
		if i > 0 && r == prev {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
		prev = r
	}
	return false
}

// hasSequentialRun reports whether any n-character window of s appears in one
// of the known keyboard/alphabet sequences, forward or reversed.
func hasSequentialRun(lower string, n int) bool {
	if len(lower) < n {
		return false
	}
	for i := 0; i+n <= len(lower); i++ {
		window := lower[i : i+n]
		for _, seq := range sequences {
			if strings.Contains(seq, window) || strings.Contains(seq, reverse(window)) {
				return true
			}
		}
	}
	return false
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

func score(plain string, errCount int) int {
	s := len(plain) * 4
	if s > 40 {
		s = 40
	}

	unique := make(map[rune]bool)
	classes := 0
	hasUpper, hasLower, hasDigit, hasSpecial := false, false, false, false
	for _, r := range plain {
		unique[r] = true
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}
	for _, ok := range []bool{hasUpper, hasLower, hasDigit, hasSpecial} {
		if ok {
			classes++
		}
	}
	s += classes * 10

	variety := len(unique) * 2
	if variety > 20 {
		variety = 20
	}
	s += variety

	s -= errCount * 15
	if s < 0 {
		s = 0
	}
	if s > 100 {
		s = 100
	}
	return s
}
