package auth

import (
	_ "embed"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/hrease/apiserver/types"
)

const (
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes; longer passwords are refused instead of truncated.
	maxPasswordBytes = 72

	maxSimilarity = 0.7
)

//go:embed common_passwords.txt
var commonPasswordList string

var (
	commonOnce      sync.Once
	commonPasswords map[string]struct{}

	nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)
)

// ValidatePassword applies the password policy and returns one message per
// violated rule. user supplies the attributes the password must not resemble;
// a zero User skips that check.
func ValidatePassword(password string, user types.User) []string {
	var problems []string
	if attr, ok := similarAttribute(password, user); ok {
		problems = append(problems, "The password is too similar to the "+attr+".")
	}
	if len([]rune(password)) < minPasswordLength {
		problems = append(problems, "This password is too short. It must contain at least 8 characters.")
	}
	if len(password) > maxPasswordBytes {
		problems = append(problems, "This password is too long. It must contain at most 72 bytes.")
	}
	if isCommonPassword(password) {
		problems = append(problems, "This password is too common.")
	}
	if password != "" && isAllDigits(password) {
		problems = append(problems, "This password is entirely numeric.")
	}
	return problems
}

func isCommonPassword(password string) bool {
	commonOnce.Do(func() {
		commonPasswords = make(map[string]struct{})
		for _, line := range strings.Split(commonPasswordList, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				commonPasswords[line] = struct{}{}
			}
		}
	})
	_, ok := commonPasswords[strings.ToLower(strings.TrimSpace(password))]
	return ok
}

// similarAttribute returns the name of the first user attribute the password
// resembles. Each attribute is compared whole and split on non-word runs.
func similarAttribute(password string, user types.User) (string, bool) {
	attrs := []struct{ name, value string }{
		{"email address", user.Email},
		{"first name", user.FirstName},
		{"last name", user.LastName},
	}
	pw := []rune(strings.ToLower(password))
	for _, attr := range attrs {
		value := strings.ToLower(strings.TrimSpace(attr.value))
		if value == "" {
			continue
		}
		parts := append(nonWord.Split(value, -1), value)
		for _, part := range parts {
			p := []rune(part)
			if len(p) == 0 || exceedsLengthRatio(len(pw), len(p)) {
				continue
			}
			if quickRatio(pw, p) >= maxSimilarity {
				return attr.name, true
			}
		}
	}
	return "", false
}

// exceedsLengthRatio reports whether the password is so much longer than the
// attribute part that no meaningful similarity is possible.
func exceedsLengthRatio(pwLen, partLen int) bool {
	bound := maxSimilarity / 2 * float64(pwLen)
	return pwLen >= 10*partLen && float64(partLen) < bound
}

// quickRatio is 2*M/T where M counts characters shared by a and b as
// multisets and T is their combined length. It ignores ordering.
func quickRatio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1
	}
	avail := make(map[rune]int, len(b))
	for _, r := range b {
		avail[r]++
	}
	matches := 0
	for _, r := range a {
		if avail[r] > 0 {
			avail[r]--
			matches++
		}
	}
	return 2 * float64(matches) / float64(total)
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
