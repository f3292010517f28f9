package auth

import (
	"strings"
	"testing"

	"github.com/hrease/apiserver/types"
)

func TestValidatePassword(t *testing.T) {
	ada := types.User{Email: "ada.lovelace@x.com", FirstName: "Ada", LastName: "Lovelace"}

	cases := []struct {
		name     string
		password string
		user     types.User
		want     []string
	}{
		{"strong", "Secret123!", types.User{Email: "a@x.com", FirstName: "Ada", LastName: "Lovelace"}, nil},
		{"short", "short", types.User{Email: "a@x.com"}, []string{"too short"}},
		{"too long", strings.Repeat("x7", 40), types.User{}, []string{"too long"}},
		{"numeric and common", "1234567890", types.User{}, []string{"too common", "entirely numeric"}},
		{"numeric", "90210877", types.User{}, []string{"entirely numeric"}},
		{"common", "password1", types.User{Email: "ada@x.com"}, []string{"too common"}},
		{"common any case", "QWERTY123", types.User{Email: "ada@x.com"}, []string{"too common"}},
		{"whole email", "adalovelace", ada, []string{"similar to the email address"}},
		{"email with suffix", "ada.lovelace1", ada, []string{"similar to the email address"}},
		{"last name", "Lovelace99", types.User{Email: "z@x.com", LastName: "Lovelace"}, []string{"similar to the last name"}},
		{"first name", "Augustaa", types.User{FirstName: "Augusta"}, []string{"similar to the first name"}},
		{"unrelated to user", "BrandNew456!", ada, nil},
		{"no attributes", "adalovelace", types.User{}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ValidatePassword(tc.password, tc.user)
			if len(got) != len(tc.want) {
				t.Fatalf("ValidatePassword(%q) = %v, want %d problems", tc.password, got, len(tc.want))
			}
			for i, fragment := range tc.want {
				if !strings.Contains(got[i], fragment) {
					t.Fatalf("problem %d = %q, want it to mention %q", i, got[i], fragment)
				}
			}
		})
	}
}

func TestQuickRatioIgnoresOrder(t *testing.T) {
	if r := quickRatio([]rune("abc"), []rune("cba")); r != 1 {
		t.Fatalf("quickRatio = %v, want 1", r)
	}
	if r := quickRatio([]rune("abcd"), []rune("wxyz")); r != 0 {
		t.Fatalf("quickRatio = %v, want 0", r)
	}
}
