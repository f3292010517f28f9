package auth

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const unusablePrefix = "!"

// PasswordHasher hashes and verifies passwords with bcrypt.
type PasswordHasher struct {
	cost      int
	dummyHash []byte
}

// NewPasswordHasher returns a hasher using cost, or bcrypt.DefaultCost when cost is out of range.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("hrease-dummy-password"), cost)
	return &PasswordHasher{cost: cost, dummyHash: dummy}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether password matches hash. Unusable hashes never match,
// but still cost one bcrypt comparison so timing does not reveal them.
func (h *PasswordHasher) Verify(hash, password string) bool {
	if !IsUsablePassword(hash) {
		h.Burn(password)
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Burn performs a comparison against a throwaway hash. Login calls it for
// unknown emails so they take as long as a wrong password.
func (h *PasswordHasher) Burn(password string) {
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(password))
}

// UnusableHash returns a marker stored for accounts provisioned without a password.
func UnusableHash() string {
	var buf [20]byte
	_, _ = rand.Read(buf[:])
	return unusablePrefix + hex.EncodeToString(buf[:])
}

func IsUsablePassword(hash string) bool {
	return hash != "" && !strings.HasPrefix(hash, unusablePrefix)
}
