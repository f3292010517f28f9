package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hrease/apiserver/types"
)

const (
	resetKeySalt     = "hrease.auth.ResetTokens"
	resetDigestBytes = 16
	// Tokens stamped slightly in the future are tolerated to absorb clock skew between replicas.
	resetFutureSkew = time.Minute
)

// ResetTokens derives password-reset tokens from user state instead of storing them.
// A token is bound to the user's id, email, password hash and last login, so
// changing the password (or logging in) invalidates every outstanding token.
type ResetTokens struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewResetTokens builds a generator. now may be nil.
func NewResetTokens(secret []byte, ttl time.Duration, now func() time.Time) *ResetTokens {
	if now == nil {
		now = time.Now
	}
	sum := sha256.Sum256(append([]byte(resetKeySalt), secret...))
	return &ResetTokens{key: sum[:], ttl: ttl, now: now}
}

// TTL returns how long generated tokens stay valid.
func (g *ResetTokens) TTL() time.Duration {
	return g.ttl
}

// Generate returns a URL-safe token of the form "<base36 timestamp>-<hex digest>".
func (g *ResetTokens) Generate(user types.User) string {
	return g.makeToken(user, g.now().Unix())
}

// Check reports whether token is currently valid for user. It never errors;
// any mismatch, expiry or malformed input yields false.
func (g *ResetTokens) Check(user types.User, token string) bool {
	if user.ID < 1 || token == "" {
		return false
	}
	tsPart, _, ok := strings.Cut(token, "-")
	if !ok || tsPart == "" {
		return false
	}
	ts, err := strconv.ParseInt(tsPart, 36, 64)
	if err != nil || ts < 0 {
		return false
	}

	expected := g.makeToken(user, ts)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(token)) != 1 {
		return false
	}

	issued := time.Unix(ts, 0)
	now := g.now()
	if issued.After(now.Add(resetFutureSkew)) {
		return false
	}
	return now.Sub(issued) <= g.ttl
}

func (g *ResetTokens) makeToken(user types.User, ts int64) string {
	lastLogin := ""
	if user.LastLogin != nil {
		lastLogin = strconv.FormatInt(user.LastLogin.Unix(), 10)
	}

	mac := hmac.New(sha256.New, g.key)
	fmt.Fprintf(mac, "%d|%s|%s|%d|%s", user.ID, user.PasswordHash, lastLogin, ts, user.Email)
	digest := mac.Sum(nil)
	return strconv.FormatInt(ts, 36) + "-" + hex.EncodeToString(digest[:resetDigestBytes])
}
