package auth

import (
	"testing"
	"time"

	"github.com/hrease/apiserver/types"
)

func testUser() types.User {
	return types.User{ID: 3, Email: "a@x.com", PasswordHash: "$2a$10$hash-one"}
}

func TestResetTokenRoundTrip(t *testing.T) {
	c := &clock{now: time.Unix(1_760_000_000, 0)}
	gen := NewResetTokens([]byte("secret"), 24*time.Hour, c.Now)
	user := testUser()

	token := gen.Generate(user)
	if !gen.Check(user, token) {
		t.Fatalf("expected fresh token to validate")
	}

	c.Advance(23 * time.Hour)
	if !gen.Check(user, token) {
		t.Fatalf("expected token to validate inside the window")
	}

	c.Advance(2 * time.Hour)
	if gen.Check(user, token) {
		t.Fatalf("expected token to expire after the window")
	}
}

func TestResetTokenInvalidatedByPasswordChange(t *testing.T) {
	gen := NewResetTokens([]byte("secret"), time.Hour, nil)
	user := testUser()
	token := gen.Generate(user)

	user.PasswordHash = "$2a$10$hash-two"
	if gen.Check(user, token) {
		t.Fatalf("expected token to be invalid after password change")
	}
}

func TestResetTokenInvalidatedByLogin(t *testing.T) {
	gen := NewResetTokens([]byte("secret"), time.Hour, nil)
	user := testUser()
	token := gen.Generate(user)

	login := time.Now()
	user.LastLogin = &login
	if gen.Check(user, token) {
		t.Fatalf("expected token to be invalid after a new login")
	}
}

func TestResetTokenRejectsTamperingAndOtherUsers(t *testing.T) {
	gen := NewResetTokens([]byte("secret"), time.Hour, nil)
	user := testUser()
	token := gen.Generate(user)

	tampered := []byte(token)
	last := len(tampered) - 1
	if tampered[last] == '0' {
		tampered[last] = '1'
	} else {
		tampered[last] = '0'
	}
	if gen.Check(user, string(tampered)) {
		t.Fatalf("expected tampered token to fail")
	}

	other := user
	other.ID = 4
	if gen.Check(other, token) {
		t.Fatalf("expected token to be bound to its user")
	}

	for _, bad := range []string{"", "-", "zz", "!!-abc", token + "x"} {
		if gen.Check(user, bad) {
			t.Fatalf("expected malformed token %q to fail", bad)
		}
	}

	foreign := NewResetTokens([]byte("other-secret"), time.Hour, nil)
	if foreign.Check(user, token) {
		t.Fatalf("expected token signed with another secret to fail")
	}
}

func TestResetTokenRejectsFutureTimestamps(t *testing.T) {
	c := &clock{now: time.Unix(1_760_000_000, 0)}
	gen := NewResetTokens([]byte("secret"), time.Hour, c.Now)
	user := testUser()

	c.Advance(10 * time.Minute)
	token := gen.Generate(user)
	c.Advance(-10 * time.Minute)
	if gen.Check(user, token) {
		t.Fatalf("expected token from the future to fail")
	}
}

func TestUIDRoundTrip(t *testing.T) {
	uid := EncodeUID(1234)
	id, err := DecodeUID(uid)
	if err != nil || id != 1234 {
		t.Fatalf("expected 1234, got %d, %v", id, err)
	}
	if _, err := DecodeUID(uid + "=="); err != nil {
		t.Fatalf("padded uid should decode: %v", err)
	}
	for _, bad := range []string{"", "***", EncodeUID(0), "YWJj"} {
		if _, err := DecodeUID(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(4)
	hash, err := h.Hash("Secret123!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !h.Verify(hash, "Secret123!") || h.Verify(hash, "wrong-password") {
		t.Fatalf("unexpected verify results")
	}
	unusable := UnusableHash()
	if IsUsablePassword(unusable) || h.Verify(unusable, unusable) {
		t.Fatalf("unusable hash must never verify")
	}
}
