package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hrease/apiserver/internal/auth"
	"github.com/hrease/apiserver/internal/notify"
	"github.com/hrease/apiserver/internal/testutil"
	"github.com/hrease/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notify.PasswordReset
}

func (n *recordingNotifier) Enqueue(kind string, payload any) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if msg, ok := payload.(notify.PasswordReset); ok && kind == notify.KindPasswordReset {
		n.messages = append(n.messages, msg)
	}
	return true
}

func (n *recordingNotifier) last(t *testing.T) notify.PasswordReset {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.messages)
	return n.messages[len(n.messages)-1]
}

type fixture struct {
	repo     *testutil.UserRepo
	users    *UserService
	issuer   *auth.Issuer
	resets   *auth.ResetTokens
	notifier *recordingNotifier
	svc      *CredentialService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := testutil.NewUserRepo()
	users := NewUserService(repo, auth.NewPasswordHasher(4))
	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		Secret:     []byte("test-secret"),
		Issuer:     "hrease-test",
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}, testutil.NewBlacklist())
	require.NoError(t, err)
	resets := auth.NewResetTokens([]byte("reset-secret"), 24*time.Hour, nil)
	notifier := &recordingNotifier{}
	return &fixture{
		repo:     repo,
		users:    users,
		issuer:   issuer,
		resets:   resets,
		notifier: notifier,
		svc:      NewCredentialService(users, issuer, resets, notifier, "https://hr.example.com/", nil),
	}
}

func (f *fixture) createUser(t *testing.T, email, password string) types.User {
	t.Helper()
	user, err := f.users.Create(context.Background(), NewUser{
		Email:     email,
		Password:  password,
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)
	return user
}

func TestLoginIssuesTokensForUser(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "a@x.com", "Secret123!")

	result, err := f.svc.Login(context.Background(), " A@X.com ", "Secret123!")
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.User.ID)
	assert.Equal(t, "a@x.com", result.User.Email)

	claims, err := f.issuer.Verify(result.Access)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	stored, err := f.repo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLogin)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "a@x.com", "Secret123!")
	inactive := f.createUser(t, "gone@x.com", "Secret123!")
	f.repo.Modify(inactive.ID, func(u *types.User) { u.IsActive = false })
	f.createUser(t, "nopass@x.com", "")

	cases := []struct{ email, password string }{
		{"a@x.com", "wrong-password"},
		{"nobody@x.com", "Secret123!"},
		{"gone@x.com", "Secret123!"},
		{"nopass@x.com", "anything-at-all"},
	}
	for _, tc := range cases {
		_, err := f.svc.Login(context.Background(), tc.email, tc.password)
		svcErr, ok := AsError(err)
		require.True(t, ok, "expected service error for %s", tc.email)
		assert.Equal(t, CodeAuthenticationFailed, svcErr.Code)
		assert.Equal(t, "No active account found with the given credentials", svcErr.Message)
	}

	_, err := f.svc.Login(context.Background(), "", "")
	assert.True(t, HasCode(err, CodeValidation))
}

func TestRefreshRotatesOnce(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "a@x.com", "Secret123!")
	login, err := f.svc.Login(context.Background(), "a@x.com", "Secret123!")
	require.NoError(t, err)

	pair, err := f.svc.Refresh(context.Background(), login.Refresh)
	require.NoError(t, err)
	assert.NotEqual(t, login.Refresh, pair.Refresh)

	_, err = f.svc.Refresh(context.Background(), login.Refresh)
	assert.True(t, HasCode(err, CodeInvalidToken))

	_, err = f.svc.Refresh(context.Background(), "")
	assert.True(t, HasCode(err, CodeValidation))
}

func TestConcurrentRefreshHasSingleWinner(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "a@x.com", "Secret123!")
	login, err := f.svc.Login(context.Background(), "a@x.com", "Secret123!")
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Refresh(context.Background(), login.Refresh); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestProfileUpdateIgnoresIdentityFields(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "a@x.com", "Secret123!")

	title := "Engineer"
	hire := types.NewDate(2024, time.March, 1)
	profile, err := f.svc.UpdateProfile(context.Background(), user.ID, types.ProfilePatch{
		JobTitle: &title,
		HireDate: &hire,
	})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", profile.Email)
	assert.Equal(t, "Engineer", profile.JobTitle)
	assert.Equal(t, "Ada", profile.FirstName)
	assert.Equal(t, "2024-03-01", profile.HireDate.String())

	long := strings.Repeat("x", 151)
	_, err = f.svc.UpdateProfile(context.Background(), user.ID, types.ProfilePatch{FirstName: &long})
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeValidation, svcErr.Code)
	assert.Contains(t, svcErr.Fields, "first_name")
}

func TestRequestResetSameOutcomeForUnknownEmail(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "a@x.com", "Secret123!")

	require.NoError(t, f.svc.RequestReset(context.Background(), "a@x.com"))
	require.NoError(t, f.svc.RequestReset(context.Background(), "nobody@x.com"))
	assert.Len(t, f.notifier.messages, 1)

	msg := f.notifier.last(t)
	assert.Equal(t, "a@x.com", msg.To)
	prefix := "https://hr.example.com/reset-password/" + auth.EncodeUID(user.ID) + "/"
	assert.True(t, strings.HasPrefix(msg.ResetURL, prefix), msg.ResetURL)

	assert.True(t, HasCode(f.svc.RequestReset(context.Background(), "not-an-email"), CodeValidation))
	assert.True(t, HasCode(f.svc.RequestReset(context.Background(), ""), CodeValidation))
}

func resetParts(t *testing.T, f *fixture) (string, string) {
	t.Helper()
	parts := strings.Split(f.notifier.last(t).ResetURL, "/")
	require.GreaterOrEqual(t, len(parts), 2)
	return parts[len(parts)-2], parts[len(parts)-1]
}

func TestConfirmResetIsSingleUse(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "a@x.com", "Secret123!")
	require.NoError(t, f.svc.RequestReset(context.Background(), "a@x.com"))
	uid, token := resetParts(t, f)

	assert.True(t, f.svc.ValidateResetToken(context.Background(), uid, token))
	require.NoError(t, f.svc.ConfirmReset(context.Background(), uid, token, "BrandNew456!"))
	assert.False(t, f.svc.ValidateResetToken(context.Background(), uid, token))

	err := f.svc.ConfirmReset(context.Background(), uid, token, "Another789!")
	assert.True(t, HasCode(err, CodeInvalidToken))

	_, err = f.svc.Login(context.Background(), "a@x.com", "BrandNew456!")
	assert.NoError(t, err)
}

func TestPasswordChangeInvalidatesResetTokens(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "a@x.com", "Secret123!")
	require.NoError(t, f.svc.RequestReset(context.Background(), "a@x.com"))
	uid, token := resetParts(t, f)

	_, err := f.users.SetPassword(context.Background(), user, "Changed999!")
	require.NoError(t, err)
	assert.False(t, f.svc.ValidateResetToken(context.Background(), uid, token))
}

func TestConfirmResetErrors(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "a@x.com", "Secret123!")
	require.NoError(t, f.svc.RequestReset(context.Background(), "a@x.com"))
	uid, token := resetParts(t, f)

	tampered := token[:len(token)-1] + "0"
	if tampered == token {
		tampered = token[:len(token)-1] + "1"
	}

	cases := []struct {
		name              string
		uid, token, newPw string
		code              Code
	}{
		{"missing fields", "", "", "", CodeValidation},
		{"weak password", uid, token, "123", CodeValidation},
		{"undecodable uid", "***", token, "BrandNew456!", CodeInvalidUID},
		{"unknown user", auth.EncodeUID(999), token, "BrandNew456!", CodeInvalidToken},
		{"tampered token", uid, tampered, "BrandNew456!", CodeInvalidToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.svc.ConfirmReset(context.Background(), tc.uid, tc.token, tc.newPw)
			assert.True(t, HasCode(err, tc.code), "got %v", err)
		})
	}
}

func TestPasswordPolicyUsesUserAttributes(t *testing.T) {
	f := newFixture(t)

	_, err := f.users.Create(context.Background(), NewUser{
		Email:    "ada@x.com",
		Password: "Lovelace99",
		LastName: "Lovelace",
	})
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeValidation, svcErr.Code)
	require.Contains(t, svcErr.Fields, "password")
	assert.Contains(t, svcErr.Fields["password"][0], "last name")

	f.createUser(t, "a@x.com", "Secret123!")
	require.NoError(t, f.svc.RequestReset(context.Background(), "a@x.com"))
	uid, token := resetParts(t, f)

	err = f.svc.ConfirmReset(context.Background(), uid, token, "password1")
	svcErr, ok = AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeValidation, svcErr.Code)
	assert.Equal(t, []string{"This password is too common."}, svcErr.Fields["new_password"])

	err = f.svc.ConfirmReset(context.Background(), uid, token, "Lovelace2024")
	svcErr, ok = AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeValidation, svcErr.Code)
	require.Contains(t, svcErr.Fields, "new_password")
	assert.Contains(t, svcErr.Fields["new_password"][0], "last name")

	assert.True(t, f.svc.ValidateResetToken(context.Background(), uid, token))
}

func TestCreateRejectsDuplicateAndInvalidEmail(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "a@x.com", "Secret123!")

	_, err := f.users.Create(context.Background(), NewUser{Email: "A@x.com"})
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeValidation, svcErr.Code)
	assert.Contains(t, svcErr.Fields, "email")

	_, err = f.users.Create(context.Background(), NewUser{Email: "Ada <ada@x.com>"})
	assert.True(t, HasCode(err, CodeValidation))

	_, err = f.users.Create(context.Background(), NewUser{Email: "b@x.com", Password: "12345678"})
	assert.True(t, HasCode(err, CodeValidation))
}
