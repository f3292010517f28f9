package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hrease/apiserver/internal/auth"
	"github.com/hrease/apiserver/internal/metrics"
	"github.com/hrease/apiserver/internal/notify"
	"github.com/hrease/apiserver/internal/store"
	"github.com/hrease/apiserver/types"
	"go.uber.org/zap"
)

const (
	MessageResetRequested = "Password reset email sent"
	MessageResetConfirmed = "Password reset successful"
	MessageTokenValid     = "Token is valid"

	siteName     = "HRease"
	resetSubject = "Reset your password"

	msgRequired     = "This field is required."
	msgInvalidReset = "Invalid or expired token"
	msgInvalidToken = "Token is invalid or expired"
)

// Notifier queues outbound notifications without blocking.
type Notifier interface {
	Enqueue(kind string, payload any) bool
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Access  string              `json:"access"`
	Refresh string              `json:"refresh"`
	User    types.LoginSnapshot `json:"user"`
}

// CredentialService runs login, token rotation, profile and password reset flows.
type CredentialService struct {
	users       *UserService
	issuer      *auth.Issuer
	resets      *auth.ResetTokens
	notifier    Notifier
	frontendURL string
	logger      *zap.Logger
}

func NewCredentialService(
	users *UserService,
	issuer *auth.Issuer,
	resets *auth.ResetTokens,
	notifier Notifier,
	frontendURL string,
	logger *zap.Logger,
) *CredentialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialService{
		users:       users,
		issuer:      issuer,
		resets:      resets,
		notifier:    notifier,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger.Named("credentials"),
	}
}

// Login authenticates by email and password and issues a token pair.
func (s *CredentialService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	fields := fieldErrors{}
	if strings.TrimSpace(email) == "" {
		fields.add("email", msgRequired)
	}
	if password == "" {
		fields.add("password", msgRequired)
	}
	if err := fields.err(); err != nil {
		return LoginResult{}, err
	}

	user, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		metrics.ObserveAuth("login", "failure")
		return LoginResult{}, err
	}

	pair, err := s.issuer.Issue(user)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue tokens: %w", err)
	}
	metrics.ObserveAuth("login", "success")
	return LoginResult{Access: pair.Access, Refresh: pair.Refresh, User: user.LoginSnapshot()}, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// consumed; a second exchange fails with INVALID_TOKEN.
func (s *CredentialService) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return auth.TokenPair{}, newValidationError(map[string][]string{"refresh": {msgRequired}})
	}

	claims, err := s.issuer.ParseRefresh(refreshToken)
	if err != nil {
		metrics.ObserveAuth("refresh", "invalid")
		return auth.TokenPair{}, newInvalidToken(msgInvalidToken, err)
	}
	if _, err := s.activeUser(ctx, claims.UserID); err != nil {
		metrics.ObserveAuth("refresh", "invalid")
		return auth.TokenPair{}, err
	}

	pair, err := s.issuer.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrTokenReused) || errors.Is(err, auth.ErrInvalidToken) {
			metrics.ObserveAuth("refresh", "reused")
			return auth.TokenPair{}, newInvalidToken(msgInvalidToken, err)
		}
		return auth.TokenPair{}, err
	}
	metrics.ObserveAuth("refresh", "success")
	return pair, nil
}

// Verify checks an access token and that its user is still active.
func (s *CredentialService) Verify(ctx context.Context, accessToken string) (*auth.Claims, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, newValidationError(map[string][]string{"token": {msgRequired}})
	}
	claims, err := s.issuer.Verify(accessToken)
	if err != nil {
		return nil, newInvalidToken(msgInvalidToken, err)
	}
	if _, err := s.activeUser(ctx, claims.UserID); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *CredentialService) Profile(ctx context.Context, userID int64) (types.Profile, error) {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return types.Profile{}, err
	}
	return user.Profile(), nil
}

// UpdateProfile applies a partial profile update. Identity fields cannot be changed here.
func (s *CredentialService) UpdateProfile(ctx context.Context, userID int64, patch types.ProfilePatch) (types.Profile, error) {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return types.Profile{}, err
	}
	updated, err := s.users.UpdateProfile(ctx, user, patch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Profile{}, newInvalidToken(msgInvalidToken, err)
		}
		return types.Profile{}, err
	}
	return updated.Profile(), nil
}

// RequestReset queues a reset link when email belongs to an active account.
// The outcome is the same whether or not the account exists.
func (s *CredentialService) RequestReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	switch {
	case email == "":
		return newValidationError(map[string][]string{"email": {msgRequired}})
	case !ValidEmail(email):
		return newValidationError(map[string][]string{"email": {"Enter a valid email address."}})
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.ObserveAuth("reset_request", "unknown")
			return nil
		}
		return fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		metrics.ObserveAuth("reset_request", "inactive")
		return nil
	}

	token := s.resets.Generate(user)
	link := fmt.Sprintf("%s/reset-password/%s/%s", s.frontendURL, auth.EncodeUID(user.ID), token)
	queued := s.notifier.Enqueue(notify.KindPasswordReset, notify.PasswordReset{
		To:        user.Email,
		FirstName: user.FirstName,
		Subject:   resetSubject,
		ResetURL:  link,
		SiteName:  siteName,
		ExpiresAt: s.users.now().Add(s.resets.TTL()).UTC(),
	})
	if !queued {
		s.logger.Warn("password reset notification not queued", zap.Int64("user_id", user.ID))
	}
	metrics.ObserveAuth("reset_request", "sent")
	return nil
}

// ConfirmReset sets a new password when uid and token are valid. A token
// works once: the password change itself invalidates it.
func (s *CredentialService) ConfirmReset(ctx context.Context, uid, token, newPassword string) error {
	fields := fieldErrors{}
	if strings.TrimSpace(uid) == "" {
		fields.add("uid", msgRequired)
	}
	if strings.TrimSpace(token) == "" {
		fields.add("token", msgRequired)
	}
	if newPassword == "" {
		fields.add("new_password", msgRequired)
	} else {
		for _, problem := range auth.ValidatePassword(newPassword, types.User{}) {
			fields.add("new_password", problem)
		}
	}
	if err := fields.err(); err != nil {
		return err
	}

	user, err := s.resetUser(ctx, uid, token)
	if err != nil {
		metrics.ObserveAuth("reset_confirm", "invalid")
		return err
	}

	if _, err := s.users.SetPassword(ctx, user, newPassword); err != nil {
		if errors.Is(err, store.ErrStale) {
			metrics.ObserveAuth("reset_confirm", "invalid")
			return newInvalidToken(msgInvalidReset, err)
		}
		if svcErr, ok := AsError(err); ok && svcErr.Code == CodeValidation {
			return newValidationError(map[string][]string{"new_password": svcErr.Fields["password"]})
		}
		return err
	}
	metrics.ObserveAuth("reset_confirm", "success")
	return nil
}

// ValidateResetToken reports whether uid and token form a currently valid
// reset link. Every failure, including store errors, yields false.
func (s *CredentialService) ValidateResetToken(ctx context.Context, uid, token string) bool {
	_, err := s.resetUser(ctx, uid, token)
	return err == nil
}

func (s *CredentialService) resetUser(ctx context.Context, uid, token string) (types.User, error) {
	id, err := auth.DecodeUID(uid)
	if err != nil {
		return types.User{}, newInvalidUID(err)
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, newInvalidToken(msgInvalidReset, err)
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive || !s.resets.Check(user, token) {
		return types.User{}, newInvalidToken(msgInvalidReset, nil)
	}
	return user, nil
}

func (s *CredentialService) activeUser(ctx context.Context, userID int64) (types.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, newInvalidToken(msgInvalidToken, err)
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		return types.User{}, newInvalidToken(msgInvalidToken, errors.New("user inactive"))
	}
	return user, nil
}
