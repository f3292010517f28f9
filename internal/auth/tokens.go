package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hrease/apiserver/types"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	// ErrInvalidToken covers malformed, forged, expired and wrong-type tokens alike.
	ErrInvalidToken = errors.New("token is invalid or expired")
	// ErrTokenReused is returned when a refresh token has already been exchanged.
	ErrTokenReused = errors.New("refresh token already used")
)

// Blacklist records consumed refresh tokens. Revoke must be an atomic
// check-and-set: it reports true only for the first caller per jti.
type Blacklist interface {
	Revoke(ctx context.Context, jti string, userID int64, expiresAt time.Time) (bool, error)
}

type IssuerConfig struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Claims are carried by both access and refresh tokens.
type Claims struct {
	TokenType string `json:"token_type"`
	UserID    int64  `json:"user_id"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Issuer signs and verifies HS256 session tokens and rotates refresh tokens.
type Issuer struct {
	cfg       IssuerConfig
	blacklist Blacklist
}

func NewIssuer(cfg IssuerConfig, blacklist Blacklist) (*Issuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token signing secret is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	if blacklist == nil {
		return nil, errors.New("refresh token blacklist is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Issuer{cfg: cfg, blacklist: blacklist}, nil
}

// Issue creates a fresh access/refresh pair for user.
func (i *Issuer) Issue(user types.User) (TokenPair, error) {
	if user.ID < 1 {
		return TokenPair{}, errors.New("cannot issue tokens for unsaved user")
	}
	return i.issuePair(user.ID)
}

// Verify validates an access token and returns its claims.
func (i *Issuer) Verify(token string) (*Claims, error) {
	return i.parse(token, TokenTypeAccess)
}

// ParseRefresh validates a refresh token without consuming it.
func (i *Issuer) ParseRefresh(token string) (*Claims, error) {
	return i.parse(token, TokenTypeRefresh)
}

// Refresh consumes refreshToken and returns a new pair. The old token is
// blacklisted before the new pair is signed, so a token can be exchanged once.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := i.ParseRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	first, err := i.blacklist.Revoke(ctx, claims.ID, claims.UserID, claims.ExpiresAt.Time)
	if err != nil {
		return TokenPair{}, fmt.Errorf("blacklist refresh token: %w", err)
	}
	if !first {
		return TokenPair{}, ErrTokenReused
	}
	return i.issuePair(claims.UserID)
}

func (i *Issuer) issuePair(userID int64) (TokenPair, error) {
	now := i.cfg.Now()
	access, err := i.sign(userID, TokenTypeAccess, now, i.cfg.AccessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := i.sign(userID, TokenTypeRefresh, now, i.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

func (i *Issuer) sign(userID int64, tokenType string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		TokenType: tokenType,
		UserID:    userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.cfg.Secret)
}

func (i *Issuer) parse(tokenString, wantType string) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(i.cfg.Leeway),
		jwt.WithTimeFunc(i.cfg.Now),
	}
	if i.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.cfg.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return i.cfg.Secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType || claims.UserID < 1 || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	if claims.Subject != strconv.FormatInt(claims.UserID, 10) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
