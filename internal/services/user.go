package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hrease/apiserver/internal/auth"
	"github.com/hrease/apiserver/internal/store"
	"github.com/hrease/apiserver/types"
)

const (
	maxNameLength = 150
	maxJobLength  = 100
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateProfile(ctx context.Context, user types.User) (types.User, error)
	SetPasswordHash(ctx context.Context, id int64, currentHash, newHash string) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
}

// NewUser describes an account to provision. An empty Password stores an
// unusable hash; the employee then sets one through the reset flow.
type NewUser struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	JobTitle    string
	Department  string
	HireDate    types.Date
	IsStaff     bool
	IsSuperuser bool
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo   UserRepository
	hasher *auth.PasswordHasher
	now    func() time.Time
}

func NewUserService(repo UserRepository, hasher *auth.PasswordHasher) *UserService {
	return &UserService{repo: repo, hasher: hasher, now: time.Now}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email is a bare address such as "a@x.com".
func ValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	_, domain, ok := strings.Cut(email, "@")
	return ok && domain != "" && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

func (s *UserService) FindByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, NormalizeEmail(email))
}

func (s *UserService) FindByID(ctx context.Context, id int64) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// Create provisions a new active account.
func (s *UserService) Create(ctx context.Context, nu NewUser) (types.User, error) {
	email := NormalizeEmail(nu.Email)
	fields := fieldErrors{}
	switch {
	case email == "":
		fields.add("email", "This field is required.")
	case !ValidEmail(email):
		fields.add("email", "Enter a valid email address.")
	}
	user := types.User{
		Email:       email,
		FirstName:   strings.TrimSpace(nu.FirstName),
		LastName:    strings.TrimSpace(nu.LastName),
		JobTitle:    strings.TrimSpace(nu.JobTitle),
		Department:  strings.TrimSpace(nu.Department),
		HireDate:    nu.HireDate,
		IsActive:    true,
		IsStaff:     nu.IsStaff,
		IsSuperuser: nu.IsSuperuser,
	}
	if nu.Password != "" {
		for _, problem := range auth.ValidatePassword(nu.Password, user) {
			fields.add("password", problem)
		}
	}
	validateProfile(user, fields)
	if err := fields.err(); err != nil {
		return types.User{}, err
	}

	if nu.Password == "" {
		user.PasswordHash = auth.UnusableHash()
	} else {
		hash, err := s.hasher.Hash(nu.Password)
		if err != nil {
			return types.User{}, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, &Error{
				Code:    CodeValidation,
				Message: "Invalid input.",
				Fields:  map[string][]string{"email": {"A user with that email already exists."}},
				Err:     err,
			}
		}
		return types.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// SetPassword re-hashes and stores password. The write only succeeds while
// the stored hash still equals user.PasswordHash; otherwise store.ErrStale.
func (s *UserService) SetPassword(ctx context.Context, user types.User, password string) (types.User, error) {
	fields := fieldErrors{}
	for _, problem := range auth.ValidatePassword(password, user) {
		fields.add("password", problem)
	}
	if err := fields.err(); err != nil {
		return types.User{}, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.SetPasswordHash(ctx, user.ID, user.PasswordHash, hash); err != nil {
		return types.User{}, err
	}
	user.PasswordHash = hash
	return user, nil
}

// UpdateProfile applies patch to the allow-listed profile fields.
func (s *UserService) UpdateProfile(ctx context.Context, user types.User, patch types.ProfilePatch) (types.User, error) {
	if patch.FirstName != nil {
		user.FirstName = strings.TrimSpace(*patch.FirstName)
	}
	if patch.LastName != nil {
		user.LastName = strings.TrimSpace(*patch.LastName)
	}
	if patch.JobTitle != nil {
		user.JobTitle = strings.TrimSpace(*patch.JobTitle)
	}
	if patch.Department != nil {
		user.Department = strings.TrimSpace(*patch.Department)
	}
	if patch.HireDate != nil {
		user.HireDate = *patch.HireDate
	}

	fields := fieldErrors{}
	validateProfile(user, fields)
	if err := fields.err(); err != nil {
		return types.User{}, err
	}
	if patch.Empty() {
		return user, nil
	}
	return s.repo.UpdateProfile(ctx, user)
}

// Authenticate checks email and password and stamps last_login on success.
// Every failure is the same AUTHENTICATION_FAILED error.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.hasher.Burn(password)
			return types.User{}, newAuthenticationFailed(err)
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}
	if !s.hasher.Verify(user.PasswordHash, password) {
		return types.User{}, newAuthenticationFailed(errors.New("password mismatch"))
	}
	if !user.IsActive {
		return types.User{}, newAuthenticationFailed(errors.New("user inactive"))
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return types.User{}, fmt.Errorf("stamp last login: %w", err)
	}
	user.LastLogin = &now
	return user, nil
}

func validateProfile(user types.User, fields fieldErrors) {
	checkLength(fields, "first_name", user.FirstName, maxNameLength)
	checkLength(fields, "last_name", user.LastName, maxNameLength)
	checkLength(fields, "job_title", user.JobTitle, maxJobLength)
	checkLength(fields, "department", user.Department, maxJobLength)
}

func checkLength(fields fieldErrors, field, value string, limit int) {
	if utf8.RuneCountInString(value) > limit {
		fields.add(field, fmt.Sprintf("Ensure this field has no more than %d characters.", limit))
	}
}
