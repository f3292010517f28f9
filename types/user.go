package types

import "time"

// User represents an employee account.
// Email is the login identifier; profile fields are informational only.
type User struct {
	// ID is the unique, stable identifier of the user.
	ID int64 `json:"id" db:"id"`

	// Email is the normalized (trimmed, lower-cased) login address.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the user's password, or an
	// unusable marker for accounts provisioned without one.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	FirstName  string `json:"first_name" db:"first_name"`
	LastName   string `json:"last_name" db:"last_name"`
	JobTitle   string `json:"job_title" db:"job_title"`
	Department string `json:"department" db:"department"`
	HireDate   Date   `json:"hire_date" db:"hire_date"`

	// IsActive gates login and token refresh.
	IsActive    bool `json:"is_active" db:"is_active"`
	IsStaff     bool `json:"is_staff" db:"is_staff"`
	IsSuperuser bool `json:"is_superuser" db:"is_superuser"`

	// Groups and Permissions are names managed by the admin tooling.
	Groups      []string `json:"groups" db:"groups"`
	Permissions []string `json:"permissions" db:"permissions"`

	// LastLogin is stamped on every successful login and feeds reset tokens.
	LastLogin *time.Time `json:"last_login,omitempty" db:"last_login"`

	DateJoined time.Time `json:"date_joined" db:"date_joined"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Profile is the public view of a user returned by the API.
type Profile struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	JobTitle   string `json:"job_title"`
	Department string `json:"department"`
	HireDate   Date   `json:"hire_date"`
}

// LoginSnapshot is the subset of the profile returned alongside a fresh token pair.
type LoginSnapshot struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	JobTitle   string `json:"job_title"`
	Department string `json:"department"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:         u.ID,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		JobTitle:   u.JobTitle,
		Department: u.Department,
		HireDate:   u.HireDate,
	}
}

func (u User) LoginSnapshot() LoginSnapshot {
	return LoginSnapshot{
		ID:         u.ID,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		JobTitle:   u.JobTitle,
		Department: u.Department,
	}
}

// ProfilePatch carries a partial profile update. Nil fields are left unchanged.
// A non-nil HireDate holding the zero Date clears the hire date.
type ProfilePatch struct {
	FirstName  *string
	LastName   *string
	JobTitle   *string
	Department *string
	HireDate   *Date
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.JobTitle == nil &&
		p.Department == nil && p.HireDate == nil
}
