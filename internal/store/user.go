package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hrease/apiserver/types"
	"github.com/lib/pq"
)

const userColumns = `id, email, password_hash, first_name, last_name, job_title, department, hire_date,
		is_active, is_staff, is_superuser, groups, permissions, last_login, date_joined, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	var lastLogin sql.NullTime
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.JobTitle,
		&user.Department,
		&user.HireDate,
		&user.IsActive,
		&user.IsStaff,
		&user.IsSuperuser,
		pq.Array(&user.Groups),
		pq.Array(&user.Permissions),
		&lastLogin,
		&user.DateJoined,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLogin = &t
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail looks a user up by email, ignoring case.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	user.DateJoined = now
	user.UpdatedAt = now
	if user.Groups == nil {
		user.Groups = []string{}
	}
	if user.Permissions == nil {
		user.Permissions = []string{}
	}

	const query = `
		INSERT INTO users (
			email, password_hash, first_name, last_name, job_title, department, hire_date,
			is_active, is_staff, is_superuser, groups, permissions, date_joined, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.JobTitle,
		user.Department,
		user.HireDate,
		user.IsActive,
		user.IsStaff,
		user.IsSuperuser,
		pq.Array(user.Groups),
		pq.Array(user.Permissions),
		user.DateJoined,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	return user, nil
}

// UpdateProfile writes the mutable profile columns only. Identity columns
// (id, email, password hash, flags) are never touched here.
func (r *UserRepository) UpdateProfile(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE users
		SET first_name = $1,
			last_name = $2,
			job_title = $3,
			department = $4,
			hire_date = $5,
			updated_at = $6
		WHERE id = $7`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.FirstName,
		user.LastName,
		user.JobTitle,
		user.Department,
		user.HireDate,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

// SetPasswordHash replaces the password hash only if it still equals currentHash.
// ErrStale means another writer changed the password first.
func (r *UserRepository) SetPasswordHash(ctx context.Context, id int64, currentHash, newHash string) error {
	const query = `
		UPDATE users
		SET password_hash = $1,
			updated_at = $2
		WHERE id = $3 AND password_hash = $4`
	result, err := r.db.ExecContext(ctx, query, newHash, time.Now().UTC(), id, currentHash)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStale
	}
	return nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	const query = `UPDATE users SET last_login = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
