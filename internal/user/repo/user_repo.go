package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/principal"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/database"
)

const userColumns = `id, username, email, phone_number, password_hash, password_algo,
	password_updated_at, role, status, login_failed_attempts, locked_until, last_login_at,
	created_at, updated_at`

// UserRepo provides data access for the users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row and sets u.ID.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) (int64, error) {
	const q = `INSERT INTO users (username, email, phone_number, password_hash, password_algo, password_updated_at, role, status)
		VALUES (:username, :email, :phone_number, :password_hash, :password_algo, NOW(), :role, :status) RETURNING id`
	rows, err := r.db.NamedQueryContext(ctx, q, u)
	if err != nil {
		return 0, translate(err)
	}
	if err := database.ScanOne(rows, &u.ID); err != nil {
		return 0, translate(err)
	}
	return u.ID, nil
}

func translate(err error) error {
	if constraint, ok := database.UniqueViolation(err); ok {
		return apperr.Conflict("", "user already exists").WithDetail("constraint", constraint)
	}
	return err
}

func (r *UserRepo) getOne(ctx context.Context, where string, arg any) (*entity.User, error) {
	var row entity.User
	if err := r.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE `+where, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user")
		}
		return nil, err
	}
	return &row, nil
}

// GetByEmail matches case-insensitively (citext column).
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.getOne(ctx, "email=$1", email)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	return r.getOne(ctx, "username=$1", username)
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	return r.getOne(ctx, "id=$1", id)
}

// FindPrincipal implements principal.Finder for the generic store.
func (r *UserRepo) FindPrincipal(ctx context.Context, id int64) (principal.Principal, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return ToPrincipal(u), nil
}

// ToPrincipal projects a row onto the principal descriptor. Locked and
// disabled accounts are reported as inactive.
func ToPrincipal(u *entity.User) *principal.Generic {
	status := principal.StatusInactive
	if u.Status == entity.StatusActive {
		status = principal.StatusActive
	}
	return &principal.Generic{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     principal.Role(u.Role),
		Status:   status,
	}
}

// IncrementFailedLogin increments the failure counter atomically and returns the new value.
func (r *UserRepo) IncrementFailedLogin(ctx context.Context, id int64) (int, error) {
	const q = `UPDATE users SET login_failed_attempts = login_failed_attempts + 1, updated_at=NOW() WHERE id=$1 RETURNING login_failed_attempts`
	var v int
	if err := r.db.GetContext(ctx, &v, q, id); err != nil {
		return 0, err
	}
	return v, nil
}

// LockIfThreshold locks the user if attempts >= threshold and currently active.
func (r *UserRepo) LockIfThreshold(ctx context.Context, id int64, threshold int, lockMinutes int) (bool, error) {
	const q = `UPDATE users SET status='locked', locked_until = NOW() + make_interval(mins => $2), updated_at=NOW()
		WHERE id=$1 AND status='active' AND login_failed_attempts >= $3 RETURNING 1`
	var one int
	err := r.db.GetContext(ctx, &one, q, id, lockMinutes, threshold)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ResetLoginSuccess clears failure counters and stamps last_login_at.
func (r *UserRepo) ResetLoginSuccess(ctx context.Context, id int64) error {
	const q = `UPDATE users SET login_failed_attempts=0, last_login_at=NOW(), locked_until=NULL, updated_at=NOW() WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// UnlockIfExpired sets status back to active if locked_until passed.
func (r *UserRepo) UnlockIfExpired(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE users SET status='active', locked_until=NULL, login_failed_attempts=0, updated_at=NOW()
		WHERE id=$1 AND status='locked' AND locked_until IS NOT NULL AND locked_until < NOW() RETURNING 1`
	var one int
	err := r.db.GetContext(ctx, &one, q, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CountByRole is used by the admin bootstrap to stay idempotent.
func (r *UserRepo) CountByRole(ctx context.Context, role string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users WHERE role=$1`, role); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
