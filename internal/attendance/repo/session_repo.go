package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/attendance/entity"
)

const sessionColumns = `id, principal_id, user_type, login_at, logout_at, working_duration_minutes,
	login_latitude, login_longitude, login_address, device_info, is_auto_marked`

// SessionRepo provides data access for attendance_sessions using sqlx.
type SessionRepo struct {
	db *sqlx.DB
}

func NewSessionRepo(db *sqlx.DB) *SessionRepo { return &SessionRepo{db: db} }

func (r *SessionRepo) Insert(ctx context.Context, s *entity.Session) error {
	const q = `INSERT INTO attendance_sessions (id, principal_id, user_type, login_at, login_latitude,
			login_longitude, login_address, device_info, is_auto_marked)
		VALUES (:id, :principal_id, :user_type, :login_at, :login_latitude,
			:login_longitude, :login_address, :device_info, :is_auto_marked)`
	_, err := r.db.NamedExecContext(ctx, q, s)
	return err
}

// CountOpen counts sessions without a logout for the principal.
func (r *SessionRepo) CountOpen(ctx context.Context, principalID int64, userType string) (int, error) {
	const q = `SELECT COUNT(*) FROM attendance_sessions WHERE principal_id=$1 AND user_type=$2 AND logout_at IS NULL`
	var n int
	err := r.db.GetContext(ctx, &n, q, principalID, userType)
	return n, err
}

// LatestOpen returns the most recent open session or NotFound.
func (r *SessionRepo) LatestOpen(ctx context.Context, principalID int64, userType string) (*entity.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM attendance_sessions
		WHERE principal_id=$1 AND user_type=$2 AND logout_at IS NULL
		ORDER BY login_at DESC LIMIT 1`
	var s entity.Session
	if err := r.db.GetContext(ctx, &s, q, principalID, userType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("open session")
		}
		return nil, err
	}
	return &s, nil
}

// Close sets logout_at and the derived duration. Only open rows are touched.
func (r *SessionRepo) Close(ctx context.Context, id int64, logoutAt time.Time, minutes int) error {
	const q = `UPDATE attendance_sessions SET logout_at=$2, working_duration_minutes=$3 WHERE id=$1 AND logout_at IS NULL`
	_, err := r.db.ExecContext(ctx, q, id, logoutAt, minutes)
	return err
}

func (r *SessionRepo) History(ctx context.Context, principalID int64, userType string, limit int) ([]entity.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM attendance_sessions
		WHERE principal_id=$1 AND user_type=$2 ORDER BY login_at DESC LIMIT $3`
	out := []entity.Session{}
	if err := r.db.SelectContext(ctx, &out, q, principalID, userType, limit); err != nil {
		return nil, err
	}
	return out, nil
}
