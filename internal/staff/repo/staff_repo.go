package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/codegen"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/principal"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/scope"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/staff/entity"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/database"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var staffColumns = []string{
	"id", "employee_code", "name", "email", "phone_number", "username", "password_hash", "password_algo",
	"role", "status", "ward_ids", "ward_id", "ulb_id", "eo_id", "supervisor_id", "contractor_id",
	"last_login_at", "created_at", "updated_at",
}

// unique constraint names, see migrations
const (
	constraintEmployeeCode = "staff_employee_code_key"
	constraintEmail        = "staff_email_key"
	constraintPhone        = "staff_phone_number_key"
	constraintUsername     = "staff_username_key"
)

// Tx is the write side of the staff store. Every method runs inside one
// database transaction.
type Tx interface {
	Insert(ctx context.Context, s *entity.Staff) error
	Update(ctx context.Context, s *entity.Staff) error
	Delete(ctx context.Context, id int64) error
	// ReleaseClerkWards clears the clerk back-reference on every ward held by clerkID.
	ReleaseClerkWards(ctx context.Context, clerkID int64) error
	// ClaimClerkWard sets the back-reference, failing with WardTaken when
	// another clerk holds the ward.
	ClaimClerkWard(ctx context.Context, wardID, clerkID int64) error
}

// StaffRepo provides data access for the staff table using sqlx.
type StaffRepo struct {
	db *sqlx.DB
}

func NewStaffRepo(db *sqlx.DB) *StaffRepo { return &StaffRepo{db: db} }

func (r *StaffRepo) get(ctx context.Context, q sq.SelectBuilder) (*entity.Staff, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var s entity.Staff
	if err := r.db.GetContext(ctx, &s, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("staff")
		}
		return nil, err
	}
	return &s, nil
}

func (r *StaffRepo) GetByID(ctx context.Context, id int64) (*entity.Staff, error) {
	return r.get(ctx, psql.Select(staffColumns...).From("staff").Where(sq.Eq{"id": id}))
}

// FindByLogin matches an employee code, email, username or phone number.
func (r *StaffRepo) FindByLogin(ctx context.Context, identifier string) (*entity.Staff, error) {
	return r.get(ctx, psql.Select(staffColumns...).From("staff").Where(sq.Or{
		sq.Eq{"employee_code": strings.ToUpper(identifier)},
		sq.Eq{"lower(email)": strings.ToLower(identifier)},
		sq.Eq{"username": identifier},
		sq.Eq{"phone_number": identifier},
	}).Limit(1))
}

// FindPrincipal implements principal.Finder for the staff store.
func (r *StaffRepo) FindPrincipal(ctx context.Context, id int64) (principal.Principal, error) {
	s, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Principal(), nil
}

// FindContactConflicts returns the names of the contact fields already used
// by another staff record.
func (r *StaffRepo) FindContactConflicts(ctx context.Context, c entity.Contact, excludeID int64) ([]string, error) {
	var conflicts []string
	check := func(field, column string, v *string) error {
		if v == nil || *v == "" {
			return nil
		}
		query, args, err := psql.Select("1").From("staff").
			Where(sq.Eq{column: *v}).Where(sq.NotEq{"id": excludeID}).Limit(1).ToSql()
		if err != nil {
			return err
		}
		var one int
		switch err := r.db.GetContext(ctx, &one, query, args...); {
		case err == nil:
			conflicts = append(conflicts, field)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("check %s: %w", field, err)
		}
		return nil
	}
	if err := check("email", "email", c.Email); err != nil {
		return nil, err
	}
	if err := check("phoneNumber", "phone_number", c.Phone); err != nil {
		return nil, err
	}
	if err := check("username", "username", c.Username); err != nil {
		return nil, err
	}
	return conflicts, nil
}

// ListDependents returns staff linked to id as eo, supervisor or contractor.
func (r *StaffRepo) ListDependents(ctx context.Context, id int64) ([]entity.Staff, error) {
	query, args, err := psql.Select(staffColumns...).From("staff").
		Where(sq.Or{sq.Eq{"eo_id": id}, sq.Eq{"supervisor_id": id}, sq.Eq{"contractor_id": id}}).ToSql()
	if err != nil {
		return nil, err
	}
	out := []entity.Staff{}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// List returns staff in sc. Rows match when any of their wards is in scope;
// single-ward roles carry their ward in ward_ids as well.
func (r *StaffRepo) List(ctx context.Context, sc scope.Scope, f entity.Filter) ([]entity.Staff, error) {
	q, err := sc.ApplyOverlap(psql.Select(staffColumns...).From("staff"), "ward_ids")
	if err != nil {
		return nil, err
	}
	if f.Role != "" {
		q = q.Where(sq.Eq{"role": f.Role})
	}
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": f.Status})
	}
	if f.UlbID != nil {
		q = q.Where(sq.Eq{"ulb_id": *f.UlbID})
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query, args, err := q.OrderBy("id").Limit(uint64(limit)).Offset(uint64(max(f.Offset, 0))).ToSql()
	if err != nil {
		return nil, err
	}
	out := []entity.Staff{}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *StaffRepo) CountByRole(ctx context.Context, role string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM staff WHERE role=$1`, role); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *StaffRepo) UpdatePassword(ctx context.Context, id int64, hash, algo string) error {
	const q = `UPDATE staff SET password_hash=$2, password_algo=$3, updated_at=NOW() WHERE id=$1`
	return r.execOne(ctx, q, id, hash, algo)
}

func (r *StaffRepo) SetStatus(ctx context.Context, id int64, status string) error {
	return r.execOne(ctx, `UPDATE staff SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
}

func (r *StaffRepo) TouchLastLogin(ctx context.Context, id int64) error {
	return r.execOne(ctx, `UPDATE staff SET last_login_at=NOW() WHERE id=$1`, id)
}

func (r *StaffRepo) execOne(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("staff")
	}
	return nil
}

// InTx runs fn with a transactional Tx. Any error rolls everything back.
func (r *StaffRepo) InTx(ctx context.Context, fn func(Tx) error) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(&txRepo{tx: tx})
	})
}

type txRepo struct {
	tx *sqlx.Tx
}

// translate maps unique violations onto the error taxonomy. An employee code
// collision is reported as codegen.ErrCodeTaken so the generator retries.
func translate(err error) error {
	constraint, ok := database.UniqueViolation(err)
	if !ok {
		return err
	}
	switch constraint {
	case constraintEmployeeCode:
		return codegen.ErrCodeTaken
	case constraintEmail:
		return apperr.Conflict("", "email already in use").WithDetail("field", "email")
	case constraintPhone:
		return apperr.Conflict("", "phone number already in use").WithDetail("field", "phoneNumber")
	case constraintUsername:
		return apperr.Conflict("", "username already in use").WithDetail("field", "username")
	default:
		return apperr.Conflict("", "duplicate staff record").WithDetail("constraint", constraint)
	}
}

// savepoint runs fn so that a failed statement does not abort the enclosing
// transaction, letting the caller retry with another code.
func (t *txRepo) savepoint(ctx context.Context, fn func() error) error {
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT staff_write"); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT staff_write"); rbErr != nil {
			return fmt.Errorf("%w (rollback to savepoint: %v)", err, rbErr)
		}
		return translate(err)
	}
	_, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT staff_write")
	return err
}

func (t *txRepo) Insert(ctx context.Context, s *entity.Staff) error {
	const q = `INSERT INTO staff (employee_code, name, email, phone_number, username, password_hash, password_algo,
			role, status, ward_ids, ward_id, ulb_id, eo_id, supervisor_id, contractor_id)
		VALUES (:employee_code, :name, :email, :phone_number, :username, :password_hash, :password_algo,
			:role, :status, :ward_ids, :ward_id, :ulb_id, :eo_id, :supervisor_id, :contractor_id)
		RETURNING id, created_at, updated_at`
	return t.savepoint(ctx, func() error {
		rows, err := sqlx.NamedQueryContext(ctx, t.tx, q, s)
		if err != nil {
			return err
		}
		defer rows.Close()
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return err
			}
			return errors.New("no id returned")
		}
		return rows.Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	})
}

func (t *txRepo) Update(ctx context.Context, s *entity.Staff) error {
	const q = `UPDATE staff SET name=:name, email=:email, phone_number=:phone_number, username=:username,
			role=:role, ward_ids=:ward_ids, ward_id=:ward_id, ulb_id=:ulb_id, eo_id=:eo_id,
			supervisor_id=:supervisor_id, contractor_id=:contractor_id, updated_at=NOW()
		WHERE id=:id`
	return t.savepoint(ctx, func() error {
		res, err := t.tx.NamedExecContext(ctx, q, s)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("staff")
		}
		return nil
	})
}

func (t *txRepo) Delete(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM staff WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("staff")
	}
	return nil
}

func (t *txRepo) ReleaseClerkWards(ctx context.Context, clerkID int64) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE wards SET clerk_id=NULL WHERE clerk_id=$1`, clerkID)
	return err
}

func (t *txRepo) ClaimClerkWard(ctx context.Context, wardID, clerkID int64) error {
	const q = `UPDATE wards SET clerk_id=$2 WHERE id=$1 AND (clerk_id IS NULL OR clerk_id=$2)`
	res, err := t.tx.ExecContext(ctx, q, wardID, clerkID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Conflict(apperr.ReasonWardTaken, "ward already has a clerk").WithDetail("wardId", wardID)
	}
	return nil
}
