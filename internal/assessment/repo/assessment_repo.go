package repo

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/assessment/entity"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/codegen"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/scope"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/database"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var assessmentColumns = []string{
	"id", "assessment_number", "shop_id", "ward_id", "period", "amount", "status", "assessor_id", "assessor_type",
	"approver_id", "approver_type", "approval_date", "remarks", "created_at", "updated_at",
}

type AssessmentRepo struct {
	db *sqlx.DB
}

func NewAssessmentRepo(db *sqlx.DB) *AssessmentRepo { return &AssessmentRepo{db: db} }

func translate(err error) error {
	c, ok := database.UniqueViolation(err)
	if !ok {
		return err
	}
	switch c {
	case "assessments_assessment_number_key":
		return codegen.ErrCodeTaken
	case "assessments_shop_id_period_key":
		return apperr.Conflict(apperr.ReasonDuplicateForPeriod, "assessment already exists for this period")
	default:
		return apperr.Conflict("", "assessment already exists")
	}
}

// Insert stores a draft. A number collision surfaces as codegen.ErrCodeTaken so
// the generator can retry.
func (r *AssessmentRepo) Insert(ctx context.Context, a *entity.Assessment) error {
	const q = `INSERT INTO assessments (id, assessment_number, shop_id, ward_id, period, amount, status,
			assessor_id, assessor_type, remarks)
		VALUES (:id, :assessment_number, :shop_id, :ward_id, :period, :amount, :status,
			:assessor_id, :assessor_type, :remarks)
		RETURNING created_at, updated_at`
	rows, err := r.db.NamedQueryContext(ctx, q, a)
	if err != nil {
		return translate(err)
	}
	return translate(database.ScanOne(rows, &a.CreatedAt, &a.UpdatedAt))
}

func (r *AssessmentRepo) Get(ctx context.Context, id int64) (*entity.Assessment, error) {
	query, args, err := psql.Select(assessmentColumns...).From("assessments").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	var a entity.Assessment
	if err := r.db.GetContext(ctx, &a, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("assessment")
		}
		return nil, err
	}
	return &a, nil
}

func (r *AssessmentRepo) ExistsForPeriod(ctx context.Context, shopID int64, period string) (bool, error) {
	var exists bool
	const q = `SELECT EXISTS (SELECT 1 FROM assessments WHERE shop_id=$1 AND period=$2)`
	if err := r.db.GetContext(ctx, &exists, q, shopID, period); err != nil {
		return false, err
	}
	return exists, nil
}

// CountWithPrefix counts assessment numbers starting with prefix.
func (r *AssessmentRepo) CountWithPrefix(ctx context.Context, prefix string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM assessments WHERE assessment_number LIKE $1 || '%'`, prefix); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *AssessmentRepo) List(ctx context.Context, sc scope.Scope, f entity.Filter) ([]entity.Assessment, error) {
	q, err := sc.Apply(psql.Select(assessmentColumns...).From("assessments"), "ward_id")
	if err != nil {
		return nil, err
	}
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": f.Status})
	}
	if f.ShopID != nil {
		q = q.Where(sq.Eq{"shop_id": *f.ShopID})
	}
	if f.Period != "" {
		q = q.Where(sq.Eq{"period": f.Period})
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query, args, err := q.OrderBy("created_at DESC", "id DESC").Limit(uint64(limit)).Offset(uint64(max(f.Offset, 0))).ToSql()
	if err != nil {
		return nil, err
	}
	out := []entity.Assessment{}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateDraft rewrites the mutable fields. It reports false when the record is
// no longer a draft.
func (r *AssessmentRepo) UpdateDraft(ctx context.Context, a *entity.Assessment) (bool, error) {
	const q = `UPDATE assessments SET period=$2, amount=$3, remarks=$4, updated_at=NOW()
		WHERE id=$1 AND status='draft'`
	res, err := r.db.ExecContext(ctx, q, a.ID, a.Period, a.Amount, a.Remarks)
	if err != nil {
		return false, translate(err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Transition moves a record from one status to another and records d. It
// reports false when the record was not in from.
func (r *AssessmentRepo) Transition(ctx context.Context, id int64, from, to string, d entity.Decision) (bool, error) {
	const q = `UPDATE assessments
		SET status=$3, approver_id=COALESCE($4, approver_id), approver_type=COALESCE($5, approver_type),
			approval_date=COALESCE($6, approval_date), remarks=COALESCE($7, remarks), updated_at=NOW()
		WHERE id=$1 AND status=$2`
	res, err := r.db.ExecContext(ctx, q, id, from, to, d.ApproverID, d.ApproverType, d.ApprovalDate, d.Remarks)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
