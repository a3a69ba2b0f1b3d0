package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/scope"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/task/entity"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/database"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var taskColumns = []string{
	"id", "worker_id", "supervisor_id", "ward_id", "ulb_id", "title", "description", "status",
	"assigned_date", "before_photo", "after_photo", "escalation_flag", "completed_at", "created_at", "updated_at",
}

type TaskRepo struct {
	db *sqlx.DB
}

func NewTaskRepo(db *sqlx.DB) *TaskRepo { return &TaskRepo{db: db} }

func (r *TaskRepo) Insert(ctx context.Context, t *entity.Task) error {
	const q = `INSERT INTO worker_tasks (id, worker_id, supervisor_id, ward_id, ulb_id, title, description,
			status, assigned_date, before_photo, escalation_flag)
		VALUES (:id, :worker_id, :supervisor_id, :ward_id, :ulb_id, :title, :description,
			:status, :assigned_date, :before_photo, :escalation_flag)
		RETURNING created_at, updated_at`
	rows, err := r.db.NamedQueryContext(ctx, q, t)
	if err != nil {
		return translate(err)
	}
	return translate(database.ScanOne(rows, &t.CreatedAt, &t.UpdatedAt))
}

func translate(err error) error {
	if c, ok := database.ForeignKeyViolation(err); ok {
		return apperr.Validation("", "task references a missing record").WithDetail("constraint", c)
	}
	return err
}

func (r *TaskRepo) Get(ctx context.Context, id int64) (*entity.Task, error) {
	query, args, err := psql.Select(taskColumns...).From("worker_tasks").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	var t entity.Task
	if err := r.db.GetContext(ctx, &t, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("task")
		}
		return nil, err
	}
	return &t, nil
}

// List returns tasks whose stamped ward is in sc.
func (r *TaskRepo) List(ctx context.Context, sc scope.Scope, f entity.Filter) ([]entity.Task, error) {
	q, err := sc.Apply(psql.Select(taskColumns...).From("worker_tasks"), "ward_id")
	if err != nil {
		return nil, err
	}
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": f.Status})
	}
	if f.WorkerID != nil {
		q = q.Where(sq.Eq{"worker_id": *f.WorkerID})
	}
	if f.SupervisorID != nil {
		q = q.Where(sq.Eq{"supervisor_id": *f.SupervisorID})
	}
	if f.Escalated != nil {
		q = q.Where(sq.Eq{"escalation_flag": *f.Escalated})
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query, args, err := q.OrderBy("assigned_date DESC", "id DESC").Limit(uint64(limit)).Offset(uint64(max(f.Offset, 0))).ToSql()
	if err != nil {
		return nil, err
	}
	out := []entity.Task{}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// Advance moves a task from one status to another. It reports false when the
// task was no longer in from, so concurrent updates cannot move it backwards.
func (r *TaskRepo) Advance(ctx context.Context, id int64, from, to string, afterPhoto *string, completedAt *time.Time) (bool, error) {
	const q = `UPDATE worker_tasks
		SET status=$3, after_photo=COALESCE($4, after_photo), completed_at=$5, updated_at=NOW()
		WHERE id=$1 AND status=$2`
	res, err := r.db.ExecContext(ctx, q, id, from, to, afterPhoto, completedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *TaskRepo) Escalate(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE worker_tasks SET escalation_flag=TRUE, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("task")
	}
	return nil
}
