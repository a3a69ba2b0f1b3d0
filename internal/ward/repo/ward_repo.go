package repo

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/scope"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/ward/entity"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/database"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repo is the repository for ulbs and wards backed by PostgreSQL.
type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateULB(ctx context.Context, u *entity.ULB) error {
	const q = `INSERT INTO ulbs (name, code) VALUES ($1, $2) RETURNING id, created_at`
	if err := r.db.QueryRowxContext(ctx, q, u.Name, u.Code).Scan(&u.ID, &u.CreatedAt); err != nil {
		if _, ok := database.UniqueViolation(err); ok {
			return apperr.Conflict("", "ulb code already exists")
		}
		return err
	}
	return nil
}

func (r *Repo) GetULB(ctx context.Context, id int64) (*entity.ULB, error) {
	var u entity.ULB
	if err := r.db.GetContext(ctx, &u, `SELECT id, name, code, created_at FROM ulbs WHERE id=$1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("ulb")
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repo) CreateWard(ctx context.Context, w *entity.Ward) error {
	const q = `INSERT INTO wards (ulb_id, number, name) VALUES ($1, $2, $3) RETURNING id, created_at`
	if err := r.db.QueryRowxContext(ctx, q, w.UlbID, w.Number, w.Name).Scan(&w.ID, &w.CreatedAt); err != nil {
		if _, ok := database.UniqueViolation(err); ok {
			return apperr.Conflict("", "ward number already exists in this ulb")
		}
		return err
	}
	return nil
}

// GetWard returns NotFound for unknown ids.
func (r *Repo) GetWard(ctx context.Context, id int64) (*entity.Ward, error) {
	var w entity.Ward
	const q = `SELECT id, ulb_id, number, name, clerk_id, created_at FROM wards WHERE id=$1`
	if err := r.db.GetContext(ctx, &w, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("ward")
		}
		return nil, err
	}
	return &w, nil
}

// ListWards returns the wards inside sc, optionally narrowed to one ULB.
func (r *Repo) ListWards(ctx context.Context, sc scope.Scope, ulbID *int64) ([]entity.Ward, error) {
	q, err := sc.Apply(psql.Select("id", "ulb_id", "number", "name", "clerk_id", "created_at").From("wards"), "id")
	if err != nil {
		return nil, err
	}
	if ulbID != nil {
		q = q.Where(sq.Eq{"ulb_id": *ulbID})
	}
	query, args, err := q.OrderBy("ulb_id", "number").ToSql()
	if err != nil {
		return nil, err
	}
	out := []entity.Ward{}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}
