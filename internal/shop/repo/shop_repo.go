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
	"github.com/ovaphlow/pitchfork/service-municipal/internal/shop/entity"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/database"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var shopColumns = []string{
	"id", "shop_number", "ward_id", "ulb_id", "owner_name", "owner_id", "address", "status", "closed_at", "created_at", "updated_at",
}

type ShopRepo struct {
	db *sqlx.DB
}

func NewShopRepo(db *sqlx.DB) *ShopRepo { return &ShopRepo{db: db} }

func (r *ShopRepo) Insert(ctx context.Context, s *entity.Shop) error {
	const q = `INSERT INTO shops (id, shop_number, ward_id, ulb_id, owner_name, owner_id, address, status)
		VALUES (:id, :shop_number, :ward_id, :ulb_id, :owner_name, :owner_id, :address, :status)
		RETURNING created_at, updated_at`
	rows, err := r.db.NamedQueryContext(ctx, q, s)
	if err != nil {
		return translate(err, s.ShopNumber)
	}
	return translate(database.ScanOne(rows, &s.CreatedAt, &s.UpdatedAt), s.ShopNumber)
}

func translate(err error, shopNumber string) error {
	if c, ok := database.UniqueViolation(err); ok && c == "shops_shop_number_key" {
		return apperr.Conflict("", "shop number already exists").WithDetail("shopNumber", shopNumber)
	}
	if c, ok := database.ForeignKeyViolation(err); ok {
		return apperr.Validation("", "shop references a missing record").WithDetail("constraint", c)
	}
	return err
}

func (r *ShopRepo) Get(ctx context.Context, id int64) (*entity.Shop, error) {
	query, args, err := psql.Select(shopColumns...).From("shops").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	var s entity.Shop
	if err := r.db.GetContext(ctx, &s, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("shop")
		}
		return nil, err
	}
	return &s, nil
}

func (r *ShopRepo) List(ctx context.Context, sc scope.Scope, f entity.Filter) ([]entity.Shop, error) {
	q, err := sc.Apply(psql.Select(shopColumns...).From("shops"), "ward_id")
	if err != nil {
		return nil, err
	}
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": f.Status})
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query, args, err := q.OrderBy("shop_number").Limit(uint64(limit)).Offset(uint64(max(f.Offset, 0))).ToSql()
	if err != nil {
		return nil, err
	}
	out := []entity.Shop{}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// Close marks an active shop closed. It reports false when the shop was
// already closed.
func (r *ShopRepo) Close(ctx context.Context, id int64, at time.Time) (bool, error) {
	const q = `UPDATE shops SET status='closed', closed_at=$2, updated_at=NOW() WHERE id=$1 AND status='active'`
	res, err := r.db.ExecContext(ctx, q, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
