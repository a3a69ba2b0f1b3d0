package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// stubConnector serves every query with rows built by next.
type stubConnector struct{ next func() driver.Rows }

func (c stubConnector) Connect(context.Context) (driver.Conn, error) { return stubConn(c), nil }
func (c stubConnector) Driver() driver.Driver                        { return c }
func (c stubConnector) Open(string) (driver.Conn, error)             { return stubConn(c), nil }

type stubConn stubConnector

func (c stubConn) Prepare(string) (driver.Stmt, error) { return stubStmt(c), nil }
func (stubConn) Close() error                          { return nil }
func (stubConn) Begin() (driver.Tx, error)             { return nil, errors.New("no transactions") }

type stubStmt stubConn

func (stubStmt) Close() error                                { return nil }
func (stubStmt) NumInput() int                               { return -1 }
func (stubStmt) Exec([]driver.Value) (driver.Result, error)  { return nil, errors.New("no exec") }
func (s stubStmt) Query([]driver.Value) (driver.Rows, error) { return s.next(), nil }

// stubRows yields vals, then fails with err or ends.
type stubRows struct {
	vals [][]driver.Value
	err  error
}

func (r *stubRows) Columns() []string { return []string{"id"} }
func (r *stubRows) Close() error      { return nil }
func (r *stubRows) Next(dest []driver.Value) error {
	if len(r.vals) > 0 {
		copy(dest, r.vals[0])
		r.vals = r.vals[1:]
		return nil
	}
	if r.err != nil {
		return r.err
	}
	return io.EOF
}

func stubDB(next func() driver.Rows) *sqlx.DB {
	return sqlx.NewDb(sql.OpenDB(stubConnector{next: next}), "postgres")
}

func TestScanOne(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name    string
		rows    func() driver.Rows
		wantID  int64
		wantErr func(error) bool
	}{
		{
			name:   "returned row",
			rows:   func() driver.Rows { return &stubRows{vals: [][]driver.Value{{int64(7)}}} },
			wantID: 7,
		},
		{
			name: "violation reported while iterating",
			rows: func() driver.Rows {
				return &stubRows{err: &pq.Error{Code: "23505", Constraint: "shops_shop_number_key"}}
			},
			wantErr: func(err error) bool {
				c, ok := UniqueViolation(err)
				return ok && c == "shops_shop_number_key"
			},
		},
		{
			name:    "no row",
			rows:    func() driver.Rows { return &stubRows{} },
			wantErr: func(err error) bool { return errors.Is(err, sql.ErrNoRows) },
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := stubDB(tc.rows)
			defer db.Close()
			rows, err := db.QueryxContext(ctx, "INSERT INTO shops DEFAULT VALUES RETURNING id")
			if err != nil {
				t.Fatal(err)
			}
			var id int64
			err = ScanOne(rows, &id)
			if tc.wantErr != nil {
				if !tc.wantErr(err) {
					t.Errorf("err = %v", err)
				}
				return
			}
			if err != nil || id != tc.wantID {
				t.Errorf("ScanOne = %d, %v", id, err)
			}
		})
	}
}

func TestUniqueViolation(t *testing.T) {
	wrapped := fmt.Errorf("insert staff: %w", &pq.Error{Code: "23505", Constraint: "staff_email_key"})
	constraint, ok := UniqueViolation(wrapped)
	if !ok || constraint != "staff_email_key" {
		t.Fatalf("UniqueViolation = %q, %v; want staff_email_key, true", constraint, ok)
	}

	if _, ok := UniqueViolation(&pq.Error{Code: "23503"}); ok {
		t.Error("foreign key violation reported as unique violation")
	}
	if _, ok := UniqueViolation(errors.New("boom")); ok {
		t.Error("plain error reported as unique violation")
	}
}

func TestForeignKeyViolation(t *testing.T) {
	constraint, ok := ForeignKeyViolation(fmt.Errorf("delete: %w", &pq.Error{Code: "23503", Constraint: "worker_tasks_worker_id_fkey"}))
	if !ok || constraint != "worker_tasks_worker_id_fkey" {
		t.Fatalf("ForeignKeyViolation = %q, %v", constraint, ok)
	}
	if _, ok := ForeignKeyViolation(&pq.Error{Code: "23505"}); ok {
		t.Error("unique violation reported as foreign key violation")
	}
}

func TestQuoteLiteral(t *testing.T) {
	if got := quoteLiteral("Asia/Kolkata"); got != "'Asia/Kolkata'" {
		t.Errorf("quoteLiteral = %s", got)
	}
	if got := quoteLiteral("a'b"); got != "'a''b'" {
		t.Errorf("quoteLiteral = %s", got)
	}
}
