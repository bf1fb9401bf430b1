// Package sqlxrepos implements the repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/markit/core"
)

type baseRepository struct {
	exec core.DBExecutor
}

// getExec returns the executor passed by the service (usually a transaction), or the repository's.
func (repo baseRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// selectAll runs q and scans every row into dest, a pointer to a slice of structs with `db` tags.
// q uses `?` bindvars.
func selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, q string, args ...interface{}) error {
	rows, err := exec.QueryContext(ctx, sqlx.Rebind(sqlx.DOLLAR, q), args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	return sqlx.StructScan(rows, dest)
}

// selectIn is selectAll for queries with `IN (?)` clauses.
func selectIn(ctx context.Context, exec core.DBExecutor, dest interface{}, q string, args ...interface{}) error {
	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return err
	}
	return selectAll(ctx, exec, dest, q, args...)
}

// getOne returns the first row of q; sql.ErrNoRows when there is none.
func getOne[T any](ctx context.Context, exec core.DBExecutor, q string, args ...interface{}) (T, error) {
	var list []T
	if err := selectAll(ctx, exec, &list, q, args...); err != nil {
		var zero T
		return zero, err
	}
	if len(list) == 0 {
		var zero T
		return zero, sql.ErrNoRows
	}
	return list[0], nil
}

// insert runs an INSERT ... RETURNING id statement.
func insert(ctx context.Context, exec core.DBExecutor, q string, args ...interface{}) (int64, error) {
	var id int64
	if err := exec.QueryRowContext(ctx, sqlx.Rebind(sqlx.DOLLAR, q), args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// execAffected runs q and returns the number of affected rows.
func execAffected(ctx context.Context, exec core.DBExecutor, q string, args ...interface{}) (int, error) {
	res, err := exec.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, q), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "getting affected rows")
	}
	return int(n), nil
}

func exists(ctx context.Context, exec core.DBExecutor, q string, args ...interface{}) (bool, error) {
	var found bool
	err := exec.QueryRowContext(ctx, sqlx.Rebind(sqlx.DOLLAR, "SELECT EXISTS ("+q+")"), args...).Scan(&found)
	return found, err
}

// trapNoRowsErr maps psql "no rows" err to notFound.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
