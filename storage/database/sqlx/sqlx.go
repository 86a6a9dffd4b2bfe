// Package sqlxrepos implements the core repositories on Postgres with sqlx and squirrel.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/alloqly/alloqly/core"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// uniqueViolation returns the name of the violated unique constraint, if err is a unique violation.
func uniqueViolation(err error) (string, bool) {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
		return pqErr.Constraint, true
	}
	return "", false
}

// validID reports whether id can be compared to a UUID column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func validIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	return valid
}

func getOne(ctx context.Context, exec core.DBExecutor, dest interface{}, qb sq.Sqlizer) error {
	query, args, err := qb.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.GetContext(ctx, exec, dest, query, args...)
}

func selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, qb sq.Sqlizer) error {
	query, args, err := qb.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.SelectContext(ctx, exec, dest, query, args...)
}

// execAffecting runs qb and returns the number of affected rows.
func execAffecting(ctx context.Context, exec core.DBExecutor, qb sq.Sqlizer) (int, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func exists(ctx context.Context, exec core.DBExecutor, qb sq.SelectBuilder) (bool, error) {
	var found bool
	err := getOne(ctx, exec, &found, qb.Prefix("SELECT EXISTS (").Suffix(")"))
	return found, err
}

// orderBy translates ordering into ORDER BY clauses, dropping fields missing from allowed (API field -> column).
func orderBy(ordering []core.DBOrdering, allowed map[string]string, fallback ...string) []string {
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := allowed[strings.ToLower(ord.Field)]
		if !ok {
			continue
		}
		clauses = append(clauses, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	if len(clauses) == 0 {
		return fallback
	}
	return clauses
}

func ilike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return "%" + r.Replace(s) + "%"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func stringArray(ss []string) pq.StringArray {
	if ss == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(ss)
}

func fromArray(arr pq.StringArray) []string {
	if arr == nil {
		return []string{}
	}
	return []string(arr)
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
