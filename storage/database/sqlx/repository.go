package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/siat-edu/siat/core"
)

// repository holds the default executor; every method may be handed a transaction instead.
type repository struct {
	exec core.DBExecutor
}

func (repo repository) getExec(exec []core.DBExecutor) core.DBExecutor {
	if len(exec) > 0 && exec[0] != nil {
		return exec[0]
	}
	return repo.exec
}

// trapNoRowsErr maps "no rows" errors to notFound.
func trapNoRowsErr(err, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// insertReturningID runs an INSERT written with `?` placeholders and returns the generated id.
func insertReturningID(ctx context.Context, exe core.DBExecutor, query string, args ...interface{}) (int64, error) {
	var id int64
	err := exe.QueryRowxContext(ctx, exe.Rebind(query+" RETURNING id"), args...).Scan(&id)
	return id, err
}

// isUniqueViolation reports whether err comes from a unique constraint of either engine.
func isUniqueViolation(err error) bool {
	switch e := errors.Cause(err).(type) {
	case *pq.Error:
		return e.Code == "23505"
	case sqlite3.Error:
		return e.ExtendedCode == sqlite3.ErrConstraintUnique || e.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// trapUniqueErr maps unique violations to a field error.
func trapUniqueErr(err error, field, msg, wrapMsg string) error {
	if isUniqueViolation(err) {
		return core.NewFieldError(field, msg)
	}
	return errors.Wrap(err, wrapMsg)
}

// orderBy renders the orderings whose field is allowed, falling back to def.
func orderBy(ordering []core.DBOrdering, allowed map[string]string, def string) string {
	list := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if col, ok := allowed[ord.Field]; ok {
			list = append(list, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	if len(list) == 0 {
		return " ORDER BY " + def
	}
	return " ORDER BY " + strings.Join(list, ", ")
}

// inClause expands `IN (?)` for ids; it must not be called with an empty slice.
func inClause(exe core.DBExecutor, query string, args ...interface{}) (string, []interface{}, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return exe.Rebind(q), a, nil
}
