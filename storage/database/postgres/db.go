// Package pgrepos implements the repositories on PostgreSQL.
package pgrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/strmangle"
)

func newID() string {
	return uuid.New().String()
}

// validID reports whether id can be compared against a uuid column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// validIDs drops the ids that are not uuids.
func validIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	return valid
}

// nullID maps an empty or malformed id to NULL.
func nullID(id string) null.String {
	return null.NewString(id, validID(id))
}

// trapNoRows maps sql.ErrNoRows to notFound.
func trapNoRows(err error, notFound error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// inTx runs fn in a transaction, rolled back when fn fails.
func inTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// bulkInsert inserts rows of len(columns) values each into table.
func bulkInsert(ctx context.Context, tx *sqlx.Tx, table string, columns []string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(rows)*len(columns))
	for _, row := range rows {
		args = append(args, row...)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s",
		table,
		strings.Join(strmangle.IdentQuoteSlice('"', '"', columns), ", "),
		strmangle.Placeholders(true, len(args), 1, len(columns)),
	)
	_, err := tx.ExecContext(ctx, query, args...)
	return errors.Wrapf(err, "inserting into %s", table)
}

// syncChildren makes rows the only children of parentID in table.
// columns start with "id" and the parent column; rows keep their ids, so other tables
// referencing them are left alone.
func syncChildren(ctx context.Context, tx *sqlx.Tx, table string, columns []string, parentID string, rows [][]interface{}) error {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row[0].(string))
	}
	del := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND NOT (id = ANY($2::uuid[]))`, table, columns[1])
	if _, err := tx.ExecContext(ctx, del, parentID, pq.StringArray(ids)); err != nil {
		return errors.Wrapf(err, "deleting from %s", table)
	}
	if len(rows) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(rows)*len(columns))
	for _, row := range rows {
		args = append(args, row...)
	}
	_, err := tx.ExecContext(ctx, upsertQuery(table, columns, len(args)), args...)
	return errors.Wrapf(err, "upserting into %s", table)
}

// upsertQuery inserts nargs/len(columns) rows, updating the rows whose id exists under the same parent.
func upsertQuery(table string, columns []string, nargs int) string {
	quoted := strmangle.IdentQuoteSlice('"', '"', columns)
	sets := make([]string, 0, len(quoted)-1)
	for _, col := range quoted[1:] {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s) DO UPDATE SET %s WHERE %s.%s = EXCLUDED.%s",
		table,
		strings.Join(quoted, ", "),
		strmangle.Placeholders(true, nargs, 1, len(columns)),
		quoted[0],
		strings.Join(sets, ", "),
		table, quoted[1], quoted[1],
	)
}

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	conds []string
	args  []interface{}
}

// add appends cond, in which every "?" is replaced by the next positional argument.
func (w *where) add(cond string, args ...interface{}) {
	for _, arg := range args {
		w.args = append(w.args, arg)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// next returns the placeholder of an argument appended after the conditions.
func (w *where) next(arg interface{}) string {
	w.args = append(w.args, arg)
	return fmt.Sprintf("$%d", len(w.args))
}
