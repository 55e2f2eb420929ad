package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/murilobento/studiofisiopilates-sub000/core"
)

const uniqueViolation = "23505"

type (
	txKey struct{}

	// executor is implemented by both *sqlx.DB and *sqlx.Tx.
	executor interface {
		sqlx.ExtContext
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	}

	// Store runs the repositories against a Postgres database.
	// The transaction opened by WithinTx travels in the context.
	Store struct {
		db *sqlx.DB
	}
)

var _ core.Transactor = (*Store)(nil)

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return core.NewDependencyError(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return core.NewDependencyError(err, "committing transaction")
	}
	return nil
}

// ext returns the transaction carried by ctx, or the database.
func (s *Store) ext(ctx context.Context) executor {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return s.db
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == uniqueViolation && (constraint == "" || pqErr.Constraint == constraint)
}

// dbErr maps "no rows" to notFound and any other failure to a DependencyError.
func dbErr(err error, notFound error, op string) error {
	switch {
	case err == nil:
		return nil
	case err == sql.ErrNoRows && notFound != nil:
		return notFound
	}
	return core.NewDependencyError(err, op)
}

// where accumulates AND-ed conditions written with "?" placeholders.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// bind expands slice arguments and rebinds the placeholders for the driver.
func bind(ext executor, query string, args ...interface{}) (string, []interface{}, error) {
	q, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, errors.Wrap(err, "binding query")
	}
	return ext.Rebind(q), args, nil
}

func orderBy(ordering []core.DBOrdering, allowed map[string]bool, fallback string) string {
	clauses := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if allowed[ord.Field] {
			clauses = append(clauses, ord.String())
		}
	}
	clauses = append(clauses, fallback)
	return " ORDER BY " + strings.Join(clauses, ", ")
}

const dateLayout = "2006-01-02"

// dateArg passes the calendar day of t without time zone conversion.
func dateArg(t time.Time) string {
	return t.Format(dateLayout)
}

// dateOf normalizes a DATE column to a UTC midnight.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
