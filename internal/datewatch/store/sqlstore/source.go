package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/syntrixbase/datewatch/internal/condition"
	"github.com/syntrixbase/datewatch/internal/datewatch/store"
	"github.com/syntrixbase/datewatch/pkg/model"
)

// Source reads watched tables that live in the same SQL database. Every table
// must have an integer "id" primary key.
type Source struct {
	db      *sql.DB
	dialect Dialect
}

var _ store.EntitySource = (*Source)(nil)

// NewSource creates a SQL entity source.
func NewSource(db *sql.DB, d Dialect) *Source {
	return &Source{db: db, dialect: d}
}

func checkIdent(names ...string) error {
	for _, n := range names {
		if !model.IsIdentifier(n) {
			return fmt.Errorf("%w: invalid identifier %q", model.ErrInvalidDefinition, n)
		}
	}
	return nil
}

// Scan buffers the matching rows before invoking fn so fn may write to the
// same database on a single-connection pool.
func (s *Source) Scan(ctx context.Context, table, field string, since int64, cond condition.Set, fn func(store.Entry) error) error {
	if err := checkIdent(table, field); err != nil {
		return err
	}
	col := condition.QuoteIdent(field)
	query := fmt.Sprintf(`SELECT "id", %s FROM %s WHERE %s >= %s`,
		col, condition.QuoteIdent(table), col, s.dialect.Placeholder(1))
	args := []interface{}{since}

	where, condArgs, err := condition.SQL(cond, s.dialect.Placeholder, 2)
	if err != nil {
		return err
	}
	if where != "" {
		query += " AND " + where
		args = append(args, condArgs...)
	}
	query += ` ORDER BY "id"`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return model.WrapError(err)
	}
	var entries []store.Entry
	for rows.Next() {
		var id int64
		var value sql.NullInt64
		if err := rows.Scan(&id, &value); err != nil {
			rows.Close()
			return err
		}
		if value.Valid {
			entries = append(entries, store.Entry{ObjectID: id, Value: value.Int64})
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return model.WrapError(err)
	}

	for _, e := range entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) Get(ctx context.Context, table string, id int64) (model.Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT * FROM %s WHERE "id" = %s`, condition.QuoteIdent(table), s.dialect.Placeholder(1))
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, model.WrapError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, model.WrapError(err)
		}
		return nil, model.ErrNotFound
	}

	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	rec := make(model.Record, len(cols))
	for i, c := range cols {
		rec[c] = normalize(values[i])
	}
	return rec, nil
}

func (s *Source) Exists(ctx context.Context, table string, id int64) (bool, error) {
	if err := checkIdent(table); err != nil {
		return false, err
	}
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE "id" = %s`, condition.QuoteIdent(table), s.dialect.Placeholder(1))
	var one int
	err := s.db.QueryRowContext(ctx, query, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, model.WrapError(err)
	}
	return true, nil
}

// normalize converts driver values into the types records carry.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Unix()
	default:
		return v
	}
}
