package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/syntrixbase/datewatch/internal/datewatch/store"
	"github.com/syntrixbase/datewatch/pkg/datewatch"
	"github.com/syntrixbase/datewatch/pkg/model"
)

// insertBatch bounds the rows written per statement execution inside one transaction.
const insertBatch = 500

// IndexStore implements store.IndexStore on datewatch_field and datewatch_upcoming.
type IndexStore struct {
	db      *sql.DB
	dialect Dialect
}

var _ store.IndexStore = (*IndexStore)(nil)

// NewIndexStore creates an index store. The schema must already exist, see EnsureSchema.
func NewIndexStore(db *sql.DB, d Dialect) *IndexStore {
	return &IndexStore{db: db, dialect: d}
}

func (s *IndexStore) ListFields(ctx context.Context) ([]datewatch.IndexedField, error) {
	return s.queryFields(ctx, `
		SELECT id, tablename, fieldname, maxoffset, lastcheck, condhash
		FROM datewatch_field ORDER BY id`)
}

func (s *IndexStore) FieldsForTable(ctx context.Context, table string) ([]datewatch.IndexedField, error) {
	return s.queryFields(ctx, `
		SELECT id, tablename, fieldname, maxoffset, lastcheck, condhash
		FROM datewatch_field WHERE tablename = ? ORDER BY id`, table)
}

func (s *IndexStore) queryFields(ctx context.Context, query string, args ...interface{}) ([]datewatch.IndexedField, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, model.WrapError(err)
	}
	defer rows.Close()

	var fields []datewatch.IndexedField
	for rows.Next() {
		var f datewatch.IndexedField
		if err := rows.Scan(&f.ID, &f.Table, &f.Field, &f.MaxOffset, &f.LastCheck, &f.CondHash); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, model.WrapError(err)
	}
	return fields, nil
}

func (s *IndexStore) CreateField(ctx context.Context, f datewatch.IndexedField) (datewatch.IndexedField, error) {
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		INSERT INTO datewatch_field (tablename, fieldname, maxoffset, lastcheck, condhash)
		VALUES (?, ?, ?, ?, ?) RETURNING id`),
		f.Table, f.Field, f.MaxOffset, f.LastCheck, f.CondHash,
	).Scan(&f.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return datewatch.IndexedField{}, fmt.Errorf("indexed field %s.%s already exists: %w", f.Table, f.Field, err)
		}
		return datewatch.IndexedField{}, model.WrapError(err)
	}
	return f, nil
}

// DeleteField removes entries explicitly so SQLite connections opened without
// foreign key enforcement behave like PostgreSQL.
func (s *IndexStore) DeleteField(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.WrapError(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM datewatch_upcoming WHERE datewatchid = ?`), id); err != nil {
		return model.WrapError(err)
	}
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM datewatch_field WHERE id = ?`), id); err != nil {
		return model.WrapError(err)
	}
	return model.WrapError(tx.Commit())
}

func (s *IndexStore) SetLastCheck(ctx context.Context, id int64, lastCheck int64) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		UPDATE datewatch_field SET lastcheck = ? WHERE id = ? AND lastcheck < ?`),
		lastCheck, id, lastCheck)
	return model.WrapError(err)
}

const upsertEntry = `
		INSERT INTO datewatch_upcoming (datewatchid, objectid, value) VALUES (?, ?, ?)
		ON CONFLICT (datewatchid, objectid) DO UPDATE SET value = excluded.value`

func (s *IndexStore) UpsertEntry(ctx context.Context, fieldID, objectID, value int64) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(upsertEntry), fieldID, objectID, value)
	return model.WrapError(err)
}

func (s *IndexStore) InsertEntries(ctx context.Context, fieldID int64, entries []store.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.WrapError(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(upsertEntry))
	if err != nil {
		return model.WrapError(err)
	}
	defer stmt.Close()

	for i, e := range entries {
		if i > 0 && i%insertBatch == 0 {
			if err := ctx.Err(); err != nil {
				return model.WrapError(err)
			}
		}
		if _, err := stmt.ExecContext(ctx, fieldID, e.ObjectID, e.Value); err != nil {
			return model.WrapError(err)
		}
	}
	return model.WrapError(tx.Commit())
}

func (s *IndexStore) DeleteEntry(ctx context.Context, fieldID, objectID int64) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		DELETE FROM datewatch_upcoming WHERE datewatchid = ? AND objectid = ?`),
		fieldID, objectID)
	return model.WrapError(err)
}

func (s *IndexStore) DeleteObjectEntries(ctx context.Context, fieldIDs []int64, objectID int64) error {
	if len(fieldIDs) == 0 {
		return nil
	}
	in, args := s.dialect.inClause("datewatchid", fieldIDs)
	args = append(args, objectID)
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`DELETE FROM datewatch_upcoming WHERE `+in+` AND objectid = ?`), args...)
	return model.WrapError(err)
}

func (s *IndexStore) Entries(ctx context.Context, fieldID int64) ([]datewatch.UpcomingEntry, error) {
	return s.queryEntries(ctx, `
		SELECT id, datewatchid, objectid, value FROM datewatch_upcoming
		WHERE datewatchid = ? ORDER BY value, objectid`, fieldID)
}

func (s *IndexStore) Window(ctx context.Context, fieldID int64, lower, upper int64) ([]datewatch.UpcomingEntry, error) {
	return s.queryEntries(ctx, `
		SELECT id, datewatchid, objectid, value FROM datewatch_upcoming
		WHERE datewatchid = ? AND value > ? AND value <= ? ORDER BY value, objectid`,
		fieldID, lower, upper)
}

func (s *IndexStore) queryEntries(ctx context.Context, query string, args ...interface{}) ([]datewatch.UpcomingEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, model.WrapError(err)
	}
	defer rows.Close()

	var entries []datewatch.UpcomingEntry
	for rows.Next() {
		var e datewatch.UpcomingEntry
		if err := rows.Scan(&e.ID, &e.FieldID, &e.ObjectID, &e.Value); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, model.WrapError(err)
	}
	return entries, nil
}

// Close closes the underlying pool.
func (s *IndexStore) Close(ctx context.Context) error {
	return s.db.Close()
}
