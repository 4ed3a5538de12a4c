package sqlstore

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/datewatch/internal/condition"
	"github.com/syntrixbase/datewatch/internal/datewatch/store"
	"github.com/syntrixbase/datewatch/pkg/model"
)

func TestSource_Scan_Postgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	src := NewSource(db, Postgres)
	mock.ExpectQuery(`SELECT "id", "startdate" FROM "course" WHERE "startdate" >= \$1 AND \(\("format" IN \(\$2, \$3\)\)\) ORDER BY "id"`).
		WithArgs(int64(1000), "topics", "weeks").
		WillReturnRows(sqlmock.NewRows([]string{"id", "startdate"}).
			AddRow(int64(1), int64(1200)).
			AddRow(int64(2), nil))

	cond := condition.Of(model.Filters{{Field: "format", Op: model.OpIn, Value: []interface{}{"topics", "weeks"}}})
	var got []store.Entry
	err = src.Scan(context.Background(), "course", "startdate", 1000, cond, func(e store.Entry) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []store.Entry{{ObjectID: 1, Value: 1200}}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSource_Get_Postgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	src := NewSource(db, Postgres)
	mock.ExpectQuery(`SELECT \* FROM "course" WHERE "id" = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "format"}).AddRow(int64(3), []byte("topics")))

	rec, err := src.Get(context.Background(), "course", 3)
	require.NoError(t, err)
	assert.Equal(t, "topics", rec["format"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSource_InvalidNames(t *testing.T) {
	src := NewSource(nil, Postgres)
	err := src.Scan(context.Background(), "course", "start date", 0, nil, func(store.Entry) error { return nil })
	assert.ErrorIs(t, err, model.ErrInvalidDefinition)
	_, err = src.Exists(context.Background(), "1course", 1)
	assert.ErrorIs(t, err, model.ErrInvalidDefinition)
}
