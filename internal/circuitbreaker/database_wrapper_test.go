package circuitbreaker

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDatabaseWrapperExec(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dw := NewDatabaseWrapper(db, "db-test-exec", "test", zap.NewNop())
	mock.ExpectExec("INSERT INTO things").
		WithArgs("a").
		WillReturnResult(sqlmock.NewResult(1, 1))

	res, err := dw.ExecContext(context.Background(), "INSERT INTO things(name) VALUES($1)", "a")
	require.NoError(t, err)
	n, _ := res.RowsAffected()
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseWrapperQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dw := NewDatabaseWrapper(db, "db-test-query", "test", zap.NewNop())
	mock.ExpectQuery("SELECT name FROM things").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("a").AddRow("b"))

	rows, err := dw.QueryContext(context.Background(), "SELECT name FROM things")
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestDatabaseWrapperOpensAfterFailures(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dw := NewDatabaseWrapper(db, "db-test-open", "test", zap.NewNop())
	boom := errors.New("connection refused")
	for i := 0; i < 5; i++ {
		mock.ExpectExec("INSERT").WillReturnError(boom)
	}

	for i := 0; i < 5; i++ {
		_, _ = dw.ExecContext(context.Background(), "INSERT INTO things(name) VALUES($1)", "a")
	}
	assert.True(t, dw.IsOpen())

	_, err = dw.ExecContext(context.Background(), "INSERT INTO things(name) VALUES($1)", "a")
	assert.ErrorIs(t, err, ErrOpen)
}
