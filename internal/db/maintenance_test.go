package db

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVacuumAnalyze(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`VACUUM ANALYZE "documents"`).WillReturnResult(pgxmock.NewResult("VACUUM", 0))

	require.NoError(t, VacuumAnalyze(context.Background(), mock, "documents"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVacuumAnalyze_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("VACUUM ANALYZE").WillReturnError(errors.New("permission denied"))

	err = VacuumAnalyze(context.Background(), mock, "documents")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: vacuum analyze documents")
}

func TestVacuumAnalyze_NoTables(t *testing.T) {
	err := VacuumAnalyze(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tables specified")
}

func TestGetTableStats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM pg_stat_user_tables").
		WithArgs([]string{"documents"}).
		WillReturnRows(pgxmock.NewRows([]string{"relname", "n_live_tup", "n_dead_tup", "total", "index"}).
			AddRow("documents", int64(1200), int64(35), "2048 kB", "512 kB"))

	stats, err := GetTableStats(context.Background(), mock, "documents")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "documents", stats[0].TableName)
	assert.Equal(t, int64(1200), stats[0].RowCount)
	assert.Equal(t, int64(35), stats[0].DeadRows)
	assert.Equal(t, "2048 kB", stats[0].TotalSize)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTableStats_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM pg_stat_user_tables").WillReturnError(errors.New("boom"))

	_, err = GetTableStats(context.Background(), mock, "documents")
	assert.Error(t, err)
}
