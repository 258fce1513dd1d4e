package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// TableStats holds size and row count information for a table.
type TableStats struct {
	TableName string `json:"table_name" yaml:"table_name"`
	RowCount  int64  `json:"row_count" yaml:"row_count"`
	DeadRows  int64  `json:"dead_rows" yaml:"dead_rows"`
	TotalSize string `json:"total_size" yaml:"total_size"`
	IndexSize string `json:"index_size" yaml:"index_size"`
}

// VacuumAnalyze runs VACUUM ANALYZE on each table to refresh planner
// statistics and reclaim dead tuples left by document rewrites.
func VacuumAnalyze(ctx context.Context, pool Pool, tables ...string) error {
	if len(tables) == 0 {
		return eris.New("db: vacuum: no tables specified")
	}
	for _, table := range tables {
		zap.L().Info("db: vacuum analyze", zap.String("table", table))
		if _, err := pool.Exec(ctx, "VACUUM ANALYZE "+pgx.Identifier{table}.Sanitize()); err != nil {
			return eris.Wrapf(err, "db: vacuum analyze %s", table)
		}
	}
	return nil
}

const tableStatsSQL = `
	SELECT
		relname,
		n_live_tup,
		n_dead_tup,
		pg_size_pretty(pg_total_relation_size(relid)),
		pg_size_pretty(pg_indexes_size(relid))
	FROM pg_stat_user_tables
	WHERE relname = ANY($1)
	ORDER BY pg_total_relation_size(relid) DESC`

// GetTableStats returns size and row count statistics for the named tables.
func GetTableStats(ctx context.Context, pool Pool, tables ...string) ([]TableStats, error) {
	rows, err := pool.Query(ctx, tableStatsSQL, tables)
	if err != nil {
		return nil, eris.Wrap(err, "db: query table stats")
	}
	defer rows.Close()

	var stats []TableStats
	for rows.Next() {
		var s TableStats
		if err := rows.Scan(&s.TableName, &s.RowCount, &s.DeadRows, &s.TotalSize, &s.IndexSize); err != nil {
			return nil, eris.Wrap(err, "db: scan table stats row")
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "db: iterate table stats rows")
	}
	return stats, nil
}
