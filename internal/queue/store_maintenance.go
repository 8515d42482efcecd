package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Stats returns a count of items grouped by status across all stages.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM work_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// StageStats returns counts by status for every stage.
func (s *Store) StageStats(ctx context.Context) (map[Stage]StageCounts, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT stage, status, COUNT(1) FROM work_items GROUP BY stage, status`)
	if err != nil {
		return nil, fmt.Errorf("stage stats: %w", err)
	}
	return collectStageCounts(rows)
}

// ScopeStats returns counts by status per stage for one submission.
func (s *Store) ScopeStats(ctx context.Context, scope string) (map[Stage]StageCounts, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT stage, status, COUNT(1) FROM work_items WHERE scope_key = ? GROUP BY stage, status`,
		scope,
	)
	if err != nil {
		return nil, fmt.Errorf("scope stats: %w", err)
	}
	return collectStageCounts(rows)
}

func collectStageCounts(rows *sql.Rows) (map[Stage]StageCounts, error) {
	defer rows.Close()
	out := make(map[Stage]StageCounts)
	for rows.Next() {
		var (
			stage  Stage
			status Status
			count  int
		)
		if err := rows.Scan(&stage, &status, &count); err != nil {
			return nil, err
		}
		if out[stage] == nil {
			out[stage] = make(StageCounts)
		}
		out[stage][status] = count
	}
	return out, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusProcessing:
			health.Processing += count
		case StatusRetry:
			health.Retry += count
		case StatusFailed:
			health.Failed += count
		case StatusCompleted:
			health.Completed += count
		}
	}
	return health, nil
}

// CheckHealth inspects the database file and schema for the health command.
// Findings are recorded on the returned value; an error means the
// inspection itself could not finish.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}
	info, err := os.Stat(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return health, nil
	case err != nil:
		return health, fmt.Errorf("stat queue database: %w", err)
	case info.IsDir():
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	ctx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()
	fail := func(step string, err error) (DatabaseHealth, error) {
		health.Error = err.Error()
		return health, fmt.Errorf("%s: %w", step, err)
	}

	version, err := s.userVersion(ctx)
	if err != nil {
		return fail("read database", err)
	}
	health.DatabaseReadable = true
	health.SchemaVersion = strconv.Itoa(version)

	columns, err := s.columns(ctx, "work_items")
	if err != nil {
		return fail("table info", err)
	}
	health.TableExists = len(columns) > 0
	health.ColumnsPresent = columns
	for _, want := range workItemColumns {
		if !slices.Contains(columns, want) {
			health.MissingColumns = append(health.MissingColumns, want)
		}
	}
	if health.TableExists {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM work_items").Scan(&health.TotalItems); err != nil {
			return fail("count work items", err)
		}
	}

	var integrity string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		return fail("integrity check", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return health, nil
}

// columns returns the column names of table, or nil when it does not exist.
func (s *Store) columns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
