package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Put inserts a new work item. Missing sequence keys, statuses and timestamps are
// filled in; the stored copy is returned.
func (s *Store) Put(ctx context.Context, item *Item) (*Item, error) {
	if item == nil {
		return nil, errors.New("item is nil")
	}
	if strings.TrimSpace(item.ScopeKey) == "" {
		return nil, errors.New("item scope key is required")
	}
	if _, ok := ParseStage(string(item.Stage)); !ok {
		return nil, fmt.Errorf("unknown stage %q", item.Stage)
	}

	now := s.clock()
	stored := item.Clone()
	if stored.SequenceKey == "" {
		stored.SequenceKey = NewSequenceKey(stored.Stage, now)
	}
	if stored.Status == "" {
		stored.Status = StatusPending
	}
	if stored.Priority == "" {
		stored.Priority = PriorityMedium
	}
	if stored.Strategy == "" {
		stored.Strategy = StrategyTable
	}
	if strings.TrimSpace(stored.PayloadJSON) == "" {
		stored.PayloadJSON = "{}"
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	metadata, err := encodeMetadata(stored.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO work_items (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ScopeKey,
		string(stored.Stage),
		stored.SequenceKey,
		string(stored.Status),
		string(stored.Priority),
		string(stored.Strategy),
		stored.PayloadJSON,
		metadata,
		stored.RetryCount,
		nullableString(stored.ErrorMessage),
		nullableTime(stored.NextAttemptAt),
		formatTime(stored.CreatedAt),
		formatTime(stored.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, fmt.Errorf("insert %s: %w", stored.Key(), ErrDuplicateKey)
		}
		return nil, fmt.Errorf("insert work item: %w", err)
	}
	return stored, nil
}

// Get fetches a work item by key. It returns nil when the item does not exist.
func (s *Store) Get(ctx context.Context, key Key) (*Item, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+itemColumns+` FROM work_items WHERE scope_key = ? AND stage = ? AND sequence_key = ?`,
		key.ScopeKey, string(key.Stage), key.SequenceKey,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// Scan returns up to limit items of one stage in the given statuses, oldest
// first. Items in retry are included only once their next attempt time has
// passed relative to now.
func (s *Store) Scan(ctx context.Context, stage Stage, statuses []Status, limit int, now time.Time) ([]*Item, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 1
	}
	args := make([]any, 0, len(statuses)+3)
	args = append(args, string(stage))
	args = append(args, statusArgs(statuses)...)
	args = append(args, formatTime(now), limit)
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+itemColumns+` FROM work_items
        WHERE stage = ? AND status IN (`+makePlaceholders(len(statuses))+`)
          AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
        ORDER BY sequence_key
        LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("scan %s items: %w", stage, err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, fmt.Errorf("scan %s items: %w", stage, err)
	}
	return items, nil
}

// ListScope returns every item descended from one submission in enqueue order.
func (s *Store) ListScope(ctx context.Context, scope string) ([]*Item, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+itemColumns+` FROM work_items WHERE scope_key = ? ORDER BY created_at, sequence_key`,
		scope,
	)
	if err != nil {
		return nil, fmt.Errorf("list scope: %w", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, fmt.Errorf("list scope: %w", err)
	}
	return items, nil
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Stage    Stage
	Statuses []Status
	Limit    int
}

// List returns items matching the filter, most recently updated first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Item, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Stage != "" {
		clauses = append(clauses, "stage = ?")
		args = append(args, string(filter.Stage))
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		args = append(args, statusArgs(filter.Statuses)...)
	}
	query := `SELECT ` + itemColumns + ` FROM work_items`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY updated_at DESC, sequence_key"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// ScopeSummary describes one submission known to the store.
type ScopeSummary struct {
	ScopeKey  string
	Items     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Scopes lists the most recent submissions.
func (s *Store) Scopes(ctx context.Context, limit int) ([]ScopeSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT scope_key, COUNT(1), MIN(created_at), MAX(updated_at)
        FROM work_items GROUP BY scope_key ORDER BY MIN(created_at) DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	defer rows.Close()

	var out []ScopeSummary
	for rows.Next() {
		var (
			summary    ScopeSummary
			createdRaw string
			updatedRaw string
		)
		if err := rows.Scan(&summary.ScopeKey, &summary.Items, &createdRaw, &updatedRaw); err != nil {
			return nil, fmt.Errorf("scan scope: %w", err)
		}
		summary.CreatedAt, _ = parseTimeString(createdRaw)
		summary.UpdatedAt, _ = parseTimeString(updatedRaw)
		out = append(out, summary)
	}
	return out, rows.Err()
}

// Clear removes all work items.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM work_items`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY") ||
		strings.Contains(msg, "SQLITE_CONSTRAINT")
}
