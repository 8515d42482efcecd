package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const itemColumns = "scope_key, stage, sequence_key, status, priority, strategy, payload_json, metadata_json, retry_count, error_message, next_attempt_at, created_at, updated_at"

// timeLayout is fixed width so stored timestamps compare lexically in SQL.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		scopeKey       string
		stage          string
		sequenceKey    string
		statusStr      string
		priority       string
		strategy       string
		payload        sql.NullString
		metadata       sql.NullString
		retryCount     int
		errorMessage   sql.NullString
		nextAttemptRaw sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&scopeKey,
		&stage,
		&sequenceKey,
		&statusStr,
		&priority,
		&strategy,
		&payload,
		&metadata,
		&retryCount,
		&errorMessage,
		&nextAttemptRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ScopeKey:     scopeKey,
		Stage:        Stage(stage),
		SequenceKey:  sequenceKey,
		Status:       Status(statusStr),
		Priority:     Priority(priority),
		Strategy:     Strategy(strategy),
		PayloadJSON:  payload.String,
		RetryCount:   retryCount,
		ErrorMessage: errorMessage.String,
	}
	if metadata.Valid && metadata.String != "" {
		var meta map[string]string
		if err := json.Unmarshal([]byte(metadata.String), &meta); err == nil {
			item.Metadata = meta
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if nextAttemptRaw.Valid {
		if next, err := parseTimeString(nextAttemptRaw.String); err == nil {
			item.NextAttemptAt = &next
		}
	}
	return item, nil
}

func scanItems(rows *sql.Rows) ([]*Item, error) {
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func encodeMetadata(meta map[string]string) (any, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, 0, len(statuses))
	for _, status := range statuses {
		args = append(args, string(status))
	}
	return args
}
