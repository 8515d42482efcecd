package queue

import (
	"context"
	"fmt"
	"time"
)

// StaleReclaimReason is recorded on items returned to retry by ReclaimStale.
const StaleReclaimReason = "Reclaimed from stale processing"

// Claim atomically moves a pending or retry item to processing. It returns nil
// without error when the item was not claimable, which means another worker
// owns it or it already reached a terminal state.
func (s *Store) Claim(ctx context.Context, key Key) (*Item, error) {
	now := s.clock()
	claimable := ClaimableStatuses()
	args := []any{string(StatusProcessing), formatTime(now), key.ScopeKey, string(key.Stage), key.SequenceKey}
	args = append(args, statusArgs(claimable)...)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE work_items
        SET status = ?, next_attempt_at = NULL, updated_at = ?
        WHERE scope_key = ? AND stage = ? AND sequence_key = ?
          AND status IN (`+makePlaceholders(len(claimable))+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", key, err)
	}
	if affected == 0 {
		return nil, nil
	}
	return s.Get(ctx, key)
}

// Complete records a successful execution and the accumulated payload.
func (s *Store) Complete(ctx context.Context, key Key, payloadJSON string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE work_items
        SET status = ?, payload_json = ?, error_message = NULL, next_attempt_at = NULL, updated_at = ?
        WHERE scope_key = ? AND stage = ? AND sequence_key = ? AND status = ?`,
		string(StatusCompleted),
		payloadJSON,
		formatTime(s.clock()),
		key.ScopeKey, string(key.Stage), key.SequenceKey,
		string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("complete %s: %w", key, err)
	}
	return requireAffected(res, key)
}

// Failure describes the outcome persisted after a failed execution.
type Failure struct {
	Status        Status
	RetryCount    int
	ErrorMessage  string
	PayloadJSON   string
	NextAttemptAt *time.Time
}

// RecordFailure moves a processing item to retry or failed. An empty payload
// leaves the stored payload untouched.
func (s *Store) RecordFailure(ctx context.Context, key Key, failure Failure) error {
	if !CanTransition(StatusProcessing, failure.Status) || failure.Status == StatusCompleted {
		return fmt.Errorf("%w: processing -> %s", ErrIllegalTransition, failure.Status)
	}
	var nextAttempt any
	if failure.Status == StatusRetry {
		nextAttempt = nullableTime(failure.NextAttemptAt)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE work_items
        SET status = ?, retry_count = ?, error_message = ?, next_attempt_at = ?,
            payload_json = COALESCE(?, payload_json), updated_at = ?
        WHERE scope_key = ? AND stage = ? AND sequence_key = ? AND status = ?`,
		string(failure.Status),
		failure.RetryCount,
		nullableString(failure.ErrorMessage),
		nextAttempt,
		nullableString(failure.PayloadJSON),
		formatTime(s.clock()),
		key.ScopeKey, string(key.Stage), key.SequenceKey,
		string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("record failure %s: %w", key, err)
	}
	return requireAffected(res, key)
}

// ReclaimStale returns items stuck in processing since before cutoff to retry,
// counting the stranded attempt against their retry budget. Items whose budget
// is exhausted move to failed instead. Nothing calls this automatically; it is
// an operator action for recovering from a crashed worker.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time, maxRetries int) (int64, error) {
	now := formatTime(s.clock())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE work_items
        SET status = CASE WHEN retry_count + 1 >= ? THEN ? ELSE ? END,
            next_attempt_at = CASE WHEN retry_count + 1 >= ? THEN NULL ELSE ? END,
            retry_count = retry_count + 1,
            error_message = ?,
            updated_at = ?
        WHERE status = ? AND updated_at < ?`,
		maxRetries, string(StatusFailed), string(StatusRetry),
		maxRetries, now,
		StaleReclaimReason,
		now,
		string(StatusProcessing),
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale items: %w", err)
	}
	return res.RowsAffected()
}

func requireAffected(res interface{ RowsAffected() (int64, error) }, key Key) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected %s: %w", key, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", key, ErrTransitionConflict)
	}
	return nil
}
