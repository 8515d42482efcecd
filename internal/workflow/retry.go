package workflow

import (
	"strings"
	"time"

	"marketintel/internal/queue"
	"marketintel/internal/services"
)

// RetryPolicy decides what happens to an item whose execution failed.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// Decide returns the failure to record for item after err. Every recorded
// failure increments the retry count. Permanent errors fail immediately; other
// errors wait Delay before the item becomes claimable again until the budget
// is spent.
func (p RetryPolicy) Decide(item *queue.Item, err error, now time.Time) queue.Failure {
	message := failureMessage(err)
	retries := item.RetryCount + 1
	if services.IsPermanent(err) {
		return queue.Failure{Status: queue.StatusFailed, RetryCount: retries, ErrorMessage: message}
	}
	if retries >= p.MaxRetries {
		if message == "" {
			message = queue.MaxRetriesExceeded
		}
		return queue.Failure{Status: queue.StatusFailed, RetryCount: retries, ErrorMessage: message}
	}
	next := now.Add(p.Delay)
	return queue.Failure{Status: queue.StatusRetry, RetryCount: retries, ErrorMessage: message, NextAttemptAt: &next}
}

func failureMessage(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}
