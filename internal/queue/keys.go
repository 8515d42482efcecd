package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ScopeKey builds the opaque key shared by every item of one submission.
func ScopeKey(projectID, requestID string) string {
	return strings.TrimSpace(projectID) + "#" + strings.TrimSpace(requestID)
}

// SplitScopeKey returns the project and request identifiers encoded in a scope key.
func SplitScopeKey(scope string) (projectID, requestID string, ok bool) {
	project, request, found := strings.Cut(scope, "#")
	if !found || project == "" || request == "" {
		return "", "", false
	}
	return project, request, true
}

// NewSequenceKey returns a key unique within (scope, stage) whose lexical order
// follows enqueue time.
func NewSequenceKey(stage Stage, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s#%020d#%s", stage, now.UTC().UnixNano(), suffix)
}
