// Package api defines the ingress operation, the status surface and the
// wire-format types shared by the daemon HTTP server and the CLI.
//
// # Operations
//
// Submit: validates the shape of a request and enqueues exactly one root
// intake item. The returned scope key is the handle for every later query.
//
// Report: per-stage status counts for one scope, plus the total and whether
// every item reached a terminal status.
//
// Tree: every item of a scope in stage then enqueue order.
//
// # Converters
//
// FromQueueItem: queue.Item -> QueueItem with the payload passed through as
// json.RawMessage to avoid double-encoding.
//
// FromStatusSummary: workflow.StatusSummary -> WorkflowStatus.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Enums are exposed as lowercase strings and
// timestamps use RFC3339 with milliseconds. A failed descendant is reported
// as-is and never rolls up into its ancestors, so partial success is a valid
// final state for a scope.
package api
