// Package queue persists pipeline work items in SQLite and exposes the
// operations the workflow workers need to drive their lifecycle.
//
// Every stage shares one `work_items` table keyed by (scope_key, stage,
// sequence_key). Status changes are conditional updates guarded by the
// current status, so two workers racing for the same item cannot both claim
// it and terminal items (completed, failed) are never rewritten.
//
// The database is the durable hand-off between stages, not an archive. The
// schema version lives in PRAGMA user_version; a database stamped with another
// version is refused at open.
package queue
