// Package workflow advances work items through the stage graph.
//
// The Manager runs one Worker per stage. Each worker polls its stage for
// claimable items, claims them with a conditional update, runs the stage
// handler, and then either completes the item and fans out successors to
// the downstream stages or applies the retry policy. Workers share nothing
// but the queue store, so several daemons may poll the same database.
//
// Add a stage by extending the queue stage graph and registering a handler
// in StageSet; this package is the authoritative home for that coordination
// logic.
package workflow
