// Package payload defines the typed document each pipeline stage reads from
// and writes back to a work item.
//
// Items store their payload as JSON. Stages decode it into the struct for
// their stage, fill in output fields, and write it back through Merge so keys
// the struct does not model are carried forward instead of dropped. Fan-out
// boundaries translate one stage's document into the next stage's input with
// explicit constructors (SearchFromIntake, FetchFromSearch, AnalysisFromFetch).
package payload
