// Package search implements the per-source search stage and the URL
// selection that bounds fan-out to the fetch stage.
package search
