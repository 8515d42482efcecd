// Package fetch implements the per-URL fetch stage: it retrieves and
// summarizes one page and hands an identical copy of the result to each
// analysis stage.
package fetch
