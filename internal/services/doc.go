// Package services defines the capability contracts stage handlers call out to
// and the shared utilities those integrations rely on.
//
// Key responsibilities:
//   - Searcher, Summarizer and Analyzer: the narrow interfaces the search,
//     fetch and analysis stages depend on. Provider packages underneath this
//     one (gemini, serpapi, webfetch, claude, llm, static) implement them.
//   - Context helpers that stamp scope keys, stage names, sequence keys and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper. IsPermanent tells the
//     workflow manager whether a failure skips the retry policy.
//   - Rate limiting wrappers shared by every remote provider.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
