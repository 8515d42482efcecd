// Package llm provides an OpenAI-compatible chat client (OpenRouter by
// default) that implements the analysis capability.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Complete: send system/user prompts, receive the model's text.
// Client.Analyze: services.Analyzer adapter used by the fetch summary and
// the relevance, insight and implication stages.
// Client.HealthCheck: verify API key and model availability.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty completions and
// network timeouts with doubling backoff (first 1s, ceiling 10s, up to 5
// attempts by default). Context cancellation aborts retries immediately.
// These in-request retries are separate from the queue retry policy: a call
// that still fails is returned to the workflow, which schedules the item for
// another attempt.
package llm
