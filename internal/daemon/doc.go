// Package daemon coordinates the long-running marketintel process.
//
// It wires configuration, queue storage, the workflow manager and the HTTP
// API into a single lifecycle with flock-based locking to prevent multiple
// instances. The HTTP server is the ingress boundary for submissions and the
// status surface for operators; Prometheus metrics are served alongside it.
//
// Keep orchestration logic here: individual stage behavior lives in the stage
// packages while the daemon focuses on startup, shutdown and high level
// coordination.
package daemon
