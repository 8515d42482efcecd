// Command marketintel is the operator CLI for the market-intelligence
// pipeline. It submits requests, reports their progress and inspects the
// work queue, talking to the daemon API when it answers and to the SQLite
// queue directly otherwise.
package main
