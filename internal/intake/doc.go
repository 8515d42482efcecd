// Package intake implements the root stage of the pipeline. It validates a
// submitted request, records a processing plan and fans out one search item
// per configured source.
package intake
