// Package metrics records engine activity. The engine only sees the Collector
// interface; Prometheus is wired in by the server.
package metrics

// Collector receives engine measurements.
type Collector interface {
	// AssignmentsCreated counts new assignments handed out by one allocation.
	AssignmentsCreated(n int)
	// AllocationLatency observes the duration of one allocation in seconds.
	AllocationLatency(seconds float64)
	SubmissionRecorded()
	// ItemResolved counts items closed with the given resolution.
	ItemResolved(resolution string)
	// Reviewed counts reviewer decisions.
	Reviewed(decision string)
	// ConflictRetry counts retried transactions by operation.
	ConflictRetry(op string)
}
