package metrics

// NopMetrics discards every measurement.
type NopMetrics struct{}

var _ Collector = (*NopMetrics)(nil)

func NewNop() *NopMetrics {
	return &NopMetrics{}
}

func (n *NopMetrics) AssignmentsCreated(_ int) {}

func (n *NopMetrics) AllocationLatency(_ float64) {}

func (n *NopMetrics) SubmissionRecorded() {}

func (n *NopMetrics) ItemResolved(_ string) {}

func (n *NopMetrics) Reviewed(_ string) {}

func (n *NopMetrics) ConflictRetry(_ string) {}
