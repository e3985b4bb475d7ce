package domain

import "fmt"

// AssignmentStatus is the lifecycle of one annotator's attempt at a data item.
type AssignmentStatus string

const (
	AssignmentAssigned  AssignmentStatus = "assigned"
	AssignmentSubmitted AssignmentStatus = "submitted"
	AssignmentCompleted AssignmentStatus = "completed"
	AssignmentRejected  AssignmentStatus = "rejected"
)

var assignmentStatuses = []AssignmentStatus{
	AssignmentAssigned,
	AssignmentSubmitted,
	AssignmentCompleted,
	AssignmentRejected,
}

// AssignmentStatuses returns every assignment status in lifecycle order.
func AssignmentStatuses() []AssignmentStatus {
	out := make([]AssignmentStatus, len(assignmentStatuses))
	copy(out, assignmentStatuses)
	return out
}

// ParseAssignmentStatus rejects anything outside the closed set.
func ParseAssignmentStatus(s string) (AssignmentStatus, error) {
	for _, st := range assignmentStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid assignment status %q", s)
}

// Terminal reports whether the status can no longer change.
func (s AssignmentStatus) Terminal() bool {
	return s == AssignmentCompleted || s == AssignmentRejected
}

// ConsumesCapacity reports whether an assignment in this status counts against
// the project's MaxAssignments for its data item. Rejected work frees its slot.
func (s AssignmentStatus) ConsumesCapacity() bool {
	return s != AssignmentRejected
}

// Counted reports whether the assignment carries labels that take part in consensus.
func (s AssignmentStatus) Counted() bool {
	return s == AssignmentSubmitted || s == AssignmentCompleted
}

// DataItemStatus is the cached aggregate state of a data item.
type DataItemStatus string

const (
	ItemPending    DataItemStatus = "pending"
	ItemInProgress DataItemStatus = "in_progress"
	ItemDone       DataItemStatus = "done"
)

var itemStatuses = []DataItemStatus{ItemPending, ItemInProgress, ItemDone}

func ParseDataItemStatus(s string) (DataItemStatus, error) {
	for _, st := range itemStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid data item status %q", s)
}

// Resolution records how a done item was closed.
type Resolution string

const (
	ResolutionNone        Resolution = ""
	ResolutionConsensus   Resolution = "consensus"
	ResolutionNoConsensus Resolution = "no_consensus"
	ResolutionReviewed    Resolution = "reviewed"
)

// ReviewDecision is a reviewer's verdict on a submitted assignment.
type ReviewDecision string

const (
	ReviewApprove ReviewDecision = "approve"
	ReviewReject  ReviewDecision = "reject"
)

func ParseReviewDecision(s string) (ReviewDecision, error) {
	switch ReviewDecision(s) {
	case ReviewApprove, ReviewReject:
		return ReviewDecision(s), nil
	}
	return "", fmt.Errorf("invalid review decision %q", s)
}
