package domain

import "testing"

func TestParseAssignmentStatus(t *testing.T) {
	for _, st := range AssignmentStatuses() {
		got, err := ParseAssignmentStatus(string(st))
		if err != nil || got != st {
			t.Fatalf("parse %s: got %q err %v", st, got, err)
		}
	}
	if _, err := ParseAssignmentStatus("Submitted"); err == nil {
		t.Fatalf("expected error for non-canonical status")
	}
}

func TestAssignmentStatusClassification(t *testing.T) {
	cases := []struct {
		status   AssignmentStatus
		terminal bool
		capacity bool
		counted  bool
	}{
		{AssignmentAssigned, false, true, false},
		{AssignmentSubmitted, false, true, true},
		{AssignmentCompleted, true, true, true},
		{AssignmentRejected, true, false, false},
	}
	for _, tc := range cases {
		if tc.status.Terminal() != tc.terminal {
			t.Errorf("%s terminal = %v", tc.status, tc.status.Terminal())
		}
		if tc.status.ConsumesCapacity() != tc.capacity {
			t.Errorf("%s capacity = %v", tc.status, tc.status.ConsumesCapacity())
		}
		if tc.status.Counted() != tc.counted {
			t.Errorf("%s counted = %v", tc.status, tc.status.Counted())
		}
	}
}

func TestParseReviewDecision(t *testing.T) {
	if _, err := ParseReviewDecision("approve"); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseReviewDecision("maybe"); err == nil {
		t.Fatalf("expected error")
	}
}
