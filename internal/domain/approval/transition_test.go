package approval

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusPending, true},
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusEscalated, true},
		{StatusEscalated, StatusPending, true},
		{StatusEscalated, StatusRejected, true},
		{StatusEscalated, StatusCancelled, true},
		{StatusEscalated, StatusApproved, false},
		{StatusApproved, StatusPending, false},
		{StatusRejected, StatusApproved, false},
		{StatusCancelled, StatusCancelled, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	for _, s := range []Status{StatusApproved, StatusRejected, StatusCancelled} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusEscalated} {
		if s.IsTerminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestApproval_Complete(t *testing.T) {
	cur := "u-1"
	a := &Approval{Status: StatusPending, CurrentApproverID: &cur}
	a.Complete(StatusApproved, "u-1", mustTime("2025-09-06T10:00:00Z"))

	if a.Status != StatusApproved || a.CompletedAt == nil || a.CompletedBy == nil || *a.CompletedBy != "u-1" {
		t.Fatalf("completion fields not set: %+v", a)
	}
	if a.CurrentApproverID != nil {
		t.Fatalf("current approver should be cleared")
	}
}

func TestApproval_Data(t *testing.T) {
	a := &Approval{RequestData: []byte(`{"amount": 12.5}`)}
	if got := a.Data()["amount"]; got != 12.5 {
		t.Fatalf("amount = %v", got)
	}
	if len((&Approval{}).Data()) != 0 {
		t.Fatalf("empty payload should decode to empty map")
	}
	if len((&Approval{RequestData: []byte(`[1,2]`)}).Data()) != 0 {
		t.Fatalf("non-object payload should decode to empty map")
	}
}
