package domain

import "testing"

func TestContributionEdges(t *testing.T) {
	allowed := []struct {
		from, to RecordStatus
	}{
		{StatusPending, StatusProcessing},
		{StatusPending, StatusCompleted},
		{StatusPending, StatusFailed},
		{StatusPending, StatusCancelled},
		{StatusProcessing, StatusCompleted},
		{StatusProcessing, StatusFailed},
		{StatusProcessing, StatusCancelled},
		{StatusCompleted, StatusRefunded},
	}
	for _, edge := range allowed {
		if !CanTransition(KindContribution, edge.from, edge.to) {
			t.Errorf("expected %s -> %s to be allowed", edge.from, edge.to)
		}
	}

	denied := []struct {
		from, to RecordStatus
	}{
		{StatusCompleted, StatusFailed},
		{StatusCompleted, StatusPending},
		{StatusFailed, StatusCompleted},
		{StatusFailed, StatusRefunded},
		{StatusCancelled, StatusCompleted},
		{StatusRefunded, StatusCompleted},
		{StatusPending, StatusRefunded},
	}
	for _, edge := range denied {
		if CanTransition(KindContribution, edge.from, edge.to) {
			t.Errorf("expected %s -> %s to be denied", edge.from, edge.to)
		}
	}
}

func TestApprovalEdges(t *testing.T) {
	for _, kind := range []RecordKind{KindSpendRequest, KindManualEntry} {
		if !CanTransition(kind, StatusPending, StatusApproved) {
			t.Errorf("%s: expected pending -> approved", kind)
		}
		if !CanTransition(kind, StatusPending, StatusRejected) {
			t.Errorf("%s: expected pending -> rejected", kind)
		}
		if !CanTransition(kind, StatusApproved, StatusPaid) {
			t.Errorf("%s: expected approved -> paid", kind)
		}
		if CanTransition(kind, StatusRejected, StatusApproved) {
			t.Errorf("%s: rejected must be terminal", kind)
		}
		if CanTransition(kind, StatusPaid, StatusApproved) {
			t.Errorf("%s: paid must be terminal", kind)
		}
		if CanTransition(kind, StatusPending, StatusCompleted) {
			t.Errorf("%s: completed is not part of the approval machine", kind)
		}
	}
}

func TestVerificationEdges(t *testing.T) {
	if !CanVerifyTransition(VerificationPending, VerificationVerified) {
		t.Error("expected pending -> verified")
	}
	if !CanVerifyTransition(VerificationPending, VerificationRejected) {
		t.Error("expected pending -> rejected")
	}
	if CanVerifyTransition(VerificationVerified, VerificationRejected) {
		t.Error("verified must be terminal")
	}
	if CanVerifyTransition(VerificationRejected, VerificationVerified) {
		t.Error("rejected must be terminal")
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := map[RecordKind][]RecordStatus{
		KindContribution: {StatusFailed, StatusCancelled, StatusRefunded},
		KindSpendRequest: {StatusRejected, StatusPaid, StatusCancelled},
	}
	for kind, statuses := range terminal {
		for _, status := range statuses {
			if !IsTerminal(kind, status) {
				t.Errorf("%s %s should be terminal", kind, status)
			}
		}
	}

	// Completed settles reconciliation even though the refund edge remains.
	if !IsTerminal(KindContribution, StatusCompleted) {
		t.Error("completed should settle the record")
	}
	if IsTerminal(KindContribution, StatusPending) {
		t.Error("pending is not terminal")
	}
	if IsTerminal(KindContribution, StatusProcessing) {
		t.Error("processing is not terminal")
	}
}

func TestInitialStatus(t *testing.T) {
	for _, kind := range []RecordKind{KindContribution, KindSpendRequest, KindManualEntry} {
		if got := InitialStatus(kind); got != StatusPending {
			t.Errorf("%s: expected pending initial status, got %s", kind, got)
		}
	}
}
