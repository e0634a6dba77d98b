package domain

// Legal edges for the collection machine (contributions) and the approval
// machine (spend requests, manual entries). Status writes outside these
// edges are rejected.
var contributionEdges = map[RecordStatus][]RecordStatus{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:  {StatusRefunded},
}

var approvalEdges = map[RecordStatus][]RecordStatus{
	StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved: {StatusPaid, StatusCancelled},
}

var verificationEdges = map[VerificationStatus][]VerificationStatus{
	VerificationPending: {VerificationVerified, VerificationRejected},
}

func edgesFor(kind RecordKind) map[RecordStatus][]RecordStatus {
	switch kind {
	case KindContribution, KindRefund:
		return contributionEdges
	case KindSpendRequest, KindManualEntry:
		return approvalEdges
	default:
		return nil
	}
}

// CanTransition reports whether the record kind permits the from→to edge.
func CanTransition(kind RecordKind, from, to RecordStatus) bool {
	for _, next := range edgesFor(kind)[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanVerifyTransition reports whether the verification edge is legal.
func CanVerifyTransition(from, to VerificationStatus) bool {
	for _, next := range verificationEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status settles the record for
// reconciliation. Completed counts as terminal even though the refund
// compensation edge still leaves it.
func IsTerminal(kind RecordKind, status RecordStatus) bool {
	switch status {
	case StatusFailed, StatusCancelled, StatusRejected, StatusRefunded, StatusPaid:
		return true
	case StatusCompleted:
		return true
	default:
		return false
	}
}

// InitialStatus returns the creation state for the kind.
func InitialStatus(kind RecordKind) RecordStatus {
	return StatusPending
}
