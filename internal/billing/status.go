package billing

// ValidateStatusTransition checks lifecycle moves. Paid is terminal.
func ValidateStatusTransition(current, target BillStatus) error {
	if current == target {
		return nil
	}
	switch current {
	case StatusDraft:
		if target == StatusPendingReview {
			return nil
		}
	case StatusPendingReview:
		if target == StatusApproved || target == StatusDraft {
			return nil
		}
	case StatusApproved:
		if target == StatusPaid {
			return nil
		}
	}
	return ErrInvalidStatusTransition
}

// CanOverwrite reports whether an active bill may be replaced by a rerun.
func CanOverwrite(b Bill) error {
	switch b.Status {
	case StatusApproved, StatusPaid:
		return ErrBillLocked
	}
	return nil
}
