package procurement

var poTransitions = map[POStatus][]POStatus{
	POStatusPending:   {POStatusPending, POStatusApproved, POStatusRejected, POStatusCancelled},
	POStatusApproved:  {POStatusApproved, POStatusCompleted, POStatusCancelled},
	POStatusRejected:  {POStatusRejected},
	POStatusCompleted: {POStatusCompleted, POStatusClosed},
	POStatusCancelled: {POStatusCancelled},
	POStatusOpen:      {POStatusOpen, POStatusApproved, POStatusRejected, POStatusCancelled},
	POStatusClosed:    {POStatusClosed},
}

var grnTransitions = map[GRNStatus][]GRNStatus{
	GRNStatusDraft:     {GRNStatusDraft, GRNStatusApproved, GRNStatusCancelled},
	GRNStatusApproved:  {GRNStatusApproved, GRNStatusCancelled},
	GRNStatusCancelled: {GRNStatusCancelled},
	GRNStatusClosed:    {GRNStatusClosed},
}

// CanTransition reports whether a purchase order may move from s to next.
func (s POStatus) CanTransition(next POStatus) bool {
	for _, allowed := range poTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Receivable reports whether goods may still be received against the order.
func (s POStatus) Receivable() bool {
	return s == POStatusPending || s == POStatusApproved || s == POStatusOpen
}

// AcceptsReceipts reports whether a new GRN may reference an order in this status.
func (s POStatus) AcceptsReceipts() bool {
	return s != POStatusRejected && s != POStatusCancelled && s != POStatusClosed
}

// CanTransition reports whether a goods receipt may move from s to next.
func (s GRNStatus) CanTransition(next GRNStatus) bool {
	for _, allowed := range grnTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// LinesEditable reports whether line items may still change.
func (s GRNStatus) LinesEditable() bool {
	return s == GRNStatusDraft
}
