package ledger

// EvaluateStatus derives the next status from quantities and the current
// status. It is the single status rule for every quantity-affecting path;
// only explicit manual overrides may bypass it.
//
// RESERVED is a fixed point: the evaluator never exits a manual hold.
// DELETED is outside its domain; callers must check Deleted() before
// evaluating and must never expect a deleted item to transition back.
func EvaluateStatus(qtyOnHand, qtyMin float64, current Status) Status {
	if current == StatusReserved {
		return StatusReserved
	}
	if qtyOnHand <= 0 {
		return StatusOut
	}
	if qtyOnHand < qtyMin {
		return StatusRisk
	}
	return StatusNormal
}
