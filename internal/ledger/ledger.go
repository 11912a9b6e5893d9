package ledger

import (
	"github.com/golab/erplite/internal/costing"
)

// Apply runs one costed event against an item and returns the before/after
// snapshots. It is pure: the input item is not mutated, and a failed event
// applies nothing. Persistence and audit are the caller's concern.
func Apply(item Item, event CostedEvent) (Applied, error) {
	if item.Deleted() {
		return Applied{}, &InvalidEventError{Kind: event.Kind, Detail: "item is deleted"}
	}
	before := item

	switch event.Kind {
	case KindReceipt:
		if event.Qty <= 0 {
			return Applied{}, &InvalidEventError{Kind: event.Kind, Detail: "quantity must be positive"}
		}
		if event.UnitCost < 0 {
			return Applied{}, &InvalidEventError{Kind: event.Kind, Detail: "unit cost must be >= 0"}
		}
		newQty, newAvg := costing.MovingAverageReceive(item.QtyOnHand, item.AvgCost, event.Qty, event.UnitCost)
		item.QtyOnHand = newQty
		item.AvgCost = newAvg

	case KindIssue:
		if event.Qty <= 0 {
			return Applied{}, &InvalidEventError{Kind: event.Kind, Detail: "quantity must be positive"}
		}
		if err := costing.CheckSufficientStock(item.QtyOnHand, event.Qty); err != nil {
			return Applied{}, err
		}
		// Issues never alter the cost basis.
		item.QtyOnHand -= event.Qty

	case KindAdjust, KindStocktake:
		if event.Qty < 0 {
			return Applied{}, &InvalidEventError{Kind: event.Kind, Detail: "target quantity must be >= 0"}
		}
		// Overwrites the quantity at the existing cost basis.
		item.QtyOnHand = event.Qty

	default:
		return Applied{}, &InvalidEventError{Kind: event.Kind, Detail: "unknown event kind"}
	}

	item.AssetValue = costing.RoundCurrency(item.QtyOnHand * item.AvgCost)
	item.Status = EvaluateStatus(item.QtyOnHand, item.QtyMin, item.Status)
	return Applied{Before: before, After: item}, nil
}

// OverrideStatus applies a manual status change, bypassing the evaluator.
// Any state may enter RESERVED or DELETED; DELETED is never left.
func OverrideStatus(item Item, next Status) (Applied, error) {
	if !next.Valid() {
		return Applied{}, &InvalidEventError{Kind: "STATUS", Detail: "unknown status " + string(next)}
	}
	if item.Status == StatusDeleted {
		return Applied{}, &InvalidEventError{Kind: "STATUS", Detail: "item is deleted"}
	}
	before := item
	item.Status = next
	return Applied{Before: before, After: item}, nil
}
