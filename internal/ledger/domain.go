// Package ledger owns a single item's quantity, average cost and status,
// and applies costed stock events against it.
package ledger

import (
	"fmt"
	"time"
)

// Status is the display/alert state of an item.
type Status string

const (
	// StatusNormal means stock is at or above the configured minimum.
	StatusNormal Status = "NORMAL"
	// StatusRisk means stock is positive but below the minimum.
	StatusRisk Status = "RISK"
	// StatusOut means stock is depleted.
	StatusOut Status = "OUT"
	// StatusReserved is a manual-only hold state; the evaluator never exits it.
	StatusReserved Status = "RESERVED"
	// StatusDeleted marks a soft-deleted item. Irreversible within the engine.
	StatusDeleted Status = "DELETED"
)

// Valid reports whether s is one of the five known states.
func (s Status) Valid() bool {
	switch s {
	case StatusNormal, StatusRisk, StatusOut, StatusReserved, StatusDeleted:
		return true
	}
	return false
}

// Item is the aggregate the ledger mutates. AssetValue is derived from
// QtyOnHand and AvgCost and is never authoritative on its own. Version is
// the optimistic-concurrency token checked by the store on every put.
type Item struct {
	ID              string
	Name            string
	SKU             string
	Unit            string
	QtyOnHand       float64
	QtyMin          float64
	AvgCost         float64
	AssetValue      float64
	Status          Status
	LastDeliveryTo  string
	LastDeliveredAt time.Time
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Deleted reports whether the item has been soft-deleted.
func (i Item) Deleted() bool { return i.Status == StatusDeleted }

// Shortfall is the positive gap to the minimum quantity, zero otherwise.
func (i Item) Shortfall() float64 {
	if gap := i.QtyMin - i.QtyOnHand; gap > 0 {
		return gap
	}
	return 0
}

// EventKind enumerates costed stock events.
type EventKind string

const (
	// KindReceipt is an inbound purchase lot with a unit cost.
	KindReceipt EventKind = "RECEIPT"
	// KindIssue is an outbound movement at the current cost basis.
	KindIssue EventKind = "ISSUE"
	// KindAdjust overwrites the on-hand quantity (stocktake correction).
	KindAdjust EventKind = "ADJUST"
	// KindStocktake is an adjust that always carries a mandatory reason.
	KindStocktake EventKind = "STOCKTAKE"
)

// CostedEvent is one input to Apply. For RECEIPT and ISSUE, Qty is the moved
// quantity and must be positive. For ADJUST and STOCKTAKE, Qty is the new
// absolute on-hand quantity and must be non-negative. UnitCost is consulted
// for RECEIPT only.
type CostedEvent struct {
	Kind     EventKind
	Qty      float64
	UnitCost float64
	Reason   string
}

// Applied is the outcome of a successful Apply: the snapshot before and
// after, so the caller can hand both to the audit collaborator.
type Applied struct {
	Before Item
	After  Item
}

// InvalidEventError reports a malformed costed event.
type InvalidEventError struct {
	Kind   EventKind
	Detail string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("ledger: invalid %s event: %s", e.Kind, e.Detail)
}
