// Package costing holds the pure arithmetic used by the stock ledger:
// moving-average cost blending, stock-sufficiency guards and item code
// resolution for purchase imports. Nothing here touches storage.
package costing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RoundCurrency rounds a value half-away-from-zero to the nearest whole
// currency unit. This is the only rounding boundary in the engine; callers
// must never re-round an already averaged cost.
func RoundCurrency(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(0).Float64()
	return f
}

// MovingAverageReceive blends an arriving lot into the running average cost.
// A non-positive inbound quantity is a no-op apart from normalising the
// previous average through RoundCurrency. When the prior quantity is zero or
// below, the arriving lot fully defines the new cost basis.
func MovingAverageReceive(prevQty, prevAvgCost, inQty, inUnitCost float64) (newQty, newAvgCost float64) {
	if inQty <= 0 {
		return prevQty, RoundCurrency(prevAvgCost)
	}
	if prevQty <= 0 {
		return prevQty + inQty, RoundCurrency(inUnitCost)
	}
	total := decimal.NewFromFloat(prevQty).Mul(decimal.NewFromFloat(prevAvgCost)).
		Add(decimal.NewFromFloat(inQty).Mul(decimal.NewFromFloat(inUnitCost)))
	qty := decimal.NewFromFloat(prevQty).Add(decimal.NewFromFloat(inQty))
	avg, _ := total.Div(qty).Round(0).Float64()
	q, _ := qty.Float64()
	return q, avg
}

// InsufficientStockError reports an issue that would drive stock negative.
type InsufficientStockError struct {
	Current   float64
	Requested float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("costing: insufficient stock: have %g, need %g", e.Current, e.Requested)
}

// CheckSufficientStock validates that outQty can be issued from currentQty.
// Non-positive outQty always passes. Shortage is rejected, never capped.
func CheckSufficientStock(currentQty, outQty float64) error {
	if outQty <= 0 {
		return nil
	}
	if currentQty < outQty {
		return &InsufficientStockError{Current: currentQty, Requested: outQty}
	}
	return nil
}

// ErrEmptyCode indicates an import code that is blank after trimming.
var ErrEmptyCode = errors.New("costing: item code is empty")

// MatchAction classifies how an imported item code should be handled.
type MatchAction string

const (
	// MatchUpdateExisting means the code belongs to a known item.
	MatchUpdateExisting MatchAction = "UPDATE_EXISTING"
	// MatchRequestCreate means the caller must obtain approval to create a new item.
	MatchRequestCreate MatchAction = "REQUEST_CREATE"
)

// Match is the outcome of ResolveItemMatch.
type Match struct {
	Action MatchAction
	Code   string
}

// ResolveItemMatch classifies an imported item code against the known set.
// It never creates anything; REQUEST_CREATE only signals that the caller
// needs explicit approval before registering a new item.
func ResolveItemMatch(existingCodes map[string]struct{}, importCode string) (Match, error) {
	code := strings.TrimSpace(importCode)
	if code == "" {
		return Match{}, ErrEmptyCode
	}
	if _, ok := existingCodes[code]; ok {
		return Match{Action: MatchUpdateExisting, Code: code}, nil
	}
	return Match{Action: MatchRequestCreate, Code: code}, nil
}
