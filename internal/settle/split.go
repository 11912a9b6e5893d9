// Package settle computes the profit split for partner settlements and keeps
// the settlement records backing the settlements screen.
package settle

import (
	"github.com/shopspring/decimal"
)

// Reference rates carried from the partner agreement: a deduction (tax
// reserve or rebate) comes off the top, then the remainder splits 60/40.
const (
	DefaultDeductionRate = 0.3
	DefaultFriendRate    = 0.6
)

// Breakdown is the derived money split for one settlement.
// deductionAmount + friendShare + myProfit always equals profit exactly:
// myProfit is the unrounded remainder and absorbs all rounding error.
type Breakdown struct {
	Profit          float64
	DeductionAmount float64
	FriendShare     float64
	MyProfit        float64
}

// Split computes the breakdown. Profit may be negative; nothing is clamped.
func Split(revenue, cost, deductionRate, friendRate float64) Breakdown {
	profit := decimal.NewFromFloat(revenue).Sub(decimal.NewFromFloat(cost))
	deduction := profit.Mul(decimal.NewFromFloat(deductionRate)).Round(0)
	net := profit.Sub(deduction)
	friend := net.Mul(decimal.NewFromFloat(friendRate)).Round(0)
	my := net.Sub(friend)

	b := Breakdown{}
	b.Profit, _ = profit.Float64()
	b.DeductionAmount, _ = deduction.Float64()
	b.FriendShare, _ = friend.Float64()
	b.MyProfit, _ = my.Float64()
	return b
}

// SplitWithDefaults applies the reference rates.
func SplitWithDefaults(revenue, cost float64) Breakdown {
	return Split(revenue, cost, DefaultDeductionRate, DefaultFriendRate)
}
