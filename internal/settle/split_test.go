package settle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitReferenceScenario(t *testing.T) {
	b := Split(1000000, 400000, 0.30, 0.60)
	require.InDelta(t, 600000, b.Profit, 1e-9)
	require.InDelta(t, 180000, b.DeductionAmount, 1e-9)
	require.InDelta(t, 252000, b.FriendShare, 1e-9)
	require.InDelta(t, 168000, b.MyProfit, 1e-9)
}

func TestSplitConservation(t *testing.T) {
	cases := []struct{ revenue, cost, rate float64 }{
		{1000000, 400000, 0.30},
		{999999, 333333, 0.30},
		{1, 0, 0.30},
		{12345, 6789, 0.17},
		{500, 125, 0.33},
	}
	for _, c := range cases {
		b := Split(c.revenue, c.cost, c.rate, DefaultFriendRate)
		// No rounding leakage: the remainder absorbs it all.
		require.InDelta(t, b.Profit, b.DeductionAmount+b.FriendShare+b.MyProfit, 1e-9,
			"revenue=%v cost=%v rate=%v", c.revenue, c.cost, c.rate)
	}
}

func TestSplitNegativeProfitNotClamped(t *testing.T) {
	b := Split(100000, 250000, 0.30, 0.60)
	require.InDelta(t, -150000, b.Profit, 1e-9)
	require.InDelta(t, b.Profit, b.DeductionAmount+b.FriendShare+b.MyProfit, 1e-9)
	require.Less(t, b.MyProfit, 0.0)
}

func TestSplitWithDefaults(t *testing.T) {
	b := SplitWithDefaults(1000000, 400000)
	require.InDelta(t, 168000, b.MyProfit, 1e-9)
}

func TestSummarize(t *testing.T) {
	records := []Record{
		{Revenue: 1000, MyProfit: 100, DeductionAmount: 50, PaymentReceived: true},
		{Revenue: 2000, MyProfit: 300, DeductionAmount: 80},
		{Revenue: 500, MyProfit: 20, DeductionAmount: 10},
	}
	s := Summarize(records)
	require.InDelta(t, 3500, s.TotalRevenue, 1e-9)
	require.InDelta(t, 420, s.TotalMyProfit, 1e-9)
	require.InDelta(t, 140, s.TotalDeduction, 1e-9)
	require.Equal(t, 2, s.UnpaidCount)
}
