package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluateStatus(t *testing.T) {
	require.Equal(t, StatusOut, EvaluateStatus(0, 5, StatusNormal))
	require.Equal(t, StatusOut, EvaluateStatus(-1, 0, StatusRisk))
	require.Equal(t, StatusRisk, EvaluateStatus(3, 5, StatusNormal))
	require.Equal(t, StatusNormal, EvaluateStatus(5, 5, StatusRisk))
	require.Equal(t, StatusNormal, EvaluateStatus(10, 0, StatusOut))
}

func TestEvaluateStatusReservedIsFixedPoint(t *testing.T) {
	for _, qty := range []float64{-1, 0, 3, 100} {
		require.Equal(t, StatusReserved, EvaluateStatus(qty, 5, StatusReserved))
	}
}

func TestEvaluateStatusTotalNeverDeleted(t *testing.T) {
	statuses := []Status{StatusNormal, StatusRisk, StatusOut, StatusReserved}
	for _, cur := range statuses {
		for _, qty := range []float64{-2, 0, 1, 4, 5, 9} {
			for _, min := range []float64{0, 5} {
				next := EvaluateStatus(qty, min, cur)
				require.True(t, next.Valid())
				require.NotEqual(t, StatusDeleted, next)
			}
		}
	}
}
