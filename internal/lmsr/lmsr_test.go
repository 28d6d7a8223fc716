package lmsr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCostZeroState(t *testing.T) {
	// A fresh market has every quantity at zero; the cost must be the
	// finite uniform cost b*ln(n), not an error or infinity.
	for _, n := range []int{2, 3, 5, 10} {
		qs := make([]float64, n)
		c, err := Cost(qs, 100)
		require.NoError(t, err, "n=%d", n)
		assert.InDelta(t, 100*math.Log(float64(n)), c, 1e-9, "n=%d", n)
	}
}

func TestCostLargeQuantities(t *testing.T) {
	// Without the max-shift these would overflow float64.
	c, err := Cost([]float64{1e6, 2e6, 5e5}, 10)
	require.NoError(t, err)
	assert.False(t, math.IsInf(c, 0))
	assert.Greater(t, c, 2e6/10*10-1)
}

func TestCostInvalidLiquidity(t *testing.T) {
	_, err := Cost([]float64{1, 2}, 0)
	assert.ErrorIs(t, err, ErrInvalidLiquidity)
	_, err = Cost([]float64{1, 2}, -5)
	assert.ErrorIs(t, err, ErrInvalidLiquidity)
}

func TestPricesSumToOne(t *testing.T) {
	cases := [][]float64{
		{0, 0},
		{0, 0, 0, 0},
		{10, 20, 30},
		{1000, -1000},
		{1e5, 1e5 + 1, 1e5 - 1},
	}
	for _, qs := range cases {
		ps := Prices(qs, 100)
		require.Len(t, ps, len(qs))
		var sum float64
		for _, p := range ps {
			assert.GreaterOrEqual(t, p, 0.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "qs=%v", qs)
	}
}

func TestPricesUniformFallback(t *testing.T) {
	ps := Prices([]float64{5, 5, 5}, -1)
	for _, p := range ps {
		assert.InDelta(t, 1.0/3.0, p, 1e-12)
	}
}

func TestBuyCostStrictlyIncreasing(t *testing.T) {
	qs := []float64{10, 20}
	prev := 0.0
	for _, dq := range []float64{1e-6, 1e-3, 0.1, 1, 10, 100} {
		c, err := BuyCost(qs, 100, 0, dq)
		require.NoError(t, err)
		assert.Greater(t, c, prev, "dq=%g", dq)
		prev = c
	}
	// buy_cost(dq -> 0+) -> 0
	c, err := BuyCost(qs, 100, 0, 1e-12)
	require.NoError(t, err)
	assert.InDelta(t, 0, c, 1e-9)
}

func TestBuyCostInvalidInputs(t *testing.T) {
	qs := []float64{0, 0}
	_, err := BuyCost(qs, 100, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidTrade)
	_, err = BuyCost(qs, 100, 0, -1)
	assert.ErrorIs(t, err, ErrInvalidTrade)
	_, err = BuyCost(qs, 100, 2, 1)
	assert.ErrorIs(t, err, ErrInvalidTrade)
	_, err = BuyCost(qs, 0, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidLiquidity)
}

func TestRoundTripSlippage(t *testing.T) {
	// Buying dq then selling the same dq refunds no more than the cost
	// paid, approaching equality as dq shrinks.
	qs := []float64{30, 40, 50}
	for _, dq := range []float64{100, 10, 1, 0.01} {
		cost, err := BuyCost(qs, 100, 1, dq)
		require.NoError(t, err)

		after := []float64{30, 40 + dq, 50}
		refund := SellRefund(after, 100, 1, dq)
		assert.LessOrEqual(t, refund, cost+1e-9, "dq=%g", dq)
		assert.GreaterOrEqual(t, refund, 0.0)
	}

	cost, err := BuyCost(qs, 100, 1, 1e-6)
	require.NoError(t, err)
	refund := SellRefund([]float64{30, 40 + 1e-6, 50}, 100, 1, 1e-6)
	assert.InDelta(t, cost, refund, 1e-9)
}

func TestBuyMovesPricesMonotonically(t *testing.T) {
	qs := []float64{10, 20, 30}
	before := Prices(qs, 100)
	after := Prices([]float64{10, 20 + 50, 30}, 100)

	assert.Greater(t, after[1], before[1])
	assert.Less(t, after[0], before[0])
	assert.Less(t, after[2], before[2])

	var sum float64
	for _, p := range after {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestLargerLiquidityMeansSmallerCost(t *testing.T) {
	qs := []float64{5, 5}
	small, err := BuyCost(qs, 50, 0, 10)
	require.NoError(t, err)
	large, err := BuyCost(qs, 500, 0, 10)
	require.NoError(t, err)
	assert.Greater(t, small, large)
}

func TestSellRefundPreconditions(t *testing.T) {
	qs := []float64{5, 10}
	assert.Zero(t, SellRefund(qs, 100, 0, 6))  // more than outstanding
	assert.Zero(t, SellRefund(qs, 100, 0, 0))  // zero delta
	assert.Zero(t, SellRefund(qs, 100, 0, -1)) // negative delta
	assert.Zero(t, SellRefund(qs, 100, 5, 1))  // index out of range
	assert.Greater(t, SellRefund(qs, 100, 1, 10), 0.0)
}

func TestMaxLoss(t *testing.T) {
	assert.InDelta(t, 100*math.Log(2), MaxLoss(100, 2), 1e-12)
	assert.Zero(t, MaxLoss(100, 1))
	assert.Zero(t, MaxLoss(0, 3))
}
