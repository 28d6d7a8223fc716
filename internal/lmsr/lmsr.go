// Package lmsr implements the Logarithmic Market Scoring Rule (LMSR),
// the cost-function market maker introduced by Robin Hanson.
//
// All functions are pure: they take a quantity vector (outstanding
// shares per outcome) and the liquidity parameter b, and compute costs
// and implied probabilities. The market maker's maximum loss is bounded
// by b * ln(n) for n outcomes.
package lmsr

import (
	"errors"
	"math"
)

var (
	// ErrUnstable reports a non-finite intermediate in the cost
	// computation. It signals misconfigured market parameters, not a
	// bad trade request.
	ErrUnstable = errors.New("lmsr: cost is not finite")

	// ErrInvalidLiquidity reports b <= 0.
	ErrInvalidLiquidity = errors.New("lmsr: liquidity must be > 0")

	// ErrInvalidTrade reports a delta or index outside the function's
	// domain, or a buy cost that came out negative.
	ErrInvalidTrade = errors.New("lmsr: invalid trade delta")
)

// Cost evaluates C(q) = b * ln(sum_i exp(q_i / b)).
//
// The sum is evaluated with the max(q)/b shift so large quantities do
// not overflow. The shift applies uniformly, including the all-zero
// vector of a fresh market, which yields the finite uniform cost
// b * ln(n) rather than a special case.
func Cost(qs []float64, b float64) (float64, error) {
	if b <= 0 {
		return 0, ErrInvalidLiquidity
	}
	if len(qs) == 0 {
		return 0, nil
	}
	m := maxOf(qs) / b
	var sum float64
	for _, q := range qs {
		sum += math.Exp(q/b - m)
	}
	if sum <= 0 {
		return 0, ErrUnstable
	}
	c := b * (m + math.Log(sum))
	if math.IsInf(c, 0) || math.IsNaN(c) {
		return 0, ErrUnstable
	}
	return c, nil
}

// Prices returns the implied probability of each outcome, the softmax
// of qs/b. The result sums to 1 within floating-point tolerance.
//
// Prices never fails: on b <= 0, or if the exponential sum degenerates
// (which the shift should prevent), it falls back to the uniform
// distribution instead of dividing by zero.
func Prices(qs []float64, b float64) []float64 {
	n := len(qs)
	if n == 0 {
		return nil
	}
	if b <= 0 {
		return uniform(n)
	}
	m := maxOf(qs) / b
	exps := make([]float64, n)
	var sum float64
	for i, q := range qs {
		exps[i] = math.Exp(q/b - m)
		sum += exps[i]
	}
	if sum <= 0 || math.IsInf(sum, 0) || math.IsNaN(sum) {
		return uniform(n)
	}
	for i := range exps {
		exps[i] /= sum
	}
	return exps
}

// BuyCost returns the cost of buying dq shares of outcome idx:
// C(q + dq*e_idx) - C(q). The cost function is monotone increasing in
// each quantity, so the result is non-negative for dq > 0; a negative
// or non-finite result is reported as an error, never clamped.
func BuyCost(qs []float64, b float64, idx int, dq float64) (float64, error) {
	if dq <= 0 || idx < 0 || idx >= len(qs) {
		return 0, ErrInvalidTrade
	}
	before, err := Cost(qs, b)
	if err != nil {
		return 0, err
	}
	next := make([]float64, len(qs))
	copy(next, qs)
	next[idx] += dq
	after, err := Cost(next, b)
	if err != nil {
		return 0, err
	}
	cost := after - before
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return 0, ErrUnstable
	}
	if cost < 0 {
		return 0, ErrInvalidTrade
	}
	return cost, nil
}

// SellRefund returns the refund for selling dq shares of outcome idx:
// C(q) - C(q - dq*e_idx), clamped at zero. The caller is responsible
// for checking 0 < dq <= qs[idx] against ledger state; out-of-range
// deltas refund nothing.
func SellRefund(qs []float64, b float64, idx int, dq float64) float64 {
	if dq <= 0 || idx < 0 || idx >= len(qs) || qs[idx] < dq {
		return 0
	}
	before, err := Cost(qs, b)
	if err != nil {
		return 0
	}
	next := make([]float64, len(qs))
	copy(next, qs)
	next[idx] -= dq
	after, err := Cost(next, b)
	if err != nil {
		return 0
	}
	return math.Max(0, before-after)
}

// MaxLoss returns the market maker's worst-case subsidy, b * ln(n).
func MaxLoss(b float64, outcomes int) float64 {
	if outcomes < 2 || b <= 0 {
		return 0
	}
	return b * math.Log(float64(outcomes))
}

func maxOf(qs []float64) float64 {
	m := qs[0]
	for _, q := range qs[1:] {
		if q > m {
			m = q
		}
	}
	return m
}

func uniform(n int) []float64 {
	ps := make([]float64, n)
	for i := range ps {
		ps[i] = 1 / float64(n)
	}
	return ps
}
