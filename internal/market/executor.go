package market

import (
	"errors"
	"fmt"
	"math"

	"predictions/internal/lmsr"
)

// seedSizes are the initial probe sizes used to find any share count
// with a finite, positive cost before the bracket expansion starts.
var seedSizes = []float64{1e-12, 1e-9, 1e-6, 1e-4, 1e-2, 1e-1, 1}

// sharesForSpend inverts the buy-cost function: it finds the largest dq
// such that buying dq shares of outcome idx costs at most spend.
//
// buyCost is strictly increasing in dq, so a geometric expansion
// followed by bisection brackets the answer. The expansion is capped so
// a market whose cost function is nearly flat (pathological b) fails
// cleanly instead of looping; the bisection runs a fixed iteration
// count and always keeps the best under-budget point, so the returned
// cost never exceeds spend from the search itself.
func sharesForSpend(qs []float64, b float64, idx int, spend float64) (dq, cost float64, err error) {
	probe := func(v float64) float64 {
		c, cerr := lmsr.BuyCost(qs, b, idx, v)
		if cerr != nil {
			return math.Inf(1)
		}
		return c
	}

	low, high := 0.0, math.NaN()
	var bestDQ, bestCost float64
	for _, seed := range seedSizes {
		c := probe(seed)
		if !math.IsInf(c, 0) && c > 0 {
			if c > spend {
				high = seed
				break
			}
			low, bestDQ, bestCost = seed, seed, c
			high = seed * 2
			break
		}
	}
	if math.IsNaN(high) {
		return 0, 0, ErrMarketIlliquid
	}

	for probe(high) <= spend {
		if high > searchCap {
			break
		}
		low, bestDQ, bestCost = high, high, probe(high)
		high *= 2
	}
	if math.IsInf(probe(high), 0) {
		high /= 2
		if high <= low || high < 1e-18 {
			return 0, 0, ErrMarketIlliquid
		}
	}

	for i := 0; i < searchIterations; i++ {
		mid := (low + high) / 2
		c := probe(mid)
		if math.IsInf(c, 0) || c > spend {
			high = mid
			continue
		}
		low, bestDQ, bestCost = mid, mid, c
	}
	return bestDQ, bestCost, nil
}

// executeBuy prices and applies a buy inside one unit of work. The
// caller has already verified the market is open and the balance covers
// the requested spend.
func (s *Service) executeBuy(tx Tx, cyc *Cycle, acct *Account, m *Market, outcomes []*Outcome, idx int, spend float64) (*BuyResult, error) {
	qs := quantities(outcomes)
	if _, err := lmsr.Cost(qs, m.B); err != nil {
		if errors.Is(err, lmsr.ErrInvalidLiquidity) {
			return nil, fmt.Errorf("market %s: %w", m.Name, ErrInvalidLiquidity)
		}
		return nil, fmt.Errorf("market %s state invalid: %w", m.Name, ErrTradeCalculation)
	}

	dq, cost, err := sharesForSpend(qs, m.B, idx, spend)
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", m.Name, err)
	}
	if dq < minTradeShares {
		return nil, fmt.Errorf("spend %.2f buys less than the minimum trade: %w", spend, ErrTradeTooSmall)
	}
	if cost < 0 || math.IsInf(cost, 0) || math.IsNaN(cost) || cost > spend*(1+costSlack) {
		s.log.Error("buy validation failed", "market", m.Name, "dq", dq, "cost", cost, "spend", spend)
		return nil, fmt.Errorf("market %s: %w", m.Name, ErrTradeCalculation)
	}
	if cost > acct.Balance+balanceSlack {
		return nil, fmt.Errorf("%w: %.2f < %.2f", ErrInsufficientBalance, acct.Balance, cost)
	}

	target := outcomes[idx]
	acct.Balance -= cost
	acct.BetCount++
	target.Q += dq

	if err := tx.UpdateAccount(acct); err != nil {
		return nil, err
	}
	if err := tx.UpdateOutcome(target); err != nil {
		return nil, err
	}
	if err := s.adjustPosition(tx, acct.UserID, m.ID, target.ID, dq); err != nil {
		return nil, err
	}
	if err := s.appendTrade(tx, cyc, acct.UserID, m.ID, target.ID, SideBuy, dq, cost); err != nil {
		return nil, err
	}

	prices := lmsr.Prices(quantities(outcomes), m.B)
	return &BuyResult{
		Market:   m.Name,
		Outcome:  target.Symbol,
		Shares:   dq,
		Cost:     cost,
		NewPrice: prices[idx],
		Balance:  acct.Balance,
		BetCount: acct.BetCount,
	}, nil
}

// executeSell applies a sell. The refund is closed-form; convexity of
// the cost function guarantees it never exceeds the matching buy cost.
func (s *Service) executeSell(tx Tx, cyc *Cycle, acct *Account, m *Market, outcomes []*Outcome, idx int, shares float64) (*SellResult, error) {
	target := outcomes[idx]

	pos, err := tx.Position(acct.UserID, m.ID, target.ID)
	if err != nil {
		return nil, err
	}
	held := 0.0
	if pos != nil {
		held = pos.Shares
	}
	if held < shares {
		return nil, fmt.Errorf("%w (you have %.2f)", ErrInsufficientShares, held)
	}
	// Outstanding quantity always covers any single holder's shares
	// when position accounting is intact.
	if target.Q < shares {
		return nil, fmt.Errorf("market %s: %w", m.Name, ErrInsufficientLiquidity)
	}

	qs := quantities(outcomes)
	refund := lmsr.SellRefund(qs, m.B, idx, shares)
	if refund < 0 || math.IsInf(refund, 0) || math.IsNaN(refund) {
		return nil, fmt.Errorf("market %s: %w", m.Name, ErrTradeCalculation)
	}

	pos.Shares -= shares
	target.Q -= shares
	acct.Balance += refund
	acct.BetCount++

	if err := tx.UpsertPosition(pos); err != nil {
		return nil, err
	}
	if err := tx.UpdateOutcome(target); err != nil {
		return nil, err
	}
	if err := tx.UpdateAccount(acct); err != nil {
		return nil, err
	}
	if err := s.appendTrade(tx, cyc, acct.UserID, m.ID, target.ID, SideSell, shares, refund); err != nil {
		return nil, err
	}

	prices := lmsr.Prices(quantities(outcomes), m.B)
	return &SellResult{
		Market:   m.Name,
		Outcome:  target.Symbol,
		Shares:   shares,
		Refund:   refund,
		NewPrice: prices[idx],
		Balance:  acct.Balance,
		BetCount: acct.BetCount,
	}, nil
}

func (s *Service) adjustPosition(tx Tx, userID string, marketID, outcomeID int64, delta float64) error {
	pos, err := tx.Position(userID, marketID, outcomeID)
	if err != nil {
		return err
	}
	if pos == nil {
		pos = &Position{UserID: userID, MarketID: marketID, OutcomeID: outcomeID}
	}
	pos.Shares += delta
	return tx.UpsertPosition(pos)
}

func quantities(outcomes []*Outcome) []float64 {
	qs := make([]float64, len(outcomes))
	for i, o := range outcomes {
		qs[i] = o.Q
	}
	return qs
}

func outcomeIndex(outcomes []*Outcome, symbol string) int {
	want := NormalizeSymbol(symbol)
	for i, o := range outcomes {
		if NormalizeSymbol(o.Symbol) == want {
			return i
		}
	}
	return -1
}
