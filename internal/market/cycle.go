package market

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Params are the economy constants, fixed at service construction.
// Defaults mirror the reference deployment: start at 1000, top up 200 a
// day, cap at 2000, price with b=100.
type Params struct {
	StartingBalance  float64
	DailyTopUp       float64
	BalanceCap       float64
	DefaultLiquidity float64
	// Timezone anchors cycle keys, month bounds and top-up days.
	Timezone *time.Location
}

// DefaultParams returns the reference economy in the given timezone
// (UTC when nil).
func DefaultParams(tz *time.Location) Params {
	if tz == nil {
		tz = time.UTC
	}
	return Params{
		StartingBalance:  1000,
		DailyTopUp:       200,
		BalanceCap:       2000,
		DefaultLiquidity: 100,
		Timezone:         tz,
	}
}

// CycleKey maps an instant to its cycle's stable key, the calendar
// month in the reference timezone.
func (p Params) CycleKey(t time.Time) string {
	return t.In(p.Timezone).Format("2006-01")
}

// monthBounds returns the UTC-normalized [start, end) window of the
// month containing t in the reference timezone.
func (p Params) monthBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(p.Timezone)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, p.Timezone)
	end := start.AddDate(0, 1, 0)
	return start.UTC(), end.UTC()
}

// sameTopUpDay reports whether a and b fall on the same calendar day in
// the reference timezone. The zero time never matches.
func (p Params) sameTopUpDay(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	ay, am, ad := a.In(p.Timezone).Date()
	by, bm, bd := b.In(p.Timezone).Date()
	return ay == by && am == bm && ad == bd
}

// applyTopUp credits the daily allowance once per calendar day, capped
// at the balance ceiling. Reports whether anything was applied, so
// both the lazy trade path and the batch sweep stay idempotent.
func (p Params) applyTopUp(a *Account, now time.Time) bool {
	if p.sameTopUpDay(a.LastTopUp, now) {
		return false
	}
	next := a.Balance + p.DailyTopUp
	if next > p.BalanceCap {
		next = p.BalanceCap
	}
	a.Balance = next
	a.LastTopUp = now
	return true
}

// medianBets is the eligibility threshold: the median of all bet
// counts, truncated on an even split. The strict > comparison against
// it means a bet count tied with the median never qualifies.
func medianBets(counts []int) int {
	if len(counts) == 0 {
		return 0
	}
	sorted := make([]int, len(counts))
	copy(sorted, counts)
	sort.Ints(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// ensureCycle fetches or lazily creates the cycle for the given
// instant.
func (s *Service) ensureCycle(tx Tx, now time.Time) (*Cycle, error) {
	key := s.params.CycleKey(now)
	cyc, err := tx.CycleByKey(key)
	if err != nil {
		return nil, err
	}
	if cyc != nil {
		return cyc, nil
	}
	starts, ends := s.params.monthBounds(now)
	cyc = &Cycle{Key: key, StartsAt: starts, EndsAt: ends}
	if err := tx.CreateCycle(cyc); err != nil {
		return nil, err
	}
	return cyc, nil
}

// ensureAccount fetches or lazily creates the user's account for the
// cycle and applies any pending daily top-up.
func (s *Service) ensureAccount(tx Tx, cyc *Cycle, userID string, now time.Time) (*Account, error) {
	acct, err := tx.Account(cyc.ID, userID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		acct = &Account{CycleID: cyc.ID, UserID: userID, Balance: s.params.StartingBalance}
		if err := tx.CreateAccount(acct); err != nil {
			return nil, err
		}
	}
	if s.params.applyTopUp(acct, now) {
		if err := tx.UpdateAccount(acct); err != nil {
			return nil, err
		}
	}
	return acct, nil
}

// TopUpDue applies the daily top-up to every account in the cycle
// identified by key ("" selects the current cycle). Safe to invoke any
// number of times per day; already-credited accounts are skipped.
func (s *Service) TopUpDue(ctx context.Context, key string) (int, error) {
	now := s.now()
	if key == "" {
		key = s.params.CycleKey(now)
	}
	updated := 0
	err := s.store.InTx(ctx, func(tx Tx) error {
		updated = 0
		cyc, err := tx.CycleByKey(key)
		if err != nil {
			return err
		}
		if cyc == nil {
			// No one has interacted this cycle; nothing to credit.
			return nil
		}
		accounts, err := tx.AccountsByCycle(cyc.ID)
		if err != nil {
			return err
		}
		for _, a := range accounts {
			if s.params.applyTopUp(a, now) {
				if err := tx.UpdateAccount(a); err != nil {
					return err
				}
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// CloseCycle closes the cycle identified by key ("" selects the
// current one): computes the median bet count, the eligible set
// (strictly above the median), and the winner (highest balance among
// eligible). One-time and irreversible; a second close fails with
// ErrCycleClosed.
func (s *Service) CloseCycle(ctx context.Context, key string) (*CloseResult, error) {
	now := s.now()
	if key == "" {
		key = s.params.CycleKey(now)
	}
	var out *CloseResult
	err := s.store.InTx(ctx, func(tx Tx) error {
		cyc, err := tx.CycleByKey(key)
		if err != nil {
			return err
		}
		if cyc == nil {
			return fmt.Errorf("close cycle %s: %w", key, ErrCycleNotFound)
		}
		if cyc.WhenClosed != nil {
			return fmt.Errorf("cycle %s: %w", key, ErrCycleClosed)
		}
		res, err := s.closeCycleTx(tx, cyc, now)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CloseDue closes every cycle whose window has fully passed and that
// is still open. Idempotent: already-closed cycles never match.
// Intended for the background worker; returns the keys closed.
func (s *Service) CloseDue(ctx context.Context) ([]string, error) {
	now := s.now()
	var closed []string
	err := s.store.InTx(ctx, func(tx Tx) error {
		closed = closed[:0]
		due, err := tx.EndedOpenCycles(now)
		if err != nil {
			return err
		}
		for _, cyc := range due {
			if _, err := s.closeCycleTx(tx, cyc, now); err != nil {
				return err
			}
			closed = append(closed, cyc.Key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

func (s *Service) closeCycleTx(tx Tx, cyc *Cycle, now time.Time) (*CloseResult, error) {
	accounts, err := tx.AccountsByCycle(cyc.ID)
	if err != nil {
		return nil, err
	}

	counts := make([]int, len(accounts))
	for i, a := range accounts {
		counts[i] = a.BetCount
	}
	med := medianBets(counts)

	var winner *Account
	for _, a := range accounts {
		if a.BetCount <= med {
			continue
		}
		if winner == nil || a.Balance > winner.Balance {
			winner = a
		}
	}

	when := now
	cyc.MedianBets = &med
	cyc.WhenClosed = &when
	if winner != nil {
		id := winner.UserID
		cyc.WinnerID = &id
	}
	if err := tx.UpdateCycle(cyc); err != nil {
		return nil, err
	}

	res := &CloseResult{
		CycleKey:   cyc.Key,
		MedianBets: med,
		Top:        rankAccounts(accounts, med, 10),
	}
	if winner != nil {
		res.WinnerID = cyc.WinnerID
	}
	s.log.Info("cycle closed", "cycle", cyc.Key, "median_bets", med, "winner", deref(cyc.WinnerID), "accounts", len(accounts))
	return res, nil
}

func rankAccounts(accounts []*Account, med, limit int) []LeaderboardEntry {
	ranked := make([]*Account, len(accounts))
	copy(ranked, accounts)
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Balance > ranked[j].Balance })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]LeaderboardEntry, len(ranked))
	for i, a := range ranked {
		out[i] = LeaderboardEntry{
			Rank:     i + 1,
			UserID:   a.UserID,
			Balance:  a.Balance,
			BetCount: a.BetCount,
			Eligible: a.BetCount > med,
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
