package market_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictions/internal/market"
	"predictions/internal/store/memory"
)

// clock is a settable time source shared with the service under test.
type clock struct {
	t time.Time
}

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService(t *testing.T) (*market.Service, *memory.Store, *clock) {
	t.Helper()
	st := memory.New()
	svc := market.NewService(st, market.DefaultParams(time.UTC), slog.New(slog.NewTextHandler(io.Discard, nil)))
	ck := &clock{t: time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)}
	svc.SetClock(ck.now)
	return svc, st, ck
}

func openMarket(t *testing.T, svc *market.Service, ck *clock, creator, name string, symbols ...string) *market.Market {
	t.Helper()
	if len(symbols) == 0 {
		symbols = []string{"YES", "NO"}
	}
	m, err := svc.CreateMarket(context.Background(), creator, market.CreateMarketInput{
		Name:      name,
		Question:  "does it happen?",
		Outcomes:  symbols,
		CloseTime: ck.now().Add(72 * time.Hour),
	})
	require.NoError(t, err)
	return m
}

func TestCreateMarketValidation(t *testing.T) {
	svc, _, ck := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateMarket(ctx, "alice", market.CreateMarketInput{
		Name: "bad name", Outcomes: []string{"YES", "NO"}, CloseTime: ck.now().Add(time.Hour),
	})
	require.ErrorIs(t, err, market.ErrInvalidName)

	_, err = svc.CreateMarket(ctx, "alice", market.CreateMarketInput{
		Name: "solo", Outcomes: []string{"YES"}, CloseTime: ck.now().Add(time.Hour),
	})
	require.ErrorIs(t, err, market.ErrTooFewOutcomes)

	_, err = svc.CreateMarket(ctx, "alice", market.CreateMarketInput{
		Name: "dupes", Outcomes: []string{"YES", "yes"}, CloseTime: ck.now().Add(time.Hour),
	})
	require.ErrorIs(t, err, market.ErrDuplicateOutcome)

	_, err = svc.CreateMarket(ctx, "alice", market.CreateMarketInput{
		Name: "past", Outcomes: []string{"YES", "NO"}, CloseTime: ck.now().Add(-time.Hour),
	})
	require.ErrorIs(t, err, market.ErrInvalidCloseTime)

	openMarket(t, svc, ck, "alice", "world-cup")
	_, err = svc.CreateMarket(ctx, "bob", market.CreateMarketInput{
		Name: "world-cup", Outcomes: []string{"A", "B"}, CloseTime: ck.now().Add(time.Hour),
	})
	require.ErrorIs(t, err, market.ErrDuplicateMarket)
}

func TestBuyMovesPrice(t *testing.T) {
	svc, _, ck := newTestService(t)
	ctx := context.Background()
	openMarket(t, svc, ck, "alice", "rain-friday")

	res, err := svc.Buy(ctx, "bob", "rain-friday", "yes", 100)
	require.NoError(t, err)

	assert.Greater(t, res.Shares, 0.0)
	assert.Greater(t, res.Cost, 0.0)
	assert.LessOrEqual(t, res.Cost, 100*1.01)
	assert.Greater(t, res.NewPrice, 0.5, "bought outcome must rise above even odds")
	// Fresh account: 1000 start plus the first daily top-up.
	assert.InDelta(t, 1200-res.Cost, res.Balance, 1e-9)
	assert.Equal(t, 1, res.BetCount)

	board, err := svc.Board(ctx, "bob", "rain-friday")
	require.NoError(t, err)
	sum := 0.0
	for _, o := range board.Outcomes {
		sum += o.Price
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	var yes, no market.OutcomeView
	for _, o := range board.Outcomes {
		if o.Symbol == "YES" {
			yes = o
		} else {
			no = o
		}
	}
	assert.Greater(t, yes.Price, no.Price)
	assert.InDelta(t, res.Shares, yes.Shares, 1e-9)
}

func TestBuyRejections(t *testing.T) {
	svc, _, ck := newTestService(t)
	ctx := context.Background()
	openMarket(t, svc, ck, "alice", "launch")

	_, err := svc.Buy(ctx, "bob", "launch", "YES", 0)
	require.ErrorIs(t, err, market.ErrInvalidSpend)

	_, err = svc.Buy(ctx, "bob", "launch", "MAYBE", 50)
	require.ErrorIs(t, err, market.ErrUnknownOutcome)

	_, err = svc.Buy(ctx, "bob", "nope", "YES", 50)
	require.ErrorIs(t, err, market.ErrMarketNotFound)

	// 1000 start plus one top-up leaves 1200, far short of 5000.
	_, err = svc.Buy(ctx, "bob", "launch", "YES", 5000)
	require.ErrorIs(t, err, market.ErrInsufficientBalance)

	ck.advance(100 * time.Hour) // past WhenCloses
	_, err = svc.Buy(ctx, "bob", "launch", "YES", 50)
	require.ErrorIs(t, err, market.ErrMarketClosed)
}

func TestSellRoundTrip(t *testing.T) {
	svc, _, ck := newTestService(t)
	ctx := context.Background()
	openMarket(t, svc, ck, "alice", "series-a")

	buy, err := svc.Buy(ctx, "bob", "series-a", "YES", 200)
	require.NoError(t, err)

	_, err = svc.Sell(ctx, "bob", "series-a", "YES", buy.Shares*2)
	require.ErrorIs(t, err, market.ErrInsufficientShares)

	_, err = svc.Sell(ctx, "carol", "series-a", "YES", 1)
	require.ErrorIs(t, err, market.ErrInsufficientShares)

	sell, err := svc.Sell(ctx, "bob", "series-a", "YES", buy.Shares)
	require.NoError(t, err)
	// Selling the whole buy back refunds the cost to float precision.
	assert.InDelta(t, buy.Cost, sell.Refund, 1e-6)
	assert.InDelta(t, 0.5, sell.NewPrice, 1e-9)
	assert.Equal(t, 2, sell.BetCount)

	st, err := svc.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.InDelta(t, 1200, st.Balance, 1e-6)
}

func TestDailyTopUp(t *testing.T) {
	svc, _, ck := newTestService(t)
	ctx := context.Background()

	// A fresh account gets its first top-up on the day it appears.
	st, err := svc.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.InDelta(t, 1200, st.Balance, 1e-9)

	ck.advance(24 * time.Hour)
	st, err = svc.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.InDelta(t, 1400, st.Balance, 1e-9)

	// Same day again: no double credit.
	ck.advance(2 * time.Hour)
	st, err = svc.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.InDelta(t, 1400, st.Balance, 1e-9)

	// TopUpDue sweeps every account once per day.
	_, err = svc.Balance(ctx, "carol")
	require.NoError(t, err)
	ck.advance(24 * time.Hour)
	n, err := svc.TopUpDue(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = svc.TopUpDue(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTopUpCap(t *testing.T) {
	svc, _, ck := newTestService(t)
	ctx := context.Background()
	openMarket(t, svc, ck, "alice", "cap-check")

	// Walk bob up toward the cap over successive days.
	for i := 0; i < 10; i++ {
		ck.advance(24 * time.Hour)
		_, err := svc.Balance(ctx, "bob")
		require.NoError(t, err)
	}
	st, err := svc.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.InDelta(t, 2000, st.Balance, 1e-9)
}

func TestResolvePaysWinners(t *testing.T) {
	svc, _, ck := newTestService(t)
	ctx := context.Background()
	openMarket(t, svc, ck, "alice", "election", "RED", "BLUE")

	buyBob, err := svc.Buy(ctx, "bob", "election", "RED", 100)
	require.NoError(t, err)
	buyCarol, err := svc.Buy(ctx, "carol", "election", "BLUE", 100)
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, "bob", "election", "RED")
	require.ErrorIs(t, err, market.ErrNotCreator)

	res, err := svc.Resolve(ctx, "alice", "election", "RED")
	require.NoError(t, err)
	assert.Equal(t, 1, res.PayoutCount)
	assert.InDelta(t, buyBob.Shares, res.PayoutTotal, 1e-9)

	// One unit per winning share; the loser keeps the depleted balance.
	stBob, err := svc.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.InDelta(t, 1200-buyBob.Cost+buyBob.Shares, stBob.Balance, 1e-6)
	stCarol, err := svc.Balance(ctx, "carol")
	require.NoError(t, err)
	assert.InDelta(t, 1200-buyCarol.Cost, stCarol.Balance, 1e-6)

	// Terminal states reject every follow-up.
	_, err = svc.Resolve(ctx, "alice", "election", "BLUE")
	require.ErrorIs(t, err, market.ErrAlreadyResolved)
	err = svc.Cancel(ctx, "alice", "election")
	require.ErrorIs(t, err, market.ErrAlreadyResolved)
	_, err = svc.Buy(ctx, "bob", "election", "RED", 10)
	require.ErrorIs(t, err, market.ErrMarketClosed)
}

func TestResolveUnknownOutcomeKeepsMarketOpen(t *testing.T) {
	svc, _, ck := newTestService(t)
	ctx := context.Background()
	openMarket(t, svc, ck, "alice", "rollback-check")

	_, err := svc.Resolve(ctx, "alice", "rollback-check", "MAYBE")
	require.ErrorIs(t, err, market.ErrUnknownOutcome)

	// The failed resolve must not have mutated anything.
	board, err := svc.Board(ctx, "", "rollback-check")
	require.NoError(t, err)
	assert.Equal(t, market.StatusOpen, board.Status)
	_, err = svc.Buy(ctx, "bob", "rollback-check", "YES", 10)
	require.NoError(t, err)
}

func TestCancelForfeitsPositions(t *testing.T) {
	svc, _, ck := newTestService(t)
	ctx := context.Background()
	openMarket(t, svc, ck, "alice", "abandoned")

	buy, err := svc.Buy(ctx, "bob", "abandoned", "YES", 100)
	require.NoError(t, err)

	err = svc.Cancel(ctx, "bob", "abandoned")
	require.ErrorIs(t, err, market.ErrNotCreator)

	require.NoError(t, svc.Cancel(ctx, "alice", "abandoned"))

	// No payout on cancel: the spend is gone.
	st, err := svc.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.InDelta(t, 1200-buy.Cost, st.Balance, 1e-6)

	err = svc.Cancel(ctx, "alice", "abandoned")
	require.ErrorIs(t, err, market.ErrAlreadyCancelled)
	_, err = svc.Resolve(ctx, "alice", "abandoned", "YES")
	require.ErrorIs(t, err, market.ErrMarketCancelled)
	_, err = svc.Sell(ctx, "bob", "abandoned", "YES", buy.Shares)
	require.ErrorIs(t, err, market.ErrMarketClosed)
}

func TestLeaderboardEligibility(t *testing.T) {
	svc, _, ck := newTestService(t)
	ctx := context.Background()
	openMarket(t, svc, ck, "alice", "horse-race", "A", "B", "C")

	// Bet counts: alice 1, bob 5, carol 9, dave 0, eve 0 -> median 1.
	users := map[string]int{"alice": 1, "bob": 5, "carol": 9}
	for user, n := range users {
		for i := 0; i < n; i++ {
			_, err := svc.Buy(ctx, user, "horse-race", "A", 5)
			require.NoError(t, err)
		}
	}
	for _, u := range []string{"dave", "eve"} {
		_, err := svc.Balance(ctx, u)
		require.NoError(t, err)
	}

	lb, err := svc.Leaderboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-08", lb.CycleKey)
	assert.Equal(t, 1, lb.MedianBets)
	require.Len(t, lb.Entries, 5)

	eligible := map[string]bool{}
	for _, e := range lb.Entries {
		eligible[e.UserID] = e.Eligible
	}
	// Strictly above the median qualifies; a tie with it does not.
	assert.False(t, eligible["alice"])
	assert.True(t, eligible["bob"])
	assert.True(t, eligible["carol"])
	assert.False(t, eligible["dave"])

	// Highest balance first.
	for i := 1; i < len(lb.Entries); i++ {
		assert.GreaterOrEqual(t, lb.Entries[i-1].Balance, lb.Entries[i].Balance)
	}
}

func TestCloseCycle(t *testing.T) {
	svc, _, ck := newTestService(t)
	ctx := context.Background()
	openMarket(t, svc, ck, "alice", "monthly", "UP", "DOWN")

	// bob trades past the median, carol does not.
	for i := 0; i < 4; i++ {
		_, err := svc.Buy(ctx, "bob", "monthly", "UP", 10)
		require.NoError(t, err)
	}
	_, err := svc.Buy(ctx, "carol", "monthly", "DOWN", 500)
	require.NoError(t, err)

	res, err := svc.CloseCycle(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "2026-08", res.CycleKey)
	// Counts {4, 1}: even split truncates to 2, so only bob qualifies
	// even though carol holds the larger position.
	assert.Equal(t, 2, res.MedianBets)
	require.NotNil(t, res.WinnerID)
	assert.Equal(t, "bob", *res.WinnerID)

	_, err = svc.CloseCycle(ctx, "")
	require.ErrorIs(t, err, market.ErrCycleClosed)

	_, err = svc.CloseCycle(ctx, "1999-01")
	require.ErrorIs(t, err, market.ErrCycleNotFound)
}

func TestCloseDue(t *testing.T) {
	svc, _, ck := newTestService(t)
	ctx := context.Background()

	// Touch August so its cycle exists.
	_, err := svc.Balance(ctx, "bob")
	require.NoError(t, err)

	// Still inside the month: nothing due.
	keys, err := svc.CloseDue(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	ck.advance(40 * 24 * time.Hour) // into September
	keys, err = svc.CloseDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-08"}, keys)

	keys, err = svc.CloseDue(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCycleRollover(t *testing.T) {
	svc, _, ck := newTestService(t)
	ctx := context.Background()
	openMarket(t, svc, ck, "alice", "long-running")

	_, err := svc.Buy(ctx, "bob", "long-running", "YES", 300)
	require.NoError(t, err)

	ck.advance(40 * 24 * time.Hour)

	// A fresh month means a fresh account: starting balance plus the
	// day's top-up, with the bet count reset.
	st, err := svc.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "2026-09", st.CycleKey)
	assert.InDelta(t, 1200, st.Balance, 1e-9)
	assert.Zero(t, st.BetCount)
}

func TestTradeAuditLog(t *testing.T) {
	svc, st, ck := newTestService(t)
	ctx := context.Background()
	openMarket(t, svc, ck, "alice", "audited")

	buy, err := svc.Buy(ctx, "bob", "audited", "YES", 50)
	require.NoError(t, err)
	_, err = svc.Sell(ctx, "bob", "audited", "YES", buy.Shares/2)
	require.NoError(t, err)

	trades := st.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, market.SideBuy, trades[0].Side)
	assert.Equal(t, market.SideSell, trades[1].Side)
	assert.NotEmpty(t, trades[0].ID)
	assert.NotEqual(t, trades[0].ID, trades[1].ID)
	assert.Equal(t, "bob", trades[0].UserID)
	assert.InDelta(t, buy.Cost, trades[0].Amount, 1e-9)
}

func TestOpenMarketsListing(t *testing.T) {
	svc, _, ck := newTestService(t)
	ctx := context.Background()

	openMarket(t, svc, ck, "alice", "first")
	ck.advance(time.Hour)
	openMarket(t, svc, ck, "alice", "second")
	ck.advance(time.Hour)
	resolved := openMarket(t, svc, ck, "alice", "third")
	_, err := svc.Resolve(ctx, "alice", resolved.Name, "YES")
	require.NoError(t, err)

	ms, err := svc.OpenMarkets(ctx)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "second", ms[0].Name)
	assert.Equal(t, "first", ms[1].Name)
}

func TestConcurrentBuysStayConsistent(t *testing.T) {
	svc, st, ck := newTestService(t)
	ctx := context.Background()
	openMarket(t, svc, ck, "alice", "contended")

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			_, err := svc.Buy(ctx, fmt.Sprintf("user-%d", i), "contended", "YES", 20)
			errs <- err
		}(i)
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}

	trades := st.Trades()
	require.Len(t, trades, n)
	spent := 0.0
	for _, tr := range trades {
		spent += tr.Amount
	}
	board, err := svc.Board(ctx, "", "contended")
	require.NoError(t, err)
	held := 0.0
	for _, o := range board.Outcomes {
		held += o.Q
	}
	assert.Greater(t, spent, 0.0)
	assert.Greater(t, held, 0.0)
}
