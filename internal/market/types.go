package market

import "time"

// Market is a multi-outcome prediction market priced by LMSR. The
// liquidity parameter B is fixed at creation; quantities freeze once
// the status leaves open.
type Market struct {
	ID            int64
	Name          string
	Question      string
	CreatorID     string
	B             float64
	Status        string
	WhenCreated   time.Time
	WhenCloses    time.Time
	WhenResolved  *time.Time
	WhenCancelled *time.Time
	// ResolvedOutcomeID is set once the market resolves.
	ResolvedOutcomeID *int64
}

// ClosedForTrading is derived, not stored: a market stops accepting
// trades when it leaves the open state or its closing time passes.
// Resolution and cancellation ignore the time component.
func (m *Market) ClosedForTrading(now time.Time) bool {
	return m.Status != StatusOpen || !now.Before(m.WhenCloses)
}

// Outcome is one leg of a market. Q is the cumulative net shares
// issued; it only moves under a trade and never goes negative because
// sells are capped by outstanding quantity.
type Outcome struct {
	ID       int64
	MarketID int64
	Symbol   string
	Q        float64
}

// Position tracks shares held by one user in one outcome. At most one
// row per (user, market, outcome); a fully sold position keeps its row
// at zero shares.
type Position struct {
	ID        int64
	UserID    string
	MarketID  int64
	OutcomeID int64
	Shares    float64
}

// Cycle is one accounting period (a calendar month in the reference
// timezone). Once closed it is immutable.
type Cycle struct {
	ID         int64
	Key        string // e.g. "2026-08"
	StartsAt   time.Time
	EndsAt     time.Time
	MedianBets *int
	WinnerID   *string
	WhenClosed *time.Time
}

// Account is a user's balance and participation within one cycle.
// Created lazily at the configured starting balance.
type Account struct {
	ID        int64
	CycleID   int64
	UserID    string
	Balance   float64
	BetCount  int
	LastTopUp time.Time // zero value means never topped up
}

// Trade is an immutable audit record of one executed buy or sell.
type Trade struct {
	ID        string // uuid
	CycleID   int64
	UserID    string
	MarketID  int64
	OutcomeID int64
	Side      string
	Shares    float64
	Amount    float64
	At        time.Time
}

// CreateMarketInput describes a market to create. A zero Liquidity
// selects the configured default.
type CreateMarketInput struct {
	Name      string
	Question  string
	Outcomes  []string
	CloseTime time.Time
	Liquidity float64
}

// BuyResult reports an executed buy.
type BuyResult struct {
	Market   string  `json:"market"`
	Outcome  string  `json:"outcome"`
	Shares   float64 `json:"shares"`
	Cost     float64 `json:"cost"`
	NewPrice float64 `json:"new_price"`
	Balance  float64 `json:"balance"`
	BetCount int     `json:"bet_count"`
}

// SellResult reports an executed sell.
type SellResult struct {
	Market   string  `json:"market"`
	Outcome  string  `json:"outcome"`
	Shares   float64 `json:"shares"`
	Refund   float64 `json:"refund"`
	NewPrice float64 `json:"new_price"`
	Balance  float64 `json:"balance"`
	BetCount int     `json:"bet_count"`
}

// ResolveResult reports a market resolution.
type ResolveResult struct {
	Market      string  `json:"market"`
	Outcome     string  `json:"outcome"`
	PayoutCount int     `json:"payout_count"`
	PayoutTotal float64 `json:"payout_total"`
}

// OutcomeView pairs an outcome with its implied probability and the
// requesting user's holding.
type OutcomeView struct {
	Symbol string  `json:"symbol"`
	Q      float64 `json:"q"`
	Price  float64 `json:"price"`
	Shares float64 `json:"shares"`
}

// Board is the read-side view of one market.
type Board struct {
	Name       string        `json:"name"`
	Question   string        `json:"question"`
	Status     string        `json:"status"`
	CreatorID  string        `json:"creator_id"`
	WhenCloses time.Time     `json:"when_closes"`
	Closed     bool          `json:"closed"`
	Outcomes   []OutcomeView `json:"outcomes"`
}

// Statement is a user's standing in the current cycle.
type Statement struct {
	CycleKey string  `json:"cycle_key"`
	Balance  float64 `json:"balance"`
	BetCount int     `json:"bet_count"`
}

// LeaderboardEntry is one row of the cycle leaderboard. Eligible means
// the bet count strictly exceeds the current median.
type LeaderboardEntry struct {
	Rank     int     `json:"rank"`
	UserID   string  `json:"user_id"`
	Balance  float64 `json:"balance"`
	BetCount int     `json:"bet_count"`
	Eligible bool    `json:"eligible"`
}

// Leaderboard is the top slice of accounts in a cycle by balance.
type Leaderboard struct {
	CycleKey   string             `json:"cycle_key"`
	MedianBets int                `json:"median_bets"`
	Entries    []LeaderboardEntry `json:"entries"`
}

// CloseResult reports a cycle close.
type CloseResult struct {
	CycleKey   string             `json:"cycle_key"`
	MedianBets int                `json:"median_bets"`
	WinnerID   *string            `json:"winner_id,omitempty"`
	Top        []LeaderboardEntry `json:"top"`
}
