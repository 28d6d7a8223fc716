package market

import (
	"context"
	"time"
)

// Store is the transactional repository the engine runs against. The
// engine never mutates state outside InTx; implementations must give
// each InTx call serializable isolation spanning every read and write
// inside fn, and must discard all writes when fn returns an error.
//
// Concurrency control lives entirely behind this interface: the engine
// holds no locks of its own and relies on the store to serialize
// conflicting units of work (retrying internally where the backend
// surfaces serialization failures).
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is one unit of work. Lookup methods that can legitimately miss
// (positions, cycles, accounts) return (nil, nil) when the row does not
// exist; MarketByName returns ErrMarketNotFound so callers surface it
// directly.
type Tx interface {
	// Markets and outcomes.
	CreateMarket(m *Market, symbols []string) error
	MarketByName(name string) (*Market, error)
	UpdateMarket(m *Market) error
	OpenMarkets(now time.Time) ([]*Market, error)
	Outcomes(marketID int64) ([]*Outcome, error)
	UpdateOutcome(o *Outcome) error

	// Positions.
	Position(userID string, marketID, outcomeID int64) (*Position, error)
	UpsertPosition(p *Position) error
	PositionsByOutcome(marketID, outcomeID int64) ([]*Position, error)

	// Cycles and accounts.
	CycleByKey(key string) (*Cycle, error)
	CreateCycle(c *Cycle) error
	UpdateCycle(c *Cycle) error
	EndedOpenCycles(now time.Time) ([]*Cycle, error)
	Account(cycleID int64, userID string) (*Account, error)
	CreateAccount(a *Account) error
	UpdateAccount(a *Account) error
	AccountsByCycle(cycleID int64) ([]*Account, error)

	// Audit log. Append-only; rows are never updated or deleted.
	AppendTrade(t *Trade) error
}
