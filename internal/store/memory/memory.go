// Package memory is an in-process Store used by tests and local runs
// without Postgres. A single mutex serializes units of work, and a
// snapshot taken at transaction start restores the state when fn
// errors, matching the rollback semantics the engine expects.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"predictions/internal/market"
)

type state struct {
	markets   []*market.Market
	outcomes  []*market.Outcome
	positions []*market.Position
	cycles    []*market.Cycle
	accounts  []*market.Account
	trades    []*market.Trade

	nextMarket  int64
	nextOutcome int64
	nextPos     int64
	nextCycle   int64
	nextAccount int64
}

// Store implements market.Store in memory.
type Store struct {
	mu sync.Mutex
	st state
}

func New() *Store {
	return &Store{}
}

func (s *Store) InTx(ctx context.Context, fn func(tx market.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.st.clone()
	if err := fn(&tx{st: &s.st}); err != nil {
		s.st = *snap
		return err
	}
	return nil
}

// Trades exposes the audit log for assertions.
func (s *Store) Trades() []*market.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*market.Trade, len(s.st.trades))
	for i, t := range s.st.trades {
		c := *t
		out[i] = &c
	}
	return out
}

func (st *state) clone() *state {
	c := &state{
		nextMarket:  st.nextMarket,
		nextOutcome: st.nextOutcome,
		nextPos:     st.nextPos,
		nextCycle:   st.nextCycle,
		nextAccount: st.nextAccount,
	}
	c.markets = cloneSlice(st.markets, func(m *market.Market) *market.Market {
		d := *m
		d.WhenResolved = clonePtr(m.WhenResolved)
		d.WhenCancelled = clonePtr(m.WhenCancelled)
		d.ResolvedOutcomeID = clonePtr(m.ResolvedOutcomeID)
		return &d
	})
	c.outcomes = cloneSlice(st.outcomes, func(o *market.Outcome) *market.Outcome { d := *o; return &d })
	c.positions = cloneSlice(st.positions, func(p *market.Position) *market.Position { d := *p; return &d })
	c.cycles = cloneSlice(st.cycles, func(cy *market.Cycle) *market.Cycle {
		d := *cy
		d.MedianBets = clonePtr(cy.MedianBets)
		d.WinnerID = clonePtr(cy.WinnerID)
		d.WhenClosed = clonePtr(cy.WhenClosed)
		return &d
	})
	c.accounts = cloneSlice(st.accounts, func(a *market.Account) *market.Account { d := *a; return &d })
	c.trades = cloneSlice(st.trades, func(t *market.Trade) *market.Trade { d := *t; return &d })
	return c
}

func cloneSlice[T any](in []*T, cp func(*T) *T) []*T {
	out := make([]*T, len(in))
	for i, v := range in {
		out[i] = cp(v)
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// tx mutates the live state directly; InTx restores the snapshot on
// error.
type tx struct {
	st *state
}

func (t *tx) CreateMarket(m *market.Market, symbols []string) error {
	for _, existing := range t.st.markets {
		if strings.EqualFold(existing.Name, m.Name) {
			return fmt.Errorf("%s: %w", m.Name, market.ErrDuplicateMarket)
		}
	}
	t.st.nextMarket++
	m.ID = t.st.nextMarket
	t.st.markets = append(t.st.markets, m)
	for _, sym := range symbols {
		t.st.nextOutcome++
		t.st.outcomes = append(t.st.outcomes, &market.Outcome{
			ID:       t.st.nextOutcome,
			MarketID: m.ID,
			Symbol:   sym,
		})
	}
	return nil
}

func (t *tx) MarketByName(name string) (*market.Market, error) {
	for _, m := range t.st.markets {
		if strings.EqualFold(m.Name, name) {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", name, market.ErrMarketNotFound)
}

func (t *tx) UpdateMarket(m *market.Market) error {
	for i, existing := range t.st.markets {
		if existing.ID == m.ID {
			t.st.markets[i] = m
			return nil
		}
	}
	return fmt.Errorf("market id %d: %w", m.ID, market.ErrMarketNotFound)
}

func (t *tx) OpenMarkets(now time.Time) ([]*market.Market, error) {
	var out []*market.Market
	for _, m := range t.st.markets {
		if !m.ClosedForTrading(now) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WhenCreated.After(out[j].WhenCreated) })
	return out, nil
}

func (t *tx) Outcomes(marketID int64) ([]*market.Outcome, error) {
	var out []*market.Outcome
	for _, o := range t.st.outcomes {
		if o.MarketID == marketID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) UpdateOutcome(o *market.Outcome) error {
	for i, existing := range t.st.outcomes {
		if existing.ID == o.ID {
			t.st.outcomes[i] = o
			return nil
		}
	}
	return fmt.Errorf("outcome id %d: %w", o.ID, market.ErrUnknownOutcome)
}

func (t *tx) Position(userID string, marketID, outcomeID int64) (*market.Position, error) {
	for _, p := range t.st.positions {
		if p.UserID == userID && p.MarketID == marketID && p.OutcomeID == outcomeID {
			return p, nil
		}
	}
	return nil, nil
}

func (t *tx) UpsertPosition(p *market.Position) error {
	if p.ID == 0 {
		t.st.nextPos++
		p.ID = t.st.nextPos
		t.st.positions = append(t.st.positions, p)
		return nil
	}
	for i, existing := range t.st.positions {
		if existing.ID == p.ID {
			t.st.positions[i] = p
			return nil
		}
	}
	t.st.positions = append(t.st.positions, p)
	return nil
}

func (t *tx) PositionsByOutcome(marketID, outcomeID int64) ([]*market.Position, error) {
	var out []*market.Position
	for _, p := range t.st.positions {
		if p.MarketID == marketID && p.OutcomeID == outcomeID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *tx) CycleByKey(key string) (*market.Cycle, error) {
	for _, c := range t.st.cycles {
		if c.Key == key {
			return c, nil
		}
	}
	return nil, nil
}

func (t *tx) CreateCycle(c *market.Cycle) error {
	t.st.nextCycle++
	c.ID = t.st.nextCycle
	t.st.cycles = append(t.st.cycles, c)
	return nil
}

func (t *tx) UpdateCycle(c *market.Cycle) error {
	for i, existing := range t.st.cycles {
		if existing.ID == c.ID {
			t.st.cycles[i] = c
			return nil
		}
	}
	return fmt.Errorf("cycle id %d: %w", c.ID, market.ErrCycleNotFound)
}

func (t *tx) EndedOpenCycles(now time.Time) ([]*market.Cycle, error) {
	var out []*market.Cycle
	for _, c := range t.st.cycles {
		if c.WhenClosed == nil && !now.Before(c.EndsAt) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndsAt.Before(out[j].EndsAt) })
	return out, nil
}

func (t *tx) Account(cycleID int64, userID string) (*market.Account, error) {
	for _, a := range t.st.accounts {
		if a.CycleID == cycleID && a.UserID == userID {
			return a, nil
		}
	}
	return nil, nil
}

func (t *tx) CreateAccount(a *market.Account) error {
	t.st.nextAccount++
	a.ID = t.st.nextAccount
	t.st.accounts = append(t.st.accounts, a)
	return nil
}

func (t *tx) UpdateAccount(a *market.Account) error {
	for i, existing := range t.st.accounts {
		if existing.ID == a.ID {
			t.st.accounts[i] = a
			return nil
		}
	}
	return fmt.Errorf("account id %d not found", a.ID)
}

func (t *tx) AccountsByCycle(cycleID int64) ([]*market.Account, error) {
	var out []*market.Account
	for _, a := range t.st.accounts {
		if a.CycleID == cycleID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *tx) AppendTrade(tr *market.Trade) error {
	t.st.trades = append(t.st.trades, tr)
	return nil
}
