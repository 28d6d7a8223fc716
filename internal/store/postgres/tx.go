package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"predictions/internal/market"
)

type tx struct {
	ctx context.Context
	tx  pgx.Tx
}

func (t *tx) CreateMarket(m *market.Market, symbols []string) error {
	err := t.tx.QueryRow(t.ctx, `
		INSERT INTO markets (name, question, creator_id, b, status, when_created, when_closes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, m.Name, m.Question, m.CreatorID, m.B, m.Status, m.WhenCreated, m.WhenCloses).Scan(&m.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", m.Name, market.ErrDuplicateMarket)
		}
		return err
	}
	for _, sym := range symbols {
		_, err := t.tx.Exec(t.ctx, `
			INSERT INTO outcomes (market_id, symbol, q) VALUES ($1, $2, 0)
		`, m.ID, sym)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) MarketByName(name string) (*market.Market, error) {
	m := &market.Market{}
	err := t.tx.QueryRow(t.ctx, `
		SELECT id, name, question, creator_id, b, status,
		       when_created, when_closes, when_resolved, when_cancelled, resolved_outcome_id
		FROM markets
		WHERE lower(name) = lower($1)
		FOR UPDATE
	`, name).Scan(&m.ID, &m.Name, &m.Question, &m.CreatorID, &m.B, &m.Status,
		&m.WhenCreated, &m.WhenCloses, &m.WhenResolved, &m.WhenCancelled, &m.ResolvedOutcomeID)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", name, market.ErrMarketNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (t *tx) UpdateMarket(m *market.Market) error {
	_, err := t.tx.Exec(t.ctx, `
		UPDATE markets
		SET status = $2, when_resolved = $3, when_cancelled = $4, resolved_outcome_id = $5
		WHERE id = $1
	`, m.ID, m.Status, m.WhenResolved, m.WhenCancelled, m.ResolvedOutcomeID)
	return err
}

func (t *tx) OpenMarkets(now time.Time) ([]*market.Market, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT id, name, question, creator_id, b, status,
		       when_created, when_closes, when_resolved, when_cancelled, resolved_outcome_id
		FROM markets
		WHERE status = $1 AND when_closes > $2
		ORDER BY when_created DESC
	`, market.StatusOpen, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*market.Market
	for rows.Next() {
		m := &market.Market{}
		if err := rows.Scan(&m.ID, &m.Name, &m.Question, &m.CreatorID, &m.B, &m.Status,
			&m.WhenCreated, &m.WhenCloses, &m.WhenResolved, &m.WhenCancelled, &m.ResolvedOutcomeID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (t *tx) Outcomes(marketID int64) ([]*market.Outcome, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT id, market_id, symbol, q
		FROM outcomes
		WHERE market_id = $1
		ORDER BY id
		FOR UPDATE
	`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*market.Outcome
	for rows.Next() {
		o := &market.Outcome{}
		if err := rows.Scan(&o.ID, &o.MarketID, &o.Symbol, &o.Q); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (t *tx) UpdateOutcome(o *market.Outcome) error {
	_, err := t.tx.Exec(t.ctx, `UPDATE outcomes SET q = $2 WHERE id = $1`, o.ID, o.Q)
	return err
}

func (t *tx) Position(userID string, marketID, outcomeID int64) (*market.Position, error) {
	p := &market.Position{}
	err := t.tx.QueryRow(t.ctx, `
		SELECT id, user_id, market_id, outcome_id, shares
		FROM positions
		WHERE user_id = $1 AND market_id = $2 AND outcome_id = $3
		FOR UPDATE
	`, userID, marketID, outcomeID).Scan(&p.ID, &p.UserID, &p.MarketID, &p.OutcomeID, &p.Shares)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (t *tx) UpsertPosition(p *market.Position) error {
	return t.tx.QueryRow(t.ctx, `
		INSERT INTO positions (user_id, market_id, outcome_id, shares)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, market_id, outcome_id)
		DO UPDATE SET shares = EXCLUDED.shares
		RETURNING id
	`, p.UserID, p.MarketID, p.OutcomeID, p.Shares).Scan(&p.ID)
}

func (t *tx) PositionsByOutcome(marketID, outcomeID int64) ([]*market.Position, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT id, user_id, market_id, outcome_id, shares
		FROM positions
		WHERE market_id = $1 AND outcome_id = $2
		ORDER BY id
	`, marketID, outcomeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*market.Position
	for rows.Next() {
		p := &market.Position{}
		if err := rows.Scan(&p.ID, &p.UserID, &p.MarketID, &p.OutcomeID, &p.Shares); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *tx) CycleByKey(key string) (*market.Cycle, error) {
	c := &market.Cycle{}
	err := t.tx.QueryRow(t.ctx, `
		SELECT id, key, starts_at, ends_at, median_bets, winner_id, when_closed
		FROM cycles
		WHERE key = $1
		FOR UPDATE
	`, key).Scan(&c.ID, &c.Key, &c.StartsAt, &c.EndsAt, &c.MedianBets, &c.WinnerID, &c.WhenClosed)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (t *tx) CreateCycle(c *market.Cycle) error {
	return t.tx.QueryRow(t.ctx, `
		INSERT INTO cycles (key, starts_at, ends_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, c.Key, c.StartsAt, c.EndsAt).Scan(&c.ID)
}

func (t *tx) UpdateCycle(c *market.Cycle) error {
	_, err := t.tx.Exec(t.ctx, `
		UPDATE cycles
		SET median_bets = $2, winner_id = $3, when_closed = $4
		WHERE id = $1
	`, c.ID, c.MedianBets, c.WinnerID, c.WhenClosed)
	return err
}

func (t *tx) EndedOpenCycles(now time.Time) ([]*market.Cycle, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT id, key, starts_at, ends_at, median_bets, winner_id, when_closed
		FROM cycles
		WHERE when_closed IS NULL AND ends_at <= $1
		ORDER BY ends_at
		FOR UPDATE
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*market.Cycle
	for rows.Next() {
		c := &market.Cycle{}
		if err := rows.Scan(&c.ID, &c.Key, &c.StartsAt, &c.EndsAt, &c.MedianBets, &c.WinnerID, &c.WhenClosed); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *tx) Account(cycleID int64, userID string) (*market.Account, error) {
	a := &market.Account{}
	var lastTopUp *time.Time
	err := t.tx.QueryRow(t.ctx, `
		SELECT id, cycle_id, user_id, balance, bet_count, last_topup
		FROM accounts
		WHERE cycle_id = $1 AND user_id = $2
		FOR UPDATE
	`, cycleID, userID).Scan(&a.ID, &a.CycleID, &a.UserID, &a.Balance, &a.BetCount, &lastTopUp)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastTopUp != nil {
		a.LastTopUp = *lastTopUp
	}
	return a, nil
}

func (t *tx) CreateAccount(a *market.Account) error {
	return t.tx.QueryRow(t.ctx, `
		INSERT INTO accounts (cycle_id, user_id, balance, bet_count)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, a.CycleID, a.UserID, a.Balance, a.BetCount).Scan(&a.ID)
}

func (t *tx) UpdateAccount(a *market.Account) error {
	var lastTopUp *time.Time
	if !a.LastTopUp.IsZero() {
		lastTopUp = &a.LastTopUp
	}
	_, err := t.tx.Exec(t.ctx, `
		UPDATE accounts
		SET balance = $2, bet_count = $3, last_topup = $4
		WHERE id = $1
	`, a.ID, a.Balance, a.BetCount, lastTopUp)
	return err
}

func (t *tx) AccountsByCycle(cycleID int64) ([]*market.Account, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT id, cycle_id, user_id, balance, bet_count, last_topup
		FROM accounts
		WHERE cycle_id = $1
		ORDER BY id
		FOR UPDATE
	`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*market.Account
	for rows.Next() {
		a := &market.Account{}
		var lastTopUp *time.Time
		if err := rows.Scan(&a.ID, &a.CycleID, &a.UserID, &a.Balance, &a.BetCount, &lastTopUp); err != nil {
			return nil, err
		}
		if lastTopUp != nil {
			a.LastTopUp = *lastTopUp
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *tx) AppendTrade(tr *market.Trade) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO trades (id, cycle_id, user_id, market_id, outcome_id, side, shares, amount, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, tr.ID, tr.CycleID, tr.UserID, tr.MarketID, tr.OutcomeID, tr.Side, tr.Shares, tr.Amount, tr.At)
	return err
}
