// Package market implements the prediction-market engine: LMSR-priced
// trade execution, the market/position ledger, and the monthly economy
// cycle, all running against a transactional Store.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"predictions/internal/lmsr"
)

// Service is the engine facade. Every operation runs inside a single
// store transaction: it either commits in full or leaves no trace.
type Service struct {
	store  Store
	params Params
	log    *slog.Logger
	now    func() time.Time
}

func NewService(store Store, params Params, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if params.Timezone == nil {
		params.Timezone = time.UTC
	}
	return &Service{
		store:  store,
		params: params,
		log:    logger,
		now:    time.Now,
	}
}

// SetClock overrides the service time source, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateMarket opens a new market with all outcome quantities at zero.
func (s *Service) CreateMarket(ctx context.Context, userID string, in CreateMarketInput) (*Market, error) {
	if err := validateName(in.Name); err != nil {
		return nil, err
	}
	symbols, err := validateSymbols(in.Outcomes)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !in.CloseTime.After(now) {
		return nil, ErrInvalidCloseTime
	}
	b := in.Liquidity
	if b == 0 {
		b = s.params.DefaultLiquidity
	}
	if b <= 0 {
		return nil, ErrInvalidLiquidity
	}

	m := &Market{
		Name:        in.Name,
		Question:    in.Question,
		CreatorID:   userID,
		B:           b,
		Status:      StatusOpen,
		WhenCreated: now,
		WhenCloses:  in.CloseTime.UTC(),
	}
	err = s.store.InTx(ctx, func(tx Tx) error {
		switch _, err := tx.MarketByName(in.Name); {
		case err == nil:
			return fmt.Errorf("%s: %w", in.Name, ErrDuplicateMarket)
		case !errors.Is(err, ErrMarketNotFound):
			return err
		}
		return tx.CreateMarket(m, symbols)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("market created", "market", m.Name, "creator", userID, "outcomes", len(symbols), "b", b, "closes", m.WhenCloses)
	return m, nil
}

// Buy spends up to the given budget on one outcome. The exact share
// count comes from inverting the cost function; the realized cost is
// always at most the budget (within the documented slack) and is what
// gets debited, not the budget itself.
func (s *Service) Buy(ctx context.Context, userID, marketName, symbol string, spend float64) (*BuyResult, error) {
	if spend <= 0 {
		return nil, ErrInvalidSpend
	}
	now := s.now()
	var out *BuyResult
	err := s.store.InTx(ctx, func(tx Tx) error {
		m, outcomes, idx, err := s.tradableOutcome(tx, marketName, symbol, now)
		if err != nil {
			return err
		}
		cyc, err := s.ensureCycle(tx, now)
		if err != nil {
			return err
		}
		acct, err := s.ensureAccount(tx, cyc, userID, now)
		if err != nil {
			return err
		}
		// Fail fast before the search; the realized cost is re-checked
		// after it.
		if acct.Balance < spend {
			return fmt.Errorf("%w: %.2f < %.2f", ErrInsufficientBalance, acct.Balance, spend)
		}
		out, err = s.executeBuy(tx, cyc, acct, m, outcomes, idx, spend)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("buy executed", "user", userID, "market", out.Market, "outcome", out.Outcome,
		"shares", out.Shares, "cost", out.Cost, "price", out.NewPrice)
	return out, nil
}

// Sell disposes of shares the user holds, refunding the closed-form
// cost difference.
func (s *Service) Sell(ctx context.Context, userID, marketName, symbol string, shares float64) (*SellResult, error) {
	if shares <= 0 {
		return nil, ErrInvalidShares
	}
	now := s.now()
	var out *SellResult
	err := s.store.InTx(ctx, func(tx Tx) error {
		m, outcomes, idx, err := s.tradableOutcome(tx, marketName, symbol, now)
		if err != nil {
			return err
		}
		cyc, err := s.ensureCycle(tx, now)
		if err != nil {
			return err
		}
		acct, err := s.ensureAccount(tx, cyc, userID, now)
		if err != nil {
			return err
		}
		out, err = s.executeSell(tx, cyc, acct, m, outcomes, idx, shares)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("sell executed", "user", userID, "market", out.Market, "outcome", out.Outcome,
		"shares", out.Shares, "refund", out.Refund, "price", out.NewPrice)
	return out, nil
}

// Resolve settles an open market on the winning outcome, paying every
// holder one unit of account per share. Settlement is deliberately
// decoupled from pricing: the payout is flat, not cost-function
// derived. Creator-only.
func (s *Service) Resolve(ctx context.Context, userID, marketName, winningSymbol string) (*ResolveResult, error) {
	now := s.now()
	var out *ResolveResult
	err := s.store.InTx(ctx, func(tx Tx) error {
		m, err := tx.MarketByName(marketName)
		if err != nil {
			return err
		}
		switch m.Status {
		case StatusResolved:
			return fmt.Errorf("market %s: %w", m.Name, ErrAlreadyResolved)
		case StatusCancelled:
			return fmt.Errorf("market %s: %w", m.Name, ErrMarketCancelled)
		}
		if m.CreatorID != userID {
			return fmt.Errorf("%w (creator is %s)", ErrNotCreator, m.CreatorID)
		}

		outcomes, err := tx.Outcomes(m.ID)
		if err != nil {
			return err
		}
		idx := outcomeIndex(outcomes, winningSymbol)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownOutcome, winningSymbol)
		}
		winning := outcomes[idx]

		cyc, err := s.ensureCycle(tx, now)
		if err != nil {
			return err
		}
		positions, err := tx.PositionsByOutcome(m.ID, winning.ID)
		if err != nil {
			return err
		}
		paid := 0
		total := 0.0
		for _, p := range positions {
			if p.Shares <= 0 {
				continue
			}
			acct, err := s.ensureAccount(tx, cyc, p.UserID, now)
			if err != nil {
				return err
			}
			acct.Balance += p.Shares
			if err := tx.UpdateAccount(acct); err != nil {
				return err
			}
			paid++
			total += p.Shares
		}

		when := now
		m.Status = StatusResolved
		m.ResolvedOutcomeID = &winning.ID
		m.WhenResolved = &when
		if err := tx.UpdateMarket(m); err != nil {
			return err
		}
		out = &ResolveResult{Market: m.Name, Outcome: winning.Symbol, PayoutCount: paid, PayoutTotal: total}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("market resolved", "market", out.Market, "outcome", out.Outcome, "payouts", out.PayoutCount, "total", out.PayoutTotal)
	return out, nil
}

// Cancel terminates an open market without any payout: open positions
// forfeit their implied value and remain as history. Creator-only.
func (s *Service) Cancel(ctx context.Context, userID, marketName string) error {
	now := s.now()
	err := s.store.InTx(ctx, func(tx Tx) error {
		m, err := tx.MarketByName(marketName)
		if err != nil {
			return err
		}
		if m.Status == StatusCancelled {
			return fmt.Errorf("market %s: %w", m.Name, ErrAlreadyCancelled)
		}
		if m.Status == StatusResolved {
			return fmt.Errorf("market %s: %w", m.Name, ErrAlreadyResolved)
		}
		if m.CreatorID != userID {
			return fmt.Errorf("%w (creator is %s)", ErrNotCreator, m.CreatorID)
		}
		when := now
		m.Status = StatusCancelled
		m.WhenCancelled = &when
		return tx.UpdateMarket(m)
	})
	if err != nil {
		return err
	}
	s.log.Info("market cancelled", "market", marketName, "by", userID)
	return nil
}

// Board returns a market's outcomes with implied probabilities and the
// requesting user's holdings.
func (s *Service) Board(ctx context.Context, userID, marketName string) (*Board, error) {
	now := s.now()
	var out *Board
	err := s.store.InTx(ctx, func(tx Tx) error {
		m, err := tx.MarketByName(marketName)
		if err != nil {
			return err
		}
		outcomes, err := tx.Outcomes(m.ID)
		if err != nil {
			return err
		}
		prices := lmsr.Prices(quantities(outcomes), m.B)
		views := make([]OutcomeView, len(outcomes))
		for i, o := range outcomes {
			views[i] = OutcomeView{Symbol: o.Symbol, Q: o.Q, Price: prices[i]}
			if userID != "" {
				pos, err := tx.Position(userID, m.ID, o.ID)
				if err != nil {
					return err
				}
				if pos != nil {
					views[i].Shares = pos.Shares
				}
			}
		}
		out = &Board{
			Name:       m.Name,
			Question:   m.Question,
			Status:     m.Status,
			CreatorID:  m.CreatorID,
			WhenCloses: m.WhenCloses,
			Closed:     m.ClosedForTrading(now),
			Outcomes:   views,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OpenMarkets lists markets still accepting trades, newest first.
func (s *Service) OpenMarkets(ctx context.Context) ([]*Market, error) {
	var out []*Market
	err := s.store.InTx(ctx, func(tx Tx) error {
		ms, err := tx.OpenMarkets(s.now())
		if err != nil {
			return err
		}
		out = ms
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Balance reports the user's standing in the current cycle, lazily
// initializing the account and applying any due top-up.
func (s *Service) Balance(ctx context.Context, userID string) (*Statement, error) {
	now := s.now()
	var out *Statement
	err := s.store.InTx(ctx, func(tx Tx) error {
		cyc, err := s.ensureCycle(tx, now)
		if err != nil {
			return err
		}
		acct, err := s.ensureAccount(tx, cyc, userID, now)
		if err != nil {
			return err
		}
		out = &Statement{CycleKey: cyc.Key, Balance: acct.Balance, BetCount: acct.BetCount}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Leaderboard shows the current cycle's top ten balances with the
// running median bet count and eligibility markers.
func (s *Service) Leaderboard(ctx context.Context) (*Leaderboard, error) {
	now := s.now()
	var out *Leaderboard
	err := s.store.InTx(ctx, func(tx Tx) error {
		cyc, err := s.ensureCycle(tx, now)
		if err != nil {
			return err
		}
		accounts, err := tx.AccountsByCycle(cyc.ID)
		if err != nil {
			return err
		}
		counts := make([]int, len(accounts))
		for i, a := range accounts {
			counts[i] = a.BetCount
		}
		med := medianBets(counts)
		out = &Leaderboard{
			CycleKey:   cyc.Key,
			MedianBets: med,
			Entries:    rankAccounts(accounts, med, 10),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// tradableOutcome loads a market, checks it is open for trading, and
// locates the requested outcome.
func (s *Service) tradableOutcome(tx Tx, marketName, symbol string, now time.Time) (*Market, []*Outcome, int, error) {
	m, err := tx.MarketByName(marketName)
	if err != nil {
		return nil, nil, 0, err
	}
	if m.ClosedForTrading(now) {
		return nil, nil, 0, fmt.Errorf("market %s: %w", m.Name, ErrMarketClosed)
	}
	outcomes, err := tx.Outcomes(m.ID)
	if err != nil {
		return nil, nil, 0, err
	}
	if len(outcomes) < 2 {
		return nil, nil, 0, fmt.Errorf("market %s: %w", m.Name, ErrTooFewOutcomes)
	}
	idx := outcomeIndex(outcomes, symbol)
	if idx < 0 {
		return nil, nil, 0, fmt.Errorf("%w: %s (available: %s)", ErrUnknownOutcome, symbol, symbolList(outcomes))
	}
	return m, outcomes, idx, nil
}

func (s *Service) appendTrade(tx Tx, cyc *Cycle, userID string, marketID, outcomeID int64, side string, shares, amount float64) error {
	return tx.AppendTrade(&Trade{
		ID:        uuid.NewString(),
		CycleID:   cyc.ID,
		UserID:    userID,
		MarketID:  marketID,
		OutcomeID: outcomeID,
		Side:      side,
		Shares:    shares,
		Amount:    amount,
		At:        s.now(),
	})
}

func symbolList(outcomes []*Outcome) string {
	s := ""
	for i, o := range outcomes {
		if i > 0 {
			s += ", "
		}
		s += o.Symbol
	}
	return s
}
