package market

import (
	"errors"
	"regexp"
	"strings"
)

// Market lifecycle states. open -> resolved and open -> cancelled are
// the only transitions; both targets are terminal.
const (
	StatusOpen      = "open"
	StatusResolved  = "resolved"
	StatusCancelled = "cancelled"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"

	// minTradeShares is the floor below which a located buy size is
	// rejected as degenerate rather than executed.
	minTradeShares = 1e-8

	// costSlack is the relative overshoot tolerated between the
	// realized cost and the requested spend.
	costSlack = 0.01

	// balanceSlack absorbs float drift when re-checking the balance
	// against the realized cost.
	balanceSlack = 1e-6

	// searchIterations bounds the bisection when inverting the cost
	// function; searchCap bounds the bracket expansion so a nearly
	// flat cost function cannot loop forever.
	searchIterations = 60
	searchCap        = 1e12
)

var (
	// Validation.
	ErrInvalidSpend     = errors.New("spend must be > 0")
	ErrInvalidShares    = errors.New("shares must be > 0")
	ErrInvalidName      = errors.New("market name must be 1-64 characters without spaces")
	ErrInvalidSymbol    = errors.New("outcome symbol must be 1-32 characters without spaces or commas")
	ErrInvalidCloseTime = errors.New("market close time must be in the future")
	ErrInvalidLiquidity = errors.New("liquidity parameter must be > 0")
	ErrTooFewOutcomes   = errors.New("market needs at least 2 outcomes")
	ErrDuplicateOutcome = errors.New("outcome symbols must be unique within a market")
	ErrDuplicateMarket  = errors.New("a market with that name already exists")

	// State conflicts.
	ErrMarketNotFound        = errors.New("unknown market")
	ErrUnknownOutcome        = errors.New("unknown outcome")
	ErrMarketClosed          = errors.New("market is closed to trading")
	ErrAlreadyResolved       = errors.New("market is already resolved")
	ErrMarketCancelled       = errors.New("market was cancelled")
	ErrAlreadyCancelled      = errors.New("market was already cancelled")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientShares    = errors.New("not enough shares to sell")
	ErrInsufficientLiquidity = errors.New("market has insufficient outstanding shares to absorb that sale")
	ErrCycleClosed           = errors.New("cycle is already closed")
	ErrCycleNotFound         = errors.New("unknown cycle")

	// Numerical instability, distinct from user error so operators can
	// spot a misconfigured liquidity parameter.
	ErrTradeTooSmall    = errors.New("trade size below minimum")
	ErrTradeCalculation = errors.New("trade calculation failed")
	ErrMarketIlliquid   = errors.New("market invalid or illiquid: cannot compute trade costs")

	// Authorization.
	ErrNotCreator = errors.New("only the market creator may do that")
)

var (
	nameRE   = regexp.MustCompile(`^\S{1,64}$`)
	symbolRE = regexp.MustCompile(`^[^\s,]{1,32}$`)
)

// NormalizeSymbol maps an outcome symbol to its canonical uppercase
// form; outcome lookups are case-insensitive.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func validateName(name string) error {
	if !nameRE.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

func validateSymbols(symbols []string) ([]string, error) {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		sym := NormalizeSymbol(s)
		if sym == "" {
			continue
		}
		if !symbolRE.MatchString(sym) {
			return nil, ErrInvalidSymbol
		}
		if seen[sym] {
			return nil, ErrDuplicateOutcome
		}
		seen[sym] = true
		out = append(out, sym)
	}
	if len(out) < 2 {
		return nil, ErrTooFewOutcomes
	}
	return out, nil
}
