package bot

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"predictions/internal/market"
)

// defaultLock is how long before the event trading stops when the
// creator does not say otherwise.
const defaultLock = 10 * time.Minute

func (b *Bot) cmdHelp(ctx context.Context, userID string, args []string) (string, error) {
	p := b.prefix
	return strings.Join([]string{
		p + " list",
		p + " show <market-name>",
		p + ` create <market-name> "<question>" <event-time> [lock] <outcomes-csv>`,
		"  - event-time examples: 2026-01-13T10:00:00Z, \"2026-01-13 10:00\", +48h",
		"  - lock examples: 15m, 2h, 1d (defaults to " + defaultLock.String() + ")",
		"  - outcomes-csv examples: ARS,LIV,DRAW or TEAM_A,TEAM_B",
		p + " buy <market-name> <outcome> <spend>",
		p + " sell <market-name> <outcome> <shares>",
		p + " balance",
		p + " leaderboard",
		p + " resolve <market-name> <outcome>",
		p + " cancel <market-name>",
	}, "\n"), nil
}

func (b *Bot) cmdList(ctx context.Context, userID string, args []string) (string, error) {
	ms, err := b.engine.OpenMarkets(ctx)
	if err != nil {
		return "", err
	}
	if len(ms) == 0 {
		return "no active markets", nil
	}
	var sb strings.Builder
	for _, m := range ms {
		fmt.Fprintf(&sb, "%s\n", m.Name)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (b *Bot) cmdShow(ctx context.Context, userID string, args []string) (string, error) {
	if len(args) != 1 {
		return "", usageError{"show <market-name>"}
	}
	board, err := b.engine.Board(ctx, userID, args[0])
	if err != nil {
		return "", err
	}
	return renderBoard(board), nil
}

func (b *Bot) cmdCreate(ctx context.Context, userID string, args []string) (string, error) {
	usage := usageError{`create <market-name> "<question>" <event-time> [lock] <outcomes-csv>`}
	if len(args) != 4 && len(args) != 5 {
		return "", usage
	}
	name, question, eventSpec := args[0], args[1], args[2]
	lock := defaultLock
	outcomesCSV := args[len(args)-1]
	if len(args) == 5 {
		d, err := parseLockDuration(args[3])
		if err != nil {
			return "", err
		}
		lock = d
	}

	eventTime, err := parseEventTime(eventSpec, time.Now())
	if err != nil {
		return "", err
	}

	var symbols []string
	for _, s := range strings.Split(outcomesCSV, ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}

	m, err := b.engine.CreateMarket(ctx, userID, market.CreateMarketInput{
		Name:      name,
		Question:  question,
		Outcomes:  symbols,
		CloseTime: eventTime.Add(-lock),
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created market %s. Trading locks %s",
		m.Name, m.WhenCloses.Format("2006-01-02 15:04 MST")), nil
}

func (b *Bot) cmdBuy(ctx context.Context, userID string, args []string) (string, error) {
	if len(args) != 3 {
		return "", usageError{"buy <market-name> <outcome> <spend>"}
	}
	spend, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return "", fmt.Errorf("invalid amount: %s", args[2])
	}
	res, err := b.engine.Buy(ctx, userID, args[0], args[1], spend)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Bought %.2f %s for %.2f. New price %.2f%%. Balance %.2f",
		res.Shares, res.Outcome, res.Cost, res.NewPrice*100, res.Balance), nil
}

func (b *Bot) cmdSell(ctx context.Context, userID string, args []string) (string, error) {
	if len(args) != 3 {
		return "", usageError{"sell <market-name> <outcome> <shares>"}
	}
	shares, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return "", fmt.Errorf("invalid amount: %s", args[2])
	}
	res, err := b.engine.Sell(ctx, userID, args[0], args[1], shares)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Sold %.2f %s for %.2f. New price %.2f%%. Balance %.2f",
		res.Shares, res.Outcome, res.Refund, res.NewPrice*100, res.Balance), nil
}

func (b *Bot) cmdBalance(ctx context.Context, userID string, args []string) (string, error) {
	st, err := b.engine.Balance(ctx, userID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Cycle %s: balance %.2f, %d bets", st.CycleKey, st.Balance, st.BetCount), nil
}

func (b *Bot) cmdLeaderboard(ctx context.Context, userID string, args []string) (string, error) {
	lb, err := b.engine.Leaderboard(ctx)
	if err != nil {
		return "", err
	}
	if len(lb.Entries) == 0 {
		return "no accounts yet this cycle", nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Cycle %s (median bets: %d)\n", lb.CycleKey, lb.MedianBets)
	for _, e := range lb.Entries {
		mark := ""
		if e.Eligible {
			mark = " ✅"
		}
		fmt.Fprintf(&sb, "%d. <@%s> %.2f (%d bets)%s\n", e.Rank, e.UserID, e.Balance, e.BetCount, mark)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (b *Bot) cmdResolve(ctx context.Context, userID string, args []string) (string, error) {
	if len(args) != 2 {
		return "", usageError{"resolve <market-name> <outcome>"}
	}
	res, err := b.engine.Resolve(ctx, userID, args[0], args[1])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Resolved %s as %s. Paid %d holder(s) %.2f total.",
		res.Market, res.Outcome, res.PayoutCount, res.PayoutTotal), nil
}

func (b *Bot) cmdCancel(ctx context.Context, userID string, args []string) (string, error) {
	if len(args) != 1 {
		return "", usageError{"cancel <market-name>"}
	}
	if err := b.engine.Cancel(ctx, userID, args[0]); err != nil {
		return "", err
	}
	return fmt.Sprintf("Cancelled market %s. Positions are void.", args[0]), nil
}

func renderBoard(board *market.Board) string {
	status := "Open"
	switch board.Status {
	case market.StatusResolved:
		status = "Resolved"
	case market.StatusCancelled:
		status = "Cancelled"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\nStatus: %s\nCloses %s\n",
		board.Question, status, board.WhenCloses.Format("2006-01-02 15:04 MST"))
	for _, o := range board.Outcomes {
		fmt.Fprintf(&sb, "%s: %.2f%%\n", o.Symbol, o.Price*100)
	}
	var held []string
	for _, o := range board.Outcomes {
		if o.Shares > 0 {
			held = append(held, fmt.Sprintf("%s shares: %.2f", o.Symbol, o.Shares))
		}
	}
	if len(held) > 0 {
		sb.WriteString("\nYour position:\n" + strings.Join(held, "\n"))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// parseLockDuration reads lock windows like "15m", "2h" or "1d".
func parseLockDuration(s string) (time.Duration, error) {
	m := lockRE.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return 0, fmt.Errorf("lock must look like 15m, 2h, or 1d (got %q)", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("lock must look like 15m, 2h, or 1d (got %q)", s)
	}
	switch m[2] {
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	default:
		return time.Duration(n) * 24 * time.Hour, nil
	}
}

var lockRE = regexp.MustCompile(`^(\d+)\s*([mhd])$`)

// parseEventTime accepts an absolute RFC 3339 timestamp, a
// "2006-01-02 15:04" local-style timestamp (read as UTC), or a
// relative "+48h" offset from now.
func parseEventTime(spec string, now time.Time) (time.Time, error) {
	if strings.HasPrefix(spec, "+") {
		d, err := time.ParseDuration(strings.TrimPrefix(spec, "+"))
		if err != nil {
			return time.Time{}, fmt.Errorf("bad event time %q", spec)
		}
		return now.Add(d), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, spec); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad event time %q (try 2026-01-13T10:00:00Z or +48h)", spec)
}
