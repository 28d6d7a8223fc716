package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "predictions/internal/cli"
	"predictions/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "predict",
		Short:        "Play-money prediction market client",
		SilenceUsage: true,
	}

	root.AddCommand(
		newWhoamiCmd(),
		newListCmd(&apiBase),
		newShowCmd(&apiBase),
		newCreateCmd(&apiBase),
		newBuyCmd(&apiBase),
		newSellCmd(&apiBase),
		newBalanceCmd(&apiBase),
		newLeaderboardCmd(&apiBase),
		newResolveCmd(&apiBase),
		newCancelCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func newWhoamiCmd() *cobra.Command {
	var set string
	var clear bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show or set the local identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clear {
				if err := cl.ClearIdentity(); err != nil {
					return err
				}
				printInfo("identity cleared")
				return nil
			}
			if set != "" {
				if err := cl.SaveIdentity(cl.Identity{User: set}); err != nil {
					return err
				}
				printSuccess("identity saved: " + set)
				return nil
			}
			id, err := cl.LoadIdentity()
			if err != nil {
				return err
			}
			printInfo(id.User)
			return nil
		},
	}
	cmd.Flags().StringVar(&set, "set", "", "set the identity name")
	cmd.Flags().BoolVar(&clear, "clear", false, "forget the stored identity")
	return cmd
}

func newListCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List open markets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).ListMarkets(ctx)
			if err != nil {
				return err
			}
			renderMarkets(out)
			return nil
		},
	}
}

func newShowCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <market-name>",
		Short: "Show a market board and your position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := currentUserOrEmpty()
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Board(ctx, user, args[0])
			if err != nil {
				return err
			}
			renderBoard(out)
			return nil
		},
	}
}

func newCreateCmd(apiBase *string) *cobra.Command {
	var question string
	var closeIn time.Duration
	var liquidity float64
	cmd := &cobra.Command{
		Use:   "create <market-name> <outcomes-csv>",
		Short: "Create a market",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := currentUser()
			if err != nil {
				return err
			}
			var outcomes []string
			for _, s := range strings.Split(args[1], ",") {
				if s = strings.TrimSpace(s); s != "" {
					outcomes = append(outcomes, s)
				}
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).CreateMarket(ctx, user, args[0], question, outcomes, time.Now().Add(closeIn), liquidity)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("created market %v, trading locks %v", out["name"], out["when_closes"]))
			return nil
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q", "", "the question the market answers")
	cmd.Flags().DurationVar(&closeIn, "close-in", 48*time.Hour, "how long trading stays open")
	cmd.Flags().Float64Var(&liquidity, "liquidity", 0, "LMSR b parameter (0 uses the server default)")
	return cmd
}

func newBuyCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "buy <market-name> <outcome> <spend>",
		Short: "Spend play money on an outcome",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := currentUser()
			if err != nil {
				return err
			}
			spend, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid spend %q", args[2])
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Buy(ctx, user, args[0], args[1], spend)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("bought %.2f %v for %.2f, new price %.2f%%, balance %.2f",
				num(out["shares"]), out["outcome"], num(out["cost"]), num(out["new_price"])*100, num(out["balance"])))
			return nil
		},
	}
}

func newSellCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sell <market-name> <outcome> <shares>",
		Short: "Sell shares back to the market",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := currentUser()
			if err != nil {
				return err
			}
			shares, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid shares %q", args[2])
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Sell(ctx, user, args[0], args[1], shares)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("sold %.2f %v for %.2f, new price %.2f%%, balance %.2f",
				num(out["shares"]), out["outcome"], num(out["refund"]), num(out["new_price"])*100, num(out["balance"])))
			return nil
		},
	}
}

func newBalanceCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show your balance in the current cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := currentUser()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Balance(ctx, user)
			if err != nil {
				return err
			}
			printInfo(fmt.Sprintf("cycle %v: balance %.2f, %d bets",
				out["cycle_key"], num(out["balance"]), int(num(out["bet_count"]))))
			return nil
		},
	}
}

func newLeaderboardCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the current cycle standings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Leaderboard(ctx)
			if err != nil {
				return err
			}
			renderLeaderboard(out)
			return nil
		},
	}
}

func newResolveCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <market-name> <outcome>",
		Short: "Resolve a market you created",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := currentUser()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Resolve(ctx, user, args[0], args[1])
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("resolved %v as %v, paid %d holder(s) %.2f total",
				out["market"], out["outcome"], int(num(out["payout_count"])), num(out["payout_total"])))
			return nil
		},
	}
}

func newCancelCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <market-name>",
		Short: "Cancel a market you created (no payout)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := currentUser()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			if _, err := newClient(apiBase).Cancel(ctx, user, args[0]); err != nil {
				return err
			}
			printWarn("market cancelled, positions are void")
			return nil
		},
	}
}

func currentUser() (string, error) {
	id, err := cl.LoadIdentity()
	if err != nil {
		return "", err
	}
	return id.User, nil
}

func currentUserOrEmpty() string {
	id, err := cl.LoadIdentity()
	if err != nil {
		return ""
	}
	return id.User
}
