package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	cl "agora/internal/cli"
	"agora/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "agctl",
		Short:        "Agora market admin client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newMarketsCmd(&apiBase),
		newMarketCmd(&apiBase),
		newQuoteCmd(&apiBase),
		newTradeCmd(&apiBase),
		newHistoryCmd(&apiBase),
		newAccountCmd(&apiBase),
		newTransferCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func cmdContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func newMarketsCmd(apiBase *string) *cobra.Command {
	var region string
	cmd := &cobra.Command{
		Use:   "markets",
		Short: "List markets with current prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).ListMarkets(ctx, region)
			if err != nil {
				return err
			}
			return renderMarketsList(out)
		},
	}
	cmd.Flags().StringVar(&region, "region", "", "filter by region")
	return cmd
}

func newMarketCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "market <id>",
		Short: "Show one market with history and price change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).MarketDetail(ctx, args[0])
			if err != nil {
				return err
			}
			return renderMarketDetail(out)
		},
	}
}

func newQuoteCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "quote <market> <buy|sell> <quantity>",
		Short: "Simulate a trade without executing it",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, err := parseQuantity(args[2])
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Quote(ctx, args[0], strings.ToLower(args[1]), quantity)
			if err != nil {
				return err
			}
			return renderQuote(out)
		},
	}
}

func newTradeCmd(apiBase *string) *cobra.Command {
	var owner string
	var yes bool
	cmd := &cobra.Command{
		Use:   "trade <market> <buy|sell> <quantity>",
		Short: "Quote a trade, confirm it, then execute at the quoted level",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(owner) == "" {
				return fmt.Errorf("--owner is required")
			}
			quantity, err := parseQuantity(args[2])
			if err != nil {
				return err
			}
			side := strings.ToLower(args[1])

			ctx, cancel := cmdContext(cmd)
			defer cancel()
			client := newClient(apiBase)

			quote, err := client.Quote(ctx, args[0], side, quantity)
			if err != nil {
				return err
			}
			if err := renderQuote(quote); err != nil {
				return err
			}
			if !yes {
				ok, err := promptConfirm("Execute this trade")
				if err != nil {
					return err
				}
				if !ok {
					printWarn("Trade cancelled.")
					return nil
				}
			}

			level, err := observedLevel(quote)
			if err != nil {
				return err
			}
			out, err := client.Execute(ctx, args[0], side, quantity, level, owner)
			if err != nil {
				return err
			}
			return renderExecuteResult(out)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "account owner executing the trade")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newHistoryCmd(apiBase *string) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "history <market>",
		Short: "Show daily OHLC history for a market",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).History(ctx, args[0], days)
			if err != nil {
				return err
			}
			return renderHistory(out, args[0])
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "number of days to show")
	return cmd
}

func newAccountCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "account <owner>",
		Short: "Show balances and recent transactions for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Account(ctx, args[0])
			if err != nil {
				return err
			}
			return renderAccount(out)
		},
	}
}

func newTransferCmd(apiBase *string) *cobra.Command {
	var scope, reason string
	cmd := &cobra.Command{
		Use:   "transfer <from> <to> <amount>",
		Short: "Move funds between two owners in the same scope",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Transfer(ctx, args[0], args[1], scope, args[2], reason)
			if err != nil {
				return err
			}
			return renderReceipt(out)
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "gold", "currency scope (gold or cc:<region>)")
	cmd.Flags().StringVar(&reason, "reason", "transfer", "transaction log reason")
	return cmd
}
