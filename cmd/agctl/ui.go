package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"agora/internal/engine"
	"agora/internal/history"
	"agora/internal/ledger"
	"agora/internal/market"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

type marketsPayload struct {
	Markets []engine.MarketView `json:"markets"`
}

type historyPayload struct {
	History []history.Bucket `json:"history"`
}

type accountPayload struct {
	Owner        string               `json:"owner"`
	Balances     []ledger.Balance     `json:"balances"`
	Transactions []ledger.Transaction `json:"transactions"`
}

func printWarn(msg string) {
	warn.Println(msg)
}

func promptConfirm(label string) (bool, error) {
	fmt.Printf("%s (y/N): ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return false, err
	}
	text = strings.ToLower(strings.TrimSpace(text))
	return text == "y" || text == "yes", nil
}

func parseQuantity(arg string) (int64, error) {
	v, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || v < 1 || v > market.MaxTradeQuantity {
		return 0, fmt.Errorf("quantity must be a whole number between 1 and %d", market.MaxTradeQuantity)
	}
	return v, nil
}

// observedLevel pulls the quoted price level out of a quote payload so the
// execute call can echo it back.
func observedLevel(raw map[string]any) (int64, error) {
	q, err := decodeInto[engine.QuoteResult](raw)
	if err != nil {
		return 0, err
	}
	return q.ObservedPriceLevel, nil
}

func renderMarketsList(raw map[string]any) error {
	payload, err := decodeInto[marketsPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== MARKETS ==")
	if len(payload.Markets) == 0 {
		neutral.Println("No markets found.")
		return nil
	}
	fmt.Printf("%-28s %-12s %8s %10s %10s %10s\n", "MARKET", "REGION", "LEVEL", "PROGRESS", "BUY", "SELL")
	for _, m := range payload.Markets {
		fmt.Printf("%-28s %-12s %8d %6d/%-4d %10s %10s\n",
			truncate(m.ID, 28),
			truncate(m.Region, 12),
			m.PriceLevel,
			m.Progress, m.VolumePerLevel,
			m.BuyPrice.StringFixed(2),
			m.SellPrice.StringFixed(2),
		)
	}
	fmt.Println()
	return nil
}

func renderMarketDetail(raw map[string]any) error {
	d, err := decodeInto[engine.MarketDetail](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== %s ==\n", d.ID)
	fmt.Printf("Region:      %s\n", d.Region)
	fmt.Printf("Price level: %d (progress %d/%d)\n", d.PriceLevel, d.Progress, d.VolumePerLevel)
	fmt.Printf("Buy:         %s\n", d.BuyPrice.StringFixed(2))
	fmt.Printf("Sell:        %s\n", d.SellPrice.StringFixed(2))
	fmt.Printf("Change:      %s (%s%%)\n", colorizeAmount(d.Change.Amount), d.Change.Percent.StringFixed(2))

	if len(d.History) > 0 {
		fmt.Println()
		accent.Println("Recent Days")
		renderBuckets(d.History, 8)
	}
	fmt.Println()
	return nil
}

func renderQuote(raw map[string]any) error {
	q, err := decodeInto[engine.QuoteResult](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== QUOTE %s %s ==\n", strings.ToUpper(q.Side), q.MarketID)
	fmt.Printf("%-10s %12s %14s\n", "UNITS", "UNIT PRICE", "SUBTOTAL")
	for _, seg := range q.Breakdown {
		sub := seg.UnitPrice.Mul(decimal.NewFromInt(seg.Quantity))
		fmt.Printf("%-10d %12s %14s\n", seg.Quantity, seg.UnitPrice.StringFixed(2), sub.StringFixed(2))
	}
	fmt.Printf("Total:      %s\n", q.Total.StringFixed(2))
	fmt.Printf("Avg price:  %s\n", q.AverageUnitPrice.StringFixed(4))
	fmt.Printf("Price level:%d\n", q.ObservedPriceLevel)
	fmt.Println()
	return nil
}

func renderExecuteResult(raw map[string]any) error {
	out, err := decodeInto[engine.ExecuteResult](raw)
	if err != nil {
		return err
	}
	success.Printf("\n== TRADE SETTLED (%s) ==\n", out.TradeID)
	fmt.Printf("Market:     %s\n", out.MarketID)
	fmt.Printf("Side:       %s\n", strings.ToUpper(out.Side))
	fmt.Printf("Total:      %s\n", out.Total.StringFixed(2))
	fmt.Printf("Avg price:  %s\n", out.AverageUnitPrice.StringFixed(4))
	fmt.Printf("New level:  %d (progress %d)\n", out.NewPriceLevel, out.NewProgress)
	fmt.Printf("Balance:    %s %s\n", out.Receipt.BalanceAfter.StringFixed(2), out.Receipt.Account.Scope)
	fmt.Println()
	return nil
}

func renderHistory(raw map[string]any, marketID string) error {
	payload, err := decodeInto[historyPayload](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== HISTORY %s ==\n", marketID)
	if len(payload.History) == 0 {
		neutral.Println("No history recorded yet.")
		return nil
	}
	renderBuckets(payload.History, len(payload.History))
	fmt.Println()
	return nil
}

func renderBuckets(buckets []history.Bucket, limit int) {
	fmt.Printf("%-12s %10s %10s %10s %10s\n", "DAY", "OPEN", "HIGH", "LOW", "CLOSE")
	start := 0
	if len(buckets) > limit {
		start = len(buckets) - limit
	}
	for _, b := range buckets[start:] {
		fmt.Printf("%-12s %10s %10s %10s %10s\n",
			b.Day.Format(time.DateOnly),
			b.Open.StringFixed(2),
			b.High.StringFixed(2),
			b.Low.StringFixed(2),
			b.Close.StringFixed(2),
		)
	}
}

func renderAccount(raw map[string]any) error {
	payload, err := decodeInto[accountPayload](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== ACCOUNT %s ==\n", payload.Owner)
	if len(payload.Balances) == 0 {
		neutral.Println("No balances.")
	} else {
		fmt.Printf("%-16s %18s\n", "SCOPE", "BALANCE")
		for _, b := range payload.Balances {
			fmt.Printf("%-16s %18s\n", b.Scope, b.Amount.StringFixed(2))
		}
	}

	if len(payload.Transactions) > 0 {
		fmt.Println()
		accent.Println("Recent Transactions")
		fmt.Printf("%-20s %-16s %14s %14s %-24s\n", "TIME", "SCOPE", "AMOUNT", "AFTER", "REASON")
		for _, t := range payload.Transactions {
			fmt.Printf("%-20s %-16s %14s %14s %-24s\n",
				t.CreatedAt.Local().Format("2006-01-02 15:04"),
				t.Account.Scope,
				colorizeAmount(t.Amount),
				t.BalanceAfter.StringFixed(2),
				truncate(t.Reason, 24),
			)
		}
	}
	fmt.Println()
	return nil
}

func renderReceipt(raw map[string]any) error {
	r, err := decodeInto[ledger.Receipt](raw)
	if err != nil {
		return err
	}
	success.Println("\n== TRANSFER COMPLETE ==")
	fmt.Printf("From:    %s (%s)\n", r.Account.Owner, r.Account.Scope)
	fmt.Printf("Amount:  %s\n", colorizeAmount(r.Amount))
	fmt.Printf("Balance: %s\n", r.BalanceAfter.StringFixed(2))
	fmt.Println()
	return nil
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func colorizeAmount(v decimal.Decimal) string {
	text := v.StringFixed(2)
	switch {
	case v.IsPositive():
		return success.Sprint("+" + text)
	case v.IsNegative():
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
