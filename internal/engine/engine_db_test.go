package engine

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"agora/internal/db"
	"agora/internal/history"
	"agora/internal/ledger"
	"agora/internal/market"
)

// testExecutor connects to the database named by DATABASE_URL, or skips the
// test when none is configured.
func testExecutor(t *testing.T) (*Executor, *ledger.Service, context.Context) {
	t.Helper()
	url := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, url, db.Limits{MaxConns: 4})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := db.EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return NewExecutor(pool, history.NewRecorder(pool), nil), ledger.NewService(pool, nil), ctx
}

// seedTestMarket creates a fresh grain market in a throwaway region so runs
// never collide with each other or with seeded catalog rows.
func seedTestMarket(t *testing.T, ctx context.Context, exec *Executor) market.Snapshot {
	t.Helper()
	region := "it-" + uuid.NewString()[:8]
	s := market.Snapshot{
		ID:                 market.ID("grain", 1, region),
		GoodID:             "grain",
		Quality:            1,
		Region:             region,
		InitialPrice:       decimal.RequireFromString("10.00"),
		VolumePerLevel:     200,
		AdjustmentPerLevel: decimal.RequireFromString("0.10"),
		Spread:             market.SpreadFor("grain"),
	}
	if _, err := exec.SeedMarkets(ctx, []market.Snapshot{s}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func TestExecuteStalePriceLeavesStateUntouched(t *testing.T) {
	exec, svc, ctx := testExecutor(t)
	s := seedTestMarket(t, ctx, exec)
	owner := "it-" + uuid.NewString()
	acct := ledger.AccountID{Owner: owner, Scope: ledger.RegionScope(s.Region)}

	if _, err := svc.Credit(ctx, acct, decimal.RequireFromString("1000.00"), "funding"); err != nil {
		t.Fatalf("credit: %v", err)
	}

	// The market sits at level 0; echoing a different level must fail.
	_, err := exec.Execute(ctx, ExecuteInput{
		MarketID:           s.ID,
		Side:               SideBuy,
		Quantity:           10,
		ObservedPriceLevel: 3,
		Owner:              owner,
	})
	if !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}

	d, err := exec.Detail(ctx, s.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if d.PriceLevel != 0 || d.Progress != 0 {
		t.Fatalf("market moved on rejected trade: level=%d progress=%d", d.PriceLevel, d.Progress)
	}
	if len(d.History) != 0 {
		t.Fatalf("rejected trade must record no history: %+v", d.History)
	}

	balances, err := svc.Balances(ctx, owner)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if len(balances) != 1 || !balances[0].Amount.Equal(decimal.RequireFromString("1000.00")) {
		t.Fatalf("balance moved on rejected trade: %+v", balances)
	}
	txs, err := svc.RecentTransactions(ctx, owner, 10)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txs) != 1 || txs[0].Reason != "funding" {
		t.Fatalf("rejected trade must not append log rows: %+v", txs)
	}
}

func TestExecuteInsufficientFundsLeavesStateUntouched(t *testing.T) {
	exec, svc, ctx := testExecutor(t)
	s := seedTestMarket(t, ctx, exec)
	owner := "it-" + uuid.NewString()

	// Never funded, so the debit leg fails and the whole trade rolls back.
	_, err := exec.Execute(ctx, ExecuteInput{
		MarketID:           s.ID,
		Side:               SideBuy,
		Quantity:           10,
		ObservedPriceLevel: 0,
		Owner:              owner,
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	d, err := exec.Detail(ctx, s.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if d.PriceLevel != 0 || d.Progress != 0 {
		t.Fatalf("market moved on failed trade: level=%d progress=%d", d.PriceLevel, d.Progress)
	}
	if len(d.History) != 0 {
		t.Fatalf("failed trade must record no history: %+v", d.History)
	}

	txs, err := svc.RecentTransactions(ctx, owner, 10)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("failed trade must leave the log empty: %+v", txs)
	}
}
