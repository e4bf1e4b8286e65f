package market

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestQuoteBuyAcrossLevels(t *testing.T) {
	// 50 units left at level 0 (11.00 each), the remaining 50 fill at level 1
	// (10.10 * 1.10 = 11.11 each). Total 50*11.00 + 50*11.11 = 1105.50.
	s := snap(t, "10.00", 0, 150, 200, "0.10", SpreadFor("grain"))

	q, err := QuoteBuy(s, 100)
	if err != nil {
		t.Fatalf("quote buy: %v", err)
	}
	if len(q.Breakdown) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(q.Breakdown))
	}
	if q.Breakdown[0].Quantity != 50 || !q.Breakdown[0].UnitPrice.Equal(decimal.RequireFromString("11.00")) {
		t.Fatalf("segment 0 = %d @ %s", q.Breakdown[0].Quantity, q.Breakdown[0].UnitPrice)
	}
	if q.Breakdown[1].Quantity != 50 || !q.Breakdown[1].UnitPrice.Equal(decimal.RequireFromString("11.11")) {
		t.Fatalf("segment 1 = %d @ %s", q.Breakdown[1].Quantity, q.Breakdown[1].UnitPrice)
	}
	if !q.Total.Equal(decimal.RequireFromString("1105.50")) {
		t.Fatalf("total got %s want 1105.50", q.Total)
	}
	if q.ResultingLevel != 1 || q.ResultingProgress != 50 {
		t.Fatalf("resulting state = (%d, %d), want (1, 50)", q.ResultingLevel, q.ResultingProgress)
	}
}

func TestQuoteSellAcrossLevels(t *testing.T) {
	// 51 units sell at level 1 (9.09), crossing down reseeds progress to 199,
	// then 49 more sell at level 0 (9.00).
	s := snap(t, "10.00", 1, 50, 200, "0.10", SpreadFor("grain"))

	q, err := QuoteSell(s, 100)
	if err != nil {
		t.Fatalf("quote sell: %v", err)
	}
	if len(q.Breakdown) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(q.Breakdown))
	}
	if q.Breakdown[0].Quantity != 51 || !q.Breakdown[0].UnitPrice.Equal(decimal.RequireFromString("9.09")) {
		t.Fatalf("segment 0 = %d @ %s", q.Breakdown[0].Quantity, q.Breakdown[0].UnitPrice)
	}
	if q.Breakdown[1].Quantity != 49 || !q.Breakdown[1].UnitPrice.Equal(decimal.RequireFromString("9.00")) {
		t.Fatalf("segment 1 = %d @ %s", q.Breakdown[1].Quantity, q.Breakdown[1].UnitPrice)
	}
	want := decimal.RequireFromString("9.09").Mul(decimal.NewFromInt(51)).
		Add(decimal.RequireFromString("9.00").Mul(decimal.NewFromInt(49)))
	if !q.Total.Equal(want) {
		t.Fatalf("total got %s want %s", q.Total, want)
	}
	if q.ResultingLevel != 0 || q.ResultingProgress != 150 {
		t.Fatalf("resulting state = (%d, %d), want (0, 150)", q.ResultingLevel, q.ResultingProgress)
	}
}

func TestQuoteInvariants(t *testing.T) {
	s := snap(t, "5.00", 2, 37, 120, "0.25", SpreadFor("grain"))

	for _, qty := range []int64{1, 83, 120, 997} {
		q, err := QuoteBuy(s, qty)
		if err != nil {
			t.Fatalf("qty %d: %v", qty, err)
		}
		if q.Quantity() != qty {
			t.Fatalf("qty %d: breakdown sums to %d", qty, q.Quantity())
		}
		sum := decimal.Zero
		for _, seg := range q.Breakdown {
			sum = sum.Add(seg.UnitPrice.Mul(decimal.NewFromInt(seg.Quantity)))
		}
		if !sum.Equal(q.Total) {
			t.Fatalf("qty %d: segment sum %s != total %s", qty, sum, q.Total)
		}
		if q.ResultingProgress < 0 || q.ResultingProgress >= s.VolumePerLevel {
			t.Fatalf("qty %d: progress %d outside [0,%d)", qty, q.ResultingProgress, s.VolumePerLevel)
		}
		if q.ResultingLevel < s.PriceLevel {
			t.Fatalf("qty %d: buy decreased level to %d", qty, q.ResultingLevel)
		}
	}

	for _, qty := range []int64{1, 38, 500} {
		q, err := QuoteSell(s, qty)
		if err != nil {
			t.Fatalf("sell qty %d: %v", qty, err)
		}
		if q.Quantity() != qty {
			t.Fatalf("sell qty %d: breakdown sums to %d", qty, q.Quantity())
		}
		if q.ResultingProgress < 0 || q.ResultingProgress >= s.VolumePerLevel {
			t.Fatalf("sell qty %d: progress %d outside [0,%d)", qty, q.ResultingProgress, s.VolumePerLevel)
		}
		if q.ResultingLevel > s.PriceLevel {
			t.Fatalf("sell qty %d: sell increased level to %d", qty, q.ResultingLevel)
		}
	}
}

func TestQuoteDeterminism(t *testing.T) {
	s := snap(t, "10.00", 0, 150, 200, "0.10", SpreadFor("grain"))
	a, err := QuoteBuy(s, 777)
	if err != nil {
		t.Fatalf("first quote: %v", err)
	}
	b, err := QuoteBuy(s, 777)
	if err != nil {
		t.Fatalf("second quote: %v", err)
	}
	if !a.Total.Equal(b.Total) || a.ResultingLevel != b.ResultingLevel || a.ResultingProgress != b.ResultingProgress {
		t.Fatalf("quotes diverged: %+v vs %+v", a, b)
	}
	if len(a.Breakdown) != len(b.Breakdown) {
		t.Fatalf("breakdown lengths diverged")
	}
	for i := range a.Breakdown {
		if a.Breakdown[i] != b.Breakdown[i] && !(a.Breakdown[i].Quantity == b.Breakdown[i].Quantity && a.Breakdown[i].UnitPrice.Equal(b.Breakdown[i].UnitPrice)) {
			t.Fatalf("segment %d diverged", i)
		}
	}
}

func TestSellReseedsProgressOnLevelDown(t *testing.T) {
	// Selling exactly progress+1 units steps the level down and reseeds
	// progress to volume-1, not 0. Up-steps and down-steps are therefore not
	// mirror images of each other.
	s := snap(t, "10.00", 3, 10, 200, "0.10", SpreadFor("grain"))
	q, err := QuoteSell(s, 11)
	if err != nil {
		t.Fatalf("quote sell: %v", err)
	}
	if q.ResultingLevel != 2 || q.ResultingProgress != 199 {
		t.Fatalf("resulting state = (%d, %d), want (2, 199)", q.ResultingLevel, q.ResultingProgress)
	}
}

func TestBuySellRoundTripFollowsPlusOneRule(t *testing.T) {
	// A buy/sell round trip traverses different per-level price paths: the
	// buy crosses up after volume-progress units, the sell crosses down after
	// progress+1. Verify the exact state the +1 rule dictates at each step.
	s := snap(t, "10.00", 0, 150, 200, "0.10", SpreadFor("grain"))

	buy, err := QuoteBuy(s, 100)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	after := s
	after.PriceLevel = buy.ResultingLevel
	after.Progress = buy.ResultingProgress

	sell, err := QuoteSell(after, 100)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	// First sell segment must cover progress+1 = 51 units before the level
	// drops, not the 50 units the buy spent at level 1.
	if sell.Breakdown[0].Quantity != 51 {
		t.Fatalf("first sell segment = %d units, want 51", sell.Breakdown[0].Quantity)
	}
	if sell.ResultingLevel != 0 || sell.ResultingProgress != 150 {
		t.Fatalf("round trip ended at (%d, %d)", sell.ResultingLevel, sell.ResultingProgress)
	}
	// And the money legs are asymmetric: proceeds never equal cost.
	if sell.Total.GreaterThanOrEqual(buy.Total) {
		t.Fatalf("sell proceeds %s should be below buy cost %s", sell.Total, buy.Total)
	}
}

func TestQuoteRejectsInvalidQuantity(t *testing.T) {
	s := snap(t, "10.00", 0, 0, 200, "0.10", SpreadFor("grain"))
	for _, qty := range []int64{0, -5, MaxTradeQuantity + 1} {
		if _, err := QuoteBuy(s, qty); err != ErrInvalidAmount {
			t.Fatalf("buy qty %d: expected ErrInvalidAmount, got %v", qty, err)
		}
		if _, err := QuoteSell(s, qty); err != ErrInvalidAmount {
			t.Fatalf("sell qty %d: expected ErrInvalidAmount, got %v", qty, err)
		}
	}
}

func TestAverageUnitPrice(t *testing.T) {
	s := snap(t, "10.00", 0, 150, 200, "0.10", SpreadFor("grain"))
	q, err := QuoteBuy(s, 100)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	// 1105.50 / 100 = 11.055
	if got := q.AverageUnitPrice(); !got.Equal(decimal.RequireFromString("11.055")) {
		t.Fatalf("average got %s want 11.055", got)
	}
}

func TestGoldMarketSpreadRounding(t *testing.T) {
	// Gold exchange uses a 5% spread: rate 100.00 -> buy 105.00, sell 95.00.
	s := Snapshot{
		ID:                 ID(GoldGoodID, 0, "pannonia"),
		GoodID:             GoldGoodID,
		Region:             "pannonia",
		InitialPrice:       decimal.RequireFromString("100.00"),
		PriceLevel:         0,
		Progress:           0,
		VolumePerLevel:     1000,
		AdjustmentPerLevel: decimal.RequireFromString("1.00"),
		Spread:             SpreadFor(GoldGoodID),
	}
	if !s.IsCurrency() {
		t.Fatalf("expected currency market")
	}
	if got := s.BuyUnitPrice(); !got.Equal(decimal.RequireFromString("105.00")) {
		t.Fatalf("gold buy got %s want 105.00", got)
	}
	if got := s.SellUnitPrice(); !got.Equal(decimal.RequireFromString("95.00")) {
		t.Fatalf("gold sell got %s want 95.00", got)
	}
}
