package market

import (
	"testing"

	"github.com/shopspring/decimal"
)

func snap(t *testing.T, initial string, level, progress, volume int64, adjustment string, spread decimal.Decimal) Snapshot {
	t.Helper()
	return Snapshot{
		ID:                 ID("grain", 1, "pannonia"),
		GoodID:             "grain",
		Quality:            1,
		Region:             "pannonia",
		InitialPrice:       decimal.RequireFromString(initial),
		PriceLevel:         level,
		Progress:           progress,
		VolumePerLevel:     volume,
		AdjustmentPerLevel: decimal.RequireFromString(adjustment),
		Spread:             spread,
	}
}

func TestID(t *testing.T) {
	if got := ID("grain", 1, "pannonia"); got != "grain:q1:pannonia" {
		t.Fatalf("unexpected id %q", got)
	}
	if got := ID(GoldGoodID, 0, "noricum"); got != "gold:q0:noricum" {
		t.Fatalf("unexpected id %q", got)
	}
}

func TestSpreadFor(t *testing.T) {
	if !SpreadFor("grain").Equal(decimal.RequireFromString("0.10")) {
		t.Fatalf("resource spread: got %s", SpreadFor("grain"))
	}
	if !SpreadFor(GoldGoodID).Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("currency spread: got %s", SpreadFor(GoldGoodID))
	}
}

func TestBasePriceFormula(t *testing.T) {
	tests := []struct {
		name    string
		initial string
		level   int64
		adj     string
		want    string
	}{
		{"level zero", "10.00", 0, "0.10", "10"},
		{"positive level", "10.00", 5, "0.10", "10.5"},
		{"negative level", "10.00", -3, "0.10", "9.7"},
		{"floored at minimum", "10.00", -200, "0.10", "0.01"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := snap(t, tc.initial, tc.level, 0, 200, tc.adj, SpreadFor("grain"))
			if got := s.BasePrice(); !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("base price got %s want %s", got, tc.want)
			}
		})
	}
}

func TestBuySellUnitPrices(t *testing.T) {
	s := snap(t, "10.00", 0, 0, 200, "0.10", SpreadFor("grain"))
	if got := s.BuyUnitPrice(); !got.Equal(decimal.RequireFromString("11.00")) {
		t.Fatalf("buy price got %s want 11.00", got)
	}
	if got := s.SellUnitPrice(); !got.Equal(decimal.RequireFromString("9.00")) {
		t.Fatalf("sell price got %s want 9.00", got)
	}

	// 10.10 * 1.10 = 11.11 exactly, 10.10 * 0.90 = 9.09 exactly.
	s.PriceLevel = 1
	if got := s.BuyUnitPrice(); !got.Equal(decimal.RequireFromString("11.11")) {
		t.Fatalf("buy price at level 1 got %s want 11.11", got)
	}
	if got := s.SellUnitPrice(); !got.Equal(decimal.RequireFromString("9.09")) {
		t.Fatalf("sell price at level 1 got %s want 9.09", got)
	}
}

func TestBuyRoundsUpSellRoundsDown(t *testing.T) {
	// Base 10.03: buy = 11.033 -> 11.04 (up), sell = 9.027 -> 9.02 (down).
	s := snap(t, "10.03", 0, 0, 200, "0.10", SpreadFor("grain"))
	if got := s.BuyUnitPrice(); !got.Equal(decimal.RequireFromString("11.04")) {
		t.Fatalf("buy rounding got %s want 11.04", got)
	}
	if got := s.SellUnitPrice(); !got.Equal(decimal.RequireFromString("9.02")) {
		t.Fatalf("sell rounding got %s want 9.02", got)
	}
}

func TestPriceFloorsAtDeepNegativeLevels(t *testing.T) {
	s := snap(t, "10.00", -5000, 0, 200, "0.10", SpreadFor("grain"))
	if got := s.SellUnitPrice(); !got.Equal(MinPrice) {
		t.Fatalf("sell floor got %s want %s", got, MinPrice)
	}
	// Buy price never collapses onto the sell floor.
	if got := s.BuyUnitPrice(); !got.Equal(decimal.RequireFromString("0.02")) {
		t.Fatalf("buy floor got %s want 0.02", got)
	}
}

func TestLevelTransitionThresholds(t *testing.T) {
	s := snap(t, "10.00", 0, 150, 200, "0.10", SpreadFor("grain"))
	if got := s.UnitsToNextLevelUp(); got != 50 {
		t.Fatalf("units to next level up got %d want 50", got)
	}
	if got := s.UnitsToLevelDown(); got != 151 {
		t.Fatalf("units to level down got %d want 151", got)
	}
}

func TestSnapshotValidate(t *testing.T) {
	valid := snap(t, "10.00", 0, 0, 200, "0.10", SpreadFor("grain"))
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid snapshot: %v", err)
	}

	bad := valid
	bad.VolumePerLevel = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected zero volume to fail")
	}

	bad = valid
	bad.Progress = 200
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected out-of-range progress to fail")
	}

	bad = valid
	bad.AdjustmentPerLevel = decimal.RequireFromString("-0.10")
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected negative adjustment to fail")
	}
}
