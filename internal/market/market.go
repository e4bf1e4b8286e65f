// Package market holds the discrete price-level model: a market snapshot,
// its derived buy/sell prices, and the pure trade calculator that walks a
// requested quantity across levels.
package market

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// GoldGoodID marks the currency-exchange market family (gold against a
	// region's local currency). Everything else is a resource market.
	GoldGoodID = "gold"

	// MaxTradeQuantity caps a single quote or execution. Larger requests are
	// rejected so a thin market cannot be asked to price an absurd traversal.
	MaxTradeQuantity = int64(999_999)
)

var (
	// MinPrice is the floor for any tradable unit price.
	MinPrice = decimal.RequireFromString("0.01")

	oneCent = decimal.RequireFromString("0.01")
	one     = decimal.NewFromInt(1)

	resourceSpread = decimal.RequireFromString("0.10")
	currencySpread = decimal.RequireFromString("0.05")
)

var (
	ErrInvalidAmount = errors.New("quantity must be between 1 and 999999")
	ErrBadDefinition = errors.New("market definition is invalid")
)

// Snapshot is one market row, immutable for the duration of a calculation.
// InitialPrice is already quality-adjusted for this row's quality tier.
type Snapshot struct {
	ID                 string          `json:"id"`
	GoodID             string          `json:"good_id"`
	Quality            int             `json:"quality"`
	Region             string          `json:"region"`
	InitialPrice       decimal.Decimal `json:"initial_price"`
	PriceLevel         int64           `json:"price_level"`
	Progress           int64           `json:"progress"`
	VolumePerLevel     int64           `json:"volume_per_level"`
	AdjustmentPerLevel decimal.Decimal `json:"adjustment_per_level"`
	Spread             decimal.Decimal `json:"spread"`
}

// ID builds the canonical market identifier for a (good, quality, region)
// triple, e.g. "grain:q1:pannonia" or "gold:q0:pannonia".
func ID(goodID string, quality int, region string) string {
	return fmt.Sprintf("%s:q%d:%s", goodID, quality, region)
}

// SpreadFor returns the spread percentage for a good: 5% on the gold
// exchange, 10% on resource markets.
func SpreadFor(goodID string) decimal.Decimal {
	if goodID == GoldGoodID {
		return currencySpread
	}
	return resourceSpread
}

// IsCurrency reports whether this market trades gold against local currency.
func (s Snapshot) IsCurrency() bool {
	return s.GoodID == GoldGoodID
}

// Validate checks the structural invariants a snapshot must satisfy before
// any price math is run against it.
func (s Snapshot) Validate() error {
	if s.VolumePerLevel <= 0 {
		return fmt.Errorf("%w: volume per level must be > 0, got %d", ErrBadDefinition, s.VolumePerLevel)
	}
	if s.Progress < 0 || s.Progress >= s.VolumePerLevel {
		return fmt.Errorf("%w: progress %d outside [0,%d)", ErrBadDefinition, s.Progress, s.VolumePerLevel)
	}
	if s.AdjustmentPerLevel.IsNegative() {
		return fmt.Errorf("%w: negative adjustment per level", ErrBadDefinition)
	}
	if !s.InitialPrice.IsPositive() {
		return fmt.Errorf("%w: initial price must be positive", ErrBadDefinition)
	}
	return nil
}

// BasePrice is the theoretical unit price at the current level, floored at
// MinPrice. Deep negative levels cannot push it below the floor.
func (s Snapshot) BasePrice() decimal.Decimal {
	p := s.InitialPrice.Add(decimal.NewFromInt(s.PriceLevel).Mul(s.AdjustmentPerLevel))
	if p.LessThan(MinPrice) {
		return MinPrice
	}
	return p
}

// BuyUnitPrice is what a buyer pays per unit: base plus spread, rounded up
// to the cent, and never below MinPrice + one cent.
func (s Snapshot) BuyUnitPrice() decimal.Decimal {
	p := s.BasePrice().Mul(one.Add(s.Spread)).RoundCeil(2)
	floor := MinPrice.Add(oneCent)
	if p.LessThan(floor) {
		return floor
	}
	return p
}

// SellUnitPrice is what a seller receives per unit: base minus spread,
// rounded down to the cent, and never below MinPrice.
func (s Snapshot) SellUnitPrice() decimal.Decimal {
	p := s.BasePrice().Mul(one.Sub(s.Spread)).RoundFloor(2)
	if p.LessThan(MinPrice) {
		return MinPrice
	}
	return p
}

// UnitsToNextLevelUp is how many units can still be bought at the current
// level before the price steps up.
func (s Snapshot) UnitsToNextLevelUp() int64 {
	return s.VolumePerLevel - s.Progress
}

// UnitsToLevelDown is how many units must be sold to step the price down.
// The +1 is deliberate: selling one more unit than the current progress
// triggers the decrement, and a down-step reseeds progress to
// VolumePerLevel-1 rather than 0, so up and down steps are not inverses.
func (s Snapshot) UnitsToLevelDown() int64 {
	return s.Progress + 1
}
