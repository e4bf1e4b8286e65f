package engine

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"agora/internal/history"
	"agora/internal/ledger"
	"agora/internal/market"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

var (
	ErrMarketNotFound = errors.New("market not found")
	ErrStalePrice     = errors.New("price level moved since quote")
	ErrUnknownSide    = errors.New("side must be buy or sell")
	ErrOwnerRequired  = errors.New("owner is required")
	ErrTxConflict     = errors.New("transaction conflict, retry")
)

// QuoteInput identifies a simulated trade.
type QuoteInput struct {
	MarketID string
	Side     string
	Quantity int64
}

// QuoteResult carries the simulated breakdown plus the price level it was
// computed against, which the client echoes back on execute.
type QuoteResult struct {
	MarketID           string           `json:"market_id"`
	Side               string           `json:"side"`
	Breakdown          []market.Segment `json:"breakdown"`
	Total              decimal.Decimal  `json:"total"`
	AverageUnitPrice   decimal.Decimal  `json:"average_unit_price"`
	ObservedPriceLevel int64            `json:"observed_price_level"`
}

// ExecuteInput is a confirmed trade. ObservedPriceLevel is the level the
// caller quoted against; execution fails with ErrStalePrice if the market
// has moved past it.
type ExecuteInput struct {
	MarketID           string
	Side               string
	Quantity           int64
	ObservedPriceLevel int64
	Owner              string
}

// ExecuteResult reports the settled trade.
type ExecuteResult struct {
	TradeID          string           `json:"trade_id"`
	MarketID         string           `json:"market_id"`
	Side             string           `json:"side"`
	Breakdown        []market.Segment `json:"breakdown"`
	Total            decimal.Decimal  `json:"total"`
	AverageUnitPrice decimal.Decimal  `json:"average_unit_price"`
	NewPriceLevel    int64            `json:"new_price_level"`
	NewProgress      int64            `json:"new_progress"`
	Receipt          ledger.Receipt   `json:"receipt"`
}

// MarketView is a market row with its current quoted prices.
type MarketView struct {
	market.Snapshot
	BuyPrice  decimal.Decimal `json:"buy_price"`
	SellPrice decimal.Decimal `json:"sell_price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// MarketDetail adds chart history and the day-over-day movement.
type MarketDetail struct {
	MarketView
	History []history.Bucket `json:"history"`
	Change  history.Change   `json:"change"`
}

// leg is one ledger movement of a trade. Legs are sorted by account before
// execution so concurrent trades lock rows in one global order.
type leg struct {
	account ledger.AccountID
	amount  decimal.Decimal
	debit   bool
}

func sortLegs(legs []leg) {
	for i := 1; i < len(legs); i++ {
		for j := i; j > 0 && legs[j].account.Less(legs[j-1].account); j-- {
			legs[j], legs[j-1] = legs[j-1], legs[j]
		}
	}
}
