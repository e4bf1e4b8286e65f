package market

import "github.com/shopspring/decimal"

// Segment is one run of units priced identically within a quote.
type Segment struct {
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Quote is the ephemeral result of simulating a trade against a snapshot.
// It is not authoritative once the underlying market row mutates.
type Quote struct {
	Breakdown         []Segment       `json:"breakdown"`
	Total             decimal.Decimal `json:"total"`
	ResultingLevel    int64           `json:"resulting_price_level"`
	ResultingProgress int64           `json:"resulting_progress"`
}

// Quantity is the number of units covered by the quote.
func (q Quote) Quantity() int64 {
	var n int64
	for _, seg := range q.Breakdown {
		n += seg.Quantity
	}
	return n
}

// AverageUnitPrice is total divided by quantity, quantized to four decimal
// places. This is the price recorded into the OHLC history for the trade.
func (q Quote) AverageUnitPrice() decimal.Decimal {
	n := q.Quantity()
	if n == 0 {
		return decimal.Zero
	}
	return q.Total.Div(decimal.NewFromInt(n)).Round(4)
}

// QuoteBuy simulates buying quantity units. Each iteration consumes as many
// units as the current level has room for, at that level's buy price; when a
// level fills, the simulated level increments and progress resets to zero.
// Pure: calling it twice on the same snapshot yields identical quotes.
func QuoteBuy(s Snapshot, quantity int64) (Quote, error) {
	if quantity <= 0 || quantity > MaxTradeQuantity {
		return Quote{}, ErrInvalidAmount
	}
	if err := s.Validate(); err != nil {
		return Quote{}, err
	}

	sim := s
	q := Quote{Total: decimal.Zero}
	remaining := quantity
	for remaining > 0 {
		price := sim.BuyUnitPrice()
		room := sim.UnitsToNextLevelUp()
		take := min(remaining, room)
		q.Breakdown = append(q.Breakdown, Segment{Quantity: take, UnitPrice: price})
		q.Total = q.Total.Add(price.Mul(decimal.NewFromInt(take)))
		remaining -= take
		if take == room {
			sim.PriceLevel++
			sim.Progress = 0
		} else {
			sim.Progress += take
		}
	}
	q.ResultingLevel = sim.PriceLevel
	q.ResultingProgress = sim.Progress
	return q, nil
}

// QuoteSell mirrors QuoteBuy for the sell side. The per-level room is
// progress+1; exhausting it decrements the level and reseeds progress to
// VolumePerLevel-1.
func QuoteSell(s Snapshot, quantity int64) (Quote, error) {
	if quantity <= 0 || quantity > MaxTradeQuantity {
		return Quote{}, ErrInvalidAmount
	}
	if err := s.Validate(); err != nil {
		return Quote{}, err
	}

	sim := s
	q := Quote{Total: decimal.Zero}
	remaining := quantity
	for remaining > 0 {
		price := sim.SellUnitPrice()
		room := sim.UnitsToLevelDown()
		take := min(remaining, room)
		q.Breakdown = append(q.Breakdown, Segment{Quantity: take, UnitPrice: price})
		q.Total = q.Total.Add(price.Mul(decimal.NewFromInt(take)))
		remaining -= take
		if take == room {
			sim.PriceLevel--
			sim.Progress = sim.VolumePerLevel - 1
		} else {
			sim.Progress -= take
		}
	}
	q.ResultingLevel = sim.PriceLevel
	q.ResultingProgress = sim.Progress
	return q, nil
}
