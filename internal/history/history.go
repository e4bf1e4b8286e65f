// Package history maintains daily OHLC price buckets per market, one row per
// (market, day), folded in place as trades execute.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Bucket is one day of price history for a market.
type Bucket struct {
	MarketID string          `json:"market_id"`
	Day      time.Time       `json:"day"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
}

// Change compares two closes: today's against the previous day's.
type Change struct {
	Amount    decimal.Decimal `json:"amount"`
	Percent   decimal.Decimal `json:"percent"`
	Direction string          `json:"direction"` // "up", "down", or "flat"
}

// Fold merges a new trade price into an existing bucket. Open never moves;
// high and low widen; close always tracks the latest price.
func Fold(b Bucket, price decimal.Decimal) Bucket {
	if price.GreaterThan(b.High) {
		b.High = price
	}
	if price.LessThan(b.Low) {
		b.Low = price
	}
	b.Close = price
	return b
}

// NewBucket opens a day's bucket at a single price.
func NewBucket(marketID string, day time.Time, price decimal.Decimal) Bucket {
	return Bucket{MarketID: marketID, Day: day, Open: price, High: price, Low: price, Close: price}
}

// ChangeBetween computes the day-over-day movement. A zero or missing
// previous close yields a flat change to avoid dividing by zero.
func ChangeBetween(previous, current decimal.Decimal) Change {
	c := Change{Amount: current.Sub(previous), Direction: "flat"}
	if previous.IsPositive() {
		c.Percent = c.Amount.Div(previous).Mul(decimal.NewFromInt(100)).Round(2)
	}
	switch {
	case c.Amount.IsPositive():
		c.Direction = "up"
	case c.Amount.IsNegative():
		c.Direction = "down"
	}
	return c
}

// Day truncates t to its UTC date.
func Day(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

type Recorder struct {
	db *pgxpool.Pool
}

func NewRecorder(db *pgxpool.Pool) *Recorder {
	return &Recorder{db: db}
}

// RecordTx folds price into the market's bucket for day, creating the bucket
// on first trade. Runs inside the caller's transaction; the existing row is
// locked so concurrent trades fold sequentially.
func RecordTx(ctx context.Context, tx pgx.Tx, marketID string, day time.Time, price decimal.Decimal) error {
	var high, low string
	err := tx.QueryRow(ctx, `
		SELECT high::text, low::text
		FROM price_history
		WHERE market_id = $1 AND day = $2
		FOR UPDATE
	`, marketID, day).Scan(&high, &low)
	if err == pgx.ErrNoRows {
		_, err = tx.Exec(ctx, `
			INSERT INTO price_history (market_id, day, open, high, low, close)
			VALUES ($1, $2, $3::numeric, $3::numeric, $3::numeric, $3::numeric)
			ON CONFLICT (market_id, day) DO NOTHING
		`, marketID, day, price.String())
		return err
	}
	if err != nil {
		return err
	}

	h, err := decimal.NewFromString(high)
	if err != nil {
		return fmt.Errorf("decode high: %w", err)
	}
	l, err := decimal.NewFromString(low)
	if err != nil {
		return fmt.Errorf("decode low: %w", err)
	}
	folded := Fold(Bucket{High: h, Low: l}, price)

	_, err = tx.Exec(ctx, `
		UPDATE price_history
		SET high = $1::numeric, low = $2::numeric, close = $3::numeric
		WHERE market_id = $4 AND day = $5
	`, folded.High.String(), folded.Low.String(), folded.Close.String(), marketID, day)
	return err
}

// Range returns up to days of history for a market, oldest first.
func (r *Recorder) Range(ctx context.Context, marketID string, days int) ([]Bucket, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	rows, err := r.db.Query(ctx, `
		SELECT market_id, day, open::text, high::text, low::text, close::text
		FROM price_history
		WHERE market_id = $1 AND day >= $2
		ORDER BY day ASC
	`, marketID, Day(time.Now()).AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bucket
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// LatestChange compares the two most recent closes for a market.
func (r *Recorder) LatestChange(ctx context.Context, marketID string) (Change, error) {
	rows, err := r.db.Query(ctx, `
		SELECT close::text
		FROM price_history
		WHERE market_id = $1
		ORDER BY day DESC
		LIMIT 2
	`, marketID)
	if err != nil {
		return Change{}, err
	}
	defer rows.Close()

	var closes []decimal.Decimal
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return Change{}, err
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return Change{}, fmt.Errorf("decode close: %w", err)
		}
		closes = append(closes, d)
	}
	if err := rows.Err(); err != nil {
		return Change{}, err
	}
	if len(closes) < 2 {
		return Change{Direction: "flat"}, nil
	}
	return ChangeBetween(closes[1], closes[0]), nil
}

// SeedDay inserts today's bucket for every market at its current sell price
// if no bucket exists yet. The worker runs this once per interval so charts
// have a point even on days without trades.
func (r *Recorder) SeedDay(ctx context.Context, day time.Time, prices map[string]decimal.Decimal) (int64, error) {
	var seeded int64
	for marketID, price := range prices {
		tag, err := r.db.Exec(ctx, `
			INSERT INTO price_history (market_id, day, open, high, low, close)
			VALUES ($1, $2, $3::numeric, $3::numeric, $3::numeric, $3::numeric)
			ON CONFLICT (market_id, day) DO NOTHING
		`, marketID, day, price.String())
		if err != nil {
			return seeded, fmt.Errorf("seed %s: %w", marketID, err)
		}
		seeded += tag.RowsAffected()
	}
	return seeded, nil
}

func scanBucket(rows pgx.Rows) (Bucket, error) {
	var b Bucket
	var o, h, l, c string
	if err := rows.Scan(&b.MarketID, &b.Day, &o, &h, &l, &c); err != nil {
		return Bucket{}, err
	}
	var err error
	if b.Open, err = decimal.NewFromString(o); err != nil {
		return Bucket{}, fmt.Errorf("decode open: %w", err)
	}
	if b.High, err = decimal.NewFromString(h); err != nil {
		return Bucket{}, fmt.Errorf("decode high: %w", err)
	}
	if b.Low, err = decimal.NewFromString(l); err != nil {
		return Bucket{}, fmt.Errorf("decode low: %w", err)
	}
	if b.Close, err = decimal.NewFromString(c); err != nil {
		return Bucket{}, fmt.Errorf("decode close: %w", err)
	}
	return b, nil
}
