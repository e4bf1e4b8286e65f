// Package engine orchestrates trades: it quotes against a market snapshot,
// then executes the confirmed trade atomically with the ledger legs, the
// market state write, and the price-history fold in one transaction.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"agora/internal/history"
	"agora/internal/ledger"
	"agora/internal/market"
)

type Executor struct {
	db       *pgxpool.Pool
	log      *slog.Logger
	recorder *history.Recorder
}

func NewExecutor(db *pgxpool.Pool, recorder *history.Recorder, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{db: db, log: logger, recorder: recorder}
}

// Quote simulates a trade against the current market state without locking
// anything. The returned ObservedPriceLevel is the optimistic token the
// client must echo on Execute.
func (e *Executor) Quote(ctx context.Context, in QuoteInput) (QuoteResult, error) {
	if in.Side != SideBuy && in.Side != SideSell {
		return QuoteResult{}, ErrUnknownSide
	}
	snap, err := e.loadSnapshot(ctx, in.MarketID)
	if err != nil {
		return QuoteResult{}, err
	}
	q, err := runCalculator(snap, in.Side, in.Quantity)
	if err != nil {
		return QuoteResult{}, err
	}
	return QuoteResult{
		MarketID:           snap.ID,
		Side:               in.Side,
		Breakdown:          q.Breakdown,
		Total:              q.Total,
		AverageUnitPrice:   q.AverageUnitPrice(),
		ObservedPriceLevel: snap.PriceLevel,
	}, nil
}

// Execute settles a trade. The market row is re-read under a row lock and the
// calculator re-run on authoritative state; if the price level moved past the
// observed one the trade fails with ErrStalePrice and the caller re-quotes.
// Serialization conflicts are retried with backoff.
func (e *Executor) Execute(ctx context.Context, in ExecuteInput) (ExecuteResult, error) {
	var out ExecuteResult
	if in.Side != SideBuy && in.Side != SideSell {
		return out, ErrUnknownSide
	}
	if in.Owner == "" {
		return out, ErrOwnerRequired
	}

	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := e.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return out, err
		}
		err = func() error {
			defer tx.Rollback(ctx)

			snap, err := lockSnapshot(ctx, tx, in.MarketID)
			if err != nil {
				return err
			}
			if snap.PriceLevel != in.ObservedPriceLevel {
				return ErrStalePrice
			}

			q, err := runCalculator(snap, in.Side, in.Quantity)
			if err != nil {
				return err
			}

			legs, err := tradeLegs(snap, in.Side, in.Owner, q)
			if err != nil {
				return err
			}
			sortLegs(legs)
			reason := tradeReason(in.Side, snap.ID)
			receipt, err := applyLegs(ctx, tx, legs, reason, snap.Region)
			if err != nil {
				return err
			}

			if _, err := tx.Exec(ctx, `
				UPDATE markets
				SET price_level = $1, progress = $2, updated_at = now()
				WHERE id = $3
			`, q.ResultingLevel, q.ResultingProgress, snap.ID); err != nil {
				return err
			}

			if err := history.RecordTx(ctx, tx, snap.ID, history.Day(time.Now()), q.AverageUnitPrice()); err != nil {
				return err
			}

			out = ExecuteResult{
				TradeID:          uuid.NewString(),
				MarketID:         snap.ID,
				Side:             in.Side,
				Breakdown:        q.Breakdown,
				Total:            q.Total,
				AverageUnitPrice: q.AverageUnitPrice(),
				NewPriceLevel:    q.ResultingLevel,
				NewProgress:      q.ResultingProgress,
				Receipt:          receipt,
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			e.log.Info("trade settled",
				"trade_id", out.TradeID,
				"market_id", out.MarketID,
				"side", out.Side,
				"quantity", in.Quantity,
				"total", out.Total.String(),
				"price_level", out.NewPriceLevel,
			)
			return out, nil
		}
		if !isRetryable(err) {
			return out, err
		}
		if attempt == maxAttempts-1 {
			return out, ErrTxConflict
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return out, err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return out, ErrTxConflict
}

// ListMarkets returns every market, optionally filtered by region, with
// current buy and sell prices.
func (e *Executor) ListMarkets(ctx context.Context, region string) ([]MarketView, error) {
	query := `
		SELECT id, good_id, quality, region, initial_price::text,
		       price_level, progress, volume_per_level, adjustment::text, updated_at
		FROM markets
	`
	args := []any{}
	if region != "" {
		query += ` WHERE region = $1`
		args = append(args, region)
	}
	query += ` ORDER BY id`

	rows, err := e.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MarketView
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Detail is a single market with 30 days of history and its latest
// day-over-day change.
func (e *Executor) Detail(ctx context.Context, marketID string) (MarketDetail, error) {
	snap, updatedAt, err := e.loadSnapshotAt(ctx, marketID)
	if err != nil {
		return MarketDetail{}, err
	}
	d := MarketDetail{MarketView: viewOf(snap, updatedAt)}
	if d.History, err = e.recorder.Range(ctx, marketID, 30); err != nil {
		return MarketDetail{}, err
	}
	if d.Change, err = e.recorder.LatestChange(ctx, marketID); err != nil {
		return MarketDetail{}, err
	}
	return d, nil
}

// SeedMarkets inserts missing market rows at level 0, progress 0. Existing
// rows are left alone, so reseeding a running system is safe.
func (e *Executor) SeedMarkets(ctx context.Context, snaps []market.Snapshot) (int64, error) {
	var seeded int64
	for _, s := range snaps {
		if err := s.Validate(); err != nil {
			return seeded, fmt.Errorf("seed %s: %w", s.ID, err)
		}
		tag, err := e.db.Exec(ctx, `
			INSERT INTO markets (id, good_id, quality, region, initial_price, price_level, progress, volume_per_level, adjustment)
			VALUES ($1, $2, $3, $4, $5::numeric, 0, 0, $6, $7::numeric)
			ON CONFLICT (id) DO NOTHING
		`, s.ID, s.GoodID, s.Quality, s.Region, s.InitialPrice.String(), s.VolumePerLevel, s.AdjustmentPerLevel.String())
		if err != nil {
			return seeded, fmt.Errorf("seed %s: %w", s.ID, err)
		}
		seeded += tag.RowsAffected()
	}
	return seeded, nil
}

// CurrentSellPrices maps every market to its current sell price. The worker
// feeds this into the daily history seeding job.
func (e *Executor) CurrentSellPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	views, err := e.ListMarkets(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(views))
	for _, v := range views {
		out[v.ID] = v.SellPrice
	}
	return out, nil
}

func runCalculator(s market.Snapshot, side string, quantity int64) (market.Quote, error) {
	if side == SideBuy {
		return market.QuoteBuy(s, quantity)
	}
	return market.QuoteSell(s, quantity)
}

// tradeLegs builds the ledger movements for a trade. Resource trades move
// regional currency only; the goods themselves live with an external
// inventory system. Gold trades add the second money leg: the gold account
// moves by quantity while the regional account moves by total.
func tradeLegs(s market.Snapshot, side, owner string, q market.Quote) ([]leg, error) {
	regional := ledger.AccountID{Owner: owner, Scope: ledger.RegionScope(s.Region)}
	legs := []leg{{account: regional, amount: q.Total, debit: side == SideBuy}}
	if s.IsCurrency() {
		gold := ledger.AccountID{Owner: owner, Scope: ledger.ScopeGold}
		legs = append(legs, leg{account: gold, amount: decimal.NewFromInt(q.Quantity()), debit: side == SideSell})
	}
	return legs, nil
}

// applyLegs runs the sorted legs inside tx and returns the receipt of the
// regional-currency leg, which is the one clients display.
func applyLegs(ctx context.Context, tx pgx.Tx, legs []leg, reason, region string) (ledger.Receipt, error) {
	var primary ledger.Receipt
	regionalScope := ledger.RegionScope(region)
	for _, l := range legs {
		var r ledger.Receipt
		var err error
		if l.debit {
			r, err = ledger.DebitTx(ctx, tx, l.account, l.amount, reason)
		} else {
			r, err = ledger.CreditTx(ctx, tx, l.account, l.amount, reason)
		}
		if err != nil {
			return ledger.Receipt{}, err
		}
		if l.account.Scope == regionalScope {
			primary = r
		}
	}
	return primary, nil
}

func tradeReason(side, marketID string) string {
	return fmt.Sprintf("market_%s:%s", side, marketID)
}

func (e *Executor) loadSnapshot(ctx context.Context, marketID string) (market.Snapshot, error) {
	s, _, err := e.loadSnapshotAt(ctx, marketID)
	return s, err
}

func (e *Executor) loadSnapshotAt(ctx context.Context, marketID string) (market.Snapshot, time.Time, error) {
	var updatedAt time.Time
	s, err := scanSnapshot(e.db.QueryRow(ctx, `
		SELECT id, good_id, quality, region, initial_price::text,
		       price_level, progress, volume_per_level, adjustment::text, updated_at
		FROM markets
		WHERE id = $1
	`, marketID), &updatedAt)
	return s, updatedAt, err
}

func lockSnapshot(ctx context.Context, tx pgx.Tx, marketID string) (market.Snapshot, error) {
	var updatedAt time.Time
	return scanSnapshot(tx.QueryRow(ctx, `
		SELECT id, good_id, quality, region, initial_price::text,
		       price_level, progress, volume_per_level, adjustment::text, updated_at
		FROM markets
		WHERE id = $1
		FOR UPDATE
	`, marketID), &updatedAt)
}

func scanSnapshot(row pgx.Row, updatedAt *time.Time) (market.Snapshot, error) {
	var s market.Snapshot
	var initial, adjustment string
	err := row.Scan(&s.ID, &s.GoodID, &s.Quality, &s.Region, &initial,
		&s.PriceLevel, &s.Progress, &s.VolumePerLevel, &adjustment, updatedAt)
	if err == pgx.ErrNoRows {
		return s, ErrMarketNotFound
	}
	if err != nil {
		return s, err
	}
	if s.InitialPrice, err = decimal.NewFromString(initial); err != nil {
		return s, fmt.Errorf("decode initial_price: %w", err)
	}
	if s.AdjustmentPerLevel, err = decimal.NewFromString(adjustment); err != nil {
		return s, fmt.Errorf("decode adjustment: %w", err)
	}
	s.Spread = market.SpreadFor(s.GoodID)
	return s, nil
}

func scanView(rows pgx.Rows) (MarketView, error) {
	var updatedAt time.Time
	s, err := scanSnapshot(rows, &updatedAt)
	if err != nil {
		return MarketView{}, err
	}
	return viewOf(s, updatedAt), nil
}

func viewOf(s market.Snapshot, updatedAt time.Time) MarketView {
	return MarketView{
		Snapshot:  s,
		BuyPrice:  s.BuyUnitPrice(),
		SellPrice: s.SellUnitPrice(),
		UpdatedAt: updatedAt,
	}
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure and deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
