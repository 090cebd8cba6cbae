package blotter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fx-tracker-go/internal/feed"
	"fx-tracker-go/internal/models"
	"fx-tracker-go/internal/store"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// Reconciler periodically pulls the feed's trade list and merges
// previously-unseen trades into the store, and applies discrete open/close
// events. All dependencies are injected; there is no process-wide state.
type Reconciler struct {
	logger *zap.Logger
	feed   feed.Feed
	store  *store.TradeStore

	interval  time.Duration
	backoff   time.Duration
	opTimeout time.Duration

	// seen is a process-local optimization that avoids re-normalizing
	// trades the loop already ingested. Correctness does not depend on it:
	// the store's upsert is keyed by trade id, so a cold set can never
	// produce duplicates.
	seen map[string]struct{}
}

// NewReconciler creates a reconciliation loop over the given feed and store.
func NewReconciler(logger *zap.Logger, f feed.Feed, s *store.TradeStore, interval, backoff, opTimeout time.Duration) *Reconciler {
	return &Reconciler{
		logger:    logger,
		feed:      f,
		store:     s,
		interval:  interval,
		backoff:   backoff,
		opTimeout: opTimeout,
		seen:      make(map[string]struct{}),
	}
}

// Run executes reconciliation cycles until the context is cancelled. A
// failing cycle is logged and retried after the error backoff; the loop
// itself never exits on a transient fault.
func (r *Reconciler) Run(ctx context.Context) {
	if err := r.rebuildSeen(ctx); err != nil {
		r.logger.Warn("Could not rebuild seen set from store, starting cold", zap.Error(err))
	}
	r.logger.Info("Starting reconciliation loop",
		zap.Duration("interval", r.interval),
		zap.Int("known_trades", len(r.seen)))

	for {
		wait := r.interval
		if err := r.runCycle(ctx); err != nil {
			r.logger.Error("Reconciliation cycle failed", zap.Error(err))
			wait = r.backoff
		}

		select {
		case <-ctx.Done():
			r.logger.Info("Stopping reconciliation loop")
			return
		case <-time.After(wait):
		}
	}
}

// rebuildSeen scans the store once so a process restart does not re-ingest
// trades that are already persisted.
func (r *Reconciler) rebuildSeen(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	trades, err := r.store.All(opCtx)
	if err != nil {
		return err
	}
	for _, t := range trades {
		r.seen[t.TradeID] = struct{}{}
	}
	return nil
}

func (r *Reconciler) runCycle(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("reconciliation panicked: %v", rec)
		}
	}()
	return r.cycle(ctx)
}

func (r *Reconciler) cycle(ctx context.Context) error {
	for _, raw := range r.feed.Trades() {
		r.ingest(ctx, raw)
	}

	opened, closed := r.feed.PollEvents()
	if opened != nil {
		r.ingest(ctx, opened)
	}
	if closed != nil {
		if err := r.applyClose(ctx, closed); err != nil {
			return err
		}
	}
	return nil
}

// ingest normalizes a raw record and upserts it if this process has not
// seen the id before. The id membership test runs before normalization so
// an unchanged feed book costs no parsing work per cycle. Malformed records
// are dropped, not fatal.
func (r *Reconciler) ingest(ctx context.Context, raw feed.RawTrade) {
	if id := strings.TrimSpace(cast.ToString(raw["trade_id"])); id != "" {
		if _, ok := r.seen[id]; ok {
			return
		}
	}

	trade, err := Normalize(raw)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			r.logger.Warn("Dropping malformed trade from feed", zap.Error(err))
			return
		}
		r.logger.Error("Failed to normalize trade", zap.Error(err))
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	if err := r.store.Upsert(opCtx, &trade); err != nil {
		// Not marking it seen means the next cycle retries the insert.
		r.logger.Error("Failed to persist new trade", zap.String("trade_id", trade.TradeID), zap.Error(err))
		return
	}

	r.seen[trade.TradeID] = struct{}{}
	r.logger.Info("Reconciled new trade",
		zap.String("trade_id", trade.TradeID),
		zap.String("pair", trade.Pair),
		zap.String("side", string(trade.Side)))
}

// applyClose pins the closing rate on a trade, computes its realized P&L
// once, and persists the record as CLOSED. The valuation loop excludes
// closed trades, so both values are frozen from here on.
func (r *Reconciler) applyClose(ctx context.Context, raw feed.RawTrade) error {
	trade, err := Normalize(raw)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			r.logger.Warn("Dropping malformed close event", zap.Error(err))
			return nil
		}
		return err
	}

	if rate, err := r.feed.CurrentRate(trade.Pair); err != nil {
		r.logger.Warn("No closing rate available, freezing last known P&L",
			zap.String("trade_id", trade.TradeID), zap.Error(err))
	} else {
		trade.CurrentRate = decimal.NewNullDecimal(rate)
	}

	trade.Status = models.StatusClosed
	trade.RealizedPnL = decimal.NewNullDecimal(trade.Unrealized())
	trade.UnrealizedPnL = decimal.Zero

	opCtx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	if err := r.store.Upsert(opCtx, &trade); err != nil {
		return fmt.Errorf("persist closed trade %s: %w", trade.TradeID, err)
	}

	r.seen[trade.TradeID] = struct{}{}
	r.logger.Info("Closed trade",
		zap.String("trade_id", trade.TradeID),
		zap.String("pair", trade.Pair),
		zap.String("realized_pnl", trade.RealizedPnL.Decimal.StringFixed(2)))
	return nil
}
