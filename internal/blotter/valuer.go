package blotter

import (
	"context"
	"fmt"
	"time"

	"fx-tracker-go/internal/feed"
	"fx-tracker-go/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Valuer re-prices every open position on a tight interval, writing the
// latest market rate and unrealized P&L back to the store. It never touches
// records that have left OPEN, so a trade closing mid-pass costs at most one
// redundant (idempotent) write.
type Valuer struct {
	logger *zap.Logger
	feed   feed.Feed
	store  *store.TradeStore

	interval  time.Duration
	backoff   time.Duration
	opTimeout time.Duration
}

// NewValuer creates a valuation loop over the given feed and store.
func NewValuer(logger *zap.Logger, f feed.Feed, s *store.TradeStore, interval, backoff, opTimeout time.Duration) *Valuer {
	return &Valuer{
		logger:    logger,
		feed:      f,
		store:     s,
		interval:  interval,
		backoff:   backoff,
		opTimeout: opTimeout,
	}
}

// Run executes valuation passes until the context is cancelled. A failing
// pass is logged and retried after the error backoff.
func (v *Valuer) Run(ctx context.Context) {
	v.logger.Info("Starting valuation loop", zap.Duration("interval", v.interval))

	for {
		wait := v.interval
		if err := v.runCycle(ctx); err != nil {
			v.logger.Error("Valuation pass failed", zap.Error(err))
			wait = v.backoff
		}

		select {
		case <-ctx.Done():
			v.logger.Info("Stopping valuation loop")
			return
		case <-time.After(wait):
		}
	}
}

func (v *Valuer) runCycle(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("valuation panicked: %v", rec)
		}
	}()
	return v.cycle(ctx)
}

// cycle re-prices each open trade. Per-record failures are isolated: a bad
// quote or a slow write for one trade must not starve the rest of the pass.
func (v *Valuer) cycle(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, v.opTimeout)
	open, err := v.store.Open(opCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("scan open trades: %w", err)
	}

	for i := range open {
		trade := &open[i]

		rate, err := v.feed.CurrentRate(trade.Pair)
		if err != nil {
			v.logger.Warn("No quote for pair, skipping re-price",
				zap.String("trade_id", trade.TradeID),
				zap.String("pair", trade.Pair),
				zap.Error(err))
			continue
		}

		trade.CurrentRate = decimal.NewNullDecimal(rate)
		trade.UnrealizedPnL = trade.MarkToMarket(rate)

		opCtx, cancel := context.WithTimeout(ctx, v.opTimeout)
		err = v.store.Upsert(opCtx, trade)
		cancel()
		if err != nil {
			v.logger.Error("Failed to write re-priced trade",
				zap.String("trade_id", trade.TradeID), zap.Error(err))
		}
	}
	return nil
}
