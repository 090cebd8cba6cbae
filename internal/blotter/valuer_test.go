package blotter

import (
	"context"
	"errors"
	"testing"
	"time"

	"fx-tracker-go/internal/feed"
	"fx-tracker-go/internal/models"
	"fx-tracker-go/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestValuer(s *store.TradeStore, f feed.Feed) *Valuer {
	return NewValuer(zap.NewNop(), f, s, time.Second, 5*time.Second, 10*time.Second)
}

func openTrade(id, pair string, side models.Side) *models.Trade {
	return &models.Trade{
		TradeID:   id,
		OpenedAt:  time.Now(),
		Pair:      pair,
		Side:      side,
		Notional:  decimal.NewFromInt(1_000_000),
		EntryRate: decimal.RequireFromString("1.1000"),
		Status:    models.StatusOpen,
	}
}

func TestValuer_RepricesOpenPositions(t *testing.T) {
	// Arrange: a BUY and a SELL, same entry and notional
	s, mockFeed := setupTest(t)
	ctx := context.Background()
	assert.NoError(t, s.Upsert(ctx, openTrade("FX-buy", "EUR/USD", models.SideBuy)))
	assert.NoError(t, s.Upsert(ctx, openTrade("FX-sell", "EUR/USD", models.SideSell)))

	mockFeed.On("CurrentRate", "EUR/USD").Return(decimal.RequireFromString("1.1050"), nil)
	v := newTestValuer(s, mockFeed)

	// Act
	assert.NoError(t, v.cycle(ctx))

	// Assert: (1.1050-1.1000)*1,000,000 either way
	all, err := s.All(ctx)
	assert.NoError(t, err)
	byID := map[string]models.Trade{}
	for _, tr := range all {
		byID[tr.TradeID] = tr
	}
	assert.Equal(t, "5000.00", byID["FX-buy"].UnrealizedPnL.StringFixed(2))
	assert.Equal(t, "-5000.00", byID["FX-sell"].UnrealizedPnL.StringFixed(2))
	assert.Equal(t, "1.1050", byID["FX-buy"].CurrentRate.Decimal.StringFixed(4))
}

func TestValuer_IsolatesPerRecordQuoteFailures(t *testing.T) {
	// Arrange: the first pair has no quote, the second is fine
	s, mockFeed := setupTest(t)
	ctx := context.Background()
	assert.NoError(t, s.Upsert(ctx, openTrade("FX-noquote", "USD/TRY", models.SideBuy)))
	assert.NoError(t, s.Upsert(ctx, openTrade("FX-quoted", "EUR/USD", models.SideBuy)))

	mockFeed.On("CurrentRate", "USD/TRY").Return(decimal.Decimal{}, errors.New("no quote for pair USD/TRY"))
	mockFeed.On("CurrentRate", "EUR/USD").Return(decimal.RequireFromString("1.1050"), nil)
	v := newTestValuer(s, mockFeed)

	// Act: the pass must not abort on the failing record
	assert.NoError(t, v.cycle(ctx))

	// Assert: the quoted trade was re-priced, the other left flat
	all, err := s.All(ctx)
	assert.NoError(t, err)
	for _, tr := range all {
		switch tr.TradeID {
		case "FX-noquote":
			assert.False(t, tr.CurrentRate.Valid)
			assert.Equal(t, "0.00", tr.UnrealizedPnL.StringFixed(2))
		case "FX-quoted":
			assert.Equal(t, "5000.00", tr.UnrealizedPnL.StringFixed(2))
		}
	}
	mockFeed.AssertExpectations(t)
}

func TestValuer_IgnoresClosedTrades(t *testing.T) {
	// Arrange: only a closed trade in the store; no CurrentRate expectation
	// is registered, so any re-price attempt would fail the mock.
	s, mockFeed := setupTest(t)
	ctx := context.Background()

	closed := openTrade("FX-closed", "GBP/USD", models.SideBuy)
	closed.Status = models.StatusClosed
	closed.RealizedPnL = decimal.NewNullDecimal(decimal.RequireFromString("-1234.50"))
	assert.NoError(t, s.Upsert(ctx, closed))

	v := newTestValuer(s, mockFeed)

	// Act
	assert.NoError(t, v.cycle(ctx))

	// Assert
	all, err := s.All(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "-1234.50", all[0].RealizedPnL.Decimal.StringFixed(2))
	mockFeed.AssertExpectations(t)
}
