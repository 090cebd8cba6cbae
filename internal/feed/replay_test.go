package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplayFeed_DeterministicForSameSeed(t *testing.T) {
	a := NewReplayFeed(42)
	b := NewReplayFeed(42)

	tradesA := a.Trades()
	tradesB := b.Trades()
	assert.Len(t, tradesA, 15)
	assert.Equal(t, len(tradesA), len(tradesB))

	for i := range tradesA {
		assert.Equal(t, tradesA[i]["trade_id"], tradesB[i]["trade_id"])
		assert.Equal(t, tradesA[i]["currency_pair"], tradesB[i]["currency_pair"])
		assert.Equal(t, tradesA[i]["execution_rate"], tradesB[i]["execution_rate"])
	}
}

func TestReplayFeed_InitialBookShape(t *testing.T) {
	f := NewReplayFeed(7)

	for _, raw := range f.Trades() {
		pair := raw["currency_pair"].(string)
		band, ok := rateBands[pair]
		assert.True(t, ok, "unexpected pair %s", pair)

		rate := raw["execution_rate"].(float64)
		assert.GreaterOrEqual(t, rate, band[0])
		assert.LessOrEqual(t, rate, band[1])

		notional := raw["notional_amount"].(float64)
		assert.GreaterOrEqual(t, notional, 500_000.0)
		assert.LessOrEqual(t, notional, 25_000_000.0)

		assert.Contains(t, []any{"OPEN", "CLOSED"}, raw["status"])
		assert.NotEmpty(t, raw["trade_id"])
	}
}

func TestReplayFeed_CurrentRate(t *testing.T) {
	f := NewReplayFeed(7)

	t.Run("QuotesInsideVariationWindow", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			rate, err := f.CurrentRate("EUR/USD")
			assert.NoError(t, err)
			v, _ := rate.Float64()
			assert.InDelta(t, 1.0850, v, 0.0201)
		}
	})

	t.Run("YenMovesInWholeNumbers", func(t *testing.T) {
		rate, err := f.CurrentRate("USD/JPY")
		assert.NoError(t, err)
		v, _ := rate.Float64()
		assert.InDelta(t, 148.50, v, 2.01)
	})

	t.Run("UnknownPair", func(t *testing.T) {
		_, err := f.CurrentRate("BTC/USD")
		assert.Error(t, err)
	})
}

func TestReplayFeed_SnapshotsAreIsolatedFromBookMutation(t *testing.T) {
	f := NewReplayFeed(7)

	// A caller mutating its snapshot must not leak into the book, and close
	// events mutating the book must not rewrite snapshots already handed out.
	snap := f.Trades()
	original := snap[0]["status"]
	snap[0]["status"] = "MUTATED"

	fresh := f.Trades()
	assert.Equal(t, original, fresh[0]["status"])

	for i := 0; i < 500; i++ {
		f.PollEvents()
	}
	assert.Equal(t, original, fresh[0]["status"])
}

func TestReplayFeed_PollEventsEventuallyOpensAndCloses(t *testing.T) {
	f := NewReplayFeed(7)

	var openedCount, closedCount int
	for i := 0; i < 500; i++ {
		opened, closed := f.PollEvents()
		if opened != nil {
			openedCount++
			assert.Equal(t, "OPEN", opened["status"])
		}
		if closed != nil {
			closedCount++
			assert.Equal(t, "CLOSED", closed["status"])
		}
	}

	// 8% and 4% per poll makes 500 quiet polls astronomically unlikely.
	assert.Greater(t, openedCount, 0)
	assert.Greater(t, closedCount, 0)
	assert.Equal(t, 15+openedCount, len(f.Trades()))
}
