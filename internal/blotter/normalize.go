package blotter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"fx-tracker-go/internal/feed"
	"fx-tracker-go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// ErrRejected marks raw input the normalizer refused. Callers drop the
// record and continue; it is never a fatal condition.
var ErrRejected = errors.New("trade rejected")

func rejectf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRejected, fmt.Sprintf(format, args...))
}

// Normalize converts a loosely-typed raw trade record into a canonical
// Trade. It is a pure function: every record that reaches the store, from
// the feed or from manual entry, funnels through here.
//
// A record is rejected when trade_id, currency_pair, or side is missing,
// when the pair cannot be split into two currency codes and no explicit
// base/quote was supplied, or when notional/entry rate fail to parse.
// Unparseable numerics are never silently coerced to zero: a zero-value
// trade in the book is worse than a dropped ticket.
func Normalize(raw feed.RawTrade) (models.Trade, error) {
	var t models.Trade

	t.TradeID = strings.TrimSpace(cast.ToString(raw["trade_id"]))
	if t.TradeID == "" {
		return t, rejectf("missing trade_id")
	}

	t.Pair = strings.TrimSpace(cast.ToString(raw["currency_pair"]))
	if t.Pair == "" {
		return t, rejectf("trade %s: missing currency_pair", t.TradeID)
	}

	base, quote, ok := splitPair(t.Pair)
	if !ok {
		base = strings.TrimSpace(cast.ToString(raw["base_currency"]))
		quote = strings.TrimSpace(cast.ToString(raw["quote_currency"]))
		if base == "" || quote == "" {
			return t, rejectf("trade %s: unsplittable pair %q and no explicit currencies", t.TradeID, t.Pair)
		}
	}
	t.BaseCurrency = base
	t.QuoteCurrency = quote

	switch side := models.Side(strings.ToUpper(cast.ToString(raw["side"]))); side {
	case models.SideBuy, models.SideSell:
		t.Side = side
	case "":
		return t, rejectf("trade %s: missing side", t.TradeID)
	default:
		return t, rejectf("trade %s: unknown side %q", t.TradeID, side)
	}

	notional, err := toDecimal(raw["notional_amount"])
	if err != nil {
		return t, rejectf("trade %s: bad notional_amount: %v", t.TradeID, err)
	}
	if notional.IsNegative() {
		return t, rejectf("trade %s: negative notional_amount %s", t.TradeID, notional)
	}
	t.Notional = notional

	entry, err := toDecimal(raw["execution_rate"])
	if err != nil {
		return t, rejectf("trade %s: bad execution_rate: %v", t.TradeID, err)
	}
	if !entry.IsPositive() {
		return t, rejectf("trade %s: non-positive execution_rate %s", t.TradeID, entry)
	}
	t.EntryRate = entry

	if v, exists := raw["current_market_rate"]; exists && v != nil {
		rate, err := toDecimal(v)
		if err != nil {
			return t, rejectf("trade %s: bad current_market_rate: %v", t.TradeID, err)
		}
		t.CurrentRate = decimal.NewNullDecimal(rate)
	}

	switch status := models.Status(strings.ToUpper(cast.ToString(raw["status"]))); status {
	case models.StatusOpen, models.StatusClosed:
		t.Status = status
	case "":
		t.Status = models.StatusOpen
	default:
		return t, rejectf("trade %s: unknown status %q", t.TradeID, status)
	}

	now := time.Now()
	t.OpenedAt = toTime(raw["timestamp"], now)
	t.ValueDate = toTime(raw["value_date"], now.Add(48*time.Hour))
	t.SettlementDate = toTime(raw["settlement_date"], now.Add(48*time.Hour))

	t.Counterparty = cast.ToString(raw["counterparty"])
	t.Trader = cast.ToString(raw["trader_name"])
	t.UnrealizedPnL = t.Unrealized()
	t.LastUpdated = now

	return t, nil
}

// splitPair breaks "BASE/QUOTE" into its two currency codes.
func splitPair(pair string) (base, quote string, ok bool) {
	parts := strings.Split(pair, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch d := v.(type) {
	case nil:
		return decimal.Decimal{}, errors.New("missing value")
	case decimal.Decimal:
		return d, nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(d))
	default:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromFloat(f), nil
	}
}

func toTime(v any, fallback time.Time) time.Time {
	if v == nil {
		return fallback
	}
	ts, err := cast.ToTimeE(v)
	if err != nil || ts.IsZero() {
		return fallback
	}
	return ts
}
