package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of the base currency in a trade.
type Side string

// Status is the lifecycle state of a trade.
type Status string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"

	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Trade is a single FX trade tracked from open to close. It is the only
// entity in the store, keyed by TradeID.
type Trade struct {
	TradeID        string              `gorm:"primaryKey" json:"trade_id"`
	OpenedAt       time.Time           `gorm:"index;not null" json:"opened_at"`
	Pair           string              `gorm:"index;not null" json:"pair"` // "BASE/QUOTE", e.g. "EUR/USD"
	Side           Side                `gorm:"not null" json:"side"`
	Notional       decimal.Decimal     `gorm:"not null" json:"notional"` // face value in base currency
	BaseCurrency   string              `json:"base_currency"`
	QuoteCurrency  string              `json:"quote_currency"`
	EntryRate      decimal.Decimal     `gorm:"not null" json:"entry_rate"`
	CurrentRate    decimal.NullDecimal `json:"current_rate"`
	ValueDate      time.Time           `json:"value_date"`
	SettlementDate time.Time           `json:"settlement_date"`
	Counterparty   string              `json:"counterparty"`
	Trader         string              `json:"trader"`
	Status         Status              `gorm:"index;default:OPEN" json:"status"`
	UnrealizedPnL  decimal.Decimal     `json:"unrealized_pnl"`
	RealizedPnL    decimal.NullDecimal `json:"realized_pnl"`
	LastUpdated    time.Time           `json:"last_updated"`
}

// MarkToMarket returns the trade's profit or loss against the given market
// rate, rounded to currency-cent precision.
func (t *Trade) MarkToMarket(rate decimal.Decimal) decimal.Decimal {
	diff := rate.Sub(t.EntryRate)
	if t.Side == SideSell {
		diff = t.EntryRate.Sub(rate)
	}
	return diff.Mul(t.Notional).Round(2)
}

// Unrealized computes the open P&L against the last observed market rate.
// A trade with no quote yet is flat, not an error.
func (t *Trade) Unrealized() decimal.Decimal {
	if !t.CurrentRate.Valid {
		return decimal.Zero
	}
	return t.MarkToMarket(t.CurrentRate.Decimal)
}

// DisplayPnL is the number the blotter shows: unrealized while the trade is
// open, the frozen realized value once it has closed.
func (t *Trade) DisplayPnL() decimal.Decimal {
	if t.Status == StatusClosed {
		if t.RealizedPnL.Valid {
			return t.RealizedPnL.Decimal
		}
		return decimal.Zero
	}
	return t.UnrealizedPnL
}
