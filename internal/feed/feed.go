package feed

import (
	"github.com/shopspring/decimal"
)

// RawTrade is a loosely-typed trade record as delivered by a feed or a
// manual-entry form. Field names follow the terminal's ticket layout:
// trade_id, timestamp, currency_pair, side, notional_amount, base_currency,
// quote_currency, execution_rate, value_date, settlement_date, counterparty,
// trader_name, status.
type RawTrade map[string]any

// Feed supplies the currently known trades and on-demand market rates.
// Implementations are safe for concurrent use; the reconciliation and
// valuation loops each poll the feed independently.
type Feed interface {
	// Trades returns the full list of trades the feed currently knows about.
	Trades() []RawTrade

	// CurrentRate returns the latest market rate for a "BASE/QUOTE" pair.
	CurrentRate(pair string) (decimal.Decimal, error)

	// PollEvents returns at most one newly opened and one just-closed trade.
	// Either or both may be nil.
	PollEvents() (opened RawTrade, closed RawTrade)

	// ConnectionStatus is a human-readable status string for the dashboard.
	ConnectionStatus() string
}
