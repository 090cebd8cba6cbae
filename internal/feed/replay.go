package feed

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Rate bands the replay feed quotes inside. JPY pairs are quoted in whole
// yen, everything else near parity.
var rateBands = map[string][2]float64{
	"EUR/USD": {1.05, 1.12},
	"GBP/USD": {1.20, 1.32},
	"USD/JPY": {140.0, 155.0},
	"AUD/USD": {0.62, 0.70},
	"USD/CHF": {0.82, 0.90},
	"EUR/GBP": {0.83, 0.88},
	"USD/CAD": {1.33, 1.40},
	"NZD/USD": {0.58, 0.64},
}

var midRates = map[string]float64{
	"EUR/USD": 1.0850,
	"GBP/USD": 1.2650,
	"USD/JPY": 148.50,
	"AUD/USD": 0.6550,
	"USD/CHF": 0.8450,
	"EUR/GBP": 0.8580,
	"USD/CAD": 1.3650,
	"NZD/USD": 0.6150,
}

var (
	replayPairs = []string{"EUR/USD", "GBP/USD", "USD/JPY", "AUD/USD", "USD/CHF", "EUR/GBP"}
	replayBanks = []string{"JP Morgan", "Goldman Sachs", "Citigroup", "HSBC", "Barclays", "Deutsche Bank"}
	replayDesk  = []string{"John Smith", "Sarah Johnson", "Mike Chen", "Emily Davis", "Tom Wilson"}
)

// ReplayFeed is a deterministic in-process market data source. It carries an
// initial book of trades and occasionally opens or closes one on poll, which
// makes it usable both as the demo-mode fallback and as a replayable source
// for tests.
type ReplayFeed struct {
	mu      sync.Mutex
	rng     *rand.Rand
	trades  []RawTrade
	counter int
}

// NewReplayFeed seeds the generator and builds the initial book. The same
// seed always produces the same book and the same event sequence.
func NewReplayFeed(seed int64) *ReplayFeed {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	f := &ReplayFeed{
		rng:     rand.New(rand.NewSource(seed)),
		counter: 1,
	}
	f.seedInitialBook()
	return f
}

func (f *ReplayFeed) seedInitialBook() {
	// Roughly 4 open for every 3 closed, like a real desk blotter mid-week.
	statuses := []string{"OPEN", "OPEN", "OPEN", "OPEN", "CLOSED", "CLOSED", "CLOSED"}
	for i := 0; i < 15; i++ {
		pair := replayPairs[f.rng.Intn(len(replayPairs))]
		age := time.Duration(1+f.rng.Intn(72)) * time.Hour
		raw := f.newRawTrade(pair, time.Now().Add(-age))
		raw["notional_amount"] = float64(500_000 + f.rng.Intn(24_500_001))
		raw["counterparty"] = replayBanks[f.rng.Intn(len(replayBanks))]
		raw["status"] = statuses[f.rng.Intn(len(statuses))]
		f.trades = append(f.trades, raw)
	}
}

func (f *ReplayFeed) newRawTrade(pair string, ts time.Time) RawTrade {
	band := rateBands[pair]
	side := "BUY"
	if f.rng.Intn(2) == 1 {
		side = "SELL"
	}
	raw := RawTrade{
		"trade_id":        fmt.Sprintf("FX%s%06d", ts.Format("20060102150405"), f.counter),
		"timestamp":       ts,
		"currency_pair":   pair,
		"side":            side,
		"notional_amount": float64(1_000_000 + f.rng.Intn(14_000_001)),
		"execution_rate":  roundTo(band[0]+f.rng.Float64()*(band[1]-band[0]), 4),
		"value_date":      ts.Add(48 * time.Hour),
		"settlement_date": ts.Add(48 * time.Hour),
		"counterparty":    replayBanks[f.rng.Intn(3)],
		"trader_name":     replayDesk[f.rng.Intn(len(replayDesk))],
		"status":          "OPEN",
	}
	f.counter++
	return raw
}

// Trades returns a snapshot of the feed's current book. Each record is a
// copy: PollEvents mutates the book in place when it closes a trade, so
// handing out the live maps would race with callers holding old snapshots.
func (f *ReplayFeed) Trades() []RawTrade {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RawTrade, 0, len(f.trades))
	for _, t := range f.trades {
		out = append(out, copyRaw(t))
	}
	return out
}

// CurrentRate quotes the pair's mid rate with a small random variation.
func (f *ReplayFeed) CurrentRate(pair string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	mid, ok := midRates[pair]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("no quote for pair %s", pair)
	}

	variation := 0.02
	if pair == "USD/JPY" {
		variation = 2.0 // yen moves in whole numbers
	}
	rate := mid + (f.rng.Float64()*2-1)*variation
	return decimal.NewFromFloat(rate).Round(4), nil
}

// PollEvents rolls for at most one new trade (8%) and one close (4%).
func (f *ReplayFeed) PollEvents() (RawTrade, RawTrade) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var opened, closed RawTrade

	if f.rng.Float64() < 0.08 {
		pair := replayPairs[f.rng.Intn(3)]
		opened = f.newRawTrade(pair, time.Now())
		f.trades = append(f.trades, opened)
	}

	if f.rng.Float64() < 0.04 {
		var open []RawTrade
		for _, t := range f.trades {
			if t["status"] == "OPEN" {
				open = append(open, t)
			}
		}
		if len(open) > 0 {
			closed = open[f.rng.Intn(len(open))]
			closed["status"] = "CLOSED"
		}
	}

	return copyRaw(opened), copyRaw(closed)
}

func copyRaw(raw RawTrade) RawTrade {
	if raw == nil {
		return nil
	}
	out := make(RawTrade, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out
}

// ConnectionStatus reports that the feed is the demo fallback.
func (f *ReplayFeed) ConnectionStatus() string {
	return "Demo mode (replay feed)"
}

func roundTo(v float64, places int) float64 {
	d, _ := decimal.NewFromFloat(v).Round(int32(places)).Float64()
	return d
}
