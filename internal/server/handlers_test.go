package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fx-tracker-go/internal/feed"
	"fx-tracker-go/internal/models"
	"fx-tracker-go/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// stubFeed satisfies feed.Feed with canned data; the server only ever reads
// the connection status from it.
type stubFeed struct{ status string }

func (s *stubFeed) Trades() []feed.RawTrade                     { return nil }
func (s *stubFeed) CurrentRate(string) (decimal.Decimal, error) { return decimal.Decimal{}, nil }
func (s *stubFeed) PollEvents() (feed.RawTrade, feed.RawTrade)  { return nil, nil }
func (s *stubFeed) ConnectionStatus() string                    { return s.status }

func setupRouter(t *testing.T) (*gin.Engine, *store.TradeStore) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&models.Trade{}))

	tradeStore := store.New(db)
	srv := New(zap.NewNop(), tradeStore, &stubFeed{status: "Demo mode (replay feed)"}, 10*time.Second)
	return srv.Router(), tradeStore
}

func TestCreateTradeHandler(t *testing.T) {
	t.Run("ValidTrade", func(t *testing.T) {
		router, tradeStore := setupRouter(t)

		body := `{"trade_id": "FX-manual-1", "currency_pair": "EUR/USD", "side": "BUY",
			"notional_amount": 1000000, "execution_rate": 1.0850, "trader_name": "Emily Davis"}`
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/trades", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)

		all, err := tradeStore.All(context.Background())
		assert.NoError(t, err)
		assert.Len(t, all, 1)
		assert.Equal(t, "FX-manual-1", all[0].TradeID)
		assert.Equal(t, models.StatusOpen, all[0].Status)
	})

	t.Run("RejectedTradeNeverReachesStore", func(t *testing.T) {
		router, tradeStore := setupRouter(t)

		// No side: the normalizer must reject it.
		body := `{"trade_id": "FX-manual-2", "currency_pair": "EUR/USD",
			"notional_amount": 1000000, "execution_rate": 1.0850}`
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/trades", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		all, err := tradeStore.All(context.Background())
		assert.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		router, _ := setupRouter(t)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/trades", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListTradesHandler_PnLSelection(t *testing.T) {
	router, tradeStore := setupRouter(t)
	ctx := context.Background()

	open := &models.Trade{
		TradeID: "FX-open", OpenedAt: time.Now(), Pair: "EUR/USD", Side: models.SideBuy,
		Notional: decimal.NewFromInt(1_000_000), EntryRate: decimal.RequireFromString("1.1000"),
		Status: models.StatusOpen, UnrealizedPnL: decimal.RequireFromString("5000"),
	}
	closed := &models.Trade{
		TradeID: "FX-closed", OpenedAt: time.Now().Add(-time.Hour), Pair: "GBP/USD", Side: models.SideSell,
		Notional: decimal.NewFromInt(2_000_000), EntryRate: decimal.RequireFromString("1.2650"),
		Status: models.StatusClosed, RealizedPnL: decimal.NewNullDecimal(decimal.RequireFromString("-800")),
	}
	assert.NoError(t, tradeStore.Upsert(ctx, open))
	assert.NoError(t, tradeStore.Upsert(ctx, closed))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/trades", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var rows []map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	assert.Len(t, rows, 2)

	// Most recently opened first; open trades show unrealized P&L,
	// closed ones the frozen realized value.
	assert.Equal(t, "FX-open", rows[0]["trade_id"])
	assert.Equal(t, "5000", rows[0]["pnl"])
	assert.Equal(t, "FX-closed", rows[1]["trade_id"])
	assert.Equal(t, "-800", rows[1]["pnl"])
}

func TestDeleteTradeHandler(t *testing.T) {
	router, tradeStore := setupRouter(t)
	ctx := context.Background()

	trade := &models.Trade{
		TradeID: "FX-del", OpenedAt: time.Now(), Pair: "EUR/USD", Side: models.SideBuy,
		Notional: decimal.NewFromInt(1), EntryRate: decimal.NewFromInt(1), Status: models.StatusOpen,
	}
	assert.NoError(t, tradeStore.Upsert(ctx, trade))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/trades/FX-del", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/trades/FX-del", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusHandler(t *testing.T) {
	router, _ := setupRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Demo mode (replay feed)")
}

func TestIndexHandler_ServesDashboard(t *testing.T) {
	router, _ := setupRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "FX Trade Tracker")
}
