package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"fx-tracker-go/internal/blotter"
	"fx-tracker-go/internal/feed"
	"fx-tracker-go/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// blotterRow is the flattened shape the dashboard renders. PnL carries
// unrealized value for open trades and the frozen realized value once closed.
type blotterRow struct {
	TradeID      string           `json:"trade_id"`
	Timestamp    time.Time        `json:"timestamp"`
	Pair         string           `json:"pair"`
	Side         models.Side      `json:"side"`
	Amount       decimal.Decimal  `json:"amount"`
	EntryRate    decimal.Decimal  `json:"entry_rate"`
	CurrentRate  *decimal.Decimal `json:"current_rate"`
	PnL          decimal.Decimal  `json:"pnl"`
	Status       models.Status    `json:"status"`
	Trader       string           `json:"trader"`
	Counterparty string           `json:"counterparty"`
}

func toRow(t *models.Trade) blotterRow {
	row := blotterRow{
		TradeID:      t.TradeID,
		Timestamp:    t.OpenedAt,
		Pair:         t.Pair,
		Side:         t.Side,
		Amount:       t.Notional,
		EntryRate:    t.EntryRate,
		PnL:          t.DisplayPnL(),
		Status:       t.Status,
		Trader:       t.Trader,
		Counterparty: t.Counterparty,
	}
	if t.CurrentRate.Valid {
		rate := t.CurrentRate.Decimal
		row.CurrentRate = &rate
	}
	return row
}

func (s *Server) snapshot(ctx context.Context) ([]blotterRow, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	trades, err := s.store.All(opCtx)
	if err != nil {
		return nil, err
	}

	rows := make([]blotterRow, 0, len(trades))
	for i := range trades {
		rows = append(rows, toRow(&trades[i]))
	}
	return rows, nil
}

func (s *Server) listTradesHandler(c *gin.Context) {
	rows, err := s.snapshot(c.Request.Context())
	if err != nil {
		s.log.Error("Failed to read trades", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read trades"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// createTradeHandler accepts a manually entered ticket. It funnels through
// the same normalizer as feed records, so store invariants hold no matter
// where a trade came from.
func (s *Server) createTradeHandler(c *gin.Context) {
	var raw feed.RawTrade
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid JSON body"})
		return
	}

	trade, err := blotter.Normalize(raw)
	if err != nil {
		if errors.Is(err, blotter.ErrRejected) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		s.log.Error("Failed to normalize manual trade", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false})
		return
	}

	opCtx, cancel := context.WithTimeout(c.Request.Context(), s.opTimeout)
	defer cancel()
	if err := s.store.Upsert(opCtx, &trade); err != nil {
		s.log.Error("Failed to save manual trade", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "trade_id": trade.TradeID})
}

func (s *Server) deleteTradeHandler(c *gin.Context) {
	opCtx, cancel := context.WithTimeout(c.Request.Context(), s.opTimeout)
	defer cancel()

	removed, err := s.store.Delete(opCtx, c.Param("id"))
	if err != nil {
		s.log.Error("Failed to delete trade", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"success": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) statusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": s.feed.ConnectionStatus()})
}
