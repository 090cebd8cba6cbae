package store

import (
	"context"
	"fmt"
	"time"

	"fx-tracker-go/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TradeStore is the durable keyed table of trade records. All writes are
// full-record replacements by trade id, so concurrent writers can never
// leave a half-updated row behind. Every call takes a context; callers are
// expected to attach a deadline so a stuck storage handle cannot stall the
// calling loop.
type TradeStore struct {
	db *gorm.DB
}

// New creates a TradeStore on top of an already-migrated database.
func New(db *gorm.DB) *TradeStore {
	return &TradeStore{db: db}
}

// Upsert inserts the trade or fully replaces the record with the same id.
func (s *TradeStore) Upsert(ctx context.Context, trade *models.Trade) error {
	if trade.TradeID == "" {
		return fmt.Errorf("upsert: trade has no id")
	}
	trade.LastUpdated = time.Now()

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "trade_id"}},
		UpdateAll: true,
	}).Create(trade).Error
	if err != nil {
		return fmt.Errorf("upsert trade %s: %w", trade.TradeID, err)
	}
	return nil
}

// All returns every trade, most recently opened first. The result is read
// fresh from the database on every call.
func (s *TradeStore) All(ctx context.Context) ([]models.Trade, error) {
	var trades []models.Trade
	if err := s.db.WithContext(ctx).Order("opened_at desc").Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("scan trades: %w", err)
	}
	return trades, nil
}

// Open returns the trades still flagged OPEN.
func (s *TradeStore) Open(ctx context.Context) ([]models.Trade, error) {
	var trades []models.Trade
	if err := s.db.WithContext(ctx).Where("status = ?", models.StatusOpen).Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("scan open trades: %w", err)
	}
	return trades, nil
}

// Delete removes the trade with the given id and reports whether a record
// existed.
func (s *TradeStore) Delete(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Where("trade_id = ?", id).Delete(&models.Trade{})
	if res.Error != nil {
		return false, fmt.Errorf("delete trade %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}
