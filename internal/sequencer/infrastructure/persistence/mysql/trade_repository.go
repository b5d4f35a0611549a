// Package mysql 成交归档仓储。核心本身不持久化成交，
// 由响应日志的下游消费者写入历史库。
package mysql

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wyfcoding/dexcore/internal/sequencer/domain"
)

// TradeRecord 成交归档模型
type TradeRecord struct {
	gorm.Model
	// Sequence 产生该成交的响应序列号
	Sequence      uint64          `gorm:"column:sequence;index;not null"`
	MarketID      string          `gorm:"column:market_id;type:varchar(32);index;not null"`
	BuyOrderGUID  int64           `gorm:"column:buy_order_guid;index;not null"`
	SellOrderGUID int64           `gorm:"column:sell_order_guid;index;not null"`
	BuyWallet     string          `gorm:"column:buy_wallet;type:varchar(64);index;not null"`
	SellWallet    string          `gorm:"column:sell_wallet;type:varchar(64);index;not null"`
	LevelIx       int64           `gorm:"column:level_ix;not null"`
	Price         decimal.Decimal `gorm:"column:price;type:decimal(36,18);not null"`
	Amount        decimal.Decimal `gorm:"column:amount;type:decimal(36,0);not null"`
	BuyerFee      decimal.Decimal `gorm:"column:buyer_fee;type:decimal(36,0);not null"`
	SellerFee     decimal.Decimal `gorm:"column:seller_fee;type:decimal(36,0);not null"`
}

// TableName 表名
func (TradeRecord) TableName() string {
	return "trades"
}

// TradeRepository 成交归档仓储
type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository 构造函数
func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// SaveBatch 批量写入一条响应产生的全部成交
func (r *TradeRepository) SaveBatch(ctx context.Context, sequence uint64, price func(marketID string, levelIx int64) decimal.Decimal, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	records := make([]TradeRecord, 0, len(trades))
	for _, t := range trades {
		records = append(records, TradeRecord{
			Sequence:      sequence,
			MarketID:      t.MarketID,
			BuyOrderGUID:  t.BuyOrderGUID,
			SellOrderGUID: t.SellOrderGUID,
			BuyWallet:     t.BuyWallet,
			SellWallet:    t.SellWallet,
			LevelIx:       t.LevelIx,
			Price:         price(t.MarketID, t.LevelIx),
			Amount:        t.Amount,
			BuyerFee:      t.BuyerFee,
			SellerFee:     t.SellerFee,
		})
	}
	if err := r.db.WithContext(ctx).Create(&records).Error; err != nil {
		return fmt.Errorf("failed to archive trades at sequence %d: %w", sequence, err)
	}
	return nil
}

// GetLatestTrades 最近成交，按归档顺序倒序
func (r *TradeRepository) GetLatestTrades(ctx context.Context, marketID string, limit int) ([]TradeRecord, error) {
	var records []TradeRecord
	err := r.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for %s: %w", marketID, err)
	}
	return records, nil
}
