package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MarketParams 市场不可变参数
type MarketParams struct {
	ID         string `json:"id"`
	BaseAsset  string `json:"base_asset"`
	QuoteAsset string `json:"quote_asset"`
	// TickSize 最小价格步长，档位价格 = TickSize × levelIx
	TickSize decimal.Decimal `json:"tick_size"`
	// MaxLevels 价格档位上限，levelIx ∈ [1, MaxLevels]
	MaxLevels int64 `json:"max_levels"`
	// MaxOrdersPerLevel 单档位挂单数上限
	MaxOrdersPerLevel int `json:"max_orders_per_level"`
	// BaseDecimals 基础资产最小单位的小数位数
	BaseDecimals uint8 `json:"base_decimals"`
	// QuoteDecimals 报价资产最小单位的小数位数
	QuoteDecimals uint8 `json:"quote_decimals"`
}

// Validate 校验市场参数
func (p MarketParams) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("market id is required")
	}
	if p.BaseAsset == "" || p.QuoteAsset == "" {
		return fmt.Errorf("market %s: base and quote assets are required", p.ID)
	}
	if !p.TickSize.IsPositive() {
		return fmt.Errorf("market %s: tick size must be positive", p.ID)
	}
	if p.MaxLevels <= 0 {
		return fmt.Errorf("market %s: max levels must be positive", p.ID)
	}
	if p.MaxOrdersPerLevel <= 0 {
		return fmt.Errorf("market %s: max orders per level must be positive", p.ID)
	}
	return nil
}

// Market 单个交易市场：不可变参数、随成交更新的参考价与订单簿。
type Market struct {
	MarketParams
	// ReferencePrice 参考价，每笔成交后更新为成交价
	ReferencePrice decimal.Decimal
	book           *OrderBook
}

// NewMarket 创建市场，参考价初始为建市价
func NewMarket(params MarketParams, referencePrice decimal.Decimal) *Market {
	m := &Market{
		MarketParams:   params,
		ReferencePrice: referencePrice,
	}
	m.book = newOrderBook(m)
	return m
}

// Book 市场订单簿
func (m *Market) Book() *OrderBook {
	return m.book
}

// PriceForLevel 档位的十进制价格
func (m *Market) PriceForLevel(levelIx int64) decimal.Decimal {
	return m.TickSize.Mul(decimal.NewFromInt(levelIx))
}

// LevelIxForPrice 价格对应的档位索引。价格不在 tick 网格上，
// 或档位越界 [1, MaxLevels] 时返回 false。
func (m *Market) LevelIxForPrice(price decimal.Decimal) (int64, bool) {
	if !price.IsPositive() {
		return 0, false
	}
	q, r := price.QuoRem(m.TickSize, 0)
	if !r.IsZero() {
		return 0, false
	}
	ix := q.IntPart()
	if ix < 1 || ix > m.MaxLevels {
		return 0, false
	}
	return ix, true
}

// Notional 基础资产数量在给定档位上的报价资产名义价值，
// 以报价资产最小单位计，向零截断。
func (m *Market) Notional(amount decimal.Decimal, levelIx int64) decimal.Decimal {
	return m.NotionalAtPrice(amount, m.PriceForLevel(levelIx))
}

// NotionalAtPrice 任意价格下的名义价值换算
func (m *Market) NotionalAtPrice(amount, price decimal.Decimal) decimal.Decimal {
	scale := decimal.New(1, int32(m.QuoteDecimals)-int32(m.BaseDecimals))
	return amount.Mul(price).Mul(scale).Truncate(0)
}

// applyTrade 成交后更新参考价
func (m *Market) applyTrade(levelIx int64) {
	m.ReferencePrice = m.PriceForLevel(levelIx)
}
