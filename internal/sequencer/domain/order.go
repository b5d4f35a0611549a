package domain

import "github.com/shopspring/decimal"

// OrderType 订单类型，方向由类型隐含
type OrderType string

const (
	LimitBuy   OrderType = "LimitBuy"
	LimitSell  OrderType = "LimitSell"
	MarketBuy  OrderType = "MarketBuy"
	MarketSell OrderType = "MarketSell"
)

// IsBuy 是否买方向
func (t OrderType) IsBuy() bool {
	return t == LimitBuy || t == MarketBuy
}

// IsSell 是否卖方向
func (t OrderType) IsSell() bool {
	return t == LimitSell || t == MarketSell
}

// IsLimit 是否限价单
func (t OrderType) IsLimit() bool {
	return t == LimitBuy || t == LimitSell
}

// IsMarket 是否市价单
func (t OrderType) IsMarket() bool {
	return t == MarketBuy || t == MarketSell
}

// Valid 是否已知类型
func (t OrderType) Valid() bool {
	return t.IsBuy() || t.IsSell()
}

// Disposition 订单在一次操作后的处置结果
type Disposition string

const (
	DispositionAccepted        Disposition = "Accepted"
	DispositionFilled          Disposition = "Filled"
	DispositionPartiallyFilled Disposition = "PartiallyFilled"
	DispositionRejected        Disposition = "Rejected"
	DispositionCanceled        Disposition = "Canceled"
)

// Order 订单。Amount 为基础资产最小单位的整数数量；
// Price 为缩放十进制价格，市价单忽略；挂单持有 LevelIx。
type Order struct {
	GUID   int64           `json:"guid"`
	Wallet string          `json:"wallet"`
	Type   OrderType       `json:"type"`
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`
	// LevelIx 价格档位索引，价格 = tickSize × levelIx，仅挂单有效
	LevelIx int64 `json:"level_ix"`
	// Percentage 按可用余额百分比下单（1..100），应用时解析，0 表示未使用
	Percentage int32 `json:"percentage,omitempty"`
}

// Trade 成交记录，价格由 LevelIx 通过市场 tickSize 推出。
// 手续费以报价资产计，买方为 taker/maker 取决于吃单方向。
type Trade struct {
	MarketID      string          `json:"market_id"`
	BuyOrderGUID  int64           `json:"buy_order_guid"`
	SellOrderGUID int64           `json:"sell_order_guid"`
	BuyWallet     string          `json:"buy_wallet"`
	SellWallet    string          `json:"sell_wallet"`
	LevelIx       int64           `json:"level_ix"`
	Amount        decimal.Decimal `json:"amount"`
	BuyerFee      decimal.Decimal `json:"buyer_fee"`
	SellerFee     decimal.Decimal `json:"seller_fee"`
}
