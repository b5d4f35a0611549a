package domain

import "github.com/shopspring/decimal"

// RequestType 请求类型
type RequestType string

const (
	RequestAddMarket         RequestType = "AddMarket"
	RequestApplyOrderBatch   RequestType = "ApplyOrderBatch"
	RequestApplyBalanceBatch RequestType = "ApplyBalanceBatch"
	RequestSetFeeRates       RequestType = "SetFeeRates"
	RequestSetWithdrawalFees RequestType = "SetWithdrawalFees"
)

// SequencerError 领域错误，作为响应数据返回，绝不跨请求边界抛出
type SequencerError string

const (
	ErrNone           SequencerError = ""
	ErrMarketExists   SequencerError = "MarketExists"
	ErrUnknownMarket  SequencerError = "UnknownMarket"
	ErrExceedsLimit   SequencerError = "ExceedsLimit"
	ErrUnknownRequest SequencerError = "UnknownRequest"
)

// AddMarketPayload 建市请求
type AddMarketPayload struct {
	MarketParams
	// ReferencePrice 初始参考价
	ReferencePrice decimal.Decimal `json:"reference_price"`
}

// OrderChangeRequest 改单请求项
type OrderChangeRequest struct {
	GUID int64 `json:"guid"`
	// Wallet 为空时取批次钱包
	Wallet    string          `json:"wallet,omitempty"`
	NewAmount decimal.Decimal `json:"new_amount"`
	NewPrice  decimal.Decimal `json:"new_price"`
}

// OrderCancelRequest 撤单请求项
type OrderCancelRequest struct {
	GUID int64 `json:"guid"`
	// Wallet 为空时取批次钱包
	Wallet string `json:"wallet,omitempty"`
}

// OrderBatch 单市场订单批次。批次内固定顺序执行：先增、后改、再撤。
// 每个条目可覆盖批次级钱包。
type OrderBatch struct {
	MarketID       string               `json:"market_id"`
	Wallet         string               `json:"wallet"`
	OrdersToAdd    []Order              `json:"orders_to_add,omitempty"`
	OrdersToChange []OrderChangeRequest `json:"orders_to_change,omitempty"`
	OrdersToCancel []OrderCancelRequest `json:"orders_to_cancel,omitempty"`
}

// BalanceOperation 单笔充值/提现/冲正
type BalanceOperation struct {
	Wallet string          `json:"wallet"`
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

// BalanceBatch 余额批次：充值、提现、失败提现冲正、失败结算冲正
type BalanceBatch struct {
	Deposits          []BalanceOperation `json:"deposits,omitempty"`
	Withdrawals       []BalanceOperation `json:"withdrawals,omitempty"`
	FailedWithdrawals []BalanceOperation `json:"failed_withdrawals,omitempty"`
	FailedSettlements []BalanceOperation `json:"failed_settlements,omitempty"`
}

// AssetFee 按资产的提现手续费（最小单位整数）
type AssetFee struct {
	Asset string          `json:"asset"`
	Fee   decimal.Decimal `json:"fee"`
}

// WithdrawalFeesPayload 设置提现手续费
type WithdrawalFeesPayload struct {
	Fees []AssetFee `json:"fees"`
}

// SequencerRequest 定序请求，带类型标签的联合体。
// Type 决定哪个负载字段有效，未识别的类型映射为 UnknownRequest。
type SequencerRequest struct {
	GUID string      `json:"guid"`
	Type RequestType `json:"type"`

	AddMarket      *AddMarketPayload      `json:"add_market,omitempty"`
	OrderBatch     *OrderBatch            `json:"order_batch,omitempty"`
	BalanceBatch   *BalanceBatch          `json:"balance_batch,omitempty"`
	FeeRates       *FeeRates              `json:"fee_rates,omitempty"`
	WithdrawalFees *WithdrawalFeesPayload `json:"withdrawal_fees,omitempty"`
}

// OrderChange 订单状态变更（响应）
type OrderChange struct {
	MarketID    string          `json:"market_id"`
	GUID        int64           `json:"guid"`
	Wallet      string          `json:"wallet"`
	Type        OrderType       `json:"type"`
	Disposition Disposition     `json:"disposition"`
	Remaining   decimal.Decimal `json:"remaining"`
	LevelIx     int64           `json:"level_ix"`
}

// MarketCreated 建市结果（响应）
type MarketCreated struct {
	MarketParams
	ReferencePrice decimal.Decimal `json:"reference_price"`
}

// Withdrawal 已生效提现（响应），Amount 为扣除手续费后的净额
type Withdrawal struct {
	Wallet string          `json:"wallet"`
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
	Fee    decimal.Decimal `json:"fee"`
}

// SequencerResponse 定序响应，与请求一一对应、顺序一致。
// Sequence 为日志位置，是全系统的规范全序。
// ProcessingTime 仅用于诊断，不参与确定性契约。
type SequencerResponse struct {
	GUID           string         `json:"guid"`
	Sequence       uint64         `json:"sequence"`
	ProcessingTime int64          `json:"processing_time_ns"`
	Error          SequencerError `json:"error,omitempty"`

	OrdersChanged      []OrderChange          `json:"orders_changed,omitempty"`
	TradesCreated      []Trade                `json:"trades_created,omitempty"`
	BalancesChanged    []BalanceChange        `json:"balances_changed,omitempty"`
	MarketsCreated     []MarketCreated        `json:"markets_created,omitempty"`
	FeeRatesSet        *FeeRates              `json:"fee_rates_set,omitempty"`
	WithdrawalFeesSet  *WithdrawalFeesPayload `json:"withdrawal_fees_set,omitempty"`
	WithdrawalsCreated []Withdrawal           `json:"withdrawals_created,omitempty"`
}
