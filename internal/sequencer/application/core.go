// Package application 定序核心的应用层：请求状态机、状态编码与日志驱动的 worker。
package application

import (
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/dexcore/internal/sequencer/domain"
)

// Core 定序核心。持有全部市场与账本，ProcessRequest 是唯一的状态变更入口，
// 由单一 worker 线程独占驱动，内部不加锁。
// 给定相同的请求序列，响应序列与最终状态必须逐位一致。
type Core struct {
	markets        map[string]*domain.Market
	marketIDs      []string // 升序，用于确定性遍历
	ledger         *domain.Ledger
	feeRates       domain.FeeRates
	withdrawalFees map[string]decimal.Decimal
	feeWallet      string
	logger         *slog.Logger
}

// NewCore 创建空核心。feeWallet 为手续费归集钱包，
// 成交与提现手续费记入该钱包以保持资产守恒。
func NewCore(feeWallet string, logger *slog.Logger) *Core {
	return &Core{
		markets:        make(map[string]*domain.Market),
		ledger:         domain.NewLedger(),
		feeRates:       domain.DefaultFeeRates(),
		withdrawalFees: make(map[string]decimal.Decimal),
		feeWallet:      feeWallet,
		logger:         logger.With("module", "sequencer_core"),
	}
}

// Ledger 账本（只读用途）
func (c *Core) Ledger() *domain.Ledger {
	return c.ledger
}

// Market 按 id 查询市场，未建市返回 nil
func (c *Core) Market(id string) *domain.Market {
	return c.markets[id]
}

// MarketIDs 全部市场 id，升序
func (c *Core) MarketIDs() []string {
	return c.marketIDs
}

// FeeRates 当前费率
func (c *Core) FeeRates() domain.FeeRates {
	return c.feeRates
}

// RestingOrders 全市场挂单总数
func (c *Core) RestingOrders() int {
	total := 0
	for _, id := range c.marketIDs {
		total += c.markets[id].Book().RestingCount()
	}
	return total
}

// ProcessRequest 处理单条请求并产生响应。所有领域失败都以响应中的
// 错误字段返回；任何 panic 都被吸收为 UnknownRequest，绝不外抛。
// Sequence 与 ProcessingTime 由调用方（worker）填充。
func (c *Core) ProcessRequest(req *domain.SequencerRequest) (resp *domain.SequencerResponse) {
	resp = &domain.SequencerResponse{GUID: req.GUID}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic while processing request", "guid", req.GUID, "type", req.Type, "panic", r)
			resp = &domain.SequencerResponse{GUID: req.GUID, Error: domain.ErrUnknownRequest}
		}
	}()

	switch req.Type {
	case domain.RequestAddMarket:
		if req.AddMarket == nil {
			resp.Error = domain.ErrUnknownRequest
			return resp
		}
		c.processAddMarket(req.AddMarket, resp)
	case domain.RequestApplyOrderBatch:
		if req.OrderBatch == nil {
			resp.Error = domain.ErrUnknownRequest
			return resp
		}
		c.processOrderBatch(req.OrderBatch, resp)
	case domain.RequestApplyBalanceBatch:
		if req.BalanceBatch == nil {
			resp.Error = domain.ErrUnknownRequest
			return resp
		}
		c.processBalanceBatch(req.BalanceBatch, resp)
	case domain.RequestSetFeeRates:
		if req.FeeRates == nil || !req.FeeRates.Valid() {
			resp.Error = domain.ErrUnknownRequest
			return resp
		}
		c.feeRates = *req.FeeRates
		rates := c.feeRates
		resp.FeeRatesSet = &rates
	case domain.RequestSetWithdrawalFees:
		if req.WithdrawalFees == nil {
			resp.Error = domain.ErrUnknownRequest
			return resp
		}
		c.processSetWithdrawalFees(req.WithdrawalFees, resp)
	default:
		resp.Error = domain.ErrUnknownRequest
	}
	return resp
}

func (c *Core) processAddMarket(payload *domain.AddMarketPayload, resp *domain.SequencerResponse) {
	if err := payload.Validate(); err != nil || payload.ReferencePrice.IsNegative() {
		resp.Error = domain.ErrUnknownRequest
		return
	}
	if _, exists := c.markets[payload.ID]; exists {
		resp.Error = domain.ErrMarketExists
		return
	}

	market := domain.NewMarket(payload.MarketParams, payload.ReferencePrice)
	c.markets[payload.ID] = market
	pos := sort.SearchStrings(c.marketIDs, payload.ID)
	c.marketIDs = append(c.marketIDs, "")
	copy(c.marketIDs[pos+1:], c.marketIDs[pos:])
	c.marketIDs[pos] = payload.ID

	resp.MarketsCreated = append(resp.MarketsCreated, domain.MarketCreated{
		MarketParams:   payload.MarketParams,
		ReferencePrice: payload.ReferencePrice,
	})
}

func (c *Core) processSetWithdrawalFees(payload *domain.WithdrawalFeesPayload, resp *domain.SequencerResponse) {
	for _, f := range payload.Fees {
		if f.Asset == "" || f.Fee.IsNegative() {
			resp.Error = domain.ErrUnknownRequest
			return
		}
	}
	for _, f := range payload.Fees {
		c.withdrawalFees[f.Asset] = f.Fee
	}
	echo := *payload
	resp.WithdrawalFeesSet = &echo
}
