// Package http 定序服务的 HTTP 接口。
// 写入侧只做校验与请求日志追加，处理结果经响应日志异步产生；
// 读取侧从 worker 发布的无锁快照返回。
package http

import (
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wyfcoding/dexcore/internal/sequencer/application"
	"github.com/wyfcoding/dexcore/internal/sequencer/domain"
	"github.com/wyfcoding/dexcore/internal/sequencer/infrastructure/journal"
	"github.com/wyfcoding/dexcore/internal/sequencer/infrastructure/persistence/mysql"
	"github.com/wyfcoding/dexcore/pkg/logger"
	"github.com/wyfcoding/dexcore/pkg/response"
)

// SequencerHandler 负责处理 HTTP 请求
type SequencerHandler struct {
	requests *journal.Appender
	worker   *application.Worker
	trades   *mysql.TradeRepository
}

// NewSequencerHandler 构造函数，trades 可为 nil（成交归档关闭时）
func NewSequencerHandler(requests *journal.Appender, worker *application.Worker, trades *mysql.TradeRepository) *SequencerHandler {
	return &SequencerHandler{requests: requests, worker: worker, trades: trades}
}

// RegisterRoutes 注册路由
func (h *SequencerHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/sequencer")
	{
		api.POST("/markets", h.AddMarket)
		api.POST("/order-batches", h.ApplyOrderBatch)
		api.POST("/balance-batches", h.ApplyBalanceBatch)
		api.POST("/fee-rates", h.SetFeeRates)
		api.POST("/withdrawal-fees", h.SetWithdrawalFees)

		api.GET("/orderbook", h.GetOrderBook)
		api.GET("/balances", h.GetBalances)
		api.GET("/markets", h.GetMarkets)
		api.GET("/trades", h.GetTrades)
	}
	router.GET("/healthz", h.Healthz)
}

// submit 为请求补齐 GUID 并追加到请求日志，返回分配的日志序列号
func (h *SequencerHandler) submit(c *gin.Context, req *domain.SequencerRequest) {
	if req.GUID == "" {
		req.GUID = uuid.NewString()
	}
	payload, err := json.Marshal(req)
	if err != nil {
		response.ErrorWithStatus(c, nethttp.StatusBadRequest, "invalid request data", err.Error())
		return
	}
	seq, err := h.requests.Append(payload)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to append request", "type", req.Type, "error", err)
		response.Error(c, fmt.Errorf("request journal unavailable"))
		return
	}
	response.Accepted(c, gin.H{"guid": req.GUID, "sequence": seq})
}

// AddMarket 建市请求，落盘后异步生效
func (h *SequencerHandler) AddMarket(c *gin.Context) {
	var payload domain.AddMarketPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.ErrorWithStatus(c, nethttp.StatusBadRequest, "invalid request data", err.Error())
		return
	}
	if err := payload.MarketParams.Validate(); err != nil {
		response.ErrorWithStatus(c, nethttp.StatusBadRequest, "invalid market params", err.Error())
		return
	}
	h.submit(c, &domain.SequencerRequest{Type: domain.RequestAddMarket, AddMarket: &payload})
}

// ApplyOrderBatch 提交订单批次
func (h *SequencerHandler) ApplyOrderBatch(c *gin.Context) {
	var payload domain.OrderBatch
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.ErrorWithStatus(c, nethttp.StatusBadRequest, "invalid request data", err.Error())
		return
	}
	if payload.MarketID == "" {
		response.ErrorWithStatus(c, nethttp.StatusBadRequest, "market_id is required", "")
		return
	}
	h.submit(c, &domain.SequencerRequest{Type: domain.RequestApplyOrderBatch, OrderBatch: &payload})
}

// ApplyBalanceBatch 提交余额批次
func (h *SequencerHandler) ApplyBalanceBatch(c *gin.Context) {
	var payload domain.BalanceBatch
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.ErrorWithStatus(c, nethttp.StatusBadRequest, "invalid request data", err.Error())
		return
	}
	h.submit(c, &domain.SequencerRequest{Type: domain.RequestApplyBalanceBatch, BalanceBatch: &payload})
}

// SetFeeRates 设置吃单/挂单费率
func (h *SequencerHandler) SetFeeRates(c *gin.Context) {
	var payload domain.FeeRates
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.ErrorWithStatus(c, nethttp.StatusBadRequest, "invalid request data", err.Error())
		return
	}
	if !payload.Valid() {
		response.ErrorWithStatus(c, nethttp.StatusBadRequest, "fee rates out of range", "")
		return
	}
	h.submit(c, &domain.SequencerRequest{Type: domain.RequestSetFeeRates, FeeRates: &payload})
}

// SetWithdrawalFees 设置按资产的提现手续费
func (h *SequencerHandler) SetWithdrawalFees(c *gin.Context) {
	var payload domain.WithdrawalFeesPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.ErrorWithStatus(c, nethttp.StatusBadRequest, "invalid request data", err.Error())
		return
	}
	h.submit(c, &domain.SequencerRequest{Type: domain.RequestSetWithdrawalFees, WithdrawalFees: &payload})
}

// GetOrderBook 获取指定市场的盘口快照
func (h *SequencerHandler) GetOrderBook(c *gin.Context) {
	marketID := c.Query("market_id")
	if marketID == "" {
		response.ErrorWithStatus(c, nethttp.StatusBadRequest, "market_id parameter is required", "")
		return
	}
	snap := h.worker.Snapshot()
	for _, m := range snap.Markets {
		if m.ID == marketID {
			response.Success(c, gin.H{"sequence": snap.Sequence, "market": m})
			return
		}
	}
	response.ErrorWithStatus(c, nethttp.StatusNotFound, "unknown market", marketID)
}

// GetBalances 获取余额，可按钱包过滤
func (h *SequencerHandler) GetBalances(c *gin.Context) {
	wallet := c.Query("wallet")
	snap := h.worker.Snapshot()
	if wallet == "" {
		response.Success(c, gin.H{"sequence": snap.Sequence, "balances": snap.Balances})
		return
	}
	filtered := make([]domain.BalanceChange, 0, 8)
	for _, b := range snap.Balances {
		if b.Wallet == wallet {
			filtered = append(filtered, b)
		}
	}
	response.Success(c, gin.H{"sequence": snap.Sequence, "balances": filtered})
}

// GetMarkets 获取全部市场参数与参考价
func (h *SequencerHandler) GetMarkets(c *gin.Context) {
	snap := h.worker.Snapshot()
	markets := make([]gin.H, 0, len(snap.Markets))
	for _, m := range snap.Markets {
		markets = append(markets, gin.H{
			"id":              m.ID,
			"base_asset":      m.BaseAsset,
			"quote_asset":     m.QuoteAsset,
			"tick_size":       m.TickSize,
			"reference_price": m.ReferencePrice,
		})
	}
	response.Success(c, gin.H{"sequence": snap.Sequence, "markets": markets})
}

// GetTrades 获取指定市场的最近成交历史（归档库）
func (h *SequencerHandler) GetTrades(c *gin.Context) {
	if h.trades == nil {
		response.ErrorWithStatus(c, nethttp.StatusNotImplemented, "trade archiving is disabled", "")
		return
	}
	marketID := c.Query("market_id")
	if marketID == "" {
		response.ErrorWithStatus(c, nethttp.StatusBadRequest, "market_id parameter is required", "")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		response.ErrorWithStatus(c, nethttp.StatusBadRequest, "invalid limit", "")
		return
	}
	trades, err := h.trades.GetLatestTrades(c.Request.Context(), marketID, limit)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to get trade history", "market_id", marketID, "error", err)
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"data": trades})
}

// Healthz 健康检查，返回最近处理的序列号
func (h *SequencerHandler) Healthz(c *gin.Context) {
	snap := h.worker.Snapshot()
	response.Success(c, gin.H{"status": "ok", "sequence": snap.Sequence})
}
