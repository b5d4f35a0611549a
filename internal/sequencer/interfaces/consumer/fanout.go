// Package consumer 响应日志下游分发。
// 独立于定序核心消费响应日志，将成交、订单变更、余额变更
// 发布到 Kafka 并归档成交；分发失败只重试，绝不反向影响核心。
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/dexcore/internal/sequencer/domain"
	"github.com/wyfcoding/dexcore/internal/sequencer/infrastructure/journal"
	"github.com/wyfcoding/dexcore/internal/sequencer/infrastructure/persistence/mysql"
	"github.com/wyfcoding/dexcore/pkg/metrics"
	"github.com/wyfcoding/dexcore/pkg/mq"
)

// Fanout 响应日志分发器
type Fanout struct {
	in       *journal.Tailer
	producer *mq.Producer
	trades   *mysql.TradeRepository
	prefix   string
	metrics  *metrics.Metrics
	logger   *slog.Logger

	// tickSizes 从建市响应中学到的各市场价格步长，
	// 用于把价格档位还原为实际价格
	tickSizes map[string]decimal.Decimal
}

// NewFanout 创建分发器。producer 与 trades 均可为 nil，表示对应出口关闭。
func NewFanout(in *journal.Tailer, producer *mq.Producer, trades *mysql.TradeRepository, topicPrefix string, m *metrics.Metrics, logger *slog.Logger) *Fanout {
	return &Fanout{
		in:        in,
		producer:  producer,
		trades:    trades,
		prefix:    topicPrefix,
		metrics:   m,
		logger:    logger.With("module", "response_fanout"),
		tickSizes: make(map[string]decimal.Decimal),
	}
}

// TradeTopic 成交主题名
func (f *Fanout) TradeTopic() string { return f.prefix + ".trades" }

// OrderTopic 订单变更主题名
func (f *Fanout) OrderTopic() string { return f.prefix + ".orders" }

// BalanceTopic 余额变更主题名
func (f *Fanout) BalanceTopic() string { return f.prefix + ".balances" }

// Run 持续消费响应日志直到 ctx 取消
func (f *Fanout) Run(ctx context.Context) error {
	f.logger.Info("response fanout started", "from_sequence", f.in.NextSequence())
	for {
		rec, err := f.in.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				f.logger.Info("response fanout stopped")
				return nil
			}
			return fmt.Errorf("response journal read failed: %w", err)
		}
		if err := f.dispatch(ctx, rec); err != nil {
			// 分发是尽力而为，失败记录后继续
			f.logger.Error("response dispatch failed", "sequence", rec.Sequence, "error", err)
			if f.metrics != nil {
				f.metrics.FanoutErrors.Inc()
			}
		}
	}
}

func (f *Fanout) dispatch(ctx context.Context, rec *journal.Record) error {
	var resp domain.SequencerResponse
	if err := json.Unmarshal(rec.Payload, &resp); err != nil {
		return fmt.Errorf("unparseable response at sequence %d: %w", rec.Sequence, err)
	}

	for _, mc := range resp.MarketsCreated {
		f.tickSizes[mc.ID] = mc.TickSize
	}

	if err := f.publishTrades(ctx, &resp); err != nil {
		return err
	}
	if err := f.publishOrders(ctx, &resp); err != nil {
		return err
	}
	if err := f.publishBalances(ctx, &resp); err != nil {
		return err
	}
	if err := f.archiveTrades(ctx, &resp); err != nil {
		return err
	}
	return nil
}

func (f *Fanout) publishTrades(ctx context.Context, resp *domain.SequencerResponse) error {
	if f.producer == nil || len(resp.TradesCreated) == 0 {
		return nil
	}
	keys := make([]string, 0, len(resp.TradesCreated))
	values := make([]any, 0, len(resp.TradesCreated))
	for _, t := range resp.TradesCreated {
		keys = append(keys, t.MarketID)
		values = append(values, t)
	}
	if err := f.producer.SendBatch(ctx, f.TradeTopic(), keys, values); err != nil {
		return err
	}
	if f.metrics != nil {
		f.metrics.FanoutPublished.WithLabelValues(f.TradeTopic()).Add(float64(len(values)))
	}
	return nil
}

func (f *Fanout) publishOrders(ctx context.Context, resp *domain.SequencerResponse) error {
	if f.producer == nil || len(resp.OrdersChanged) == 0 {
		return nil
	}
	keys := make([]string, 0, len(resp.OrdersChanged))
	values := make([]any, 0, len(resp.OrdersChanged))
	for _, oc := range resp.OrdersChanged {
		keys = append(keys, strconv.FormatInt(oc.GUID, 10))
		values = append(values, oc)
	}
	if err := f.producer.SendBatch(ctx, f.OrderTopic(), keys, values); err != nil {
		return err
	}
	if f.metrics != nil {
		f.metrics.FanoutPublished.WithLabelValues(f.OrderTopic()).Add(float64(len(values)))
	}
	return nil
}

func (f *Fanout) publishBalances(ctx context.Context, resp *domain.SequencerResponse) error {
	if f.producer == nil || len(resp.BalancesChanged) == 0 {
		return nil
	}
	keys := make([]string, 0, len(resp.BalancesChanged))
	values := make([]any, 0, len(resp.BalancesChanged))
	for _, bc := range resp.BalancesChanged {
		keys = append(keys, bc.Wallet+"/"+bc.Asset)
		values = append(values, bc)
	}
	if err := f.producer.SendBatch(ctx, f.BalanceTopic(), keys, values); err != nil {
		return err
	}
	if f.metrics != nil {
		f.metrics.FanoutPublished.WithLabelValues(f.BalanceTopic()).Add(float64(len(values)))
	}
	return nil
}

func (f *Fanout) archiveTrades(ctx context.Context, resp *domain.SequencerResponse) error {
	if f.trades == nil || len(resp.TradesCreated) == 0 {
		return nil
	}
	return f.trades.SaveBatch(ctx, resp.Sequence, f.priceForLevel, resp.TradesCreated)
}

func (f *Fanout) priceForLevel(marketID string, levelIx int64) decimal.Decimal {
	tick, ok := f.tickSizes[marketID]
	if !ok {
		// 从日志中游开始消费时可能错过建市事件
		f.logger.Warn("unknown tick size for market", "market_id", marketID)
		return decimal.Zero
	}
	return tick.Mul(decimal.NewFromInt(levelIx))
}
