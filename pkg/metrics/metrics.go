// Package metrics 提供 Prometheus 指标集合与 /metrics 暴露入口。
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wyfcoding/dexcore/pkg/logger"
)

// Metrics 定序服务指标集合
type Metrics struct {
	// 已处理请求计数，按请求类型与错误码区分
	RequestsTotal *prometheus.CounterVec
	// 单请求处理耗时
	RequestDuration prometheus.Histogram
	// 撮合产生的成交计数
	TradesTotal prometheus.Counter
	// 当前挂单数量
	OrdersResting prometheus.Gauge
	// 请求日志读取位置
	RequestSequence prometheus.Gauge
	// 响应日志写入位置
	ResponseSequence prometheus.Gauge
	// 下游分发消息计数，按主题区分
	FanoutPublished *prometheus.CounterVec
	// 下游分发失败计数
	FanoutErrors prometheus.Counter
	// 检查点写入计数
	CheckpointsTotal prometheus.Counter

	registry *prometheus.Registry
}

// New 创建指标实例并注册到独立 registry
func New(serviceName string) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dexcore",
			Subsystem: serviceName,
			Name:      "requests_total",
			Help:      "Total sequencer requests processed",
		}, []string{"type", "error"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dexcore",
			Subsystem: serviceName,
			Name:      "request_duration_seconds",
			Help:      "Sequencer request processing duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 12),
		}),
		TradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dexcore",
			Subsystem: serviceName,
			Name:      "trades_total",
			Help:      "Total trades matched",
		}),
		OrdersResting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dexcore",
			Subsystem: serviceName,
			Name:      "orders_resting",
			Help:      "Number of resting orders across all markets",
		}),
		RequestSequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dexcore",
			Subsystem: serviceName,
			Name:      "request_sequence",
			Help:      "Last consumed request journal sequence",
		}),
		ResponseSequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dexcore",
			Subsystem: serviceName,
			Name:      "response_sequence",
			Help:      "Last appended response journal sequence",
		}),
		FanoutPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dexcore",
			Subsystem: serviceName,
			Name:      "fanout_published_total",
			Help:      "Messages published to downstream topics",
		}, []string{"topic"}),
		FanoutErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dexcore",
			Subsystem: serviceName,
			Name:      "fanout_errors_total",
			Help:      "Downstream publish failures",
		}),
		CheckpointsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dexcore",
			Subsystem: serviceName,
			Name:      "checkpoints_total",
			Help:      "State checkpoints written",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.TradesTotal,
		m.OrdersResting,
		m.RequestSequence,
		m.ResponseSequence,
		m.FanoutPublished,
		m.FanoutErrors,
		m.CheckpointsTotal,
	)
	return m
}

// Serve 启动独立的指标 HTTP 服务，阻塞直到 ctx 取消
func (m *Metrics) Serve(ctx context.Context, port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "metrics server listening", "port", port, "path", path)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
