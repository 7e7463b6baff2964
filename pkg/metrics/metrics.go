// Package metrics 提供 Prometheus helper，覆盖 webhook 管道与 HTTP 服务的常用指标。
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/finsignal/signalbridge/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal prometheus.Counter
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 收到的 webhook 信号计数
	WebhooksTotal prometheus.Counter
	// 被拒绝的信号计数（按拒绝原因）
	WebhooksRejected *prometheus.CounterVec
	// 执行完成的订单计数（按模式与状态）
	OrdersExecuted *prometheus.CounterVec
	// 管道处理耗时
	PipelineDuration prometheus.Histogram
	// 当前持仓数
	PositionsActive prometheus.Gauge
	// 通知发送失败计数
	NotificationsFailed prometheus.Counter
}

// New 创建指标实例。serviceName 中的连字符替换为下划线以满足指标命名规则。
func New(serviceName string) *Metrics {
	serviceName = strings.ReplaceAll(serviceName, "-", "_")
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "signalbridge",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "signalbridge",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		WebhooksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "signalbridge",
			Subsystem: serviceName,
			Name:      "webhooks_total",
			Help:      "Total webhook signals received",
		}),
		WebhooksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signalbridge",
			Subsystem: serviceName,
			Name:      "webhooks_rejected_total",
			Help:      "Total webhook signals rejected before execution",
		}, []string{"reason"}),
		OrdersExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signalbridge",
			Subsystem: serviceName,
			Name:      "orders_executed_total",
			Help:      "Total orders processed by the executor",
		}, []string{"mode", "status"}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "signalbridge",
			Subsystem: serviceName,
			Name:      "pipeline_duration_seconds",
			Help:      "Webhook pipeline duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		PositionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "signalbridge",
			Subsystem: serviceName,
			Name:      "positions_active",
			Help:      "Number of open positions",
		}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "signalbridge",
			Subsystem: serviceName,
			Name:      "notifications_failed_total",
			Help:      "Total notification dispatch failures",
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.WebhooksTotal,
		m.WebhooksRejected,
		m.OrdersExecuted,
		m.PipelineDuration,
		m.PositionsActive,
		m.NotificationsFailed,
	}
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			return fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return nil
}

// Serve 启动独立的指标 HTTP 服务，阻塞直到 ctx 取消
func Serve(ctx context.Context, port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "metrics server starting", "port", port, "path", path)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
