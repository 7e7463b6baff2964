// SignalBridge 主程序
// 功能：接收 TradingView 告警 webhook，归一化为交易意图，
// 按配置策略计算杠杆与仓位，在干跑或实盘模式下执行市价单
// 架构：基于 DDD + Gin + Kafka 事件流
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/finsignal/signalbridge/internal/gateway/application"
	"github.com/finsignal/signalbridge/internal/gateway/domain"
	"github.com/finsignal/signalbridge/internal/gateway/infrastructure/binance"
	"github.com/finsignal/signalbridge/internal/gateway/infrastructure/memory"
	"github.com/finsignal/signalbridge/internal/gateway/infrastructure/messaging"
	"github.com/finsignal/signalbridge/internal/gateway/infrastructure/telegram"
	httphandler "github.com/finsignal/signalbridge/internal/gateway/interfaces/http"
	"github.com/finsignal/signalbridge/pkg/config"
	"github.com/finsignal/signalbridge/pkg/logger"
	"github.com/finsignal/signalbridge/pkg/metrics"
	"github.com/finsignal/signalbridge/pkg/middleware"
	"github.com/finsignal/signalbridge/pkg/mq"
)

func main() {
	// 1. 加载配置
	configPath := flag.String("config", "configs/gateway/config.toml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	loggerCfg := logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}
	if err := logger.Init(loggerCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	logger.Info(ctx, "Starting SignalBridge",
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
		"dry_run", cfg.Trading.DryRun,
	)

	// 3. 初始化指标
	m := metrics.New(cfg.ServiceName)
	if err := m.Register(); err != nil {
		logger.Error(ctx, "Failed to register metrics", "error", err)
		os.Exit(1)
	}

	// 4. 初始化基础设施
	tracker := memory.NewPositionStore(cfg.Trading.HistoryRetention)

	var exchange domain.Exchange
	if !cfg.Trading.DryRun {
		exchange = binance.New(binance.Config{
			APIKey:     cfg.Binance.APIKey,
			APISecret:  cfg.Binance.APISecret,
			BaseURL:    cfg.Binance.BaseURL,
			RecvWindow: cfg.Binance.RecvWindow,
			Timeout:    time.Duration(cfg.Binance.Timeout) * time.Second,
		})
		logger.Info(ctx, "Binance client initialized", "base_url", cfg.Binance.BaseURL)
	}

	var notifier domain.Notifier
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		notifier = &countingNotifier{
			inner:    telegram.New(cfg.Telegram.BotToken, cfg.Telegram.ChatID),
			failures: m.NotificationsFailed,
		}
		logger.Info(ctx, "Telegram notifier enabled")
	}

	publisher := application.NoopPublisher()
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		if err != nil {
			logger.Error(ctx, "Failed to initialize Kafka producer", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		publisher = messaging.NewKafkaExecutionPublisher(producer, cfg.Kafka.Topic)
		logger.Info(ctx, "Kafka execution stream enabled", "topic", cfg.Kafka.Topic)
	}

	// 5. 初始化应用服务：执行器按启动模式二选一
	var executor application.OrderExecutor
	if cfg.Trading.DryRun {
		executor = application.NewDryRunExecutor(tracker)
	} else {
		executor = application.NewLiveExecutor(exchange, tracker)
	}

	snapshot := application.Snapshot{
		Sizer:            domain.NewSizer(cfg.Trading.AllocationPct, cfg.Trading.PerTradePct),
		DefaultLeverage:  cfg.Trading.DefaultLeverage,
		Policy:           domain.ParseLeveragePolicy(cfg.Trading.LeveragePolicy),
		LeveragePerSym:   cfg.Trading.LeverageMap(),
		Whitelist:        domain.NewWhitelist(cfg.Trading.WhitelistSymbols()),
		DryRun:           cfg.Trading.DryRun,
		SimulatedBalance: decimal.NewFromFloat(cfg.Trading.SimulatedBalance),
		RequestTimeout:   time.Duration(cfg.Trading.RequestTimeout) * time.Second,
	}
	service := application.NewSignalService(snapshot, executor, exchange, tracker, notifier, publisher)

	// 6. 初始化 HTTP 服务
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(middleware.GinLoggingMiddleware())
	engine.Use(middleware.GinRecoveryMiddleware())
	engine.Use(middleware.GinMetricsMiddleware(m))

	handler := httphandler.NewGatewayHandler(service, tracker, m)
	handler.RegisterRoutes(engine)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	// 7. 启动并等待退出信号
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		logger.Info(ctx, "HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			logger.Info(ctx, "Metrics server listening", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			return metrics.Serve(gctx, cfg.Metrics.Port, cfg.Metrics.Path)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(ctx, "Server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info(ctx, "SignalBridge stopped")
}

// countingNotifier 在通知失败时累加指标
type countingNotifier struct {
	inner    domain.Notifier
	failures prometheus.Counter
}

func (n *countingNotifier) Notify(ctx context.Context, text string) error {
	err := n.inner.Notify(ctx, text)
	if err != nil {
		n.failures.Inc()
	}
	return err
}
