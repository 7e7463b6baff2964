// Package application 信号网关的应用服务：webhook 管道编排与订单执行器。
package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/finsignal/signalbridge/internal/gateway/domain"
	"github.com/finsignal/signalbridge/pkg/logger"
	"github.com/google/uuid"
)

// OrderExecutor 订单执行能力。干跑与实盘各为一个实现，启动时按配置选定一个。
type OrderExecutor interface {
	Execute(ctx context.Context, order domain.ResolvedOrder) (domain.ExecutionResult, error)
	Mode() domain.ExecutionMode
}

// DryRunExecutor 干跑执行器：按意图价格合成成交，不触达任何外部系统
type DryRunExecutor struct {
	tracker domain.PositionTracker
}

// NewDryRunExecutor 构造干跑执行器
func NewDryRunExecutor(tracker domain.PositionTracker) *DryRunExecutor {
	return &DryRunExecutor{tracker: tracker}
}

// Mode 返回执行模式
func (e *DryRunExecutor) Mode() domain.ExecutionMode { return domain.ModeDryRun }

// Execute 合成一条 FILLED 结果并更新持仓
func (e *DryRunExecutor) Execute(ctx context.Context, order domain.ResolvedOrder) (domain.ExecutionResult, error) {
	result := domain.ExecutionResult{
		OrderID:     "dry-" + uuid.New().String(),
		Symbol:      order.Symbol,
		Direction:   order.Direction,
		Status:      domain.StatusFilled,
		Quantity:    order.Quantity,
		FilledPrice: order.Price,
		Leverage:    order.Leverage,
		Mode:        domain.ModeDryRun,
		Timestamp:   time.Now().UTC(),
	}
	e.tracker.Apply(order, result)
	logger.Info(ctx, "dry-run order filled",
		"symbol", order.Symbol, "side", order.Direction.Side(),
		"qty", order.Quantity.String(), "leverage", order.Leverage)
	return result, nil
}

// LiveExecutor 实盘执行器：先按需设置杠杆，再市价下单并对账应答
type LiveExecutor struct {
	exchange domain.Exchange
	tracker  domain.PositionTracker

	// lastLeverage 记录每个交易对最近一次设置的杠杆，避免冗余调用
	mu           sync.Mutex
	lastLeverage map[string]int
}

// NewLiveExecutor 构造实盘执行器
func NewLiveExecutor(exchange domain.Exchange, tracker domain.PositionTracker) *LiveExecutor {
	return &LiveExecutor{
		exchange:     exchange,
		tracker:      tracker,
		lastLeverage: make(map[string]int),
	}
}

// Mode 返回执行模式
func (e *LiveExecutor) Mode() domain.ExecutionMode { return domain.ModeLive }

// Execute 向交易所提交订单。交易所拒单不重试；传输错误退避后重试一次。
// 网络调用全程不持有 tracker 锁。
func (e *LiveExecutor) Execute(ctx context.Context, order domain.ResolvedOrder) (domain.ExecutionResult, error) {
	if err := e.ensureLeverage(ctx, order.Symbol, order.Leverage); err != nil {
		return e.failure(order, err)
	}

	ack, err := e.placeWithRetry(ctx, order)
	if err != nil {
		return e.failure(order, err)
	}

	filledPrice := ack.AvgPrice
	if filledPrice.IsZero() {
		filledPrice = order.Price
	}
	result := domain.ExecutionResult{
		OrderID:     ack.OrderID,
		Symbol:      order.Symbol,
		Direction:   order.Direction,
		Status:      domain.StatusFilled,
		Quantity:    order.Quantity,
		FilledPrice: filledPrice,
		Leverage:    order.Leverage,
		Mode:        domain.ModeLive,
		Timestamp:   time.Now().UTC(),
	}
	e.tracker.Apply(order, result)
	logger.Info(ctx, "live order placed",
		"symbol", order.Symbol, "side", order.Direction.Side(),
		"qty", order.Quantity.String(), "order_id", ack.OrderID, "status", ack.Status)
	return result, nil
}

// ensureLeverage 仅在与该交易对上一次已知杠杆不同时调用交易所
func (e *LiveExecutor) ensureLeverage(ctx context.Context, symbol string, leverage int) error {
	e.mu.Lock()
	last, known := e.lastLeverage[symbol]
	e.mu.Unlock()
	if known && last == leverage {
		return nil
	}

	if err := e.exchange.SetLeverage(ctx, symbol, leverage); err != nil {
		return classifyExchangeError(err, "set leverage")
	}

	e.mu.Lock()
	e.lastLeverage[symbol] = leverage
	e.mu.Unlock()
	return nil
}

// placeWithRetry 市价下单，传输错误退避后重试一次
func (e *LiveExecutor) placeWithRetry(ctx context.Context, order domain.ResolvedOrder) (domain.OrderAck, error) {
	operation := func() (domain.OrderAck, error) {
		ack, err := e.exchange.PlaceMarketOrder(ctx, order.Symbol, order.Direction.Side(), order.Quantity)
		if err != nil {
			var rejection *domain.ExchangeRejection
			if errors.As(err, &rejection) {
				// 业务拒单是终态
				return domain.OrderAck{}, backoff.Permanent(err)
			}
			logger.Warn(ctx, "transient order placement failure, will retry once",
				"symbol", order.Symbol, "error", err)
			return domain.OrderAck{}, err
		}
		return ack, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond

	ack, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(2),
	)
	if err != nil {
		return domain.OrderAck{}, classifyExchangeError(err, "place order")
	}
	return ack, nil
}

// failure 将执行失败记入历史并返回分类错误
func (e *LiveExecutor) failure(order domain.ResolvedOrder, err error) (domain.ExecutionResult, error) {
	status := domain.StatusError
	if errors.Is(err, domain.ErrExecutionRejected) {
		status = domain.StatusRejected
	}
	result := domain.ExecutionResult{
		OrderID:   "failed-" + uuid.New().String(),
		Symbol:    order.Symbol,
		Direction: order.Direction,
		Status:    status,
		Quantity:  order.Quantity,
		Leverage:  order.Leverage,
		Mode:      domain.ModeLive,
		Reason:    err.Error(),
		Timestamp: time.Now().UTC(),
	}
	e.tracker.Apply(order, result)
	return result, err
}

// classifyExchangeError 将交易所客户端错误映射到错误分类
func classifyExchangeError(err error, op string) error {
	var rejection *domain.ExchangeRejection
	switch {
	case errors.As(err, &rejection):
		return fmt.Errorf("%w: %s: code=%d %s", domain.ErrExecutionRejected, op, rejection.Code, rejection.Message)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %v", domain.ErrExecutionTimeout, op, err)
	default:
		return fmt.Errorf("%w: %s: %v", domain.ErrExecutionFailed, op, err)
	}
}
