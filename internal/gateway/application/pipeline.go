package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finsignal/signalbridge/internal/gateway/domain"
	"github.com/finsignal/signalbridge/pkg/logger"
	"github.com/shopspring/decimal"
)

// Snapshot 启动时从配置构建的不可变交易参数快照。
// 任何组件都不会在运行期重新读取环境。
type Snapshot struct {
	Sizer            domain.Sizer
	DefaultLeverage  int
	Policy           domain.LeveragePolicy
	LeveragePerSym   map[string]int
	Whitelist        domain.Whitelist
	DryRun           bool
	SimulatedBalance decimal.Decimal
	RequestTimeout   time.Duration
}

// Decision 一次信号处理的决策摘要
type Decision struct {
	Intent domain.TradeIntent
	Order  domain.ResolvedOrder
	Result domain.ExecutionResult
}

// noopPublisher 事件流的空实现
type noopPublisher struct{}

func (noopPublisher) PublishExecution(context.Context, domain.ExecutionResult) error { return nil }

// NoopPublisher 返回事件流空实现
func NoopPublisher() domain.EventPublisher { return noopPublisher{} }

// SignalService webhook → 订单的决策管道：
// 归一化 → 白名单 → 杠杆解析 → 仓位计算 → 执行 → 状态登记 → 通知。
// 每个阶段都可能以拒绝短路整条管道。
type SignalService struct {
	snapshot  Snapshot
	executor  OrderExecutor
	exchange  domain.Exchange
	tracker   domain.PositionTracker
	notifier  domain.Notifier
	publisher domain.EventPublisher
}

// NewSignalService 构造管道服务。exchange 仅在实盘模式下被访问。
func NewSignalService(
	snapshot Snapshot,
	executor OrderExecutor,
	exchange domain.Exchange,
	tracker domain.PositionTracker,
	notifier domain.Notifier,
	publisher domain.EventPublisher,
) *SignalService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &SignalService{
		snapshot:  snapshot,
		executor:  executor,
		exchange:  exchange,
		tracker:   tracker,
		notifier:  notifier,
		publisher: publisher,
	}
}

// Process 处理一条入站信号，返回决策摘要或分类错误
func (s *SignalService) Process(ctx context.Context, raw domain.RawSignal) (*Decision, error) {
	if s.snapshot.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.snapshot.RequestTimeout)
		defer cancel()
	}

	// 1. 信号归一化
	intent, err := domain.NormalizeIntent(raw)
	if err != nil {
		return nil, s.reject(ctx, raw.Symbol, err)
	}

	// 2. 白名单
	if !s.snapshot.Whitelist.Allows(intent.Symbol) {
		err := fmt.Errorf("%w: %s", domain.ErrSymbolNotAllowed, intent.Symbol)
		return nil, s.reject(ctx, intent.Symbol, err)
	}

	// 3. 杠杆解析
	leverage, err := domain.ResolveLeverage(intent, s.snapshot.Policy, s.snapshot.LeveragePerSym, s.snapshot.DefaultLeverage)
	if err != nil {
		return nil, s.reject(ctx, intent.Symbol, err)
	}

	// 4. 余额与市场信息。干跑模式是硬性全局开关：不触达交易所。
	balance, filters, err := s.marketContext(ctx, intent.Symbol)
	if err != nil {
		return nil, err
	}

	// 5. 仓位计算
	sizing, err := s.snapshot.Sizer.Size(intent, leverage, balance, s.tracker.UsedMargin(), filters)
	if err != nil {
		return nil, s.reject(ctx, intent.Symbol, err)
	}

	order := domain.ResolvedOrder{
		Symbol:      intent.Symbol,
		Direction:   intent.Direction,
		Leverage:    leverage,
		Quantity:    sizing.Quantity,
		Price:       intent.Price,
		Margin:      sizing.Margin,
		Notional:    sizing.Notional,
		Mode:        s.executor.Mode(),
		Note:        intent.Note,
		StepRounded: sizing.StepRounded,
	}

	// 6. 反手抵消：反向持仓的数量并入本单，使一笔市价单同时完成平仓与开仓
	if existing, ok := s.tracker.Position(intent.Symbol); ok && existing.Direction == intent.Direction.Opposite() {
		order.FlipQuantity = existing.Quantity
		order.Quantity = order.Quantity.Add(existing.Quantity)
		if filters != nil {
			order.Quantity = domain.RoundStep(order.Quantity, filters.StepSize)
		}
	}
	if !order.StepRounded {
		logger.Warn(ctx, "lot step unknown, quantity left unrounded",
			"symbol", order.Symbol, "qty", order.Quantity.String())
	}

	// 7. 执行（执行器负责状态登记）
	result, err := s.executor.Execute(ctx, order)
	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) && !errors.Is(err, domain.ErrExecutionTimeout) {
			err = fmt.Errorf("%w: %v", domain.ErrExecutionTimeout, err)
		}
		s.dispatch(ctx, fmt.Sprintf("❌ %s %s failed: %s", order.Symbol, order.Direction.Side(), err.Error()))
		return nil, err
	}

	// 8. 事件流与通知，均为尽力而为
	if pubErr := s.publisher.PublishExecution(ctx, result); pubErr != nil {
		logger.Warn(ctx, "execution event publish failed", "order_id", result.OrderID, "error", pubErr)
	}
	s.dispatch(ctx, formatExecutionSummary(order, result))

	return &Decision{Intent: intent, Order: order, Result: result}, nil
}

// Summary dashboard 概要：余额、额度与占用
type Summary struct {
	Balance       decimal.Decimal `json:"balance"`
	AllocationCap decimal.Decimal `json:"allocation_cap"`
	UsedMargin    decimal.Decimal `json:"used_margin"`
	Remaining     decimal.Decimal `json:"remaining"`
	DryRun        bool            `json:"dry_run"`
	OpenPositions int             `json:"open_positions"`
}

// Summarize 构建 dashboard 概要
func (s *SignalService) Summarize(ctx context.Context) (Summary, error) {
	balance := s.snapshot.SimulatedBalance
	if !s.snapshot.DryRun {
		b, err := s.exchange.Balance(ctx)
		if err != nil {
			return Summary{}, fmt.Errorf("%w: balance query: %v", domain.ErrExecutionFailed, err)
		}
		balance = b.Wallet
	}
	allocCap := balance.Mul(s.snapshot.Sizer.AllocationPct).Div(decimal.NewFromInt(100))
	used := s.tracker.UsedMargin()
	return Summary{
		Balance:       balance,
		AllocationCap: allocCap,
		UsedMargin:    used,
		Remaining:     allocCap.Sub(used),
		DryRun:        s.snapshot.DryRun,
		OpenPositions: len(s.tracker.OpenPositions()),
	}, nil
}

// marketContext 取余额与交易对限制。干跑用模拟余额且不取市场信息；
// 实盘下市场信息失败降级为不取整（已记录缺陷），余额失败则终止。
func (s *SignalService) marketContext(ctx context.Context, symbol string) (decimal.Decimal, *domain.SymbolFilters, error) {
	if s.snapshot.DryRun {
		return s.snapshot.SimulatedBalance, nil, nil
	}

	b, err := s.exchange.Balance(ctx)
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("%w: balance query: %v", domain.ErrExecutionFailed, err)
	}

	filters, err := s.exchange.SymbolFilters(ctx, symbol)
	if err != nil {
		logger.Warn(ctx, "market info unavailable, sizing without lot filters",
			"symbol", symbol, "error", err)
		return b.Wallet, nil, nil
	}
	return b.Wallet, &filters, nil
}

// reject 终止管道：记录拒绝并尽力发送拒绝通知
func (s *SignalService) reject(ctx context.Context, symbol string, err error) error {
	logger.Info(ctx, "signal rejected",
		"symbol", symbol, "code", domain.ErrorCode(err), "reason", err.Error())
	s.dispatch(ctx, fmt.Sprintf("⛔ signal rejected (%s): %s", domain.ErrorCode(err), err.Error()))
	return err
}

// dispatch 发送通知。失败仅记日志，绝不向上传播。
func (s *SignalService) dispatch(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, text); err != nil {
		logger.Warn(ctx, "notification dispatch failed", "error", err)
	}
}

// formatExecutionSummary 生成人类可读的执行摘要
func formatExecutionSummary(order domain.ResolvedOrder, result domain.ExecutionResult) string {
	msg := fmt.Sprintf("%s %s qty=%s lev=%d\nprice=%s margin=%s notional=%s\nmode=%s order_id=%s",
		order.Symbol, order.Direction.Side(),
		order.Quantity.String(), order.Leverage,
		result.FilledPrice.String(), order.Margin.StringFixed(2), order.Notional.StringFixed(2),
		order.Mode, result.OrderID)
	if order.FlipQuantity.Sign() > 0 {
		msg += fmt.Sprintf("\nflip: closed %s of opposite position", order.FlipQuantity.String())
	}
	return msg
}
