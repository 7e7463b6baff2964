package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// SymbolFilters 交易所对交易对的下单限制
type SymbolFilters struct {
	// StepSize 数量步长（LOT_SIZE.stepSize）
	StepSize decimal.Decimal
	// MinQty 最小下单量（LOT_SIZE.minQty）
	MinQty decimal.Decimal
	// MinNotional 最小名义价值（MIN_NOTIONAL.notional）
	MinNotional decimal.Decimal
}

// Balance USDT-M 期货账户余额
type Balance struct {
	// Wallet 钱包总余额
	Wallet decimal.Decimal
	// Available 可用余额
	Available decimal.Decimal
}

// OrderAck 交易所对下单请求的应答
type OrderAck struct {
	OrderID  string
	Status   string
	AvgPrice decimal.Decimal
}

// Exchange 期货交易所协作方。实盘执行与仓位计算消费此接口；干跑模式绝不触达。
type Exchange interface {
	// SymbolFilters 查询交易对的步长与最小限制
	SymbolFilters(ctx context.Context, symbol string) (SymbolFilters, error)
	// Balance 查询 USDT 余额
	Balance(ctx context.Context) (Balance, error)
	// SetLeverage 设置交易对杠杆
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	// PlaceMarketOrder 市价下单，side 为 BUY/SELL
	PlaceMarketOrder(ctx context.Context, symbol string, side string, quantity decimal.Decimal) (OrderAck, error)
}

// Notifier 通知协作方。尽力而为，失败不影响请求结果。
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// PositionTracker 进程级持仓与历史注册表。
// 写入仅来自 Order Executor，读取供 dashboard 协作方使用。
type PositionTracker interface {
	// Apply 原子地追加执行结果并更新持仓（开仓/加仓/反手/平仓）
	Apply(order ResolvedOrder, result ExecutionResult)
	// Position 返回交易对的当前净持仓
	Position(symbol string) (PositionRecord, bool)
	// OpenPositions 返回全部持仓
	OpenPositions() []PositionRecord
	// History 返回最近的执行历史，新在前
	History(limit int) []ExecutionResult
	// UsedMargin 当前持仓占用的保证金合计
	UsedMargin() decimal.Decimal
}

// EventPublisher 执行事件流，供下游 dashboard 消费；可为空实现
type EventPublisher interface {
	PublishExecution(ctx context.Context, result ExecutionResult) error
}
