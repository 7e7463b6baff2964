package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionMode 执行模式，启动时由配置一次性决定
type ExecutionMode string

const (
	ModeDryRun ExecutionMode = "DRY_RUN"
	ModeLive   ExecutionMode = "LIVE"
)

// ResolvedOrder 经过杠杆解析与仓位计算后的可执行订单。
// 到达执行器前 Leverage 与 Quantity 恒为正。
type ResolvedOrder struct {
	Symbol    string
	Direction Direction
	Leverage  int
	// Quantity 下单总量，含反手平仓的抵消量
	Quantity decimal.Decimal
	// FlipQuantity 反手时用于平掉反向持仓的部分，开新仓量 = Quantity - FlipQuantity
	FlipQuantity decimal.Decimal
	Price        decimal.Decimal
	// Margin 本单占用的保证金（USDT）
	Margin decimal.Decimal
	// Notional 名义价值 = Margin × Leverage
	Notional decimal.Decimal
	Mode     ExecutionMode
	Note     string
	// StepRounded 为 false 时数量未按交易所步长取整（市场信息不可用的已记录缺陷）
	StepRounded bool
}

// ExecutionStatus 执行结果状态
type ExecutionStatus string

const (
	StatusFilled   ExecutionStatus = "FILLED"
	StatusRejected ExecutionStatus = "REJECTED"
	StatusError    ExecutionStatus = "ERROR"
)

// ExecutionResult 执行结果，创建后不再修改，仅追加到历史
type ExecutionResult struct {
	// OrderID 干跑模式下为合成 ID，实盘为交易所下发
	OrderID     string          `json:"order_id"`
	Symbol      string          `json:"symbol"`
	Direction   Direction       `json:"direction"`
	Status      ExecutionStatus `json:"status"`
	Quantity    decimal.Decimal `json:"quantity"`
	FilledPrice decimal.Decimal `json:"filled_price"`
	Leverage    int             `json:"leverage"`
	Mode        ExecutionMode   `json:"mode"`
	Reason      string          `json:"reason,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// PositionRecord 单个交易对的净持仓，由 State Tracker 独占持有
type PositionRecord struct {
	Symbol     string          `json:"symbol"`
	Direction  Direction       `json:"direction"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Leverage   int             `json:"leverage"`
	OpenedAt   time.Time       `json:"opened_at"`
}

// Margin 持仓占用的保证金
func (p PositionRecord) Margin() decimal.Decimal {
	if p.Leverage <= 0 {
		return decimal.Zero
	}
	return p.Quantity.Mul(p.EntryPrice).Div(decimal.NewFromInt(int64(p.Leverage)))
}
