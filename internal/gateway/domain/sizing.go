package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Sizer 按仓位百分比计算下单数量
type Sizer struct {
	// AllocationPct 总仓位占钱包余额的百分比
	AllocationPct decimal.Decimal
	// PerTradePct 单笔占总仓位的百分比
	PerTradePct decimal.Decimal
}

// NewSizer 构造仓位计算器
func NewSizer(allocationPct, perTradePct float64) Sizer {
	return Sizer{
		AllocationPct: decimal.NewFromFloat(allocationPct),
		PerTradePct:   decimal.NewFromFloat(perTradePct),
	}
}

// Sizing 计算结果
type Sizing struct {
	Quantity decimal.Decimal
	Margin   decimal.Decimal
	Notional decimal.Decimal
	// StepRounded 为 false 表示市场信息不可用，数量未按步长取整
	StepRounded bool
}

// RoundStep 将数量向下取整到交易所步长；步长为零时原样返回
func RoundStep(value, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}

// Size 计算下单数量：
//
//	cap      = balance × AllocationPct/100
//	margin   = cap × PerTradePct/100（受剩余额度限制）
//	notional = margin × leverage
//	qty      = notional / price，向下取整到步长
//
// 意图携带直接数量时跳过仓位计算，仅做步长与最小限制校验。
// filters 为 nil 表示市场信息协作方不可用，此时不取整。
func (s Sizer) Size(intent TradeIntent, leverage int, balance, usedMargin decimal.Decimal, filters *SymbolFilters) (Sizing, error) {
	lev := decimal.NewFromInt(int64(leverage))

	allocCap := balance.Mul(s.AllocationPct).Div(hundred)
	remaining := allocCap.Sub(usedMargin)
	if remaining.Sign() <= 0 {
		return Sizing{}, fmt.Errorf("%w: allocation limit reached (cap=%s used=%s)",
			ErrInsufficientBalance, allocCap.String(), usedMargin.String())
	}

	var step decimal.Decimal
	if filters != nil {
		step = filters.StepSize
	}

	var out Sizing
	if intent.Quantity.Sign() > 0 {
		// 载荷直接指定数量
		out.Quantity = RoundStep(intent.Quantity, step)
		out.Notional = out.Quantity.Mul(intent.Price)
		out.Margin = out.Notional.Div(lev)
	} else {
		margin := allocCap.Mul(s.PerTradePct).Div(hundred)
		if margin.GreaterThan(remaining) {
			margin = remaining
		}
		if margin.Sign() <= 0 {
			return Sizing{}, fmt.Errorf("%w: allocated capital is zero", ErrInsufficientBalance)
		}
		out.Margin = margin
		out.Notional = margin.Mul(lev)
		out.Quantity = RoundStep(out.Notional.Div(intent.Price), step)
	}
	out.StepRounded = filters != nil && !step.IsZero()

	if out.Quantity.Sign() <= 0 {
		return Sizing{}, fmt.Errorf("%w: calculated quantity is zero", ErrInsufficientBalance)
	}
	if filters != nil {
		if out.Quantity.LessThan(filters.MinQty) {
			return Sizing{}, fmt.Errorf("%w: quantity %s below minimum lot %s",
				ErrInsufficientBalance, out.Quantity.String(), filters.MinQty.String())
		}
		if filters.MinNotional.Sign() > 0 && out.Quantity.Mul(intent.Price).LessThan(filters.MinNotional) {
			return Sizing{}, fmt.Errorf("%w: notional below exchange minimum %s",
				ErrInsufficientBalance, filters.MinNotional.String())
		}
	}
	return out, nil
}
