package domain

import (
	"fmt"
	"strings"
)

// LeveragePolicy 杠杆策略
type LeveragePolicy string

const (
	// PolicyAuto 载荷杠杆 > 每交易对配置 > 默认值
	PolicyAuto LeveragePolicy = "auto"
	// PolicyWebhook 仅接受载荷杠杆，缺失即拒绝
	PolicyWebhook LeveragePolicy = "webhook"
	// PolicyPerSymbol 仅接受每交易对配置，缺失即拒绝
	PolicyPerSymbol LeveragePolicy = "per_symbol"
	// PolicyDefault 无条件使用默认杠杆
	PolicyDefault LeveragePolicy = "default"
)

// ParseLeveragePolicy 解析策略字符串，未识别时回退到 auto
func ParseLeveragePolicy(s string) LeveragePolicy {
	switch LeveragePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyWebhook:
		return PolicyWebhook
	case PolicyPerSymbol:
		return PolicyPerSymbol
	case PolicyDefault:
		return PolicyDefault
	default:
		return PolicyAuto
	}
}

// ResolveLeverage 按策略为交易意图决定生效杠杆。纯函数，无副作用。
func ResolveLeverage(intent TradeIntent, policy LeveragePolicy, perSymbol map[string]int, defaultLeverage int) (int, error) {
	var leverage int
	switch policy {
	case PolicyWebhook:
		if !intent.HasLeverage {
			return 0, fmt.Errorf("%w: policy=webhook, symbol=%s", ErrMissingLeverage, intent.Symbol)
		}
		leverage = intent.RequestedLeverage
	case PolicyPerSymbol:
		lev, ok := perSymbol[intent.Symbol]
		if !ok {
			return 0, fmt.Errorf("%w: policy=per_symbol, symbol=%s", ErrUnknownSymbolLeverage, intent.Symbol)
		}
		leverage = lev
	case PolicyDefault:
		leverage = defaultLeverage
	default: // auto
		switch {
		case intent.HasLeverage:
			leverage = intent.RequestedLeverage
		default:
			if lev, ok := perSymbol[intent.Symbol]; ok {
				leverage = lev
			} else {
				leverage = defaultLeverage
			}
		}
	}

	if leverage <= 0 {
		return 0, fmt.Errorf("%w: got %d for %s", ErrInvalidLeverage, leverage, intent.Symbol)
	}
	return leverage, nil
}

// Whitelist 允许的交易对集合；空集合表示不限制
type Whitelist map[string]struct{}

// NewWhitelist 从交易对列表构建白名单
func NewWhitelist(symbols []string) Whitelist {
	if len(symbols) == 0 {
		return nil
	}
	w := make(Whitelist, len(symbols))
	for _, s := range symbols {
		w[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}
	return w
}

// Allows 判断交易对是否放行，空白名单放行所有交易对
func (w Whitelist) Allows(symbol string) bool {
	if len(w) == 0 {
		return true
	}
	_, ok := w[symbol]
	return ok
}
