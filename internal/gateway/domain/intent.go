package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction 交易方向
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Side 返回交易所下单方向
func (d Direction) Side() string {
	if d == DirectionShort {
		return "SELL"
	}
	return "BUY"
}

// Opposite 返回相反方向
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// RawSignal 入站告警的原始字段，来自 TradingView webhook 载荷
type RawSignal struct {
	Signal      string
	Symbol      string
	Ticker      string
	TickerUpper string
	TickerID    string
	Price       float64
	Qty         float64
	Leverage    int
	Note        string
	Timestamp   int64
}

// TradeIntent 规范化后的交易意图，创建后不可变
type TradeIntent struct {
	Symbol            string
	Direction         Direction
	Price             decimal.Decimal
	RequestedLeverage int
	// HasLeverage 区分「未携带杠杆」与「杠杆为 0」
	HasLeverage bool
	// Quantity 载荷直接指定的下单数量；为零值表示按仓位计算
	Quantity   decimal.Decimal
	Note       string
	ReceivedAt time.Time
}

// NormalizeSymbol 将 TradingView 形式的 ticker 归一化为交易所交易对，
// 例如 "BINANCE:BTCUSDT.P" -> "BTCUSDT"。
func NormalizeSymbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return s
	}
	// 去掉交易所前缀
	if _, rest, ok := strings.Cut(s, ":"); ok {
		s = rest
	}
	// 部分平台使用 BTC-PERP / BTCUSDTPERP，先改写再做通用后缀剥离，
	// 否则通用剥离会先吃掉 PERP 留下悬挂的连字符
	if strings.HasSuffix(s, "-PERP") {
		return strings.TrimSuffix(s, "-PERP") + "USDT"
	}
	if strings.HasSuffix(s, "USDTPERP") {
		return strings.TrimSuffix(s, "PERP")
	}
	// 去掉合约后缀
	for _, suf := range []string{".P", ".PERP", "PERP"} {
		if strings.HasSuffix(s, suf) {
			s = strings.TrimSuffix(s, suf)
		}
	}
	return s
}

// NormalizeIntent 将原始载荷解析为交易意图。symbol 字段优先于 ticker 系列字段；
// signal 仅识别 AL/BUY/LONG 与 SAT/SELL/SHORT；price 必须为正。
func NormalizeIntent(raw RawSignal) (TradeIntent, error) {
	var direction Direction
	switch strings.ToUpper(strings.TrimSpace(raw.Signal)) {
	case "AL", "BUY", "LONG":
		direction = DirectionLong
	case "SAT", "SELL", "SHORT":
		direction = DirectionShort
	default:
		return TradeIntent{}, fmt.Errorf("%w: unsupported signal %q", ErrValidation, raw.Signal)
	}

	symbol := strings.TrimSpace(raw.Symbol)
	if symbol != "" {
		symbol = strings.ToUpper(symbol)
	} else {
		for _, candidate := range []string{raw.Ticker, raw.TickerUpper, raw.TickerID} {
			if strings.TrimSpace(candidate) != "" {
				symbol = NormalizeSymbol(candidate)
				break
			}
		}
	}
	if symbol == "" {
		return TradeIntent{}, fmt.Errorf("%w: symbol or ticker required", ErrValidation)
	}

	if raw.Price <= 0 {
		return TradeIntent{}, fmt.Errorf("%w: positive price required for sizing", ErrValidation)
	}

	intent := TradeIntent{
		Symbol:     symbol,
		Direction:  direction,
		Price:      decimal.NewFromFloat(raw.Price),
		Note:       raw.Note,
		ReceivedAt: signalTime(raw.Timestamp),
	}
	if raw.Leverage > 0 {
		intent.RequestedLeverage = raw.Leverage
		intent.HasLeverage = true
	}
	if raw.Qty > 0 {
		intent.Quantity = decimal.NewFromFloat(raw.Qty)
	}
	return intent, nil
}

// signalTime 将载荷 ts 解析为信号时间：秒或毫秒级 Unix 时间戳均可，
// 缺失或非法时落回接收时刻。
func signalTime(ts int64) time.Time {
	switch {
	case ts <= 0:
		return time.Now().UTC()
	case ts < 1e12:
		return time.Unix(ts, 0).UTC()
	default:
		return time.UnixMilli(ts).UTC()
	}
}
