// Package domain 信号网关的领域模型：交易意图、杠杆策略、仓位计算与执行结果。
package domain

import "errors"

// 管道各阶段的拒绝/失败分类。执行器之前的错误均为终态拒绝，不触达交易所。
var (
	// ErrValidation 信号载荷无法归一化为交易意图
	ErrValidation = errors.New("invalid signal payload")
	// ErrSymbolNotAllowed 交易对不在白名单
	ErrSymbolNotAllowed = errors.New("symbol not in whitelist")
	// ErrMissingLeverage webhook 策略要求载荷携带杠杆
	ErrMissingLeverage = errors.New("leverage required by policy but missing from payload")
	// ErrUnknownSymbolLeverage per_symbol 策略下交易对无杠杆配置
	ErrUnknownSymbolLeverage = errors.New("no leverage configured for symbol")
	// ErrInvalidLeverage 解析出的杠杆不是正整数
	ErrInvalidLeverage = errors.New("resolved leverage is not positive")
	// ErrInsufficientBalance 可用仓位不足或低于交易所最小限制
	ErrInsufficientBalance = errors.New("insufficient allocation for trade")
	// ErrExecutionRejected 交易所拒单（保证金不足、非法数量等），不重试
	ErrExecutionRejected = errors.New("order rejected by exchange")
	// ErrExecutionFailed 传输层错误，重试一次后仍失败
	ErrExecutionFailed = errors.New("order execution failed")
	// ErrExecutionTimeout 请求级超时
	ErrExecutionTimeout = errors.New("order execution timed out")
)

// ErrorCode 返回错误对应的分类码，用于 HTTP 响应与指标标签
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrSymbolNotAllowed):
		return "REJECTED_SYMBOL"
	case errors.Is(err, ErrMissingLeverage):
		return "MISSING_LEVERAGE"
	case errors.Is(err, ErrUnknownSymbolLeverage):
		return "UNKNOWN_SYMBOL_LEVERAGE"
	case errors.Is(err, ErrInvalidLeverage):
		return "INVALID_LEVERAGE"
	case errors.Is(err, ErrInsufficientBalance):
		return "INSUFFICIENT_BALANCE"
	case errors.Is(err, ErrExecutionRejected):
		return "EXECUTION_REJECTED"
	case errors.Is(err, ErrExecutionTimeout):
		return "EXECUTION_TIMEOUT"
	case errors.Is(err, ErrExecutionFailed):
		return "EXECUTION_ERROR"
	default:
		return "INTERNAL"
	}
}

// ExchangeRejection 交易所返回的业务拒绝（如 -2019 保证金不足）。
// 与传输错误区分：拒绝不重试，传输错误重试一次。
type ExchangeRejection struct {
	Code    int
	Message string
}

func (e *ExchangeRejection) Error() string {
	return e.Message
}
