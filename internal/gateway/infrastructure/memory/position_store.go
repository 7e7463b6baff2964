// Package memory 进程内的持仓与执行历史注册表。
// 本服务显式不做持久化存储，状态随进程生命周期存在。
package memory

import (
	"sort"
	"sync"

	"github.com/finsignal/signalbridge/internal/gateway/domain"
	"github.com/shopspring/decimal"
)

// PositionStore 持仓与历史的唯一持有者。
// 单把互斥锁串行化全部写入；预期请求量低，无需按交易对分锁。
type PositionStore struct {
	mu        sync.Mutex
	positions map[string]domain.PositionRecord
	history   []domain.ExecutionResult
	retention int
}

// NewPositionStore 构造注册表，retention 限定历史保留条数
func NewPositionStore(retention int) *PositionStore {
	if retention <= 0 {
		retention = 200
	}
	return &PositionStore{
		positions: make(map[string]domain.PositionRecord),
		retention: retention,
	}
}

// Apply 原子地追加执行结果并更新持仓。
// 非 FILLED 结果只进历史；每个交易对最多一条净持仓记录，
// 反向信号反手或平仓而非叠加。
func (s *PositionStore) Apply(order domain.ResolvedOrder, result domain.ExecutionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, result)
	if len(s.history) > s.retention {
		s.history = s.history[len(s.history)-s.retention:]
	}

	if result.Status != domain.StatusFilled {
		return
	}

	existing, ok := s.positions[order.Symbol]
	switch {
	case !ok:
		// 开新仓
		s.positions[order.Symbol] = domain.PositionRecord{
			Symbol:     order.Symbol,
			Direction:  order.Direction,
			Quantity:   order.Quantity.Sub(order.FlipQuantity),
			EntryPrice: result.FilledPrice,
			Leverage:   order.Leverage,
			OpenedAt:   result.Timestamp,
		}
	case existing.Direction == order.Direction:
		// 同向加仓：数量累加，入场价按量加权
		total := existing.Quantity.Add(order.Quantity)
		weighted := existing.Quantity.Mul(existing.EntryPrice).
			Add(order.Quantity.Mul(result.FilledPrice)).
			Div(total)
		existing.Quantity = total
		existing.EntryPrice = weighted
		existing.Leverage = order.Leverage
		s.positions[order.Symbol] = existing
	default:
		// 反向信号：平掉旧仓，剩余部分按新方向开仓
		remaining := order.Quantity.Sub(order.FlipQuantity)
		if remaining.Sign() <= 0 {
			delete(s.positions, order.Symbol)
			return
		}
		s.positions[order.Symbol] = domain.PositionRecord{
			Symbol:     order.Symbol,
			Direction:  order.Direction,
			Quantity:   remaining,
			EntryPrice: result.FilledPrice,
			Leverage:   order.Leverage,
			OpenedAt:   result.Timestamp,
		}
	}
}

// Position 返回交易对当前净持仓
func (s *PositionStore) Position(symbol string) (domain.PositionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[symbol]
	return p, ok
}

// OpenPositions 返回全部持仓，按交易对排序
func (s *PositionStore) OpenPositions() []domain.PositionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PositionRecord, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// History 返回最近的执行历史，新在前
func (s *PositionStore) History(limit int) []domain.ExecutionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.ExecutionResult, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.history[i])
	}
	return out
}

// UsedMargin 当前持仓占用的保证金合计
func (s *PositionStore) UsedMargin() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	used := decimal.Zero
	for _, p := range s.positions {
		used = used.Add(p.Margin())
	}
	return used
}
