package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/finsignal/signalbridge/internal/gateway/domain"
	"github.com/finsignal/signalbridge/internal/gateway/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingNotifier 记录收到的通知文本
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *recordingNotifier) Notify(ctx context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func dryRunSnapshot() Snapshot {
	return Snapshot{
		Sizer:            domain.NewSizer(50, 10),
		DefaultLeverage:  5,
		Policy:           domain.PolicyAuto,
		Whitelist:        domain.NewWhitelist([]string{"BTCUSDT", "ETHUSDT"}),
		DryRun:           true,
		SimulatedBalance: dec("1000"),
		RequestTimeout:   5 * time.Second,
	}
}

func newDryRunService(snapshot Snapshot, exchange domain.Exchange, notifier domain.Notifier) (*SignalService, *memory.PositionStore) {
	tracker := memory.NewPositionStore(50)
	executor := NewDryRunExecutor(tracker)
	return NewSignalService(snapshot, executor, exchange, tracker, notifier, nil), tracker
}

func buySignal(symbol string, price float64) domain.RawSignal {
	return domain.RawSignal{Signal: "AL", Symbol: symbol, Price: price}
}

func TestProcessDryRunHappyPath(t *testing.T) {
	exchange := newFakeExchange()
	notifier := &recordingNotifier{}
	svc, tracker := newDryRunService(dryRunSnapshot(), exchange, notifier)

	decision, err := svc.Process(context.Background(), buySignal("BTCUSDT", 100))
	require.NoError(t, err)

	// balance 1000 × 50% × 10% = 50 margin, ×5 lev / 100 = 2.5 qty
	assert.True(t, decision.Order.Quantity.Equal(dec("2.5")), "qty=%s", decision.Order.Quantity)
	assert.Equal(t, domain.ModeDryRun, decision.Order.Mode)
	assert.Equal(t, domain.StatusFilled, decision.Result.Status)
	assert.True(t, decision.Result.FilledPrice.Equal(dec("100")))

	// 干跑绝不触达交易所
	assert.Equal(t, 0, exchange.balanceCalls)
	assert.Equal(t, 0, exchange.filtersCalls)
	assert.Equal(t, 0, exchange.setLeverageCalls)
	assert.Equal(t, 0, exchange.placeOrderCalls)

	pos, ok := tracker.Position("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, domain.DirectionLong, pos.Direction)
	assert.Equal(t, 1, notifier.count())
}

func TestProcessRejectsBeforeExchange(t *testing.T) {
	exchange := newFakeExchange()
	snapshot := dryRunSnapshot()
	snapshot.DryRun = false
	tracker := memory.NewPositionStore(50)
	svc := NewSignalService(snapshot, NewLiveExecutor(exchange, tracker), exchange, tracker, nil, nil)

	_, err := svc.Process(context.Background(), buySignal("DOGEUSDT", 0.3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSymbolNotAllowed))

	// 白名单拒绝发生在任何交易所调用之前
	assert.Equal(t, 0, exchange.balanceCalls)
	assert.Equal(t, 0, exchange.placeOrderCalls)
}

func TestProcessValidationRejection(t *testing.T) {
	svc, tracker := newDryRunService(dryRunSnapshot(), newFakeExchange(), nil)

	_, err := svc.Process(context.Background(), domain.RawSignal{Signal: "HOLD", Symbol: "BTCUSDT", Price: 1})
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Empty(t, tracker.History(10))
}

func TestProcessLeveragePolicyRejection(t *testing.T) {
	snapshot := dryRunSnapshot()
	snapshot.Policy = domain.PolicyWebhook
	svc, _ := newDryRunService(snapshot, newFakeExchange(), nil)

	_, err := svc.Process(context.Background(), buySignal("BTCUSDT", 100))
	assert.True(t, errors.Is(err, domain.ErrMissingLeverage))
}

func TestProcessFlipLeavesSingleNetPosition(t *testing.T) {
	svc, tracker := newDryRunService(dryRunSnapshot(), newFakeExchange(), nil)
	ctx := context.Background()

	_, err := svc.Process(ctx, buySignal("BTCUSDT", 100))
	require.NoError(t, err)
	long, ok := tracker.Position("BTCUSDT")
	require.True(t, ok)
	require.Equal(t, domain.DirectionLong, long.Direction)

	// 反向信号：下单量 = 新仓量 + 旧仓抵消量，结果只剩一条 SHORT 净持仓
	decision, err := svc.Process(ctx, domain.RawSignal{Signal: "SAT", Symbol: "BTCUSDT", Price: 100})
	require.NoError(t, err)
	assert.True(t, decision.Order.FlipQuantity.Equal(long.Quantity))
	assert.True(t, decision.Order.Quantity.GreaterThan(decision.Order.FlipQuantity))

	positions := tracker.OpenPositions()
	require.Len(t, positions, 1)
	assert.Equal(t, domain.DirectionShort, positions[0].Direction)
}

func TestProcessSameDirectionStacks(t *testing.T) {
	svc, tracker := newDryRunService(dryRunSnapshot(), newFakeExchange(), nil)
	ctx := context.Background()

	_, err := svc.Process(ctx, buySignal("BTCUSDT", 100))
	require.NoError(t, err)
	first, _ := tracker.Position("BTCUSDT")

	_, err = svc.Process(ctx, buySignal("BTCUSDT", 100))
	require.NoError(t, err)
	second, _ := tracker.Position("BTCUSDT")

	assert.True(t, second.Quantity.GreaterThan(first.Quantity))
	assert.Equal(t, domain.DirectionLong, second.Direction)
	require.Len(t, tracker.OpenPositions(), 1)
}

func TestProcessAllocationExhaustion(t *testing.T) {
	// alloc 50% per-trade 100%：第一单吃满额度，第二单拒绝
	snapshot := dryRunSnapshot()
	snapshot.Sizer = domain.NewSizer(50, 100)
	svc, _ := newDryRunService(snapshot, newFakeExchange(), nil)
	ctx := context.Background()

	_, err := svc.Process(ctx, buySignal("BTCUSDT", 100))
	require.NoError(t, err)

	_, err = svc.Process(ctx, buySignal("ETHUSDT", 100))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientBalance))
}

func TestProcessNotifierFailureIsSwallowed(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("telegram down")}
	svc, _ := newDryRunService(dryRunSnapshot(), newFakeExchange(), notifier)

	_, err := svc.Process(context.Background(), buySignal("BTCUSDT", 100))
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.count())
}

func TestProcessLiveUsesExchangeContext(t *testing.T) {
	exchange := newFakeExchange()
	snapshot := dryRunSnapshot()
	snapshot.DryRun = false
	tracker := memory.NewPositionStore(50)
	svc := NewSignalService(snapshot, NewLiveExecutor(exchange, tracker), exchange, tracker, nil, nil)

	decision, err := svc.Process(context.Background(), buySignal("BTCUSDT", 100))
	require.NoError(t, err)

	assert.Equal(t, 1, exchange.balanceCalls)
	assert.Equal(t, 1, exchange.filtersCalls)
	assert.Equal(t, 1, exchange.placeOrderCalls)
	assert.True(t, decision.Order.StepRounded)
	// 成交价来自交易所应答
	assert.True(t, decision.Result.FilledPrice.Equal(dec("100.5")))
}

func TestSummarize(t *testing.T) {
	svc, _ := newDryRunService(dryRunSnapshot(), newFakeExchange(), nil)
	ctx := context.Background()

	_, err := svc.Process(ctx, buySignal("BTCUSDT", 100))
	require.NoError(t, err)

	summary, err := svc.Summarize(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Balance.Equal(dec("1000")))
	assert.True(t, summary.AllocationCap.Equal(dec("500")))
	assert.True(t, summary.UsedMargin.Equal(dec("50")))
	assert.True(t, summary.Remaining.Equal(dec("450")))
	assert.True(t, summary.DryRun)
	assert.Equal(t, 1, summary.OpenPositions)
}
