package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"tradingview perp", "BINANCE:BTCUSDT.P", "BTCUSDT"},
		{"lowercase with prefix", "binance:ethusdt.p", "ETHUSDT"},
		{"plain symbol", "BTCUSDT", "BTCUSDT"},
		{"perp suffix", "BTCUSDT.PERP", "BTCUSDT"},
		{"bare perp suffix", "BTCUSDTPERP", "BTCUSDT"},
		{"dash perp", "BTC-PERP", "BTCUSDT"},
		{"dash perp with prefix", "BYBIT:eth-perp", "ETHUSDT"},
		{"whitespace", "  solusdt  ", "SOLUSDT"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSymbol(tt.raw))
		})
	}
}

func TestNormalizeIntent(t *testing.T) {
	t.Run("turkish buy signal maps to long", func(t *testing.T) {
		intent, err := NormalizeIntent(RawSignal{Signal: "AL", Symbol: "btcusdt", Price: 64250.5})
		require.NoError(t, err)
		assert.Equal(t, DirectionLong, intent.Direction)
		assert.Equal(t, "BTCUSDT", intent.Symbol)
		assert.Equal(t, "BUY", intent.Direction.Side())
	})

	t.Run("turkish sell signal maps to short", func(t *testing.T) {
		intent, err := NormalizeIntent(RawSignal{Signal: "sat", Ticker: "BINANCE:ETHUSDT.P", Price: 3200})
		require.NoError(t, err)
		assert.Equal(t, DirectionShort, intent.Direction)
		assert.Equal(t, "ETHUSDT", intent.Symbol)
		assert.Equal(t, "SELL", intent.Direction.Side())
	})

	t.Run("symbol field wins over ticker", func(t *testing.T) {
		intent, err := NormalizeIntent(RawSignal{
			Signal: "LONG",
			Symbol: "dogeusdt",
			Ticker: "BINANCE:BTCUSDT.P",
			Price:  0.35,
		})
		require.NoError(t, err)
		assert.Equal(t, "DOGEUSDT", intent.Symbol)
	})

	t.Run("ticker fallback chain", func(t *testing.T) {
		intent, err := NormalizeIntent(RawSignal{
			Signal:      "BUY",
			TickerUpper: "BINANCE:BTCUSDT.P",
			Price:       60000,
		})
		require.NoError(t, err)
		assert.Equal(t, "BTCUSDT", intent.Symbol)
	})

	t.Run("unsupported signal rejected", func(t *testing.T) {
		_, err := NormalizeIntent(RawSignal{Signal: "HOLD", Symbol: "BTCUSDT", Price: 1})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("missing symbol rejected", func(t *testing.T) {
		_, err := NormalizeIntent(RawSignal{Signal: "BUY", Price: 1})
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("non-positive price rejected", func(t *testing.T) {
		_, err := NormalizeIntent(RawSignal{Signal: "BUY", Symbol: "BTCUSDT", Price: 0})
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("leverage and qty carried through", func(t *testing.T) {
		intent, err := NormalizeIntent(RawSignal{
			Signal: "SELL", Symbol: "BTCUSDT", Price: 50000, Leverage: 8, Qty: 0.02,
		})
		require.NoError(t, err)
		assert.True(t, intent.HasLeverage)
		assert.Equal(t, 8, intent.RequestedLeverage)
		assert.Equal(t, "0.02", intent.Quantity.String())
	})

	t.Run("payload timestamp sets received time", func(t *testing.T) {
		intent, err := NormalizeIntent(RawSignal{
			Signal: "BUY", Symbol: "BTCUSDT", Price: 50000, Timestamp: 1700000000,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1700000000), intent.ReceivedAt.Unix())

		// 毫秒级时间戳同样被识别
		intent, err = NormalizeIntent(RawSignal{
			Signal: "BUY", Symbol: "BTCUSDT", Price: 50000, Timestamp: 1700000000500,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1700000000500), intent.ReceivedAt.UnixMilli())
	})

	t.Run("missing timestamp falls back to arrival time", func(t *testing.T) {
		before := time.Now().Add(-time.Second)
		intent, err := NormalizeIntent(RawSignal{Signal: "BUY", Symbol: "BTCUSDT", Price: 50000})
		require.NoError(t, err)
		assert.True(t, intent.ReceivedAt.After(before))
	})

	t.Run("zero leverage means absent", func(t *testing.T) {
		intent, err := NormalizeIntent(RawSignal{Signal: "BUY", Symbol: "BTCUSDT", Price: 50000})
		require.NoError(t, err)
		assert.False(t, intent.HasLeverage)
	})
}

func TestDirectionOpposite(t *testing.T) {
	assert.Equal(t, DirectionShort, DirectionLong.Opposite())
	assert.Equal(t, DirectionLong, DirectionShort.Opposite())
}
