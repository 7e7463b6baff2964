package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/finsignal/signalbridge/internal/gateway/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test-api-key"
	testSecret = "test-api-secret"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		APIKey:    testKey,
		APISecret: testSecret,
		BaseURL:   srv.URL,
		Timeout:   2 * time.Second,
	}), srv
}

// mux 带默认的 /fapi/v1/time 应答
func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/time", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"serverTime":1700000000000}`))
	})
	return mux
}

func TestSignedCallSignsAndAuthenticates(t *testing.T) {
	mux := newMux()
	var gotKey string
	var gotQuery string
	mux.HandleFunc("/fapi/v2/balance", func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-MBX-APIKEY")
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[{"asset":"USDT","balance":"1234.56","availableBalance":"1000.00"}]`))
	})
	client, _ := newTestClient(t, mux)

	balance, err := client.Balance(context.Background())
	require.NoError(t, err)
	assert.True(t, balance.Wallet.Equal(decimal.RequireFromString("1234.56")))
	assert.True(t, balance.Available.Equal(decimal.RequireFromString("1000.00")))

	assert.Equal(t, testKey, gotKey)
	require.Contains(t, gotQuery, "timestamp=")
	require.Contains(t, gotQuery, "recvWindow=")

	// 签名必须是对 signature 之前整个查询串的 HMAC-SHA256
	idx := len(gotQuery) - len("&signature=") - 64
	require.Greater(t, idx, 0)
	base, sig := gotQuery[:idx], gotQuery[idx+len("&signature="):]
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(base))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), sig)
}

func TestAPIErrorBecomesExchangeRejection(t *testing.T) {
	mux := newMux()
	mux.HandleFunc("/fapi/v1/order", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2019,"msg":"Margin is insufficient."}`))
	})
	client, _ := newTestClient(t, mux)

	_, err := client.PlaceMarketOrder(context.Background(), "BTCUSDT", "BUY", decimal.NewFromInt(1))
	require.Error(t, err)

	var rejection *domain.ExchangeRejection
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, -2019, rejection.Code)
	assert.Equal(t, "Margin is insufficient.", rejection.Message)
}

func TestServerErrorIsNotARejection(t *testing.T) {
	mux := newMux()
	mux.HandleFunc("/fapi/v1/leverage", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	client, _ := newTestClient(t, mux)

	err := client.SetLeverage(context.Background(), "BTCUSDT", 5)
	require.Error(t, err)
	var rejection *domain.ExchangeRejection
	assert.False(t, errors.As(err, &rejection))
}

func TestPlaceMarketOrderParsesAck(t *testing.T) {
	mux := newMux()
	mux.HandleFunc("/fapi/v1/order", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "BTCUSDT", r.Form.Get("symbol"))
		assert.Equal(t, "SELL", r.Form.Get("side"))
		assert.Equal(t, "MARKET", r.Form.Get("type"))
		assert.Equal(t, "2.5", r.Form.Get("quantity"))
		w.Write([]byte(`{"orderId":987654,"status":"FILLED","avgPrice":"64123.40"}`))
	})
	client, _ := newTestClient(t, mux)

	ack, err := client.PlaceMarketOrder(context.Background(), "BTCUSDT", "SELL", decimal.RequireFromString("2.5"))
	require.NoError(t, err)
	assert.Equal(t, "987654", ack.OrderID)
	assert.Equal(t, "FILLED", ack.Status)
	assert.True(t, ack.AvgPrice.Equal(decimal.RequireFromString("64123.40")))
}

func TestSymbolFiltersParsedAndCached(t *testing.T) {
	mux := newMux()
	var hits atomic.Int32
	mux.HandleFunc("/fapi/v1/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT","filters":[
			{"filterType":"LOT_SIZE","stepSize":"0.001","minQty":"0.001"},
			{"filterType":"MIN_NOTIONAL","notional":"5"}]}]}`))
	})
	client, _ := newTestClient(t, mux)
	ctx := context.Background()

	f, err := client.SymbolFilters(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, f.StepSize.Equal(decimal.RequireFromString("0.001")))
	assert.True(t, f.MinQty.Equal(decimal.RequireFromString("0.001")))
	assert.True(t, f.MinNotional.Equal(decimal.NewFromInt(5)))

	// 第二次命中缓存
	_, err = client.SymbolFilters(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	// 未知交易对返回错误
	_, err = client.SymbolFilters(ctx, "NOPEUSDT")
	assert.Error(t, err)
}

func TestTickerPrice(t *testing.T) {
	mux := newMux()
	mux.HandleFunc("/fapi/v1/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"symbol":"ETHUSDT","price":"3210.55"}`))
	})
	client, _ := newTestClient(t, mux)

	price, err := client.TickerPrice(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("3210.55")))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	mux := newMux()
	var hits atomic.Int32
	mux.HandleFunc("/fapi/v2/balance", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	client, _ := newTestClient(t, mux)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := client.Balance(ctx)
		require.Error(t, err)
	}
	before := hits.Load()

	// 熔断后请求不再出网
	_, err := client.Balance(ctx)
	require.Error(t, err)
	assert.Equal(t, before, hits.Load())
}
