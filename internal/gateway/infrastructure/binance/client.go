// Package binance Binance USDT-M 期货 REST 客户端：HMAC-SHA256 签名、
// 服务器时间对齐、熔断保护。
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/finsignal/signalbridge/internal/gateway/domain"
	"github.com/finsignal/signalbridge/pkg/logger"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// Config 客户端配置
type Config struct {
	APIKey     string
	APISecret  string
	BaseURL    string
	RecvWindow int
	Timeout    time.Duration
}

// Client 签名 REST 客户端。实现 domain.Exchange。
type Client struct {
	cfg     Config
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker

	// timeOffset 与服务器时间的偏移（毫秒），启动后对齐一次
	timeMu     sync.Mutex
	timeOffset int64
	timeSynced bool

	// exchangeInfo 结果缓存，避免每个信号都拉全量交易规则
	infoMu      sync.Mutex
	filterCache map[string]domain.SymbolFilters
	infoExpiry  time.Time
}

// New 构造客户端
func New(cfg Config) *Client {
	if cfg.RecvWindow <= 0 {
		cfg.RecvWindow = 10000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("X-MBX-APIKEY", cfg.APIKey)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "binance-futures",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		cfg:         cfg,
		http:        httpClient,
		breaker:     breaker,
		filterCache: make(map[string]domain.SymbolFilters),
	}
}

// apiError Binance 错误响应体
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// sign 对查询串做 HMAC-SHA256
func (c *Client) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// timestamp 返回与服务器对齐后的毫秒时间戳
func (c *Client) timestamp() int64 {
	c.timeMu.Lock()
	defer c.timeMu.Unlock()
	return time.Now().UnixMilli() + c.timeOffset
}

// ensureTimeSync 与服务器时间对齐一次，失败时继续使用本地时间
func (c *Client) ensureTimeSync(ctx context.Context) {
	c.timeMu.Lock()
	synced := c.timeSynced
	c.timeMu.Unlock()
	if synced {
		return
	}

	offset := int64(0)
	resp, err := c.http.R().SetContext(ctx).Get("/fapi/v1/time")
	if err == nil && resp.StatusCode() == 200 {
		var body struct {
			ServerTime int64 `json:"serverTime"`
		}
		if json.Unmarshal(resp.Body(), &body) == nil && body.ServerTime > 0 {
			offset = body.ServerTime - time.Now().UnixMilli()
		}
	} else {
		logger.Warn(ctx, "server time sync failed, using local clock", "error", err)
	}

	c.timeMu.Lock()
	c.timeOffset = offset
	c.timeSynced = true
	c.timeMu.Unlock()
}

// signedCall 执行签名请求并穿过熔断器。4xx 应答映射为 ExchangeRejection，
// 传输错误与 5xx 原样返回供上层重试。
func (c *Client) signedCall(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	c.ensureTimeSync(ctx)

	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(c.timestamp(), 10))
	params.Set("recvWindow", strconv.Itoa(c.cfg.RecvWindow))
	query := params.Encode()
	query += "&signature=" + c.sign(query)

	out, err := c.breaker.Execute(func() (any, error) {
		req := c.http.R().SetContext(ctx)
		var resp *resty.Response
		var err error
		switch method {
		case "POST":
			req.SetHeader("Content-Type", "application/x-www-form-urlencoded")
			resp, err = req.SetBody(query).Post(path)
		default:
			resp, err = req.Get(path + "?" + query)
		}
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= 400 {
			var apiErr apiError
			if json.Unmarshal(resp.Body(), &apiErr) == nil && resp.StatusCode() < 500 {
				return nil, &domain.ExchangeRejection{Code: apiErr.Code, Message: apiErr.Msg}
			}
			return nil, fmt.Errorf("binance %s %s: status %d", method, path, resp.StatusCode())
		}
		return resp.Body(), nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// publicGet 执行公开（无签名）请求
func (c *Client) publicGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if params != nil {
		req.SetQueryParamsFromValues(params)
	}
	resp, err := req.Get(path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("binance GET %s: status %d", path, resp.StatusCode())
	}
	return resp.Body(), nil
}

// SymbolFilters 查询交易对的步长与最小限制，带 10 分钟缓存
func (c *Client) SymbolFilters(ctx context.Context, symbol string) (domain.SymbolFilters, error) {
	c.infoMu.Lock()
	if time.Now().Before(c.infoExpiry) {
		if f, ok := c.filterCache[symbol]; ok {
			c.infoMu.Unlock()
			return f, nil
		}
	}
	c.infoMu.Unlock()

	defer logger.LogDuration(ctx, "exchange info refreshed", "symbol", symbol)()

	body, err := c.publicGet(ctx, "/fapi/v1/exchangeInfo", nil)
	if err != nil {
		return domain.SymbolFilters{}, fmt.Errorf("exchangeInfo: %w", err)
	}

	var info struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType string `json:"filterType"`
				StepSize   string `json:"stepSize"`
				MinQty     string `json:"minQty"`
				Notional   string `json:"notional"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return domain.SymbolFilters{}, fmt.Errorf("exchangeInfo decode: %w", err)
	}

	cache := make(map[string]domain.SymbolFilters, len(info.Symbols))
	for _, s := range info.Symbols {
		var f domain.SymbolFilters
		for _, flt := range s.Filters {
			switch flt.FilterType {
			case "LOT_SIZE":
				f.StepSize = parseDecimal(flt.StepSize)
				f.MinQty = parseDecimal(flt.MinQty)
			case "MIN_NOTIONAL":
				f.MinNotional = parseDecimal(flt.Notional)
			}
		}
		cache[s.Symbol] = f
	}

	c.infoMu.Lock()
	c.filterCache = cache
	c.infoExpiry = time.Now().Add(10 * time.Minute)
	f, ok := c.filterCache[symbol]
	c.infoMu.Unlock()

	if !ok {
		return domain.SymbolFilters{}, fmt.Errorf("symbol not found in exchangeInfo: %s", symbol)
	}
	return f, nil
}

// Balance 查询 USDT-M 期货 USDT 余额
func (c *Client) Balance(ctx context.Context) (domain.Balance, error) {
	body, err := c.signedCall(ctx, "GET", "/fapi/v2/balance", nil)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("balance: %w", err)
	}

	var assets []struct {
		Asset            string `json:"asset"`
		Balance          string `json:"balance"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := json.Unmarshal(body, &assets); err != nil {
		return domain.Balance{}, fmt.Errorf("balance decode: %w", err)
	}
	for _, a := range assets {
		if a.Asset == "USDT" {
			return domain.Balance{
				Wallet:    parseDecimal(a.Balance),
				Available: parseDecimal(a.AvailableBalance),
			}, nil
		}
	}
	return domain.Balance{}, nil
}

// SetLeverage 设置交易对杠杆
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))
	if _, err := c.signedCall(ctx, "POST", "/fapi/v1/leverage", params); err != nil {
		return fmt.Errorf("set leverage %s: %w", symbol, err)
	}
	return nil
}

// PlaceMarketOrder 市价下单
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side string, quantity decimal.Decimal) (domain.OrderAck, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", "MARKET")
	params.Set("quantity", quantity.String())

	body, err := c.signedCall(ctx, "POST", "/fapi/v1/order", params)
	if err != nil {
		return domain.OrderAck{}, err
	}

	var resp struct {
		OrderID  int64  `json:"orderId"`
		Status   string `json:"status"`
		AvgPrice string `json:"avgPrice"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderAck{}, fmt.Errorf("order decode: %w", err)
	}
	return domain.OrderAck{
		OrderID:  strconv.FormatInt(resp.OrderID, 10),
		Status:   resp.Status,
		AvgPrice: parseDecimal(resp.AvgPrice),
	}, nil
}

// TickerPrice 查询最新成交价（公开端点）
func (c *Client) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.publicGet(ctx, "/fapi/v1/ticker/price", params)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ticker price: %w", err)
	}
	var resp struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("ticker price decode: %w", err)
	}
	return parseDecimal(resp.Price), nil
}

// parseDecimal 解析交易所返回的十进制字符串，非法值按零处理
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
