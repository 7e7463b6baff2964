// Package http 信号网关的 HTTP 接口：TradingView webhook 入口与 dashboard 只读端点。
package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/finsignal/signalbridge/internal/gateway/application"
	"github.com/finsignal/signalbridge/internal/gateway/domain"
	"github.com/finsignal/signalbridge/pkg/logger"
	"github.com/finsignal/signalbridge/pkg/metrics"
	"github.com/finsignal/signalbridge/pkg/response"
	"github.com/gin-gonic/gin"
)

// GatewayHandler HTTP 处理器
type GatewayHandler struct {
	service *application.SignalService
	tracker domain.PositionTracker
	metrics *metrics.Metrics
}

// NewGatewayHandler 创建 HTTP 处理器实例
func NewGatewayHandler(service *application.SignalService, tracker domain.PositionTracker, m *metrics.Metrics) *GatewayHandler {
	return &GatewayHandler{service: service, tracker: tracker, metrics: m}
}

// RegisterRoutes 注册路由
func (h *GatewayHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/webhook/tradingview", h.HandleTradingView) // 入站告警
	r.GET("/healthz", h.Healthz)

	api := r.Group("/api/v1")
	{
		api.GET("/positions", h.GetPositions) // 当前持仓
		api.GET("/history", h.GetHistory)     // 执行历史
		api.GET("/summary", h.GetSummary)     // 余额与额度概要
	}
}

// WebhookRequest TradingView 告警载荷
type WebhookRequest struct {
	Signal      string  `json:"signal" binding:"required"` // AL | SAT | BUY | SELL | LONG | SHORT
	Symbol      string  `json:"symbol"`
	Ticker      string  `json:"ticker"`
	TickerUpper string  `json:"ticker_upper"`
	TickerID    string  `json:"tickerid"`
	Price       float64 `json:"price"`
	Qty         float64 `json:"qty"`      // 直接指定数量，绕过仓位计算
	Leverage    int     `json:"leverage"` // 载荷杠杆
	Note        string  `json:"note"`
	Timestamp   int64   `json:"ts"`
}

// HandleTradingView 处理入站告警并返回决策摘要
func (h *GatewayHandler) HandleTradingView(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.WebhooksRejected.WithLabelValues("VALIDATION_ERROR").Inc()
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	h.metrics.WebhooksTotal.Inc()
	start := time.Now()

	decision, err := h.service.Process(c.Request.Context(), domain.RawSignal{
		Signal:      req.Signal,
		Symbol:      req.Symbol,
		Ticker:      req.Ticker,
		TickerUpper: req.TickerUpper,
		TickerID:    req.TickerID,
		Price:       req.Price,
		Qty:         req.Qty,
		Leverage:    req.Leverage,
		Note:        req.Note,
		Timestamp:   req.Timestamp,
	})
	h.metrics.PipelineDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		code := domain.ErrorCode(err)
		status := statusFor(err)
		if status < http.StatusInternalServerError {
			h.metrics.WebhooksRejected.WithLabelValues(code).Inc()
		} else {
			logger.Error(c.Request.Context(), "webhook execution failed", "code", code, "error", err)
		}
		response.ErrorWithStatus(c, status, err.Error(), code)
		return
	}

	h.metrics.OrdersExecuted.WithLabelValues(string(decision.Order.Mode), string(decision.Result.Status)).Inc()
	h.metrics.PositionsActive.Set(float64(len(h.tracker.OpenPositions())))

	response.Success(c, gin.H{
		"order_id":    decision.Result.OrderID,
		"received_at": decision.Intent.ReceivedAt,
		"symbol":      decision.Order.Symbol,
		"side":        decision.Order.Direction.Side(),
		"qty":         decision.Order.Quantity,
		"leverage":    decision.Order.Leverage,
		"price":       decision.Result.FilledPrice,
		"margin":      decision.Order.Margin,
		"notional":    decision.Order.Notional,
		"mode":        decision.Order.Mode,
		"status":      decision.Result.Status,
	})
}

// GetPositions 当前持仓（dashboard 只读）
func (h *GatewayHandler) GetPositions(c *gin.Context) {
	response.Success(c, h.tracker.OpenPositions())
}

// GetHistory 执行历史，新在前
func (h *GatewayHandler) GetHistory(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	response.Success(c, h.tracker.History(limit))
}

// GetSummary 余额与额度概要
func (h *GatewayHandler) GetSummary(c *gin.Context) {
	summary, err := h.service.Summarize(c.Request.Context())
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadGateway, err.Error(), domain.ErrorCode(err))
		return
	}
	response.Success(c, summary)
}

// Healthz 健康检查
func (h *GatewayHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusFor 将错误分类映射到 HTTP 状态码：
// 执行器之前的拒绝为 4xx，执行失败为 5xx。
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrSymbolNotAllowed),
		errors.Is(err, domain.ErrMissingLeverage),
		errors.Is(err, domain.ErrUnknownSymbolLeverage),
		errors.Is(err, domain.ErrInvalidLeverage),
		errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrExecutionTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrExecutionRejected),
		errors.Is(err, domain.ErrExecutionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
