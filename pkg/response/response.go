// Package response 提供统一的 HTTP JSON 响应封装。
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body 统一响应结构
type Body struct {
	// 业务码：OK 表示成功，否则为错误分类码
	Code string `json:"code"`
	// 人类可读消息
	Message string `json:"message"`
	// 负载数据
	Data any `json:"data,omitempty"`
}

// Success 返回 200 与数据
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Body{Code: "OK", Message: "success", Data: data})
}

// ErrorWithStatus 返回指定 HTTP 状态码与错误分类码
func ErrorWithStatus(c *gin.Context, status int, message string, code string) {
	if code == "" {
		code = "INTERNAL"
	}
	c.JSON(status, Body{Code: code, Message: message})
}
