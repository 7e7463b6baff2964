// Package telegram Telegram Bot API 通知发送器。
package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Notifier 通过 sendMessage 接口发送文本通知。
// token 或 chat_id 为空时禁用，Notify 直接返回 nil。
type Notifier struct {
	chatID  string
	enabled bool
	http    *resty.Client
}

// New 构造通知器
func New(botToken, chatID string) *Notifier {
	return &Notifier{
		chatID:  chatID,
		enabled: botToken != "" && chatID != "",
		http: resty.New().
			SetBaseURL("https://api.telegram.org/bot" + botToken).
			SetTimeout(15 * time.Second),
	}
}

// Notify 发送文本消息
func (n *Notifier) Notify(ctx context.Context, text string) error {
	if !n.enabled {
		return nil
	}

	resp, err := n.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id":    n.chatID,
			"text":       text,
			"parse_mode": "HTML",
		}).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("telegram sendMessage: status %d", resp.StatusCode())
	}
	return nil
}
