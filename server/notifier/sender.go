package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	commonlog "portal_server/server/common/log"
)

type Sender interface {
	Send(ctx context.Context, text string) error
}

// TelegramSender posts to a Telegram-style bot API.
type TelegramSender struct {
	endpoint string
	chatID   string
	client   *http.Client
}

func NewTelegramSender(baseURL, token, chatID string, timeout time.Duration) *TelegramSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	return &TelegramSender{
		endpoint: fmt.Sprintf("%s/bot%s/sendMessage", base, strings.TrimSpace(token)),
		chatID:   strings.TrimSpace(chatID),
		client:   &http.Client{Timeout: timeout},
	}
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (s *TelegramSender) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"chat_id": s.chatID, "text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var out telegramResponse
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode >= 300 || !out.OK {
		if out.Description != "" {
			return fmt.Errorf("telegram status %d: %s", resp.StatusCode, out.Description)
		}
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}
	return nil
}

// LogSender stands in when no bot token is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, text string) error {
	commonlog.Infof("event=notification action=send status=logged channel=log text=%q", text)
	return nil
}
