package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/watchtower/internal/domain"
)

const (
	TelegramAPIURL  = "https://api.telegram.org"
	telegramTimeout = 3 * time.Second
)

// TelegramDispatcher sends messages through the Telegram Bot API.
type TelegramDispatcher struct {
	baseURL  string
	botToken string
	chatID   string
	client   *http.Client
}

// NewTelegramDispatcher creates a dispatcher for chatID. An empty baseURL uses the public Bot API.
func NewTelegramDispatcher(baseURL, botToken, chatID string) (*TelegramDispatcher, error) {
	if botToken == "" || chatID == "" {
		return nil, errors.Wrap(domain.ErrConfiguration, "telegram bot token and chat id are required")
	}
	if baseURL == "" {
		baseURL = TelegramAPIURL
	}

	return &TelegramDispatcher{
		baseURL:  baseURL,
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: telegramTimeout},
	}, nil
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Send uses sendPhoto when the message carries a photo, sendMessage otherwise.
func (t *TelegramDispatcher) Send(ctx context.Context, msg domain.Message) error {
	method := "sendMessage"
	payload := map[string]any{
		"chat_id": t.chatID,
	}
	if msg.PhotoURL != "" {
		method = "sendPhoto"
		payload["photo"] = msg.PhotoURL
		payload["caption"] = msg.Text
	} else {
		payload["text"] = msg.Text
	}
	if msg.ParseMode != "" {
		payload["parse_mode"] = msg.ParseMode
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal telegram payload")
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build telegram request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return domain.NewUpstreamError("telegram", method, "", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK {
		var tr telegramResponse
		_ = json.Unmarshal(raw, &tr)
		return domain.NewUpstreamError("telegram", method, fmt.Sprint(resp.StatusCode),
			errors.Errorf("telegram api returned %d: %s", resp.StatusCode, tr.Description))
	}

	return nil
}
