package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/chinda73971177/soc/internal/model"
)

const telegramAPIBase = "https://api.telegram.org"

// Telegram delivers notifications through the Telegram bot API.
type Telegram struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
}

// NewTelegram creates a Telegram channel, or nil when the bot token or chat
// id is missing.
func NewTelegram(token, chatID string) *Telegram {
	if token == "" || chatID == "" {
		return nil
	}
	return &Telegram{baseURL: telegramAPIBase, token: token, chatID: chatID, client: http.DefaultClient}
}

func (t *Telegram) Name() string { return "telegram" }

// Send posts one sendMessage call for the alert.
func (t *Telegram) Send(ctx context.Context, alert model.Alert) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    formatAlert(alert),
	})
	if err != nil {
		return fmt.Errorf("failed to encode telegram message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}
