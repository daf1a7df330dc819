package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"depthview/internal/config"
)

// Message is one operator notification. Silent messages arrive without a
// sound on the recipient's device.
type Message struct {
	Text   string
	Silent bool
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Telegram posts messages to one chat through the Bot API.
type Telegram struct {
	token   string
	chatID  int64
	client  *http.Client
	apiBase string
}

func NewTelegram(cfg config.TelegramConfig) (*Telegram, error) {
	if !cfg.Enabled() {
		return nil, errors.New("missing TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID")
	}
	return &Telegram{
		token:   cfg.BotToken,
		chatID:  cfg.ChatID,
		client:  &http.Client{Timeout: 3 * time.Second},
		apiBase: "https://api.telegram.org",
	}, nil
}

type sendMessageRequest struct {
	ChatID              int64  `json:"chat_id"`
	Text                string `json:"text"`
	ParseMode           string `json:"parse_mode"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
}

// apiResponse is the envelope every Bot API method replies with.
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

func (t *Telegram) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:              t.chatID,
		Text:                msg.Text,
		ParseMode:           "HTML",
		DisableNotification: msg.Silent,
	})
	if err != nil {
		return errors.Wrap(err, "marshal telegram message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiBase+"/bot"+t.token+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build telegram request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "telegram sendMessage")
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&out); err != nil {
		return errors.Wrapf(err, "telegram sendMessage: status %d, unreadable reply", resp.StatusCode)
	}
	if !out.OK {
		return errors.Errorf("telegram sendMessage rejected: %d %s", out.ErrorCode, out.Description)
	}
	return nil
}
