package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"vpnstore/internal/pkg/httpclient"
)

const defaultBaseURL = "https://api.telegram.org"

// BotAPI is a thin Telegram Bot API client for outbound messages sent
// outside of an update handler (notifications, admin alerts).
type BotAPI struct {
	client *httpclient.Client
}

// NewBotAPI creates a client for the given bot token.
func NewBotAPI(token string) *BotAPI {
	return NewBotAPIWithBaseURL(defaultBaseURL, token)
}

// NewBotAPIWithBaseURL points the client at a different API host.
func NewBotAPIWithBaseURL(baseURL, token string) *BotAPI {
	return &BotAPI{
		client: httpclient.New().
			WithTimeout(15*time.Second).
			WithRetry(1, 500*time.Millisecond, 2*time.Second).
			WithBaseURL(baseURL + "/bot" + token),
	}
}

// InlineButton is one button of an inline keyboard.
type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// InlineKeyboard is the reply_markup for inline buttons.
type InlineKeyboard struct {
	InlineKeyboard [][]InlineButton `json:"inline_keyboard"`
}

// Row builds a keyboard with all buttons in a single row.
func Row(buttons ...InlineButton) *InlineKeyboard {
	return &InlineKeyboard{InlineKeyboard: [][]InlineButton{buttons}}
}

// APIError is returned when Telegram answers ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// IsBlocked reports whether the user blocked the bot or the chat is gone.
func IsBlocked(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && (apiErr.Code == 403 || apiErr.Code == 400 && apiErr.Description == "Bad Request: chat not found")
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Call makes a raw API call and returns the result field.
func (b *BotAPI) Call(ctx context.Context, method string, params map[string]interface{}) (json.RawMessage, error) {
	body, err := b.client.Post(ctx, "/"+method, params)
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) {
			// Telegram reports errors with a JSON body and a 4xx status.
			body = se.Body
		} else {
			return nil, fmt.Errorf("telegram %s: %w", method, err)
		}
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !resp.OK {
		return nil, &APIError{Method: method, Code: resp.ErrorCode, Description: resp.Description}
	}
	return resp.Result, nil
}

// SendMessage sends an HTML formatted text message.
func (b *BotAPI) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboard) error {
	params := map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if markup != nil {
		params["reply_markup"] = markup
	}
	_, err := b.Call(ctx, "sendMessage", params)
	return err
}

// SendPhoto sends a photo by Telegram file id.
func (b *BotAPI) SendPhoto(ctx context.Context, chatID int64, fileID, caption string, markup *InlineKeyboard) error {
	params := map[string]interface{}{
		"chat_id":    chatID,
		"photo":      fileID,
		"caption":    caption,
		"parse_mode": "HTML",
	}
	if markup != nil {
		params["reply_markup"] = markup
	}
	_, err := b.Call(ctx, "sendPhoto", params)
	return err
}

var telegramNets = mustCIDRs("149.154.160.0/20", "91.108.4.0/22")

func mustCIDRs(blocks ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(blocks))
	for _, b := range blocks {
		_, n, err := net.ParseCIDR(b)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// CheckTelegramIP verifies the address belongs to Telegram's webhook ranges.
func CheckTelegramIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range telegramNets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}
