package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ChatSender posts a text message to a chat.
type ChatSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// ChatConfig configures the bot API client.
type ChatConfig struct {
	// APIURL is the bot API base, e.g. https://api.telegram.org.
	APIURL string
	Token  string
}

// ChatClient talks to a Telegram-compatible bot API:
// POST {APIURL}/bot{Token}/sendMessage {"chat_id": ..., "text": ...}.
type ChatClient struct {
	cfg  ChatConfig
	http *http.Client
}

// NewChatClient returns nil if no token is configured; Gateway treats a nil
// sender as "chat disabled".
func NewChatClient(cfg ChatConfig, httpClient *http.Client) *ChatClient {
	if cfg.Token == "" {
		return nil
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.telegram.org"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &ChatClient{cfg: cfg, http: httpClient}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

func (c *ChatClient) SendMessage(ctx context.Context, chatID, text string) error {
	payload, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return err
	}

	url := strings.TrimRight(c.cfg.APIURL, "/") + "/bot" + c.cfg.Token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// the URL carries the token; keep it out of logs
		return fmt.Errorf("send message to chat %s: %w", chatID, redact(err, c.cfg.Token))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var out sendMessageResponse
	_ = json.Unmarshal(body, &out)

	if resp.StatusCode/100 != 2 || !out.OK {
		desc := out.Description
		if desc == "" {
			desc = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("send message to chat %s: %d %s", chatID, resp.StatusCode, desc)
	}
	return nil
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, secret string) error {
	if secret == "" {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), secret, "***"), err: err}
}
