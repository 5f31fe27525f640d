// Package telegram implements the operator channel over the Telegram
// Bot API: outbound messages via sendMessage and command intake via
// getUpdates long polling.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dpfaria/triarb/internal/logger"
)

const defaultBaseURL = "https://api.telegram.org"

// Config holds the bot credentials and polling behaviour.
type Config struct {
	Token       string
	ChatID      string
	PollTimeout time.Duration
	BaseURL     string // overridden in tests
}

// Client is a minimal Telegram Bot API client bound to a single chat.
type Client struct {
	cfg    Config
	client *http.Client
	logger logger.LoggerInterface
}

// New creates a Client. The HTTP timeout leaves headroom over the long
// poll window so getUpdates is not cut short.
func New(cfg Config, log logger.LoggerInterface) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.PollTimeout + 10*time.Second},
		logger: log,
	}
}

// Send posts a message to the configured chat using the sendMessage API.
func (c *Client) Send(ctx context.Context, text string) error {
	payload := map[string]string{
		"chat_id": c.cfg.ChatID,
		"text":    text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.cfg.BaseURL, c.cfg.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

type updatesResponse struct {
	OK     bool     `json:"ok"`
	Result []update `json:"result"`
}

// Listen long-polls getUpdates and invokes handle for every text message
// from the configured chat. Messages from other chats are dropped. It
// blocks until the context ends.
func (c *Client) Listen(ctx context.Context, handle func(ctx context.Context, text string)) error {
	chatID, err := strconv.ParseInt(c.cfg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", c.cfg.ChatID, err)
	}

	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		updates, err := c.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn(ctx, "telegram poll failed, retrying", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil || u.Message.Text == "" {
				continue
			}
			if u.Message.Chat.ID != chatID {
				c.logger.Warn(ctx, "ignoring message from unknown chat",
					"chat_id", u.Message.Chat.ID)
				continue
			}
			handle(ctx, u.Message.Text)
		}
	}
}

func (c *Client) getUpdates(ctx context.Context, offset int64) ([]update, error) {
	url := fmt.Sprintf("%s/bot%s/getUpdates?timeout=%d&offset=%d",
		c.cfg.BaseURL, c.cfg.Token, int(c.cfg.PollTimeout.Seconds()), offset)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: poll request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed updatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("telegram: decode updates: %w", err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("telegram: getUpdates returned ok=false")
	}
	return parsed.Result, nil
}
