package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultMaxAttempts = 3

// Notifier delivers a text message to the fixed destination channel.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// TelegramNotifier pushes Markdown messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken    string
	chatID      string
	baseURL     string
	maxAttempts int
	client      *http.Client
	logger      zerolog.Logger

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, maxAttempts int, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &TelegramNotifier{
		botToken:    botToken,
		chatID:      chatID,
		baseURL:     strings.TrimRight(baseURL, "/"),
		maxAttempts: maxAttempts,
		client:      &http.Client{Timeout: timeout},
		logger:      logger.With().Str("component", "alert_telegram").Logger(),
		sleep:       sleepCtx,
	}
}

// Send posts the message via the sendMessage API. A rate-limited response
// is retried after the transport-specified backoff, bounded by the
// configured attempt count; any other failure is terminal.
func (n *TelegramNotifier) Send(ctx context.Context, text string) error {
	for attempt := 1; ; attempt++ {
		retryAfter, err := n.send(ctx, text)
		if err == nil {
			return nil
		}
		if retryAfter <= 0 {
			return err
		}
		if attempt >= n.maxAttempts {
			return fmt.Errorf("telegram rate limited after %d attempts: %w", attempt, err)
		}

		n.logger.Warn().
			Int("attempt", attempt).
			Dur("retry_after", retryAfter).
			Msg("telegram rate limited, backing off")
		if err := n.sleep(ctx, retryAfter); err != nil {
			return err
		}
	}
}

// send performs one sendMessage call. A positive retryAfter marks the
// error as retryable.
func (n *TelegramNotifier) send(ctx context.Context, text string) (retryAfter time.Duration, err error) {
	payload := map[string]string{
		"chat_id":    n.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
		Parameters  struct {
			RetryAfter int `json:"retry_after"`
		} `json:"parameters"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := time.Duration(result.Parameters.RetryAfter) * time.Second
		if wait <= 0 {
			wait = time.Second
		}
		return wait, fmt.Errorf("telegram rate limited (retry after %s)", wait)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && result.Description != "" {
			return 0, fmt.Errorf("telegram api error (%d): %s", resp.StatusCode, result.Description)
		}
		return 0, fmt.Errorf("telegram api error (%d)", resp.StatusCode)
	}

	if decodeErr == nil && !result.OK {
		if result.Description != "" {
			return 0, fmt.Errorf("telegram returned ok=false: %s", result.Description)
		}
		return 0, fmt.Errorf("telegram returned ok=false")
	}

	n.logger.Debug().Int("length", len(text)).Msg("telegram message sent")
	return 0, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Notifier = (*TelegramNotifier)(nil)
