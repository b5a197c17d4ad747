package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notifier delivers alert messages to a chat.
type Notifier interface {
	SendText(ctx context.Context, chatID, text string) error
	SendImage(ctx context.Context, chatID string, png []byte, caption string) error
}

// DeliveryError reports a failed Bot API call. It is logged and dropped by
// callers, never retried.
type DeliveryError struct {
	Op          string
	StatusCode  int
	Description string
	Err         error
}

func (e *DeliveryError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "telegram %s failed", e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Description != "" {
		fmt.Fprintf(&b, ": %s", e.Description)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// SendText posts an HTML message through sendMessage.
func (n *TelegramNotifier) SendText(ctx context.Context, chatID, text string) error {
	payload := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &DeliveryError{Op: "sendMessage", Err: fmt.Errorf("marshal payload: %w", err)}
	}

	if err := n.call(ctx, "sendMessage", "application/json", bytes.NewReader(body)); err != nil {
		return err
	}
	n.logger.Debug().Str("chat_id", chatID).Int("length", len(text)).Msg("message sent")
	return nil
}

// SendImage uploads png through sendPhoto as multipart form data.
func (n *TelegramNotifier) SendImage(ctx context.Context, chatID string, png []byte, caption string) error {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	fields := map[string]string{"chat_id": chatID}
	if caption != "" {
		fields["caption"] = caption
		fields["parse_mode"] = "HTML"
	}
	for k, v := range fields {
		if err := form.WriteField(k, v); err != nil {
			return &DeliveryError{Op: "sendPhoto", Err: err}
		}
	}
	part, err := form.CreateFormFile("photo", "chart.png")
	if err != nil {
		return &DeliveryError{Op: "sendPhoto", Err: err}
	}
	if _, err := part.Write(png); err != nil {
		return &DeliveryError{Op: "sendPhoto", Err: err}
	}
	if err := form.Close(); err != nil {
		return &DeliveryError{Op: "sendPhoto", Err: err}
	}

	if err := n.call(ctx, "sendPhoto", form.FormDataContentType(), &body); err != nil {
		return err
	}
	n.logger.Debug().Str("chat_id", chatID).Int("bytes", len(png)).Msg("photo sent")
	return nil
}

// Close drops idle keep-alive connections to the Bot API.
func (n *TelegramNotifier) Close() error {
	n.client.CloseIdleConnections()
	return nil
}

func (n *TelegramNotifier) call(ctx context.Context, method, contentType string, body io.Reader) error {
	url := fmt.Sprintf("%s/bot%s/%s", n.baseURL, n.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return &DeliveryError{Op: method, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := n.client.Do(req)
	if err != nil {
		return &DeliveryError{Op: method, Err: n.redact(err)}
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)
	// Drain so the connection goes back to the idle pool.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{Op: method, StatusCode: resp.StatusCode, Description: result.Description}
	}
	if decodeErr == nil && !result.OK {
		return &DeliveryError{Op: method, StatusCode: resp.StatusCode, Description: result.Description}
	}
	return nil
}

// redact strips the bot token from transport errors, which embed the URL.
func (n *TelegramNotifier) redact(err error) error {
	if n.botToken == "" || !strings.Contains(err.Error(), n.botToken) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), n.botToken, "<redacted>"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

var _ Notifier = (*TelegramNotifier)(nil)
