package commands

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	tb "gopkg.in/tucnak/telebot.v2"
)

// botAPI is a minimal Bot API stand-in that records sent messages.
type botAPI struct {
	mu   sync.Mutex
	sent []map[string]any
}

func (b *botAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		switch method {
		case "getMe":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":7,"is_bot":true,"first_name":"Pump","username":"pump_bot"}}`))
		case "sendMessage":
			payload := map[string]any{}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Errorf("decode sendMessage: %v", err)
			}
			b.mu.Lock()
			b.sent = append(b.sent, payload)
			b.mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"},"text":"ok"}}`))
		case "getUpdates":
			_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
		default:
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		}
	})
}

func (b *botAPI) Sent() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]any(nil), b.sent...)
}

func newTestListener(t *testing.T, status StatusFunc) (*Listener, *botAPI) {
	t.Helper()
	api := &botAPI{}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	l, err := NewListener(Options{
		Token:       "token",
		APIBase:     srv.URL,
		ChatID:      "42",
		BotName:     "Crypto Pump Bot",
		PollTimeout: 10 * time.Millisecond,
	}, status, zerolog.Nop())
	require.NoError(t, err)
	return l, api
}

func message(chatID int64, text string) *tb.Message {
	return &tb.Message{Text: text, Chat: &tb.Chat{ID: chatID}}
}

func TestAuthorizedOnlyConfiguredChat(t *testing.T) {
	l, _ := newTestListener(t, nil)

	require.True(t, l.authorized(&tb.Update{Message: message(42, "/status")}))
	require.False(t, l.authorized(&tb.Update{Message: message(99, "/status")}))
	require.False(t, l.authorized(&tb.Update{}))
}

func TestStatusReplies(t *testing.T) {
	l, api := newTestListener(t, func() string { return "state=connected" })

	l.handleStatus(message(42, "/status"))

	sent := api.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "42", sent[0]["chat_id"])
	require.Equal(t, "state=connected", sent[0]["text"])
}

func TestHelpListsCommands(t *testing.T) {
	l, api := newTestListener(t, nil)

	l.handleHelp(message(42, "/help"))

	sent := api.Sent()
	require.Len(t, sent, 1)
	text := sent[0]["text"].(string)
	require.Contains(t, text, "<b>Crypto Pump Bot</b>")
	require.Contains(t, text, "/status - ")
	require.Contains(t, text, "/help - ")
}

func TestRunStopsOnCancel(t *testing.T) {
	l, _ := newTestListener(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}
