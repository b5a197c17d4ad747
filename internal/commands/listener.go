// Package commands answers read-only bot commands in the alert chat.
package commands

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	tb "gopkg.in/tucnak/telebot.v2"
)

const defaultPollTimeout = 10 * time.Second

// StatusFunc renders the current runtime status.
type StatusFunc func() string

// Options configure the listener.
type Options struct {
	Token       string
	APIBase     string
	ChatID      string
	BotName     string
	PollTimeout time.Duration
}

var commandList = []tb.Command{
	{Text: "status", Description: "Stream, retry and alert status"},
	{Text: "help", Description: "List commands"},
}

// Listener long-polls Telegram for commands.
type Listener struct {
	client *tb.Bot
	opts   Options
	status StatusFunc
	logger zerolog.Logger
}

// NewListener builds the bot client and registers handlers. Only messages from
// the configured chat are processed.
func NewListener(opts Options, status StatusFunc, logger zerolog.Logger) (*Listener, error) {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	l := &Listener{
		opts:   opts,
		status: status,
		logger: logger.With().Str("component", "commands").Logger(),
	}

	poller := tb.NewMiddlewarePoller(&tb.LongPoller{Timeout: opts.PollTimeout}, l.authorized)
	client, err := tb.NewBot(tb.Settings{
		URL:       strings.TrimRight(opts.APIBase, "/"),
		Token:     opts.Token,
		Poller:    poller,
		ParseMode: tb.ModeHTML,
		Reporter: func(err error) {
			l.logger.Warn().Err(err).Msg("telegram poller error")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	l.client = client

	client.Handle("/status", l.handleStatus)
	client.Handle("/help", l.handleHelp)
	client.Handle("/start", l.handleHelp)
	return l, nil
}

// Run polls until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.client.SetCommands(commandList); err != nil {
		l.logger.Warn().Err(err).Msg("failed to publish command list")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.client.Start()
	}()
	l.logger.Info().Str("bot", l.client.Me.Username).Msg("command listener started")

	<-ctx.Done()
	l.client.Stop()
	<-done
	l.logger.Info().Msg("command listener stopped")
	return ctx.Err()
}

func (l *Listener) authorized(u *tb.Update) bool {
	if u.Message == nil || u.Message.Chat == nil {
		return false
	}
	if strconv.FormatInt(u.Message.Chat.ID, 10) == l.opts.ChatID {
		return true
	}
	l.logger.Warn().Int64("chat_id", u.Message.Chat.ID).Msg("ignoring command from unauthorized chat")
	return false
}

func (l *Listener) handleStatus(m *tb.Message) {
	text := "status unavailable"
	if l.status != nil {
		text = l.status()
	}
	l.reply(m, text)
}

func (l *Listener) handleHelp(m *tb.Message) {
	lines := make([]string, 0, len(commandList)+1)
	if l.opts.BotName != "" {
		lines = append(lines, "<b>"+html.EscapeString(l.opts.BotName)+"</b>")
	}
	for _, c := range commandList {
		lines = append(lines, fmt.Sprintf("/%s - %s", c.Text, c.Description))
	}
	l.reply(m, strings.Join(lines, "\n"))
}

func (l *Listener) reply(m *tb.Message, text string) {
	if _, err := l.client.Send(m.Chat, text); err != nil {
		l.logger.Error().Err(err).Int64("chat_id", m.Chat.ID).Msg("failed to answer command")
	}
}
