package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Options parameterise the ticker stream.
type Options struct {
	URL              string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	Symbols          []string
	QuoteAssets      []string
}

// Receiver opens ticker streams against one endpoint.
type Receiver struct {
	opts   Options
	dialer *websocket.Dialer
	filter Filter
	logger zerolog.Logger
	now    func() time.Time
}

// NewReceiver constructs a Receiver.
func NewReceiver(opts Options, logger zerolog.Logger) *Receiver {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	return &Receiver{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		filter: NewFilter(opts.Symbols, opts.QuoteAssets),
		logger: logger.With().Str("component", "feed").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// URL returns the stream endpoint.
func (r *Receiver) URL() string { return r.opts.URL }

// Open dials the endpoint and returns an established stream.
func (r *Receiver) Open(ctx context.Context) (Stream, error) {
	ws, resp, err := r.dialer.DialContext(ctx, r.opts.URL, nil)
	if err != nil {
		cerr := &ConnectError{URL: r.opts.URL, Err: err}
		if resp != nil {
			cerr.Status = resp.StatusCode
		}
		return nil, cerr
	}

	c := &Conn{
		ws:     ws,
		filter: r.filter,
		now:    r.now,
		done:   make(chan struct{}),
	}
	if r.opts.PingInterval > 0 {
		go c.keepalive(r.opts.PingInterval, r.logger)
	}

	r.logger.Debug().Str("url", r.opts.URL).Msg("stream opened")
	return c, nil
}

// Conn is a Stream backed by a gorilla websocket connection. A Conn that
// reported ErrIdle or ErrConnectionClosed is closed and must be replaced.
type Conn struct {
	ws     *websocket.Conn
	filter Filter
	now    func() time.Time

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Receive reads and decodes the next frame.
func (c *Conn) Receive(ctx context.Context, timeout time.Duration) ([]Tick, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case <-c.done:
		return nil, ErrConnectionClosed
	default:
	}

	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}

	// Cancellation unblocks the pending read by expiring its deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	_, data, err := c.ws.ReadMessage()
	stop()

	if err != nil {
		_ = c.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ErrIdle
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}

	return Decode(data, c.now(), c.filter)
}

// Close sends a close frame on a best effort basis and releases the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *Conn) keepalive(interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				logger.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

var _ Stream = (*Conn)(nil)
