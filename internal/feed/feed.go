// Package feed subscribes to the exchange ticker stream and decodes its frames
// into Tick values. It has no opinion on retries; a Stream that fails is spent
// and the caller opens a new one.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrIdle reports that no frame arrived within the receive timeout.
	ErrIdle = errors.New("feed: idle timeout")
	// ErrConnectionClosed reports that an established stream dropped.
	ErrConnectionClosed = errors.New("feed: connection closed")
)

// Tick is one price update for one symbol.
type Tick struct {
	Symbol    string
	Price     decimal.Decimal
	Timestamp time.Time
}

// Stream is a single established subscription.
type Stream interface {
	// Receive blocks until a frame is decoded, the timeout elapses (ErrIdle),
	// the stream drops (ErrConnectionClosed) or ctx is done.
	Receive(ctx context.Context, timeout time.Duration) ([]Tick, error)
	Close() error
}

// ConnectError is returned when the transport handshake fails.
type ConnectError struct {
	URL    string
	Status int
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("feed: connect %s (http %d): %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("feed: connect %s: %v", e.URL, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// DecodeError is returned for a malformed frame. The stream stays usable.
type DecodeError struct {
	Size    int
	Snippet string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("feed: decode frame (%d bytes, %q): %v", e.Size, e.Snippet, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
