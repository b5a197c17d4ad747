package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const snippetLen = 64

var errNoValidTicker = errors.New("frame carried no valid ticker")

// tickerFrame is one element of the all-market ticker array.
type tickerFrame struct {
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
	EventTime int64  `json:"E"`
}

// Filter decides which symbols are kept.
type Filter struct {
	symbols map[string]struct{}
	quotes  []string
}

// NewFilter builds a filter. An explicit symbol list wins over quote assets;
// with neither, every symbol passes.
func NewFilter(symbols, quoteAssets []string) Filter {
	f := Filter{}
	if len(symbols) > 0 {
		f.symbols = lo.SliceToMap(symbols, func(s string) (string, struct{}) {
			return strings.ToUpper(strings.TrimSpace(s)), struct{}{}
		})
	}
	f.quotes = lo.FilterMap(quoteAssets, func(q string, _ int) (string, bool) {
		q = strings.ToUpper(strings.TrimSpace(q))
		return q, q != ""
	})
	return f
}

// Keep reports whether symbol passes the filter.
func (f Filter) Keep(symbol string) bool {
	if f.symbols != nil {
		_, ok := f.symbols[symbol]
		return ok
	}
	if len(f.quotes) == 0 {
		return true
	}
	return lo.SomeBy(f.quotes, func(q string) bool {
		return len(symbol) > len(q) && strings.HasSuffix(symbol, q)
	})
}

// Decode turns one websocket frame into ticks. Entries without a symbol or a
// positive price are skipped; a frame where nothing could be decoded yields a
// DecodeError. now stamps entries that carry no event time.
func Decode(data []byte, now time.Time, filter Filter) ([]Tick, error) {
	trimmed := bytes.TrimSpace(data)

	var frames []tickerFrame
	var err error
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var single tickerFrame
		err = json.Unmarshal(trimmed, &single)
		frames = []tickerFrame{single}
	} else {
		err = json.Unmarshal(trimmed, &frames)
	}
	if err != nil {
		return nil, newDecodeError(data, err)
	}

	ticks := make([]Tick, 0, len(frames))
	valid := 0
	for _, fr := range frames {
		symbol := strings.ToUpper(strings.TrimSpace(fr.Symbol))
		if symbol == "" {
			continue
		}
		price, perr := decimal.NewFromString(strings.TrimSpace(fr.LastPrice))
		if perr != nil || !price.IsPositive() {
			continue
		}
		valid++
		if !filter.Keep(symbol) {
			continue
		}
		ts := now
		if fr.EventTime > 0 {
			ts = time.UnixMilli(fr.EventTime).UTC()
		}
		ticks = append(ticks, Tick{Symbol: symbol, Price: price, Timestamp: ts})
	}

	if valid == 0 && len(frames) > 0 {
		return nil, newDecodeError(data, errNoValidTicker)
	}
	return ticks, nil
}

func newDecodeError(data []byte, err error) *DecodeError {
	snippet := string(data)
	if len(snippet) > snippetLen {
		snippet = snippet[:snippetLen]
	}
	return &DecodeError{Size: len(data), Snippet: snippet, Err: err}
}
