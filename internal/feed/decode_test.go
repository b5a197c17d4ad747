package feed

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestDecodeTickerArray(t *testing.T) {
	frame := []byte(`[
		{"e":"24hrTicker","E":1700000000000,"s":"BTCUSDT","c":"35000.10"},
		{"e":"24hrTicker","E":1700000000500,"s":"ethbtc","c":"0.0531"},
		{"e":"24hrTicker","E":1700000001000,"s":"SOLUSDT","c":"41.5"}
	]`)

	ticks, err := Decode(frame, time.Now(), NewFilter(nil, []string{"usdt"}))
	require.NoError(t, err)
	require.Len(t, ticks, 2)

	require.Equal(t, "BTCUSDT", ticks[0].Symbol)
	require.True(t, ticks[0].Price.Equal(decimal.RequireFromString("35000.10")))
	require.Equal(t, time.UnixMilli(1700000000000).UTC(), ticks[0].Timestamp)
	require.Equal(t, "SOLUSDT", ticks[1].Symbol)
}

func TestDecodeSingleObjectUsesNow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	ticks, err := Decode([]byte(`{"s":"BTCUSDT","c":"100"}`), now, NewFilter(nil, nil))
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	require.Equal(t, now, ticks[0].Timestamp)
}

func TestDecodeSkipsInvalidEntries(t *testing.T) {
	frame := []byte(`[{"s":"BTCUSDT","c":"abc"},{"s":"","c":"1"},{"s":"ETHUSDT","c":"2000"},{"s":"XUSDT","c":"0"}]`)

	ticks, err := Decode(frame, time.Now(), NewFilter(nil, nil))
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	require.Equal(t, "ETHUSDT", ticks[0].Symbol)
}

func TestDecodeMalformedFrame(t *testing.T) {
	frame := []byte(`[{"s":"BTCUSDT",`)
	_, err := Decode(frame, time.Now(), NewFilter(nil, nil))

	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	require.Equal(t, len(frame), decErr.Size)
}

func TestDecodeFrameWithoutTickers(t *testing.T) {
	_, err := Decode([]byte(`{"result":null,"id":1}`), time.Now(), NewFilter(nil, nil))

	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	require.ErrorIs(t, err, errNoValidTicker)
}

func TestDecodeEmptyArray(t *testing.T) {
	ticks, err := Decode([]byte(`[]`), time.Now(), NewFilter(nil, nil))
	require.NoError(t, err)
	require.Empty(t, ticks)
}

func TestFilterSymbolsWinOverQuotes(t *testing.T) {
	f := NewFilter([]string{" btcusdt "}, []string{"USDT"})

	require.True(t, f.Keep("BTCUSDT"))
	require.False(t, f.Keep("ETHUSDT"))
}

func TestFilterQuoteRequiresBase(t *testing.T) {
	f := NewFilter(nil, []string{"USDT", "FDUSD"})

	require.True(t, f.Keep("BTCFDUSD"))
	require.False(t, f.Keep("USDT"))
	require.False(t, f.Keep("BTCEUR"))
}
