package alerting

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Bilal2742/Crypto-bot/internal/chart"
	"github.com/Bilal2742/Crypto-bot/internal/evaluator"
	"github.com/Bilal2742/Crypto-bot/internal/storage"
)

type fakeNotifier struct {
	mu       sync.Mutex
	texts    []string
	images   [][]byte
	captions []string
	textErr  error
	imageErr error
}

func (f *fakeNotifier) SendText(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.textErr
}

func (f *fakeNotifier) SendImage(_ context.Context, _ string, png []byte, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, png)
	f.captions = append(f.captions, caption)
	return f.imageErr
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []storage.AlertRecord
}

func (f *fakeRecorder) InsertAlert(_ context.Context, rec storage.AlertRecord) (storage.AlertRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.ID = int64(len(f.records) + 1)
	f.records = append(f.records, rec)
	return rec, nil
}

type fakeHistory struct {
	points []chart.Point
	err    error
	calls  int
}

func (f *fakeHistory) Points(context.Context, string) ([]chart.Point, error) {
	f.calls++
	return f.points, f.err
}

func alertWithSamples() evaluator.Alert {
	alert := sampleAlert("6")
	base := alert.TriggeredAt.Add(-5 * time.Minute)
	alert.Samples = []evaluator.Sample{
		{Time: base, Price: decimal.NewFromInt(64000)},
		{Time: base.Add(time.Minute), Price: decimal.NewFromInt(65000)},
		{Time: alert.TriggeredAt, Price: alert.Price},
	}
	return alert
}

func TestDeliverSendsTextChartAndRecord(t *testing.T) {
	notifier := &fakeNotifier{}
	store := &fakeRecorder{}
	history := &fakeHistory{err: errors.New("klines down")}
	d := NewDispatcher(notifier, DispatcherOptions{
		ChatID:  "chat",
		BotName: "bot",
		Charts:  true,
		History: history,
		Store:   store,
	}, testLogger())

	require.NoError(t, d.Deliver(context.Background(), alertWithSamples()))

	require.Len(t, notifier.texts, 1)
	require.Len(t, notifier.images, 1)
	require.True(t, bytes.HasPrefix(notifier.images[0], []byte("\x89PNG")))
	require.Equal(t, "BTCUSDT +6.00% / 5m", notifier.captions[0])
	require.Equal(t, 1, history.calls)

	require.Len(t, store.records, 1)
	rec := store.records[0]
	require.True(t, rec.Delivered)
	require.Nil(t, rec.DeliveryError)
	require.Equal(t, "5m", rec.Horizon)
	require.True(t, rec.PercentChange.Equal(decimal.NewFromInt(6)))

	stats := d.Stats()
	require.Equal(t, int64(1), stats.Delivered)
	require.Equal(t, alertWithSamples().TriggeredAt, stats.LastAlert)
}

func TestDeliverTextFailureIsRecordedAndChartSkipped(t *testing.T) {
	notifier := &fakeNotifier{textErr: &DeliveryError{Op: "sendMessage", StatusCode: 400}}
	store := &fakeRecorder{}
	d := NewDispatcher(notifier, DispatcherOptions{ChatID: "chat", Charts: true, Store: store}, testLogger())

	err := d.Deliver(context.Background(), alertWithSamples())

	var delivery *DeliveryError
	require.ErrorAs(t, err, &delivery)
	require.Empty(t, notifier.images)
	require.Len(t, store.records, 1)
	require.False(t, store.records[0].Delivered)
	require.NotNil(t, store.records[0].DeliveryError)
	require.Equal(t, int64(1), d.Stats().Failed)
}

func TestChartPrefersHistory(t *testing.T) {
	start := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	history := &fakeHistory{points: []chart.Point{
		{Time: start, Price: 1},
		{Time: start.Add(time.Minute), Price: 2},
		{Time: start.Add(2 * time.Minute), Price: 3},
	}}
	d := NewDispatcher(&fakeNotifier{}, DispatcherOptions{History: history}, testLogger())

	points := d.chartPoints(context.Background(), alertWithSamples())

	require.Len(t, points, 3)
	require.Equal(t, 3.0, points[2].Price)
}

func TestRunDrainsUntilClosed(t *testing.T) {
	notifier := &fakeNotifier{}
	d := NewDispatcher(notifier, DispatcherOptions{ChatID: "chat"}, testLogger())

	alerts := make(chan evaluator.Alert, 2)
	alerts <- sampleAlert("6")
	alerts <- sampleAlert("-6")
	close(alerts)

	require.NoError(t, d.Run(context.Background(), alerts))
	require.Len(t, notifier.texts, 2)
}

func TestRunStopsOnCancel(t *testing.T) {
	d := NewDispatcher(&fakeNotifier{}, DispatcherOptions{}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, d.Run(ctx, make(chan evaluator.Alert)), context.Canceled)
}
