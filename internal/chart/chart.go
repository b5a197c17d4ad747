// Package chart renders price series as PNG images.
package chart

import (
	"bytes"
	"errors"
	"io"
	"math"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrNotEnoughPoints is returned when a series cannot be drawn.
var ErrNotEnoughPoints = errors.New("chart: need at least two points")

// Point is a single (time, price) observation.
type Point struct {
	Time  time.Time
	Price float64
}

// Options shape the rendered image.
type Options struct {
	Title  string
	Width  int
	Height int
	// Marker draws a horizontal reference line, typically the alert's
	// reference price. Zero disables it.
	Marker float64
	// MaxPoints downsamples longer series; zero keeps every point.
	MaxPoints int
}

var (
	upColor   = drawing.ColorFromHex("16a34a")
	downColor = drawing.ColorFromHex("dc2626")
)

// Render writes a PNG line chart of points to w.
func Render(w io.Writer, points []Point, opts Options) error {
	if len(points) < 2 {
		return ErrNotEnoughPoints
	}
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 720
	}
	points = Downsample(points, opts.MaxPoints)

	x := make([]time.Time, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Time
		y[i] = p.Price
	}

	stroke := upColor
	if y[len(y)-1] < y[0] {
		stroke = downColor
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, priceFormat(y))
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name:    "Price",
			XValues: x,
			YValues: y,
			Style: chart.Style{
				StrokeColor: stroke,
				StrokeWidth: 2,
			},
		},
	}
	if opts.Marker > 0 {
		series = append(series, chart.TimeSeries{
			Name:    "Reference",
			XValues: []time.Time{x[0], x[len(x)-1]},
			YValues: []float64{opts.Marker, opts.Marker},
			Style: chart.Style{
				StrokeColor:     drawing.ColorFromHex("6b7280"),
				StrokeDashArray: []float64{5, 5},
			},
		})
	}

	graph := chart.Chart{
		Title:  opts.Title,
		Width:  opts.Width,
		Height: opts.Height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeMinuteValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}

// RenderPNG renders into memory.
func RenderPNG(points []Point, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Render(&buf, points, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Downsample keeps max points spread evenly over the series, always keeping
// the first and last.
func Downsample(points []Point, max int) []Point {
	if max <= 1 || len(points) <= max {
		return points
	}

	result := make([]Point, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

// priceFormat picks enough decimals for sub-cent assets.
func priceFormat(values []float64) string {
	low := math.Inf(1)
	for _, v := range values {
		if v > 0 && v < low {
			low = v
		}
	}
	switch {
	case low >= 100:
		return "%.2f"
	case low >= 1:
		return "%.4f"
	case low >= 0.01:
		return "%.6f"
	default:
		return "%.4g"
	}
}
