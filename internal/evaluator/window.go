package evaluator

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Sample is one observed price.
type Sample struct {
	Time  time.Time
	Price decimal.Decimal
}

// Window is the ordered price history of one symbol.
type Window struct {
	samples []Sample
	// lastSeen is the raw time of the newest accepted tick.
	lastSeen time.Time
}

// Add appends s with its time truncated to resolution, so every sample sits
// on a bucket boundary. Ticks older than the newest accepted one are rejected
// and a tick landing in the tail's bucket replaces it.
func (w *Window) Add(s Sample, resolution time.Duration) bool {
	if !w.lastSeen.IsZero() && s.Time.Before(w.lastSeen) {
		return false
	}
	w.lastSeen = s.Time
	if resolution > 0 {
		s.Time = s.Time.Truncate(resolution)
	}

	n := len(w.samples)
	if n > 0 && !s.Time.After(w.samples[n-1].Time) {
		w.samples[n-1] = s
		return true
	}
	w.samples = append(w.samples, s)
	return true
}

// Evict drops every sample strictly older than cutoff.
func (w *Window) Evict(cutoff time.Time) {
	idx := sort.Search(len(w.samples), func(i int) bool {
		return !w.samples[i].Time.Before(cutoff)
	})
	if idx == 0 {
		return
	}
	// Copy down so the backing array does not grow without bound.
	kept := copy(w.samples, w.samples[idx:])
	clear(w.samples[kept:])
	w.samples = w.samples[:kept]
}

// At returns the most recent sample taken at or before ts.
func (w *Window) At(ts time.Time) (Sample, bool) {
	idx := sort.Search(len(w.samples), func(i int) bool {
		return w.samples[i].Time.After(ts)
	})
	if idx == 0 {
		return Sample{}, false
	}
	return w.samples[idx-1], true
}

// Len reports the number of retained samples.
func (w *Window) Len() int { return len(w.samples) }

// Oldest returns the first retained sample.
func (w *Window) Oldest() (Sample, bool) {
	if len(w.samples) == 0 {
		return Sample{}, false
	}
	return w.samples[0], true
}

// Snapshot copies the retained samples.
func (w *Window) Snapshot() []Sample {
	out := make([]Sample, len(w.samples))
	copy(out, w.samples)
	return out
}
