// Package filter implements the moving-average filter applied to every Tilt
// metric.
package filter

import (
	"fmt"
	"time"
)

// Capacity is the number of samples a Filter averages over.
const Capacity = 100

// Sample is one timestamped raw reading.
type Sample struct {
	At    time.Time
	Value int
}

// Filter averages the last Capacity samples of one metric. Raw values are
// integers; Get divides the mean by the scale the filter was built with.
//
// A Filter is not safe for concurrent use; its owner serialises access.
type Filter struct {
	ring  *Ring[Sample]
	scale float64
}

// New returns an empty filter. A scale below 1 is treated as 1.
func New(scale int) *Filter {
	if scale < 1 {
		scale = 1
	}
	return &Filter{ring: NewRing[Sample](Capacity), scale: float64(scale)}
}

// Write records a sample. The first write after New or Reset fills the whole
// window with it.
func (f *Filter) Write(at time.Time, value int) {
	f.ring.Push(Sample{At: at, Value: value})
}

// Reset restarts the window around the most recent sample. It is a no-op on
// an empty filter.
func (f *Filter) Reset() {
	if s, ok := f.ring.Newest(); ok {
		f.ring.Prime(s)
	}
}

// Get returns the scaled mean of the window, or 0 before the first write.
func (f *Filter) Get() float64 {
	if !f.ring.Primed() {
		return 0
	}
	var sum int64
	f.ring.Do(func(s Sample) { sum += int64(s.Value) })
	return float64(sum) / float64(f.ring.Cap()) / f.scale
}

// Last returns the most recent scaled sample, or 0 before the first write.
func (f *Filter) Last() float64 {
	s, ok := f.ring.Newest()
	if !ok {
		return 0
	}
	return float64(s.Value) / f.scale
}

// Count returns the number of samples written since the window last restarted.
func (f *Filter) Count() uint64 { return f.ring.Count() }

// Updated returns the time of the most recent sample.
func (f *Filter) Updated() (time.Time, bool) {
	s, ok := f.ring.Newest()
	return s.At, ok
}

// Read returns the time covered by the window, the filtered value truncated
// toward zero and the filtered value formatted for display.
func (f *Filter) Read() (time.Duration, int, string) {
	v := f.Get()
	var span time.Duration
	if oldest, ok := f.ring.Oldest(); ok {
		newest, _ := f.ring.Newest()
		span = newest.At.Sub(oldest.At)
	}
	return span, int(v), fmt.Sprintf("%3.5f", v)
}

// Summary formats the last and filtered values.
func (f *Filter) Summary() string {
	return fmt.Sprintf("Last: %9.5f, Filtered: %9.5f", f.Last(), f.Get())
}

// Statistics formats the sample count, the age of the newest sample and the
// sample rate over the window as seen at now.
func (f *Filter) Statistics(now time.Time) string {
	var age time.Duration
	if newest, ok := f.ring.Newest(); ok {
		age = now.Sub(newest.At)
	}
	return fmt.Sprintf("%d Samples, last updated %d Seconds ago, %d Samples/Hour",
		f.ring.Count(), int64(age/time.Second), f.Rate(now))
}

// Rate returns the hourly sample rate over the window as seen at now. It is 0
// when the window spans no time.
func (f *Filter) Rate(now time.Time) int {
	oldest, ok := f.ring.Oldest()
	if !ok {
		return 0
	}
	span := now.Sub(oldest.At)
	if span <= 0 {
		return 0
	}
	return int(float64(f.ring.Window()) * float64(time.Hour) / float64(span))
}
