package filter

// Ring is a fixed-capacity circular buffer with an explicit empty state.
// The first value pushed into an empty ring primes it: every slot is filled
// with that value, so the buffer is never partially initialised.
//
// A Ring is not safe for concurrent use.
type Ring[T any] struct {
	buf    []T
	next   int    // slot the next push writes
	count  uint64 // pushes since the last prime, the prime included
	primed bool
}

// NewRing returns an empty ring holding capacity values. It panics if
// capacity is not positive.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("filter: ring capacity must be positive")
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Count returns the number of values pushed since the ring was last primed,
// counting the priming value. It is not capped at Cap.
func (r *Ring[T]) Count() uint64 { return r.count }

// Primed reports whether the ring holds any value.
func (r *Ring[T]) Primed() bool { return r.primed }

// Prime discards the ring contents and fills every slot with v.
func (r *Ring[T]) Prime(v T) {
	for i := range r.buf {
		r.buf[i] = v
	}
	r.next = 0
	r.count = 1
	r.primed = true
}

// Push stores v in the oldest slot. Pushing into an empty ring primes it.
func (r *Ring[T]) Push(v T) {
	if !r.primed {
		r.Prime(v)
		return
	}
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	r.count++
}

// Newest returns the most recently stored value.
func (r *Ring[T]) Newest() (T, bool) {
	if !r.primed {
		var zero T
		return zero, false
	}
	return r.buf[(r.next+len(r.buf)-1)%len(r.buf)], true
}

// Oldest returns the value the next push will overwrite.
func (r *Ring[T]) Oldest() (T, bool) {
	if !r.primed {
		var zero T
		return zero, false
	}
	return r.buf[r.next], true
}

// Wrapped reports whether more values were pushed than the ring can hold.
func (r *Ring[T]) Wrapped() bool { return r.count > uint64(len(r.buf)) }

// Window returns the number of pushed values still held by the ring.
func (r *Ring[T]) Window() int {
	if r.Wrapped() {
		return len(r.buf)
	}
	return int(r.count)
}

// Do calls fn for every slot in storage order. It does nothing on an empty
// ring.
func (r *Ring[T]) Do(fn func(T)) {
	if !r.primed {
		return
	}
	for _, v := range r.buf {
		fn(v)
	}
}
