// Package history holds the bounded rolling window of price samples used for
// charting.
package history

import "pricesync/internal/feed"

// DefaultCapacity is the number of samples kept when no capacity is given.
const DefaultCapacity = 200

// Buffer is an immutable, capacity-bounded sequence of price samples ordered
// by time. Seed and Append return new buffers and never modify the receiver,
// so a Buffer can be shared freely once built.
//
// The window is count based, not time based: its time span depends on how
// often samples are appended.
type Buffer struct {
	capacity int
	points   []feed.PricePoint
}

// New returns an empty buffer holding at most capacity samples.
func New(capacity int) Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return Buffer{capacity: capacity}
}

// Seed replaces the contents wholesale with points, keeping the newest
// samples if points exceeds the capacity. An empty seed returns b unchanged.
func (b Buffer) Seed(points []feed.PricePoint) Buffer {
	if len(points) == 0 {
		return b
	}
	b = b.normalized()
	if n := len(points); n > b.capacity {
		points = points[n-b.capacity:]
	}
	out := make([]feed.PricePoint, len(points))
	copy(out, points)
	return Buffer{capacity: b.capacity, points: out}
}

// Append returns a new buffer with p added at the end. When the result would
// exceed the capacity the oldest samples are dropped from the front.
func (b Buffer) Append(p feed.PricePoint) Buffer {
	b = b.normalized()
	keep := b.points
	if len(keep) >= b.capacity {
		keep = keep[len(keep)-b.capacity+1:]
	}
	out := make([]feed.PricePoint, len(keep), len(keep)+1)
	copy(out, keep)
	out = append(out, p)
	return Buffer{capacity: b.capacity, points: out}
}

// Points returns the samples oldest first. The slice must not be modified.
func (b Buffer) Points() []feed.PricePoint { return b.points }

func (b Buffer) Len() int { return len(b.points) }

func (b Buffer) Cap() int { return b.normalized().capacity }

// Last returns the newest sample.
func (b Buffer) Last() (feed.PricePoint, bool) {
	if len(b.points) == 0 {
		return feed.PricePoint{}, false
	}
	return b.points[len(b.points)-1], true
}

// normalized gives the zero Buffer the default capacity.
func (b Buffer) normalized() Buffer {
	if b.capacity <= 0 {
		b.capacity = DefaultCapacity
	}
	return b
}
