package metrics

import "github.com/tjfontaine/companion-core/internal/domain"

// ring is a fixed-capacity FIFO of chat metrics. Pushing into a full ring
// overwrites the oldest entry.
type ring struct {
	items []domain.ChatMetric
	head  int // index of the oldest entry
	count int
}

func newRing(capacity int) *ring {
	return &ring{items: make([]domain.ChatMetric, capacity)}
}

// push appends m and reports whether an older entry was evicted.
func (r *ring) push(m domain.ChatMetric) bool {
	if r.count < len(r.items) {
		r.items[(r.head+r.count)%len(r.items)] = m
		r.count++
		return false
	}
	r.items[r.head] = m
	r.head = (r.head + 1) % len(r.items)
	return true
}

// snapshot returns the entries oldest first.
func (r *ring) snapshot() []domain.ChatMetric {
	out := make([]domain.ChatMetric, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.items[(r.head+i)%len(r.items)]
	}
	return out
}

func (r *ring) len() int { return r.count }

func (r *ring) reset() {
	clear(r.items)
	r.head = 0
	r.count = 0
}
