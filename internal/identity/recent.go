// ABOUTME: Bounded FIFO of recently retired identities
// ABOUTME: Oldest entry is evicted when the window is full

package identity

// RecentWindowSize is the number of retired identities kept for status reporting.
const RecentWindowSize = 5

// RecentWindow is a bounded FIFO of retired identities. The zero value is not
// usable; construct with NewRecentWindow.
type RecentWindow struct {
	size  int
	items []string
}

// NewRecentWindow returns a window holding at most size entries, seeded with
// initial. Only the newest size entries of initial are kept.
func NewRecentWindow(size int, initial ...string) *RecentWindow {
	if size <= 0 {
		size = RecentWindowSize
	}
	w := &RecentWindow{size: size, items: make([]string, 0, size)}
	for _, id := range initial {
		w.Push(id)
	}
	return w
}

// Push appends id, evicting the oldest entry on overflow.
func (w *RecentWindow) Push(id string) {
	if len(w.items) == w.size {
		copy(w.items, w.items[1:])
		w.items = w.items[:len(w.items)-1]
	}
	w.items = append(w.items, id)
}

// Items returns the window contents, oldest first.
func (w *RecentWindow) Items() []string {
	out := make([]string, len(w.items))
	copy(out, w.items)
	return out
}

// Len returns the number of entries.
func (w *RecentWindow) Len() int { return len(w.items) }

// Reset empties the window.
func (w *RecentWindow) Reset() { w.items = w.items[:0] }
