package detect

import "sync/atomic"

// Whiteboard shares the latest detection results between the detection
// worker (writer) and the overlay renderer (reader). Publish swaps the
// whole set atomically so readers never see a partial update.
type Whiteboard struct {
	latest atomic.Pointer[DetectionSet]
}

// NewWhiteboard returns an empty whiteboard.
func NewWhiteboard() *Whiteboard {
	return &Whiteboard{}
}

// Publish replaces the current results with the given set.
func (w *Whiteboard) Publish(set DetectionSet) {
	w.latest.Store(&set)
}

// Latest returns the most recently published set. Never nil; before the
// first publish it returns an empty set.
func (w *Whiteboard) Latest() DetectionSet {
	p := w.latest.Load()
	if p == nil {
		return DetectionSet{}
	}
	return *p
}

// Clear resets the whiteboard to an empty set.
func (w *Whiteboard) Clear() {
	w.Publish(DetectionSet{})
}
