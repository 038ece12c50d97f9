package pipeline

import "sync"

// FrameSlot is a single-slot, most-recent-frame-only buffer with overwrite
// semantics. The producer never blocks: publishing over an unconsumed frame
// drops and releases the old one. The consumer side is non-blocking as well.
// It is the bounded queue between the inference branch and the detection
// worker.
type FrameSlot struct {
	mu    sync.Mutex
	frame Frame
	drops uint64
}

// NewFrameSlot creates an empty slot.
func NewFrameSlot() *FrameSlot {
	return &FrameSlot{}
}

// Put stores a frame, taking ownership. If an unconsumed frame is present it
// is released and counted as dropped. Returns true when a frame was dropped.
func (s *FrameSlot) Put(fr Frame) bool {
	s.mu.Lock()
	old := s.frame
	s.frame = fr
	if old != nil {
		s.drops++
	}
	s.mu.Unlock()

	if old != nil {
		old.Release()
		return true
	}
	return false
}

// TryTake removes and returns the buffered frame, or nil when the slot is
// empty. Ownership transfers to the caller.
func (s *FrameSlot) TryTake() Frame {
	s.mu.Lock()
	fr := s.frame
	s.frame = nil
	s.mu.Unlock()
	return fr
}

// Drain releases any buffered frame and resets the drop counter. The slot
// outlives build cycles; counters must not carry over between runs.
func (s *FrameSlot) Drain() {
	s.mu.Lock()
	fr := s.frame
	s.frame = nil
	s.drops = 0
	s.mu.Unlock()
	if fr != nil {
		fr.Release()
	}
}

// Drops returns the number of frames dropped by overwrites.
func (s *FrameSlot) Drops() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops
}
