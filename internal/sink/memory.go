package sink

import (
	"sync"

	"github.com/tonu1990/edgecam/internal/pipeline"
)

// MemorySink retains the most recent pushed frame. It backs tests and any
// consumer that only ever wants the latest image.
type MemorySink struct {
	mu     sync.Mutex
	frame  pipeline.Frame
	closed bool

	pushed  uint64
	dropped uint64
}

// NewMemorySink returns an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Push replaces the retained frame, releasing the one it displaces.
func (s *MemorySink) Push(fr pipeline.Frame) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fr.Release()
		return errSinkClosed
	}
	old := s.frame
	s.frame = fr
	s.pushed++
	if old != nil {
		s.dropped++
	}
	s.mu.Unlock()

	if old != nil {
		old.Release()
	}
	return nil
}

// Latest returns an independent copy of the retained frame, or nil when
// nothing has been pushed.
func (s *MemorySink) Latest() (pipeline.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, nil
	}
	return s.frame.Clone()
}

// Pushed returns how many frames were accepted.
func (s *MemorySink) Pushed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushed
}

// Dropped returns how many frames were displaced before being read.
func (s *MemorySink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close releases the retained frame and rejects further pushes.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame != nil {
		s.frame.Release()
		s.frame = nil
	}
	s.closed = true
	return nil
}
