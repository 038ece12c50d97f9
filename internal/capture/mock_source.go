package capture

import (
	"io"
	"sync"
	"time"

	"github.com/tonu1990/edgecam/internal/pipeline"
)

// MockSource plays back a fixed sequence of frames for testing. When loop is
// false a drained sequence reports io.EOF, which the pipeline treats as end
// of stream.
type MockSource struct {
	frames []*BufferFrame
	index  int
	loop   bool
	delay  time.Duration

	mu         sync.Mutex
	running    bool
	openCount  int
	closeCount int

	openErr error
	readErr error
}

// NewMockSource creates a playback source over the given frames.
func NewMockSource(frames []*BufferFrame, loop bool) *MockSource {
	return &MockSource{
		frames: frames,
		loop:   loop,
	}
}

// SetDelay inserts a pause before each read to simulate a camera frame rate.
func (s *MockSource) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// SetOpenError makes the next Open fail with the given error.
func (s *MockSource) SetOpenError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openErr = err
}

// SetReadError makes subsequent reads fail with the given error.
func (s *MockSource) SetReadError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

func (s *MockSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	s.running = true
	s.index = 0
	s.openCount++
	return nil
}

func (s *MockSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.closeCount++
	}
	s.running = false
	return nil
}

func (s *MockSource) ReadFrame() (pipeline.Frame, error) {
	s.mu.Lock()
	delay := s.delay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, ErrSourceNotOpen
	}
	if s.readErr != nil {
		return nil, s.readErr
	}
	if len(s.frames) == 0 {
		return nil, io.EOF
	}

	if s.index >= len(s.frames) {
		if !s.loop {
			return nil, io.EOF
		}
		s.index = 0
	}

	// Hand out a copy so playback material survives frame releases.
	frame, err := s.frames[s.index].Clone()
	if err != nil {
		return nil, err
	}
	s.index++

	return frame, nil
}

// IsOpen reports whether the source is currently open.
func (s *MockSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// OpenCount returns how many times Open succeeded.
func (s *MockSource) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openCount
}

// CloseCount returns how many times an open source was closed.
func (s *MockSource) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}
