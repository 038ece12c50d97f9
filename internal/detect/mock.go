package detect

import (
	"sync"
	"time"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu         sync.Mutex
	detections DetectionSet
	err        error
	delay      time.Duration
	calls      int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetDetections sets the results that will be returned by Detect.
func (m *MockDetector) SetDetections(set DetectionSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detections = set
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetDelay makes each Detect call take at least d, simulating a slow model.
func (m *MockDetector) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Detect returns the pre-configured results or error.
func (m *MockDetector) Detect(img Image) (DetectionSet, error) {
	m.mu.Lock()
	m.calls++
	set, err, delay := m.detections, m.err, m.delay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return set, nil
}

// Calls returns how many times Detect was invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// PersonDetection returns a preset detection representing a person filling
// most of a 416x416 model input.
func PersonDetection() Detection {
	return Detection{
		X:          100,
		Y:          50,
		W:          80,
		H:          40,
		ClassID:    0,
		ClassName:  "person",
		Confidence: 0.87,
	}
}
