// Package capture provides frame sources for the video pipeline: a real
// camera backed by GoCV (OpenCV) and a mock playback source for tests.
package capture

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tonu1990/edgecam/internal/pipeline"
)

// ErrSourceNotOpen is returned when reading from a source that is not open.
var ErrSourceNotOpen = errors.New("frame source is not open")

// BufferFrame is a plain in-memory frame holding packed BGR pixels. It backs
// the mock source and lets pipeline code run without OpenCV.
type BufferFrame struct {
	width  int
	height int
	pixels []byte
	ts     time.Time

	released atomic.Bool
}

// NewBufferFrame wraps the given BGR pixel buffer. The buffer must hold
// width*height*3 bytes; the frame takes ownership of it.
func NewBufferFrame(width, height int, pixels []byte, ts time.Time) (*BufferFrame, error) {
	if want := width * height * 3; len(pixels) != want {
		return nil, fmt.Errorf("pixel buffer is %d bytes, want %d for %dx%d", len(pixels), want, width, height)
	}
	return &BufferFrame{width: width, height: height, pixels: pixels, ts: ts}, nil
}

// SolidFrame creates a frame filled with a single BGR color. Useful for
// tests and as mock playback material.
func SolidFrame(width, height int, b, g, r byte) *BufferFrame {
	pixels := make([]byte, width*height*3)
	for i := 0; i < len(pixels); i += 3 {
		pixels[i] = b
		pixels[i+1] = g
		pixels[i+2] = r
	}
	f, _ := NewBufferFrame(width, height, pixels, time.Now())
	return f
}

// Size returns the frame dimensions in pixels.
func (f *BufferFrame) Size() (int, int) { return f.width, f.height }

// Timestamp returns the capture time of the frame.
func (f *BufferFrame) Timestamp() time.Time { return f.ts }

// Pixels returns the packed BGR bytes. The slice is only valid until
// Release is called.
func (f *BufferFrame) Pixels() ([]byte, error) {
	if f.released.Load() {
		return nil, errors.New("frame already released")
	}
	return f.pixels, nil
}

// Clone returns an independent copy of the frame.
func (f *BufferFrame) Clone() (pipeline.Frame, error) {
	if f.released.Load() {
		return nil, errors.New("cannot clone a released frame")
	}
	pixels := make([]byte, len(f.pixels))
	copy(pixels, f.pixels)
	return &BufferFrame{width: f.width, height: f.height, pixels: pixels, ts: f.ts}, nil
}

// Release marks the frame unusable. Safe to call more than once.
func (f *BufferFrame) Release() {
	if f.released.CompareAndSwap(false, true) {
		f.pixels = nil
	}
}
