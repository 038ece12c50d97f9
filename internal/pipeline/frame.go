// Package pipeline implements the branch graph, gates and lifecycle control
// for the single-camera preview/detection pipeline. One captured stream is
// split by a tee into three branches: an always-on preview, a gated
// detection-display branch with an overlay draw hook, and a gated inference
// branch feeding the detection worker through a single most-recent-frame slot.
package pipeline

import "time"

// Frame is one video frame moving through the branch graph. The pixel buffer
// is owned by the frame; the final consumer must call Release exactly once.
// Release is safe to call more than once.
type Frame interface {
	// Size returns the frame dimensions in pixels.
	Size() (width, height int)

	// Timestamp returns the capture time of the frame.
	Timestamp() time.Time

	// Pixels returns a read-only view of the interleaved pixel data. The
	// view is valid until Release is called.
	Pixels() ([]byte, error)

	// Clone returns an independent copy of the frame with its own buffer.
	Clone() (Frame, error)

	// Release frees the underlying buffer.
	Release()
}

// Source produces a continuous sequence of frames from a capture device.
// ReadFrame blocks until the next frame is available and returns io.EOF when
// the stream ends.
type Source interface {
	Open() error
	Close() error
	ReadFrame() (Frame, error)
}

// Sink consumes frames at the end of a branch. Push takes ownership of the
// frame and must be bounded: a slow downstream consumer may only cost the
// sink its previously retained frame, never block the caller.
type Sink interface {
	Push(Frame) error
	Close() error
}

// ScaleFunc converts a frame to the inference resolution and pixel format.
// It does not consume its input; the returned frame has its own buffer.
type ScaleFunc func(Frame) (Frame, error)

// DrawHook is invoked on the graph execution goroutine for every frame that
// traverses the detection-display branch, before the frame reaches its sink.
// The hook may mutate the frame's pixels but must not retain or release it.
type DrawHook func(Frame)
