package capture

import (
	"errors"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/tonu1990/edgecam/internal/pipeline"
)

// MatFrame wraps a GoCV Mat as a pipeline frame. The frame owns the Mat and
// closes it on Release.
type MatFrame struct {
	mat gocv.Mat
	ts  time.Time

	released atomic.Bool
}

// NewMatFrame takes ownership of the given Mat.
func NewMatFrame(mat gocv.Mat, ts time.Time) *MatFrame {
	return &MatFrame{mat: mat, ts: ts}
}

// Mat exposes the underlying Mat for OpenCV-based stages such as the
// overlay renderer and JPEG encoder. The Mat stays owned by the frame.
func (f *MatFrame) Mat() *gocv.Mat { return &f.mat }

// Size returns the frame dimensions in pixels.
func (f *MatFrame) Size() (int, int) { return f.mat.Cols(), f.mat.Rows() }

// Timestamp returns the capture time of the frame.
func (f *MatFrame) Timestamp() time.Time { return f.ts }

// Pixels returns the packed BGR bytes backed by the Mat's data. The slice
// is only valid until Release is called.
func (f *MatFrame) Pixels() ([]byte, error) {
	if f.released.Load() {
		return nil, errors.New("frame already released")
	}
	return f.mat.DataPtrUint8()
}

// Clone returns an independent copy backed by a new Mat.
func (f *MatFrame) Clone() (pipeline.Frame, error) {
	if f.released.Load() {
		return nil, errors.New("cannot clone a released frame")
	}
	return &MatFrame{mat: f.mat.Clone(), ts: f.ts}, nil
}

// Release closes the underlying Mat. Safe to call more than once.
func (f *MatFrame) Release() {
	if f.released.CompareAndSwap(false, true) {
		f.mat.Close()
	}
}
