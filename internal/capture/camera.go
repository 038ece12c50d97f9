package capture

import (
	"errors"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/tonu1990/edgecam/internal/config"
	"github.com/tonu1990/edgecam/internal/pipeline"
)

// Camera captures frames from a video device using GoCV. It implements
// pipeline.Source; each ReadFrame hands ownership of the returned frame to
// the caller.
type Camera struct {
	device string
	width  int
	height int
	fps    int

	mu      sync.Mutex
	capture *gocv.VideoCapture
	running bool
}

// NewCamera creates a camera source for the given device. The device is a
// path such as /dev/video0 or a numeric index.
func NewCamera(cfg config.CameraConfig) *Camera {
	return &Camera{
		device: cfg.Device,
		width:  cfg.Width,
		height: cfg.Height,
		fps:    cfg.FPS,
	}
}

// Open opens the device and applies the configured capture format. Opening
// an already open camera is a no-op.
func (c *Camera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.device)
	if err != nil {
		return err
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.fps))

	c.capture = capture
	c.running = true

	return nil
}

// Close releases the device. A blocked ReadFrame returns shortly after.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame from the camera. The caller is responsible
// for releasing the returned frame.
func (c *Camera) ReadFrame() (pipeline.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrSourceNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, errors.New("failed to read frame from camera")
	}

	if mat.Empty() {
		mat.Close()
		return nil, errors.New("captured frame is empty")
	}

	return NewMatFrame(mat, time.Now()), nil
}

// IsOpen reports whether the camera is currently open.
func (c *Camera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
