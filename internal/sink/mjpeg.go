// Package sink provides frame sinks for the pipeline branches: an MJPEG
// sink that serves the latest frame over HTTP and an in-memory sink for
// tests. Each sink retains at most one frame, replacing the previous one
// on every push.
package sink

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/tonu1990/edgecam/internal/capture"
	"github.com/tonu1990/edgecam/internal/pipeline"
)

// MJPEGSink encodes pushed frames to JPEG and serves them as an MJPEG
// stream. Push never blocks on slow viewers; each viewer reads whatever
// frame is current when it polls.
type MJPEGSink struct {
	frameInterval time.Duration

	mu     sync.RWMutex
	jpeg   []byte
	seq    uint64
	closed bool

	pushed  atomic.Uint64
	dropped atomic.Uint64
}

// NewMJPEGSink creates a sink streaming at roughly the given frame rate.
func NewMJPEGSink(fps int) *MJPEGSink {
	if fps <= 0 {
		fps = 15
	}
	return &MJPEGSink{frameInterval: time.Second / time.Duration(fps)}
}

// Push encodes the frame and makes it the current stream image. The frame
// is released before returning. Non-Mat frames are encoded from their raw
// pixels through a temporary Mat.
func (s *MJPEGSink) Push(fr pipeline.Frame) error {
	defer fr.Release()

	buf, err := encodeJPEG(fr)
	if err != nil {
		return err
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errSinkClosed
	}
	if s.jpeg != nil {
		s.dropped.Add(1)
	}
	s.jpeg = data
	s.seq++
	s.mu.Unlock()

	s.pushed.Add(1)
	return nil
}

func encodeJPEG(fr pipeline.Frame) (*gocv.NativeByteBuffer, error) {
	if mf, ok := fr.(*capture.MatFrame); ok {
		return gocv.IMEncode(".jpg", *mf.Mat())
	}

	w, h := fr.Size()
	pixels, err := fr.Pixels()
	if err != nil {
		return nil, err
	}
	mat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, pixels)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	return gocv.IMEncode(".jpg", mat)
}

// Close stops accepting frames. Active viewers disconnect on their next
// poll.
func (s *MJPEGSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.jpeg = nil
	return nil
}

// Pushed returns how many frames were accepted.
func (s *MJPEGSink) Pushed() uint64 { return s.pushed.Load() }

// Dropped returns how many frames were replaced before any viewer change.
func (s *MJPEGSink) Dropped() uint64 { return s.dropped.Load() }

func (s *MJPEGSink) current() ([]byte, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jpeg, s.seq, s.closed
}

// ServeHTTP streams MJPEG frames to connected clients.
func (s *MJPEGSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var lastSeq uint64
	for {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		data, seq, closed := s.current()
		if closed {
			return
		}
		if data == nil || seq == lastSeq {
			time.Sleep(s.frameInterval)
			continue
		}
		lastSeq = seq

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(data))
		if _, err := w.Write(data); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		time.Sleep(s.frameInterval)
	}
}
