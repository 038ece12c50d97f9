package detect

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tonu1990/edgecam/internal/metrics"
	"github.com/tonu1990/edgecam/internal/pipeline"
)

// WorkerOptions configure a detection worker.
type WorkerOptions struct {
	Slot     *pipeline.FrameSlot
	Detector Detector
	Board    *Whiteboard

	// Model input dimensions; frames in the slot arrive at this size.
	ModelWidth  int
	ModelHeight int

	// Display dimensions; published detections are rescaled to this space.
	DisplayWidth  int
	DisplayHeight int

	// PollInterval is the sleep between empty slot polls.
	PollInterval time.Duration
	// ErrorBackoff is the extra sleep after a failed detection pass.
	ErrorBackoff time.Duration

	Logger  *logrus.Logger
	Metrics *metrics.Metrics
}

// Worker pulls frames from the inference slot, runs the detector and
// publishes rescaled results to the whiteboard. It implements
// pipeline.Worker and owns one goroutine between Start and Stop.
type Worker struct {
	opts WorkerOptions
	log  *logrus.Entry

	running    atomic.Bool
	cycles     atomic.Uint64
	detections atomic.Uint64
	done       chan struct{}
}

// NewWorker creates a stopped worker.
func NewWorker(opts WorkerOptions) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = 100 * time.Millisecond
	}
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}
	return &Worker{
		opts: opts,
		log:  log.WithField("component", "detect-worker"),
	}
}

// Start launches the detection loop. Starting a running worker is a no-op.
func (w *Worker) Start() {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	w.done = make(chan struct{})
	go w.run()
	w.log.Info("detection worker started")
}

// Stop asks the loop to finish and waits for the current iteration, bounded
// by the given timeout.
func (w *Worker) Stop(timeout time.Duration) error {
	if !w.running.CompareAndSwap(true, false) {
		return nil
	}
	select {
	case <-w.done:
	case <-time.After(timeout):
		return fmt.Errorf("detection worker did not stop within %s", timeout)
	}
	w.log.Info("detection worker stopped")
	return nil
}

// Cycles returns how many detection passes completed successfully.
func (w *Worker) Cycles() uint64 {
	return w.cycles.Load()
}

// Detections returns how many detections have been published in total.
func (w *Worker) Detections() uint64 {
	return w.detections.Load()
}

func (w *Worker) run() {
	defer close(w.done)

	for w.running.Load() {
		fr := w.opts.Slot.TryTake()
		if fr == nil {
			time.Sleep(w.opts.PollInterval)
			continue
		}

		if err := w.processFrame(fr); err != nil {
			w.log.WithError(pipeline.WrapDetectionCycleError(err, "detection pass failed")).
				Warn("detection pass failed")
			w.opts.Metrics.IncDetectionError()
			time.Sleep(w.opts.ErrorBackoff)
		}
	}
}

func (w *Worker) processFrame(fr pipeline.Frame) error {
	defer fr.Release()

	width, height := fr.Size()
	pixels, err := fr.Pixels()
	if err != nil {
		return err
	}

	started := time.Now()
	set, err := w.opts.Detector.Detect(Image{Width: width, Height: height, Pixels: pixels})
	if err != nil {
		return err
	}
	w.opts.Metrics.ObserveInference(time.Since(started))
	w.opts.Metrics.IncDetectionCycle()
	w.cycles.Add(1)

	// A stop may have landed while inference ran; publishing now would
	// overwrite the cleared whiteboard.
	if !w.running.Load() {
		return nil
	}

	set = Rescale(set, w.opts.ModelWidth, w.opts.ModelHeight, w.opts.DisplayWidth, w.opts.DisplayHeight)
	w.opts.Board.Publish(set)
	w.detections.Add(uint64(len(set)))
	return nil
}
