package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tonu1990/edgecam/internal/metrics"
)

// State is the externally visible lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateBuilt   State = "built"
	StateRunning State = "running"
)

// Worker is the background consumer of the inference slot. Start must not
// block; Stop must wait for the current iteration to finish, bounded by the
// given timeout.
type Worker interface {
	Start()
	Stop(timeout time.Duration) error
}

// Options configure a Controller. Source, sinks, draw hook, scaler and slot
// are the graph elements; the controller owns their lifecycle wiring but not
// the sinks themselves, which persist across build cycles.
type Options struct {
	Source        Source
	PreviewSink   Sink
	DetectionSink Sink
	DrawHook      DrawHook
	Scale         ScaleFunc
	InferenceSlot *FrameSlot
	Worker        Worker

	// StartTimeout bounds the wait for the graph to reach running.
	StartTimeout time.Duration
	// StopTimeout bounds the join of the execution goroutine and worker.
	StopTimeout time.Duration
	// WarmupDisableDelay is how long the detection-display branch stays open
	// after start before being auto-disabled when detection mode was not
	// requested. The overlay path needs to see at least one frame before it
	// draws reliably.
	WarmupDisableDelay time.Duration

	// OnDetectionMode, when set, is invoked after the combined detection
	// toggle changes, outside the controller lock.
	OnDetectionMode func(enabled bool)

	Logger  *logrus.Logger
	Metrics *metrics.Metrics
}

// Controller drives the pipeline lifecycle: idle → built → running → idle.
// Build constructs a fresh graph; Stop always tears the whole graph down.
// All methods are safe for concurrent use; Stop is additionally safe to call
// from the event-routing path during an automatic stop.
type Controller struct {
	opts Options
	log  *logrus.Entry

	mu            sync.Mutex
	state         State
	detectionMode bool
	graph         *Graph
	warmupTimer   *time.Timer

	lmu       sync.RWMutex
	listeners []func(Event)
}

// NewController creates a controller in the idle state.
func NewController(opts Options) *Controller {
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 5 * time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 2 * time.Second
	}
	if opts.WarmupDisableDelay <= 0 {
		opts.WarmupDisableDelay = 500 * time.Millisecond
	}
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}
	return &Controller{
		opts:  opts,
		log:   log.WithField("component", "pipeline"),
		state: StateIdle,
	}
}

// Notify registers a listener for pipeline events. Listeners are invoked
// synchronously and must not call back into the controller.
func (c *Controller) Notify(fn func(Event)) {
	c.lmu.Lock()
	c.listeners = append(c.listeners, fn)
	c.lmu.Unlock()
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DetectionMode reports whether the combined detection toggle is on.
func (c *Controller) DetectionMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detectionMode
}

// Stats returns a snapshot of the running graph's counters, or zeroes when
// no graph exists.
func (c *Controller) Stats() GraphStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.graph == nil {
		return GraphStats{}
	}
	return c.graph.Stats()
}

// Build constructs the branch graph. Fails with a construction error when
// the controller is not idle or a required element is missing.
func (c *Controller) Build() error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return NewConstructionError(fmt.Sprintf("cannot build in state %q", c.state))
	}

	g, err := newGraph(Elements{
		Source:        c.opts.Source,
		PreviewSink:   c.opts.PreviewSink,
		DetectionSink: c.opts.DetectionSink,
		DrawHook:      c.opts.DrawHook,
		Scale:         c.opts.Scale,
		InferenceSlot: c.opts.InferenceSlot,
	}, c.log, c.opts.Metrics)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	c.graph = g
	c.state = StateBuilt
	c.mu.Unlock()

	c.log.Info("pipeline built")
	c.emitStateChange(StateIdle, StateBuilt, "built")
	return nil
}

// Start opens the source, launches the execution goroutine and waits up to
// StartTimeout for the first frame to flow. On failure all graph resources
// are released and the controller returns to idle.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.state != StateBuilt {
		c.mu.Unlock()
		return NewStartError(fmt.Sprintf("cannot start in state %q", c.state))
	}
	g := c.graph

	if err := c.opts.Source.Open(); err != nil {
		c.releaseLocked()
		c.mu.Unlock()
		c.emitStateChange(StateBuilt, StateIdle, "start failed")
		return WrapStartError(err, "failed to open frame source")
	}

	g.start()

	select {
	case <-g.ready:
	case <-g.done:
		c.opts.Source.Close()
		c.releaseLocked()
		c.mu.Unlock()
		c.emitStateChange(StateBuilt, StateIdle, "start failed")
		return NewStartError("pipeline halted before reaching running state")
	case <-time.After(c.opts.StartTimeout):
		g.stop()
		c.opts.Source.Close()
		c.joinGraphLocked(g)
		c.releaseLocked()
		c.mu.Unlock()
		c.emitStateChange(StateBuilt, StateIdle, "start timed out")
		return NewStartError(fmt.Sprintf("timed out after %s waiting for pipeline to start", c.opts.StartTimeout))
	}

	if c.opts.Worker != nil {
		c.opts.Worker.Start()
	}
	go c.routeEvents(g)

	// The detection-display gate starts open so the overlay sees a frame;
	// close it again shortly unless detection mode arrives first.
	c.warmupTimer = time.AfterFunc(c.opts.WarmupDisableDelay, c.warmupExpired)

	c.state = StateRunning
	c.detectionMode = false
	c.mu.Unlock()

	c.log.Info("pipeline running")
	c.emitStateChange(StateBuilt, StateRunning, "running")
	return nil
}

// Stop tears the pipeline down to idle: stops the execution goroutine,
// closes the source, joins the detection worker and drains the inference
// slot. Safe to call from any goroutine, including the event-routing path;
// calling it while already idle is a no-op.
func (c *Controller) Stop() error {
	return c.stop("stop requested")
}

func (c *Controller) stop(reason string) error {
	c.mu.Lock()

	switch c.state {
	case StateIdle:
		c.mu.Unlock()
		return nil
	case StateBuilt:
		c.releaseLocked()
		c.mu.Unlock()
		c.emitStateChange(StateBuilt, StateIdle, reason)
		return nil
	}

	if c.warmupTimer != nil {
		c.warmupTimer.Stop()
		c.warmupTimer = nil
	}

	g := c.graph
	g.stop()
	c.opts.Source.Close()
	c.joinGraphLocked(g)

	if c.opts.Worker != nil {
		if err := c.opts.Worker.Stop(c.opts.StopTimeout); err != nil {
			c.log.WithError(err).Warn("detection worker did not stop cleanly")
		}
	}

	wasDetecting := c.detectionMode
	final := g.Stats()
	c.releaseLocked()
	c.mu.Unlock()

	// A run that ends with detection on must not leave stale detections
	// behind for the next run.
	if wasDetecting {
		if c.opts.OnDetectionMode != nil {
			c.opts.OnDetectionMode(false)
		}
		c.notify(Event{Type: EventDetectionMode, Message: "detection mode false", At: time.Now()})
	}

	c.log.WithField("reason", reason).Info("pipeline stopped")
	c.notify(Event{
		Type:     EventStateChanged,
		Message:  reason,
		OldState: StateRunning,
		NewState: StateIdle,
		At:       time.Now(),
		Stats:    final,
	})
	return nil
}

// joinGraphLocked waits for the execution goroutine to exit, bounded by the
// stop timeout. A stuck source read is logged and abandoned; closing the
// source usually unblocks it shortly after.
func (c *Controller) joinGraphLocked(g *Graph) {
	select {
	case <-g.done:
	case <-time.After(c.opts.StopTimeout):
		c.log.Warn("timed out joining pipeline execution goroutine")
	}
}

// releaseLocked drops the graph and clears per-run state. Caller holds mu.
func (c *Controller) releaseLocked() {
	if c.opts.InferenceSlot != nil {
		c.opts.InferenceSlot.Drain()
	}
	c.graph = nil
	c.detectionMode = false
	c.state = StateIdle
}

// SetDetectionMode toggles the detection-display and inference branches
// together. Requires a running pipeline; enabling twice is a no-op.
func (c *Controller) SetDetectionMode(enabled bool) error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return NewStateError(fmt.Sprintf("detection mode requires a running pipeline, state is %q", c.state))
	}
	if c.detectionMode == enabled {
		c.mu.Unlock()
		return nil
	}

	if enabled && c.warmupTimer != nil {
		c.warmupTimer.Stop()
		c.warmupTimer = nil
	}

	g := c.graph
	if err := g.SetBranchEnabled(BranchDetectionDisplay, enabled); err != nil {
		c.mu.Unlock()
		return err
	}
	if err := g.SetBranchEnabled(BranchInference, enabled); err != nil {
		c.mu.Unlock()
		return err
	}
	c.detectionMode = enabled
	c.mu.Unlock()

	c.log.WithField("enabled", enabled).Info("detection mode changed")
	if c.opts.OnDetectionMode != nil {
		c.opts.OnDetectionMode(enabled)
	}
	c.notify(Event{Type: EventDetectionMode, Message: fmt.Sprintf("detection mode %v", enabled), At: time.Now()})
	return nil
}

// warmupExpired closes the detection-display gate after the warm-up window
// when detection mode was not requested in the meantime.
func (c *Controller) warmupExpired() {
	c.mu.Lock()
	g := c.graph
	skip := c.state != StateRunning || c.detectionMode || g == nil
	c.mu.Unlock()
	if skip {
		return
	}
	if err := g.SetBranchEnabled(BranchDetectionDisplay, false); err == nil {
		c.log.Debug("detection-display branch closed after warm-up")
	}
}

// routeEvents consumes the graph bus until it closes. ERROR and EOS force a
// full stop; the stop runs on this goroutine, which the teardown never
// joins, so an automatic stop cannot deadlock.
func (c *Controller) routeEvents(g *Graph) {
	for ev := range g.Events() {
		c.notify(ev)
		switch ev.Type {
		case EventError:
			c.log.WithError(ev.Err).Error(ev.Message)
			c.stop("runtime error: " + ev.Message)
		case EventEOS:
			c.log.Info("end of stream")
			c.stop("end of stream")
		case EventWarning:
			c.log.Warn(ev.Message)
		default:
			c.log.Debug(ev.Message)
		}
	}
}

func (c *Controller) emitStateChange(from, to State, message string) {
	c.notify(Event{
		Type:     EventStateChanged,
		Message:  message,
		OldState: from,
		NewState: to,
		At:       time.Now(),
	})
}

func (c *Controller) notify(ev Event) {
	c.lmu.RLock()
	listeners := make([]func(Event), len(c.listeners))
	copy(listeners, c.listeners)
	c.lmu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}
