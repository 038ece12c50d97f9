package pipeline

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tonu1990/edgecam/internal/metrics"
)

// Branch identifies one downstream path fed by the tee.
type Branch int

const (
	// BranchPreview is the always-on clean feed. Never gated.
	BranchPreview Branch = iota
	// BranchDetectionDisplay is the overlay-annotated feed. Gated.
	BranchDetectionDisplay
	// BranchInference feeds frames to the detection worker. Gated.
	BranchInference
)

func (b Branch) String() string {
	switch b {
	case BranchPreview:
		return "preview"
	case BranchDetectionDisplay:
		return "detection_display"
	case BranchInference:
		return "inference"
	}
	return fmt.Sprintf("branch(%d)", int(b))
}

// Number of consecutive source read failures tolerated before the graph
// reports a fatal runtime error.
const maxReadFailures = 10

// Elements are the named parts wired into a graph at build time. Every field
// is required except DrawHook's inertness, which is the overlay's concern.
type Elements struct {
	Source        Source
	PreviewSink   Sink
	DetectionSink Sink
	DrawHook      DrawHook
	Scale         ScaleFunc
	InferenceSlot *FrameSlot
}

// GraphStats is a snapshot of the graph counters.
type GraphStats struct {
	FramesCaptured  uint64
	PreviewFrames   uint64
	DisplayFrames   uint64
	InferenceFrames uint64
	ReadFailures    uint64
	GateTransitions uint64
	InferenceDrops  uint64
}

// Graph owns the tee topology and its execution goroutine. All element state
// mutations (gate flips) happen on that goroutine; requests from other
// goroutines are marshalled through a task queue. A Graph is built fresh for
// every start cycle and never reused.
type Graph struct {
	elems Elements
	log   *logrus.Entry
	met   *metrics.Metrics

	tasks  chan func()
	stopCh chan struct{}
	done   chan struct{}
	ready  chan struct{}
	events chan Event

	readyOnce sync.Once
	stopOnce  sync.Once

	// Gate state. Written only on the execution goroutine, read anywhere.
	displayOpen   atomic.Bool
	inferenceOpen atomic.Bool

	framesCaptured  atomic.Uint64
	previewFrames   atomic.Uint64
	displayFrames   atomic.Uint64
	inferenceFrames atomic.Uint64
	readFailures    atomic.Uint64
	gateTransitions atomic.Uint64
}

// newGraph validates the topology and creates a graph in its pre-running
// state. The detection-display gate starts open so the overlay path sees at
// least one frame before it is relied on; the inference gate starts closed.
func newGraph(elems Elements, log *logrus.Entry, met *metrics.Metrics) (*Graph, error) {
	missing := ""
	switch {
	case elems.Source == nil:
		missing = "source"
	case elems.PreviewSink == nil:
		missing = "preview_sink"
	case elems.DetectionSink == nil:
		missing = "detection_sink"
	case elems.DrawHook == nil:
		missing = "overlay"
	case elems.Scale == nil:
		missing = "inference_scaler"
	case elems.InferenceSlot == nil:
		missing = "inference_slot"
	}
	if missing != "" {
		return nil, NewConstructionError(fmt.Sprintf("missing pipeline element %q", missing))
	}

	g := &Graph{
		elems:  elems,
		log:    log,
		met:    met,
		tasks:  make(chan func(), 16),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		ready:  make(chan struct{}),
		events: make(chan Event, 16),
	}
	g.displayOpen.Store(true)
	g.inferenceOpen.Store(false)
	return g, nil
}

// Events returns the bus channel. It is closed when the execution goroutine
// exits.
func (g *Graph) Events() <-chan Event {
	return g.events
}

// SetBranchEnabled requests a gate change for a toggle-able branch. The
// mutation is marshalled onto the execution goroutine and applied between
// frames; it is idempotent. The preview branch is never gated.
func (g *Graph) SetBranchEnabled(branch Branch, enabled bool) error {
	if branch == BranchPreview {
		return NewStateError("preview branch is not gated")
	}
	task := func() { g.applyGate(branch, enabled) }
	select {
	case g.tasks <- task:
		return nil
	case <-g.stopCh:
		return NewStateError("pipeline is stopping")
	}
}

// BranchEnabled reports whether frames currently flow on the given branch.
func (g *Graph) BranchEnabled(branch Branch) bool {
	switch branch {
	case BranchPreview:
		return true
	case BranchDetectionDisplay:
		return g.displayOpen.Load()
	case BranchInference:
		return g.inferenceOpen.Load()
	}
	return false
}

// Stats returns a snapshot of the graph counters.
func (g *Graph) Stats() GraphStats {
	return GraphStats{
		FramesCaptured:  g.framesCaptured.Load(),
		PreviewFrames:   g.previewFrames.Load(),
		DisplayFrames:   g.displayFrames.Load(),
		InferenceFrames: g.inferenceFrames.Load(),
		ReadFailures:    g.readFailures.Load(),
		GateTransitions: g.gateTransitions.Load(),
		InferenceDrops:  g.elems.InferenceSlot.Drops(),
	}
}

func (g *Graph) start() {
	go g.run()
}

func (g *Graph) stop() {
	g.stopOnce.Do(func() { close(g.stopCh) })
}

// applyGate runs on the execution goroutine only.
func (g *Graph) applyGate(branch Branch, enabled bool) {
	var gate *atomic.Bool
	switch branch {
	case BranchDetectionDisplay:
		gate = &g.displayOpen
	case BranchInference:
		gate = &g.inferenceOpen
	default:
		return
	}
	if gate.Load() == enabled {
		return
	}
	gate.Store(enabled)
	g.gateTransitions.Add(1)
	g.log.WithFields(logrus.Fields{"branch": branch.String(), "enabled": enabled}).Info("branch gate changed")
}

// run is the execution-context goroutine: the only place element state is
// mutated and the draw hook is invoked. Control tasks are drained between
// frame reads, so a queued gate flip lands within one frame period.
func (g *Graph) run() {
	defer close(g.done)
	defer close(g.events)

	failures := 0
	for {
		select {
		case <-g.stopCh:
			return
		case task := <-g.tasks:
			task()
			continue
		default:
		}

		fr, err := g.elems.Source.ReadFrame()
		if err == io.EOF {
			g.emit(Event{Type: EventEOS, Message: "end of stream", At: time.Now()})
			return
		}
		if err != nil {
			failures++
			g.readFailures.Add(1)
			g.log.WithError(err).Warn("frame read failed")
			if failures >= maxReadFailures {
				g.emit(Event{
					Type:    EventError,
					Message: fmt.Sprintf("source failed %d consecutive reads", failures),
					Err:     WrapRuntimeError(err, "frame source failed"),
					At:      time.Now(),
				})
				return
			}
			time.Sleep(20 * time.Millisecond)
			continue
		}
		failures = 0

		g.readyOnce.Do(func() { close(g.ready) })
		g.process(fr)
	}
}

// process fans one captured frame out to the enabled branches. The master
// frame goes to the preview sink last; the other branches get independent
// copies so no reference counting is needed. Sinks take ownership of pushed
// frames whether or not they accept them.
func (g *Graph) process(fr Frame) {
	g.framesCaptured.Add(1)
	g.met.IncCaptured()

	if g.inferenceOpen.Load() {
		scaled, err := g.elems.Scale(fr)
		if err != nil {
			g.log.WithError(err).Warn("inference scale failed")
		} else {
			if g.elems.InferenceSlot.Put(scaled) {
				g.met.IncDropped(BranchInference.String())
			}
			g.inferenceFrames.Add(1)
			g.met.IncBranchFrame(BranchInference.String())
		}
	}

	if g.displayOpen.Load() {
		df, err := fr.Clone()
		if err != nil {
			g.log.WithError(err).Warn("display clone failed")
		} else {
			g.elems.DrawHook(df)
			if err := g.elems.DetectionSink.Push(df); err != nil {
				g.log.WithError(err).Warn("detection sink rejected frame")
			} else {
				g.displayFrames.Add(1)
				g.met.IncBranchFrame(BranchDetectionDisplay.String())
			}
		}
	}

	if err := g.elems.PreviewSink.Push(fr); err != nil {
		g.log.WithError(err).Warn("preview sink rejected frame")
	} else {
		g.previewFrames.Add(1)
		g.met.IncBranchFrame(BranchPreview.String())
	}
}

// emit publishes a bus event, dropping it when the channel is full so the
// execution goroutine never blocks on a slow consumer.
func (g *Graph) emit(ev Event) {
	select {
	case g.events <- ev:
	default:
		g.log.WithField("type", string(ev.Type)).Warn("event dropped, bus full")
	}
}
