package pipeline_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tonu1990/edgecam/internal/capture"
	"github.com/tonu1990/edgecam/internal/pipeline"
	"github.com/tonu1990/edgecam/internal/sink"
)

type fakeWorker struct {
	mu      sync.Mutex
	started int
	stopped int
}

func (w *fakeWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.started++
}

func (w *fakeWorker) Stop(timeout time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped++
	return nil
}

func (w *fakeWorker) counts() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started, w.stopped
}

type eventLog struct {
	mu     sync.Mutex
	events []pipeline.Event
}

func (l *eventLog) record(ev pipeline.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) has(typ pipeline.EventType) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if ev.Type == typ {
			return true
		}
	}
	return false
}

type harness struct {
	source  *capture.MockSource
	preview *sink.MemorySink
	display *sink.MemorySink
	slot    *pipeline.FrameSlot
	worker  *fakeWorker
	events  *eventLog
	ctrl    *pipeline.Controller
}

func newHarness(t *testing.T, source *capture.MockSource, opts func(*pipeline.Options)) *harness {
	t.Helper()

	h := &harness{
		source:  source,
		preview: sink.NewMemorySink(),
		display: sink.NewMemorySink(),
		slot:    pipeline.NewFrameSlot(),
		worker:  &fakeWorker{},
		events:  &eventLog{},
	}
	t.Cleanup(func() {
		h.preview.Close()
		h.display.Close()
	})

	o := pipeline.Options{
		Source:        h.source,
		PreviewSink:   h.preview,
		DetectionSink: h.display,
		DrawHook:      func(fr pipeline.Frame) {},
		Scale:         func(fr pipeline.Frame) (pipeline.Frame, error) { return fr.Clone() },
		InferenceSlot: h.slot,
		Worker:        h.worker,
		StartTimeout:  2 * time.Second,
		StopTimeout:   2 * time.Second,
		// Keep the warm-up gate open for the whole test unless a test
		// shortens it.
		WarmupDisableDelay: time.Hour,
	}
	if opts != nil {
		opts(&o)
	}
	h.ctrl = pipeline.NewController(o)
	h.ctrl.Notify(h.events.record)
	return h
}

func loopingSource() *capture.MockSource {
	src := capture.NewMockSource([]*capture.BufferFrame{
		capture.SolidFrame(64, 48, 255, 0, 0),
		capture.SolidFrame(64, 48, 0, 255, 0),
	}, true)
	src.SetDelay(time.Millisecond)
	return src
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestController_Lifecycle(t *testing.T) {
	h := newHarness(t, loopingSource(), nil)

	if got := h.ctrl.State(); got != pipeline.StateIdle {
		t.Fatalf("initial state = %q, want idle", got)
	}

	if err := h.ctrl.Build(); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if err := h.ctrl.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := h.ctrl.State(); got != pipeline.StateRunning {
		t.Fatalf("state after Start = %q, want running", got)
	}

	waitFor(t, 2*time.Second, func() bool { return h.preview.Pushed() >= 3 })

	if err := h.ctrl.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := h.ctrl.State(); got != pipeline.StateIdle {
		t.Fatalf("state after Stop = %q, want idle", got)
	}
	if h.source.IsOpen() {
		t.Error("source still open after Stop")
	}

	started, stopped := h.worker.counts()
	if started != 1 || stopped != 1 {
		t.Errorf("worker started/stopped = %d/%d, want 1/1", started, stopped)
	}
}

func TestController_RestartReopensSource(t *testing.T) {
	h := newHarness(t, loopingSource(), nil)

	for cycle := 0; cycle < 2; cycle++ {
		if err := h.ctrl.Build(); err != nil {
			t.Fatalf("cycle %d Build() error = %v", cycle, err)
		}
		if err := h.ctrl.Start(); err != nil {
			t.Fatalf("cycle %d Start() error = %v", cycle, err)
		}
		waitFor(t, 2*time.Second, func() bool { return h.preview.Pushed() > 0 })
		if err := h.ctrl.Stop(); err != nil {
			t.Fatalf("cycle %d Stop() error = %v", cycle, err)
		}
	}

	if got := h.source.OpenCount(); got != 2 {
		t.Errorf("OpenCount() = %d, want 2", got)
	}
	if got := h.source.CloseCount(); got != 2 {
		t.Errorf("CloseCount() = %d, want 2", got)
	}
}

func TestController_StartRequiresBuild(t *testing.T) {
	h := newHarness(t, loopingSource(), nil)

	err := h.ctrl.Start()
	if err == nil {
		t.Fatal("Start() without Build should fail")
	}
	if !pipeline.IsStartError(err) {
		t.Errorf("error type = %q, want start error", pipeline.TypeOf(err))
	}
}

func TestController_BuildTwiceFails(t *testing.T) {
	h := newHarness(t, loopingSource(), nil)

	if err := h.ctrl.Build(); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if err := h.ctrl.Build(); !pipeline.IsConstructionError(err) {
		t.Errorf("second Build() = %v, want construction error", err)
	}
	h.ctrl.Stop()
}

func TestController_SourceOpenFailure(t *testing.T) {
	src := loopingSource()
	src.SetOpenError(errors.New("device busy"))
	h := newHarness(t, src, nil)

	if err := h.ctrl.Build(); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	err := h.ctrl.Start()
	if !pipeline.IsStartError(err) {
		t.Fatalf("Start() = %v, want start error", err)
	}
	if got := h.ctrl.State(); got != pipeline.StateIdle {
		t.Errorf("state after failed Start = %q, want idle", got)
	}
}

func TestController_SetDetectionModeRequiresRunning(t *testing.T) {
	h := newHarness(t, loopingSource(), nil)

	err := h.ctrl.SetDetectionMode(true)
	if !pipeline.IsStateError(err) {
		t.Fatalf("SetDetectionMode() while idle = %v, want state error", err)
	}
}

func TestController_DetectionModeFeedsInference(t *testing.T) {
	h := newHarness(t, loopingSource(), nil)

	if err := h.ctrl.Build(); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if err := h.ctrl.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.ctrl.Stop()

	// Inference branch starts closed; nothing reaches the slot
	waitFor(t, 2*time.Second, func() bool { return h.preview.Pushed() >= 2 })
	if h.slot.TryTake() != nil {
		t.Fatal("inference slot received a frame while detection was off")
	}

	if err := h.ctrl.SetDetectionMode(true); err != nil {
		t.Fatalf("SetDetectionMode(true) error = %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		fr := h.slot.TryTake()
		if fr != nil {
			fr.Release()
			return true
		}
		return false
	})

	if !h.ctrl.DetectionMode() {
		t.Error("DetectionMode() = false after enabling")
	}
}

func TestController_SetDetectionModeIdempotent(t *testing.T) {
	h := newHarness(t, loopingSource(), nil)

	h.ctrl.Build()
	if err := h.ctrl.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.ctrl.Stop()

	if err := h.ctrl.SetDetectionMode(true); err != nil {
		t.Fatalf("SetDetectionMode(true) error = %v", err)
	}
	before := h.ctrl.Stats().GateTransitions
	if err := h.ctrl.SetDetectionMode(true); err != nil {
		t.Fatalf("repeated SetDetectionMode(true) error = %v", err)
	}

	// Re-enabling must not touch the gates again
	waitFor(t, time.Second, func() bool { return h.preview.Pushed() > 0 })
	if after := h.ctrl.Stats().GateTransitions; after != before {
		t.Errorf("gate transitions changed on repeated enable: %d -> %d", before, after)
	}
}

func TestController_WarmupClosesDisplayBranch(t *testing.T) {
	h := newHarness(t, loopingSource(), func(o *pipeline.Options) {
		o.WarmupDisableDelay = 30 * time.Millisecond
	})

	h.ctrl.Build()
	if err := h.ctrl.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.ctrl.Stop()

	// After the warm-up window the display branch stops receiving frames
	time.Sleep(100 * time.Millisecond)
	settled := h.display.Pushed()
	time.Sleep(100 * time.Millisecond)
	if got := h.display.Pushed(); got != settled {
		t.Errorf("display sink still receiving frames after warm-up: %d -> %d", settled, got)
	}

	// Preview keeps flowing regardless
	before := h.preview.Pushed()
	waitFor(t, time.Second, func() bool { return h.preview.Pushed() > before })
}

func TestController_EndOfStreamStopsPipeline(t *testing.T) {
	src := capture.NewMockSource([]*capture.BufferFrame{
		capture.SolidFrame(64, 48, 1, 2, 3),
		capture.SolidFrame(64, 48, 4, 5, 6),
	}, false)
	h := newHarness(t, src, nil)

	h.ctrl.Build()
	if err := h.ctrl.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return h.ctrl.State() == pipeline.StateIdle })
	if !h.events.has(pipeline.EventEOS) {
		t.Error("no end-of-stream event observed")
	}
}

func TestController_RuntimeErrorStopsPipeline(t *testing.T) {
	src := loopingSource()
	h := newHarness(t, src, nil)

	h.ctrl.Build()
	if err := h.ctrl.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	src.SetReadError(errors.New("device unplugged"))

	waitFor(t, 5*time.Second, func() bool { return h.ctrl.State() == pipeline.StateIdle })
	if !h.events.has(pipeline.EventError) {
		t.Error("no error event observed")
	}
}

func TestController_AutoStopDisablesDetectionMode(t *testing.T) {
	src := loopingSource()

	var mu sync.Mutex
	var modes []bool
	h := newHarness(t, src, func(o *pipeline.Options) {
		o.OnDetectionMode = func(enabled bool) {
			mu.Lock()
			modes = append(modes, enabled)
			mu.Unlock()
		}
	})

	h.ctrl.Build()
	if err := h.ctrl.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := h.ctrl.SetDetectionMode(true); err != nil {
		t.Fatalf("SetDetectionMode(true) error = %v", err)
	}

	// Kill the source; the automatic stop must also switch detection off
	src.SetReadError(errors.New("device unplugged"))
	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return h.ctrl.State() == pipeline.StateIdle && len(modes) == 2
	})

	if h.ctrl.DetectionMode() {
		t.Error("DetectionMode() still true after automatic stop")
	}
	mu.Lock()
	defer mu.Unlock()
	if !modes[0] || modes[1] {
		t.Errorf("OnDetectionMode calls = %v, want [true false]", modes)
	}
}

func TestController_StopIdempotent(t *testing.T) {
	h := newHarness(t, loopingSource(), nil)

	if err := h.ctrl.Stop(); err != nil {
		t.Fatalf("Stop() while idle error = %v", err)
	}

	h.ctrl.Build()
	h.ctrl.Start()
	if err := h.ctrl.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := h.ctrl.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}
