package main

import (
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/tonu1990/edgecam/internal/capture"
	"github.com/tonu1990/edgecam/internal/config"
	"github.com/tonu1990/edgecam/internal/detect"
	"github.com/tonu1990/edgecam/internal/logger"
	"github.com/tonu1990/edgecam/internal/metrics"
	"github.com/tonu1990/edgecam/internal/overlay"
	"github.com/tonu1990/edgecam/internal/pipeline"
	"github.com/tonu1990/edgecam/internal/server"
	"github.com/tonu1990/edgecam/internal/sink"
	"github.com/tonu1990/edgecam/internal/store"
	"github.com/tonu1990/edgecam/internal/tray"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		logrus.Fatalf("Failed to initialize logger: %v", err)
	}

	var met *metrics.Metrics
	if cfg.Metrics.Enabled {
		met = metrics.New()
	}

	var st *store.Store
	if cfg.Store.Enabled {
		st, err = store.New(cfg.Store.Path)
		if err != nil {
			log.Fatalf("Failed to initialize store: %v", err)
		}
		defer st.Close()
	}

	board := detect.NewWhiteboard()
	detector := newDetector(cfg, log)
	defer detector.Close()

	slot := pipeline.NewFrameSlot()
	worker := detect.NewWorker(detect.WorkerOptions{
		Slot:          slot,
		Detector:      detector,
		Board:         board,
		ModelWidth:    cfg.Inference.Width,
		ModelHeight:   cfg.Inference.Height,
		DisplayWidth:  cfg.Camera.Width,
		DisplayHeight: cfg.Camera.Height,
		PollInterval:  cfg.Pipeline.WorkerPollInterval,
		ErrorBackoff:  cfg.Pipeline.WorkerErrorBackoff,
		Logger:        log,
		Metrics:       met,
	})

	previewSink := sink.NewMJPEGSink(cfg.Camera.FPS)
	detectionSink := sink.NewMJPEGSink(cfg.Camera.FPS)
	defer previewSink.Close()
	defer detectionSink.Close()

	renderer := overlay.NewRenderer(board)

	ctrl := pipeline.NewController(pipeline.Options{
		Source:        capture.NewCamera(cfg.Camera),
		PreviewSink:   previewSink,
		DetectionSink: detectionSink,
		DrawHook:      renderer.Hook(),
		Scale:         capture.InferenceScaler(cfg.Inference.Width, cfg.Inference.Height),
		InferenceSlot: slot,
		Worker:        worker,
		OnDetectionMode: func(enabled bool) {
			// Stale boxes must not linger once detection is off
			if !enabled {
				board.Clear()
			}
		},
		StartTimeout:       cfg.Pipeline.StartTimeout,
		StopTimeout:        cfg.Pipeline.StopTimeout,
		WarmupDisableDelay: cfg.Pipeline.WarmupDisableDelay,
		Logger:             log,
		Metrics:            met,
	})

	srvCfg := server.Config{
		Controller:      ctrl,
		Board:           board,
		PreviewStream:   previewSink,
		DetectionStream: detectionSink,
		Store:           st,
		Logger:          log,
	}
	if met != nil {
		srvCfg.MetricsHandler = met.Handler()
		srvCfg.MetricsPath = cfg.Metrics.Path
	}
	srv := server.New(srvCfg)
	ctrl.Notify(srv.Events().Broadcast)

	if st != nil {
		rec := &sessionRecorder{
			sessions: st.Sessions(),
			worker:   worker,
			log:      log.WithField("component", "session-recorder"),
		}
		ctrl.Notify(rec.handle)
	}

	if cfg.Server.Enabled {
		go func() {
			log.WithField("addr", cfg.Server.Addr).Info("starting HTTP server")
			if err := srv.ListenAndServe(cfg.Server.Addr); err != nil {
				log.Fatalf("Server failed: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if cfg.Tray.Enabled {
		runTray(ctrl, sigCh, log)
	} else {
		<-sigCh
	}

	log.Info("shutting down")
	if err := ctrl.Stop(); err != nil {
		log.WithError(err).Warn("pipeline did not stop cleanly")
	}
}

// newDetector builds the configured detector, falling back to the mock when
// the model cannot be loaded so the rest of the pipeline stays usable.
func newDetector(cfg *config.Config, log *logrus.Logger) detect.Detector {
	if cfg.Inference.Detector != "yolo" {
		log.Info("using mock detector")
		return detect.NewMockDetector()
	}

	dcfg := detect.DefaultConfig()
	dcfg.ConfidenceThreshold = cfg.Inference.ConfidenceThreshold

	d, err := detect.NewYOLODetector(cfg.Inference.ModelPath, cfg.Inference.Width, cfg.Inference.Height, dcfg)
	if err != nil {
		log.WithError(err).Warn("failed to load YOLO model, falling back to mock detector")
		return detect.NewMockDetector()
	}

	log.WithField("model", cfg.Inference.ModelPath).Info("YOLO detector loaded")
	return d
}

// runTray runs the system tray on the main goroutine, which the tray
// backend requires. A termination signal quits the tray loop.
func runTray(ctrl *pipeline.Controller, sigCh <-chan os.Signal, log *logrus.Logger) {
	t := tray.New()

	t.OnPipeline(func(running bool) {
		if running {
			if err := startPipeline(ctrl); err != nil {
				log.WithError(err).Error("failed to start pipeline from tray")
				t.SetRunning(false)
			}
			return
		}
		if err := ctrl.Stop(); err != nil {
			log.WithError(err).Error("failed to stop pipeline from tray")
		}
	})
	t.OnDetection(func(enabled bool) {
		if err := ctrl.SetDetectionMode(enabled); err != nil {
			log.WithError(err).Error("failed to toggle detection from tray")
			t.SetDetection(!enabled)
		}
	})

	// Reflect automatic stops and API-driven changes in the menu
	ctrl.Notify(func(ev pipeline.Event) {
		switch ev.Type {
		case pipeline.EventStateChanged:
			t.SetRunning(ev.NewState == pipeline.StateRunning)
		case pipeline.EventDetectionMode:
			t.SetDetection(ctrl.DetectionMode())
		}
	})

	go func() {
		<-sigCh
		t.Quit()
	}()

	t.Run()
}

func startPipeline(ctrl *pipeline.Controller) error {
	if ctrl.State() == pipeline.StateIdle {
		if err := ctrl.Build(); err != nil {
			return err
		}
	}
	return ctrl.Start()
}

// sessionRecorder persists one store session per pipeline run.
type sessionRecorder struct {
	sessions *store.SessionRepository
	worker   *detect.Worker
	log      *logrus.Entry

	mu             sync.Mutex
	current        *store.Session
	baseDetections uint64
}

func (r *sessionRecorder) handle(ev pipeline.Event) {
	switch ev.Type {
	case pipeline.EventStateChanged:
		r.handleStateChange(ev)
	case pipeline.EventError, pipeline.EventWarning, pipeline.EventEOS, pipeline.EventDetectionMode:
		r.mu.Lock()
		current := r.current
		r.mu.Unlock()
		if current == nil {
			return
		}
		if err := r.sessions.AddEvent(current.ID, string(ev.Type), ev.Message); err != nil {
			r.log.WithError(err).Warn("failed to record session event")
		}
	}
}

func (r *sessionRecorder) handleStateChange(ev pipeline.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.NewState == pipeline.StateRunning {
		sess, err := r.sessions.Begin(ev.At)
		if err != nil {
			r.log.WithError(err).Error("failed to record session start")
			return
		}
		r.current = sess
		r.baseDetections = r.worker.Detections()
		return
	}

	if ev.OldState == pipeline.StateRunning && r.current != nil {
		detections := int64(r.worker.Detections() - r.baseDetections)
		err := r.sessions.Finish(r.current.ID, ev.At, stopReasonFor(ev.Message),
			int64(ev.Stats.FramesCaptured), detections)
		if err != nil {
			r.log.WithError(err).Error("failed to record session end")
		}
		r.current = nil
	}
}

func stopReasonFor(message string) store.StopReason {
	switch {
	case strings.HasPrefix(message, "runtime error"):
		return store.StopRuntimeError
	case strings.HasPrefix(message, "end of stream"):
		return store.StopEndOfStream
	default:
		return store.StopRequested
	}
}
