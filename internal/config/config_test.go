package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/dev/video0", cfg.Camera.Device)
	assert.Equal(t, 640, cfg.Camera.Width)
	assert.Equal(t, 480, cfg.Camera.Height)
	assert.Equal(t, 30, cfg.Camera.FPS)

	assert.Equal(t, 416, cfg.Inference.Width)
	assert.Equal(t, 416, cfg.Inference.Height)
	assert.Equal(t, 0.5, cfg.Inference.ConfidenceThreshold)

	assert.Equal(t, 5*time.Second, cfg.Pipeline.StartTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.WarmupDisableDelay)
	assert.Equal(t, 10*time.Millisecond, cfg.Pipeline.WorkerPollInterval)

	assert.True(t, cfg.Server.Enabled)
	assert.False(t, cfg.Store.Enabled)
	assert.False(t, cfg.Tray.Enabled)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "edgecam.yaml")
	data := `
camera:
  device: /dev/video2
  width: 1280
  height: 720
  fps: 15
inference:
  detector: mock
  width: 320
  height: 320
  confidence_threshold: 0.25
pipeline:
  warmup_disable_delay: 750ms
server:
  addr: ":9090"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/video2", cfg.Camera.Device)
	assert.Equal(t, 1280, cfg.Camera.Width)
	assert.Equal(t, 15, cfg.Camera.FPS)
	assert.Equal(t, "mock", cfg.Inference.Detector)
	assert.Equal(t, 0.25, cfg.Inference.ConfidenceThreshold)
	assert.Equal(t, 750*time.Millisecond, cfg.Pipeline.WarmupDisableDelay)
	assert.Equal(t, ":9090", cfg.Server.Addr)

	// Unset values keep their defaults.
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 10*time.Millisecond, cfg.Pipeline.WorkerPollInterval)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		cfg.Inference.Detector = "mock"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"empty device", func(c *Config) { c.Camera.Device = "" }, "camera.device"},
		{"zero width", func(c *Config) { c.Camera.Width = 0 }, "resolution"},
		{"negative fps", func(c *Config) { c.Camera.FPS = -1 }, "camera.fps"},
		{"yolo without model", func(c *Config) { c.Inference.Detector = "yolo"; c.Inference.ModelPath = "" }, "model_path"},
		{"unknown detector", func(c *Config) { c.Inference.Detector = "tflite" }, "unknown inference.detector"},
		{"confidence above one", func(c *Config) { c.Inference.ConfidenceThreshold = 1.5 }, "confidence_threshold"},
		{"poll interval too long", func(c *Config) { c.Pipeline.WorkerPollInterval = 50 * time.Millisecond }, "worker_poll_interval"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"store enabled without path", func(c *Config) { c.Store.Enabled = true; c.Store.Path = "" }, "store.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("EDGECAM_CAMERA_DEVICE", "/dev/video9")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/dev/video9", cfg.Camera.Device)
}
