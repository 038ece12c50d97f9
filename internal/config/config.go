// Package config loads and validates the edgecam configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the edgecam service.
type Config struct {
	Camera    CameraConfig    `mapstructure:"camera"`
	Inference InferenceConfig `mapstructure:"inference"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tray      TrayConfig      `mapstructure:"tray"`
}

// CameraConfig describes the capture device and the display resolution.
// All values are fixed for the lifetime of one pipeline build.
type CameraConfig struct {
	Device string `mapstructure:"device"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
	FPS    int    `mapstructure:"fps"`
}

// InferenceConfig describes the detector and the resolution the inference
// branch scales frames to before handing them to the model.
type InferenceConfig struct {
	Detector            string  `mapstructure:"detector"` // "yolo" or "mock"
	ModelPath           string  `mapstructure:"model_path"`
	Width               int     `mapstructure:"width"`
	Height              int     `mapstructure:"height"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
}

// PipelineConfig holds the lifecycle and worker timing knobs.
type PipelineConfig struct {
	StartTimeout       time.Duration `mapstructure:"start_timeout"`
	StopTimeout        time.Duration `mapstructure:"stop_timeout"`
	WarmupDisableDelay time.Duration `mapstructure:"warmup_disable_delay"`
	WorkerPollInterval time.Duration `mapstructure:"worker_poll_interval"`
	WorkerErrorBackoff time.Duration `mapstructure:"worker_error_backoff"`
}

// LoggingConfig controls log level, format and destination.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or text
	Output     string `mapstructure:"output"` // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// ServerConfig controls the HTTP control/stream surface.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// StoreConfig controls the optional sqlite run-history store.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// TrayConfig controls the optional system tray UI. Off by default since most
// target devices are headless.
type TrayConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads the configuration from the given YAML file, applying defaults
// and EDGECAM_* environment overrides. An empty path loads defaults only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix("EDGECAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Camera defaults match the original device wiring: MJPEG 640x480@30.
	v.SetDefault("camera.device", "/dev/video0")
	v.SetDefault("camera.width", 640)
	v.SetDefault("camera.height", 480)
	v.SetDefault("camera.fps", 30)

	v.SetDefault("inference.detector", "yolo")
	v.SetDefault("inference.model_path", "models/yolov8n-nms-416.onnx")
	v.SetDefault("inference.width", 416)
	v.SetDefault("inference.height", 416)
	v.SetDefault("inference.confidence_threshold", 0.5)

	v.SetDefault("pipeline.start_timeout", "5s")
	v.SetDefault("pipeline.stop_timeout", "2s")
	v.SetDefault("pipeline.warmup_disable_delay", "500ms")
	v.SetDefault("pipeline.worker_poll_interval", "10ms")
	v.SetDefault("pipeline.worker_error_backoff", "100ms")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("store.enabled", false)
	v.SetDefault("store.path", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("tray.enabled", false)
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Camera.Device == "" {
		return fmt.Errorf("camera.device must not be empty")
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("camera resolution must be positive, got %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("camera.fps must be positive, got %d", c.Camera.FPS)
	}

	switch c.Inference.Detector {
	case "yolo":
		if c.Inference.ModelPath == "" {
			return fmt.Errorf("inference.model_path is required for the yolo detector")
		}
	case "mock":
	default:
		return fmt.Errorf("unknown inference.detector %q (want yolo or mock)", c.Inference.Detector)
	}
	if c.Inference.Width <= 0 || c.Inference.Height <= 0 {
		return fmt.Errorf("inference resolution must be positive, got %dx%d", c.Inference.Width, c.Inference.Height)
	}
	if c.Inference.ConfidenceThreshold < 0 || c.Inference.ConfidenceThreshold > 1 {
		return fmt.Errorf("inference.confidence_threshold must be in [0,1], got %v", c.Inference.ConfidenceThreshold)
	}

	if c.Pipeline.StartTimeout <= 0 {
		return fmt.Errorf("pipeline.start_timeout must be positive")
	}
	if c.Pipeline.StopTimeout <= 0 {
		return fmt.Errorf("pipeline.stop_timeout must be positive")
	}
	if c.Pipeline.WarmupDisableDelay < 0 {
		return fmt.Errorf("pipeline.warmup_disable_delay must not be negative")
	}
	if c.Pipeline.WorkerPollInterval <= 0 || c.Pipeline.WorkerPollInterval > 10*time.Millisecond {
		return fmt.Errorf("pipeline.worker_poll_interval must be in (0, 10ms]")
	}
	if c.Pipeline.WorkerErrorBackoff <= 0 {
		return fmt.Errorf("pipeline.worker_error_backoff must be positive")
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}

	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty when the server is enabled")
	}
	if c.Store.Enabled && c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty when the store is enabled")
	}

	return nil
}
