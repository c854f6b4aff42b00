// Package config provides configuration management for the Algovids agent.
// Configuration is loaded from environment variables (optionally seeded from a
// .env file) with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort          = 8000
	DefaultLogLevel      = "info"
	DefaultDataDir       = ".algovids"
	DefaultFFmpeg        = "ffmpeg"
	DefaultModel         = "gemini-2.5-flash"
	DefaultMaxRenders    = 1
	DefaultReadyTimeout  = 5 * time.Minute
	DefaultRenderTimeout = 30 * time.Minute

	// Environment variable names
	EnvPort          = "ALGOVIDS_PORT"
	EnvLogLevel      = "ALGOVIDS_LOG_LEVEL"
	EnvDataDir       = "ALGOVIDS_DATA_DIR"
	EnvWorkDir       = "ALGOVIDS_WORK_DIR"
	EnvFFmpeg        = "ALGOVIDS_FFMPEG"
	EnvModel         = "ALGOVIDS_MODEL"
	EnvMaxRenders    = "ALGOVIDS_MAX_RENDERS"
	EnvReadyTimeout  = "ALGOVIDS_READY_TIMEOUT"
	EnvRenderTimeout = "ALGOVIDS_RENDER_TIMEOUT"

	// EnvGeminiKey holds the fallback credential used when a request carries none.
	EnvGeminiKey = "GEMINI_API_KEY"

	// Database filename
	DBFilename = "algovids.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	WorkDir() string
	FFmpegPath() string
	Model() string
	MaxRenders() int
	ReadyTimeout() time.Duration
	RenderTimeout() time.Duration
	DefaultCredential() string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port          int
	logLevel      string
	dataDir       string
	workDir       string
	ffmpegPath    string
	model         string
	maxRenders    int
	readyTimeout  time.Duration
	renderTimeout time.Duration
	credential    string
}

// Load reads the optional .env files and then builds an EnvConfig. Variables
// already present in the environment win over .env entries.
func Load(envFiles ...string) (*EnvConfig, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return New()
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:          DefaultPort,
		logLevel:      DefaultLogLevel,
		dataDir:       defaultDataDir(),
		workDir:       ".",
		ffmpegPath:    DefaultFFmpeg,
		model:         DefaultModel,
		maxRenders:    DefaultMaxRenders,
		readyTimeout:  DefaultReadyTimeout,
		renderTimeout: DefaultRenderTimeout,
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if wd := os.Getenv(EnvWorkDir); wd != "" {
		cfg.workDir = wd
	}

	if ff := os.Getenv(EnvFFmpeg); ff != "" {
		cfg.ffmpegPath = ff
	}

	if m := os.Getenv(EnvModel); m != "" {
		cfg.model = m
	}

	if mr := os.Getenv(EnvMaxRenders); mr != "" {
		n, err := strconv.Atoi(mr)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvMaxRenders, err)
		}
		if n < 1 {
			return nil, fmt.Errorf("invalid %s: must be at least 1", EnvMaxRenders)
		}
		cfg.maxRenders = n
	}

	var err error
	if cfg.readyTimeout, err = durationFromEnv(EnvReadyTimeout, cfg.readyTimeout); err != nil {
		return nil, err
	}
	if cfg.renderTimeout, err = durationFromEnv(EnvRenderTimeout, cfg.renderTimeout); err != nil {
		return nil, err
	}

	// Resolved once here; the render core only ever sees explicit values.
	cfg.credential = os.Getenv(EnvGeminiKey)

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// WorkDir is the root for proxies and render outputs.
func (c *EnvConfig) WorkDir() string {
	return c.workDir
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) Model() string {
	return c.model
}

func (c *EnvConfig) MaxRenders() int {
	return c.maxRenders
}

func (c *EnvConfig) ReadyTimeout() time.Duration {
	return c.readyTimeout
}

func (c *EnvConfig) RenderTimeout() time.Duration {
	return c.renderTimeout
}

// DefaultCredential returns the environment fallback AI credential, possibly empty.
func (c *EnvConfig) DefaultCredential() string {
	return c.credential
}

func durationFromEnv(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return d, nil
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
