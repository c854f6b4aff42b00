package ffmpeg

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const defaultProbeTTL = 5 * time.Minute

// Availability reports whether the media processor can be started.
type Availability struct {
	Available bool      `json:"available"`
	Path      string    `json:"path,omitempty"`
	Version   string    `json:"version,omitempty"`
	Error     string    `json:"error,omitempty"`
	ProbedAt  time.Time `json:"probed_at"`
}

// CachedProbe caches `ffmpeg -version` results so health checks stay cheap.
type CachedProbe struct {
	binary string
	ttl    time.Duration
	logger *slog.Logger
	// versionFn is swapped out in tests.
	versionFn func(ctx context.Context, path string) (string, error)

	mu     sync.Mutex
	cached *Availability
}

func NewCachedProbe(binary string, logger *slog.Logger) *CachedProbe {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &CachedProbe{
		binary:    binary,
		ttl:       defaultProbeTTL,
		logger:    logger,
		versionFn: runVersion,
	}
}

// Get returns the cached availability if fresh, otherwise re-probes.
func (p *CachedProbe) Get(ctx context.Context) Availability {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil && time.Since(p.cached.ProbedAt) < p.ttl {
		return *p.cached
	}

	a := Availability{ProbedAt: time.Now()}
	path, err := exec.LookPath(p.binary)
	if err != nil {
		a.Error = err.Error()
	} else {
		a.Path = path
		v, err := p.versionFn(ctx, path)
		if err != nil {
			a.Error = err.Error()
		} else {
			a.Available = true
			a.Version = v
		}
	}

	if !a.Available {
		p.logger.Warn("media processor unavailable", "binary", p.binary, "error", a.Error)
	}
	p.cached = &a
	return a
}

// Invalidate clears the cached probe.
func (p *CachedProbe) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

func runVersion(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return "", err
	}
	first, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(first), nil
}
