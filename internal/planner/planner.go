// Package planner asks a generative-AI service which moments of a source video
// should accompany each unit of narration.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/algovids/algovids-agent/internal/logging"
	"github.com/algovids/algovids-agent/internal/montage"
)

const (
	DefaultModel        = "gemini-2.5-flash"
	DefaultMaxAttempts  = 3
	DefaultBackoffUnit  = 10 * time.Second
	DefaultPollInterval = 2 * time.Second
	DefaultReadyTimeout = 5 * time.Minute

	responseMIMEType = "application/json"
	cleanupTimeout   = 30 * time.Second
)

var (
	// ErrNoPlan is the "no plan" signal. Callers fall back to the degraded render.
	ErrNoPlan = errors.New("no segment plan")
	// ErrMissingCredential is a caller configuration error, never a no-plan.
	ErrMissingCredential = errors.New("ai credential not provided")
)

// NoPlanError explains why planning produced no plan.
type NoPlanError struct {
	Reason   string
	Attempts int
	Err      error
}

func (e *NoPlanError) Error() string {
	msg := "no segment plan: " + e.Reason
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempt(s)", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NoPlanError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrNoPlan}
	}
	return []error{ErrNoPlan, e.Err}
}

func noPlan(reason string, attempts int, err error) *NoPlanError {
	return &NoPlanError{Reason: reason, Attempts: attempts, Err: err}
}

// Config holds the planner's tunables.
type Config struct {
	Model        string
	MaxAttempts  int           // total generation attempts
	BackoffUnit  time.Duration // wait before attempt n+1 is BackoffUnit*n
	PollInterval time.Duration
	ReadyTimeout time.Duration
	Logger       *slog.Logger
}

// DefaultConfig returns production defaults.
func DefaultConfig(logger *slog.Logger) Config {
	return Config{
		Model:        DefaultModel,
		MaxAttempts:  DefaultMaxAttempts,
		BackoffUnit:  DefaultBackoffUnit,
		PollInterval: DefaultPollInterval,
		ReadyTimeout: DefaultReadyTimeout,
		Logger:       logger,
	}
}

// Request is one planning invocation.
type Request struct {
	ProxyPath     string
	NarrationPath string
	Credential    string
}

// Planner runs the upload, readiness and generation protocol.
type Planner struct {
	cfg       Config
	newClient ClientFactory
	sleep     func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, factory ClientFactory) *Planner {
	def := DefaultConfig(cfg.Logger)
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = def.BackoffUnit
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = def.ReadyTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Planner{cfg: cfg, newClient: factory, sleep: sleepContext}
}

// Plan returns a non-empty validated plan or an error wrapping ErrNoPlan.
// The proxy at req.ProxyPath is removed before Plan returns, whatever the outcome.
func (p *Planner) Plan(ctx context.Context, req Request) (montage.Plan, error) {
	logger := p.cfg.Logger
	defer p.removeProxy(req.ProxyPath)

	if strings.TrimSpace(req.Credential) == "" {
		return nil, ErrMissingCredential
	}

	if info, err := os.Stat(req.ProxyPath); err != nil || info.Size() == 0 {
		if err == nil {
			err = errors.New("proxy is empty")
		}
		return nil, noPlan("proxy unavailable", 0, err)
	}

	client, err := p.newClient(ctx, req.Credential)
	if err != nil {
		return nil, noPlan("cannot open ai client", 0, err)
	}
	defer client.Close()

	var uploaded []*Asset
	defer func() { p.deleteAssets(ctx, client, uploaded) }()

	for _, path := range []string{req.ProxyPath, req.NarrationPath} {
		asset, err := client.Upload(ctx, path)
		if err != nil {
			return nil, noPlan("upload failed", 0, fmt.Errorf("%s: %w", filepath.Base(path), err))
		}
		uploaded = append(uploaded, asset)
	}

	ready, err := p.waitActive(ctx, client, uploaded)
	if err != nil {
		return nil, noPlan("assets not ready", 0, err)
	}

	genReq := GenerateRequest{
		Model:            p.cfg.Model,
		Assets:           ready,
		Prompt:           SegmentPrompt,
		Temperature:      0,
		ResponseMIMEType: responseMIMEType,
	}

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		logger.Info("requesting segment plan", "attempt", attempt, "model", p.cfg.Model)

		body, err := client.Generate(ctx, genReq)
		if err == nil {
			plan, perr := ParseSegments(body)
			if perr != nil {
				logger.Warn("unusable segment response", "attempt", attempt, "error", perr)
				return nil, noPlan("unusable response", attempt, perr)
			}
			logger.Info("segment plan ready", "attempt", attempt, "segments", len(plan),
				"duration_s", plan.TotalDuration())
			return plan, nil
		}

		lastErr = err
		if !errors.Is(err, ErrServiceOverloaded) {
			logger.Error("segment request failed", "attempt", attempt, "error", err)
			return nil, noPlan("service error", attempt, err)
		}

		if attempt == p.cfg.MaxAttempts {
			break
		}
		delay := p.cfg.BackoffUnit * time.Duration(attempt)
		logger.Warn("ai service overloaded, backing off", "attempt", attempt, "wait", delay.String())
		if err := p.sleep(ctx, delay); err != nil {
			return nil, noPlan("cancelled during backoff", attempt, err)
		}
	}

	return nil, noPlan("service overloaded", p.cfg.MaxAttempts, lastErr)
}

// waitActive polls until every asset is active, any asset fails, or
// ReadyTimeout elapses.
func (p *Planner) waitActive(ctx context.Context, client Client, assets []*Asset) ([]*Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ReadyTimeout)
	defer cancel()

	current := make([]*Asset, len(assets))
	copy(current, assets)

	for {
		pending := 0
		for i, a := range current {
			if a.State == AssetActive {
				continue
			}
			latest, err := client.Get(ctx, a.Name)
			if err != nil {
				return nil, fmt.Errorf("asset %s status: %w", a.Name, err)
			}
			current[i] = latest
			switch latest.State {
			case AssetFailed:
				return nil, fmt.Errorf("asset %s failed processing", a.Name)
			case AssetPending:
				pending++
			}
		}
		if pending == 0 {
			return current, nil
		}

		p.cfg.Logger.Debug("waiting for assets", "pending", pending)
		if err := sleepContext(ctx, p.cfg.PollInterval); err != nil {
			return nil, fmt.Errorf("waiting for assets: %w", err)
		}
	}
}

func (p *Planner) deleteAssets(ctx context.Context, client Client, assets []*Asset) {
	if len(assets) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	for _, a := range assets {
		if err := client.Delete(ctx, a.Name); err != nil {
			p.cfg.Logger.Warn("failed to delete uploaded asset", "asset", a.Name, "error", err)
		}
	}
}

func (p *Planner) removeProxy(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		p.cfg.Logger.Warn("failed to remove proxy", "path", logging.SanitizePath(path), "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
