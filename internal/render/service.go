// Package render orchestrates one montage: proxy, plan, compile, execute, record.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/algovids/algovids-agent/internal/ffmpeg"
	"github.com/algovids/algovids-agent/internal/logging"
	"github.com/algovids/algovids-agent/internal/montage"
	"github.com/algovids/algovids-agent/internal/planner"
)

const (
	proxySuffix   = "_low_res.mp4"
	tmpDirName    = "tmp"
	rendersDir    = "renders"
	recordTimeout = 10 * time.Second
)

var (
	ErrMissingCredential = planner.ErrMissingCredential
	ErrMissingInput      = errors.New("missing input")
	ErrNotFound          = errors.New("render not found")
	ErrRenderActive      = errors.New("render is still running")
)

// ProcessError is a non-zero exit of the final media command. Stderr is the
// unmodified last 16 KiB the process wrote, cut on a rune boundary.
type ProcessError struct {
	ExitCode int
	Stderr   string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("video render failed: exit code %d", e.ExitCode)
}

// Compressor produces the low-resolution analysis proxy.
type Compressor interface {
	Compress(ctx context.Context, src, dst string) (string, error)
}

// Planner produces a segment plan or an error wrapping planner.ErrNoPlan.
type Planner interface {
	Plan(ctx context.Context, req planner.Request) (montage.Plan, error)
}

type Options struct {
	WorkDir       string
	MaxConcurrent int
	RenderTimeout time.Duration
	Mix           montage.MixSettings
}

// Request is one render call. Credential is already resolved by the caller.
type Request struct {
	Assets     montage.Assets
	Credential string
}

type Result struct {
	ID         string           `json:"render_id"`
	OutputPath string           `json:"video_path"`
	Mode       montage.Mode     `json:"mode"`
	Plan       montage.Plan     `json:"plan,omitempty"`
	Command    *montage.Command `json:"command"`
}

type Service struct {
	repo       Repository
	compressor Compressor
	planner    Planner
	emitter    *montage.Emitter
	runner     ffmpeg.Runner
	sem        *semaphore.Weighted
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(repo Repository, compressor Compressor, p Planner, emitter *montage.Emitter,
	runner ffmpeg.Runner, opts Options, logger *slog.Logger) *Service {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.Mix == (montage.MixSettings{}) {
		opts.Mix = montage.DefaultMix
	}
	if opts.WorkDir == "" {
		opts.WorkDir = "."
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		repo:       repo,
		compressor: compressor,
		planner:    p,
		emitter:    emitter,
		runner:     runner,
		sem:        semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		opts:       opts,
		logger:     logging.WithComponent(logger, "render"),
		now:        time.Now,
	}
}

// Validate checks the credential and that all four inputs are given and exist.
func (s *Service) Validate(req Request) error {
	if strings.TrimSpace(req.Credential) == "" {
		return ErrMissingCredential
	}
	if missing := req.Assets.Missing(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, k := range missing {
			names[i] = string(k)
		}
		return fmt.Errorf("%w: %s", ErrMissingInput, strings.Join(names, ", "))
	}
	if err := req.Assets.CheckExist(); err != nil {
		return fmt.Errorf("%w: %v", ErrMissingInput, err)
	}
	return nil
}

// Render runs one render end to end. A missing plan degrades to the fallback
// command; only validation, the final command and cancellation fail the call.
func (s *Service) Render(ctx context.Context, req Request) (*Result, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}

	started := s.now()
	rec := &Record{
		ID:        NewID(),
		Status:    StatusPending,
		Assets:    req.Assets,
		CreatedAt: started,
		UpdatedAt: started,
	}
	logger := logging.WithRenderID(s.logger, rec.ID)

	if s.repo != nil {
		if err := s.repo.Create(ctx, rec); err != nil {
			return nil, fmt.Errorf("record render: %w", err)
		}
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		rec.Status = StatusFailed
		rec.Error = "cancelled while queued"
		s.finish(ctx, logger, rec)
		return nil, fmt.Errorf("waiting for render slot: %w", err)
	}
	defer s.sem.Release(1)

	rec.Status = StatusRunning
	if s.repo != nil {
		if err := s.repo.UpdateStatus(ctx, rec.ID, StatusRunning, ""); err != nil {
			logger.Warn("failed to mark render running", "error", err)
		}
	}

	res, err := s.execute(ctx, logger, rec, req)
	rec.ElapsedMs = s.now().Sub(started).Milliseconds()
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
		var pe *ProcessError
		if errors.As(err, &pe) {
			rec.Error = fmt.Sprintf("%s: %s", err.Error(), lastLine(pe.Stderr))
		}
		logger.Error("render failed", "error", err, "elapsed_ms", rec.ElapsedMs)
	} else {
		rec.Status = StatusCompleted
		logger.Info("render completed", "mode", rec.Mode, "output", logging.SanitizePath(rec.OutputPath),
			"elapsed_ms", rec.ElapsedMs)
	}
	s.finish(ctx, logger, rec)

	return res, err
}

func (s *Service) execute(ctx context.Context, logger *slog.Logger, rec *Record, req Request) (*Result, error) {
	proxy := filepath.Join(s.opts.WorkDir, tmpDirName, rec.ID+proxySuffix)
	output := filepath.Join(s.opts.WorkDir, rendersDir, rec.ID, montage.OutputFilename)

	if _, err := s.compressor.Compress(ctx, req.Assets.Video, proxy); err != nil {
		logger.Warn("proxy compression failed, planning will be skipped", "error", err)
	}

	plan, err := s.planner.Plan(ctx, planner.Request{
		ProxyPath:     proxy,
		NarrationPath: req.Assets.Narration,
		Credential:    req.Credential,
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrMissingCredential):
		return nil, err
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		logger.Warn("no segment plan, using fallback render", "error", err)
		plan = nil
	}

	var fg *montage.FilterGraph
	if plan != nil {
		fg, err = montage.CompileWithMix(req.Assets, plan, s.opts.Mix)
		if err != nil {
			logger.Warn("plan rejected by compiler, using fallback render", "error", err)
			fg, plan = nil, nil
		}
	}

	cmd, err := s.emitter.Emit(fg, req.Assets, output)
	if err != nil {
		return nil, fmt.Errorf("build command: %w", err)
	}
	rec.Mode = cmd.Mode
	rec.Plan = plan
	rec.SegmentCount = len(plan)
	rec.PlanDuration = plan.TotalDuration()

	if err := os.MkdirAll(filepath.Dir(cmd.Output), 0o755); err != nil {
		return nil, fmt.Errorf("create render dir: %w", err)
	}

	runCtx := ctx
	if s.opts.RenderTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.opts.RenderTimeout)
		defer cancel()
	}

	logger.Info("rendering", "mode", cmd.Mode, "segments", len(plan))
	run := s.runner.Run(runCtx, cmd)
	if !run.IsSuccess() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ProcessError{ExitCode: run.ExitCode, Stderr: run.StderrTail}
	}
	rec.OutputPath = cmd.Output

	return &Result{
		ID:         rec.ID,
		OutputPath: cmd.Output,
		Mode:       cmd.Mode,
		Plan:       plan,
		Command:    cmd,
	}, nil
}

func (s *Service) finish(ctx context.Context, logger *slog.Logger, rec *Record) {
	if s.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.repo.Complete(ctx, rec); err != nil {
		logger.Warn("failed to record render outcome", "error", err)
	}
}

func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	if s.repo == nil {
		return nil, ErrNotFound
	}
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *Service) List(ctx context.Context, limit int) ([]*Record, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.List(ctx, limit)
}

// Delete removes a finished render's history entry and its output directory.
func (s *Service) Delete(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !rec.IsTerminal() {
		return ErrRenderActive
	}
	dir := filepath.Join(s.opts.WorkDir, rendersDir, rec.ID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove render output: %w", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("render deleted", "render_id", id)
	return nil
}

const maxErrorLine = 300

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return ffmpeg.Tail(s, maxErrorLine)
}
