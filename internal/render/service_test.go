package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/algovids/algovids-agent/internal/db"
	"github.com/algovids/algovids-agent/internal/ffmpeg"
	"github.com/algovids/algovids-agent/internal/montage"
	"github.com/algovids/algovids-agent/internal/planner"
)

type fakeCompressor struct {
	err   error
	calls int
}

func (f *fakeCompressor) Compress(ctx context.Context, src, dst string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	return dst, os.WriteFile(dst, []byte("proxy"), 0o644)
}

type fakePlanner struct {
	plan montage.Plan
	err  error
	reqs []planner.Request
}

func (f *fakePlanner) Plan(ctx context.Context, req planner.Request) (montage.Plan, error) {
	f.reqs = append(f.reqs, req)
	os.Remove(req.ProxyPath)
	return f.plan, f.err
}

type fakeRunner struct {
	mu       sync.Mutex
	result   ffmpeg.RunResult
	commands []ffmpeg.Invocation
	block    chan struct{}
	active   atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeRunner) Run(ctx context.Context, inv ffmpeg.Invocation) ffmpeg.RunResult {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	f.commands = append(f.commands, inv)
	f.mu.Unlock()

	if f.result.IsSuccess() {
		args := inv.Arguments()
		os.WriteFile(args[len(args)-1], []byte("mp4"), 0o644)
	}
	return f.result
}

type testEnv struct {
	svc        *Service
	repo       Repository
	compressor *fakeCompressor
	planner    *fakePlanner
	runner     *fakeRunner
	workDir    string
	assets     montage.Assets
}

func setupTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	tmp := t.TempDir()

	database, err := db.New(filepath.Join(tmp, "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	inputs := filepath.Join(tmp, "inputs")
	os.MkdirAll(inputs, 0o755)
	assets := montage.Assets{
		Video:     filepath.Join(inputs, "source.mp4"),
		Narration: filepath.Join(inputs, "voiceover.mp3"),
		SFX:       filepath.Join(inputs, "whoosh.mp3"),
		BGM:       filepath.Join(inputs, "music.mp3"),
	}
	for _, m := range assets.List() {
		os.WriteFile(m.Path, []byte(m.Kind), 0o644)
	}

	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(tmp, "work")
	}
	env := &testEnv{
		repo:       NewRepository(database.Conn()),
		compressor: &fakeCompressor{},
		planner:    &fakePlanner{plan: montage.Plan{{Start: 0, End: 2}, {Start: 5, End: 7}}},
		runner:     &fakeRunner{},
		workDir:    opts.WorkDir,
		assets:     assets,
	}
	env.svc = NewService(env.repo, env.compressor, env.planner, montage.NewEmitter("ffmpeg"), env.runner, opts, nil)
	return env
}

func TestService_Render_Montage(t *testing.T) {
	env := setupTestEnv(t, Options{})
	ctx := context.Background()

	res, err := env.svc.Render(ctx, Request{Assets: env.assets, Credential: "key"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if res.Mode != montage.ModeMontage {
		t.Errorf("mode = %s, want montage", res.Mode)
	}
	if len(res.Plan) != 2 {
		t.Errorf("plan = %+v", res.Plan)
	}
	wantOut := filepath.ToSlash(filepath.Join(env.workDir, "renders", res.ID, montage.OutputFilename))
	if res.OutputPath != wantOut {
		t.Errorf("output = %s, want %s", res.OutputPath, wantOut)
	}
	if _, err := os.Stat(res.OutputPath); err != nil {
		t.Errorf("output not written: %v", err)
	}

	if len(env.planner.reqs) != 1 {
		t.Fatalf("planner calls = %d", len(env.planner.reqs))
	}
	preq := env.planner.reqs[0]
	if preq.Credential != "key" || preq.NarrationPath != env.assets.Narration {
		t.Errorf("planner request = %+v", preq)
	}
	if !strings.HasSuffix(preq.ProxyPath, res.ID+"_low_res.mp4") {
		t.Errorf("proxy path %s not scoped to render", preq.ProxyPath)
	}

	cmd := env.runner.commands[0]
	if !strings.Contains(strings.Join(cmd.Arguments(), " "), "concat=n=2") {
		t.Errorf("montage command missing concat: %v", cmd.Arguments())
	}

	rec, err := env.svc.Get(ctx, res.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Status != StatusCompleted || rec.Mode != montage.ModeMontage || rec.SegmentCount != 2 {
		t.Errorf("record = %+v", rec)
	}
	if rec.PlanDuration != 4 {
		t.Errorf("plan duration = %v, want 4", rec.PlanDuration)
	}
	if len(rec.Plan) != 2 || rec.Plan[1].Start != 5 {
		t.Errorf("stored plan = %+v", rec.Plan)
	}
}

func TestService_Render_FallbackWhenNoPlan(t *testing.T) {
	env := setupTestEnv(t, Options{})
	env.planner.plan = nil
	env.planner.err = &planner.NoPlanError{Reason: "service overloaded", Attempts: 3}

	res, err := env.svc.Render(context.Background(), Request{Assets: env.assets, Credential: "key"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if res.Mode != montage.ModeFallback {
		t.Errorf("mode = %s, want fallback", res.Mode)
	}
	args := env.runner.commands[0].Arguments()
	if strings.Contains(strings.Join(args, " "), "-filter_complex") {
		t.Errorf("fallback should not use a filter graph: %v", args)
	}
	if !strings.Contains(strings.Join(args, " "), "-shortest") {
		t.Errorf("fallback missing -shortest: %v", args)
	}

	rec, _ := env.svc.Get(context.Background(), res.ID)
	if rec.Status != StatusCompleted || rec.Mode != montage.ModeFallback || rec.SegmentCount != 0 {
		t.Errorf("record = %+v", rec)
	}
}

func TestService_Render_CompressFailureStillRenders(t *testing.T) {
	env := setupTestEnv(t, Options{})
	env.compressor.err = errors.New("exit 1")
	env.planner.plan = nil
	env.planner.err = &planner.NoPlanError{Reason: "proxy unavailable"}

	res, err := env.svc.Render(context.Background(), Request{Assets: env.assets, Credential: "key"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if res.Mode != montage.ModeFallback {
		t.Errorf("mode = %s, want fallback", res.Mode)
	}
}

func TestService_Render_ProcessError(t *testing.T) {
	env := setupTestEnv(t, Options{})
	stderr := "Input #0, mov,mp4\n[AVFilterGraph] Invalid argument\n"
	env.runner.result = ffmpeg.RunResult{ExitCode: 1, StderrTail: stderr}

	_, err := env.svc.Render(context.Background(), Request{Assets: env.assets, Credential: "key"})
	var pe *ProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ProcessError", err)
	}
	if pe.ExitCode != 1 || pe.Stderr != stderr {
		t.Errorf("process error = %+v", pe)
	}

	recs, _ := env.svc.List(context.Background(), 10)
	if len(recs) != 1 || recs[0].Status != StatusFailed {
		t.Fatalf("records = %+v", recs)
	}
	if !strings.Contains(recs[0].Error, "Invalid argument") {
		t.Errorf("record error = %q", recs[0].Error)
	}
}

func TestService_Render_Validation(t *testing.T) {
	env := setupTestEnv(t, Options{})

	tests := []struct {
		name string
		req  func() Request
		want error
	}{
		{"missing credential", func() Request { return Request{Assets: env.assets} }, ErrMissingCredential},
		{"missing bgm", func() Request {
			a := env.assets
			a.BGM = ""
			return Request{Assets: a, Credential: "k"}
		}, ErrMissingInput},
		{"nonexistent video", func() Request {
			a := env.assets
			a.Video = filepath.Join(t.TempDir(), "nope.mp4")
			return Request{Assets: a, Credential: "k"}
		}, ErrMissingInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Render(context.Background(), tt.req())
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if env.compressor.calls != 0 || len(env.runner.commands) != 0 {
		t.Error("validation failures must not start work")
	}
	if recs, _ := env.svc.List(context.Background(), 10); len(recs) != 0 {
		t.Errorf("validation failures recorded: %+v", recs)
	}
}

func TestService_Render_PlannerCredentialError(t *testing.T) {
	env := setupTestEnv(t, Options{})
	env.planner.err = planner.ErrMissingCredential

	_, err := env.svc.Render(context.Background(), Request{Assets: env.assets, Credential: "key"})
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("err = %v", err)
	}
	if len(env.runner.commands) != 0 {
		t.Error("no command should run")
	}
}

func TestService_Render_SingleFlight(t *testing.T) {
	env := setupTestEnv(t, Options{MaxConcurrent: 1})
	env.runner.block = make(chan struct{})

	var wg sync.WaitGroup
	ids := make([]string, 3)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := env.svc.Render(context.Background(), Request{Assets: env.assets, Credential: "key"})
			if err != nil {
				t.Errorf("Render() error = %v", err)
				return
			}
			ids[i] = res.ID
		}(i)
	}

	for i := 0; i < 3; i++ {
		env.runner.block <- struct{}{}
	}
	wg.Wait()

	if got := env.runner.maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent renders = %d, want 1", got)
	}
	if ids[0] == ids[1] || ids[1] == ids[2] || ids[0] == ids[2] {
		t.Errorf("render ids not unique: %v", ids)
	}
}

func TestService_Render_CancelledWhileWaitingForSlot(t *testing.T) {
	env := setupTestEnv(t, Options{MaxConcurrent: 1})
	env.runner.block = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.svc.Render(context.Background(), Request{Assets: env.assets, Credential: "key"})
	}()

	for env.runner.active.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := env.svc.Render(ctx, Request{Assets: env.assets, Credential: "key"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	env.runner.block <- struct{}{}
	<-done
}

func TestService_Delete(t *testing.T) {
	env := setupTestEnv(t, Options{})
	ctx := context.Background()

	res, err := env.svc.Render(ctx, Request{Assets: env.assets, Credential: "key"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if err := env.svc.Delete(ctx, res.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(filepath.Dir(res.OutputPath)); !os.IsNotExist(err) {
		t.Errorf("render dir still exists: %v", err)
	}
	if _, err := env.svc.Get(ctx, res.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete err = %v, want ErrNotFound", err)
	}
	if err := env.svc.Delete(ctx, res.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete err = %v, want ErrNotFound", err)
	}
}

func TestService_Delete_RunningRender(t *testing.T) {
	env := setupTestEnv(t, Options{})
	ctx := context.Background()
	now := time.Now()
	rec := &Record{ID: NewID(), Status: StatusRunning, Assets: env.assets, CreatedAt: now, UpdatedAt: now}
	if err := env.repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := env.svc.Delete(ctx, rec.ID); !errors.Is(err, ErrRenderActive) {
		t.Fatalf("Delete err = %v, want ErrRenderActive", err)
	}
}

func TestLastLine(t *testing.T) {
	if got := lastLine("a\nb\nlast line\n"); got != "last line" {
		t.Errorf("lastLine = %q", got)
	}
	if got := lastLine(strings.Repeat("x", 500)); len(got) != 300 {
		t.Errorf("lastLine length = %d, want 300", len(got))
	}
	if got := lastLine(strings.Repeat("é", 200) + "x"); !utf8.ValidString(got) || len(got) != 299 {
		t.Errorf("lastLine split a rune: %d bytes, valid=%v", len(got), utf8.ValidString(got))
	}
}
