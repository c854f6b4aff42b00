package planner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/algovids/algovids-agent/internal/logging"
	"github.com/algovids/algovids-agent/internal/montage"
)

var errBadRequest = errors.New("400 invalid argument")

type fakeClient struct {
	mu sync.Mutex

	uploads     []string
	gets        int
	deletes     []string
	closed      bool
	generateReq []GenerateRequest

	// pendingPolls is how many Get calls report pending before active.
	pendingPolls int
	failAsset    bool
	uploadErr    error
	responses    []fakeResponse
}

type fakeResponse struct {
	body string
	err  error
}

func (f *fakeClient) Upload(ctx context.Context, path string) (*Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploads = append(f.uploads, path)
	name := fmt.Sprintf("files/%d", len(f.uploads))
	return &Asset{Name: name, URI: "https://assets.test/" + name, MIMEType: "video/mp4", State: AssetPending}, nil
}

func (f *fakeClient) Get(ctx context.Context, name string) (*Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	state := AssetActive
	switch {
	case f.failAsset:
		state = AssetFailed
	case f.gets <= f.pendingPolls:
		state = AssetPending
	}
	return &Asset{Name: name, URI: "https://assets.test/" + name, State: state}, nil
}

func (f *fakeClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateReq = append(f.generateReq, req)
	i := len(f.generateReq) - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	r := f.responses[i]
	return r.body, r.err
}

func (f *fakeClient) Delete(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, name)
	return nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

type sleepRecorder struct {
	delays []time.Duration
	err    error
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return s.err
}

func overloaded() error {
	return fmt.Errorf("generate: %w: 503 The model is overloaded", ErrServiceOverloaded)
}

func setupPlanner(t *testing.T, fc *fakeClient) (*Planner, *sleepRecorder, Request) {
	t.Helper()
	dir := t.TempDir()
	proxy := filepath.Join(dir, "temp_low_res.mp4")
	narration := filepath.Join(dir, "voiceover.mp3")
	os.WriteFile(proxy, []byte("proxy"), 0o644)
	os.WriteFile(narration, []byte("audio"), 0o644)

	cfg := DefaultConfig(logging.Discard())
	cfg.PollInterval = time.Millisecond
	cfg.ReadyTimeout = time.Second

	p := New(cfg, func(ctx context.Context, credential string) (Client, error) {
		if credential != "test-key" {
			t.Errorf("credential = %q, want test-key", credential)
		}
		return fc, nil
	})
	rec := &sleepRecorder{}
	p.sleep = rec.sleep

	return p, rec, Request{ProxyPath: proxy, NarrationPath: narration, Credential: "test-key"}
}

func assertProxyRemoved(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("proxy %s still exists (stat err = %v)", path, err)
	}
}

func TestPlan_Success(t *testing.T) {
	fc := &fakeClient{pendingPolls: 3, responses: []fakeResponse{{body: `[{"start":0,"end":2},{"start":5,"end":7}]`}}}
	p, rec, req := setupPlanner(t, fc)

	plan, err := p.Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if len(plan) != 2 || plan[1].Start != 5 {
		t.Errorf("plan = %+v", plan)
	}

	if len(fc.uploads) != 2 || fc.uploads[0] != req.ProxyPath || fc.uploads[1] != req.NarrationPath {
		t.Errorf("uploads = %v", fc.uploads)
	}
	if len(fc.generateReq) != 1 {
		t.Fatalf("generate calls = %d, want 1", len(fc.generateReq))
	}
	gr := fc.generateReq[0]
	if gr.Temperature != 0 || gr.ResponseMIMEType != "application/json" || gr.Model != DefaultModel {
		t.Errorf("generate request = %+v", gr)
	}
	if len(gr.Assets) != 2 || gr.Assets[0].State != AssetActive || gr.Assets[1].State != AssetActive {
		t.Errorf("generation must only use active assets: %+v", gr.Assets)
	}
	if gr.Prompt != SegmentPrompt {
		t.Error("prompt not passed through")
	}
	if fc.gets < 4 {
		t.Errorf("expected polling past pending states, gets = %d", fc.gets)
	}
	if len(rec.delays) != 0 {
		t.Errorf("unexpected backoff: %v", rec.delays)
	}
	if len(fc.deletes) != 2 || !fc.closed {
		t.Errorf("assets not cleaned up: deletes=%v closed=%v", fc.deletes, fc.closed)
	}
	assertProxyRemoved(t, req.ProxyPath)
}

func TestPlan_OverloadedExhaustsRetries(t *testing.T) {
	fc := &fakeClient{responses: []fakeResponse{{err: overloaded()}}}
	p, rec, req := setupPlanner(t, fc)

	plan, err := p.Plan(context.Background(), req)
	if plan != nil {
		t.Fatalf("expected no plan, got %+v", plan)
	}
	if !errors.Is(err, ErrNoPlan) || !errors.Is(err, ErrServiceOverloaded) {
		t.Fatalf("err = %v, want ErrNoPlan wrapping ErrServiceOverloaded", err)
	}

	var npe *NoPlanError
	if !errors.As(err, &npe) || npe.Attempts != 3 {
		t.Fatalf("NoPlanError attempts = %+v, want 3", npe)
	}
	if len(fc.generateReq) != 3 {
		t.Errorf("generate calls = %d, want 3", len(fc.generateReq))
	}

	want := []time.Duration{10 * time.Second, 20 * time.Second}
	if len(rec.delays) != len(want) || rec.delays[0] != want[0] || rec.delays[1] != want[1] {
		t.Errorf("backoff delays = %v, want %v", rec.delays, want)
	}
	var total time.Duration
	for _, d := range rec.delays {
		total += d
	}
	if total != 30*time.Second {
		t.Errorf("total backoff = %v, want 30s", total)
	}
	assertProxyRemoved(t, req.ProxyPath)
}

func TestPlan_OverloadedThenSuccess(t *testing.T) {
	fc := &fakeClient{responses: []fakeResponse{
		{err: overloaded()},
		{body: `[{"start":1,"end":3}]`},
	}}
	p, rec, req := setupPlanner(t, fc)

	plan, err := p.Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if len(plan) != 1 {
		t.Errorf("plan = %+v", plan)
	}
	if len(rec.delays) != 1 || rec.delays[0] != 10*time.Second {
		t.Errorf("delays = %v, want [10s]", rec.delays)
	}
	if len(fc.generateReq) != 2 {
		t.Errorf("generate calls = %d, want 2", len(fc.generateReq))
	}
}

func TestPlan_NonRetryableErrorFailsFast(t *testing.T) {
	fc := &fakeClient{responses: []fakeResponse{{err: errBadRequest}}}
	p, rec, req := setupPlanner(t, fc)

	_, err := p.Plan(context.Background(), req)
	if !errors.Is(err, ErrNoPlan) || !errors.Is(err, errBadRequest) {
		t.Fatalf("err = %v", err)
	}
	if len(fc.generateReq) != 1 {
		t.Errorf("generate calls = %d, want 1", len(fc.generateReq))
	}
	if len(rec.delays) != 0 {
		t.Errorf("no backoff expected, got %v", rec.delays)
	}
	assertProxyRemoved(t, req.ProxyPath)
}

func TestPlan_MalformedResponseRemovesProxy(t *testing.T) {
	fc := &fakeClient{responses: []fakeResponse{
		{err: overloaded()},
		{body: `Sure! Here is the plan: [{"start": 0`},
	}}
	p, _, req := setupPlanner(t, fc)

	_, err := p.Plan(context.Background(), req)
	if !errors.Is(err, ErrNoPlan) {
		t.Fatalf("err = %v, want ErrNoPlan", err)
	}
	if len(fc.generateReq) != 2 {
		t.Errorf("generate calls = %d, want 2 (parse errors do not retry)", len(fc.generateReq))
	}
	assertProxyRemoved(t, req.ProxyPath)
}

func TestPlan_EmptyArrayIsNoPlan(t *testing.T) {
	fc := &fakeClient{responses: []fakeResponse{{body: `[]`}}}
	p, _, req := setupPlanner(t, fc)

	plan, err := p.Plan(context.Background(), req)
	if !errors.Is(err, ErrNoPlan) || plan != nil {
		t.Fatalf("plan=%v err=%v, want no plan", plan, err)
	}
}

func TestPlan_OversizedPlanIsNoPlan(t *testing.T) {
	fc := &fakeClient{responses: []fakeResponse{{body: segmentsJSON(montage.MaxSegments + 1)}}}
	p, _, req := setupPlanner(t, fc)

	plan, err := p.Plan(context.Background(), req)
	if !errors.Is(err, ErrNoPlan) || !errors.Is(err, montage.ErrTooManySegments) || plan != nil {
		t.Fatalf("plan=%d segments err=%v, want no plan", len(plan), err)
	}
	if len(fc.generateReq) != 1 {
		t.Errorf("generate calls = %d, want 1", len(fc.generateReq))
	}
}

func TestPlan_FailedAssetIsNoPlan(t *testing.T) {
	fc := &fakeClient{failAsset: true, responses: []fakeResponse{{body: `[{"start":0,"end":1}]`}}}
	p, _, req := setupPlanner(t, fc)

	_, err := p.Plan(context.Background(), req)
	if !errors.Is(err, ErrNoPlan) {
		t.Fatalf("err = %v, want ErrNoPlan", err)
	}
	if len(fc.generateReq) != 0 {
		t.Error("generation must not run while assets are not active")
	}
	if len(fc.deletes) != 2 {
		t.Errorf("uploaded assets should still be deleted, got %v", fc.deletes)
	}
}

func TestPlan_ReadyTimeout(t *testing.T) {
	fc := &fakeClient{pendingPolls: 1 << 30, responses: []fakeResponse{{body: `[{"start":0,"end":1}]`}}}
	p, _, req := setupPlanner(t, fc)
	p.cfg.ReadyTimeout = 20 * time.Millisecond

	start := time.Now()
	_, err := p.Plan(context.Background(), req)
	if !errors.Is(err, ErrNoPlan) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want ErrNoPlan wrapping deadline", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("ready timeout not honoured")
	}
	if len(fc.generateReq) != 0 {
		t.Error("generation must not run before assets are active")
	}
	assertProxyRemoved(t, req.ProxyPath)
}

func TestPlan_CancelledDuringBackoff(t *testing.T) {
	fc := &fakeClient{responses: []fakeResponse{{err: overloaded()}}}
	p, rec, req := setupPlanner(t, fc)
	rec.err = context.Canceled

	_, err := p.Plan(context.Background(), req)
	if !errors.Is(err, ErrNoPlan) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if len(fc.generateReq) != 1 {
		t.Errorf("generate calls = %d, want 1", len(fc.generateReq))
	}
}

func TestPlan_MissingProxyIsNoPlan(t *testing.T) {
	called := false
	p := New(Config{Logger: logging.Discard()}, func(ctx context.Context, credential string) (Client, error) {
		called = true
		return nil, errors.New("unexpected")
	})

	_, err := p.Plan(context.Background(), Request{
		ProxyPath:     filepath.Join(t.TempDir(), "missing.mp4"),
		NarrationPath: "narr.wav",
		Credential:    "k",
	})
	if !errors.Is(err, ErrNoPlan) {
		t.Fatalf("err = %v, want ErrNoPlan", err)
	}
	if called {
		t.Error("client must not be opened without a proxy")
	}
}

func TestPlan_MissingCredential(t *testing.T) {
	fc := &fakeClient{}
	p, _, req := setupPlanner(t, fc)
	req.Credential = ""

	_, err := p.Plan(context.Background(), req)
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
	if errors.Is(err, ErrNoPlan) {
		t.Error("missing credential is a configuration error, not a no-plan")
	}
	assertProxyRemoved(t, req.ProxyPath)
}

func TestPlan_UploadFailure(t *testing.T) {
	fc := &fakeClient{uploadErr: errors.New("connection reset")}
	p, _, req := setupPlanner(t, fc)

	_, err := p.Plan(context.Background(), req)
	if !errors.Is(err, ErrNoPlan) {
		t.Fatalf("err = %v, want ErrNoPlan", err)
	}
	if !fc.closed {
		t.Error("client should be closed")
	}
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{}, nil)
	if p.cfg.MaxAttempts != 3 || p.cfg.BackoffUnit != 10*time.Second || p.cfg.PollInterval != 2*time.Second {
		t.Errorf("defaults = %+v", p.cfg)
	}
	if p.cfg.Logger == nil {
		t.Error("logger should default to discard")
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("sleepContext error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("sleepContext = %v, want Canceled", err)
	}
}
