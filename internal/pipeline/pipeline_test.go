package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/valpere/xliffqe/internal"
	"github.com/valpere/xliffqe/internal/scorer"
	"github.com/valpere/xliffqe/internal/store"
)

type mockScorer struct {
	scoreFunc func(ctx context.Context, triples []scorer.Triple) ([]float64, error)
	callCount atomic.Int32

	mu   sync.Mutex
	seen [][]scorer.Triple
}

func (m *mockScorer) Name() string  { return "mock" }
func (m *mockScorer) Model() string { return "mock-model" }

func (m *mockScorer) Score(ctx context.Context, triples []scorer.Triple) ([]float64, error) {
	m.callCount.Add(1)
	m.mu.Lock()
	m.seen = append(m.seen, triples)
	m.mu.Unlock()
	if m.scoreFunc != nil {
		return m.scoreFunc(ctx, triples)
	}
	return lengthScores(triples), nil
}

func (m *mockScorer) IsAvailable(ctx context.Context) error { return nil }

// lengthScores scores each triple by its MT length so results are traceable.
func lengthScores(triples []scorer.Triple) []float64 {
	out := make([]float64, len(triples))
	for i, t := range triples {
		out[i] = float64(len(t.MT)) / 100
	}
	return out
}

func quietLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func segments() []internal.Segment {
	return []internal.Segment{
		{Source: "one", MT: "a", HasMT: true, Ref: "uno"},
		{Source: "two", MT: "bb", HasMT: true, Ref: "dos"},
		{Source: "three", HasMT: false, Ref: "tres"},
		{Source: "four", MT: "dddd", HasMT: true, Ref: "cuatro"},
		{Source: "five", MT: "eeeee", HasMT: true},
	}
}

func TestPipeline_Run_ReferenceMode(t *testing.T) {
	ms := &mockScorer{}
	p := New(ms, nil, Config{Mode: scorer.ModeReference, BatchSize: 2}, quietLogger())

	res, err := p.Run(context.Background(), segments())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantScored := []bool{true, true, false, true, false}
	for i, want := range wantScored {
		if res.Scored[i] != want {
			t.Errorf("segment %d: scored=%v, want %v", i, res.Scored[i], want)
		}
	}
	if res.Scores[3] != 0.04 {
		t.Errorf("expected score 0.04 for segment 3, got %v", res.Scores[3])
	}
	if res.Batches != 2 {
		t.Errorf("expected 2 batches, got %d", res.Batches)
	}
	if res.Summary.Scored != 3 {
		t.Errorf("expected 3 scored in summary, got %d", res.Summary.Scored)
	}
}

func TestPipeline_Run_QEModeDropsRef(t *testing.T) {
	ms := &mockScorer{}
	p := New(ms, nil, Config{Mode: scorer.ModeQE, BatchSize: 10}, quietLogger())

	res, err := p.Run(context.Background(), segments())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Summary.Scored != 4 {
		t.Errorf("expected 4 scored in QE mode, got %d", res.Summary.Scored)
	}
	for _, batch := range ms.seen {
		for _, tr := range batch {
			if tr.Ref != "" {
				t.Errorf("expected no reference in QE mode, got %q", tr.Ref)
			}
		}
	}
}

func TestPipeline_Run_PreservesOrderAcrossConcurrentBatches(t *testing.T) {
	var segs []internal.Segment
	for i := 0; i < 50; i++ {
		mt := string(make([]byte, i+1))
		segs = append(segs, internal.Segment{Source: "s", MT: mt, HasMT: true})
	}

	ms := &mockScorer{
		scoreFunc: func(ctx context.Context, triples []scorer.Triple) ([]float64, error) {
			time.Sleep(time.Duration(len(triples[0].MT)%3) * time.Millisecond)
			return lengthScores(triples), nil
		},
	}
	p := New(ms, nil, Config{Mode: scorer.ModeQE, BatchSize: 3, Concurrency: 4}, quietLogger())

	res, err := p.Run(context.Background(), segs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range segs {
		want := float64(i+1) / 100
		if res.Scores[i] != want {
			t.Fatalf("segment %d: got %v, want %v", i, res.Scores[i], want)
		}
	}
	if got := ms.callCount.Load(); got != 17 {
		t.Errorf("expected 17 batches, got %d", got)
	}
}

func TestPipeline_Run_RetriesThenSucceeds(t *testing.T) {
	ms := &mockScorer{}
	ms.scoreFunc = func(ctx context.Context, triples []scorer.Triple) ([]float64, error) {
		if ms.callCount.Load() < 3 {
			return nil, errors.New("server busy")
		}
		return lengthScores(triples), nil
	}

	p := New(ms, nil, Config{Mode: scorer.ModeQE, MaxAttempts: 3, RetryDelay: time.Millisecond}, quietLogger())

	res, err := p.Run(context.Background(), segments()[:2])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ms.callCount.Load(); got != 3 {
		t.Errorf("expected 3 calls (1 initial + 2 retries), got %d", got)
	}
	if !res.Scored[0] || !res.Scored[1] {
		t.Error("expected both segments scored after retry")
	}
}

func TestPipeline_Run_FailsWholeRun(t *testing.T) {
	ms := &mockScorer{
		scoreFunc: func(ctx context.Context, triples []scorer.Triple) ([]float64, error) {
			return nil, errors.New("connection refused")
		},
	}
	p := New(ms, nil, Config{Mode: scorer.ModeQE, MaxAttempts: 2, RetryDelay: time.Millisecond}, quietLogger())

	res, err := p.Run(context.Background(), segments())
	if err == nil {
		t.Fatal("expected error when every attempt fails")
	}
	if res != nil {
		t.Error("expected no partial result")
	}
	if got := ms.callCount.Load(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestPipeline_Run_ScoreCountMismatchRetried(t *testing.T) {
	ms := &mockScorer{
		scoreFunc: func(ctx context.Context, triples []scorer.Triple) ([]float64, error) {
			return []float64{0.1}, nil
		},
	}
	p := New(ms, nil, Config{Mode: scorer.ModeQE, MaxAttempts: 2, RetryDelay: time.Millisecond}, quietLogger())

	if _, err := p.Run(context.Background(), segments()[:2]); err == nil {
		t.Fatal("expected error for short score list")
	}
}

func TestPipeline_Run_Timeout(t *testing.T) {
	ms := &mockScorer{
		scoreFunc: func(ctx context.Context, triples []scorer.Triple) ([]float64, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	p := New(ms, nil, Config{Mode: scorer.ModeQE, MaxAttempts: 1, Timeout: 20 * time.Millisecond}, quietLogger())

	_, err := p.Run(context.Background(), segments()[:1])
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestPipeline_Run_UsesCache(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer st.Close()

	ms := &mockScorer{}
	p := New(ms, st, Config{Mode: scorer.ModeReference, BatchSize: 8}, quietLogger())

	first, err := p.Run(context.Background(), segments())
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if first.CacheHits != 0 {
		t.Errorf("expected no cache hits on first run, got %d", first.CacheHits)
	}

	second, err := p.Run(context.Background(), segments())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.CacheHits != 3 {
		t.Errorf("expected 3 cache hits on second run, got %d", second.CacheHits)
	}
	if got := ms.callCount.Load(); got != 1 {
		t.Errorf("expected the scorer to be called once overall, got %d", got)
	}
	for i := range first.Scores {
		if first.Scores[i] != second.Scores[i] {
			t.Errorf("segment %d: cached score %v differs from %v", i, second.Scores[i], first.Scores[i])
		}
	}
}

func TestPipeline_Run_NothingScorable(t *testing.T) {
	ms := &mockScorer{}
	p := New(ms, nil, Config{}, quietLogger())

	res, err := p.Run(context.Background(), []internal.Segment{{Source: "x"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms.callCount.Load() != 0 {
		t.Error("expected no scorer calls")
	}
	if res.Summary != (Summary{}) {
		t.Errorf("expected empty summary, got %+v", res.Summary)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{0.2, 0.9, 0, 0.4}, []bool{true, true, false, true})
	if s.Scored != 3 {
		t.Errorf("expected 3 scored, got %d", s.Scored)
	}
	if s.Min != 0.2 || s.Max != 0.9 {
		t.Errorf("unexpected min/max: %v/%v", s.Min, s.Max)
	}
	if diff := s.Mean - 0.5; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected mean 0.5, got %v", s.Mean)
	}
}

func TestScorable(t *testing.T) {
	noRef := internal.Segment{Source: "a", MT: "b", HasMT: true}
	if Scorable(noRef, scorer.ModeReference) {
		t.Error("expected segment without reference to be unscorable in reference mode")
	}
	if !Scorable(noRef, scorer.ModeQE) {
		t.Error("expected segment without reference to be scorable in QE mode")
	}
	if Scorable(internal.Segment{Source: "a", Ref: "c"}, scorer.ModeReference) {
		t.Error("expected segment without MT to be unscorable")
	}
}
