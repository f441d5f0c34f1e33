package evaluator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/xliffqe/internal/scorer"
	"github.com/valpere/xliffqe/internal/store"
	"github.com/valpere/xliffqe/internal/xliff"
)

const job = `<?xml version="1.0" encoding="utf-8"?>
<xliff version="1.2" xmlns="urn:oasis:names:tc:xliff:document:1.2" xmlns:mq="MQXliff">
<file original="a.docx" source-language="en-US" target-language="es-ES">
<body>
<trans-unit id="1" mq:status="ManuallyConfirmed" mq:segmentguid="g-1">
  <source>Hello</source>
  <target>Hola</target>
  <mq:insertedmatch matchtype="1" source="MT / Engine1"><source>Hello</source><target>Hola</target></mq:insertedmatch>
</trans-unit>
<trans-unit id="2" mq:status="PartiallyEdited">
  <source>World</source>
  <target>Mundo</target>
</trans-unit>
<trans-unit id="3" mq:status="ManuallyConfirmed" mq:segmentguid="g-3">
  <source>Goodbye</source>
  <target>Adiós</target>
</trans-unit>
</body>
</file>
</xliff>`

type fakeScorer struct {
	err   error
	calls int
}

func (f *fakeScorer) Name() string                          { return "fake" }
func (f *fakeScorer) Model() string                         { return "fake-model" }
func (f *fakeScorer) IsAvailable(ctx context.Context) error { return nil }

func (f *fakeScorer) Score(ctx context.Context, triples []scorer.Triple) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float64, len(triples))
	for i := range triples {
		out[i] = 0.75
	}
	return out, nil
}

type fakeEngine struct{}

func (fakeEngine) Name() string { return "fake" }
func (fakeEngine) Close() error { return nil }

func (fakeEngine) Translate(ctx context.Context, texts []string, src, tgt string) ([]string, error) {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = "[" + tgt + "] " + t
	}
	return out, nil
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEvaluate_KeepMissingMT(t *testing.T) {
	log, _ := test.NewNullLogger()
	st := newStore(t)
	sc := &fakeScorer{}

	ev := New(sc, Config{Mode: scorer.ModeReference, MissingMT: xliff.KeepMissingMT}, log, WithStore(st))

	out, err := ev.Evaluate(context.Background(), strings.NewReader(job), "job.mqxliff", "job_comet_scores.xlsx")
	require.NoError(t, err)
	require.NoError(t, out.Warning)

	require.Len(t, out.Input.Segments, 2)
	assert.Equal(t, []bool{true, false}, out.Result.Scored)
	assert.Equal(t, 1, out.Result.Summary.Scored)
	require.Len(t, out.Sheet.Rows, 2)
	assert.Equal(t, 0.75, out.Sheet.Rows[0][len(out.Sheet.Headers)-1])
	assert.Nil(t, out.Sheet.Rows[1][len(out.Sheet.Headers)-1])

	run, err := st.GetRun(context.Background(), out.RunID)
	require.NoError(t, err)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, "en-US", run.SourceLang)
	assert.Equal(t, 2, run.Segments)
	assert.Equal(t, 1, run.Scored)

	segs, err := st.GetRunSegments(context.Background(), out.RunID)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.False(t, segs[1].Score.Valid)
}

func TestEvaluate_SecondRunHitsCache(t *testing.T) {
	log, _ := test.NewNullLogger()
	st := newStore(t)
	sc := &fakeScorer{}
	ev := New(sc, Config{MissingMT: xliff.DropMissingMT}, log, WithStore(st))

	_, err := ev.Evaluate(context.Background(), strings.NewReader(job), "job.mqxliff", "")
	require.NoError(t, err)
	out, err := ev.Evaluate(context.Background(), strings.NewReader(job), "job.mqxliff", "")
	require.NoError(t, err)

	assert.Equal(t, 1, sc.calls)
	assert.Equal(t, 1, out.Result.CacheHits)
}

func TestEvaluate_ScorerFailureMarksRunFailed(t *testing.T) {
	log, _ := test.NewNullLogger()
	st := newStore(t)
	sc := &fakeScorer{err: errors.New("scorer returned status 503")}

	cfg := Config{MissingMT: xliff.DropMissingMT}
	cfg.Pipeline.MaxAttempts = 1
	ev := New(sc, cfg, log, WithStore(st))

	_, err := ev.Evaluate(context.Background(), strings.NewReader(job), "job.mqxliff", "")
	require.Error(t, err)

	runs, err := st.ListRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "failed", runs[0].Status)
	assert.Contains(t, runs[0].Error, "503")
}

func TestEvaluate_ParseError(t *testing.T) {
	log, _ := test.NewNullLogger()
	ev := New(&fakeScorer{}, Config{}, log)

	_, err := ev.Evaluate(context.Background(), strings.NewReader("<xliff>"), "bad.xlf", "")
	var perr *xliff.ParseError
	assert.True(t, errors.As(err, &perr), "expected ParseError, got %v", err)
}

func TestEvaluate_EmptyResultIsWarning(t *testing.T) {
	log, hook := test.NewNullLogger()
	sc := &fakeScorer{}
	ev := New(sc, Config{MissingMT: xliff.DropMissingMT}, log)

	draftOnly := strings.Replace(job, `mq:status="ManuallyConfirmed"`, `mq:status="Edited"`, -1)
	out, err := ev.Evaluate(context.Background(), strings.NewReader(draftOnly), "job.mqxliff", "")
	require.NoError(t, err)

	var w *xliff.EmptyResultWarning
	assert.True(t, errors.As(out.Warning, &w))
	assert.Empty(t, out.Sheet.Rows)
	assert.NotEmpty(t, out.Sheet.Headers)
	assert.Equal(t, 0, sc.calls)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Message == "nothing to evaluate" {
			warned = true
		}
	}
	assert.True(t, warned, "expected a warn-level log entry")
}

func TestEvaluate_BackfillThenDrop(t *testing.T) {
	log, _ := test.NewNullLogger()
	ev := New(&fakeScorer{}, Config{MissingMT: xliff.DropMissingMT}, log, WithBackfill(fakeEngine{}))

	out, err := ev.Evaluate(context.Background(), strings.NewReader(job), "job.mqxliff", "")
	require.NoError(t, err)

	assert.Equal(t, 1, out.Backfilled)
	require.Len(t, out.Input.Segments, 2, "backfilled units survive the drop policy")
	second := out.Input.Segments[1]
	assert.Equal(t, "[es-ES] Goodbye", second.MT)
	assert.Equal(t, "backfill / fake", second.MTProvider)
	assert.Equal(t, []bool{true, true}, out.Result.Scored)
}

func TestEvaluate_BackfilledMTWrittenToTableReport(t *testing.T) {
	log, _ := test.NewNullLogger()
	ev := New(&fakeScorer{}, Config{MissingMT: xliff.DropMissingMT, SourceLang: "en", TargetLang: "es"}, log, WithBackfill(fakeEngine{}))

	csv := "source,mt,ref\nHello,,Hola\nBye,Adiós,Adiós\n"
	out, err := ev.Evaluate(context.Background(), strings.NewReader(csv), "pairs.csv", "")
	require.NoError(t, err)

	assert.Equal(t, 1, out.Backfilled)
	assert.Equal(t, []bool{true, true}, out.Result.Scored)
	assert.Equal(t, []string{"source", "mt", "ref", "comet_score"}, out.Sheet.Headers)
	require.Len(t, out.Sheet.Rows, 2)
	assert.Equal(t, []interface{}{"Hello", "[es] Hello", "Hola", 0.75}, out.Sheet.Rows[0])
	assert.Equal(t, []interface{}{"Bye", "Adiós", "Adiós", 0.75}, out.Sheet.Rows[1])
}

func TestEvaluate_LanguageOverride(t *testing.T) {
	log, _ := test.NewNullLogger()
	ev := New(&fakeScorer{}, Config{Mode: scorer.ModeQE, TargetLang: "es-MX"}, log)

	in, _, err := ev.Load(context.Background(), strings.NewReader(job), "job.mqxliff")
	require.NoError(t, err)
	assert.Equal(t, "en-US", in.SourceLang)
	assert.Equal(t, "es-MX", in.TargetLang)
}

func TestEvaluate_UnsupportedExtension(t *testing.T) {
	log, _ := test.NewNullLogger()
	ev := New(&fakeScorer{}, Config{}, log)

	_, err := ev.Evaluate(context.Background(), strings.NewReader(job), "job.docx", "")
	assert.Error(t, err)
}
