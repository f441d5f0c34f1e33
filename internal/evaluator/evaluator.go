// Package evaluator runs one input file through loading, optional MT
// backfill and language checks, scoring, and report layout, recording the
// run in the store when one is configured.
package evaluator

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/valpere/xliffqe/internal/adapter"
	"github.com/valpere/xliffqe/internal/detector"
	"github.com/valpere/xliffqe/internal/mtengine"
	"github.com/valpere/xliffqe/internal/pipeline"
	"github.com/valpere/xliffqe/internal/report"
	"github.com/valpere/xliffqe/internal/scorer"
	"github.com/valpere/xliffqe/internal/store"
	"github.com/valpere/xliffqe/internal/validator"
	"github.com/valpere/xliffqe/internal/xliff"
)

type Config struct {
	Mode      scorer.Mode
	MissingMT xliff.MissingMTPolicy
	Pipeline  pipeline.Config
	// CheckLang fills the lang_check column.
	CheckLang bool
	// SourceLang and TargetLang override what the input declares.
	SourceLang string
	TargetLang string
}

type Evaluator struct {
	scorer   scorer.Scorer
	store    *store.Store
	engine   mtengine.Engine
	detector *detector.Detector
	cfg      Config
	log      logrus.FieldLogger
}

// Option configures optional collaborators.
type Option func(*Evaluator)

// WithStore enables the score cache and run history.
func WithStore(s *store.Store) Option {
	return func(e *Evaluator) { e.store = s }
}

// WithBackfill machine-translates units that have no MT candidate.
func WithBackfill(eng mtengine.Engine) Option {
	return func(e *Evaluator) { e.engine = eng }
}

// WithDetector shares a language detector between evaluations.
func WithDetector(d *detector.Detector) Option {
	return func(e *Evaluator) { e.detector = d }
}

func New(s scorer.Scorer, cfg Config, log logrus.FieldLogger, opts ...Option) *Evaluator {
	if cfg.Mode == "" {
		cfg.Mode = scorer.ModeReference
	}
	cfg.Pipeline.Mode = cfg.Mode
	if log == nil {
		log = logrus.StandardLogger()
	}
	e := &Evaluator{scorer: s, cfg: cfg, log: log}
	for _, opt := range opts {
		opt(e)
	}
	if e.detector == nil && (cfg.CheckLang || e.engine != nil) {
		e.detector = detector.New()
	}
	return e
}

// Mode is the evaluation mode the evaluator scores with.
func (e *Evaluator) Mode() scorer.Mode { return e.cfg.Mode }

// InputError reports an input file that could not be read: an unsupported
// extension, malformed markup or missing columns.
type InputError struct {
	File string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// Outcome is everything a caller needs to write and summarize a run.
type Outcome struct {
	RunID          string
	Input          *adapter.Input
	Result         *pipeline.Result
	Sheet          *report.Sheet
	Providers      []report.ProviderSummary
	Backfilled     int
	LangMismatches int
	// Warning is non-nil when there was nothing to score.
	Warning error
}

// Load reads and prepares the input without scoring it: missing languages
// are detected, MT is backfilled and the missing-MT policy applied.
func (e *Evaluator) Load(ctx context.Context, r io.Reader, filename string) (*adapter.Input, int, error) {
	policy := e.cfg.MissingMT
	if e.engine != nil {
		// Backfill needs to see the units without MT before the policy drops them.
		policy = xliff.KeepMissingMT
	}

	ad, err := adapter.ForFile(filename, adapter.Options{Mode: e.cfg.Mode, MissingMT: policy})
	if err != nil {
		return nil, 0, &InputError{File: filename, Err: err}
	}
	in, err := ad.Load(ctx, r, filename)
	if err != nil {
		return nil, 0, &InputError{File: filename, Err: err}
	}

	e.resolveLanguages(in)

	backfilled := 0
	if e.engine != nil {
		backfilled, err = mtengine.Backfill(ctx, e.engine, in.Segments, in.SourceLang, in.TargetLang, e.log)
		if err != nil {
			return nil, 0, err
		}
		if e.cfg.MissingMT == xliff.DropMissingMT {
			in.DropMissingMT()
		}
	}

	e.log.WithFields(logrus.Fields{
		"file":       filename,
		"adapter":    ad.Name(),
		"segments":   len(in.Segments),
		"source":     in.SourceLang,
		"target":     in.TargetLang,
		"backfilled": backfilled,
	}).Info("input loaded")

	return in, backfilled, nil
}

func (e *Evaluator) resolveLanguages(in *adapter.Input) {
	if e.cfg.SourceLang != "" {
		in.SourceLang = e.cfg.SourceLang
	}
	if e.cfg.TargetLang != "" {
		in.TargetLang = e.cfg.TargetLang
	}
	if e.detector == nil || len(in.Segments) == 0 {
		return
	}

	first := in.Segments[0]
	if in.SourceLang == "" {
		if code, ok := e.detector.DetectISO(first.Source); ok {
			in.SourceLang = code
			e.log.WithField("lang", code).Info("detected source language")
		}
	}
	if in.TargetLang == "" && first.Ref != "" {
		if code, ok := e.detector.DetectISO(first.Ref); ok {
			in.TargetLang = code
			e.log.WithField("lang", code).Info("detected target language")
		}
	}
}

// Evaluate loads, scores and lays out one input. outputFile is only recorded
// in the run history.
func (e *Evaluator) Evaluate(ctx context.Context, r io.Reader, filename, outputFile string) (*Outcome, error) {
	in, backfilled, err := e.Load(ctx, r, filename)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Input: in, Backfilled: backfilled, Warning: in.Warning()}
	if out.Warning != nil {
		e.log.WithError(out.Warning).Warn("nothing to evaluate")
	}

	if e.cfg.CheckLang {
		out.LangMismatches = validator.New(e.detector).CheckReferences(in.Segments, in.TargetLang)
		if out.LangMismatches > 0 {
			e.log.WithField("mismatches", out.LangMismatches).Warn("references not in the target language")
		}
	}

	if e.store != nil {
		out.RunID, err = e.store.CreateRun(ctx, filename, outputFile, e.scorer.Model(), string(e.cfg.Mode), in.SourceLang, in.TargetLang)
		if err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
	}

	var cache pipeline.Cache
	if e.store != nil {
		cache = e.store
	}
	res, err := pipeline.New(e.scorer, cache, e.cfg.Pipeline, e.log).Run(ctx, in.Segments)
	if err != nil {
		if out.RunID != "" {
			if ferr := e.store.FailRun(context.WithoutCancel(ctx), out.RunID, err.Error()); ferr != nil {
				e.log.WithError(ferr).Warn("failed to mark run as failed")
			}
		}
		return nil, fmt.Errorf("failed to score %s: %w", filename, err)
	}
	out.Result = res

	out.Sheet = report.Build(in, res, report.Options{Mode: e.cfg.Mode, LangCheck: e.cfg.CheckLang})
	out.Providers = report.ByProvider(in.Segments, res)

	if out.RunID != "" {
		if err := e.recordRun(ctx, out); err != nil {
			return nil, err
		}
	}

	e.log.WithFields(logrus.Fields{
		"run":        out.RunID,
		"scored":     res.Summary.Scored,
		"cache_hits": res.CacheHits,
		"mean":       res.Summary.Mean,
	}).Info("evaluation complete")

	return out, nil
}

func (e *Evaluator) recordRun(ctx context.Context, out *Outcome) error {
	segs := make([]store.RunSegment, len(out.Input.Segments))
	for i, seg := range out.Input.Segments {
		segs[i] = store.RunSegment{Index: i, Source: seg.Source, MT: seg.MT, Ref: seg.Ref}
		if out.Result.Scored[i] {
			segs[i].Score = sql.NullFloat64{Float64: out.Result.Scores[i], Valid: true}
		}
	}
	if err := e.store.SaveRunSegments(ctx, out.RunID, segs); err != nil {
		return fmt.Errorf("failed to save run segments: %w", err)
	}

	sum := out.Result.Summary
	err := e.store.CompleteRun(ctx, out.RunID, store.RunSummary{
		Segments: len(segs),
		Scored:   sum.Scored,
		Mean:     sum.Mean,
		Min:      sum.Min,
		Max:      sum.Max,
	})
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}
