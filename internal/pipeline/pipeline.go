// Package pipeline scores segments in batches against a Scorer, consulting
// the score cache first and retrying failed batches.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/valpere/xliffqe/internal"
	"github.com/valpere/xliffqe/internal/scorer"
	"github.com/valpere/xliffqe/internal/store"
)

type Config struct {
	Mode        scorer.Mode
	BatchSize   int
	Concurrency int
	// MaxAttempts is the total number of tries per batch, including the first.
	MaxAttempts int
	RetryDelay  time.Duration
	// Timeout bounds a single Score call.
	Timeout time.Duration
}

// Cache is the subset of store.Store the pipeline needs.
type Cache interface {
	GetCachedScore(ctx context.Context, key store.CacheKey) (float64, bool, error)
	SaveScore(ctx context.Context, key store.CacheKey, score float64) error
}

type Pipeline struct {
	scorer scorer.Scorer
	cache  Cache
	config Config
	log    logrus.FieldLogger
}

// New builds a pipeline. cache and log may be nil.
func New(s scorer.Scorer, cache Cache, config Config, log logrus.FieldLogger) *Pipeline {
	if config.BatchSize <= 0 {
		config.BatchSize = scorer.DefaultBatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 2 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Minute
	}
	if config.Mode == "" {
		config.Mode = scorer.ModeReference
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pipeline{scorer: s, cache: cache, config: config, log: log}
}

// Result holds one entry per input segment. Scored[i] is false for segments
// that could not be scored (no MT, or no reference in reference mode).
type Result struct {
	Scores    []float64
	Scored    []bool
	CacheHits int
	Batches   int
	Summary   Summary
}

// Summary aggregates the scored entries of a Result.
type Summary struct {
	Scored int     `json:"scored"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Scorable reports whether seg carries everything the mode needs.
func Scorable(seg internal.Segment, mode scorer.Mode) bool {
	if !seg.HasMT || seg.Source == "" || seg.MT == "" {
		return false
	}
	return mode == scorer.ModeQE || seg.Ref != ""
}

func (p *Pipeline) triple(seg internal.Segment) scorer.Triple {
	t := scorer.Triple{Src: seg.Source, MT: seg.MT}
	if p.config.Mode != scorer.ModeQE {
		t.Ref = seg.Ref
	}
	return t
}

func (p *Pipeline) cacheKey(t scorer.Triple) store.CacheKey {
	return store.CacheKey{
		Model:  p.scorer.Model(),
		Mode:   string(p.config.Mode),
		Source: t.Src,
		MT:     t.MT,
		Ref:    t.Ref,
	}
}

// Run scores every scorable segment. Any batch that fails all attempts fails
// the whole run and no partial result is returned.
func (p *Pipeline) Run(ctx context.Context, segs []internal.Segment) (*Result, error) {
	res := &Result{
		Scores: make([]float64, len(segs)),
		Scored: make([]bool, len(segs)),
	}

	var pending []int
	for i, seg := range segs {
		if !Scorable(seg, p.config.Mode) {
			continue
		}
		if p.cache != nil {
			score, found, err := p.cache.GetCachedScore(ctx, p.cacheKey(p.triple(seg)))
			if err != nil {
				p.log.WithError(err).Warn("score cache lookup failed")
			} else if found {
				res.Scores[i] = score
				res.Scored[i] = true
				res.CacheHits++
				continue
			}
		}
		pending = append(pending, i)
	}
	cacheHitsTotal.Add(float64(res.CacheHits))

	batches := chunk(pending, p.config.BatchSize)
	res.Batches = len(batches)

	p.log.WithFields(logrus.Fields{
		"segments":   len(segs),
		"pending":    len(pending),
		"cache_hits": res.CacheHits,
		"batches":    len(batches),
		"model":      p.scorer.Model(),
	}).Info("scoring segments")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)

	for n, batch := range batches {
		g.Go(func() error {
			triples := make([]scorer.Triple, len(batch))
			for j, idx := range batch {
				triples[j] = p.triple(segs[idx])
			}

			scores, err := p.scoreWithRetry(gctx, n, triples)
			if err != nil {
				return fmt.Errorf("batch %d of %d: %w", n+1, len(batches), err)
			}

			// Each batch owns a disjoint set of indices.
			for j, idx := range batch {
				res.Scores[idx] = scores[j]
				res.Scored[idx] = true
				if p.cache != nil {
					if err := p.cache.SaveScore(gctx, p.cacheKey(triples[j]), scores[j]); err != nil {
						p.log.WithError(err).Warn("failed to cache score")
					}
				}
			}
			segmentsScoredTotal.Add(float64(len(batch)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.Summary = Summarize(res.Scores, res.Scored)
	return res, nil
}

func (p *Pipeline) scoreWithRetry(ctx context.Context, n int, triples []scorer.Triple) ([]float64, error) {
	var lastErr error
	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.config.RetryDelay):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		start := time.Now()
		scores, err := p.scorer.Score(callCtx, triples)
		cancel()
		batchDuration.Observe(time.Since(start).Seconds())

		if err == nil && len(scores) != len(triples) {
			err = fmt.Errorf("scorer returned %d scores for %d segments", len(scores), len(triples))
		}
		if err == nil {
			return scores, nil
		}

		lastErr = err
		batchFailuresTotal.Inc()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.log.WithFields(logrus.Fields{
			"batch":   n + 1,
			"attempt": attempt,
			"of":      p.config.MaxAttempts,
		}).WithError(err).Warn("scoring batch failed")
	}
	return nil, lastErr
}

func chunk(idx []int, size int) [][]int {
	var out [][]int
	for start := 0; start < len(idx); start += size {
		end := start + size
		if end > len(idx) {
			end = len(idx)
		}
		out = append(out, idx[start:end])
	}
	return out
}

// Summarize computes mean, min and max over the scored entries.
func Summarize(scores []float64, scored []bool) Summary {
	var s Summary
	var sum float64
	s.Min = math.Inf(1)
	s.Max = math.Inf(-1)
	for i, v := range scores {
		if !scored[i] {
			continue
		}
		s.Scored++
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	if s.Scored == 0 {
		return Summary{}
	}
	s.Mean = sum / float64(s.Scored)
	return s
}
