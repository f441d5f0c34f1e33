/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/valpere/xliffqe/internal/detector"
	"github.com/valpere/xliffqe/internal/evaluator"
	"github.com/valpere/xliffqe/internal/mtengine"
	"github.com/valpere/xliffqe/internal/pipeline"
	"github.com/valpere/xliffqe/internal/scorer"
	"github.com/valpere/xliffqe/internal/store"
	"github.com/valpere/xliffqe/internal/xliff"
)

// evalOptions are the per-run knobs shared by score and serve.
type evalOptions struct {
	Mode       scorer.Mode
	BatchSize  int
	MissingMT  xliff.MissingMTPolicy
	Backfill   string
	CheckLang  bool
	SourceLang string
	TargetLang string
}

func currentMode() (scorer.Mode, error) {
	return scorer.ParseMode(viper.GetString("mode"))
}

// buildScorer creates a COMET client. An explicit model wins over the
// mode's default model.
func buildScorer(mode scorer.Mode, batchSize int) *scorer.CometClient {
	model := strings.TrimSpace(viper.GetString("scorer.model"))
	switch model {
	case "":
		model = mode.DefaultModel()
	case "small":
		model = scorer.SmallReferenceModel
	}
	if batchSize <= 0 {
		batchSize = viper.GetInt("scorer.batch_size")
	}

	return scorer.NewCometClient(scorer.Config{
		ModelName:  model,
		Credential: viper.GetString("scorer.credential"),
		BatchSize:  batchSize,
		BaseURL:    viper.GetString("scorer.base_url"),
		Timeout:    viper.GetDuration("scorer.timeout"),
		GPUs:       viper.GetInt("scorer.gpus"),
	})
}

func dbPath() string {
	return viper.GetString("db")
}

// openStore returns nil when the cache is disabled.
func openStore() (*store.Store, error) {
	if viper.GetBool("no_cache") || dbPath() == "" {
		return nil, nil
	}
	if err := ensureDir(dbPath()); err != nil {
		return nil, err
	}
	db, err := store.New(dbPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func buildEngine(ctx context.Context, name string) (mtengine.Engine, error) {
	if name == "" {
		return nil, nil
	}
	return mtengine.New(ctx, name, mtengine.Config{
		CredentialsFile: viper.GetString("backfill.credentials_file"),
		APIKey:          viper.GetString("backfill.api_key"),
		Email:           viper.GetString("backfill.email"),
		BaseURL:         viper.GetString("backfill.base_url"),
	})
}

func pipelineConfig(batchSize int) pipeline.Config {
	if batchSize <= 0 {
		batchSize = viper.GetInt("scorer.batch_size")
	}
	return pipeline.Config{
		BatchSize:   batchSize,
		Concurrency: viper.GetInt("pipeline.concurrency"),
		MaxAttempts: viper.GetInt("pipeline.max_retries"),
		RetryDelay:  viper.GetDuration("pipeline.retry_delay"),
		Timeout:     viper.GetDuration("scorer.timeout"),
	}
}

// newEvaluator wires an evaluator from the options. engine and det may be
// nil; det is shared so the lingua model is built once per process.
func newEvaluator(opts evalOptions, db *store.Store, engine mtengine.Engine, det *detector.Detector, log logrus.FieldLogger) *evaluator.Evaluator {
	sc := buildScorer(opts.Mode, opts.BatchSize)

	cfg := evaluator.Config{
		Mode:       opts.Mode,
		MissingMT:  opts.MissingMT,
		Pipeline:   pipelineConfig(opts.BatchSize),
		CheckLang:  opts.CheckLang,
		SourceLang: opts.SourceLang,
		TargetLang: opts.TargetLang,
	}

	var evOpts []evaluator.Option
	if db != nil {
		evOpts = append(evOpts, evaluator.WithStore(db))
	}
	if engine != nil {
		evOpts = append(evOpts, evaluator.WithBackfill(engine))
	}
	if det != nil {
		evOpts = append(evOpts, evaluator.WithDetector(det))
	}
	return evaluator.New(sc, cfg, log, evOpts...)
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return nil
}
