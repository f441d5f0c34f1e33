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
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/xliffqe/internal/detector"
	"github.com/valpere/xliffqe/internal/evaluator"
	"github.com/valpere/xliffqe/internal/report"
	"github.com/valpere/xliffqe/internal/scorer"
	"github.com/valpere/xliffqe/internal/xliff"
)

var (
	scoreOutput     string
	scoreOutputDir  string
	scoreMissingMT  string
	scoreBackfill   string
	scoreCheckLang  bool
	scoreSourceLang string
	scoreTargetLang string
	scoreByProvider bool
)

var scoreCmd = &cobra.Command{
	Use:   "score <file>...",
	Short: "Score MT segments of XLIFF or spreadsheet files with COMET",
	Long: `Score every input file and write one report per file.

Inputs:
  .mqxliff .xliff .xlf   memoQ XLIFF; manually confirmed units only
  .xlsx .csv             header row with source, mt and (reference mode) ref

Reports are written next to each input as <name>_comet_scores.xlsx
(<name>_comet_qe_scores.xlsx in qe mode) unless --output or --output-dir
is given. A .csv output name writes CSV instead of XLSX.

Units without an MT candidate are dropped by default; --missing-mt keep
lists them with a blank score, --backfill-mt translates them first.

Example:
  xliffqe score job.mqxliff
  xliffqe score -m qe --batch-size 4 a.xlsx b.xlsx --output-dir out/`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if scoreOutput != "" && len(args) > 1 {
			return fmt.Errorf("--output can only be used with a single input file")
		}

		mode, err := currentMode()
		if err != nil {
			return err
		}
		policy, err := xliff.ParseMissingMTPolicy(scoreMissingMT)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log := logrus.StandardLogger()

		db, err := openStore()
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		engineName := scoreBackfill
		if engineName == "" {
			engineName = viper.GetString("backfill.engine")
		}
		engine, err := buildEngine(ctx, engineName)
		if err != nil {
			return err
		}
		if engine != nil {
			defer engine.Close()
		}

		var det *detector.Detector
		if scoreCheckLang || engine != nil {
			det = detector.New()
		}

		opts := evalOptions{
			Mode:       mode,
			MissingMT:  policy,
			CheckLang:  scoreCheckLang,
			SourceLang: scoreSourceLang,
			TargetLang: scoreTargetLang,
		}
		ev := newEvaluator(opts, db, engine, det, log)

		if err := buildScorer(mode, 0).IsAvailable(ctx); err != nil {
			log.WithError(err).Warn("COMET server health check failed; cached scores only")
		}

		failed := 0
		for _, input := range args {
			if err := scoreFile(ctx, ev, input, mode); err != nil {
				log.WithError(err).WithField("file", input).Error("failed to score file")
				failed++
				if ctx.Err() != nil {
					break
				}
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(args))
		}
		return nil
	},
}

func scoreFile(ctx context.Context, ev *evaluator.Evaluator, input string, mode scorer.Mode) error {
	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	defer f.Close()

	output := outputPath(input, mode)
	if filepath.Clean(output) == filepath.Clean(input) {
		return fmt.Errorf("input file and output file cannot be the same")
	}

	out, err := ev.Evaluate(ctx, f, input, output)
	if err != nil {
		return err
	}

	if err := report.WriteFile(output, out.Sheet); err != nil {
		return err
	}

	printSummary(input, output, out)
	return nil
}

func outputPath(input string, mode scorer.Mode) string {
	if scoreOutput != "" {
		return scoreOutput
	}
	name := report.OutputName(input, mode)
	dir := scoreOutputDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, name)
}

func printSummary(input, output string, out *evaluator.Outcome) {
	fmt.Printf("%s → %s\n", input, output)
	if out.Warning != nil {
		fmt.Printf("  Nothing to evaluate: %v\n", out.Warning)
		return
	}

	if st := out.Input.Stats; st != nil {
		fmt.Printf("  Units: %d, extracted: %d, not confirmed: %d, empty: %d, without MT: %d (dropped %d)\n",
			st.Units, st.Extracted, st.SkippedStatus, st.SkippedEmpty, st.MissingMT, st.DroppedMissingMT)
	}
	if out.Backfilled > 0 {
		fmt.Printf("  Backfilled MT: %d\n", out.Backfilled)
	}
	if out.LangMismatches > 0 {
		fmt.Printf("  References in the wrong language: %d\n", out.LangMismatches)
	}

	sum := out.Result.Summary
	fmt.Printf("  Scored: %d/%d (cache hits: %d)\n", sum.Scored, len(out.Input.Segments), out.Result.CacheHits)
	if sum.Scored > 0 {
		fmt.Printf("  Score range: %.4f - %.4f\n", sum.Min, sum.Max)
		fmt.Printf("  Average score: %.4f\n", sum.Mean)
	}
	if out.RunID != "" {
		fmt.Printf("  Run ID: %s\n", out.RunID)
	}

	if scoreByProvider && len(out.Providers) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  PROVIDER\tSCORED\tMEAN\tMIN\tMAX")
		for _, p := range out.Providers {
			fmt.Fprintf(w, "  %s\t%d\t%.4f\t%.4f\t%.4f\n", p.Provider, p.Scored, p.Mean, p.Min, p.Max)
		}
		w.Flush()
	}
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringVarP(&scoreOutput, "output", "o", "", "Output file (.xlsx or .csv); single input only")
	scoreCmd.Flags().StringVar(&scoreOutputDir, "output-dir", "", "Directory for reports (default: next to each input)")
	scoreCmd.Flags().StringVar(&scoreMissingMT, "missing-mt", "drop", "Units without MT: keep (blank score) or drop")
	scoreCmd.Flags().StringVar(&scoreBackfill, "backfill-mt", "", "Translate units without MT first: google or mymemory")
	scoreCmd.Flags().BoolVar(&scoreCheckLang, "check-lang", false, "Flag references not written in the target language")
	scoreCmd.Flags().StringVarP(&scoreSourceLang, "source", "s", "", "Source language override")
	scoreCmd.Flags().StringVarP(&scoreTargetLang, "target", "t", "", "Target language override")
	scoreCmd.Flags().BoolVar(&scoreByProvider, "by-provider", false, "Print a per-MT-provider breakdown")
}
