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
	"database/sql"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/xliffqe/internal/store"
)

var (
	runsLimit    int
	runsSegments bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the evaluation run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent evaluation runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), runsLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tSTATUS\tMODE\tPAIR\tSCORED\tMEAN\tINPUT")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s→%s\t%d/%d\t%s\t%s\n",
				r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.Status, r.Mode,
				r.SourceLang, r.TargetLang, r.Scored, r.Segments, formatScore(r.MeanScore), r.InputFile)
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run, optionally with its segments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		r, err := db.GetRun(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Run:       %s\n", r.ID)
		fmt.Printf("Created:   %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Status:    %s\n", r.Status)
		if r.Error != "" {
			fmt.Printf("Error:     %s\n", r.Error)
		}
		fmt.Printf("Input:     %s\n", r.InputFile)
		fmt.Printf("Output:    %s\n", r.OutputFile)
		fmt.Printf("Model:     %s (%s)\n", r.Model, r.Mode)
		fmt.Printf("Languages: %s → %s\n", r.SourceLang, r.TargetLang)
		fmt.Printf("Scored:    %d/%d\n", r.Scored, r.Segments)
		fmt.Printf("Mean:      %s\n", formatScore(r.MeanScore))
		fmt.Printf("Range:     %s - %s\n", formatScore(r.MinScore), formatScore(r.MaxScore))

		if !runsSegments {
			return nil
		}

		segs, err := db.GetRunSegments(ctx, r.ID)
		if err != nil {
			return fmt.Errorf("failed to load segments: %w", err)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\n#\tSCORE\tSOURCE\tMT")
		for _, s := range segs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Index+1, formatScore(s.Score), snippet(s.Source, 40), snippet(s.MT, 40))
		}
		return w.Flush()
	},
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize all recorded runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), 0)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}

		byStatus := map[string]int{}
		var segments, scored int
		var weighted float64
		for _, r := range runs {
			byStatus[r.Status]++
			if r.Status != "completed" {
				continue
			}
			segments += r.Segments
			scored += r.Scored
			if r.MeanScore.Valid {
				weighted += r.MeanScore.Float64 * float64(r.Scored)
			}
		}

		fmt.Printf("Runs:            %d\n", len(runs))
		fmt.Printf("  completed:     %d\n", byStatus["completed"])
		fmt.Printf("  failed:        %d\n", byStatus["failed"])
		fmt.Printf("  running:       %d\n", byStatus["running"])
		fmt.Printf("Segments:        %d\n", segments)
		fmt.Printf("Scored:          %d\n", scored)
		if scored > 0 {
			fmt.Printf("Mean score:      %.4f\n", weighted/float64(scored))
		}
		return nil
	},
}

// openHistory opens the database even when --no-cache is set; reading the
// history is always allowed.
func openHistory() (*store.Store, error) {
	db, err := store.New(dbPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func formatScore(v sql.NullFloat64) string {
	if !v.Valid {
		return "-"
	}
	return fmt.Sprintf("%.4f", v.Float64)
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to list (0 = all)")
	runsShowCmd.Flags().BoolVar(&runsSegments, "segments", false, "Also print every segment with its score")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
}
