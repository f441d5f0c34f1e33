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
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/valpere/xliffqe/internal"
	"github.com/valpere/xliffqe/internal/xliff"
)

var (
	extractOutput    string
	extractMissingMT string
)

type extractOutputJSON struct {
	File           string             `json:"file"`
	SourceLanguage string             `json:"source_language,omitempty"`
	TargetLanguage string             `json:"target_language,omitempty"`
	Stats          *xliff.Stats       `json:"stats,omitempty"`
	Segments       []internal.Segment `json:"segments"`
}

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Print the (source, mt, ref) records of an input file as JSON",
	Long: `Run only the extraction step and print the records as JSON.

Useful to check which units of a memoQ export will be scored before
sending anything to the COMET server. Nothing is scored or cached.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := currentMode()
		if err != nil {
			return err
		}
		policy, err := xliff.ParseMissingMTPolicy(extractMissingMT)
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		defer f.Close()

		ev := newEvaluator(evalOptions{Mode: mode, MissingMT: policy}, nil, nil, nil, logrus.StandardLogger())
		in, _, err := ev.Load(context.Background(), f, args[0])
		if err != nil {
			return err
		}
		if warn := in.Warning(); warn != nil {
			logrus.WithError(warn).Warn("nothing to evaluate")
		}

		out := extractOutputJSON{
			File:           args[0],
			SourceLanguage: in.SourceLang,
			TargetLanguage: in.TargetLang,
			Stats:          in.Stats,
			Segments:       in.Segments,
		}
		if out.Segments == nil {
			out.Segments = []internal.Segment{}
		}

		var w io.Writer = os.Stdout
		if extractOutput != "" && extractOutput != "-" {
			if err := ensureDir(extractOutput); err != nil {
				return err
			}
			file, err := os.Create(extractOutput)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer file.Close()
			w = file
		}

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "Output JSON file (default stdout)")
	extractCmd.Flags().StringVar(&extractMissingMT, "missing-mt", "keep", "Units without MT: keep or drop")
}
