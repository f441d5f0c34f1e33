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
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/xliffqe/internal/detector"
	"github.com/valpere/xliffqe/internal/evaluator"
	"github.com/valpere/xliffqe/internal/server"
	"github.com/valpere/xliffqe/internal/xliff"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the upload server",
	Long: `Serve evaluations over HTTP.

Routes:
  POST /api/evaluate   multipart "file" (+ optional "mode", "batch_size"),
                       responds with the scored workbook
  POST /api/extract    multipart "file", responds with JSON records
  GET  /api/runs       recent runs (needs the database)
  GET  /healthz        liveness and COMET availability
  GET  /metrics        Prometheus metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := currentMode()
		if err != nil {
			return err
		}
		policy, err := xliff.ParseMissingMTPolicy(viper.GetString("missing_mt"))
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

		checkLang := viper.GetBool("check_lang")
		var det *detector.Detector
		if checkLang {
			det = detector.New()
		}

		factory := func(req server.Request) (*evaluator.Evaluator, error) {
			opts := evalOptions{
				Mode:      mode,
				BatchSize: req.BatchSize,
				MissingMT: policy,
				CheckLang: checkLang,
			}
			if req.Mode != "" {
				opts.Mode = req.Mode
			}
			return newEvaluator(opts, db, nil, det, log), nil
		}

		srv := server.New(factory, buildScorer(mode, 0), db, log, server.Config{
			Addr:           viper.GetString("server.addr"),
			MaxUploadBytes: viper.GetInt64("server.max_upload_bytes"),
			APIKey:         viper.GetString("server.api_key"),
			RequestTimeout: viper.GetDuration("server.request_timeout"),
		})
		return srv.ListenAndServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "Listen address")
	serveCmd.Flags().String("api-key", "", "Require this bearer token on /api routes")
	serveCmd.Flags().Int64("max-upload", 50<<20, "Maximum upload size in bytes")
	serveCmd.Flags().String("missing-mt", "drop", "Units without MT: keep (blank score) or drop")
	serveCmd.Flags().Bool("check-lang", false, "Flag references not written in the target language")

	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("server.api_key", serveCmd.Flags().Lookup("api-key"))
	viper.BindPFlag("server.max_upload_bytes", serveCmd.Flags().Lookup("max-upload"))
	viper.BindPFlag("missing_mt", serveCmd.Flags().Lookup("missing-mt"))
	viper.BindPFlag("check_lang", serveCmd.Flags().Lookup("check-lang"))
}
