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
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "0.1.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "xliffqe",
	Short: "COMET quality scores for memoQ XLIFF and spreadsheet MT evaluations",
	Long: `Reads memoQ XLIFF files (or spreadsheets with source/mt/ref columns),
recovers the machine translation behind every manually confirmed segment,
scores it with a COMET server and writes the scores to a spreadsheet.

Modes:
  reference   COMET-DA, compares MT against the confirmed translation
  qe          CometKiwi, reference-free quality estimation

Use "xliffqe score --help" for scoring options.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(cmd)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default ./xliffqe.yaml)")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "text", "Log format: text or json")
	pf.String("db", "./data/xliffqe.db", "Database path for the score cache and run history")
	pf.Bool("no-cache", false, "Disable the score cache and run history")

	pf.String("comet-url", "http://localhost:8765", "COMET server base URL")
	pf.String("model", "", "COMET model (default depends on --mode; \"small\" selects wmt20-comet-da)")
	pf.StringP("mode", "m", "reference", "Evaluation mode: reference or qe")
	pf.Int("batch-size", 8, "Segments per scoring request")
	pf.Int("gpus", 0, "GPUs the COMET server should use")
	pf.Duration("timeout", 0, "Timeout per scoring request (default 10m)")
	pf.Int("concurrency", 1, "Scoring requests in flight")
	pf.Int("max-retries", 3, "Total attempts per batch including the first (1 = no retries)")
	pf.Duration("retry-delay", 0, "Delay between attempts (default 2s)")

	bind := map[string]string{
		"log.level":            "log-level",
		"log.format":           "log-format",
		"db":                   "db",
		"no_cache":             "no-cache",
		"scorer.base_url":      "comet-url",
		"scorer.model":         "model",
		"mode":                 "mode",
		"scorer.batch_size":    "batch-size",
		"scorer.gpus":          "gpus",
		"scorer.timeout":       "timeout",
		"pipeline.concurrency": "concurrency",
		"pipeline.max_retries": "max-retries",
		"pipeline.retry_delay": "retry-delay",
	}
	for key, flag := range bind {
		viper.BindPFlag(key, pf.Lookup(flag))
	}
}

// initConfig loads .env, then the config file, then XLIFFQE_* variables.
// HF_TOKEN is accepted for the scorer credential, as the COMET tooling does.
func initConfig() {
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("xliffqe")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.config/xliffqe")
		}
	}

	viper.SetEnvPrefix("XLIFFQE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	viper.BindEnv("scorer.credential", "XLIFFQE_SCORER_CREDENTIAL", "HF_TOKEN")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Warning: failed to read config: %v\n", err)
		}
	}
}

func setupLogging(cmd *cobra.Command) error {
	level, err := logrus.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)

	format := viper.GetString("log.format")
	if cmd.Name() == "serve" && !cmd.Flags().Changed("log-format") && !viper.IsSet("log.format") {
		format = "json"
	}
	switch format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}
