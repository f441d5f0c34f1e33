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

	"github.com/spf13/cobra"
)

var cacheModel string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the COMET score cache",
	Long:  `Inspect and clear the SQLite cache of previously computed scores.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show score cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.CacheStats(context.Background())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Printf("Cached scores: %d\n", stats.TotalEntries)
		fmt.Printf("Models:        %d\n", stats.Models)
		fmt.Printf("Total usage:   %d\n", stats.TotalUsage)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached scores",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.ClearCache(context.Background(), cacheModel)
		if err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		if cacheModel != "" {
			fmt.Printf("Cleared %d cached scores for %s.\n", n, cacheModel)
			return nil
		}
		fmt.Printf("Cleared %d cached scores.\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)

	cacheClearCmd.Flags().StringVar(&cacheModel, "model", "", "Only clear scores of this model")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
