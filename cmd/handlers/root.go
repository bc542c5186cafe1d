/*
Copyright © 2025 Your Name

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
package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"genzweekly/internal/config"
	"genzweekly/internal/logger"
	"genzweekly/internal/pipeline"

	"github.com/spf13/cobra"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "genzweekly",
		Short: "Gen Z News Weekly scrapes, ranks and publishes a weekly news edition.",
		Long: `Gen Z News Weekly builds a weekly news edition for a Gen Z audience.

Workflow:
  • Daily: scrape every category's feeds and keep the relevant articles
  • Friday: rank the week's articles and email an approval report
  • After approval: write the newsletter, thread and podcast, then publish

Examples:
  # Scrape today's news
  genzweekly scrape

  # Rank the week and request approval
  genzweekly consolidate

  # Review, approve and publish the latest week
  genzweekly review
  genzweekly approve 2025-W24
  genzweekly publish

  # Serve the archive and approval API
  genzweekly serve --port 8080`,
		SilenceUsage: true,
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.genzweekly.yaml)")

	rootCmd.AddCommand(NewScrapeCmd())
	rootCmd.AddCommand(NewConsolidateCmd())
	rootCmd.AddCommand(NewImportCmd())
	rootCmd.AddCommand(NewApproveCmd())
	rootCmd.AddCommand(NewRejectCmd())
	rootCmd.AddCommand(NewPublishCmd())
	rootCmd.AddCommand(NewReviewCmd())
	rootCmd.AddCommand(NewArchiveCmd())
	rootCmd.AddCommand(NewSourcesCmd())
	rootCmd.AddCommand(NewServeCmd())

	return rootCmd
}

// Execute runs the root command until it finishes or the process is interrupted
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	level := cfg.Logging.Level
	if cfg.App.Debug {
		level = "debug"
	}
	logger.Configure(level, cfg.Logging.Format, os.Stderr)
}

// buildPipeline wires the pipeline from the loaded configuration. The caller
// closes the returned pipeline's store.
func buildPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	p, err := pipeline.NewBuilder(config.Get()).Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	return p, nil
}

func weekArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
