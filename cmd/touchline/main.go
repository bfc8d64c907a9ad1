package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/touchlinehq/touchline/config"
	"github.com/touchlinehq/touchline/internal/feeds"
	"github.com/touchlinehq/touchline/internal/index"
	"github.com/touchlinehq/touchline/internal/ingest"
	"github.com/touchlinehq/touchline/internal/server"
	"github.com/touchlinehq/touchline/provider/openai"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "touchline",
		Short: "Premier League news chat with retrieval-augmented answers",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			return server.Run(cfg)
		},
	}

	var force bool
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch, embed and index the latest news once, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			return runIngest(cmd.Context(), cfg, force)
		},
	}
	ingestCmd.Flags().BoolVar(&force, "force", false, "re-embed articles even if already indexed")

	root.AddCommand(serve, ingestCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runIngest(ctx context.Context, cfg *config.Config, force bool) error {
	idx := index.NewClient(cfg.Index.BaseURL, cfg.Index.Class, cfg.Index.Timeout, cfg.Index.MaxRetries)
	if !idx.Ready(ctx) {
		return fmt.Errorf("vector index at %s is not ready", cfg.Index.BaseURL)
	}
	if err := idx.EnsureSchema(ctx); err != nil {
		return err
	}

	llm := openai.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.CompletionModel,
		cfg.LLM.EmbeddingModel, cfg.LLM.Temperature, cfg.LLM.MaxTokens, cfg.LLM.Timeout)

	dedup := ingest.NewDedupStore()
	dedup.Warm(ctx, idx)

	sources := cfg.Feeds.Sources
	if len(sources) == 0 {
		sources = feeds.DefaultSources
	}
	fetcher := feeds.NewFetcher(sources, cfg.Ingest.SummaryCap, cfg.Feeds.Timeout)

	pipeline := ingest.NewPipeline(fetcher, llm, idx, dedup, nil)
	stats, err := pipeline.Run(ctx, force)
	if err != nil {
		return err
	}
	fmt.Printf("fetched=%d embedded=%d skipped=%d duration=%s\n",
		stats.Fetched, stats.Embedded, stats.Skipped, stats.Duration.Round(time.Millisecond))
	return nil
}
