// Package main provides the paperline CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/paperline/paperline/internal/catalog"
	"github.com/paperline/paperline/internal/config"
	"github.com/paperline/paperline/internal/embedding"
	"github.com/paperline/paperline/internal/fetch"
	"github.com/paperline/paperline/internal/pipeline"
	"github.com/paperline/paperline/internal/search"
	"github.com/paperline/paperline/internal/vecindex"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

// configPath is the explicit config file path; empty falls back to
// paperline.yml in the working directory.
var configPath string

func main() {
	// A .env file may supply PAPERLINE_* overrides; missing is fine.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "paperline",
	Short: "Incremental arXiv harvester with semantic search",
	Long: `paperline harvests arXiv metadata incrementally and serves semantic
search over it.

Core features:
  - Windowed incremental fetch with deduplication against local CSV stores
  - Update runs that collect only records newer than anything already held
  - Dual-field embeddings (title and abstract) via a local Ollama service
  - Weighted semantic search fusing both fields at query time

All commands output JSON by default for agent integration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default paperline.yml)")
	rootCmd.Version = Version
}

// mustLoadConfig loads configuration, exits on error.
func mustLoadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	return cfg
}

// mustOpenIndex opens the vector index database, exits on error.
// The caller is responsible for calling Close() on the returned index.
func mustOpenIndex(cfg *config.Config) *vecindex.SQLiteIndex {
	idx, err := vecindex.OpenSQLite(cfg.IndexPath())
	if err != nil {
		exitWithError(ExitError, "opening index: %v", err)
	}
	return idx
}

// newProvider builds the Ollama embedding provider from config.
func newProvider(cfg *config.Config) *embedding.OllamaProvider {
	return embedding.NewOllamaProvider(
		embedding.WithBaseURL(cfg.Embedding.BaseURL),
		embedding.WithModel(cfg.Embedding.Model),
		embedding.WithDimensions(cfg.Embedding.Dimensions),
		embedding.WithTimeout(cfg.EmbeddingTimeout()),
	)
}

// newBridge wraps a provider with the configured batch ceiling.
func newBridge(cfg *config.Config, provider embedding.Provider) *embedding.Bridge {
	return embedding.NewBridge(provider, cfg.Embedding.BatchSize)
}

// newFetcher builds the windowed fetcher over the arXiv catalog client.
func newFetcher(cfg *config.Config) *fetch.Fetcher {
	return fetch.NewFetcher(
		catalog.NewClient(),
		fetch.WithRetryPolicy(cfg.Fetch.RetryMaxAttempts, cfg.RetryBaseSleep()),
	)
}

// newBuilder wires the full pipeline from config.
func newBuilder(cfg *config.Config, index pipeline.VectorIndex, bridge *embedding.Bridge) *pipeline.Builder {
	return pipeline.NewBuilder(cfg.Data.Root, newFetcher(cfg), bridge, index)
}

// newSearcher wires the searcher from config.
func newSearcher(cfg *config.Config, index vecindex.Index, bridge *embedding.Bridge) *search.Searcher {
	return search.NewSearcher(index, bridge,
		search.WithOversample(cfg.Search.Oversample),
		search.WithMaxTopK(cfg.Search.MaxTopK),
	)
}

// mustValidateOllama checks that the embedding service is reachable.
func mustValidateOllama(ctx context.Context, provider *embedding.OllamaProvider) {
	if err := provider.IsAvailable(ctx); err != nil {
		exitWithError(ExitDataError, "Ollama is not running\n\nStart Ollama with 'ollama serve' or install from https://ollama.ai")
	}
}

// exitCodeFor maps pipeline errors onto exit codes.
func exitCodeFor(err error) int {
	if errors.Is(err, pipeline.ErrNotInitialized) {
		return ExitConfigError
	}
	return ExitError
}
