package main

import (
	"fmt"
	"time"

	"github.com/paperline/paperline/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	buildMode   string
	buildTarget int
)

func init() {
	buildCmd.Flags().StringVar(&buildMode, "mode", "all", "Stage to run: fetch, embed, or all")
	buildCmd.Flags().IntVar(&buildTarget, "target", 0, "New-record quota for the fetch stage (overrides config; -1 for unlimited)")
	rootCmd.AddCommand(buildCmd)
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the initial corpus and vector index",
	Long: `Build fills the initial store by crawling backwards from the present
toward the lookback floor, then embeds every stored record into the
vector index.

An interrupted build resumes where it left off: the fetch stage continues
below the earliest record already held, and the embed stage skips records
already indexed.

Examples:
  paperline build
  paperline build --mode fetch --target 500
  paperline build --mode embed`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func runBuild(cmd *cobra.Command, args []string) error {
	if err := validateMode(buildMode); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	cfg := mustLoadConfig()
	idx := mustOpenIndex(cfg)
	defer idx.Close()

	provider := newProvider(cfg)
	bridge := newBridge(cfg, provider)
	builder := newBuilder(cfg, idx, bridge)

	target := cfg.Fetch.MaxResults
	if cmd.Flags().Changed("target") {
		target = buildTarget
	}

	started := time.Now()
	var resp RunResponse

	if buildMode == "fetch" || buildMode == "all" {
		reporter, finish := fetchProgress()
		sess, err := builder.BuildFetch(cmd.Context(), pipeline.FetchOptions{
			Categories:         cfg.Fetch.Categories,
			Floor:              cfg.Floor(time.Now()),
			Target:             target,
			BatchSize:          cfg.Fetch.BatchSize,
			PollInterval:       cfg.PollInterval(),
			NearFloorThreshold: cfg.NearFloorThreshold(),
			Progress:           reporter,
		})
		finish()
		if err != nil {
			if sess != nil && humanOutput {
				printSessionHuman(sess, "")
			}
			exitWithError(exitCodeFor(err), "fetch stage: %v", err)
		}

		sr := sessionResponse(sess, "")
		resp.Fetch = &sr
		if humanOutput {
			printSessionHuman(sess, "")
		}
	}

	if buildMode == "embed" || buildMode == "all" {
		mustValidateOllama(cmd.Context(), provider)

		summary, err := builder.BuildEmbed(cmd.Context(), pipeline.EmbedOptions{
			Progress: embedProgress(),
		})
		if err != nil {
			exitWithError(exitCodeFor(err), "embed stage: %v", err)
		}

		resp.Embed = summary
		if humanOutput {
			printEmbedHuman(summary)
		}
	}

	if humanOutput {
		fmt.Printf("Done in %s\n", formatDuration(time.Since(started)))
		return nil
	}
	return outputJSON(resp)
}

func validateMode(mode string) error {
	switch mode {
	case "fetch", "embed", "all":
		return nil
	}
	return fmt.Errorf("invalid mode %q (expected fetch, embed, or all)", mode)
}
