package main

import (
	"fmt"
	"time"

	"github.com/paperline/paperline/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	updateMode   string
	updateTarget int
	updateSource string
)

func init() {
	updateCmd.Flags().StringVar(&updateMode, "mode", "all", "Stage to run: fetch, embed, or all")
	updateCmd.Flags().IntVar(&updateTarget, "target", -1, "New-record quota for the fetch stage (-1 for unlimited)")
	updateCmd.Flags().StringVar(&updateSource, "source", "", "CSV file to embed (default: the latest incremental batch)")
	rootCmd.AddCommand(updateCmd)
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fetch and index records newer than the corpus holds",
	Long: `Update crawls from the present down to just above the newest record
already held, writes anything new into a fresh timestamped batch file
under incremental/, and embeds that batch into the vector index.

Requires an initialized corpus; run 'paperline build' first.

Examples:
  paperline update
  paperline update --mode fetch
  paperline update --mode embed --source data/incremental/20260823_120000.csv`,
	Args: cobra.NoArgs,
	RunE: runUpdate,
}

func runUpdate(cmd *cobra.Command, args []string) error {
	if err := validateMode(updateMode); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	cfg := mustLoadConfig()
	idx := mustOpenIndex(cfg)
	defer idx.Close()

	provider := newProvider(cfg)
	bridge := newBridge(cfg, provider)
	builder := newBuilder(cfg, idx, bridge)

	started := time.Now()
	var resp RunResponse
	embedSource := updateSource

	if updateMode == "fetch" || updateMode == "all" {
		reporter, finish := fetchProgress()
		sess, batchPath, err := builder.UpdateFetch(cmd.Context(), pipeline.FetchOptions{
			Categories:         cfg.Fetch.Categories,
			Target:             updateTarget,
			BatchSize:          cfg.Fetch.BatchSize,
			PollInterval:       cfg.PollInterval(),
			NearFloorThreshold: cfg.NearFloorThreshold(),
			Progress:           reporter,
		})
		finish()
		if err != nil {
			exitWithError(exitCodeFor(err), "fetch stage: %v", err)
		}

		sr := sessionResponse(sess, batchPath)
		resp.Fetch = &sr
		if humanOutput {
			printSessionHuman(sess, batchPath)
		}

		// Nothing new means nothing to embed.
		if updateMode == "all" && sess.NewCount == 0 {
			if humanOutput {
				fmt.Println("Corpus is already up to date")
				return nil
			}
			return outputJSON(resp)
		}
		if embedSource == "" {
			embedSource = batchPath
		}
	}

	if updateMode == "embed" || updateMode == "all" {
		mustValidateOllama(cmd.Context(), provider)

		summary, err := builder.UpdateEmbed(cmd.Context(), pipeline.EmbedOptions{
			Source:   embedSource,
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
