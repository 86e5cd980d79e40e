package main

import (
	"errors"

	"github.com/paperline/paperline/internal/search"
	"github.com/spf13/cobra"
)

var (
	searchTopK           int
	searchTitleWeight    float32
	searchAbstractWeight float32
)

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "Number of results to return (default from config)")
	searchCmd.Flags().Float32Var(&searchTitleWeight, "title-weight", 0, "Weight of the title similarity (default from config)")
	searchCmd.Flags().Float32Var(&searchAbstractWeight, "abstract-weight", 0, "Weight of the abstract similarity (default from config)")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over the indexed corpus",
	Long: `Search embeds the query once and ranks records by a weighted blend
of title and abstract similarity. Weights apply at query time, so the
same index serves any weighting.

Examples:
  paperline search "contrastive pretraining for retrieval"
  paperline search "diffusion models" -k 20
  paperline search "prompt injection" --title-weight 0.8 --abstract-weight 0.2`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	idx := mustOpenIndex(cfg)
	defer idx.Close()

	provider := newProvider(cfg)
	mustValidateOllama(cmd.Context(), provider)
	bridge := newBridge(cfg, provider)
	searcher := newSearcher(cfg, idx, bridge)

	topK := searchTopK
	if topK == 0 {
		topK = cfg.Search.DefaultTopK
	}
	titleWeight := cfg.Search.TitleWeight
	if cmd.Flags().Changed("title-weight") {
		titleWeight = searchTitleWeight
	}
	abstractWeight := cfg.Search.AbstractWeight
	if cmd.Flags().Changed("abstract-weight") {
		abstractWeight = searchAbstractWeight
	}

	results, err := searcher.Search(cmd.Context(), args[0], topK, titleWeight, abstractWeight)
	if err != nil {
		if errors.Is(err, search.ErrEmptyQuery) {
			exitWithError(ExitError, "query must not be empty")
		}
		exitWithError(ExitError, "searching: %v", err)
	}

	// Empty result is not an error
	if results == nil {
		results = []search.Result{}
	}

	if humanOutput {
		printSearchResultsHuman(results)
		return nil
	}
	return outputJSON(results)
}
