package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/paperline/paperline/internal/fetch"
	"github.com/paperline/paperline/internal/pipeline"
	"github.com/paperline/paperline/internal/search"
)

// Title truncation length for human-readable search results.
const searchTitleMaxLen = 70

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SessionResponse is the JSON shape of a fetch stage result.
type SessionResponse struct {
	NewCount     int    `json:"new_count"`
	SkippedCount int    `json:"skipped_count"`
	FetchedCount int    `json:"fetched_count"`
	Batches      int    `json:"batches"`
	StopReason   string `json:"stop_reason"`
	BatchPath    string `json:"batch_path,omitempty"`
}

func sessionResponse(sess *fetch.Session, batchPath string) SessionResponse {
	return SessionResponse{
		NewCount:     sess.NewCount,
		SkippedCount: sess.SkippedCount,
		FetchedCount: sess.FetchedCount,
		Batches:      sess.Batches,
		StopReason:   sess.StopReason.String(),
		BatchPath:    batchPath,
	}
}

// RunResponse combines the fetch and embed stage results of one run.
type RunResponse struct {
	Fetch *SessionResponse       `json:"fetch,omitempty"`
	Embed *pipeline.EmbedSummary `json:"embed,omitempty"`
}

// printSessionHuman prints a fetch stage summary in human-readable form.
func printSessionHuman(sess *fetch.Session, batchPath string) {
	fmt.Printf("Fetched %d records in %d batches: %d new, %d already known (stop: %s)\n",
		sess.FetchedCount, sess.Batches, sess.NewCount, sess.SkippedCount, sess.StopReason)
	if batchPath != "" && sess.NewCount > 0 {
		fmt.Printf("Batch written to %s\n", batchPath)
	}
}

// printEmbedHuman prints an embed stage summary in human-readable form.
func printEmbedHuman(summary *pipeline.EmbedSummary) {
	fmt.Printf("Embedded %d of %d records from %s (%d already indexed)\n",
		summary.Embedded, summary.Records, summary.Source, summary.Skipped)
	if summary.Embedded > 0 {
		fmt.Printf("Model %s, %d dimensions\n", summary.Model, summary.Dimensions)
	}
}

// printSearchResultsHuman prints ranked search results.
func printSearchResultsHuman(results []search.Result) {
	if len(results) == 0 {
		fmt.Println("No results found")
		return
	}
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s\n", i+1, r.Score, r.ID)
		fmt.Printf("   %s\n", truncateString(r.Title, searchTitleMaxLen))
		fmt.Printf("   %s (%s)\n", formatAuthorsShort(r.Authors, 3), r.Published.Format("2006-01-02"))
		fmt.Printf("   title %.3f / abstract %.3f\n\n", r.TitleSimilarity, r.AbstractSimilarity)
	}
}

// printStatsHuman prints corpus and index stats.
func printStatsHuman(stats *pipeline.Stats) {
	fmt.Printf("Initial store:  %d records\n", stats.InitRecords)
	fmt.Printf("Incremental:    %d records across %d batches\n", stats.BatchRecords, stats.BatchFiles)
	fmt.Printf("Index:          %d records (%d documents)\n", stats.IndexedRecords, stats.IndexDocuments)
	if stats.IndexModel != "" {
		fmt.Printf("Model:          %s (%d dimensions)\n", stats.IndexModel, stats.IndexDimensions)
	}
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// formatAuthorsShort formats authors with "et al." past maxCount.
func formatAuthorsShort(authors []string, maxCount int) string {
	if len(authors) == 0 {
		return "unknown"
	}

	var names []string
	for i, a := range authors {
		if i >= maxCount {
			names = append(names, "et al.")
			break
		}
		names = append(names, a)
	}
	return strings.Join(names, ", ")
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
