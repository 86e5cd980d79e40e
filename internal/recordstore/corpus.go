package recordstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	// InitFileName is the initial store written by build runs.
	InitFileName = "init_data.csv"

	// IncrementalDirName holds timestamped batch files from update runs.
	IncrementalDirName = "incremental"

	// batchTimeLayout names incremental batch files by fetch time.
	batchTimeLayout = "20060102_150405"
)

// InitPath returns the path of the initial store under a corpus root.
func InitPath(root string) string {
	return filepath.Join(root, InitFileName)
}

// IncrementalDir returns the incremental batch directory under a corpus root.
func IncrementalDir(root string) string {
	return filepath.Join(root, IncrementalDirName)
}

// NewBatchPath returns a fresh timestamped batch path for an update run.
func NewBatchPath(root string, now time.Time) string {
	return filepath.Join(IncrementalDir(root), now.UTC().Format(batchTimeLayout)+".csv")
}

// ListBatches returns all incremental batch paths, newest first.
func ListBatches(root string) ([]string, error) {
	entries, err := os.ReadDir(IncrementalDir(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading incremental directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".csv" {
			continue
		}
		paths = append(paths, filepath.Join(IncrementalDir(root), entry.Name()))
	}

	// Batch names are timestamps, so lexical order is chronological.
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	return paths, nil
}

// LatestBatch returns the most recent incremental batch path.
// The boolean is false when no batches exist.
func LatestBatch(root string) (string, bool, error) {
	paths, err := ListBatches(root)
	if err != nil {
		return "", false, err
	}
	if len(paths) == 0 {
		return "", false, nil
	}
	return paths[0], true, nil
}

// KnownIDs returns the union of identifiers across the initial store and
// every incremental batch.
func KnownIDs(root string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})

	paths := []string{InitPath(root)}
	batches, err := ListBatches(root)
	if err != nil {
		return nil, err
	}
	paths = append(paths, batches...)

	for _, path := range paths {
		records, err := readAll(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		for _, rec := range records {
			ids[rec.ID] = struct{}{}
		}
	}

	return ids, nil
}

// MaxPublishedAll returns the latest published timestamp across the initial
// store and every incremental batch. The boolean is false when the corpus
// holds no records at all.
func MaxPublishedAll(root string) (time.Time, bool, error) {
	var max time.Time

	paths := []string{InitPath(root)}
	batches, err := ListBatches(root)
	if err != nil {
		return time.Time{}, false, err
	}
	paths = append(paths, batches...)

	for _, path := range paths {
		records, err := readAll(path)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("loading %s: %w", path, err)
		}
		for _, rec := range records {
			if rec.Published.After(max) {
				max = rec.Published
			}
		}
	}

	return max, !max.IsZero(), nil
}
