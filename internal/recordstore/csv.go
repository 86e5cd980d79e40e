package recordstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/paperline/paperline/internal/record"
)

// header is the fixed CSV column order. Append-only files never change it.
var header = []string{"id", "title", "abstract", "authors", "published", "url"}

// authorSeparator joins the ordered author list into a single CSV field.
const authorSeparator = ";"

// encodeRow serializes a record into a CSV row.
func encodeRow(rec record.Record) []string {
	return []string{
		rec.ID,
		rec.Title,
		rec.Abstract,
		strings.Join(rec.Authors, authorSeparator),
		rec.Published.UTC().Format(time.RFC3339),
		rec.URL,
	}
}

// decodeRow parses a CSV row into a record.
func decodeRow(row []string) (record.Record, error) {
	if len(row) != len(header) {
		return record.Record{}, fmt.Errorf("expected %d columns, got %d", len(header), len(row))
	}

	published, err := time.Parse(time.RFC3339, row[4])
	if err != nil {
		return record.Record{}, fmt.Errorf("parsing published date %q: %w", row[4], err)
	}

	var authors []string
	if row[3] != "" {
		authors = strings.Split(row[3], authorSeparator)
	}

	return record.Record{
		ID:        row[0],
		Title:     row[1],
		Abstract:  row[2],
		Authors:   authors,
		Published: published.UTC(),
		URL:       row[5],
	}, nil
}
