// Package record defines the core domain type for harvested catalog records.
package record

import "time"

// Record represents one metadata record harvested from the upstream catalog.
// A Record is created once by the fetcher, appended to the record store, and
// never mutated. The ID is stable across re-fetches and uniquely determines
// the record.
type Record struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Abstract  string    `json:"abstract"`
	Authors   []string  `json:"authors"`
	Published time.Time `json:"published"` // UTC
	URL       string    `json:"url"`
}

// Equal reports whether two records are field-for-field equal.
// Published timestamps are compared as instants, not by location.
func (r Record) Equal(o Record) bool {
	if r.ID != o.ID || r.Title != o.Title || r.Abstract != o.Abstract || r.URL != o.URL {
		return false
	}
	if !r.Published.Equal(o.Published) {
		return false
	}
	if len(r.Authors) != len(o.Authors) {
		return false
	}
	for i := range r.Authors {
		if r.Authors[i] != o.Authors[i] {
			return false
		}
	}
	return true
}
