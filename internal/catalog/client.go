// Package catalog provides a rate-limited client for the arXiv Atom query API.
package catalog

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/paperline/paperline/internal/record"
)

const (
	// BaseURL is the arXiv export API endpoint.
	BaseURL = "https://export.arxiv.org/api/query"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 60 * time.Second

	// RequestsPerSecond paces outgoing requests. arXiv asks clients to wait
	// about three seconds between calls.
	RequestsPerSecond = 1.0 / 3.0

	// queryTimeLayout is the timestamp format the submittedDate filter expects.
	queryTimeLayout = "20060102150405"
)

// Client is a rate-limited HTTP client for the arXiv query API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit overrides the outgoing request rate.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewClient creates a new arXiv catalog client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RequestsPerSecond), 1),
		baseURL:    BaseURL,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// buildSearchQuery assembles the search_query parameter: a category
// disjunction AND a submittedDate range filter.
func buildSearchQuery(categories []string, from, to time.Time) string {
	terms := make([]string, len(categories))
	for i, cat := range categories {
		terms[i] = "cat:" + cat
	}
	return fmt.Sprintf("(%s) AND submittedDate:[%s TO %s]",
		strings.Join(terms, " OR "),
		from.UTC().Format(queryTimeLayout),
		to.UTC().Format(queryTimeLayout))
}

// Query fetches records in the given categories whose submission timestamp
// falls in [from, to), ordered descending by timestamp and capped at max.
// Returns ErrRateLimited on a 429 and ErrUnavailable on transport failure.
func (c *Client) Query(ctx context.Context, categories []string, from, to time.Time, max int) ([]record.Record, error) {
	if max <= 0 {
		return nil, fmt.Errorf("max results must be positive, got %d", max)
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("at least one category is required")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("search_query", buildSearchQuery(categories, from, to))
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprintf("%d", max))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP %d", resp.StatusCode),
		}
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("%w: parsing feed: %v", ErrInvalidResponse, err)
	}

	records := make([]record.Record, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		rec, err := entryToRecord(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", ErrInvalidResponse, entry.ID, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

// entryToRecord maps an Atom entry onto the domain record type.
func entryToRecord(entry atomEntry) (record.Record, error) {
	published, err := time.Parse(time.RFC3339, entry.Published)
	if err != nil {
		return record.Record{}, fmt.Errorf("parsing published date: %w", err)
	}

	authors := make([]string, len(entry.Authors))
	for i, a := range entry.Authors {
		authors[i] = strings.TrimSpace(a.Name)
	}

	return record.Record{
		ID:        identifierFromEntryID(entry.ID),
		Title:     collapseWhitespace(entry.Title),
		Abstract:  collapseWhitespace(entry.Summary),
		Authors:   authors,
		Published: published.UTC(),
		URL:       entry.ID,
	}, nil
}

// identifierFromEntryID extracts the stable identifier from an entry ID URL
// such as "http://arxiv.org/abs/2401.12345v2".
func identifierFromEntryID(entryID string) string {
	if i := strings.LastIndex(entryID, "/"); i >= 0 {
		return entryID[i+1:]
	}
	return entryID
}

// collapseWhitespace joins the multi-line text the feed returns into a
// single-line field.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
