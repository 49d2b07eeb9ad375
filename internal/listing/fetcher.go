// Package listing fetches remote directory index pages and turns them into
// downloadable entries.
package listing

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/remote-agent-terminal/ptyhost/internal/model"
)

// Fetcher lists the entries of a remote index page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]model.ListingEntry, error)
}

// Config holds HTTP client settings.
type Config struct {
	Timeout   time.Duration
	Retries   int
	UserAgent string
}

// HTTPFetcher fetches index pages over HTTP.
type HTTPFetcher struct {
	client *resty.Client
}

// NewHTTPFetcher creates a fetcher with the given client settings.
func NewHTTPFetcher(cfg Config) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "ptyhost-listing/1.0"
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("User-Agent", cfg.UserAgent)

	return &HTTPFetcher{client: client}
}

// Fetch downloads pageURL and parses its links.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) ([]model.ListingEntry, error) {
	base, err := url.Parse(pageURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("%w: unsupported url %q", model.ErrInvalidListing, pageURL)
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		return nil, fmt.Errorf("failed to fetch listing: %s", resp.Status())
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidListing, err)
	}

	return Parse(doc, base), nil
}

// sizePattern matches the size column of common index pages: "12345",
// "1.2M", "345 KiB", "4.0 GB".
var sizePattern = regexp.MustCompile(`^\d+(\.\d+)?\s*([KMGTP](i?B)?|B|bytes)?$`)

// Parse extracts entries from an index page. base resolves relative links.
func Parse(doc *goquery.Document, base *url.URL) []model.ListingEntry {
	var entries []model.ListingEntry
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if skipLink(href) {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.String() == base.String() || seen[abs.String()] {
			return
		}

		name := strings.TrimSpace(a.Text())
		if strings.EqualFold(name, "parent directory") {
			return
		}
		if name == "" || strings.HasSuffix(name, "..>") {
			name = path.Base(abs.Path)
		}
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}
		if name == "" || name == "/" || name == "." {
			return
		}

		seen[abs.String()] = true
		entries = append(entries, model.ListingEntry{
			Name: name,
			URL:  abs.String(),
			Size: findSize(a),
		})
	})

	return entries
}

// skipLink reports links that never point at an entry: parent directory,
// column sort links, fragments and non-http schemes.
func skipLink(href string) bool {
	switch {
	case href == "", href == "../", href == "..", href == "/":
		return true
	case strings.HasPrefix(href, "?"), strings.HasPrefix(href, "#"):
		return true
	case strings.HasPrefix(href, "mailto:"), strings.HasPrefix(href, "javascript:"):
		return true
	}
	return false
}

// findSize looks for a size in the link's table row, or in the text that
// follows the link on a <pre> style listing.
func findSize(a *goquery.Selection) string {
	if row := a.Closest("tr"); row.Length() > 0 {
		size := ""
		row.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
			text := strings.TrimSpace(td.Text())
			if td.Find("a").Length() == 0 && sizePattern.MatchString(text) {
				size = text
				return false
			}
			return true
		})
		return size
	}

	// <pre> listings: "<a>name</a>   2024-01-01 10:00   1.2M"
	if a.Get(0) != nil && a.Get(0).NextSibling != nil {
		fields := strings.Fields(a.Get(0).NextSibling.Data)
		if n := len(fields); n > 0 && sizePattern.MatchString(fields[n-1]) {
			return fields[n-1]
		}
	}
	return ""
}

// Result runs fetcher and wraps the outcome for callers that expect a
// success flag rather than an error.
func Result(ctx context.Context, fetcher Fetcher, pageURL string) model.ListingResult {
	entries, err := fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return model.ListingResult{Success: false, Error: err.Error()}
	}
	if entries == nil {
		entries = []model.ListingEntry{}
	}
	return model.ListingResult{Success: true, Entries: entries}
}
