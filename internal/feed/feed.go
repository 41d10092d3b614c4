// Package feed fetches a single RSS/Atom feed and maps its items to entries.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (compatible; feed2mastodon/1.0; +https://github.com/ppiankov/feed2mastodon)"
)

// Entry is one feed item, immutable once fetched.
type Entry struct {
	ID        string    // GUID, falling back to the link URL
	Title     string    // raw title
	Link      string    // link to the original item
	Published time.Time // zero when the feed carries no date
	Summary   string    // item description, usually HTML
	Content   string    // full item content, usually HTML
	ImageURLs []string  // image enclosures in feed order
}

// FetchError reports an unreachable or unparseable feed.
type FetchError struct {
	URL        string
	StatusCode int // upstream HTTP status, 0 when the request never got a response
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher retrieves and parses a feed.
type Fetcher struct {
	parser *gofeed.Parser
}

// Options configures a Fetcher. Zero values select the defaults.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Transport http.RoundTripper
}

// NewFetcher creates a fetcher backed by gofeed.
func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}

	fp := gofeed.NewParser()
	fp.Client = &http.Client{
		Timeout:   opts.Timeout,
		Transport: &uaTransport{base: opts.Transport, userAgent: opts.UserAgent},
	}
	return &Fetcher{parser: fp}
}

// uaTransport injects a User-Agent header into every request.
type uaTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}

// Fetch downloads feedURL and returns its entries in feed order.
// Items without any identifier are skipped since they cannot be deduplicated.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]Entry, error) {
	if strings.TrimSpace(feedURL) == "" {
		return nil, &FetchError{URL: feedURL, Err: errors.New("feed URL is required")}
	}

	parsed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		fe := &FetchError{URL: feedURL, Err: err}
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			fe.StatusCode = httpErr.StatusCode
		}
		return nil, fe
	}

	return entriesFromFeed(parsed), nil
}

func entriesFromFeed(feed *gofeed.Feed) []Entry {
	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		id := itemID(item)
		if id == "" {
			continue
		}
		entries = append(entries, Entry{
			ID:        id,
			Title:     item.Title,
			Link:      item.Link,
			Published: itemPublishedTime(item),
			Summary:   item.Description,
			Content:   item.Content,
			ImageURLs: itemImages(item),
		})
	}
	return entries
}

func itemID(item *gofeed.Item) string {
	if id := strings.TrimSpace(item.GUID); id != "" {
		return id
	}
	return strings.TrimSpace(item.Link)
}

func itemPublishedTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}

// itemImages collects image enclosures, then the item image, without duplicates.
func itemImages(item *gofeed.Item) []string {
	var urls []string
	seen := make(map[string]bool)
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	}

	for _, enc := range item.Enclosures {
		if enc == nil {
			continue
		}
		if strings.Contains(strings.ToLower(enc.Type), "image") {
			add(enc.URL)
		}
	}
	if item.Image != nil {
		add(item.Image.URL)
	}
	return urls
}
