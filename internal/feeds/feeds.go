package feeds

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultSources are the Premier League feeds polled when no explicit
// mapping is configured.
var DefaultSources = map[string]string{
	"bbc":         "https://feeds.bbci.co.uk/sport/football/premier-league/rss.xml",
	"guardian":    "https://www.theguardian.com/football/premierleague/rss",
	"skysports":   "https://www.skysports.com/rss/11095",
	"football365": "https://www.football365.com/feed",
	"90min":       "https://www.90min.com/posts.rss",
	"goal":        "https://www.goal.com/feeds/en/news",
	"talksport":   "https://talksport.com/football/feed/",
	"mirror":      "https://www.mirror.co.uk/sport/football/rss.xml",
	"express":     "https://www.express.co.uk/sport/football/rss",
}

// Document is a normalized feed entry ready for embedding.
type Document struct {
	Source      string
	URL         string
	Title       string
	Summary     string
	Published   *time.Time
	ContentHash string
}

// StableID derives the deterministic index key for the document. The same
// content hash always yields the same UUID, so re-ingesting an unchanged
// document overwrites rather than duplicates.
func (d Document) StableID() string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(d.ContentHash)).String()
}

// fingerprintPrefix is how much of the summary participates in the
// content hash. Trailing edits beyond it do not change identity.
const fingerprintPrefix = 500

// Fingerprint hashes the fields that define a document's identity.
func Fingerprint(url, title, summary string) string {
	prefix := summary
	if r := []rune(summary); len(r) > fingerprintPrefix {
		prefix = string(r[:fingerprintPrefix])
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", url, title, prefix)))
	return hex.EncodeToString(sum[:])
}

// Fetcher downloads and normalizes entries from a set of named feeds.
type Fetcher struct {
	sources    map[string]string
	summaryCap int
	client     *http.Client
	logger     *log.Logger
}

func NewFetcher(sources map[string]string, summaryCap int, timeout time.Duration) *Fetcher {
	if len(sources) == 0 {
		sources = DefaultSources
	}
	if summaryCap <= 0 {
		summaryCap = 1000
	}
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		sources:    sources,
		summaryCap: summaryCap,
		client:     &http.Client{Timeout: timeout},
		logger:     log.New(log.Writer(), "[FEEDS] ", log.LstdFlags),
	}
}

// FetchAll fetches every configured feed. A failing source is logged and
// skipped; FetchAll itself never fails. Entries are de-duplicated by URL
// across sources within the pass, first occurrence winning.
func (f *Fetcher) FetchAll(ctx context.Context) []Document {
	var docs []Document
	seen := make(map[string]struct{})

	for source, url := range f.sources {
		fetched, err := f.fetchFeed(ctx, source, url)
		if err != nil {
			f.logger.Printf("failed to fetch feed %q (%s): %v", source, url, err)
			continue
		}
		for _, doc := range fetched {
			if _, dup := seen[doc.URL]; dup {
				continue
			}
			seen[doc.URL] = struct{}{}
			docs = append(docs, doc)
		}
	}

	f.logger.Printf("fetched %d unique documents across %d feeds", len(docs), len(f.sources))
	return docs
}

func (f *Fetcher) fetchFeed(ctx context.Context, source, url string) ([]Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	entries, err := parseFeed(resp.Body)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(entries))
	for _, e := range entries {
		doc, ok := f.normalize(source, e)
		if !ok {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// normalize turns a raw feed entry into a Document. Entries without a
// link, title or body are dropped.
func (f *Fetcher) normalize(source string, e entry) (Document, bool) {
	url := CleanText(e.Link)
	title := CleanText(e.Title)

	// Prefer the full content body (Guardian ships it in content:encoded),
	// falling back to the summary field.
	raw := e.Content
	if raw == "" {
		raw = e.Summary
	}
	summary := CleanText(raw)

	if url == "" || title == "" || summary == "" {
		return Document{}, false
	}

	if r := []rune(summary); len(r) > f.summaryCap {
		summary = string(r[:f.summaryCap])
	}

	return Document{
		Source:      source,
		URL:         url,
		Title:       title,
		Summary:     summary,
		Published:   parseDate(e.Published),
		ContentHash: Fingerprint(url, title, summary),
	}, true
}

var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2006-01-02 15:04:05",
}

// parseDate tolerates the date formats seen across the configured feeds.
// An unparseable or absent date yields nil.
func parseDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}
