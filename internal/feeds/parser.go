package feeds

import (
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// entry is the feed-format-neutral shape of a single item.
type entry struct {
	Title     string
	Link      string
	Summary   string
	Content   string
	Published string
}

type rssDocument struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Encoded     string `xml:"http://purl.org/rss/1.0/modules/content/ encoded"`
	PubDate     string `xml:"pubDate"`
	DCDate      string `xml:"http://purl.org/dc/elements/1.1/ date"`
}

type atomDocument struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title   string     `xml:"title"`
	Links   []atomLink `xml:"link"`
	Summary string     `xml:"summary"`
	Content string     `xml:"content"`
	Updated string     `xml:"updated"`
	Pub     string     `xml:"published"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

// parseFeed decodes an RSS 2.0 or Atom document into neutral entries.
func parseFeed(r io.Reader) ([]entry, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var rss rssDocument
	if err := decodeXML(raw, &rss); err == nil && len(rss.Channel.Items) > 0 {
		entries := make([]entry, 0, len(rss.Channel.Items))
		for _, it := range rss.Channel.Items {
			published := it.PubDate
			if published == "" {
				published = it.DCDate
			}
			entries = append(entries, entry{
				Title:     it.Title,
				Link:      it.Link,
				Summary:   it.Description,
				Content:   it.Encoded,
				Published: published,
			})
		}
		return entries, nil
	}

	var atom atomDocument
	if err := decodeXML(raw, &atom); err == nil && len(atom.Entries) > 0 {
		entries := make([]entry, 0, len(atom.Entries))
		for _, it := range atom.Entries {
			published := it.Pub
			if published == "" {
				published = it.Updated
			}
			entries = append(entries, entry{
				Title:     it.Title,
				Link:      pickAtomLink(it.Links),
				Summary:   it.Summary,
				Content:   it.Content,
				Published: published,
			})
		}
		return entries, nil
	}

	return nil, fmt.Errorf("document is neither RSS nor Atom")
}

func decodeXML(raw []byte, v any) error {
	dec := xml.NewDecoder(strings.NewReader(string(raw)))
	// Feeds in the wild are frequently mislabelled latin-1 or windows-1252;
	// pass the bytes through rather than failing on the charset declaration.
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }
	dec.Strict = false
	return dec.Decode(v)
}

func pickAtomLink(links []atomLink) string {
	for _, l := range links {
		if l.Rel == "" || l.Rel == "alternate" {
			return l.Href
		}
	}
	if len(links) > 0 {
		return links[0].Href
	}
	return ""
}

var (
	stripPolicyOnce sync.Once
	stripPolicy     *bluemonday.Policy
)

func strictPolicy() *bluemonday.Policy {
	stripPolicyOnce.Do(func() {
		stripPolicy = bluemonday.StrictPolicy()
	})
	return stripPolicy
}

// CleanText strips all markup from s, decodes HTML entities and collapses
// runs of whitespace (including non-breaking spaces) into single spaces.
func CleanText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	stripped := strictPolicy().Sanitize(s)
	decoded := html.UnescapeString(stripped)
	return strings.Join(strings.Fields(decoded), " ")
}
