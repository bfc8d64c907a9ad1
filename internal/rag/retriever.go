// Package rag contains the retrieval layer, the stats tool dispatcher and
// the agentic chat engine that ties them together.
package rag

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/touchlinehq/touchline/internal/index"
)

// SourceDoc is one retrieved article as surfaced to chat clients.
type SourceDoc struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Summary   string  `json:"summary"`
	Published string  `json:"published,omitempty"`
	Source    string  `json:"source"`
	Score     float64 `json:"score"`
}

// Embedder maps a query into the same vector space as the indexed articles.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Searcher finds the nearest indexed articles for a query vector.
type Searcher interface {
	QueryNearest(ctx context.Context, vector []float32, k int) ([]index.Hit, error)
}

// NoContextSentinel is injected into the prompt when retrieval produced
// nothing, so the model knows not to invent article citations.
const NoContextSentinel = "No relevant articles found in the knowledge base."

// Retriever performs semantic search over the article index.
type Retriever struct {
	embed  Embedder
	search Searcher
	logger *log.Logger
}

func NewRetriever(embed Embedder, search Searcher) *Retriever {
	return &Retriever{
		embed:  embed,
		search: search,
		logger: log.New(log.Writer(), "[RETRIEVER] ", log.LstdFlags),
	}
}

// Search embeds the query and returns up to k nearest articles, best first.
// Retrieval failures degrade to an empty result so chat stays available
// without news context.
func (r *Retriever) Search(ctx context.Context, query string, k int) []SourceDoc {
	vector, err := r.embed.EmbedOne(ctx, query)
	if err != nil {
		r.logger.Printf("query embedding failed: %v", err)
		return nil
	}

	hits, err := r.search.QueryNearest(ctx, vector, k)
	if err != nil {
		r.logger.Printf("vector search failed: %v", err)
		return nil
	}

	docs := make([]SourceDoc, 0, len(hits))
	for _, hit := range hits {
		docs = append(docs, SourceDoc{
			Title:     hit.Properties.Title,
			URL:       hit.Properties.URL,
			Summary:   hit.Properties.Summary,
			Published: hit.Properties.Published,
			Source:    hit.Properties.Source,
			Score:     math.Round(hit.Certainty*10000) / 10000,
		})
	}
	return docs
}

// SearchWithContext runs Search and renders the results as a prompt context
// block, one paragraph per article. When nothing is retrieved it returns the
// sentinel text and an empty document list.
func (r *Retriever) SearchWithContext(ctx context.Context, query string, k int) (string, []SourceDoc) {
	docs := r.Search(ctx, query, k)
	if len(docs) == 0 {
		return NoContextSentinel, nil
	}

	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		published := doc.Published
		if published == "" {
			published = "Unknown date"
		}
		parts = append(parts, fmt.Sprintf("[%s] %s (%s)\n%s",
			strings.ToUpper(doc.Source), doc.Title, published, doc.Summary))
	}
	return strings.Join(parts, "\n\n"), docs
}
