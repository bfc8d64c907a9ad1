package ingest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/touchlinehq/touchline/internal/feeds"
	"github.com/touchlinehq/touchline/internal/index"
	"github.com/touchlinehq/touchline/internal/telemetry"
)

// Fetcher supplies the normalized documents for one run.
type Fetcher interface {
	FetchAll(ctx context.Context) []feeds.Document
}

// Embedder batch-embeds texts into the index's vector space.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Upserter writes embedded documents into the vector index.
type Upserter interface {
	BatchUpsert(ctx context.Context, objects []index.Object) error
}

// Stats summarizes one ingestion run.
type Stats struct {
	Fetched  int           `json:"articles_fetched"`
	Embedded int           `json:"articles_embedded"`
	Skipped  int           `json:"articles_skipped"`
	Duration time.Duration `json:"-"`
}

// Pipeline runs fetch → dedup → embed → upsert as one idempotent pass.
// Run is re-entrant but concurrent runs race on the dedup set and would
// double-count skips; callers wanting exclusivity must serialize.
type Pipeline struct {
	fetcher Fetcher
	embed   Embedder
	idx     Upserter
	dedup   *DedupStore
	metrics *telemetry.Metrics
	logger  *log.Logger

	mu      sync.Mutex
	lastRun time.Time
}

func NewPipeline(fetcher Fetcher, embed Embedder, idx Upserter, dedup *DedupStore, metrics *telemetry.Metrics) *Pipeline {
	return &Pipeline{
		fetcher: fetcher,
		embed:   embed,
		idx:     idx,
		dedup:   dedup,
		metrics: metrics,
		logger:  log.New(log.Writer(), "[INGEST] ", log.LstdFlags),
	}
}

// Run executes one ingestion pass. With force set, every fetched document
// is re-embedded and overwritten regardless of the dedup set. Embedding or
// upsert failure is fatal to the run: fetched data is discarded with no
// partial commit.
func (p *Pipeline) Run(ctx context.Context, force bool) (Stats, error) {
	start := time.Now()
	p.logger.Printf("starting ingestion run (force=%v)", force)

	docs := p.fetcher.FetchAll(ctx)
	stats := Stats{Fetched: len(docs)}

	fresh := docs
	if !force {
		fresh = p.dedup.FilterNew(docs)
		stats.Skipped = stats.Fetched - len(fresh)
	}

	if len(fresh) == 0 {
		stats.Duration = time.Since(start)
		p.finish(stats, nil)
		return stats, nil
	}

	texts := make([]string, len(fresh))
	for i, doc := range fresh {
		texts[i] = doc.Title + ". " + doc.Summary
	}

	vectors, err := p.embed.EmbedBatch(ctx, texts)
	if err != nil {
		err = fmt.Errorf("embedding %d documents: %w", len(fresh), err)
		p.finish(stats, err)
		return Stats{}, err
	}
	if len(vectors) != len(fresh) {
		err = fmt.Errorf("embedding returned %d vectors for %d documents", len(vectors), len(fresh))
		p.finish(stats, err)
		return Stats{}, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	objects := make([]index.Object, len(fresh))
	for i, doc := range fresh {
		var published string
		if doc.Published != nil {
			published = doc.Published.Format(time.RFC3339)
		}
		objects[i] = index.Object{
			ID:     doc.StableID(),
			Vector: vectors[i],
			Properties: index.Properties{
				Title:       doc.Title,
				URL:         doc.URL,
				Summary:     doc.Summary,
				Source:      doc.Source,
				Published:   published,
				ContentHash: doc.ContentHash,
				IngestedAt:  now,
			},
		}
	}

	if err := p.idx.BatchUpsert(ctx, objects); err != nil {
		err = fmt.Errorf("upserting %d documents: %w", len(objects), err)
		p.finish(stats, err)
		return Stats{}, err
	}

	stats.Embedded = len(fresh)
	stats.Duration = time.Since(start)
	p.finish(stats, nil)
	return stats, nil
}

// LastRun reports when the pipeline last completed, successfully or not.
func (p *Pipeline) LastRun() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRun
}

func (p *Pipeline) finish(stats Stats, err error) {
	p.mu.Lock()
	p.lastRun = time.Now().UTC()
	p.mu.Unlock()

	if err != nil {
		p.logger.Printf("ingestion failed after fetching %d: %v", stats.Fetched, err)
		p.metrics.ObserveIngestRun("error", 0)
		return
	}
	p.logger.Printf("ingestion complete: fetched=%d embedded=%d skipped=%d in %s",
		stats.Fetched, stats.Embedded, stats.Skipped, stats.Duration.Round(time.Millisecond))
	p.metrics.ObserveIngestRun("ok", stats.Embedded)
}
