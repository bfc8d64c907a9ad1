package ingest

import (
	"context"
	"log"
	"sync"

	"github.com/touchlinehq/touchline/internal/feeds"
)

// IDScanner lists every stable ID currently held by the vector index.
type IDScanner interface {
	ScanIDs(ctx context.Context) ([]string, error)
}

// DedupStore tracks which stable IDs are already indexed. It is an
// in-memory accelerator over the index, never a source of truth: a stale
// or empty set only causes a redundant upsert, which the index absorbs
// because writes are keyed by the deterministic ID.
type DedupStore struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	logger *log.Logger
}

func NewDedupStore() *DedupStore {
	return &DedupStore{
		seen:   make(map[string]struct{}),
		logger: log.New(log.Writer(), "[DEDUP] ", log.LstdFlags),
	}
}

// Warm pre-populates the set from the full index. The scan runs once at
// startup; failure degrades to an empty set rather than aborting.
func (d *DedupStore) Warm(ctx context.Context, scanner IDScanner) {
	ids, err := scanner.ScanIDs(ctx)
	if err != nil {
		d.logger.Printf("could not warm dedup set: %v", err)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		d.seen[id] = struct{}{}
	}
	d.logger.Printf("warmed with %d existing IDs", len(ids))
}

// FilterNew returns the unseen documents as a stable-order subsequence of
// the input. IDs are recorded as the filter runs, so a batch carrying the
// same fingerprint twice yields it only once.
func (d *DedupStore) FilterNew(docs []feeds.Document) []feeds.Document {
	d.mu.Lock()
	defer d.mu.Unlock()

	fresh := make([]feeds.Document, 0, len(docs))
	for _, doc := range docs {
		id := doc.StableID()
		if _, ok := d.seen[id]; ok {
			continue
		}
		d.seen[id] = struct{}{}
		fresh = append(fresh, doc)
	}
	return fresh
}

// Size returns the number of known IDs.
func (d *DedupStore) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
