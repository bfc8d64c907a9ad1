// Package index is a thin REST client for the Weaviate vector index.
// The index is the single durable store of the system: objects are keyed
// by the deterministic document ID, so writes are always upserts.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/touchlinehq/touchline/internal/httpx"
)

// Properties are the metadata stored alongside each vector.
type Properties struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Summary     string `json:"summary"`
	Source      string `json:"source"`
	Published   string `json:"published,omitempty"`
	ContentHash string `json:"content_hash"`
	IngestedAt  string `json:"ingested_at"`
}

// Object is one upsert payload: a stable ID, its vector and properties.
type Object struct {
	ID         string
	Vector     []float32
	Properties Properties
}

// Hit is one nearest-neighbour result. Certainty is Weaviate's cosine
// similarity mapped into [0,1], higher meaning more similar.
type Hit struct {
	ID         string
	Properties Properties
	Certainty  float64
}

type Client struct {
	baseURL string
	class   string
	http    *httpx.Client
}

func NewClient(baseURL, class string, timeout time.Duration, retries int) *Client {
	return &Client{
		baseURL: baseURL,
		class:   class,
		http:    httpx.New(timeout, retries, 0),
	}
}

// Ready reports whether the index answers its readiness probe.
func (c *Client) Ready(ctx context.Context) bool {
	err := c.http.DoJSON(ctx, http.MethodGet, c.baseURL+"/v1/.well-known/ready", nil, nil, nil)
	return err == nil
}

// Exists reports whether the class is present in the schema.
func (c *Client) Exists(ctx context.Context) (bool, error) {
	err := c.http.DoJSON(ctx, http.MethodGet, c.baseURL+"/v1/schema/"+c.class, nil, nil, nil)
	if err == nil {
		return true, nil
	}
	var se *httpx.StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return false, nil
	}
	return false, err
}

// EnsureSchema creates the class when missing. Vectors are supplied by the
// ingestion pipeline, so the class is configured without a vectorizer and
// with cosine distance.
func (c *Client) EnsureSchema(ctx context.Context) error {
	exists, err := c.Exists(ctx)
	if err != nil {
		return fmt.Errorf("checking schema: %w", err)
	}
	if exists {
		return nil
	}

	textProp := func(name string) map[string]any {
		return map[string]any{"name": name, "dataType": []string{"text"}}
	}
	schema := map[string]any{
		"class":      c.class,
		"vectorizer": "none",
		"vectorIndexConfig": map[string]any{
			"distance": "cosine",
		},
		"properties": []map[string]any{
			textProp("title"),
			textProp("url"),
			textProp("summary"),
			textProp("source"),
			{"name": "published", "dataType": []string{"date"}},
			textProp("content_hash"),
			{"name": "ingested_at", "dataType": []string{"date"}},
		},
	}
	if err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/v1/schema", nil, schema, nil); err != nil {
		return fmt.Errorf("creating class %s: %w", c.class, err)
	}
	return nil
}

type batchResult struct {
	Result struct {
		Errors *struct {
			Error []struct {
				Message string `json:"message"`
			} `json:"error"`
		} `json:"errors"`
	} `json:"result"`
}

// BatchUpsert writes all objects in a single batch call. An existing
// object with the same ID is replaced, never duplicated.
func (c *Client) BatchUpsert(ctx context.Context, objects []Object) error {
	if len(objects) == 0 {
		return nil
	}
	payload := make([]map[string]any, len(objects))
	for i, o := range objects {
		payload[i] = map[string]any{
			"class":      c.class,
			"id":         o.ID,
			"vector":     o.Vector,
			"properties": o.Properties,
		}
	}

	var results []batchResult
	err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/v1/batch/objects", nil,
		map[string]any{"objects": payload}, &results)
	if err != nil {
		return fmt.Errorf("batch upsert: %w", err)
	}
	for _, r := range results {
		if r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch upsert: %s", r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// QueryNearest returns the k entries closest to the vector.
func (c *Client) QueryNearest(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	vec, err := json.Marshal(vector)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`{
		Get {
			%s(nearVector: {vector: %s}, limit: %d) {
				title url summary source published content_hash ingested_at
				_additional { id certainty }
			}
		}
	}`, c.class, vec, k)

	var resp struct {
		Data struct {
			Get map[string][]struct {
				Properties
				Additional struct {
					ID        string  `json:"id"`
					Certainty float64 `json:"certainty"`
				} `json:"_additional"`
			} `json:"Get"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := c.graphql(ctx, query, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("graphql: %s", resp.Errors[0].Message)
	}

	raw := resp.Data.Get[c.class]
	hits := make([]Hit, 0, len(raw))
	for _, o := range raw {
		hits = append(hits, Hit{
			ID:         o.Additional.ID,
			Properties: o.Properties,
			Certainty:  o.Additional.Certainty,
		})
	}
	return hits, nil
}

// Count returns the number of objects in the class.
func (c *Client) Count(ctx context.Context) (int, error) {
	query := fmt.Sprintf(`{ Aggregate { %s { meta { count } } } }`, c.class)

	var resp struct {
		Data struct {
			Aggregate map[string][]struct {
				Meta struct {
					Count int `json:"count"`
				} `json:"meta"`
			} `json:"Aggregate"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := c.graphql(ctx, query, &resp); err != nil {
		return 0, err
	}
	if len(resp.Errors) > 0 {
		return 0, fmt.Errorf("graphql: %s", resp.Errors[0].Message)
	}
	agg := resp.Data.Aggregate[c.class]
	if len(agg) == 0 {
		return 0, nil
	}
	return agg[0].Meta.Count, nil
}

// scanPageSize bounds each page of the full-index ID scan.
const scanPageSize = 200

// ScanIDs walks the whole class with cursor pagination and returns every
// object ID. Intended for the startup dedup warm-up only; it is a full
// index scan.
func (c *Client) ScanIDs(ctx context.Context) ([]string, error) {
	var ids []string
	after := ""
	for {
		u := fmt.Sprintf("%s/v1/objects?class=%s&limit=%d", c.baseURL, url.QueryEscape(c.class), scanPageSize)
		if after != "" {
			u += "&after=" + url.QueryEscape(after)
		}
		var page struct {
			Objects []struct {
				ID string `json:"id"`
			} `json:"objects"`
		}
		if err := c.http.DoJSON(ctx, http.MethodGet, u, nil, nil, &page); err != nil {
			return nil, fmt.Errorf("scanning object IDs: %w", err)
		}
		if len(page.Objects) == 0 {
			return ids, nil
		}
		for _, o := range page.Objects {
			ids = append(ids, o.ID)
		}
		after = page.Objects[len(page.Objects)-1].ID
	}
}

func (c *Client) graphql(ctx context.Context, query string, out any) error {
	return c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/v1/graphql", nil,
		map[string]string{"query": query}, out)
}
