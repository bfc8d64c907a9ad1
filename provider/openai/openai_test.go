package openai

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/touchlinehq/touchline/provider"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", srv.URL, "gpt-4o-mini", "text-embedding-3-small", 0.9, 512, time.Second)
}

func TestCompleteFinalAnswer(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]any{"role": "assistant", "content": "hello"},
				"finish_reason": "stop",
			}},
		})
	})

	got, err := c.Complete(context.Background(), []provider.Message{{Role: "user", Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.IsToolRequest() {
		t.Fatalf("expected final answer, got tool request")
	}
	if got.Message.Content != "hello" || got.Finish != provider.FinishStop {
		t.Fatalf("unexpected completion: %+v", got)
	}
}

func TestCompleteToolRequest(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"role": "assistant",
					"tool_calls": []map[string]any{{
						"id":   "call_1",
						"type": "function",
						"function": map[string]any{
							"name":      "get_standings",
							"arguments": "{}",
						},
					}},
				},
				"finish_reason": "tool_calls",
			}},
		})
	})

	got, err := c.Complete(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !got.IsToolRequest() {
		t.Fatalf("expected tool request, got %+v", got)
	}
	if got.Message.ToolCalls[0].Function.Name != "get_standings" {
		t.Fatalf("unexpected tool call: %+v", got.Message.ToolCalls)
	}
}

func TestEmbedBatchNormalizesAndOrders(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		// Out-of-order data entries must be reassembled by index.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{0, 2}},
				{"index": 0, "embedding": []float32{3, 4}},
			},
		})
	})

	vectors, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("vectors = %d, want 2", len(vectors))
	}
	if math.Abs(float64(vectors[0][0])-0.6) > 1e-6 || math.Abs(float64(vectors[0][1])-0.8) > 1e-6 {
		t.Fatalf("vector not normalized in order: %v", vectors[0])
	}
	var norm float64
	for _, x := range vectors[1] {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1) > 1e-6 {
		t.Fatalf("vector norm = %f, want 1", norm)
	}
	if c.Dimension() != 2 {
		t.Fatalf("Dimension() = %d, want 2", c.Dimension())
	}
}

func TestEmbedBatchRejectsDimensionDrift(t *testing.T) {
	t.Parallel()
	dims := []int{2, 3}
	call := 0
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		vec := make([]float32, dims[call])
		for i := range vec {
			vec[i] = 1
		}
		call++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": vec}},
		})
	})

	if _, err := c.EmbedBatch(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if _, err := c.EmbedBatch(context.Background(), []string{"b"}); err == nil {
		t.Fatalf("expected dimension drift error")
	}
}
