// Package openai implements provider.Provider against the OpenAI REST API.
package openai

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/touchlinehq/touchline/internal/httpx"
	"github.com/touchlinehq/touchline/provider"
)

type Client struct {
	apiKey          string
	baseURL         string
	completionModel string
	embeddingModel  string
	temperature     float64
	maxTokens       int
	http            *httpx.Client
	logger          *log.Logger

	mu  sync.Mutex
	dim int
}

func NewClient(apiKey, baseURL, completionModel, embeddingModel string, temperature float64, maxTokens int, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &Client{
		apiKey:          apiKey,
		baseURL:         baseURL,
		completionModel: completionModel,
		embeddingModel:  embeddingModel,
		temperature:     temperature,
		maxTokens:       maxTokens,
		http:            httpx.New(timeout, 1, 0),
		logger:          log.New(log.Writer(), "[OPENAI] ", log.LstdFlags),
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

type chatRequest struct {
	Model       string             `json:"model"`
	Messages    []provider.Message `json:"messages"`
	Temperature float64            `json:"temperature"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Tools       []provider.Tool    `json:"tools,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      provider.Message `json:"message"`
		FinishReason string           `json:"finish_reason"`
	} `json:"choices"`
}

// Complete runs one chat-completion round trip.
func (c *Client) Complete(ctx context.Context, messages []provider.Message, tools []provider.Tool) (provider.Completion, error) {
	req := chatRequest{
		Model:       c.completionModel,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Tools:       tools,
	}

	var resp chatResponse
	err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", c.headers(), req, &resp)
	if err != nil {
		return provider.Completion{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return provider.Completion{}, fmt.Errorf("chat completion: no choices in response")
	}

	choice := resp.Choices[0]
	return provider.Completion{
		Message: choice.Message,
		Finish:  provider.FinishReason(choice.FinishReason),
	}, nil
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// EmbedBatch embeds texts in input order and L2-normalizes each vector.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := map[string]any{
		"model": c.embeddingModel,
		"input": texts,
	}
	var resp embeddingResponse
	err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", c.headers(), req, &resp)
	if err != nil {
		return nil, fmt.Errorf("embedding batch of %d: %w", len(texts), err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding batch: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = normalize(d.Embedding)
	}

	if err := c.pinDimension(len(vectors[0])); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Dimension returns the embedding dimensionality seen on the first call.
func (c *Client) Dimension() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dim
}

// pinDimension records the embedding dimensionality once and rejects any
// later drift: mixing dimensions would corrupt the vector index.
func (c *Client) pinDimension(d int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dim == 0 {
		c.dim = d
		c.logger.Printf("embedding model %s, dimension %d", c.embeddingModel, d)
		return nil
	}
	if c.dim != d {
		return fmt.Errorf("embedding dimension changed from %d to %d", c.dim, d)
	}
	return nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
