package server

import (
	"time"

	"github.com/touchlinehq/touchline/internal/rag"
)

type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type ChatResponse struct {
	SessionID         string          `json:"session_id"`
	Answer            string          `json:"answer"`
	Sources           []rag.SourceDoc `json:"sources"`
	RetrievedDocCount int             `json:"retrieved_doc_count"`
}

type IngestRequest struct {
	Force bool `json:"force"`
}

type IngestResponse struct {
	Status           string  `json:"status"`
	ArticlesFetched  int     `json:"articles_fetched"`
	ArticlesEmbedded int     `json:"articles_embedded"`
	ArticlesSkipped  int     `json:"articles_skipped"`
	DurationSeconds  float64 `json:"duration_seconds"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type StatusResponse struct {
	IndexConnected   bool       `json:"index_connected"`
	SchemaExists     bool       `json:"schema_exists"`
	TotalDocuments   int        `json:"total_documents"`
	LastIngestTime   *time.Time `json:"last_ingest_time,omitempty"`
	NextIngestTime   *time.Time `json:"next_ingest_time,omitempty"`
	SchedulerRunning bool       `json:"scheduler_running"`
}

type LoginRequest struct {
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}
