package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/touchlinehq/touchline/internal/ingest"
	"github.com/touchlinehq/touchline/internal/rag"
)

const maxMessageLength = 2000

// ChatService answers one user message within a session.
type ChatService interface {
	Chat(ctx context.Context, sessionID, message string) (rag.Reply, error)
}

// IngestService runs the ingestion pipeline on demand.
type IngestService interface {
	Run(ctx context.Context, force bool) (ingest.Stats, error)
	LastRun() time.Time
}

// IndexStatus exposes the health facts reported by /health and /status.
type IndexStatus interface {
	Ready(ctx context.Context) bool
	Exists(ctx context.Context) (bool, error)
	Count(ctx context.Context) (int, error)
}

func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	if len([]rune(msg)) > maxMessageLength {
		return echo.NewHTTPError(http.StatusBadRequest, "message too long")
	}

	reply, err := s.chat.Chat(c.Request().Context(), req.SessionID, msg)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	sources := reply.Sources
	if sources == nil {
		sources = []rag.SourceDoc{}
	}
	return c.JSON(http.StatusOK, ChatResponse{
		SessionID:         req.SessionID,
		Answer:            reply.Answer,
		Sources:           sources,
		RetrievedDocCount: reply.RetrievedDocCount,
	})
}

func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	stats, err := s.pipeline.Run(c.Request().Context(), req.Force)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "ingestion error: "+err.Error())
	}

	return c.JSON(http.StatusOK, IngestResponse{
		Status:           "ok",
		ArticlesFetched:  stats.Fetched,
		ArticlesEmbedded: stats.Embedded,
		ArticlesSkipped:  stats.Skipped,
		DurationSeconds:  stats.Duration.Seconds(),
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	if s.index.Ready(c.Request().Context()) {
		return c.JSON(http.StatusOK, HealthResponse{Status: "healthy"})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "degraded"})
}

func (s *Server) handleStatus(c echo.Context) error {
	ctx := c.Request().Context()
	resp := StatusResponse{IndexConnected: s.index.Ready(ctx)}

	if resp.IndexConnected {
		if exists, err := s.index.Exists(ctx); err == nil {
			resp.SchemaExists = exists
		}
		if resp.SchemaExists {
			if count, err := s.index.Count(ctx); err == nil {
				resp.TotalDocuments = count
			}
		}
	}

	if last := s.pipeline.LastRun(); !last.IsZero() {
		resp.LastIngestTime = &last
	}
	if s.scheduler != nil {
		resp.SchedulerRunning = s.scheduler.Running()
		if next := s.scheduler.NextRun(); !next.IsZero() {
			resp.NextIngestTime = &next
		}
	}
	return c.JSON(http.StatusOK, resp)
}
