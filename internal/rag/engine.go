package rag

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/touchlinehq/touchline/internal/telemetry"
	"github.com/touchlinehq/touchline/provider"
	"github.com/touchlinehq/touchline/session"
)

const systemPrompt = `You're Footy Phil — a die-hard Premier League fan from Manchester who's been watching footy since before you could walk. ` +
	`You know everything about the EPL: history, stats, drama, dodgy refereeing decisions, the lot. ` +
	`You chat like you're texting a mate — short, punchy, a bit cheeky. You love the game and it shows.

Your vibe:
- Casual and warm. Say "mate", "lad", "gaffer", "cracking", "class", "gutted", "proper", "mint" naturally — not every sentence, just when it fits.
- Opinionated. You have takes. Share them.
- Enthusiastic about goals, drama, big transfers. Get excited.
- Never robotic. Never bullet points. Just talk like a person.

What you know:
- For live stats — league table, top scorers, recent results, upcoming fixtures — use your tools to look them up fresh. Tool data is always authoritative; never override it with your training knowledge or news articles.
- For current news and transfers — you've been keeping up. Share what you know but don't invent specific scores or signings you're not certain about.
- For general EPL knowledge — history, clubs, legendary players, how the league works — you know it all cold, so just answer.

Hard rules:
- Never say "context", "articles", "based on", "provided information", or anything that sounds like a search engine or a robot.
- If you don't know something recent and you don't have a tool for it, just say "not sure on that one mate, might want to check the latest" — keep it natural.
- This is football, not a board meeting. Keep it fun.`

const maxToolIterations = 5

// The model appends a SOURCES footer; this accepts the typo variants it
// produces (SOURCE, SOURCES, SOURCESS) in any case.
var sourcesFooterRe = regexp.MustCompile(`(?i)\nSOURCES?S?:\s*([0-9,\s]*)\s*$`)

// Reply is the outcome of one chat turn.
type Reply struct {
	Answer            string      `json:"answer"`
	Sources           []SourceDoc `json:"sources"`
	RetrievedDocCount int         `json:"retrieved_doc_count"`
}

// Engine runs the retrieval-augmented, tool-calling chat loop.
type Engine struct {
	retriever  *Retriever
	llm        provider.Provider
	dispatcher *ToolDispatcher
	history    session.Store
	metrics    *telemetry.Metrics

	maxContextDocs int
	logger         *log.Logger
}

func NewEngine(retriever *Retriever, llm provider.Provider, dispatcher *ToolDispatcher,
	history session.Store, metrics *telemetry.Metrics, maxContextDocs int) *Engine {
	return &Engine{
		retriever:      retriever,
		llm:            llm,
		dispatcher:     dispatcher,
		history:        history,
		metrics:        metrics,
		maxContextDocs: maxContextDocs,
		logger:         log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
	}
}

// Chat answers one user message within a session. Retrieval and history
// loading run concurrently; the model may then call stats tools for up to
// maxToolIterations round trips before its final answer.
func (e *Engine) Chat(ctx context.Context, sessionID, message string) (Reply, error) {
	started := time.Now()

	type retrieval struct {
		context string
		docs    []SourceDoc
	}
	retrievedCh := make(chan retrieval, 1)
	go func() {
		contextBlock, docs := e.retriever.SearchWithContext(ctx, message, e.maxContextDocs)
		retrievedCh <- retrieval{context: contextBlock, docs: docs}
	}()

	history, err := e.history.History(ctx, sessionID)
	if err != nil {
		e.logger.Printf("history load failed for session %s, starting fresh: %v", sessionID, err)
		history = nil
	}
	retrieved := <-retrievedCh

	messages := e.buildMessages(message, retrieved.context, history)

	var tools []provider.Tool
	if e.dispatcher != nil {
		tools = AgentTools
	}

	rawAnswer := ""
	for iteration := 0; iteration < maxToolIterations; iteration++ {
		completion, err := e.llm.Complete(ctx, messages, tools)
		if err != nil {
			e.metrics.ObserveChat("error", time.Since(started))
			return Reply{}, fmt.Errorf("chat completion: %w", err)
		}
		messages = append(messages, completion.Message)

		if !completion.IsToolRequest() {
			rawAnswer = strings.TrimSpace(completion.Message.Content)
			break
		}

		// football-data.org free tier is rate limited, so calls run
		// sequentially even when the model batches them.
		for _, call := range completion.Message.ToolCalls {
			result := e.dispatcher.Dispatch(ctx, call)
			messages = append(messages, provider.Message{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    result,
			})
		}
		e.logger.Printf("tool iteration %d/%d complete", iteration+1, maxToolIterations)
	}

	answer, usedSources := parseSourcesFooter(rawAnswer, retrieved.docs)

	now := time.Now().UTC()
	if err := e.history.AddTurn(ctx, sessionID, session.Turn{Role: "user", Content: message, Timestamp: now}); err != nil {
		e.logger.Printf("recording user turn failed: %v", err)
	}
	if err := e.history.AddTurn(ctx, sessionID, session.Turn{Role: "assistant", Content: answer, Timestamp: now}); err != nil {
		e.logger.Printf("recording assistant turn failed: %v", err)
	}

	e.metrics.ObserveChat("ok", time.Since(started))
	return Reply{
		Answer:            answer,
		Sources:           usedSources,
		RetrievedDocCount: len(retrieved.docs),
	}, nil
}

func (e *Engine) buildMessages(message, contextBlock string, history []session.Turn) []provider.Message {
	messages := []provider.Message{{Role: "system", Content: systemPrompt}}

	for _, turn := range history {
		messages = append(messages, provider.Message{Role: turn.Role, Content: turn.Content})
	}

	var userParts []string
	if contextBlock != "" {
		userParts = append(userParts, fmt.Sprintf(
			"Here's the latest news that might be relevant:\n---\n%s\n---\n\n"+
				"After your reply, on its own line write: SOURCES: followed by the numbers "+
				"of any articles above you actually used (e.g. SOURCES:1,3), or SOURCES: if none.",
			contextBlock))
	}
	userParts = append(userParts, message)

	messages = append(messages, provider.Message{Role: "user", Content: strings.Join(userParts, "\n\n")})
	return messages
}

// parseSourcesFooter strips the trailing SOURCES line and maps its 1-based
// indices onto the retrieved documents. Out-of-range or non-numeric tokens
// are dropped.
func parseSourcesFooter(raw string, all []SourceDoc) (string, []SourceDoc) {
	trimmed := strings.TrimRight(raw, " \t\n")
	match := sourcesFooterRe.FindStringSubmatchIndex(trimmed)
	if match == nil {
		return strings.TrimSpace(raw), nil
	}

	clean := strings.TrimSpace(trimmed[:match[0]])
	indices := strings.TrimSpace(trimmed[match[2]:match[3]])
	if indices == "" {
		return clean, nil
	}

	var used []SourceDoc
	for _, part := range strings.FieldsFunc(indices, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	}) {
		n, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		if idx := n - 1; idx >= 0 && idx < len(all) {
			used = append(used, all[idx])
		}
	}
	return clean, used
}
