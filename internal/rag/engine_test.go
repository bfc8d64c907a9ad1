package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/touchlinehq/touchline/internal/index"
	"github.com/touchlinehq/touchline/provider"
	"github.com/touchlinehq/touchline/session"
	"github.com/touchlinehq/touchline/session/inmemory"
)

// scriptedProvider replays a fixed sequence of completions.
type scriptedProvider struct {
	completions []provider.Completion
	err         error
	calls       int
	transcripts [][]provider.Message
}

func (p *scriptedProvider) Complete(_ context.Context, messages []provider.Message, _ []provider.Tool) (provider.Completion, error) {
	p.transcripts = append(p.transcripts, messages)
	if p.err != nil {
		return provider.Completion{}, p.err
	}
	i := p.calls
	p.calls++
	if i >= len(p.completions) {
		i = len(p.completions) - 1
	}
	return p.completions[i], nil
}

func (p *scriptedProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (p *scriptedProvider) EmbedOne(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (p *scriptedProvider) Dimension() int { return 2 }

type recordingStats struct {
	calls []string
	err   error
}

func (s *recordingStats) Standings(context.Context) (string, error) {
	s.calls = append(s.calls, "standings")
	return "TABLE", s.err
}

func (s *recordingStats) TopScorers(_ context.Context, limit int) (string, error) {
	s.calls = append(s.calls, fmt.Sprintf("scorers:%d", limit))
	return "SCORERS", s.err
}

func (s *recordingStats) RecentResults(_ context.Context, days int) (string, error) {
	s.calls = append(s.calls, fmt.Sprintf("results:%d", days))
	return "RESULTS", s.err
}

func (s *recordingStats) UpcomingFixtures(_ context.Context, days int) (string, error) {
	s.calls = append(s.calls, fmt.Sprintf("fixtures:%d", days))
	return "FIXTURES", s.err
}

func finalAnswer(text string) provider.Completion {
	return provider.Completion{
		Message: provider.Message{Role: "assistant", Content: text},
		Finish:  provider.FinishStop,
	}
}

func toolRequest(calls ...provider.ToolCall) provider.Completion {
	return provider.Completion{
		Message: provider.Message{Role: "assistant", ToolCalls: calls},
		Finish:  provider.FinishToolCalls,
	}
}

func newTestEngine(llm provider.Provider, statsSrc StatsSource, hits []index.Hit) (*Engine, session.Store) {
	retriever := NewRetriever(&stubEmbedder{vector: []float32{1, 0}}, &stubSearcher{hits: hits})
	var dispatcher *ToolDispatcher
	if statsSrc != nil {
		dispatcher = NewToolDispatcher(statsSrc, nil)
	}
	store := inmemory.New(5)
	return NewEngine(retriever, llm, dispatcher, store, nil, 5), store
}

func TestChatReturnsFinalAnswerAndRecordsTurns(t *testing.T) {
	t.Parallel()
	llm := &scriptedProvider{completions: []provider.Completion{
		finalAnswer("Arsenal look class this season.\nSOURCES:"),
	}}
	engine, store := newTestEngine(llm, nil, nil)

	reply, err := engine.Chat(context.Background(), "s1", "how are arsenal doing?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.Answer != "Arsenal look class this season." {
		t.Fatalf("answer = %q", reply.Answer)
	}

	turns, err := store.History(context.Background(), "s1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != 2 || turns[0].Role != "user" || turns[1].Role != "assistant" {
		t.Fatalf("unexpected history: %+v", turns)
	}
	if turns[1].Content != "Arsenal look class this season." {
		t.Fatalf("assistant turn stores footer: %q", turns[1].Content)
	}
}

func TestChatDispatchesToolCallsSequentially(t *testing.T) {
	t.Parallel()
	stats := &recordingStats{}
	llm := &scriptedProvider{completions: []provider.Completion{
		toolRequest(
			provider.ToolCall{ID: "c1", Type: "function", Function: provider.FunctionCall{Name: "get_standings", Arguments: "{}"}},
			provider.ToolCall{ID: "c2", Type: "function", Function: provider.FunctionCall{Name: "get_top_scorers", Arguments: `{"limit": 5}`}},
		),
		finalAnswer("Here's the latest, mate."),
	}}
	engine, _ := newTestEngine(llm, stats, nil)

	reply, err := engine.Chat(context.Background(), "s1", "table and scorers?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.Answer != "Here's the latest, mate." {
		t.Fatalf("answer = %q", reply.Answer)
	}
	if len(stats.calls) != 2 || stats.calls[0] != "standings" || stats.calls[1] != "scorers:5" {
		t.Fatalf("tool calls = %v", stats.calls)
	}

	// The second round trip must carry the tool results keyed by call ID.
	last := llm.transcripts[len(llm.transcripts)-1]
	var toolMsgs []provider.Message
	for _, m := range last {
		if m.Role == "tool" {
			toolMsgs = append(toolMsgs, m)
		}
	}
	if len(toolMsgs) != 2 || toolMsgs[0].ToolCallID != "c1" || toolMsgs[1].ToolCallID != "c2" {
		t.Fatalf("tool messages = %+v", toolMsgs)
	}
	if toolMsgs[0].Content != "TABLE" || toolMsgs[1].Content != "SCORERS" {
		t.Fatalf("tool contents = %+v", toolMsgs)
	}
}

func TestChatStopsAfterFiveToolIterations(t *testing.T) {
	t.Parallel()
	// The model asks for tools on every round trip and never answers.
	llm := &scriptedProvider{completions: []provider.Completion{
		toolRequest(provider.ToolCall{ID: "c", Type: "function", Function: provider.FunctionCall{Name: "get_standings"}}),
	}}
	engine, _ := newTestEngine(llm, &recordingStats{}, nil)

	reply, err := engine.Chat(context.Background(), "s1", "loop forever")
	if err != nil {
		t.Fatalf("loop exhaustion must not error: %v", err)
	}
	if llm.calls != 5 {
		t.Fatalf("model called %d times, want exactly 5", llm.calls)
	}
	if reply.Answer != "" {
		t.Fatalf("exhausted loop should yield empty answer, got %q", reply.Answer)
	}
}

func TestChatEmptyToolCallListEndsTurn(t *testing.T) {
	t.Parallel()
	llm := &scriptedProvider{completions: []provider.Completion{
		{Message: provider.Message{Role: "assistant"}, Finish: provider.FinishToolCalls},
	}}
	engine, _ := newTestEngine(llm, &recordingStats{}, nil)

	reply, err := engine.Chat(context.Background(), "s1", "hm")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if llm.calls != 1 {
		t.Fatalf("model called %d times, want 1", llm.calls)
	}
	if reply.Answer != "" {
		t.Fatalf("answer = %q, want empty", reply.Answer)
	}
}

func TestChatProviderOutageIsAnError(t *testing.T) {
	t.Parallel()
	llm := &scriptedProvider{err: errors.New("openai down")}
	engine, store := newTestEngine(llm, nil, nil)

	if _, err := engine.Chat(context.Background(), "s1", "hi"); err == nil {
		t.Fatalf("expected error when completion fails")
	}
	turns, _ := store.History(context.Background(), "s1")
	if len(turns) != 0 {
		t.Fatalf("failed turn must not be recorded, got %+v", turns)
	}
}

func TestChatInjectsContextAndSourcesInstruction(t *testing.T) {
	t.Parallel()
	hits := []index.Hit{
		{Properties: index.Properties{Title: "Derby drama", Summary: "Late equalizer.", Source: "bbc_sport"}, Certainty: 0.95},
	}
	llm := &scriptedProvider{completions: []provider.Completion{
		finalAnswer("Proper drama that.\nSOURCES: 1"),
	}}
	engine, _ := newTestEngine(llm, nil, hits)

	reply, err := engine.Chat(context.Background(), "s1", "what happened in the derby?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.RetrievedDocCount != 1 {
		t.Fatalf("retrieved count = %d", reply.RetrievedDocCount)
	}
	if len(reply.Sources) != 1 || reply.Sources[0].Title != "Derby drama" {
		t.Fatalf("sources = %+v", reply.Sources)
	}

	first := llm.transcripts[0]
	if first[0].Role != "system" || !strings.Contains(first[0].Content, "Footy Phil") {
		t.Fatalf("system prompt missing")
	}
	user := first[len(first)-1]
	if user.Role != "user" {
		t.Fatalf("last message role = %q", user.Role)
	}
	if !strings.Contains(user.Content, "[BBC_SPORT] Derby drama") {
		t.Fatalf("context block missing from user message:\n%s", user.Content)
	}
	if !strings.Contains(user.Content, "SOURCES:") {
		t.Fatalf("citation instruction missing:\n%s", user.Content)
	}
	if !strings.HasSuffix(user.Content, "what happened in the derby?") {
		t.Fatalf("user question should come last:\n%s", user.Content)
	}
}

func TestChatCarriesHistoryIntoTranscript(t *testing.T) {
	t.Parallel()
	llm := &scriptedProvider{completions: []provider.Completion{finalAnswer("Still top, mate.")}}
	engine, store := newTestEngine(llm, nil, nil)
	ctx := context.Background()

	_ = store.AddTurn(ctx, "s1", session.Turn{Role: "user", Content: "who's top?"})
	_ = store.AddTurn(ctx, "s1", session.Turn{Role: "assistant", Content: "Arsenal, mate."})

	if _, err := engine.Chat(ctx, "s1", "still?"); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	first := llm.transcripts[0]
	if len(first) != 4 {
		t.Fatalf("transcript length = %d, want system+2 history+user", len(first))
	}
	if first[1].Content != "who's top?" || first[2].Content != "Arsenal, mate." {
		t.Fatalf("history not injected: %+v", first)
	}
}

func TestParseSourcesFooter(t *testing.T) {
	t.Parallel()
	docs := []SourceDoc{{Title: "one"}, {Title: "two"}, {Title: "three"}}

	cases := []struct {
		name      string
		raw       string
		wantText  string
		wantTitle []string
	}{
		{"plain footer", "Answer.\nSOURCES: 1,3", "Answer.", []string{"one", "three"}},
		{"lowercase typo", "Answer.\nsourcess: 2", "Answer.", []string{"two"}},
		{"singular variant", "Answer.\nSOURCE: 1", "Answer.", []string{"one"}},
		{"empty footer", "Answer.\nSOURCES:", "Answer.", nil},
		{"no footer", "Just an answer.", "Just an answer.", nil},
		{"out of range dropped", "Answer.\nSOURCES: 2, 9", "Answer.", []string{"two"}},
		{"trailing whitespace", "Answer.\nSOURCES: 1 \n", "Answer.", []string{"one"}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			text, used := parseSourcesFooter(tc.raw, docs)
			if text != tc.wantText {
				t.Fatalf("text = %q, want %q", text, tc.wantText)
			}
			if len(used) != len(tc.wantTitle) {
				t.Fatalf("used = %+v, want titles %v", used, tc.wantTitle)
			}
			for i, title := range tc.wantTitle {
				if used[i].Title != title {
					t.Fatalf("used[%d] = %q, want %q", i, used[i].Title, title)
				}
			}
		})
	}
}

func TestDispatchUnknownToolAndFailures(t *testing.T) {
	t.Parallel()
	d := NewToolDispatcher(&recordingStats{}, nil)

	got := d.Dispatch(context.Background(), provider.ToolCall{
		ID: "c1", Type: "function",
		Function: provider.FunctionCall{Name: "get_weather"},
	})
	if got != "Unknown tool: get_weather" {
		t.Fatalf("got %q", got)
	}

	failing := NewToolDispatcher(&recordingStats{err: errors.New("rate limited")}, nil)
	got = failing.Dispatch(context.Background(), provider.ToolCall{
		ID: "c2", Type: "function",
		Function: provider.FunctionCall{Name: "get_standings"},
	})
	if !strings.Contains(got, "Could not fetch data for get_standings") {
		t.Fatalf("got %q", got)
	}
}

func TestDispatchMalformedArgumentsFallsBackToDefaults(t *testing.T) {
	t.Parallel()
	stats := &recordingStats{}
	d := NewToolDispatcher(stats, nil)

	got := d.Dispatch(context.Background(), provider.ToolCall{
		ID: "c1", Type: "function",
		Function: provider.FunctionCall{Name: "get_recent_results", Arguments: "{nope"},
	})
	if got != "RESULTS" {
		t.Fatalf("got %q", got)
	}
	if len(stats.calls) != 1 || stats.calls[0] != "results:14" {
		t.Fatalf("calls = %v, want default days", stats.calls)
	}
}
