// Package provider defines the chat-completion and embedding collaborator
// contract used by the ingestion pipeline and the chat engine.
package provider

import "context"

// Message is one entry of a chat transcript, in OpenAI wire shape.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its raw JSON argument payload.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool describes one entry of the tool catalogue advertised to the model.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// FinishReason indicates how the model ended its turn.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
)

// Completion is the model's reply: either a final message or a request to
// invoke tools, distinguished by Finish.
type Completion struct {
	Message Message
	Finish  FinishReason
}

// IsToolRequest reports whether the completion asks for tool executions
// rather than carrying a final answer.
func (c Completion) IsToolRequest() bool {
	return c.Finish == FinishToolCalls && len(c.Message.ToolCalls) > 0
}

// Provider is the combined chat-completion and embedding collaborator.
type Provider interface {
	// Complete runs one chat-completion round trip. A nil tool catalogue
	// disables tool calling for the request.
	Complete(ctx context.Context, messages []Message, tools []Tool) (Completion, error)

	// EmbedBatch maps texts to L2-normalized vectors, one per input, in
	// input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedOne embeds a single text in the same space as EmbedBatch.
	EmbedOne(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimensionality, pinned after the
	// first successful embedding call; zero beforehand.
	Dimension() int
}
