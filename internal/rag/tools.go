package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/touchlinehq/touchline/internal/telemetry"
	"github.com/touchlinehq/touchline/provider"
)

// StatsSource is the live-data collaborator behind the tool catalogue.
type StatsSource interface {
	Standings(ctx context.Context) (string, error)
	TopScorers(ctx context.Context, limit int) (string, error)
	RecentResults(ctx context.Context, days int) (string, error)
	UpcomingFixtures(ctx context.Context, days int) (string, error)
}

// AgentTools is the function catalogue advertised to the model. The model
// picks which to call based on the user's question.
var AgentTools = []provider.Tool{
	{
		Type: "function",
		Function: provider.ToolFunction{
			Name: "get_standings",
			Description: "Fetch the current Premier League table showing position, points, " +
				"wins, draws, losses, goals for/against, and goal difference for all 20 clubs.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
				"required":   []string{},
			},
		},
	},
	{
		Type: "function",
		Function: provider.ToolFunction{
			Name: "get_top_scorers",
			Description: "Fetch the top goal scorers in the current Premier League season, " +
				"including goals, assists, and penalty goals.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"limit": map[string]any{
						"type":        "integer",
						"description": "How many top scorers to return (default 10, max 20).",
						"default":     10,
					},
				},
				"required": []string{},
			},
		},
	},
	{
		Type: "function",
		Function: provider.ToolFunction{
			Name: "get_recent_results",
			Description: "Fetch Premier League match results (finished games) from the past N days. " +
				"Use this when the user asks about recent scores, results, or how a team has been doing.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"days": map[string]any{
						"type":        "integer",
						"description": "How many days back to search for results (default 14, max 30).",
						"default":     14,
					},
				},
				"required": []string{},
			},
		},
	},
	{
		Type: "function",
		Function: provider.ToolFunction{
			Name: "get_upcoming_fixtures",
			Description: "Fetch upcoming Premier League fixtures (scheduled matches) in the next N days. " +
				"Use this when the user asks about upcoming games, next match, fixture list, or schedules.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"days": map[string]any{
						"type":        "integer",
						"description": "How many days ahead to look for fixtures (default 21, max 60).",
						"default":     21,
					},
				},
				"required": []string{},
			},
		},
	},
}

// ToolDispatcher routes model tool calls to the stats collaborator.
type ToolDispatcher struct {
	stats   StatsSource
	metrics *telemetry.Metrics
	logger  *log.Logger
}

func NewToolDispatcher(stats StatsSource, metrics *telemetry.Metrics) *ToolDispatcher {
	return &ToolDispatcher{
		stats:   stats,
		metrics: metrics,
		logger:  log.New(log.Writer(), "[TOOLS] ", log.LstdFlags),
	}
}

type toolArgs struct {
	Limit *int `json:"limit"`
	Days  *int `json:"days"`
}

// Dispatch executes one tool call and always returns a string result: either
// the formatted data, or a message the model can relay (unknown tool,
// upstream failure). Tool failures never abort the chat turn.
func (d *ToolDispatcher) Dispatch(ctx context.Context, call provider.ToolCall) string {
	name := call.Function.Name

	var args toolArgs
	if raw := call.Function.Arguments; raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			d.logger.Printf("malformed arguments for %s, using defaults: %v", name, err)
			args = toolArgs{}
		}
	}

	d.logger.Printf("tool call: %s(%s)", name, call.Function.Arguments)
	d.metrics.ObserveToolDispatch(name)

	var (
		result string
		err    error
	)
	switch name {
	case "get_standings":
		result, err = d.stats.Standings(ctx)
	case "get_top_scorers":
		result, err = d.stats.TopScorers(ctx, intOr(args.Limit, 10))
	case "get_recent_results":
		result, err = d.stats.RecentResults(ctx, intOr(args.Days, 14))
	case "get_upcoming_fixtures":
		result, err = d.stats.UpcomingFixtures(ctx, intOr(args.Days, 21))
	default:
		d.logger.Printf("unknown tool called: %s", name)
		return fmt.Sprintf("Unknown tool: %s", name)
	}

	if err != nil {
		d.logger.Printf("tool %s failed: %v", name, err)
		return fmt.Sprintf("Could not fetch data for %s: %v", name, err)
	}
	return result
}

func intOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}
