// Package stats wraps the football-data.org REST API behind per-operation
// TTL caches so the free-tier rate limit is never the chat loop's problem.
package stats

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/touchlinehq/touchline/internal/httpx"
)

const competition = "PL"

// Clamp bounds for the tool-facing operations.
const (
	MinScorerLimit  = 1
	MaxScorerLimit  = 20
	MinResultDays   = 1
	MaxResultDays   = 30
	MinFixtureDays  = 1
	MaxFixtureDays  = 60
	DefaultScorers  = 10
	DefaultResults  = 14
	DefaultFixtures = 21
)

type Client struct {
	baseURL string
	apiKey  string
	http    *httpx.Client
	cache   *ttlCache
	logger  *log.Logger
	now     func() time.Time
}

func NewClient(apiKey, baseURL string, cacheTTL, timeout time.Duration) *Client {
	logger := log.New(log.Writer(), "[STATS] ", log.LstdFlags)
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    httpx.New(timeout, 0, 0),
		cache:   newTTLCache(cacheTTL, logger),
		logger:  logger,
		now:     time.Now,
	}
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	headers := map[string]string{"X-Auth-Token": c.apiKey}
	return c.http.DoJSON(ctx, http.MethodGet, u, headers, nil, out)
}

// Standings returns the current league table.
func (c *Client) Standings(ctx context.Context) (string, error) {
	return c.cache.get(ctx, "standings", func(ctx context.Context) (string, error) {
		var resp standingsResponse
		if err := c.getJSON(ctx, "/competitions/"+competition+"/standings", nil, &resp); err != nil {
			return "", err
		}
		if s := formatStandings(resp); s != "" {
			return s, nil
		}
		return "No standings data available.", nil
	})
}

// TopScorers returns the season's top scorers, limit clamped to [1,20].
func (c *Client) TopScorers(ctx context.Context, limit int) (string, error) {
	limit = clamp(limit, MinScorerLimit, MaxScorerLimit)
	key := fmt.Sprintf("scorers_%d", limit)
	return c.cache.get(ctx, key, func(ctx context.Context) (string, error) {
		params := url.Values{"limit": {fmt.Sprint(limit)}}
		var resp scorersResponse
		if err := c.getJSON(ctx, "/competitions/"+competition+"/scorers", params, &resp); err != nil {
			return "", err
		}
		if s := formatTopScorers(resp); s != "" {
			return s, nil
		}
		return "No scorers data available.", nil
	})
}

// RecentResults returns finished matches from the past days, clamped to [1,30].
func (c *Client) RecentResults(ctx context.Context, days int) (string, error) {
	days = clamp(days, MinResultDays, MaxResultDays)
	key := fmt.Sprintf("results_%d", days)
	return c.cache.get(ctx, key, func(ctx context.Context) (string, error) {
		today := c.now().UTC()
		params := url.Values{
			"status":   {"FINISHED"},
			"dateFrom": {today.AddDate(0, 0, -days).Format("2006-01-02")},
			"dateTo":   {today.Format("2006-01-02")},
		}
		var resp matchesResponse
		if err := c.getJSON(ctx, "/competitions/"+competition+"/matches", params, &resp); err != nil {
			return "", err
		}
		if s := formatRecentResults(resp, days); s != "" {
			return s, nil
		}
		return fmt.Sprintf("No results found in the last %d days.", days), nil
	})
}

// UpcomingFixtures returns scheduled matches in the next days, clamped to [1,60].
func (c *Client) UpcomingFixtures(ctx context.Context, days int) (string, error) {
	days = clamp(days, MinFixtureDays, MaxFixtureDays)
	key := fmt.Sprintf("fixtures_%d", days)
	return c.cache.get(ctx, key, func(ctx context.Context) (string, error) {
		today := c.now().UTC()
		params := url.Values{
			"status":   {"SCHEDULED"},
			"dateFrom": {today.Format("2006-01-02")},
			"dateTo":   {today.AddDate(0, 0, days).Format("2006-01-02")},
		}
		var resp matchesResponse
		if err := c.getJSON(ctx, "/competitions/"+competition+"/matches", params, &resp); err != nil {
			return "", err
		}
		if s := formatUpcomingFixtures(resp, days); s != "" {
			return s, nil
		}
		return fmt.Sprintf("No fixtures found in the next %d days.", days), nil
	})
}

// Snapshot fetches standings, top scorers, recent results and upcoming
// fixtures concurrently and joins the sections that succeeded. A failing
// sub-query only drops its section; Snapshot fails when all four do.
func (c *Client) Snapshot(ctx context.Context) (string, error) {
	sections := make([]string, 4)
	g, ctx := errgroup.WithContext(ctx)

	fetch := func(slot int, name string, fn func(context.Context) (string, error)) {
		g.Go(func() error {
			s, err := fn(ctx)
			if err != nil {
				c.logger.Printf("snapshot section %q failed: %v", name, err)
				return nil
			}
			sections[slot] = s
			return nil
		})
	}

	fetch(0, "standings", func(ctx context.Context) (string, error) { return c.Standings(ctx) })
	fetch(1, "scorers", func(ctx context.Context) (string, error) { return c.TopScorers(ctx, DefaultScorers) })
	fetch(2, "results", func(ctx context.Context) (string, error) { return c.RecentResults(ctx, DefaultResults) })
	fetch(3, "fixtures", func(ctx context.Context) (string, error) { return c.UpcomingFixtures(ctx, DefaultFixtures) })

	_ = g.Wait()

	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no stats data returned from football-data.org")
	}
	return strings.Join(parts, "\n\n"), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
