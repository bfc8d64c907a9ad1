package stats

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testLogger() *log.Logger {
	return log.New(log.Writer(), "[STATS-TEST] ", log.LstdFlags)
}

func TestCacheReturnsFreshValueWithoutFetching(t *testing.T) {
	t.Parallel()
	c := newTTLCache(time.Minute, testLogger())

	calls := 0
	fetch := func(context.Context) (string, error) {
		calls++
		return "payload", nil
	}

	for i := 0; i < 3; i++ {
		got, err := c.get(context.Background(), "k", fetch)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got != "payload" {
			t.Fatalf("got %q", got)
		}
	}
	if calls != 1 {
		t.Fatalf("fetch called %d times, want 1", calls)
	}
}

func TestCacheServesStaleOnRefreshFailure(t *testing.T) {
	t.Parallel()
	c := newTTLCache(time.Minute, testLogger())
	current := time.Now()
	c.now = func() time.Time { return current }

	if _, err := c.get(context.Background(), "k", func(context.Context) (string, error) {
		return "first", nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	current = current.Add(2 * time.Minute) // entry now expired
	got, err := c.get(context.Background(), "k", func(context.Context) (string, error) {
		return "", errors.New("upstream down")
	})
	if err != nil {
		t.Fatalf("stale fallback should not error: %v", err)
	}
	if got != "first" {
		t.Fatalf("got %q, want stale %q", got, "first")
	}
}

func TestCachePropagatesFailureWithoutPriorValue(t *testing.T) {
	t.Parallel()
	c := newTTLCache(time.Minute, testLogger())
	_, err := c.get(context.Background(), "k", func(context.Context) (string, error) {
		return "", errors.New("upstream down")
	})
	if err == nil {
		t.Fatalf("expected error when no cached value exists")
	}
}

func TestClamp(t *testing.T) {
	t.Parallel()
	if got := clamp(0, MinScorerLimit, MaxScorerLimit); got != 1 {
		t.Fatalf("clamp(0) = %d", got)
	}
	if got := clamp(99, MinScorerLimit, MaxScorerLimit); got != 20 {
		t.Fatalf("clamp(99) = %d", got)
	}
	if got := clamp(70, MinFixtureDays, MaxFixtureDays); got != 60 {
		t.Fatalf("clamp(70) = %d", got)
	}
}

func standingsBody() map[string]any {
	return map[string]any{
		"season": map[string]any{"currentMatchday": 3},
		"standings": []map[string]any{{
			"type": "TOTAL",
			"table": []map[string]any{{
				"position": 1,
				"team":     map[string]any{"name": "Arsenal FC", "shortName": "Arsenal"},
				"playedGames": 3, "won": 3, "draw": 0, "lost": 0,
				"goalsFor": 9, "goalsAgainst": 1, "goalDifference": 8, "points": 9,
			}},
		}},
	}
}

func TestSnapshotToleratesPartialFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/standings"):
			_ = json.NewEncoder(w).Encode(standingsBody())
		case strings.HasSuffix(r.URL.Path, "/scorers"):
			w.WriteHeader(http.StatusTooManyRequests)
		case strings.HasSuffix(r.URL.Path, "/matches"):
			_ = json.NewEncoder(w).Encode(map[string]any{"matches": []any{}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL, time.Minute, time.Second)
	got, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !strings.Contains(got, "PREMIER LEAGUE TABLE") {
		t.Fatalf("snapshot missing standings section:\n%s", got)
	}
	if strings.Contains(got, "TOP SCORERS") {
		t.Fatalf("failed scorers section must be omitted:\n%s", got)
	}
}

func TestSnapshotFailsOnlyWhenAllSectionsFail(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL, time.Minute, time.Second)
	if _, err := c.Snapshot(context.Background()); err == nil {
		t.Fatalf("expected snapshot failure when every section fails")
	}
}

func TestStandingsFormatting(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Auth-Token"); got != "key" {
			t.Errorf("missing auth token, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(standingsBody())
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL, time.Minute, time.Second)
	got, err := c.Standings(context.Background())
	if err != nil {
		t.Fatalf("Standings: %v", err)
	}
	if !strings.Contains(got, "PREMIER LEAGUE TABLE (Matchday 3)") {
		t.Fatalf("missing header:\n%s", got)
	}
	if !strings.Contains(got, "Arsenal") || !strings.Contains(got, "+8") {
		t.Fatalf("missing table row:\n%s", got)
	}
}

func TestTopScorersFormatting(t *testing.T) {
	t.Parallel()
	goals, assists, pens := 12, 3, 4
	data := scorersResponse{}
	data.Season.CurrentMatchday = 20
	data.Scorers = []struct {
		Player struct {
			Name string `json:"name"`
		} `json:"player"`
		Team      team `json:"team"`
		Goals     *int `json:"goals"`
		Assists   *int `json:"assists"`
		Penalties *int `json:"penalties"`
	}{{Team: team{Name: "Liverpool FC", ShortName: "Liverpool"}, Goals: &goals, Assists: &assists, Penalties: &pens}}
	data.Scorers[0].Player.Name = "M. Salah"

	got := formatTopScorers(data)
	if !strings.Contains(got, "M. Salah (Liverpool)") || !strings.Contains(got, "12G (4 pens), 3A") {
		t.Fatalf("unexpected formatting:\n%s", got)
	}
}

func TestUpcomingFixturesSortsAscending(t *testing.T) {
	t.Parallel()
	var data matchesResponse
	raw := `{"matches":[
		{"utcDate":"2025-03-08T15:00:00Z","matchday":28,"homeTeam":{"shortName":"Spurs"},"awayTeam":{"shortName":"Chelsea"}},
		{"utcDate":"2025-03-01T12:30:00Z","matchday":27,"homeTeam":{"shortName":"Everton"},"awayTeam":{"shortName":"West Ham"}}
	]}`
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := formatUpcomingFixtures(data, 21)
	first := strings.Index(got, "Everton")
	second := strings.Index(got, "Spurs")
	if first == -1 || second == -1 || first > second {
		t.Fatalf("fixtures not sorted ascending:\n%s", got)
	}
}
