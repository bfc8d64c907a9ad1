package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type team struct {
	Name      string `json:"name"`
	ShortName string `json:"shortName"`
}

func (t team) display() string {
	if t.ShortName != "" {
		return t.ShortName
	}
	return t.Name
}

type season struct {
	CurrentMatchday int `json:"currentMatchday"`
}

type standingsResponse struct {
	Season    season `json:"season"`
	Standings []struct {
		Type  string `json:"type"`
		Table []struct {
			Position       int  `json:"position"`
			Team           team `json:"team"`
			PlayedGames    int  `json:"playedGames"`
			Won            int  `json:"won"`
			Draw           int  `json:"draw"`
			Lost           int  `json:"lost"`
			GoalsFor       int  `json:"goalsFor"`
			GoalsAgainst   int  `json:"goalsAgainst"`
			GoalDifference int  `json:"goalDifference"`
			Points         int  `json:"points"`
		} `json:"table"`
	} `json:"standings"`
}

type scorersResponse struct {
	Season  season `json:"season"`
	Scorers []struct {
		Player struct {
			Name string `json:"name"`
		} `json:"player"`
		Team      team `json:"team"`
		Goals     *int `json:"goals"`
		Assists   *int `json:"assists"`
		Penalties *int `json:"penalties"`
	} `json:"scorers"`
}

type matchesResponse struct {
	Matches []struct {
		UTCDate  string `json:"utcDate"`
		Matchday int    `json:"matchday"`
		HomeTeam team   `json:"homeTeam"`
		AwayTeam team   `json:"awayTeam"`
		Score    struct {
			FullTime struct {
				Home *int `json:"home"`
				Away *int `json:"away"`
			} `json:"fullTime"`
		} `json:"score"`
	} `json:"matches"`
}

func formatStandings(data standingsResponse) string {
	for _, s := range data.Standings {
		if s.Type != "TOTAL" {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "PREMIER LEAGUE TABLE (Matchday %d)\n", data.Season.CurrentMatchday)
		fmt.Fprintf(&b, "%-4s %-22s %2s  %2s %2s %2s  %3s %3s %4s  %3s\n",
			"Pos", "Team", "P", "W", "D", "L", "GF", "GA", "GD", "Pts")
		b.WriteString(strings.Repeat("-", 62))
		for _, row := range s.Table {
			gd := fmt.Sprintf("%d", row.GoalDifference)
			if row.GoalDifference > 0 {
				gd = "+" + gd
			}
			fmt.Fprintf(&b, "\n%-4d %-22s %2d  %2d %2d %2d  %3d %3d %4s  %3d",
				row.Position, row.Team.display(), row.PlayedGames,
				row.Won, row.Draw, row.Lost,
				row.GoalsFor, row.GoalsAgainst, gd, row.Points)
		}
		return b.String()
	}
	return ""
}

func formatTopScorers(data scorersResponse) string {
	if len(data.Scorers) == 0 {
		return ""
	}
	lines := []string{fmt.Sprintf("TOP SCORERS (Matchday %d)", data.Season.CurrentMatchday)}
	for i, s := range data.Scorers {
		penNote := ""
		if n := intOrZero(s.Penalties); n > 0 {
			penNote = fmt.Sprintf(" (%d pens)", n)
		}
		lines = append(lines, fmt.Sprintf("%2d. %s (%s) — %dG%s, %dA",
			i+1, s.Player.Name, s.Team.display(), intOrZero(s.Goals), penNote, intOrZero(s.Assists)))
	}
	return strings.Join(lines, "\n")
}

func formatRecentResults(data matchesResponse, days int) string {
	if len(data.Matches) == 0 {
		return ""
	}
	matches := data.Matches
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].UTCDate > matches[j].UTCDate })

	lines := []string{fmt.Sprintf("RECENT RESULTS (last %d days)", days)}
	for _, m := range matches {
		date := m.UTCDate
		if len(date) >= 10 {
			date = date[:10]
		}
		mdNote := ""
		if m.Matchday > 0 {
			mdNote = fmt.Sprintf("  MD%d", m.Matchday)
		}
		lines = append(lines, fmt.Sprintf("%s %s–%s %s  (%s)%s",
			m.HomeTeam.display(), scoreOrQuestion(m.Score.FullTime.Home),
			scoreOrQuestion(m.Score.FullTime.Away), m.AwayTeam.display(), date, mdNote))
	}
	return strings.Join(lines, "\n")
}

func formatUpcomingFixtures(data matchesResponse, days int) string {
	if len(data.Matches) == 0 {
		return ""
	}
	matches := data.Matches
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].UTCDate < matches[j].UTCDate })

	lines := []string{fmt.Sprintf("UPCOMING FIXTURES (next %d days)", days)}
	for _, m := range matches {
		var when string
		if t, err := time.Parse(time.RFC3339, m.UTCDate); err == nil {
			when = t.UTC().Format("Mon 02 Jan, 15:04 UTC")
		} else {
			when = strings.ReplaceAll(truncate(m.UTCDate, 16), "T", " ") + " UTC"
		}
		mdNote := ""
		if m.Matchday > 0 {
			mdNote = fmt.Sprintf("  (MD%d)", m.Matchday)
		}
		lines = append(lines, fmt.Sprintf("%s vs %s  —  %s%s",
			m.HomeTeam.display(), m.AwayTeam.display(), when, mdNote))
	}
	return strings.Join(lines, "\n")
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func scoreOrQuestion(p *int) string {
	if p == nil {
		return "?"
	}
	return fmt.Sprintf("%d", *p)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
