package models

import "time"

// FixtureStatus tracks a fixture through its scheduling lifecycle
type FixtureStatus string

const (
	FixtureScheduled FixtureStatus = "scheduled"
	FixturePostponed FixtureStatus = "postponed"
	FixtureCancelled FixtureStatus = "cancelled"
	FixtureFinished  FixtureStatus = "finished"
)

// Fixture represents one scheduled match after normalization
type Fixture struct {
	ID       string        `json:"id"`
	League   string        `json:"league"`
	HomeTeam string        `json:"home_team"`
	AwayTeam string        `json:"away_team"`
	Kickoff  time.Time     `json:"kickoff"`
	Status   FixtureStatus `json:"status"`
}

// RawFixtureRecord is one source's unvalidated view of a fixture.
// Zero values mark fields the source did not provide.
type RawFixtureRecord struct {
	Source    string        `json:"source"`
	FixtureID string        `json:"fixture_id"`
	League    string        `json:"league"`
	HomeTeam  string        `json:"home_team"`
	AwayTeam  string        `json:"away_team"`
	Kickoff   time.Time     `json:"kickoff"`
	Status    FixtureStatus `json:"status"`
}

// MatchResult is a single entry in a team's recent-result sequence
type MatchResult string

const (
	ResultWin  MatchResult = "W"
	ResultDraw MatchResult = "D"
	ResultLoss MatchResult = "L"
)

// TeamForm is a rolling statistical snapshot of a team.
// Snapshots are superseded by newer ones, never mutated.
type TeamForm struct {
	TeamID           string        `json:"team_id"`
	GoalsForRate     float64       `json:"goals_for_rate"`     // goals scored per match
	GoalsAgainstRate float64       `json:"goals_against_rate"` // goals conceded per match
	XGForRate        float64       `json:"xg_for_rate"`        // expected goals per match
	XGAgainstRate    float64       `json:"xg_against_rate"`    // expected goals conceded per match
	RecentResults    []MatchResult `json:"recent_results"`     // most recent first
	AsOf             time.Time     `json:"as_of"`
}

// LeagueProfile holds per-league baselines used by the prediction models
type LeagueProfile struct {
	League        string  `json:"league"`
	HomeGoalsAvg  float64 `json:"home_goals_avg"`  // average home goals per match
	AwayGoalsAvg  float64 `json:"away_goals_avg"`  // average away goals per match
	HomeAdvantage float64 `json:"home_advantage"`  // multiplier on home scoring rate
	DrawBaseRate  float64 `json:"draw_base_rate"`  // draw probability for evenly matched sides
}
