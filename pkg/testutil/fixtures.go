// Package testutil provides shared entity builders for tests.
package testutil

import (
	"time"

	"github.com/XavierBriggs/Pythia/pkg/models"
)

// NewTestFixture creates a scheduled fixture kicking off the given number
// of hours from the reference time
func NewTestFixture(id, homeTeam, awayTeam string, now time.Time, hoursUntilKickoff float64) models.Fixture {
	return models.Fixture{
		ID:       id,
		League:   "serie_a",
		HomeTeam: homeTeam,
		AwayTeam: awayTeam,
		Kickoff:  now.Add(time.Duration(hoursUntilKickoff * float64(time.Hour))),
		Status:   models.FixtureScheduled,
	}
}

// NewTestForm creates a team form snapshot with balanced recent results
func NewTestForm(teamID string, goalsFor, goalsAgainst float64, results string) *models.TeamForm {
	form := &models.TeamForm{
		TeamID:           teamID,
		GoalsForRate:     goalsFor,
		GoalsAgainstRate: goalsAgainst,
		XGForRate:        goalsFor,
		XGAgainstRate:    goalsAgainst,
		AsOf:             time.Now(),
	}
	for _, r := range results {
		switch r {
		case 'W':
			form.RecentResults = append(form.RecentResults, models.ResultWin)
		case 'D':
			form.RecentResults = append(form.RecentResults, models.ResultDraw)
		case 'L':
			form.RecentResults = append(form.RecentResults, models.ResultLoss)
		}
	}
	return form
}

// NewTestQuote creates a quote timestamped at the reference time
func NewTestQuote(fixtureID, market, outcome string, price float64, ts time.Time) models.OddsQuote {
	return models.OddsQuote{
		FixtureID: fixtureID,
		Market:    market,
		Outcome:   outcome,
		Price:     price,
		Source:    "testbook",
		Timestamp: ts,
	}
}

// NewTestPrediction creates a prediction with the given 1x2 distribution
func NewTestPrediction(fixtureID string, home, draw, away, confidence float64, now time.Time) *models.Prediction {
	return &models.Prediction{
		FixtureID: fixtureID,
		Probabilities: map[string]float64{
			models.OutcomeHome: home,
			models.OutcomeDraw: draw,
			models.OutcomeAway: away,
		},
		Confidence:  confidence,
		GeneratedAt: now,
	}
}

// DefaultProfile returns a generic league profile for model tests
func DefaultProfile() models.LeagueProfile {
	return models.LeagueProfile{
		League:        "serie_a",
		HomeGoalsAvg:  1.35,
		AwayGoalsAvg:  1.05,
		HomeAdvantage: 1.3,
		DrawBaseRate:  0.27,
	}
}
