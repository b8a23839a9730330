package contracts

import (
	"context"
	"time"

	"github.com/XavierBriggs/Pythia/pkg/models"
)

// FixtureFeed supplies raw fixture records from one or more upstream
// sources. Records for the same fixture from different sources are
// reconciled by the normalizer.
type FixtureFeed interface {
	// FetchFixtures returns raw records for fixtures kicking off inside
	// the given window, grouped however the vendor returns them
	FetchFixtures(ctx context.Context, from, to time.Time) ([]models.RawFixtureRecord, error)
}

// FormFeed supplies rolling team statistics
type FormFeed interface {
	// FetchTeamForm returns the latest form snapshot for a team
	FetchTeamForm(ctx context.Context, league, teamID string) (*models.TeamForm, error)
}

// OddsFeed supplies market prices for a fixture
type OddsFeed interface {
	// FetchQuotes returns current quotes across markets for one fixture
	FetchQuotes(ctx context.Context, fixtureID string) ([]models.OddsQuote, error)
}

// Model is one independent statistical model inside the prediction engine
type Model interface {
	// Name identifies the model for blend weights and quality scores
	Name() string

	// Estimate produces outcome probabilities for one fixture, or an
	// errkind.InsufficientData error when history is too thin
	Estimate(input models.ModelInput) (*models.ModelEstimate, error)
}
