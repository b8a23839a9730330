package predict

import (
	"math"

	"github.com/XavierBriggs/Pythia/pkg/errkind"
	"github.com/XavierBriggs/Pythia/pkg/models"
)

const (
	baseRating   = 1500.0
	ratingK      = 60.0 // rating points per fully weighted result
	recencyDecay = 0.85 // weight multiplier per step back in the sequence

	// Goal-difference contribution per goal of per-match differential
	goalDiffScale = 50.0

	// Rating points the home side gets before the logistic mapping
	homeRatingOffset = 60.0

	// Larger rating gaps suppress the draw probability exponentially
	drawDecayScale = 600.0
	maxDrawProb    = 0.5
)

// RatingModel derives outcome probabilities from an Elo-style relative
// strength rating built from each team's recent results, with a logistic
// mapping from rating difference to win probability. The draw probability
// shrinks as the rating gap grows.
type RatingModel struct {
	minFormMatches int
}

// NewRatingModel creates the form/rating model
func NewRatingModel(minFormMatches int) *RatingModel {
	return &RatingModel{minFormMatches: minFormMatches}
}

// Name identifies the model in blend weights and quality scores
func (m *RatingModel) Name() string { return "rating" }

// Estimate maps the rating difference between the sides to a 1x2
// distribution. The model has no goal distribution, so it contributes
// no totals probabilities.
func (m *RatingModel) Estimate(in models.ModelInput) (*models.ModelEstimate, error) {
	homeRating, err := m.rating(in.HomeForm, "home")
	if err != nil {
		return nil, err
	}
	awayRating, err := m.rating(in.AwayForm, "away")
	if err != nil {
		return nil, err
	}

	diff := homeRating - awayRating + homeRatingOffset

	// Standard Elo expectation for the home side, conditional on a
	// decisive result
	pHomeDecisive := 1.0 / (1.0 + math.Pow(10, -diff/400.0))

	drawBase := in.Profile.DrawBaseRate
	if drawBase <= 0 {
		drawBase = 0.27
	}
	pDraw := drawBase * math.Exp(-math.Abs(diff)/drawDecayScale)
	if pDraw > maxDrawProb {
		pDraw = maxDrawProb
	}

	return &models.ModelEstimate{
		Outcomes: map[string]float64{
			models.OutcomeHome: (1 - pDraw) * pHomeDecisive,
			models.OutcomeDraw: pDraw,
			models.OutcomeAway: (1 - pDraw) * (1 - pHomeDecisive),
		},
	}, nil
}

// rating folds the recent-result sequence (most recent first) into a
// single strength number, with older results discounted, plus a
// goal-differential term from the form rates
func (m *RatingModel) rating(form *models.TeamForm, side string) (float64, error) {
	if form == nil {
		return 0, errkind.New(errkind.InsufficientData, "predict.rating", "no form snapshot for %s team", side)
	}
	if len(form.RecentResults) < m.minFormMatches {
		return 0, errkind.New(errkind.InsufficientData, "predict.rating",
			"%s team %s has %d recent results, need %d", side, form.TeamID, len(form.RecentResults), m.minFormMatches)
	}

	rating := baseRating
	weight := 1.0
	for _, result := range form.RecentResults {
		switch result {
		case models.ResultWin:
			rating += ratingK * weight
		case models.ResultLoss:
			rating -= ratingK * weight
		}
		weight *= recencyDecay
	}

	rating += (form.GoalsForRate - form.GoalsAgainstRate) * goalDiffScale
	return rating, nil
}
