// Package predict turns normalized fixture and form data into a blended
// outcome distribution. Each model is independent; the engine excludes
// models that cannot estimate and renormalizes the rest.
package predict

import (
	"math"

	"github.com/XavierBriggs/Pythia/pkg/errkind"
	"github.com/XavierBriggs/Pythia/pkg/models"
)

const (
	// Scoring-rate bounds keep a bad form snapshot from producing a
	// degenerate score matrix
	minLambda = 0.05
	maxLambda = 6.0

	// Goal line for the totals market
	totalsLine = 2.5
)

// PoissonModel derives a score-probability matrix from each team's
// expected-goals rate under an independent-Poisson assumption, then
// marginalizes match and totals outcomes from it.
type PoissonModel struct {
	maxGoals       int // matrix bound per side
	minFormMatches int
}

// NewPoissonModel creates the goal-rate model
func NewPoissonModel(maxGoals, minFormMatches int) *PoissonModel {
	if maxGoals <= 0 {
		maxGoals = 10
	}
	return &PoissonModel{maxGoals: maxGoals, minFormMatches: minFormMatches}
}

// Name identifies the model in blend weights and quality scores
func (m *PoissonModel) Name() string { return "poisson" }

// Estimate builds the joint scoring-rate pair for the fixture and
// marginalizes outcome probabilities from the score matrix
func (m *PoissonModel) Estimate(in models.ModelInput) (*models.ModelEstimate, error) {
	homeAttack, err := m.attackRate(in.HomeForm, "home")
	if err != nil {
		return nil, err
	}
	awayAttack, err := m.attackRate(in.AwayForm, "away")
	if err != nil {
		return nil, err
	}

	leagueMean := (in.Profile.HomeGoalsAvg + in.Profile.AwayGoalsAvg) / 2
	if leagueMean <= 0 {
		leagueMean = 1.2
	}
	homeAdvantage := in.Profile.HomeAdvantage
	if homeAdvantage <= 0 {
		homeAdvantage = 1.3
	}

	// Opponent defensive factor relative to the league average: 1.0 is an
	// average defense, above 1.0 concedes more than typical
	homeDefense := m.defenseFactor(in.HomeForm, leagueMean)
	awayDefense := m.defenseFactor(in.AwayForm, leagueMean)

	lambdaHome := clampLambda(homeAttack * awayDefense * homeAdvantage)
	lambdaAway := clampLambda(awayAttack * homeDefense)

	return m.marginalize(lambdaHome, lambdaAway), nil
}

// attackRate picks the team's scoring rate, preferring xG over raw goals
func (m *PoissonModel) attackRate(form *models.TeamForm, side string) (float64, error) {
	if form == nil {
		return 0, errkind.New(errkind.InsufficientData, "predict.poisson", "no form snapshot for %s team", side)
	}
	if len(form.RecentResults) < m.minFormMatches {
		return 0, errkind.New(errkind.InsufficientData, "predict.poisson",
			"%s team %s has %d recent results, need %d", side, form.TeamID, len(form.RecentResults), m.minFormMatches)
	}

	if form.XGForRate > 0 {
		return form.XGForRate, nil
	}
	if form.GoalsForRate > 0 {
		return form.GoalsForRate, nil
	}
	return 0, errkind.New(errkind.InsufficientData, "predict.poisson", "%s team %s has no scoring rate", side, form.TeamID)
}

// defenseFactor compares the team's concession rate to the league mean
func (m *PoissonModel) defenseFactor(form *models.TeamForm, leagueMean float64) float64 {
	rate := form.XGAgainstRate
	if rate <= 0 {
		rate = form.GoalsAgainstRate
	}
	if rate <= 0 {
		return 1.0
	}
	return rate / leagueMean
}

// marginalize derives 1x2, totals, and both-teams-to-score probabilities
// from the truncated score matrix, renormalizing away the truncated mass
func (m *PoissonModel) marginalize(lambdaHome, lambdaAway float64) *models.ModelEstimate {
	homePMF := poissonPMF(lambdaHome, m.maxGoals)
	awayPMF := poissonPMF(lambdaAway, m.maxGoals)

	var pHome, pDraw, pAway, pOver, pBTTS, mass float64
	for h := 0; h <= m.maxGoals; h++ {
		for a := 0; a <= m.maxGoals; a++ {
			p := homePMF[h] * awayPMF[a]
			mass += p

			switch {
			case h > a:
				pHome += p
			case h == a:
				pDraw += p
			default:
				pAway += p
			}
			if float64(h+a) > totalsLine {
				pOver += p
			}
			if h >= 1 && a >= 1 {
				pBTTS += p
			}
		}
	}

	return &models.ModelEstimate{
		Outcomes: map[string]float64{
			models.OutcomeHome: pHome / mass,
			models.OutcomeDraw: pDraw / mass,
			models.OutcomeAway: pAway / mass,
		},
		OverUnder: map[string]float64{
			models.OutcomeOver:  pOver / mass,
			models.OutcomeUnder: 1 - pOver/mass,
		},
		BTTSYes:   pBTTS / mass,
		HasTotals: true,
	}
}

// poissonPMF computes P(X = k) for k in 0..maxK, iteratively to avoid
// factorial overflow
func poissonPMF(lambda float64, maxK int) []float64 {
	pmf := make([]float64, maxK+1)
	pmf[0] = math.Exp(-lambda)
	for k := 1; k <= maxK; k++ {
		pmf[k] = pmf[k-1] * lambda / float64(k)
	}
	return pmf
}

func clampLambda(v float64) float64 {
	if v < minLambda {
		return minLambda
	}
	if v > maxLambda {
		return maxLambda
	}
	return v
}
