package models

import "time"

// ProbabilityTolerance is the allowed deviation of a probability
// distribution's sum from 1.0
const ProbabilityTolerance = 1e-6

// ModelOutput preserves one model's raw estimate inside a blended Prediction
type ModelOutput struct {
	Model         string             `json:"model"`
	Probabilities map[string]float64 `json:"probabilities"` // 1x2 outcome -> probability
	Weight        float64            `json:"weight"`        // effective blend weight after quality adjustment
}

// Prediction is the model-blended outcome distribution for one fixture.
// Exactly one live Prediction exists per fixture; a re-run before kickoff
// supersedes the previous one.
type Prediction struct {
	FixtureID     string             `json:"fixture_id"`
	Probabilities map[string]float64 `json:"probabilities"`         // 1x2 outcome -> probability, sums to 1
	OverUnder     map[string]float64 `json:"over_under,omitempty"`  // totals outcome -> probability
	BTTSYes       float64            `json:"btts_yes,omitempty"`    // both teams to score
	ModelOutputs  []ModelOutput      `json:"model_outputs"`
	Confidence    float64            `json:"confidence"` // inverse of inter-model disagreement, in (0, 1]
	GeneratedAt   time.Time          `json:"generated_at"`
}

// TopOutcome returns the most likely 1x2 outcome
func (p *Prediction) TopOutcome() string {
	top := ""
	best := -1.0
	for _, outcome := range MatchWinnerOutcomes() {
		if prob, ok := p.Probabilities[outcome]; ok && prob > best {
			best = prob
			top = outcome
		}
	}
	return top
}

// ModelEstimate is a single model's contribution before blending
type ModelEstimate struct {
	Outcomes  map[string]float64 // 1x2 outcome -> probability, sums to 1
	OverUnder map[string]float64 // totals outcome -> probability; nil when the model has no goal distribution
	BTTSYes   float64
	HasTotals bool
}

// ModelInput carries everything a model needs for one fixture
type ModelInput struct {
	Fixture  Fixture
	HomeForm *TeamForm
	AwayForm *TeamForm
	Profile  LeagueProfile
}
