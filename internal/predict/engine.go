package predict

import (
	"time"

	"github.com/XavierBriggs/Pythia/pkg/contracts"
	"github.com/XavierBriggs/Pythia/pkg/errkind"
	"github.com/XavierBriggs/Pythia/pkg/models"
)

// Disagreement between models maps to confidence via
// 1 / (1 + scale * variance); at scale 50, a 0.2 spread in top-outcome
// probability between two models gives confidence ~0.67
const disagreementScale = 50.0

// Engine blends independent model estimates into one Prediction per
// fixture. Models that cannot estimate are excluded and the remaining
// weights renormalized; only when every model fails does the engine
// report insufficient data.
type Engine struct {
	models  []contracts.Model
	weights map[string]float64 // model name -> base blend weight
}

// NewEngine creates a prediction engine over the given models
func NewEngine(engineModels []contracts.Model, weights map[string]float64) *Engine {
	return &Engine{models: engineModels, weights: weights}
}

// Predict runs every model and blends the successful estimates.
// quality holds externally tracked calibration scores in (0, 1]; a model
// with a low score contributes proportionally less weight. Missing
// scores default to full weight.
func (e *Engine) Predict(input models.ModelInput, quality map[string]float64, now time.Time) (*models.Prediction, error) {
	type contribution struct {
		name     string
		estimate *models.ModelEstimate
		weight   float64
	}

	var contribs []contribution
	var lastErr error

	for _, m := range e.models {
		est, err := m.Estimate(input)
		if err != nil {
			if errkind.IsInsufficientData(err) {
				lastErr = err
				continue
			}
			return nil, err
		}

		w := 1.0
		if bw, ok := e.weights[m.Name()]; ok && bw > 0 {
			w = bw
		}
		if q, ok := quality[m.Name()]; ok && q > 0 && q < 1 {
			w *= q
		}
		contribs = append(contribs, contribution{name: m.Name(), estimate: est, weight: w})
	}

	if len(contribs) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, errkind.New(errkind.InsufficientData, "predict.engine", "no models configured")
	}

	var totalWeight float64
	for _, c := range contribs {
		totalWeight += c.weight
	}

	// Blend 1x2 outcomes and renormalize to sum to exactly 1
	blended := make(map[string]float64, 3)
	for _, outcome := range models.MatchWinnerOutcomes() {
		var p float64
		for _, c := range contribs {
			p += c.weight * c.estimate.Outcomes[outcome]
		}
		blended[outcome] = p / totalWeight
	}
	renormalize(blended)

	// Totals and BTTS come only from models carrying a goal distribution
	var overUnder map[string]float64
	var btts float64
	var totalsWeight float64
	for _, c := range contribs {
		if !c.estimate.HasTotals {
			continue
		}
		if overUnder == nil {
			overUnder = make(map[string]float64, 2)
		}
		for _, outcome := range models.TotalsOutcomes() {
			overUnder[outcome] += c.weight * c.estimate.OverUnder[outcome]
		}
		btts += c.weight * c.estimate.BTTSYes
		totalsWeight += c.weight
	}
	if totalsWeight > 0 {
		for outcome := range overUnder {
			overUnder[outcome] /= totalsWeight
		}
		renormalize(overUnder)
		btts /= totalsWeight
	}

	prediction := &models.Prediction{
		FixtureID:     input.Fixture.ID,
		Probabilities: blended,
		OverUnder:     overUnder,
		BTTSYes:       btts,
		GeneratedAt:   now,
	}

	// Confidence is the inverse of model disagreement on the blended top
	// outcome: variance across the per-model probabilities for it
	top := prediction.TopOutcome()
	var mean float64
	for _, c := range contribs {
		mean += c.estimate.Outcomes[top]
	}
	mean /= float64(len(contribs))
	var variance float64
	for _, c := range contribs {
		d := c.estimate.Outcomes[top] - mean
		variance += d * d
	}
	variance /= float64(len(contribs))
	prediction.Confidence = 1.0 / (1.0 + disagreementScale*variance)

	for _, c := range contribs {
		out := make(map[string]float64, len(c.estimate.Outcomes))
		for k, v := range c.estimate.Outcomes {
			out[k] = v
		}
		prediction.ModelOutputs = append(prediction.ModelOutputs, models.ModelOutput{
			Model:         c.name,
			Probabilities: out,
			Weight:        c.weight / totalWeight,
		})
	}

	return prediction, nil
}

// renormalize scales a distribution so it sums to exactly 1
func renormalize(dist map[string]float64) {
	var sum float64
	for _, p := range dist {
		sum += p
	}
	if sum <= 0 {
		return
	}
	for k, p := range dist {
		dist[k] = p / sum
	}
}
