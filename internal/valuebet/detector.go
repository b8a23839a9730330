// Package valuebet compares blended model probabilities against market
// quotes and surfaces positive-expected-value opportunities.
package valuebet

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/XavierBriggs/Pythia/pkg/models"
)

// Edge thresholds for the suggested confidence tier
const (
	tierStrongEdge   = 0.10
	tierModerateEdge = 0.05
)

// Detector flags outcomes where the model probability beats the quoted
// price by at least the configured edge. Stale or missing quotes exclude
// an outcome silently; they are never an error.
type Detector struct {
	minEdge        float64
	minConfidence  float64
	quoteStaleness time.Duration
}

// NewDetector creates a detector with the configured thresholds
func NewDetector(minEdge, minConfidence float64, quoteStaleness time.Duration) *Detector {
	return &Detector{
		minEdge:        minEdge,
		minConfidence:  minConfidence,
		quoteStaleness: quoteStaleness,
	}
}

// Detect evaluates every market/outcome with both a model probability and
// a fresh quote, and returns the qualifying bets ordered by edge
// descending, ties broken by higher confidence then earlier kickoff.
func (d *Detector) Detect(prediction *models.Prediction, fixture models.Fixture, quotes []models.OddsQuote, now time.Time) []models.ValueBet {
	if prediction == nil {
		return nil
	}
	// Low-confidence predictions are excluded from consideration entirely
	if prediction.Confidence < d.minConfidence {
		return nil
	}

	fresh := d.freshestQuotes(quotes, now)

	var bets []models.ValueBet
	bets = append(bets, d.detectMarket(prediction, fixture, fresh, models.MarketMatchWinner, prediction.Probabilities, now)...)
	if prediction.OverUnder != nil {
		bets = append(bets, d.detectMarket(prediction, fixture, fresh, models.MarketTotals, prediction.OverUnder, now)...)
	}

	sort.SliceStable(bets, func(i, j int) bool {
		if bets[i].Edge != bets[j].Edge {
			return bets[i].Edge > bets[j].Edge
		}
		if bets[i].Confidence != bets[j].Confidence {
			return bets[i].Confidence > bets[j].Confidence
		}
		if !bets[i].Kickoff.Equal(bets[j].Kickoff) {
			return bets[i].Kickoff.Before(bets[j].Kickoff)
		}
		return bets[i].Market+bets[i].Outcome < bets[j].Market+bets[j].Outcome
	})

	return bets
}

// detectMarket evaluates one market's outcomes against its quotes
func (d *Detector) detectMarket(prediction *models.Prediction, fixture models.Fixture, fresh map[string]models.OddsQuote, market string, probs map[string]float64, now time.Time) []models.ValueBet {
	// Overround correction: sum the implied probabilities across every
	// quoted outcome in the market and scale back to 1. Correction only
	// applies when the book's margin is actually present, which requires
	// the full set of outcomes.
	outcomes := marketOutcomes(market)
	overround := 0.0
	quoted := 0
	for _, outcome := range outcomes {
		if q, ok := fresh[market+":"+outcome]; ok {
			overround += q.ImpliedProbability()
			quoted++
		}
	}
	correct := quoted == len(outcomes) && overround > 1.0

	var bets []models.ValueBet
	for _, outcome := range outcomes {
		prob, hasProb := probs[outcome]
		quote, hasQuote := fresh[market+":"+outcome]
		if !hasProb || !hasQuote {
			continue
		}

		fair := quote.ImpliedProbability()
		if correct {
			fair /= overround
		}

		edge := prob*quote.Price - 1.0
		if edge < d.minEdge {
			continue
		}

		bets = append(bets, models.ValueBet{
			ID:               uuid.NewString(),
			FixtureID:        prediction.FixtureID,
			Market:           market,
			Outcome:          outcome,
			Edge:             edge,
			ModelProbability: prob,
			FairProbability:  fair,
			Price:            quote.Price,
			Source:           quote.Source,
			Confidence:       prediction.Confidence,
			Tier:             tierFor(edge),
			Kickoff:          fixture.Kickoff,
			DetectedAt:       now,
		})
	}
	return bets
}

// freshestQuotes keeps the most recent quote per market/outcome, dropping
// anything older than the staleness bound
func (d *Detector) freshestQuotes(quotes []models.OddsQuote, now time.Time) map[string]models.OddsQuote {
	fresh := make(map[string]models.OddsQuote, len(quotes))
	for _, q := range quotes {
		if d.quoteStaleness > 0 && now.Sub(q.Timestamp) > d.quoteStaleness {
			continue
		}
		key := q.Key()
		if current, ok := fresh[key]; !ok || q.Timestamp.After(current.Timestamp) {
			fresh[key] = q
		}
	}
	return fresh
}

func marketOutcomes(market string) []string {
	switch market {
	case models.MarketMatchWinner:
		return models.MatchWinnerOutcomes()
	case models.MarketTotals:
		return models.TotalsOutcomes()
	}
	return nil
}

func tierFor(edge float64) models.ConfidenceTier {
	switch {
	case edge >= tierStrongEdge:
		return models.TierStrong
	case edge >= tierModerateEdge:
		return models.TierModerate
	}
	return models.TierSpeculative
}
