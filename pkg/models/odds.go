package models

import "time"

// Market and outcome keys used across the pipeline
const (
	MarketMatchWinner = "1x2"
	MarketTotals      = "totals"

	OutcomeHome  = "home"
	OutcomeDraw  = "draw"
	OutcomeAway  = "away"
	OutcomeOver  = "over_2.5"
	OutcomeUnder = "under_2.5"
)

// OddsQuote is one market price for one outcome.
// Quotes are immutable once recorded; newer quotes for the same
// fixture/market/outcome are retained alongside for freshness comparison.
type OddsQuote struct {
	FixtureID string    `json:"fixture_id"`
	Market    string    `json:"market"`
	Outcome   string    `json:"outcome"`
	Price     float64   `json:"price"` // decimal odds
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Key uniquely identifies the priced outcome within a fixture
func (q OddsQuote) Key() string {
	return q.Market + ":" + q.Outcome
}

// ImpliedProbability converts the decimal price to its raw implied
// probability, before any overround correction
func (q OddsQuote) ImpliedProbability() float64 {
	if q.Price <= 0 {
		return 0
	}
	return 1.0 / q.Price
}

// MatchWinnerOutcomes returns the outcome keys of the 1x2 market in
// canonical order
func MatchWinnerOutcomes() []string {
	return []string{OutcomeHome, OutcomeDraw, OutcomeAway}
}

// TotalsOutcomes returns the outcome keys of the totals market in
// canonical order
func TotalsOutcomes() []string {
	return []string{OutcomeOver, OutcomeUnder}
}
