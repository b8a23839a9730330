package models

import "time"

// ConfidenceTier buckets a value bet by the strength of its edge
type ConfidenceTier string

const (
	TierStrong      ConfidenceTier = "strong"
	TierModerate    ConfidenceTier = "moderate"
	TierSpeculative ConfidenceTier = "speculative"
)

// ValueBet is a flagged positive-expected-value opportunity.
// Value bets are derived fresh each run; only the latest run's set is kept.
type ValueBet struct {
	ID               string         `json:"id"`
	FixtureID        string         `json:"fixture_id"`
	Market           string         `json:"market"`
	Outcome          string         `json:"outcome"`
	Edge             float64        `json:"edge"` // model probability x decimal price - 1
	ModelProbability float64        `json:"model_probability"`
	FairProbability  float64        `json:"fair_probability"` // overround-corrected implied probability
	Price            float64        `json:"price"`
	Source           string         `json:"source"`
	Confidence       float64        `json:"confidence"` // prediction confidence at detection time
	Tier             ConfidenceTier `json:"tier"`
	Kickoff          time.Time      `json:"kickoff"`
	DetectedAt       time.Time      `json:"detected_at"`
}
