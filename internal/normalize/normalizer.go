// Package normalize canonicalizes raw feed records into the internal
// schema. Nothing downstream accepts unvalidated shapes; every record
// crosses this boundary first.
package normalize

import (
	"time"

	"github.com/XavierBriggs/Pythia/pkg/errkind"
	"github.com/XavierBriggs/Pythia/pkg/models"
)

// Normalizer resolves conflicts between feed sources by a fixed
// priority order: on disagreement, the highest-priority source wins.
type Normalizer struct {
	// sourcePriority ranks sources best-first; unknown sources rank last
	sourcePriority []string
}

// NewNormalizer creates a normalizer with the given source ranking
func NewNormalizer(sourcePriority []string) *Normalizer {
	return &Normalizer{sourcePriority: sourcePriority}
}

// NormalizeFixture merges all raw records for one fixture into the
// canonical record. Mandatory fields are the fixture id, kickoff time,
// and both team identities; when every source misses one of them the
// fixture fails validation and is skipped for the cycle.
func (n *Normalizer) NormalizeFixture(records []models.RawFixtureRecord) (*models.Fixture, error) {
	if len(records) == 0 {
		return nil, errkind.New(errkind.Validation, "normalize.fixture", "no source records")
	}

	// Walk sources worst-first so higher-priority values overwrite
	ordered := n.orderByPriority(records)

	fixture := &models.Fixture{Status: models.FixtureScheduled}
	for i := len(ordered) - 1; i >= 0; i-- {
		rec := ordered[i]
		if rec.FixtureID != "" {
			fixture.ID = rec.FixtureID
		}
		if rec.League != "" {
			fixture.League = rec.League
		}
		if rec.HomeTeam != "" {
			fixture.HomeTeam = rec.HomeTeam
		}
		if rec.AwayTeam != "" {
			fixture.AwayTeam = rec.AwayTeam
		}
		if !rec.Kickoff.IsZero() {
			fixture.Kickoff = rec.Kickoff
		}
		if rec.Status != "" {
			fixture.Status = rec.Status
		}
	}

	if fixture.ID == "" {
		return nil, errkind.New(errkind.Validation, "normalize.fixture", "fixture id missing from every source")
	}
	if fixture.Kickoff.IsZero() {
		return nil, errkind.New(errkind.Validation, "normalize.fixture", "kickoff time missing from every source (fixture %s)", fixture.ID)
	}
	if fixture.HomeTeam == "" || fixture.AwayTeam == "" {
		return nil, errkind.New(errkind.Validation, "normalize.fixture", "team identity missing from every source (fixture %s)", fixture.ID)
	}

	return fixture, nil
}

// NormalizeQuotes validates and deduplicates quotes. Quotes are
// immutable; a duplicate (same market, outcome, source, timestamp) is
// dropped, and quotes with non-positive prices are rejected per quote
// rather than failing the batch.
func (n *Normalizer) NormalizeQuotes(fixtureID string, quotes []models.OddsQuote) []models.OddsQuote {
	seen := make(map[string]bool, len(quotes))
	out := make([]models.OddsQuote, 0, len(quotes))

	for _, q := range quotes {
		if q.Price <= 1.0 || q.Market == "" || q.Outcome == "" {
			continue
		}
		q.FixtureID = fixtureID
		key := q.Market + "|" + q.Outcome + "|" + q.Source + "|" + q.Timestamp.UTC().Format(time.RFC3339)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	return out
}

// NormalizeTeamForm validates a form snapshot. A snapshot with no usable
// scoring rates and no results cannot feed any model.
func (n *Normalizer) NormalizeTeamForm(form *models.TeamForm) (*models.TeamForm, error) {
	if form == nil || form.TeamID == "" {
		return nil, errkind.New(errkind.Validation, "normalize.team_form", "missing team identity")
	}
	if form.GoalsForRate == 0 && form.XGForRate == 0 && len(form.RecentResults) == 0 {
		return nil, errkind.New(errkind.Validation, "normalize.team_form", "no usable statistics for team %s", form.TeamID)
	}
	return form, nil
}

// orderByPriority sorts records best-source-first without mutating the input
func (n *Normalizer) orderByPriority(records []models.RawFixtureRecord) []models.RawFixtureRecord {
	rank := func(source string) int {
		for i, s := range n.sourcePriority {
			if s == source {
				return i
			}
		}
		return len(n.sourcePriority)
	}

	ordered := make([]models.RawFixtureRecord, len(records))
	copy(ordered, records)

	// Insertion sort keeps the first-seen record ahead on equal rank
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && rank(ordered[j].Source) < rank(ordered[j-1].Source); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	return ordered
}
