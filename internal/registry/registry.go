package registry

import (
	"fmt"
	"sync"

	"github.com/XavierBriggs/Pythia/pkg/models"
)

// Baselines for a league we have no tuned profile for
const (
	defaultHomeGoalsAvg  = 1.35
	defaultAwayGoalsAvg  = 1.05
	defaultHomeAdvantage = 1.3
	defaultDrawBaseRate  = 0.27
)

// LeagueRegistry manages per-league model baselines. Leagues without a
// registered profile fall back to the generic one.
type LeagueRegistry struct {
	profiles map[string]models.LeagueProfile
	mu       sync.RWMutex
}

// NewLeagueRegistry creates a registry pre-loaded with the leagues the
// system is tuned for
func NewLeagueRegistry() *LeagueRegistry {
	r := &LeagueRegistry{
		profiles: make(map[string]models.LeagueProfile),
	}
	for _, p := range defaultProfiles() {
		r.profiles[p.League] = p
	}
	return r
}

// Register adds or replaces a league profile
func (r *LeagueRegistry) Register(profile models.LeagueProfile) error {
	if profile.League == "" {
		return fmt.Errorf("league profile missing league key")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.League] = profile
	return nil
}

// Profile returns the profile for a league, falling back to the generic
// baseline when the league is unknown
func (r *LeagueRegistry) Profile(league string) models.LeagueProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.profiles[league]; ok {
		return p
	}
	return models.LeagueProfile{
		League:        league,
		HomeGoalsAvg:  defaultHomeGoalsAvg,
		AwayGoalsAvg:  defaultAwayGoalsAvg,
		HomeAdvantage: defaultHomeAdvantage,
		DrawBaseRate:  defaultDrawBaseRate,
	}
}

// Count returns the number of registered league profiles
func (r *LeagueRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}

// defaultProfiles holds tuned baselines for the major European leagues
func defaultProfiles() []models.LeagueProfile {
	return []models.LeagueProfile{
		{League: "premier_league", HomeGoalsAvg: 1.55, AwayGoalsAvg: 1.25, HomeAdvantage: 1.25, DrawBaseRate: 0.24},
		{League: "serie_a", HomeGoalsAvg: 1.45, AwayGoalsAvg: 1.15, HomeAdvantage: 1.30, DrawBaseRate: 0.28},
		{League: "la_liga", HomeGoalsAvg: 1.50, AwayGoalsAvg: 1.10, HomeAdvantage: 1.30, DrawBaseRate: 0.26},
		{League: "bundesliga", HomeGoalsAvg: 1.65, AwayGoalsAvg: 1.35, HomeAdvantage: 1.22, DrawBaseRate: 0.24},
		{League: "ligue_1", HomeGoalsAvg: 1.45, AwayGoalsAvg: 1.10, HomeAdvantage: 1.28, DrawBaseRate: 0.27},
	}
}
