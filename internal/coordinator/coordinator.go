// Package coordinator drives one batch pass over the fixtures due for
// processing: normalize -> predict -> detect value bets -> advance the
// article lifecycle. Fixtures are processed independently on a bounded
// worker pool; one fixture's failure never blocks the rest.
package coordinator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/XavierBriggs/Pythia/internal/lifecycle"
	"github.com/XavierBriggs/Pythia/internal/normalize"
	"github.com/XavierBriggs/Pythia/internal/predict"
	"github.com/XavierBriggs/Pythia/internal/registry"
	"github.com/XavierBriggs/Pythia/internal/valuebet"
	"github.com/XavierBriggs/Pythia/pkg/contracts"
	"github.com/XavierBriggs/Pythia/pkg/errkind"
	"github.com/XavierBriggs/Pythia/pkg/models"
	"github.com/XavierBriggs/Pythia/pkg/retry"
)

// Stage selects a pipeline step for the batch run
type Stage string

const (
	StageCollect Stage = "collect"
	StagePredict Stage = "predict"
	StagePublish Stage = "publish"
	StageCleanup Stage = "cleanup"
)

// AllStages is the full pipeline in execution order
func AllStages() []Stage {
	return []Stage{StageCollect, StagePredict, StagePublish, StageCleanup}
}

// Retained quotes per fixture; older quotes roll off first
const maxQuotesPerFixture = 200

// Store is the coordinator's view of persistence: the CAS contract plus
// batch enumeration
type Store interface {
	contracts.Store
	ListIDs(ctx context.Context, kind contracts.EntityKind) ([]string, error)
}

// QuoteCache deduplicates quote writes across overlapping runs. It is an
// optimization only; a nil cache means every fetched quote is persisted.
type QuoteCache interface {
	FilterChanged(ctx context.Context, quotes []models.OddsQuote) ([]models.OddsQuote, error)
	UpdateLatest(ctx context.Context, quotes []models.OddsQuote) error
}

// Config bounds the batch pass
type Config struct {
	Workers    int
	LookAhead  time.Duration // fixtures kicking off up to this far ahead
	LookBehind time.Duration // and this long ago
}

// Summary reports what one batch pass did
type Summary struct {
	Fixtures  int // fixtures considered
	Skipped   int // validation / insufficient-data skips
	Failed    int // per-fixture failures after retries
	Deferred  int // CAS conflicts deferred to the next cycle
	ValueBets int
	Archived  int // records reclaimed by cleanup
}

// Coordinator wires the pipeline components for one batch run. It holds
// no mutable cross-fixture state; everything shared lives in the store.
type Coordinator struct {
	store      Store
	fixtures   contracts.FixtureFeed
	forms      contracts.FormFeed
	odds       contracts.OddsFeed
	normalizer *normalize.Normalizer
	engine     *predict.Engine
	detector   *valuebet.Detector
	lifecycle  *lifecycle.Scheduler
	leagues    *registry.LeagueRegistry
	quoteCache QuoteCache
	retry      retry.Policy
	cfg        Config
	log        *logrus.Logger
}

// New creates a coordinator
func New(
	store Store,
	fixtureFeed contracts.FixtureFeed,
	formFeed contracts.FormFeed,
	oddsFeed contracts.OddsFeed,
	normalizer *normalize.Normalizer,
	engine *predict.Engine,
	detector *valuebet.Detector,
	lifecycleScheduler *lifecycle.Scheduler,
	leagues *registry.LeagueRegistry,
	quoteCache QuoteCache,
	policy retry.Policy,
	cfg Config,
	log *logrus.Logger,
) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Coordinator{
		store:      store,
		fixtures:   fixtureFeed,
		forms:      formFeed,
		odds:       oddsFeed,
		normalizer: normalizer,
		engine:     engine,
		detector:   detector,
		lifecycle:  lifecycleScheduler,
		leagues:    leagues,
		quoteCache: quoteCache,
		retry:      policy,
		cfg:        cfg,
		log:        log,
	}
}

// Run executes one batch pass for the selected stages. Only a permanent
// error (auth, configuration) aborts the run; everything else is
// isolated to its fixture and reported in the summary.
func (c *Coordinator) Run(ctx context.Context, stages []Stage, now time.Time) (*Summary, error) {
	enabled := make(map[Stage]bool, len(stages))
	for _, s := range stages {
		enabled[s] = true
	}

	rawByFixture := make(map[string][]models.RawFixtureRecord)
	if enabled[StageCollect] {
		var records []models.RawFixtureRecord
		err := c.retry.Do(ctx, func(ctx context.Context) error {
			var err error
			records, err = c.fixtures.FetchFixtures(ctx, now.Add(-c.cfg.LookBehind), now.Add(c.cfg.LookAhead))
			return err
		})
		if err != nil {
			if errkind.IsPermanent(err) {
				return nil, err
			}
			// A dead feed fails collection but the clock-driven stages
			// still run from stored state
			c.log.WithError(err).Error("fixture feed unavailable, continuing with stored fixtures")
		}
		for _, rec := range records {
			rawByFixture[rec.FixtureID] = append(rawByFixture[rec.FixtureID], rec)
		}
	}

	fixtureIDs, err := c.dueFixtureIDs(ctx, rawByFixture)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Fixtures: len(fixtureIDs)}
	var mu sync.Mutex

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var permanent error

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				result := c.processFixture(runCtx, id, rawByFixture[id], enabled, now)

				mu.Lock()
				summary.Skipped += result.skipped
				summary.Failed += result.failed
				summary.Deferred += result.deferred
				summary.ValueBets += result.valueBets
				summary.Archived += result.archived
				if result.permanent != nil && permanent == nil {
					permanent = result.permanent
					cancel()
				}
				mu.Unlock()
			}
		}()
	}

	for _, id := range fixtureIDs {
		select {
		case jobs <- id:
		case <-runCtx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	if permanent != nil {
		return summary, permanent
	}

	c.log.WithFields(logrus.Fields{
		"fixtures":   summary.Fixtures,
		"skipped":    summary.Skipped,
		"failed":     summary.Failed,
		"deferred":   summary.Deferred,
		"value_bets": summary.ValueBets,
		"archived":   summary.Archived,
	}).Info("batch pass complete")
	return summary, nil
}

// fixtureResult accumulates one fixture's outcome for the summary
type fixtureResult struct {
	skipped   int
	failed    int
	deferred  int
	valueBets int
	archived  int
	permanent error
}

// processFixture runs the enabled pipeline steps for one fixture.
// Each step is idempotent, so a re-run before the next natural state
// boundary produces no duplicate side effects.
func (c *Coordinator) processFixture(ctx context.Context, fixtureID string, raw []models.RawFixtureRecord, enabled map[Stage]bool, now time.Time) fixtureResult {
	var result fixtureResult
	log := c.log.WithField("fixture", fixtureID)

	fixture, err := c.resolveFixture(ctx, fixtureID, raw, enabled[StageCollect])
	if err != nil {
		c.classify(err, log.WithField("stage", "collect"), &result)
		return result
	}
	if fixture == nil {
		return result
	}

	// Only fixtures inside the processing window get pipeline work; the
	// rest stay untouched until a later run
	if fixture.Kickoff.Before(now.Add(-c.cfg.LookBehind)) || fixture.Kickoff.After(now.Add(c.cfg.LookAhead)) {
		return result
	}

	if enabled[StageCollect] {
		if err := c.collectFixtureData(ctx, *fixture, now); err != nil {
			c.classify(err, log.WithField("stage", "collect"), &result)
			if result.permanent != nil {
				return result
			}
		}
	}

	var prediction *models.Prediction
	if enabled[StagePredict] && fixture.Status == models.FixtureScheduled {
		prediction, err = c.predictFixture(ctx, *fixture, now)
		if err != nil {
			c.classify(err, log.WithField("stage", "predict"), &result)
			if result.permanent != nil {
				return result
			}
		} else if prediction != nil {
			bets, err := c.detectValueBets(ctx, *fixture, prediction, now)
			if err != nil {
				c.classify(err, log.WithField("stage", "predict"), &result)
			} else {
				result.valueBets += bets
			}
		}
	}

	if enabled[StagePublish] {
		if prediction == nil {
			prediction = c.loadPrediction(ctx, fixtureID)
		}
		if err := c.lifecycle.Advance(ctx, *fixture, prediction, now); err != nil {
			c.classify(err, log.WithField("stage", "publish"), &result)
			if result.permanent != nil {
				return result
			}
		}
	}

	if enabled[StageCleanup] {
		archived, err := c.lifecycle.Cleanup(ctx, fixtureID, now)
		if err != nil {
			c.classify(err, log.WithField("stage", "cleanup"), &result)
		} else if archived {
			result.archived++
		}
	}

	return result
}

// resolveFixture produces the canonical fixture for this pass: the
// normalized merge of this run's raw records when collecting, otherwise
// the stored record. A nil fixture (no error) means nothing to do.
func (c *Coordinator) resolveFixture(ctx context.Context, fixtureID string, raw []models.RawFixtureRecord, collecting bool) (*models.Fixture, error) {
	if collecting && len(raw) > 0 {
		fixture, err := c.normalizer.NormalizeFixture(raw)
		if err != nil {
			return nil, err
		}
		if err := c.upsertJSON(ctx, contracts.KindFixture, fixture.ID, fixture); err != nil {
			return nil, err
		}
		return fixture, nil
	}

	var fixture models.Fixture
	if _, err := contracts.GetJSON(ctx, c.store, contracts.KindFixture, fixtureID, &fixture); err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &fixture, nil
}

// collectFixtureData refreshes form snapshots and the odds board
func (c *Coordinator) collectFixtureData(ctx context.Context, fixture models.Fixture, now time.Time) error {
	for _, team := range []string{fixture.HomeTeam, fixture.AwayTeam} {
		var form *models.TeamForm
		err := c.retry.Do(ctx, func(ctx context.Context) error {
			var err error
			form, err = c.forms.FetchTeamForm(ctx, fixture.League, team)
			return err
		})
		if err != nil {
			return err
		}
		form, err = c.normalizer.NormalizeTeamForm(form)
		if err != nil {
			return err
		}
		// Snapshots supersede; newer AsOf simply replaces the record
		if err := c.upsertJSON(ctx, contracts.KindTeamForm, team, form); err != nil {
			return err
		}
	}

	var quotes []models.OddsQuote
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		quotes, err = c.odds.FetchQuotes(ctx, fixture.ID)
		return err
	})
	if err != nil {
		return err
	}
	quotes = c.normalizer.NormalizeQuotes(fixture.ID, quotes)

	if c.quoteCache != nil {
		changed, err := c.quoteCache.FilterChanged(ctx, quotes)
		if err != nil {
			// Cache misses are harmless; persist everything
			c.log.WithError(err).Warn("quote cache unavailable, persisting all quotes")
		} else {
			quotes = changed
		}
	}
	if len(quotes) == 0 {
		return nil
	}

	if err := c.appendQuotes(ctx, fixture.ID, quotes); err != nil {
		return err
	}
	if c.quoteCache != nil {
		if err := c.quoteCache.UpdateLatest(ctx, quotes); err != nil {
			c.log.WithError(err).Warn("quote cache update failed")
		}
	}
	return nil
}

// predictFixture blends the models for one fixture and persists the
// superseding Prediction
func (c *Coordinator) predictFixture(ctx context.Context, fixture models.Fixture, now time.Time) (*models.Prediction, error) {
	input := models.ModelInput{
		Fixture: fixture,
		Profile: c.leagues.Profile(fixture.League),
	}

	var home, away models.TeamForm
	if _, err := contracts.GetJSON(ctx, c.store, contracts.KindTeamForm, fixture.HomeTeam, &home); err == nil {
		input.HomeForm = &home
	} else if !errors.Is(err, contracts.ErrNotFound) {
		return nil, err
	}
	if _, err := contracts.GetJSON(ctx, c.store, contracts.KindTeamForm, fixture.AwayTeam, &away); err == nil {
		input.AwayForm = &away
	} else if !errors.Is(err, contracts.ErrNotFound) {
		return nil, err
	}

	quality := make(map[string]float64)
	if _, err := contracts.GetJSON(ctx, c.store, contracts.KindModelQuality, "global", &quality); err != nil && !errors.Is(err, contracts.ErrNotFound) {
		return nil, err
	}

	prediction, err := c.engine.Predict(input, quality, now)
	if err != nil {
		return nil, err
	}

	if err := c.upsertJSON(ctx, contracts.KindPrediction, fixture.ID, prediction); err != nil {
		return nil, err
	}
	return prediction, nil
}

// detectValueBets runs the detector over the fixture's odds board and
// replaces the previous run's set
func (c *Coordinator) detectValueBets(ctx context.Context, fixture models.Fixture, prediction *models.Prediction, now time.Time) (int, error) {
	var board []models.OddsQuote
	if _, err := contracts.GetJSON(ctx, c.store, contracts.KindOddsBoard, fixture.ID, &board); err != nil && !errors.Is(err, contracts.ErrNotFound) {
		return 0, err
	}

	bets := c.detector.Detect(prediction, fixture, board, now)
	if err := c.upsertJSON(ctx, contracts.KindValueBets, fixture.ID, bets); err != nil {
		return 0, err
	}
	return len(bets), nil
}

// loadPrediction fetches the live Prediction, or nil when none exists
func (c *Coordinator) loadPrediction(ctx context.Context, fixtureID string) *models.Prediction {
	var prediction models.Prediction
	if _, err := contracts.GetJSON(ctx, c.store, contracts.KindPrediction, fixtureID, &prediction); err != nil {
		return nil
	}
	return &prediction
}

// appendQuotes adds new quotes to the fixture's immutable board, rolling
// the oldest off past the retention cap
func (c *Coordinator) appendQuotes(ctx context.Context, fixtureID string, quotes []models.OddsQuote) error {
	for attempt := 0; attempt < 2; attempt++ {
		var board []models.OddsQuote
		version, err := contracts.GetJSON(ctx, c.store, contracts.KindOddsBoard, fixtureID, &board)
		if err != nil && !errors.Is(err, contracts.ErrNotFound) {
			return err
		}

		// Quotes are immutable; an identical re-fetch is dropped so
		// overlapping runs leave the board unchanged
		existing := make(map[string]bool, len(board))
		for _, q := range board {
			existing[quoteIdentity(q)] = true
		}
		appended := false
		for _, q := range quotes {
			if existing[quoteIdentity(q)] {
				continue
			}
			board = append(board, q)
			appended = true
		}
		if !appended {
			return nil
		}

		sort.SliceStable(board, func(i, j int) bool {
			return board[i].Timestamp.Before(board[j].Timestamp)
		})
		if len(board) > maxQuotesPerFixture {
			board = board[len(board)-maxQuotesPerFixture:]
		}

		_, err = contracts.PutJSON(ctx, c.store, contracts.KindOddsBoard, fixtureID, version, board)
		if err == nil {
			return nil
		}
		if !errkind.IsStateConflict(err) || attempt == 1 {
			return err
		}
	}
	return nil
}

// quoteIdentity keys a quote for cross-run deduplication
func quoteIdentity(q models.OddsQuote) string {
	return q.Market + "|" + q.Outcome + "|" + q.Source + "|" + q.Timestamp.UTC().Format(time.RFC3339Nano)
}

// upsertJSON writes the latest record regardless of prior content, with
// a single re-read on version conflict
func (c *Coordinator) upsertJSON(ctx context.Context, kind contracts.EntityKind, id string, v interface{}) error {
	for attempt := 0; attempt < 2; attempt++ {
		var version int64
		rec, err := c.store.Get(ctx, kind, id)
		if err == nil {
			version = rec.Version
		} else if !errors.Is(err, contracts.ErrNotFound) {
			return err
		}

		_, err = contracts.PutJSON(ctx, c.store, kind, id, version, v)
		if err == nil {
			return nil
		}
		if !errkind.IsStateConflict(err) || attempt == 1 {
			return err
		}
	}
	return nil
}

// dueFixtureIDs merges this run's feed records with the stored fixtures
// whose kickoff falls inside the processing window
func (c *Coordinator) dueFixtureIDs(ctx context.Context, rawByFixture map[string][]models.RawFixtureRecord) ([]string, error) {
	seen := make(map[string]bool, len(rawByFixture))
	for id := range rawByFixture {
		seen[id] = true
	}

	stored, err := c.store.ListIDs(ctx, contracts.KindFixture)
	if err != nil {
		return nil, err
	}
	for _, id := range stored {
		seen[id] = true
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// classify routes one failure into the summary per the error taxonomy
func (c *Coordinator) classify(err error, log *logrus.Entry, result *fixtureResult) {
	switch errkind.KindOf(err) {
	case errkind.Validation:
		log.WithError(err).Warn("skipping entity this cycle")
		result.skipped++
	case errkind.InsufficientData:
		log.WithError(err).Info("insufficient data, retrying next cycle")
		result.skipped++
	case errkind.StateConflict:
		log.WithError(err).Warn("version conflict, deferred to next cycle")
		result.deferred++
	case errkind.Permanent:
		log.WithError(err).Error("permanent failure, aborting batch")
		result.permanent = err
	default:
		log.WithError(err).Error("fixture failed this cycle")
		result.failed++
	}
}
