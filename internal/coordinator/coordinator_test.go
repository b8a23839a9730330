package coordinator_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/XavierBriggs/Pythia/internal/coordinator"
	"github.com/XavierBriggs/Pythia/internal/lifecycle"
	"github.com/XavierBriggs/Pythia/internal/normalize"
	"github.com/XavierBriggs/Pythia/internal/predict"
	"github.com/XavierBriggs/Pythia/internal/registry"
	"github.com/XavierBriggs/Pythia/internal/store"
	"github.com/XavierBriggs/Pythia/internal/valuebet"
	"github.com/XavierBriggs/Pythia/pkg/contracts"
	"github.com/XavierBriggs/Pythia/pkg/errkind"
	"github.com/XavierBriggs/Pythia/pkg/models"
	"github.com/XavierBriggs/Pythia/pkg/retry"
	"github.com/XavierBriggs/Pythia/pkg/testutil"
)

// fakeFeed serves canned feed data for all three feed contracts
type fakeFeed struct {
	mu          sync.Mutex
	records     []models.RawFixtureRecord
	fixturesErr error
	forms       map[string]*models.TeamForm
	quotes      map[string][]models.OddsQuote
}

func (f *fakeFeed) FetchFixtures(ctx context.Context, from, to time.Time) ([]models.RawFixtureRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fixturesErr != nil {
		return nil, f.fixturesErr
	}
	out := make([]models.RawFixtureRecord, len(f.records))
	copy(out, f.records)
	return out, nil
}

func (f *fakeFeed) FetchTeamForm(ctx context.Context, league, teamID string) (*models.TeamForm, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	form, ok := f.forms[teamID]
	if !ok {
		return nil, nil
	}
	cp := *form
	return &cp, nil
}

func (f *fakeFeed) FetchQuotes(ctx context.Context, fixtureID string) ([]models.OddsQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.OddsQuote, len(f.quotes[fixtureID]))
	copy(out, f.quotes[fixtureID])
	return out, nil
}

func (f *fakeFeed) setStatus(fixtureID string, status models.FixtureStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].FixtureID == fixtureID {
			f.records[i].Status = status
		}
	}
}

// fakeGateway counts calls so tests can assert exactly-once side effects
type fakeGateway struct {
	mu        sync.Mutex
	created   int
	retracted int
	createErr error
}

func (g *fakeGateway) CreatePost(ctx context.Context, content contracts.PostContent) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return "", g.createErr
	}
	g.created++
	return fmt.Sprintf("post-%d", g.created), nil
}

func (g *fakeGateway) RetractPost(ctx context.Context, postID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.retracted++
	return nil
}

func (g *fakeGateway) counts() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.created, g.retracted
}

var fastRetry = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

func newTestCoordinator(mem *store.Memory, feed *fakeFeed, gw *fakeGateway) *coordinator.Coordinator {
	log := logrus.New()
	log.SetOutput(io.Discard)

	engine := predict.NewEngine([]contracts.Model{
		predict.NewPoissonModel(10, 3),
		predict.NewRatingModel(3),
	}, map[string]float64{"poisson": 0.55, "rating": 0.45})

	// No confidence floor; these tests pin behavior, not calibration
	detector := valuebet.NewDetector(0.03, 0, 2*time.Hour)

	windows := lifecycle.Windows{
		PublishLead:    12 * time.Hour,
		ExpireTrailing: 8 * time.Hour,
		MatchDuration:  2 * time.Hour,
	}
	scheduler := lifecycle.NewScheduler(mem, gw, fastRetry, windows, "en", log)

	return coordinator.New(
		mem,
		feed, feed, feed,
		normalize.NewNormalizer([]string{"api_football"}),
		engine,
		detector,
		scheduler,
		registry.NewLeagueRegistry(),
		nil,
		fastRetry,
		coordinator.Config{Workers: 2, LookAhead: 48 * time.Hour, LookBehind: 24 * time.Hour},
		log,
	)
}

func rawRecord(id, home, away string, kickoff time.Time) models.RawFixtureRecord {
	return models.RawFixtureRecord{
		Source:    "api_football",
		FixtureID: id,
		League:    "serie_a",
		HomeTeam:  home,
		AwayTeam:  away,
		Kickoff:   kickoff,
		Status:    models.FixtureScheduled,
	}
}

func newPublishableFeed(now time.Time) *fakeFeed {
	return &fakeFeed{
		records: []models.RawFixtureRecord{
			// Kickoff in six hours, so the publish window is already open
			rawRecord("fx-1", "Inter", "Lecce", now.Add(6*time.Hour)),
		},
		forms: map[string]*models.TeamForm{
			"Inter": testutil.NewTestForm("Inter", 1.9, 0.8, "WWWDW"),
			"Lecce": testutil.NewTestForm("Lecce", 0.9, 1.6, "LLDLW"),
		},
		quotes: map[string][]models.OddsQuote{
			"fx-1": {testutil.NewTestQuote("fx-1", models.MarketMatchWinner, models.OutcomeHome, 3.0, now)},
		},
	}
}

func getJSON(t *testing.T, mem *store.Memory, kind contracts.EntityKind, id string, v interface{}) {
	t.Helper()
	if _, err := contracts.GetJSON(context.Background(), mem, kind, id, v); err != nil {
		t.Fatalf("load %s/%s: %v", kind, id, err)
	}
}

func TestRunFullPipelineIsIdempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	mem := store.NewMemory()
	feed := newPublishableFeed(now)
	gw := &fakeGateway{}
	coord := newTestCoordinator(mem, feed, gw)

	summary, err := coord.Run(ctx, coordinator.AllStages(), now)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Fixtures != 1 || summary.Failed != 0 {
		t.Fatalf("summary = %+v, want 1 fixture and no failures", summary)
	}
	if summary.ValueBets < 1 {
		t.Fatalf("summary = %+v, want at least one value bet at price 3.0", summary)
	}

	var prediction models.Prediction
	getJSON(t, mem, contracts.KindPrediction, "fx-1", &prediction)
	var sum float64
	for _, p := range prediction.Probabilities {
		sum += p
	}
	if sum < 1-models.ProbabilityTolerance || sum > 1+models.ProbabilityTolerance {
		t.Errorf("persisted probabilities sum to %f, want 1.0", sum)
	}

	var article models.Article
	getJSON(t, mem, contracts.KindArticle, "fx-1", &article)
	if article.State != models.ArticlePublished {
		t.Fatalf("article state = %s, want published", article.State)
	}
	if created, _ := gw.counts(); created != 1 {
		t.Fatalf("created %d posts, want 1", created)
	}

	var board []models.OddsQuote
	getJSON(t, mem, contracts.KindOddsBoard, "fx-1", &board)
	boardLen := len(board)

	// The same pass again must change nothing externally visible
	summary, err = coord.Run(ctx, coordinator.AllStages(), now)
	if err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}
	if summary.Failed != 0 {
		t.Fatalf("second run summary = %+v, want no failures", summary)
	}
	if created, _ := gw.counts(); created != 1 {
		t.Fatalf("created %d posts after re-run, want still 1", created)
	}
	getJSON(t, mem, contracts.KindOddsBoard, "fx-1", &board)
	if len(board) != boardLen {
		t.Fatalf("odds board grew from %d to %d on an identical re-run", boardLen, len(board))
	}
	getJSON(t, mem, contracts.KindArticle, "fx-1", &article)
	if article.State != models.ArticlePublished {
		t.Fatalf("article state after re-run = %s, want published", article.State)
	}
}

func TestRunRetractsCancelledFixtureOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	mem := store.NewMemory()
	feed := newPublishableFeed(now)
	gw := &fakeGateway{}
	coord := newTestCoordinator(mem, feed, gw)

	if _, err := coord.Run(ctx, coordinator.AllStages(), now); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	feed.setStatus("fx-1", models.FixtureCancelled)
	for i := 1; i <= 2; i++ {
		if _, err := coord.Run(ctx, coordinator.AllStages(), now.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Run %d after cancellation returned error: %v", i, err)
		}
	}

	var article models.Article
	getJSON(t, mem, contracts.KindArticle, "fx-1", &article)
	if article.State != models.ArticleArchived {
		t.Fatalf("article state = %s, want archived", article.State)
	}
	created, retracted := gw.counts()
	if created != 1 || retracted != 1 {
		t.Fatalf("created %d / retracted %d, want 1 / 1", created, retracted)
	}
}

func TestRunIsolatesInvalidFixture(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	mem := store.NewMemory()
	feed := newPublishableFeed(now)
	// Second fixture is missing the away team on every source
	bad := rawRecord("fx-bad", "Verona", "", now.Add(5*time.Hour))
	feed.records = append(feed.records, bad)
	gw := &fakeGateway{}
	coord := newTestCoordinator(mem, feed, gw)

	summary, err := coord.Run(ctx, coordinator.AllStages(), now)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Fixtures != 2 {
		t.Fatalf("summary = %+v, want 2 fixtures considered", summary)
	}
	if summary.Skipped < 1 {
		t.Fatalf("summary = %+v, want the invalid fixture skipped", summary)
	}

	var article models.Article
	getJSON(t, mem, contracts.KindArticle, "fx-1", &article)
	if article.State != models.ArticlePublished {
		t.Fatalf("valid fixture state = %s, want published despite the bad sibling", article.State)
	}
}

func TestRunSkipsFixtureWithThinForm(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	mem := store.NewMemory()
	feed := newPublishableFeed(now)
	feed.forms["Inter"] = testutil.NewTestForm("Inter", 1.9, 0.8, "WD")
	feed.forms["Lecce"] = testutil.NewTestForm("Lecce", 0.9, 1.6, "LL")
	gw := &fakeGateway{}
	coord := newTestCoordinator(mem, feed, gw)

	summary, err := coord.Run(ctx, coordinator.AllStages(), now)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Skipped < 1 || summary.Failed != 0 {
		t.Fatalf("summary = %+v, want a data skip and no failure", summary)
	}

	if _, err := mem.Get(ctx, contracts.KindPrediction, "fx-1"); !errors.Is(err, contracts.ErrNotFound) {
		t.Fatalf("expected no prediction for a two-match form, got err = %v", err)
	}
	if _, err := mem.Get(ctx, contracts.KindArticle, "fx-1"); !errors.Is(err, contracts.ErrNotFound) {
		t.Fatalf("expected no article without a prediction, got err = %v", err)
	}
	if created, _ := gw.counts(); created != 0 {
		t.Fatalf("created %d posts, want 0", created)
	}
}

func TestRunLeavesFixturesOutsideWindowUntouched(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	mem := store.NewMemory()
	feed := newPublishableFeed(now)
	feed.records[0].Kickoff = now.Add(100 * time.Hour)
	gw := &fakeGateway{}
	coord := newTestCoordinator(mem, feed, gw)

	if _, err := coord.Run(ctx, coordinator.AllStages(), now); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if _, err := mem.Get(ctx, contracts.KindPrediction, "fx-1"); !errors.Is(err, contracts.ErrNotFound) {
		t.Fatalf("expected no prediction outside the processing window, got err = %v", err)
	}
	if created, _ := gw.counts(); created != 0 {
		t.Fatalf("created %d posts outside the window, want 0", created)
	}
}

func TestRunPermanentFeedFailureAborts(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	mem := store.NewMemory()
	feed := newPublishableFeed(now)
	feed.fixturesErr = errkind.New(errkind.Permanent, "feed.get", "api key rejected")
	coord := newTestCoordinator(mem, feed, &fakeGateway{})

	if _, err := coord.Run(ctx, coordinator.AllStages(), now); !errkind.IsPermanent(err) {
		t.Fatalf("expected a permanent abort, got %v", err)
	}
}

func TestRunPermanentGatewayFailureAborts(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	mem := store.NewMemory()
	feed := newPublishableFeed(now)
	gw := &fakeGateway{createErr: errkind.New(errkind.Permanent, "gateway.create", "credentials rejected")}
	coord := newTestCoordinator(mem, feed, gw)

	summary, err := coord.Run(ctx, coordinator.AllStages(), now)
	if !errkind.IsPermanent(err) {
		t.Fatalf("expected a permanent abort, got %v", err)
	}
	if summary == nil {
		t.Fatal("summary missing alongside the abort error")
	}
}

func TestRunTransientFeedFailureUsesStoredState(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	mem := store.NewMemory()
	feed := newPublishableFeed(now)
	gw := &fakeGateway{}
	coord := newTestCoordinator(mem, feed, gw)

	if _, err := coord.Run(ctx, coordinator.AllStages(), now); err != nil {
		t.Fatalf("seeding Run returned error: %v", err)
	}

	// Fixture listing goes down; clock-driven work continues from the store
	feed.fixturesErr = errkind.New(errkind.Transient, "feed.get", "feed returned 503")
	summary, err := coord.Run(ctx, coordinator.AllStages(), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Run with a dead feed returned error: %v", err)
	}
	if summary.Fixtures != 1 {
		t.Fatalf("summary = %+v, want the stored fixture processed", summary)
	}

	var article models.Article
	getJSON(t, mem, contracts.KindArticle, "fx-1", &article)
	if article.State != models.ArticlePublished {
		t.Fatalf("article state = %s, want published", article.State)
	}
	if created, _ := gw.counts(); created != 1 {
		t.Fatalf("created %d posts, want still 1", created)
	}
}
