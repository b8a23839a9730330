package lifecycle_test

import (
	"testing"
	"time"

	"github.com/XavierBriggs/Pythia/internal/lifecycle"
	"github.com/XavierBriggs/Pythia/pkg/models"
	"github.com/XavierBriggs/Pythia/pkg/testutil"
)

var testWindows = lifecycle.Windows{
	PublishLead:    12 * time.Hour,
	ExpireTrailing: 8 * time.Hour,
	MatchDuration:  2 * time.Hour,
}

func TestWindowsCompute(t *testing.T) {
	kickoff := time.Date(2026, 3, 14, 20, 45, 0, 0, time.UTC)

	publishAt, expireAt := testWindows.Compute(kickoff)

	if want := kickoff.Add(-12 * time.Hour); !publishAt.Equal(want) {
		t.Errorf("publishAt = %v, want %v", publishAt, want)
	}
	if want := kickoff.Add(10 * time.Hour); !expireAt.Equal(want) {
		t.Errorf("expireAt = %v, want %v", expireAt, want)
	}
}

func TestDraftWaitsForPrediction(t *testing.T) {
	now := time.Now()
	fixture := testutil.NewTestFixture("fx-1", "Juventus", "Cagliari", now, 24)
	article := models.Article{FixtureID: "fx-1", State: models.ArticleDraft}

	if d := lifecycle.Next(article, fixture, false, now, testWindows); d.Due {
		t.Fatalf("draft advanced without a prediction: %+v", d)
	}
}

func TestDraftSchedulesOncePredicted(t *testing.T) {
	now := time.Now()
	fixture := testutil.NewTestFixture("fx-1", "Juventus", "Cagliari", now, 24)
	article := models.Article{FixtureID: "fx-1", State: models.ArticleDraft}

	d := lifecycle.Next(article, fixture, true, now, testWindows)

	if !d.Due || d.Next != models.ArticleScheduled {
		t.Fatalf("decision = %+v, want transition to scheduled", d)
	}
	if d.Action != lifecycle.ActionNone {
		t.Errorf("action = %s, want none", d.Action)
	}
	wantPublish, wantExpire := testWindows.Compute(fixture.Kickoff)
	if !d.PublishAt.Equal(wantPublish) || !d.ExpireAt.Equal(wantExpire) {
		t.Errorf("window = [%v, %v], want [%v, %v]", d.PublishAt, d.ExpireAt, wantPublish, wantExpire)
	}
}

func TestScheduledPublishesAtWindowStart(t *testing.T) {
	now := time.Now()
	fixture := testutil.NewTestFixture("fx-1", "Juventus", "Cagliari", now, 6)
	publishAt, expireAt := testWindows.Compute(fixture.Kickoff)
	article := models.Article{
		FixtureID: "fx-1",
		State:     models.ArticleScheduled,
		PublishAt: publishAt,
		ExpireAt:  expireAt,
	}

	d := lifecycle.Next(article, fixture, true, now, testWindows)

	if !d.Due || d.Next != models.ArticlePublished {
		t.Fatalf("decision = %+v, want transition to published", d)
	}
	if d.Action != lifecycle.ActionCreatePost {
		t.Errorf("action = %s, want create_post", d.Action)
	}
}

func TestScheduledHoldsBeforeWindowStart(t *testing.T) {
	now := time.Now()
	fixture := testutil.NewTestFixture("fx-1", "Juventus", "Cagliari", now, 20)
	publishAt, expireAt := testWindows.Compute(fixture.Kickoff)
	article := models.Article{
		FixtureID: "fx-1",
		State:     models.ArticleScheduled,
		PublishAt: publishAt,
		ExpireAt:  expireAt,
	}

	if d := lifecycle.Next(article, fixture, true, now, testWindows); d.Due {
		t.Fatalf("scheduled article published %v early: %+v", publishAt.Sub(now), d)
	}
}

func TestScheduledRefreezesWindowOnKickoffCorrection(t *testing.T) {
	now := time.Now()
	fixture := testutil.NewTestFixture("fx-1", "Juventus", "Cagliari", now, 20)
	// Window frozen from the original kickoff, two hours earlier
	publishAt, expireAt := testWindows.Compute(fixture.Kickoff.Add(-2 * time.Hour))
	article := models.Article{
		FixtureID: "fx-1",
		State:     models.ArticleScheduled,
		PublishAt: publishAt,
		ExpireAt:  expireAt,
	}

	d := lifecycle.Next(article, fixture, true, now, testWindows)

	if !d.Due || d.Next != models.ArticleScheduled {
		t.Fatalf("decision = %+v, want window refreeze in scheduled", d)
	}
	wantPublish, wantExpire := testWindows.Compute(fixture.Kickoff)
	if !d.PublishAt.Equal(wantPublish) || !d.ExpireAt.Equal(wantExpire) {
		t.Errorf("window = [%v, %v], want recomputed [%v, %v]", d.PublishAt, d.ExpireAt, wantPublish, wantExpire)
	}
	if d.Action != lifecycle.ActionNone {
		t.Errorf("action = %s, want none", d.Action)
	}
}

func TestPublishedIgnoresKickoffCorrection(t *testing.T) {
	now := time.Now()
	fixture := testutil.NewTestFixture("fx-1", "Juventus", "Cagliari", now, 4)
	publishAt, expireAt := testWindows.Compute(fixture.Kickoff.Add(-time.Hour))
	article := models.Article{
		FixtureID: "fx-1",
		State:     models.ArticlePublished,
		PublishAt: publishAt,
		ExpireAt:  expireAt,
		PostID:    "post-1",
	}

	if d := lifecycle.Next(article, fixture, true, now, testWindows); d.Due {
		t.Fatalf("published window must stay frozen, got %+v", d)
	}
}

func TestPublishedExpiresAtWindowEnd(t *testing.T) {
	now := time.Now()
	fixture := testutil.NewTestFixture("fx-1", "Juventus", "Cagliari", now, -11)
	publishAt, expireAt := testWindows.Compute(fixture.Kickoff)
	article := models.Article{
		FixtureID: "fx-1",
		State:     models.ArticlePublished,
		PublishAt: publishAt,
		ExpireAt:  expireAt,
		PostID:    "post-1",
	}

	d := lifecycle.Next(article, fixture, true, now, testWindows)

	if !d.Due || d.Next != models.ArticleExpired {
		t.Fatalf("decision = %+v, want transition to expired", d)
	}
	if d.Action != lifecycle.ActionRetractPost {
		t.Errorf("action = %s, want retract_post", d.Action)
	}
}

func TestCancellationFastPath(t *testing.T) {
	now := time.Now()

	cases := []struct {
		state      models.ArticleState
		wantAction lifecycle.Action
	}{
		{models.ArticleDraft, lifecycle.ActionNone},
		{models.ArticleScheduled, lifecycle.ActionNone},
		{models.ArticlePublished, lifecycle.ActionRetractPost},
		{models.ArticleExpired, lifecycle.ActionNone},
	}

	for _, status := range []models.FixtureStatus{models.FixtureCancelled, models.FixturePostponed} {
		for _, tc := range cases {
			fixture := testutil.NewTestFixture("fx-1", "Juventus", "Cagliari", now, 6)
			fixture.Status = status
			article := models.Article{FixtureID: "fx-1", State: tc.state, PostID: "post-1"}

			d := lifecycle.Next(article, fixture, true, now, testWindows)

			if !d.Due || d.Next != models.ArticleArchived {
				t.Errorf("%s/%s: decision = %+v, want archive", status, tc.state, d)
				continue
			}
			if d.Action != tc.wantAction {
				t.Errorf("%s/%s: action = %s, want %s", status, tc.state, d.Action, tc.wantAction)
			}
		}
	}
}

func TestArchivedIsTerminal(t *testing.T) {
	now := time.Now()
	fixture := testutil.NewTestFixture("fx-1", "Juventus", "Cagliari", now, 6)
	fixture.Status = models.FixtureCancelled
	article := models.Article{FixtureID: "fx-1", State: models.ArticleArchived}

	if d := lifecycle.Next(article, fixture, true, now, testWindows); d.Due {
		t.Fatalf("archived article produced a transition: %+v", d)
	}
}

func TestCleanupDueOnlyForExpired(t *testing.T) {
	states := []models.ArticleState{
		models.ArticleDraft,
		models.ArticleScheduled,
		models.ArticlePublished,
		models.ArticleArchived,
	}
	for _, state := range states {
		if lifecycle.CleanupDue(models.Article{State: state}) {
			t.Errorf("cleanup claimed a %s article", state)
		}
	}
	if !lifecycle.CleanupDue(models.Article{State: models.ArticleExpired}) {
		t.Error("cleanup did not claim an expired article")
	}
}
