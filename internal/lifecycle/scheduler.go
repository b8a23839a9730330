package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/XavierBriggs/Pythia/pkg/contracts"
	"github.com/XavierBriggs/Pythia/pkg/errkind"
	"github.com/XavierBriggs/Pythia/pkg/models"
	"github.com/XavierBriggs/Pythia/pkg/retry"
)

// An article can owe several transitions after downtime (scheduled ->
// published -> expired); bound the catch-up work per pass.
const maxTransitionsPerPass = 4

// Scheduler applies due lifecycle transitions for one article at a time.
// Every transition is a single conditional store write; the gateway call
// happens before the write, and the version check makes a concurrent or
// repeated trigger a no-op instead of a duplicate publish.
type Scheduler struct {
	store    contracts.Store
	gateway  contracts.PublishingGateway
	retry    retry.Policy
	windows  Windows
	language string
	log      *logrus.Logger
}

// NewScheduler creates a lifecycle scheduler
func NewScheduler(store contracts.Store, gateway contracts.PublishingGateway, policy retry.Policy, windows Windows, language string, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		gateway:  gateway,
		retry:    policy,
		windows:  windows,
		language: language,
		log:      log,
	}
}

// Advance drives the fixture's article as far as the clock allows.
// The article is created (draft) on the first call after a Prediction
// exists. A CAS conflict is re-read and retried once; a second conflict
// is deferred to the next cycle.
func (s *Scheduler) Advance(ctx context.Context, fixture models.Fixture, prediction *models.Prediction, now time.Time) error {
	article, version, err := s.loadOrCreate(ctx, fixture, prediction != nil, now)
	if err != nil || article == nil {
		return err
	}

	conflictRetried := false
	for i := 0; i < maxTransitionsPerPass; i++ {
		decision := Next(*article, fixture, prediction != nil, now, s.windows)
		if !decision.Due {
			return nil
		}

		postID := article.PostID
		switch decision.Action {
		case ActionCreatePost:
			postID, err = s.createPost(ctx, *article, fixture, prediction)
			if err != nil {
				return err
			}
		case ActionRetractPost:
			if article.PostID != "" {
				if err := s.retractPost(ctx, article.PostID); err != nil {
					return err
				}
			}
		}

		next := *article
		next.State = decision.Next
		next.PublishAt = decision.PublishAt
		next.ExpireAt = decision.ExpireAt
		next.PostID = postID
		next.UpdatedAt = now

		newVersion, err := contracts.PutJSON(ctx, s.store, contracts.KindArticle, fixture.ID, version, &next)
		if err != nil {
			if !errkind.IsStateConflict(err) {
				return err
			}
			// A concurrent run got there first; re-read and retry once
			if conflictRetried {
				s.log.WithFields(logrus.Fields{
					"fixture": fixture.ID,
					"state":   article.State,
				}).Warn("persistent version conflict, deferring transition to next cycle")
				return err
			}
			conflictRetried = true
			article, version, err = s.load(ctx, fixture.ID)
			if err != nil {
				return err
			}
			continue
		}

		s.log.WithFields(logrus.Fields{
			"fixture": fixture.ID,
			"article": next.ID,
			"from":    article.State,
			"to":      next.State,
			"reason":  decision.Reason,
		}).Info("article transition")

		*article = next
		version = newVersion
	}

	return nil
}

// Cleanup archives the fixture's article once it has expired and its
// retraction is confirmed. Returns true when a record was reclaimed.
func (s *Scheduler) Cleanup(ctx context.Context, fixtureID string, now time.Time) (bool, error) {
	article, version, err := s.load(ctx, fixtureID)
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !CleanupDue(*article) {
		return false, nil
	}

	article.State = models.ArticleArchived
	article.UpdatedAt = now
	if _, err := contracts.PutJSON(ctx, s.store, contracts.KindArticle, fixtureID, version, article); err != nil {
		return false, err
	}

	s.log.WithFields(logrus.Fields{
		"fixture": fixtureID,
		"article": article.ID,
	}).Info("expired article archived")
	return true, nil
}

// loadOrCreate returns the fixture's article, creating the draft record
// the first time a Prediction exists. Articles are keyed by fixture id.
func (s *Scheduler) loadOrCreate(ctx context.Context, fixture models.Fixture, hasPrediction bool, now time.Time) (*models.Article, int64, error) {
	article, version, err := s.load(ctx, fixture.ID)
	if err == nil {
		return article, version, nil
	}
	if !errors.Is(err, contracts.ErrNotFound) {
		return nil, 0, err
	}
	if !hasPrediction {
		return nil, 0, nil
	}

	draft := &models.Article{
		ID:        uuid.NewString(),
		FixtureID: fixture.ID,
		Language:  s.language,
		State:     models.ArticleDraft,
		UpdatedAt: now,
	}
	version, err = contracts.PutJSON(ctx, s.store, contracts.KindArticle, fixture.ID, 0, draft)
	if err != nil {
		if errkind.IsStateConflict(err) {
			// Concurrent run created it; use theirs
			return s.load(ctx, fixture.ID)
		}
		return nil, 0, err
	}
	draft.Version = version
	return draft, version, nil
}

func (s *Scheduler) load(ctx context.Context, fixtureID string) (*models.Article, int64, error) {
	var article models.Article
	version, err := contracts.GetJSON(ctx, s.store, contracts.KindArticle, fixtureID, &article)
	if err != nil {
		return nil, 0, err
	}
	article.Version = version
	return &article, version, nil
}

func (s *Scheduler) createPost(ctx context.Context, article models.Article, fixture models.Fixture, prediction *models.Prediction) (string, error) {
	content := buildPostContent(article, fixture, prediction)

	var postID string
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		postID, err = s.gateway.CreatePost(ctx, content)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create post for fixture %s: %w", fixture.ID, err)
	}
	return postID, nil
}

func (s *Scheduler) retractPost(ctx context.Context, postID string) error {
	return s.retry.Do(ctx, func(ctx context.Context) error {
		return s.gateway.RetractPost(ctx, postID)
	})
}

// buildPostContent assembles the gateway payload from the prediction.
// Article prose generation lives outside the core; the body here is the
// structured summary the CMS templates render.
func buildPostContent(article models.Article, fixture models.Fixture, prediction *models.Prediction) contracts.PostContent {
	title := fmt.Sprintf("%s vs %s: prediction and odds", fixture.HomeTeam, fixture.AwayTeam)

	body := fmt.Sprintf("%s host %s on %s.", fixture.HomeTeam, fixture.AwayTeam, fixture.Kickoff.Format("Monday 2 January 15:04 MST"))
	if prediction != nil {
		body += fmt.Sprintf(" Model probabilities: %s %.1f%%, draw %.1f%%, %s %.1f%%.",
			fixture.HomeTeam, prediction.Probabilities[models.OutcomeHome]*100,
			prediction.Probabilities[models.OutcomeDraw]*100,
			fixture.AwayTeam, prediction.Probabilities[models.OutcomeAway]*100)
		if over, ok := prediction.OverUnder[models.OutcomeOver]; ok {
			body += fmt.Sprintf(" Over 2.5 goals: %.1f%%.", over*100)
		}
	}

	return contracts.PostContent{
		Slug:      "prediction-" + article.ID,
		Title:     title,
		Body:      body,
		Language:  article.Language,
		FixtureID: fixture.ID,
		PublishAt: article.PublishAt,
	}
}
