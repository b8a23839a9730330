// Package lifecycle drives each article through its wall-clock state
// machine: draft -> scheduled -> published -> expired -> archived, with a
// cancellation fast-path from any non-terminal state to archived.
package lifecycle

import (
	"time"

	"github.com/XavierBriggs/Pythia/pkg/models"
)

// Action is the external side effect a transition requires
type Action int

const (
	ActionNone Action = iota
	ActionCreatePost
	ActionRetractPost
)

func (a Action) String() string {
	switch a {
	case ActionCreatePost:
		return "create_post"
	case ActionRetractPost:
		return "retract_post"
	}
	return "none"
}

// Decision is the single next transition due for an article, if any
type Decision struct {
	Due       bool
	Next      models.ArticleState
	Action    Action
	PublishAt time.Time // window accompanying the transition
	ExpireAt  time.Time
	Reason    string
}

// Windows computes the publication window from a kickoff time.
// publish = kickoff - lead; expire = kickoff + match duration + trailing.
type Windows struct {
	PublishLead    time.Duration
	ExpireTrailing time.Duration
	MatchDuration  time.Duration
}

// Compute returns the publish and expire instants for a kickoff
func (w Windows) Compute(kickoff time.Time) (publishAt, expireAt time.Time) {
	return kickoff.Add(-w.PublishLead), kickoff.Add(w.MatchDuration + w.ExpireTrailing)
}

// Next evaluates the state machine for one article against the current
// clock. It returns at most one due transition; re-evaluating an article
// already in its target state yields Due == false, never an error.
// hasPrediction reports whether a live Prediction exists for the fixture.
func Next(article models.Article, fixture models.Fixture, hasPrediction bool, now time.Time, w Windows) Decision {
	if article.State.Terminal() {
		return Decision{}
	}

	// Cancellation fast-path: cancelled or postponed fixtures archive the
	// article from any non-terminal state. A published article is
	// retracted first; an expired one was already retracted.
	if fixture.Status == models.FixtureCancelled || fixture.Status == models.FixturePostponed {
		d := Decision{
			Due:       true,
			Next:      models.ArticleArchived,
			PublishAt: article.PublishAt,
			ExpireAt:  article.ExpireAt,
			Reason:    "fixture " + string(fixture.Status),
		}
		if article.State == models.ArticlePublished {
			d.Action = ActionRetractPost
		}
		return d
	}

	switch article.State {
	case models.ArticleDraft:
		if !hasPrediction {
			return Decision{}
		}
		publishAt, expireAt := w.Compute(fixture.Kickoff)
		return Decision{
			Due:       true,
			Next:      models.ArticleScheduled,
			PublishAt: publishAt,
			ExpireAt:  expireAt,
			Reason:    "prediction available",
		}

	case models.ArticleScheduled:
		// Kickoff corrections re-freeze the window only before publication
		publishAt, expireAt := w.Compute(fixture.Kickoff)
		if !publishAt.Equal(article.PublishAt) || !expireAt.Equal(article.ExpireAt) {
			return Decision{
				Due:       true,
				Next:      models.ArticleScheduled,
				PublishAt: publishAt,
				ExpireAt:  expireAt,
				Reason:    "kickoff corrected",
			}
		}
		if !now.Before(article.PublishAt) {
			return Decision{
				Due:       true,
				Next:      models.ArticlePublished,
				Action:    ActionCreatePost,
				PublishAt: article.PublishAt,
				ExpireAt:  article.ExpireAt,
				Reason:    "publish time reached",
			}
		}
		return Decision{}

	case models.ArticlePublished:
		if !now.Before(article.ExpireAt) {
			return Decision{
				Due:       true,
				Next:      models.ArticleExpired,
				Action:    ActionRetractPost,
				PublishAt: article.PublishAt,
				ExpireAt:  article.ExpireAt,
				Reason:    "expire time reached",
			}
		}
		return Decision{}

	case models.ArticleExpired:
		// Reclaimed by the cleanup pass, not the regular advance
		return Decision{}
	}

	return Decision{}
}

// CleanupDue reports whether the cleanup pass should archive the article.
// Only expired articles (retraction already confirmed) are reclaimed.
func CleanupDue(article models.Article) bool {
	return article.State == models.ArticleExpired
}
