package models

import "time"

// ArticleState tracks an article through its publication lifecycle.
// Transitions are monotonic forward except the cancellation fast-path,
// which may jump from any non-terminal state to archived.
type ArticleState string

const (
	ArticleDraft     ArticleState = "draft"
	ArticleScheduled ArticleState = "scheduled"
	ArticlePublished ArticleState = "published"
	ArticleExpired   ArticleState = "expired"
	ArticleArchived  ArticleState = "archived"
)

// Terminal reports whether no further transition can leave the state
func (s ArticleState) Terminal() bool {
	return s == ArticleArchived
}

// Article is the publishable content record tied to a fixture.
// One article exists per fixture and language; it is created once a
// Prediction exists. Version mirrors the store's optimistic-lock version
// so concurrent runs cannot double-publish.
type Article struct {
	ID        string       `json:"id"`
	FixtureID string       `json:"fixture_id"`
	Language  string       `json:"language"`
	State     ArticleState `json:"state"`
	PublishAt time.Time    `json:"publish_at"` // kickoff - lead time; frozen once published
	ExpireAt  time.Time    `json:"expire_at"`  // kickoff + match duration + trailing window
	PostID    string       `json:"post_id,omitempty"` // gateway post id once published
	Version   int64        `json:"version"`
	UpdatedAt time.Time    `json:"updated_at"`
}
