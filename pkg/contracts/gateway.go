package contracts

import (
	"context"
	"time"
)

// PostContent is the payload handed to the publishing gateway when an
// article goes live. The slug doubles as the gateway-side idempotency key.
type PostContent struct {
	Slug      string
	Title     string
	Body      string
	Language  string
	FixtureID string
	PublishAt time.Time
}

// PublishingGateway is the external CMS collaborator. Both calls are
// expected to be safely retryable at the gateway's discretion; the core
// guarantees it never issues a second create for an article already
// recorded as published.
type PublishingGateway interface {
	// CreatePost publishes content and returns the gateway post id
	CreatePost(ctx context.Context, content PostContent) (string, error)

	// RetractPost takes a previously created post offline
	RetractPost(ctx context.Context, postID string) error
}
