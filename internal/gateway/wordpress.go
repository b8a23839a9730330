// Package gateway provides an HTTP client for the WordPress-style CMS
// that hosts the generated articles. Creates and retractions are
// idempotent on the gateway side via the post slug.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/XavierBriggs/Pythia/pkg/contracts"
	"github.com/XavierBriggs/Pythia/pkg/errkind"
)

// WordPress implements the publishing gateway contract against the
// WordPress REST API using an application password.
type WordPress struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	log        *logrus.Logger
}

// Config holds connection details for the CMS
type Config struct {
	BaseURL  string // e.g. "https://site.example.com"
	Username string
	Password string // application password, not the account password
	Timeout  time.Duration
}

// createPostRequest is the subset of the posts endpoint we use
type createPostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Slug    string `json:"slug"`
	Status  string `json:"status"`
	Lang    string `json:"lang,omitempty"`
}

type postResponse struct {
	ID int64 `json:"id"`
}

// NewWordPress creates a gateway client
func NewWordPress(cfg Config, log *logrus.Logger) *WordPress {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	return &WordPress{
		baseURL:  cfg.BaseURL,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// CreatePost publishes an article and returns the CMS post id. The slug
// carries the article identity, so a duplicate create resolves to the
// same post on the gateway side.
func (w *WordPress) CreatePost(ctx context.Context, content contracts.PostContent) (string, error) {
	payload := createPostRequest{
		Title:   content.Title,
		Content: content.Body,
		Slug:    content.Slug,
		Status:  "publish",
		Lang:    content.Language,
	}

	var resp postResponse
	if err := w.do(ctx, http.MethodPost, "/wp-json/wp/v2/posts", payload, &resp); err != nil {
		return "", err
	}

	w.log.WithFields(logrus.Fields{
		"fixture": content.FixtureID,
		"post_id": resp.ID,
		"slug":    content.Slug,
	}).Info("post created")
	return fmt.Sprintf("%d", resp.ID), nil
}

// RetractPost takes a post offline by flipping it back to draft status.
// Retracting an already retracted post succeeds.
func (w *WordPress) RetractPost(ctx context.Context, postID string) error {
	payload := map[string]string{"status": "draft"}
	if err := w.do(ctx, http.MethodPost, "/wp-json/wp/v2/posts/"+postID, payload, nil); err != nil {
		return err
	}

	w.log.WithField("post_id", postID).Info("post retracted")
	return nil
}

// do sends one authenticated JSON request and decodes the response.
// Errors are classified so the retry policy can tell a flaky gateway
// from a misconfigured one.
func (w *WordPress) do(ctx context.Context, method, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, w.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(w.username, w.password)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return errkind.Wrap(errkind.Transient, "gateway."+method, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errkind.New(errkind.Permanent, "gateway."+method, "authentication rejected (%d)", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errkind.New(errkind.Transient, "gateway."+method, "gateway returned %d", resp.StatusCode)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errkind.New(errkind.Permanent, "gateway."+method, "unexpected status %d: %s", resp.StatusCode, snippet)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errkind.Wrap(errkind.Transient, "gateway."+method, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
