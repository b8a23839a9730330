// Package apifootball implements the fixture, form, and odds feed
// contracts against an API-Football style REST vendor.
package apifootball

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/XavierBriggs/Pythia/pkg/contracts"
	"github.com/XavierBriggs/Pythia/pkg/errkind"
	"github.com/XavierBriggs/Pythia/pkg/models"
)

const (
	userAgent      = "Pythia/1.0 (Fixture Prediction Engine)"
	defaultTimeout = 15 * time.Second
	sourceName     = "api_football"
)

// Client talks to the vendor REST API. Transport failures and rate
// limits surface as transient errors so the caller's retry policy can
// back off; auth failures are permanent and abort the batch.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Ensure Client implements the feed contracts
var (
	_ contracts.FixtureFeed = (*Client)(nil)
	_ contracts.FormFeed    = (*Client)(nil)
	_ contracts.OddsFeed    = (*Client)(nil)
)

// NewClient creates a feed client
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// fixtureResponse mirrors the vendor's fixtures payload
type fixtureResponse struct {
	Response []struct {
		Fixture struct {
			ID     int64  `json:"id"`
			Date   string `json:"date"`
			Status struct {
				Short string `json:"short"`
			} `json:"status"`
		} `json:"fixture"`
		League struct {
			Name string `json:"name"`
		} `json:"league"`
		Teams struct {
			Home struct {
				Name string `json:"name"`
			} `json:"home"`
			Away struct {
				Name string `json:"name"`
			} `json:"away"`
		} `json:"teams"`
	} `json:"response"`
}

// FetchFixtures returns raw fixture records kicking off inside the window
func (c *Client) FetchFixtures(ctx context.Context, from, to time.Time) ([]models.RawFixtureRecord, error) {
	params := url.Values{}
	params.Set("from", from.UTC().Format("2006-01-02"))
	params.Set("to", to.UTC().Format("2006-01-02"))

	body, err := c.get(ctx, "/fixtures", params)
	if err != nil {
		return nil, fmt.Errorf("fetch fixtures: %w", err)
	}

	var apiResp fixtureResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, errkind.Wrap(errkind.Validation, "feed.fixtures", err)
	}

	records := make([]models.RawFixtureRecord, 0, len(apiResp.Response))
	for _, item := range apiResp.Response {
		kickoff, _ := time.Parse(time.RFC3339, item.Fixture.Date)
		records = append(records, models.RawFixtureRecord{
			Source:    sourceName,
			FixtureID: fmt.Sprintf("%d", item.Fixture.ID),
			League:    item.League.Name,
			HomeTeam:  item.Teams.Home.Name,
			AwayTeam:  item.Teams.Away.Name,
			Kickoff:   kickoff,
			Status:    mapStatus(item.Fixture.Status.Short),
		})
	}
	return records, nil
}

// formResponse mirrors the vendor's team statistics payload
type formResponse struct {
	Response struct {
		Form  string `json:"form"` // e.g. "WWDLW", most recent last
		Goals struct {
			For struct {
				Average struct {
					Total string `json:"total"`
				} `json:"average"`
			} `json:"for"`
			Against struct {
				Average struct {
					Total string `json:"total"`
				} `json:"average"`
			} `json:"against"`
		} `json:"goals"`
		Expected struct {
			For     float64 `json:"for"`
			Against float64 `json:"against"`
		} `json:"expected"`
	} `json:"response"`
}

// FetchTeamForm returns the latest rolling form snapshot for a team
func (c *Client) FetchTeamForm(ctx context.Context, league, teamID string) (*models.TeamForm, error) {
	params := url.Values{}
	params.Set("league", league)
	params.Set("team", teamID)

	body, err := c.get(ctx, "/teams/statistics", params)
	if err != nil {
		return nil, fmt.Errorf("fetch team form: %w", err)
	}

	var apiResp formResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, errkind.Wrap(errkind.Validation, "feed.team_form", err)
	}

	return &models.TeamForm{
		TeamID:           teamID,
		GoalsForRate:     parseRate(apiResp.Response.Goals.For.Average.Total),
		GoalsAgainstRate: parseRate(apiResp.Response.Goals.Against.Average.Total),
		XGForRate:        apiResp.Response.Expected.For,
		XGAgainstRate:    apiResp.Response.Expected.Against,
		RecentResults:    parseForm(apiResp.Response.Form),
		AsOf:             time.Now(),
	}, nil
}

// oddsResponse mirrors the vendor's odds payload
type oddsResponse struct {
	Response []struct {
		Update     string `json:"update"`
		Bookmakers []struct {
			Name string `json:"name"`
			Bets []struct {
				Name   string `json:"name"`
				Values []struct {
					Value string `json:"value"`
					Odd   string `json:"odd"`
				} `json:"values"`
			} `json:"bets"`
		} `json:"bookmakers"`
	} `json:"response"`
}

// FetchQuotes returns current market prices for one fixture
func (c *Client) FetchQuotes(ctx context.Context, fixtureID string) ([]models.OddsQuote, error) {
	params := url.Values{}
	params.Set("fixture", fixtureID)

	body, err := c.get(ctx, "/odds", params)
	if err != nil {
		return nil, fmt.Errorf("fetch quotes: %w", err)
	}

	var apiResp oddsResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, errkind.Wrap(errkind.Validation, "feed.odds", err)
	}

	var quotes []models.OddsQuote
	for _, item := range apiResp.Response {
		updated, _ := time.Parse(time.RFC3339, item.Update)
		for _, book := range item.Bookmakers {
			for _, bet := range book.Bets {
				market, outcomeOf := mapMarket(bet.Name)
				if market == "" {
					continue
				}
				for _, value := range bet.Values {
					outcome := outcomeOf(value.Value)
					if outcome == "" {
						continue
					}
					quotes = append(quotes, models.OddsQuote{
						FixtureID: fixtureID,
						Market:    market,
						Outcome:   outcome,
						Price:     parseRate(value.Odd),
						Source:    book.Name,
						Timestamp: updated,
					})
				}
			}
		}
	}
	return quotes, nil
}

// get performs one authenticated request and classifies HTTP failures
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	fullURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-apisports-key", c.apiKey)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "feed.get", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errkind.New(errkind.Permanent, "feed.get", "api key rejected (%d)", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, errkind.New(errkind.Transient, "feed.get", "feed returned %d", resp.StatusCode)
	default:
		return nil, errkind.New(errkind.Permanent, "feed.get", "unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "feed.get", err)
	}
	return body, nil
}

// mapStatus folds the vendor's short status codes into ours
func mapStatus(short string) models.FixtureStatus {
	switch short {
	case "PST":
		return models.FixturePostponed
	case "CANC", "ABD", "AWD", "WO":
		return models.FixtureCancelled
	case "FT", "AET", "PEN":
		return models.FixtureFinished
	}
	return models.FixtureScheduled
}

// mapMarket maps a vendor bet name to our market key and an outcome mapper
func mapMarket(betName string) (string, func(string) string) {
	switch betName {
	case "Match Winner":
		return models.MarketMatchWinner, func(v string) string {
			switch v {
			case "Home":
				return models.OutcomeHome
			case "Draw":
				return models.OutcomeDraw
			case "Away":
				return models.OutcomeAway
			}
			return ""
		}
	case "Goals Over/Under":
		return models.MarketTotals, func(v string) string {
			switch v {
			case "Over 2.5":
				return models.OutcomeOver
			case "Under 2.5":
				return models.OutcomeUnder
			}
			return ""
		}
	}
	return "", nil
}

// parseForm converts "WWDLW" (most recent last) into our most-recent-first
// result sequence
func parseForm(form string) []models.MatchResult {
	results := make([]models.MatchResult, 0, len(form))
	for i := len(form) - 1; i >= 0; i-- {
		switch form[i] {
		case 'W':
			results = append(results, models.ResultWin)
		case 'D':
			results = append(results, models.ResultDraw)
		case 'L':
			results = append(results, models.ResultLoss)
		}
	}
	return results
}

func parseRate(s string) float64 {
	var v float64
	_, err := fmt.Sscanf(s, "%f", &v)
	if err != nil {
		return 0
	}
	return v
}
