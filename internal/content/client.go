// Package content fetches predictions and news from the remote
// SportyPredict API. It is read-only; the session manager owns the token
// used for VIP content.
package content

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/matchtime"
	apperrors "github.com/Milly-Sporty/sportypredict-frontend-sub000/pkg/errors"
	"github.com/Milly-Sporty/sportypredict-frontend-sub000/pkg/httpclient"
)

// Prediction is a single tip as served by the content API.
type Prediction struct {
	ID         string    `json:"id"`
	Sport      string    `json:"sport"`
	League     string    `json:"league"`
	HomeTeam   string    `json:"homeTeam"`
	AwayTeam   string    `json:"awayTeam"`
	Tip        string    `json:"tip"`
	Odds       float64   `json:"odds"`
	MatchDate  time.Time `json:"matchDate"`
	MatchTime  string    `json:"matchTime"`
	IsVip      bool      `json:"isVip"`
	Result     string    `json:"result,omitempty"`
	Analysis   string    `json:"analysis,omitempty"`
	Confidence int       `json:"confidence,omitempty"`
}

// KickoffAt resolves the feed's loose kickoff time string against ref.
// Predictions with an unparsable time fall back to the match date.
func (p Prediction) KickoffAt(ref time.Time) time.Time {
	kickoff, err := matchtime.Parse(p.MatchTime, ref)
	if err != nil {
		return p.MatchDate
	}
	return kickoff
}

// Countdown renders the time left before kickoff for display.
func (p Prediction) Countdown(ref time.Time) string {
	return matchtime.Countdown(p.KickoffAt(ref), ref)
}

// NewsItem is a published article teaser.
type NewsItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Summary     string    `json:"summary"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
}

// PredictionsQuery narrows a predictions listing.
type PredictionsQuery struct {
	Date     string
	Category string
}

// Client talks to the content endpoints of the remote API.
type Client struct {
	http    *httpclient.CircuitBreakerClient
	baseURL string
	logger  *slog.Logger
}

// New creates a content client rooted at baseURL.
func New(hc *httpclient.CircuitBreakerClient, baseURL string, logger *slog.Logger) *Client {
	return &Client{http: hc, baseURL: baseURL, logger: logger}
}

// Predictions lists tips. A non-empty token unlocks VIP entries; without
// one the server returns the free tier only.
func (c *Client) Predictions(ctx context.Context, token string, q PredictionsQuery) ([]Prediction, error) {
	params := url.Values{}
	if q.Date != "" {
		params.Set("date", q.Date)
	}
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	path := "/predictions"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var out struct {
		Predictions []Prediction `json:"predictions"`
	}
	if err := c.get(ctx, path, token, &out); err != nil {
		return nil, err
	}
	return out.Predictions, nil
}

// Prediction fetches one tip by ID. VIP tips require an entitled token;
// the server answers 403 otherwise.
func (c *Client) Prediction(ctx context.Context, token, id string) (*Prediction, error) {
	var out struct {
		Prediction Prediction `json:"prediction"`
	}
	if err := c.get(ctx, "/predictions/"+url.PathEscape(id), token, &out); err != nil {
		return nil, err
	}
	return &out.Prediction, nil
}

// News lists published articles.
func (c *Client) News(ctx context.Context) ([]NewsItem, error) {
	var out struct {
		News []NewsItem `json:"news"`
	}
	if err := c.get(ctx, "/news", "", &out); err != nil {
		return nil, err
	}
	return out.News, nil
}

func (c *Client) get(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("content api %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, "content api")
	}

	defer func() { _ = resp.Body.Close() }()
	var env struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&env); err != nil {
		return apperrors.InvalidResponse(fmt.Sprintf("decode %s response: %v", path, err))
	}
	if len(env.Data) == 0 {
		return apperrors.InvalidResponse(fmt.Sprintf("%s response missing data", path))
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperrors.InvalidResponse(fmt.Sprintf("decode %s data: %v", path, err))
	}
	return nil
}
