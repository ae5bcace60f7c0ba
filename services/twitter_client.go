package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"community-points/config"
	"community-points/utils"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	SourceAPI     = "api"
	SourceScraper = "scraper"
	SourceEmbed   = "embed"
	SourceManual  = "manual"
)

// TwitterClient talks to the v2 REST API with an app-only bearer token.
type TwitterClient struct {
	baseURL string
	http    *http.Client
}

func NewTwitterClient(cfg config.TwitterConfig) *TwitterClient {
	base := utils.NewHTTPClient(cfg.Timeout)
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	var client *http.Client
	if cfg.BearerToken != "" {
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.BearerToken,
			TokenType:   "Bearer",
		}))
	} else {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     baseURL + "/oauth2/token",
		}
		client = cc.Client(ctx)
	}
	client.Timeout = cfg.Timeout

	return &TwitterClient{baseURL: baseURL, http: client}
}

func (c *TwitterClient) Name() string { return SourceAPI }

type tweetLookupResponse struct {
	Data *struct {
		ID            string    `json:"id"`
		Text          string    `json:"text"`
		AuthorID      string    `json:"author_id"`
		CreatedAt     time.Time `json:"created_at"`
		PublicMetrics struct {
			LikeCount    int64 `json:"like_count"`
			RetweetCount int64 `json:"retweet_count"`
			ReplyCount   int64 `json:"reply_count"`
			QuoteCount   int64 `json:"quote_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			Name     string `json:"name"`
		} `json:"users"`
	} `json:"includes"`
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Type   string `json:"type"`
	} `json:"errors"`
}

// FetchPost returns content and public metrics. 404 and "Not Found Error" bodies map to ErrPostNotFound.
func (c *TwitterClient) FetchPost(ctx context.Context, ref utils.PostRef, _ bool) (*PostData, error) {
	q := url.Values{}
	q.Set("tweet.fields", "public_metrics,created_at,author_id")
	q.Set("expansions", "author_id")
	q.Set("user.fields", "username,name")
	endpoint := fmt.Sprintf("%s/2/tweets/%s?%s", c.baseURL, url.PathEscape(ref.ID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twitter api: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("twitter api: %w (reset %s)", ErrRateLimited, resp.Header.Get("x-rate-limit-reset"))
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrPostNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("twitter api: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload tweetLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("twitter api: decode: %w", err)
	}
	if payload.Data == nil {
		for _, e := range payload.Errors {
			if e.Title == "Not Found Error" || strings.HasSuffix(e.Type, "resource-not-found") {
				return nil, ErrPostNotFound
			}
		}
		return nil, fmt.Errorf("twitter api: empty response for %s", ref.ID)
	}

	d := payload.Data
	data := &PostData{
		ExternalID: d.ID,
		Content:    d.Text,
		Counts: &EngagementCounts{
			Likes:    d.PublicMetrics.LikeCount,
			Retweets: d.PublicMetrics.RetweetCount,
			Replies:  d.PublicMetrics.ReplyCount,
		},
		Source: SourceAPI,
	}
	if !d.CreatedAt.IsZero() {
		posted := d.CreatedAt
		data.PostedAt = &posted
	}
	for _, u := range payload.Includes.Users {
		if u.ID == d.AuthorID {
			data.Author = u.Username
			data.AuthorName = u.Name
			break
		}
	}
	return data, nil
}
