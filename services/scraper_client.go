package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"community-points/config"
	"community-points/utils"

	"github.com/goccy/go-json"
)

// ScraperClient calls the scraping sidecar (POST /tweet, /engagement, /user).
type ScraperClient struct {
	baseURL string
	http    *http.Client
}

func NewScraperClient(cfg config.ScraperConfig) *ScraperClient {
	return &ScraperClient{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    utils.NewHTTPClient(cfg.Timeout),
	}
}

func (c *ScraperClient) Name() string { return SourceScraper }

type scraperTweet struct {
	TweetID string `json:"tweet_id"`
	Content string `json:"content"`
	Author  struct {
		Username       string `json:"username"`
		DisplayName    string `json:"display_name"`
		Verified       bool   `json:"verified"`
		FollowersCount int64  `json:"followers_count"`
	} `json:"author"`
	Engagement EngagementCounts `json:"engagement"`
	CreatedAt  string           `json:"created_at"`
}

type scraperUser struct {
	Username       string `json:"username"`
	DisplayName    string `json:"display_name"`
	FollowersCount int64  `json:"followers_count"`
	Verified       bool   `json:"verified"`
}

// FetchPost uses /engagement when only counts are needed and /tweet otherwise.
func (c *ScraperClient) FetchPost(ctx context.Context, ref utils.PostRef, countsOnly bool) (*PostData, error) {
	if countsOnly {
		var counts EngagementCounts
		if err := c.post(ctx, "/engagement", map[string]any{"tweet_url": ref.URL}, &counts); err != nil {
			return nil, err
		}
		return &PostData{ExternalID: ref.ID, Counts: &counts, Source: SourceScraper}, nil
	}

	var tw scraperTweet
	body := map[string]any{"tweet_url": ref.URL, "include_engagement": true, "include_user_info": true}
	if err := c.post(ctx, "/tweet", body, &tw); err != nil {
		return nil, err
	}
	counts := tw.Engagement
	data := &PostData{
		ExternalID: ref.ID,
		Author:     tw.Author.Username,
		AuthorName: tw.Author.DisplayName,
		Content:    tw.Content,
		Counts:     &counts,
		Source:     SourceScraper,
	}
	if tw.TweetID != "" {
		data.ExternalID = tw.TweetID
	}
	if t, ok := parseLooseTime(tw.CreatedAt); ok {
		data.PostedAt = &t
	}
	return data, nil
}

func (c *ScraperClient) FetchProfile(ctx context.Context, username string) (*ProfileData, error) {
	var u scraperUser
	if err := c.post(ctx, "/user", map[string]any{"username": username}, &u); err != nil {
		return nil, err
	}
	return &ProfileData{
		Username:       u.Username,
		DisplayName:    u.DisplayName,
		FollowersCount: u.FollowersCount,
		Verified:       u.Verified,
	}, nil
}

func (c *ScraperClient) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("scraper %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrPostNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("scraper %s: %w", path, ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("scraper %s: unexpected status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("scraper %s: decode: %w", path, err)
	}
	return nil
}

var looseTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseLooseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range looseTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
