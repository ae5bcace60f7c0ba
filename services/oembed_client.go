package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"community-points/config"
	"community-points/utils"

	"github.com/goccy/go-json"
	"golang.org/x/net/html"
)

// OEmbedClient reads the public embed endpoint. It needs no credentials but
// never returns engagement counts.
type OEmbedClient struct {
	endpoint string
	http     *http.Client
}

func NewOEmbedClient(cfg config.OEmbedConfig) *OEmbedClient {
	return &OEmbedClient{endpoint: cfg.URL, http: utils.NewHTTPClient(cfg.Timeout)}
}

func (c *OEmbedClient) Name() string { return SourceEmbed }

type oembedResponse struct {
	URL        string `json:"url"`
	AuthorName string `json:"author_name"`
	AuthorURL  string `json:"author_url"`
	HTML       string `json:"html"`
}

func (c *OEmbedClient) FetchPost(ctx context.Context, ref utils.PostRef, _ bool) (*PostData, error) {
	author := ref.Username
	if author == "" {
		author = "i"
	}
	q := url.Values{}
	q.Set("url", fmt.Sprintf("https://twitter.com/%s/status/%s", author, ref.ID))
	q.Set("omit_script", "true")
	q.Set("dnt", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oembed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrPostNotFound
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("oembed: %w", ErrRateLimited)
	default:
		return nil, fmt.Errorf("oembed: unexpected status %d", resp.StatusCode)
	}

	var payload oembedResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("oembed: decode: %w", err)
	}

	content, posted := parseEmbedHTML(payload.HTML)
	data := &PostData{
		ExternalID: ref.ID,
		Author:     usernameFromProfileURL(payload.AuthorURL),
		AuthorName: payload.AuthorName,
		Content:    content,
		Source:     SourceEmbed,
	}
	if !posted.IsZero() {
		data.PostedAt = &posted
	}
	return data, nil
}

func usernameFromProfileURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return path.Base(strings.TrimRight(u.Path, "/"))
}

// parseEmbedHTML pulls the post text out of the first <p> of the embed blockquote
// and the publish date out of the last link.
func parseEmbedHTML(markup string) (string, time.Time) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return "", time.Time{}
	}

	var (
		text     string
		lastLink string
		walk     func(n *html.Node)
	)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p":
				if text == "" {
					text = nodeText(n)
				}
			case "a":
				lastLink = nodeText(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	posted, _ := time.Parse("January 2, 2006", strings.TrimSpace(lastLink))
	return strings.Join(strings.Fields(text), " "), posted
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && n.Data == "br":
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return b.String()
}
