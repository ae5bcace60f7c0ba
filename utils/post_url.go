package utils

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var ErrInvalidPostURL = errors.New("not a valid post URL")

var (
	postHosts = map[string]bool{
		"twitter.com":        true,
		"www.twitter.com":    true,
		"mobile.twitter.com": true,
		"x.com":              true,
		"www.x.com":          true,
		"mobile.x.com":       true,
	}
	// /<user>/status/<id> or /i/web/status/<id>
	postPathRe = regexp.MustCompile(`^/(?:([A-Za-z0-9_]{1,15})|i/web)/status(?:es)?/(\d{1,20})/?`)
)

// PostRef identifies a post by id; Username is empty when the URL doesn't name the author.
type PostRef struct {
	ID       string
	Username string
	URL      string // canonical https://x.com/<user>/status/<id>
}

// ParsePostURL accepts twitter.com and x.com status links, with or without a scheme.
func ParsePostURL(raw string) (PostRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return PostRef{}, ErrInvalidPostURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return PostRef{}, ErrInvalidPostURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return PostRef{}, ErrInvalidPostURL
	}
	if !postHosts[strings.ToLower(u.Hostname())] {
		return PostRef{}, ErrInvalidPostURL
	}
	m := postPathRe.FindStringSubmatch(u.Path)
	if m == nil {
		return PostRef{}, ErrInvalidPostURL
	}

	ref := PostRef{ID: m[2], Username: m[1]}
	user := ref.Username
	if user == "" {
		user = "i/web"
	}
	ref.URL = "https://x.com/" + user + "/status/" + ref.ID
	return ref, nil
}
