package crawler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// SearchParams describes one provider search request.
type SearchParams struct {
	Keyword    string
	WindowDays int
	Region     string
	Offset     int
}

// SearchURL builds the provider search URL, e.g.
// https://nl.indeed.com/jobs?q=data+analyst&fromage=125&sort=date.
// The region and start offset are only added when set.
func SearchURL(baseURL string, p SearchParams) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/jobs")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := url.Values{}
	q.Set("q", p.Keyword)
	q.Set("fromage", strconv.Itoa(p.WindowDays))
	q.Set("sort", "date")
	if p.Region != "" {
		q.Set("l", p.Region)
	}
	if p.Offset > 0 {
		q.Set("start", strconv.Itoa(p.Offset))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// WithOffset returns rawURL with its start parameter set to offset.
func WithOffset(rawURL string, offset int) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	if offset > 0 {
		q.Set("start", strconv.Itoa(offset))
	} else {
		q.Del("start")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Absolute resolves href against the site's scheme and host.
func Absolute(baseURL, href string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

// NormalizeURL standardizes a URL to avoid duplicates.
// It lowercases the scheme and host, removes default ports, and sorts query parameters.
// It also removes fragments.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}
