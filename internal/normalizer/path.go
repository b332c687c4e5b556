package normalizer

import (
	"net/url"
	"strings"
)

// placeholderBase resolves relative paths so they can be parsed as URLs.
var placeholderBase = &url.URL{Scheme: "http", Host: "placeholder.invalid", Path: "/"}

// NormalizePath keeps only the path component of a page URL. Absent paths
// become "/", unparseable ones are returned as-is. The origin is returned
// when the input was an absolute URL.
func NormalizePath(raw string) (string, *string) {
	if raw == "" {
		return "/", nil
	}

	u, err := placeholderBase.Parse(raw)
	if err != nil {
		return raw, nil
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	var origin *string
	if u.Host != "" && u.Host != placeholderBase.Host {
		o := u.Scheme + "://" + u.Host
		origin = &o
	}

	return path, origin
}

// UTM holds the standard campaign parameters; each is nil when absent.
type UTM struct {
	Source   *string
	Medium   *string
	Campaign *string
	Term     *string
	Content  *string
}

// ExtractUTM reads the five utm_* parameters from a query.
func ExtractUTM(q url.Values) UTM {
	return UTM{
		Source:   nullable(q.Get("utm_source")),
		Medium:   nullable(q.Get("utm_medium")),
		Campaign: nullable(q.Get("utm_campaign")),
		Term:     nullable(q.Get("utm_term")),
		Content:  nullable(q.Get("utm_content")),
	}
}

// queryOf returns the query of a raw page URL, tolerating inputs url.Parse
// rejects.
func queryOf(raw string) url.Values {
	if raw == "" {
		return url.Values{}
	}
	if u, err := placeholderBase.Parse(raw); err == nil {
		return u.Query()
	}

	_, rawQuery, found := strings.Cut(raw, "?")
	if !found {
		return url.Values{}
	}
	rawQuery, _, _ = strings.Cut(rawQuery, "#")
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return url.Values{}
	}
	return q
}
