package loader

import (
	"net/url"
	"sort"
	"strings"
)

// ID identifies a loadable resource: a path, a URL or a plain key.
type ID string

// String returns the identifier as a string.
func (id ID) String() string {
	return string(id)
}

// Scheme returns the lower-cased URL scheme of id, or "" when id has none.
// Windows drive letters ("C:\...") are not treated as schemes.
func (id ID) Scheme() string {
	s := string(id)
	i := strings.Index(s, "://")
	if i <= 1 {
		return ""
	}
	scheme := s[:i]
	for _, r := range scheme {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.') {
			return ""
		}
	}
	return strings.ToLower(scheme)
}

// Path strips a scheme prefix ("file://a/b" -> "a/b"). IDs without a scheme
// are returned unchanged.
func (id ID) Path() string {
	if id.Scheme() == "" {
		return string(id)
	}
	return string(id)[strings.Index(string(id), "://")+3:]
}

// NormalizeID generates a deterministic form of id so that equivalent URLs map
// to the same cache entry.
//
// For http(s) identifiers the scheme and host are lower-cased, the fragment is
// dropped and query parameters are sorted by key then value:
//
//	HTTPS://Example.com/a?b=2&a=1#top -> https://example.com/a?a=1&b=2
//
// Any other identifier is returned unchanged.
func NormalizeID(id ID) ID {
	scheme := id.Scheme()
	if scheme != "http" && scheme != "https" {
		return id
	}

	u, err := url.Parse(string(id))
	if err != nil {
		return id
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		keys := make([]string, 0, len(q))
		for key := range q {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(q))
		for _, key := range keys {
			values := append([]string(nil), q[key]...)
			sort.Strings(values)
			for _, v := range values {
				parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(parts, "&")
	}

	return ID(u.String())
}
