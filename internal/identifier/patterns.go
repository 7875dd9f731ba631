package identifier

import (
	"net/url"
	"regexp"

	"github.com/wishlistapp/catalog-server/internal/domain"
)

// matcher extracts an identifier from a normalized URL.
type matcher func(u *url.URL) (string, bool)

func pathMatcher(pattern string) matcher {
	re := regexp.MustCompile(pattern)
	return func(u *url.URL) (string, bool) {
		m := re.FindStringSubmatch(u.Path)
		if m == nil {
			return "", false
		}
		return m[1], true
	}
}

func queryMatcher(key string) matcher {
	return func(u *url.URL) (string, bool) {
		v := u.Query().Get(key)
		return v, v != ""
	}
}

// pathMatchers run against the normalized path, first match wins.
var pathMatchers = []matcher{
	pathMatcher(`(?i)/dp/([A-Z0-9]{10})(?:/|$)`),
	pathMatcher(`(?i)/gp/product/([A-Z0-9]{10})(?:/|$)`),
	pathMatcher(`(?i)/gp/aw/d/([A-Z0-9]{10})(?:/|$)`),
	pathMatcher(`(?i)/exec/obidos/ASIN/([A-Z0-9]{10})(?:/|$)`),
	pathMatcher(`(?i)/o/ASIN/([A-Z0-9]{10})(?:/|$)`),
	pathMatcher(`(?i)/product-reviews/([A-Z0-9]{10})(?:/|$)`),
}

// queryMatchers run against the original query string, which Normalize drops.
var queryMatchers = []matcher{
	queryMatcher("asin"),
	queryMatcher("ASIN"),
}

// Extract runs the ordered matchers over original and its normalized form.
func Extract(original *url.URL) (domain.Identifier, error) {
	normalized := Normalize(original)
	for _, m := range pathMatchers {
		if raw, ok := m(normalized); ok {
			if id, err := domain.ParseIdentifier(raw); err == nil {
				return id, nil
			}
		}
	}
	for _, m := range queryMatchers {
		if raw, ok := m(original); ok {
			if id, err := domain.ParseIdentifier(raw); err == nil {
				return id, nil
			}
		}
	}
	return "", ErrNotAProductURL
}
