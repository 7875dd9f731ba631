// Package identifier turns user-supplied product references (full URLs,
// short links, bare identifiers) into a canonical marketplace identifier.
package identifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wishlistapp/catalog-server/internal/domain"
)

const (
	// DefaultMaxRedirects bounds short-link expansion.
	DefaultMaxRedirects = 5
	defaultTimeout      = 10 * time.Second
	defaultUserAgent    = "CatalogServer-Resolver/1.0"
)

// Options configures a Resolver. Zero values pick defaults.
type Options struct {
	MaxRedirects int
	Timeout      time.Duration
	UserAgent    string
}

// Resolver extracts identifiers from URLs, expanding short links hop by hop.
type Resolver struct {
	http         *http.Client
	maxRedirects int
	userAgent    string
	isShortener  func(host string) bool
	logger       *slog.Logger
}

// New creates a resolver.
func New(logger *slog.Logger, opts Options) *Resolver {
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		http: &http.Client{
			Timeout: opts.Timeout,
			// Redirects are followed manually so every hop is counted.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		maxRedirects: opts.MaxRedirects,
		userAgent:    opts.UserAgent,
		isShortener:  IsShortener,
		logger:       logger,
	}
}

// Resolve returns the canonical identifier referenced by raw.
//
// raw may be a bare identifier, a marketplace URL in any regional or mobile
// variant, or a short link. ErrNotAProductURL and ErrTooManyRedirects are
// user-input errors; anything else is a network failure during expansion.
func (r *Resolver) Resolve(ctx context.Context, raw string) (domain.Identifier, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNotAProductURL
	}
	if len(raw) == domain.IdentifierLength && !strings.ContainsAny(raw, "./:") {
		if id, err := domain.ParseIdentifier(raw); err == nil {
			return id, nil
		}
		return "", ErrNotAProductURL
	}

	u, err := parseLoose(raw)
	if err != nil {
		return "", ErrNotAProductURL
	}

	if r.isShortener(u.Hostname()) {
		u, err = r.expand(ctx, u)
		if err != nil {
			return "", err
		}
	}

	if !IsMarketplaceHost(u.Hostname()) {
		return "", ErrNotAProductURL
	}

	id, err := Extract(u)
	if err != nil {
		return "", err
	}

	r.logger.Debug("resolved product URL", "input", raw, "identifier", id)
	return id, nil
}

// expand follows redirects from a short link until it lands on a host that is
// not itself a shortener, failing once the hop budget is exhausted.
func (r *Resolver) expand(ctx context.Context, start *url.URL) (*url.URL, error) {
	current := start
	for hop := 0; ; hop++ {
		if !r.isShortener(current.Hostname()) {
			return current, nil
		}
		if hop >= r.maxRedirects {
			r.logger.Warn("short link exceeded redirect limit",
				"url", start.String(),
				"max_redirects", r.maxRedirects,
			)
			return nil, ErrTooManyRedirects
		}

		next, err := r.nextHop(ctx, current)
		if err != nil {
			return nil, err
		}
		if next == nil {
			// Terminal response from the shortener itself.
			return current, nil
		}
		current = next
	}
}

// nextHop issues one request and returns the redirect target, or nil when the
// response is not a redirect.
func (r *Resolver) nextHop(ctx context.Context, u *url.URL) (*url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("identifier: build request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identifier: expand %s: %w", u.Host, err)
	}
	resp.Body.Close()

	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return nil, nil
	}

	loc := resp.Header.Get("Location")
	if loc == "" {
		return nil, ErrNotAProductURL
	}
	next, err := u.Parse(loc)
	if err != nil || (next.Scheme != "http" && next.Scheme != "https") {
		return nil, ErrNotAProductURL
	}
	return next, nil
}

// parseLoose accepts URLs with or without a scheme.
func parseLoose(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrNotAProductURL
	}
	if u.Hostname() == "" {
		return nil, ErrNotAProductURL
	}
	return u, nil
}
